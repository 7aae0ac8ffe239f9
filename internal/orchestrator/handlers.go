package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/engine"
	"github.com/shaiso/dbflow/internal/telemetry"
)

// Обработчики событий цикла. Все функции файла вызываются только из loop.

// accept регистрирует план и ставит в очередь tasks без зависимостей.
func (o *Orchestrator) accept(plan *domain.WorkflowPlan, h *Handle) error {
	if _, exists := o.plans[plan.ID]; exists {
		return fmt.Errorf("%w: %s", ErrPlanAlreadyActive, plan.ID)
	}

	ps := NewPlanState(plan, o.now(), o.logger)
	ps.handle = h

	for _, task := range plan.Tasks {
		task.Seq = o.seq
		o.seq++
	}

	o.plans[plan.ID] = ps
	ps.deadline = time.AfterFunc(o.timeout, func() {
		o.post(func() { o.expire(ps) })
	})

	telemetry.PlansSubmitted.WithLabelValues(string(plan.Kind)).Inc()
	telemetry.PlansActive.Inc()

	ps.logger.Info("plan started",
		"kind", plan.Kind,
		"priority", plan.Priority,
		"tasks", len(plan.Tasks),
	)

	for _, task := range plan.Tasks {
		if task.Status == domain.TaskStatusPending && ps.DAG.DepsSatisfied(task.ID) {
			o.promote(ps, task)
		}
	}

	o.checkPlan(ps)
	o.dispatch()
	return nil
}

// expire завершает план по таймауту.
func (o *Orchestrator) expire(ps *PlanState) {
	if current, ok := o.plans[ps.PlanID()]; !ok || current != ps {
		return
	}
	o.finalize(ps, domain.PlanStatusTimedOut,
		fmt.Errorf("%w: not finished within %s", domain.ErrPlanTimeout, o.timeout))
}

// promote ставит task в очередь готовых (PENDING → READY или FAILED → READY при повторе).
func (o *Orchestrator) promote(ps *PlanState, task *domain.WorkflowTask) {
	logger := telemetry.WithTaskID(ps.logger, task.ID)

	if !o.admit(ps, task) {
		return
	}

	executor, err := o.executors.Get(task.WorkerType)
	if err != nil {
		logger.Warn("no executor for worker, task failed", "worker", task.WorkerType, "error", err)
		o.fail(ps, task, fmt.Errorf("%w: %w", domain.ErrWorkerUnavailable, err).Error(), domain.ReasonWorkerUnavailable)
		return
	}

	params, err := resolveParams(ps, task)
	if err != nil {
		logger.Warn("failed to render task params", "error", err)
		o.fail(ps, task, fmt.Errorf("%w: %w", domain.ErrInvalidParams, err).Error(), domain.ReasonInvalidParams)
		return
	}

	task.MarkReady(params)
	o.ready.push(&readyEntry{planID: ps.PlanID(), task: task, executor: executor})
}

// admit консультирует health gate. CRITICAL воркер сразу проваливает task
// с reason worker-unavailable без расхода попыток, DEGRADED запоминается в плане.
//
// Вызывается при постановке в очередь и повторно перед dispatch:
// пока task ждёт слота в пуле, воркер может стать CRITICAL.
func (o *Orchestrator) admit(ps *PlanState, task *domain.WorkflowTask) bool {
	health, err := o.gate.Admit(task.WorkerType)
	if err != nil {
		telemetry.WorkerHealth.WithLabelValues(string(task.WorkerType)).Set(telemetry.HealthValue(string(health)))
		telemetry.GateRejections.WithLabelValues(string(task.WorkerType)).Inc()
		telemetry.WithTaskID(ps.logger, task.ID).Warn("worker unavailable, task failed",
			"worker", task.WorkerType,
			"health", health,
			"status", task.Status,
		)
		o.fail(ps, task, err.Error(), domain.ReasonWorkerUnavailable)
		return false
	}

	if health == domain.HealthDegraded {
		ps.noteDegraded(task.WorkerType)
	}
	return true
}

// resolveParams рендерит шаблоны параметров шага и дополняет ими Params.
// Значения Params не рендерятся: это данные запроса.
func resolveParams(ps *PlanState, task *domain.WorkflowTask) (map[string]any, error) {
	rendered, err := engine.RenderParams(task.ParamTemplates, ps.Context)
	if err != nil {
		return nil, err
	}

	params := make(map[string]any, len(rendered)+len(task.Params))
	maps.Copy(params, rendered)
	maps.Copy(params, task.Params)
	return params, nil
}

// dispatch передаёт готовые tasks в пул, пока есть свободные слоты.
func (o *Orchestrator) dispatch() {
	for o.inflight < o.poolSize && o.ready.Len() > 0 {
		entry := o.ready.pop()
		ps := o.plans[entry.planID]
		task := entry.task

		if !o.admit(ps, task) {
			o.checkPlan(ps)
			continue
		}

		if o.onDispatch != nil {
			o.onDispatch(ps.Plan, task)
		}

		task.MarkRunning(o.now())
		o.inflight++

		// Буфер workCh равен PoolSize, а inflight < PoolSize: отправка не блокируется.
		o.workCh <- workItem{planID: entry.planID, task: task.Clone(), executor: entry.executor}

		telemetry.TasksDispatched.WithLabelValues(string(task.WorkerType)).Inc()
		ps.logger.Debug("task dispatched",
			"task_id", task.ID,
			"worker", task.WorkerType,
			"priority", task.Priority,
			"attempt", task.RetryCount+1,
		)
	}
	telemetry.ReadyQueueDepth.Set(float64(o.ready.Len()))
}

// handleOutcome обрабатывает результат выполнения task.
func (o *Orchestrator) handleOutcome(out taskOutcome) {
	o.inflight--
	defer o.dispatch()

	ps, ok := o.plans[out.planID]
	if !ok {
		// План отменён или завершён по таймауту — результат отбрасывается
		o.logger.Debug("discarding result of inactive plan",
			"plan_id", out.planID,
			"task_id", out.taskID,
		)
		return
	}

	task := ps.Plan.Task(out.taskID)
	if task == nil || task.Status != domain.TaskStatusRunning {
		ps.logger.Error("unexpected task result", "task_id", out.taskID)
		return
	}

	duration := out.finished.Sub(out.started).Seconds()

	if out.err == nil {
		task.MarkCompleted(out.outputs, out.finished)
		ps.Context.AddStepResult(task.Name, out.outputs, domain.TaskStatusCompleted)
		telemetry.TaskDuration.WithLabelValues(string(task.WorkerType), "completed").Observe(duration)

		ps.logger.Info("task completed",
			"task_id", task.ID,
			"name", task.Name,
			"attempt", task.RetryCount+1,
		)

		o.advance(ps, task)
	} else {
		task.MarkFailed(out.err.Error(), "", out.finished)
		telemetry.TaskDuration.WithLabelValues(string(task.WorkerType), "failed").Observe(duration)
		o.retryOrFail(ps, task, out.err)
	}

	o.checkPlan(ps)
}

// advance ставит в очередь зависимые tasks, у которых все зависимости завершены.
func (o *Orchestrator) advance(ps *PlanState, completed *domain.WorkflowTask) {
	for _, dep := range ps.DAG.Dependents(completed.ID) {
		if dep.Status == domain.TaskStatusPending && ps.DAG.DepsSatisfied(dep.ID) {
			o.promote(ps, dep)
		}
	}
}

// retryOrFail планирует повтор упавшего task или проваливает его окончательно.
func (o *Orchestrator) retryOrFail(ps *PlanState, task *domain.WorkflowTask, err error) {
	if !task.CanRetry() {
		ps.logger.Warn("task failed, retries exhausted",
			"task_id", task.ID,
			"name", task.Name,
			"attempts", task.RetryCount+1,
			"error", err,
		)
		task.SetFailureReason(domain.ReasonRetriesExhausted)
		task.Result.Error = fmt.Sprintf("%v after %d attempts: %s",
			domain.ReasonRetriesExhausted.Err(), task.RetryCount+1, task.Result.Error)
		o.failed(ps, task, domain.ReasonRetriesExhausted)
		return
	}

	delay := o.retry.Backoff(task.RetryCount + 1)
	task.ScheduleRetry(o.now().Add(delay))
	telemetry.TaskRetries.WithLabelValues(string(task.WorkerType)).Inc()

	ps.logger.Warn("task failed, retry scheduled",
		"task_id", task.ID,
		"name", task.Name,
		"retry", task.RetryCount,
		"max_retries", task.MaxRetries,
		"delay", delay,
		"error", err,
	)

	taskID := task.ID
	ps.retries[taskID] = time.AfterFunc(delay, func() {
		o.post(func() { o.retryDue(ps, taskID) })
	})
}

// retryDue возвращает task в очередь после задержки.
func (o *Orchestrator) retryDue(ps *PlanState, taskID string) {
	if current, ok := o.plans[ps.PlanID()]; !ok || current != ps {
		return
	}
	if _, waiting := ps.retries[taskID]; !waiting {
		return
	}
	delete(ps.retries, taskID)

	task := ps.Plan.Task(taskID)
	if ps.DAG.DepsSatisfied(taskID) {
		o.promote(ps, task)
	} else {
		o.fail(ps, task, domain.ReasonDependencyFailed.Err().Error(), domain.ReasonDependencyFailed)
	}

	o.checkPlan(ps)
	o.dispatch()
}

// fail окончательно проваливает task, не дошедший до выполнения
// (PENDING → FAILED, READY → FAILED) или ожидавший повтора (FAILED остаётся FAILED).
func (o *Orchestrator) fail(ps *PlanState, task *domain.WorkflowTask, errMsg string, reason domain.FailureReason) {
	if task.Status == domain.TaskStatusFailed {
		task.SetFailureReason(reason)
		task.Result.Error = errMsg
		task.NotBefore = nil
	} else {
		task.MarkFailed(errMsg, reason, o.now())
	}
	o.failed(ps, task, reason)
}

// failed учитывает окончательное падение task и каскадно проваливает зависимые.
func (o *Orchestrator) failed(ps *PlanState, task *domain.WorkflowTask, reason domain.FailureReason) {
	telemetry.TaskFailures.WithLabelValues(string(task.WorkerType), string(reason)).Inc()
	o.cascade(ps, task)
}

// cascade проваливает транзитивно всех ожидающих потомков task с reason dependency-failed.
func (o *Orchestrator) cascade(ps *PlanState, root *domain.WorkflowTask) {
	queue := []*domain.WorkflowTask{root}
	for len(queue) > 0 {
		failed := queue[0]
		queue = queue[1:]

		for _, dep := range ps.DAG.Dependents(failed.ID) {
			if dep.Status != domain.TaskStatusPending {
				continue
			}
			dep.MarkFailed(
				fmt.Sprintf("%v: %s", domain.ReasonDependencyFailed.Err(), failed.Name),
				domain.ReasonDependencyFailed,
				o.now(),
			)
			telemetry.TaskFailures.WithLabelValues(string(dep.WorkerType), string(domain.ReasonDependencyFailed)).Inc()
			ps.logger.Info("task skipped, dependency failed",
				"task_id", dep.ID,
				"name", dep.Name,
				"dependency", failed.Name,
			)
			queue = append(queue, dep)
		}
	}
}

// checkPlan завершает план, если работы не осталось, и выявляет зависание.
func (o *Orchestrator) checkPlan(ps *PlanState) {
	if current, ok := o.plans[ps.PlanID()]; !ok || current != ps {
		return
	}

	stats := ps.Stats()
	if stats.Active() {
		return
	}

	if stats.Pending == 0 {
		o.finalize(ps, finalStatus(stats), nil)
		return
	}

	// Ни один pending task не может стать готовым: цикл или потерянная зависимость
	now := o.now()
	for _, task := range ps.Plan.Tasks {
		if task.Status == domain.TaskStatusPending {
			task.MarkFailed(domain.ReasonStalledPlan.Err().Error(), domain.ReasonStalledPlan, now)
			telemetry.TaskFailures.WithLabelValues(string(task.WorkerType), string(domain.ReasonStalledPlan)).Inc()
		}
	}
	ps.logger.Error("plan stalled: pending tasks can never become ready",
		"pending", stats.Pending,
	)
	o.finalize(ps, domain.PlanStatusStalled,
		fmt.Errorf("%w: %d tasks can never become ready", domain.ErrStalledPlan, stats.Pending))
}

// finalize завершает план: снимает его с выполнения, собирает результат,
// закрывает Handle и отправляет уведомления.
func (o *Orchestrator) finalize(ps *PlanState, status domain.PlanStatus, planErr error) {
	ps.stopTimers()
	o.ready.removePlan(ps.PlanID())
	delete(o.plans, ps.PlanID())

	result := ps.Aggregate(status, planErr, o.now())

	telemetry.PlansActive.Dec()
	telemetry.PlansFinished.WithLabelValues(string(result.Kind), string(status)).Inc()
	telemetry.PlanDuration.WithLabelValues(string(result.Kind)).Observe(result.Elapsed().Seconds())
	telemetry.ReadyQueueDepth.Set(float64(o.ready.Len()))

	level := ps.logger.Info
	if !result.Success {
		level = ps.logger.Warn
	}
	level("plan finished",
		"status", status,
		"completed", result.Completed,
		"failed", result.Failed,
		"unfinished", result.Unfinished,
		"elapsed_ms", result.ElapsedMs,
		"error", result.Error,
	)

	o.remember(result)
	ps.handle.result = result
	close(ps.handle.done)

	o.notify(result)
}

// remember кладёт результат в кэш завершённых планов, вытесняя самый старый.
func (o *Orchestrator) remember(result *domain.PlanResult) {
	if len(o.finishedOrder) >= finishedLimit {
		delete(o.finished, o.finishedOrder[0])
		o.finishedOrder = o.finishedOrder[1:]
	}
	o.finished[result.PlanID] = result
	o.finishedOrder = append(o.finishedOrder, result.PlanID)
}

// notify отправляет результат получателям вне цикла.
func (o *Orchestrator) notify(result *domain.PlanResult) {
	if len(o.notifiers) == 0 {
		return
	}

	o.notifyWG.Add(1)
	go func() {
		defer o.notifyWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), defaultNotifyTimeout)
		defer cancel()

		for _, n := range o.notifiers {
			if err := n.PlanFinished(ctx, result); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Warn("failed to notify plan result",
					"plan_id", result.PlanID,
					"error", err,
				)
			}
		}
	}()
}
