package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/planner"
	"github.com/shaiso/dbflow/internal/worker"
)

const awaitTimeout = 5 * time.Second

func buildPlan(t *testing.T, kind domain.OperationKind, maxRetries int) *domain.WorkflowPlan {
	t.Helper()
	p := planner.New(planner.Config{MaxRetries: maxRetries})
	plan, err := p.BuildPlan(domain.OperationRequest{Kind: kind})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	return plan
}

func submit(t *testing.T, o *Orchestrator, plan *domain.WorkflowPlan) *Handle {
	t.Helper()
	h, err := o.Submit(plan)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return h
}

func TestOrchestrator_MigrationAllSucceed(t *testing.T) {
	log := newCallLog()

	var mu sync.Mutex
	received := make(map[string]map[string]any)
	capture := func(outputs map[string]any) behavior {
		return func(_ context.Context, _ int, task *domain.WorkflowTask) (map[string]any, error) {
			mu.Lock()
			received[task.Name] = task.Params
			mu.Unlock()
			return outputs, nil
		}
	}

	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, map[string]behavior{
			"backup":          capture(map[string]any{"backup_ref": "snap-1"}),
			"migrate":         capture(map[string]any{"version": "42"}),
			"validate-schema": capture(nil),
		}),
	})

	plan := buildPlan(t, domain.OperationMigration, 3)
	result := o.Await(submit(t, o, plan), awaitTimeout)

	if result.Status != domain.PlanStatusSucceeded || !result.Success {
		t.Fatalf("expected SUCCEEDED, got %s (%s)", result.Status, result.Error)
	}
	if result.Completed != 4 || result.Failed != 0 || result.TotalTasks != 4 {
		t.Errorf("expected 4/4 completed, got completed=%d failed=%d total=%d",
			result.Completed, result.Failed, result.TotalTasks)
	}
	if result.Partial {
		t.Error("fully successful plan must not be partial")
	}

	calls := log.snapshot()
	if indexOf(calls, "backup") != 0 {
		t.Errorf("backup must run first, got %v", calls)
	}
	if indexOf(calls, "migrate") > indexOf(calls, "validate-schema") ||
		indexOf(calls, "migrate") > indexOf(calls, "cache-invalidate") {
		t.Errorf("migrate must run before its dependents, got %v", calls)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := received["migrate"]["backup_ref"]; got != "snap-1" {
		t.Errorf("migrate should receive backup_ref from backup outputs, got %v", got)
	}
	if got := received["validate-schema"]["expected_version"]; got != "42" {
		t.Errorf("validate-schema should receive version from migrate outputs, got %v", got)
	}

	report := mustReport(t, result, "validate-schema")
	if report.Status != domain.TaskStatusCompleted {
		t.Errorf("expected validate-schema COMPLETED, got %s", report.Status)
	}
	if o.ActivePlansCount() != 0 {
		t.Error("finished plan must be removed from active plans")
	}
}

func TestOrchestrator_RetryThenSucceed(t *testing.T) {
	log := newCallLog()
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, map[string]behavior{
			"migrate": failFirst(2),
		}),
	})

	result := o.Await(submit(t, o, buildPlan(t, domain.OperationMigration, 3)), awaitTimeout)

	if result.Status != domain.PlanStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (%v)", result.Status, result.Errors)
	}
	if got := mustReport(t, result, "migrate").RetryCount; got != 2 {
		t.Errorf("expected migrate retry count 2, got %d", got)
	}
	if got := log.times("migrate"); got != 3 {
		t.Errorf("expected 3 migrate attempts, got %d", got)
	}
	if got := log.times("backup"); got != 1 {
		t.Errorf("backup must run once, got %d", got)
	}

	calls := log.snapshot()
	lastMigrate := -1
	for i, c := range calls {
		if c == "migrate" {
			lastMigrate = i
		}
	}
	for _, dep := range []string{"validate-schema", "cache-invalidate"} {
		if indexOf(calls, dep) < lastMigrate {
			t.Errorf("%s must run after the successful migrate attempt, got %v", dep, calls)
		}
	}
}

func TestOrchestrator_CriticalWorkerFailsImmediately(t *testing.T) {
	log := newCallLog()
	gate := newStaticGate()
	gate.set(domain.WorkerBackup, domain.HealthCritical)

	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, nil),
		Gate:      gate,
	})

	result := o.Await(submit(t, o, buildPlan(t, domain.OperationBackup, 3)), awaitTimeout)

	if result.Status != domain.PlanStatusFailed || result.Success {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if result.Failed != 1 || result.Completed != 1 {
		t.Errorf("expected completed=1 failed=1, got completed=%d failed=%d", result.Completed, result.Failed)
	}

	report := mustReport(t, result, "backup")
	if report.Reason != domain.ReasonWorkerUnavailable {
		t.Errorf("expected reason %s, got %s", domain.ReasonWorkerUnavailable, report.Reason)
	}
	if report.RetryCount != 0 {
		t.Errorf("worker-unavailable must not consume retries, got %d", report.RetryCount)
	}
	if log.times("backup") != 0 {
		t.Error("executor of CRITICAL worker must not be called")
	}
	if !result.Partial {
		t.Error("plan with completed and failed tasks must be partial")
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "backup: ") {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
}

func TestOrchestrator_RetriesExhaustedCascade(t *testing.T) {
	log := newCallLog()
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, map[string]behavior{
			"analyze": alwaysFail(),
		}),
	})

	result := o.Await(submit(t, o, buildPlan(t, domain.OperationOptimize, 3)), awaitTimeout)

	if result.Status != domain.PlanStatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if got := log.times("analyze"); got != 4 {
		t.Errorf("expected 4 analyze attempts, got %d", got)
	}
	if result.Failed != 3 || result.Completed != 0 {
		t.Errorf("expected failed=3 completed=0, got failed=%d completed=%d", result.Failed, result.Completed)
	}

	analyze := mustReport(t, result, "analyze")
	if analyze.Reason != domain.ReasonRetriesExhausted || analyze.RetryCount != 3 {
		t.Errorf("expected retries-exhausted after 3 retries, got %s/%d", analyze.Reason, analyze.RetryCount)
	}
	for _, name := range []string{"optimize-queries", "optimize-cache"} {
		report := mustReport(t, result, name)
		if report.Reason != domain.ReasonDependencyFailed {
			t.Errorf("%s: expected reason %s, got %s", name, domain.ReasonDependencyFailed, report.Reason)
		}
		if log.times(name) != 0 {
			t.Errorf("%s must not be executed", name)
		}
	}
	if result.Partial {
		t.Error("plan without completed tasks must not be partial")
	}
	if !strings.Contains(analyze.Error, domain.ErrRetriesExhausted.Error()) {
		t.Errorf("expected error to mention exhausted retries, got %q", analyze.Error)
	}
	if !strings.Contains(analyze.Error, "analyze: attempt 4 failed") {
		t.Errorf("expected last attempt error to be kept, got %q", analyze.Error)
	}
}

func TestOrchestrator_RetryBackoffDelaysNextAttempt(t *testing.T) {
	const delay = 50 * time.Millisecond

	var mu sync.Mutex
	var attempts []time.Time
	flaky := failFirst(1)

	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"flaky": func(ctx context.Context, attempt int, task *domain.WorkflowTask) (map[string]any, error) {
				mu.Lock()
				attempts = append(attempts, time.Now())
				mu.Unlock()
				return flaky(ctx, attempt, task)
			},
		}),
		Retry: RetryPolicy{BaseDelay: delay, MaxDelay: delay},
	})

	result := o.Await(submit(t, o, makePlan(taskSpec{name: "flaky", maxRetries: 1})), awaitTimeout)
	if result.Status != domain.PlanStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (%v)", result.Status, result.Errors)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if gap := attempts[1].Sub(attempts[0]); gap < delay {
		t.Errorf("retry started %s after first attempt, expected at least %s", gap, delay)
	}
}

func TestOrchestrator_GateCheckedAtDispatch(t *testing.T) {
	log := newCallLog()
	gate := newStaticGate()
	release := make(chan struct{})
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, map[string]behavior{
			"blocker": blockUntil(release),
		}),
		Gate:     gate,
		PoolSize: 1,
	})

	blocker := submit(t, o, makePlan(taskSpec{name: "blocker"}))
	waitCalled(t, log, "blocker")

	// Пул занят: queued остаётся READY, пока воркер ещё HEALTHY
	queued := submit(t, o, makePlan(taskSpec{name: "queued", worker: domain.WorkerBackup, maxRetries: 3}))
	if stats, ok := o.Stats(queued.PlanID); !ok || stats.Ready != 1 {
		t.Fatalf("expected queued task to wait in ready queue, got %+v", stats)
	}

	gate.set(domain.WorkerBackup, domain.HealthCritical)
	close(release)

	if r := o.Await(blocker, awaitTimeout); r.Status != domain.PlanStatusSucceeded {
		t.Fatalf("blocker: expected SUCCEEDED, got %s", r.Status)
	}
	result := o.Await(queued, awaitTimeout)

	if result.Status != domain.PlanStatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if log.times("queued") != 0 {
		t.Error("task of CRITICAL worker must not be dispatched from ready queue")
	}
	report := mustReport(t, result, "queued")
	if report.Reason != domain.ReasonWorkerUnavailable {
		t.Errorf("expected reason %s, got %s", domain.ReasonWorkerUnavailable, report.Reason)
	}
	if report.RetryCount != 0 {
		t.Errorf("worker-unavailable must not consume retries, got %d", report.RetryCount)
	}
}

func TestOrchestrator_RequestParamsPassedVerbatim(t *testing.T) {
	var got map[string]any
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"query": func(_ context.Context, _ int, task *domain.WorkflowTask) (map[string]any, error) {
				got = task.Params
				return nil, nil
			},
		}),
	})

	plan := makePlan(taskSpec{
		name:           "query",
		params:         map[string]any{"sql": "SELECT '{{' AS brace"},
		paramTemplates: map[string]any{"sql": "{{ .Params.sql }} LIMIT 1", "table": "{{ .Params.sql }}"},
	})
	plan.Params = map[string]any{"sql": "SELECT '{{' AS brace"}
	result := o.Await(submit(t, o, plan), awaitTimeout)

	if result.Status != domain.PlanStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (%v)", result.Status, result.Errors)
	}
	if got["sql"] != "SELECT '{{' AS brace" {
		t.Errorf("request param must reach executor unchanged, got %q", got["sql"])
	}
	if got["table"] != "SELECT '{{' AS brace" {
		t.Errorf("template default should render from request params, got %q", got["table"])
	}
}

func TestOrchestrator_FinishedResultAvailableBeforeNotify(t *testing.T) {
	hold := make(chan struct{})
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), nil),
		Notifiers: []Notifier{
			NotifierFunc(func(ctx context.Context, _ *domain.PlanResult) error {
				select {
				case <-hold:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		},
	})
	defer close(hold)

	plan := makePlan(taskSpec{name: "a"})
	o.Await(submit(t, o, plan), awaitTimeout)

	if _, ok := o.Snapshot(plan.ID); ok {
		t.Error("finished plan must not be active")
	}
	result, ok := o.Finished(plan.ID)
	if !ok {
		t.Fatal("finished plan must be available while notifier is running")
	}
	if result.Status != domain.PlanStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Status)
	}
	if _, ok := o.Finished(uuid.New()); ok {
		t.Error("unknown plan must not be found")
	}
}

func TestOrchestrator_FinishedCacheBounded(t *testing.T) {
	o := startOrchestrator(t, Config{Executors: scriptedExecutors(newCallLog(), nil)})

	first := makePlan(taskSpec{name: "a"})
	o.Await(submit(t, o, first), awaitTimeout)
	for range finishedLimit {
		o.Await(submit(t, o, makePlan(taskSpec{name: "a"})), awaitTimeout)
	}

	if _, ok := o.Finished(first.ID); ok {
		t.Error("oldest result should be evicted")
	}
	var cached int
	_ = o.do(func() { cached = len(o.finished) })
	if cached != finishedLimit {
		t.Errorf("expected %d cached results, got %d", finishedLimit, cached)
	}
}

func TestOrchestrator_FIFOWithinPriority(t *testing.T) {
	log := newCallLog()
	release := make(chan struct{})
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, map[string]behavior{
			"blocker": blockUntil(release),
		}),
		PoolSize: 1,
	})

	blocker := submit(t, o, makePlan(taskSpec{name: "blocker"}))
	first := submit(t, o, makePlan(taskSpec{name: "t1"}))
	second := submit(t, o, makePlan(taskSpec{name: "t2"}))
	close(release)

	for _, h := range []*Handle{blocker, first, second} {
		if r := o.Await(h, awaitTimeout); r.Status != domain.PlanStatusSucceeded {
			t.Fatalf("expected SUCCEEDED, got %s", r.Status)
		}
	}

	calls := log.snapshot()
	if indexOf(calls, "t1") > indexOf(calls, "t2") {
		t.Errorf("equal priority tasks must run in submission order, got %v", calls)
	}
}

func TestOrchestrator_HigherPriorityFirst(t *testing.T) {
	log := newCallLog()
	release := make(chan struct{})
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, map[string]behavior{
			"blocker": blockUntil(release),
		}),
		PoolSize: 1,
	})

	handles := []*Handle{
		submit(t, o, makePlan(taskSpec{name: "blocker"})),
		submit(t, o, makePlan(taskSpec{name: "low", priority: domain.PriorityLow})),
		submit(t, o, makePlan(taskSpec{name: "background", priority: domain.PriorityBackground})),
		submit(t, o, makePlan(taskSpec{name: "high", priority: domain.PriorityHigh})),
	}
	close(release)

	for _, h := range handles {
		o.Await(h, awaitTimeout)
	}

	want := []string{"blocker", "high", "low", "background"}
	calls := log.snapshot()
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, calls)
	}
}

func TestOrchestrator_Cancel(t *testing.T) {
	log := newCallLog()
	release := make(chan struct{})
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, map[string]behavior{
			"slow": blockUntil(release),
		}),
	})

	plan := makePlan(
		taskSpec{name: "slow"},
		taskSpec{name: "after", deps: []string{"slow"}},
	)
	h := submit(t, o, plan)

	if err := o.Cancel(plan.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	result := o.Await(h, awaitTimeout)
	close(release)

	if result.Status != domain.PlanStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", result.Status)
	}
	if !strings.Contains(result.Error, domain.ErrPlanCancelled.Error()) {
		t.Errorf("expected cancel error, got %q", result.Error)
	}
	if result.Unfinished != 2 {
		t.Errorf("expected 2 unfinished tasks, got %d", result.Unfinished)
	}

	if err := o.Cancel(plan.ID); !errors.Is(err, ErrPlanNotActive) {
		t.Errorf("expected ErrPlanNotActive, got %v", err)
	}

	// Результат отменённого task не должен запускать зависимые
	time.Sleep(20 * time.Millisecond)
	if log.times("after") != 0 {
		t.Error("tasks of cancelled plan must not run")
	}
}

func TestOrchestrator_PlanTimeout(t *testing.T) {
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"slow": blockUntil(nil),
		}),
		PlanTimeout: 30 * time.Millisecond,
	})

	plan := makePlan(taskSpec{name: "fast"}, taskSpec{name: "slow"})
	result := o.Await(submit(t, o, plan), awaitTimeout)

	if result.Status != domain.PlanStatusTimedOut {
		t.Fatalf("expected TIMED_OUT, got %s", result.Status)
	}
	if !strings.Contains(result.Error, domain.ErrPlanTimeout.Error()) {
		t.Errorf("expected timeout error, got %q", result.Error)
	}
	if mustReport(t, result, "fast").Status != domain.TaskStatusCompleted {
		t.Error("completed task must be reported as partial result")
	}
	if result.Unfinished != 1 || !result.Partial {
		t.Errorf("expected one unfinished task and partial result, got unfinished=%d partial=%v",
			result.Unfinished, result.Partial)
	}
}

func TestOrchestrator_AwaitTimeout(t *testing.T) {
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"slow": blockUntil(nil),
		}),
	})

	plan := makePlan(taskSpec{name: "slow"})
	h := submit(t, o, plan)

	result := o.Await(h, 30*time.Millisecond)
	if result == nil {
		t.Fatal("Await must always return a result")
	}
	if result.Status != domain.PlanStatusTimedOut {
		t.Fatalf("expected TIMED_OUT, got %s", result.Status)
	}
	if _, ok := o.Snapshot(plan.ID); ok {
		t.Error("timed out plan must not stay active")
	}
	if h.Result() != result {
		t.Error("handle must hold the final result")
	}
}

func TestOrchestrator_AwaitContext(t *testing.T) {
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"slow": blockUntil(nil),
		}),
	})

	plan := makePlan(taskSpec{name: "slow"})
	h := submit(t, o, plan)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := o.AwaitContext(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, ok := o.Stats(plan.ID); !ok {
		t.Error("AwaitContext must not finish the plan")
	}
}

func TestOrchestrator_StalledPlan(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		log := newCallLog()
		o := startOrchestrator(t, Config{Executors: scriptedExecutors(log, nil)})

		plan := makePlan(
			taskSpec{name: "a", deps: []string{"b"}},
			taskSpec{name: "b", deps: []string{"a"}},
		)
		result := o.Await(submit(t, o, plan), awaitTimeout)

		if result.Status != domain.PlanStatusStalled {
			t.Fatalf("expected STALLED, got %s", result.Status)
		}
		for _, name := range []string{"a", "b"} {
			if r := mustReport(t, result, name); r.Reason != domain.ReasonStalledPlan {
				t.Errorf("%s: expected reason %s, got %s", name, domain.ReasonStalledPlan, r.Reason)
			}
		}
		if len(log.snapshot()) != 0 {
			t.Error("no task of a cyclic plan may run")
		}
	})

	t.Run("missing dependency", func(t *testing.T) {
		o := startOrchestrator(t, Config{Executors: scriptedExecutors(newCallLog(), nil)})

		plan := makePlan(
			taskSpec{name: "ok"},
			taskSpec{name: "orphan", deps: []string{"ghost"}},
		)
		result := o.Await(submit(t, o, plan), awaitTimeout)

		if result.Status != domain.PlanStatusStalled {
			t.Fatalf("expected STALLED, got %s", result.Status)
		}
		if mustReport(t, result, "ok").Status != domain.TaskStatusCompleted {
			t.Error("independent task should complete")
		}
		if r := mustReport(t, result, "orphan"); r.Reason != domain.ReasonStalledPlan {
			t.Errorf("expected reason %s, got %s", domain.ReasonStalledPlan, r.Reason)
		}
	})
}

func TestOrchestrator_PanicIsTransient(t *testing.T) {
	log := newCallLog()
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(log, map[string]behavior{
			"fragile": func(_ context.Context, attempt int, _ *domain.WorkflowTask) (map[string]any, error) {
				if attempt == 1 {
					panic("boom")
				}
				return map[string]any{"ok": true}, nil
			},
		}),
	})

	plan := makePlan(taskSpec{name: "fragile", maxRetries: 1})
	result := o.Await(submit(t, o, plan), awaitTimeout)

	if result.Status != domain.PlanStatusSucceeded {
		t.Fatalf("expected SUCCEEDED after panic retry, got %s (%v)", result.Status, result.Errors)
	}
	if got := mustReport(t, result, "fragile").RetryCount; got != 1 {
		t.Errorf("expected retry count 1, got %d", got)
	}
}

func TestOrchestrator_TaskTimeout(t *testing.T) {
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"slow": blockUntil(nil),
		}),
		TaskTimeout: 20 * time.Millisecond,
	})

	plan := makePlan(taskSpec{name: "slow"})
	result := o.Await(submit(t, o, plan), awaitTimeout)

	report := mustReport(t, result, "slow")
	if report.Reason != domain.ReasonRetriesExhausted {
		t.Errorf("expected reason %s, got %s", domain.ReasonRetriesExhausted, report.Reason)
	}
	if !strings.Contains(report.Error, context.DeadlineExceeded.Error()) {
		t.Errorf("expected deadline error, got %q", report.Error)
	}
	if !strings.Contains(report.Error, domain.ErrTransientTaskFailure.Error()) {
		t.Errorf("executor errors must be transient, got %q", report.Error)
	}
}

func TestOrchestrator_InvalidParams(t *testing.T) {
	log := newCallLog()
	o := startOrchestrator(t, Config{Executors: scriptedExecutors(log, nil)})

	plan := makePlan(
		taskSpec{name: "broken", paramTemplates: map[string]any{"sql": "{{ .Params.table"}},
		taskSpec{name: "next", deps: []string{"broken"}},
	)
	result := o.Await(submit(t, o, plan), awaitTimeout)

	if r := mustReport(t, result, "broken"); r.Reason != domain.ReasonInvalidParams {
		t.Errorf("expected reason %s, got %s", domain.ReasonInvalidParams, r.Reason)
	}
	if r := mustReport(t, result, "next"); r.Reason != domain.ReasonDependencyFailed {
		t.Errorf("expected reason %s, got %s", domain.ReasonDependencyFailed, r.Reason)
	}
	if len(log.snapshot()) != 0 {
		t.Error("no task should run")
	}
}

func TestOrchestrator_DegradedWorkerRecorded(t *testing.T) {
	gate := newStaticGate()
	gate.set(domain.WorkerQuery, domain.HealthDegraded)

	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), nil),
		Gate:      gate,
	})

	plan := makePlan(taskSpec{name: "q"}, taskSpec{name: "c", worker: domain.WorkerCache})
	result := o.Await(submit(t, o, plan), awaitTimeout)

	if result.Status != domain.PlanStatusSucceeded {
		t.Fatalf("DEGRADED worker must still run tasks, got %s", result.Status)
	}
	if len(result.DegradedWorkers) != 1 || result.DegradedWorkers[0] != domain.WorkerQuery {
		t.Errorf("expected degraded [query], got %v", result.DegradedWorkers)
	}
}

func TestOrchestrator_MissingExecutor(t *testing.T) {
	executors := worker.NewRegistry()
	executors.Register(domain.WorkerQuery, worker.ExecutorFunc(
		func(context.Context, *domain.WorkflowTask) (map[string]any, error) { return nil, nil },
	))

	o := startOrchestrator(t, Config{Executors: executors})

	plan := makePlan(taskSpec{name: "q"}, taskSpec{name: "c", worker: domain.WorkerCache})
	result := o.Await(submit(t, o, plan), awaitTimeout)

	if result.Status != domain.PlanStatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if r := mustReport(t, result, "c"); r.Reason != domain.ReasonWorkerUnavailable {
		t.Errorf("expected reason %s, got %s", domain.ReasonWorkerUnavailable, r.Reason)
	}
	if r := mustReport(t, result, "q"); r.Outputs == nil {
		t.Error("nil outputs should be reported as empty map")
	}
}

func TestOrchestrator_SubmitErrors(t *testing.T) {
	o := New(Config{Executors: worker.NewRegistry(), Gate: newStaticGate()})
	if _, err := o.Submit(makePlan(taskSpec{name: "a"})); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning before Start, got %v", err)
	}

	release := make(chan struct{})
	defer close(release)
	o = startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"slow": blockUntil(release),
		}),
	})

	duplicate := makePlan(taskSpec{name: "a"})
	duplicate.Tasks = append(duplicate.Tasks, duplicate.Tasks[0].Clone())

	notPending := makePlan(taskSpec{name: "a"})
	notPending.Tasks[0].Status = domain.TaskStatusCompleted

	noID := makePlan(taskSpec{name: "a"})
	noID.ID = uuid.Nil

	tests := []struct {
		name string
		plan *domain.WorkflowPlan
	}{
		{"nil plan", nil},
		{"no id", noID},
		{"no tasks", &domain.WorkflowPlan{ID: makePlan().ID}},
		{"duplicate task id", duplicate},
		{"task not pending", notPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.Submit(tt.plan); !errors.Is(err, ErrInvalidPlan) {
				t.Errorf("expected ErrInvalidPlan, got %v", err)
			}
		})
	}

	active := makePlan(taskSpec{name: "slow"})
	submit(t, o, active)

	again := makePlan(taskSpec{name: "slow"})
	again.ID = active.ID
	again.Tasks[0].ID = domain.TaskID(active.ID, "slow")
	if _, err := o.Submit(again); !errors.Is(err, ErrPlanAlreadyActive) {
		t.Errorf("expected ErrPlanAlreadyActive, got %v", err)
	}
}

func TestOrchestrator_Notifier(t *testing.T) {
	results := make(chan *domain.PlanResult, 1)
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), nil),
		Notifiers: []Notifier{
			NotifierFunc(func(_ context.Context, r *domain.PlanResult) error {
				results <- r
				return nil
			}),
			NotifierFunc(func(context.Context, *domain.PlanResult) error {
				return errors.New("broker down")
			}),
		},
	})

	plan := makePlan(taskSpec{name: "a"})
	o.Await(submit(t, o, plan), awaitTimeout)

	select {
	case r := <-results:
		if r.PlanID != plan.ID || r.Status != domain.PlanStatusSucceeded {
			t.Errorf("unexpected notification: %s %s", r.PlanID, r.Status)
		}
	case <-time.After(awaitTimeout):
		t.Fatal("notifier was not called")
	}
}

func TestOrchestrator_StopCancelsActivePlans(t *testing.T) {
	o := New(Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"slow": blockUntil(nil),
		}),
		Gate: newStaticGate(),
	})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	h := submit(t, o, makePlan(taskSpec{name: "slow"}))
	o.Stop()

	select {
	case <-h.Done():
	case <-time.After(awaitTimeout):
		t.Fatal("Stop must close handles of active plans")
	}

	result := h.Result()
	if result.Status != domain.PlanStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", result.Status)
	}
	if !strings.Contains(result.Error, ErrOrchestratorStopped.Error()) {
		t.Errorf("expected stop error, got %q", result.Error)
	}

	if o.IsRunning() {
		t.Error("orchestrator should not be running after Stop")
	}
	if _, err := o.Submit(makePlan(taskSpec{name: "a"})); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning after Stop, got %v", err)
	}
	if err := o.Start(context.Background()); err == nil {
		t.Error("orchestrator must not restart")
	}
}

func TestOrchestrator_SnapshotAndStats(t *testing.T) {
	release := make(chan struct{})
	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), map[string]behavior{
			"slow": blockUntil(release),
		}),
	})

	plan := makePlan(taskSpec{name: "slow"}, taskSpec{name: "after", deps: []string{"slow"}})
	h := submit(t, o, plan)

	stats, ok := o.Stats(plan.ID)
	if !ok {
		t.Fatal("plan should be active")
	}
	if stats.Running != 1 || stats.Pending != 1 || stats.Done() {
		t.Errorf("unexpected stats: %+v", stats)
	}

	snap, ok := o.Snapshot(plan.ID)
	if !ok || snap.Status != domain.PlanStatusRunning || snap.Unfinished != 2 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if got := len(o.ActivePlans()); got != 1 {
		t.Errorf("expected 1 active plan, got %d", got)
	}
	if h.Result() != nil {
		t.Error("Result must be nil while plan runs")
	}

	close(release)
	o.Await(h, awaitTimeout)

	if _, ok := o.Stats(plan.ID); ok {
		t.Error("finished plan must not have stats")
	}
}

func TestOrchestrator_OnDispatchSeesCompletedDeps(t *testing.T) {
	var mu sync.Mutex
	var violations []string

	o := startOrchestrator(t, Config{
		Executors: scriptedExecutors(newCallLog(), nil),
		OnDispatch: func(plan *domain.WorkflowPlan, task *domain.WorkflowTask) {
			for _, depID := range task.DependsOn {
				if dep := plan.Task(depID); dep.Status != domain.TaskStatusCompleted {
					mu.Lock()
					violations = append(violations, task.Name)
					mu.Unlock()
				}
			}
		},
	})

	result := o.Await(submit(t, o, buildPlan(t, domain.OperationMigration, 3)), awaitTimeout)
	if !result.Success {
		t.Fatalf("expected success, got %s", result.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(violations) > 0 {
		t.Errorf("tasks dispatched before dependencies completed: %v", violations)
	}
}

func TestOrchestrator_DefaultPoolSize(t *testing.T) {
	o := New(Config{})
	if want := len(domain.WorkerTypes) * defaultPerTypeConcurrency; o.PoolSize() != want {
		t.Errorf("expected pool size %d, got %d", want, o.PoolSize())
	}

	o = New(Config{PerTypeConcurrency: 1})
	if o.PoolSize() != len(domain.WorkerTypes) {
		t.Errorf("expected pool size %d, got %d", len(domain.WorkerTypes), o.PoolSize())
	}
}
