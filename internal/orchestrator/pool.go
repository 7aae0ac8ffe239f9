package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/worker"
)

// workItem — task, переданный пулу.
type workItem struct {
	planID   uuid.UUID
	task     *domain.WorkflowTask // копия, принадлежит исполнителю
	executor worker.Executor
}

// taskOutcome — результат одной попытки выполнения task.
type taskOutcome struct {
	planID   uuid.UUID
	taskID   string
	outputs  map[string]any
	err      error
	started  time.Time
	finished time.Time
}

// runExecutor — горутина пула: берёт tasks из workCh и возвращает результаты в цикл.
func (o *Orchestrator) runExecutor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-o.workCh:
			out := o.execute(ctx, item)
			select {
			case o.resultCh <- out:
			case <-o.loopDone:
				return
			}
		}
	}
}

// execute вызывает executor. Ошибки, паника и таймаут превращаются
// в domain.ErrTransientTaskFailure: за границу пула ничего не выходит.
func (o *Orchestrator) execute(ctx context.Context, item workItem) (out taskOutcome) {
	out = taskOutcome{
		planID:  item.planID,
		taskID:  item.task.ID,
		started: o.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			out.outputs = nil
			out.err = fmt.Errorf("%w: panic: %v", domain.ErrTransientTaskFailure, r)
		}
		out.finished = o.now()
	}()

	if o.taskTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.taskTTL)
		defer cancel()
	}

	outputs, err := item.executor.Execute(ctx, item.task)
	if err != nil {
		out.err = fmt.Errorf("%w: %w", domain.ErrTransientTaskFailure, err)
		return out
	}
	if outputs == nil {
		outputs = make(map[string]any)
	}
	out.outputs = outputs
	return out
}
