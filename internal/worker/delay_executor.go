package worker

import (
	"context"
	"maps"
	"time"

	"github.com/shaiso/dbflow/internal/domain"
)

// DelayExecutor имитирует воркер: ждёт и возвращает заготовленные outputs.
//
// Используется для локального запуска без реальных воркеров (driver: delay).
//
// Params:
//   - duration_sec (number): длительность работы. Default: Duration или 1s
//   - outputs (map[string]any): что вернуть как outputs (pass-through)
type DelayExecutor struct {
	// Duration — длительность по умолчанию.
	Duration time.Duration

	// Outputs — outputs по умолчанию, дополняются params["outputs"].
	Outputs map[string]any
}

// Execute ждёт указанное время с учётом отмены ctx.
func (e *DelayExecutor) Execute(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
	def := e.Duration
	if def <= 0 {
		def = time.Second
	}
	duration := getSeconds(task.Params, "duration_sec", def)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	outputs := make(map[string]any, len(e.Outputs)+2)
	maps.Copy(outputs, e.Outputs)
	if extra, ok := task.Params["outputs"].(map[string]any); ok {
		maps.Copy(outputs, extra)
	}
	outputs["step"] = task.Name
	outputs["delayed_sec"] = duration.Seconds()

	return outputs, nil
}

// Probe всегда успешен.
func (e *DelayExecutor) Probe(context.Context) error {
	return nil
}
