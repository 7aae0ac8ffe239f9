package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries — число повторных попыток task по умолчанию.
const DefaultMaxRetries = 3

// TaskResult — результат выполнения task.
type TaskResult struct {
	// Success — true, если task завершился успешно.
	Success bool `json:"success"`

	// Outputs — данные, которые вернул воркер.
	// Доступны зависимым tasks через {{ .Steps.<name>.Outputs.<key> }}.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Error — текст последней ошибки.
	Error string `json:"error,omitempty"`

	// Reason — причина падения (пусто для транзиентных ошибок до исчерпания попыток).
	Reason FailureReason `json:"reason,omitempty"`
}

// WorkflowTask — отдельная подзадача внутри плана.
//
// Task создаётся Planner'ом, принадлежит своему WorkflowPlan
// и меняется только циклом оркестратора.
type WorkflowTask struct {
	// ID — уникальный идентификатор: "<plan_id>/<name>".
	ID string `json:"id"`

	// PlanID — ссылка на план.
	PlanID uuid.UUID `json:"plan_id"`

	// Name — имя шага из шаблона ("backup", "migrate", ...).
	Name string `json:"name"`

	// Kind — вид операции, которую реализует план.
	Kind OperationKind `json:"kind"`

	// WorkerType — тип воркера, который выполняет task.
	WorkerType WorkerType `json:"worker_type"`

	// Priority — приоритет (унаследован от запроса или задан шаблоном).
	Priority Priority `json:"priority"`

	// Params — параметры для воркера. Передаются как есть, без рендеринга.
	Params map[string]any `json:"params,omitempty"`

	// ParamTemplates — параметры шага по умолчанию. Строки могут содержать
	// шаблоны ({{ .Steps.<name>.Outputs.<key> }}), которые рендерятся
	// перед постановкой в очередь и дополняют Params.
	ParamTemplates map[string]any `json:"param_templates,omitempty"`

	// DependsOn — ID tasks этого же плана, которые должны завершиться успешно.
	DependsOn []string `json:"depends_on,omitempty"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Result — результат последней попытки.
	Result *TaskResult `json:"result,omitempty"`

	// RetryCount — сколько раз task уже перезапускался.
	RetryCount int `json:"retry_count"`

	// MaxRetries — максимум повторных попыток.
	MaxRetries int `json:"max_retries"`

	// Seq — порядковый номер создания, используется для FIFO среди равных приоритетов.
	Seq int64 `json:"seq"`

	// NotBefore — task не возвращается в очередь раньше этого времени (backoff).
	NotBefore *time.Time `json:"not_before,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Transition переводит task в новый статус.
// Возвращает *TransitionError, если переход недопустим.
func (t *WorkflowTask) Transition(to TaskStatus) error {
	if !t.Status.CanTransition(to) {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: to}
	}
	t.Status = to
	return nil
}

// mustTransition — Transition, который паникует на недопустимом переходе.
// Недопустимый переход означает ошибку в коде оркестратора, а не во входных данных.
func (t *WorkflowTask) mustTransition(to TaskStatus) {
	if err := t.Transition(to); err != nil {
		panic(err)
	}
}

// MarkReady переводит task в READY (из PENDING или FAILED при retry).
// Params заменяются итоговыми значениями (Params + отрендеренные ParamTemplates).
func (t *WorkflowTask) MarkReady(params map[string]any) {
	t.mustTransition(TaskStatusReady)
	if params != nil {
		t.Params = params
	}
	t.NotBefore = nil
	t.CompletedAt = nil
	t.Result = nil
}

// MarkRunning переводит task в RUNNING.
func (t *WorkflowTask) MarkRunning(now time.Time) {
	t.mustTransition(TaskStatusRunning)
	t.StartedAt = &now
}

// MarkCompleted переводит task в COMPLETED с результатами.
func (t *WorkflowTask) MarkCompleted(outputs map[string]any, now time.Time) {
	t.mustTransition(TaskStatusCompleted)
	t.CompletedAt = &now
	t.Result = &TaskResult{Success: true, Outputs: outputs}
}

// MarkFailed переводит task в FAILED.
// reason пустой, если task ещё может быть перезапущен.
func (t *WorkflowTask) MarkFailed(errMsg string, reason FailureReason, now time.Time) {
	t.mustTransition(TaskStatusFailed)
	t.CompletedAt = &now
	t.Result = &TaskResult{Success: false, Error: errMsg, Reason: reason}
}

// CanRetry проверяет, остались ли попытки.
func (t *WorkflowTask) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// ScheduleRetry резервирует повторную попытку: увеличивает RetryCount
// и запоминает, не раньше какого момента task вернётся в очередь.
// Статус остаётся FAILED до возврата в READY.
func (t *WorkflowTask) ScheduleRetry(notBefore time.Time) {
	if t.Status != TaskStatusFailed || !t.CanRetry() {
		panic(&TransitionError{TaskID: t.ID, From: t.Status, To: TaskStatusReady})
	}
	t.RetryCount++
	t.NotBefore = &notBefore
}

// SetFailureReason фиксирует окончательную причину падения.
func (t *WorkflowTask) SetFailureReason(reason FailureReason) {
	if t.Result == nil {
		t.Result = &TaskResult{}
	}
	t.Result.Reason = reason
}

// DeclaredParams возвращает параметры в том виде, в каком их задал план:
// значения по умолчанию (шаблоны не отрендерены), поверх них Params.
func (t *WorkflowTask) DeclaredParams() map[string]any {
	if len(t.Params) == 0 && len(t.ParamTemplates) == 0 {
		return nil
	}
	params := make(map[string]any, len(t.Params)+len(t.ParamTemplates))
	maps.Copy(params, t.ParamTemplates)
	maps.Copy(params, t.Params)
	return params
}

// Duration возвращает продолжительность последней попытки.
func (t *WorkflowTask) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// Clone возвращает копию task, безопасную для передачи воркеру.
func (t *WorkflowTask) Clone() *WorkflowTask {
	c := *t
	c.Params = maps.Clone(t.Params)
	c.ParamTemplates = maps.Clone(t.ParamTemplates)
	c.DependsOn = slices.Clone(t.DependsOn)
	if t.Result != nil {
		r := *t.Result
		r.Outputs = maps.Clone(t.Result.Outputs)
		c.Result = &r
	}
	return &c
}
