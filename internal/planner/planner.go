package planner

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/engine"
)

// Config — конфигурация Planner.
type Config struct {
	// MaxRetries — лимит повторных попыток для каждого task.
	// По умолчанию: domain.DefaultMaxRetries.
	MaxRetries int

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// Planner превращает OperationRequest в WorkflowPlan.
//
// Planner не выполняет I/O и не хранит состояние между вызовами,
// поэтому безопасен для конкурентного использования.
type Planner struct {
	templates  map[domain.OperationKind]Template
	maxRetries int
	logger     *slog.Logger

	// now и newID подменяются в тестах.
	now   func() time.Time
	newID func() uuid.UUID
}

// New создаёт Planner со встроенными шаблонами.
func New(cfg Config) *Planner {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = domain.DefaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	templates := make(map[domain.OperationKind]Template, len(domain.OperationKinds))
	maps.Copy(templates, defaultTemplates)
	for kind, wt := range singleTaskWorkers {
		templates[kind] = singleTask(kind, wt)
	}

	return &Planner{
		templates:  templates,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
		now:        time.Now,
		newID:      uuid.New,
	}
}

// BuildPlan строит план для запроса.
//
// Единственная ожидаемая ошибка — domain.ErrUnknownOperationKind.
// Ошибка валидации означает дефект шаблона.
func (p *Planner) BuildPlan(req domain.OperationRequest) (*domain.WorkflowPlan, error) {
	tmpl, ok := p.templates[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownOperationKind, req.Kind)
	}

	now := p.now()
	priority := req.Priority.OrDefault()
	plan := &domain.WorkflowPlan{
		ID:        p.newID(),
		Kind:      req.Kind,
		Priority:  priority,
		Params:    maps.Clone(req.Params),
		CreatedAt: now,
		Tasks:     make([]*domain.WorkflowTask, 0, len(tmpl.Steps)),
	}

	for _, step := range tmpl.Steps {
		deps := make([]string, len(step.DependsOn))
		for i, name := range step.DependsOn {
			deps[i] = domain.TaskID(plan.ID, name)
		}

		taskPriority := priority
		if step.Priority != 0 {
			taskPriority = step.Priority
		}

		plan.Tasks = append(plan.Tasks, &domain.WorkflowTask{
			ID:             domain.TaskID(plan.ID, step.Name),
			PlanID:         plan.ID,
			Name:           step.Name,
			Kind:           req.Kind,
			WorkerType:     step.WorkerType,
			Priority:       taskPriority,
			Params:         maps.Clone(req.Params),
			ParamTemplates: stepDefaults(req.Params, step.Params),
			DependsOn:      deps,
			Status:         domain.TaskStatusPending,
			MaxRetries:     p.maxRetries,
			CreatedAt:      now,
		})
	}

	if err := engine.Validate(plan.Tasks); err != nil {
		return nil, fmt.Errorf("template %s: %w", req.Kind, err)
	}

	p.logger.Debug("plan built",
		"plan_id", plan.ID,
		"kind", plan.Kind,
		"priority", plan.Priority,
		"tasks", len(plan.Tasks),
	)

	return plan, nil
}

// Templates возвращает копию таблицы шаблонов в стабильном порядке видов операций.
func (p *Planner) Templates() []Template {
	result := make([]Template, 0, len(p.templates))
	for _, kind := range domain.OperationKinds {
		tmpl, ok := p.templates[kind]
		if !ok {
			continue
		}
		steps := make([]StepTemplate, len(tmpl.Steps))
		for i, s := range tmpl.Steps {
			s.DependsOn = slices.Clone(s.DependsOn)
			s.Params = maps.Clone(s.Params)
			steps[i] = s
		}
		result = append(result, Template{Kind: tmpl.Kind, Steps: steps})
	}
	return result
}

// Template возвращает шаблон для вида операции.
func (p *Planner) Template(kind domain.OperationKind) (Template, bool) {
	tmpl, ok := p.templates[kind]
	return tmpl, ok
}

// stepDefaults возвращает параметры шага, не переопределённые запросом.
// Только они рендерятся как шаблоны: значения из запроса передаются воркеру как есть.
func stepDefaults(request, defaults map[string]any) map[string]any {
	if len(defaults) == 0 {
		return nil
	}
	params := make(map[string]any, len(defaults))
	for k, v := range defaults {
		if _, overridden := request[k]; !overridden {
			params[k] = v
		}
	}
	return params
}

func lowerKind(kind domain.OperationKind) string {
	return strings.ToLower(string(kind))
}
