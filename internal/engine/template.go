package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/dbflow/internal/domain"
)

// Context — контекст для рендеринга параметров task.
//
// Используется в Go templates для доступа к данным:
//   - {{ .Params.table }}                        — параметры исходного запроса
//   - {{ .Steps.backup.Outputs.backup_ref }}     — outputs завершённых шагов
//   - {{ .Plan.ID }}, {{ .Plan.Kind }}           — метаданные плана
type Context struct {
	// Params — параметры OperationRequest.
	Params map[string]any `json:"params"`

	// Steps — результаты завершённых шагов (имя шага → результат).
	Steps map[string]*StepContext `json:"steps"`

	// Plan — метаданные плана.
	Plan PlanContext `json:"plan"`
}

// PlanContext — метаданные плана, доступные в шаблонах.
type PlanContext struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// StepContext — результат выполнения шага для использования в шаблонах.
type StepContext struct {
	// Outputs — выходные данные шага.
	Outputs map[string]any `json:"outputs"`

	// Status — статус выполнения: "COMPLETED", "FAILED".
	Status string `json:"status"`
}

// NewContext создаёт новый контекст с параметрами запроса.
func NewContext(plan *domain.WorkflowPlan) *Context {
	params := plan.Params
	if params == nil {
		params = make(map[string]any)
	}
	return &Context{
		Params: params,
		Steps:  make(map[string]*StepContext),
		Plan:   PlanContext{ID: plan.ID.String(), Kind: string(plan.Kind)},
	}
}

// AddStepResult добавляет результат выполнения шага в контекст.
func (c *Context) AddStepResult(name string, outputs map[string]any, status domain.TaskStatus) {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	c.Steps[name] = &StepContext{
		Outputs: outputs,
		Status:  string(status),
	}
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	// fromJSON — парсит JSON строку
	"fromJSON": func(s string) any {
		var result any
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil
		}
		return result
	},

	// quoteIdent — экранирует SQL-идентификатор ("schema"."table")
	"quoteIdent": func(name string) string {
		parts := strings.Split(name, ".")
		for i, p := range parts {
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
		return strings.Join(parts, ".")
	},

	// contains — проверяет, содержит ли строка подстроку
	"contains": strings.Contains,

	// hasPrefix — проверяет префикс строки
	"hasPrefix": strings.HasPrefix,

	// hasSuffix — проверяет суффикс строки
	"hasSuffix": strings.HasSuffix,

	// lower — приводит к нижнему регистру
	"lower": strings.ToLower,

	// upper — приводит к верхнему регистру
	"upper": strings.ToUpper,

	// trim — удаляет пробелы по краям
	"trim": strings.TrimSpace,

	// replace — заменяет подстроку
	"replace": strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
//
// Шаблон может содержать Go template выражения:
//
//	{{ .Params.table }}
//	{{ .Steps.backup.Outputs.backup_ref }}
//	{{ if .Steps.analyze.Outputs.needs_reindex }}...{{ end }}
func Render(tmpl string, ctx *Context) (string, error) {
	// Проверяем, содержит ли строка шаблонные выражения
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рендерит произвольное значение.
// Рекурсивно обрабатывает map и slice.
func RenderValue(value any, ctx *Context) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		return Render(v, ctx)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			rendered, err := Render(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []string:
		result := make([]string, len(v))
		for i, val := range v {
			rendered, err := Render(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	default:
		// Для остальных типов (int, float, bool) возвращаем как есть
		return value, nil
	}
}

// RenderParams рендерит параметры task.
// Это обёртка над RenderValue для map[string]any.
func RenderParams(params map[string]any, ctx *Context) (map[string]any, error) {
	if params == nil {
		return make(map[string]any), nil
	}

	rendered, err := RenderValue(params, ctx)
	if err != nil {
		return nil, err
	}

	result, ok := rendered.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrTemplateRender, rendered)
	}

	return result, nil
}
