package domain

import (
	"fmt"
	"strings"
)

// OperationKind — вид операции над базой данных.
type OperationKind string

const (
	OperationQuery     OperationKind = "QUERY"
	OperationMigration OperationKind = "MIGRATION"
	OperationBackup    OperationKind = "BACKUP"
	OperationRestore   OperationKind = "RESTORE"
	OperationOptimize  OperationKind = "OPTIMIZE"
	OperationMonitor   OperationKind = "MONITOR"
	OperationSync      OperationKind = "SYNC"
	OperationValidate  OperationKind = "VALIDATE"
	OperationRepair    OperationKind = "REPAIR"
	OperationCache     OperationKind = "CACHE"
)

// OperationKinds — все известные виды операций в стабильном порядке.
var OperationKinds = []OperationKind{
	OperationQuery,
	OperationMigration,
	OperationBackup,
	OperationRestore,
	OperationOptimize,
	OperationMonitor,
	OperationSync,
	OperationValidate,
	OperationRepair,
	OperationCache,
}

// ParseOperationKind парсит строку в OperationKind (без учёта регистра).
func ParseOperationKind(s string) (OperationKind, error) {
	kind := OperationKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, k := range OperationKinds {
		if k == kind {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperationKind, s)
}

// String возвращает строковое представление OperationKind.
func (k OperationKind) String() string {
	return string(k)
}

// Priority — приоритет плана или task.
//
// Больше значение — выше приоритет. Нулевое значение означает
// "не задан" и трактуется планировщиком как PriorityMedium.
type Priority int

const (
	PriorityBackground Priority = iota + 1
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityBackground: "BACKGROUND",
	PriorityLow:        "LOW",
	PriorityMedium:     "MEDIUM",
	PriorityHigh:       "HIGH",
	PriorityCritical:   "CRITICAL",
}

// String возвращает имя приоритета.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PRIORITY(%d)", int(p))
}

// OrDefault возвращает PriorityMedium для незаданного приоритета.
func (p Priority) OrDefault() Priority {
	if _, ok := priorityNames[p]; !ok {
		return PriorityMedium
	}
	return p
}

// ParsePriority парсит имя приоритета (без учёта регистра).
// Пустая строка даёт PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return PriorityMedium, nil
	}
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// MarshalText реализует encoding.TextMarshaler (JSON и YAML пишут имя).
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.OrDefault().String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// OperationRequest — структурированный запрос на операцию.
//
// Создаётся вызывающей стороной (API, очередь, scheduler),
// не меняется и один раз потребляется Planner'ом.
type OperationRequest struct {
	// Kind — вид операции.
	Kind OperationKind `json:"kind" yaml:"kind"`

	// Priority — приоритет (по умолчанию MEDIUM).
	Priority Priority `json:"priority,omitempty" yaml:"priority,omitempty"`

	// Params — параметры операции, передаются в каждый task плана.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}
