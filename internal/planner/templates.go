package planner

import "github.com/shaiso/dbflow/internal/domain"

// StepTemplate — шаблон одного шага плана.
type StepTemplate struct {
	// Name — имя шага, становится частью ID task.
	Name string `json:"name"`

	// WorkerType — тип воркера, выполняющего шаг.
	WorkerType domain.WorkerType `json:"worker_type"`

	// DependsOn — имена шагов этого же шаблона.
	DependsOn []string `json:"depends_on,omitempty"`

	// Priority — переопределение приоритета. 0 — наследуется от запроса.
	Priority domain.Priority `json:"priority,omitempty"`

	// Params — параметры по умолчанию. Строки могут содержать шаблоны,
	// которые рендерятся перед постановкой task в очередь.
	Params map[string]any `json:"params,omitempty"`
}

// Template — фиксированный DAG шагов для вида операции.
type Template struct {
	Kind  domain.OperationKind `json:"kind"`
	Steps []StepTemplate       `json:"steps"`
}

// defaultTemplates — шаблоны составных операций.
// Графы ацикличны по построению, Planner дополнительно проверяет их через engine.Validate.
var defaultTemplates = map[domain.OperationKind]Template{
	domain.OperationMigration: {
		Kind: domain.OperationMigration,
		Steps: []StepTemplate{
			{Name: "backup", WorkerType: domain.WorkerBackup, Priority: domain.PriorityCritical},
			{
				Name:       "migrate",
				WorkerType: domain.WorkerSchema,
				DependsOn:  []string{"backup"},
				Params: map[string]any{
					"backup_ref": `{{ default "" .Steps.backup.Outputs.backup_ref }}`,
				},
			},
			{
				Name:       "validate-schema",
				WorkerType: domain.WorkerSchema,
				DependsOn:  []string{"migrate"},
				Params: map[string]any{
					"expected_version": `{{ default "" .Steps.migrate.Outputs.version }}`,
				},
			},
			{Name: "cache-invalidate", WorkerType: domain.WorkerCache, DependsOn: []string{"migrate"}},
		},
	},
	domain.OperationSync: {
		Kind: domain.OperationSync,
		Steps: []StepTemplate{
			{Name: "integrity-check", WorkerType: domain.WorkerIntegrity},
			{Name: "sync", WorkerType: domain.WorkerSync, DependsOn: []string{"integrity-check"}},
			{Name: "cache-refresh", WorkerType: domain.WorkerCache, DependsOn: []string{"sync"}},
		},
	},
	domain.OperationOptimize: {
		Kind: domain.OperationOptimize,
		Steps: []StepTemplate{
			{Name: "analyze", WorkerType: domain.WorkerQuery},
			{
				Name:       "optimize-queries",
				WorkerType: domain.WorkerQuery,
				DependsOn:  []string{"analyze"},
				Params: map[string]any{
					"candidates": `{{ default "" .Steps.analyze.Outputs.candidates }}`,
				},
			},
			{Name: "optimize-cache", WorkerType: domain.WorkerCache, DependsOn: []string{"analyze"}},
		},
	},
	domain.OperationBackup: {
		Kind: domain.OperationBackup,
		Steps: []StepTemplate{
			{Name: "integrity-verify", WorkerType: domain.WorkerIntegrity},
			{Name: "backup", WorkerType: domain.WorkerBackup, DependsOn: []string{"integrity-verify"}},
		},
	},
	domain.OperationRestore: {
		Kind: domain.OperationRestore,
		Steps: []StepTemplate{
			{Name: "integrity-verify", WorkerType: domain.WorkerIntegrity},
			{Name: "restore", WorkerType: domain.WorkerBackup, DependsOn: []string{"integrity-verify"}},
			{Name: "cache-invalidate", WorkerType: domain.WorkerCache, DependsOn: []string{"restore"}},
		},
	},
}

// singleTaskWorkers — простые операции: один task, воркер по виду операции.
var singleTaskWorkers = map[domain.OperationKind]domain.WorkerType{
	domain.OperationQuery:    domain.WorkerQuery,
	domain.OperationMonitor:  domain.WorkerMonitor,
	domain.OperationValidate: domain.WorkerIntegrity,
	domain.OperationRepair:   domain.WorkerRepair,
	domain.OperationCache:    domain.WorkerCache,
}

// singleTask строит шаблон из одного шага. Имя шага — вид операции в нижнем регистре.
func singleTask(kind domain.OperationKind, workerType domain.WorkerType) Template {
	return Template{
		Kind:  kind,
		Steps: []StepTemplate{{Name: lowerKind(kind), WorkerType: workerType}},
	}
}
