// Package planner строит WorkflowPlan из OperationRequest.
//
// Для каждого вида операции есть фиксированный шаблон — DAG шагов:
//
//	MIGRATION: backup → migrate → {validate-schema, cache-invalidate}
//	SYNC:      integrity-check → sync → cache-refresh
//	OPTIMIZE:  analyze → {optimize-queries, optimize-cache}
//	BACKUP:    integrity-verify → backup
//	RESTORE:   integrity-verify → restore → cache-invalidate
//
// Остальные виды (QUERY, MONITOR, VALIDATE, REPAIR, CACHE) — один task.
// ID task имеет вид "<plan_id>/<step>".
package planner
