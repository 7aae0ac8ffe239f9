// Package engine содержит структурные примитивы плана.
//
// Включает:
//   - dag.go      — построение DAG из tasks плана и обход зависимостей
//   - validate.go — валидация tasks (ID, зависимости, циклы)
//   - template.go — рендеринг Go templates в параметрах ({{ .Params.x }})
//
// Engine не выполняет tasks — он отвечает за понимание структуры плана:
// кто от кого зависит и какие параметры получит task перед выполнением.
package engine
