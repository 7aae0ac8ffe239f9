package engine

import (
	"github.com/shaiso/dbflow/internal/domain"
)

// Node — узел в DAG.
type Node struct {
	// Task — task плана.
	Task *domain.WorkflowTask

	// ID — идентификатор узла (совпадает с Task.ID).
	ID string

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node

	// Missing — зависимости, которых нет в плане.
	Missing []string
}

// DAG — граф зависимостей tasks одного плана.
type DAG struct {
	// Nodes — все узлы графа (taskID → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей в порядке создания tasks.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	// Пустой, если граф построен через Link и содержит цикл.
	Order []*Node

	// nodes — узлы в порядке создания tasks.
	nodes []*Node
}

// BuildDAG строит DAG и проверяет, что он ацикличен и полон.
//
// Возвращает ошибку, если task зависит от несуществующего task
// или обнаружен цикл.
func BuildDAG(tasks []*domain.WorkflowTask) (*DAG, error) {
	dag := Link(tasks)

	for _, node := range dag.nodes {
		if len(node.Missing) > 0 {
			return nil, NewValidationError(node.ID, "depends_on",
				"depends on unknown task: "+node.Missing[0], ErrMissingDependency)
		}
	}

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// Link строит граф без проверок.
//
// Используется оркестратором: план с циклом или потерянной зависимостью
// не отвергается при submit, а обнаруживается как зависший.
func Link(tasks []*domain.WorkflowTask) *DAG {
	dag := &DAG{
		Nodes:     make(map[string]*Node, len(tasks)),
		RootNodes: make([]*Node, 0),
		nodes:     make([]*Node, 0, len(tasks)),
	}

	// Первый проход: создаём все узлы
	for _, task := range tasks {
		node := &Node{
			Task:       task,
			ID:         task.ID,
			DependsOn:  make([]*Node, 0, len(task.DependsOn)),
			Dependents: make([]*Node, 0),
		}
		dag.Nodes[task.ID] = node
		dag.nodes = append(dag.nodes, node)
	}

	// Второй проход: связываем узлы по зависимостям
	for _, node := range dag.nodes {
		for _, depID := range node.Task.DependsOn {
			depNode, exists := dag.Nodes[depID]
			if !exists {
				node.Missing = append(node.Missing, depID)
				continue
			}
			dag.addEdge(depNode, node)
		}
	}

	for _, node := range dag.nodes {
		if node.InDegree == 0 && len(node.Missing) == 0 {
			dag.RootNodes = append(dag.RootNodes, node)
		}
	}

	return dag
}

// addEdge добавляет ребро между узлами.
// Дополнительно проверяет на дубликаты, чтобы избежать двойного учета InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	// Копируем inDegree, чтобы не модифицировать оригинал
	inDegree := make(map[string]int, len(d.nodes))
	for _, node := range d.nodes {
		inDegree[node.ID] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.nodes)
}

// Dependents возвращает tasks, напрямую зависящие от taskID.
func (d *DAG) Dependents(taskID string) []*domain.WorkflowTask {
	node, ok := d.Nodes[taskID]
	if !ok {
		return nil
	}
	tasks := make([]*domain.WorkflowTask, len(node.Dependents))
	for i, dep := range node.Dependents {
		tasks[i] = dep.Task
	}
	return tasks
}

// DepsSatisfied проверяет, что все зависимости task завершены успешно.
// Task с потерянной зависимостью никогда не бывает готов.
func (d *DAG) DepsSatisfied(taskID string) bool {
	node, ok := d.Nodes[taskID]
	if !ok || len(node.Missing) > 0 {
		return false
	}
	for _, dep := range node.DependsOn {
		if dep.Task.Status != domain.TaskStatusCompleted {
			return false
		}
	}
	return true
}
