package orchestrator

import (
	"container/heap"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/worker"
)

// readyEntry — task в очереди готовых.
type readyEntry struct {
	planID   uuid.UUID
	task     *domain.WorkflowTask
	executor worker.Executor
}

// readyQueue — очередь готовых tasks всех активных планов.
//
// Порядок: приоритет по убыванию, при равном приоритете — Seq по возрастанию
// (порядок создания). Реализует heap.Interface.
type readyQueue []*readyEntry

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	pi, pj := q[i].task.Priority.OrDefault(), q[j].task.Priority.OrDefault()
	if pi != pj {
		return pi > pj
	}
	return q[i].task.Seq < q[j].task.Seq
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*readyEntry)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return entry
}

// push добавляет task в очередь.
func (q *readyQueue) push(entry *readyEntry) {
	heap.Push(q, entry)
}

// pop извлекает task с наивысшим приоритетом.
func (q *readyQueue) pop() *readyEntry {
	return heap.Pop(q).(*readyEntry)
}

// removePlan удаляет все tasks плана из очереди.
func (q *readyQueue) removePlan(planID uuid.UUID) int {
	kept := (*q)[:0]
	removed := 0
	for _, e := range *q {
		if e.planID == planID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(*q); i++ {
		(*q)[i] = nil
	}
	*q = kept
	if removed > 0 {
		heap.Init(q)
	}
	return removed
}
