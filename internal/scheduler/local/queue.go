package local

import "container/heap"

// queuedJob is one entry in the ready queue: higher Priority runs first;
// among equal priorities, lower SubmitOrder (earlier submission) runs
// first. This is the one queue-shape change the spec's priority
// requirement forces on the teacher's plain FIFO slice.
type queuedJob struct {
	id          schedJobID
	priority    int
	submitOrder uint64
}

type priorityQueue []queuedJob

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].submitOrder < pq[j].submitOrder
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x interface{}) {
	*pq = append(*pq, x.(queuedJob))
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityQueue)(nil)
