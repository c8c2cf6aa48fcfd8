package router

import "container/heap"

// queueItem is one pending entry. seq is a monotonic submission counter so
// equal priorities pop in FIFO order.
type queueItem struct {
	priority Priority
	seq      uint64
	taskID   string
}

// pendingQueue is a min-heap ordered by (priority, seq).
type pendingQueue []*queueItem

var _ heap.Interface = (*pendingQueue)(nil)

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pendingQueue) Push(x interface{}) {
	*q = append(*q, x.(*queueItem))
}

func (q *pendingQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
