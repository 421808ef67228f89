package sim

import "container/heap"

// event is a continuation scheduled at a virtual time.
// Events are ordered by time, then by insertion sequence, so that
// continuations scheduled for the same instant run in the order they were scheduled.
type event struct {
	time  float64
	seq   uint64
	fn    func()
	index int // position in the heap, -1 once popped or removed
}

// eventQueue implements heap.Interface with deterministic ordering.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-PriorityQueue
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[0 : n-1]
	return ev
}

// peek returns the earliest event without removing it, or nil if empty.
func (q eventQueue) peek() *event {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// remove deletes ev from the queue if it is still pending.
func (q *eventQueue) remove(ev *event) bool {
	if ev.index < 0 || ev.index >= len(*q) || (*q)[ev.index] != ev {
		return false
	}
	heap.Remove(q, ev.index)
	return true
}
