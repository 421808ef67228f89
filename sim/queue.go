// Implements the RequestQueue, which holds resource requests waiting for a free slot.

package sim

import (
	"fmt"
	"sort"
	"strings"
)

// RequestQueue holds pending requests in grant order.
// For FIFO resources the order is submission order; for priority disciplines it is
// (priority asc, submission order asc). A request pushed back by preemption keeps its
// original submission sequence, so it returns ahead of equal-priority requests that
// arrived after it.
type RequestQueue struct {
	byPriority bool
	queue      []*Request
}

func (q *RequestQueue) before(a, b *Request) bool {
	if q.byPriority && a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

// Insert places r at its position according to the queue discipline.
func (q *RequestQueue) Insert(r *Request) {
	if r == nil {
		panic("Insert: request must not be nil")
	}
	i := sort.Search(len(q.queue), func(i int) bool { return q.before(r, q.queue[i]) })
	q.queue = append(q.queue, nil)
	copy(q.queue[i+1:], q.queue[i:])
	q.queue[i] = r
}

// Len returns the number of pending requests.
func (q *RequestQueue) Len() int {
	return len(q.queue)
}

// Peek returns the next request to be granted without removing it.
// Returns nil if the queue is empty.
func (q *RequestQueue) Peek() *Request {
	if len(q.queue) == 0 {
		return nil
	}
	return q.queue[0]
}

// PopFront removes and returns the next request to be granted.
func (q *RequestQueue) PopFront() *Request {
	if len(q.queue) == 0 {
		return nil
	}
	r := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	return r
}

// Remove deletes r from the queue. Reports whether r was queued.
func (q *RequestQueue) Remove(r *Request) bool {
	for i, cur := range q.queue {
		if cur == r {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns the queue contents in grant order.
// Callers MUST NOT modify the returned slice.
func (q *RequestQueue) Items() []*Request {
	return q.queue
}

func (q *RequestQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, r := range q.queue {
		sb.WriteString(fmt.Sprintf("%s/p%d", r.Owner, r.Priority))
		if i < len(q.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
