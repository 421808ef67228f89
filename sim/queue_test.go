package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func owners(q *RequestQueue) []string {
	var out []string
	for _, r := range q.Items() {
		out = append(out, r.Owner)
	}
	return out
}

func TestRequestQueue_FIFO_IgnoresPriority(t *testing.T) {
	// GIVEN a FIFO queue
	q := &RequestQueue{}

	// WHEN requests with mixed priorities are inserted
	q.Insert(&Request{Owner: "a", Priority: 9, seq: 0})
	q.Insert(&Request{Owner: "b", Priority: 1, seq: 1})
	q.Insert(&Request{Owner: "c", Priority: 5, seq: 2})

	// THEN submission order is kept
	assert.Equal(t, []string{"a", "b", "c"}, owners(q))
}

func TestRequestQueue_Priority_OrdersByPriorityThenSeq(t *testing.T) {
	// GIVEN a priority queue
	q := &RequestQueue{byPriority: true}

	// WHEN requests are inserted
	q.Insert(&Request{Owner: "low", Priority: 5, seq: 0})
	q.Insert(&Request{Owner: "high", Priority: 1, seq: 1})
	q.Insert(&Request{Owner: "low2", Priority: 5, seq: 2})
	q.Insert(&Request{Owner: "high2", Priority: 1, seq: 3})

	// THEN urgent requests come first, ties in submission order
	assert.Equal(t, []string{"high", "high2", "low", "low2"}, owners(q))
}

func TestRequestQueue_PreemptedRequestKeepsSeq(t *testing.T) {
	// GIVEN a queue holding a later request of the same priority
	q := &RequestQueue{byPriority: true}
	q.Insert(&Request{Owner: "later", Priority: 5, seq: 7})

	// WHEN an evicted request with an older sequence returns
	q.Insert(&Request{Owner: "evicted", Priority: 5, seq: 2})

	// THEN it goes ahead
	assert.Equal(t, "evicted", q.Peek().Owner)
}

func TestRequestQueue_PopAndRemove(t *testing.T) {
	q := &RequestQueue{}
	a := &Request{Owner: "a", seq: 0}
	b := &Request{Owner: "b", seq: 1}
	q.Insert(a)
	q.Insert(b)

	assert.True(t, q.Remove(b))
	assert.False(t, q.Remove(b))
	assert.Same(t, a, q.PopFront())
	assert.Nil(t, q.PopFront())
	assert.Nil(t, q.Peek())
	assert.Equal(t, "[]", q.String())
}
