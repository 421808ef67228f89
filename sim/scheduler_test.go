package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_DispatchesInTimeThenInsertionOrder(t *testing.T) {
	// GIVEN events scheduled out of time order, two of them at the same instant
	s := NewScheduler()
	var got []string
	s.Schedule(2, func() { got = append(got, "c") })
	s.Schedule(1, func() { got = append(got, "a") })
	s.Schedule(1, func() { got = append(got, "b") })

	// WHEN the scheduler runs
	end := s.RunUntil(10)

	// THEN ties keep insertion order and the clock stops at the last event
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 2.0, end)
	assert.Equal(t, int64(3), s.Dispatched())
}

func TestScheduler_RunUntil_ExecutesEventsAtHorizon(t *testing.T) {
	// GIVEN events at, and just beyond, the horizon
	s := NewScheduler()
	var fired []float64
	s.Schedule(5, func() { fired = append(fired, s.Now()) })
	s.Schedule(5.0001, func() { fired = append(fired, s.Now()) })

	// WHEN run to the horizon
	s.RunUntil(5)

	// THEN only the event at the horizon ran and the later one is still pending
	assert.Equal(t, []float64{5}, fired)
	assert.Equal(t, 1, s.Pending())
}

func TestScheduler_ContinuationsScheduledDuringDispatch(t *testing.T) {
	// GIVEN a chain where each event schedules the next at zero delay
	s := NewScheduler()
	var order []int
	s.Schedule(1, func() {
		order = append(order, 1)
		s.Schedule(0, func() { order = append(order, 3) })
	})
	s.Schedule(1, func() { order = append(order, 2) })

	// WHEN run
	s.RunUntil(1)

	// THEN the zero-delay continuation runs after events already queued for that instant
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestTimer_Cancel(t *testing.T) {
	// GIVEN a pending timer
	s := NewScheduler()
	fired := false
	timer := s.Schedule(3, func() { fired = true })
	assert.Equal(t, 3.0, timer.At())

	// WHEN cancelled twice
	first := timer.Cancel()
	second := timer.Cancel()
	s.RunUntil(10)

	// THEN it never fires and only the first cancel reports a pending timer
	assert.True(t, first)
	assert.False(t, second)
	assert.False(t, fired)
}

func TestScheduler_Schedule_InvalidDelay_Panics(t *testing.T) {
	s := NewScheduler()
	assert.Panics(t, func() { s.Schedule(-1, func() {}) })
}

func TestScheduler_AdvanceTo(t *testing.T) {
	// GIVEN an empty scheduler
	s := NewScheduler()

	// WHEN advanced
	s.AdvanceTo(7)

	// THEN the clock moves forward; a due event blocks advancing past it
	assert.Equal(t, 7.0, s.Now())
	s.Schedule(1, func() {})
	assert.Panics(t, func() { s.AdvanceTo(9) })
}

func TestRace_TimeoutWins_CancelsRequest(t *testing.T) {
	// GIVEN a busy single-slot resource
	s := NewScheduler()
	r := NewResource("desk", 1, DisciplineFIFO, s)
	holder := r.Request("holder", 5)
	s.Wait(holder, func() {})

	// WHEN a second request races a timeout of 2
	req := r.Request("waiter", 5)
	winner := -1
	var at float64
	s.Race(func(w int) { winner, at = w, s.Now() }, req, Timeout(2))
	s.RunUntil(10)

	// THEN the timeout wins at t=2 and the request has left the queue
	assert.Equal(t, 1, winner)
	assert.Equal(t, 2.0, at)
	assert.Equal(t, RequestWithdrawn, req.State())
	assert.Zero(t, r.QueueLength())
}

func TestRace_ImmediateGrant_NeverArmsTimeout(t *testing.T) {
	// GIVEN an idle resource
	s := NewScheduler()
	r := NewResource("desk", 1, DisciplineFIFO, s)
	req := r.Request("e", 5)
	timeout := Timeout(0)

	// WHEN the request races a zero timeout
	winner := -1
	s.Race(func(w int) { winner = w }, req, timeout)

	// THEN nothing resolves synchronously; the grant wins through the queue
	assert.Equal(t, -1, winner)
	s.RunUntil(0)
	assert.Equal(t, 0, winner)
	assert.Nil(t, timeout.timer)
	assert.True(t, req.Held())
}

func TestRace_ZeroTimeoutAgainstBusyResource_Reneges(t *testing.T) {
	// GIVEN a busy resource
	s := NewScheduler()
	r := NewResource("desk", 1, DisciplineFIFO, s)
	s.Wait(r.Request("holder", 5), func() {})

	// WHEN a request races a zero timeout
	req := r.Request("e", 5)
	winner := -1
	s.Race(func(w int) { winner = w }, req, Timeout(0))
	s.RunUntil(0)

	// THEN the timeout wins immediately
	assert.Equal(t, 1, winner)
	assert.Equal(t, 0.0, s.Now())
}

func TestRace_NoEffects_Panics(t *testing.T) {
	s := NewScheduler()
	require.Panics(t, func() { s.Race(func(int) {}) })
}
