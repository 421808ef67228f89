package sim

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Scheduler owns the virtual clock and the pending event queue of one run.
// Processes are written as chains of continuations: a process issues an Effect,
// returns, and is resumed by the Scheduler when the effect resolves.
//
// Thread-safety: NOT thread-safe. One Scheduler drives exactly one run.
type Scheduler struct {
	clock      float64
	seq        uint64
	queue      eventQueue
	dispatched int64
}

// NewScheduler creates a Scheduler with the clock at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{queue: make(eventQueue, 0)}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() float64 {
	return s.clock
}

// Pending returns the number of events waiting to be dispatched.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Dispatched returns how many events have been executed so far.
func (s *Scheduler) Dispatched() int64 {
	return s.dispatched
}

// Timer is a handle to a scheduled continuation.
type Timer struct {
	s  *Scheduler
	ev *event
}

// At returns the virtual time the timer fires at.
func (t *Timer) At() float64 {
	return t.ev.time
}

// Cancel removes the continuation if it has not fired yet.
// Reports whether the timer was still pending.
func (t *Timer) Cancel() bool {
	return t.s.queue.remove(t.ev)
}

// Schedule runs fn after delay units of virtual time.
// Negative or NaN delays are programming errors.
func (s *Scheduler) Schedule(delay float64, fn func()) *Timer {
	if delay < 0 || math.IsNaN(delay) {
		panic(fmt.Sprintf("Schedule: invalid delay %v", delay))
	}
	ev := &event{time: s.clock + delay, seq: s.seq, fn: fn}
	s.seq++
	heap.Push(&s.queue, ev)
	return &Timer{s: s, ev: ev}
}

// RunUntil dispatches events in (time, insertion) order until the queue is empty
// or the next event lies beyond horizon. Events at exactly horizon are executed.
// Returns the clock value when the run stopped.
func (s *Scheduler) RunUntil(horizon float64) float64 {
	for {
		next := s.queue.peek()
		if next == nil || next.time > horizon {
			break
		}
		heap.Pop(&s.queue)
		s.clock = next.time
		s.dispatched++
		logrus.Tracef("[t=%.4f] dispatching event #%d", s.clock, next.seq)
		next.fn()
	}
	return s.clock
}

// AdvanceTo moves the clock forward to t without dispatching. Panics if an event
// due at or before t is still pending; call RunUntil(t) first.
func (s *Scheduler) AdvanceTo(t float64) {
	if next := s.queue.peek(); next != nil && next.time <= t {
		panic(fmt.Sprintf("AdvanceTo(%v): event #%d pending at %v", t, next.seq, next.time))
	}
	if t > s.clock {
		s.clock = t
	}
}

// Effect is an operation a process can suspend on: a timeout, a resource request,
// or anything else that completes at some later virtual time.
type Effect interface {
	// arm starts the effect. resolve must be called at most once, when it completes;
	// it may be called synchronously from within arm.
	arm(s *Scheduler, resolve func())
	// cancel withdraws an armed effect that has not resolved.
	cancel()
}

// TimeoutEffect resolves after a fixed delay.
type TimeoutEffect struct {
	delay float64
	timer *Timer
}

// Timeout returns an effect that resolves delay units after it is armed.
func Timeout(delay float64) *TimeoutEffect {
	return &TimeoutEffect{delay: delay}
}

func (t *TimeoutEffect) arm(s *Scheduler, resolve func()) {
	t.timer = s.Schedule(t.delay, resolve)
}

func (t *TimeoutEffect) cancel() {
	if t.timer != nil {
		t.timer.Cancel()
	}
}

// Wait suspends on a single effect and continues with then once it resolves.
func (s *Scheduler) Wait(e Effect, then func()) {
	s.Race(func(int) { then() }, e)
}

// Race arms effects in order and continues with then(i), where i is the index of the
// first effect to resolve. All other armed effects are cancelled the moment the winner
// resolves; effects after an immediately-resolving one are never armed.
// The continuation is always delivered through the event queue at the resolution time,
// never synchronously.
func (s *Scheduler) Race(then func(winner int), effects ...Effect) {
	if len(effects) == 0 {
		panic("Race: no effects")
	}
	resolved := false
	armed := 0
	for i, e := range effects {
		if resolved {
			break
		}
		idx := i
		armed++
		e.arm(s, func() {
			if resolved {
				return
			}
			resolved = true
			for j := 0; j < armed; j++ {
				if j != idx {
					effects[j].cancel()
				}
			}
			s.Schedule(0, func() { then(idx) })
		})
	}
}
