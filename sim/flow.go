// Entity Flow Executor: each admitted entity runs as a chain of continuations
// driven by the Scheduler. Arrival processes live at the bottom of this file.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/queuesim/sim/trace"
)

// process walks one entity through its (mutable) step list.
type process struct {
	sim   *Simulator
	e     *Entity
	steps []string
	idx   int

	// current step
	step         string
	res          *Resource
	req          *Request
	queuedAt     float64
	renegeRule   string
	serviceTotal float64
	remaining    float64
	holdStart    float64
	preemptedAt  float64
	serviceTimer *Timer

	// steps entered without the clock moving
	instant        float64
	stepsAtInstant int
}

// maxStepsPerInstant bounds how many steps one entity may enter at a single virtual
// time. Past it the route is a zero-duration cycle and the entity is dropped.
const maxStepsPerInstant = 10000

func newProcess(s *Simulator, e *Entity) *process {
	return &process{
		sim:   s,
		e:     e,
		steps: append([]string(nil), s.steps...),
	}
}

// guard wraps a continuation so a panic drops this entity instead of aborting the run.
// Continuations of a dropped entity are ignored.
func (p *process) guard(fn func()) func() {
	return func() {
		if p.e.State == EntityDropped {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				p.drop(r)
			}
		}()
		fn()
	}
}

// deferred returns a callback that resumes fn through the event queue at the current time.
// Resource callbacks fire inside another process's Release; deferring keeps processes apart.
func (p *process) deferred(fn func()) func() {
	return func() {
		p.sim.sched.Schedule(0, p.guard(fn))
	}
}

// nextStep resolves and enters the next step, or departs when none are left.
// Steps whose destination is not a resource are skipped.
func (p *process) nextStep() {
	if now := p.sim.sched.Now(); now != p.instant {
		p.instant = now
		p.stepsAtInstant = 0
	}
	p.stepsAtInstant++
	if p.stepsAtInstant > maxStepsPerInstant {
		panic(fmt.Sprintf("entered %d steps at t=%g without time advancing (zero-duration routing cycle)",
			maxStepsPerInstant, p.instant))
	}
	for p.idx < len(p.steps) {
		step := p.steps[p.idx]
		decision := p.sim.router.Resolve(p.e.Attributes, step)
		p.sim.recordRouting(p.e, step, decision, false)
		res, ok := p.sim.resources[decision.Destination]
		if !ok {
			logrus.Debugf("[t=%.4f] %s skips step %q: %q is not a resource", p.sim.sched.Now(), p.e.Name(), step, decision.Destination)
			p.idx++
			continue
		}
		p.enqueue(step, res)
		return
	}
	p.depart()
}

// enqueue requests a slot at res, racing it against the entity's patience when a
// reneging rule applies.
func (p *process) enqueue(step string, res *Resource) {
	s := p.sim
	p.step = step
	p.res = res
	p.queuedAt = s.sched.Now()
	p.serviceTimer = nil
	p.e.State = EntityQueued
	p.req = res.Request(p.e.Name(), p.e.Priority)
	p.req.OnPreempt(p.guard(p.preempted))

	patience, rule, ok := abandonTimeout(s.renege, p.e, res.Name, s.rng.ForSubsystem(SubsystemReneging))
	if !ok {
		s.sched.Wait(p.req, p.guard(p.startService))
		return
	}
	p.renegeRule = rule
	s.sched.Race(func(winner int) {
		p.guard(func() {
			if winner == 0 {
				p.startService()
			} else {
				p.renege()
			}
		})()
	}, p.req, Timeout(patience))
}

func (p *process) startService() {
	// Granted, then evicted before this continuation ran: wait for the re-grant.
	if !p.req.Held() {
		p.req.OnGrant(p.deferred(p.startService))
		return
	}
	s := p.sim
	now := s.sched.Now()
	wait := now - p.queuedAt
	p.e.WaitTimes[p.res.Name] += wait
	s.metrics.RecordServiceStart(p.e, p.res.Name, now, wait)

	p.serviceTotal = s.serviceTime(p.e, p.step, p.res.Name)
	p.remaining = p.serviceTotal
	p.e.State = EntityInService
	logrus.Debugf("[t=%.4f] %s starts service at %s (wait %.4f, service %.4f)", now, p.e.Name(), p.res.Name, wait, p.serviceTotal)
	p.hold()
}

func (p *process) hold() {
	p.holdStart = p.sim.sched.Now()
	p.serviceTimer = p.sim.sched.Schedule(p.remaining, p.guard(p.finishService))
}

// preempted runs synchronously inside the Resource when this entity is evicted.
// The interrupted service resumes with its remaining time once re-granted.
func (p *process) preempted() {
	s := p.sim
	now := s.sched.Now()
	s.metrics.RecordPreemption(p.res.Name, now)
	if s.trace != nil {
		s.trace.RecordPreemption(trace.PreemptionRecord{EntityID: p.e.Name(), Clock: now, Resource: p.res.Name, Priority: p.e.Priority})
	}
	if p.e.State != EntityInService {
		// startService has not run yet and will notice the lost slot itself.
		return
	}
	p.serviceTimer.Cancel()
	p.serviceTimer = nil
	p.remaining -= now - p.holdStart
	p.preemptedAt = now
	p.e.State = EntityQueued
	logrus.Debugf("[t=%.4f] %s preempted at %s (%.4f service left)", now, p.e.Name(), p.res.Name, p.remaining)
	p.req.OnGrant(p.deferred(p.resume))
}

func (p *process) resume() {
	if !p.req.Held() {
		p.req.OnGrant(p.deferred(p.resume))
		return
	}
	now := p.sim.sched.Now()
	p.e.WaitTimes[p.res.Name] += now - p.preemptedAt
	p.e.State = EntityInService
	p.hold()
}

func (p *process) finishService() {
	s := p.sim
	now := s.sched.Now()
	p.res.Release(p.req)
	p.req = nil
	p.serviceTimer = nil
	p.e.ServiceTimes[p.res.Name] += p.serviceTotal
	s.metrics.RecordServiceComplete(p.e, p.res.Name, now, p.serviceTotal)

	if decision, ok := s.router.After(p.e.Attributes, p.step, p.res.Name); ok {
		s.recordRouting(p.e, p.step, decision, true)
		// Exactly one step is inserted right after the current position.
		p.steps = append(p.steps[:p.idx+1], append([]string{decision.Destination}, p.steps[p.idx+1:]...)...)
	}
	p.idx++
	p.nextStep()
}

func (p *process) renege() {
	s := p.sim
	now := s.sched.Now()
	waited := now - p.queuedAt
	p.req = nil
	p.e.WaitTimes[p.res.Name] += waited
	p.e.Reneged = true
	p.e.State = EntityReneged
	s.metrics.RecordReneging(p.e, now)
	if s.trace != nil {
		s.trace.RecordRenege(trace.RenegeRecord{EntityID: p.e.Name(), Clock: now, Resource: p.res.Name, Rule: p.renegeRule, Waited: waited})
	}
	logrus.Debugf("[t=%.4f] %s reneged at %s after %.4f", now, p.e.Name(), p.res.Name, waited)
}

func (p *process) depart() {
	s := p.sim
	now := s.sched.Now()
	p.e.Served = true
	p.e.DepartureTime = now
	p.e.State = EntityDeparted
	s.metrics.RecordDeparture(p.e, now)
	logrus.Debugf("[t=%.4f] %s departed", now, p.e.Name())
}

// drop abandons the entity after a runtime fault, giving back anything it holds.
func (p *process) drop(cause any) {
	s := p.sim
	now := s.sched.Now()
	logrus.Warnf("[t=%.4f] %s dropped: %v", now, p.e.Name(), cause)
	p.e.State = EntityDropped
	if p.serviceTimer != nil {
		p.serviceTimer.Cancel()
		p.serviceTimer = nil
	}
	if p.req != nil {
		req := p.req
		p.req = nil
		func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.Warnf("[t=%.4f] %s: releasing %s after fault: %v", now, p.e.Name(), p.res.Name, r)
				}
			}()
			req.res.Withdraw(req)
		}()
	}
	s.metrics.RecordDrop(p.e, now)
}

// === Arrivals ===

// scheduleContinuous draws the next inter-arrival time and schedules that arrival.
// Arrivals beyond the horizon are never dispatched.
func (s *Simulator) scheduleContinuous() {
	iat := s.arrivalDist.Sample(s.rng.ForSubsystem(SubsystemArrivals))
	s.sched.Schedule(iat, func() {
		s.arrive()
		s.scheduleContinuous()
	})
}

// scheduleFixed spawns entity k of n now and the next one stagger later.
func (s *Simulator) scheduleFixed(k, n int, stagger float64) {
	s.arrive()
	if k+1 < n {
		s.sched.Schedule(stagger, func() { s.scheduleFixed(k+1, n, stagger) })
	}
}

// arrive creates an entity, applies balking and starts its process.
func (s *Simulator) arrive() {
	now := s.sched.Now()
	s.nextID++
	rng := s.rng.ForSubsystem(SubsystemEntityTypes)
	typ := s.pickType(rng.Float64())
	value := 0.0
	if typ.value != nil {
		value = typ.value.Min + rng.Float64()*(typ.value.Max-typ.value.Min)
	}
	e := newEntity(s.nextID, typ, value, now)
	s.entities++
	s.metrics.RecordArrival(e, now)

	balked, reason := checkBalking(s.balk, e)
	if s.trace != nil {
		s.trace.RecordAdmission(trace.AdmissionRecord{EntityID: e.Name(), Clock: now, Admitted: !balked, Reason: reason})
	}
	if balked {
		e.Balked = true
		e.State = EntityBalked
		s.metrics.RecordBalk(e, now)
		logrus.Debugf("[t=%.4f] %s balked (%s)", now, e.Name(), reason)
		return
	}
	logrus.Debugf("[t=%.4f] %s arrived", now, e.Name())
	p := newProcess(s, e)
	p.guard(p.nextStep)()
}

// pickType selects the first type whose cumulative probability reaches u,
// falling back to the first declared type.
func (s *Simulator) pickType(u float64) *entityType {
	cum := 0.0
	for _, t := range s.types {
		cum += t.probability
		if u <= cum {
			return t
		}
	}
	return s.types[0]
}

func (s *Simulator) recordRouting(e *Entity, step string, d RoutingDecision, post bool) {
	if s.trace == nil {
		return
	}
	s.trace.RecordRouting(trace.RoutingRecord{
		EntityID:    e.Name(),
		Clock:       s.sched.Now(),
		Step:        step,
		Destination: d.Destination,
		Rule:        d.Rule,
		Reason:      d.Reason,
		PostStep:    post,
	})
}

// serviceTime draws the service duration for e: the rule of the visited resource
// (falling back to the step's rule), its per-type distribution first, then its default,
// then DefaultServiceTime.
func (s *Simulator) serviceTime(e *Entity, step, resource string) float64 {
	rng := s.rng.ForSubsystem(SubsystemService)
	rule, ok := s.service[resource]
	if !ok {
		rule, ok = s.service[step]
	}
	if ok {
		if d, found := rule.byType[e.Type]; found {
			return d.Sample(rng)
		}
		if rule.fallback != nil {
			return rule.fallback.Sample(rng)
		}
	}
	return s.defaultService.Sample(rng)
}

func (s *Simulator) String() string {
	return fmt.Sprintf("Simulator(t=%.4f, entities=%d, pending=%d)", s.sched.Now(), s.entities, s.sched.Pending())
}
