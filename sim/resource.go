package sim

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Discipline selects how a resource orders and grants pending requests.
type Discipline string

const (
	// DisciplineFIFO grants in submission order.
	DisciplineFIFO Discipline = "fifo"
	// DisciplinePriority grants by (priority asc, submission order); holders are never displaced.
	DisciplinePriority Discipline = "priority"
	// DisciplinePreemptive is DisciplinePriority plus eviction of the lowest-priority
	// holder when a strictly higher-priority request finds no free slot.
	DisciplinePreemptive Discipline = "preemptive"
)

var validDisciplines = map[Discipline]bool{
	DisciplineFIFO:       true,
	DisciplinePriority:   true,
	DisciplinePreemptive: true,
}

// ParseDiscipline maps a resource_type string to a Discipline. Empty means FIFO.
func ParseDiscipline(name string) (Discipline, error) {
	if name == "" {
		return DisciplineFIFO, nil
	}
	d := Discipline(strings.ToLower(name))
	if !validDisciplines[d] {
		return "", fmt.Errorf("unknown resource_type %q; valid: fifo, priority, preemptive", name)
	}
	return d, nil
}

// RequestState is the lifecycle state of a resource request.
type RequestState string

const (
	RequestPending   RequestState = "pending"
	RequestHeld      RequestState = "held"
	RequestReleased  RequestState = "released"
	RequestWithdrawn RequestState = "withdrawn"
)

// Request is a claim on one slot of a Resource. It implements Effect: waiting on it
// resolves when the slot is granted.
type Request struct {
	Owner    string
	Priority int // smaller = more urgent

	res       *Resource
	seq       uint64
	state     RequestState
	grantedAt float64
	grantSeq  uint64

	// onGrant runs every time the request is granted, including re-grants after preemption.
	onGrant func()
	// onPreempt runs when the holder is evicted back to the queue.
	onPreempt func()
}

// State returns the request's lifecycle state.
func (r *Request) State() RequestState {
	return r.state
}

// Held reports whether the request currently occupies a slot.
func (r *Request) Held() bool {
	return r.state == RequestHeld
}

// OnGrant replaces the callback run on (re-)grant.
func (r *Request) OnGrant(fn func()) {
	r.onGrant = fn
}

// OnPreempt replaces the callback run on eviction.
func (r *Request) OnPreempt(fn func()) {
	r.onPreempt = fn
}

func (r *Request) arm(_ *Scheduler, resolve func()) {
	r.onGrant = resolve
	r.res.submit(r)
}

func (r *Request) cancel() {
	r.res.Withdraw(r)
}

// QueueObserver is notified whenever a resource's queue length changes.
type QueueObserver func(resource string, now float64, length int)

// Resource is a capacity-bound contention point. It exclusively owns its holders and queue;
// processes interact with it only through Request/Release/Withdraw.
type Resource struct {
	Name string

	sched        *Scheduler
	discipline   Discipline
	baseCapacity int
	capacity     int
	failed       bool
	holders      []*Request
	queue        RequestQueue
	seq          uint64
	grants       uint64
	preemptions  int
	observer     QueueObserver
}

// NewResource creates a Resource. capacity must be >= 1.
func NewResource(name string, capacity int, d Discipline, sched *Scheduler) *Resource {
	if capacity < 1 {
		panic(fmt.Sprintf("NewResource(%q): capacity must be >= 1, got %d", name, capacity))
	}
	if !validDisciplines[d] {
		panic(fmt.Sprintf("NewResource(%q): unknown discipline %q", name, d))
	}
	return &Resource{
		Name:         name,
		sched:        sched,
		discipline:   d,
		baseCapacity: capacity,
		capacity:     capacity,
		queue:        RequestQueue{byPriority: d != DisciplineFIFO},
	}
}

// SetQueueObserver registers fn to receive queue-length changes.
func (r *Resource) SetQueueObserver(fn QueueObserver) {
	r.observer = fn
}

// Discipline returns the queueing discipline.
func (r *Resource) Discipline() Discipline { return r.discipline }

// Capacity returns the currently available capacity (0 while failed).
func (r *Resource) Capacity() int { return r.capacity }

// BaseCapacity returns the configured capacity.
func (r *Resource) BaseCapacity() int { return r.baseCapacity }

// InUse returns the number of current holders.
func (r *Resource) InUse() int { return len(r.holders) }

// QueueLength returns the number of pending requests.
func (r *Resource) QueueLength() int { return r.queue.Len() }

// Failed reports whether the resource is in an outage.
func (r *Resource) Failed() bool { return r.failed }

// Preemptions returns how many holders have been evicted so far.
func (r *Resource) Preemptions() int { return r.preemptions }

// Request creates an unsubmitted request. It is submitted when armed through
// Scheduler.Wait or Scheduler.Race. FIFO resources ignore priority for ordering.
func (r *Resource) Request(owner string, priority int) *Request {
	req := &Request{Owner: owner, Priority: priority, res: r, seq: r.seq, state: RequestPending}
	r.seq++
	return req
}

// Release frees the slot held by req and grants the next pending request.
func (r *Resource) Release(req *Request) {
	if req.res != r || req.state != RequestHeld {
		panic(fmt.Sprintf("Release(%s): request of %s is %s", r.Name, req.Owner, req.state))
	}
	r.removeHolder(req)
	req.state = RequestReleased
	r.dispatch()
}

// Withdraw cancels req: a pending request leaves the queue, a held one is released.
func (r *Resource) Withdraw(req *Request) {
	switch req.state {
	case RequestPending:
		if r.queue.Remove(req) {
			r.notifyQueue()
		}
		req.state = RequestWithdrawn
	case RequestHeld:
		r.Release(req)
	}
}

// Fail drops available capacity to zero. Existing holders keep their slots; only new
// grants are blocked until Repair.
func (r *Resource) Fail() {
	r.failed = true
	r.capacity = 0
	logrus.Debugf("[t=%.4f] resource %s failed (holders=%d, queued=%d)", r.sched.Now(), r.Name, len(r.holders), r.queue.Len())
}

// Repair restores the configured capacity and grants queued requests.
func (r *Resource) Repair() {
	r.failed = false
	r.capacity = r.baseCapacity
	logrus.Debugf("[t=%.4f] resource %s repaired", r.sched.Now(), r.Name)
	r.dispatch()
}

func (r *Resource) submit(req *Request) {
	r.queue.Insert(req)
	r.dispatch()
	if req.state == RequestPending && r.discipline == DisciplinePreemptive {
		r.tryPreempt(req)
	}
	if req.state == RequestPending {
		r.notifyQueue()
	}
}

// dispatch grants queued requests while slots are free.
func (r *Resource) dispatch() {
	granted := false
	for len(r.holders) < r.capacity && r.queue.Len() > 0 {
		r.grant(r.queue.PopFront())
		granted = true
	}
	if granted {
		r.notifyQueue()
	}
}

func (r *Resource) grant(req *Request) {
	req.state = RequestHeld
	req.grantedAt = r.sched.Now()
	req.grantSeq = r.grants
	r.grants++
	r.holders = append(r.holders, req)
	if req.onGrant != nil {
		req.onGrant()
	}
}

// tryPreempt evicts the lowest-priority holder (latest grant on ties) if req outranks it.
// No eviction happens while the resource is failed: a freed slot could not be used.
func (r *Resource) tryPreempt(req *Request) {
	if r.capacity == 0 || len(r.holders) == 0 {
		return
	}
	victim := r.holders[0]
	for _, h := range r.holders[1:] {
		if h.Priority > victim.Priority || (h.Priority == victim.Priority && h.grantSeq > victim.grantSeq) {
			victim = h
		}
	}
	if req.Priority >= victim.Priority {
		return
	}
	r.removeHolder(victim)
	victim.state = RequestPending
	r.queue.Insert(victim)
	r.preemptions++
	logrus.Debugf("[t=%.4f] resource %s: %s (p%d) preempts %s (p%d)",
		r.sched.Now(), r.Name, req.Owner, req.Priority, victim.Owner, victim.Priority)
	if victim.onPreempt != nil {
		victim.onPreempt()
	}
	r.dispatch()
}

func (r *Resource) removeHolder(req *Request) {
	for i, h := range r.holders {
		if h == req {
			r.holders = append(r.holders[:i], r.holders[i+1:]...)
			return
		}
	}
}

func (r *Resource) notifyQueue() {
	if r.observer != nil {
		r.observer(r.Name, r.sched.Now(), r.queue.Len())
	}
}
