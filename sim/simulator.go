// sim/simulator.go
package sim

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/queuesim/sim/dist"
	"github.com/inference-sim/queuesim/sim/trace"
)

// entityType is the compiled form of an EntityTypeSpec.
type entityType struct {
	name        string
	probability float64
	priority    int
	value       *ValueRange
	attributes  Attributes
}

// serviceRule holds the parsed service-time distributions of one processing rule.
type serviceRule struct {
	fallback dist.Distribution // nil when the rule has no default distribution
	byType   map[string]dist.Distribution
}

// Simulator is the Run Controller: it owns the scheduler, resources, rule sets and
// metrics of exactly one run.
//
// Thread-safety: NOT thread-safe. Independent runs use independent Simulators.
type Simulator struct {
	cfg   *Config
	key   SimulationKey
	sched *Scheduler
	rng   *PartitionedRNG

	resources     map[string]*Resource
	resourceOrder []string
	types         []*entityType
	steps         []string

	service        map[string]serviceRule
	defaultService dist.Distribution
	arrivalDist    dist.Distribution

	router   *Router
	balk     []BalkPolicy
	renege   []renegePolicy
	failures []*failureInjector

	metrics *Metrics
	trace   *trace.SimulationTrace

	nextID   int
	entities int
}

// NewSimulator applies defaults to cfg, validates it and builds every component.
// Returns a *ConfigError listing all problems when validation fails; nothing runs.
func NewSimulator(cfg *Config, key SimulationKey) (*Simulator, error) {
	if cfg == nil {
		return nil, &ConfigError{Problems: []string{"configuration is required"}}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:            cfg,
		key:            key,
		sched:          NewScheduler(),
		rng:            NewPartitionedRNG(key),
		resources:      make(map[string]*Resource, cfg.Resources.Len()),
		steps:          append([]string(nil), cfg.ProcessingRules.Steps...),
		service:        make(map[string]serviceRule, cfg.ProcessingRules.Rules.Len()),
		defaultService: dist.MustParse(DefaultServiceTime),
	}

	for _, name := range cfg.Resources.Keys() {
		spec, _ := cfg.Resources.Get(name)
		d, _ := ParseDiscipline(spec.ResourceType)
		s.resources[name] = NewResource(name, spec.Capacity, d, s.sched)
		s.resourceOrder = append(s.resourceOrder, name)
	}

	for _, name := range cfg.EntityTypes.Keys() {
		spec, _ := cfg.EntityTypes.Get(name)
		attrs := make(Attributes, len(spec.Attributes))
		for k, v := range spec.Attributes {
			attrs[k] = v
		}
		s.types = append(s.types, &entityType{
			name:        name,
			probability: spec.Probability,
			priority:    *spec.Priority,
			value:       spec.Value,
			attributes:  attrs,
		})
	}

	for _, name := range cfg.ProcessingRules.Rules.Keys() {
		rule, _ := cfg.ProcessingRules.Rules.Get(name)
		sr := serviceRule{byType: make(map[string]dist.Distribution)}
		if rule.Distribution != "" {
			sr.fallback = dist.MustParse(rule.Distribution)
		}
		for _, typ := range rule.ConditionalDistributions.Keys() {
			spec, _ := rule.ConditionalDistributions.Get(typ)
			sr.byType[typ] = dist.MustParse(spec)
		}
		s.service[name] = sr
	}

	if cfg.ArrivalPattern != nil {
		s.arrivalDist = dist.MustParse(cfg.ArrivalPattern.Distribution)
	}

	s.router = NewRouter(cfg.SimpleRouting, cfg.Resources)
	s.balk = newBalkPolicies(cfg.BalkingRules, s.resources, s.rng.ForSubsystem(SubsystemBalking))
	s.renege = newRenegePolicies(cfg.RenegingRules)

	s.metrics = NewMetrics(cfg.Statistics, s.resourceOrder)
	for _, name := range s.resourceOrder {
		s.resources[name].SetQueueObserver(s.metrics.RecordQueueLength)
	}

	for _, name := range cfg.BasicFailures.Keys() {
		rule, _ := cfg.BasicFailures.Get(name)
		f, err := newFailureInjector(s, s.resources[name], rule)
		if err != nil {
			return nil, fmt.Errorf("failure rule for %q: %w", name, err)
		}
		s.failures = append(s.failures, f)
	}
	return s, nil
}

// EnableTrace turns on decision recording for this run. Call before Run.
func (s *Simulator) EnableTrace(tc trace.TraceConfig) {
	if tc.Enabled() {
		s.trace = trace.NewSimulationTrace(tc)
	}
}

// Trace returns the decision trace, or nil when tracing is off.
func (s *Simulator) Trace() *trace.SimulationTrace {
	return s.trace
}

// Resource returns the named resource.
func (s *Simulator) Resource(name string) (*Resource, bool) {
	r, ok := s.resources[name]
	return r, ok
}

// Now returns the current virtual time.
func (s *Simulator) Now() float64 {
	return s.sched.Now()
}

// Run starts the arrival and failure processes, drives the scheduler to run_time and
// returns the aggregated results. Entities still in flight at the horizon contribute
// nothing beyond what they already recorded.
func (s *Simulator) Run() *Results {
	horizon := s.cfg.RunTime
	if horizon > 0 {
		switch {
		case s.arrivalDist != nil:
			s.scheduleContinuous()
		case *s.cfg.NumEntities > 0:
			n, stagger := *s.cfg.NumEntities, *s.cfg.ArrivalStagger
			s.sched.Schedule(0, func() { s.scheduleFixed(0, n, stagger) })
		}
		for _, f := range s.failures {
			f.start()
		}
	}

	logrus.Debugf("running %d step(s) over %d resource(s) until t=%g (seed %d)", len(s.steps), len(s.resources), horizon, s.key)
	s.sched.RunUntil(horizon)
	s.sched.AdvanceTo(horizon)
	end := s.sched.Now()
	logrus.Debugf("[t=%.4f] simulation ended after %d events, %d entities created", end, s.sched.Dispatched(), s.entities)

	infos := make([]ResourceInfo, 0, len(s.resourceOrder))
	for _, name := range s.resourceOrder {
		r := s.resources[name]
		infos = append(infos, ResourceInfo{
			Name:       name,
			Capacity:   r.BaseCapacity(),
			Preemptive: r.Discipline() == DisciplinePreemptive,
			HasFailure: s.cfg.BasicFailures.Has(name),
		})
	}
	typeNames := make([]string, 0, len(s.types))
	for _, t := range s.types {
		typeNames = append(typeNames, t.name)
	}
	res := s.metrics.Results(end, s.cfg.Metrics, typeNames, infos)
	res.Trace = s.trace
	return res
}

// Execute builds and runs one simulation. Configuration problems come back as a
// *ConfigError; any unexpected panic is converted to an error instead of propagating.
func Execute(cfg *Config, key SimulationKey, tc trace.TraceConfig) (res *Results, err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Debugf("simulation panic: %v\n%s", r, debug.Stack())
			res, err = nil, fmt.Errorf("simulation execution error: %v", r)
		}
	}()
	s, err := NewSimulator(cfg, key)
	if err != nil {
		return nil, err
	}
	s.EnableTrace(tc)
	return s.Run(), nil
}

// ResultMap renders the outcome of Execute as a metric-name → value mapping,
// or {"error": message} on failure.
func ResultMap(res *Results, err error) map[string]any {
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if res == nil {
		return map[string]any{"error": "no results"}
	}
	m := res.Metrics()
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
