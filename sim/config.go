package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/queuesim/sim/dist"
)

// Default values applied by ApplyDefaults.
const (
	DefaultEntityPriority   = 5
	DefaultArrivalStagger   = 0.1
	DefaultServiceTime      = "uniform(1, 3)"
	DefaultEntityTypeName   = "default"
	DefaultResourceName     = "service"
	DefaultConditionOp      = "=="
	afterRoutingPrefix      = "after_"
	probabilitySumTolerance = 0.001
)

// Config is the validated-by-caller model description a run is built from.
// Loaded from YAML (or JSON) via LoadConfig / ParseConfig.
type Config struct {
	RunTime         float64                    `yaml:"run_time"`
	EntityTypes     OrderedMap[EntityTypeSpec] `yaml:"entity_types,omitempty"`
	Resources       OrderedMap[ResourceSpec]   `yaml:"resources,omitempty"`
	ProcessingRules ProcessingRules            `yaml:"processing_rules,omitempty"`
	BalkingRules    OrderedMap[BalkingRule]    `yaml:"balking_rules,omitempty"`
	RenegingRules   OrderedMap[RenegingRule]   `yaml:"reneging_rules,omitempty"`
	SimpleRouting   OrderedMap[RoutingRule]    `yaml:"simple_routing,omitempty"`
	BasicFailures   OrderedMap[FailureRule]    `yaml:"basic_failures,omitempty"`
	ArrivalPattern  *ArrivalPattern            `yaml:"arrival_pattern,omitempty"`
	NumEntities     *int                       `yaml:"num_entities,omitempty"`
	ArrivalStagger  *float64                   `yaml:"arrival_stagger,omitempty"` // fixed-count mode spacing
	Statistics      StatisticsConfig           `yaml:"statistics,omitempty"`
	Metrics         MetricNames                `yaml:"metrics,omitempty"`
}

// EntityTypeSpec declares one entity type.
type EntityTypeSpec struct {
	Probability float64          `yaml:"probability"`
	Priority    *int             `yaml:"priority,omitempty"`
	Value       *ValueRange      `yaml:"value,omitempty"`
	Attributes  map[string]Value `yaml:"attributes,omitempty"`
}

// ValueRange bounds the uniformly drawn entity value.
type ValueRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ResourceSpec declares one resource.
type ResourceSpec struct {
	Capacity     int    `yaml:"capacity"`
	ResourceType string `yaml:"resource_type,omitempty"`
}

// ProcessingRules holds the ordered step list plus per-resource service rules.
// In YAML both live in one mapping: the "steps" key and one key per resource.
type ProcessingRules struct {
	Steps []string
	Rules OrderedMap[StepRule]
}

// StepRule gives the service-time distribution at a resource.
type StepRule struct {
	Distribution             string             `yaml:"distribution,omitempty"`
	ConditionalDistributions OrderedMap[string] `yaml:"conditional_distributions,omitempty"`
}

// UnmarshalYAML splits the "steps" key from the per-resource rules.
func (p *ProcessingRules) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: processing_rules must be a mapping", node.Line)
	}
	p.Rules = NewOrderedMap[StepRule]()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if key.Value == "steps" {
			if err := val.Decode(&p.Steps); err != nil {
				return fmt.Errorf("processing_rules.steps: %w", err)
			}
			if p.Steps == nil {
				p.Steps = []string{}
			}
			continue
		}
		var rule StepRule
		if err := decodeStrict(val, &rule); err != nil {
			return fmt.Errorf("processing_rules.%s: %w", key.Value, err)
		}
		p.Rules.Set(key.Value, rule)
	}
	return nil
}

// MarshalYAML re-merges steps and rules into one mapping.
func (p ProcessingRules) MarshalYAML() (any, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	if p.Steps != nil {
		var steps yaml.Node
		if err := steps.Encode(p.Steps); err != nil {
			return nil, err
		}
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "steps"}, &steps)
	}
	for _, k := range p.Rules.Keys() {
		rule, _ := p.Rules.Get(k)
		var val yaml.Node
		if err := val.Encode(rule); err != nil {
			return nil, err
		}
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &val)
	}
	return out, nil
}

// Balking rule types.
const (
	BalkQueueLength = "queue_length"
	BalkProbability = "probability"
)

// BalkingRule makes an arriving entity decline to join.
type BalkingRule struct {
	Type                string             `yaml:"type"`
	Resource            string             `yaml:"resource,omitempty"`
	MaxLength           float64            `yaml:"max_length,omitempty"`
	Probability         float64            `yaml:"probability,omitempty"`
	PriorityMultipliers map[string]float64 `yaml:"priority_multipliers,omitempty"`
}

// RenegingRule makes a queued entity abandon after a drawn patience time.
// Without Resource the rule applies at every resource.
type RenegingRule struct {
	AbandonTime         string             `yaml:"abandon_time"`
	Resource            string             `yaml:"resource,omitempty"`
	PriorityMultipliers map[string]float64 `yaml:"priority_multipliers,omitempty"`
}

// RoutingRule picks a destination from entity attributes. Rules named "after_<step>"
// run after that step completes; the others run before a step. A pre-step rule with
// Step set applies only to that step; without it, to every step.
type RoutingRule struct {
	Conditions         []Condition `yaml:"conditions,omitempty"`
	DefaultDestination string      `yaml:"default_destination,omitempty"`
	Step               string      `yaml:"step,omitempty"`
}

// Condition compares entity.Attributes[Attribute] against Value.
type Condition struct {
	Attribute   string `yaml:"attribute"`
	Operator    string `yaml:"operator,omitempty"`
	Value       Value  `yaml:"value"`
	Destination string `yaml:"destination"`
}

// FailureRule drives periodic outages of one resource.
type FailureRule struct {
	MTBF       string `yaml:"mtbf"`
	RepairTime string `yaml:"repair_time"`
}

// ArrivalPattern configures continuous arrivals.
type ArrivalPattern struct {
	Distribution string `yaml:"distribution"`
}

// StatisticsConfig toggles what the metrics collector records.
type StatisticsConfig struct {
	CollectWaitTimes    *bool   `yaml:"collect_wait_times,omitempty"`
	CollectQueueLengths *bool   `yaml:"collect_queue_lengths,omitempty"`
	CollectUtilization  *bool   `yaml:"collect_utilization,omitempty"`
	WarmupPeriod        float64 `yaml:"warmup_period,omitempty"`
}

// MetricNames relabels the output metrics. Labels carry no semantics.
type MetricNames struct {
	Arrival string `yaml:"arrival_metric,omitempty"`
	Served  string `yaml:"served_metric,omitempty"`
	Balk    string `yaml:"balk_metric,omitempty"`
	Reneged string `yaml:"reneged_metric,omitempty"`
	Value   string `yaml:"value_metric,omitempty"`
}

// DefaultMetricNames returns the labels used when none are configured.
func DefaultMetricNames() MetricNames {
	return MetricNames{
		Arrival: "entities_arrived",
		Served:  "entities_served",
		Balk:    "entities_balked",
		Reneged: "entities_reneged",
		Value:   "total_value",
	}
}

// LoadConfig reads and parses a YAML or JSON model file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a model description.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing model config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills optional fields. Idempotent.
func (c *Config) ApplyDefaults() {
	if c.EntityTypes.Len() == 0 {
		c.EntityTypes.Set(DefaultEntityTypeName, EntityTypeSpec{Probability: 1})
	}
	for _, name := range c.EntityTypes.Keys() {
		et, _ := c.EntityTypes.Get(name)
		if et.Priority == nil {
			p := DefaultEntityPriority
			et.Priority = &p
		}
		c.EntityTypes.Set(name, et)
	}
	if c.Resources.Len() == 0 {
		c.Resources.Set(DefaultResourceName, ResourceSpec{Capacity: 1})
	}
	for _, name := range c.Resources.Keys() {
		rs, _ := c.Resources.Get(name)
		if rs.ResourceType == "" {
			rs.ResourceType = string(DisciplineFIFO)
		}
		c.Resources.Set(name, rs)
	}
	if c.ProcessingRules.Steps == nil {
		c.ProcessingRules.Steps = append([]string(nil), c.Resources.Keys()...)
	}
	if c.ArrivalStagger == nil {
		s := DefaultArrivalStagger
		c.ArrivalStagger = &s
	}

	st := &c.Statistics
	if st.CollectWaitTimes == nil {
		st.CollectWaitTimes = boolPtr(true)
	}
	if st.CollectQueueLengths == nil {
		st.CollectQueueLengths = boolPtr(false)
	}
	if st.CollectUtilization == nil {
		st.CollectUtilization = boolPtr(true)
	}

	def := DefaultMetricNames()
	m := &c.Metrics
	if m.Arrival == "" {
		m.Arrival = def.Arrival
	}
	if m.Served == "" {
		m.Served = def.Served
	}
	if m.Balk == "" {
		m.Balk = def.Balk
	}
	if m.Reneged == "" {
		m.Reneged = def.Reneged
	}
	if m.Value == "" {
		m.Value = def.Value
	}
}

func boolPtr(b bool) *bool { return &b }

// ConfigError lists every problem found in a configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration validation failed (%d problem(s)): %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks the (defaulted) configuration and returns a *ConfigError
// listing every problem, or nil.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	checkDist := func(where, spec string) {
		if _, err := dist.Parse(spec); err != nil {
			add("%s: %v", where, err)
		}
	}

	if math.IsNaN(c.RunTime) || math.IsInf(c.RunTime, 0) || c.RunTime < 0 {
		add("run_time must be a finite non-negative number, got %v", c.RunTime)
	}

	total := 0.0
	for _, name := range c.EntityTypes.Keys() {
		et, _ := c.EntityTypes.Get(name)
		if et.Probability < 0 || et.Probability > 1 || math.IsNaN(et.Probability) {
			add("entity type %q: probability must be in [0, 1], got %v", name, et.Probability)
		}
		total += et.Probability
		if et.Value != nil && et.Value.Min > et.Value.Max {
			add("entity type %q has min value (%v) greater than max value (%v)", name, et.Value.Min, et.Value.Max)
		}
	}
	if math.Abs(total-1.0) > probabilitySumTolerance {
		add("entity type probabilities sum to %.3f, should be 1.0", total)
	}

	for _, name := range c.Resources.Keys() {
		rs, _ := c.Resources.Get(name)
		if rs.Capacity < 1 {
			add("resource %q: capacity must be >= 1, got %d", name, rs.Capacity)
		}
		if _, err := ParseDiscipline(rs.ResourceType); err != nil {
			add("resource %q: %v", name, err)
		}
	}

	if len(c.ProcessingRules.Steps) == 0 {
		add("processing_rules.steps must list at least one step")
	}
	for _, step := range c.ProcessingRules.Steps {
		if !c.Resources.Has(step) && !c.ProcessingRules.Rules.Has(step) {
			add("processing step %q not found in resources or processing rules; available resources: %s",
				step, strings.Join(c.Resources.Keys(), ", "))
		}
	}
	for _, name := range c.ProcessingRules.Rules.Keys() {
		rule, _ := c.ProcessingRules.Rules.Get(name)
		if rule.Distribution != "" {
			checkDist(fmt.Sprintf("processing_rules.%s.distribution", name), rule.Distribution)
		}
		for _, typ := range rule.ConditionalDistributions.Keys() {
			spec, _ := rule.ConditionalDistributions.Get(typ)
			checkDist(fmt.Sprintf("processing_rules.%s.conditional_distributions.%s", name, typ), spec)
		}
	}

	switch {
	case c.ArrivalPattern != nil && c.NumEntities != nil:
		add("arrival_pattern and num_entities are mutually exclusive")
	case c.ArrivalPattern == nil && c.NumEntities == nil:
		add("one of arrival_pattern or num_entities is required")
	case c.ArrivalPattern != nil:
		d, err := dist.Parse(c.ArrivalPattern.Distribution)
		if err != nil {
			add("arrival_pattern.distribution: %v", err)
		} else if dist.AlwaysZero(d) {
			add("arrival_pattern.distribution %q always yields a zero inter-arrival time", c.ArrivalPattern.Distribution)
		}
	case *c.NumEntities < 0:
		add("num_entities must be >= 0, got %d", *c.NumEntities)
	}
	if c.ArrivalStagger != nil && (*c.ArrivalStagger < 0 || math.IsNaN(*c.ArrivalStagger)) {
		add("arrival_stagger must be >= 0, got %v", *c.ArrivalStagger)
	}

	for _, name := range c.BalkingRules.Keys() {
		rule, _ := c.BalkingRules.Get(name)
		switch rule.Type {
		case BalkQueueLength:
			if !c.Resources.Has(rule.Resource) {
				add("balking rule %q references unknown resource %q", name, rule.Resource)
			}
			if rule.MaxLength < 0 {
				add("balking rule %q: max_length must be >= 0, got %v", name, rule.MaxLength)
			}
		case BalkProbability:
			if rule.Probability < 0 || rule.Probability > 1 {
				add("balking rule %q: probability must be in [0, 1], got %v", name, rule.Probability)
			}
		default:
			add("balking rule %q: unknown type %q; valid: queue_length, probability", name, rule.Type)
		}
	}

	for _, name := range c.RenegingRules.Keys() {
		rule, _ := c.RenegingRules.Get(name)
		if rule.AbandonTime == "" {
			add("reneging rule %q: abandon_time is required", name)
		} else {
			checkDist(fmt.Sprintf("reneging rule %q abandon_time", name), rule.AbandonTime)
		}
		if rule.Resource != "" && !c.Resources.Has(rule.Resource) {
			add("reneging rule %q references unknown resource %q", name, rule.Resource)
		}
	}

	for _, name := range c.SimpleRouting.Keys() {
		rule, _ := c.SimpleRouting.Get(name)
		for i, cond := range rule.Conditions {
			if cond.Attribute == "" || cond.Destination == "" {
				add("routing rule %q condition %d: attribute and destination are required", name, i)
			}
		}
	}

	for _, name := range c.BasicFailures.Keys() {
		rule, _ := c.BasicFailures.Get(name)
		if !c.Resources.Has(name) {
			add("failure rule references unknown resource %q", name)
		}
		mtbf, errM := dist.Parse(rule.MTBF)
		if errM != nil {
			add("basic_failures.%s.mtbf: %v", name, errM)
		}
		repair, errR := dist.Parse(rule.RepairTime)
		if errR != nil {
			add("basic_failures.%s.repair_time: %v", name, errR)
		}
		if errM == nil && errR == nil && dist.AlwaysZero(mtbf) && dist.AlwaysZero(repair) {
			add("basic_failures.%s: mtbf and repair_time are both always zero", name)
		}
	}

	if c.Statistics.WarmupPeriod < 0 || math.IsNaN(c.Statistics.WarmupPeriod) {
		add("statistics.warmup_period must be >= 0, got %v", c.Statistics.WarmupPeriod)
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}
