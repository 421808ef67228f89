package sim

import (
	"math"
	"math/rand"

	"github.com/inference-sim/queuesim/sim/dist"
)

// renegePolicy draws how long an entity waits in a queue before abandoning it.
type renegePolicy struct {
	name        string
	resource    string // empty = every resource
	patience    dist.Distribution
	multipliers map[string]float64
}

// newRenegePolicies compiles reneging rules in declaration order.
// Rules with unparsable abandon times are skipped; Validate reports them.
func newRenegePolicies(rules OrderedMap[RenegingRule]) []renegePolicy {
	var out []renegePolicy
	for _, name := range rules.Keys() {
		rule, _ := rules.Get(name)
		d, err := dist.Parse(rule.AbandonTime)
		if err != nil {
			continue
		}
		out = append(out, renegePolicy{name: name, resource: rule.Resource, patience: d, multipliers: rule.PriorityMultipliers})
	}
	return out
}

// abandonTimeout returns the patience for e at resource from the first applicable
// rule, scaled by its priority multiplier. ok is false when no rule applies.
func abandonTimeout(policies []renegePolicy, e *Entity, resource string, rng *rand.Rand) (timeout float64, rule string, ok bool) {
	for _, p := range policies {
		if p.resource != "" && p.resource != resource {
			continue
		}
		return math.Max(0, p.patience.Sample(rng)*priorityMultiplier(p.multipliers, e.Priority)), p.name, true
	}
	return 0, "", false
}
