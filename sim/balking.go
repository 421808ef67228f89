package sim

import (
	"fmt"
	"math/rand"
	"strconv"
)

// BalkPolicy decides whether an arriving entity declines to join the system.
// Implementations MUST NOT modify the entity.
type BalkPolicy interface {
	Balk(e *Entity) (balked bool, reason string)
}

// priorityMultiplier looks up the multiplier for a priority level; 1 when absent.
func priorityMultiplier(table map[string]float64, priority int) float64 {
	if m, ok := table[strconv.Itoa(priority)]; ok {
		return m
	}
	return 1
}

// QueueLengthBalk balks when the queue at a resource is at least
// MaxLength × multiplier(priority) long.
type QueueLengthBalk struct {
	Name        string
	Resource    *Resource
	MaxLength   float64
	Multipliers map[string]float64
}

func (q *QueueLengthBalk) Balk(e *Entity) (bool, string) {
	threshold := q.MaxLength * priorityMultiplier(q.Multipliers, e.Priority)
	length := q.Resource.QueueLength()
	if float64(length) >= threshold {
		return true, fmt.Sprintf("%s: queue at %s is %d >= %g", q.Name, q.Resource.Name, length, threshold)
	}
	return false, ""
}

// ProbabilityBalk balks with probability Probability × multiplier(priority).
type ProbabilityBalk struct {
	Name        string
	Probability float64
	Multipliers map[string]float64
	rng         *rand.Rand
}

func (p *ProbabilityBalk) Balk(e *Entity) (bool, string) {
	prob := p.Probability * priorityMultiplier(p.Multipliers, e.Priority)
	if p.rng.Float64() < prob {
		return true, fmt.Sprintf("%s: drew below %g", p.Name, prob)
	}
	return false, ""
}

// newBalkPolicies builds policies in declaration order. Rules that reference a
// missing resource are skipped; Validate reports them before a run starts.
func newBalkPolicies(rules OrderedMap[BalkingRule], resources map[string]*Resource, rng *rand.Rand) []BalkPolicy {
	var out []BalkPolicy
	for _, name := range rules.Keys() {
		rule, _ := rules.Get(name)
		switch rule.Type {
		case BalkQueueLength:
			res, ok := resources[rule.Resource]
			if !ok {
				continue
			}
			out = append(out, &QueueLengthBalk{Name: name, Resource: res, MaxLength: rule.MaxLength, Multipliers: rule.PriorityMultipliers})
		case BalkProbability:
			out = append(out, &ProbabilityBalk{Name: name, Probability: rule.Probability, Multipliers: rule.PriorityMultipliers, rng: rng})
		}
	}
	return out
}

// checkBalking evaluates policies in order and stops at the first that fires.
func checkBalking(policies []BalkPolicy, e *Entity) (bool, string) {
	for _, p := range policies {
		if balked, reason := p.Balk(e); balked {
			return true, reason
		}
	}
	return false, ""
}
