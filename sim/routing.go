package sim

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Condition operators.
var validOperators = map[string]bool{
	"==": true, "!=": true, ">": true, "<": true, ">=": true, "<=": true,
}

// IsValidOperator reports whether op is a recognized condition operator.
func IsValidOperator(op string) bool {
	return validOperators[op]
}

// Matches evaluates the condition against an attribute bag.
// A missing attribute or an unknown operator never matches. Equality across
// different kinds is false; ordering is defined for numbers and strings only.
func (c Condition) Matches(attrs Attributes) bool {
	got, ok := attrs[c.Attribute]
	if !ok {
		return false
	}
	op := c.Operator
	if op == "" {
		op = DefaultConditionOp
	}
	switch op {
	case "==":
		return got.Equal(c.Value)
	case "!=":
		return !got.Equal(c.Value)
	}
	cmp, ordered := got.Compare(c.Value)
	if !ordered {
		return false
	}
	switch op {
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	}
	return false
}

// RoutingDecision is the outcome of evaluating one routing rule.
type RoutingDecision struct {
	Rule        string
	Destination string
	Reason      string
}

type namedRule struct {
	name string
	RoutingRule
}

// evaluate returns the first matching condition's destination, else the default.
func (r namedRule) evaluate(attrs Attributes) (RoutingDecision, bool) {
	for i, c := range r.Conditions {
		if c.Matches(attrs) {
			return RoutingDecision{
				Rule:        r.name,
				Destination: c.Destination,
				Reason:      fmt.Sprintf("condition %d: %s %s %s", i, c.Attribute, opOrDefault(c.Operator), c.Value),
			}, true
		}
	}
	if r.DefaultDestination != "" {
		return RoutingDecision{Rule: r.name, Destination: r.DefaultDestination, Reason: "default"}, true
	}
	return RoutingDecision{}, false
}

func opOrDefault(op string) string {
	if op == "" {
		return DefaultConditionOp
	}
	return op
}

// Router resolves pre-step destinations and post-step insertions.
type Router struct {
	global []namedRule            // pre-step rules without a step scope, declaration order
	byStep map[string][]namedRule // pre-step rules scoped to a step
	after  map[string]namedRule   // "after_<step>" rules keyed by step
}

// NewRouter compiles the simple_routing section.
func NewRouter(rules OrderedMap[RoutingRule], resources OrderedMap[ResourceSpec]) *Router {
	rt := &Router{
		byStep: make(map[string][]namedRule),
		after:  make(map[string]namedRule),
	}
	for _, name := range rules.Keys() {
		rule, _ := rules.Get(name)
		nr := namedRule{name: name, RoutingRule: rule}
		for _, c := range rule.Conditions {
			if c.Operator != "" && !IsValidOperator(c.Operator) {
				logrus.Warnf("routing rule %q: unknown operator %q never matches", name, c.Operator)
			}
			if !resources.Has(c.Destination) {
				logrus.Warnf("routing rule %q: destination %q is not a resource; entities routed there skip the step", name, c.Destination)
			}
		}
		switch {
		case strings.HasPrefix(name, afterRoutingPrefix):
			rt.after[strings.TrimPrefix(name, afterRoutingPrefix)] = nr
		case rule.Step != "":
			rt.byStep[rule.Step] = append(rt.byStep[rule.Step], nr)
		default:
			rt.global = append(rt.global, nr)
		}
	}
	return rt
}

// Resolve picks the resource an entity visits for step. Rules scoped to the step win
// over global rules; the first applicable rule decides (its matching condition, else its
// default). Without any applicable rule the step name itself is the destination.
func (rt *Router) Resolve(attrs Attributes, step string) RoutingDecision {
	candidates := rt.byStep[step]
	if len(candidates) == 0 {
		candidates = rt.global
	}
	if len(candidates) == 0 {
		return RoutingDecision{Destination: step, Reason: "unrouted"}
	}
	r := candidates[0]
	if d, ok := r.evaluate(attrs); ok {
		return d
	}
	return RoutingDecision{Rule: r.name, Destination: step, Reason: "no match, no default"}
}

// After returns the step to insert after a completed step, if any.
// The rule "after_<step>" is looked up first, then "after_<resource>".
func (rt *Router) After(attrs Attributes, step, resource string) (RoutingDecision, bool) {
	r, ok := rt.after[step]
	if !ok && resource != step {
		r, ok = rt.after[resource]
	}
	if !ok {
		return RoutingDecision{}, false
	}
	return r.evaluate(attrs)
}
