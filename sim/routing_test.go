package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resourcesNamed(names ...string) OrderedMap[ResourceSpec] {
	m := NewOrderedMap[ResourceSpec]()
	for _, n := range names {
		m.Set(n, ResourceSpec{Capacity: 1})
	}
	return m
}

func TestCondition_Matches_Operators(t *testing.T) {
	attrs := Attributes{"level": Number(3), "zone": String("north"), "vip": Bool(true)}
	tests := []struct {
		name string
		c    Condition
		want bool
	}{
		{"eq number", Condition{Attribute: "level", Operator: "==", Value: Number(3)}, true},
		{"default op is eq", Condition{Attribute: "level", Value: Number(3)}, true},
		{"ne number", Condition{Attribute: "level", Operator: "!=", Value: Number(3)}, false},
		{"gt", Condition{Attribute: "level", Operator: ">", Value: Number(2)}, true},
		{"lt", Condition{Attribute: "level", Operator: "<", Value: Number(2)}, false},
		{"ge equal", Condition{Attribute: "level", Operator: ">=", Value: Number(3)}, true},
		{"le", Condition{Attribute: "level", Operator: "<=", Value: Number(1)}, false},
		{"string eq", Condition{Attribute: "zone", Operator: "==", Value: String("north")}, true},
		{"string order", Condition{Attribute: "zone", Operator: ">", Value: String("east")}, true},
		{"bool eq", Condition{Attribute: "vip", Operator: "==", Value: Bool(true)}, true},
		{"bool has no order", Condition{Attribute: "vip", Operator: ">", Value: Bool(false)}, false},
		{"mixed kinds never equal", Condition{Attribute: "level", Operator: "==", Value: String("3")}, false},
		{"mixed kinds are unequal", Condition{Attribute: "level", Operator: "!=", Value: String("3")}, true},
		{"missing attribute", Condition{Attribute: "age", Operator: "!=", Value: Number(1)}, false},
		{"unknown operator", Condition{Attribute: "level", Operator: "~=", Value: Number(3)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Matches(attrs))
		})
	}
}

func TestRouter_Resolve_FirstMatchThenDefaultThenStep(t *testing.T) {
	// GIVEN a global rule with one condition and a default
	rules := NewOrderedMap[RoutingRule]()
	rules.Set("by_level", RoutingRule{
		Conditions:         []Condition{{Attribute: "level", Operator: ">=", Value: Number(3), Destination: "senior"}},
		DefaultDestination: "junior",
	})
	rt := NewRouter(rules, resourcesNamed("senior", "junior", "desk"))

	// WHEN entities with different attributes are resolved
	high := rt.Resolve(Attributes{"level": Number(4)}, "desk")
	low := rt.Resolve(Attributes{"level": Number(1)}, "desk")

	// THEN the matching condition, then the default decide
	assert.Equal(t, "senior", high.Destination)
	assert.Equal(t, "by_level", high.Rule)
	assert.Equal(t, "junior", low.Destination)
	assert.Equal(t, "default", low.Reason)
}

func TestRouter_Resolve_NoRules_UsesStepName(t *testing.T) {
	rt := NewRouter(NewOrderedMap[RoutingRule](), resourcesNamed("desk"))
	d := rt.Resolve(Attributes{}, "desk")
	assert.Equal(t, "desk", d.Destination)
	assert.Equal(t, "unrouted", d.Reason)
}

func TestRouter_Resolve_NoMatchNoDefault_UsesStepName(t *testing.T) {
	rules := NewOrderedMap[RoutingRule]()
	rules.Set("r", RoutingRule{Conditions: []Condition{{Attribute: "x", Value: Number(1), Destination: "other"}}})
	rt := NewRouter(rules, resourcesNamed("desk", "other"))

	assert.Equal(t, "desk", rt.Resolve(Attributes{}, "desk").Destination)
}

func TestRouter_Resolve_StepScopedRuleWins(t *testing.T) {
	// GIVEN a global rule and a rule scoped to "triage"
	rules := NewOrderedMap[RoutingRule]()
	rules.Set("global", RoutingRule{DefaultDestination: "a"})
	rules.Set("triage_only", RoutingRule{Step: "triage", DefaultDestination: "b"})
	rt := NewRouter(rules, resourcesNamed("a", "b", "triage", "exam"))

	// THEN the scoped rule decides its step, the global rule the rest
	assert.Equal(t, "b", rt.Resolve(Attributes{}, "triage").Destination)
	assert.Equal(t, "a", rt.Resolve(Attributes{}, "exam").Destination)
}

func TestRouter_After_InsertsByStepOrResource(t *testing.T) {
	// GIVEN post-step rules for a step and a resource
	rules := NewOrderedMap[RoutingRule]()
	rules.Set("after_exam", RoutingRule{
		Conditions: []Condition{{Attribute: "vip", Value: Bool(true), Destination: "lounge"}},
	})
	rules.Set("after_xray", RoutingRule{DefaultDestination: "review"})
	rt := NewRouter(rules, resourcesNamed("exam", "xray", "lounge", "review"))

	// WHEN looked up
	vip, ok := rt.After(Attributes{"vip": Bool(true)}, "exam", "exam")
	assert.True(t, ok)
	assert.Equal(t, "lounge", vip.Destination)

	_, ok = rt.After(Attributes{"vip": Bool(false)}, "exam", "exam")
	assert.False(t, ok, "no match and no default inserts nothing")

	// THEN a step routed to xray picks up after_xray
	d, ok := rt.After(Attributes{}, "imaging", "xray")
	assert.True(t, ok)
	assert.Equal(t, "review", d.Destination)

	// AND post-step rules never act as pre-step rules
	assert.Equal(t, "exam", rt.Resolve(Attributes{}, "exam").Destination)
}
