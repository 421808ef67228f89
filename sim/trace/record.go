// Package trace provides decision-trace recording for queueing-network runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// AdmissionRecord captures a single balking decision at arrival.
type AdmissionRecord struct {
	EntityID string
	Clock    float64
	Admitted bool
	Reason   string // firing balking rule, empty when admitted
}

// RoutingRecord captures a single routing decision before or after a step.
type RoutingRecord struct {
	EntityID    string
	Clock       float64
	Step        string
	Destination string
	Rule        string // empty when no rule applied
	Reason      string
	PostStep    bool // true for "after_<step>" insertions
}

// RenegeRecord captures an entity abandoning a queue.
type RenegeRecord struct {
	EntityID string
	Clock    float64
	Resource string
	Rule     string
	Waited   float64
}

// PreemptionRecord captures a holder evicted from a preemptive resource.
type PreemptionRecord struct {
	EntityID string
	Clock    float64
	Resource string
	Priority int
}
