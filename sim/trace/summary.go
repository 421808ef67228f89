package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions          int
	AdmittedCount           int
	BalkedCount             int
	RenegedCount            int
	PreemptionCount         int
	MeanPatience            float64 // mean time waited before reneging
	UniqueTargets           int
	TargetDistribution      map[string]int // destination resource → count of routing decisions
	RenegeByResource        map[string]int
	InsertedStepsByResource map[string]int // post-step routing insertions per destination
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TargetDistribution:      make(map[string]int),
		RenegeByResource:        make(map[string]int),
		InsertedStepsByResource: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Admissions)
	for _, a := range st.Admissions {
		if a.Admitted {
			summary.AdmittedCount++
		} else {
			summary.BalkedCount++
		}
	}

	for _, r := range st.Routings {
		summary.TargetDistribution[r.Destination]++
		if r.PostStep {
			summary.InsertedStepsByResource[r.Destination]++
		}
	}
	summary.UniqueTargets = len(summary.TargetDistribution)

	if len(st.Renegings) > 0 {
		total := 0.0
		for _, r := range st.Renegings {
			summary.RenegeByResource[r.Resource]++
			total += r.Waited
		}
		summary.RenegedCount = len(st.Renegings)
		summary.MeanPatience = total / float64(len(st.Renegings))
	}
	summary.PreemptionCount = len(st.Preemptions)

	return summary
}
