package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	// GIVEN no trace
	// WHEN summarized
	summary := Summarize(nil)

	// THEN all counts are zero and maps are usable
	assert.Zero(t, summary.TotalDecisions)
	assert.Zero(t, summary.UniqueTargets)
	assert.NotNil(t, summary.TargetDistribution)
	assert.NotNil(t, summary.RenegeByResource)
}

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	assert.Zero(t, summary.TotalDecisions)
	assert.Zero(t, summary.AdmittedCount)
	assert.Zero(t, summary.BalkedCount)
	assert.Zero(t, summary.RenegedCount)
	assert.Zero(t, summary.MeanPatience)
	assert.Empty(t, summary.TargetDistribution)
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with mixed admission, routing and reneging records
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordAdmission(AdmissionRecord{EntityID: "e1", Admitted: true})
	st.RecordAdmission(AdmissionRecord{EntityID: "e2", Admitted: false, Reason: "full"})
	st.RecordAdmission(AdmissionRecord{EntityID: "e3", Admitted: true})
	st.RecordRouting(RoutingRecord{EntityID: "e1", Step: "s", Destination: "fast"})
	st.RecordRouting(RoutingRecord{EntityID: "e3", Step: "s", Destination: "slow"})
	st.RecordRouting(RoutingRecord{EntityID: "e3", Step: "s", Destination: "fast", PostStep: true})
	st.RecordRenege(RenegeRecord{EntityID: "e4", Resource: "slow", Waited: 1})
	st.RecordRenege(RenegeRecord{EntityID: "e5", Resource: "slow", Waited: 3})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts match
	assert.Equal(t, 3, summary.TotalDecisions)
	assert.Equal(t, 2, summary.AdmittedCount)
	assert.Equal(t, 1, summary.BalkedCount)
	assert.Equal(t, 2, summary.UniqueTargets)
	assert.Equal(t, 2, summary.TargetDistribution["fast"])
	assert.Equal(t, 1, summary.InsertedStepsByResource["fast"])
	assert.Equal(t, 2, summary.RenegedCount)
	assert.Equal(t, 2, summary.RenegeByResource["slow"])
	assert.InDelta(t, 2.0, summary.MeanPatience, 1e-9)
}
