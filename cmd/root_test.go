package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/queuesim/sim"
	"github.com/inference-sim/queuesim/sim/trace"
)

func modelPath(name string) string {
	return filepath.Join("..", "testdata", "models", name)
}

func TestRunSimulation_MetricsAndRunID(t *testing.T) {
	// GIVEN the single-server fixture
	cfg, err := sim.LoadConfig(modelPath("fifo_five.yaml"))
	require.NoError(t, err)

	// WHEN it runs with seed 42 and tracing off
	out, err := runSimulation(cfg, 42, trace.TraceLevelNone)

	// THEN the mapping carries the metrics plus run metadata, and no trace summary
	require.NoError(t, err)
	assert.Equal(t, 5.0, out["entities_served_count"])
	assert.Equal(t, int64(42), out["seed"])
	assert.NotEmpty(t, out["run_id"])
	assert.NotContains(t, out, "trace_summary")
}

func TestRunSimulation_DecisionTraceSummary(t *testing.T) {
	cfg, err := sim.LoadConfig(modelPath("fifo_five.yaml"))
	require.NoError(t, err)

	out, err := runSimulation(cfg, 42, trace.TraceLevelDecisions)

	require.NoError(t, err)
	summary, ok := out["trace_summary"].(*trace.TraceSummary)
	require.True(t, ok)
	assert.Equal(t, 5, summary.AdmittedCount)
	assert.Equal(t, 0, summary.BalkedCount)
}

func TestRunSimulation_InvalidModel_ErrorMapping(t *testing.T) {
	// GIVEN a model with a step naming an undeclared resource
	cfg, err := sim.ParseConfig([]byte("run_time: 10\nprocessing_rules:\n  steps: [nowhere]\n"))
	require.NoError(t, err)

	// WHEN it runs
	out, err := runSimulation(cfg, 1, trace.TraceLevelNone)

	// THEN the error is returned and rendered as the only key
	require.Error(t, err)
	assert.Len(t, out, 1)
	assert.Contains(t, out["error"], "nowhere")
}

func TestWriteJSON_StdoutRendering(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]any{"entities_served_count": 3.0}))

	var decoded map[string]float64
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3.0, decoded["entities_served_count"])
}

func TestReplicateCommand_WritesReport(t *testing.T) {
	// GIVEN the replicate subcommand pointed at the single-server fixture
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)
	rootCmd.SetArgs([]string{"replicate", "--config", modelPath("fifo_five.yaml"),
		"--replications", "3", "--parallel", "2", "--seed-base", "5"})
	defer rootCmd.SetArgs(nil)

	// WHEN it executes
	require.NoError(t, rootCmd.Execute())

	// THEN stdout holds a JSON report with one entry per replication
	var report struct {
		RunID        string `json:"run_id"`
		Successful   int    `json:"successful_replications"`
		Replications []struct {
			Seed int64 `json:"seed"`
		} `json:"replications"`
		Metrics map[string]json.RawMessage `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Successful)
	require.Len(t, report.Replications, 3)
	assert.Equal(t, int64(1005), report.Replications[1].Seed)
	assert.Contains(t, report.Metrics, "average_wait_time")
}
