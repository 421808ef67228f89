package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/queuesim/sim"
	"github.com/inference-sim/queuesim/sim/replication"
	"github.com/inference-sim/queuesim/sim/trace"
)

var (
	configPath   string // Path to the YAML/JSON model
	seed         int64  // Seed of a single run
	logLevel     string // Log verbosity level
	traceLevel   string // Decision trace level
	replications int    // Number of independent replications
	parallel     int    // Max replications in flight
	seedBase     int64  // Seed of the first replication
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "queuesim",
	Short: "Discrete-event simulator for queueing networks",
}

// runCmd executes one simulation and prints its metrics as JSON
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulation of a model",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg := loadModel()
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s (valid: none, decisions)", traceLevel)
		}

		logrus.Infof("Starting simulation of %s with seed %d", configPath, seed)
		startTime := time.Now()
		out, err := runSimulation(cfg, seed, trace.TraceLevel(traceLevel))
		logrus.Infof("Simulation finished in %v", time.Since(startTime))

		if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
			logrus.Fatalf("Writing results: %v", werr)
		}
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
	},
}

// replicateCmd runs independent replications and prints the per-metric summary
var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Run independent replications of a model and summarize them",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		data := readModel()

		report, err := replication.Run(cmd.Context(), replication.FromBytes(data), replication.Options{
			Replications: replications,
			Parallel:     parallel,
			SeedBase:     seedBase,
		})
		if err != nil {
			logrus.Fatalf("Replications failed: %v", err)
		}
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			logrus.Fatalf("Writing report: %v", err)
		}
	},
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

func readModel() []byte {
	if configPath == "" {
		logrus.Fatalf("Model file not provided (--config). Exiting simulation.")
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		logrus.Fatalf("Unable to read model file: %v", err)
	}
	return data
}

func loadModel() *sim.Config {
	cfg, err := sim.ParseConfig(readModel())
	if err != nil {
		logrus.Fatalf("Unable to parse model file %s: %v", configPath, err)
	}
	return cfg
}

// runSimulation executes one run and renders the output mapping. A run id is attached
// on success, and the decision-trace summary when tracing is on. On failure the mapping
// is {"error": message} and the error is also returned.
func runSimulation(cfg *sim.Config, seed int64, level trace.TraceLevel) (map[string]any, error) {
	res, err := sim.Execute(cfg, sim.NewSimulationKey(seed), trace.TraceConfig{Level: level})
	out := sim.ResultMap(res, err)
	if err != nil {
		return out, err
	}
	out["run_id"] = uuid.New().String()
	out["seed"] = seed
	if res.Trace != nil {
		out["trace_summary"] = trace.Summarize(res.Trace)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the model file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for random variate generation")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Decision trace level (none, decisions)")

	replicateCmd.Flags().IntVar(&replications, "replications", 10, "Number of independent replications (2-100)")
	replicateCmd.Flags().IntVar(&parallel, "parallel", 0, "Max replications running at once (0 = GOMAXPROCS)")
	replicateCmd.Flags().Int64Var(&seedBase, "seed-base", 42, "Seed of the first replication; replication i uses seed-base + i*1000")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replicateCmd)
}
