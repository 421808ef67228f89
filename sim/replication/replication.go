// Package replication runs independent replications of one model concurrently and
// summarizes every reported metric across them.
//
// Replication i (zero-based) runs with seed SeedBase + i*SeedStride. Each replication owns
// its own configuration, scheduler, resources and metrics, so runs share no state and the
// summary is identical whatever the degree of parallelism.
package replication

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/queuesim/sim"
	"github.com/inference-sim/queuesim/sim/trace"
)

const (
	// MinReplications is the smallest replication count that yields a spread estimate.
	MinReplications = 2
	// MaxReplications bounds a single request.
	MaxReplications = 100
	// SeedStride separates the seeds of consecutive replications.
	SeedStride = 1000
)

// DefaultConfidenceLevels are used when Options.ConfidenceLevels is empty.
var DefaultConfidenceLevels = []float64{0.90, 0.95, 0.99}

// ErrTooFewSuccessful is returned when fewer than MinReplications runs succeeded.
var ErrTooFewSuccessful = errors.New("too few successful replications")

// ConfigSource produces a fresh, unshared configuration for one replication.
// It is called concurrently.
type ConfigSource func() (*sim.Config, error)

// FromBytes returns a ConfigSource that parses data on every call.
func FromBytes(data []byte) ConfigSource {
	return func() (*sim.Config, error) {
		return sim.ParseConfig(data)
	}
}

// Options controls a replication batch.
type Options struct {
	Replications     int
	Parallel         int // <= 0 uses GOMAXPROCS
	SeedBase         int64
	ConfidenceLevels []float64
	Trace            trace.TraceConfig
}

// Replication is the outcome of one independent run.
type Replication struct {
	ID      string             `json:"id"`
	Number  int                `json:"replication"`
	Seed    int64              `json:"seed"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Report aggregates a replication batch.
type Report struct {
	RunID        string                   `json:"run_id"`
	SeedBase     int64                    `json:"seed_base"`
	Requested    int                      `json:"total_replications"`
	Successful   int                      `json:"successful_replications"`
	Failed       int                      `json:"failed_replications"`
	Levels       []float64                `json:"confidence_levels"`
	Metrics      map[string]MetricSummary `json:"metrics"`
	Replications []Replication            `json:"replications"`
}

// MetricNames returns the summarized metric names in sorted order.
func (r *Report) MetricNames() []string {
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Seed returns the seed of replication i (zero-based).
func Seed(base int64, i int) int64 {
	return base + int64(i)*SeedStride
}

// Run executes opts.Replications independent runs of the model produced by src, at most
// opts.Parallel at a time. The configuration is validated once up front; a *sim.ConfigError
// is returned before any replication starts. Individual run failures are recorded in the
// report. Returns ErrTooFewSuccessful (wrapped) when fewer than two runs succeed, and the
// context error when ctx is cancelled.
func Run(ctx context.Context, src ConfigSource, opts Options) (*Report, error) {
	if opts.Replications < MinReplications || opts.Replications > MaxReplications {
		return nil, fmt.Errorf("replications must be between %d and %d, got %d",
			MinReplications, MaxReplications, opts.Replications)
	}
	if err := precheck(src); err != nil {
		return nil, err
	}
	levels := opts.ConfidenceLevels
	if len(levels) == 0 {
		levels = DefaultConfidenceLevels
	}
	for _, l := range levels {
		if l <= 0 || l >= 1 {
			return nil, fmt.Errorf("confidence level must be in (0, 1), got %v", l)
		}
	}
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}

	runs := make([]Replication, opts.Replications)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range runs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			runs[i] = runOne(src, i, Seed(opts.SeedBase, i), opts.Trace)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:        uuid.New().String(),
		SeedBase:     opts.SeedBase,
		Requested:    opts.Replications,
		Levels:       levels,
		Replications: runs,
	}
	var firstErr string
	for _, r := range runs {
		if r.Error != "" {
			report.Failed++
			if firstErr == "" {
				firstErr = r.Error
			}
			continue
		}
		report.Successful++
	}
	if report.Successful < MinReplications {
		return nil, fmt.Errorf("%w: %d of %d (first failure: %s)",
			ErrTooFewSuccessful, report.Successful, report.Requested, firstErr)
	}
	report.Metrics = summarizeAll(runs, levels)
	logrus.Infof("replication batch %s: %d/%d successful, %d metric(s) summarized",
		report.RunID, report.Successful, report.Requested, len(report.Metrics))
	return report, nil
}

// precheck parses, defaults and validates one copy so configuration mistakes surface once
// instead of once per replication.
func precheck(src ConfigSource) error {
	cfg, err := src()
	if err != nil {
		return err
	}
	if cfg == nil {
		return &sim.ConfigError{Problems: []string{"configuration is required"}}
	}
	cfg.ApplyDefaults()
	return cfg.Validate()
}

func runOne(src ConfigSource, i int, seed int64, tc trace.TraceConfig) Replication {
	r := Replication{ID: uuid.New().String(), Number: i + 1, Seed: seed}
	cfg, err := src()
	if err == nil {
		var res *sim.Results
		res, err = sim.Execute(cfg, sim.NewSimulationKey(seed), tc)
		if err == nil {
			r.Metrics = res.Metrics()
		}
	}
	if err != nil {
		r.Error = err.Error()
		logrus.Warnf("replication %d (seed %d) failed: %v", r.Number, seed, err)
		return r
	}
	logrus.Debugf("replication %d (seed %d) done: %d metric(s)", r.Number, seed, len(r.Metrics))
	return r
}

// summarizeAll collects each metric's values in replication order and summarizes metrics
// observed in at least two successful runs.
func summarizeAll(runs []Replication, levels []float64) map[string]MetricSummary {
	values := make(map[string][]float64)
	for _, r := range runs {
		if r.Error != "" {
			continue
		}
		for name, v := range r.Metrics {
			values[name] = append(values[name], v)
		}
	}
	out := make(map[string]MetricSummary, len(values))
	for name, vs := range values {
		if len(vs) < MinReplications {
			continue
		}
		out[name] = Summarize(vs, levels)
	}
	return out
}
