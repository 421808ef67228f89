package replication

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inference-sim/queuesim/sim"
)

// Interval is a two-sided Student-t confidence interval for a mean.
type Interval struct {
	Level     float64 `json:"level"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	HalfWidth float64 `json:"half_width"`
}

// MetricSummary describes one metric across replications.
type MetricSummary struct {
	N        int        `json:"n"`
	Mean     float64    `json:"mean"`
	Median   float64    `json:"median"`
	StdDev   float64    `json:"std_dev"`
	Variance float64    `json:"variance"`
	StdErr   float64    `json:"standard_error"`
	Min      float64    `json:"min"`
	Max      float64    `json:"max"`
	P5       float64    `json:"p5"`
	P95      float64    `json:"p95"`
	Outliers int        `json:"outliers"`
	CI       []Interval `json:"confidence_intervals"`
}

// Interval returns the confidence interval computed at level, if any.
func (m MetricSummary) Interval(level float64) (Interval, bool) {
	for _, ci := range m.CI {
		if math.Abs(ci.Level-level) < 1e-9 {
			return ci, true
		}
	}
	return Interval{}, false
}

// Summarize computes sample statistics of values. StdDev is the unbiased (n-1) estimate;
// confidence intervals are only produced for n >= 2.
func Summarize(values []float64, levels []float64) MetricSummary {
	n := len(values)
	s := MetricSummary{N: n}
	if n == 0 {
		return s
	}
	s.Min, s.Max = sim.CalculateMinMax(values)
	s.Median = sim.CalculatePercentile(values, 50)
	s.P5 = sim.CalculatePercentile(values, 5)
	s.P95 = sim.CalculatePercentile(values, 95)
	if n == 1 {
		s.Mean = values[0]
		return s
	}

	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	s.Variance = s.StdDev * s.StdDev
	s.StdErr = s.StdDev / math.Sqrt(float64(n))

	// IQR fences
	q1 := sim.CalculatePercentile(values, 25)
	q3 := sim.CalculatePercentile(values, 75)
	lo, hi := q1-1.5*(q3-q1), q3+1.5*(q3-q1)
	for _, v := range values {
		if v < lo || v > hi {
			s.Outliers++
		}
	}

	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	for _, level := range levels {
		half := t.Quantile(1-(1-level)/2) * s.StdErr
		s.CI = append(s.CI, Interval{
			Level:     level,
			Lower:     s.Mean - half,
			Upper:     s.Mean + half,
			HalfWidth: half,
		})
	}
	return s
}
