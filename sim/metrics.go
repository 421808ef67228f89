// Tracks run-wide and per-resource statistics such as arrivals, completions,
// waits, utilization, queue lengths, preemptions and outages.

package sim

import (
	"math"
	"strings"

	"github.com/inference-sim/queuesim/sim/trace"
)

// ResourceStats accumulates per-resource statistics.
type ResourceStats struct {
	BusyTime    float64 // sum of completed service durations
	Served      int     // completed services
	Preemptions int
	Failures    int
	Downtime    float64

	queueArea     float64 // time-weighted integral of queue length since warmup
	queueMax      int
	queueLen      int
	queueLastTime float64
}

// Metrics aggregates statistics about the simulation for final reporting.
// Every Record* call is dropped if its timestamp is before the warmup period,
// which keeps startup transients out of counts and sums.
//
// Thread-safety: NOT thread-safe. Owned by one run.
type Metrics struct {
	Warmup              float64
	CollectWaitTimes    bool
	CollectQueueLengths bool
	CollectUtilization  bool

	Arrived    int
	Served     int
	Balked     int
	Reneged    int
	Dropped    int // entities lost to a runtime fault in their process
	TotalValue float64

	TypeArrivals map[string]int
	WaitTimes    []float64
	Resources    map[string]*ResourceStats
}

// NewMetrics creates a collector for the given (defaulted) statistics settings.
func NewMetrics(stats StatisticsConfig, resources []string) *Metrics {
	m := &Metrics{
		Warmup:              stats.WarmupPeriod,
		CollectWaitTimes:    stats.CollectWaitTimes == nil || *stats.CollectWaitTimes,
		CollectQueueLengths: stats.CollectQueueLengths != nil && *stats.CollectQueueLengths,
		CollectUtilization:  stats.CollectUtilization == nil || *stats.CollectUtilization,
		TypeArrivals:        make(map[string]int),
		WaitTimes:           make([]float64, 0),
		Resources:           make(map[string]*ResourceStats, len(resources)),
	}
	for _, name := range resources {
		m.Resources[name] = &ResourceStats{queueLastTime: m.Warmup}
	}
	return m
}

func (m *Metrics) inWarmup(now float64) bool {
	return now < m.Warmup
}

func (m *Metrics) resource(name string) *ResourceStats {
	rs, ok := m.Resources[name]
	if !ok {
		rs = &ResourceStats{queueLastTime: m.Warmup}
		m.Resources[name] = rs
	}
	return rs
}

// RecordArrival counts an arrival.
func (m *Metrics) RecordArrival(e *Entity, now float64) {
	if m.inWarmup(now) {
		return
	}
	m.Arrived++
	m.TypeArrivals[e.Type]++
}

// RecordBalk counts an entity that declined to join.
func (m *Metrics) RecordBalk(_ *Entity, now float64) {
	if m.inWarmup(now) {
		return
	}
	m.Balked++
}

// RecordServiceStart records the queueing delay of an entity that just got a slot.
func (m *Metrics) RecordServiceStart(_ *Entity, _ string, now, wait float64) {
	if m.inWarmup(now) || !m.CollectWaitTimes {
		return
	}
	m.WaitTimes = append(m.WaitTimes, wait)
}

// RecordServiceComplete adds a finished service to the resource's busy time.
func (m *Metrics) RecordServiceComplete(_ *Entity, resource string, now, service float64) {
	if m.inWarmup(now) {
		return
	}
	rs := m.resource(resource)
	rs.Served++
	rs.BusyTime += service
}

// RecordDeparture counts a served entity and its value.
func (m *Metrics) RecordDeparture(e *Entity, now float64) {
	if m.inWarmup(now) {
		return
	}
	m.Served++
	m.TotalValue += e.Value
}

// RecordReneging counts an entity that abandoned a queue.
func (m *Metrics) RecordReneging(_ *Entity, now float64) {
	if m.inWarmup(now) {
		return
	}
	m.Reneged++
}

// RecordDrop counts an entity whose process faulted.
func (m *Metrics) RecordDrop(_ *Entity, now float64) {
	if m.inWarmup(now) {
		return
	}
	m.Dropped++
}

// RecordPreemption counts an eviction at resource.
func (m *Metrics) RecordPreemption(resource string, now float64) {
	if m.inWarmup(now) {
		return
	}
	m.resource(resource).Preemptions++
}

// RecordRepair counts a completed outage of the given duration.
func (m *Metrics) RecordRepair(resource string, now, downtime float64) {
	if m.inWarmup(now) {
		return
	}
	rs := m.resource(resource)
	rs.Failures++
	rs.Downtime += downtime
}

// RecordQueueLength integrates the queue length of resource over time.
// Only the part of each interval after the warmup period counts.
func (m *Metrics) RecordQueueLength(resource string, now float64, length int) {
	if !m.CollectQueueLengths {
		return
	}
	rs := m.resource(resource)
	m.advanceQueue(rs, now)
	rs.queueLen = length
	if !m.inWarmup(now) && length > rs.queueMax {
		rs.queueMax = length
	}
}

func (m *Metrics) advanceQueue(rs *ResourceStats, now float64) {
	start := math.Max(rs.queueLastTime, m.Warmup)
	if now > start {
		rs.queueArea += float64(rs.queueLen) * (now - start)
	}
	if now > rs.queueLastTime {
		rs.queueLastTime = now
	}
}

// ResourceResult is the per-resource part of Results.
type ResourceResult struct {
	Capacity       int
	Served         int
	BusyTime       float64
	Utilization    float64 // percent of duration × capacity; valid if HasUtilization
	HasUtilization bool
	Preemptive     bool
	Preemptions    int
	HasFailures    bool
	Failures       int
	Downtime       float64
	AvgQueueLength float64
	MaxQueueLength int
}

// WaitStats summarizes recorded queueing delays.
type WaitStats struct {
	Samples int
	Mean    float64
	Min     float64
	Max     float64
	P95     float64
}

// Results is the aggregated outcome of one run. Values are exact; Metrics()
// produces the rounded, labelled output mapping.
type Results struct {
	Names   MetricNames
	EndTime float64

	Arrived    int
	Served     int
	Balked     int
	Reneged    int
	Dropped    int
	TotalValue float64

	Efficiency    float64 // served/arrived × 100; valid if HasEfficiency
	HasEfficiency bool
	AverageValue  float64 // total value / served; valid if HasAverage (needs a positive total)
	HasAverage    bool

	Wait         *WaitStats // nil when wait times are not collected or none were recorded
	QueueLengths bool

	TypeArrivals  map[string]int
	TypeOrder     []string
	Resources     map[string]ResourceResult
	ResourceOrder []string

	Trace *trace.SimulationTrace // nil unless decision tracing was enabled
}

// ResourceInfo describes a resource for result computation.
type ResourceInfo struct {
	Name       string
	Capacity   int
	Preemptive bool
	HasFailure bool
}

// Results computes derived metrics for a run that ended at end.
func (m *Metrics) Results(end float64, names MetricNames, types []string, resources []ResourceInfo) *Results {
	r := &Results{
		Names:        names,
		EndTime:      end,
		Arrived:      m.Arrived,
		Served:       m.Served,
		Balked:       m.Balked,
		Reneged:      m.Reneged,
		Dropped:      m.Dropped,
		TotalValue:   m.TotalValue,
		QueueLengths: m.CollectQueueLengths,
		TypeArrivals: make(map[string]int, len(types)),
		TypeOrder:    append([]string(nil), types...),
		Resources:    make(map[string]ResourceResult, len(resources)),
	}
	for _, t := range types {
		r.TypeArrivals[t] = m.TypeArrivals[t]
	}
	if m.Arrived > 0 {
		r.Efficiency = float64(m.Served) / float64(m.Arrived) * 100
		r.HasEfficiency = true
	}
	if m.Served > 0 && m.TotalValue > 0 {
		r.AverageValue = m.TotalValue / float64(m.Served)
		r.HasAverage = true
	}
	if m.CollectWaitTimes && len(m.WaitTimes) > 0 {
		lo, hi := CalculateMinMax(m.WaitTimes)
		r.Wait = &WaitStats{
			Samples: len(m.WaitTimes),
			Mean:    CalculateMean(m.WaitTimes),
			Min:     lo,
			Max:     hi,
			P95:     CalculatePercentile(m.WaitTimes, 95),
		}
	}

	observed := end - m.Warmup
	for _, info := range resources {
		rs := m.resource(info.Name)
		rr := ResourceResult{
			Capacity:    info.Capacity,
			Served:      rs.Served,
			BusyTime:    rs.BusyTime,
			Preemptive:  info.Preemptive,
			Preemptions: rs.Preemptions,
			HasFailures: info.HasFailure,
			Failures:    rs.Failures,
			Downtime:    rs.Downtime,
		}
		if m.CollectUtilization && end > 0 && info.Capacity > 0 {
			rr.Utilization = rs.BusyTime / (end * float64(info.Capacity)) * 100
			rr.HasUtilization = true
		}
		if m.CollectQueueLengths {
			m.advanceQueue(rs, end)
			if observed > 0 {
				rr.AvgQueueLength = rs.queueArea / observed
			}
			rr.MaxQueueLength = rs.queueMax
		}
		r.Resources[info.Name] = rr
		r.ResourceOrder = append(r.ResourceOrder, info.Name)
	}
	return r
}

// EfficiencyMetric returns the label of the processing-efficiency metric.
func (n MetricNames) EfficiencyMetric() string {
	return n.Served + "_processing_efficiency"
}

// AverageValueMetric returns the label of the average-value metric, derived from
// the value and served labels ("total_value", "entities_served" -> "average_value_per_entities").
func (n MetricNames) AverageValueMetric() string {
	valueBase := strings.ReplaceAll(strings.ReplaceAll(n.Value, "total_", ""), "_", "")
	servedBase := strings.ReplaceAll(strings.ReplaceAll(n.Served, "_served", ""), "_", "")
	return "average_" + valueBase + "_per_" + servedBase
}

// Metrics renders the labelled output mapping. Raw counters are always present;
// derived values are rounded to two decimals and omitted when undefined
// (e.g. efficiency with zero arrivals).
func (r *Results) Metrics() map[string]float64 {
	n := r.Names
	out := map[string]float64{
		n.Arrival + "_count": float64(r.Arrived),
		n.Served + "_count":  float64(r.Served),
		n.Balk + "_count":    float64(r.Balked),
		n.Reneged + "_count": float64(r.Reneged),
		n.Value:              r.TotalValue,
		"entities_dropped":   float64(r.Dropped),
		"simulation_time":    r.EndTime,
	}
	if r.HasEfficiency {
		out[n.EfficiencyMetric()] = round2(r.Efficiency)
	}
	if r.HasAverage {
		out[n.AverageValueMetric()] = round2(r.AverageValue)
	}
	if r.Wait != nil {
		out["average_wait_time"] = round2(r.Wait.Mean)
		out["max_wait_time"] = round2(r.Wait.Max)
		out["min_wait_time"] = round2(r.Wait.Min)
		out["p95_wait_time"] = round2(r.Wait.P95)
	}
	for _, t := range r.TypeOrder {
		out[t+"_arrivals"] = float64(r.TypeArrivals[t])
	}
	for _, name := range r.ResourceOrder {
		rr := r.Resources[name]
		out[name+"_served"] = float64(rr.Served)
		if rr.HasUtilization {
			out[name+"_utilization"] = round2(rr.Utilization)
		}
		if r.QueueLengths {
			out[name+"_avg_queue_length"] = round2(rr.AvgQueueLength)
			out[name+"_max_queue_length"] = float64(rr.MaxQueueLength)
		}
		if rr.Preemptive {
			out[name+"_preemptions"] = float64(rr.Preemptions)
		}
		if rr.HasFailures {
			out[name+"_failures"] = float64(rr.Failures)
			out[name+"_downtime"] = round2(rr.Downtime)
		}
	}
	return out
}
