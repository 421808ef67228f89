// sim/metrics_utils.go
package sim

import (
	"math"
	"sort"
)

type IntOrFloat64 interface {
	int | int64 | float64
}

// CalculateMean is a util function that calculates the mean of a data list.
// Returns 0 for an empty list.
func CalculateMean[T IntOrFloat64](numbers []T) float64 {
	if len(numbers) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, number := range numbers {
		sum += float64(number)
	}
	return sum / float64(len(numbers))
}

// CalculateMinMax returns the smallest and largest element. Both are 0 for an empty list.
func CalculateMinMax[T IntOrFloat64](numbers []T) (lo, hi float64) {
	if len(numbers) == 0 {
		return 0, 0
	}
	lo, hi = float64(numbers[0]), float64(numbers[0])
	for _, n := range numbers[1:] {
		lo = math.Min(lo, float64(n))
		hi = math.Max(hi, float64(n))
	}
	return lo, hi
}

// CalculatePercentile returns the p-th percentile (0-100) of data with linear
// interpolation between closest ranks. data need not be sorted.
func CalculatePercentile[T IntOrFloat64](data []T, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	for i, v := range data {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)

	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if upperIdx >= n {
		return sorted[n-1]
	}
	if lowerIdx == upperIdx {
		return sorted[lowerIdx]
	}
	return sorted[lowerIdx] + (sorted[upperIdx]-sorted[lowerIdx])*(rank-float64(lowerIdx))
}

// round2 rounds to two decimals for reported (not stored) metrics.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
