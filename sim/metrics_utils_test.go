package sim

import "testing"

func TestCalculatePercentile_EmptyInput_ReturnsZero(t *testing.T) {
	// GIVEN empty float64 slice
	// WHEN CalculatePercentile is called
	result := CalculatePercentile([]float64{}, 99)
	// THEN it returns 0 (not panic)
	if result != 0.0 {
		t.Errorf("expected 0.0 for empty input, got %f", result)
	}

	// Also verify with int64 (generic constraint covers both)
	resultInt := CalculatePercentile([]int64{}, 50)
	if resultInt != 0.0 {
		t.Errorf("expected 0.0 for empty int64 input, got %f", resultInt)
	}
}

func TestCalculatePercentile_InterpolatesUnsortedInput(t *testing.T) {
	// GIVEN unsorted samples 0..4
	data := []float64{4, 0, 3, 1, 2}

	// WHEN the median and 95th percentile are taken
	// THEN ranks interpolate linearly and the input is untouched
	if got := CalculatePercentile(data, 50); got != 2 {
		t.Errorf("p50: got %f, want 2", got)
	}
	if got := CalculatePercentile(data, 95); got < 3.7999 || got > 3.8001 {
		t.Errorf("p95: got %f, want 3.8", got)
	}
	if data[0] != 4 {
		t.Error("input slice was reordered")
	}
}

func TestCalculateMeanAndMinMax(t *testing.T) {
	if got := CalculateMean([]int{1, 2, 3, 6}); got != 3 {
		t.Errorf("mean: got %f, want 3", got)
	}
	if got := CalculateMean([]float64{}); got != 0 {
		t.Errorf("mean of empty: got %f, want 0", got)
	}
	lo, hi := CalculateMinMax([]float64{2.5, -1, 7})
	if lo != -1 || hi != 7 {
		t.Errorf("minmax: got (%f, %f), want (-1, 7)", lo, hi)
	}
}

func TestRound2(t *testing.T) {
	if got := round2(2.675000001); got != 2.68 {
		t.Errorf("round2: got %f", got)
	}
	if got := round2(1.8); got != 1.8 {
		t.Errorf("round2: got %f", got)
	}
}
