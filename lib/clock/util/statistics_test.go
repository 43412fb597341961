package util

import (
	"math"
	"testing"
)

func TestNewStatsEmpty(t *testing.T) {
	s := NewStats(nil)
	if s != (Stats{}) {
		t.Errorf("Expected zero Stats for empty input, got %+v", s)
	}
}

func TestNewStats(t *testing.T) {
	values := []float64{5, 1, 3, 2, 4}
	s := NewStats(values)

	if s.Count != 5 {
		t.Errorf("Count = %d, want 5", s.Count)
	}
	if s.Min != 1 || s.Max != 5 {
		t.Errorf("Min/Max = %v/%v, want 1/5", s.Min, s.Max)
	}
	if s.Mean != 3 {
		t.Errorf("Mean = %v, want 3", s.Mean)
	}
	if want := math.Sqrt(2); math.Abs(s.StdDeviation-want) > 1e-9 {
		t.Errorf("StdDeviation = %v, want %v", s.StdDeviation, want)
	}
	if s.P50 != 3 {
		t.Errorf("P50 = %v, want 3", s.P50)
	}
	if s.P99 != 5 {
		t.Errorf("P99 = %v, want 5", s.P99)
	}

	// input must not be reordered
	if values[0] != 5 || values[1] != 1 {
		t.Errorf("NewStats modified its input: %v", values)
	}
}

func TestPercentileSingleValue(t *testing.T) {
	s := NewStats([]float64{42})
	if s.P50 != 42 || s.P95 != 42 || s.P99 != 42 {
		t.Errorf("Expected all percentiles to be 42, got %+v", s)
	}
	if s.StdDeviation != 0 {
		t.Errorf("StdDeviation = %v, want 0", s.StdDeviation)
	}
}
