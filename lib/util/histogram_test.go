package util

import (
	"math"
	"testing"
)

func TestHistogramEmpty(t *testing.T) {
	h := NewSizeHistogram()

	if h.GetCount() != 0 || h.AverageSize() != 0 || h.MedianEstimate() != 0 {
		t.Errorf("empty histogram should report zeros")
	}
	_, pct := h.SizeDistribution()
	for i, p := range pct {
		if p != 0 {
			t.Errorf("bucket %d: expected 0%%, got %f", i, p)
		}
	}
}

func TestHistogramSamples(t *testing.T) {
	h := NewSizeHistogram()
	for _, size := range []int{4, 10, 10, 100, 2000} {
		h.AddSample(size)
	}

	if h.GetCount() != 5 {
		t.Errorf("expected 5 samples, got %d", h.GetCount())
	}
	if h.Sum() != 2124 {
		t.Errorf("expected sum 2124, got %d", h.Sum())
	}
	if h.Max() != 2000 {
		t.Errorf("expected max 2000, got %d", h.Max())
	}
	if h.AverageSize() != 424 {
		t.Errorf("expected average 424, got %d", h.AverageSize())
	}

	// 3 of 5 samples are <= 16 bytes: the median falls in the (8, 16] bucket
	if m := h.MedianEstimate(); m != 12 {
		t.Errorf("expected median estimate 12, got %d", m)
	}
	if p := h.GetPercentileEstimate(20); p != 4 {
		t.Errorf("expected p20 estimate 4, got %d", p)
	}
	if p := h.GetPercentileEstimate(101); p != 0 {
		t.Errorf("invalid percentile should return 0, got %d", p)
	}

	_, pct := h.SizeDistribution()
	total := 0.0
	for _, p := range pct {
		total += p
	}
	if math.Abs(total-100) > 1e-9 {
		t.Errorf("distribution should sum to 100%%, got %f", total)
	}
}

func TestHistogramOverflowBucket(t *testing.T) {
	h := NewSizeHistogram()
	h.AddSample(1 << 30)

	bounds, _ := h.SizeDistribution()
	if got, want := h.MedianEstimate(), bounds[len(bounds)-1]*2; got != want {
		t.Errorf("expected %d, got %d", want, got)
	}
}

func TestHistogramReset(t *testing.T) {
	h := NewSizeHistogram()
	h.AddSample(42)
	h.Reset()

	if h.GetCount() != 0 || h.Sum() != 0 || h.Max() != 0 {
		t.Error("reset should clear all samples")
	}
}
