package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// SizeHistogram tracks the distribution of payload sizes.
// It organizes sizes into buckets for efficient memory usage
// while still providing accurate size estimations.
type SizeHistogram struct {
	mutex      sync.RWMutex
	boundaries []int   // Bucket boundaries covering byte to MB range
	buckets    []int64 // Count of items in each bucket
	count      int64   // Total number of samples
	sum        int64   // Sum of all sampled sizes
	max        int     // Largest sample
}

// NewSizeHistogram creates a new size histogram with default bucket boundaries.
// Sync payloads are small, so the boundaries start at 8 bytes and end at 16 MB
// (the default frame limit).
func NewSizeHistogram() *SizeHistogram {
	boundaries := []int{
		8, 16, 32, 64, 128, 256, 512, // Bytes
		1024, 4096, 16384, 65536, 262144, // KB range
		1048576, 4194304, 16777216, // MB range
	}
	return &SizeHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1), // +1 for larger values
	}
}

// AddSample adds a size sample to the histogram
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) AddSample(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	// Find the appropriate bucket for this size
	bucketIndex := len(h.boundaries) // Last bucket for all larger values
	for i, boundary := range h.boundaries {
		if size <= boundary {
			bucketIndex = i
			break
		}
	}

	h.buckets[bucketIndex]++
	h.count++
	h.sum += int64(size)
	h.max = max(h.max, size)
}

// GetCount returns the total number of samples
func (h *SizeHistogram) GetCount() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Sum returns the sum of all samples
func (h *SizeHistogram) Sum() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

// Max returns the largest sample
func (h *SizeHistogram) Max() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.max
}

// AverageSize returns the average size across all samples
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median size based on the histogram
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// GetPercentileEstimate returns an estimate for the given percentile (0-100)
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	// Calculate target count for percentile
	targetCount := max(1, int64(math.Ceil(float64(h.count)*float64(percentile)/100.0)))
	cumulativeCount := int64(0)

	for i, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount >= targetCount {
			if i == 0 {
				// For the first bucket, estimate as half of the boundary
				return h.boundaries[0] / 2
			} else if i < len(h.boundaries) {
				// For middle buckets, use the average of boundaries
				return (h.boundaries[i-1] + h.boundaries[i]) / 2
			}
			// For the last bucket, estimate as 2x the last boundary
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}

	// Should never reach here
	return int(h.sum / h.count)
}

// SizeDistribution returns the distribution of samples across buckets
// Returns two slices: bucket boundaries and the percentage in each bucket
func (h *SizeHistogram) SizeDistribution() ([]int, []float64) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	percentages := make([]float64, len(h.buckets))
	if h.count == 0 {
		return h.boundaries, percentages
	}
	for i, count := range h.buckets {
		percentages[i] = float64(count) * 100.0 / float64(h.count)
	}
	return h.boundaries, percentages
}

// Reset clears all histogram data
func (h *SizeHistogram) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.count = 0
	h.sum = 0
	h.max = 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}
