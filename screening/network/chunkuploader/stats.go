package chunkuploader

import (
	"sync"
	"time"
)

// Stats tracks part upload timings of one Uploader.
type Stats struct {
	sum            time.Duration
	bytes          int64
	finishedChunks int64
	mu             sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful part upload of size bytes that took d.
func (s *Stats) Update(d time.Duration, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.bytes += size
	s.finishedChunks++
}

// Average returns the average upload duration of completed parts.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedChunks == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedChunks)
}

// FinishedCount returns the number of completed part uploads.
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedChunks
}

// BytesPerSecond returns the observed upload throughput, 0 before the first part finishes.
func (s *Stats) BytesPerSecond() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sum <= 0 {
		return 0
	}
	return float64(s.bytes) / s.sum.Seconds()
}
