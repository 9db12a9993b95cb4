package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while keeping the
// signal when phases or percentage buckets change. Encode and search
// progress callbacks fire far more often than anyone wants log lines.
type ProgressSampler struct {
	bucketSize float64
	lastPhase  string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when percent crosses a
// bucket boundary (default 5%) or when the phase label changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Percent may be
// negative to mean "unknown". The message parameter is ignored for
// deduplication since messages often carry volatile fields like ETA.
func (s *ProgressSampler) ShouldLog(percent float64, phase, message string) bool {
	if s == nil {
		return true
	}
	_ = message
	emit := false
	if trimmed := strings.TrimSpace(phase); trimmed != "" && trimmed != s.lastPhase {
		s.lastPhase = trimmed
		s.lastBucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	bucket := int(percent / s.bucketSize)
	if percent >= 100 {
		bucket = int(100 / s.bucketSize)
	}
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		emit = true
	}
	return emit
}

// Reset clears sampler state when a new job starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastPhase = ""
	s.lastBucket = -1
}
