package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the reporting plugin or the percentage bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastSource string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 5%) or when the source changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Percent can be
// negative to indicate "unknown"; source is trimmed before comparison.
func (s *ProgressSampler) ShouldLog(percent float64, source string) bool {
	if s == nil {
		return true
	}
	source = strings.TrimSpace(source)
	emit := false
	if source != "" && source != s.lastSource {
		s.lastSource = source
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new stage starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastSource = ""
	s.lastBucket = -1
}
