// Package stats holds running statistics shared by the OCR and classifier
// engines.
package stats

import (
	"sync"
	"time"
)

// EngineStats is a point-in-time copy of an engine's counters
type EngineStats struct {
	TotalProcessed    int64
	Successful        int64
	Failed            int64
	ConsecutiveErrors int64

	AverageLatency    time.Duration
	MinLatency        time.Duration
	MaxLatency        time.Duration
	AverageConfidence float64 // over successful units only

	LastProcessed time.Time
	LastError     string
	LastErrorTime time.Time
}

// SuccessRate returns Successful/TotalProcessed, 0 when nothing ran
func (s EngineStats) SuccessRate() float64 {
	if s.TotalProcessed == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.TotalProcessed)
}

// Recorder accumulates EngineStats. Means are updated incrementally so
// nothing is recomputed from history. Each Record is one locked update.
type Recorder struct {
	mu          sync.Mutex
	stats       EngineStats
	meanLatency float64 // nanoseconds
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record adds one completed unit of work. Confidence is only folded into the
// average when success is true. err may be nil on unsuccessful units (for
// example an empty result).
func (r *Recorder) Record(latency time.Duration, success bool, confidence float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.stats
	s.TotalProcessed++
	s.LastProcessed = time.Now()

	r.meanLatency += (float64(latency) - r.meanLatency) / float64(s.TotalProcessed)
	s.AverageLatency = time.Duration(r.meanLatency)
	if s.TotalProcessed == 1 || latency < s.MinLatency {
		s.MinLatency = latency
	}
	if latency > s.MaxLatency {
		s.MaxLatency = latency
	}

	if success {
		s.Successful++
		s.ConsecutiveErrors = 0
		s.AverageConfidence += (confidence - s.AverageConfidence) / float64(s.Successful)
	} else {
		s.Failed++
		s.ConsecutiveErrors++
	}

	if err != nil {
		s.LastError = err.Error()
		s.LastErrorTime = s.LastProcessed
	}
}

// Snapshot returns a copy of the current statistics
func (r *Recorder) Snapshot() EngineStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Reset clears all counters
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = EngineStats{}
	r.meanLatency = 0
}
