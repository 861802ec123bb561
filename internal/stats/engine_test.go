package stats

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func TestRecorderRunningMeans(t *testing.T) {
	r := NewRecorder()

	r.Record(10*time.Millisecond, true, 0.9, nil)
	r.Record(20*time.Millisecond, true, 0.7, nil)
	r.Record(30*time.Millisecond, false, 0.1, errors.New("engine crashed"))

	s := r.Snapshot()
	if s.TotalProcessed != 3 || s.Successful != 2 || s.Failed != 1 {
		t.Errorf("Unexpected counts: %+v", s)
	}
	if s.AverageLatency != 20*time.Millisecond {
		t.Errorf("Expected 20ms average latency, got %v", s.AverageLatency)
	}
	if math.Abs(s.AverageConfidence-0.8) > 1e-9 {
		t.Errorf("Expected confidence averaged over successes (0.8), got %v", s.AverageConfidence)
	}
	if s.MinLatency != 10*time.Millisecond || s.MaxLatency != 30*time.Millisecond {
		t.Errorf("Unexpected min/max: %v/%v", s.MinLatency, s.MaxLatency)
	}
	if s.LastError != "engine crashed" || s.ConsecutiveErrors != 1 {
		t.Errorf("Expected last error recorded, got %+v", s)
	}
	if got := s.SuccessRate(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("Expected success rate 2/3, got %v", got)
	}
}

func TestRecorderConcurrentUpdates(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(time.Millisecond, true, 0.5, nil)
		}()
	}
	wg.Wait()

	s := r.Snapshot()
	if s.TotalProcessed != 50 || s.Successful != 50 {
		t.Errorf("Expected 50 successful units, got %+v", s)
	}
	if math.Abs(s.AverageConfidence-0.5) > 1e-9 {
		t.Errorf("Expected confidence 0.5, got %v", s.AverageConfidence)
	}

	r.Reset()
	if r.Snapshot().TotalProcessed != 0 {
		t.Error("Expected reset to clear counters")
	}
}
