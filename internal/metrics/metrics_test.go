package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/pipeline"
)

func scrape(t *testing.T, c *Collectors) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserversRecordLatency(t *testing.T) {
	c := New()

	c.ObserveOCR(ocr.EngineFast, 120*time.Millisecond, nil)
	c.ObserveOCR(ocr.EngineMultimodal, 2*time.Second, errors.New("timeout"))
	c.ObserveClassification(3*time.Millisecond, classifier.ContentAnalysis{
		Engine:      "heuristic",
		ContentType: classifier.ContentCode,
		Priority:    classifier.PriorityMedium,
	}, nil)
	c.ObserveClassification(time.Millisecond, classifier.ContentAnalysis{}, classifier.ErrEngineNotReady)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	counts := map[string]uint64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if h := m.GetHistogram(); h != nil {
				counts[mf.GetName()] += h.GetSampleCount()
			}
			if ctr := m.GetCounter(); ctr != nil && mf.GetName() == "activity_agent_classifier_activities_total" {
				assert.Equal(t, 1.0, ctr.GetValue())
			}
		}
	}
	assert.Equal(t, uint64(2), counts["activity_agent_ocr_duration_seconds"])
	assert.Equal(t, uint64(2), counts["activity_agent_classifier_duration_seconds"])

	body := scrape(t, c)
	assert.Contains(t, body, `activity_agent_ocr_duration_seconds_count{engine="multimodal",result="error"} 1`)
	assert.Contains(t, body, `activity_agent_classifier_duration_seconds_count{engine="none",result="error"} 1`)
	assert.Contains(t, body, `activity_agent_classifier_activities_total{content_type="CODE"} 1`)
}

func TestWatchSnapshotsSources(t *testing.T) {
	c := New()

	captured := uint64(10)
	err := c.Watch(Sources{
		Scheduler: func() capture.SchedulerStats {
			return capture.SchedulerStats{Captured: captured, Delivered: 4, Skipped: 6}
		},
		Pipeline: func() pipeline.Stats {
			return pipeline.Stats{Classified: 3, TasksDropped: 1, HistoryLen: 3, Pool: pipeline.PoolStats{Queued: 2}}
		},
		Productivity: func() float64 { return 72.5 },
		BusDropped:   func() int64 { return 5 },
		Errors: func() map[logging.ErrorCategory]int64 {
			return map[logging.ErrorCategory]int64{logging.ErrorCategoryOCR: 2}
		},
	})
	require.NoError(t, err)

	body := scrape(t, c)
	for _, want := range []string{
		"activity_agent_capture_frames_captured_total 10",
		"activity_agent_capture_frames_skipped_total 6",
		`activity_agent_pipeline_events_total{event="classified"} 3`,
		"activity_agent_pipeline_tasks_dropped_total 1",
		"activity_agent_pipeline_tasks_queued 2",
		"activity_agent_pipeline_productivity_score 72.5",
		"activity_agent_events_dropped_total 5",
		`activity_agent_errors_reported_total{category="ocr"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected scrape to contain %q", want)
		}
	}

	captured = 11
	assert.Contains(t, scrape(t, c), "activity_agent_capture_frames_captured_total 11")
}

func TestWatchSkipsNilSources(t *testing.T) {
	c := New()
	require.NoError(t, c.Watch(Sources{}))

	body := scrape(t, c)
	assert.NotContains(t, body, "activity_agent_capture_frames_captured_total")
	assert.Contains(t, body, "go_goroutines")
}
