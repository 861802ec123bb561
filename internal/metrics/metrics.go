// Package metrics exposes pipeline health as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/pipeline"
)

const namespace = "activity_agent"

// Sources are read on every scrape. Nil sources are skipped.
type Sources struct {
	Scheduler    func() capture.SchedulerStats
	Pipeline     func() pipeline.Stats
	Productivity func() float64
	BusDropped   func() int64
	Errors       func() map[logging.ErrorCategory]int64
}

// Collectors owns a private registry with the agent's metrics
type Collectors struct {
	registry *prometheus.Registry

	ocrLatency      *prometheus.HistogramVec
	classifyLatency *prometheus.HistogramVec
	activities      *prometheus.CounterVec
}

// New creates the collectors and registers the Go runtime and process
// collectors alongside them
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,
		ocrLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ocr",
				Name:      "duration_seconds",
				Help:      "OCR engine latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"engine", "result"},
		),
		classifyLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "classifier",
				Name:      "duration_seconds",
				Help:      "Content classification latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 10},
			},
			[]string{"engine", "result"},
		),
		activities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "classifier",
				Name:      "activities_total",
				Help:      "Classified activities by content type",
			},
			[]string{"content_type"},
		),
	}
}

// Registry returns the private registry
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveOCR has the signature of ocr.Observer
func (c *Collectors) ObserveOCR(kind ocr.EngineKind, latency time.Duration, err error) {
	c.ocrLatency.WithLabelValues(kind.String(), result(err)).Observe(latency.Seconds())
}

// ObserveClassification is installed with Classifier.SetObserver
func (c *Collectors) ObserveClassification(latency time.Duration, a classifier.ContentAnalysis, err error) {
	engine := a.Engine
	if engine == "" {
		engine = "none"
	}
	c.classifyLatency.WithLabelValues(engine, result(err)).Observe(latency.Seconds())
	if err == nil && !a.IsZero() {
		c.activities.WithLabelValues(a.ContentType.String()).Inc()
	}
}

// Watch registers a collector that snapshots src on every scrape
func (c *Collectors) Watch(src Sources) error {
	return c.registry.Register(newSnapshotCollector(src))
}

// Handler serves the registry in the Prometheus text format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is cancelled
func (c *Collectors) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	logger = logging.OrDiscard(logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoWithContext("Metrics endpoint listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// snapshotCollector turns stats snapshots into const metrics
type snapshotCollector struct {
	src Sources

	captured   *prometheus.Desc
	delivered  *prometheus.Desc
	skipped    *prometheus.Desc
	failed     *prometheus.Desc
	stage      *prometheus.Desc
	dropped    *prometheus.Desc
	queued     *prometheus.Desc
	active     *prometheus.Desc
	history    *prometheus.Desc
	score      *prometheus.Desc
	busDropped *prometheus.Desc
	errs       *prometheus.Desc
}

func newSnapshotCollector(src Sources) *snapshotCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &snapshotCollector{
		src:        src,
		captured:   desc("capture", "frames_captured_total", "Frames grabbed from the capture backend"),
		delivered:  desc("capture", "frames_delivered_total", "Frames that passed change detection"),
		skipped:    desc("capture", "frames_skipped_total", "Frames skipped as unchanged or rate limited"),
		failed:     desc("capture", "frames_failed_total", "Failed capture attempts"),
		stage:      desc("pipeline", "events_total", "Pipeline events by stage outcome", "event"),
		dropped:    desc("pipeline", "tasks_dropped_total", "Tasks rejected by the worker pool"),
		queued:     desc("pipeline", "tasks_queued", "Tasks waiting for a worker"),
		active:     desc("pipeline", "tasks_active", "Tasks currently running"),
		history:    desc("pipeline", "history_size", "Analyses held in memory"),
		score:      desc("pipeline", "productivity_score", "Productivity score over the in-memory history"),
		busDropped: desc("events", "dropped_total", "Events dropped by the event bus"),
		errs:       desc("errors", "reported_total", "Errors reported by category", "category"),
	}
}

func (s *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		s.captured, s.delivered, s.skipped, s.failed, s.stage, s.dropped,
		s.queued, s.active, s.history, s.score, s.busDropped, s.errs,
	} {
		ch <- d
	}
}

func (s *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	if s.src.Scheduler != nil {
		st := s.src.Scheduler()
		counter(s.captured, float64(st.Captured))
		counter(s.delivered, float64(st.Delivered))
		counter(s.skipped, float64(st.Skipped))
		counter(s.failed, float64(st.Failed))
	}

	if s.src.Pipeline != nil {
		st := s.src.Pipeline()
		counter(s.stage, float64(st.WindowEvents), "window_event")
		counter(s.stage, float64(st.FramesReceived), "frame_received")
		counter(s.stage, float64(st.FramesDecimated), "frame_decimated")
		counter(s.stage, float64(st.FocusCaptures), "focus_capture")
		counter(s.stage, float64(st.OCRCompleted), "ocr_completed")
		counter(s.stage, float64(st.TextRejected), "text_rejected")
		counter(s.stage, float64(st.Classified), "classified")
		counter(s.stage, float64(st.ClassifyFailed), "classify_failed")
		counter(s.stage, float64(st.SinkErrors), "sink_error")
		counter(s.dropped, float64(st.TasksDropped))
		gauge(s.queued, float64(st.Pool.Queued))
		gauge(s.active, float64(st.Pool.Active))
		gauge(s.history, float64(st.HistoryLen))
	}

	if s.src.Productivity != nil {
		gauge(s.score, s.src.Productivity())
	}

	if s.src.BusDropped != nil {
		counter(s.busDropped, float64(s.src.BusDropped()))
	}

	if s.src.Errors != nil {
		for cat, n := range s.src.Errors() {
			counter(s.errs, float64(n), string(cat))
		}
	}
}
