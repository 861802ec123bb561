// Package pipeline wires window events and captured frames through OCR and
// classification into the activity history and the output sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/history"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/window"
)

var (
	// ErrAlreadyStarted is returned by Start on a running orchestrator
	ErrAlreadyStarted = errors.New("pipeline already started")
	// ErrStopped is returned by Start after Stop
	ErrStopped = errors.New("pipeline already stopped")
	// ErrMissingDependency is returned by New when a required collaborator is nil
	ErrMissingDependency = errors.New("missing pipeline dependency")
)

// Stage names a pipeline step, used in logs and error reports
type Stage string

const (
	StageWindow   Stage = "window"
	StageCapture  Stage = "capture"
	StageOCR      Stage = "ocr"
	StageClassify Stage = "classify"
	StageSink     Stage = "sink"
)

// FrameSource delivers captured frames
type FrameSource interface {
	StartMonitoring(onFrame capture.FrameHandler) error
	StopMonitoring()
	Stats() capture.SchedulerStats
}

// TextExtractor turns a frame into a document. It always returns a document.
type TextExtractor interface {
	ExtractText(ctx context.Context, frame *capture.Frame) *ocr.Document
}

// ContentAnalyzer classifies a document in its window context
type ContentAnalyzer interface {
	AnalyzeWindow(ctx context.Context, doc *ocr.Document, title, app string) classifier.ContentAnalysis
	Config() classifier.Config
}

// Config holds orchestrator settings
type Config struct {
	FrameInterval  int           // process every Nth delivered frame
	MinAlnumRatio  float64       // share of letters and digits needed to classify text
	HistorySize    int           // analyses kept in memory
	Workers        int           // OCR and classification goroutines
	QueueSize      int           // pending tasks before new ones are dropped
	CaptureOnFocus bool          // capture the window when it gains focus
	StoreCaptures  bool          // persist capture metadata for every processed frame
	StallTimeout   time.Duration // report a stall when nothing is captured this long; 0 disables
	StopTimeout    time.Duration // how long Stop waits for in-flight tasks
}

// DefaultConfig returns the default orchestrator settings
func DefaultConfig() Config {
	return Config{
		FrameInterval:  1,
		MinAlnumRatio:  0.6,
		HistorySize:    history.DefaultCapacity,
		Workers:        4,
		QueueSize:      32,
		CaptureOnFocus: true,
		StoreCaptures:  true,
		StallTimeout:   2 * time.Minute,
		StopTimeout:    10 * time.Second,
	}
}

// Dependencies are the collaborators the orchestrator drives. Frames, OCR and
// Classifier are required; everything else is optional.
type Dependencies struct {
	Frames     FrameSource
	OCR        TextExtractor
	Classifier ContentAnalyzer
	Window     window.Source
	Backend    capture.Backend
	Storage    StorageSink
	Notifier   Notifier
	Errors     *logging.ErrorReporter
	Logger     *logging.Logger
}

// Stats counts work done by the orchestrator
type Stats struct {
	WindowEvents    int64
	FramesReceived  int64
	FramesDecimated int64
	FocusCaptures   int64
	OCRCompleted    int64
	TextRejected    int64
	Classified      int64
	ClassifyFailed  int64
	SinkErrors      int64
	TasksDropped    int64
	HistoryLen      int
	Pool            PoolStats
}

// Orchestrator runs the capture → OCR → classification → sink pipeline
type Orchestrator struct {
	cfg      Config
	frames   FrameSource
	ocr      TextExtractor
	analyzer ContentAnalyzer
	window   window.Source
	backend  capture.Backend
	storage  StorageSink
	notifier Notifier
	errors   *logging.ErrorReporter
	logger   *logging.Logger

	history  *history.History
	pool     *WorkerPool
	watchdog *Watchdog

	mu            sync.RWMutex
	running       bool
	stopped       bool
	cancel        context.CancelFunc
	ctx           context.Context
	currentWindow window.WindowInfo

	frameCounter    atomic.Int64
	windowEvents    atomic.Int64
	framesDecimated atomic.Int64
	focusCaptures   atomic.Int64
	ocrCompleted    atomic.Int64
	textRejected    atomic.Int64
	classified      atomic.Int64
	classifyFailed  atomic.Int64
	sinkErrors      atomic.Int64
	tasksDropped    atomic.Int64
}

// New creates an orchestrator. The worker pool starts immediately; capture
// and window monitoring start with Start.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Frames == nil || deps.OCR == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("%w: frames, OCR and classifier are required", ErrMissingDependency)
	}

	defaults := DefaultConfig()
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = defaults.FrameInterval
	}
	if cfg.MinAlnumRatio < 0 || cfg.MinAlnumRatio > 1 {
		return nil, fmt.Errorf("min alnum ratio must be within [0,1], got %v", cfg.MinAlnumRatio)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaults.StopTimeout
	}

	logger := logging.OrDiscard(deps.Logger)
	o := &Orchestrator{
		cfg:      cfg,
		frames:   deps.Frames,
		ocr:      deps.OCR,
		analyzer: deps.Classifier,
		window:   deps.Window,
		backend:  deps.Backend,
		storage:  deps.Storage,
		notifier: deps.Notifier,
		errors:   deps.Errors,
		logger:   logger,
		history:  history.New(cfg.HistorySize),
		pool:     NewWorkerPool(cfg.Workers, cfg.QueueSize, logger.Named("pool")),
		ctx:      context.Background(),
	}
	if o.storage == nil {
		o.storage = nopStorage{}
	}
	if o.notifier == nil {
		o.notifier = nopNotifier{}
	}
	if o.errors == nil {
		o.errors = logging.NewErrorReporter(logger, 0)
	}
	if cfg.StallTimeout > 0 {
		o.watchdog = NewWatchdog(func() uint64 { return o.frames.Stats().Captured }, cfg.StallTimeout, logger.Named("watchdog")).
			WithUnhealthyCallback(o.onStall)
	}
	return o, nil
}

// Start subscribes to window events and starts the capture loop. An
// unavailable capture backend is reported but does not fail Start; the
// pipeline then only reacts to window events.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	if o.stopped {
		o.mu.Unlock()
		return ErrStopped
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.ctx = runCtx
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	if o.window != nil {
		o.window.OnEvent(o.HandleWindowEvent)
		if err := o.window.Start(runCtx); err != nil {
			o.report(StageWindow, logging.ErrorSeverityMedium, "Window monitoring unavailable", err, nil)
		}
	}

	if err := o.frames.StartMonitoring(o.HandleFrame); err != nil {
		o.report(StageCapture, logging.ErrorSeverityHigh, "Capture monitoring unavailable", err, nil)
	} else if o.watchdog != nil {
		o.watchdog.Start()
	}

	o.logger.InfoWithContext("Pipeline started", map[string]interface{}{
		"workers":        o.cfg.Workers,
		"queue":          o.cfg.QueueSize,
		"frame_interval": o.cfg.FrameInterval,
	})
	return nil
}

// Stop cancels monitoring, joins the capture loop, then closes the worker
// pool and waits for in-flight tasks. Safe to call more than once.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	wasRunning := o.running
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	if wasRunning {
		o.frames.StopMonitoring()
		if o.window != nil {
			o.window.Stop()
		}
		if o.watchdog != nil {
			o.watchdog.Stop()
		}
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, o.cfg.StopTimeout)
	defer stopCancel()
	err := o.pool.Stop(stopCtx)
	if cancel != nil {
		cancel()
	}

	o.logger.InfoWithContext("Pipeline stopped", map[string]interface{}{
		"classified": o.classified.Load(),
		"dropped":    o.tasksDropped.Load(),
	})
	if err != nil {
		return fmt.Errorf("pipeline stop: %w", err)
	}
	return nil
}

// HandleWindowEvent stores and broadcasts a window event. A focus change
// also captures the newly focused window and sends it to OCR.
func (o *Orchestrator) HandleWindowEvent(ev window.WindowEvent) {
	o.windowEvents.Add(1)
	ctx := o.runContext()

	if ev.Type == window.EventFocused || ev.Type == window.EventTitleChanged {
		o.mu.Lock()
		o.currentWindow = ev.Window
		o.mu.Unlock()
	}

	if err := o.storage.StoreWindowEvent(ctx, ev); err != nil {
		o.sinkFailed("store window event", err)
	}
	o.notifier.OnWindowEvent(ev)

	if ev.Type != window.EventFocused || !o.cfg.CaptureOnFocus || o.backend == nil || !o.backend.Available() {
		return
	}

	frame, err := o.backend.CaptureWindow(ev.Window.Handle)
	if err != nil {
		o.report(StageCapture, logging.ErrorSeverityLow, "Focus capture failed", err, map[string]interface{}{"title": ev.Window.Title})
		return
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}
	o.focusCaptures.Add(1)
	o.submitOCR(frame, ev.Window)
}

// HandleFrame receives a frame from the capture loop. Only every
// FrameInterval-th frame is processed. It never blocks on OCR.
func (o *Orchestrator) HandleFrame(frame *capture.Frame) {
	n := o.frameCounter.Add(1)
	if o.watchdog != nil {
		o.watchdog.RecordActivity()
	}
	if n%int64(o.cfg.FrameInterval) != 0 {
		o.framesDecimated.Add(1)
		return
	}
	o.submitOCR(frame, o.activeWindow())
}

func (o *Orchestrator) activeWindow() window.WindowInfo {
	o.mu.RLock()
	win := o.currentWindow
	o.mu.RUnlock()
	if win.Handle != 0 || win.Title != "" || o.window == nil {
		return win
	}
	if active, err := o.window.ActiveWindow(); err == nil {
		return active
	}
	return win
}

// SubmitFrame queues one frame for OCR and classification without frame
// decimation. It fails with ErrPoolFull or ErrPoolClosed when the frame
// cannot be queued.
func (o *Orchestrator) SubmitFrame(frame *capture.Frame) error {
	return o.submitOCR(frame, o.activeWindow())
}

func (o *Orchestrator) submitOCR(frame *capture.Frame, win window.WindowInfo) error {
	err := o.pool.Submit(Task{
		Name: "ocr",
		Run:  func(ctx context.Context) { o.processFrame(ctx, frame, win) },
	})
	if err != nil {
		o.taskDropped(StageOCR, err)
	}
	return err
}

// processFrame runs OCR and, for meaningful text, classification. Both
// stages run on the same worker so Stop drains a frame completely.
func (o *Orchestrator) processFrame(ctx context.Context, frame *capture.Frame, win window.WindowInfo) {
	if o.cfg.StoreCaptures {
		if err := o.storage.StoreScreenCapture(ctx, frame, win); err != nil {
			o.sinkFailed("store screen capture", err)
		}
	}

	doc := o.ocr.ExtractText(ctx, frame)
	o.ocrCompleted.Add(1)

	if doc.Empty() {
		return
	}
	if err := o.storage.StoreOCRResult(ctx, doc, win); err != nil {
		o.sinkFailed("store OCR result", err)
	}
	o.notifier.OnOCRResult(doc, win)

	if !MeaningfulText(doc.Text(), o.cfg.MinAlnumRatio) {
		o.textRejected.Add(1)
		o.logger.DebugWithContext("OCR text not meaningful, skipping classification", map[string]interface{}{
			"blocks": doc.Len(),
		})
		return
	}

	o.classify(ctx, doc, win)
}

func (o *Orchestrator) classify(ctx context.Context, doc *ocr.Document, win window.WindowInfo) {
	a := o.analyzer.AnalyzeWindow(ctx, doc, win.Title, win.ProcessName)
	if a.IsZero() {
		o.classifyFailed.Add(1)
		o.report(StageClassify, logging.ErrorSeverityLow, "Classification produced no result", classifier.ErrEngineNotReady, map[string]interface{}{
			"title": win.Title,
		})
		return
	}

	o.history.Append(a)
	o.classified.Add(1)

	if err := o.storage.StoreAIAnalysis(ctx, a); err != nil {
		o.sinkFailed("store analysis", err)
	}
	o.notifier.OnAIAnalysis(a)
}

// History returns a copy of the recent analyses, oldest first
func (o *Orchestrator) History() []classifier.ContentAnalysis {
	return o.history.Snapshot()
}

// Productivity computes analytics over the current history
func (o *Orchestrator) Productivity() classifier.Report {
	return classifier.Analyze(o.history.Snapshot(), o.analyzer.Config())
}

// Stats returns orchestrator counters
func (o *Orchestrator) Stats() Stats {
	return Stats{
		WindowEvents:    o.windowEvents.Load(),
		FramesReceived:  o.frameCounter.Load(),
		FramesDecimated: o.framesDecimated.Load(),
		FocusCaptures:   o.focusCaptures.Load(),
		OCRCompleted:    o.ocrCompleted.Load(),
		TextRejected:    o.textRejected.Load(),
		Classified:      o.classified.Load(),
		ClassifyFailed:  o.classifyFailed.Load(),
		SinkErrors:      o.sinkErrors.Load(),
		TasksDropped:    o.tasksDropped.Load(),
		HistoryLen:      o.history.Len(),
		Pool:            o.pool.Stats(),
	}
}

// MeaningfulText reports whether text is non-empty and at least minRatio of
// its non-space characters are letters or digits
func MeaningfulText(text string, minRatio float64) bool {
	var total, alnum int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return false
	}
	return float64(alnum)/float64(total) >= minRatio
}

func (o *Orchestrator) runContext() context.Context {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ctx
}

func (o *Orchestrator) onStall(reason string, idle time.Duration, err error) {
	o.report(StageCapture, logging.ErrorSeverityHigh, "Capture stalled", err, map[string]interface{}{"reason": reason})
	if sn, ok := o.notifier.(StallNotifier); ok {
		sn.OnPipelineStalled(idle)
	}
}

func (o *Orchestrator) taskDropped(stage Stage, err error) {
	o.tasksDropped.Add(1)
	o.logger.DebugWithContext("Task dropped", map[string]interface{}{
		"stage": string(stage),
		"error": err.Error(),
	})
}

func (o *Orchestrator) sinkFailed(what string, err error) {
	o.sinkErrors.Add(1)
	o.report(StageSink, logging.ErrorSeverityLow, "Failed to "+what, err, nil)
}

func (o *Orchestrator) report(stage Stage, severity logging.ErrorSeverity, message string, err error, fields map[string]interface{}) {
	o.errors.Report(stageCategory(stage), severity, "pipeline", message, err, fields)
}

func stageCategory(stage Stage) logging.ErrorCategory {
	switch stage {
	case StageWindow:
		return logging.ErrorCategoryWindow
	case StageCapture:
		return logging.ErrorCategoryCapture
	case StageOCR:
		return logging.ErrorCategoryOCR
	case StageClassify:
		return logging.ErrorCategoryClassifier
	case StageSink:
		return logging.ErrorCategoryStorage
	default:
		return logging.ErrorCategoryTask
	}
}
