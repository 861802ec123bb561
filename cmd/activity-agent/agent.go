package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/config"
	"jordanella.com/activity-agent/internal/events"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/metrics"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/ocr/tesseract"
	"jordanella.com/activity-agent/internal/ollama"
	"jordanella.com/activity-agent/internal/pipeline"
	"jordanella.com/activity-agent/internal/storage"
	"jordanella.com/activity-agent/internal/window"
)

const (
	eventBufferSize = 256
	errorHistory    = 200
	pruneInterval   = time.Hour
)

// agent owns every long-lived component of the process
type agent struct {
	cfg        *config.Config
	configPath string

	logger      *logging.Logger
	logFile     *os.File
	errors      *logging.ErrorReporter
	db          *storage.DB
	store       *storage.Store
	bus         *events.DefaultEventBus
	eventLog    *logging.EventLogger
	dispatcher  *ocr.Dispatcher
	classifier  *classifier.Classifier
	scheduler   *capture.Scheduler
	orch        *pipeline.Orchestrator
	metrics     *metrics.Collectors
	broadcaster *events.Broadcaster

	closeOnce sync.Once
}

func newAgent(cfg *config.Config, configPath string) (*agent, error) {
	a := &agent{cfg: cfg, configPath: configPath}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	var err error

	if err := a.setupLogging(); err != nil {
		return nil, err
	}
	a.errors = logging.NewErrorReporter(a.logger.Named("errors"), errorHistory)

	// Storage
	a.db, err = storage.Open(cfg.Storage.Path, a.logger.Named("storage"))
	if err != nil {
		return nil, err
	}
	if err := a.db.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	a.store = storage.NewStore(a.db, cfg.StoreOptions())

	// Events
	a.bus = events.NewEventBus(eventBufferSize, a.logger.Named("events"))
	a.broadcaster = events.NewBroadcaster(a.bus)
	if cfg.Logging.EventLog {
		a.eventLog, err = logging.NewEventLogger(cfg.Logging.Dir)
		if err != nil {
			return nil, err
		}
		events.LogEvents(a.bus, a.eventLog)
	}
	a.errors.OnError(func(r *logging.ErrorReport) {
		a.broadcaster.OnPipelineError(r.Component, string(r.Category), r.Error)
	})

	model := ollama.NewClient(cfg.ModelClient())

	// OCR
	a.dispatcher = ocr.NewDispatcher(cfg.Dispatcher(), a.logger.Named("ocr"))
	if cfg.OCR.Tesseract {
		a.dispatcher.Register(tesseract.New(a.logger.Named("ocr.tesseract")))
	}
	if cfg.OCR.Multimodal {
		a.dispatcher.Register(ocr.NewMultimodalEngine(model, cfg.OCR.Model, a.logger.Named("ocr.multimodal")))
	}
	if err := a.dispatcher.Initialize(); err != nil {
		a.errors.Report(logging.ErrorCategoryOCR, logging.ErrorSeverityMedium, "agent", "Primary OCR engine unavailable", err, nil)
	}

	// Classification
	var engine classifier.Engine
	switch cfg.Classifier.Engine {
	case config.EngineLLM:
		engine = classifier.NewLLMEngine(model, a.logger.Named("classifier.llm"))
	default:
		engine = classifier.NewHeuristicEngine(a.logger.Named("classifier.heuristic"))
	}
	if err := engine.Initialize(cfg.ClassifierEngine()); err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	a.classifier = classifier.New(engine, cfg.ClassifierRules(), a.logger.Named("classifier"))

	// Capture and window monitoring
	backend := capture.NewPlatformBackend()
	a.scheduler = capture.NewScheduler(backend, cfg.Scheduler(), a.logger.Named("capture"))
	windows := window.NewPollingSource(window.NewPlatformProvider(), cfg.Window.PollInterval, a.logger.Named("window"))

	a.orch, err = pipeline.New(cfg.Orchestrator(), pipeline.Dependencies{
		Frames:     a.scheduler,
		OCR:        a.dispatcher,
		Classifier: a.classifier,
		Window:     windows,
		Backend:    backend,
		Storage:    a.store,
		Notifier:   a.broadcaster,
		Errors:     a.errors,
		Logger:     a.logger.Named("pipeline"),
	})
	if err != nil {
		return nil, err
	}

	// Metrics
	a.metrics = metrics.New()
	a.dispatcher.SetObserver(a.metrics.ObserveOCR)
	a.classifier.SetObserver(a.metrics.ObserveClassification)
	err = a.metrics.Watch(metrics.Sources{
		Scheduler:    a.scheduler.Stats,
		Pipeline:     a.orch.Stats,
		Productivity: func() float64 { return float64(a.orch.Productivity().ProductivityScore) },
		BusDropped:   a.bus.Dropped,
		Errors:       a.errors.Counts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	built = true
	return a, nil
}

func (a *agent) setupLogging() error {
	a.logger = logging.NewLogger("agent").SetMinLevel(logging.ParseLevel(a.cfg.Logging.Level))
	if a.cfg.Logging.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(a.cfg.Logging.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	name := fmt.Sprintf("agent_%s.log", time.Now().Format("2006-01-02_15-04-05"))
	f, err := os.OpenFile(filepath.Join(a.cfg.Logging.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	a.logFile = f
	a.logger.AddOutput(f)
	return nil
}

// Run starts the pipeline and blocks until ctx is cancelled
func (a *agent) Run(ctx context.Context) error {
	if err := a.orch.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if a.cfg.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.metrics.Serve(ctx, a.cfg.Metrics.Address, a.logger.Named("metrics")); err != nil {
				a.errors.Report(logging.ErrorCategoryConfig, logging.ErrorSeverityMedium, "metrics", "Metrics endpoint failed", err, nil)
			}
		}()
	}

	if retention := a.cfg.Retention(); retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.pruneLoop(ctx, retention)
		}()
	}

	if _, err := os.Stat(a.configPath); err == nil {
		watcher, err := config.NewWatcher(a.configPath, a.applyConfig, a.logger.Named("config"))
		if err == nil {
			watcher.WithErrorHandler(func(err error) {
				a.errors.Report(logging.ErrorCategoryConfig, logging.ErrorSeverityLow, "config", "Config reload rejected", err, nil)
			})
			err = watcher.Start(ctx)
		}
		if err != nil {
			a.errors.Report(logging.ErrorCategoryConfig, logging.ErrorSeverityLow, "config", "Live config reload unavailable", err, nil)
		} else {
			defer watcher.Stop()
		}
	}

	a.logger.Info("Agent running, press Ctrl+C to stop")
	<-ctx.Done()
	a.logger.Info("Shutting down")

	err := a.orch.Stop(context.Background())
	wg.Wait()

	report := a.orch.Productivity()
	a.logger.InfoWithContext("Session summary", map[string]interface{}{
		"activities":   report.Activities,
		"productivity": report.ProductivityScore,
		"patterns":     strings.Join(report.Patterns, ","),
	})
	return err
}

// RunOnce pushes a single desktop capture through the pipeline and prints
// the outcome
func (a *agent) RunOnce(ctx context.Context, out io.Writer) error {
	frame, err := a.scheduler.CaptureNow()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	if err := a.orch.SubmitFrame(frame); err != nil {
		return fmt.Errorf("submit frame: %w", err)
	}
	if err := a.orch.Stop(ctx); err != nil {
		return err
	}

	hist := a.orch.History()
	if len(hist) == 0 {
		st := a.orch.Stats()
		fmt.Fprintf(out, "No activity classified (ocr runs: %d, rejected text: %d)\n", st.OCRCompleted, st.TextRejected)
		return nil
	}
	printAnalysis(out, hist[len(hist)-1])
	return nil
}

func printAnalysis(out io.Writer, a classifier.ContentAnalysis) {
	fmt.Fprintf(out, "Window:       %s (%s)\n", a.Title, a.Application)
	fmt.Fprintf(out, "Content:      %s\n", a.ContentType)
	fmt.Fprintf(out, "Category:     %s\n", a.WorkCategory)
	fmt.Fprintf(out, "Priority:     %s\n", a.Priority)
	fmt.Fprintf(out, "Productive:   %t\n", a.IsProductive)
	fmt.Fprintf(out, "Distraction:  %d/10\n", a.DistractionLevel)
	fmt.Fprintf(out, "Confidence:   %.2f\n", a.ClassificationConfidence)
	fmt.Fprintf(out, "Engine:       %s (%s)\n", a.Engine, a.Duration.Round(time.Millisecond))
	if len(a.Keywords) > 0 {
		fmt.Fprintf(out, "Keywords:     %s\n", strings.Join(a.Keywords, ", "))
	}
}

// applyConfig re-applies the settings that can change while running. The
// rest take effect on restart.
func (a *agent) applyConfig(cfg *config.Config) {
	apply := func(what string, err error) {
		if err != nil {
			a.errors.Report(logging.ErrorCategoryConfig, logging.ErrorSeverityLow, "config", "Failed to apply "+what, err, nil)
		}
	}

	a.logger.SetMinLevel(logging.ParseLevel(cfg.Logging.Level))

	apply("max FPS", a.scheduler.SetMaxFPS(cfg.Capture.MaxFPS))
	apply("change threshold", a.scheduler.SetChangeThreshold(cfg.Capture.ChangeThreshold))
	a.scheduler.SetChangeDetection(cfg.Capture.ChangeDetection)

	disp := cfg.Dispatcher()
	if disp.Mode != a.dispatcher.Mode() {
		apply("OCR mode", a.dispatcher.SetOCRMode(disp.Mode))
	}
	apply("OCR language", a.dispatcher.SetLanguage(disp.Options.Language))
	apply("OCR confidence threshold", a.dispatcher.SetConfidenceThreshold(disp.Options.ConfidenceThreshold))
	apply("OCR preprocessing", a.dispatcher.EnablePreprocessing(disp.Options.Preprocessing))

	apply("classifier rules", a.classifier.SetConfig(cfg.ClassifierRules()))

	a.bus.TryPublish(events.NewConfigReloadedEvent(a.configPath))
}

func (a *agent) pruneLoop(ctx context.Context, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		a.prune(ctx, retention)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *agent) prune(ctx context.Context, retention time.Duration) {
	removed, err := a.store.PruneBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() == nil {
			a.errors.Report(logging.ErrorCategoryStorage, logging.ErrorSeverityLow, "retention", "Failed to prune old rows", err, nil)
		}
		return
	}
	if removed == 0 {
		return
	}
	a.logger.InfoWithContext("Pruned old rows", map[string]interface{}{
		"removed":        removed,
		"retention_days": a.cfg.Storage.RetentionDays,
	})
	if err := a.db.Compact(ctx); err != nil && ctx.Err() == nil {
		a.errors.Report(logging.ErrorCategoryStorage, logging.ErrorSeverityLow, "retention", "Failed to compact database", err, nil)
	}
}

// Close releases everything newAgent opened. Safe on a partially built agent.
func (a *agent) Close() {
	a.closeOnce.Do(func() {
		if a.orch != nil {
			_ = a.orch.Stop(context.Background())
		}
		if a.dispatcher != nil {
			_ = a.dispatcher.Close()
		}
		if a.bus != nil {
			a.bus.Stop()
		}
		if a.eventLog != nil {
			_ = a.eventLog.Close()
		}
		if a.db != nil {
			_ = a.db.Close()
		}
		if a.logFile != nil {
			_ = a.logFile.Close()
		}
	})
}
