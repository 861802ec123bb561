// Package config loads agent.ini and converts it into the settings of each
// pipeline component.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/ollama"
	"jordanella.com/activity-agent/internal/pipeline"
	"jordanella.com/activity-agent/internal/storage"
)

// DefaultPath is where the agent looks for its config file
const DefaultPath = "agent.ini"

// Classifier engine names accepted in [Classifier] Engine
const (
	EngineHeuristic = "heuristic"
	EngineLLM       = "llm"
)

// Config holds every agent setting
type Config struct {
	Capture    CaptureConfig
	Window     WindowConfig
	OCR        OCRConfig
	Classifier ClassifierConfig
	Pipeline   PipelineConfig
	Storage    StorageConfig
	Model      ModelConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

type CaptureConfig struct {
	MaxFPS          float64
	ChangeDetection bool
	ChangeThreshold float64
	TickInterval    time.Duration
}

type WindowConfig struct {
	PollInterval   time.Duration
	CaptureOnFocus bool
}

type OCRConfig struct {
	Mode                string // auto, fast, accurate or multimodal
	Primary             string // engine AUTO uses for normal-sized frames
	Language            string
	ConfidenceThreshold float64
	Preprocessing       bool
	Tesseract           bool
	Multimodal          bool
	Model               string
}

type ClassifierConfig struct {
	Engine             string // heuristic or llm
	Model              string
	LexiconPath        string
	Temperature        float64
	MaxTextLen         int
	MaxDistraction     int
	MinProductiveRatio float64
}

type PipelineConfig struct {
	Workers       int
	QueueSize     int
	FrameInterval int
	MinAlnumRatio float64
	HistorySize   int
	StoreCaptures bool
	StallTimeout  time.Duration
	StopTimeout   time.Duration
}

type StorageConfig struct {
	Path           string
	Thumbnails     bool
	ThumbnailWidth int
	StoreText      bool
	RetentionDays  int
}

type LoggingConfig struct {
	Level    string
	Dir      string
	EventLog bool
}

// ModelConfig is the model server shared by the multimodal OCR engine and
// the LLM classifier
type ModelConfig struct {
	URL        string
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	MaxRetries int
}

type MetricsConfig struct {
	Enabled bool
	Address string
}

// NewDefaultConfig creates a config with default values
func NewDefaultConfig() *Config {
	sched := capture.DefaultSchedulerConfig()
	disp := ocr.DefaultDispatcherConfig()
	engine := classifier.DefaultEngineConfig()
	rules := classifier.DefaultConfig()
	pipe := pipeline.DefaultConfig()
	store := storage.DefaultOptions()

	return &Config{
		Capture: CaptureConfig{
			MaxFPS:          sched.MaxFPS,
			ChangeDetection: sched.ChangeDetection,
			ChangeThreshold: sched.ChangeThreshold,
			TickInterval:    sched.TickInterval,
		},
		Window: WindowConfig{
			PollInterval:   250 * time.Millisecond,
			CaptureOnFocus: pipe.CaptureOnFocus,
		},
		OCR: OCRConfig{
			Mode:                disp.Mode.String(),
			Primary:             disp.Primary.String(),
			Language:            disp.Options.Language,
			ConfidenceThreshold: disp.Options.ConfidenceThreshold,
			Preprocessing:       disp.Options.Preprocessing,
			Tesseract:           true,
			Multimodal:          true,
			Model:               "llava",
		},
		Classifier: ClassifierConfig{
			Engine:             EngineHeuristic,
			Model:              "phi3",
			Temperature:        engine.Temperature,
			MaxTextLen:         engine.MaxTextLen,
			MaxDistraction:     rules.MaxDistraction,
			MinProductiveRatio: rules.MinProductiveRatio,
		},
		Pipeline: PipelineConfig{
			Workers:       pipe.Workers,
			QueueSize:     pipe.QueueSize,
			FrameInterval: pipe.FrameInterval,
			MinAlnumRatio: pipe.MinAlnumRatio,
			HistorySize:   pipe.HistorySize,
			StoreCaptures: pipe.StoreCaptures,
			StallTimeout:  pipe.StallTimeout,
			StopTimeout:   pipe.StopTimeout,
		},
		Storage: StorageConfig{
			Path:           filepath.Join("data", "activity.db"),
			Thumbnails:     store.Thumbnails,
			ThumbnailWidth: int(store.ThumbnailWidth),
			StoreText:      store.StoreText,
			RetentionDays:  30,
		},
		Model: ModelConfig{
			URL:        ollama.DefaultBaseURL,
			Timeout:    60 * time.Second,
			RateLimit:  2,
			MaxRetries: 2,
		},
		Logging: LoggingConfig{
			Level:    string(logging.LogLevelInfo),
			Dir:      "logs",
			EventLog: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: "127.0.0.1:9464",
		},
	}
}

// Validate checks ranges and enum values
func (c *Config) Validate() error {
	if c.Capture.MaxFPS <= 0 {
		return fmt.Errorf("capture: MaxFPS must be positive, got %v", c.Capture.MaxFPS)
	}
	if c.Capture.ChangeThreshold < 0 || c.Capture.ChangeThreshold > 1 {
		return fmt.Errorf("capture: ChangeThreshold must be within [0,1], got %v", c.Capture.ChangeThreshold)
	}
	if _, err := ocr.ParseMode(c.OCR.Mode); err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	if _, ok := ocr.ParseEngineKind(c.OCR.Primary); !ok {
		return fmt.Errorf("ocr: unknown primary engine %q", c.OCR.Primary)
	}
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 1 {
		return fmt.Errorf("ocr: ConfidenceThreshold must be within [0,1], got %v", c.OCR.ConfidenceThreshold)
	}
	if !c.OCR.Tesseract && !c.OCR.Multimodal {
		return fmt.Errorf("ocr: at least one engine must be enabled")
	}
	switch c.Classifier.Engine {
	case EngineHeuristic, EngineLLM:
	default:
		return fmt.Errorf("classifier: unknown engine %q", c.Classifier.Engine)
	}
	if c.Classifier.MinProductiveRatio < 0 || c.Classifier.MinProductiveRatio > 1 {
		return fmt.Errorf("classifier: MinProductiveRatio must be within [0,1], got %v", c.Classifier.MinProductiveRatio)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline: Workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline: QueueSize must be at least 1, got %d", c.Pipeline.QueueSize)
	}
	if c.Pipeline.FrameInterval < 1 {
		return fmt.Errorf("pipeline: FrameInterval must be at least 1, got %d", c.Pipeline.FrameInterval)
	}
	if c.Model.RateLimit < 0 {
		return fmt.Errorf("model: RateLimit must not be negative, got %v", c.Model.RateLimit)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage: Path is required")
	}
	return nil
}

// Scheduler converts the [Capture] section
func (c *Config) Scheduler() capture.SchedulerConfig {
	return capture.SchedulerConfig{
		MaxFPS:          c.Capture.MaxFPS,
		ChangeDetection: c.Capture.ChangeDetection,
		ChangeThreshold: c.Capture.ChangeThreshold,
		TickInterval:    c.Capture.TickInterval,
	}
}

// Dispatcher converts the [OCR] section. Call Validate first.
func (c *Config) Dispatcher() ocr.DispatcherConfig {
	cfg := ocr.DefaultDispatcherConfig()
	if mode, err := ocr.ParseMode(c.OCR.Mode); err == nil {
		cfg.Mode = mode
	}
	if kind, ok := ocr.ParseEngineKind(c.OCR.Primary); ok {
		cfg.Primary = kind
	}
	cfg.Options = ocr.Options{
		Language:            c.OCR.Language,
		ConfidenceThreshold: c.OCR.ConfidenceThreshold,
		Preprocessing:       c.OCR.Preprocessing,
	}
	return cfg
}

// ClassifierEngine converts the engine part of [Classifier]
func (c *Config) ClassifierEngine() classifier.EngineConfig {
	return classifier.EngineConfig{
		Model:       c.Classifier.Model,
		ModelPath:   c.Classifier.LexiconPath,
		Temperature: c.Classifier.Temperature,
		MaxTextLen:  c.Classifier.MaxTextLen,
	}
}

// ClassifierRules converts the rule part of [Classifier]
func (c *Config) ClassifierRules() classifier.Config {
	return classifier.Config{
		MaxDistraction:     c.Classifier.MaxDistraction,
		MinProductiveRatio: c.Classifier.MinProductiveRatio,
	}
}

// Orchestrator converts [Pipeline] plus the focus capture switch
func (c *Config) Orchestrator() pipeline.Config {
	return pipeline.Config{
		FrameInterval:  c.Pipeline.FrameInterval,
		MinAlnumRatio:  c.Pipeline.MinAlnumRatio,
		HistorySize:    c.Pipeline.HistorySize,
		Workers:        c.Pipeline.Workers,
		QueueSize:      c.Pipeline.QueueSize,
		CaptureOnFocus: c.Window.CaptureOnFocus,
		StoreCaptures:  c.Pipeline.StoreCaptures,
		StallTimeout:   c.Pipeline.StallTimeout,
		StopTimeout:    c.Pipeline.StopTimeout,
	}
}

// StoreOptions converts [Storage]
func (c *Config) StoreOptions() storage.Options {
	width := c.Storage.ThumbnailWidth
	if width < 0 {
		width = 0
	}
	return storage.Options{
		Thumbnails:     c.Storage.Thumbnails,
		ThumbnailWidth: uint(width),
		StoreText:      c.Storage.StoreText,
	}
}

// ModelClient converts [Model]
func (c *Config) ModelClient() ollama.Config {
	return ollama.Config{
		BaseURL:    c.Model.URL,
		Timeout:    c.Model.Timeout,
		RateLimit:  c.Model.RateLimit,
		MaxRetries: c.Model.MaxRetries,
	}
}

// Retention is how long stored rows are kept; 0 keeps everything
func (c *Config) Retention() time.Duration {
	if c.Storage.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}
