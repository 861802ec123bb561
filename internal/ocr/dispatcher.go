package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/stats"
)

// LargeFrameBytes is the AUTO-mode cutoff: frames with more raw bytes than a
// 1920x1080 RGBA capture go to the fast engine
const LargeFrameBytes = 1920 * 1080 * 4

// Mode selects how frames are routed to engines
type Mode int

const (
	ModeAuto Mode = iota
	ModeFast
	ModeAccurate
	ModeMultimodal
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "AUTO"
	case ModeFast:
		return "FAST"
	case ModeAccurate:
		return "ACCURATE"
	case ModeMultimodal:
		return "MULTIMODAL"
	default:
		return "UNKNOWN"
	}
}

// ParseMode parses a mode name, case-insensitively
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AUTO", "":
		return ModeAuto, nil
	case "FAST":
		return ModeFast, nil
	case "ACCURATE":
		return ModeAccurate, nil
	case "MULTIMODAL":
		return ModeMultimodal, nil
	default:
		return ModeAuto, fmt.Errorf("unknown OCR mode %q", s)
	}
}

// requiredEngine is the engine kind a fixed mode routes to
func (m Mode) requiredEngine() EngineKind {
	switch m {
	case ModeFast:
		return EngineFast
	case ModeAccurate, ModeMultimodal:
		return EngineMultimodal
	default:
		return EngineNone
	}
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Mode    Mode
	Primary EngineKind // engine used by AUTO for frames up to LargeFrameBytes
	Options Options
}

// DefaultDispatcherConfig returns AUTO mode with the multimodal engine as primary
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Mode:    ModeAuto,
		Primary: EngineMultimodal,
		Options: DefaultOptions(),
	}
}

// Observer is told about every engine invocation
type Observer func(kind EngineKind, latency time.Duration, err error)

// DispatcherStats is a snapshot of dispatcher-wide and per-engine statistics
type DispatcherStats struct {
	Mode    Mode
	Total   stats.EngineStats
	Engines map[EngineKind]stats.EngineStats
}

// Dispatcher routes frames to registered OCR engines. The registry and mode
// are guarded by an RWMutex that is only held while choosing the engine, so
// a mode switch waits for in-progress selections but not for recognition.
type Dispatcher struct {
	logger *logging.Logger

	mu       sync.RWMutex
	engines  map[EngineKind]Engine
	primary  EngineKind
	mode     Mode
	opts     Options
	observer Observer

	total     *stats.Recorder
	perEngine map[EngineKind]*stats.Recorder
}

// NewDispatcher creates a dispatcher with no engines registered
func NewDispatcher(cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if cfg.Primary == EngineNone {
		cfg.Primary = EngineMultimodal
	}
	return &Dispatcher{
		logger:    logging.OrDiscard(logger),
		engines:   make(map[EngineKind]Engine),
		primary:   cfg.Primary,
		mode:      cfg.Mode,
		opts:      cfg.Options,
		total:     stats.NewRecorder(),
		perEngine: make(map[EngineKind]*stats.Recorder),
	}
}

// Register adds an engine under its kind, replacing any previous one
func (d *Dispatcher) Register(engine Engine) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kind := engine.Kind()
	d.engines[kind] = engine
	if _, ok := d.perEngine[kind]; !ok {
		d.perEngine[kind] = stats.NewRecorder()
	}
}

// Initialize initializes every registered engine with the current options.
// Engines that fail stay registered but unusable; the error reports the
// primary engine's failure only.
func (d *Dispatcher) Initialize() error {
	d.mu.RLock()
	engines := d.snapshotEngines()
	opts := d.opts
	primary := d.primary
	d.mu.RUnlock()

	var primaryErr error
	for kind, eng := range engines {
		if err := eng.Initialize(opts); err != nil {
			d.logger.WarnWithContext("OCR engine failed to initialize", map[string]interface{}{
				"engine": kind.String(),
				"error":  err.Error(),
			})
			if kind == primary {
				primaryErr = fmt.Errorf("primary OCR engine %s: %w", kind, err)
			}
			continue
		}
		d.logger.InfoWithContext("OCR engine ready", map[string]interface{}{"engine": kind.String()})
	}
	return primaryErr
}

// SetObserver installs a hook called after every engine invocation
func (d *Dispatcher) SetObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = o
}

// Mode returns the current routing mode
func (d *Dispatcher) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// SetOCRMode switches routing. Fixed modes require their engine to be
// registered and initialized; AUTO requires the primary or the fast engine
// to be live. On failure the mode is unchanged.
func (d *Dispatcher) SetOCRMode(mode Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if mode == ModeAuto {
		_, primaryOK := d.usableLocked(d.primary)
		_, fastOK := d.usableLocked(EngineFast)
		if !primaryOK && !fastOK {
			return fmt.Errorf("cannot switch to %s: neither %s nor %s engine is live: %w", mode, d.primary, EngineFast, ErrEngineUnavailable)
		}
	} else {
		required := mode.requiredEngine()
		if _, registered := d.engines[required]; !registered {
			return fmt.Errorf("cannot switch to %s: %s engine not registered: %w", mode, required, ErrEngineUnavailable)
		}
		if _, ok := d.usableLocked(required); !ok {
			return fmt.Errorf("cannot switch to %s: %s engine not initialized: %w", mode, required, ErrEngineUnavailable)
		}
	}

	if d.mode != mode {
		d.logger.InfoWithContext("OCR mode changed", map[string]interface{}{"from": d.mode.String(), "to": mode.String()})
	}
	d.mode = mode
	return nil
}

// Options returns the current engine options
func (d *Dispatcher) Options() Options {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.opts
}

// SetLanguage changes the recognition language on all live engines
func (d *Dispatcher) SetLanguage(lang string) error {
	if strings.TrimSpace(lang) == "" {
		return fmt.Errorf("language must not be empty")
	}
	return d.reconfigure(func(o *Options) { o.Language = lang })
}

// SetConfidenceThreshold changes the minimum block confidence
func (d *Dispatcher) SetConfidenceThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", threshold)
	}
	return d.reconfigure(func(o *Options) { o.ConfidenceThreshold = threshold })
}

// EnablePreprocessing toggles image preprocessing on all live engines
func (d *Dispatcher) EnablePreprocessing(enabled bool) error {
	return d.reconfigure(func(o *Options) { o.Preprocessing = enabled })
}

func (d *Dispatcher) reconfigure(apply func(*Options)) error {
	d.mu.Lock()
	apply(&d.opts)
	opts := d.opts
	engines := d.snapshotEngines()
	d.mu.Unlock()

	var errs []error
	for kind, eng := range engines {
		if !eng.IsInitialized() {
			continue
		}
		if err := eng.Configure(opts); err != nil {
			errs = append(errs, fmt.Errorf("%s engine: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// SupportedLanguages returns the languages of the engine currently preferred
func (d *Dispatcher) SupportedLanguages() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kind := d.mode.requiredEngine()
	if kind == EngineNone {
		kind = d.primary
	}
	if eng, ok := d.engines[kind]; ok {
		return eng.SupportedLanguages()
	}
	return nil
}

// ExtractText recognizes text in the frame. It never fails: an invalid
// frame, a missing engine or an engine error all yield an empty document.
// If the selected engine errors and another initialized engine exists, the
// frame is retried once on it.
func (d *Dispatcher) ExtractText(ctx context.Context, frame *capture.Frame) *Document {
	start := time.Now()

	if !frame.Valid() {
		d.total.Record(time.Since(start), false, 0, capture.ErrInvalidFrame)
		return emptyDocument(frame, EngineNone, start)
	}

	d.mu.RLock()
	selected, fallback := d.selectLocked(frame)
	threshold := d.opts.ConfidenceThreshold
	observer := d.observer
	d.mu.RUnlock()

	if selected == nil {
		d.total.Record(time.Since(start), false, 0, ErrEngineUnavailable)
		return emptyDocument(frame, EngineNone, start)
	}

	doc, err := d.run(ctx, selected, frame, observer)
	used := selected.Kind()
	if err != nil && fallback != nil && ctx.Err() == nil {
		d.logger.WarnWithContext("OCR engine failed, retrying on fallback", map[string]interface{}{
			"engine":   used.String(),
			"fallback": fallback.Kind().String(),
			"error":    err.Error(),
		})
		doc, err = d.run(ctx, fallback, frame, observer)
		used = fallback.Kind()
	}
	if err != nil {
		d.logger.ErrorWithContext("OCR extraction failed", err, map[string]interface{}{"engine": used.String()})
		d.total.Record(time.Since(start), false, 0, err)
		return emptyDocument(frame, used, start)
	}

	if threshold > 0 {
		kept := make([]TextBlock, 0, doc.Len())
		for _, b := range doc.Blocks() {
			if b.Confidence >= threshold {
				kept = append(kept, b)
			}
		}
		if len(kept) != doc.Len() {
			doc.SetBlocks(kept)
		}
	}

	doc.Engine = used
	doc.Duration = time.Since(start)
	if doc.CapturedAt.IsZero() {
		doc.CapturedAt = frame.CapturedAt
	}

	d.total.Record(doc.Duration, true, doc.Confidence(), nil)
	return doc
}

// ExtractTextAsync runs ExtractText on a new goroutine. The channel receives
// exactly one document and is then closed.
func (d *Dispatcher) ExtractTextAsync(ctx context.Context, frame *capture.Frame) <-chan *Document {
	out := make(chan *Document, 1)
	go func() {
		defer close(out)
		out <- d.ExtractText(ctx, frame)
	}()
	return out
}

// run invokes one engine and records its per-engine statistics
func (d *Dispatcher) run(ctx context.Context, eng Engine, frame *capture.Frame, observer Observer) (doc *Document, err error) {
	start := time.Now()
	kind := eng.Kind()

	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%s engine panicked: %v", kind, r)
		}
		latency := time.Since(start)
		conf := 0.0
		if doc != nil {
			conf = doc.Confidence()
		}
		d.engineRecorder(kind).Record(latency, err == nil, conf, err)
		if observer != nil {
			observer(kind, latency, err)
		}
	}()

	doc, err = eng.ProcessImage(ctx, frame)
	if err == nil && doc == nil {
		doc = &Document{}
	}
	return doc, err
}

// selectLocked picks the engine for a frame and a fallback for when it
// fails. Callers hold d.mu.
func (d *Dispatcher) selectLocked(frame *capture.Frame) (Engine, Engine) {
	var kind EngineKind
	switch d.mode {
	case ModeAuto:
		kind = d.primary
		_, fastOK := d.usableLocked(EngineFast)
		if fastOK && frame.SizeBytes() > LargeFrameBytes {
			kind = EngineFast
		} else if _, ok := d.usableLocked(kind); !ok && fastOK {
			// primary down: AUTO degrades to whatever is live
			kind = EngineFast
		}
	default:
		kind = d.mode.requiredEngine()
	}

	selected, ok := d.usableLocked(kind)
	if !ok {
		return nil, nil
	}

	for other, eng := range d.engines {
		if other != kind && eng.IsInitialized() {
			return selected, eng
		}
	}
	return selected, nil
}

func (d *Dispatcher) usableLocked(kind EngineKind) (Engine, bool) {
	eng, ok := d.engines[kind]
	if !ok || !eng.IsInitialized() {
		return nil, false
	}
	return eng, true
}

func (d *Dispatcher) engineRecorder(kind EngineKind) *stats.Recorder {
	d.mu.RLock()
	r, ok := d.perEngine[kind]
	d.mu.RUnlock()
	if ok {
		return r
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok = d.perEngine[kind]; !ok {
		r = stats.NewRecorder()
		d.perEngine[kind] = r
	}
	return r
}

func (d *Dispatcher) snapshotEngines() map[EngineKind]Engine {
	out := make(map[EngineKind]Engine, len(d.engines))
	for k, v := range d.engines {
		out[k] = v
	}
	return out
}

// Stats returns dispatcher and per-engine statistics
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := DispatcherStats{
		Mode:    d.mode,
		Total:   d.total.Snapshot(),
		Engines: make(map[EngineKind]stats.EngineStats, len(d.perEngine)),
	}
	for kind, r := range d.perEngine {
		out.Engines[kind] = r.Snapshot()
	}
	return out
}

// Close closes every registered engine
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	engines := d.snapshotEngines()
	d.engines = make(map[EngineKind]Engine)
	d.mu.Unlock()

	var errs []error
	for kind, eng := range engines {
		if err := eng.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s engine: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

func emptyDocument(frame *capture.Frame, kind EngineKind, start time.Time) *Document {
	doc := &Document{Engine: kind, Duration: time.Since(start)}
	if frame != nil {
		doc.CapturedAt = frame.CapturedAt
	}
	return doc
}
