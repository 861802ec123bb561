package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/stats"
)

// Config holds the productivity rule parameters
type Config struct {
	MaxDistraction     int     // distraction levels at or below this count toward productivity
	MinProductiveRatio float64 // weighted score needed to mark an activity productive
}

// DefaultConfig returns the default rule parameters
func DefaultConfig() Config {
	return Config{
		MaxDistraction:     3,
		MinProductiveRatio: 0.6,
	}
}

var productiveContent = map[ContentType]bool{
	ContentDocument:     true,
	ContentCode:         true,
	ContentEmail:        true,
	ContentProductivity: true,
	ContentDevelopment:  true,
	ContentDesign:       true,
	ContentEducation:    true,
	ContentFinance:      true,
}

var focusedCategories = map[WorkCategory]bool{
	CategoryFocusedWork: true,
	CategoryCreative:    true,
	CategoryAnalysis:    true,
}

// ActivityScore is the weighted productivity score of one analysis, in [0,1]
func ActivityScore(a ContentAnalysis, cfg Config) float64 {
	var score float64
	if productiveContent[a.ContentType] {
		score += 0.4
	}
	if focusedCategories[a.WorkCategory] {
		score += 0.3
	}
	if a.DistractionLevel <= cfg.MaxDistraction {
		score += 0.2
	}
	if a.Priority >= PriorityMedium {
		score += 0.1
	}
	return score
}

// PostProcess applies the business rules to a raw classification, in order.
// Later rules override earlier ones; IsProductive is always recomputed last.
func PostProcess(a *ContentAnalysis, cfg Config) {
	if a.WorkCategory == CategoryBreakTime {
		if a.Priority > PriorityLow {
			a.Priority = PriorityLow
		}
		a.IsProductive = false
		a.IsFocusedWork = false
	}

	if a.DistractionLevel > 6 {
		a.IsFocusedWork = false
		a.WorkCategory = CategoryBreakTime
	}

	if a.ContentType == ContentEntertainment || a.ContentType == ContentSocialMedia {
		a.WorkCategory = CategoryBreakTime
		a.IsProductive = false
	}

	if a.ContentType == ContentCode || a.ContentType == ContentDevelopment {
		a.WorkCategory = CategoryFocusedWork
		a.IsFocusedWork = true
		a.IsProductive = true
		if a.Priority < PriorityMedium {
			a.Priority = PriorityMedium
		}
	}

	if a.ContentType == ContentEmail || a.ContentType == ContentCommunication {
		a.WorkCategory = CategoryCommunication
		a.IsProductive = true
	}

	// tolerate float rounding, e.g. 0.3+0.2+0.1 must reach 0.6
	a.IsProductive = ActivityScore(*a, cfg)+1e-9 >= cfg.MinProductiveRatio
}

// Classifier runs an AI engine and enforces the post-processing rules
type Classifier struct {
	engine Engine
	logger *logging.Logger
	stats  *stats.Recorder

	mu       sync.RWMutex
	cfg      Config
	observer func(latency time.Duration, a ContentAnalysis, err error)
}

// New creates a classifier over an initialized engine
func New(engine Engine, cfg Config, logger *logging.Logger) *Classifier {
	return &Classifier{
		engine: engine,
		logger: logging.OrDiscard(logger),
		stats:  stats.NewRecorder(),
		cfg:    cfg,
	}
}

// Config returns the current rule parameters
func (c *Classifier) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetConfig replaces the rule parameters
func (c *Classifier) SetConfig(cfg Config) error {
	if cfg.MaxDistraction < 0 || cfg.MaxDistraction > 10 {
		return fmt.Errorf("max distraction must be within [0,10], got %d", cfg.MaxDistraction)
	}
	if cfg.MinProductiveRatio < 0 || cfg.MinProductiveRatio > 1 {
		return fmt.Errorf("min productive ratio must be within [0,1], got %v", cfg.MinProductiveRatio)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	return nil
}

// SetObserver installs a hook called after every classification
func (c *Classifier) SetObserver(o func(latency time.Duration, a ContentAnalysis, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// EngineName returns the underlying engine's name
func (c *Classifier) EngineName() string {
	if c.engine == nil {
		return ""
	}
	return c.engine.Name()
}

// AnalyzeWindow classifies a document in its window context. When the
// engine is missing, not ready or fails, the result is a zero-value analysis
// carrying only the call duration.
func (c *Classifier) AnalyzeWindow(ctx context.Context, doc *ocr.Document, title, app string) ContentAnalysis {
	start := time.Now()

	c.mu.RLock()
	cfg, observer := c.cfg, c.observer
	c.mu.RUnlock()

	finish := func(a ContentAnalysis, err error) ContentAnalysis {
		a.Duration = time.Since(start)
		c.stats.Record(a.Duration, err == nil && a.ContentType != ContentUnknown, a.ClassificationConfidence, err)
		if observer != nil {
			observer(a.Duration, a, err)
		}
		return a
	}

	if c.engine == nil || !c.engine.Ready() {
		return finish(ContentAnalysis{}, ErrEngineNotReady)
	}

	a, err := c.analyze(ctx, doc, title, app)
	if err != nil {
		c.logger.WarnWithContext("Classification failed", map[string]interface{}{
			"engine": c.engine.Name(),
			"title":  title,
			"error":  err.Error(),
		})
		return finish(ContentAnalysis{}, err)
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if a.Title == "" {
		a.Title = title
	}
	if a.Application == "" {
		a.Application = app
	}
	if a.ExtractedText == "" {
		a.ExtractedText = doc.Text()
	}
	if a.Keywords == nil {
		a.Keywords = ocr.ExtractKeywords(doc)
	}
	if a.Engine == "" {
		a.Engine = c.engine.Name()
	}

	PostProcess(&a, cfg)
	return finish(a, nil)
}

// analyze calls the engine, converting a panic into an error
func (c *Classifier) analyze(ctx context.Context, doc *ocr.Document, title, app string) (a ContentAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s engine panicked: %v", c.engine.Name(), r)
		}
	}()
	return c.engine.AnalyzeContent(ctx, doc, title, app)
}

// AnalyzeWindowAsync runs AnalyzeWindow on a new goroutine. The channel
// receives exactly one analysis and is then closed.
func (c *Classifier) AnalyzeWindowAsync(ctx context.Context, doc *ocr.Document, title, app string) <-chan ContentAnalysis {
	out := make(chan ContentAnalysis, 1)
	go func() {
		defer close(out)
		out <- c.AnalyzeWindow(ctx, doc, title, app)
	}()
	return out
}

// Stats returns classification statistics. Success means a content type
// other than UNKNOWN was assigned; confidence is averaged over successes.
func (c *Classifier) Stats() stats.EngineStats {
	return c.stats.Snapshot()
}
