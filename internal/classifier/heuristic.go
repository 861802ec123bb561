package classifier

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
)

// Match weights: an application hint is a stronger signal than any single
// word in the OCR text
const (
	applicationWeight = 3.0
	keywordWeight     = 1.0
	markerWeight      = 0.5
)

// HeuristicEngine classifies with a keyword lexicon. It needs no model and
// is always ready once initialized.
type HeuristicEngine struct {
	logger *logging.Logger

	mu      sync.RWMutex
	lexicon *Lexicon
	cfg     EngineConfig
	ready   bool
}

// NewHeuristicEngine creates an engine using the built-in lexicon
func NewHeuristicEngine(logger *logging.Logger) *HeuristicEngine {
	return &HeuristicEngine{
		logger:  logging.OrDiscard(logger),
		lexicon: DefaultLexicon(),
	}
}

// Name implements Engine
func (e *HeuristicEngine) Name() string {
	return "heuristic"
}

// Initialize implements Engine. A ModelPath is loaded as a lexicon file.
func (e *HeuristicEngine) Initialize(cfg EngineConfig) error {
	if cfg.ModelPath != "" {
		if err := e.LoadModel(cfg.ModelPath); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.ready = true
	return nil
}

// LoadModel replaces the lexicon with one read from a YAML file
func (e *HeuristicEngine) LoadModel(path string) error {
	lex, err := LoadLexicon(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.lexicon = lex
	e.mu.Unlock()

	e.logger.InfoWithContext("Lexicon loaded", map[string]interface{}{"path": path, "rules": len(lex.rules)})
	return nil
}

// Ready implements Engine
func (e *HeuristicEngine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// AnalyzeContent scores every lexicon rule against the window context and
// OCR text and returns the raw classification of the best rule
func (e *HeuristicEngine) AnalyzeContent(ctx context.Context, doc *ocr.Document, title, app string) (ContentAnalysis, error) {
	e.mu.RLock()
	lex, cfg, ready := e.lexicon, e.cfg, e.ready
	e.mu.RUnlock()

	if !ready {
		return ContentAnalysis{}, ErrEngineNotReady
	}
	if err := ctx.Err(); err != nil {
		return ContentAnalysis{}, err
	}

	text := truncateRunes(doc.Text(), cfg.MaxTextLen)
	keywords := ocr.KeywordsFromText(text)
	return classifyWithLexicon(lex, text, keywords, title, app), nil
}

func classifyWithLexicon(lex *Lexicon, text string, keywords []string, title, app string) ContentAnalysis {
	windowCtx := strings.ToLower(title + " " + app)
	lowerText := strings.ToLower(text)

	kwSet := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kwSet[kw] = struct{}{}
	}

	var (
		best        *ContentRule
		bestScore   float64
		secondScore float64
		total       float64
	)
	for i := range lex.rules {
		rule := &lex.rules[i]
		score := scoreRule(rule, windowCtx, lowerText, kwSet)
		total += score
		if score > bestScore {
			secondScore = bestScore
			bestScore = score
			best = rule
		} else if score > secondScore {
			secondScore = score
		}
	}

	a := ContentAnalysis{
		Timestamp:         time.Now(),
		Title:             title,
		Application:       app,
		ExtractedText:     text,
		Keywords:          keywords,
		RequiresAttention: lex.RequiresAttention(keywords),
	}
	if best == nil {
		a.Priority = PriorityLow
		a.DistractionLevel = 5
		return a
	}

	a.ContentType = best.contentType
	a.WorkCategory = best.category
	a.Priority = best.priority
	a.DistractionLevel = best.Distraction

	// Confidence grows with the winning margin and with absolute evidence
	margin := (bestScore - secondScore) / bestScore
	evidence := bestScore / (bestScore + applicationWeight)
	a.ClassificationConfidence = clamp01(0.5*margin + 0.5*evidence)
	a.CategoryConfidence = a.ClassificationConfidence
	a.PriorityConfidence = clamp01(bestScore / total)

	if a.RequiresAttention && a.Priority < PriorityHigh {
		a.Priority = PriorityHigh
	}
	return a
}

func scoreRule(rule *ContentRule, windowCtx, lowerText string, keywords map[string]struct{}) float64 {
	var score float64
	for _, hint := range rule.Applications {
		if strings.Contains(windowCtx, hint) {
			score += applicationWeight
			break
		}
	}
	for _, kw := range rule.Keywords {
		if _, ok := keywords[kw]; ok {
			score += keywordWeight
		}
	}
	for _, m := range rule.Markers {
		if strings.Contains(lowerText, m) {
			score += markerWeight
		}
	}
	return score
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
