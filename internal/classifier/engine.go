package classifier

import (
	"context"

	"jordanella.com/activity-agent/internal/ocr"
)

// EngineConfig configures an AI engine
type EngineConfig struct {
	Model       string  // model name on the model server; empty for heuristic-only engines
	ModelPath   string  // optional lexicon/model file loaded by LoadModel
	Temperature float64 // sampling temperature for model-backed engines
	MaxTextLen  int     // OCR text is truncated to this many runes before analysis
}

// DefaultEngineConfig returns engine defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Temperature: 0.1,
		MaxTextLen:  4000,
	}
}

// Engine produces a raw classification for OCR text plus window context.
// Post-processing rules are applied by the Classifier, not by engines.
type Engine interface {
	Name() string
	Initialize(cfg EngineConfig) error
	LoadModel(path string) error
	Ready() bool
	AnalyzeContent(ctx context.Context, doc *ocr.Document, title, app string) (ContentAnalysis, error)
}
