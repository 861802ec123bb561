package ocr

import (
	"context"
	"errors"
	"strings"

	"jordanella.com/activity-agent/internal/capture"
)

// ErrEngineUnavailable is returned when a requested engine is not registered
// or not initialized
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// EngineKind tags an engine implementation
type EngineKind int

const (
	EngineNone EngineKind = iota
	EngineFast            // lightweight local engine (tesseract)
	EngineMultimodal      // vision-language model
)

func (k EngineKind) String() string {
	switch k {
	case EngineFast:
		return "fast"
	case EngineMultimodal:
		return "multimodal"
	default:
		return "none"
	}
}

// ParseEngineKind parses "fast" or "multimodal"
func ParseEngineKind(s string) (EngineKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast", "tesseract":
		return EngineFast, true
	case "multimodal", "accurate", "vision":
		return EngineMultimodal, true
	default:
		return EngineNone, false
	}
}

// Options configures an engine
type Options struct {
	Language            string  // tesseract-style language code, e.g. "eng"
	ConfidenceThreshold float64 // blocks below this are dropped
	Preprocessing       bool    // grayscale + contrast stretch before recognition
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		Language:            "eng",
		ConfidenceThreshold: 0.5,
		Preprocessing:       true,
	}
}

// Engine recognizes text in a frame
type Engine interface {
	Kind() EngineKind
	Initialize(opts Options) error
	// Configure applies options to an already initialized engine
	Configure(opts Options) error
	IsInitialized() bool
	ProcessImage(ctx context.Context, frame *capture.Frame) (*Document, error)
	SupportedLanguages() []string
	Close() error
}
