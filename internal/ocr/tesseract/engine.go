// Package tesseract provides the fast OCR engine backed by libtesseract.
// It lives apart from package ocr so that only binaries that want local
// recognition pay for the cgo dependency.
package tesseract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
)

// Engine recognizes words with tesseract. A single client is reused across
// calls and guarded by a mutex because the underlying API is not reentrant.
type Engine struct {
	logger *logging.Logger

	mu      sync.Mutex
	client  *gosseract.Client
	opts    ocr.Options
	started bool
}

// New creates an uninitialized tesseract engine
func New(logger *logging.Logger) *Engine {
	return &Engine{logger: logging.OrDiscard(logger)}
}

// Kind implements ocr.Engine
func (e *Engine) Kind() ocr.EngineKind {
	return ocr.EngineFast
}

// Initialize creates the tesseract client
func (e *Engine) Initialize(opts ocr.Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		e.client.Close()
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(languageList(opts.Language)...); err != nil {
		client.Close()
		return fmt.Errorf("failed to set tesseract language %q: %w", opts.Language, err)
	}

	e.client = client
	e.opts = opts
	e.started = true

	e.logger.InfoWithContext("Tesseract engine initialized", map[string]interface{}{
		"language": opts.Language,
		"version":  client.Version(),
	})
	return nil
}

// Configure updates language and thresholds on the live client
func (e *Engine) Configure(opts ocr.Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		e.opts = opts
		return nil
	}
	if opts.Language != e.opts.Language {
		if err := e.client.SetLanguage(languageList(opts.Language)...); err != nil {
			return fmt.Errorf("failed to set tesseract language %q: %w", opts.Language, err)
		}
	}
	e.opts = opts
	return nil
}

// IsInitialized implements ocr.Engine
func (e *Engine) IsInitialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// ProcessImage recognizes word-level blocks in the frame
func (e *Engine) ProcessImage(ctx context.Context, frame *capture.Frame) (*ocr.Document, error) {
	if !frame.Valid() {
		return nil, capture.ErrInvalidFrame
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil, ocr.ErrEngineUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, scale, err := ocr.EncodePNG(frame, e.opts.Preprocessing)
	if err != nil {
		return nil, err
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	words := make([]word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, word{Text: b.Word, Confidence: b.Confidence, Box: b.Box})
	}
	doc := &ocr.Document{}
	doc.SetBlocks(wordBlocks(words, scale))
	doc.Duration = time.Since(start)
	doc.CapturedAt = frame.CapturedAt
	doc.Engine = ocr.EngineFast
	return doc, nil
}

// SupportedLanguages lists installed traineddata files
func (e *Engine) SupportedLanguages() []string {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		e.logger.Warn(fmt.Sprintf("Could not list tesseract languages: %v", err))
		return nil
	}
	return langs
}

// Close releases the tesseract client
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.started = false
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
