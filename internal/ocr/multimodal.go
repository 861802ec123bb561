package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ollama"
)

const multimodalPrompt = `Read all visible text in this screenshot.
Respond with JSON only: {"blocks":[{"text":"...","confidence":0.0-1.0,"x":0,"y":0,"width":0,"height":0}]}
Coordinates are pixels in the image. Use one block per line of text.`

// assumed line pitch when the model answers with plain text
const plainTextLineHeight = 24

// ModelClient is the subset of the model server client the engine uses
type ModelClient interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
	HealthCheck(ctx context.Context, model string) error
}

// MultimodalEngine recognizes text by asking a vision-language model
type MultimodalEngine struct {
	client ModelClient
	model  string
	logger *logging.Logger

	mu          sync.RWMutex
	opts        Options
	initialized bool
}

// NewMultimodalEngine creates an engine using the given model
func NewMultimodalEngine(client ModelClient, model string, logger *logging.Logger) *MultimodalEngine {
	return &MultimodalEngine{
		client: client,
		model:  model,
		logger: logging.OrDiscard(logger),
	}
}

// Kind implements Engine
func (e *MultimodalEngine) Kind() EngineKind {
	return EngineMultimodal
}

// Initialize checks that the model server is reachable and has the model
func (e *MultimodalEngine) Initialize(opts Options) error {
	if e.client == nil {
		return ErrEngineUnavailable
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.client.HealthCheck(ctx, e.model); err != nil {
		return fmt.Errorf("multimodal engine unavailable: %w", err)
	}

	e.mu.Lock()
	e.opts = opts
	e.initialized = true
	e.mu.Unlock()

	e.logger.InfoWithContext("Multimodal engine initialized", map[string]interface{}{"model": e.model})
	return nil
}

// Configure implements Engine
func (e *MultimodalEngine) Configure(opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = opts
	return nil
}

// IsInitialized implements Engine
func (e *MultimodalEngine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// ProcessImage sends the frame to the model and parses its answer
func (e *MultimodalEngine) ProcessImage(ctx context.Context, frame *capture.Frame) (*Document, error) {
	if !frame.Valid() {
		return nil, capture.ErrInvalidFrame
	}

	e.mu.RLock()
	opts, ready := e.opts, e.initialized
	e.mu.RUnlock()
	if !ready {
		return nil, ErrEngineUnavailable
	}

	start := time.Now()
	data, scale, err := EncodePNG(frame, opts.Preprocessing)
	if err != nil {
		return nil, err
	}

	prompt := multimodalPrompt
	if opts.Language != "" && opts.Language != "eng" {
		prompt += "\nThe text is mostly in language: " + opts.Language + "."
	}

	out, err := e.client.Generate(ctx, ollama.GenerateRequest{
		Model:  e.model,
		Prompt: prompt,
		Images: [][]byte{data},
		Format: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("multimodal OCR failed: %w", err)
	}

	doc := &Document{}
	doc.SetBlocks(parseModelBlocks(out, scale))
	doc.Duration = time.Since(start)
	doc.CapturedAt = frame.CapturedAt
	doc.Engine = EngineMultimodal
	return doc, nil
}

// SupportedLanguages implements Engine. Vision models are not restricted to
// a fixed language set; these are the ones the prompt has been tuned for.
func (e *MultimodalEngine) SupportedLanguages() []string {
	return []string{"eng", "deu", "fra", "spa", "ita", "por"}
}

// Close implements Engine
func (e *MultimodalEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	return nil
}

type modelBlock struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
}

// parseModelBlocks accepts the JSON shape requested by the prompt and falls
// back to one block per non-empty line for plain-text answers
func parseModelBlocks(out string, scale float64) []TextBlock {
	if scale <= 0 {
		scale = 1
	}

	var parsed struct {
		Blocks []modelBlock `json:"blocks"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &parsed); err == nil {
		blocks := make([]TextBlock, 0, len(parsed.Blocks))
		for _, b := range parsed.Blocks {
			text := strings.TrimSpace(b.Text)
			if text == "" {
				continue
			}
			conf := 0.8
			if b.Confidence != nil {
				conf = clamp01(*b.Confidence)
			}
			blocks = append(blocks, TextBlock{
				Text:       text,
				Confidence: conf,
				Box: BoundingBox{
					X:      int(b.X / scale),
					Y:      int(b.Y / scale),
					Width:  int(b.Width / scale),
					Height: int(b.Height / scale),
				},
			})
		}
		return blocks
	}

	var blocks []TextBlock
	row := 0
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		blocks = append(blocks, TextBlock{
			Text:       line,
			Confidence: 0.8,
			Box:        BoundingBox{Y: row * plainTextLineHeight, Height: plainTextLineHeight},
		})
		row++
	}
	return blocks
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
