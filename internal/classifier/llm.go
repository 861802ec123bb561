package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/ollama"
)

const llmSystemPrompt = `You classify what a computer user is doing from the text on their screen.
Answer with JSON only, using these fields:
{"content_type": one of DOCUMENT, CODE, EMAIL, COMMUNICATION, PRODUCTIVITY, DEVELOPMENT, DESIGN, EDUCATION, FINANCE, WEB_BROWSING, NEWS, SHOPPING, ENTERTAINMENT, SOCIAL_MEDIA, GAMING, UNKNOWN,
 "work_category": one of FOCUSED_WORK, COMMUNICATION, CREATIVE, ANALYSIS, LEARNING, ADMINISTRATIVE, MEETING, BREAK_TIME, UNKNOWN,
 "priority": 1-5,
 "distraction_level": 0-10,
 "requires_attention": true or false,
 "confidence": 0.0-1.0}`

// ModelClient is the subset of the model server client the engine uses
type ModelClient interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
	HealthCheck(ctx context.Context, model string) error
}

// LLMEngine classifies by prompting a local language model. When the model
// is unreachable or answers with something unparseable the heuristic
// classification is returned instead.
type LLMEngine struct {
	client   ModelClient
	fallback *HeuristicEngine
	logger   *logging.Logger

	mu    sync.RWMutex
	cfg   EngineConfig
	ready bool
}

// NewLLMEngine creates an engine for the given client
func NewLLMEngine(client ModelClient, logger *logging.Logger) *LLMEngine {
	logger = logging.OrDiscard(logger)
	return &LLMEngine{
		client:   client,
		fallback: NewHeuristicEngine(logger),
		logger:   logger,
	}
}

// Name implements Engine
func (e *LLMEngine) Name() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cfg.Model == "" {
		return "llm"
	}
	return "llm:" + e.cfg.Model
}

// Initialize implements Engine. The engine is usable even if the model
// server is down; classification then degrades to the heuristic.
func (e *LLMEngine) Initialize(cfg EngineConfig) error {
	if cfg.Model == "" {
		return fmt.Errorf("llm engine requires a model name")
	}
	if err := e.fallback.Initialize(cfg); err != nil {
		return fmt.Errorf("failed to initialize heuristic fallback: %w", err)
	}

	e.mu.Lock()
	e.cfg = cfg
	e.ready = true
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.client.HealthCheck(ctx, cfg.Model); err != nil {
		e.logger.WarnWithContext("Model server check failed, using heuristic until it recovers", map[string]interface{}{
			"model": cfg.Model,
			"error": err.Error(),
		})
	}
	return nil
}

// LoadModel loads a lexicon for the heuristic fallback
func (e *LLMEngine) LoadModel(path string) error {
	return e.fallback.LoadModel(path)
}

// Ready implements Engine
func (e *LLMEngine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// AnalyzeContent implements Engine
func (e *LLMEngine) AnalyzeContent(ctx context.Context, doc *ocr.Document, title, app string) (ContentAnalysis, error) {
	e.mu.RLock()
	cfg, ready := e.cfg, e.ready
	e.mu.RUnlock()
	if !ready {
		return ContentAnalysis{}, ErrEngineNotReady
	}

	heuristic, err := e.fallback.AnalyzeContent(ctx, doc, title, app)
	if err != nil {
		return ContentAnalysis{}, err
	}

	prompt := fmt.Sprintf("Window title: %s\nApplication: %s\nScreen text:\n%s", title, app, heuristic.ExtractedText)
	out, err := e.client.Generate(ctx, ollama.GenerateRequest{
		Model:       cfg.Model,
		System:      llmSystemPrompt,
		Prompt:      prompt,
		Format:      "json",
		Temperature: cfg.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ContentAnalysis{}, ctx.Err()
		}
		e.logger.DebugWithContext("Model unavailable, using heuristic classification", map[string]interface{}{"error": err.Error()})
		heuristic.Engine = e.fallback.Name()
		return heuristic, nil
	}

	analysis, err := mergeModelAnswer(heuristic, out)
	if err != nil {
		e.logger.WarnWithContext("Unparseable model answer, using heuristic classification", map[string]interface{}{"error": err.Error()})
		heuristic.Engine = e.fallback.Name()
		return heuristic, nil
	}
	analysis.Engine = "llm:" + cfg.Model
	return analysis, nil
}

type modelAnswer struct {
	ContentType       string   `json:"content_type"`
	WorkCategory      string   `json:"work_category"`
	Priority          *int     `json:"priority"`
	DistractionLevel  *int     `json:"distraction_level"`
	RequiresAttention *bool    `json:"requires_attention"`
	Confidence        *float64 `json:"confidence"`
}

// mergeModelAnswer overlays the model's fields on the heuristic result.
// Fields the model omitted keep the heuristic value.
func mergeModelAnswer(base ContentAnalysis, out string) (ContentAnalysis, error) {
	out = strings.TrimSpace(out)
	if i := strings.Index(out, "{"); i > 0 {
		out = out[i:]
	}
	if j := strings.LastIndex(out, "}"); j >= 0 && j < len(out)-1 {
		out = out[:j+1]
	}

	var ans modelAnswer
	if err := json.Unmarshal([]byte(out), &ans); err != nil {
		return base, fmt.Errorf("failed to parse model answer: %w", err)
	}

	a := base
	if ct := ParseContentType(ans.ContentType); ct != ContentUnknown {
		a.ContentType = ct
	}
	if wc := ParseWorkCategory(ans.WorkCategory); wc != CategoryUnknown {
		a.WorkCategory = wc
	}
	if ans.Priority != nil && *ans.Priority >= int(PriorityVeryLow) && *ans.Priority <= int(PriorityCritical) {
		a.Priority = Priority(*ans.Priority)
	}
	if ans.DistractionLevel != nil {
		a.DistractionLevel = clampInt(*ans.DistractionLevel, 0, 10)
	}
	if ans.RequiresAttention != nil {
		a.RequiresAttention = *ans.RequiresAttention
	}
	if ans.Confidence != nil {
		c := clamp01(*ans.Confidence)
		a.ClassificationConfidence = c
		a.CategoryConfidence = c
		a.PriorityConfidence = c
	}
	return a, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
