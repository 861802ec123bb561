package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/ollama"
)

func codeDocument() *ocr.Document {
	return ocr.NewDocument([]ocr.TextBlock{{Text: "def calculate(n): return n", Confidence: 0.9}})
}

func TestPostProcessCodeBecomesFocusedWork(t *testing.T) {
	a := ContentAnalysis{ContentType: ContentCode, WorkCategory: CategoryUnknown, Priority: PriorityLow, DistractionLevel: 2}
	PostProcess(&a, DefaultConfig())

	assert.Equal(t, CategoryFocusedWork, a.WorkCategory)
	assert.True(t, a.IsFocusedWork)
	assert.True(t, a.IsProductive)
	assert.GreaterOrEqual(t, a.Priority, PriorityMedium)
}

func TestPostProcessRules(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		name       string
		in         ContentAnalysis
		category   WorkCategory
		priority   Priority
		focused    bool
		productive bool
	}{
		{
			name:     "break time clamps priority",
			in:       ContentAnalysis{ContentType: ContentWebBrowsing, WorkCategory: CategoryBreakTime, Priority: PriorityHigh, DistractionLevel: 5, IsFocusedWork: true},
			category: CategoryBreakTime, priority: PriorityLow,
		},
		{
			name:     "high distraction forces break",
			in:       ContentAnalysis{ContentType: ContentDocument, WorkCategory: CategoryFocusedWork, Priority: PriorityMedium, DistractionLevel: 7, IsFocusedWork: true},
			category: CategoryBreakTime, priority: PriorityMedium,
		},
		{
			name:     "entertainment is a break",
			in:       ContentAnalysis{ContentType: ContentEntertainment, WorkCategory: CategoryLearning, Priority: PriorityVeryLow, DistractionLevel: 5},
			category: CategoryBreakTime, priority: PriorityVeryLow,
		},
		{
			name:     "email is productive communication",
			in:       ContentAnalysis{ContentType: ContentEmail, WorkCategory: CategoryAdministrative, Priority: PriorityMedium, DistractionLevel: 3},
			category: CategoryCommunication, priority: PriorityMedium, productive: true,
		},
		{
			name:     "chat productivity comes from the weighted score",
			in:       ContentAnalysis{ContentType: ContentCommunication, WorkCategory: CategoryUnknown, Priority: PriorityMedium, DistractionLevel: 4},
			category: CategoryCommunication, priority: PriorityMedium,
		},
		{
			name:     "development overrides distraction",
			in:       ContentAnalysis{ContentType: ContentDevelopment, WorkCategory: CategoryUnknown, Priority: PriorityVeryLow, DistractionLevel: 8},
			category: CategoryFocusedWork, priority: PriorityMedium, focused: true, productive: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := tc.in
			PostProcess(&a, cfg)
			assert.Equal(t, tc.category, a.WorkCategory)
			assert.Equal(t, tc.priority, a.Priority)
			assert.Equal(t, tc.focused, a.IsFocusedWork)
			assert.Equal(t, tc.productive, a.IsProductive)

			again := tc.in
			PostProcess(&again, cfg)
			assert.Equal(t, a, again, "post-processing must be deterministic")
		})
	}
}

func activity(ct ContentType, wc WorkCategory, productive bool) ContentAnalysis {
	return ContentAnalysis{ContentType: ct, WorkCategory: wc, IsProductive: productive, Priority: PriorityMedium, DistractionLevel: 2}
}

func TestProductivityScore(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 50, CalculateProductivityScore(nil, cfg))

	best := activity(ContentCode, CategoryFocusedWork, true)
	worst := ContentAnalysis{ContentType: ContentEntertainment, WorkCategory: CategoryBreakTime, Priority: PriorityVeryLow, DistractionLevel: 8}
	assert.InDelta(t, 1.0, ActivityScore(best, cfg), 1e-9)
	assert.InDelta(t, 0.0, ActivityScore(worst, cfg), 1e-9)

	assert.Equal(t, 100, CalculateProductivityScore([]ContentAnalysis{best, best, best}, cfg))
	assert.Equal(t, 0, CalculateProductivityScore([]ContentAnalysis{worst}, cfg))
	// newest weighs 1.5 against the oldest 1.0: 1.5/2.5
	assert.Equal(t, 60, CalculateProductivityScore([]ContentAnalysis{worst, best}, cfg))
	assert.Equal(t, 40, CalculateProductivityScore([]ContentAnalysis{best, worst}, cfg))
}

func TestDetectWorkPatterns(t *testing.T) {
	assert.Empty(t, DetectWorkPatterns([]ContentAnalysis{activity(ContentCode, CategoryFocusedWork, true)}))

	var focused []ContentAnalysis
	for i := 0; i < 9; i++ {
		focused = append(focused, activity(ContentCode, CategoryFocusedWork, true))
	}
	focused = append(focused, activity(ContentEmail, CategoryCommunication, true))

	patterns := DetectWorkPatterns(focused)
	assert.Contains(t, patterns, "Focused on CODE")
	assert.Contains(t, patterns, PatternHighProductivity)
	assert.Contains(t, patterns, PatternDeepWork)
	assert.Contains(t, patterns, PatternNoBreaks)
	assert.NotContains(t, patterns, PatternTaskSwitching)

	switching := []ContentAnalysis{
		activity(ContentCode, CategoryFocusedWork, true),
		activity(ContentSocialMedia, CategoryBreakTime, false),
		activity(ContentCode, CategoryFocusedWork, true),
		activity(ContentSocialMedia, CategoryBreakTime, false),
		activity(ContentEntertainment, CategoryBreakTime, false),
	}
	patterns = DetectWorkPatterns(switching)
	assert.Contains(t, patterns, PatternTaskSwitching)
	assert.Contains(t, patterns, PatternRegularBreaks)
	assert.NotContains(t, patterns, PatternDeepWork)

	idle := []ContentAnalysis{
		activity(ContentNews, CategoryUnknown, false),
		activity(ContentNews, CategoryUnknown, false),
		activity(ContentNews, CategoryUnknown, false),
	}
	patterns = DetectWorkPatterns(idle)
	assert.Contains(t, patterns, PatternLowProductivity)
	assert.NotContains(t, patterns, PatternNoBreaks, "fewer than 10 activities")
}

func TestDeepWorkNeedsFiveConsecutive(t *testing.T) {
	var acts []ContentAnalysis
	for i := 0; i < 4; i++ {
		acts = append(acts, activity(ContentCode, CategoryFocusedWork, true))
	}
	acts = append(acts, activity(ContentEmail, CategoryCommunication, true))
	acts = append(acts, activity(ContentCode, CategoryFocusedWork, true))
	assert.NotContains(t, DetectWorkPatterns(acts), PatternDeepWork)

	acts = append(acts, activity(ContentDocument, CategoryFocusedWork, true))
	acts = append(acts, activity(ContentDocument, CategoryFocusedWork, true))
	acts = append(acts, activity(ContentDocument, CategoryFocusedWork, true))
	acts = append(acts, activity(ContentDocument, CategoryFocusedWork, true))
	assert.Contains(t, DetectWorkPatterns(acts), PatternDeepWork)
}

func TestPredictNextActivity(t *testing.T) {
	assert.Equal(t, ContentUnknown, PredictNextActivity(nil))

	acts := []ContentAnalysis{
		activity(ContentEmail, CategoryCommunication, true),
		activity(ContentEmail, CategoryCommunication, true),
		activity(ContentCode, CategoryFocusedWork, true),
		activity(ContentCode, CategoryFocusedWork, true),
	}
	assert.Equal(t, ContentCode, PredictNextActivity(acts))

	acts = append(acts[:2], activity(ContentCode, CategoryFocusedWork, true))
	assert.Equal(t, ContentEmail, PredictNextActivity(acts))
}

func TestClassifierEndToEndCode(t *testing.T) {
	engine := NewHeuristicEngine(nil)
	require.NoError(t, engine.Initialize(DefaultEngineConfig()))
	c := New(engine, DefaultConfig(), nil)

	a := c.AnalyzeWindow(context.Background(), codeDocument(), "VS Code", "Code.exe")

	assert.Equal(t, ContentCode, a.ContentType)
	assert.Equal(t, CategoryFocusedWork, a.WorkCategory)
	assert.True(t, a.IsProductive)
	assert.True(t, a.IsFocusedWork)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "heuristic", a.Engine)
	assert.Contains(t, a.Keywords, "calculate")
	assert.Greater(t, a.ClassificationConfidence, 0.0)

	s := c.Stats()
	assert.Equal(t, int64(1), s.TotalProcessed)
	assert.Equal(t, int64(1), s.Successful)
}

func TestClassifierSocialMediaIsBreak(t *testing.T) {
	engine := NewHeuristicEngine(nil)
	require.NoError(t, engine.Initialize(DefaultEngineConfig()))
	c := New(engine, DefaultConfig(), nil)

	doc := ocr.NewDocument([]ocr.TextBlock{{Text: "trending posts from people you follow", Confidence: 0.9}})
	a := <-c.AnalyzeWindowAsync(context.Background(), doc, "reddit - Mozilla Firefox", "firefox.exe")

	assert.Equal(t, ContentSocialMedia, a.ContentType)
	assert.Equal(t, CategoryBreakTime, a.WorkCategory)
	assert.False(t, a.IsProductive)
}

func TestClassifierEngineNotReady(t *testing.T) {
	c := New(NewHeuristicEngine(nil), DefaultConfig(), nil)

	a := c.AnalyzeWindow(context.Background(), codeDocument(), "VS Code", "")
	assert.Equal(t, ContentUnknown, a.ContentType)
	assert.Empty(t, a.ID)

	s := c.Stats()
	assert.Equal(t, int64(1), s.TotalProcessed)
	assert.Equal(t, int64(0), s.Successful)
}

func TestLexiconFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
attention_keywords: [invoice]
rules:
  - type: finance
    category: analysis
    priority: high
    distraction: 1
    applications: [ledgerly]
    keywords: [invoice]
`), 0644))

	engine := NewHeuristicEngine(nil)
	require.NoError(t, engine.Initialize(EngineConfig{ModelPath: path}))

	doc := ocr.NewDocument([]ocr.TextBlock{{Text: "Invoice 42 is due", Confidence: 1}})
	a, err := engine.AnalyzeContent(context.Background(), doc, "Ledgerly", "")
	require.NoError(t, err)
	assert.Equal(t, ContentFinance, a.ContentType)
	assert.Equal(t, CategoryAnalysis, a.WorkCategory)
	assert.True(t, a.RequiresAttention)

	_, err = ParseLexicon([]byte("rules:\n  - type: juggling\n"))
	assert.Error(t, err)
}

type fakeModel struct {
	answer string
	err    error
}

func (f *fakeModel) Generate(ctx context.Context, req ollama.GenerateRequest) (string, error) {
	return f.answer, f.err
}

func (f *fakeModel) HealthCheck(ctx context.Context, model string) error { return f.err }

func TestLLMEngineUsesModelAnswer(t *testing.T) {
	model := &fakeModel{answer: `Sure! {"content_type":"design","work_category":"creative","priority":4,"distraction_level":1,"confidence":0.92}`}
	engine := NewLLMEngine(model, nil)
	require.NoError(t, engine.Initialize(EngineConfig{Model: "phi3"}))

	a, err := engine.AnalyzeContent(context.Background(), codeDocument(), "Figma", "")
	require.NoError(t, err)
	assert.Equal(t, ContentDesign, a.ContentType)
	assert.Equal(t, CategoryCreative, a.WorkCategory)
	assert.Equal(t, PriorityHigh, a.Priority)
	assert.InDelta(t, 0.92, a.ClassificationConfidence, 1e-9)
	assert.Equal(t, "llm:phi3", a.Engine)
}

func TestLLMEngineFallsBackToHeuristic(t *testing.T) {
	engine := NewLLMEngine(&fakeModel{err: errors.New("connection refused")}, nil)
	require.NoError(t, engine.Initialize(EngineConfig{Model: "phi3"}))

	a, err := engine.AnalyzeContent(context.Background(), codeDocument(), "VS Code", "")
	require.NoError(t, err)
	assert.Equal(t, ContentCode, a.ContentType)
	assert.Equal(t, "heuristic", a.Engine)

	assert.Error(t, NewLLMEngine(&fakeModel{}, nil).Initialize(EngineConfig{}))
}

func TestEnumParsing(t *testing.T) {
	assert.Equal(t, ContentSocialMedia, ParseContentType("social media"))
	assert.Equal(t, "SOCIAL_MEDIA", ContentSocialMedia.String())
	assert.Equal(t, CategoryBreakTime, ParseWorkCategory("break-time"))
	assert.Equal(t, PriorityCritical, ParsePriority("5"))
	assert.Equal(t, PriorityUnset, ParsePriority("whenever"))
}
