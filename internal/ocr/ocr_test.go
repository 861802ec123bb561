package ocr

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/ollama"
)

type recordingEngine struct {
	kind        EngineKind
	initialized bool
	initErr     error
	blocks      []TextBlock
	err         error

	mu    sync.Mutex
	calls int
	opts  Options
}

func (e *recordingEngine) Kind() EngineKind { return e.kind }

func (e *recordingEngine) Initialize(opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initErr != nil {
		return e.initErr
	}
	e.initialized = true
	e.opts = opts
	return nil
}

func (e *recordingEngine) Configure(opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = opts
	return nil
}

func (e *recordingEngine) IsInitialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

func (e *recordingEngine) ProcessImage(ctx context.Context, frame *capture.Frame) (*Document, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return NewDocument(e.blocks), nil
}

func (e *recordingEngine) SupportedLanguages() []string { return []string{"eng"} }
func (e *recordingEngine) Close() error                 { return nil }

func (e *recordingEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newTestDispatcher(engines ...*recordingEngine) *Dispatcher {
	d := NewDispatcher(DefaultDispatcherConfig(), nil)
	for _, e := range engines {
		d.Register(e)
	}
	return d
}

func TestDocumentReadingOrder(t *testing.T) {
	doc := NewDocument([]TextBlock{
		{Text: "world", Confidence: 0.9, Box: BoundingBox{X: 120, Y: 12}},
		{Text: "second", Confidence: 0.7, Box: BoundingBox{X: 5, Y: 60}},
		{Text: "hello", Confidence: 0.8, Box: BoundingBox{X: 10, Y: 0}},
		{Text: "line", Confidence: 0.6, Box: BoundingBox{X: 90, Y: 75}},
	})

	assert.Equal(t, "hello world\nsecond line", doc.Text())
	assert.InDelta(t, 0.75, doc.Confidence(), 1e-9)

	doc.AddBlock(TextBlock{Text: "third", Confidence: 0.0, Box: BoundingBox{Y: 200}})
	assert.Equal(t, "hello world\nsecond line\nthird", doc.Text())
	assert.InDelta(t, 0.6, doc.Confidence(), 1e-9)

	assert.Equal(t, OrderText(doc.Blocks()), doc.Text())

	doc.SetBlocks(nil)
	assert.True(t, doc.Empty())
	assert.Equal(t, "", doc.Text())
	assert.Equal(t, 0.0, doc.Confidence())
}

func TestExtractKeywords(t *testing.T) {
	doc := NewDocument([]TextBlock{
		{Text: "The build failed: run the Tests again", Confidence: 1, Box: BoundingBox{Y: 0}},
		{Text: "tests PASSED on go1.23 and ok", Confidence: 1, Box: BoundingBox{Y: 40}},
	})

	first := ExtractKeywords(doc)
	assert.Equal(t, []string{"build", "failed", "run", "tests", "passed", "go1"}, first)
	assert.Equal(t, first, ExtractKeywords(doc))

	for _, kw := range first {
		assert.False(t, IsStopWord(kw), "stop word %q leaked", kw)
		assert.GreaterOrEqual(t, len([]rune(kw)), MinKeywordLength)
	}
	assert.Empty(t, ExtractKeywords(&Document{}))
}

func TestAutoModeRoutesBySize(t *testing.T) {
	fast := &recordingEngine{kind: EngineFast, initialized: true, blocks: []TextBlock{{Text: "fast", Confidence: 0.9}}}
	primary := &recordingEngine{kind: EngineMultimodal, initialized: true, blocks: []TextBlock{{Text: "vlm", Confidence: 0.9}}}
	d := newTestDispatcher(fast, primary)

	large := capture.NewFrame(1921, 1080, capture.FormatRGBA)
	require.Greater(t, large.SizeBytes(), LargeFrameBytes)
	doc := d.ExtractText(context.Background(), large)
	assert.Equal(t, EngineFast, doc.Engine)
	assert.Equal(t, 1, fast.Calls())
	assert.Equal(t, 0, primary.Calls())

	small := capture.NewFrame(1920, 1080, capture.FormatRGBA)
	doc = d.ExtractText(context.Background(), small)
	assert.Equal(t, EngineMultimodal, doc.Engine)
	assert.Equal(t, "vlm", doc.Text())
	assert.Equal(t, 1, primary.Calls())
}

func TestModeSwitchRequiresEngine(t *testing.T) {
	fast := &recordingEngine{kind: EngineFast, initialized: true}
	d := NewDispatcher(DispatcherConfig{Mode: ModeFast, Primary: EngineMultimodal, Options: DefaultOptions()}, nil)
	d.Register(fast)

	err := d.SetOCRMode(ModeAccurate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineUnavailable))
	assert.Equal(t, ModeFast, d.Mode())

	require.NoError(t, d.SetOCRMode(ModeAuto), "AUTO runs on the fast engine while the primary is missing")
	assert.Equal(t, ModeAuto, d.Mode())

	d.Register(&recordingEngine{kind: EngineMultimodal, initialized: true})
	require.NoError(t, d.SetOCRMode(ModeMultimodal))
	assert.Equal(t, ModeMultimodal, d.Mode())
}

func TestModeSwitchRejectsEngineThatFailedToStart(t *testing.T) {
	fast := &recordingEngine{kind: EngineFast, blocks: []TextBlock{{Text: "still reading", Confidence: 0.9}}}
	vlm := &recordingEngine{kind: EngineMultimodal, initErr: errors.New("connection refused")}
	d := NewDispatcher(DispatcherConfig{Mode: ModeFast, Primary: EngineMultimodal, Options: DefaultOptions()}, nil)
	d.Register(fast)
	d.Register(vlm)
	require.Error(t, d.Initialize())

	for _, mode := range []Mode{ModeAccurate, ModeMultimodal} {
		err := d.SetOCRMode(mode)
		require.Error(t, err, "mode %s", mode)
		assert.True(t, errors.Is(err, ErrEngineUnavailable))
		assert.Equal(t, ModeFast, d.Mode())
	}

	doc := d.ExtractText(context.Background(), capture.NewFrame(10, 10, capture.FormatRGBA))
	assert.Equal(t, "still reading", doc.Text())
	assert.Equal(t, 1, fast.Calls())
	assert.Equal(t, 0, vlm.Calls())

	require.NoError(t, d.SetOCRMode(ModeAuto))
	assert.Equal(t, ModeAuto, d.Mode())
}

func TestAutoModeNeedsALiveEngine(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Mode: ModeFast, Primary: EngineMultimodal, Options: DefaultOptions()}, nil)
	d.Register(&recordingEngine{kind: EngineFast, initErr: errors.New("no tessdata")})
	d.Register(&recordingEngine{kind: EngineMultimodal, initErr: errors.New("connection refused")})
	_ = d.Initialize()

	err := d.SetOCRMode(ModeAuto)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineUnavailable))
	assert.Equal(t, ModeFast, d.Mode())
}

func TestExtractTextDegradesToEmptyDocument(t *testing.T) {
	uninit := &recordingEngine{kind: EngineMultimodal}
	d := newTestDispatcher(uninit)

	doc := d.ExtractText(context.Background(), capture.NewFrame(10, 10, capture.FormatRGBA))
	require.NotNil(t, doc)
	assert.True(t, doc.Empty())
	assert.Equal(t, 0, uninit.Calls())

	doc = d.ExtractText(context.Background(), &capture.Frame{})
	assert.True(t, doc.Empty())

	s := d.Stats()
	assert.Equal(t, int64(2), s.Total.TotalProcessed)
	assert.Equal(t, int64(0), s.Total.Successful)
}

func TestExtractTextFallsBackOnEngineError(t *testing.T) {
	primary := &recordingEngine{kind: EngineMultimodal, initialized: true, err: errors.New("model server down")}
	fast := &recordingEngine{kind: EngineFast, initialized: true, blocks: []TextBlock{{Text: "recovered", Confidence: 0.9}}}
	d := newTestDispatcher(primary, fast)

	doc := d.ExtractText(context.Background(), capture.NewFrame(10, 10, capture.FormatRGBA))
	assert.Equal(t, "recovered", doc.Text())
	assert.Equal(t, EngineFast, doc.Engine)
	assert.Equal(t, 1, primary.Calls())

	s := d.Stats()
	assert.Equal(t, int64(1), s.Engines[EngineMultimodal].Failed)
	assert.Equal(t, int64(1), s.Engines[EngineFast].Successful)
	assert.Equal(t, int64(1), s.Total.Successful)
}

func TestConfidenceThresholdFiltersBlocks(t *testing.T) {
	eng := &recordingEngine{kind: EngineMultimodal, initialized: true, blocks: []TextBlock{
		{Text: "clear", Confidence: 0.95},
		{Text: "smudge", Confidence: 0.2, Box: BoundingBox{X: 50}},
	}}
	d := newTestDispatcher(eng)
	require.NoError(t, d.SetConfidenceThreshold(0.5))
	assert.Error(t, d.SetConfidenceThreshold(2))

	doc := d.ExtractText(context.Background(), capture.NewFrame(10, 10, capture.FormatRGBA))
	assert.Equal(t, "clear", doc.Text())
	assert.InDelta(t, 0.95, doc.Confidence(), 1e-9)
}

func TestReconfigurePropagatesToLiveEngines(t *testing.T) {
	live := &recordingEngine{kind: EngineFast, initialized: true}
	d := newTestDispatcher(live)

	require.NoError(t, d.SetLanguage("deu"))
	require.NoError(t, d.EnablePreprocessing(false))
	assert.Error(t, d.SetLanguage(" "))

	live.mu.Lock()
	defer live.mu.Unlock()
	assert.Equal(t, "deu", live.opts.Language)
	assert.False(t, live.opts.Preprocessing)
}

func TestExtractTextAsync(t *testing.T) {
	eng := &recordingEngine{kind: EngineMultimodal, initialized: true, blocks: []TextBlock{{Text: "async", Confidence: 1}}}
	d := newTestDispatcher(eng)

	doc := <-d.ExtractTextAsync(context.Background(), capture.NewFrame(4, 4, capture.FormatRGBA))
	assert.Equal(t, "async", doc.Text())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("accurate")
	require.NoError(t, err)
	assert.Equal(t, ModeAccurate, m)

	_, err = ParseMode("turbo")
	assert.Error(t, err)
}

type fakeModel struct {
	response string
	err      error
	last     ollama.GenerateRequest
}

func (f *fakeModel) Generate(ctx context.Context, req ollama.GenerateRequest) (string, error) {
	f.last = req
	return f.response, f.err
}

func (f *fakeModel) HealthCheck(ctx context.Context, model string) error { return f.err }

func TestMultimodalEngineParsesBlocks(t *testing.T) {
	model := &fakeModel{response: `{"blocks":[{"text":"def calculate(n):","confidence":0.9,"x":0,"y":0},{"text":"return n","x":0,"y":40}]}`}
	eng := NewMultimodalEngine(model, "llava", nil)
	require.NoError(t, eng.Initialize(Options{Language: "eng"}))

	frame := capture.NewFrame(900, 100, capture.FormatRGBA)
	doc, err := eng.ProcessImage(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, "def calculate(n):\nreturn n", doc.Text())
	assert.InDelta(t, 0.85, doc.Confidence(), 1e-9)
	assert.Len(t, model.last.Images, 1)
	assert.Equal(t, "llava", model.last.Model)
}

func TestMultimodalEnginePlainTextAnswer(t *testing.T) {
	blocks := parseModelBlocks("first line\n\nsecond line\n", 1)
	require.Len(t, blocks, 2)
	assert.Equal(t, "first line\nsecond line", OrderText(blocks))

	assert.Empty(t, parseModelBlocks(`{"blocks":[]}`, 1))
}

func TestMultimodalEngineUnavailable(t *testing.T) {
	eng := NewMultimodalEngine(&fakeModel{err: errors.New("connection refused")}, "llava", nil)
	assert.Error(t, eng.Initialize(DefaultOptions()))
	assert.False(t, eng.IsInitialized())

	_, err := eng.ProcessImage(context.Background(), capture.NewFrame(4, 4, capture.FormatRGBA))
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}
