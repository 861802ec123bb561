package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jordanella.com/activity-agent/internal/ocr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if cfg.Pipeline.FrameInterval != 1 {
		t.Errorf("Expected FrameInterval 1, got %d", cfg.Pipeline.FrameInterval)
	}
	if cfg.Capture.ChangeThreshold != 0.05 {
		t.Errorf("Expected ChangeThreshold 0.05, got %v", cfg.Capture.ChangeThreshold)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "agent.ini")

	cfg := NewDefaultConfig()
	cfg.Capture.MaxFPS = 12.5
	cfg.OCR.Mode = "FAST"
	cfg.Classifier.Engine = EngineLLM
	cfg.Classifier.LexiconPath = "lexicon.yaml"
	cfg.Pipeline.Workers = 2
	cfg.Pipeline.StallTimeout = 90 * time.Second
	cfg.Storage.Thumbnails = true
	cfg.Metrics.Enabled = false

	require.NoError(t, SaveToINI(cfg, path))

	loaded, err := LoadFromINI(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.ini")
	writeFile(t, path, `
[Capture]
MaxFPS = 5

[Pipeline]
Workers = abc
FrameInterval = 3
`)

	cfg, err := LoadFromINI(path)
	require.NoError(t, err)

	def := NewDefaultConfig()
	assert.Equal(t, 5.0, cfg.Capture.MaxFPS)
	assert.Equal(t, 3, cfg.Pipeline.FrameInterval)
	assert.Equal(t, def.Pipeline.Workers, cfg.Pipeline.Workers, "unparsable value falls back to default")
	assert.Equal(t, def.OCR, cfg.OCR)
	assert.Equal(t, def.Storage, cfg.Storage)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"mode":      "[OCR]\nMode = turbo\n",
		"threshold": "[Capture]\nChangeThreshold = 1.5\n",
		"engine":    "[Classifier]\nEngine = oracle\n",
		"workers":   "[Pipeline]\nWorkers = 0\n",
		"engines":   "[OCR]\nTesseract = false\nMultimodal = false\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "agent.ini")
			writeFile(t, path, content)
			if _, err := LoadFromINI(path); err == nil {
				t.Errorf("Expected error for %s", name)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.ini"))
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig(), cfg)

	_, err = LoadFromINI(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}

func TestComponentConversions(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.OCR.Mode = "multimodal"
	cfg.OCR.Primary = "tesseract"
	cfg.OCR.ConfidenceThreshold = 0.7
	cfg.Window.CaptureOnFocus = false
	cfg.Storage.ThumbnailWidth = 200
	cfg.Storage.RetentionDays = 2

	disp := cfg.Dispatcher()
	assert.Equal(t, ocr.ModeMultimodal, disp.Mode)
	assert.Equal(t, ocr.EngineFast, disp.Primary)
	assert.Equal(t, 0.7, disp.Options.ConfidenceThreshold)

	assert.False(t, cfg.Orchestrator().CaptureOnFocus)
	assert.Equal(t, cfg.Pipeline.QueueSize, cfg.Orchestrator().QueueSize)
	assert.Equal(t, uint(200), cfg.StoreOptions().ThumbnailWidth)
	assert.Equal(t, 48*time.Hour, cfg.Retention())
	assert.Equal(t, cfg.Capture.MaxFPS, cfg.Scheduler().MaxFPS)
	assert.Equal(t, cfg.Classifier.MinProductiveRatio, cfg.ClassifierRules().MinProductiveRatio)
	assert.Equal(t, cfg.Model.URL, cfg.ModelClient().BaseURL)

	cfg.Storage.RetentionDays = 0
	assert.Equal(t, time.Duration(0), cfg.Retention())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.ini")
	require.NoError(t, SaveToINI(NewDefaultConfig(), path))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg }, nil)
	require.NoError(t, err)
	w.WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	cfg := NewDefaultConfig()
	cfg.Capture.MaxFPS = 7
	require.NoError(t, SaveToINI(cfg, path))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-reloaded:
			if got.Capture.MaxFPS == 7 {
				return
			}
		case <-timeout:
			t.Fatal("Timed out waiting for reload")
		}
	}
}

func TestWatcherReportsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.ini")
	require.NoError(t, SaveToINI(NewDefaultConfig(), path))

	failed := make(chan error, 4)
	w, err := NewWatcher(path, nil, nil)
	require.NoError(t, err)
	w.WithDebounce(20 * time.Millisecond).WithErrorHandler(func(err error) { failed <- err })

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, path, "[OCR]\nMode = turbo\n")

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload error")
	}

	w.Stop()
	w.Stop()
}
