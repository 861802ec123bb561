package pipeline

import (
	"context"
	"time"

	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/window"
)

// StorageSink persists pipeline output. Errors are logged by the
// orchestrator and never stop the pipeline.
type StorageSink interface {
	StoreWindowEvent(ctx context.Context, ev window.WindowEvent) error
	StoreScreenCapture(ctx context.Context, frame *capture.Frame, win window.WindowInfo) error
	StoreOCRResult(ctx context.Context, doc *ocr.Document, win window.WindowInfo) error
	StoreAIAnalysis(ctx context.Context, a classifier.ContentAnalysis) error
}

// Notifier broadcasts pipeline output. Implementations must not block.
type Notifier interface {
	OnWindowEvent(ev window.WindowEvent)
	OnOCRResult(doc *ocr.Document, win window.WindowInfo)
	OnAIAnalysis(a classifier.ContentAnalysis)
}

// StallNotifier is implemented by notifiers that also broadcast capture stalls
type StallNotifier interface {
	OnPipelineStalled(idle time.Duration)
}

type nopStorage struct{}

func (nopStorage) StoreWindowEvent(context.Context, window.WindowEvent) error { return nil }
func (nopStorage) StoreScreenCapture(context.Context, *capture.Frame, window.WindowInfo) error {
	return nil
}
func (nopStorage) StoreOCRResult(context.Context, *ocr.Document, window.WindowInfo) error {
	return nil
}
func (nopStorage) StoreAIAnalysis(context.Context, classifier.ContentAnalysis) error { return nil }

type nopNotifier struct{}

func (nopNotifier) OnWindowEvent(window.WindowEvent)             {}
func (nopNotifier) OnOCRResult(*ocr.Document, window.WindowInfo) {}
func (nopNotifier) OnAIAnalysis(classifier.ContentAnalysis)      {}
