package events

import (
	"time"

	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/window"
)

// Broadcaster publishes pipeline results on an event bus. It never blocks:
// events that do not fit in the bus queue are dropped and counted by the bus.
type Broadcaster struct {
	bus EventBus
}

// NewBroadcaster creates a broadcaster over bus
func NewBroadcaster(bus EventBus) *Broadcaster {
	return &Broadcaster{bus: bus}
}

// OnWindowEvent publishes a window focus change
func (b *Broadcaster) OnWindowEvent(ev window.WindowEvent) {
	b.bus.TryPublish(NewWindowEvent(ev))
}

// OnOCRResult publishes extracted text
func (b *Broadcaster) OnOCRResult(doc *ocr.Document, win window.WindowInfo) {
	b.bus.TryPublish(NewOCRResultEvent(doc, win))
}

// OnAIAnalysis publishes a classified activity
func (b *Broadcaster) OnAIAnalysis(a classifier.ContentAnalysis) {
	b.bus.TryPublish(NewAIAnalysisEvent(a))
}

// OnPipelineError publishes a stage failure
func (b *Broadcaster) OnPipelineError(source, stage string, err error) {
	b.bus.TryPublish(NewPipelineErrorEvent(source, stage, err))
}

// OnPipelineStalled publishes a capture stall
func (b *Broadcaster) OnPipelineStalled(idle time.Duration) {
	b.bus.TryPublish(NewPipelineStalledEvent(idle))
}

// LogEvents subscribes an event logger to every event type
func LogEvents(bus *DefaultEventBus, el *logging.EventLogger) []SubscriptionID {
	return bus.SubscribeAll(func(e Event) {
		el.Handle(logging.LoggedEvent{Type: string(e.Type), Source: e.Source, Data: e.Data})
	})
}
