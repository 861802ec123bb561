package events

import (
	"time"

	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/window"
)

// EventType represents different types of events in the system
type EventType string

const (
	// Window events
	EventTypeWindowFocused      EventType = "window.focused"
	EventTypeWindowTitleChanged EventType = "window.title_changed"
	EventTypeWindowClosed       EventType = "window.closed"

	// Pipeline results
	EventTypeOCRResult  EventType = "ocr.result"
	EventTypeAIAnalysis EventType = "ai.analysis"

	// Pipeline health
	EventTypePipelineError   EventType = "pipeline.error"
	EventTypePipelineStalled EventType = "pipeline.stalled"
	EventTypeConfigReloaded  EventType = "config.reloaded"
)

// AllEventTypes lists every event type the agent publishes
var AllEventTypes = []EventType{
	EventTypeWindowFocused,
	EventTypeWindowTitleChanged,
	EventTypeWindowClosed,
	EventTypeOCRResult,
	EventTypeAIAnalysis,
	EventTypePipelineError,
	EventTypePipelineStalled,
	EventTypeConfigReloaded,
}

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted event (e.g., "pipeline", "watchdog")
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by ID
	Unsubscribe(id SubscriptionID)

	// Publish sends an event to all subscribers (blocking until queued)
	Publish(event Event)

	// TryPublish queues an event without blocking, reporting whether it was queued
	TryPublish(event Event) bool

	// Stop stops the event bus and drains remaining events
	Stop()
}

// Helper functions to create common events

// NewWindowEvent creates an event for a window focus change
func NewWindowEvent(ev window.WindowEvent) Event {
	t := EventTypeWindowFocused
	switch ev.Type {
	case window.EventTitleChanged:
		t = EventTypeWindowTitleChanged
	case window.EventClosed:
		t = EventTypeWindowClosed
	}
	return Event{
		Type:      t,
		Source:    "window",
		Timestamp: ev.Timestamp,
		Data: map[string]interface{}{
			"title":      ev.Window.Title,
			"process":    ev.Window.ProcessName,
			"process_id": ev.Window.ProcessID,
			"handle":     ev.Window.Handle,
		},
	}
}

// NewOCRResultEvent creates an event for extracted text
func NewOCRResultEvent(doc *ocr.Document, win window.WindowInfo) Event {
	return Event{
		Type:      EventTypeOCRResult,
		Source:    "ocr",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"title":       win.Title,
			"engine":      doc.Engine.String(),
			"blocks":      doc.Len(),
			"confidence":  doc.Confidence(),
			"duration_ms": doc.Duration.Milliseconds(),
			"text":        doc.Text(),
		},
	}
}

// NewAIAnalysisEvent creates an event for a classified activity
func NewAIAnalysisEvent(a classifier.ContentAnalysis) Event {
	return Event{
		Type:      EventTypeAIAnalysis,
		Source:    "classifier",
		Timestamp: a.Timestamp,
		Data: map[string]interface{}{
			"id":            a.ID,
			"title":         a.Title,
			"engine":        a.Engine,
			"content_type":  a.ContentType.String(),
			"work_category": a.WorkCategory.String(),
			"priority":      a.Priority.String(),
			"productive":    a.IsProductive,
			"focused":       a.IsFocusedWork,
			"attention":     a.RequiresAttention,
			"distraction":   a.DistractionLevel,
			"confidence":    a.ClassificationConfidence,
		},
	}
}

// NewPipelineErrorEvent creates an error event
func NewPipelineErrorEvent(source, stage string, err error) Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Type:      EventTypePipelineError,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"stage": stage,
			"error": msg,
		},
	}
}

// NewPipelineStalledEvent creates an event for a capture stall
func NewPipelineStalledEvent(idle time.Duration) Event {
	return Event{
		Type:      EventTypePipelineStalled,
		Source:    "watchdog",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"idle_seconds": idle.Seconds(),
		},
	}
}

// NewConfigReloadedEvent creates an event for an applied config change
func NewConfigReloadedEvent(path string) Event {
	return Event{
		Type:      EventTypeConfigReloaded,
		Source:    "config",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"path": path,
		},
	}
}
