package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/logging"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/window"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus(8, nil)
	var c collector
	bus.Subscribe(EventTypeAIAnalysis, c.handle)

	bus.Publish(Event{Type: EventTypeAIAnalysis, Source: "test"})
	bus.Publish(Event{Type: EventTypeOCRResult, Source: "test"})
	bus.Stop()

	got := c.all()
	require.Len(t, got, 1)
	assert.Equal(t, EventTypeAIAnalysis, got[0].Type)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(8, nil)
	var c collector
	id := bus.Subscribe(EventTypePipelineError, c.handle)
	bus.Subscribe(EventTypePipelineError, func(Event) {})

	bus.Unsubscribe(id)
	if n := bus.GetSubscriberCount(EventTypePipelineError); n != 1 {
		t.Errorf("Expected 1 subscriber, got %d", n)
	}

	bus.Publish(Event{Type: EventTypePipelineError})
	bus.Stop()
	assert.Empty(t, c.all())
}

func TestTryPublishDropsWhenFull(t *testing.T) {
	// no delivery goroutine, so the queue never drains
	bus := newBus(1, logging.Discard())

	assert.True(t, bus.TryPublish(Event{Type: EventTypeOCRResult}))
	assert.False(t, bus.TryPublish(Event{Type: EventTypeOCRResult}))
	assert.Equal(t, int64(1), bus.Dropped())
	assert.Equal(t, 1, bus.GetQueueSize())
}

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewEventBus(128, nil)
	var c collector
	bus.Subscribe(EventTypeOCRResult, c.handle)

	for i := 0; i < 100; i++ {
		bus.Publish(Event{Type: EventTypeOCRResult, Data: map[string]interface{}{"seq": i}})
	}
	bus.Stop()

	got := c.all()
	require.Len(t, got, 100)
	for i, e := range got {
		if e.Data["seq"] != i {
			t.Fatalf("Expected event %d at position %d, got %v", i, i, e.Data["seq"])
		}
	}
	assert.Equal(t, int64(100), bus.Delivered())
}

func TestStopIsIdempotentAndRejectsLatePublish(t *testing.T) {
	bus := NewEventBus(4, nil)
	bus.Stop()
	bus.Stop()

	bus.Publish(Event{Type: EventTypeWindowFocused})
	assert.False(t, bus.TryPublish(Event{Type: EventTypeWindowFocused}))
	assert.Equal(t, int64(2), bus.Dropped())
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := NewEventBus(4, nil)
	var c collector
	bus.Subscribe(EventTypePipelineStalled, func(Event) { panic("boom") })
	bus.Subscribe(EventTypePipelineStalled, c.handle)

	bus.Publish(NewPipelineStalledEvent(30 * time.Second))
	bus.Stop()

	require.Len(t, c.all(), 1)
	assert.Equal(t, 30.0, c.all()[0].Data["idle_seconds"])
}

func TestBroadcasterPublishesTypedEvents(t *testing.T) {
	bus := NewEventBus(16, nil)
	var c collector
	bus.SubscribeAll(c.handle)
	b := NewBroadcaster(bus)

	win := window.WindowInfo{Title: "main.go - VS Code", ProcessName: "Code.exe"}
	b.OnWindowEvent(window.WindowEvent{Type: window.EventFocused, Window: win, Timestamp: time.Now()})
	b.OnOCRResult(ocr.NewDocument([]ocr.TextBlock{{Text: "func main", Confidence: 0.9}}), win)
	b.OnAIAnalysis(classifier.ContentAnalysis{ID: "x", ContentType: classifier.ContentCode, Timestamp: time.Now()})
	b.OnPipelineError("pipeline", "ocr", errors.New("engine down"))
	bus.Stop()

	types := map[EventType]Event{}
	for _, e := range c.all() {
		types[e.Type] = e
	}
	require.Len(t, types, 4)
	assert.Equal(t, "main.go - VS Code", types[EventTypeWindowFocused].Data["title"])
	assert.Equal(t, "func main", types[EventTypeOCRResult].Data["text"])
	assert.Equal(t, "CODE", types[EventTypeAIAnalysis].Data["content_type"])
	assert.Equal(t, "engine down", types[EventTypePipelineError].Data["error"])
}

func TestWindowEventTypeMapping(t *testing.T) {
	assert.Equal(t, EventTypeWindowClosed, NewWindowEvent(window.WindowEvent{Type: window.EventClosed}).Type)
	assert.Equal(t, EventTypeWindowTitleChanged, NewWindowEvent(window.WindowEvent{Type: window.EventTitleChanged}).Type)
}
