package events

import (
	"sync"
	"sync/atomic"
	"time"

	"jordanella.com/activity-agent/internal/logging"
)

// DefaultQueueSize is used when NewEventBus is given a non-positive size
const DefaultQueueSize = 64

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// DefaultEventBus queues events and delivers them from a single goroutine.
// Handlers for one bus therefore see events in publish order and never run
// concurrently with each other; a slow handler delays the ones after it and
// fills the queue, after which TryPublish drops.
type DefaultEventBus struct {
	logger *logging.Logger

	// Per-type subscriber lists are replaced, never mutated, so dispatch
	// can iterate a snapshot without holding the lock.
	mu     sync.RWMutex
	routes map[EventType][]subscription
	nextID atomic.Int64

	queue    chan Event
	closing  chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewEventBus creates a bus with a queue of queueSize events and starts its
// delivery goroutine
func NewEventBus(queueSize int, logger *logging.Logger) *DefaultEventBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	eb := newBus(queueSize, logger)
	go eb.loop()
	return eb
}

func newBus(queueSize int, logger *logging.Logger) *DefaultEventBus {
	return &DefaultEventBus{
		logger:   logging.OrDiscard(logger),
		routes:   make(map[EventType][]subscription),
		queue:    make(chan Event, queueSize),
		closing:  make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Subscribe registers a handler for one event type
func (eb *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) SubscriptionID {
	id := SubscriptionID(eb.nextID.Add(1))

	eb.mu.Lock()
	defer eb.mu.Unlock()
	cur := eb.routes[eventType]
	next := make([]subscription, len(cur), len(cur)+1)
	copy(next, cur)
	eb.routes[eventType] = append(next, subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers a handler for every known event type
func (eb *DefaultEventBus) SubscribeAll(handler EventHandler) []SubscriptionID {
	ids := make([]SubscriptionID, 0, len(AllEventTypes))
	for _, t := range AllEventTypes {
		ids = append(ids, eb.Subscribe(t, handler))
	}
	return ids
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (eb *DefaultEventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for eventType, cur := range eb.routes {
		for i, sub := range cur {
			if sub.id != id {
				continue
			}
			next := make([]subscription, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			eb.routes[eventType] = next
			return
		}
	}
}

// Publish queues an event, waiting for room if the queue is full. Events
// published after Stop are dropped.
func (eb *DefaultEventBus) Publish(event Event) {
	stamp(&event)
	if eb.isClosing() {
		eb.drop(event, "bus stopped")
		return
	}

	select {
	case eb.queue <- event:
	case <-eb.closing:
		eb.drop(event, "bus stopped")
	}
}

// TryPublish queues an event if there is room and drops it otherwise
func (eb *DefaultEventBus) TryPublish(event Event) bool {
	stamp(&event)
	if eb.isClosing() {
		eb.drop(event, "bus stopped")
		return false
	}

	select {
	case eb.queue <- event:
		return true
	default:
		eb.drop(event, "queue full")
		return false
	}
}

// Stop delivers what is already queued, then stops the delivery goroutine.
// Safe to call more than once.
func (eb *DefaultEventBus) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.closing)
	})
	<-eb.loopDone
}

// GetSubscriberCount returns the number of subscribers for an event type
func (eb *DefaultEventBus) GetSubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.routes[eventType])
}

// GetQueueSize returns the number of events waiting for delivery
func (eb *DefaultEventBus) GetQueueSize() int {
	return len(eb.queue)
}

// Delivered returns how many handler invocations completed, including ones
// that panicked
func (eb *DefaultEventBus) Delivered() int64 {
	return eb.delivered.Load()
}

// Dropped returns how many events were discarded
func (eb *DefaultEventBus) Dropped() int64 {
	return eb.dropped.Load()
}

func stamp(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
}

func (eb *DefaultEventBus) isClosing() bool {
	select {
	case <-eb.closing:
		return true
	default:
		return false
	}
}

func (eb *DefaultEventBus) drop(event Event, reason string) {
	eb.dropped.Add(1)
	eb.logger.DebugWithContext("Dropped event", map[string]interface{}{
		"event_type": string(event.Type),
		"reason":     reason,
	})
}

func (eb *DefaultEventBus) loop() {
	defer close(eb.loopDone)

	for {
		select {
		case event := <-eb.queue:
			eb.deliver(event)
		case <-eb.closing:
			for {
				select {
				case event := <-eb.queue:
					eb.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *DefaultEventBus) deliver(event Event) {
	eb.mu.RLock()
	subs := eb.routes[event.Type]
	eb.mu.RUnlock()

	for _, sub := range subs {
		eb.invoke(sub, event)
	}
}

func (eb *DefaultEventBus) invoke(sub subscription, event Event) {
	defer eb.delivered.Add(1)
	defer func() {
		if r := recover(); r != nil {
			eb.logger.WarnWithContext("Event handler panicked", map[string]interface{}{
				"event_type":   string(event.Type),
				"subscription": int64(sub.id),
				"panic":        r,
			})
		}
	}()
	sub.handler(event)
}
