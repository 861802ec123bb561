package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jordanella.com/activity-agent/internal/logging"
)

// PollingSource turns periodic foreground-window queries into events.
// A change of handle emits EventFocused (and EventClosed for the previous
// window if it no longer exists); a title change on the same handle emits
// EventTitleChanged.
type PollingSource struct {
	provider Provider
	interval time.Duration
	logger   *logging.Logger

	mu       sync.RWMutex
	handlers []EventHandler
	current  WindowInfo
	hasCur   bool
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPollingSource creates a source that polls every interval (default 250ms)
func NewPollingSource(provider Provider, interval time.Duration, logger *logging.Logger) *PollingSource {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &PollingSource{
		provider: provider,
		interval: interval,
		logger:   logging.OrDiscard(logger),
	}
}

// OnEvent registers an event handler
func (s *PollingSource) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Start begins polling until ctx is cancelled or Stop is called
func (s *PollingSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("window source already running")
	}
	if s.provider == nil {
		return fmt.Errorf("window provider is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.InfoWithContext("Window monitoring started", map[string]interface{}{"interval": s.interval.String()})
	return nil
}

// Stop ends polling and waits for the loop to exit
func (s *PollingSource) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()
}

// ActiveWindow returns the last observed foreground window, querying the
// provider directly when nothing has been observed yet
func (s *PollingSource) ActiveWindow() (WindowInfo, error) {
	s.mu.RLock()
	cur, ok := s.current, s.hasCur
	s.mu.RUnlock()
	if ok {
		return cur, nil
	}
	if s.provider == nil {
		return WindowInfo{}, ErrNoActiveWindow
	}
	return s.provider.ForegroundWindow()
}

func (s *PollingSource) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}

// Poll performs one foreground query and emits any resulting events
func (s *PollingSource) Poll() {
	info, err := s.provider.ForegroundWindow()
	if err != nil {
		if !errors.Is(err, ErrNoActiveWindow) {
			s.logger.DebugWithContext("Foreground query failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	s.mu.Lock()
	prev, hadPrev := s.current, s.hasCur
	s.current = info
	s.hasCur = true
	s.mu.Unlock()

	now := time.Now()
	switch {
	case !hadPrev || prev.Handle != info.Handle:
		if hadPrev && !s.provider.IsWindow(prev.Handle) {
			s.emit(WindowEvent{Type: EventClosed, Window: prev, Timestamp: now})
		}
		s.emit(WindowEvent{Type: EventFocused, Window: info, Timestamp: now})
	case prev.Title != info.Title:
		s.emit(WindowEvent{Type: EventTitleChanged, Window: info, Timestamp: now})
	}
}

func (s *PollingSource) emit(event WindowEvent) {
	s.mu.RLock()
	handlers := make([]EventHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, h := range handlers {
		s.safeHandlerCall(h, event)
	}
}

func (s *PollingSource) safeHandlerCall(handler EventHandler, event WindowEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Sprintf("Window handler panicked on %s", event.Type), fmt.Errorf("%v", r))
		}
	}()
	handler(event)
}
