package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jordanella.com/activity-agent/internal/logging"
)

// UnhealthyCallback is called when the watchdog detects a stall
type UnhealthyCallback func(reason string, idle time.Duration, err error)

// Watchdog watches a progress counter and reports when it stops advancing
type Watchdog struct {
	progress func() uint64
	logger   *logging.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	lastProgress     uint64
	lastActivityTime time.Time
	stuckCount       int
	stuckThreshold   int
	stuckTimeout     time.Duration
	checkInterval    time.Duration
	onUnhealthy      UnhealthyCallback
	running          bool
}

// NewWatchdog creates a watchdog that considers the pipeline stuck when
// progress has not changed for timeout
func NewWatchdog(progress func() uint64, timeout time.Duration, logger *logging.Logger) *Watchdog {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{
		progress:         progress,
		logger:           logging.OrDiscard(logger),
		now:              time.Now,
		ctx:              ctx,
		cancel:           cancel,
		lastActivityTime: time.Now(),
		stuckThreshold:   3,
		stuckTimeout:     timeout,
		checkInterval:    timeout / 3,
	}
}

// WithUnhealthyCallback sets the callback for stall events
func (w *Watchdog) WithUnhealthyCallback(callback UnhealthyCallback) *Watchdog {
	w.onUnhealthy = callback
	return w
}

// WithCheckInterval sets how often progress is sampled
func (w *Watchdog) WithCheckInterval(interval time.Duration) *Watchdog {
	if interval > 0 {
		w.checkInterval = interval
	}
	return w
}

// WithStuckThreshold sets how many stuck checks in a row trigger a report
func (w *Watchdog) WithStuckThreshold(n int) *Watchdog {
	if n > 0 {
		w.stuckThreshold = n
	}
	return w
}

// Start begins monitoring
func (w *Watchdog) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.lastActivityTime = w.now()
	if w.progress != nil {
		w.lastProgress = w.progress()
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.monitor()
}

// Stop stops monitoring
func (w *Watchdog) Stop() {
	w.cancel()
	w.wg.Wait()
}

// RecordActivity marks the pipeline as alive
func (w *Watchdog) RecordActivity() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastActivityTime = w.now()
	w.stuckCount = 0
}

func (w *Watchdog) monitor() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check samples progress once and reports a stall when the threshold is hit
func (w *Watchdog) Check() {
	w.mu.Lock()

	if w.progress != nil {
		if p := w.progress(); p != w.lastProgress {
			w.lastProgress = p
			w.lastActivityTime = w.now()
			w.stuckCount = 0
			w.mu.Unlock()
			return
		}
	}

	idle := w.now().Sub(w.lastActivityTime)
	if idle <= w.stuckTimeout {
		w.stuckCount = 0
		w.mu.Unlock()
		return
	}

	w.stuckCount++
	if w.stuckCount < w.stuckThreshold {
		w.mu.Unlock()
		return
	}
	w.stuckCount = 0
	callback := w.onUnhealthy
	w.mu.Unlock()

	w.logger.WarnWithContext("Capture pipeline stalled", map[string]interface{}{
		"idle": idle.Round(time.Second).String(),
	})
	if callback != nil {
		callback("capture_stalled", idle, fmt.Errorf("no frames captured for %v", idle.Round(time.Second)))
	}
}
