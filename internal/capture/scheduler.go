package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"jordanella.com/activity-agent/internal/logging"
)

// ErrAlreadyRunning is returned by StartMonitoring when the loop is active
var ErrAlreadyRunning = errors.New("capture scheduler already running")

// FrameHandler receives frames that survived change detection
type FrameHandler func(frame *Frame)

// SchedulerConfig configures the capture loop
type SchedulerConfig struct {
	MaxFPS          float64       // upper bound on captures per second
	ChangeDetection bool          // skip frames visually identical to the previous one
	ChangeThreshold float64       // fraction of the 64 hash bits that must differ
	Region          *Region       // optional sub-region of the desktop
	TickInterval    time.Duration // scheduler wake-up period, shorter than the frame period
}

// DefaultSchedulerConfig returns the default capture configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxFPS:          30,
		ChangeDetection: true,
		ChangeThreshold: 0.05,
		TickInterval:    10 * time.Millisecond,
	}
}

// SchedulerStats counts what happened to captured frames
type SchedulerStats struct {
	Captured  uint64
	Delivered uint64
	Skipped   uint64
	Failed    uint64
}

// Scheduler runs the throttled capture loop. A single goroutine captures at
// most MaxFPS frames per second and hands changed frames to the handler.
type Scheduler struct {
	backend Backend
	logger  *logging.Logger

	mu      sync.Mutex
	config  SchedulerConfig
	limiter *rate.Limiter
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	rebase  bool // drop the stored fingerprint before the next comparison

	// Touched only by the loop goroutine
	lastFingerprint Fingerprint
	hasFingerprint  bool

	captured  atomic.Uint64
	delivered atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// NewScheduler creates a capture scheduler over the given backend
func NewScheduler(backend Backend, config SchedulerConfig, logger *logging.Logger) *Scheduler {
	if config.MaxFPS <= 0 {
		config.MaxFPS = DefaultSchedulerConfig().MaxFPS
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultSchedulerConfig().TickInterval
	}

	return &Scheduler{
		backend: backend,
		logger:  logging.OrDiscard(logger),
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.MaxFPS), 1),
	}
}

// StartMonitoring begins the background capture loop
func (s *Scheduler) StartMonitoring(onFrame FrameHandler) error {
	if onFrame == nil {
		return fmt.Errorf("frame handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.backend == nil || !s.backend.Available() {
		return ErrBackendUnavailable
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.hasFingerprint = false

	s.wg.Add(1)
	go s.run(ctx, onFrame)

	s.logger.InfoWithContext("Capture monitoring started", map[string]interface{}{
		"max_fps":          s.config.MaxFPS,
		"change_detection": s.config.ChangeDetection,
		"threshold":        s.config.ChangeThreshold,
	})
	return nil
}

// StopMonitoring stops the loop and waits for it to exit. No frame is
// captured after it returns. Safe to call when not running.
func (s *Scheduler) StopMonitoring() {
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

	s.logger.Info("Capture monitoring stopped")
}

// IsRunning reports whether the capture loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CaptureNow performs a single synchronous capture, independent of the loop
func (s *Scheduler) CaptureNow() (*Frame, error) {
	if s.backend == nil || !s.backend.Available() {
		return nil, ErrBackendUnavailable
	}

	s.mu.Lock()
	region := s.config.Region
	s.mu.Unlock()

	var (
		frame *Frame
		err   error
	)
	if region != nil && !region.Empty() {
		frame, err = s.backend.CaptureRegion(*region)
	} else {
		frame, err = s.backend.CaptureDesktop()
	}
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	if !frame.Valid() {
		return nil, ErrInvalidFrame
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}
	return frame, nil
}

// SetMaxFPS changes the frame rate limit of a running or stopped scheduler
func (s *Scheduler) SetMaxFPS(fps float64) error {
	if fps <= 0 {
		return fmt.Errorf("max fps must be positive, got %v", fps)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.MaxFPS = fps
	s.limiter.SetLimit(rate.Limit(fps))
	return nil
}

// SetChangeThreshold changes the change-detection threshold
func (s *Scheduler) SetChangeThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("change threshold must be within [0,1], got %v", threshold)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.ChangeThreshold = threshold
	return nil
}

// SetChangeDetection toggles frame deduplication. Re-enabling it starts
// from a fresh baseline: the next frame is delivered and becomes the
// reference.
func (s *Scheduler) SetChangeDetection(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled && !s.config.ChangeDetection {
		s.rebase = true
	}
	s.config.ChangeDetection = enabled
}

// SetRegion restricts capture to a sub-region; nil captures the whole desktop
func (s *Scheduler) SetRegion(region *Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Region = region
}

// Config returns a copy of the current configuration
func (s *Scheduler) Config() SchedulerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Stats returns frame counters since creation
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Captured:  s.captured.Load(),
		Delivered: s.delivered.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *Scheduler) run(ctx context.Context, onFrame FrameHandler) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Config().TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, onFrame)
		}
	}
}

// tick performs at most one capture. Capture failures are counted and the
// next tick simply tries again.
func (s *Scheduler) tick(ctx context.Context, onFrame FrameHandler) {
	s.mu.Lock()
	allowed := s.limiter.Allow()
	detect := s.config.ChangeDetection
	threshold := s.config.ChangeThreshold
	if s.rebase {
		s.hasFingerprint = false
		s.rebase = false
	}
	s.mu.Unlock()

	if !allowed {
		return
	}

	frame, err := s.CaptureNow()
	if err != nil {
		s.failed.Add(1)
		s.logger.DebugWithContext("Capture attempt failed", map[string]interface{}{"error": err.Error()})
		return
	}
	s.captured.Add(1)

	if detect {
		fp := Hash(frame)
		changed := !s.hasFingerprint || Changed(s.lastFingerprint, fp, threshold)
		s.lastFingerprint = fp
		s.hasFingerprint = true
		if !changed {
			s.skipped.Add(1)
			return
		}
	}

	// A stop requested while capturing wins over delivery
	if ctx.Err() != nil {
		return
	}

	s.delivered.Add(1)
	s.deliver(onFrame, frame)
}

func (s *Scheduler) deliver(onFrame FrameHandler, frame *Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Frame handler panicked", fmt.Errorf("%v", r))
		}
	}()
	onFrame(frame)
}
