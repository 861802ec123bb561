package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"jordanella.com/activity-agent/internal/logging"
)

var (
	// ErrPoolFull is returned by Submit when the queue has no room
	ErrPoolFull = errors.New("worker pool queue is full")
	// ErrPoolClosed is returned by Submit after Stop
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Task is a unit of OCR or classification work
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// PoolStats is a snapshot of worker pool counters
type PoolStats struct {
	Workers   int
	QueueSize int
	Queued    int
	Active    int64
	Submitted int64
	Completed int64
	Dropped   int64
	Panicked  int64
}

// WorkerPool runs tasks on a fixed number of goroutines fed by a bounded
// queue. Submit never blocks.
type WorkerPool struct {
	logger  *logging.Logger
	workers int

	queue  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	active    atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	dropped   atomic.Int64
	panicked  atomic.Int64
}

// NewWorkerPool starts workers goroutines over a queue of queueSize tasks
func NewWorkerPool(workers, queueSize int, logger *logging.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		logger:  logging.OrDiscard(logger),
		workers: workers,
		queue:   make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues a task. It fails with ErrPoolFull instead of waiting.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		return ErrPoolClosed
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return fmt.Errorf("%w: dropped %s", ErrPoolFull, task.Name)
	}
}

// Stop closes the queue and waits for queued and running tasks to finish.
// If ctx expires first, running tasks see their context cancelled and Stop
// returns ctx.Err() once they have returned.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		if p.ctx.Err() != nil {
			p.dropped.Add(1)
			continue
		}
		p.run(task)
	}
}

// run executes one task with panic recovery
func (p *WorkerPool) run(task Task) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.ErrorWithContext("Task panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"task": task.Name,
			})
		}
	}()
	task.Run(p.ctx)
}

// Stats returns a snapshot of the pool counters
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		QueueSize: cap(p.queue),
		Queued:    len(p.queue),
		Active:    p.active.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Dropped:   p.dropped.Load(),
		Panicked:  p.panicked.Load(),
	}
}
