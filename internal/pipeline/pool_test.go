package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	pool := NewWorkerPool(3, 10, nil)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(Task{Name: "count", Run: func(context.Context) { ran.Add(1) }}))
	}
	require.NoError(t, pool.Stop(context.Background()))

	if ran.Load() != 10 {
		t.Errorf("Expected 10 tasks to run, got %d", ran.Load())
	}
	s := pool.Stats()
	assert.Equal(t, int64(10), s.Submitted)
	assert.Equal(t, int64(10), s.Completed)
	assert.Equal(t, 3, s.Workers)
}

func TestPoolSubmitNeverBlocks(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, pool.Submit(Task{Name: "block", Run: func(context.Context) {
		close(started)
		<-release
	}}))
	<-started
	require.NoError(t, pool.Submit(Task{Name: "queued", Run: func(context.Context) {}}))

	done := make(chan error, 1)
	go func() { done <- pool.Submit(Task{Name: "overflow", Run: func(context.Context) {}}) }()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrPoolFull), "expected ErrPoolFull, got %v", err)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	close(release)
	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int64(1), pool.Stats().Dropped)
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(1, 4, nil)

	var after atomic.Bool
	require.NoError(t, pool.Submit(Task{Name: "panic", Run: func(context.Context) { panic("boom") }}))
	require.NoError(t, pool.Submit(Task{Name: "after", Run: func(context.Context) { after.Store(true) }}))
	require.NoError(t, pool.Stop(context.Background()))

	assert.True(t, after.Load(), "worker must survive a panicking task")
	assert.Equal(t, int64(1), pool.Stats().Panicked)
}

func TestPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(2, 2, nil)
	require.NoError(t, pool.Stop(context.Background()))
	require.NoError(t, pool.Stop(context.Background()))

	err := pool.Submit(Task{Name: "late", Run: func(context.Context) {}})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolStopTimeoutCancelsTasks(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)
	started := make(chan struct{})
	require.NoError(t, pool.Submit(Task{Name: "slow", Run: func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), pool.Stats().Active)
}
