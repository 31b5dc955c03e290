package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitState(t *testing.T, p *Pool, id string, want State) Info {
	t.Helper()
	var info Info
	require.Eventually(t, func() bool {
		info, _ = p.State(context.Background(), id)
		return info.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return info
}

func TestPoolRunsTasks(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 4})
	p.Start(context.Background())
	defer p.Shutdown(context.Background())

	var mu sync.Mutex
	ran := map[string]bool{}
	for _, id := range []string{"a", "b", "c"} {
		id := id
		require.NoError(t, p.Enqueue(context.Background(), id, func(context.Context) error {
			mu.Lock()
			ran[id] = true
			mu.Unlock()
			return nil
		}))
	}
	for _, id := range []string{"a", "b", "c"} {
		waitState(t, p, id, StateSucceeded)
	}
	assert.Len(t, ran, 3)
}

func TestPoolRecordsFailuresAndPanics(t *testing.T) {
	p := New(Config{Workers: 1})
	p.Start(context.Background())
	defer p.Shutdown(context.Background())

	require.NoError(t, p.Enqueue(context.Background(), "err", func(context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, p.Enqueue(context.Background(), "panic", func(context.Context) error {
		panic("nil map")
	}))

	info := waitState(t, p, "err", StateFailed)
	assert.Equal(t, "boom", info.Err)
	info = waitState(t, p, "panic", StateFailed)
	assert.Contains(t, info.Err, "panic: nil map")

	// The worker survives a panic.
	require.NoError(t, p.Enqueue(context.Background(), "after", func(context.Context) error { return nil }))
	waitState(t, p, "after", StateSucceeded)
}

func TestPoolEnqueueErrors(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1, EnqueueWait: -1})
	block := make(chan struct{})
	noop := func(context.Context) error { <-block; return nil }

	require.NoError(t, p.Enqueue(context.Background(), "a", noop))
	assert.ErrorIs(t, p.Enqueue(context.Background(), "a", noop), ErrDuplicateTask)
	assert.ErrorIs(t, p.Enqueue(context.Background(), "b", noop), ErrQueueFull)
	info, err := p.State(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, info.State, "a rejected task leaves no state behind")

	info, err = p.State(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, StatePending, info.State)

	info, err = p.State(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, info.State)

	p.Start(context.Background())
	close(block)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Enqueue(context.Background(), "c", noop), ErrPoolClosed)
	waitState(t, p, "a", StateSucceeded)
}

func TestPoolEnqueueWaitsForFreeSlot(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1, EnqueueWait: time.Second})
	release := make(chan struct{})
	blocking := func(context.Context) error { <-release; return nil }
	p.Start(context.Background())
	defer p.Shutdown(context.Background())

	require.NoError(t, p.Enqueue(context.Background(), "running", blocking))
	waitState(t, p, "running", StateRunning)
	require.NoError(t, p.Enqueue(context.Background(), "queued", blocking))

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, p.Enqueue(context.Background(), "burst", func(context.Context) error { return nil }))
	waitState(t, p, "burst", StateSucceeded)
}

func TestPoolEnqueueGivesUpWithContext(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1, EnqueueWait: time.Minute})
	noop := func(context.Context) error { return nil }
	require.NoError(t, p.Enqueue(context.Background(), "a", noop))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Enqueue(ctx, "b", noop)
	assert.ErrorIs(t, err, ErrQueueFull)

	p.Start(context.Background())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolTasksIgnoreCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(Config{Workers: 1})
	p.Start(ctx)
	cancel()

	require.NoError(t, p.Enqueue(context.Background(), "x", func(taskCtx context.Context) error {
		return taskCtx.Err()
	}))
	waitState(t, p, "x", StateSucceeded)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPrune(t *testing.T) {
	p := New(Config{Workers: 1})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	p.set("old", StateSucceeded, "")
	p.set("running", StateRunning, "")
	now = now.Add(time.Hour)
	p.set("new", StateFailed, "x")

	assert.Equal(t, 1, p.Prune(now.Add(-time.Minute)))
	info, _ := p.State(context.Background(), "old")
	assert.Equal(t, StateUnknown, info.State)
	info, _ = p.State(context.Background(), "running")
	assert.Equal(t, StateRunning, info.State)
}
