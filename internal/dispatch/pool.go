// Package dispatch runs submitted tasks on a bounded worker pool and keeps
// their state queryable by task id.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/timmy/portdesk/internal/logger"
)

// State is the lifecycle of a task as the pool sees it.
type State string

const (
	StateUnknown   State = "unknown"
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var (
	ErrPoolClosed    = errors.New("dispatch pool is closed")
	ErrQueueFull     = errors.New("dispatch queue is full")
	ErrDuplicateTask = errors.New("task id already dispatched")
)

// Task is one unit of work. A returned error or a panic marks the task
// failed.
type Task func(ctx context.Context) error

// Info is the observable state of one task.
type Info struct {
	State     State
	Err       string
	UpdatedAt time.Time
}

// Config sizes the pool. EnqueueWait bounds how long Enqueue waits for a
// free queue slot; zero selects the default and a negative value never waits.
type Config struct {
	Workers     int
	QueueSize   int
	EnqueueWait time.Duration
}

const defaultEnqueueWait = 2 * time.Second

type item struct {
	id   string
	task Task
}

// Pool is a fixed set of workers draining a bounded queue.
type Pool struct {
	workers int
	queue   chan item
	wait    time.Duration

	// sendMu keeps Shutdown from closing the queue under a blocked sender.
	sendMu sync.RWMutex

	mu     sync.RWMutex
	states map[string]Info
	closed bool

	wg   sync.WaitGroup
	once sync.Once
	now  func() time.Time
}

// New creates a pool. Workers and queue size default to 4 and 256.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.EnqueueWait == 0 {
		cfg.EnqueueWait = defaultEnqueueWait
	}
	return &Pool{
		workers: cfg.Workers,
		queue:   make(chan item, cfg.QueueSize),
		wait:    cfg.EnqueueWait,
		states:  make(map[string]Info),
		now:     time.Now,
	}
}

// Start launches the workers. Tasks inherit ctx values but not its
// cancellation: once started, a task runs to completion.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		base := context.WithoutCancel(ctx)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.worker(logger.WithField(base, "worker_id", workerID))
			}(i)
		}
		logger.CtxInfo(ctx, "dispatch pool started with %d workers", p.workers)
	})
}

func (p *Pool) worker(ctx context.Context) {
	for it := range p.queue {
		p.set(it.id, StateRunning, "")
		if err := p.run(ctx, it); err != nil {
			p.set(it.id, StateFailed, err.Error())
			logger.FromContext(ctx).WithField("task_id", it.id).WithError(err).Warn("task failed")
			continue
		}
		p.set(it.id, StateSucceeded, "")
	}
}

func (p *Pool) run(ctx context.Context, it item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithField("task_id", it.id).
				Errorf("task panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return it.task(ctx)
}

func (p *Pool) set(id string, s State, errText string) {
	p.mu.Lock()
	p.states[id] = Info{State: s, Err: errText, UpdatedAt: p.now()}
	p.mu.Unlock()
}

// Enqueue schedules task under id. When the queue is full it waits up to the
// configured EnqueueWait, or until ctx is done, for a worker to free a slot.
func (p *Pool) Enqueue(ctx context.Context, id string, task Task) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if _, ok := p.states[id]; ok {
		p.mu.Unlock()
		return ErrDuplicateTask
	}
	p.states[id] = Info{State: StatePending, UpdatedAt: p.now()}
	p.mu.Unlock()

	it := item{id: id, task: task}
	select {
	case p.queue <- it:
		return nil
	default:
	}
	if p.wait < 0 {
		p.forget(id)
		return ErrQueueFull
	}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()
	select {
	case p.queue <- it:
		return nil
	case <-timer.C:
		p.forget(id)
		return ErrQueueFull
	case <-ctx.Done():
		p.forget(id)
		return fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}
}

func (p *Pool) forget(id string) {
	p.mu.Lock()
	delete(p.states, id)
	p.mu.Unlock()
}

// State reports what the pool knows about id.
func (p *Pool) State(_ context.Context, id string) (Info, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.states[id]
	if !ok {
		return Info{State: StateUnknown}, nil
	}
	return info, nil
}

// Prune forgets finished tasks last updated before cutoff.
func (p *Pool) Prune(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, info := range p.states {
		if (info.State == StateSucceeded || info.State == StateFailed) && info.UpdatedAt.Before(cutoff) {
			delete(p.states, id)
			n++
		}
	}
	return n
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.sendMu.Lock()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
