package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/portdesk/internal/dispatch"
	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/logger"
)

// ErrInvalidTransition is returned by the callbacks for a transition the
// job state machine does not allow, including any change to a terminal job.
var ErrInvalidTransition = errors.New("invalid job transition")

const defaultListLimit = 50

// lostJobError is recorded for jobs whose task died with a previous process.
const lostJobError = "job lost: worker restarted"

// JobRepository stores job records. Get returns (nil, nil) for unknown ids
// and List returns the most recently created jobs first.
type JobRepository interface {
	Get(ctx context.Context, runID string) (*domain.IncidentJob, error)
	Put(ctx context.Context, job *domain.IncidentJob) error
	List(ctx context.Context, limit int) ([]*domain.IncidentJob, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Dispatcher executes tasks asynchronously and reports their state.
type Dispatcher interface {
	Enqueue(ctx context.Context, taskID string, task dispatch.Task) error
	State(ctx context.Context, taskID string) (dispatch.Info, error)
}

// TaskBuilder turns a submitted incident into a dispatchable task.
type TaskBuilder interface {
	Task(runID, text string) dispatch.Task
}

// JobLedger owns the job state machine. Callbacks from the running task are
// serialized so read-modify-write cycles never interleave.
type JobLedger struct {
	repo       JobRepository
	dispatcher Dispatcher
	runner     TaskBuilder
	mu         sync.Mutex
	now        func() time.Time
	// bootedAt separates jobs this process dispatched from those left behind
	// in a durable store by an earlier one.
	bootedAt time.Time
}

func NewJobLedger(repo JobRepository, dispatcher Dispatcher) *JobLedger {
	return &JobLedger{repo: repo, dispatcher: dispatcher, now: time.Now, bootedAt: time.Now().UTC()}
}

// UseRunner sets the task builder. It must be called before Submit.
func (l *JobLedger) UseRunner(r TaskBuilder) {
	l.runner = r
}

// Submit records a QUEUED job and hands it to the dispatcher.
func (l *JobLedger) Submit(ctx context.Context, text string) (*domain.IncidentJob, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyIncident
	}
	if l.runner == nil {
		return nil, errors.New("job ledger has no runner")
	}

	job := &domain.IncidentJob{
		RunID:        uuid.New().String(),
		Status:       domain.JobStatusQueued,
		IncidentText: text,
		CreatedAt:    l.now().UTC(),
	}
	if err := l.repo.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	if err := l.dispatcher.Enqueue(ctx, job.RunID, l.runner.Task(job.RunID, text)); err != nil {
		logger.CtxError(ctx, "dispatch job %s: %v", job.RunID, err)
		_ = l.Fail(ctx, job.RunID, "dispatch failed: "+err.Error())
		return nil, fmt.Errorf("dispatch job: %w", err)
	}

	logger.With(logger.Fields{logger.FieldRunID: job.RunID}).Info(ctx, "incident job queued")
	return job.Clone(), nil
}

// update applies fn to the stored job under the ledger lock.
func (l *JobLedger) update(ctx context.Context, runID string, fn func(j *domain.IncidentJob) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, err := l.repo.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return ErrJobNotFound
	}
	if err := fn(job); err != nil {
		return err
	}
	return l.repo.Put(ctx, job)
}

// MarkStarted moves a queued job to PROCESSING.
func (l *JobLedger) MarkStarted(ctx context.Context, runID string) error {
	return l.update(ctx, runID, func(j *domain.IncidentJob) error {
		if j.Status != domain.JobStatusQueued {
			return fmt.Errorf("%w: start from %s", ErrInvalidTransition, j.Status)
		}
		now := l.now().UTC()
		j.Status = domain.JobStatusProcessing
		j.StartedAt = &now
		return nil
	})
}

// ReportProgress records progress. Values below the last reported progress
// are ignored so progress never moves backwards.
func (l *JobLedger) ReportProgress(ctx context.Context, runID string, progress int, step string) error {
	return l.update(ctx, runID, func(j *domain.IncidentJob) error {
		if !j.Status.CanAdvanceTo(domain.JobStatusProcessing) {
			return fmt.Errorf("%w: progress on %s job", ErrInvalidTransition, j.Status)
		}
		if j.Status == domain.JobStatusQueued {
			now := l.now().UTC()
			j.Status = domain.JobStatusProcessing
			j.StartedAt = &now
		}
		progress = clamp(progress, 0, 100)
		if progress < j.Progress {
			return nil
		}
		j.Progress = progress
		j.CurrentStep = step
		return nil
	})
}

// Complete stores the result and makes the job terminal.
func (l *JobLedger) Complete(ctx context.Context, runID string, result *domain.AnalysisResult) error {
	if result == nil {
		return errors.New("complete requires a result")
	}
	return l.update(ctx, runID, func(j *domain.IncidentJob) error {
		if !j.Status.CanAdvanceTo(domain.JobStatusCompleted) {
			return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, j.Status)
		}
		now := l.now().UTC()
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
		j.Status = domain.JobStatusCompleted
		j.Progress = 100
		j.CurrentStep = "completed"
		j.Result = result
		j.Error = ""
		j.CompletedAt = &now
		return nil
	})
}

// Fail records the error and makes the job terminal. No result is kept.
func (l *JobLedger) Fail(ctx context.Context, runID, message string) error {
	if strings.TrimSpace(message) == "" {
		message = "unknown error"
	}
	return l.update(ctx, runID, func(j *domain.IncidentJob) error {
		if !j.Status.CanAdvanceTo(domain.JobStatusFailed) {
			return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, j.Status)
		}
		now := l.now().UTC()
		j.Status = domain.JobStatusFailed
		j.CurrentStep = "failed"
		j.Result = nil
		j.Error = message
		j.CompletedAt = &now
		return nil
	})
}

// Get returns the job reconciled with the dispatcher's view.
func (l *JobLedger) Get(ctx context.Context, runID string) (*domain.IncidentJob, error) {
	job, err := l.repo.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	info, err := l.dispatcher.State(ctx, runID)
	if err != nil {
		logger.CtxWarn(ctx, "dispatcher state for %s unavailable, serving last known record: %v", runID, err)
		if job == nil {
			return nil, ErrJobNotFound
		}
		return job, nil
	}

	if job == nil {
		if info.State == dispatch.StateUnknown {
			return nil, ErrJobNotFound
		}
		return synthesize(runID, info), nil
	}
	return l.reconcile(ctx, job, info), nil
}

// List returns up to limit recent jobs, each reconciled.
func (l *JobLedger) List(ctx context.Context, limit int) ([]*domain.IncidentJob, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	jobs, err := l.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for i, j := range jobs {
		if j.Status.Terminal() {
			continue
		}
		info, err := l.dispatcher.State(ctx, j.RunID)
		if err != nil {
			continue
		}
		jobs[i] = l.reconcile(ctx, j, info)
	}
	return jobs, nil
}

// Cleanup deletes jobs created more than maxAge ago and returns how many
// were removed.
func (l *JobLedger) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := l.now().Add(-maxAge)
	n, err := l.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	if p, ok := l.dispatcher.(interface{ Prune(time.Time) int }); ok {
		p.Prune(cutoff)
	}
	if n > 0 {
		logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "old jobs removed")
	}
	return n, nil
}

// reconcile folds dispatcher state into a non-terminal record. A task the
// dispatcher saw fail without the ledger hearing about it (a panic, for
// example) is failed here, as is a job created before this process started
// that the dispatcher has never seen.
func (l *JobLedger) reconcile(ctx context.Context, job *domain.IncidentJob, info dispatch.Info) *domain.IncidentJob {
	if job.Status.Terminal() {
		return job
	}
	switch info.State {
	case dispatch.StateFailed:
		return l.failStale(ctx, job, info.Err)
	case dispatch.StateUnknown:
		if job.CreatedAt.Before(l.bootedAt) {
			return l.failStale(ctx, job, lostJobError)
		}
	case dispatch.StateRunning:
		if job.Status == domain.JobStatusQueued {
			job.Status = domain.JobStatusProcessing
		}
	}
	return job
}

// failStale fails job on behalf of a task that can no longer report, then
// returns the stored record.
func (l *JobLedger) failStale(ctx context.Context, job *domain.IncidentJob, message string) *domain.IncidentJob {
	if err := l.Fail(ctx, job.RunID, message); err != nil && !errors.Is(err, ErrInvalidTransition) {
		logger.CtxWarn(ctx, "record lost task for %s: %v", job.RunID, err)
		return job
	}
	if fresh, err := l.repo.Get(ctx, job.RunID); err == nil && fresh != nil {
		return fresh
	}
	return job
}

// synthesize builds the minimal record for a task only the dispatcher
// knows, e.g. after a restart with a fresh in-memory store.
func synthesize(runID string, info dispatch.Info) *domain.IncidentJob {
	job := &domain.IncidentJob{RunID: runID}
	switch info.State {
	case dispatch.StatePending:
		job.Status = domain.JobStatusQueued
	case dispatch.StateRunning:
		job.Status = domain.JobStatusProcessing
	case dispatch.StateSucceeded:
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		job.CompletedAt = &info.UpdatedAt
	case dispatch.StateFailed:
		job.Status = domain.JobStatusFailed
		job.Error = info.Err
		if job.Error == "" {
			job.Error = "unknown error"
		}
		job.CompletedAt = &info.UpdatedAt
	}
	return job
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
