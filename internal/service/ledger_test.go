package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/timmy/portdesk/internal/dispatch"
	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/repository"
)

// fakeDispatcher records tasks without running them.
type fakeDispatcher struct {
	mu         sync.Mutex
	tasks      map[string]dispatch.Task
	states     map[string]dispatch.Info
	enqueueErr error
	stateErr   error
	pruned     int
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{tasks: map[string]dispatch.Task{}, states: map[string]dispatch.Info{}}
}

func (d *fakeDispatcher) Enqueue(_ context.Context, id string, task dispatch.Task) error {
	if d.enqueueErr != nil {
		return d.enqueueErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks[id] = task
	d.states[id] = dispatch.Info{State: dispatch.StatePending}
	return nil
}

func (d *fakeDispatcher) State(_ context.Context, id string) (dispatch.Info, error) {
	if d.stateErr != nil {
		return dispatch.Info{}, d.stateErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.states[id]
	if !ok {
		return dispatch.Info{State: dispatch.StateUnknown}, nil
	}
	return info, nil
}

func (d *fakeDispatcher) Prune(time.Time) int {
	d.pruned++
	return 0
}

func (d *fakeDispatcher) set(id string, info dispatch.Info) {
	d.mu.Lock()
	d.states[id] = info
	d.mu.Unlock()
}

type nopBuilder struct{}

func (nopBuilder) Task(string, string) dispatch.Task {
	return func(context.Context) error { return nil }
}

func newTestLedger() (*JobLedger, *repository.MemoryJobRepository, *fakeDispatcher) {
	repo := repository.NewMemoryJobRepository()
	d := newFakeDispatcher()
	l := NewJobLedger(repo, d)
	l.UseRunner(nopBuilder{})
	return l, repo, d
}

func TestLedgerSubmit(t *testing.T) {
	l, repo, d := newTestLedger()
	ctx := context.Background()

	job, err := l.Submit(ctx, "  vessel berth delayed  ")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, "vessel berth delayed", job.IncidentText)
	assert.NotEmpty(t, job.RunID)
	assert.Contains(t, d.tasks, job.RunID)

	stored, err := repo.Get(ctx, job.RunID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.JobStatusQueued, stored.Status)

	_, err = l.Submit(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyIncident)
}

func TestLedgerSubmitDispatchFailure(t *testing.T) {
	l, repo, d := newTestLedger()
	d.enqueueErr = dispatch.ErrQueueFull

	_, err := l.Submit(context.Background(), "container stuck")
	require.ErrorIs(t, err, dispatch.ErrQueueFull)

	jobs, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
}

func TestLedgerLifecycle(t *testing.T) {
	l, _, _ := newTestLedger()
	ctx := context.Background()
	job, err := l.Submit(ctx, "EDI failing")
	require.NoError(t, err)
	id := job.RunID

	require.NoError(t, l.MarkStarted(ctx, id))
	assert.ErrorIs(t, l.MarkStarted(ctx, id), ErrInvalidTransition)

	require.NoError(t, l.ReportProgress(ctx, id, 40, StepEvidence))
	require.NoError(t, l.ReportProgress(ctx, id, 15, StepContext))

	got, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, StepEvidence, got.CurrentStep)
	assert.NotNil(t, got.StartedAt)

	result := &domain.AnalysisResult{IncidentType: domain.IncidentEDI, Severity: domain.SeverityHigh}
	require.NoError(t, l.Complete(ctx, id, result))

	got, err = l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, domain.IncidentEDI, got.Result.IncidentType)
	assert.NotNil(t, got.CompletedAt)

	// terminal records are immutable
	assert.ErrorIs(t, l.Fail(ctx, id, "late"), ErrInvalidTransition)
	assert.ErrorIs(t, l.ReportProgress(ctx, id, 99, "x"), ErrInvalidTransition)
	assert.ErrorIs(t, l.Complete(ctx, id, result), ErrInvalidTransition)
}

func TestLedgerFailDropsResult(t *testing.T) {
	l, _, _ := newTestLedger()
	ctx := context.Background()
	job, err := l.Submit(ctx, "crane down")
	require.NoError(t, err)

	require.NoError(t, l.Fail(ctx, job.RunID, ""))
	got, err := l.Get(ctx, job.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "unknown error", got.Error)
	assert.Nil(t, got.Result)

	assert.ErrorIs(t, l.MarkStarted(ctx, "missing"), ErrJobNotFound)
}

func TestLedgerGetReconciles(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown everywhere", func(t *testing.T) {
		l, _, _ := newTestLedger()
		_, err := l.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("dispatcher only", func(t *testing.T) {
		l, _, d := newTestLedger()
		d.set("orphan", dispatch.Info{State: dispatch.StateRunning})
		got, err := l.Get(ctx, "orphan")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusProcessing, got.Status)
	})

	t.Run("dispatcher failed silently", func(t *testing.T) {
		l, repo, d := newTestLedger()
		job, err := l.Submit(ctx, "gate system frozen")
		require.NoError(t, err)
		d.set(job.RunID, dispatch.Info{State: dispatch.StateFailed, Err: "panic: boom"})

		got, err := l.Get(ctx, job.RunID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
		assert.Equal(t, "panic: boom", got.Error)

		stored, err := repo.Get(ctx, job.RunID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, stored.Status)
	})

	t.Run("dispatcher unavailable", func(t *testing.T) {
		l, _, d := newTestLedger()
		job, err := l.Submit(ctx, "reefer alarm")
		require.NoError(t, err)
		d.stateErr = errors.New("redis down")

		got, err := l.Get(ctx, job.RunID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusQueued, got.Status)

		_, err = l.Get(ctx, "other")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestLedgerListAndCleanup(t *testing.T) {
	l, repo, d := newTestLedger()
	ctx := context.Background()

	old := &domain.IncidentJob{RunID: "old", Status: domain.JobStatusCompleted, CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, repo.Put(ctx, old))
	_, err := l.Submit(ctx, "first")
	require.NoError(t, err)
	second, err := l.Submit(ctx, "second")
	require.NoError(t, err)

	jobs, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "old", jobs[2].RunID)

	jobs, err = l.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	n, err := l.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, d.pruned)

	_, err = l.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = l.Get(ctx, second.RunID)
	assert.NoError(t, err)
}

func TestLedgerFailsJobsLostInRestart(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryJobRepository()
	started := time.Now().Add(-5 * time.Minute).UTC()
	stranded := &domain.IncidentJob{
		RunID:        "stranded",
		Status:       domain.JobStatusProcessing,
		IncidentText: "yard crane offline",
		Progress:     40,
		CreatedAt:    started,
		StartedAt:    &started,
	}
	require.NoError(t, repo.Put(ctx, stranded))
	require.NoError(t, repo.Put(ctx, &domain.IncidentJob{RunID: "waiting", Status: domain.JobStatusQueued, CreatedAt: started}))

	// a fresh pool knows nothing about jobs from the previous process
	pool := dispatch.New(dispatch.Config{Workers: 1, QueueSize: 1})
	pool.Start(ctx)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	l := NewJobLedger(repo, pool)
	l.UseRunner(nopBuilder{})

	for i := 0; i < 3; i++ {
		got, err := l.Get(ctx, "stranded")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
		assert.Equal(t, lostJobError, got.Error)
		assert.Equal(t, 40, got.Progress)
	}

	jobs, err := l.List(ctx, 0)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.True(t, j.Status.Terminal(), "job %s left %s", j.RunID, j.Status)
	}
}

func TestLedgerKeepsFreshUnseenJobQueued(t *testing.T) {
	l, repo, _ := newTestLedger()
	ctx := context.Background()
	// stored but not yet handed to the dispatcher
	require.NoError(t, repo.Put(ctx, &domain.IncidentJob{RunID: "fresh", Status: domain.JobStatusQueued, CreatedAt: time.Now().Add(time.Second).UTC()}))

	got, err := l.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
}

func durableStores(t *testing.T) map[string]JobRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.Migrate(db))

	return map[string]JobRepository{
		"memory": repository.NewMemoryJobRepository(),
		"redis":  repository.NewRedisJobRepository(rdb, "test:job:"),
		"sql":    repository.NewJobRepository(db),
	}
}

func TestLedgerTerminalPollsAreStable(t *testing.T) {
	gw := &fakeGateway{
		health: &domain.SystemHealth{WindowHours: 24, EDI: domain.ChannelHealth{Total: 50, Errors: 6, ErrorRatePercent: 12}},
		edi:    &domain.EDIAnalysis{WindowHours: 6, TotalMessages: 20, ErrorCount: 5},
		issues: &domain.RecentIssues{WindowHours: 12, TotalFound: 2},
	}
	result, err := newTestAnalysis(gw, &stubRetriever{}, nil).Analyze(context.Background(), coparnIncident, nil)
	require.NoError(t, err)

	for name, repo := range durableStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d := newFakeDispatcher()
			l := NewJobLedger(repo, d)
			l.UseRunner(nopBuilder{})

			done, err := l.Submit(ctx, coparnIncident)
			require.NoError(t, err)
			require.NoError(t, l.MarkStarted(ctx, done.RunID))
			require.NoError(t, l.Complete(ctx, done.RunID, result))

			failed, err := l.Submit(ctx, "gate OCR offline")
			require.NoError(t, err)
			require.NoError(t, l.Fail(ctx, failed.RunID, "deterministic fallback failed: rules missing"))

			for _, id := range []string{done.RunID, failed.RunID} {
				first, err := l.Get(ctx, id)
				require.NoError(t, err)
				want, err := json.Marshal(first)
				require.NoError(t, err)

				// dispatcher churn after the fact must not leak into the record
				d.set(id, dispatch.Info{State: dispatch.StateFailed, Err: "late worker error"})
				for i := 0; i < 3; i++ {
					again, err := l.Get(ctx, id)
					require.NoError(t, err)
					got, err := json.Marshal(again)
					require.NoError(t, err)
					assert.JSONEq(t, string(want), string(got), "poll %d of %s", i, id)
					assert.Equal(t, string(want), string(got))
				}
			}

			got, err := l.Get(ctx, done.RunID)
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusCompleted, got.Status)
			assert.Equal(t, domain.SeverityHigh, got.Result.Severity)
			got, err = l.Get(ctx, failed.RunID)
			require.NoError(t, err)
			assert.Equal(t, "deterministic fallback failed: rules missing", got.Error)
			assert.Nil(t, got.Result)
		})
	}
}
