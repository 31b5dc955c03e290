package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/portdesk/internal/dispatch"
	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/repository"
)

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(_ context.Context, _ string, progress ProgressFunc) (*domain.AnalysisResult, error) {
	progress(ProgressContext, StepContext)
	return nil, errors.New("backend exploded")
}

func startLedger(t *testing.T, analyzer Analyzer) *JobLedger {
	t.Helper()
	pool := dispatch.New(dispatch.Config{Workers: 2, QueueSize: 8})
	pool.Start(context.Background())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	ledger := NewJobLedger(repository.NewMemoryJobRepository(), pool)
	ledger.UseRunner(NewIncidentRunner(analyzer, ledger))
	return ledger
}

func waitTerminal(t *testing.T, l *JobLedger, runID string) *domain.IncidentJob {
	t.Helper()
	var job *domain.IncidentJob
	require.Eventually(t, func() bool {
		j, err := l.Get(context.Background(), runID)
		if err != nil {
			return false
		}
		job = j
		return j.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestRunnerCompletesJob(t *testing.T) {
	gw := &fakeGateway{
		health: &domain.SystemHealth{WindowHours: 24, EDI: domain.ChannelHealth{Total: 50, Errors: 6, ErrorRatePercent: 12}},
		edi:    &domain.EDIAnalysis{WindowHours: 6, TotalMessages: 20, ErrorCount: 5},
		issues: &domain.RecentIssues{WindowHours: 12},
	}
	svc := newTestAnalysis(gw, &stubRetriever{}, nil)
	ledger := startLedger(t, svc)

	job, err := ledger.Submit(context.Background(), coparnIncident)
	require.NoError(t, err)

	done := waitTerminal(t, ledger, job.RunID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.Result)
	assert.Equal(t, domain.IncidentEDI, done.Result.IncidentType)
	assert.Equal(t, domain.SeverityHigh, done.Result.Severity)
	assert.NotNil(t, done.StartedAt)
}

func TestRunnerRecordsFailure(t *testing.T) {
	ledger := startLedger(t, failingAnalyzer{})

	job, err := ledger.Submit(context.Background(), "anything")
	require.NoError(t, err)

	done := waitTerminal(t, ledger, job.RunID)
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.Equal(t, "backend exploded", done.Error)
	assert.Nil(t, done.Result)
	assert.Equal(t, ProgressContext, done.Progress)
}

func TestRunnerSurvivesPanickingGateway(t *testing.T) {
	gw := &panickingGateway{fakeGateway: fakeGateway{
		edi: &domain.EDIAnalysis{WindowHours: 6, TotalMessages: 20, ErrorCount: 5},
	}}
	ledger := startLedger(t, newTestAnalysis(gw, &stubRetriever{}, nil))

	job, err := ledger.Submit(context.Background(), coparnIncident)
	require.NoError(t, err)

	done := waitTerminal(t, ledger, job.RunID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.NotContains(t, done.Result.EvidenceUsed, EvidenceHealth)
	assert.Contains(t, done.Result.EvidenceUsed, EvidenceEDI)
}
