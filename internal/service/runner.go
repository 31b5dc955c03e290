package service

import (
	"context"
	"time"

	"github.com/timmy/portdesk/internal/dispatch"
	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/logger"
)

// Analyzer is the part of AnalysisService the runner depends on.
type Analyzer interface {
	Analyze(ctx context.Context, text string, progress ProgressFunc) (*domain.AnalysisResult, error)
}

// IncidentRunner executes one analysis on a dispatcher worker and reports
// every state change back to the ledger.
type IncidentRunner struct {
	analyzer Analyzer
	ledger   *JobLedger
}

func NewIncidentRunner(analyzer Analyzer, ledger *JobLedger) *IncidentRunner {
	return &IncidentRunner{analyzer: analyzer, ledger: ledger}
}

// Task implements TaskBuilder.
func (r *IncidentRunner) Task(runID, text string) dispatch.Task {
	return func(ctx context.Context) error {
		return r.run(ctx, runID, text)
	}
}

func (r *IncidentRunner) run(ctx context.Context, runID, text string) error {
	ctx = logger.SetRunID(ctx, runID)
	start := time.Now()

	if err := r.ledger.MarkStarted(ctx, runID); err != nil {
		logger.CtxWarn(ctx, "mark job started: %v", err)
	}

	progress := func(p int, step string) {
		if err := r.ledger.ReportProgress(ctx, runID, p, step); err != nil {
			logger.CtxDebug(ctx, "progress update dropped: %v", err)
		}
	}

	result, err := r.analyzer.Analyze(ctx, text, progress)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("incident analysis failed")
		if ferr := r.ledger.Fail(ctx, runID, err.Error()); ferr != nil {
			logger.CtxWarn(ctx, "record failure: %v", ferr)
		}
		return err
	}

	if err := r.ledger.Complete(ctx, runID, result); err != nil {
		logger.CtxError(ctx, "record result: %v", err)
		return err
	}

	logger.With(logger.Fields{
		"incident_type": result.IncidentType,
		"severity":      result.Severity,
	}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "incident analysis completed")
	return nil
}
