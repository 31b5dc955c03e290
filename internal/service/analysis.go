package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/logger"
)

// Progress checkpoints reported at phase boundaries.
const (
	ProgressContext    = 15
	ProgressEvidence   = 40
	ProgressClassify   = 80
	ProgressFinalizing = 95
)

// Phase labels reported as current_step.
const (
	StepContext    = "gathering context"
	StepEvidence   = "evidence collection"
	StepClassify   = "classifying severity"
	StepFinalizing = "finalizing"
)

// ProgressFunc receives one-way progress notifications.
type ProgressFunc func(progress int, step string)

// Retriever is the best-effort retrieval the pipeline needs.
type Retriever interface {
	Retrieve(ctx context.Context, query, collection string, topK int) Outcome[[]domain.ContextHit]
}

// AnalysisService runs the five analysis phases for one incident.
type AnalysisService struct {
	retriever  Retriever
	evidence   *EvidenceCollector
	backend    ReasoningBackend
	escalation *EscalationResolver
	topK       int
}

// NewAnalysisService wires the pipeline. topK applies per collection.
func NewAnalysisService(retriever Retriever, evidence *EvidenceCollector, backend ReasoningBackend, escalation *EscalationResolver, topK int) *AnalysisService {
	if topK <= 0 {
		topK = 3
	}
	return &AnalysisService{
		retriever:  retriever,
		evidence:   evidence,
		backend:    backend,
		escalation: escalation,
		topK:       topK,
	}
}

// Analyze produces the full result for text. Only a failure of the reasoning
// backend is returned as an error; retrieval and evidence problems degrade.
func (s *AnalysisService) Analyze(ctx context.Context, text string, progress ProgressFunc) (*domain.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyIncident
	}
	report := monotonic(progress)
	start := time.Now()

	report(ProgressContext, StepContext)
	hits := s.retrieveContext(logger.SetPhase(ctx, StepContext), text)

	report(ProgressEvidence, StepEvidence)
	ev := s.evidence.Collect(logger.SetPhase(ctx, StepEvidence), text)

	report(ProgressClassify, StepClassify)
	res, err := s.backend.Analyze(logger.SetPhase(ctx, StepClassify), &IncidentInput{
		Text:     text,
		Context:  hits,
		Evidence: ev,
	})
	if err != nil {
		return nil, err
	}

	report(ProgressFinalizing, StepFinalizing)
	res.Context = hits
	res.EvidenceUsed = evidenceUsed(ev, hits)
	res.AnalysisLog = append(ev.Log, "analysis complete: "+string(res.IncidentType)+" incident, "+string(res.Severity)+" severity")
	res.Escalation = s.escalation.Resolve(EscalationInput{
		Text:         text,
		IncidentType: res.IncidentType,
		Severity:     res.Severity,
		Health:       ev.Health.Value,
		Affected:     ev.Affected(),
	})

	logger.With(logger.Fields{
		"incident_type": res.IncidentType,
		"severity":      res.Severity,
		"mode":          res.Mode,
	}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "analysis finished")
	return res, nil
}

// retrieveContext queries both collections concurrently. Order is case
// history first, then knowledge base.
func (s *AnalysisService) retrieveContext(ctx context.Context, text string) []domain.ContextHit {
	collections := []string{domain.CollectionCaseHistory, domain.CollectionKnowledgeBase}
	results := make([]Outcome[[]domain.ContextHit], len(collections))

	var g errgroup.Group
	for i, name := range collections {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.CtxError(ctx, "retrieval from %s panicked: %v", name, r)
					results[i] = Degrade([]domain.ContextHit{}, fmt.Errorf("panic: %v", r))
				}
			}()
			results[i] = s.retriever.Retrieve(ctx, text, name, s.topK)
			return nil
		})
	}
	_ = g.Wait()

	hits := []domain.ContextHit{}
	for _, r := range results {
		hits = append(hits, r.Value...)
	}
	return hits
}

func evidenceUsed(ev *Evidence, hits []domain.ContextHit) []string {
	used := ev.Used()
	seen := map[string]bool{}
	for _, h := range hits {
		if !seen[h.Collection] {
			seen[h.Collection] = true
			used = append(used, h.Collection)
		}
	}
	if used == nil {
		used = []string{}
	}
	return used
}

// monotonic drops progress reports that would move backwards.
func monotonic(fn ProgressFunc) ProgressFunc {
	last := -1
	return func(p int, step string) {
		if fn == nil || p < last {
			return
		}
		last = p
		fn(p, step)
	}
}
