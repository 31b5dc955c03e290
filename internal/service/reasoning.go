package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/llm"
	"github.com/timmy/portdesk/internal/logger"
	"github.com/timmy/portdesk/internal/prompts"
)

// IncidentInput is what a reasoning backend sees: the report, retrieved
// history and the evidence bundle.
type IncidentInput struct {
	Text     string
	Context  []domain.ContextHit
	Evidence *Evidence
}

// ReasoningBackend classifies an incident, grades it and proposes actions.
// The result carries IncidentType, Severity, Recommendations,
// SeverityFactors and Mode; the pipeline fills in the rest.
type ReasoningBackend interface {
	Analyze(ctx context.Context, in *IncidentInput) (*domain.AnalysisResult, error)
}

// DeterministicBackend applies the rule tables.
type DeterministicBackend struct {
	rules *RuleEngine
}

func NewDeterministicBackend(rules *RuleEngine) *DeterministicBackend {
	return &DeterministicBackend{rules: rules}
}

func (b *DeterministicBackend) Analyze(_ context.Context, in *IncidentInput) (*domain.AnalysisResult, error) {
	if in == nil || strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyIncident
	}
	ev := in.Evidence
	if ev == nil {
		ev = &Evidence{}
	}

	incidentType := b.rules.Classify(in.Text)
	severity, factors := b.rules.SeverityFor(in.Text, ev.Health.Value.MaxErrorRate(), ev.IssueCount())

	return &domain.AnalysisResult{
		IncidentType:    incidentType,
		Severity:        severity,
		SeverityFactors: factors,
		Recommendations: Recommend(ev, in.Context),
		Mode:            domain.ModeDeterministic,
	}, nil
}

// Recommend builds actions that name a team and the evidence behind them.
func Recommend(ev *Evidence, hits []domain.ContextHit) []string {
	var recs []string

	if c := ev.Container.Value; c != nil {
		recs = append(recs, fmt.Sprintf("Contact %s team: container records show %s in %s status",
			ModuleContainer, c.Container.CntrNo, c.Container.Status))
	}
	if a := ev.EDI.Value; a != nil && a.ErrorCount > 0 {
		recs = append(recs, fmt.Sprintf("Engage %s team to restore EDI flow: %d of %d messages failed in the last %dh",
			ModuleEDIAPI, a.ErrorCount, a.TotalMessages, a.WindowHours))
	}
	if h := ev.Health.Value; h != nil && h.EDI.ErrorRatePercent > 5 {
		recs = append(recs, fmt.Sprintf("Ask %s (infrastructure) team to stabilise integrations: EDI error rate is %.2f%%",
			ModuleOthers, h.EDI.ErrorRatePercent))
	}
	if list := ev.ProblemContainers.Value; len(list) > 0 {
		ids := make([]string, 0, len(list))
		for _, c := range list {
			ids = append(ids, c.CntrNo)
		}
		recs = append(recs, fmt.Sprintf("Review %d containers in ERROR status with %s team: %s",
			len(list), ModuleContainer, strings.Join(ids, ", ")))
	}
	if v := ev.Vessel.Value; v != nil {
		recs = append(recs, fmt.Sprintf("Confirm schedule and advice with %s team: vessel %s (IMO %d) has %d containers on record",
			ModuleVessel, v.Vessel.VesselName, v.Vessel.IMONo, v.ContainerCount))
	}
	if r := ev.RecentIssues.Value; r != nil && r.TotalFound > 0 {
		recs = append(recs, fmt.Sprintf("Correlate with %d similar issues from the last %dh before applying a fix",
			r.TotalFound, r.WindowHours))
	}
	for _, h := range hits {
		if h.Collection == domain.CollectionCaseHistory {
			recs = append(recs, "Check how a similar past case was resolved: "+firstLine(h.Text, 100))
			break
		}
	}

	if len(recs) == 0 {
		recs = append(recs, fmt.Sprintf("Dispatch a field investigation via %s: no operational records matched the report", ModuleHelpdesk))
	}
	return recs
}

func firstLine(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > max {
		s = string(r[:max]) + "..."
	}
	return s
}

// Generator produces text from a system and a user prompt.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrInvalidDecision means the decision stage returned something that is not
// a usable decision.
var ErrInvalidDecision = errors.New("invalid reasoning decision")

// DelegatedBackend runs a strategy, review and decision prompt chain.
type DelegatedBackend struct {
	gen Generator
}

func NewDelegatedBackend(gen Generator) *DelegatedBackend {
	return &DelegatedBackend{gen: gen}
}

type decision struct {
	IncidentType    string   `json:"incident_type"`
	Severity        string   `json:"severity"`
	Recommendations []string `json:"recommendations"`
	Rationale       string   `json:"rationale"`
}

func (b *DelegatedBackend) Analyze(ctx context.Context, in *IncidentInput) (*domain.AnalysisResult, error) {
	if in == nil || strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyIncident
	}
	brief := Brief(in)

	strategy, err := b.gen.GenerateWithSystem(ctx, prompts.StrategySystemPrompt,
		fmt.Sprintf(prompts.StrategyUserTemplate, in.Text, brief))
	if err != nil {
		return nil, fmt.Errorf("strategy stage: %w", err)
	}
	review, err := b.gen.GenerateWithSystem(ctx, prompts.ReviewSystemPrompt,
		fmt.Sprintf(prompts.ReviewUserTemplate, in.Text, strategy))
	if err != nil {
		return nil, fmt.Errorf("review stage: %w", err)
	}
	raw, err := b.gen.GenerateWithSystem(ctx, prompts.DecisionSystemPrompt,
		fmt.Sprintf(prompts.DecisionUserTemplate, in.Text, brief, review))
	if err != nil {
		return nil, fmt.Errorf("decision stage: %w", err)
	}

	d, err := parseDecision(raw)
	if err != nil {
		return nil, err
	}
	res := &domain.AnalysisResult{
		IncidentType:    domain.IncidentType(d.IncidentType),
		Severity:        domain.Severity(d.Severity),
		Recommendations: d.Recommendations,
		Mode:            domain.ModeDelegated,
	}
	if d.Rationale != "" {
		res.SeverityFactors = []string{d.Rationale}
	}
	return res, nil
}

// parseDecision extracts the outermost JSON object and checks it against the
// taxonomy.
func parseDecision(raw string) (*decision, error) {
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidDecision)
	}
	var d decision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if !contains(prompts.Taxonomy, d.IncidentType) {
		return nil, fmt.Errorf("%w: unknown incident type %q", ErrInvalidDecision, d.IncidentType)
	}
	if !domain.Severity(d.Severity).Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidDecision, d.Severity)
	}
	recs := d.Recommendations[:0]
	for _, r := range d.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			recs = append(recs, r)
		}
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no recommendations", ErrInvalidDecision)
	}
	d.Recommendations = recs
	return &d, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Brief renders context and evidence as prompt input.
func Brief(in *IncidentInput) string {
	var b strings.Builder

	b.WriteString("Similar history:\n")
	if len(in.Context) == 0 {
		b.WriteString("- none retrieved\n")
	}
	for _, h := range in.Context {
		fmt.Fprintf(&b, "- [%s %.2f] %s\n", h.Collection, h.Score, firstLine(h.Text, 300))
	}

	b.WriteString("\nOperational evidence:\n")
	ev := in.Evidence
	if ev == nil {
		b.WriteString("- none collected\n")
		return b.String()
	}
	section := func(name string, v interface{}, degraded bool, cause error) {
		switch {
		case degraded:
			fmt.Fprintf(&b, "- %s: unavailable (%v)\n", name, cause)
		case v == nil:
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return
			}
			fmt.Fprintf(&b, "- %s: %s\n", name, data)
		}
	}
	section(EvidenceSnapshot, nilIfZero(ev.Snapshot.Value), ev.Snapshot.Degraded, ev.Snapshot.Cause)
	section(EvidenceHealth, nilIfZero(ev.Health.Value), ev.Health.Degraded, ev.Health.Cause)
	section(EvidenceContainer, nilIfZero(ev.Container.Value), ev.Container.Degraded, ev.Container.Cause)
	if len(ev.ProblemContainers.Value) > 0 || ev.ProblemContainers.Degraded {
		section(EvidenceContainerList, ev.ProblemContainers.Value, ev.ProblemContainers.Degraded, ev.ProblemContainers.Cause)
	}
	section(EvidenceVessel, nilIfZero(ev.Vessel.Value), ev.Vessel.Degraded, ev.Vessel.Cause)
	section(EvidenceEDI, nilIfZero(ev.EDI.Value), ev.EDI.Degraded, ev.EDI.Cause)
	section(EvidenceRecentIssues, nilIfZero(ev.RecentIssues.Value), ev.RecentIssues.Degraded, ev.RecentIssues.Cause)
	return b.String()
}

// nilIfZero turns typed nil pointers into an untyped nil interface.
func nilIfZero[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return p
}

// FallbackBackend tries Primary and runs Secondary when it fails. A nil
// Primary goes straight to Secondary. A fatal provider error (bad key,
// exhausted quota) suspends Primary for FatalCooldown, five minutes when
// zero, and is reported by Status until the suspension ends.
type FallbackBackend struct {
	Primary       ReasoningBackend
	Secondary     ReasoningBackend
	FatalCooldown time.Duration

	mu    sync.Mutex
	fatal error
	until time.Time
}

const defaultFatalCooldown = 5 * time.Minute

func (b *FallbackBackend) Analyze(ctx context.Context, in *IncidentInput) (*domain.AnalysisResult, error) {
	if b.Primary != nil && b.Status(ctx) == nil {
		res, err := b.Primary.Analyze(ctx, in)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, llm.ErrFatalAPI) {
			cooldown := b.suspend(err)
			logger.CtxError(ctx, "reasoning provider rejected the request, using deterministic rules for %s: %v", cooldown, err)
		} else {
			logger.CtxWarn(ctx, "delegated reasoning failed, falling back to deterministic rules: %v", err)
		}
	}
	return b.Secondary.Analyze(ctx, in)
}

// Status returns the fatal provider error while Primary is suspended.
func (b *FallbackBackend) Status(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fatal == nil || !time.Now().Before(b.until) {
		return nil
	}
	return b.fatal
}

func (b *FallbackBackend) suspend(err error) time.Duration {
	cooldown := b.FatalCooldown
	if cooldown <= 0 {
		cooldown = defaultFatalCooldown
	}
	b.mu.Lock()
	b.fatal = err
	b.until = time.Now().Add(cooldown)
	b.mu.Unlock()
	return cooldown
}
