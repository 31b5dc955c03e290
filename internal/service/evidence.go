package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/logger"
)

// EvidenceGateway is the read-only view of the operational store.
// Lookups that find nothing return (nil, nil).
type EvidenceGateway interface {
	OperationalSnapshot(ctx context.Context) (*domain.OperationalSnapshot, error)
	SystemHealth(ctx context.Context) (*domain.SystemHealth, error)
	ContainerDetails(ctx context.Context, cntrNo string) (*domain.ContainerDetails, error)
	SearchContainers(ctx context.Context, c domain.ContainerCriteria) ([]domain.Container, error)
	VesselDetails(ctx context.Context, name string, imo int) (*domain.VesselDetails, error)
	AnalyzeEDI(ctx context.Context, hours int) (*domain.EDIAnalysis, error)
	SearchRecentIssues(ctx context.Context, keywords []string, hours int) (*domain.RecentIssues, error)
}

// Evidence source names reported in evidence_used.
const (
	EvidenceSnapshot      = "operational_snapshot"
	EvidenceHealth        = "system_health"
	EvidenceContainer     = "container_details"
	EvidenceContainerList = "container_search"
	EvidenceVessel        = "vessel_details"
	EvidenceEDI           = "edi_analysis"
	EvidenceRecentIssues  = "recent_issues"
)

const ediAnalysisHours = 6

var (
	containerNoPattern = regexp.MustCompile(`\b[A-Z]{4}\d{7}\b`)
	imoPattern         = regexp.MustCompile(`(?i)\bIMO\s*(\d{7})\b`)
	errorKeywords      = []string{"timeout", "connection", "segment", "format", "validation"}
)

// Entities are the identifiers pulled out of the incident text.
type Entities struct {
	ContainerNumbers []string
	VesselName       string
	IMO              int
	Keywords         map[domain.IncidentType][]string
}

// Mentions reports whether any keyword of the category appeared.
func (e Entities) Mentions(t domain.IncidentType) bool {
	return len(e.Keywords[t]) > 0
}

// ExtractEntities finds container numbers, a vessel reference and the
// domain keywords in text.
func ExtractEntities(text string, rules *RuleEngine) Entities {
	ent := Entities{Keywords: rules.Keywords(text)}

	for _, m := range containerNoPattern.FindAllString(strings.ToUpper(text), -1) {
		ent.ContainerNumbers = appendUnique(ent.ContainerNumbers, m)
	}
	if m := imoPattern.FindStringSubmatch(text); m != nil {
		ent.IMO, _ = strconv.Atoi(m[1])
	}

	words := strings.Fields(text)
	for i := 0; i+1 < len(words); i++ {
		next := strings.Trim(words[i+1], ".,;:!?()\"'")
		if next == "" {
			continue
		}
		switch strings.ToLower(words[i]) {
		case "mv":
			ent.VesselName = "MV " + next
		case "vessel":
			ent.VesselName = next
		default:
			continue
		}
		break
	}
	return ent
}

// Evidence is the ephemeral bundle gathered for one incident. A lookup that
// was not attempted keeps the zero Outcome.
type Evidence struct {
	Entities          Entities
	Snapshot          Outcome[*domain.OperationalSnapshot]
	Health            Outcome[*domain.SystemHealth]
	Container         Outcome[*domain.ContainerDetails]
	ProblemContainers Outcome[[]domain.Container]
	Vessel            Outcome[*domain.VesselDetails]
	EDI               Outcome[*domain.EDIAnalysis]
	RecentIssues      Outcome[*domain.RecentIssues]
	Log               []string
}

// Used lists the sources that returned data.
func (e *Evidence) Used() []string {
	var out []string
	if e.Snapshot.Available() && e.Snapshot.Value != nil {
		out = append(out, EvidenceSnapshot)
	}
	if e.Health.Available() && e.Health.Value != nil {
		out = append(out, EvidenceHealth)
	}
	if e.Container.Available() && e.Container.Value != nil {
		out = append(out, EvidenceContainer)
	}
	if e.ProblemContainers.Available() && len(e.ProblemContainers.Value) > 0 {
		out = append(out, EvidenceContainerList)
	}
	if e.Vessel.Available() && e.Vessel.Value != nil {
		out = append(out, EvidenceVessel)
	}
	if e.EDI.Available() && e.EDI.Value != nil {
		out = append(out, EvidenceEDI)
	}
	if e.RecentIssues.Available() && e.RecentIssues.Value != nil {
		out = append(out, EvidenceRecentIssues)
	}
	return out
}

// IssueCount is the number of recent matching issues, zero when unknown.
func (e *Evidence) IssueCount() int {
	if e.RecentIssues.Value == nil {
		return 0
	}
	return e.RecentIssues.Value.TotalFound
}

// Affected lists affected container numbers found in the store.
func (e *Evidence) Affected() []string {
	if e.Container.Value != nil {
		return []string{e.Container.Value.Container.CntrNo}
	}
	return nil
}

// EvidenceCollector runs the gateway lookups for an incident.
type EvidenceCollector struct {
	gateway           EvidenceGateway
	rules             *RuleEngine
	ediWindowHours    int
	recentWindowHours int
}

// NewEvidenceCollector builds a collector. Zero windows fall back to 12 and
// 48 hours.
func NewEvidenceCollector(gateway EvidenceGateway, rules *RuleEngine, ediWindowHours, recentWindowHours int) *EvidenceCollector {
	if ediWindowHours <= 0 {
		ediWindowHours = 12
	}
	if recentWindowHours <= 0 {
		recentWindowHours = 48
	}
	return &EvidenceCollector{
		gateway:           gateway,
		rules:             rules,
		ediWindowHours:    ediWindowHours,
		recentWindowHours: recentWindowHours,
	}
}

// Collect gathers evidence for text. Every lookup is isolated: a failure is
// logged and recorded as a degraded outcome, and never stops the others.
func (c *EvidenceCollector) Collect(ctx context.Context, text string) *Evidence {
	ev := &Evidence{Entities: ExtractEntities(text, c.rules)}
	ent := ev.Entities

	var (
		mu  sync.Mutex
		log = map[string][]string{}
	)
	note := func(step, format string, args ...interface{}) {
		mu.Lock()
		log[step] = append(log[step], fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	var g errgroup.Group

	g.Go(func() error {
		ev.Snapshot = call(ctx, EvidenceSnapshot, func() (*domain.OperationalSnapshot, error) {
			return c.gateway.OperationalSnapshot(ctx)
		})
		if s := ev.Snapshot.Value; s != nil {
			note("1", "baseline: %d vessels, %d containers, %d EDI messages in 24h", s.TotalVessels, s.TotalContainers, s.EDIMessages24h)
		} else if ev.Snapshot.Degraded {
			note("1", "baseline unavailable: %v", ev.Snapshot.Cause)
		}
		return nil
	})

	g.Go(func() error {
		ev.Health = call(ctx, EvidenceHealth, func() (*domain.SystemHealth, error) {
			return c.gateway.SystemHealth(ctx)
		})
		switch h := ev.Health.Value; {
		case ev.Health.Degraded:
			note("2", "health check unavailable: %v", ev.Health.Cause)
		case h != nil && h.MaxErrorRate() > 5:
			note("2", "system stress: EDI %.2f%%, API %.2f%% error rates", h.EDI.ErrorRatePercent, h.API.ErrorRatePercent)
		case h != nil:
			note("2", "system health nominal")
		}
		return nil
	})

	if ent.Mentions(domain.IncidentContainer) || len(ent.ContainerNumbers) > 0 {
		g.Go(func() error {
			for _, no := range ent.ContainerNumbers {
				out := call(ctx, EvidenceContainer, func() (*domain.ContainerDetails, error) {
					return c.gateway.ContainerDetails(ctx, no)
				})
				if out.Degraded {
					ev.Container = out
					note("3", "container lookup %s failed: %v", no, out.Cause)
					break
				}
				if out.Value != nil {
					ev.Container = out
					note("3", "found container %s in status %s", no, out.Value.Container.Status)
					break
				}
			}
			if ev.Container.Value != nil {
				return nil
			}
			ev.ProblemContainers = call(ctx, EvidenceContainerList, func() ([]domain.Container, error) {
				return c.gateway.SearchContainers(ctx, domain.ContainerCriteria{Status: "ERROR", Limit: 5})
			})
			if ev.ProblemContainers.Degraded {
				note("3", "container search failed: %v", ev.ProblemContainers.Cause)
			} else {
				note("3", "found %d containers in ERROR status", len(ev.ProblemContainers.Value))
			}
			return nil
		})
	}

	if ent.Mentions(domain.IncidentEDI) {
		g.Go(func() error {
			ev.EDI = call(ctx, EvidenceEDI, func() (*domain.EDIAnalysis, error) {
				return c.gateway.AnalyzeEDI(ctx, ediAnalysisHours)
			})
			if a := ev.EDI.Value; a != nil {
				note("4", "EDI analysis: %d errors in %d messages (%.1f%%) over %dh", a.ErrorCount, a.TotalMessages, a.ErrorRatePercent, a.WindowHours)
			} else if ev.EDI.Degraded {
				note("4", "EDI analysis failed: %v", ev.EDI.Cause)
			}
			return nil
		})
	}

	if ent.VesselName != "" || ent.IMO > 0 {
		g.Go(func() error {
			ev.Vessel = call(ctx, EvidenceVessel, func() (*domain.VesselDetails, error) {
				return c.gateway.VesselDetails(ctx, ent.VesselName, ent.IMO)
			})
			switch {
			case ev.Vessel.Degraded:
				note("5", "vessel lookup failed: %v", ev.Vessel.Cause)
			case ev.Vessel.Value != nil:
				v := ev.Vessel.Value.Vessel
				note("5", "found vessel %s (IMO %d), operator %s", v.VesselName, v.IMONo, v.OperatorName)
			default:
				note("5", "vessel %q not found", ent.VesselName)
			}
			return nil
		})
	}

	g.Go(func() error {
		keywords, hours := c.issueQuery(ent)
		ev.RecentIssues = call(ctx, EvidenceRecentIssues, func() (*domain.RecentIssues, error) {
			return c.gateway.SearchRecentIssues(ctx, keywords, hours)
		})
		if r := ev.RecentIssues.Value; r != nil {
			note("6", "found %d similar issues in the last %dh", r.TotalFound, hours)
		} else if ev.RecentIssues.Degraded {
			note("6", "recent issue search failed: %v", ev.RecentIssues.Cause)
		}
		return nil
	})

	_ = g.Wait()

	for _, step := range []string{"1", "2", "3", "4", "5", "6"} {
		ev.Log = append(ev.Log, log[step]...)
	}
	return ev
}

// issueQuery picks keywords and the look-back window for the recent-issue
// search. EDI incidents look back a shorter window.
func (c *EvidenceCollector) issueQuery(ent Entities) ([]string, int) {
	keywords := append([]string(nil), errorKeywords...)
	for _, t := range []domain.IncidentType{domain.IncidentContainer, domain.IncidentEDI, domain.IncidentVessel} {
		for _, k := range ent.Keywords[t] {
			keywords = appendUnique(keywords, k)
		}
	}
	if ent.Mentions(domain.IncidentEDI) {
		return keywords, c.ediWindowHours
	}
	return keywords, c.recentWindowHours
}

func call[T any](ctx context.Context, name string, fn func() (T, error)) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "evidence lookup %s panicked: %v", name, r)
			var zero T
			out = Degrade(zero, fmt.Errorf("panic: %v", r))
		}
	}()
	v, err := fn()
	if err != nil {
		logger.CtxWarn(ctx, "evidence lookup %s failed: %v", name, err)
		var zero T
		return Degrade(zero, err)
	}
	return Ok(v)
}
