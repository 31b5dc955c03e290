package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/timmy/portdesk/internal/domain"
)

// classificationRule maps a set of patterns to a category. Rules are tried
// in order and the first match wins.
type classificationRule struct {
	category domain.IncidentType
	patterns []*regexp.Regexp
}

// severityThreshold is reached when either limit is met.
type severityThreshold struct {
	severity domain.Severity
	rateOver float64 // error rate strictly above
	rateMin  float64 // error rate at or above, used when rateOver is zero
	issues   int     // recent issue count at or above
}

type severityOverride struct {
	severity domain.Severity
	pattern  *regexp.Regexp
}

var defaultClassification = []classificationRule{
	{
		category: domain.IncidentContainer,
		patterns: compileAll(`\bcontainers?\b`, `\bcntr\b`, `\b(msku|oolu|temu|cmau)\w*`),
	},
	{
		category: domain.IncidentEDI,
		patterns: compileAll(`\bedi\b`, `\bmessages?\b`, `\b(coparn|coarri|codeco|iftmin)\b`, `\bcommunications?\b`),
	},
	{
		category: domain.IncidentVessel,
		patterns: compileAll(`\bvessels?\b`, `\bships?\b`, `\bmv\b`, `\bimo\b`),
	},
}

var defaultThresholds = []severityThreshold{
	{severity: domain.SeverityHigh, rateOver: 10, issues: 11},
	{severity: domain.SeverityMedium, rateMin: 5, issues: 3},
}

var defaultOverrides = []severityOverride{
	{severity: domain.SeverityHigh, pattern: regexp.MustCompile(`(?i)\b(urgent|critical)\b`)},
	{severity: domain.SeverityLow, pattern: regexp.MustCompile(`(?i)\b(minor|low)\b`)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// RuleEngine classifies incidents and grades severity from data tables.
type RuleEngine struct {
	classification []classificationRule
	thresholds     []severityThreshold
	overrides      []severityOverride
}

// NewRuleEngine returns the engine with the built-in tables.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{
		classification: defaultClassification,
		thresholds:     defaultThresholds,
		overrides:      defaultOverrides,
	}
}

// Classify returns the first category whose patterns match text.
func (e *RuleEngine) Classify(text string) domain.IncidentType {
	for _, rule := range e.classification {
		for _, p := range rule.patterns {
			if p.MatchString(text) {
				return rule.category
			}
		}
	}
	return domain.IncidentGeneral
}

// SeverityFor grades severity from the worst channel error rate and the
// number of recent matching issues, then applies wording overrides.
// The returned factors explain the decision.
func (e *RuleEngine) SeverityFor(text string, errorRate float64, issueCount int) (domain.Severity, []string) {
	severity := domain.SeverityLow
	var factors []string

	for _, t := range e.thresholds {
		rateHit := (t.rateOver > 0 && errorRate > t.rateOver) || (t.rateOver == 0 && errorRate >= t.rateMin)
		issueHit := issueCount >= t.issues
		if rateHit || issueHit {
			severity = t.severity
			if rateHit {
				factors = append(factors, fmt.Sprintf("error rate %.1f%% reaches %s threshold", errorRate, t.severity))
			}
			if issueHit {
				factors = append(factors, fmt.Sprintf("%d recent issues reach %s threshold", issueCount, t.severity))
			}
			break
		}
	}

	for _, o := range e.overrides {
		if m := o.pattern.FindString(text); m != "" {
			if o.severity != severity {
				factors = append(factors, fmt.Sprintf("wording %q sets severity to %s", m, o.severity))
			}
			severity = o.severity
			break
		}
	}

	if len(factors) == 0 {
		factors = append(factors, "no threshold reached")
	}
	return severity, factors
}

// Keywords returns the matched domain keywords for each category, in rule
// order. Used to steer evidence lookups.
func (e *RuleEngine) Keywords(text string) map[domain.IncidentType][]string {
	out := make(map[domain.IncidentType][]string)
	for _, rule := range e.classification {
		for _, p := range rule.patterns {
			for _, m := range p.FindAllString(text, -1) {
				out[rule.category] = appendUnique(out[rule.category], strings.ToLower(m))
			}
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
