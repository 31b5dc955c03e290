package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/timmy/portdesk/internal/domain"
)

func TestRuleEngineClassify(t *testing.T) {
	e := NewRuleEngine()

	tests := []struct {
		name string
		text string
		want domain.IncidentType
	}{
		{"container keyword", "Container stuck at gate", domain.IncidentContainer},
		{"container prefix", "MSKU1234567 missing from yard", domain.IncidentContainer},
		{"edi message type", "COPARN not received by partner", domain.IncidentEDI},
		{"edi word", "EDI feed delayed", domain.IncidentEDI},
		{"vessel", "Vessel berth schedule wrong", domain.IncidentVessel},
		{"imo", "Wrong ETA for IMO 9876543", domain.IncidentVessel},
		{"container wins over edi", "container EDI message rejected", domain.IncidentContainer},
		{"immediate is not edi", "Please respond immediately, login broken", domain.IncidentGeneral},
		{"general", "Printer on level 3 is jammed", domain.IncidentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Classify(tt.text))
		})
	}
}

func TestRuleEngineSeverity(t *testing.T) {
	e := NewRuleEngine()

	tests := []struct {
		name   string
		text   string
		rate   float64
		issues int
		want   domain.Severity
	}{
		{"high rate", "edi errors", 12, 0, domain.SeverityHigh},
		{"rate at ten is medium", "edi errors", 10, 0, domain.SeverityMedium},
		{"medium rate", "edi errors", 7, 0, domain.SeverityMedium},
		{"medium rate boundary", "edi errors", 5, 0, domain.SeverityMedium},
		{"low", "edi errors", 3, 1, domain.SeverityLow},
		{"many issues", "edi errors", 0, 11, domain.SeverityHigh},
		{"ten issues", "edi errors", 0, 10, domain.SeverityMedium},
		{"three issues", "edi errors", 0, 3, domain.SeverityMedium},
		{"urgent wording", "URGENT: edi errors", 0, 0, domain.SeverityHigh},
		{"critical wording", "critical vessel delay", 1, 0, domain.SeverityHigh},
		{"minor wording", "minor typo in advice", 12, 20, domain.SeverityLow},
		{"urgent beats minor", "urgent minor issue", 0, 0, domain.SeverityHigh},
		{"lower is not low", "lower deck container", 0, 0, domain.SeverityLow},
		{"slow is not low", "slow response", 7, 0, domain.SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, factors := e.SeverityFor(tt.text, tt.rate, tt.issues)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, factors)
		})
	}
}

func TestRuleEngineKeywords(t *testing.T) {
	e := NewRuleEngine()
	kw := e.Keywords("EDI COPARN message for container MSKU1234567 on vessel")

	assert.Equal(t, []string{"container", "msku1234567"}, kw[domain.IncidentContainer])
	assert.Equal(t, []string{"edi", "message", "coparn"}, kw[domain.IncidentEDI])
	assert.Equal(t, []string{"vessel"}, kw[domain.IncidentVessel])
}
