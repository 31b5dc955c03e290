package domain

// IncidentType is the classification taxonomy.
type IncidentType string

const (
	IncidentContainer IncidentType = "Container Operations"
	IncidentEDI       IncidentType = "EDI Communications"
	IncidentVessel    IncidentType = "Vessel Operations"
	IncidentGeneral   IncidentType = "General"
)

// Severity of an incident.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s == SeverityHigh || s == SeverityMedium || s == SeverityLow
}

// AnalysisMode records which reasoning backend produced a result.
type AnalysisMode string

const (
	ModeDelegated     AnalysisMode = "delegated"
	ModeDeterministic AnalysisMode = "deterministic"
)

// AnalysisResult is the structured output stored against a completed job.
type AnalysisResult struct {
	IncidentType    IncidentType     `json:"incident_type"`
	Severity        Severity         `json:"severity"`
	EvidenceUsed    []string         `json:"evidence_used"`
	Recommendations []string         `json:"recommendations"`
	SeverityFactors []string         `json:"severity_factors,omitempty"`
	AnalysisLog     []string         `json:"analysis_log,omitempty"`
	Escalation      EscalationRecord `json:"escalation"`
	Mode            AnalysisMode     `json:"mode"`
	Context         []ContextHit     `json:"context,omitempty"`
}

// ContextHit is a retrieval hit attributed to its collection.
type ContextHit struct {
	Collection string  `json:"collection"`
	ID         string  `json:"id"`
	Score      float32 `json:"score"`
	Text       string  `json:"text"`
	Source     string  `json:"source,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Contact is one routing-table entry.
type Contact struct {
	Module          string   `json:"module" yaml:"module"`
	Name            string   `json:"name" yaml:"name"`
	Role            string   `json:"role" yaml:"role"`
	Email           string   `json:"email" yaml:"email"`
	Responsibility  string   `json:"responsibility,omitempty" yaml:"responsibility"`
	EscalationSteps []string `json:"escalation_steps" yaml:"escalation_steps"`
}

// TimelineStep is one entry of an escalation timeline.
type TimelineStep struct {
	TimeOffset  string `json:"time_offset"`
	Action      string `json:"action"`
	Responsible string `json:"responsible"`
}

// EscalationRecord is the routed escalation attached to a job result.
type EscalationRecord struct {
	IncidentID               string         `json:"incident_id"`
	IncidentType             IncidentType   `json:"incident_type"`
	Severity                 Severity       `json:"severity"`
	Module                   string         `json:"module"`
	PrimaryContact           Contact        `json:"primary_contact"`
	EscalationTimeline       []TimelineStep `json:"escalation_timeline"`
	TicketPriority           string         `json:"ticket_priority"`
	EstimatedResolutionTime  string         `json:"estimated_resolution_time"`
	StakeholderNotifications []string       `json:"stakeholder_notifications"`
	ImmediateActions         []string       `json:"immediate_actions"`
	MonitoringRequirements   []string       `json:"monitoring_requirements"`
}
