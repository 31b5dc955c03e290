package service

import (
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timmy/portdesk/internal/domain"
)

// Support modules.
const (
	ModuleContainer = "Container (CNTR)"
	ModuleVessel    = "Vessel (VS)"
	ModuleEDIAPI    = "EDI/API (EA)"
	ModuleOthers    = "Others"
	ModuleHelpdesk  = "PSA Helpdesk"
)

// Ticket priority bands.
const (
	PriorityCritical = "P1 - Critical"
	PriorityHigh     = "P2 - High"
	PriorityMedium   = "P3 - Medium"
)

var defaultContacts = []domain.Contact{
	{
		Module:          ModuleContainer,
		Name:            "Mark Lee",
		Role:            "Product Ops Manager",
		Email:           "mark.lee@psa123.com",
		Responsibility:  "Container lifecycle, yard status and gate operations",
		EscalationSteps: []string{"Notify container duty officer", "Escalate to Head of Container Operations"},
	},
	{
		Module:          ModuleEDIAPI,
		Name:            "Tom Tan",
		Role:            "Product Ops Manager",
		Email:           "tom.tan@psa123.com",
		Responsibility:  "EDI message flows and partner API integrations",
		EscalationSteps: []string{"Engage integration on-call engineer", "Escalate to Head of Integration"},
	},
	{
		Module:          ModuleVessel,
		Name:            "Jaden Smith",
		Role:            "Product Ops Manager",
		Email:           "jaden.smith@psa123.com",
		Responsibility:  "Vessel schedules, berth advice and port calls",
		EscalationSteps: []string{"Notify vessel planning duty team", "Escalate to Head of Marine Operations"},
	},
	{
		Module:          ModuleOthers,
		Name:            "Jacky Chan",
		Role:            "Product Ops Manager",
		Email:           "jacky.chan@psa123.com",
		Responsibility:  "Infrastructure and cross-system issues",
		EscalationSteps: []string{"Engage infrastructure on-call", "Escalate to IT Operations Manager"},
	},
}

var helpdeskContact = domain.Contact{
	Module:          ModuleHelpdesk,
	Name:            "Helpdesk Team",
	Role:            "General Support",
	Email:           "support@psa123.com",
	Responsibility:  "General incident handling",
	EscalationSteps: []string{"Contact duty manager", "Escalate to senior staff"},
}

// moduleByType normalizes incident type wording to a support module.
// Keys are lower case.
var moduleByType = map[string]string{
	"container operations": ModuleContainer,
	"container management": ModuleContainer,
	"vessel operations":    ModuleVessel,
	"vessel management":    ModuleVessel,
	"edi communications":   ModuleEDIAPI,
	"edi communication":    ModuleEDIAPI,
	"edi messages":         ModuleEDIAPI,
	"api issues":           ModuleEDIAPI,
	"system issues":        ModuleOthers,
	"infrastructure":       ModuleOthers,
	"general":              ModuleHelpdesk,
}

// resolutionByModule is keyed by module so that type aliases share a row.
var resolutionByModule = map[string]map[domain.Severity]string{
	ModuleContainer: {domain.SeverityHigh: "4 hours", domain.SeverityMedium: "8 hours", domain.SeverityLow: "24 hours"},
	ModuleVessel:    {domain.SeverityHigh: "6 hours", domain.SeverityMedium: "12 hours", domain.SeverityLow: "48 hours"},
	ModuleEDIAPI:    {domain.SeverityHigh: "2 hours", domain.SeverityMedium: "6 hours", domain.SeverityLow: "12 hours"},
	ModuleOthers:    {domain.SeverityHigh: "1 hour", domain.SeverityMedium: "4 hours", domain.SeverityLow: "8 hours"},
	ModuleHelpdesk:  {domain.SeverityHigh: "8 hours", domain.SeverityMedium: "24 hours", domain.SeverityLow: "72 hours"},
}

// EscalationResolver routes a classified incident to a contact and builds
// the escalation record.
type EscalationResolver struct {
	contacts map[string]domain.Contact
	now      func() time.Time
}

// NewEscalationResolver uses contacts when given, otherwise the built-in
// routing table.
func NewEscalationResolver(contacts []domain.Contact) *EscalationResolver {
	if len(contacts) == 0 {
		contacts = defaultContacts
	}
	r := &EscalationResolver{
		contacts: make(map[string]domain.Contact, len(contacts)),
		now:      time.Now,
	}
	for _, c := range contacts {
		r.contacts[c.Module] = c
	}
	return r
}

// WithClock replaces the clock used for incident ids.
func (r *EscalationResolver) WithClock(now func() time.Time) *EscalationResolver {
	r.now = now
	return r
}

type contactsFile struct {
	Contacts []domain.Contact `yaml:"contacts"`
}

// LoadContacts reads a YAML routing table:
//
//	contacts:
//	  - module: Container (CNTR)
//	    name: Mark Lee
//	    ...
func LoadContacts(path string) ([]domain.Contact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contacts file: %w", err)
	}
	var f contactsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse contacts file: %w", err)
	}
	for i, c := range f.Contacts {
		if c.Module == "" || c.Name == "" {
			return nil, fmt.Errorf("contact %d: module and name are required", i)
		}
	}
	return f.Contacts, nil
}

// ModuleFor normalizes an incident type to its support module. Unknown
// types route to the helpdesk.
func ModuleFor(incidentType domain.IncidentType) string {
	if m, ok := moduleByType[strings.ToLower(strings.TrimSpace(string(incidentType)))]; ok {
		return m
	}
	return ModuleHelpdesk
}

// ContactFor returns the contact for a module, falling back to the helpdesk
// entry and then the built-in helpdesk.
func (r *EscalationResolver) ContactFor(module string) domain.Contact {
	if c, ok := r.contacts[module]; ok {
		return c
	}
	for m, c := range r.contacts {
		if strings.Contains(m, "Helpdesk") {
			return c
		}
	}
	return helpdeskContact
}

// Priority derives the ticket band from severity and channel error rates.
func Priority(severity domain.Severity, health *domain.SystemHealth) string {
	rate := health.MaxErrorRate()
	switch {
	case severity == domain.SeverityHigh || rate > 10:
		return PriorityCritical
	case severity == domain.SeverityMedium || rate > 5:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// ResolutionTime estimates time to resolve.
func ResolutionTime(incidentType domain.IncidentType, severity domain.Severity) string {
	row, ok := resolutionByModule[ModuleFor(incidentType)]
	if !ok {
		row = resolutionByModule[ModuleHelpdesk]
	}
	if t, ok := row[severity]; ok {
		return t
	}
	return "24 hours"
}

// Timeline builds the escalation steps for a contact.
func Timeline(contact domain.Contact, severity domain.Severity) []domain.TimelineStep {
	offsets := [3]string{"Within 30 minutes", "Within 2 hours", "If unresolved after 4 hours"}
	third := "Senior Management"
	if severity == domain.SeverityHigh {
		offsets = [3]string{"Immediate", "15 minutes", "30 minutes"}
		third = "Manager"
	}

	first := "Escalate to duty team"
	if len(contact.EscalationSteps) > 0 {
		first = contact.EscalationSteps[0]
	}
	steps := []domain.TimelineStep{
		{TimeOffset: offsets[0], Action: fmt.Sprintf("Notify %s (%s)", contact.Name, contact.Email), Responsible: contact.Role},
		{TimeOffset: offsets[1], Action: first, Responsible: "Duty Team"},
	}
	if len(contact.EscalationSteps) > 1 {
		steps = append(steps, domain.TimelineStep{TimeOffset: offsets[2], Action: contact.EscalationSteps[1], Responsible: third})
	}
	return steps
}

// Notifications lists stakeholders to inform.
func Notifications(incidentType domain.IncidentType, severity domain.Severity, affected []string) []string {
	out := []string{"Primary contact via email and phone"}
	if severity == domain.SeverityHigh {
		out = append(out,
			"Management team via urgent notification",
			"Customer service team for external communication",
			"Partner notifications if external systems affected",
		)
	}
	switch ModuleFor(incidentType) {
	case ModuleContainer:
		if len(affected) > 0 {
			out = append(out, "Terminal operators handling affected containers")
		}
	case ModuleVessel:
		out = append(out, "Port authority and vessel operators")
	case ModuleEDIAPI:
		out = append(out, "Partner systems and external stakeholders")
	}
	return out
}

// IncidentID derives a stable id from the date and the first 50 characters
// of the incident text.
func IncidentID(at time.Time, text string) string {
	r := []rune(text)
	if len(r) > 50 {
		r = r[:50]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(r)))
	return fmt.Sprintf("INC-%s-%04d", at.Format("20060102"), h.Sum32()%10000)
}

// EscalationInput is what the resolver needs from an analysed incident.
type EscalationInput struct {
	Text         string
	IncidentType domain.IncidentType
	Severity     domain.Severity
	Health       *domain.SystemHealth
	Affected     []string
}

// Resolve builds the escalation record.
func (r *EscalationResolver) Resolve(in EscalationInput) domain.EscalationRecord {
	severity := in.Severity
	if !severity.Valid() {
		severity = domain.SeverityMedium
	}
	incidentType := in.IncidentType
	if incidentType == "" {
		incidentType = domain.IncidentGeneral
	}

	module := ModuleFor(incidentType)
	contact := r.ContactFor(module)
	priority := Priority(severity, in.Health)

	return domain.EscalationRecord{
		IncidentID:               IncidentID(r.now(), in.Text),
		IncidentType:             incidentType,
		Severity:                 severity,
		Module:                   contact.Module,
		PrimaryContact:           contact,
		EscalationTimeline:       Timeline(contact, severity),
		TicketPriority:           priority,
		EstimatedResolutionTime:  ResolutionTime(incidentType, severity),
		StakeholderNotifications: Notifications(incidentType, severity, in.Affected),
		ImmediateActions: []string{
			fmt.Sprintf("Contact %s immediately", contact.Name),
			fmt.Sprintf("Create %s ticket in tracking system", priority),
			"Begin operational investigation against live port data",
			"Prepare stakeholder communication materials",
		},
		MonitoringRequirements: []string{
			"Monitor system health metrics every 15 minutes",
			"Track resolution progress against operational data",
			"Update stakeholders every 2 hours until resolved",
			"Document all actions taken for post-incident review",
		},
	}
}

// FormatEscalation renders a record as plain text for tickets and chat.
func FormatEscalation(rec domain.EscalationRecord) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	b.WriteString("ESCALATION SUMMARY\n")
	b.WriteString(line + "\n\n")

	b.WriteString("INCIDENT DETAILS:\n")
	fmt.Fprintf(&b, "  - Incident ID: %s\n", rec.IncidentID)
	fmt.Fprintf(&b, "  - Type: %s\n", rec.IncidentType)
	fmt.Fprintf(&b, "  - Severity: %s\n", rec.Severity)
	fmt.Fprintf(&b, "  - Affected Module: %s\n", rec.Module)
	fmt.Fprintf(&b, "  - Ticket Priority: %s\n", rec.TicketPriority)
	fmt.Fprintf(&b, "  - Estimated Resolution: %s\n\n", rec.EstimatedResolutionTime)

	c := rec.PrimaryContact
	b.WriteString("PRIMARY CONTACT:\n")
	fmt.Fprintf(&b, "  - Name: %s\n  - Role: %s\n  - Email: %s\n", c.Name, c.Role, c.Email)
	if c.Responsibility != "" {
		fmt.Fprintf(&b, "  - Responsibility: %s\n", c.Responsibility)
	}
	b.WriteString("\nESCALATION TIMELINE:\n")
	for _, s := range rec.EscalationTimeline {
		fmt.Fprintf(&b, "  - %s: %s (Responsible: %s)\n", s.TimeOffset, s.Action, s.Responsible)
	}

	writeList(&b, "IMMEDIATE ACTIONS REQUIRED", rec.ImmediateActions)
	writeList(&b, "MONITORING REQUIREMENTS", rec.MonitoringRequirements)
	writeList(&b, "STAKEHOLDER NOTIFICATIONS", rec.StakeholderNotifications)

	firstResponse := "30 minutes"
	if len(rec.EscalationTimeline) > 0 {
		firstResponse = rec.EscalationTimeline[0].TimeOffset
	}
	b.WriteString("\nTICKETING WORKFLOW:\n")
	fmt.Fprintf(&b, "  - Create %s ticket in tracking system\n", rec.TicketPriority)
	fmt.Fprintf(&b, "  - Assign to: %s\n", c.Name)
	fmt.Fprintf(&b, "  - Initial response required within: %s\n", firstResponse)
	fmt.Fprintf(&b, "  - Estimated resolution: %s\n", rec.EstimatedResolutionTime)
	b.WriteString("  - Auto-escalate if not acknowledged within: 15 minutes\n")
	b.WriteString(line + "\n")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}
