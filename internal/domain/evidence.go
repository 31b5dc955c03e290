package domain

import "time"

// OperationalSnapshot is the baseline view of the port at query time.
type OperationalSnapshot struct {
	TotalVessels       int64            `json:"total_vessels"`
	TotalContainers    int64            `json:"total_containers"`
	ContainersByStatus map[string]int64 `json:"containers_by_status"`
	EDIMessages24h     int64            `json:"edi_messages_24h"`
	ActiveAdvices      int64            `json:"active_vessel_advices"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// ChannelHealth is the error rate of one integration channel.
type ChannelHealth struct {
	Total            int64   `json:"total"`
	Errors           int64   `json:"errors"`
	ErrorRatePercent float64 `json:"error_rate_percent"`
}

// SystemHealth holds error rates over a trailing window.
type SystemHealth struct {
	WindowHours int           `json:"window_hours"`
	EDI         ChannelHealth `json:"edi_health"`
	API         ChannelHealth `json:"api_health"`
	Status      string        `json:"status"`
}

// MaxErrorRate returns the worse of the two channel error rates.
func (h *SystemHealth) MaxErrorRate() float64 {
	if h == nil {
		return 0
	}
	if h.EDI.ErrorRatePercent > h.API.ErrorRatePercent {
		return h.EDI.ErrorRatePercent
	}
	return h.API.ErrorRatePercent
}

// ContainerCriteria narrows a container search. Empty fields are ignored.
type ContainerCriteria struct {
	ContainerNo string
	Status      string
	VesselName  string
	Port        string
	Limit       int
}

// ContainerDetails describes one container and its recent messages.
type ContainerDetails struct {
	Container   Container    `json:"container"`
	VesselName  string       `json:"vessel_name,omitempty"`
	EDIMessages []EDIMessage `json:"edi_messages,omitempty"`
}

// VesselDetails describes a vessel and its activity.
type VesselDetails struct {
	Vessel          Vessel `json:"vessel"`
	ContainerCount  int64  `json:"container_count"`
	RecentEDICount  int64  `json:"recent_edi_count"`
	RecentAPIEvents int64  `json:"recent_api_events"`
}

// EDIAnalysis summarises EDI traffic over a window.
type EDIAnalysis struct {
	WindowHours      int              `json:"window_hours"`
	TotalMessages    int64            `json:"total_messages"`
	ErrorCount       int64            `json:"error_count"`
	ErrorRatePercent float64          `json:"error_rate_percent"`
	ByType           map[string]int64 `json:"by_type"`
}

// RecentIssue is one matching error record.
type RecentIssue struct {
	Kind       string    `json:"kind"` // edi or api
	Reference  string    `json:"reference"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RecentIssues is the result of a keyword search over recent errors.
type RecentIssues struct {
	Keywords    []string      `json:"keywords"`
	WindowHours int           `json:"window_hours"`
	TotalFound  int           `json:"total_issues_found"`
	Issues      []RecentIssue `json:"issues"`
}
