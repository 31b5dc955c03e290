package domain

import "time"

// JobStatus is the lifecycle state of an incident job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// rank orders statuses so transitions can be checked as forward-only.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether s -> next is a legal forward transition.
// Staying in PROCESSING is allowed so progress updates can be applied.
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if s == next {
		return s == JobStatusProcessing
	}
	return next.rank() > s.rank()
}

// IncidentJob tracks one submitted incident from intake to result.
type IncidentJob struct {
	RunID        string          `gorm:"type:text;primaryKey" json:"run_id"`
	Status       JobStatus       `gorm:"type:text;not null;index" json:"status"`
	IncidentText string          `gorm:"type:text" json:"incident_text,omitempty"`
	Progress     int             `gorm:"default:0" json:"progress"`
	CurrentStep  string          `gorm:"type:text" json:"current_step,omitempty"`
	Result       *AnalysisResult `gorm:"serializer:json" json:"result,omitempty"`
	Error        string          `gorm:"type:text" json:"error,omitempty"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// TableName returns the table used by the SQL job store.
func (IncidentJob) TableName() string {
	return "incident_jobs"
}

// Clone returns a copy safe to hand out of a store. The result is shared
// because terminal results are never mutated.
func (j *IncidentJob) Clone() *IncidentJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
