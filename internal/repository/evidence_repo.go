package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/portdesk/internal/domain"
	"gorm.io/gorm"
)

const (
	healthWindowHours = 24
	ediStatusError    = "ERROR"
)

// EvidenceRepository answers read-only questions about the operational store.
// Not-found lookups return (nil, nil).
type EvidenceRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEvidenceRepository(db *gorm.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (r *EvidenceRepository) WithClock(now func() time.Time) *EvidenceRepository {
	r.now = now
	return r
}

// OperationalSnapshot counts vessels, containers by status, recent EDI
// traffic and active vessel advices.
func (r *EvidenceRepository) OperationalSnapshot(ctx context.Context) (*domain.OperationalSnapshot, error) {
	db := r.db.WithContext(ctx)
	now := r.now()
	snap := &domain.OperationalSnapshot{ContainersByStatus: map[string]int64{}, GeneratedAt: now}

	if err := db.Model(&domain.Vessel{}).Count(&snap.TotalVessels).Error; err != nil {
		return nil, fmt.Errorf("count vessels: %w", err)
	}

	var byStatus []struct {
		Status string
		N      int64
	}
	if err := db.Model(&domain.Container{}).Select("status, COUNT(*) AS n").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("count containers: %w", err)
	}
	for _, row := range byStatus {
		snap.ContainersByStatus[row.Status] = row.N
		snap.TotalContainers += row.N
	}

	since := now.Add(-healthWindowHours * time.Hour)
	if err := db.Model(&domain.EDIMessage{}).Where("sent_at >= ?", since).Count(&snap.EDIMessages24h).Error; err != nil {
		return nil, fmt.Errorf("count edi messages: %w", err)
	}
	if err := db.Model(&domain.VesselAdvice{}).
		Where("effective_start_datetime <= ? AND (effective_end_datetime IS NULL OR effective_end_datetime > ?)", now, now).
		Count(&snap.ActiveAdvices).Error; err != nil {
		return nil, fmt.Errorf("count vessel advices: %w", err)
	}
	return snap, nil
}

// SystemHealth computes EDI and API error rates over the trailing 24 hours.
func (r *EvidenceRepository) SystemHealth(ctx context.Context) (*domain.SystemHealth, error) {
	db := r.db.WithContext(ctx)
	since := r.now().Add(-healthWindowHours * time.Hour)
	h := &domain.SystemHealth{WindowHours: healthWindowHours}

	if err := db.Model(&domain.EDIMessage{}).Where("sent_at >= ?", since).Count(&h.EDI.Total).Error; err != nil {
		return nil, fmt.Errorf("count edi: %w", err)
	}
	if err := db.Model(&domain.EDIMessage{}).Where("sent_at >= ? AND status = ?", since, ediStatusError).Count(&h.EDI.Errors).Error; err != nil {
		return nil, fmt.Errorf("count edi errors: %w", err)
	}
	if err := db.Model(&domain.APIEvent{}).Where("event_ts >= ?", since).Count(&h.API.Total).Error; err != nil {
		return nil, fmt.Errorf("count api events: %w", err)
	}
	if err := db.Model(&domain.APIEvent{}).Where("event_ts >= ? AND http_status >= 400", since).Count(&h.API.Errors).Error; err != nil {
		return nil, fmt.Errorf("count api errors: %w", err)
	}

	h.EDI.ErrorRatePercent = percent(h.EDI.Errors, h.EDI.Total)
	h.API.ErrorRatePercent = percent(h.API.Errors, h.API.Total)
	switch rate := h.MaxErrorRate(); {
	case rate > 10:
		h.Status = "critical"
	case rate > 5:
		h.Status = "degraded"
	default:
		h.Status = "healthy"
	}
	return h, nil
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(int64(float64(part)*10000/float64(total))) / 100
}

// ContainerDetails returns the latest record for cntrNo with its vessel and
// last EDI messages.
func (r *EvidenceRepository) ContainerDetails(ctx context.Context, cntrNo string) (*domain.ContainerDetails, error) {
	db := r.db.WithContext(ctx)

	var c domain.Container
	err := db.Where("cntr_no = ?", strings.ToUpper(cntrNo)).Order("created_at DESC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get container %s: %w", cntrNo, err)
	}

	details := &domain.ContainerDetails{Container: c}
	if c.VesselID != nil {
		var v domain.Vessel
		if err := db.First(&v, *c.VesselID).Error; err == nil {
			details.VesselName = v.VesselName
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get vessel for container %s: %w", cntrNo, err)
		}
	}
	if err := db.Where("container_id = ?", c.ContainerID).Order("sent_at DESC").Limit(10).Find(&details.EDIMessages).Error; err != nil {
		return nil, fmt.Errorf("get edi for container %s: %w", cntrNo, err)
	}
	return details, nil
}

// SearchContainers filters containers by the non-empty criteria fields.
func (r *EvidenceRepository) SearchContainers(ctx context.Context, c domain.ContainerCriteria) ([]domain.Container, error) {
	q := r.db.WithContext(ctx).Model(&domain.Container{})
	if c.ContainerNo != "" {
		q = q.Where("cntr_no LIKE ?", "%"+strings.ToUpper(c.ContainerNo)+"%")
	}
	if c.Status != "" {
		q = q.Where("status = ?", strings.ToUpper(c.Status))
	}
	if c.Port != "" {
		port := strings.ToUpper(c.Port)
		q = q.Where("origin_port = ? OR tranship_port = ? OR destination_port = ?", port, port, port)
	}
	if c.VesselName != "" {
		q = q.Where("vessel_id IN (?)", r.db.Model(&domain.Vessel{}).
			Select("vessel_id").
			Where("LOWER(vessel_name) LIKE ?", "%"+strings.ToLower(c.VesselName)+"%"))
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 10
	}

	var out []domain.Container
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search containers: %w", err)
	}
	return out, nil
}

// VesselDetails looks a vessel up by IMO number when imo > 0, otherwise by a
// case-insensitive name match.
func (r *EvidenceRepository) VesselDetails(ctx context.Context, name string, imo int) (*domain.VesselDetails, error) {
	db := r.db.WithContext(ctx)

	var v domain.Vessel
	q := db.Model(&domain.Vessel{})
	switch {
	case imo > 0:
		q = q.Where("imo_no = ?", imo)
	case strings.TrimSpace(name) != "":
		q = q.Where("LOWER(vessel_name) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(name))+"%")
	default:
		return nil, nil
	}
	err := q.First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vessel: %w", err)
	}

	details := &domain.VesselDetails{Vessel: v}
	since := r.now().Add(-healthWindowHours * time.Hour)
	if err := db.Model(&domain.Container{}).Where("vessel_id = ?", v.VesselID).Count(&details.ContainerCount).Error; err != nil {
		return nil, fmt.Errorf("count vessel containers: %w", err)
	}
	if err := db.Model(&domain.EDIMessage{}).Where("vessel_id = ? AND sent_at >= ?", v.VesselID, since).Count(&details.RecentEDICount).Error; err != nil {
		return nil, fmt.Errorf("count vessel edi: %w", err)
	}
	if err := db.Model(&domain.APIEvent{}).Where("vessel_id = ? AND event_ts >= ?", v.VesselID, since).Count(&details.RecentAPIEvents).Error; err != nil {
		return nil, fmt.Errorf("count vessel api events: %w", err)
	}
	return details, nil
}

// AnalyzeEDI summarises EDI traffic over the last hours.
func (r *EvidenceRepository) AnalyzeEDI(ctx context.Context, hours int) (*domain.EDIAnalysis, error) {
	since := r.now().Add(-time.Duration(hours) * time.Hour)
	out := &domain.EDIAnalysis{WindowHours: hours, ByType: map[string]int64{}}

	var rows []struct {
		MessageType string
		Status      string
		N           int64
	}
	err := r.db.WithContext(ctx).Model(&domain.EDIMessage{}).
		Select("message_type, status, COUNT(*) AS n").
		Where("sent_at >= ?", since).
		Group("message_type, status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("analyze edi: %w", err)
	}
	for _, row := range rows {
		out.TotalMessages += row.N
		out.ByType[row.MessageType] += row.N
		if row.Status == ediStatusError {
			out.ErrorCount += row.N
		}
	}
	out.ErrorRatePercent = percent(out.ErrorCount, out.TotalMessages)
	return out, nil
}

// SearchRecentIssues finds EDI errors and failed API events within the last
// hours whose text mentions any keyword.
func (r *EvidenceRepository) SearchRecentIssues(ctx context.Context, keywords []string, hours int) (*domain.RecentIssues, error) {
	db := r.db.WithContext(ctx)
	since := r.now().Add(-time.Duration(hours) * time.Hour)
	out := &domain.RecentIssues{Keywords: keywords, WindowHours: hours, Issues: []domain.RecentIssue{}}

	ediQ := db.Where("status = ? AND sent_at >= ?", ediStatusError, since)
	apiQ := db.Where("http_status >= 400 AND event_ts >= ?", since)
	if cond, args := keywordClause([]string{"error_text", "message_type"}, keywords); cond != "" {
		ediQ = ediQ.Where(cond, args...)
	}
	if cond, args := keywordClause([]string{"payload_json", "event_type"}, keywords); cond != "" {
		apiQ = apiQ.Where(cond, args...)
	}

	var edi []domain.EDIMessage
	if err := ediQ.Order("sent_at DESC").Limit(50).Find(&edi).Error; err != nil {
		return nil, fmt.Errorf("search edi issues: %w", err)
	}
	var api []domain.APIEvent
	if err := apiQ.Order("event_ts DESC").Limit(50).Find(&api).Error; err != nil {
		return nil, fmt.Errorf("search api issues: %w", err)
	}

	for _, m := range edi {
		out.Issues = append(out.Issues, domain.RecentIssue{
			Kind: "edi", Reference: m.MessageRef, Detail: m.MessageType + ": " + m.ErrorText, OccurredAt: m.SentAt,
		})
	}
	for _, e := range api {
		out.Issues = append(out.Issues, domain.RecentIssue{
			Kind: "api", Reference: e.CorrelationID, Detail: fmt.Sprintf("%s %d", e.EventType, e.HTTPStatus), OccurredAt: e.EventTS,
		})
	}
	out.TotalFound = len(out.Issues)
	return out, nil
}

// keywordClause ORs a case-insensitive LIKE over every column and keyword.
func keywordClause(columns, keywords []string) (string, []interface{}) {
	var parts []string
	var args []interface{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		for _, col := range columns {
			parts = append(parts, "LOWER("+col+") LIKE ?")
			args = append(args, "%"+kw+"%")
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
