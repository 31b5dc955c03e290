package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timmy/portdesk/internal/domain"
	"gorm.io/gorm"
)

// Job stores share one contract: Get returns (nil, nil) for an unknown id,
// List returns the most recently created jobs first, and returned records
// are copies the caller may not use to mutate the store.

// MemoryJobRepository keeps jobs in process memory. Records do not survive
// a restart.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.IncidentJob
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.IncidentJob)}
}

func (r *MemoryJobRepository) Get(_ context.Context, runID string) (*domain.IncidentJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[runID].Clone(), nil
}

func (r *MemoryJobRepository) Put(_ context.Context, job *domain.IncidentJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.RunID] = job.Clone()
	return nil
}

func (r *MemoryJobRepository) List(_ context.Context, limit int) ([]*domain.IncidentJob, error) {
	r.mu.RLock()
	out := make([]*domain.IncidentJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryJobRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.CreatedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

// JobRepository persists jobs in the relational store.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Get(ctx context.Context, runID string) (*domain.IncidentJob, error) {
	var job domain.IncidentJob
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", runID, err)
	}
	return &job, nil
}

func (r *JobRepository) Put(ctx context.Context, job *domain.IncidentJob) error {
	if err := r.db.WithContext(ctx).Save(job.Clone()).Error; err != nil {
		return fmt.Errorf("save job %s: %w", job.RunID, err)
	}
	return nil
}

func (r *JobRepository) List(ctx context.Context, limit int) ([]*domain.IncidentJob, error) {
	var jobs []*domain.IncidentJob
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (r *JobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.IncidentJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
