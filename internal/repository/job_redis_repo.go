package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/portdesk/internal/domain"
)

// RedisJobRepository stores each job as a JSON string under prefix+run_id
// and keeps a sorted set of run ids scored by creation time.
type RedisJobRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisConfig holds connection settings for the redis job store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisClient opens a client from cfg.
func NewRedisClient(cfg *RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisJobRepository(rdb redis.UniversalClient, prefix string) *RedisJobRepository {
	if prefix == "" {
		prefix = "portdesk:job:"
	}
	return &RedisJobRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisJobRepository) key(runID string) string { return r.prefix + runID }
func (r *RedisJobRepository) indexKey() string        { return r.prefix + "index" }

func (r *RedisJobRepository) Get(ctx context.Context, runID string) (*domain.IncidentJob, error) {
	raw, err := r.rdb.Get(ctx, r.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", runID, err)
	}
	var job domain.IncidentJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", runID, err)
	}
	return &job, nil
}

func (r *RedisJobRepository) Put(ctx context.Context, job *domain.IncidentJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.RunID, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(job.RunID), raw, 0)
		p.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.RunID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.RunID, err)
	}
	return nil
}

func (r *RedisJobRepository) List(ctx context.Context, limit int) ([]*domain.IncidentJob, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRevRange(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.IncidentJob{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	jobs := make([]*domain.IncidentJob, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // index entry outlived its record
		}
		var job domain.IncidentJob
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (r *RedisJobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	max := "(" + strconv.FormatInt(cutoff.UnixNano(), 10)
	ids, err := r.rdb.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("find old jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
		members[i] = id
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.ZRem(ctx, r.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return len(ids), nil
}
