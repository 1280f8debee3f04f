package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemforge/api/internal/model"
)

const defaultRetention = 24 * time.Hour

// cancelMergeAttempts bounds the optimistic retry loop when the run
// goroutine keeps writing the record while a cancel merge is in flight.
const cancelMergeAttempts = 5

// RedisStore keeps each job as a JSON blob under job:<id> with a
// retention TTL refreshed on every write.
type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
}

// NewRedisStore creates a job store backed by Redis.
func NewRedisStore(redisClient *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &RedisStore{
		redis:     redisClient,
		retention: retention,
	}
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

// Create persists a new job record.
func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	return s.save(ctx, job)
}

// Update overwrites the record for an existing job.
func (s *RedisStore) Update(ctx context.Context, job *model.Job) error {
	exists, err := s.redis.Exists(ctx, jobKey(job.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return s.save(ctx, job)
}

// SetCancelRequested merges the cancellation flag into the stored
// record under WATCH so a concurrent full-record Update from the run
// goroutine is never overwritten with stale state.
func (s *RedisStore) SetCancelRequested(ctx context.Context, id string) error {
	key := jobKey(id)

	merge := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load job: %w", err)
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		job.CancelRequested = true
		job.UpdatedAt = time.Now().UTC()

		merged, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, merged, s.retention)
			return nil
		})
		return err
	}

	for i := 0; i < cancelMergeAttempts; i++ {
		err := s.redis.Watch(ctx, merge, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("failed to set cancel flag for job %s: record kept changing", id)
}

// Get loads a job by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.redis.Set(ctx, jobKey(job.ID), data, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}
