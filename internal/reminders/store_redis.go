package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisCASRetries = 5

// RedisStore keeps each job as a JSON document plus index keys:
// a sorted set per status and one for all jobs (scored by fire time), and a
// set of job ids per order.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a store; prefix namespaces every key ("reminders:" by default).
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "reminders:"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) jobKey(id uuid.UUID) string { return s.prefix + "job:" + id.String() }

func (s *RedisStore) statusKey(st Status) string { return s.prefix + "status:" + string(st) }

func (s *RedisStore) orderKey(orderID string) string { return s.prefix + "order:" + orderID }

func (s *RedisStore) allKey() string { return s.prefix + "all" }

// redisGetter is satisfied by both *redis.Client and *redis.Tx.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) Put(ctx context.Context, job *Job) error {
	if job == nil {
		return invalid("nil job")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("reminders: marshal job: %w", err)
	}
	key := s.jobKey(job.ID)
	score := float64(job.FireTime.UnixMilli())
	member := job.ID.String()

	err = s.withCAS(ctx, key, func(tx *redis.Tx) error {
		previous, err := s.load(ctx, tx, job.ID)
		if err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != nil && previous.Status != job.Status {
				pipe.ZRem(ctx, s.statusKey(previous.Status), member)
			}
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.statusKey(job.Status), redis.Z{Score: score, Member: member})
			pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: member})
			pipe.SAdd(ctx, s.orderKey(job.OrderID), member)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("reminders: put job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := s.load(ctx, s.redis, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reminders: get job: %w", err)
	}
	return job, nil
}

func (s *RedisStore) ListByStatus(ctx context.Context, status Status) ([]Job, error) {
	ids, err := s.redis.ZRange(ctx, s.statusKey(status), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reminders: list by status: %w", err)
	}
	jobs, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reminders: list by status: %w", err)
	}
	// The status index may briefly lag a concurrent transition.
	filtered := jobs[:0]
	for _, job := range jobs {
		if job.Status == status {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

func (s *RedisStore) ListByOrder(ctx context.Context, orderID string) ([]Job, error) {
	ids, err := s.redis.SMembers(ctx, s.orderKey(orderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reminders: list by order: %w", err)
	}
	jobs, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reminders: list by order: %w", err)
	}
	return jobs, nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]Job, error) {
	ids, err := s.redis.ZRange(ctx, s.allKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reminders: list all: %w", err)
	}
	jobs, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reminders: list all: %w", err)
	}
	return jobs, nil
}

// UpdateStatus watches the job key so the read-check-write is atomic against
// other writers of the same job.
func (s *RedisStore) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, update StatusUpdate) error {
	key := s.jobKey(id)
	err := s.withCAS(ctx, key, func(tx *redis.Tx) error {
		job, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if job.Status != from {
			return ErrStatusConflict
		}
		update.apply(job)
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		member := id.String()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if from != job.Status {
				pipe.ZRem(ctx, s.statusKey(from), member)
				pipe.ZAdd(ctx, s.statusKey(job.Status), redis.Z{Score: float64(job.FireTime.UnixMilli()), Member: member})
			}
			return nil
		})
		return err
	})
	if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrJobNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("reminders: update status: %w", err)
	}
	return nil
}

func (s *RedisStore) withCAS(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < redisCASRetries; i++ {
		err = s.redis.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *RedisStore) load(ctx context.Context, cmd redisGetter, id uuid.UUID) (*Job, error) {
	data, err := cmd.Get(ctx, s.jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisStore) loadMany(ctx context.Context, ids []string) ([]Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + "job:" + id
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", ids[i], err)
		}
		jobs = append(jobs, job)
	}
	sortJobs(jobs)
	return jobs, nil
}
