// Package redisstore mirrors jobs into Redis hashes.
//
// Layout:
//
//	jobs:seq        INCR counter issuing job ids
//	jobs:job:{id}   hash with the job record
//	jobs:ids        set of mirrored ids whose record has not been pruned
//	jobs:expiring   sorted set of terminal ids scored by record expiry (unix seconds)
//
// With retention set, a terminal record expires on its own; Prune then drops
// its id from jobs:ids. Between the two an id may point at an expired hash.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"scheduler/internal/domain"
)

const keyPrefix = "jobs:"

const (
	seqKey      = keyPrefix + "seq"
	jobIDsKey   = keyPrefix + "ids"
	expiringKey = keyPrefix + "expiring"
)

func jobKey(id domain.JobID) string { return keyPrefix + "job:" + string(id) }

// Option configures the Store.
type Option func(*Store)

// WithRetention expires terminal records after ttl. Zero keeps them forever.
func WithRetention(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.retention = ttl
		}
	}
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store implements domain.JobStore. The caller owns the client.
type Store struct {
	client    goredis.Cmdable
	retention time.Duration
	now       func() time.Time
}

func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CreateJob issues an id from jobs:seq and writes the record.
func (s *Store) CreateJob(ctx context.Context, jobType domain.JobType, runAt time.Time, status domain.JobStatus, params domain.Params) (domain.JobID, error) {
	fields, err := createFields(jobType, runAt, status, params, s.now().UTC())
	if err != nil {
		return "", err
	}
	n, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return "", fmt.Errorf("redisstore: issue id: %w", err)
	}
	id := domain.JobID(strconv.FormatInt(n, 10))
	fields["id"] = string(id)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(id), fields)
	pipe.SAdd(ctx, jobIDsKey, string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redisstore: create job: %w", err)
	}
	return id, nil
}

// UpdateJobStatus rewrites status and result. Terminal records get the retention TTL.
func (s *Store) UpdateJobStatus(ctx context.Context, id domain.JobID, status domain.JobStatus, result domain.Result) error {
	key := jobKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redisstore: update check exists: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("redisstore: job %s: %w", id, domain.ErrNotFound)
	}

	now := s.now().UTC()
	fields, err := statusFields(status, result, now)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if status.Terminal() && s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
		pipe.ZAdd(ctx, expiringKey, goredis.Z{
			Score:  float64(now.Add(s.retention).Unix()),
			Member: string(id),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: update job %s: %w", id, err)
	}
	return nil
}

// Prune removes ids whose records have expired from jobs:ids and returns how
// many were removed. It is a no-op without retention.
func (s *Store) Prune(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	ids, err := s.client.ZRangeByScore(ctx, expiringKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(s.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: list expired ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.client.SRem(ctx, jobIDsKey, members...).Err(); err != nil {
		return 0, fmt.Errorf("redisstore: prune ids: %w", err)
	}
	if err := s.client.ZRem(ctx, expiringKey, members...).Err(); err != nil {
		return 0, fmt.Errorf("redisstore: prune expiry index: %w", err)
	}
	return len(ids), nil
}

// PruneEvery runs Prune on each interval until ctx is cancelled.
func (s *Store) PruneEvery(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	if s.retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("redisstore: prune failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("pruned", n).Msg("redisstore: expired job ids pruned")
			}
		}
	}
}

func createFields(jobType domain.JobType, runAt time.Time, status domain.JobStatus, params domain.Params, now time.Time) (map[string]any, error) {
	if params == nil {
		params = domain.Params{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("redisstore: encode params: %w", err)
	}
	return map[string]any{
		"job_type":   string(jobType),
		"run_at":     runAt.UTC().Format(time.RFC3339Nano),
		"status":     string(status),
		"params":     string(encoded),
		"result":     "",
		"created_at": now.Format(time.RFC3339Nano),
		"updated_at": now.Format(time.RFC3339Nano),
	}, nil
}

func statusFields(status domain.JobStatus, result domain.Result, now time.Time) (map[string]any, error) {
	fields := map[string]any{
		"status":     string(status),
		"result":     "",
		"updated_at": now.Format(time.RFC3339Nano),
	}
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("redisstore: encode result: %w", err)
		}
		fields["result"] = string(encoded)
	}
	return fields, nil
}

var _ domain.JobStore = (*Store)(nil)
