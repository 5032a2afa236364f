package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	uuid "github.com/google/uuid"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/auth-service/internal/core/port"
)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository persists per-client attempts in Redis sorted sets scored by nanosecond timestamp.
type RateLimitRepository struct {
	client red.UniversalClient
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client red.UniversalClient, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt adds an attempt at the given time and refreshes the key TTL in one round trip.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)
	// Members carry a random suffix so concurrent attempts in the same nanosecond are all counted.
	member := red.Z{
		Score:  float64(at.UnixNano()),
		Member: strconv.FormatInt(at.UnixNano(), 10) + ":" + uuid.NewString(),
	}

	_, err := r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.ZAdd(ctx, key, member)
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, key, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}
	return nil
}

// CountAttempts returns how many attempts occurred within the window ending at reference time.
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	min, max, err := windowBounds(window, reference)
	if err != nil {
		return 0, err
	}

	count, err := r.client.ZCount(ctx, r.key(identifier), min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}

	return int(count), nil
}

// TrimWindow removes attempts older than the provided window relative to reference time.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	min, _, err := windowBounds(window, reference)
	if err != nil {
		return err
	}

	if err := r.client.ZRemRangeByScore(ctx, r.key(identifier), "-inf", "("+min).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	return nil
}

// OldestAttempt returns the oldest attempt remaining inside the active window.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	min, max, err := windowBounds(window, reference)
	if err != nil {
		return time.Time{}, false, err
	}

	values, err := r.client.ZRangeByScoreWithScores(ctx, r.key(identifier), &red.ZRangeBy{
		Min:   min,
		Max:   max,
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	return time.Unix(0, int64(values[0].Score)), true, nil
}

func windowBounds(window time.Duration, reference time.Time) (string, string, error) {
	if window <= 0 {
		return "", "", errors.New("window must be positive")
	}
	min := strconv.FormatInt(reference.Add(-window).UnixNano(), 10)
	max := strconv.FormatInt(reference.UnixNano(), 10)
	return min, max, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
