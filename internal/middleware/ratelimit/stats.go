package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Decision describes one allow/deny outcome.
type Decision struct {
	Key     string
	Route   string
	Allowed bool
	At      time.Time
}

// StatsStore persists decisions. Errors never fail the request.
type StatsStore interface {
	Record(ctx context.Context, d Decision) error
}

// RedisStatsStore keeps hash counters of allowed/denied decisions: a running
// total, per-minute buckets and per-route totals.
type RedisStatsStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStatsStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisStatsStore {
	if prefix == "" {
		prefix = "ratelimit:stats"
	}
	return &RedisStatsStore{rdb: rdb, prefix: strings.Trim(prefix, ":"), ttl: ttl}
}

func (s *RedisStatsStore) Record(ctx context.Context, d Decision) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := d.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if d.Allowed {
		field = "allowed"
	}

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}
	if d.Route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", d.Route+":"+field, 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Totals returns the running allowed/denied counts.
func (s *RedisStatsStore) Totals(ctx context.Context) (allowed, denied int64, err error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return 0, 0, err
	}
	allowed, _ = strconv.ParseInt(vals["allowed"], 10, 64)
	denied, _ = strconv.ParseInt(vals["denied"], 10, 64)
	return allowed, denied, nil
}
