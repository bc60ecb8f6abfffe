package ratelimit

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed sliding_window.lua
var slidingWindowScript string

const redisKeyPattern = "rate_limit:*"

// RedisStore keeps one sorted set per (operation, identifier), scored by
// observation time. The check-and-append runs as a single Lua script.
type RedisStore struct {
	redis  *redis.Client
	script *redis.Script
	// ttl bounds how long an idle key survives without Prune
	ttl time.Duration
}

// NewRedisStore creates a Redis-backed store. Idle keys expire after ttl.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redis:  redisClient,
		script: redis.NewScript(slidingWindowScript),
		ttl:    ttl,
	}
}

type redisMember struct {
	Nonce    string            `json:"n"`
	Metadata map[string]string `json:"m,omitempty"`
}

// Attempt implements Store
func (s *RedisStore) Attempt(ctx context.Context, rec Record, limit Limit) (Window, error) {
	member, err := json.Marshal(redisMember{Nonce: uuid.NewString(), Metadata: rec.Metadata})
	if err != nil {
		return Window{}, fmt.Errorf("marshal rate limit member: %w", err)
	}

	ttl := s.ttl
	if ttl < limit.Window {
		ttl = limit.Window
	}

	key := storeKey(rec.Identifier, rec.Operation)
	result, err := s.script.Run(ctx, s.redis, []string{key},
		rec.ObservedAt.UnixMilli(),
		limit.Window.Milliseconds(),
		limit.MaxRequests,
		string(member),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit script failed: %w", err)
	}

	// Parse result array: {recorded, count_before, oldest_ms}
	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return Window{}, fmt.Errorf("unexpected script result format")
	}
	recorded, ok1 := values[0].(int64)
	count, ok2 := values[1].(int64)
	oldestMs, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return Window{}, fmt.Errorf("unexpected script result types")
	}

	win := Window{Count: int(count), Recorded: recorded == 1}
	if count > 0 {
		win.Oldest = time.UnixMilli(oldestMs)
	}
	return win, nil
}

// Prune implements Store by trimming old members from every limiter key
func (s *RedisStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	max := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	iter := s.redis.Scan(ctx, 0, redisKeyPattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.redis.ZRemRangeByScore(ctx, iter.Val(), "-inf", max).Result()
		if err != nil {
			return deleted, fmt.Errorf("trim %s: %w", iter.Val(), err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan rate limit keys: %w", err)
	}
	return deleted, nil
}

// Ping implements Store
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
