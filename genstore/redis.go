package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares per-key generations across processes and survives restarts.
// Optionally, a TTL can be applied to generation keys to prevent unbounded growth.
// If a generation key expires it reads as 0 again; loads that snapshotted the
// old value then skip their write-back.
type RedisGenStore struct {
	rdb redis.UniversalClient
	ns  string        // logical namespace; should match the store prefix
	ttl time.Duration // optional TTL for generation keys; 0 disables expiry

	closeClient bool
}

var _ GenStore = (*RedisGenStore)(nil)

// NewRedisGenStore creates a Redis-backed generation store without TTL.
func NewRedisGenStore(client redis.UniversalClient, namespace string) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace}
}

// NewRedisGenStoreWithTTL creates a Redis-backed generation store with TTL.
// If ttl <= 0, keys do not expire.
func NewRedisGenStoreWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace, ttl: ttl}
}

func (s *RedisGenStore) key(k string) string { return "gen:" + s.ns + ":" + k }

// Snapshot returns the current generation.
// Missing keys are treated as generation 0.
func (s *RedisGenStore) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(storageKey)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

// Bump atomically increments the generation and (optionally) refreshes TTL.
// When ttl > 0, INCR + EXPIRE are pipelined in a single round-trip and the
// INCR result is captured from the pipeline (no extra INCR).
func (s *RedisGenStore) Bump(ctx context.Context, storageKey string) (uint64, error) {
	k := s.key(storageKey)

	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is not applicable for RedisGenStore (Redis handles expiry if TTL is set).
func (s *RedisGenStore) Cleanup(time.Duration) {}

// OwnClient makes Close also close the Redis client. Leave unset when the client
// is shared with the Redis provider.
func (s *RedisGenStore) OwnClient() *RedisGenStore {
	s.closeClient = true
	return s
}

// Close closes the underlying Redis client when owned.
func (s *RedisGenStore) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
