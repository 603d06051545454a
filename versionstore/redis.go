package versionstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares scope versions across processes. With a TTL, an idle scope
// eventually falls back to version 0; entries written after its last bump
// then read as fresh again, so only use a TTL for scopes that are bumped
// regularly.
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ Store = (*Redis)(nil)

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithTTL refreshes a TTL on every bump. ttl <= 0 disables expiry.
func WithTTL(ttl time.Duration) RedisOption { return func(s *Redis) { s.ttl = ttl } }

// WithCloseClient makes Close also close the redis client.
func WithCloseClient() RedisOption { return func(s *Redis) { s.closeClient = true } }

func NewRedis(client redis.UniversalClient, namespace string, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, errors.New("versionstore: redis client is nil")
	}
	s := &Redis{rdb: client, ns: namespace}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Redis) key(scope string) string { return "ver:" + s.ns + ":" + scope }

func (s *Redis) Current(ctx context.Context, scope string) (int64, error) {
	res, err := s.rdb.Get(ctx, s.key(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("versionstore: parse %q: %w", scope, err)
	}
	return v, nil
}

// Bump increments the version. With a TTL, INCR and EXPIRE share one
// pipelined round trip.
func (s *Redis) Bump(ctx context.Context, scope string) (int64, error) {
	k := s.key(scope)
	if s.ttl <= 0 {
		return s.rdb.Incr(ctx, k).Result()
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
	return incr.Val(), nil
}

func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		return s.rdb.Close()
	}
	return nil
}
