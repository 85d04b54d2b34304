package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKeyPrefix = "ezlogin:authorization:"

// ExpiredRetention keeps an entry in Redis past its code expiry so that a late
// exchange is reported as code_expired rather than code_not_found.
const ExpiredRetention = time.Minute

// RedisAuthorizationStore implements AuthorizationStore on Redis. Entries
// carry a TTL of the code expiry plus ExpiredRetention, and GETDEL makes
// consumption atomic.
type RedisAuthorizationStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisAuthorizationStore creates a store on an existing client, which
// lets tests pass a miniredis-backed client.
func NewRedisAuthorizationStore(client redis.UniversalClient, keyPrefix string) *RedisAuthorizationStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisAuthorizationStore{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (s *RedisAuthorizationStore) key(code string) string {
	return s.keyPrefix + code
}

func (s *RedisAuthorizationStore) Save(ctx context.Context, auth *Authorization) error {
	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization: %w", err)
	}

	ttl := auth.ExpiresAt.Sub(s.now()) + ExpiredRetention
	if ttl < time.Second {
		ttl = time.Second
	}

	ok, err := s.client.SetNX(ctx, s.key(auth.Code), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save authorization: %w", err)
	}
	if !ok {
		return ErrDuplicateCode
	}
	return nil
}

func (s *RedisAuthorizationStore) Consume(ctx context.Context, code string) (*Authorization, error) {
	data, err := s.client.GetDel(ctx, s.key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAuthorizationNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization: %w", err)
	}

	var auth Authorization
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization: %w", err)
	}
	return &auth, nil
}
