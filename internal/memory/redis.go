package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis key-value backend.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithTTL sets the expiration for profiles. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for profiles.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed profile store.
func NewRedisStore(address, password string, db int, opts ...Option) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient creates a profile store from an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...Option) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "wayfind:profile:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// LoadProfile retrieves the profile for the user, or ErrProfileNotFound.
func (s *RedisStore) LoadProfile(ctx context.Context, userID string) (*Profile, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile from redis: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal([]byte(val), &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &profile, nil
}

// SaveProfile upserts the profile, overwriting any previous record.
func (s *RedisStore) SaveProfile(ctx context.Context, profile *Profile) error {
	if profile == nil || profile.UserID == "" {
		return fmt.Errorf("profile requires a user id")
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.client.Set(ctx, s.key(profile.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save profile to redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
