package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default lifetimes for Redis-backed session state. Transient keys follow
// the session; processed markers are kept long enough that a re-rendered
// result screen days later still cannot double-settle.
const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultMarkerTTL  = 30 * 24 * time.Hour
)

// RedisManager implements Manager on Redis, sharing session state across
// API instances.
type RedisManager struct {
	client     *redis.Client
	sessionTTL time.Duration
	markerTTL  time.Duration
}

// NewRedisManager creates a Redis-backed session manager. Zero TTLs fall
// back to the package defaults.
func NewRedisManager(client *redis.Client, sessionTTL, markerTTL time.Duration) *RedisManager {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if markerTTL <= 0 {
		markerTTL = DefaultMarkerTTL
	}
	return &RedisManager{
		client:     client,
		sessionTTL: sessionTTL,
		markerTTL:  markerTTL,
	}
}

// Session returns the store scoped to the given session ID.
func (m *RedisManager) Session(id string) Store {
	return &redisStore{manager: m, id: id}
}

type redisStore struct {
	manager *RedisManager
	id      string
}

func (s *redisStore) ID() string {
	return s.id
}

func (s *redisStore) redisKey(key string) string {
	return "session:" + s.id + ":" + key
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	v, err := s.manager.client.Get(ctx, s.redisKey(key)).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	ttl := s.manager.sessionTTL
	if IsProcessedKey(key) {
		ttl = s.manager.markerTTL
	}
	return s.manager.client.Set(ctx, s.redisKey(key), value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.manager.client.Del(ctx, s.redisKey(key)).Err()
}
