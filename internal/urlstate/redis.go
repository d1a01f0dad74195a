package urlstate

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// KeyPrefix namespaces session hashes in Redis.
const KeyPrefix = "govconsole:urlstate:"

// sessionField marks a hash as an open session, so a session whose
// parameters are all at their defaults still exists.
const sessionField = "_session"

// RedisClient is the subset of *redis.Client the store needs.
type RedisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore persists one session's parameters in a Redis hash so a console
// session survives restarts. Reads are served from the loaded copy.
type RedisStore struct {
	client RedisClient
	key    string
	ttl    time.Duration

	writeMu sync.Mutex
	mu      sync.RWMutex
	values  url.Values
	exists  bool
	subs    listeners
}

// OpenRedisStore loads the session hash. ttl <= 0 keeps the hash forever.
func OpenRedisStore(ctx context.Context, client RedisClient, session string, ttl time.Duration) (*RedisStore, error) {
	s := &RedisStore{client: client, key: KeyPrefix + session, ttl: ttl, values: url.Values{}}
	fields, err := client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load url state %s: %w", session, err)
	}
	for k, v := range fields {
		if k == sessionField {
			s.exists = true
			continue
		}
		if v != "" {
			s.values.Set(k, v)
		}
	}
	return s, nil
}

// Exists reports whether the hash was marked by Mark before it was loaded.
func (s *RedisStore) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists
}

// Mark records the session as open and refreshes its TTL.
func (s *RedisStore) Mark(ctx context.Context) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := s.client.HSet(ctx, s.key, sessionField, stamp).Err(); err != nil {
		return fmt.Errorf("mark url state: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return fmt.Errorf("mark url state: %w", err)
		}
	}
	s.mu.Lock()
	s.exists = true
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) Read() url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.values)
}

func (s *RedisStore) Write(ctx context.Context, patch map[string]string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, ok := patch[sessionField]; ok {
		patch = maps.Clone(patch)
		delete(patch, sessionField)
	}

	s.mu.RLock()
	next := clone(s.values)
	s.mu.RUnlock()
	if !apply(next, patch) {
		return nil
	}

	var set []interface{}
	var del []string
	for k, v := range patch {
		if v == "" {
			del = append(del, k)
		} else {
			set = append(set, k, v)
		}
	}
	if len(del) > 0 {
		if err := s.client.HDel(ctx, s.key, del...).Err(); err != nil {
			return fmt.Errorf("write url state: %w", err)
		}
	}
	if len(set) > 0 {
		if err := s.client.HSet(ctx, s.key, set...).Err(); err != nil {
			return fmt.Errorf("write url state: %w", err)
		}
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", s.key).Msg("url state: expire failed")
		}
	}

	s.mu.Lock()
	s.values = next
	s.mu.Unlock()

	s.subs.notify(next)
	return nil
}

func (s *RedisStore) Subscribe(fn func(url.Values)) func() {
	return s.subs.add(fn)
}

// Drop removes the session hash.
func (s *RedisStore) Drop(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
