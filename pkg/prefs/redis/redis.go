// Package redis stores the preference document in Redis as a single JSON
// value, so a document survives client restarts and can be shared between
// machines pointing at the same instance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
)

// DefaultKey is the Redis key the document is stored under.
const DefaultKey = "whisperbrain:preferences"

// Compile-time interface check.
var _ prefs.Store = (*Store)(nil)

// Store persists the document under a single Redis key. The caller owns
// the client's lifecycle.
type Store struct {
	client *redis.Client
	key    string
}

// Option configures a [Store].
type Option func(*Store)

// WithKey overrides [DefaultKey].
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// NewStore wraps an existing Redis client.
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		key:    DefaultKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the stored document. An absent key is reported as
// [prefs.ErrNotFound].
func (s *Store) Load(ctx context.Context) (prefs.Preferences, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return prefs.Preferences{}, fmt.Errorf("redis: %s: %w", s.key, prefs.ErrNotFound)
	}
	if err != nil {
		return prefs.Preferences{}, fmt.Errorf("redis: get %s: %w", s.key, err)
	}

	var p prefs.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return prefs.Preferences{}, fmt.Errorf("redis: decode %s: %w", s.key, err)
	}
	return p, nil
}

// Save replaces the stored document. The key has no expiry; preferences
// stay until overwritten or reset.
func (s *Store) Save(ctx context.Context, p prefs.Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", s.key, err)
	}
	return nil
}
