package prefs

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by [Store.Load] when no document has been saved
// yet, and by [Preferences.Get] when the addressed category or key does not
// exist.
var ErrNotFound = errors.New("prefs: not found")

// Store persists the last-known preference document between runs.
//
// Implementations live in the subpackages file, redis and postgres; the
// in-memory implementation below serves tests and ephemeral runs.
type Store interface {
	// Load returns the stored document, or an error wrapping [ErrNotFound]
	// when nothing has been saved yet.
	Load(ctx context.Context) (Preferences, error)

	// Save replaces the stored document.
	Save(ctx context.Context, p Preferences) error
}

// MemoryStore is a process-local [Store]. The zero value is ready to use
// and safe for concurrent access.
type MemoryStore struct {
	mu  sync.Mutex
	doc *Preferences
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Preferences{}, ErrNotFound
	}
	return *s.doc, nil
}

func (s *MemoryStore) Save(ctx context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := p
	s.doc = &doc
	return nil
}
