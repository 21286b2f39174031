package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// refreshTimeout bounds a single background fetch from the backend.
const refreshTimeout = 10 * time.Second

// Syncer exchanges the preference document with the backend REST API.
// [SyncClient] is the production implementation; tests substitute a double.
type Syncer interface {
	// Fetch returns the backend's current document.
	Fetch(ctx context.Context) (Preferences, error)

	// Push applies a partial update on the backend and returns its merged
	// document.
	Push(ctx context.Context, updates map[string]any) (Preferences, error)

	// Reset restores the backend to defaults and returns the result.
	Reset(ctx context.Context) (Preferences, error)
}

// Cache keeps a local copy of the preference document and reconciles it
// with the backend.
//
// Reads are served from memory, falling back to the [Store] and finally to
// [DefaultPreferences], and trigger a deduplicated background refresh from
// the backend. Writes merge into the local copy, persist synchronously and
// propagate to the backend best-effort: propagation failure is logged, not
// surfaced, so the UI never blocks on backend availability.
//
// All methods are safe for concurrent use.
type Cache struct {
	store Store
	sync  Syncer
	log   *slog.Logger

	mu         sync.Mutex
	doc        *Preferences
	refreshing bool
}

// CacheOption configures a [Cache].
type CacheOption func(*Cache)

// WithLogger sets the logger used for save and propagation failures.
func WithLogger(log *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.log = log
	}
}

// NewCache builds a cache over store. A nil syncer disables backend
// exchange entirely; the cache then serves and persists only locally.
func NewCache(store Store, syncer Syncer, opts ...CacheOption) *Cache {
	c := &Cache{
		store: store,
		sync:  syncer,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current document without waiting on the network: the
// in-memory copy if present, otherwise the stored document, otherwise
// defaults. It then refreshes from the backend in the background, so a
// stale answer converges by a later call.
func (c *Cache) Get(ctx context.Context) Preferences {
	c.mu.Lock()
	cached := c.doc
	c.mu.Unlock()

	if cached == nil {
		doc := c.loadLocal(ctx)
		c.mu.Lock()
		if c.doc == nil {
			c.doc = &doc
		}
		cached = c.doc
		c.mu.Unlock()
	}

	out := *cached
	c.beginRefresh()
	return out
}

// Update merges a partial update into the current document, validates the
// result, persists it and best-effort propagates the same partial update to
// the backend. The merged document is returned. A merge or validation
// failure leaves the cache untouched.
func (c *Cache) Update(ctx context.Context, updates map[string]any) (Preferences, error) {
	doc := c.snapshot(ctx)
	if err := doc.Merge(updates); err != nil {
		return Preferences{}, err
	}
	if err := doc.Validate(); err != nil {
		return Preferences{}, fmt.Errorf("prefs: validate update: %w", err)
	}

	c.replace(ctx, doc)

	if c.sync != nil {
		if _, err := c.sync.Push(ctx, updates); err != nil {
			c.log.Warn("propagating preference update failed", "error", err)
		}
	}
	return doc, nil
}

// Reset restores the defaults locally and best-effort resets the backend.
func (c *Cache) Reset(ctx context.Context) Preferences {
	doc := DefaultPreferences()
	c.replace(ctx, doc)

	if c.sync != nil {
		if _, err := c.sync.Reset(ctx); err != nil {
			c.log.Warn("propagating preference reset failed", "error", err)
		}
	}
	return doc
}

// Refresh synchronously fetches the backend's document, replaces the cached
// copy and persists it. [Cache.Get] arranges for this to happen in the
// background; call it directly to force convergence, e.g. right after
// connecting.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.sync == nil {
		return nil
	}
	doc, err := c.sync.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("prefs: refresh: %w", err)
	}
	c.replace(ctx, doc)
	return nil
}

// snapshot returns the current document without triggering a refresh.
func (c *Cache) snapshot(ctx context.Context) Preferences {
	c.mu.Lock()
	cached := c.doc
	c.mu.Unlock()
	if cached != nil {
		return *cached
	}
	return c.loadLocal(ctx)
}

// loadLocal reads the store, mapping both an empty and an unreadable store
// to the defaults. An unreadable store is logged and never fatal.
func (c *Cache) loadLocal(ctx context.Context) Preferences {
	doc, err := c.store.Load(ctx)
	switch {
	case err == nil:
		return doc
	case errors.Is(err, ErrNotFound):
		return DefaultPreferences()
	default:
		c.log.Warn("preference store unreadable, using defaults", "error", err)
		return DefaultPreferences()
	}
}

// replace installs doc as the cached copy and persists it. A save failure
// is logged, not surfaced: the in-memory copy stays authoritative for the
// rest of the run.
func (c *Cache) replace(ctx context.Context, doc Preferences) {
	c.mu.Lock()
	d := doc
	c.doc = &d
	c.mu.Unlock()

	if err := c.store.Save(ctx, doc); err != nil {
		c.log.Warn("saving preferences failed", "error", err)
	}
}

// beginRefresh starts a background fetch unless one is already in flight or
// no backend is configured.
func (c *Cache) beginRefresh() {
	if c.sync == nil {
		return
	}
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.refreshing = false
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			c.log.Debug("background preference refresh failed", "error", err)
		}
	}()
}
