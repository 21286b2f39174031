package redis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
	redisstore "github.com/MihirPatel5/WhisperBrain/pkg/prefs/redis"
)

// newTestStore runs an in-process Redis and wraps it in a Store.
func newTestStore(t *testing.T, opts ...redisstore.Option) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewStore(client, opts...), mr
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	doc := prefs.DefaultPreferences()
	doc.LLM.MaxTokens = 2048
	if err := store.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != doc {
		t.Errorf("Load() = %+v, want %+v", got, doc)
	}
}

func TestStore_LoadMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Load(context.Background())
	if !errors.Is(err, prefs.ErrNotFound) {
		t.Errorf("Load() on empty instance = %v, want ErrNotFound", err)
	}
}

func TestStore_LoadCorruptValue(t *testing.T) {
	store, mr := newTestStore(t)
	if err := mr.Set(redisstore.DefaultKey, "{not json"); err != nil {
		t.Fatalf("seed corrupt value: %v", err)
	}

	_, err := store.Load(context.Background())
	if err == nil {
		t.Fatal("Load() on corrupt value = nil, want error")
	}
	if errors.Is(err, prefs.ErrNotFound) {
		t.Error("corrupt value must not look like an empty store")
	}
}

func TestStore_CustomKey(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, redisstore.WithKey("other:prefs"))

	if err := store.Save(ctx, prefs.DefaultPreferences()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !mr.Exists("other:prefs") {
		t.Error("document not stored under the custom key")
	}
	if mr.Exists(redisstore.DefaultKey) {
		t.Error("document leaked to the default key")
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	first := prefs.DefaultPreferences()
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := first
	second.UI.Theme = prefs.ThemeDark
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.UI.Theme != prefs.ThemeDark {
		t.Errorf("Load().UI.Theme = %q, want %q", got.UI.Theme, prefs.ThemeDark)
	}
}
