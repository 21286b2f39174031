package prefs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
)

// startPrefsAPI runs an in-process stand-in for the backend preference API
// over a single document guarded by a mutex.
func startPrefsAPI(t *testing.T) (*httptest.Server, *sync.Mutex, *prefs.Preferences) {
	t.Helper()

	var mu sync.Mutex
	doc := prefs.DefaultPreferences()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/preferences", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		writeJSON(t, w, doc)
	})
	mux.HandleFunc("POST /api/preferences", func(w http.ResponseWriter, r *http.Request) {
		var updates map[string]any
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := doc.Merge(updates); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(t, w, map[string]any{"status": "success", "preferences": doc})
	})
	mux.HandleFunc("POST /api/preferences/reset", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		doc = prefs.DefaultPreferences()
		writeJSON(t, w, map[string]any{"status": "success", "preferences": doc})
	})
	mux.HandleFunc("GET /api/preferences/{category}/{key}", func(w http.ResponseWriter, r *http.Request) {
		category, key := r.PathValue("category"), r.PathValue("key")
		mu.Lock()
		value, err := doc.Get(category, key)
		mu.Unlock()
		if err != nil {
			http.Error(w, `{"detail":"Preference not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(t, w, map[string]any{"category": category, "key": key, "value": value})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &mu, &doc
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestSyncClient_Fetch(t *testing.T) {
	srv, mu, doc := startPrefsAPI(t)
	mu.Lock()
	doc.UI.Theme = prefs.ThemeDark
	mu.Unlock()

	c := prefs.NewSyncClient(srv.URL)
	got, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.UI.Theme != prefs.ThemeDark {
		t.Errorf("Fetch().UI.Theme = %q, want %q", got.UI.Theme, prefs.ThemeDark)
	}
	if got.Audio.SampleRate != 16000 {
		t.Errorf("Fetch().Audio.SampleRate = %d, want 16000", got.Audio.SampleRate)
	}
}

func TestSyncClient_Push(t *testing.T) {
	srv, mu, doc := startPrefsAPI(t)

	c := prefs.NewSyncClient(srv.URL)
	got, err := c.Push(context.Background(), map[string]any{
		"audio": map[string]any{"quality": "high"},
	})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if got.Audio.Quality != prefs.QualityHigh {
		t.Errorf("Push() returned quality %q, want %q", got.Audio.Quality, prefs.QualityHigh)
	}

	mu.Lock()
	defer mu.Unlock()
	if doc.Audio.Quality != prefs.QualityHigh {
		t.Errorf("server document quality = %q, want %q", doc.Audio.Quality, prefs.QualityHigh)
	}
}

func TestSyncClient_Reset(t *testing.T) {
	srv, mu, doc := startPrefsAPI(t)
	mu.Lock()
	doc.UI.Theme = prefs.ThemeDark
	mu.Unlock()

	c := prefs.NewSyncClient(srv.URL)
	got, err := c.Reset(context.Background())
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got.UI.Theme != prefs.ThemeLight {
		t.Errorf("Reset().UI.Theme = %q, want %q", got.UI.Theme, prefs.ThemeLight)
	}
}

func TestSyncClient_Value(t *testing.T) {
	srv, _, _ := startPrefsAPI(t)
	c := prefs.NewSyncClient(srv.URL)

	got, err := c.Value(context.Background(), "llm", "default_model")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if got != "phi3:mini" {
		t.Errorf("Value(llm, default_model) = %v, want phi3:mini", got)
	}

	if _, err := c.Value(context.Background(), "llm", "nonexistent"); !errors.Is(err, prefs.ErrNotFound) {
		t.Errorf("Value(missing key) = %v, want ErrNotFound", err)
	}
}

func TestSyncClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := prefs.NewSyncClient(srv.URL)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("Fetch() against a failing server = nil, want error")
	}
}

func TestSyncClient_ConnectionRefused(t *testing.T) {
	// Port 1 is essentially never listening.
	c := prefs.NewSyncClient("http://127.0.0.1:1")
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("Fetch() against a closed port = nil, want error")
	}
}
