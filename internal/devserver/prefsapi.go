package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
)

// updateEnvelope wraps the document returned by mutating endpoints.
type updateEnvelope struct {
	Status      string            `json:"status"`
	Preferences prefs.Preferences `json:"preferences"`
}

// valueEnvelope is the response for a single preference lookup.
type valueEnvelope struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    any    `json:"value"`
}

func apiJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int, msg string) {
	apiJSON(w, code, map[string]string{"error": msg})
}

// loadDoc returns the stored document, falling back to defaults while the
// store is still empty.
func (s *Server) loadDoc(ctx context.Context) (prefs.Preferences, error) {
	doc, err := s.store.Load(ctx)
	if errors.Is(err, prefs.ErrNotFound) {
		return prefs.DefaultPreferences(), nil
	}
	return doc, err
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDoc(r.Context())
	if err != nil {
		s.log.Error("loading preferences", "error", err)
		apiError(w, http.StatusInternalServerError, "loading preferences failed")
		return
	}
	apiJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdatePrefs(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		apiError(w, http.StatusBadRequest, "request body is not a JSON object")
		return
	}

	ctx := r.Context()
	doc, err := s.loadDoc(ctx)
	if err != nil {
		s.log.Error("loading preferences", "error", err)
		apiError(w, http.StatusInternalServerError, "loading preferences failed")
		return
	}
	if err := doc.Merge(updates); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := doc.Validate(); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Save(ctx, doc); err != nil {
		s.log.Error("saving preferences", "error", err)
		apiError(w, http.StatusInternalServerError, "saving preferences failed")
		return
	}

	s.log.Info("preferences updated", "categories", len(updates))
	apiJSON(w, http.StatusOK, updateEnvelope{Status: "success", Preferences: doc})
}

func (s *Server) handleGetPrefValue(w http.ResponseWriter, r *http.Request) {
	category, key := r.PathValue("category"), r.PathValue("key")

	doc, err := s.loadDoc(r.Context())
	if err != nil {
		s.log.Error("loading preferences", "error", err)
		apiError(w, http.StatusInternalServerError, "loading preferences failed")
		return
	}
	value, err := doc.Get(category, key)
	if err != nil {
		apiError(w, http.StatusNotFound, fmt.Sprintf("no preference %s.%s", category, key))
		return
	}
	apiJSON(w, http.StatusOK, valueEnvelope{Category: category, Key: key, Value: value})
}

func (s *Server) handleResetPrefs(w http.ResponseWriter, r *http.Request) {
	doc := prefs.DefaultPreferences()
	if err := s.store.Save(r.Context(), doc); err != nil {
		s.log.Error("resetting preferences", "error", err)
		apiError(w, http.StatusInternalServerError, "resetting preferences failed")
		return
	}
	s.log.Info("preferences reset to defaults")
	apiJSON(w, http.StatusOK, updateEnvelope{Status: "success", Preferences: doc})
}
