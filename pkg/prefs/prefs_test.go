package prefs_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
)

// clearTimestamp zeroes UpdatedAt so documents can be compared with ==.
func clearTimestamp(p prefs.Preferences) prefs.Preferences {
	p.UpdatedAt = ""
	return p
}

func TestDefaultPreferences(t *testing.T) {
	p := prefs.DefaultPreferences()

	if p.Audio.SampleRate != 16000 {
		t.Errorf("Audio.SampleRate = %d, want 16000", p.Audio.SampleRate)
	}
	if p.Audio.Quality != prefs.QualityMedium {
		t.Errorf("Audio.Quality = %q, want %q", p.Audio.Quality, prefs.QualityMedium)
	}
	if p.Audio.Format != prefs.FormatWAV {
		t.Errorf("Audio.Format = %q, want %q", p.Audio.Format, prefs.FormatWAV)
	}
	if p.UI.Theme != prefs.ThemeLight || p.UI.Language != "en" || !p.UI.Animations {
		t.Errorf("UI = %+v, want light/en/animations", p.UI)
	}
	if p.LLM.DefaultModel != "phi3:mini" || p.LLM.Temperature != 0.7 || p.LLM.MaxTokens != 1000 {
		t.Errorf("LLM = %+v, want phi3:mini/0.7/1000", p.LLM)
	}
	if !p.Features.VADEnabled || !p.Features.EmotionDetection {
		t.Errorf("Features = %+v, want vad_enabled and emotion_detection on", p.Features)
	}
	if p.Features.Translation || p.Features.RAGEnabled || p.Features.ToolsEnabled {
		t.Errorf("Features = %+v, want translation/rag/tools off", p.Features)
	}
	if !p.Connection.AutoReconnect || p.Connection.ReconnectDelay != 3 || p.Connection.MaxRetries != 5 {
		t.Errorf("Connection = %+v, want auto/3s/5", p.Connection)
	}

	if _, err := time.Parse(time.RFC3339, p.UpdatedAt); err != nil {
		t.Errorf("UpdatedAt %q is not RFC 3339: %v", p.UpdatedAt, err)
	}

	if err := p.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}

func TestMerge_SingleKey(t *testing.T) {
	p := prefs.DefaultPreferences()
	p.UpdatedAt = "2020-01-01T00:00:00Z"

	err := p.Merge(map[string]any{
		"audio": map[string]any{"quality": "high"},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if p.Audio.Quality != prefs.QualityHigh {
		t.Errorf("Audio.Quality = %q, want %q", p.Audio.Quality, prefs.QualityHigh)
	}
	if p.Audio.SampleRate != 16000 || p.Audio.Format != prefs.FormatWAV {
		t.Errorf("sibling audio keys changed: %+v", p.Audio)
	}
	if got, want := p.UI, prefs.DefaultPreferences().UI; got != want {
		t.Errorf("untouched category changed: %+v", got)
	}
	if p.UpdatedAt == "2020-01-01T00:00:00Z" {
		t.Error("UpdatedAt was not bumped")
	}
}

func TestMerge_MultipleCategories(t *testing.T) {
	p := prefs.DefaultPreferences()

	err := p.Merge(map[string]any{
		"ui":       map[string]any{"theme": "dark", "animations": false},
		"llm":      map[string]any{"max_tokens": 2048},
		"features": map[string]any{"translation": true},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if p.UI.Theme != prefs.ThemeDark || p.UI.Animations {
		t.Errorf("UI = %+v, want dark without animations", p.UI)
	}
	if p.UI.Language != "en" {
		t.Errorf("UI.Language = %q, want untouched \"en\"", p.UI.Language)
	}
	if p.LLM.MaxTokens != 2048 || p.LLM.DefaultModel != "phi3:mini" {
		t.Errorf("LLM = %+v, want max_tokens 2048 and model untouched", p.LLM)
	}
	if !p.Features.Translation || !p.Features.VADEnabled {
		t.Errorf("Features = %+v, want translation on and vad untouched", p.Features)
	}
}

func TestMerge_UnknownFieldsDropped(t *testing.T) {
	p := prefs.DefaultPreferences()
	before := clearTimestamp(p)

	err := p.Merge(map[string]any{
		"telemetry": map[string]any{"enabled": true},
		"audio":     map[string]any{"bitrate": 320},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := clearTimestamp(p); got != before {
		t.Errorf("unknown fields altered the document:\n got %+v\nwant %+v", got, before)
	}
}

func TestMerge_TypeMismatchRejected(t *testing.T) {
	tests := []struct {
		name    string
		updates map[string]any
	}{
		{"category replaced by string", map[string]any{"audio": "loud"}},
		{"key with wrong type", map[string]any{"audio": map[string]any{"sample_rate": "fast"}}},
		{"bool for object", map[string]any{"features": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prefs.DefaultPreferences()
			before := p

			if err := p.Merge(tt.updates); err == nil {
				t.Fatal("Merge accepted a type-mismatched update")
			}
			if p != before {
				t.Errorf("rejected update still modified the document:\n got %+v\nwant %+v", p, before)
			}
		})
	}
}

func TestMerge_EmptyUpdateIsNoop(t *testing.T) {
	p := prefs.DefaultPreferences()
	p.UpdatedAt = "2020-01-01T00:00:00Z"

	if err := p.Merge(nil); err != nil {
		t.Fatalf("Merge(nil): %v", err)
	}
	if p.UpdatedAt != "2020-01-01T00:00:00Z" {
		t.Error("empty update bumped UpdatedAt")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*prefs.Preferences)
		wantErr string // empty means valid
	}{
		{"defaults", func(p *prefs.Preferences) {}, ""},
		{"all enums at other valid values", func(p *prefs.Preferences) {
			p.Audio.Quality = prefs.QualityHigh
			p.Audio.Format = prefs.FormatOGG
			p.UI.Theme = prefs.ThemeAuto
		}, ""},
		{"bad quality", func(p *prefs.Preferences) { p.Audio.Quality = "extreme" }, "audio.quality"},
		{"bad format", func(p *prefs.Preferences) { p.Audio.Format = "flac" }, "audio.format"},
		{"bad theme", func(p *prefs.Preferences) { p.UI.Theme = "solarized" }, "ui.theme"},
		{"bad sample rate", func(p *prefs.Preferences) { p.Audio.SampleRate = 11025 }, "audio.sample_rate"},
		{"temperature too high", func(p *prefs.Preferences) { p.LLM.Temperature = 2.5 }, "llm.temperature"},
		{"temperature negative", func(p *prefs.Preferences) { p.LLM.Temperature = -0.1 }, "llm.temperature"},
		{"zero max tokens", func(p *prefs.Preferences) { p.LLM.MaxTokens = 0 }, "llm.max_tokens"},
		{"negative delay", func(p *prefs.Preferences) { p.Connection.ReconnectDelay = -1 }, "connection.reconnect_delay"},
		{"negative retries", func(p *prefs.Preferences) { p.Connection.MaxRetries = -1 }, "connection.max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prefs.DefaultPreferences()
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	p := prefs.DefaultPreferences()
	p.Audio.Quality = "extreme"
	p.LLM.MaxTokens = 0

	err := p.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want two failures")
	}
	for _, want := range []string{"audio.quality", "llm.max_tokens"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, want mention of %q", err, want)
		}
	}
}

func TestGet(t *testing.T) {
	p := prefs.DefaultPreferences()

	got, err := p.Get("audio", "sample_rate")
	if err != nil {
		t.Fatalf("Get(audio, sample_rate): %v", err)
	}
	if got != float64(16000) {
		t.Errorf("Get(audio, sample_rate) = %v (%T), want 16000 (float64)", got, got)
	}

	got, err = p.Get("features", "vad_enabled")
	if err != nil {
		t.Fatalf("Get(features, vad_enabled): %v", err)
	}
	if got != true {
		t.Errorf("Get(features, vad_enabled) = %v, want true", got)
	}

	if _, err := p.Get("telemetry", "enabled"); !errors.Is(err, prefs.ErrNotFound) {
		t.Errorf("Get(unknown category) = %v, want ErrNotFound", err)
	}
	if _, err := p.Get("audio", "bitrate"); !errors.Is(err, prefs.ErrNotFound) {
		t.Errorf("Get(unknown key) = %v, want ErrNotFound", err)
	}
}
