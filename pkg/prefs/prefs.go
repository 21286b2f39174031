// Package prefs implements the user preference document shared between the
// client and the backend.
//
// The document is a small set of typed categories (audio, ui, llm, features,
// connection) plus an updated_at timestamp. The package provides defaults,
// category-level partial merge with the same semantics as the backend's
// update endpoint, validation, pluggable persistence via [Store], and a
// read-through/write-through [Cache] that keeps a local copy in sync with
// the backend REST API.
//
// The cache is an explicit dependency: construct it at startup and hand it
// to whichever component needs preference access. Nothing in this package
// holds package-global state.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Enum types
// ─────────────────────────────────────────────────────────────────────────────

// Quality selects the audio capture quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// IsValid reports whether q is one of the recognized quality tiers.
func (q Quality) IsValid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

// Format selects the audio container format used for uploads.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
	FormatOGG Format = "ogg"
)

// IsValid reports whether f is one of the recognized container formats.
func (f Format) IsValid() bool {
	switch f {
	case FormatWAV, FormatMP3, FormatOGG:
		return true
	}
	return false
}

// Theme selects the UI color theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// IsValid reports whether t is one of the recognized themes.
func (t Theme) IsValid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeAuto:
		return true
	}
	return false
}

// validSampleRates lists the capture sample rates the backend accepts.
var validSampleRates = []int{8000, 16000, 22050, 44100, 48000}

// ─────────────────────────────────────────────────────────────────────────────
// Document
// ─────────────────────────────────────────────────────────────────────────────

// AudioPreferences configures capture and upload audio parameters.
type AudioPreferences struct {
	SampleRate int     `json:"sample_rate"`
	Quality    Quality `json:"quality"`
	Format     Format  `json:"format"`
}

// UIPreferences configures the presentation layer.
type UIPreferences struct {
	Theme      Theme  `json:"theme"`
	Language   string `json:"language"`
	Animations bool   `json:"animations"`
}

// LLMPreferences configures the backend's language model defaults.
type LLMPreferences struct {
	DefaultModel string  `json:"default_model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// FeaturePreferences toggles optional backend processing stages.
type FeaturePreferences struct {
	VADEnabled       bool `json:"vad_enabled"`
	EmotionDetection bool `json:"emotion_detection"`
	Translation      bool `json:"translation"`
	RAGEnabled       bool `json:"rag_enabled"`
	ToolsEnabled     bool `json:"tools_enabled"`
}

// ConnectionPreferences configures the client's reconnect behaviour.
// ReconnectDelay is in whole seconds, as on the wire.
type ConnectionPreferences struct {
	AutoReconnect  bool `json:"auto_reconnect"`
	ReconnectDelay int  `json:"reconnect_delay"`
	MaxRetries     int  `json:"max_retries"`
}

// Preferences is the full preference document. Its JSON encoding is the wire
// format exchanged with the backend REST API and the format persisted by
// [Store] implementations.
type Preferences struct {
	Audio      AudioPreferences      `json:"audio"`
	UI         UIPreferences         `json:"ui"`
	LLM        LLMPreferences        `json:"llm"`
	Features   FeaturePreferences    `json:"features"`
	Connection ConnectionPreferences `json:"connection"`

	// UpdatedAt is kept as the backend sends it. The backend emits local
	// timestamps without a zone offset, so parsing into time.Time would
	// reject valid documents; writers produced here use RFC 3339 UTC.
	UpdatedAt string `json:"updated_at,omitempty"`
}

// DefaultPreferences returns the document used when nothing has been stored
// yet. The values match the backend's built-in defaults.
func DefaultPreferences() Preferences {
	return Preferences{
		Audio: AudioPreferences{
			SampleRate: 16000,
			Quality:    QualityMedium,
			Format:     FormatWAV,
		},
		UI: UIPreferences{
			Theme:      ThemeLight,
			Language:   "en",
			Animations: true,
		},
		LLM: LLMPreferences{
			DefaultModel: "phi3:mini",
			Temperature:  0.7,
			MaxTokens:    1000,
		},
		Features: FeaturePreferences{
			VADEnabled:       true,
			EmotionDetection: true,
			Translation:      false,
			RAGEnabled:       false,
			ToolsEnabled:     false,
		},
		Connection: ConnectionPreferences{
			AutoReconnect:  true,
			ReconnectDelay: 3,
			MaxRetries:     5,
		},
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Merge, validation, lookup
// ─────────────────────────────────────────────────────────────────────────────

// Merge applies a partial update to the document and bumps UpdatedAt.
//
// Updates are keyed by category name using the wire names ("audio", "ui",
// ...). A value for a known category merges key by key, so
//
//	p.Merge(map[string]any{"audio": map[string]any{"quality": "high"}})
//
// changes audio.quality and nothing else. Unknown categories and unknown
// keys inside a category are dropped. A value whose type does not fit the
// document (a string where a category object is expected, a word where a
// number is expected) rejects the whole update and leaves p unchanged.
func (p *Preferences) Merge(updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("prefs: encode document: %w", err)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("prefs: decode document: %w", err)
	}

	for category, value := range updates {
		existing, isMap := doc[category].(map[string]any)
		patch, patchIsMap := value.(map[string]any)
		if isMap && patchIsMap {
			for k, v := range patch {
				existing[k] = v
			}
			continue
		}
		doc[category] = value
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("prefs: encode merged document: %w", err)
	}
	next := *p
	if err := json.Unmarshal(merged, &next); err != nil {
		return fmt.Errorf("prefs: apply update: %w", err)
	}
	next.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	*p = next
	return nil
}

// Validate checks that the document contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func (p *Preferences) Validate() error {
	var errs []error

	if !slices.Contains(validSampleRates, p.Audio.SampleRate) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; valid values: %v", p.Audio.SampleRate, validSampleRates))
	}
	if p.Audio.Quality != "" && !p.Audio.Quality.IsValid() {
		errs = append(errs, fmt.Errorf("audio.quality %q is invalid; valid values: low, medium, high", p.Audio.Quality))
	}
	if p.Audio.Format != "" && !p.Audio.Format.IsValid() {
		errs = append(errs, fmt.Errorf("audio.format %q is invalid; valid values: wav, mp3, ogg", p.Audio.Format))
	}
	if p.UI.Theme != "" && !p.UI.Theme.IsValid() {
		errs = append(errs, fmt.Errorf("ui.theme %q is invalid; valid values: light, dark, auto", p.UI.Theme))
	}
	if p.LLM.Temperature < 0 || p.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", p.LLM.Temperature))
	}
	if p.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens %d must be positive", p.LLM.MaxTokens))
	}
	if p.Connection.ReconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("connection.reconnect_delay %d must not be negative", p.Connection.ReconnectDelay))
	}
	if p.Connection.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("connection.max_retries %d must not be negative", p.Connection.MaxRetries))
	}

	return errors.Join(errs...)
}

// Get returns a single value addressed by wire-format category and key
// names, mirroring the backend's GET /api/preferences/{category}/{key}
// lookup. Numeric values come back as float64, as with any decoded JSON.
// A miss is reported as [ErrNotFound].
func (p Preferences) Get(category, key string) (any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("prefs: encode document: %w", err)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("prefs: decode document: %w", err)
	}

	cat, ok := doc[category].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("prefs: category %q: %w", category, ErrNotFound)
	}
	value, ok := cat[key]
	if !ok {
		return nil, fmt.Errorf("prefs: %s.%s: %w", category, key, ErrNotFound)
	}
	return value, nil
}
