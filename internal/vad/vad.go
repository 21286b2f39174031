// Package vad implements energy-based voice activity detection for
// utterance endpointing.
//
// The central type is [Endpointer], a two-state machine (idle → speaking)
// that watches the RMS energy of incoming frames and declares "utterance
// ended" after speech has been observed and energy then stays below the
// silence threshold for a configured hold time. Two separate thresholds
// leave a hysteresis band between silence and speech where no transition
// occurs, so energy hovering near a single boundary cannot flap the state.
//
// The endpointer is deliberately free of clocks, goroutines, and locks: the
// caller supplies the current time with every frame and serializes all
// calls (the session coordinator runs it on its event loop).
package vad

import (
	"math"
	"time"

	"github.com/MihirPatel5/WhisperBrain/pkg/audio"
)

// Defaults applied by [NewEndpointer] for unset or invalid config values.
const (
	DefaultSpeechThreshold  = 0.02
	DefaultSilenceThreshold = 0.015
	DefaultMinSilence       = 1500 * time.Millisecond
)

// State represents the endpointer's position in the current utterance.
type State int

const (
	// StateIdle means no speech has been observed yet this utterance.
	StateIdle State = iota

	// StateSpeaking means speech has been observed, possibly now trailing
	// into silence.
	StateSpeaking
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Energy returns the root-mean-square amplitude of a frame, a cheap
// loudness proxy in [0, 1] for normalized input. A frame with no samples
// yields 0.
func Energy(frame audio.AudioFrame) float64 {
	if len(frame.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame.Samples)))
}

// Config holds the endpointer tuning knobs.
type Config struct {
	// SpeechThreshold is the energy at or above which a frame counts as
	// speech. Default: 0.02.
	SpeechThreshold float64

	// SilenceThreshold is the energy at or below which a frame counts as
	// silence. Must be lower than SpeechThreshold so a hysteresis band
	// remains between them. Default: 0.015.
	SilenceThreshold float64

	// MinSilence is how long energy must stay at or below SilenceThreshold,
	// after speech has been observed, before the utterance is declared
	// ended. Default: 1500ms.
	MinSilence time.Duration
}

// Endpointer is the speech/silence state machine that turns a stream of
// frame energies into a single "utterance ended" decision.
//
// Not safe for concurrent use; all calls must come from one goroutine.
type Endpointer struct {
	speechThreshold  float64
	silenceThreshold float64
	minSilence       time.Duration

	state        State
	silenceStart time.Time // zero = no silence window open
	lastSpeech   time.Time
}

// NewEndpointer creates an endpointer from cfg. Unset or invalid values are
// replaced with defaults; if the two thresholds do not leave a hysteresis
// band (silence >= speech) both revert to defaults.
func NewEndpointer(cfg Config) *Endpointer {
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.MinSilence <= 0 {
		cfg.MinSilence = DefaultMinSilence
	}
	if cfg.SilenceThreshold >= cfg.SpeechThreshold {
		cfg.SpeechThreshold = DefaultSpeechThreshold
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	return &Endpointer{
		speechThreshold:  cfg.SpeechThreshold,
		silenceThreshold: cfg.SilenceThreshold,
		minSilence:       cfg.MinSilence,
	}
}

// Reset forces the endpointer back to idle and clears both timestamps.
// Must be called when a new recording begins.
func (e *Endpointer) Reset() {
	e.state = StateIdle
	e.silenceStart = time.Time{}
	e.lastSpeech = time.Time{}
}

// Process computes the frame's energy and feeds it to [Endpointer.Observe].
func (e *Endpointer) Process(frame audio.AudioFrame, now time.Time) bool {
	return e.Observe(Energy(frame), now)
}

// Observe advances the state machine with one energy measurement taken at
// now. It returns true exactly when the utterance should be declared ended:
// speech was observed earlier and energy has now stayed at or below the
// silence threshold for at least the configured hold time.
//
// Silence before any speech never triggers, so an all-silent recording
// cannot self-terminate; the caller owns any maximum-duration ceiling.
func (e *Endpointer) Observe(energy float64, now time.Time) bool {
	switch {
	case energy >= e.speechThreshold:
		e.state = StateSpeaking
		e.lastSpeech = now
		e.silenceStart = time.Time{}

	case energy <= e.silenceThreshold && e.state == StateSpeaking:
		if e.silenceStart.IsZero() {
			e.silenceStart = now
		} else if now.Sub(e.silenceStart) >= e.minSilence {
			e.state = StateIdle
			e.silenceStart = time.Time{}
			return true
		}
	}
	return false
}

// State returns the current machine state.
func (e *Endpointer) State() State { return e.state }

// SilenceThreshold returns the normalized silence threshold in effect.
func (e *Endpointer) SilenceThreshold() float64 { return e.silenceThreshold }

// LastSpeech returns the timestamp of the most recent frame classified as
// speech, or the zero time if none has been seen since the last reset.
func (e *Endpointer) LastSpeech() time.Time { return e.lastSpeech }

// TrimTrailingSilence drops the contiguous run of frames at the tail of u
// whose energy is at or below threshold. The hold period that ends an
// utterance is endpoint padding, not speech; stripping it keeps the
// transmitted container aligned with what was actually said.
func TrimTrailingSilence(u audio.Utterance, threshold float64) audio.Utterance {
	end := len(u)
	for end > 0 && Energy(u[end-1]) <= threshold {
		end--
	}
	return u[:end]
}
