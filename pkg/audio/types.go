// Package audio defines the audio types and device interfaces for the
// WhisperBrain voice session engine.
//
// The two primary abstractions are:
//
//   - [CaptureProvider] — a source of live microphone frames with start/stop
//     semantics.
//   - [PlaybackSink] — a destination that plays one encoded reply to
//     completion.
//
// Implementations of these interfaces are provided by platform-specific
// adapter packages (e.g., audio/wavfile for file-backed sessions). The
// interfaces are intentionally narrow to keep the session coordinator
// decoupled from device details.
//
// The package also carries the [CaptureBuffer] that accumulates frames for
// the utterance in progress and the WAV container codec ([EncodeWAV],
// [DecodeWAV]) used on the wire.
//
// This package lives under pkg/ because external code (platform capture
// adapters) is expected to implement [CaptureProvider] and [PlaybackSink].
package audio

import "time"

// AudioFrame is a single block of captured audio flowing through the
// pipeline. Frames are the atomic unit of transport: emitted by a
// [CaptureProvider], measured by the VAD, accumulated by the
// [CaptureBuffer], and quantized by [EncodeWAV].
type AudioFrame struct {
	// Samples holds normalized mono amplitudes in [-1, 1]. A frame is
	// immutable once emitted; downstream stages must not modify it.
	Samples []float32

	// SampleRate in Hz (16000 for the backend wire format).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback time covered by the frame, or 0 when the
// sample rate is unset.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Utterance is the ordered frame sequence of one continuous recording, from
// start to endpoint. A [CaptureBuffer.Flush] transfers ownership to the
// caller; the encoder consumes it.
type Utterance []AudioFrame

// SampleCount returns the total number of samples across all frames.
func (u Utterance) SampleCount() int {
	n := 0
	for _, f := range u {
		n += len(f.Samples)
	}
	return n
}

// Duration returns the total playback time of the utterance.
func (u Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u {
		d += f.Duration()
	}
	return d
}
