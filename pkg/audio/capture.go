package audio

import "context"

// CaptureError reports a failure of the capture device. It is fatal to the
// recording attempt that hit it but never to the session; a fresh recording
// may retry.
type CaptureError struct {
	Op  string // "start" or "stop"
	Err error
}

func (e *CaptureError) Error() string { return "capture: " + e.Op + ": " + e.Err.Error() }

func (e *CaptureError) Unwrap() error { return e.Err }

// CaptureProvider is the entry point for a microphone-like audio source.
// Implementations wrap a concrete input device (sound card, file replay,
// test fixture) and expose a uniform frame stream.
//
// Implementations must be safe for concurrent use.
type CaptureProvider interface {
	// Start begins capture and returns the live frame channel. Frames arrive
	// in capture order at the provider's native pace. The channel is closed
	// when [CaptureProvider.Stop] is called, when the source is exhausted
	// (finite sources such as files), or when ctx is cancelled.
	//
	// Returns an error if the device cannot be opened (permission denied,
	// device unavailable). Calling Start while a capture is already running
	// is an error.
	Start(ctx context.Context) (<-chan AudioFrame, error)

	// Stop halts capture and closes the frame channel. It is safe to call
	// Stop more than once; subsequent calls are no-ops and return nil.
	Stop() error
}

// PlaybackSink plays one encoded audio payload to completion.
//
// Implementations must be safe for concurrent use.
type PlaybackSink interface {
	// Play decodes and plays encoded, blocking until playback finishes or
	// ctx is cancelled. A nil return signals completion; an error reports
	// an undecodable payload or a device failure.
	Play(ctx context.Context, encoded []byte) error
}
