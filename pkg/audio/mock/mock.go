// Package mock provides in-memory mock implementations of the
// [audio.CaptureProvider] and [audio.PlaybackSink] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	provider := &mock.CaptureProvider{}
//	frames, err := provider.Start(ctx)
//	provider.EmitFrame(audio.AudioFrame{Samples: []float32{0.5}})
//	provider.Stop() // closes the frame channel
package mock

import (
	"context"
	"sync"

	"github.com/MihirPatel5/WhisperBrain/pkg/audio"
)

// ─── CaptureProvider ──────────────────────────────────────────────────────────

// CaptureProvider is a mock implementation of [audio.CaptureProvider].
// Set the exported error fields before use; inspect the Call* fields after.
type CaptureProvider struct {
	mu sync.Mutex

	// StartError is returned by Start. When set, no capture begins.
	StartError error

	// StopError is returned by Stop.
	StopError error

	// FrameBuffer is the capacity of the channel created by Start.
	// Defaults to 16 if left zero.
	FrameBuffer int

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	frames chan audio.AudioFrame
	open   bool
}

// Start implements [audio.CaptureProvider]. It creates the frame channel
// that [CaptureProvider.EmitFrame] feeds.
func (p *CaptureProvider) Start(_ context.Context) (<-chan audio.AudioFrame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStart++
	if p.StartError != nil {
		return nil, p.StartError
	}
	buffer := p.FrameBuffer
	if buffer == 0 {
		buffer = 16
	}
	p.frames = make(chan audio.AudioFrame, buffer)
	p.open = true
	return p.frames, nil
}

// Stop implements [audio.CaptureProvider]. It closes the frame channel.
// Safe to call multiple times.
func (p *CaptureProvider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	if p.open {
		close(p.frames)
		p.open = false
	}
	return p.StopError
}

// EmitFrame delivers frame to the channel returned by Start. Use this in
// tests to simulate live capture. Panics if capture was never started.
func (p *CaptureProvider) EmitFrame(frame audio.AudioFrame) {
	p.mu.Lock()
	ch := p.frames
	p.mu.Unlock()
	ch <- frame
}

// Capturing reports whether the frame channel is currently open.
func (p *CaptureProvider) Capturing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// ─── PlaybackSink ─────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [PlaybackSink.Play] invocation.
type PlayCall struct {
	// Payload is the encoded audio passed to Play.
	Payload []byte
}

// PlaybackSink is a mock implementation of [audio.PlaybackSink].
type PlaybackSink struct {
	mu sync.Mutex

	// PlayError is returned by Play.
	PlayError error

	// PlayCalls records all Play invocations in order.
	PlayCalls []PlayCall

	// Played receives one value per Play call when non-nil and not full.
	// Set a buffered channel here to wait for playback from another
	// goroutine.
	Played chan struct{}
}

// Play implements [audio.PlaybackSink]. Records the payload and returns
// PlayError immediately.
func (s *PlaybackSink) Play(_ context.Context, encoded []byte) error {
	s.mu.Lock()
	s.PlayCalls = append(s.PlayCalls, PlayCall{Payload: encoded})
	played := s.Played
	s.mu.Unlock()
	if played != nil {
		select {
		case played <- struct{}{}:
		default:
		}
	}
	return s.PlayError
}

// CallCountPlay returns how many times Play was called.
func (s *PlaybackSink) CallCountPlay() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.PlayCalls)
}

// LastPayload returns the payload of the most recent Play call, or nil when
// Play was never called.
func (s *PlaybackSink) LastPayload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.PlayCalls) == 0 {
		return nil
	}
	return s.PlayCalls[len(s.PlayCalls)-1].Payload
}
