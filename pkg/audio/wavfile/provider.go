// Package wavfile provides file-backed implementations of the
// [audio.CaptureProvider] and [audio.PlaybackSink] interfaces.
//
// [Provider] replays a mono PCM WAV file as if it were a live microphone:
// the file is decoded once, resampled to the engine rate when necessary,
// split into fixed-size frames, and delivered at real-time pace so that
// wall-clock endpointing behaves exactly as it would on a device. [Sink]
// writes each reply payload to a numbered file in an output directory.
//
// Both types exist so a full capture → endpoint → send → reply session can
// run without sound hardware.
package wavfile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MihirPatel5/WhisperBrain/pkg/audio"
)

// Default frame and rate parameters, matching the engine wire format.
const (
	DefaultFrameSize  = 4096
	DefaultSampleRate = 16000
)

// ProviderOption customizes a [Provider].
type ProviderOption func(*Provider)

// WithFrameSize sets the number of samples per emitted frame.
func WithFrameSize(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.frameSize = n
		}
	}
}

// WithSampleRate sets the target sample rate frames are resampled to.
func WithSampleRate(hz int) ProviderOption {
	return func(p *Provider) {
		if hz > 0 {
			p.sampleRate = hz
		}
	}
}

// WithPacing controls real-time delivery. Enabled by default; disable it in
// tests that want all frames immediately.
func WithPacing(enabled bool) ProviderOption {
	return func(p *Provider) { p.paced = enabled }
}

// WithTrailingSilence appends d of zero samples after the file content, so
// a recording that ends abruptly still gives the endpointer a silence tail
// to detect.
func WithTrailingSilence(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.trailingSilence = d
		}
	}
}

// Provider replays a WAV file as a live capture stream.
//
// Safe for concurrent use, but only one capture may run at a time.
type Provider struct {
	path            string
	frameSize       int
	sampleRate      int
	paced           bool
	trailingSilence time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewProvider creates a provider that replays the WAV file at path.
func NewProvider(path string, opts ...ProviderOption) *Provider {
	p := &Provider{
		path:       path,
		frameSize:  DefaultFrameSize,
		sampleRate: DefaultSampleRate,
		paced:      true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start implements [audio.CaptureProvider]. It decodes the file up front so
// unreadable input fails here rather than mid-stream, then emits frames on
// a private goroutine until the file is exhausted, Stop is called, or ctx
// is cancelled. The returned channel is closed when delivery ends.
func (p *Provider) Start(ctx context.Context) (<-chan audio.AudioFrame, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, fmt.Errorf("wavfile provider: capture already running for %s", p.path)
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("wavfile provider: %w", err)
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("wavfile provider: %s: %w", p.path, err)
	}
	samples = audio.ResampleMono(samples, rate, p.sampleRate)
	if p.trailingSilence > 0 {
		pad := int(p.trailingSilence.Seconds() * float64(p.sampleRate))
		samples = append(samples, make([]float32, pad)...)
	}

	p.running = true
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	out := make(chan audio.AudioFrame, 8)
	go p.deliver(ctx, stop, out, samples)
	return out, nil
}

// deliver emits the chunked samples on out, pacing each frame to its
// playback duration when enabled.
func (p *Provider) deliver(ctx context.Context, stop <-chan struct{}, out chan<- audio.AudioFrame, samples []float32) {
	defer func() {
		close(out)
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	var elapsed time.Duration
	for _, chunk := range audio.ChunkSamples(samples, p.frameSize) {
		frame := audio.AudioFrame{
			Samples:    chunk,
			SampleRate: p.sampleRate,
			Timestamp:  elapsed,
		}
		elapsed += frame.Duration()

		if p.paced {
			select {
			case <-time.After(frame.Duration()):
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case out <- frame:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop implements [audio.CaptureProvider]. It halts delivery and lets the
// frame channel close. Safe to call multiple times.
func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		select {
		case <-p.stop:
		default:
			close(p.stop)
		}
	}
	return nil
}
