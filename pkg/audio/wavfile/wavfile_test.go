package wavfile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MihirPatel5/WhisperBrain/pkg/audio"
	"github.com/MihirPatel5/WhisperBrain/pkg/audio/wavfile"
)

// writeTestWAV writes a 16 kHz mono WAV of n constant samples and returns
// its path.
func writeTestWAV(t *testing.T, n int, value float32) string {
	t.Helper()
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	data, err := audio.EncodeWAV(audio.Utterance{{Samples: samples, SampleRate: 16000}}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write test wav: %v", err)
	}
	return path
}

func TestProvider_ReplaysAllSamples(t *testing.T) {
	const n = 10000
	path := writeTestWAV(t, n, 0.25)
	p := wavfile.NewProvider(path,
		wavfile.WithFrameSize(4096),
		wavfile.WithPacing(false),
	)

	frames, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	total := 0
	count := 0
	for f := range frames {
		total += len(f.Samples)
		count++
		if f.SampleRate != 16000 {
			t.Errorf("frame rate = %d, want 16000", f.SampleRate)
		}
	}
	if total != n {
		t.Errorf("replayed %d samples, want %d", total, n)
	}
	if count != 3 { // 4096 + 4096 + 1808
		t.Errorf("frame count = %d, want 3", count)
	}
}

func TestProvider_TrailingSilencePadding(t *testing.T) {
	path := writeTestWAV(t, 1600, 0.5)
	p := wavfile.NewProvider(path,
		wavfile.WithPacing(false),
		wavfile.WithTrailingSilence(500*time.Millisecond),
	)

	frames, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	total := 0
	for f := range frames {
		total += len(f.Samples)
	}
	// 1600 file samples + 8000 samples of padding at 16 kHz.
	if total != 9600 {
		t.Errorf("replayed %d samples, want 9600", total)
	}
}

func TestProvider_StopEndsDelivery(t *testing.T) {
	path := writeTestWAV(t, 160000, 0.25)
	p := wavfile.NewProvider(path) // paced: delivery takes ~10s unless stopped

	frames, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return // channel closed, delivery ended
			}
		case <-deadline:
			t.Fatal("frame channel not closed after Stop")
		}
	}
}

func TestProvider_StartTwiceFails(t *testing.T) {
	path := writeTestWAV(t, 160000, 0.25)
	p := wavfile.NewProvider(path)
	if _, err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	if _, err := p.Start(context.Background()); err == nil {
		t.Error("second Start while running should fail")
	}
}

func TestProvider_MissingFile(t *testing.T) {
	p := wavfile.NewProvider(filepath.Join(t.TempDir(), "absent.wav"))
	if _, err := p.Start(context.Background()); err == nil {
		t.Error("Start on a missing file should fail")
	}
}

func TestSink_WritesNumberedFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "replies")
	s, err := wavfile.NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	payload, err := audio.EncodeWAV(audio.Utterance{{Samples: []float32{0.1}, SampleRate: 16000}}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	for range 2 {
		if err := s.Play(context.Background(), payload); err != nil {
			t.Fatalf("Play: %v", err)
		}
	}

	for _, name := range []string{"reply-0001.wav", "reply-0002.wav"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(got) != len(payload) {
			t.Errorf("%s has %d bytes, want %d", name, len(got), len(payload))
		}
	}
	if s.Written() != 2 {
		t.Errorf("Written = %d, want 2", s.Written())
	}
}
