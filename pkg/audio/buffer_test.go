package audio_test

import (
	"testing"
	"time"

	"github.com/MihirPatel5/WhisperBrain/pkg/audio"
)

func TestCaptureBuffer_AppendFlush(t *testing.T) {
	var buf audio.CaptureBuffer
	if !buf.IsEmpty() {
		t.Fatal("zero-value buffer should be empty")
	}

	buf.Append(audio.AudioFrame{Samples: []float32{0.1, 0.2}, SampleRate: 16000})
	buf.Append(audio.AudioFrame{Samples: []float32{0.3}, SampleRate: 16000})

	if buf.IsEmpty() {
		t.Error("buffer with frames reports empty")
	}
	if buf.Len() != 2 {
		t.Errorf("Len = %d, want 2", buf.Len())
	}
	if buf.SampleCount() != 3 {
		t.Errorf("SampleCount = %d, want 3", buf.SampleCount())
	}

	u := buf.Flush()
	if len(u) != 2 || u.SampleCount() != 3 {
		t.Errorf("flushed %d frames / %d samples, want 2 / 3", len(u), u.SampleCount())
	}
	if u[0].Samples[0] != 0.1 || u[1].Samples[0] != 0.3 {
		t.Error("flushed frames out of order")
	}

	// Flush clears the buffer.
	if !buf.IsEmpty() || buf.SampleCount() != 0 {
		t.Error("buffer not cleared by Flush")
	}
	if second := buf.Flush(); len(second) != 0 {
		t.Errorf("flushing an empty buffer yielded %d frames", len(second))
	}
}

func TestCaptureBuffer_ReusableAfterFlush(t *testing.T) {
	var buf audio.CaptureBuffer
	buf.Append(audio.AudioFrame{Samples: []float32{1}})
	first := buf.Flush()

	buf.Append(audio.AudioFrame{Samples: []float32{-1}})
	second := buf.Flush()

	if first.SampleCount() != 1 || second.SampleCount() != 1 {
		t.Fatalf("sample counts = %d / %d, want 1 / 1", first.SampleCount(), second.SampleCount())
	}
	if first[0].Samples[0] != 1 || second[0].Samples[0] != -1 {
		t.Error("second utterance leaked frames from the first")
	}
}

func TestFrameAndUtteranceDuration(t *testing.T) {
	f := audio.AudioFrame{Samples: make([]float32, 16000), SampleRate: 16000}
	if f.Duration() != time.Second {
		t.Errorf("frame duration = %v, want 1s", f.Duration())
	}
	if (audio.AudioFrame{Samples: []float32{1}}).Duration() != 0 {
		t.Error("frame without a sample rate should have zero duration")
	}

	u := audio.Utterance{f, f, {Samples: make([]float32, 8000), SampleRate: 16000}}
	if u.Duration() != 2500*time.Millisecond {
		t.Errorf("utterance duration = %v, want 2.5s", u.Duration())
	}
	if u.SampleCount() != 40000 {
		t.Errorf("utterance samples = %d, want 40000", u.SampleCount())
	}
}
