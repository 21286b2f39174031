package audio_test

import (
	"testing"

	"github.com/MihirPatel5/WhisperBrain/pkg/audio"
)

func TestResampleMono(t *testing.T) {
	t.Run("same rate unchanged", func(t *testing.T) {
		in := []float32{0.1, 0.2, 0.3}
		out := audio.ResampleMono(in, 16000, 16000)
		if &out[0] != &in[0] {
			t.Error("same-rate resample copied the input")
		}
	})

	t.Run("invalid rates unchanged", func(t *testing.T) {
		in := []float32{0.1, 0.2}
		if out := audio.ResampleMono(in, 0, 16000); &out[0] != &in[0] {
			t.Error("zero source rate should return input")
		}
		if out := audio.ResampleMono(in, 16000, -1); &out[0] != &in[0] {
			t.Error("negative target rate should return input")
		}
	})

	t.Run("upsample interpolates", func(t *testing.T) {
		out := audio.ResampleMono([]float32{0, 1}, 8000, 16000)
		want := []float32{0, 0.5, 1, 1}
		if len(out) != len(want) {
			t.Fatalf("len = %d, want %d", len(out), len(want))
		}
		for i := range want {
			if out[i] != want[i] {
				t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
			}
		}
	})

	t.Run("downsample halves", func(t *testing.T) {
		in := make([]float32, 320)
		out := audio.ResampleMono(in, 16000, 8000)
		if len(out) != 160 {
			t.Errorf("len = %d, want 160", len(out))
		}
	})
}

func TestChunkSamples(t *testing.T) {
	in := make([]float32, 10)
	chunks := audio.ChunkSamples(in, 4)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 4 || len(chunks[1]) != 4 || len(chunks[2]) != 2 {
		t.Errorf("chunk lengths = %d/%d/%d, want 4/4/2", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if audio.ChunkSamples(nil, 4) != nil {
		t.Error("chunking no samples should yield nil")
	}
	if audio.ChunkSamples(in, 0) != nil {
		t.Error("non-positive frame size should yield nil")
	}
}
