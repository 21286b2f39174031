package wavfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink implements [audio.PlaybackSink] by writing each reply payload to a
// numbered file under a directory. "Playback" completes when the file is
// fully written.
//
// Safe for concurrent use.
type Sink struct {
	dir string

	mu sync.Mutex
	n  int
}

// NewSink creates a sink writing into dir, creating the directory first if
// needed.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wavfile sink: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Play implements [audio.PlaybackSink]. Each call writes
// reply-0001.wav, reply-0002.wav, and so on.
func (s *Sink) Play(_ context.Context, encoded []byte) error {
	s.mu.Lock()
	s.n++
	path := filepath.Join(s.dir, fmt.Sprintf("reply-%04d.wav", s.n))
	s.mu.Unlock()

	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("wavfile sink: %w", err)
	}
	return nil
}

// Written returns how many payloads have been written so far.
func (s *Sink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
