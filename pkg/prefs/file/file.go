// Package file persists the preference document as an indented JSON file,
// the same on-disk shape the backend writes.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
)

// Compile-time interface check.
var _ prefs.Store = (*Store)(nil)

// Store reads and writes one JSON document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store backed by the JSON file at path. The file and
// its parent directory are created on first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the stored document. A missing file is reported as
// [prefs.ErrNotFound]; an unreadable or corrupt file is an ordinary error.
func (s *Store) Load(ctx context.Context) (prefs.Preferences, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return prefs.Preferences{}, fmt.Errorf("file: %s: %w", s.path, prefs.ErrNotFound)
	}
	if err != nil {
		return prefs.Preferences{}, fmt.Errorf("file: read %s: %w", s.path, err)
	}

	var p prefs.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return prefs.Preferences{}, fmt.Errorf("file: decode %s: %w", s.path, err)
	}
	return p, nil
}

// Save atomically replaces the stored document: the JSON lands in a
// temporary file which is then renamed over the target.
func (s *Store) Save(ctx context.Context, p prefs.Preferences) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("file: create %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("file: rename %s: %w", tmp, err)
	}
	return nil
}
