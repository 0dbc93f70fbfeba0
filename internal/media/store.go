// Package media names, saves and publishes recorded videos and photos.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Kind is the kind of media file.
type Kind string

// Media kinds.
const (
	KindVideo Kind = "video"
	KindPhoto Kind = "photo"
)

// Store creates output files in a working directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the working directory.
func (s *Store) Dir() string {
	return s.dir
}

// name returns a collision-free file name like VID_20240102_150405_1a2b3c4d.mp4.
func (s *Store) name(prefix, ext string) string {
	id := uuid.NewString()[:8]
	return fmt.Sprintf("%s_%s_%s.%s", prefix, s.now().Format("20060102_150405"), id, ext)
}

// CreateVideoFile creates an empty output file for the next recording.
func (s *Store) CreateVideoFile() (string, error) {
	path := filepath.Join(s.dir, s.name("VID", "mp4"))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	return path, f.Close()
}

// PhotoPath returns a fresh path for a photo.
func (s *Store) PhotoPath() string {
	return filepath.Join(s.dir, s.name("IMG", "jpg"))
}

// RemoveIfEmpty deletes path when it exists with zero bytes. It reports
// whether a file was removed.
func RemoveIfEmpty(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if fi.Size() != 0 {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}
