package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TempScope tracks temporary audio artifacts created during a single pipeline
// invocation and guarantees they are removed exactly once, no matter which
// stage failed. Releasing twice or releasing files that are already gone is
// a no-op.
type TempScope struct {
	mu       sync.Mutex
	dir      string
	paths    []string
	released bool
}

// NewTempScope returns a scope rooted at dir, creating dir if needed.
func NewTempScope(dir string) (*TempScope, error) {
	if dir == "" {
		dir = "tmp"
	}
	if err := CreateFolder(dir); err != nil {
		return nil, err
	}
	return &TempScope{dir: dir}, nil
}

// CreateFile writes data to a fresh file inside the scope and registers it
// for cleanup. The pattern is a name prefix; a timestamp suffix keeps names
// unique across concurrent requests.
func (s *TempScope) CreateFile(prefix string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return "", fmt.Errorf("temp scope already released")
	}

	name := fmt.Sprintf("%s_%d_%08x.wav", prefix, time.Now().UnixNano(), GenerateUniqueID())
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	s.paths = append(s.paths, path)
	return path, nil
}

// Track registers an externally created file for cleanup.
func (s *TempScope) Track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || path == "" {
		return
	}
	s.paths = append(s.paths, path)
}

// Release deletes every tracked file. Safe to call multiple times and safe
// to defer alongside early returns; missing files are not errors. Deletion
// failures are reported so callers can log them, but the scope is still
// marked released.
func (s *TempScope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true

	var firstErr error
	for _, path := range s.paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
	}
	s.paths = nil
	return firstErr
}
