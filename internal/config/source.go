package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/ZerkerEOD/folderport/pkg/debug"
)

// FileSource serves the folder configuration from a YAML file, reloading it
// whenever the file changes. An invalid edit keeps the last valid snapshot.
type FileSource struct {
	path string

	mu      sync.Mutex
	current Folders
	modTime time.Time
	size    int64
}

// NewFileSource loads path once; the initial load must succeed
func NewFileSource(path string) (*FileSource, error) {
	s := &FileSource{path: path}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat folder configuration: %w", err)
	}
	folders, err := LoadFolders(path)
	if err != nil {
		return nil, err
	}
	s.current, s.modTime, s.size = folders, info.ModTime(), info.Size()
	debug.Info("Loaded %d folder configuration(s) from %s", len(folders), path)
	return s, nil
}

// Folders returns the current snapshot
func (s *FileSource) Folders() ([]models.FolderMonitorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		debug.Warning("Folder configuration %s unavailable, keeping previous: %v", s.path, err)
		return s.snapshot(), nil
	}

	if !info.ModTime().Equal(s.modTime) || info.Size() != s.size {
		s.modTime, s.size = info.ModTime(), info.Size()
		folders, err := LoadFolders(s.path)
		if err != nil {
			debug.Warning("Ignoring invalid folder configuration change: %v", err)
		} else {
			debug.Info("Reloaded %d folder configuration(s) from %s", len(folders), s.path)
			s.current = folders
		}
	}
	return s.snapshot(), nil
}

// Current returns the last valid snapshot without checking the file
func (s *FileSource) Current() Folders {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *FileSource) snapshot() Folders {
	return append(Folders(nil), s.current...)
}

// StaticSource serves a fixed snapshot that can be replaced at runtime
type StaticSource struct {
	mu      sync.RWMutex
	folders Folders
}

// NewStaticSource validates folders and wraps them in a source
func NewStaticSource(folders Folders) (*StaticSource, error) {
	s := &StaticSource{}
	if err := s.Set(folders); err != nil {
		return nil, err
	}
	return s, nil
}

// Set replaces the snapshot after validation
func (s *StaticSource) Set(folders Folders) error {
	next := append(Folders(nil), folders...)
	next.Normalize()
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.folders = next
	s.mu.Unlock()
	return nil
}

// Folders returns the current snapshot
func (s *StaticSource) Folders() ([]models.FolderMonitorConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(Folders(nil), s.folders...), nil
}
