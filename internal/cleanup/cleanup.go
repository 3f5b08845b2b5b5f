package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/internal/receiver"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/pkg/console"
	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/spf13/afero"
)

// Service removes uncommitted payload files left in receive directories by a
// crash in the middle of a transfer
type Service struct {
	fs        afero.Fs
	dirs      func() []string
	retention time.Duration
	interval  time.Duration
	events    status.Publisher

	stop           chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	lastCleanup    time.Time
	cleanupRunning bool
	now            func() time.Time
}

// NewService creates a janitor for the directories returned by dirs
func NewService(dirs func() []string, retention, interval time.Duration, events status.Publisher) *Service {
	return NewServiceWithFs(afero.NewOsFs(), dirs, retention, interval, events)
}

// NewServiceWithFs creates a janitor operating on fs
func NewServiceWithFs(fs afero.Fs, dirs func() []string, retention, interval time.Duration, events status.Publisher) *Service {
	if retention <= 0 {
		retention = time.Hour
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if events == nil {
		events = status.Discard
	}
	return &Service{
		fs:        fs,
		dirs:      dirs,
		retention: retention,
		interval:  interval,
		events:    events,
		stop:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start runs one sweep immediately and then one every interval
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.Sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				debug.Info("Cleanup service stopping due to context cancellation")
				return
			case <-s.stop:
				debug.Info("Cleanup service stopping")
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()

	debug.Info("Cleanup service started with %v retention", s.retention)
}

// Stop halts the cleanup service
func (s *Service) Stop() {
	s.mu.Lock()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mu.Unlock()
	s.wg.Wait()
	debug.Info("Cleanup service stopped")
}

// LastCleanup returns when the last sweep finished
func (s *Service) LastCleanup() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCleanup
}

// Sweep deletes expired temp files and returns the count and bytes freed
func (s *Service) Sweep() (int, int64) {
	s.mu.Lock()
	if s.cleanupRunning {
		s.mu.Unlock()
		debug.Debug("Cleanup already running, skipping")
		return 0, 0
	}
	s.cleanupRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cleanupRunning = false
		s.lastCleanup = s.now()
		s.mu.Unlock()
	}()

	totalDeleted := 0
	totalSize := int64(0)
	for _, dir := range s.dirs() {
		deleted, size := s.cleanupDirectory(dir)
		totalDeleted += deleted
		totalSize += size
	}

	if totalDeleted > 0 {
		debug.Info("Cleanup completed: deleted %d temp files, freed %s", totalDeleted, console.FormatBytes(totalSize))
	} else {
		debug.Debug("Cleanup completed: no files to delete")
	}
	return totalDeleted, totalSize
}

func (s *Service) cleanupDirectory(dir string) (int, int64) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if !os.IsNotExist(err) {
			debug.Error("Failed to read directory %s: %v", dir, err)
		}
		return 0, 0
	}

	cutoff := s.now().Add(-s.retention)
	deleted := 0
	size := int64(0)

	for _, entry := range entries {
		if entry.IsDir() || !receiver.IsTempName(entry.Name()) {
			continue
		}
		if !entry.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := s.fs.Remove(path); err != nil {
			debug.Error("Failed to delete %s: %v", path, err)
			continue
		}

		deleted++
		size += entry.Size()
		s.events.Publish(status.Event{
			Type:    status.EventTempCleaned,
			Folder:  dir,
			File:    entry.Name(),
			Bytes:   entry.Size(),
			Message: "removed abandoned partial transfer",
		})
	}
	return deleted, size
}
