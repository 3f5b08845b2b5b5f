// Package monitor runs the scan loop that discovers new files in the configured
// folders and hands stable ones to the sender.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/ZerkerEOD/folderport/internal/receiver"
	"github.com/ZerkerEOD/folderport/internal/registry"
	"github.com/ZerkerEOD/folderport/internal/sender"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/spf13/afero"
)

const (
	DefaultTick         = time.Second
	DefaultErrorBackoff = 5 * time.Second
	DefaultSettleCap    = 2 * time.Second
	DefaultMaxSends     = 8

	maxAdaptiveShift = 2 // delay grows at most x4 while idle
)

// ErrAlreadyRunning is returned by Start on a running scheduler
var ErrAlreadyRunning = errors.New("scheduler already running")

// ConfigSource supplies the current folder configuration snapshot
type ConfigSource interface {
	Folders() ([]models.FolderMonitorConfig, error)
}

// Dispatcher performs one transfer attempt for a claimed file
type Dispatcher interface {
	Send(ctx context.Context, path string, folder models.FolderMonitorConfig) (*sender.Result, error)
}

// StabilityChecker decides whether a file is done being written
type StabilityChecker interface {
	IsStable(ctx context.Context, path string) bool
}

// LoadProbe reports host pressure for power-aware folders
type LoadProbe interface {
	UnderPressure() bool
}

// Config holds scheduler timing and concurrency limits. Fs defaults to the
// OS filesystem.
type Config struct {
	Tick         time.Duration
	ErrorBackoff time.Duration
	SettleCap    time.Duration
	MaxSends     int
	Fs           afero.Fs
}

// Scheduler owns the per-folder scan state and the in-flight sends
type Scheduler struct {
	cfg        Config
	source     ConfigSource
	registry   *registry.Registry
	stability  StabilityChecker
	dispatcher Dispatcher
	probe      LoadProbe
	events     status.Publisher

	mu       sync.Mutex
	lastScan map[string]time.Time
	idle     map[string]int
	cancel   context.CancelFunc
	loopDone chan struct{}

	sendSem chan struct{}
	sends   sync.WaitGroup

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a scheduler. probe may be nil when no folder is power-aware.
func New(cfg Config, source ConfigSource, reg *registry.Registry, stability StabilityChecker,
	dispatcher Dispatcher, probe LoadProbe, events status.Publisher) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.SettleCap <= 0 {
		cfg.SettleCap = DefaultSettleCap
	}
	if cfg.MaxSends <= 0 {
		cfg.MaxSends = DefaultMaxSends
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if events == nil {
		events = status.Discard
	}
	return &Scheduler{
		cfg:        cfg,
		source:     source,
		registry:   reg,
		stability:  stability,
		dispatcher: dispatcher,
		probe:      probe,
		events:     events,
		lastScan:   make(map[string]time.Time),
		idle:       make(map[string]int),
		sendSem:    make(chan struct{}, cfg.MaxSends),
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Start launches the scan loop in the background
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	debug.Info("Starting scan scheduler (tick %v, max %d concurrent sends)", s.cfg.Tick, s.cfg.MaxSends)
	go func(done chan struct{}) {
		defer close(done)
		s.Run(loopCtx)
	}(s.loopDone)
	return nil
}

// Stop ends the scan loop and waits for in-flight sends to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	debug.Info("Stopping scan scheduler")
	cancel()
	<-done
	s.sends.Wait()
}

// Run executes scan cycles until ctx is cancelled. A failed cycle is followed
// by the error back-off instead of the regular tick.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := s.cfg.Tick
		if err := s.RunCycle(ctx); err != nil {
			s.events.Publish(status.Event{Type: status.EventCycleError, Message: err.Error()})
			wait = s.cfg.ErrorBackoff
		}
		if !s.sleep(ctx, wait) {
			return
		}
	}
}

// RunCycle performs a single pass over every enabled folder that is due
func (s *Scheduler) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scan cycle: %v", r)
		}
	}()

	folders, err := s.source.Folders()
	if err != nil {
		return fmt.Errorf("failed to load folder configuration: %w", err)
	}

	now := s.now()
	for _, folder := range folders {
		if !folder.Enabled {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		key := folderKey(folder.FolderPath)
		if !s.due(key, folder, now) {
			continue
		}

		dispatched := s.scanFolder(ctx, key, folder)

		s.mu.Lock()
		if dispatched > 0 {
			s.idle[key] = 0
		} else {
			s.idle[key]++
		}
		s.mu.Unlock()
	}
	return nil
}

// due checks the folder's interval and, when due, records now as its last scan
func (s *Scheduler) due(key string, folder models.FolderMonitorConfig, now time.Time) bool {
	delay := s.EffectiveDelay(folder)

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastScan[key]; ok && now.Sub(last) < delay {
		return false
	}
	s.lastScan[key] = now
	return true
}

// EffectiveDelay is the folder's configured delay stretched by adaptive and
// power-aware scanning, never beyond the maximum delay
func (s *Scheduler) EffectiveDelay(folder models.FolderMonitorConfig) time.Duration {
	delay := folder.Monitoring.Delay()
	if delay == 0 {
		return 0
	}

	if folder.Monitoring.AdaptiveScanning {
		s.mu.Lock()
		idle := s.idle[folderKey(folder.FolderPath)]
		s.mu.Unlock()
		delay <<= min(idle, maxAdaptiveShift)
	}
	if folder.Monitoring.PowerAware && s.probe != nil && s.probe.UnderPressure() {
		delay *= 2
	}

	return min(delay, time.Duration(models.MaxDelaySeconds)*time.Second)
}

// LastScan returns the time the folder was last scanned
func (s *Scheduler) LastScan(folderPath string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastScan[folderKey(folderPath)]
	return t, ok
}

// scanFolder lists the folder's regular files and dispatches the stable ones.
// It returns the number of files handed to the dispatcher.
func (s *Scheduler) scanFolder(ctx context.Context, dir string, folder models.FolderMonitorConfig) int {
	info, err := s.cfg.Fs.Stat(dir)
	if err != nil || !info.IsDir() {
		s.events.Publish(status.Event{
			Type:    status.EventDirectoryMissing,
			Folder:  folder.FolderPath,
			Port:    folder.TargetPort,
			Message: "Directory not found: " + folder.FolderPath,
		})
		return 0
	}

	s.events.Publish(status.Event{
		Type:    status.EventScanStarted,
		Folder:  folder.FolderPath,
		Port:    folder.TargetPort,
		Message: folder.DisplayName(),
	})

	entries, err := afero.ReadDir(s.cfg.Fs, dir)
	if err != nil {
		debug.Warning("Failed to list %s: %v", dir, err)
		return 0
	}

	settle := min(folder.Monitoring.Delay(), s.cfg.SettleCap)
	dispatched := 0

	for _, entry := range entries {
		if receiver.IsTempName(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		// follows symlinks so a linked file counts as regular
		fi, err := s.cfg.Fs.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if s.registry.Contains(path) {
			continue
		}
		if !folder.AutoDetect.ShouldTransfer(entry.Name(), fi.Size()) {
			debug.Debug("Skipping %s: filtered by %s", path, folder.AutoDetect.DisplayText())
			continue
		}

		if settle > 0 && !s.sleep(ctx, settle) {
			return dispatched
		}
		if !s.stability.IsStable(ctx, path) {
			continue
		}
		if !s.registry.TryAdd(path) {
			continue
		}

		s.dispatch(ctx, path, folder)
		dispatched++
	}
	return dispatched
}

// dispatch runs the send in its own goroutine so a slow transfer never holds up
// the scan. Sends outlive the scan context and are awaited by Stop.
func (s *Scheduler) dispatch(ctx context.Context, path string, folder models.FolderMonitorConfig) {
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()

		select {
		case s.sendSem <- struct{}{}:
			defer func() { <-s.sendSem }()
		case <-ctx.Done():
			s.registry.Remove(path)
			return
		}

		defer func() {
			if r := recover(); r != nil {
				debug.Error("Panic while sending %s: %v", path, r)
				s.registry.Remove(path)
				s.events.Publish(status.Event{
					Type:    status.EventSendFailed,
					Folder:  folder.FolderPath,
					Port:    folder.TargetPort,
					File:    filepath.Base(path),
					Action:  string(folder.FileAction),
					Message: fmt.Sprintf("panic during send: %v", r),
				})
			}
		}()

		if _, err := s.dispatcher.Send(context.WithoutCancel(ctx), path, folder); err != nil {
			debug.Debug("Send of %s failed: %v", path, err)
		}
	}()
}

func folderKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
