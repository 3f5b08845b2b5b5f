// Package session assembles the scan scheduler, transfer client, transfer
// server and the optional status surface into one monitoring session.
package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/internal/cleanup"
	"github.com/ZerkerEOD/folderport/internal/config"
	"github.com/ZerkerEOD/folderport/internal/database"
	"github.com/ZerkerEOD/folderport/internal/db"
	"github.com/ZerkerEOD/folderport/internal/handlers"
	"github.com/ZerkerEOD/folderport/internal/handlers/websocket"
	"github.com/ZerkerEOD/folderport/internal/metrics"
	"github.com/ZerkerEOD/folderport/internal/monitor"
	"github.com/ZerkerEOD/folderport/internal/receiver"
	"github.com/ZerkerEOD/folderport/internal/registry"
	"github.com/ZerkerEOD/folderport/internal/repository"
	"github.com/ZerkerEOD/folderport/internal/routes"
	"github.com/ZerkerEOD/folderport/internal/sender"
	"github.com/ZerkerEOD/folderport/internal/services/journal"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/internal/stability"
	statustls "github.com/ZerkerEOD/folderport/internal/tls"
	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Mode selects which halves of the transfer subsystem run
type Mode int

const (
	ModeSend Mode = 1 << iota
	ModeReceive

	ModeAll = ModeSend | ModeReceive
)

// ErrAlreadyStarted is returned by Start on a running session
var ErrAlreadyStarted = errors.New("session already started")

// Session owns every long-running component of the daemon
type Session struct {
	cfg    *config.Config
	source monitor.ConfigSource
	mode   Mode

	hub       *status.Hub
	registry  *registry.Registry
	collector *metrics.Collector
	sender    *sender.Sender
	scheduler *monitor.Scheduler
	receiver  *receiver.Server
	janitor   *cleanup.Service
	journal   *journal.Service
	events    *websocket.Handler
	conn      *db.DB
	fs        afero.Fs
	http      *http.Server
	httpLn    net.Listener

	mu      sync.Mutex
	started bool
}

// New builds a session. Nothing runs until Start.
func New(cfg *config.Config, source monitor.ConfigSource, mode Mode) *Session {
	hub := status.NewHub(status.DefaultHistory)
	reg := registry.New()
	collector := metrics.New(metrics.Config{})
	fs := afero.NewOsFs()

	snd := sender.New(sender.Config{
		Host:        cfg.TargetHost,
		DialTimeout: cfg.DialTimeout,
		IOTimeout:   cfg.IOTimeout,
		Fs:          fs,
	}, reg, hub)

	s := &Session{
		cfg:       cfg,
		source:    source,
		mode:      mode,
		hub:       hub,
		registry:  reg,
		collector: collector,
		fs:        fs,
		sender:    snd,
		receiver:  receiver.New(receiver.Config{ListenHost: cfg.ListenHost, IOTimeout: cfg.IOTimeout}, hub),
	}
	s.scheduler = monitor.New(monitor.Config{MaxSends: cfg.MaxConcurrentSends, Fs: fs}, source, reg,
		stability.NewWithFs(fs, stability.DefaultInterval), snd, collector, hub)
	return s
}

// Hub returns the session's status hub
func (s *Session) Hub() *status.Hub { return s.hub }

// Registry returns the processed-file registry
func (s *Session) Registry() *registry.Registry { return s.registry }

// Sender returns the transfer client
func (s *Session) Sender() *sender.Sender { return s.sender }

// Receiver returns the transfer server
func (s *Session) Receiver() *receiver.Server { return s.receiver }

// StatusAddr returns the bound status API address, or nil when it is disabled
func (s *Session) StatusAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Start brings up the journal, listeners, janitor, scheduler and status API.
// Listener bind failures are reported but do not abort the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	if s.cfg.JournalEnabled() {
		if err := s.startJournal(ctx); err != nil {
			return err
		}
	}

	s.hub.Publish(status.Event{Type: status.EventSessionStarted, Message: s.mode.String()})

	folders, err := s.source.Folders()
	if err != nil {
		s.stopJournal()
		return fmt.Errorf("failed to load folder configuration: %w", err)
	}

	if s.mode&ModeReceive != 0 {
		destinations := config.Folders(folders).Destinations(s.cfg.ReceiveDir)
		if err := s.receiver.Start(ctx, destinations); err != nil {
			debug.Warning("Some listeners failed to start: %v", err)
		}

		dirs := make([]string, 0, len(destinations))
		for _, dir := range destinations {
			dirs = append(dirs, dir)
		}
		s.janitor = cleanup.NewServiceWithFs(s.fs, func() []string { return dirs }, s.cfg.TempRetention, s.cfg.CleanupInterval, s.hub)
		s.janitor.Start(ctx)
	}

	if s.mode&ModeSend != 0 {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	if s.cfg.StatusEnabled() {
		if err := s.startStatusAPI(); err != nil {
			debug.Error("Status API disabled: %v", err)
		}
	}

	s.started = true
	return nil
}

func (s *Session) startJournal(ctx context.Context) error {
	conn, err := database.Connect(ctx, s.cfg.JournalDSN)
	if err != nil {
		return fmt.Errorf("failed to open transfer journal: %w", err)
	}
	s.conn = conn
	s.journal = journal.NewService(repository.NewTransferRepository(conn))
	s.journal.Start(s.hub)
	return nil
}

func (s *Session) stopJournal() {
	if s.journal != nil {
		s.journal.Stop()
		s.journal = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Session) startStatusAPI() error {
	ln, err := net.Listen("tcp", s.cfg.StatusAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.StatusAddr, err)
	}
	if s.cfg.StatusTLS != nil && s.cfg.StatusTLS.Enabled {
		ln, err = serveTLS(ln, s.cfg.StatusTLS)
		if err != nil {
			return err
		}
	}

	var transfers handlers.TransferLister
	if s.conn != nil {
		transfers = repository.NewTransferRepository(s.conn)
	}

	s.events = websocket.NewHandler(s.hub)
	r := mux.NewRouter()
	routes.SetupRoutes(r, handlers.NewStatusHandler(s.hub, s.registry, transfers, s.collector), s.events)

	s.httpLn = ln
	s.http = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		debug.Info("Status API listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.Error("Status API stopped: %v", err)
		}
	}()
	return nil
}

func serveTLS(ln net.Listener, cfg *statustls.Config) (net.Listener, error) {
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to enable status API TLS: %w", err)
	}
	return tls.NewListener(ln, tlsCfg), nil
}

// Stop shuts every component down in reverse dependency order. In-flight
// sends and receives are allowed to finish.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	var errs []error
	var g errgroup.Group

	g.Go(func() error {
		s.scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		s.receiver.Stop()
		return nil
	})
	if s.janitor != nil {
		g.Go(func() error {
			s.janitor.Stop()
			return nil
		})
	}
	if s.http != nil {
		g.Go(func() error {
			s.events.Close()
			if err := s.http.Shutdown(ctx); err != nil {
				return fmt.Errorf("failed to stop status API: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	s.hub.Publish(status.Event{Type: status.EventSessionStopped})
	s.stopJournal()
	return errors.Join(errs...)
}

// Run starts the session and blocks until ctx is cancelled, then stops it
// within shutdownTimeout
func (s *Session) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// String names the enabled halves
func (m Mode) String() string {
	switch m {
	case ModeSend:
		return "send"
	case ModeReceive:
		return "receive"
	case ModeAll:
		return "send+receive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}
