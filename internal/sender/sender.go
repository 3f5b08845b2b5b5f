// Package sender ships one file per connection to the receiver that owns the
// folder's target port and applies the folder's file action after the verdict.
package sender

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/ZerkerEOD/folderport/internal/protocol"
	"github.com/ZerkerEOD/folderport/internal/registry"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

// ChunkSize is the payload copy buffer size
const ChunkSize = 8 * 1024

// ErrRejected is returned when the receiver answers with a failure verdict
var ErrRejected = errors.New("transfer rejected by receiver")

// Config holds the connection settings shared by every send. IOTimeout is an
// idle limit: it bounds the wait for each read or write, not the whole
// exchange. Fs defaults to the OS filesystem.
type Config struct {
	Host        string
	DialTimeout time.Duration
	IOTimeout   time.Duration
	Fs          afero.Fs
}

// Result describes a completed send
type Result struct {
	File    string
	Bytes   int64
	Digest  string
	Verdict protocol.Verdict
}

// Sender is the transfer client
type Sender struct {
	cfg      Config
	registry *registry.Registry
	events   status.Publisher
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	remove   func(string) error
}

// New creates a sender. A nil registry disables claim release, a nil publisher
// discards events.
func New(cfg Config, reg *registry.Registry, events status.Publisher) *Sender {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if events == nil {
		events = status.Discard
	}
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Sender{
		cfg:      cfg,
		registry: reg,
		events:   events,
		dial:     dialer.DialContext,
		remove:   cfg.Fs.Remove,
	}
}

// Send performs exactly one frame/verdict exchange for path. On any failure the
// path is released from the registry so a later scan retries it, and the
// source file is left untouched.
func (s *Sender) Send(ctx context.Context, path string, folder models.FolderMonitorConfig) (*Result, error) {
	event := status.Event{
		Folder: folder.FolderPath,
		Port:   folder.TargetPort,
		File:   filepath.Base(path),
		Action: string(folder.FileAction),
	}

	res, err := s.send(ctx, path, folder, &event)
	if err != nil {
		s.release(path)
		event.Type = status.EventSendFailed
		event.Message = err.Error()
		s.events.Publish(event)
		return res, err
	}

	event.Type = status.EventSendSucceeded
	event.Bytes = res.Bytes
	event.Digest = res.Digest
	event.Message = res.Verdict.Message
	s.events.Publish(event)

	if folder.FileAction == models.FileActionMove {
		if err := s.remove(path); err != nil {
			s.events.Publish(status.Event{
				Type:    status.EventSourceDeleteFailed,
				Folder:  folder.FolderPath,
				Port:    folder.TargetPort,
				File:    event.File,
				Message: err.Error(),
			})
		}
	}
	return res, nil
}

func (s *Sender) send(ctx context.Context, path string, folder models.FolderMonitorConfig, event *status.Event) (*Result, error) {
	action, err := protocol.ParseAction(string(folder.FileAction))
	if err != nil {
		return nil, err
	}

	f, err := s.cfg.Fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat source file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	event.Type = status.EventSendAttempt
	event.Bytes = info.Size()
	s.events.Publish(*event)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(folder.TargetPort))
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	rw := protocol.IdleConn(conn, s.cfg.IOTimeout)

	hash, _ := blake2b.New256(nil)
	header := protocol.FrameHeader{
		Name:   filepath.Base(path),
		Length: uint64(info.Size()),
		Action: action,
	}

	w := bufio.NewWriterSize(rw, ChunkSize)
	n, err := protocol.WriteFrame(w, header, io.TeeReader(f, hash), make([]byte, ChunkSize))
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", header.Name, err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush %s: %w", header.Name, err)
	}

	verdict, err := protocol.ReadVerdict(bufio.NewReader(rw))
	if err != nil {
		return nil, fmt.Errorf("no verdict for %s: %w", header.Name, err)
	}

	res := &Result{
		File:    header.Name,
		Bytes:   n,
		Digest:  hex.EncodeToString(hash.Sum(nil)),
		Verdict: verdict,
	}
	if !verdict.Success {
		return res, fmt.Errorf("%w: %s", ErrRejected, verdict.Message)
	}

	debug.Debug("Sent %s (%d bytes) to %s", header.Name, n, addr)
	return res, nil
}

func (s *Sender) release(path string) {
	if s.registry != nil {
		s.registry.Remove(path)
	}
}
