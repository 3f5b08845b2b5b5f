// Package receiver runs one TCP listener per configured port and commits each
// inbound frame to that port's destination directory.
package receiver

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/internal/protocol"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/h2non/filetype"
	"golang.org/x/crypto/blake2b"
)

const (
	// TempPrefix and TempSuffix frame the names of uncommitted payload files
	TempPrefix = ".folderport-"
	TempSuffix = ".part"

	bufferSize = 8 * 1024

	// sniffSize covers the longest magic number filetype matches on
	sniffSize = 262
)

// ErrInvalidName is returned for file names that are not a single path element
var ErrInvalidName = errors.New("invalid file name")

// Config holds listener settings. IOTimeout limits how long a connection may
// sit idle, not how long a transfer may take.
type Config struct {
	ListenHost string
	IOTimeout  time.Duration
}

// Server is the transfer server
type Server struct {
	cfg    Config
	events status.Publisher

	mu        sync.Mutex
	listeners map[int]net.Listener
	wg        sync.WaitGroup
}

// New creates a server. A nil publisher discards events.
func New(cfg Config, events status.Publisher) *Server {
	if events == nil {
		events = status.Discard
	}
	return &Server{
		cfg:       cfg,
		events:    events,
		listeners: make(map[int]net.Listener),
	}
}

// Start binds one listener per entry of destinations (port -> directory) and
// begins accepting. Ports that fail to bind are reported together in the
// returned error while the ones that bound keep serving. Cancelling ctx stops
// the server.
func (s *Server) Start(ctx context.Context, destinations map[int]string) error {
	ports := make([]int, 0, len(destinations))
	for port := range destinations {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	var errs []error
	for _, port := range ports {
		dir := destinations[port]
		if err := s.listen(port, dir); err != nil {
			s.events.Publish(status.Event{Type: status.EventListenerFailed, Port: port, Message: err.Error()})
			errs = append(errs, err)
			continue
		}
		s.events.Publish(status.Event{Type: status.EventListenerStarted, Port: port, Folder: dir})
	}

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			s.Stop()
		}()
	}

	return errors.Join(errs...)
}

func (s *Server) listen(port int, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listeners[port]; ok {
		return fmt.Errorf("port %d is already being served", port)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create destination %s: %w", dir, err)
	}

	addr := net.JoinHostPort(s.cfg.ListenHost, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listeners[port] = ln

	s.wg.Add(1)
	go s.acceptLoop(ln, port, dir)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener, port int, dir string) {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			debug.Warning("Accept on port %d failed: %v; retrying in %v", port, err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn, port, dir)
		}()
	}
}

// Addr returns the bound address for port, or nil if the port is not served
func (s *Server) Addr(port int) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ln, ok := s.listeners[port]; ok {
		return ln.Addr()
	}
	return nil
}

// Ports lists the ports currently being served
func (s *Server) Ports() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ports := make([]int, 0, len(s.listeners))
	for p := range s.listeners {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// Stop closes every listener and waits for in-flight connections to finish
func (s *Server) Stop() {
	s.mu.Lock()
	for port, ln := range s.listeners {
		ln.Close()
		delete(s.listeners, port)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// handle serves exactly one frame/verdict exchange
func (s *Server) handle(conn net.Conn, port int, dir string) {
	defer conn.Close()

	rw := protocol.IdleConn(conn, s.cfg.IOTimeout)

	event := status.Event{Port: port, Folder: dir, RemoteAddr: conn.RemoteAddr().String()}
	r := bufio.NewReaderSize(rw, bufferSize)

	name, n, digest, action, err := s.receive(r, dir, &event)
	verdict := protocol.Verdict{Success: err == nil}
	if err != nil {
		verdict.Message = err.Error()
		event.Type = status.EventReceiveFailed
		event.Message = verdict.Message
	} else {
		verdict.Message = fmt.Sprintf("File received successfully: %s (%d bytes)", name, n)
		event.Type = status.EventReceiveSucceeded
		event.Bytes = n
		event.Digest = digest
		event.Action = action
		event.Message = verdict.Message
	}

	if werr := protocol.WriteVerdict(rw, verdict); werr != nil {
		debug.Warning("Failed to send verdict to %s: %v", event.RemoteAddr, werr)
	}
	s.events.Publish(event)
}

func (s *Server) receive(r io.Reader, dir string, event *status.Event) (string, int64, string, string, error) {
	h, err := protocol.ReadHeader(r)
	event.File = h.Name
	if err != nil {
		return "", 0, "", "", fmt.Errorf("invalid frame: %w", err)
	}

	want := int64(h.Length)
	name, err := SanitizeName(h.Name)
	if err != nil {
		// consume the payload so the sender gets to read the verdict
		io.Copy(io.Discard, io.LimitReader(r, want))
		return "", 0, "", "", err
	}
	event.File = name

	tmp, err := os.CreateTemp(dir, TempPrefix+"*"+TempSuffix)
	if err != nil {
		return "", 0, "", "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hash, _ := blake2b.New256(nil)
	head := &headBuffer{limit: sniffSize}
	n, err := io.CopyBuffer(io.MultiWriter(tmp, hash, head), io.LimitReader(r, want), make([]byte, bufferSize))
	if err != nil {
		return "", n, "", "", fmt.Errorf("failed to receive %s: %w", name, err)
	}
	if n != want {
		return "", n, "", "", fmt.Errorf("incomplete transfer: expected %d bytes, got %d", want, n)
	}

	if err := tmp.Close(); err != nil {
		return "", n, "", "", fmt.Errorf("failed to close temporary file: %w", err)
	}
	final := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, final); err != nil {
		return "", n, "", "", fmt.Errorf("failed to commit %s: %w", name, err)
	}
	committed = true
	event.MIME = DetectMIME(head.buf)

	debug.Debug("Committed %s (%d bytes) to %s", name, n, final)
	return name, n, hex.EncodeToString(hash.Sum(nil)), h.Action.String(), nil
}

// DetectMIME sniffs the content type from the first bytes of a payload.
// Unrecognised content yields an empty string.
func DetectMIME(head []byte) string {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// headBuffer keeps the first limit bytes written to it
type headBuffer struct {
	buf   []byte
	limit int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.limit - len(h.buf); room > 0 {
		h.buf = append(h.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

// IsTempName reports whether name looks like an uncommitted payload file
func IsTempName(name string) bool {
	return strings.HasPrefix(name, TempPrefix) && strings.HasSuffix(name, TempSuffix)
}

// SanitizeName accepts only a single, non-special path element. Besides the
// NUL byte only '/' and the host's own separator are rejected, so a backslash
// is an ordinary name byte on POSIX receivers.
func SanitizeName(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) ||
		strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if IsTempName(name) {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return name, nil
}
