package sender

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/ZerkerEOD/folderport/internal/protocol"
	"github.com/ZerkerEOD/folderport/internal/registry"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	header  protocol.FrameHeader
	payload []byte
}

// fakeReceiver accepts one connection, reads a frame and answers with verdict.
// A nil verdict closes the connection without answering.
func fakeReceiver(t *testing.T, verdict *protocol.Verdict) (int, <-chan received) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan received, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		h, err := protocol.ReadHeader(r)
		if err != nil {
			return
		}
		payload, _ := io.ReadAll(protocol.PayloadReader(r, h))
		out <- received{header: h, payload: payload}

		if verdict != nil {
			protocol.WriteVerdict(conn, *verdict)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, out
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func folderFor(port int, action models.FileAction) models.FolderMonitorConfig {
	return models.FolderMonitorConfig{
		FolderPath: "/watch",
		FolderName: "watch",
		TargetPort: port,
		FileAction: action,
		Enabled:    true,
	}
}

func TestSendCopyKeepsSource(t *testing.T) {
	port, got := fakeReceiver(t, &protocol.Verdict{Success: true, Message: "File received successfully"})
	path := writeSource(t, "hello")
	reg := registry.New()
	reg.TryAdd(path)
	rec := &status.Recorder{}

	s := New(Config{Host: "127.0.0.1", IOTimeout: 5 * time.Second}, reg, rec)
	res, err := s.Send(context.Background(), path, folderFor(port, models.FileActionCopy))
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Bytes)
	assert.Len(t, res.Digest, 64)

	r := <-got
	assert.Equal(t, "photo.jpg", r.header.Name)
	assert.Equal(t, protocol.ActionCopy, r.header.Action)
	assert.Equal(t, "hello", string(r.payload))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.True(t, reg.Contains(path))

	assert.Len(t, rec.OfType(status.EventSendAttempt), 1)
	ok := rec.OfType(status.EventSendSucceeded)
	require.Len(t, ok, 1)
	assert.Equal(t, "File received successfully", ok[0].Message)
}

func TestSendMoveDeletesSource(t *testing.T) {
	port, got := fakeReceiver(t, &protocol.Verdict{Success: true, Message: "ok"})
	path := writeSource(t, "moving")

	s := New(Config{Host: "127.0.0.1"}, registry.New(), nil)
	_, err := s.Send(context.Background(), path, folderFor(port, models.FileActionMove))
	require.NoError(t, err)

	r := <-got
	assert.Equal(t, protocol.ActionMove, r.header.Action)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSendMoveDeleteFailureKeepsSuccess(t *testing.T) {
	port, _ := fakeReceiver(t, &protocol.Verdict{Success: true, Message: "ok"})
	path := writeSource(t, "data")
	rec := &status.Recorder{}

	s := New(Config{Host: "127.0.0.1"}, registry.New(), rec)
	s.remove = func(string) error { return os.ErrPermission }

	_, err := s.Send(context.Background(), path, folderFor(port, models.FileActionMove))
	require.NoError(t, err)
	assert.Len(t, rec.OfType(status.EventSendSucceeded), 1)
	assert.Len(t, rec.OfType(status.EventSourceDeleteFailed), 1)
}

func TestSendNoListenerReleasesClaim(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	path := writeSource(t, "retry me")
	reg := registry.New()
	require.True(t, reg.TryAdd(path))
	rec := &status.Recorder{}

	s := New(Config{Host: "127.0.0.1", DialTimeout: time.Second}, reg, rec)
	_, err = s.Send(context.Background(), path, folderFor(port, models.FileActionMove))
	require.Error(t, err)

	assert.False(t, reg.Contains(path))
	assert.Len(t, rec.OfType(status.EventSendFailed), 1)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSendFailureVerdict(t *testing.T) {
	port, _ := fakeReceiver(t, &protocol.Verdict{Success: false, Message: "disk full"})
	path := writeSource(t, "keep")
	reg := registry.New()
	reg.TryAdd(path)

	s := New(Config{Host: "127.0.0.1"}, reg, nil)
	res, err := s.Send(context.Background(), path, folderFor(port, models.FileActionMove))
	require.ErrorIs(t, err, ErrRejected)
	require.NotNil(t, res)
	assert.Equal(t, "disk full", res.Verdict.Message)

	assert.False(t, reg.Contains(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(content))
}

func TestSendConnectionDroppedBeforeVerdict(t *testing.T) {
	port, _ := fakeReceiver(t, nil)
	path := writeSource(t, "keep")
	reg := registry.New()
	reg.TryAdd(path)

	s := New(Config{Host: "127.0.0.1"}, reg, nil)
	_, err := s.Send(context.Background(), path, folderFor(port, models.FileActionMove))
	require.Error(t, err)

	assert.False(t, reg.Contains(path))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSendMissingSource(t *testing.T) {
	reg := registry.New()
	path := filepath.Join(t.TempDir(), "gone.txt")
	reg.TryAdd(path)

	s := New(Config{}, reg, nil)
	_, err := s.Send(context.Background(), path, folderFor(1, models.FileActionCopy))
	require.Error(t, err)
	assert.False(t, reg.Contains(path))
}

// slowReader hands out at most step bytes per read after pausing for delay
type slowReader struct {
	r     io.Reader
	step  int
	delay time.Duration
}

func (s *slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	if len(p) > s.step {
		p = p[:s.step]
	}
	return s.r.Read(p)
}

func TestSendSlowReceiverOutlastsIdleTimeout(t *testing.T) {
	const size = 64 * 1024
	content := bytes.Repeat([]byte("0123456789abcdef"), size/16)
	path := filepath.Join(t.TempDir(), "large.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))

	reg := registry.New()
	reg.TryAdd(path)

	idle := 300 * time.Millisecond
	s := New(Config{Host: "127.0.0.1", IOTimeout: idle}, reg, nil)

	got := make(chan []byte, 1)
	s.dial = func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			r := bufio.NewReaderSize(&slowReader{r: server, step: 1024, delay: 20 * time.Millisecond}, 1024)
			h, err := protocol.ReadHeader(r)
			if err != nil {
				return
			}
			payload, _ := io.ReadAll(protocol.PayloadReader(r, h))
			got <- payload
			protocol.WriteVerdict(server, protocol.Verdict{Success: true, Message: "ok"})
		}()
		return client, nil
	}

	start := time.Now()
	res, err := s.Send(context.Background(), path, folderFor(1, models.FileActionCopy))
	require.NoError(t, err)
	assert.Greater(t, time.Since(start), idle)
	assert.Equal(t, int64(size), res.Bytes)
	assert.Equal(t, content, <-got)
	assert.True(t, reg.Contains(path))
}

func TestSendStalledReceiverTimesOut(t *testing.T) {
	path := writeSource(t, "stuck")
	reg := registry.New()
	reg.TryAdd(path)

	s := New(Config{Host: "127.0.0.1", IOTimeout: 100 * time.Millisecond}, reg, nil)
	s.dial = func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { server.Close() })
		go io.Copy(io.Discard, server)
		return client, nil
	}

	_, err := s.Send(context.Background(), path, folderFor(1, models.FileActionMove))
	require.Error(t, err)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
	assert.False(t, reg.Contains(path))
}

func TestSendMoveOnMemFs(t *testing.T) {
	port, got := fakeReceiver(t, &protocol.Verdict{Success: true, Message: "ok"})
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/watch/shot.png", []byte("pixels"), 0644))

	s := New(Config{Host: "127.0.0.1", Fs: fs}, registry.New(), nil)
	res, err := s.Send(context.Background(), "/watch/shot.png", folderFor(port, models.FileActionMove))
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Bytes)
	assert.Equal(t, "pixels", string((<-got).payload))

	exists, err := afero.Exists(fs, "/watch/shot.png")
	require.NoError(t, err)
	assert.False(t, exists)
}
