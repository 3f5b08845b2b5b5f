package receiver

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ZerkerEOD/folderport/internal/protocol"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func startServer(t *testing.T) (*Server, int, string, *status.Recorder) {
	t.Helper()
	port := freePort(t)
	dir := t.TempDir()
	rec := &status.Recorder{}

	s := New(Config{ListenHost: "127.0.0.1", IOTimeout: 5 * time.Second}, rec)
	require.NoError(t, s.Start(context.Background(), map[int]string{port: dir}))
	t.Cleanup(s.Stop)
	return s, port, dir, rec
}

func dial(t *testing.T, port int) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestReceiveCommitsFile(t *testing.T) {
	_, port, dir, rec := startServer(t)
	conn := dial(t, port)

	h := protocol.FrameHeader{Name: "a.txt", Length: 5, Action: protocol.ActionCopy}
	_, err := protocol.WriteFrame(conn, h, strings.NewReader("hello"), nil)
	require.NoError(t, err)

	v, err := protocol.ReadVerdict(bufio.NewReader(conn))
	require.NoError(t, err)
	assert.True(t, v.Success, v.Message)

	content, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.Equal(t, []string{"a.txt"}, listDir(t, dir))

	require.Eventually(t, func() bool {
		return len(rec.OfType(status.EventReceiveSucceeded)) == 1
	}, time.Second, 10*time.Millisecond)
	e := rec.OfType(status.EventReceiveSucceeded)[0]
	assert.Equal(t, int64(5), e.Bytes)
	assert.Equal(t, "COPY", e.Action)
	assert.Len(t, e.Digest, 64)
}

func TestReceiveTruncatedPayload(t *testing.T) {
	_, port, dir, rec := startServer(t)
	conn := dial(t, port)

	require.NoError(t, protocol.WriteHeader(conn, protocol.FrameHeader{Name: "big.bin", Length: 100, Action: protocol.ActionMove}))
	_, err := conn.Write(make([]byte, 50))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	v, err := protocol.ReadVerdict(bufio.NewReader(conn))
	require.NoError(t, err)
	assert.False(t, v.Success)
	assert.Contains(t, v.Message, "expected 100 bytes, got 50")

	require.Eventually(t, func() bool {
		return len(rec.OfType(status.EventReceiveFailed)) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, listDir(t, dir))
}

func TestReceiveUnknownAction(t *testing.T) {
	_, port, dir, _ := startServer(t)
	conn := dial(t, port)

	require.NoError(t, protocol.WriteString(conn, "a.txt"))
	_, err := conn.Write([]byte{0, 0, 0, 0, 0, 0, 0, 1})
	require.NoError(t, err)
	require.NoError(t, protocol.WriteString(conn, "SHRED"))

	v, err := protocol.ReadVerdict(bufio.NewReader(conn))
	require.NoError(t, err)
	assert.False(t, v.Success)
	assert.Contains(t, v.Message, "unknown action tag")
	assert.Empty(t, listDir(t, dir))
}

func TestReceiveRejectsTraversal(t *testing.T) {
	_, port, dir, _ := startServer(t)
	conn := dial(t, port)

	h := protocol.FrameHeader{Name: "../escape.txt", Length: 3, Action: protocol.ActionCopy}
	_, err := protocol.WriteFrame(conn, h, strings.NewReader("bad"), nil)
	require.NoError(t, err)

	v, err := protocol.ReadVerdict(bufio.NewReader(conn))
	require.NoError(t, err)
	assert.False(t, v.Success)
	assert.Empty(t, listDir(t, dir))
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestConcurrentConnections(t *testing.T) {
	_, port, dir, _ := startServer(t)

	const clients = 8
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func(i int) {
			conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			name := "file-" + string(rune('a'+i)) + ".txt"
			h := protocol.FrameHeader{Name: name, Length: 4, Action: protocol.ActionCopy}
			if _, err := protocol.WriteFrame(conn, h, strings.NewReader("data"), nil); err != nil {
				errs <- err
				return
			}
			_, err = protocol.ReadVerdict(conn)
			errs <- err
		}(i)
	}
	for i := 0; i < clients; i++ {
		require.NoError(t, <-errs)
	}
	assert.Len(t, listDir(t, dir), clients)
}

func TestStartReportsBindFailures(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port
	okPort := freePort(t)

	rec := &status.Recorder{}
	s := New(Config{ListenHost: "127.0.0.1"}, rec)
	err = s.Start(context.Background(), map[int]string{busyPort: t.TempDir(), okPort: t.TempDir()})
	defer s.Stop()

	require.Error(t, err)
	assert.Equal(t, []int{okPort}, s.Ports())
	assert.NotNil(t, s.Addr(okPort))
	assert.Nil(t, s.Addr(busyPort))
	assert.Len(t, rec.OfType(status.EventListenerFailed), 1)
	assert.Len(t, rec.OfType(status.EventListenerStarted), 1)
}

func TestStopOnContextCancel(t *testing.T) {
	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{ListenHost: "127.0.0.1"}, nil)
	require.NoError(t, s.Start(ctx, map[int]string{port: t.TempDir()}))

	cancel()
	require.Eventually(t, func() bool { return len(s.Ports()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"photo.jpg", false},
		{"with space.txt", false},
		{"", true},
		{".", true},
		{"..", true},
		{"a/b.txt", true},
		{`a\b.txt`, filepath.Separator == '\\'},
		{"nul\x00byte", true},
		{".folderport-123.part", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReceiveDetectsMIME(t *testing.T) {
	_, port, _, rec := startServer(t)
	conn := dial(t, port)

	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 600)...)
	h := protocol.FrameHeader{Name: "pixel.png", Length: uint64(len(png)), Action: protocol.ActionMove}
	_, err := protocol.WriteFrame(conn, h, bytes.NewReader(png), nil)
	require.NoError(t, err)

	v, err := protocol.ReadVerdict(bufio.NewReader(conn))
	require.NoError(t, err)
	require.True(t, v.Success, v.Message)

	require.Eventually(t, func() bool {
		return len(rec.OfType(status.EventReceiveSucceeded)) == 1
	}, time.Second, 10*time.Millisecond)
	e := rec.OfType(status.EventReceiveSucceeded)[0]
	assert.Equal(t, "image/png", e.MIME)
	assert.Equal(t, "MOVE", e.Action)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMIME([]byte("%PDF-1.7\n")))
	assert.Equal(t, "", DetectMIME([]byte("plain text")))
	assert.Equal(t, "", DetectMIME(nil))
}

func TestHeadBufferKeepsPrefix(t *testing.T) {
	h := &headBuffer{limit: 4}
	n, err := h.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = h.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcd", string(h.buf))
}

func TestReceiveSlowSenderOutlastsIdleTimeout(t *testing.T) {
	dir := t.TempDir()
	idle := 300 * time.Millisecond
	s := New(Config{IOTimeout: idle}, nil)

	content := bytes.Repeat([]byte("slow"), 16*1024)
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handle(server, 5000, dir)
	}()

	start := time.Now()
	h := protocol.FrameHeader{Name: "slow.bin", Length: uint64(len(content)), Action: protocol.ActionCopy}
	require.NoError(t, protocol.WriteHeader(client, h))
	for off := 0; off < len(content); off += 1024 {
		time.Sleep(20 * time.Millisecond)
		_, err := client.Write(content[off : off+1024])
		require.NoError(t, err)
	}

	v, err := protocol.ReadVerdict(bufio.NewReader(client))
	require.NoError(t, err)
	assert.True(t, v.Success, v.Message)
	assert.Greater(t, time.Since(start), idle)
	<-done

	got, err := os.ReadFile(filepath.Join(dir, "slow.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestReceiveStalledSenderTimesOut(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{IOTimeout: 100 * time.Millisecond}, nil)

	client, server := net.Pipe()
	defer client.Close()
	go s.handle(server, 5000, dir)

	require.NoError(t, protocol.WriteHeader(client, protocol.FrameHeader{Name: "stuck.bin", Length: 10, Action: protocol.ActionCopy}))

	v, err := protocol.ReadVerdict(bufio.NewReader(client))
	require.NoError(t, err)
	assert.False(t, v.Success)
	assert.Contains(t, v.Message, "timeout")
	assert.Empty(t, listDir(t, dir))
}

func TestReceiveBackslashNameOnPOSIX(t *testing.T) {
	if filepath.Separator == '\\' {
		t.Skip("backslash is a path separator on this platform")
	}
	_, port, dir, _ := startServer(t)
	conn := dial(t, port)

	h := protocol.FrameHeader{Name: `shot\2024.png`, Length: 3, Action: protocol.ActionCopy}
	_, err := protocol.WriteFrame(conn, h, strings.NewReader("png"), nil)
	require.NoError(t, err)

	v, err := protocol.ReadVerdict(bufio.NewReader(conn))
	require.NoError(t, err)
	assert.True(t, v.Success, v.Message)
	assert.Equal(t, []string{`shot\2024.png`}, listDir(t, dir))
}
