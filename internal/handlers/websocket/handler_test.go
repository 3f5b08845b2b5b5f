package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func connect(t *testing.T, hub *status.Hub) (*websocket.Conn, *Handler) {
	t.Helper()
	h := NewHandler(hub)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, h
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamStartsWithSnapshotThenEvents(t *testing.T) {
	hub := status.NewHub(10)
	conn, h := connect(t, hub)

	first := readMessage(t, conn)
	assert.Equal(t, TypeSnapshot, first.Type)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(status.Event{Type: status.EventSendSucceeded, File: "a.txt"})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeEvent, msg.Type)
	var e status.Event
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	assert.Equal(t, status.EventSendSucceeded, e.Type)
	assert.Equal(t, "a.txt", e.File)
}

func TestSubscribeFiltersAndReplays(t *testing.T) {
	hub := status.NewHub(10)
	hub.Publish(status.Event{Type: status.EventReceiveFailed, File: "old.txt"})
	hub.Publish(status.Event{Type: status.EventScanStarted})

	conn, _ := connect(t, hub)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "subscribe",
		"payload": map[string]any{"types": []string{"receive_failed"}, "replay": 5},
	}))

	replayed := readMessage(t, conn)
	var e status.Event
	require.NoError(t, json.Unmarshal(replayed.Payload, &e))
	assert.Equal(t, "old.txt", e.File)

	hub.Publish(status.Event{Type: status.EventScanStarted})
	hub.Publish(status.Event{Type: status.EventReceiveFailed, File: "new.txt"})

	msg := readMessage(t, conn)
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	assert.Equal(t, status.EventReceiveFailed, e.Type)
	assert.Equal(t, "new.txt", e.File)
}

func TestUnknownMessageType(t *testing.T) {
	conn, _ := connect(t, status.NewHub(10))
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "reboot"}))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "unknown message type")
}
