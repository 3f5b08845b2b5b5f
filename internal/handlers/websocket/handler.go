package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler streams status events to WebSocket clients
type Handler struct {
	hub     *status.Hub
	clients map[uuid.UUID]*Client
	mu      sync.RWMutex
}

// Client represents a connected status viewer
type Client struct {
	id      uuid.UUID
	handler *Handler
	conn    *websocket.Conn
	send    chan *Message
	events  <-chan status.Event
	unsub   func()
	ctx     context.Context
	cancel  context.CancelFunc

	filterMu sync.RWMutex
	filter   map[status.EventType]struct{}
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *status.Hub) *Handler {
	return &Handler{
		hub:     hub,
		clients: make(map[uuid.UUID]*Client),
	}
}

// ServeWS upgrades the request and starts streaming events
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error("failed to upgrade connection: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, unsub := h.hub.Subscribe(256)

	client := &Client{
		id:      uuid.New(),
		handler: h,
		conn:    conn,
		send:    make(chan *Message, 64),
		events:  events,
		unsub:   unsub,
		ctx:     ctx,
		cancel:  cancel,
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	client.queue(&Message{Type: TypeSnapshot, Timestamp: time.Now(), Payload: h.hub.Snapshot()})

	go client.writePump()
	go client.readPump()
}

// readPump handles subscription changes sent by the client
func (c *Client) readPump() {
	defer func() {
		c.handler.unregisterClient(c)
		c.conn.Close()
		c.cancel()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				debug.Error("unexpected close error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			debug.Error("failed to unmarshal message: %v", err)
			c.queueError(fmt.Errorf("invalid message: %w", err))
			continue
		}

		if err := c.handleMessage(&msg); err != nil {
			debug.Error("failed to handle message: %v", err)
			c.queueError(err)
		}
	}
}

func (c *Client) handleMessage(msg *Message) error {
	switch msg.Type {
	case TypeSubscribe:
		var payload SubscribePayload
		if err := mapstructure.Decode(msg.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode subscribe payload: %w", err)
		}
		c.setFilter(payload.Types)
		if payload.Replay > 0 {
			for _, e := range c.handler.hub.Recent(payload.Replay) {
				if c.wants(e) {
					c.queue(eventMessage(e))
				}
			}
		}
		return nil
	case TypeSnapshotRequest:
		c.queue(&Message{Type: TypeSnapshot, Timestamp: time.Now(), Payload: c.handler.hub.Snapshot()})
		return nil
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// writePump pumps hub events and replies to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.unsub()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}

		case e, ok := <-c.events:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.wants(e) {
				continue
			}
			if err := c.write(eventMessage(e)); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) write(message *Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(message)
	if err != nil {
		debug.Error("failed to marshal message: %v", err)
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) queue(msg *Message) {
	select {
	case c.send <- msg:
	default:
		debug.Warning("status client %s send buffer full, dropping %s", c.id, msg.Type)
	}
}

func (c *Client) queueError(err error) {
	c.queue(&Message{Type: TypeError, Timestamp: time.Now(), Payload: ErrorPayload{Error: err.Error()}})
}

func (c *Client) setFilter(types []string) {
	var filter map[status.EventType]struct{}
	if len(types) > 0 {
		filter = make(map[status.EventType]struct{}, len(types))
		for _, t := range types {
			filter[status.EventType(t)] = struct{}{}
		}
	}
	c.filterMu.Lock()
	c.filter = filter
	c.filterMu.Unlock()
}

func (c *Client) wants(e status.Event) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	if c.filter == nil {
		return true
	}
	_, ok := c.filter[e.Type]
	return ok
}

func eventMessage(e status.Event) *Message {
	return &Message{Type: TypeEvent, Timestamp: e.Timestamp, Payload: e}
}

// unregisterClient removes a client from the handler
func (h *Handler) unregisterClient(c *Client) {
	h.mu.Lock()
	if client, ok := h.clients[c.id]; ok && client == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Handler) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.cancel()
	}
}
