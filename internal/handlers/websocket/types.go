package websocket

import (
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> Server messages
	TypeSubscribe       MessageType = "subscribe"
	TypeSnapshotRequest MessageType = "snapshot_request"

	// Server -> Client messages
	TypeEvent    MessageType = "event"
	TypeSnapshot MessageType = "snapshot"
	TypeError    MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// SubscribePayload narrows the event feed to the listed types and optionally
// replays recent history first
type SubscribePayload struct {
	Types  []string `mapstructure:"types"`
	Replay int      `mapstructure:"replay"`
}

// ErrorPayload reports a bad client message
type ErrorPayload struct {
	Error string `json:"error"`
}
