package models

import (
	"time"

	"github.com/google/uuid"
)

// TransferDirection tells which side of the exchange recorded a transfer
type TransferDirection string

const (
	DirectionOutbound TransferDirection = "outbound"
	DirectionInbound  TransferDirection = "inbound"
)

// TransferRecord is one journaled frame/verdict exchange
type TransferRecord struct {
	ID         uuid.UUID         `json:"id"`
	Direction  TransferDirection `json:"direction"`
	Port       int               `json:"port"`
	FileName   string            `json:"fileName"`
	Bytes      int64             `json:"bytes"`
	Action     string            `json:"action"`
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Digest     string            `json:"digest,omitempty"`
	MimeType   string            `json:"mimeType,omitempty"`
	RemoteAddr string            `json:"remoteAddr,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
