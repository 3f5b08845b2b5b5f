// Package journal persists transfer outcomes published on the status hub.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/ZerkerEOD/folderport/pkg/debug"
)

// Store is the persistence the journal writes to
type Store interface {
	Create(ctx context.Context, t *models.TransferRecord) error
}

// Service copies send and receive outcomes from a hub subscription into a Store.
// Store failures are logged and never affect a transfer.
type Service struct {
	store   Store
	timeout time.Duration

	wg     sync.WaitGroup
	cancel func()
}

// NewService creates a journal service
func NewService(store Store) *Service {
	return &Service{store: store, timeout: 5 * time.Second}
}

// Start subscribes to hub and writes records until Stop is called
func (s *Service) Start(hub *status.Hub) {
	events, cancel := hub.Subscribe(256)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for e := range events {
			s.Handle(e)
		}
	}()
}

// Stop unsubscribes and waits for pending writes
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Handle journals e if it is a transfer outcome
func (s *Service) Handle(e status.Event) {
	record, ok := RecordFromEvent(e)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.store.Create(ctx, record); err != nil {
		debug.Error("Failed to journal transfer of %s: %v", record.FileName, err)
	}
}

// RecordFromEvent converts send and receive outcome events to journal rows
func RecordFromEvent(e status.Event) (*models.TransferRecord, bool) {
	record := &models.TransferRecord{
		ID:         e.ID,
		Port:       e.Port,
		FileName:   e.File,
		Bytes:      e.Bytes,
		Action:     e.Action,
		Message:    e.Message,
		Digest:     e.Digest,
		MimeType:   e.MIME,
		RemoteAddr: e.RemoteAddr,
		CreatedAt:  e.Timestamp,
	}

	switch e.Type {
	case status.EventSendSucceeded:
		record.Direction, record.Success = models.DirectionOutbound, true
	case status.EventSendFailed:
		record.Direction = models.DirectionOutbound
	case status.EventReceiveSucceeded:
		record.Direction, record.Success = models.DirectionInbound, true
	case status.EventReceiveFailed:
		record.Direction = models.DirectionInbound
	default:
		return nil, false
	}
	return record, true
}
