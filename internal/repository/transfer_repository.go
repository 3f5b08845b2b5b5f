package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ZerkerEOD/folderport/internal/db"
	"github.com/ZerkerEOD/folderport/internal/db/queries"
	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/google/uuid"
)

// TransferRepository handles database operations for the transfer journal
type TransferRepository struct {
	db *db.DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *db.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts a journal row, assigning an ID and timestamp when missing
func (r *TransferRepository) Create(ctx context.Context, t *models.TransferRecord) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, queries.CreateTransfer,
		t.ID,
		t.Direction,
		t.Port,
		t.FileName,
		t.Bytes,
		t.Action,
		t.Success,
		t.Message,
		t.Digest,
		t.MimeType,
		t.RemoteAddr,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer record: %w", err)
	}
	return nil
}

// ListRecent returns the newest records first
func (r *TransferRepository) ListRecent(ctx context.Context, limit int) ([]models.TransferRecord, error) {
	return r.list(ctx, queries.ListRecentTransfers, limit)
}

// ListByPort returns the newest records for one port first
func (r *TransferRepository) ListByPort(ctx context.Context, port, limit int) ([]models.TransferRecord, error) {
	return r.list(ctx, queries.ListTransfersByPort, port, limit)
}

// DeleteBefore prunes records older than cutoff and returns how many were removed
func (r *TransferRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, queries.DeleteTransfersBefore, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transfer records: %w", err)
	}
	return result.RowsAffected()
}

func (r *TransferRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.TransferRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfer records: %w", err)
	}
	defer rows.Close()

	var records []models.TransferRecord
	for rows.Next() {
		var t models.TransferRecord
		if err := rows.Scan(
			&t.ID,
			&t.Direction,
			&t.Port,
			&t.FileName,
			&t.Bytes,
			&t.Action,
			&t.Success,
			&t.Message,
			&t.Digest,
			&t.MimeType,
			&t.RemoteAddr,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transfer record: %w", err)
		}
		records = append(records, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfer records: %w", err)
	}
	return records, nil
}
