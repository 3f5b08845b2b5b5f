package queries

// Transfer journal queries
const (
	CreateTransfer = `
		INSERT INTO transfers (
			id, direction, port, file_name, bytes, action,
			success, message, digest, mime_type, remote_addr, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	ListRecentTransfers = `
		SELECT
			id, direction, port, file_name, bytes, action,
			success, message, digest, mime_type, remote_addr, created_at
		FROM transfers
		ORDER BY created_at DESC
		LIMIT $1`

	ListTransfersByPort = `
		SELECT
			id, direction, port, file_name, bytes, action,
			success, message, digest, mime_type, remote_addr, created_at
		FROM transfers
		WHERE port = $1
		ORDER BY created_at DESC
		LIMIT $2`

	DeleteTransfersBefore = `DELETE FROM transfers WHERE created_at < $1`
)
