package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompact(t *testing.T) {
	q := `
		SELECT id, port
		FROM transfers
		WHERE port = $1`
	assert.Equal(t, "SELECT id, port FROM transfers WHERE port = $1", compact(q))
}

func TestExecContextWrapsErrors(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	conn := &DB{DB: mockDB}

	cause := errors.New("relation does not exist")
	mock.ExpectExec("DELETE FROM transfers").WillReturnError(cause)

	_, err = conn.ExecContext(context.Background(), "DELETE FROM transfers")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to execute statement")
}

func TestQueryContext(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	conn := &DB{DB: mockDB}

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	rows, err := conn.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
