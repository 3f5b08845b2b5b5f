// Package db wraps the journal's PostgreSQL connection pool.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ZerkerEOD/folderport/pkg/debug"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// PoolConfig sizes the connection pool. The journal writes one row per
// transfer, so a handful of connections is plenty.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// DefaultPoolConfig is used by New
var DefaultPoolConfig = PoolConfig{
	MaxOpenConns:    5,
	MaxIdleConns:    2,
	ConnMaxLifetime: 5 * time.Minute,
	PingTimeout:     5 * time.Second,
}

// DB embeds sql.DB and logs every statement at debug level
type DB struct {
	*sql.DB
}

// New opens a pool for dsn and verifies it with a ping
func New(ctx context.Context, dsn string) (*DB, error) {
	return Open(ctx, "postgres", dsn, DefaultPoolConfig)
}

// Open is New with an explicit driver and pool configuration
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*DB, error) {
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pool.PingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	debug.Info("Journal database connected (max %d connections)", pool.MaxOpenConns)
	return &DB{sqlDB}, nil
}

// ExecContext runs a statement and wraps any driver error
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	logStatement(query, args)
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return result, nil
}

// QueryContext runs a query and wraps any driver error
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	logStatement(query, args)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	return rows, nil
}

func logStatement(query string, args []interface{}) {
	if debug.Enabled(debug.LevelDebug) {
		debug.Debug("sql: %s args=%v", compact(query), args)
	}
}

// compact folds the multi-line query constants onto one log line
func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
