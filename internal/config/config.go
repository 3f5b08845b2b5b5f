package config

import (
	"time"

	statustls "github.com/ZerkerEOD/folderport/internal/tls"
	"github.com/ZerkerEOD/folderport/pkg/env"
)

// Config holds the daemon configuration
type Config struct {
	FoldersFile        string
	TargetHost         string
	ListenHost         string
	ReceiveDir         string
	StatusAddr         string
	JournalDSN         string
	MaxConcurrentSends int
	IOTimeout          time.Duration
	DialTimeout        time.Duration
	TempRetention      time.Duration
	CleanupInterval    time.Duration
	StatusTLS          *statustls.Config
}

// NewConfig creates a new Config instance with values from environment variables
func NewConfig() *Config {
	return &Config{
		FoldersFile:        env.GetOrDefault("FOLDERPORT_FOLDERS_FILE", "folders.yaml"),
		TargetHost:         env.GetOrDefault("FOLDERPORT_TARGET_HOST", "127.0.0.1"),
		ListenHost:         env.GetOrDefault("FOLDERPORT_LISTEN_HOST", ""),
		ReceiveDir:         env.GetOrDefault("FOLDERPORT_RECEIVE_DIR", "./received"),
		StatusAddr:         env.GetOrDefault("FOLDERPORT_STATUS_ADDR", ""),
		JournalDSN:         env.GetOrDefault("FOLDERPORT_JOURNAL_DSN", ""),
		MaxConcurrentSends: env.GetIntOrDefault("FOLDERPORT_MAX_CONCURRENT_SENDS", 8),
		IOTimeout:          env.GetDurationOrDefault("FOLDERPORT_IO_TIMEOUT", 5*time.Minute),
		DialTimeout:        env.GetDurationOrDefault("FOLDERPORT_DIAL_TIMEOUT", 10*time.Second),
		TempRetention:      env.GetDurationOrDefault("FOLDERPORT_TEMP_RETENTION", time.Hour),
		CleanupInterval:    env.GetDurationOrDefault("FOLDERPORT_CLEANUP_INTERVAL", 10*time.Minute),
		StatusTLS:          statustls.NewConfig(),
	}
}

// StatusEnabled reports whether the status API should be served
func (c *Config) StatusEnabled() bool {
	return c.StatusAddr != ""
}

// JournalEnabled reports whether transfers should be journaled to Postgres
func (c *Config) JournalEnabled() bool {
	return c.JournalDSN != ""
}
