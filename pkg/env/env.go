// Package env reads typed settings from environment variables, falling back
// to defaults when a variable is unset or malformed.
package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZerkerEOD/folderport/pkg/debug"
)

// GetOrDefault returns the environment variable value or the default if not set
func GetOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	debug.Debug("%s not set, using default: %s", key, defaultValue)
	return defaultValue
}

// GetBool reports whether key holds true, 1, yes or y in any letter case
func GetBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

// GetBoolOrDefault is GetBool with a default for unset variables
func GetBoolOrDefault(key string, defaultValue bool) bool {
	if os.Getenv(key) == "" {
		return defaultValue
	}
	return GetBool(key)
}

// GetIntOrDefault parses the variable as an int
func GetIntOrDefault(key string, defaultValue int) int {
	return parseOrDefault(key, defaultValue, strconv.Atoi)
}

// GetDurationOrDefault parses the variable with time.ParseDuration
func GetDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	return parseOrDefault(key, defaultValue, time.ParseDuration)
}

func parseOrDefault[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		debug.Warning("Invalid value for %s (%q), using default: %v", key, raw, defaultValue)
		return defaultValue
	}
	return v
}
