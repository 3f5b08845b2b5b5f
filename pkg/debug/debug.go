// Package debug is the leveled logger used across folderport. Output is off
// unless DEBUG is set; LOG_LEVEL picks the minimum level.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

const timestampFormat = "2006-01-02 15:04:05.000"

// settings is replaced wholesale by Reinitialize so readers never see a
// half-applied configuration
type settings struct {
	enabled bool
	level   LogLevel
}

var (
	current atomic.Pointer[settings]

	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

func init() {
	loadFromEnv()
}

// String returns the upper-case level name
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel accepts a level name in any case; WARN is an alias for WARNING
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARNING", "WARN":
		return LevelWarning, true
	case "ERROR":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

func loadFromEnv() *settings {
	flag := strings.ToLower(os.Getenv("DEBUG"))
	level, _ := ParseLevel(os.Getenv("LOG_LEVEL"))

	s := &settings{enabled: flag == "true" || flag == "1", level: level}
	current.Store(s)
	return s
}

// Settings reports whether logging is on and the minimum level written
func Settings() (bool, LogLevel) {
	s := current.Load()
	return s.enabled, s.level
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	out = w
}

// Enabled reports whether a message at the given level would be written
func Enabled(level LogLevel) bool {
	s := current.Load()
	return s.enabled && level >= s.level
}

// Log writes one line tagged with level, time, caller position and function
func Log(level LogLevel, format string, v ...interface{}) {
	if !Enabled(level) {
		return
	}
	write(level, 2, fmt.Sprintf(format, v...))
}

func write(level LogLevel, skip int, message string) {
	pc, file, line, _ := runtime.Caller(skip)
	funcName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcName = fn.Name()
		if i := strings.LastIndexByte(funcName, '/'); i >= 0 {
			funcName = funcName[i+1:]
		}
	}

	entry := fmt.Sprintf("[%s] [%s] [%s:%d] [%s] %s\n",
		level, time.Now().Format(timestampFormat), filepath.Base(file), line, funcName, message)

	outMu.Lock()
	defer outMu.Unlock()
	io.WriteString(out, entry)
}

// Debug logs a debug level message
func Debug(format string, v ...interface{}) {
	if Enabled(LevelDebug) {
		write(LevelDebug, 2, fmt.Sprintf(format, v...))
	}
}

// Info logs an info level message
func Info(format string, v ...interface{}) {
	if Enabled(LevelInfo) {
		write(LevelInfo, 2, fmt.Sprintf(format, v...))
	}
}

// Warning logs a warning level message
func Warning(format string, v ...interface{}) {
	if Enabled(LevelWarning) {
		write(LevelWarning, 2, fmt.Sprintf(format, v...))
	}
}

// Error logs an error level message
func Error(format string, v ...interface{}) {
	if Enabled(LevelError) {
		write(LevelError, 2, fmt.Sprintf(format, v...))
	}
}

// Reinitialize re-reads DEBUG and LOG_LEVEL, typically after a .env file
// has been loaded
func Reinitialize() {
	s := loadFromEnv()
	if s.enabled {
		Info("Debug logging reinitialized - level %s", s.level)
	}
}
