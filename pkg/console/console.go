// Package console prints operator-facing status lines. Diagnostics go through
// pkg/debug instead.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
)

// Printer writes tagged lines to one writer. Tags are colored only when the
// writer is a terminal.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	colors bool
}

// NewPrinter creates a printer for w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, colors: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Line writes "[tag] message"
func (p *Printer) Line(tag, ansi, format string, args ...interface{}) {
	if p.colors && ansi != "" {
		tag = ansi + tag + ansiReset
	}
	msg := fmt.Sprintf(format, args...)

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s\n", tag, msg)
}

var std atomic.Pointer[Printer]

func init() {
	std.Store(NewPrinter(os.Stdout))
}

// SetWriter swaps the writer behind the package-level functions
func SetWriter(w io.Writer) {
	std.Store(NewPrinter(w))
}

// Print writes an untagged line
func Print(format string, args ...interface{}) {
	p := std.Load()
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Info writes an informational line
func Info(format string, args ...interface{}) {
	std.Load().Line("INFO", ansiBlue, format, args...)
}

// Success writes a line for a completed transfer or step
func Success(format string, args ...interface{}) {
	std.Load().Line("OK", ansiGreen, format, args...)
}

// Warning writes a warning line
func Warning(format string, args ...interface{}) {
	std.Load().Line("WARN", ansiYellow, format, args...)
}

// Error writes an error line
func Error(format string, args ...interface{}) {
	std.Load().Line("ERROR", ansiRed, format, args...)
}

// Status writes a lifecycle line
func Status(format string, args ...interface{}) {
	std.Load().Line("*", ansiCyan, format, args...)
}

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// FormatBytes renders a size with binary units, e.g. 1536 -> "1.50 KB"
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	value := float64(bytes) / 1024
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, byteUnits[unit])
}
