package console

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagePrefixes(t *testing.T) {
	var buf bytes.Buffer
	SetWriter(&buf)
	defer SetWriter(os.Stdout)

	Info("scanning %s", "/tmp/a")
	Success("sent %d", 1)
	Warning("missing")
	Error("failed")
	Status("listening")

	assert.Equal(t,
		"[INFO] scanning /tmp/a\n[OK] sent 1\n[WARN] missing\n[ERROR] failed\n[*] listening\n",
		buf.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in       int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
		{2048 * 1024 * 1024 * 1024 * 1024, "2048.00 TB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.in))
	}
}

func TestPrinterNoColorsForBuffers(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Line("X", ansiRed, "value=%d", 7)
	assert.Equal(t, "[X] value=7\n", buf.String())
}
