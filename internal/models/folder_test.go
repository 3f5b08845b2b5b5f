package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileAction(t *testing.T) {
	tests := []struct {
		in       string
		expected FileAction
		wantErr  bool
	}{
		{"COPY", FileActionCopy, false},
		{"copy", FileActionCopy, false},
		{" Move ", FileActionMove, false},
		{"delete", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFileAction(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestClampDelaySeconds(t *testing.T) {
	assert.Equal(t, 0, ClampDelaySeconds(-5))
	assert.Equal(t, 0, ClampDelaySeconds(0))
	assert.Equal(t, 30, ClampDelaySeconds(30))
	assert.Equal(t, 60, ClampDelaySeconds(61))

	assert.Equal(t, 60*time.Second, MonitoringSettings{DelaySeconds: 500}.Delay())
	assert.Equal(t, 2*time.Second, DefaultMonitoringSettings().Delay())
}

func TestDisplayName(t *testing.T) {
	cfg := FolderMonitorConfig{
		FolderPath: "/Pictures/Screenshots/",
		FolderName: "Screenshots",
		TargetPort: 5152,
		FileAction: FileActionMove,
		Monitoring: MonitoringSettings{DelaySeconds: 2},
	}
	assert.Equal(t, "Screenshots → Port 5152 (MOVE) - Scan: 2s", cfg.DisplayName())

	cfg.FolderName = ""
	cfg.Monitoring.DelaySeconds = 0
	assert.Equal(t, "Screenshots → Port 5152 (MOVE) - Scan: real-time", cfg.DisplayName())
}
