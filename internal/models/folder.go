package models

import (
	"fmt"
	"strings"
	"time"
)

// FileAction decides what happens to a source file after a confirmed transfer
type FileAction string

const (
	FileActionCopy FileAction = "COPY" // source file is left in place
	FileActionMove FileAction = "MOVE" // source file is deleted after a successful verdict
)

const (
	// MinDelaySeconds and MaxDelaySeconds bound MonitoringSettings.DelaySeconds
	MinDelaySeconds = 0
	MaxDelaySeconds = 60
)

// ParseFileAction accepts the action name in any letter case
func ParseFileAction(s string) (FileAction, error) {
	switch FileAction(strings.ToUpper(strings.TrimSpace(s))) {
	case FileActionCopy:
		return FileActionCopy, nil
	case FileActionMove:
		return FileActionMove, nil
	default:
		return "", fmt.Errorf("invalid file action %q", s)
	}
}

// Valid reports whether the action is one of the known values
func (a FileAction) Valid() bool {
	return a == FileActionCopy || a == FileActionMove
}

// MonitoringSettings governs how often a single folder is rescanned
type MonitoringSettings struct {
	DelaySeconds     int  `json:"delaySeconds" mapstructure:"delay_seconds"`
	PowerAware       bool `json:"powerAware" mapstructure:"power_aware"`
	AdaptiveScanning bool `json:"adaptiveScanning" mapstructure:"adaptive_scanning"`
}

// DefaultMonitoringSettings returns the settings used when a folder omits them
func DefaultMonitoringSettings() MonitoringSettings {
	return MonitoringSettings{DelaySeconds: 2}
}

// ClampDelaySeconds forces a delay into the supported 0-60 second range
func ClampDelaySeconds(seconds int) int {
	if seconds < MinDelaySeconds {
		return MinDelaySeconds
	}
	if seconds > MaxDelaySeconds {
		return MaxDelaySeconds
	}
	return seconds
}

// Delay returns the clamped scan interval
func (m MonitoringSettings) Delay() time.Duration {
	return time.Duration(ClampDelaySeconds(m.DelaySeconds)) * time.Second
}

// FolderMonitorConfig binds one local folder to a target port
type FolderMonitorConfig struct {
	FolderPath string             `json:"folderPath" mapstructure:"folder_path"`
	FolderName string             `json:"folderName" mapstructure:"folder_name"`
	TargetPort int                `json:"targetPort" mapstructure:"target_port"`
	FileAction FileAction         `json:"fileAction" mapstructure:"file_action"`
	Enabled    bool               `json:"enabled" mapstructure:"enabled"`
	Monitoring MonitoringSettings `json:"monitoringSettings" mapstructure:"monitoring"`
	AutoDetect AutoDetectSettings `json:"autoDetectSettings" mapstructure:"auto_detect"`
}

// DisplayName renders a one-line summary such as "Screenshots → Port 5152 (MOVE) - Scan: 2s"
func (c FolderMonitorConfig) DisplayName() string {
	delay := "real-time"
	if s := ClampDelaySeconds(c.Monitoring.DelaySeconds); s > 0 {
		delay = fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%s → Port %d (%s) - Scan: %s", c.Label(), c.TargetPort, c.FileAction, delay)
}

// Label is the folder name, or the last path element when no name was given
func (c FolderMonitorConfig) Label() string {
	if c.FolderName != "" {
		return c.FolderName
	}
	trimmed := strings.TrimRight(c.FolderPath, `/\`)
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
