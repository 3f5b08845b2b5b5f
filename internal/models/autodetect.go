package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Auto-detect presets selectable with the preset key
const (
	PresetMedia     = "media"
	PresetDocuments = "documents"
)

const (
	// DefaultMaxFileSize applies when an enabled filter sets no size limit
	DefaultMaxFileSize int64 = 100 * 1024 * 1024
)

// DefaultAllowedExtensions is used when an enabled filter lists no extensions
var DefaultAllowedExtensions = []string{"jpg", "jpeg", "png", "gif", "mp4", "mov", "avi", "pdf", "txt"}

// AutoDetectSettings restricts which files of a folder are transferred. A
// disabled filter passes every file.
type AutoDetectSettings struct {
	Enabled           bool     `json:"enabled" mapstructure:"enabled"`
	Preset            string   `json:"preset,omitempty" mapstructure:"preset"`
	AllowedExtensions []string `json:"allowedExtensions,omitempty" mapstructure:"allowed_extensions"`
	// MaxFileSize is in bytes; a negative value removes the limit
	MaxFileSize       int64    `json:"maxFileSize" mapstructure:"max_file_size"`
	IgnoreHiddenFiles bool     `json:"ignoreHiddenFiles" mapstructure:"ignore_hidden_files"`
	CustomPatterns    []string `json:"customPatterns,omitempty" mapstructure:"custom_patterns"`
}

// MediaOnly passes common image and video files up to 500 MiB
func MediaOnly() AutoDetectSettings {
	return AutoDetectSettings{
		Enabled:           true,
		Preset:            PresetMedia,
		AllowedExtensions: []string{"jpg", "jpeg", "png", "gif", "mp4", "mov", "avi"},
		MaxFileSize:       500 * 1024 * 1024,
		IgnoreHiddenFiles: true,
	}
}

// DocumentsOnly passes office documents and text files up to 50 MiB
func DocumentsOnly() AutoDetectSettings {
	return AutoDetectSettings{
		Enabled:           true,
		Preset:            PresetDocuments,
		AllowedExtensions: []string{"pdf", "doc", "docx", "txt", "xls", "xlsx"},
		MaxFileSize:       50 * 1024 * 1024,
		IgnoreHiddenFiles: true,
	}
}

// Normalize fills unset extension and size fields from the preset, or from the
// defaults when no preset is named, and canonicalises extensions to lower
// case without the leading dot
func (a *AutoDetectSettings) Normalize() error {
	base := AutoDetectSettings{AllowedExtensions: DefaultAllowedExtensions, MaxFileSize: DefaultMaxFileSize}
	switch strings.ToLower(strings.TrimSpace(a.Preset)) {
	case "":
	case PresetMedia:
		base = MediaOnly()
	case PresetDocuments:
		base = DocumentsOnly()
	default:
		return fmt.Errorf("unknown auto-detect preset %q", a.Preset)
	}
	if base.Preset != "" {
		a.Preset = base.Preset
	}

	if len(a.AllowedExtensions) == 0 {
		a.AllowedExtensions = append([]string(nil), base.AllowedExtensions...)
	}
	if a.MaxFileSize == 0 {
		a.MaxFileSize = base.MaxFileSize
	}
	for i, ext := range a.AllowedExtensions {
		a.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	return nil
}

// ShouldTransfer decides whether a file with the given name and size passes
// the filter. Hidden files and oversize files are rejected first, then the
// file must match an allowed extension or contain a custom pattern.
func (a AutoDetectSettings) ShouldTransfer(name string, size int64) bool {
	if !a.Enabled {
		return true
	}
	if a.IgnoreHiddenFiles && strings.HasPrefix(name, ".") {
		return false
	}
	if a.MaxFileSize > 0 && size > a.MaxFileSize {
		return false
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, allowed := range a.AllowedExtensions {
		if ext != "" && ext == allowed {
			return true
		}
	}

	lower := strings.ToLower(name)
	for _, pattern := range a.CustomPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// DisplayText summarises the filter, e.g. "9 file types (jpg, jpeg, png)"
func (a AutoDetectSettings) DisplayText() string {
	if !a.Enabled {
		return "All files"
	}
	shown := a.AllowedExtensions[:min(3, len(a.AllowedExtensions))]
	return fmt.Sprintf("%d file types (%s)", len(a.AllowedExtensions), strings.Join(shown, ", "))
}
