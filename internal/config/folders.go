package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/ZerkerEOD/folderport/internal/models"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicatePort = errors.New("port is used by more than one enabled folder")
	ErrInvalidPort   = errors.New("port must be between 1 and 65535")
	ErrInvalidAction = errors.New("file action must be COPY or MOVE")
)

// Folders is the ordered folder configuration list
type Folders []models.FolderMonitorConfig

type foldersFile struct {
	Folders []map[string]any `yaml:"folders"`
}

// LoadFolders reads and validates a YAML folder configuration file
func LoadFolders(path string) (Folders, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder configuration: %w", err)
	}
	folders, err := ParseFolders(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return folders, nil
}

// ParseFolders decodes YAML of the form
//
//	folders:
//	  - folder_path: /home/me/Screenshots
//	    target_port: 5152
//	    file_action: move
//	    auto_detect:
//	      enabled: true
//	      preset: media
//
// Omitted fields take the defaults of a new folder: enabled, COPY, 2 second
// delay and no file filter.
func ParseFolders(data []byte) (Folders, error) {
	var doc foldersFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	folders := make(Folders, 0, len(doc.Folders))
	for i, raw := range doc.Folders {
		cfg := models.FolderMonitorConfig{
			FileAction: models.FileActionCopy,
			Enabled:    true,
			Monitoring: models.DefaultMonitoringSettings(),
			AutoDetect: models.AutoDetectSettings{IgnoreHiddenFiles: true},
		}
		if err := decodeFolder(raw, &cfg); err != nil {
			return nil, fmt.Errorf("folder %d: %w", i, err)
		}
		if err := cfg.AutoDetect.Normalize(); err != nil {
			return nil, fmt.Errorf("folder %d: %w", i, err)
		}
		folders = append(folders, cfg)
	}

	folders.Normalize()
	if err := folders.Validate(); err != nil {
		return nil, err
	}
	return folders, nil
}

func decodeFolder(raw map[string]any, out *models.FolderMonitorConfig) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       fileActionHook,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// fileActionHook upper-cases action names so "move" and "Move" are accepted
func fileActionHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(models.FileAction("")) || from.Kind() != reflect.String {
		return data, nil
	}
	return strings.ToUpper(strings.TrimSpace(reflect.ValueOf(data).String())), nil
}

// Normalize clamps delays and fills in missing folder names
func (f Folders) Normalize() {
	for i := range f {
		f[i].Monitoring.DelaySeconds = models.ClampDelaySeconds(f[i].Monitoring.DelaySeconds)
		if f[i].FolderName == "" {
			f[i].FolderName = f[i].Label()
		}
	}
}

// Validate reports every problem in the list at once
func (f Folders) Validate() error {
	var errs []error
	owners := make(map[int]string)

	for i, c := range f {
		name := c.FolderPath
		if name == "" {
			name = "#" + strconv.Itoa(i)
			errs = append(errs, fmt.Errorf("folder %s: folder_path is required", name))
		}
		if c.TargetPort < 1 || c.TargetPort > 65535 {
			errs = append(errs, fmt.Errorf("folder %s: %w (got %d)", name, ErrInvalidPort, c.TargetPort))
		}
		if !c.FileAction.Valid() {
			errs = append(errs, fmt.Errorf("folder %s: %w (got %q)", name, ErrInvalidAction, c.FileAction))
		}
		if !c.Enabled {
			continue
		}
		if owner, ok := owners[c.TargetPort]; ok {
			errs = append(errs, fmt.Errorf("folder %s: %w: %d already used by %s", name, ErrDuplicatePort, c.TargetPort, owner))
			continue
		}
		owners[c.TargetPort] = name
	}
	return errors.Join(errs...)
}

// Enabled returns the enabled folders in order
func (f Folders) Enabled() Folders {
	out := make(Folders, 0, len(f))
	for _, c := range f {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// ForFolder finds the configuration watching path
func (f Folders) ForFolder(path string) (models.FolderMonitorConfig, bool) {
	want := filepath.Clean(path)
	for _, c := range f {
		if filepath.Clean(c.FolderPath) == want {
			return c, true
		}
	}
	return models.FolderMonitorConfig{}, false
}

// ForPort finds the enabled configuration bound to port
func (f Folders) ForPort(port int) (models.FolderMonitorConfig, bool) {
	for _, c := range f {
		if c.Enabled && c.TargetPort == port {
			return c, true
		}
	}
	return models.FolderMonitorConfig{}, false
}

// Destinations maps each enabled folder's port to its receive directory under root
func (f Folders) Destinations(root string) map[int]string {
	out := make(map[int]string)
	for _, c := range f.Enabled() {
		out[c.TargetPort] = filepath.Join(root, strconv.Itoa(c.TargetPort))
	}
	return out
}
