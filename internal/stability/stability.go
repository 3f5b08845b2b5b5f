// Package stability decides whether a file has finished being written by
// comparing two size samples taken a short interval apart.
package stability

import (
	"context"
	"time"

	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/spf13/afero"
)

// DefaultInterval is the pause between the two size samples
const DefaultInterval = time.Second

// Detector samples file sizes
type Detector struct {
	fs       afero.Fs
	interval time.Duration
}

// New creates a detector on the OS filesystem that waits interval between samples
func New(interval time.Duration) *Detector {
	return NewWithFs(afero.NewOsFs(), interval)
}

// NewWithFs creates a detector on fs
func NewWithFs(fs afero.Fs, interval time.Duration) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Detector{fs: fs, interval: interval}
}

// IsStable reports whether path kept the same non-zero size across the
// sampling interval. Any stat failure or a cancelled context yields false.
func (d *Detector) IsStable(ctx context.Context, path string) bool {
	first, err := d.size(path)
	if err != nil {
		debug.Debug("Stability check failed for %s: %v", path, err)
		return false
	}

	timer := time.NewTimer(d.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	second, err := d.size(path)
	if err != nil {
		debug.Debug("Stability check failed for %s: %v", path, err)
		return false
	}

	if first != second {
		debug.Debug("File %s still growing (%d -> %d bytes)", path, first, second)
		return false
	}
	return second > 0
}

func (d *Detector) size(path string) (int64, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
