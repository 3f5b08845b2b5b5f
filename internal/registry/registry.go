// Package registry tracks which source files are already claimed by a send so
// the same file is never transferred twice at once.
package registry

import (
	"sync"

	"github.com/ZerkerEOD/folderport/pkg/debug"
)

// DefaultHighWaterMark is the size beyond which the registry is flushed
const DefaultHighWaterMark = 1000

// Registry is a mutex-guarded set of absolute file paths
type Registry struct {
	mu            sync.Mutex
	paths         map[string]struct{}
	highWaterMark int
}

// New creates a registry with the default high-water mark
func New() *Registry {
	return NewWithLimit(DefaultHighWaterMark)
}

// NewWithLimit creates a registry that flushes once it holds more than limit paths
func NewWithLimit(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultHighWaterMark
	}
	return &Registry{
		paths:         make(map[string]struct{}),
		highWaterMark: limit,
	}
}

// TryAdd claims path. It returns false if the path is already claimed.
// When the insert pushes the set past the high-water mark the whole set is
// cleared and only path is kept, so the caller still owns its claim.
func (r *Registry) TryAdd(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.paths[path]; ok {
		return false
	}
	r.paths[path] = struct{}{}

	if len(r.paths) > r.highWaterMark {
		debug.Warning("Processed-file registry exceeded %d entries, clearing", r.highWaterMark)
		clear(r.paths)
		r.paths[path] = struct{}{}
	}
	return true
}

// Remove releases a claim. Removing an unknown path is a no-op.
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	delete(r.paths, path)
	r.mu.Unlock()
}

// Contains reports whether path is currently claimed
func (r *Registry) Contains(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.paths[path]
	return ok
}

// Len returns the number of claimed paths
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

// Reset drops every claim
func (r *Registry) Reset() {
	r.mu.Lock()
	clear(r.paths)
	r.mu.Unlock()
}
