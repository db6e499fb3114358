package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/scanforge/serialscan/internal/models"
	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/scanerr"
)

// ModelRegistry owns the loaded scoring models: load-once, shared
// read-only across sessions, reference counted so Close can refuse to
// tear down models still in use. The registry is constructed explicitly
// and passed into the pipeline; there is no process-global cache.
type ModelRegistry struct {
	modelsDir string
	opts      onnx.ModelOptions

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	runner  onnx.Runner
	refs    int
	loadErr error
}

// NewRegistry creates a registry resolving model files under modelsDir.
func NewRegistry(modelsDir string, opts onnx.ModelOptions) *ModelRegistry {
	return &ModelRegistry{
		modelsDir: modelsDir,
		opts:      opts,
		entries:   make(map[string]*registryEntry),
	}
}

// Register installs a pre-built runner for a role, replacing file-based
// loading. Used for tests and alternative back-ends.
func (r *ModelRegistry) Register(role string, runner onnx.Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[role] = &registryEntry{runner: runner}
}

// Acquire returns the shared runner for a role, loading the model file on
// first use. A failed load is remembered: later acquisitions fail fast
// with the same ModelNotReady error instead of retrying the file.
func (r *ModelRegistry) Acquire(role string) (onnx.Runner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[role]
	if !ok {
		entry = &registryEntry{}
		path, err := models.PathForRole(r.modelsDir, role)
		if err == nil {
			err = models.ValidateModelFile(path)
		}
		if err == nil {
			entry.runner, err = onnx.LoadModel(path, r.opts)
		}
		if err != nil {
			entry.loadErr = fmt.Errorf("%w: %s: %v", scanerr.ErrModelNotReady, role, err)
			slog.Warn("Model unavailable, continuing degraded", "role", role, "error", err)
		} else {
			slog.Info("Model loaded", "role", role, "path", path)
		}
		r.entries[role] = entry
	}

	if entry.loadErr != nil {
		return nil, entry.loadErr
	}
	entry.refs++
	return entry.runner, nil
}

// Release decrements a role's reference count. The model stays loaded for
// reuse by later sessions.
func (r *ModelRegistry) Release(role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[role]; ok && entry.refs > 0 {
		entry.refs--
	}
}

// Ready reports whether a role has a usable runner.
func (r *ModelRegistry) Ready(role string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[role]
	return ok && entry.loadErr == nil && entry.runner != nil
}

// Degraded lists roles whose models failed to load, sorted for stable
// reporting.
func (r *ModelRegistry) Degraded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for role, entry := range r.entries {
		if entry.loadErr != nil {
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out
}

// Close tears down all loaded models. Roles still referenced are closed
// anyway; callers are expected to end sessions first.
func (r *ModelRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for role, entry := range r.entries {
		if entry.runner == nil {
			continue
		}
		if entry.refs > 0 {
			slog.Warn("Closing model still in use", "role", role, "refs", entry.refs)
		}
		if err := entry.runner.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		entry.runner = nil
	}
	return firstErr
}
