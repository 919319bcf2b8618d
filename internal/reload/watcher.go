package reload

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/timzifer/d3dxini/config"
)

type fileState struct {
	modTime time.Time
	size    int64
	exists  bool
}

// Watcher keeps track of the files that contributed to a configuration and
// detects modifications by polling.
type Watcher struct {
	mu    sync.Mutex
	files map[string]fileState
}

// NewWatcher builds a watcher over the source files of cfg.
func NewWatcher(cfg *config.Config) *Watcher {
	watcher := &Watcher{}
	watcher.Update(cfg)
	return watcher
}

// Update rebuilds the tracked file list from the provided configuration.
// The user override file is tracked even while it does not exist, so its
// creation is reported as a change.
func (w *Watcher) Update(cfg *config.Config) {
	if w == nil {
		return
	}
	paths := uniquePaths(config.SourceFiles(cfg))
	states := make(map[string]fileState, len(paths))
	for _, path := range paths {
		states[path] = stat(path)
	}
	if cfg != nil && cfg.UserFile != "" {
		states[cfg.UserFile] = stat(cfg.UserFile)
	}
	w.mu.Lock()
	w.files = states
	w.mu.Unlock()
}

// Touch records the current state of path, so a change the engine made
// itself (such as saving the user file) is not reported.
func (w *Watcher) Touch(path string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; ok {
		w.files[path] = stat(path)
	}
}

// Files returns the tracked paths in order.
func (w *Watcher) Files() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for path := range w.files {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Check reports the files that changed since the last snapshot.
func (w *Watcher) Check() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	for path, state := range w.files {
		now := stat(path)
		if now.exists != state.exists || now.modTime.After(state.modTime) || now.size != state.size {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fileState{}
	}
	return fileState{modTime: info.ModTime(), size: info.Size(), exists: true}
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result = append(result, path)
	}
	return result
}
