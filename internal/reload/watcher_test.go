package reload

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/timzifer/d3dxini/config"
)

func TestUniquePathsFiltersDuplicatesAndEmptyValues(t *testing.T) {
	paths := []string{"", "/tmp/a", "/tmp/b", "/tmp/a", "/tmp/c", "/tmp/b"}
	got := uniquePaths(paths)
	want := []string{"/tmp/a", "/tmp/b", "/tmp/c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("uniquePaths() = %v, want %v", got, want)
	}
}

func loadConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(dir, "d3dx.ini"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestWatcherTracksIncludesAndUserFile(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	mod := filepath.Join(dir, "mods", "a.ini")
	writeFile(t, root, "[Include]\ninclude = mods/a.ini\n")
	writeFile(t, mod, "[Present]\nx = 1\n")

	watcher := NewWatcher(loadConfig(t, dir))
	want := []string{root, filepath.Join(dir, config.DefaultUserFile), mod}
	got := watcher.Files()
	if len(got) != len(want) {
		t.Fatalf("Files() = %v, want %v", got, want)
	}
	for _, path := range want {
		if _, ok := watcher.files[path]; !ok {
			t.Fatalf("file %s not tracked: %v", path, got)
		}
	}
}

func TestWatcherCheckDetectsChangesRemovalsAndCreation(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	mod := filepath.Join(dir, "mods", "a.ini")
	user := filepath.Join(dir, config.DefaultUserFile)
	writeFile(t, root, "[Include]\ninclude = mods/a.ini\n")
	writeFile(t, mod, "[Present]\nx = 1\n")

	watcher := NewWatcher(loadConfig(t, dir))
	if changed := watcher.Check(); len(changed) != 0 {
		t.Fatalf("expected no changes on first check, got %v", changed)
	}

	time.Sleep(10 * time.Millisecond)
	writeFile(t, root, "[Include]\ninclude = mods/a.ini\n; edited\n")
	if err := os.Remove(mod); err != nil {
		t.Fatalf("Remove(%s) error = %v", mod, err)
	}
	writeFile(t, user, "[Constants]\n")

	changed := watcher.Check()
	want := []string{root, user, mod}
	if !reflect.DeepEqual(changed, sortedCopy(want)) {
		t.Fatalf("Check() = %v, want %v", changed, sortedCopy(want))
	}
}

func TestWatcherTouchSuppressesOwnWrites(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "d3dx.ini"), "[Present]\n")
	user := filepath.Join(dir, config.DefaultUserFile)

	watcher := NewWatcher(loadConfig(t, dir))
	writeFile(t, user, "[Constants]\n$x = 1\n")
	watcher.Touch(user)
	if changed := watcher.Check(); len(changed) != 0 {
		t.Fatalf("expected touched file to be ignored, got %v", changed)
	}
}

func TestWatcherHandlesNilReceiver(t *testing.T) {
	var watcher *Watcher
	watcher.Update(&config.Config{})
	watcher.Touch("x")
	if changed := watcher.Check(); changed != nil {
		t.Fatalf("expected nil slice from nil watcher, got %v", changed)
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll(%s) error = %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}
