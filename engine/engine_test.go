package engine

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/internal/diag"
	"github.com/timzifer/d3dxini/telemetry"
	"github.com/timzifer/d3dxini/variables"
)

type recordingCollector struct {
	mu         sync.Mutex
	reloads    map[string]int
	hotReloads map[string]int
	warnings   int
	sizes      map[string]int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		reloads:    make(map[string]int),
		hotReloads: make(map[string]int),
		sizes:      make(map[string]int),
	}
}

func (r *recordingCollector) IncReload(result string) {
	r.mu.Lock()
	r.reloads[result]++
	r.mu.Unlock()
}

func (r *recordingCollector) IncHotReload(file string) {
	r.mu.Lock()
	r.hotReloads[file]++
	r.mu.Unlock()
}

func (r *recordingCollector) ObserveReloadDuration(float64) {}

func (r *recordingCollector) SetWarnings(count int) {
	r.mu.Lock()
	r.warnings = count
	r.mu.Unlock()
}

func (r *recordingCollector) SetRegistrySize(registry string, size int) {
	r.mu.Lock()
	r.sizes[registry] = size
	r.mu.Unlock()
}

func writeConfig(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func newEngine(t *testing.T, root string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	e, err := New(context.Background(), root, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func global(t *testing.T, c *Configuration, name string) float32 {
	t.Helper()
	v, ok := c.Vars.Lookup(name, "")
	require.True(t, ok, "variable %s not declared", name)
	return v.Value
}

const constantsIni = `[Constants]
global $x
global persist $y = 3.5
$x = 2
`

func TestNewRequiresPath(t *testing.T) {
	_, err := New(context.Background(), "  ")
	require.Error(t, err)
}

func TestWithHotReloadRejectsNonPositiveInterval(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", "[Present]\n")
	_, err := New(context.Background(), root, WithHotReload(0))
	require.Error(t, err)
}

func TestReloadRunsConstantsOnce(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)

	e := newEngine(t, root)
	c := e.Current()
	require.Equal(t, float32(2), global(t, c, "$x"))
	require.Equal(t, float32(3.5), global(t, c, "$y"))
	require.Zero(t, c.Vars.Dirty(), "loading must not mark the user file dirty")
}

func TestSaveAndReloadRoundTripsPersistedValues(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	e := newEngine(t, root)

	saved, err := e.Save(false)
	require.NoError(t, err)
	require.False(t, saved, "nothing changed yet")

	require.NoError(t, e.Do(func(c *Configuration) error {
		v, _ := c.Vars.Lookup("$y", "")
		c.Vars.Set(v, 0.1)
		v, _ = c.Vars.Lookup("$x", "")
		c.Vars.Set(v, 9)
		return nil
	}))

	saved, err = e.Save(false)
	require.NoError(t, err)
	require.True(t, saved)

	data, err := os.ReadFile(filepath.Join(dir, config.DefaultUserFile))
	require.NoError(t, err)
	require.Contains(t, string(data), "AUTOMATICALLY GENERATED FILE - DO NOT EDIT")
	require.Contains(t, string(data), "$y = 0.1")
	require.NotContains(t, string(data), "$x")

	require.NoError(t, e.Reload(context.Background()))
	c := e.Current()
	require.Equal(t, float32(0.1), global(t, c, "$y"))
	require.Equal(t, float32(2), global(t, c, "$x"))
	require.Zero(t, c.Vars.Dirty())
}

func TestReloadSavesDirtyValuesFirst(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	e := newEngine(t, root)

	require.NoError(t, e.Do(func(c *Configuration) error {
		v, _ := c.Vars.Lookup("$y", "")
		c.Vars.Set(v, 42)
		return nil
	}))
	require.NoError(t, e.Reload(context.Background()))
	require.Equal(t, float32(42), global(t, e.Current(), "$y"))
}

func TestWipeAndReloadDiscardsUserFile(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	writeConfig(t, dir, config.DefaultUserFile, "[Constants]\n$y = 8\n")
	e := newEngine(t, root)
	require.Equal(t, float32(8), global(t, e.Current(), "$y"))

	require.NoError(t, e.WipeAndReload(context.Background()))
	require.Equal(t, float32(3.5), global(t, e.Current(), "$y"))
	_, err := os.Stat(filepath.Join(dir, config.DefaultUserFile))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCustomUserFile(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	e := newEngine(t, root, WithUserFile("saved.ini"))

	_, err := e.Save(true)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "saved.ini"))
	require.NoError(t, err)
}

func TestFailedReloadKeepsConfiguration(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	collector := newRecordingCollector()
	e := newEngine(t, root, WithTelemetry(collector))
	before := e.Current()

	require.NoError(t, os.Remove(root))
	require.Error(t, e.Reload(context.Background()))
	require.Same(t, before, e.Current())
	require.Equal(t, 1, collector.reloads[telemetry.ResultOK])
	require.Equal(t, 1, collector.reloads[telemetry.ResultError])
}

func TestReloadNotifiesOncePerReload(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", "[Bogus]\nx = 1\n[AlsoBogus]\n")
	var notified []int
	collector := newRecordingCollector()
	e := newEngine(t, root,
		WithNotifier(diag.NotifierFunc(func(n int) { notified = append(notified, n) })),
		WithTelemetry(collector),
	)
	require.Equal(t, []int{2}, notified)
	require.Len(t, e.Current().Warnings, 2)
	require.Equal(t, 2, collector.warnings)

	writeConfig(t, dir, "d3dx.ini", "[Present]\n")
	require.NoError(t, e.Reload(context.Background()))
	require.Equal(t, []int{2}, notified, "clean reload must stay silent")
	require.Equal(t, 0, collector.warnings)
}

func TestReloadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", `[ShaderOverrideA]
hash = 0123456789abcdef
x = 1
[TextureOverrideB]
hash = 0xdeadbeef
match_priority = 1
run = CommandListC
[CommandListC]
y = 2
`)
	e := newEngine(t, root)
	first, err := e.Summary()
	require.NoError(t, err)
	require.NoError(t, e.Reload(context.Background()))
	second, err := e.Summary()
	require.NoError(t, err)

	require.Equal(t, first.Counts, second.Counts)
	require.Equal(t, first.Shaders, second.Shaders)
	require.Equal(t, first.Textures, second.Textures)
	require.Equal(t, []string{"0123456789abcdef ShaderOverrideA"}, first.Shaders)
	require.Equal(t, []string{"deadbeef TextureOverrideB"}, first.Textures)
}

func TestPollReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	collector := newRecordingCollector()
	e := newEngine(t, root, WithTelemetry(collector))
	before := e.Current()

	e.poll(context.Background())
	require.Same(t, before, e.Current(), "no change, no reload")

	writeConfig(t, dir, "d3dx.ini", constantsIni+"global $z = 5\n")
	e.poll(context.Background())
	after := e.Current()
	require.NotSame(t, before, after)
	require.Equal(t, float32(5), global(t, after, "$z"))
	require.Equal(t, 1, collector.hotReloads["d3dx.ini"])
}

func TestPollSavesDirtyValuesWithoutReloading(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	e := newEngine(t, root)
	before := e.Current()

	require.NoError(t, e.Do(func(c *Configuration) error {
		v, _ := c.Vars.Lookup("$y", "")
		c.Vars.Set(v, 6)
		return nil
	}))
	e.poll(context.Background())
	require.Same(t, before, e.Current(), "own save must not trigger a reload")
	_, err := os.Stat(filepath.Join(dir, config.DefaultUserFile))
	require.NoError(t, err)

	e.poll(context.Background())
	require.Same(t, before, e.Current())
}

func TestRunStopsOnCancelAndSaves(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	e := newEngine(t, root, WithHotReload(10*time.Millisecond))

	require.NoError(t, e.Do(func(c *Configuration) error {
		v, _ := c.Vars.Lookup("$y", "")
		c.Vars.Set(v, 11)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := e.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	data, err := os.ReadFile(filepath.Join(dir, config.DefaultUserFile))
	require.NoError(t, err)
	require.Contains(t, string(data), "$y = 11")
}

func TestRegisterReload(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni)
	var reload ReloadFunc
	e := newEngine(t, root, WithRegisterReload(func(fn ReloadFunc) { reload = fn }))
	require.NotNil(t, reload)
	before := e.Current()
	require.NoError(t, reload(context.Background()))
	require.NotSame(t, before, e.Current())
}

type recordingExecutor struct {
	commandlist.NopExecutor
	general []string
}

func (r *recordingExecutor) General(_ context.Context, op *commandlist.GeneralOp) error {
	r.general = append(r.general, op.String())
	return nil
}

func TestPresetTriggersApplyAtEndOfFrame(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", `[Constants]
global $mode = 0
global $other = 0
[PresetNight]
$mode = 1
[PresetDay]
$other = 1
[PresetTwice]
$other = 2
unique_triggers_required = 2
[Present]
preset = Night
preset = Day
exclude_preset = Day
preset = Twice
handling = skip
`)
	exec := &recordingExecutor{}
	e := newEngine(t, root, WithExecutor(exec))

	require.NoError(t, e.RunHook(context.Background(), "Present", commandlist.Pre))
	require.Equal(t, []string{"handling = skip"}, exec.general)

	activated, err := e.EndFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"PresetNight"}, activated)
	c := e.Current()
	require.Equal(t, float32(1), global(t, c, "$mode"))
	require.Equal(t, float32(0), global(t, c, "$other"))

	activated, err = e.EndFrame(context.Background())
	require.NoError(t, err)
	require.Empty(t, activated, "triggers are consumed per frame")
}

func TestReloadPersistsNonFiniteValues(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", `[Constants]
global persist $y = 1
[Present]
$y = 1 / 0
`)
	e := newEngine(t, root)

	require.NoError(t, e.RunHook(context.Background(), "Present", commandlist.Pre))
	require.True(t, math.IsInf(float64(global(t, e.Current(), "$y")), 1))

	require.NoError(t, e.Reload(context.Background()))
	data, err := os.ReadFile(filepath.Join(dir, config.DefaultUserFile))
	require.NoError(t, err)
	require.Contains(t, string(data), "$y = +Inf")
	require.True(t, math.IsInf(float64(global(t, e.Current(), "$y")), 1))
	require.Empty(t, e.Current().Warnings)
}

func TestRunHookUnknown(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", "[Present]\n")
	e := newEngine(t, root)
	require.Error(t, e.RunHook(context.Background(), "NoSuchHook", commandlist.Pre))
}

func TestSummaryMarshalsToYAML(t *testing.T) {
	dir := t.TempDir()
	root := writeConfig(t, dir, "d3dx.ini", constantsIni+"[Profile]\nsome raw line\n")
	e := newEngine(t, root)
	summary, err := e.Summary()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"$y": variables.FormatValue(3.5)}, summary.Persisted)
	require.Equal(t, []string{"some raw line"}, summary.Profile)

	var buf bytes.Buffer
	require.NoError(t, yaml.NewEncoder(&buf).Encode(summary))
	require.Contains(t, buf.String(), "persisted_variables: 1")
	require.Contains(t, buf.String(), "$y: \"3.5\"")
}
