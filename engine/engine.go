// Package engine owns the configuration lifecycle: it loads and compiles a
// configuration into a fresh Configuration, swaps it in under a single lock,
// runs [Constants], persists user values and hot reloads on file changes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/internal/diag"
	"github.com/timzifer/d3dxini/internal/logging"
	"github.com/timzifer/d3dxini/internal/reload"
	"github.com/timzifer/d3dxini/overrides"
	"github.com/timzifer/d3dxini/telemetry"
	"github.com/timzifer/d3dxini/variables"
)

// ReloadFunc reloads the configuration from disk.
type ReloadFunc func(ctx context.Context) error

// Option configures the engine.
type Option func(*settings) error

type settings struct {
	registerReload func(ReloadFunc)
	logger         zerolog.Logger
	customLogger   bool
	telemetry      telemetry.Collector
	notifier       diag.Notifier
	executor       commandlist.Executor
	userFile       string
	hotReload      bool
	pollInterval   time.Duration
}

// Configuration is everything compiled from one load. A new Configuration is
// built on every reload; the previous one is dropped as a whole.
type Configuration struct {
	Config     *config.Config
	Vars       *variables.Table
	Registries *overrides.Registries
	Warnings   []diag.Warning
	LoadedAt   time.Time
	Duration   time.Duration
}

// Engine serialises reloads and command list execution behind one lock.
type Engine struct {
	mu sync.Mutex

	path     string
	userFile string

	collector telemetry.Collector
	notifier  diag.Notifier
	executor  commandlist.Executor

	customLogger  bool
	logger        zerolog.Logger
	loggerCleanup func()

	hotReload    bool
	pollInterval time.Duration
	watcher      *reload.Watcher
	running      bool

	current  *Configuration
	triggers map[string]int
	excluded map[string]bool
}

// New loads the configuration rooted at path and returns a ready engine.
func New(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	cfg := settings{
		logger:       log.Logger,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("engine requires a configuration path")
	}
	if cfg.telemetry == nil {
		cfg.telemetry = telemetry.Noop()
	}
	if cfg.notifier == nil {
		cfg.notifier = diag.NoopNotifier()
	}
	if cfg.executor == nil {
		cfg.executor = commandlist.NopExecutor{}
	}

	e := &Engine{
		path:         path,
		userFile:     cfg.userFile,
		collector:    cfg.telemetry,
		notifier:     cfg.notifier,
		executor:     cfg.executor,
		customLogger: cfg.customLogger,
		logger:       cfg.logger,
		hotReload:    cfg.hotReload,
		pollInterval: cfg.pollInterval,
		triggers:     make(map[string]int),
		excluded:     make(map[string]bool),
	}

	if err := e.Reload(ctx); err != nil {
		return nil, err
	}

	if cfg.registerReload != nil {
		cfg.registerReload(e.Reload)
	}
	return e, nil
}

// Logger returns the logger configured by the current [Logging] section.
func (e *Engine) Logger() zerolog.Logger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logger
}

// Reload saves dirty persisted values, then rebuilds every registry from disk.
// The old configuration stays active when the root file cannot be read.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloadLocked(ctx, false)
}

// WipeAndReload deletes the user override file, discarding every persisted
// value, and reloads.
func (e *Engine) WipeAndReload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloadLocked(ctx, true)
}

func (e *Engine) reloadLocked(ctx context.Context, wipe bool) error {
	start := time.Now()

	if e.current != nil && !wipe {
		if _, err := e.saveLocked(false); err != nil {
			e.logger.Error().Err(err).Msg("failed to save persisted values before reload")
		}
	}
	if wipe && e.current != nil && e.current.Config.UserFile != "" {
		if err := os.Remove(e.current.Config.UserFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.logger.Error().Err(err).Str("file", e.current.Config.UserFile).Msg("failed to remove user config")
		}
	}

	collector := diag.NewCollector(e.logger)
	loadOpts := []config.LoadOption{config.WithDiagnostics(collector)}
	if e.userFile != "" {
		loadOpts = append(loadOpts, config.WithUserFile(e.userFile))
	}
	cfg, err := config.Load(e.path, loadOpts...)
	if err != nil {
		e.collector.IncReload(telemetry.ResultError)
		return fmt.Errorf("reload %s: %w", e.path, err)
	}
	e.applyLogging(cfg, collector)

	vars := variables.NewTable()
	reg := overrides.Build(cfg, vars, overrides.WithDiagnostics(collector))
	next := &Configuration{
		Config:     cfg,
		Vars:       vars,
		Registries: reg,
	}

	e.current = next
	clear(e.triggers)
	clear(e.excluded)

	state := e.stateLocked()
	for _, list := range []*commandlist.CommandList{reg.Constants.Pre, reg.Constants.Post} {
		if err := list.Run(ctx, state); err != nil {
			collector.Warnf(diag.CodeRuntime, "[Constants] %v", err)
		}
	}
	vars.ClearDirty(variables.DirtyValues)

	if e.watcher == nil {
		e.watcher = reload.NewWatcher(cfg)
	} else {
		e.watcher.Update(cfg)
	}

	next.Warnings = collector.Warnings()
	next.LoadedAt = time.Now()
	next.Duration = next.LoadedAt.Sub(start)

	collector.Flush(e.notifier)
	e.observe(next)

	e.logger.Info().
		Str("root", cfg.Root).
		Int("files", len(cfg.Store.Files())).
		Int("warnings", len(next.Warnings)).
		Dur("duration", next.Duration).
		Msg("configuration loaded")
	return nil
}

func (e *Engine) applyLogging(cfg *config.Config, collector *diag.Collector) {
	if e.customLogger {
		return
	}
	logger, cleanup, err := logging.Setup(cfg.Settings.Logging)
	if err != nil {
		collector.Warnf(diag.CodeLogging, "[Logging] %v", err)
		return
	}
	if e.loggerCleanup != nil {
		e.loggerCleanup()
	}
	e.logger = logger
	e.loggerCleanup = cleanup
}

func (e *Engine) observe(c *Configuration) {
	e.collector.IncReload(telemetry.ResultOK)
	e.collector.ObserveReloadDuration(c.Duration.Seconds())
	e.collector.SetWarnings(len(c.Warnings))
	counts := c.Registries.Counts()
	for name, size := range map[string]int{
		"resources":               counts.Resources,
		"presets":                 counts.Presets,
		"keys":                    counts.Keys,
		"custom_shaders":          counts.CustomShaders,
		"command_lists":           counts.CommandLists,
		"shader_overrides":        counts.ShaderOverrides,
		"shader_regex":            counts.ShaderRegex,
		"texture_overrides":       counts.TextureEntries,
		"fuzzy_texture_overrides": counts.FuzzyTextures,
		"variables":               counts.Variables,
	} {
		e.collector.SetRegistrySize(name, size)
	}
}

// Save writes the persisted values to the user file when they changed, or
// unconditionally when force is set. It reports whether the file was written.
func (e *Engine) Save(force bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked(force)
}

func (e *Engine) saveLocked(force bool) (bool, error) {
	if e.current == nil || e.current.Config.UserFile == "" {
		return false, nil
	}
	path := e.current.Config.UserFile
	saved, err := e.current.Vars.Save(path, force)
	if err != nil {
		return false, fmt.Errorf("save %s: %w", path, err)
	}
	if saved {
		e.watcher.Touch(path)
		e.logger.Info().Str("file", path).Int("variables", len(e.current.Vars.Persisted())).Msg("persisted values saved")
	}
	return saved, nil
}

// Current returns the active configuration. The registries must only be used
// through Do while the engine may reload concurrently.
func (e *Engine) Current() *Configuration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Do runs fn under the engine lock.
func (e *Engine) Do(fn func(*Configuration) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return errors.New("engine not initialized")
	}
	return fn(e.current)
}

// Execute runs fn under the engine lock with a command list state bound to
// the current variables and host executor.
func (e *Engine) Execute(ctx context.Context, fn func(*Configuration, *commandlist.State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return errors.New("engine not initialized")
	}
	return fn(e.current, e.stateLocked())
}

// RunHook runs one phase of a hook section such as [Present].
func (e *Engine) RunHook(ctx context.Context, name string, phase commandlist.Phase) error {
	return e.Execute(ctx, func(c *Configuration, state *commandlist.State) error {
		hook := c.Registries.Hook(name)
		if hook == nil {
			return fmt.Errorf("unknown hook %q", name)
		}
		return hook.List(phase).Run(ctx, state)
	})
}

func (e *Engine) stateLocked() *commandlist.State {
	return &commandlist.State{
		Vars:     e.current.Vars,
		Executor: presetExecutor{Executor: e.executor, engine: e},
	}
}

// Run polls the source files while hot reload is enabled and reloads when
// any of them changes. Dirty persisted values are saved on every poll and
// once more when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return errors.New("engine not initialized")
	}
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.running = true
	interval := e.pollInterval
	hot := e.hotReload
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	var ticker *time.Ticker
	if hot {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			if _, err := e.Save(false); err != nil {
				logger := e.Logger()
				logger.Error().Err(err).Msg("failed to save persisted values")
			}
			return ctx.Err()
		case <-tickChannel(ticker):
			e.poll(ctx)
		}
	}
}

func (e *Engine) poll(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	changes := e.watcher.Check()
	if len(changes) == 0 {
		if _, err := e.saveLocked(false); err != nil {
			e.logger.Error().Err(err).Msg("failed to save persisted values")
		}
		return
	}
	for _, file := range changes {
		e.collector.IncHotReload(filepath.Base(file))
	}
	e.logger.Info().Strs("files", changes).Msg("configuration changed, reloading")
	if err := e.reloadLocked(ctx, false); err != nil {
		e.logger.Error().Err(err).Msg("failed to reload configuration")
		e.watcher.Update(e.current.Config)
	}
}

// Close releases the logging backends.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loggerCleanup != nil {
		e.loggerCleanup()
		e.loggerCleanup = nil
	}
}

func tickChannel(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
