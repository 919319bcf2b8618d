package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/internal/diag"
	"github.com/timzifer/d3dxini/telemetry"
)

// WithLogger provides a custom logger instance for the engine. The [Logging]
// section of the configuration is ignored when a logger is supplied.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		cfg.customLogger = true
		return nil
	}
}

// WithTelemetry overrides the telemetry collector used by the engine.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.telemetry = collector
		return nil
	}
}

// WithNotifier sets the notifier signalled once per reload that produced warnings.
func WithNotifier(notifier diag.Notifier) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.notifier = notifier
		return nil
	}
}

// WithExecutor installs the host executor command lists run against.
func WithExecutor(executor commandlist.Executor) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.executor = executor
		return nil
	}
}

// WithUserFile overrides the name or path of the user override file.
func WithUserFile(name string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.userFile = strings.TrimSpace(name)
		return nil
	}
}

// WithRegisterReload hands the engine's reload function to register, for
// instance to bind it to a signal.
func WithRegisterReload(register func(ReloadFunc)) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.registerReload = register
		return nil
	}
}

// WithHotReload enables polling the source files every interval while Run is
// active.
func WithHotReload(interval time.Duration) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if interval <= 0 {
			return fmt.Errorf("hot reload interval must be positive, got %s", interval)
		}
		cfg.hotReload = true
		cfg.pollInterval = interval
		return nil
	}
}
