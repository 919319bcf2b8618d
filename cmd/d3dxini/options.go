package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timzifer/d3dxini/config"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "500ms" or "2s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Options is the optional YAML file read by the CLI.
type Options struct {
	Config       string          `yaml:"config"`
	UserFile     string          `yaml:"user_file,omitempty"`
	HotReload    *bool           `yaml:"hot_reload,omitempty"`
	PollInterval Duration        `yaml:"poll_interval,omitempty"`
	Metrics      MetricsOptions  `yaml:"metrics,omitempty"`
	Logging      *LoggingOptions `yaml:"logging,omitempty"`
}

// MetricsOptions configures the Prometheus endpoint of the watch command.
type MetricsOptions struct {
	Listen string `yaml:"listen,omitempty"`
}

// LoggingOptions replaces the [Logging] section of the configuration.
type LoggingOptions struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

func defaultOptions() Options {
	return Options{Config: "d3dx.ini"}
}

// loadOptions reads path when set. A missing file is only an error when the
// path was given explicitly.
func loadOptions(path string, explicit bool) (Options, error) {
	opts := defaultOptions()
	path = strings.TrimSpace(path)
	if path == "" {
		return opts, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return opts, nil
		}
		return opts, fmt.Errorf("read options: %w", err)
	}
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("unmarshal options: %w", err)
	}
	if strings.TrimSpace(opts.Config) == "" {
		opts.Config = defaultOptions().Config
	}
	return opts, nil
}

// HotReloadEnabled defaults to true.
func (o Options) HotReloadEnabled() bool {
	return o.HotReload == nil || *o.HotReload
}

// Interval returns the polling interval, one second unless configured.
func (o Options) Interval() time.Duration {
	if o.PollInterval.Duration <= 0 {
		return time.Second
	}
	return o.PollInterval.Duration
}

// LoggingSettings converts the logging override for internal/logging.
func (o Options) LoggingSettings() (config.LoggingSettings, bool) {
	if o.Logging == nil {
		return config.LoggingSettings{}, false
	}
	return config.LoggingSettings{Level: o.Logging.Level, Format: o.Logging.Format}, true
}
