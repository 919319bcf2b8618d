package config

import (
	"strings"

	"gopkg.in/ini.v1"

	"github.com/timzifer/d3dxini/internal/diag"
)

// Settings holds the singleton settings sections shared by the whole include tree.
type Settings struct {
	Logging   LoggingSettings
	System    SystemSettings
	Device    DeviceSettings
	Stereo    StereoSettings
	Rendering RenderingSettings
	Hunting   HuntingSettings
}

// LoggingSettings configures the engine logger.
type LoggingSettings struct {
	Level      string   `ini:"level"`
	Format     string   `ini:"format"`
	Debug      bool     `ini:"debug"`
	Calls      bool     `ini:"calls"`
	Input      bool     `ini:"input"`
	Unbuffered bool     `ini:"unbuffered"`
	LokiURL    string   `ini:"loki_url"`
	LokiLabels []string `ini:"loki_labels" delim:","`
}

// LokiSettings describes the optional Loki push target.
type LokiSettings struct {
	Enabled bool
	URL     string
	Labels  map[string]string
}

// Loki returns the Loki push settings derived from loki_url and loki_labels.
func (l LoggingSettings) Loki() LokiSettings {
	out := LokiSettings{URL: strings.TrimSpace(l.LokiURL), Labels: make(map[string]string)}
	out.Enabled = out.URL != ""
	for _, pair := range l.LokiLabels {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" {
			out.Labels[k] = v
		}
	}
	return out
}

// EffectiveLevel returns the configured level, promoting debug=1 to "debug".
func (l LoggingSettings) EffectiveLevel() string {
	if l.Debug && l.Level == "" {
		return "debug"
	}
	return l.Level
}

// SystemSettings mirrors the [System] section.
type SystemSettings struct {
	Proxy                 string `ini:"proxy_d3d11"`
	LoadLibraryRedirect   int    `ini:"load_library_redirect"`
	CheckForegroundWindow bool   `ini:"check_foreground_window"`
	SkipEarlyIncludesLoad bool   `ini:"skip_early_includes_load"`
}

// DeviceSettings mirrors the [Device] section.
type DeviceSettings struct {
	Width              int  `ini:"width"`
	Height             int  `ini:"height"`
	RefreshRate        int  `ini:"refresh_rate"`
	FullScreen         bool `ini:"full_screen"`
	HideCursor         bool `ini:"hide_cursor"`
	UpscalingHotkeyOff bool `ini:"upscaling_hotkey_off"`
}

// StereoSettings mirrors the [Stereo] section.
type StereoSettings struct {
	AutomaticMode      bool `ini:"automatic_mode"`
	UnlockSeparation   bool `ini:"unlock_separation"`
	UnlockConvergence  bool `ini:"unlock_convergence"`
	SurfaceCreateMode  int  `ini:"surface_createmode"`
	SurfaceSquareMode  int  `ini:"surface_square_createmode"`
	ForceNoNvAPI       bool `ini:"force_no_nvapi"`
	CreateProfile      int  `ini:"create_profile"`
	StereoDisableCheck bool `ini:"stereo_disable_check"`
}

// RenderingSettings mirrors the [Rendering] section.
type RenderingSettings struct {
	OverrideDirectory string `ini:"override_directory"`
	CacheDirectory    string `ini:"cache_directory"`
	CacheShaders      bool   `ini:"cache_shaders"`
	ExportHLSL        int    `ini:"export_hlsl"`
	ExportFixed       bool   `ini:"export_fixed"`
	ExportShaders     bool   `ini:"export_shaders"`
	StereoParams      int    `ini:"stereo_params"`
	IniParams         int    `ini:"ini_params"`
	FixSVPosition     bool   `ini:"fix_sv_position"`
}

// HuntingSettings mirrors the [Hunting] section.
type HuntingSettings struct {
	Hunting            int     `ini:"hunting"`
	ReloadConfig       string  `ini:"reload_config"`
	WipeUserConfig     string  `ini:"wipe_user_config"`
	MonitorPerformance string  `ini:"monitor_performance"`
	TuneStep           float64 `ini:"tune_step"`
	VerboseOverlay     bool    `ini:"verbose_overlay"`
}

func decodeSettings(store *Store, collector *diag.Collector) Settings {
	var settings Settings
	targets := []struct {
		name string
		dst  interface{}
	}{
		{"Logging", &settings.Logging},
		{"System", &settings.System},
		{"Device", &settings.Device},
		{"Stereo", &settings.Stereo},
		{"Rendering", &settings.Rendering},
		{"Hunting", &settings.Hunting},
	}

	file := ini.Empty(ini.LoadOptions{Insensitive: true})
	for _, target := range targets {
		sec, ok := store.Section(target.name)
		if !ok {
			continue
		}
		iniSec, err := file.NewSection(target.name)
		if err != nil {
			collector.Warnf(diag.CodeInvalidValue, "[%s] %v", target.name, err)
			continue
		}
		for _, e := range sec.Entries {
			if !e.KeyValue || e.Key == "" {
				continue
			}
			if _, err := iniSec.NewKey(e.Key, e.Value); err != nil {
				collector.Warnf(diag.CodeInvalidValue, "[%s] %s: %v", target.name, e.Key, err)
			}
		}
		if err := iniSec.StrictMapTo(target.dst); err != nil {
			collector.Warnf(diag.CodeInvalidValue, "[%s] %v", target.name, err)
		}
	}
	return settings
}
