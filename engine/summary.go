package engine

import (
	"fmt"
	"time"

	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/overrides"
	"github.com/timzifer/d3dxini/variables"
)

// Summary is a serialisable report of the active configuration.
type Summary struct {
	Root      string            `yaml:"root"`
	UserFile  string            `yaml:"user_file,omitempty"`
	Files     []string          `yaml:"files"`
	LoadedAt  time.Time         `yaml:"loaded_at"`
	Duration  string            `yaml:"duration"`
	Counts    overrides.Counts  `yaml:"counts"`
	Warnings  []WarningSummary  `yaml:"warnings,omitempty"`
	Persisted map[string]string `yaml:"persisted,omitempty"`
	Dirty     bool              `yaml:"dirty"`
	Shaders   []string          `yaml:"shader_overrides,omitempty"`
	Textures  []string          `yaml:"texture_overrides,omitempty"`
	Profile   []string          `yaml:"profile,omitempty"`
}

// WarningSummary is one recorded warning.
type WarningSummary struct {
	Code    string `yaml:"code"`
	Message string `yaml:"message"`
}

// Summary describes the current configuration.
func (e *Engine) Summary() (Summary, error) {
	var out Summary
	err := e.Do(func(c *Configuration) error {
		out = summarize(c)
		return nil
	})
	return out, err
}

func summarize(c *Configuration) Summary {
	s := Summary{
		Root:     c.Config.Root,
		UserFile: c.Config.UserFile,
		Files:    config.SourceFiles(c.Config),
		LoadedAt: c.LoadedAt,
		Duration: c.Duration.String(),
		Counts:   c.Registries.Counts(),
		Dirty:    c.Vars.Dirty() != 0,
		Profile:  c.Registries.Profile,
	}
	for _, w := range c.Warnings {
		s.Warnings = append(s.Warnings, WarningSummary{Code: w.Code, Message: w.Message})
	}
	for _, v := range c.Vars.Persisted() {
		if s.Persisted == nil {
			s.Persisted = make(map[string]string)
		}
		s.Persisted[v.Name] = variables.FormatValue(v.Value)
	}
	for _, hash := range c.Registries.ShaderHashes() {
		so, _ := c.Registries.Shader(hash)
		s.Shaders = append(s.Shaders, fmt.Sprintf("%016x %s", hash, so.Section))
	}
	for _, hash := range c.Registries.Textures.Hashes() {
		for _, to := range c.Registries.Textures.Lookup(hash) {
			s.Textures = append(s.Textures, fmt.Sprintf("%08x %s", hash, to.Section))
		}
	}
	return s
}
