// Package overrides builds the hash indexed override tables and the named
// sections they refer to out of a loaded configuration.
package overrides

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/variables"
)

// Hook names for the frame and clear command lists.
const (
	HookPresent       = "Present"
	HookClearRTV      = "ClearRenderTargetView"
	HookClearDSV      = "ClearDepthStencilView"
	HookClearUAVUint  = "ClearUnorderedAccessViewUint"
	HookClearUAVFloat = "ClearUnorderedAccessViewFloat"
)

const constantsSection = "Constants"

// HookSections lists the hook sections in the order they are compiled.
var HookSections = []string{HookPresent, HookClearRTV, HookClearDSV, HookClearUAVUint, HookClearUAVFloat}

// Registries is everything compiled from one configuration load. It is built
// once and never mutated afterwards, except for variable values.
type Registries struct {
	Vars   *variables.Table
	Roster *commandlist.Roster

	// Constants runs once after every load.
	Constants *commandlist.SubList

	Resources     map[string]*Resource
	Presets       map[string]*Preset
	Keys          []*KeyBinding
	CustomShaders map[string]*CustomShader
	CommandLists  map[string]*commandlist.SubList
	Shaders       map[uint64]*ShaderOverride
	ShaderRegex   *ShaderRegexSet
	Textures      *TextureTable
	Hooks         map[string]*commandlist.SubList
	Profile       []string
}

func newRegistries(vars *variables.Table) *Registries {
	return &Registries{
		Vars:          vars,
		Roster:        commandlist.NewRoster(),
		Resources:     make(map[string]*Resource),
		Presets:       make(map[string]*Preset),
		CustomShaders: make(map[string]*CustomShader),
		CommandLists:  make(map[string]*commandlist.SubList),
		Shaders:       make(map[uint64]*ShaderOverride),
		ShaderRegex:   &ShaderRegexSet{},
		Textures:      newTextureTable(),
		Hooks:         make(map[string]*commandlist.SubList),
	}
}

var folder = cases.Fold()

func key(name string) string {
	return folder.String(strings.TrimSpace(name))
}

// candidates returns the lookup keys for a section reference made from
// namespace: the namespaced form first, then the global one.
func candidates(name, namespace string) []string {
	if ns, ok := config.NamespacedSection(name, namespace); ok {
		return []string{key(ns), key(name)}
	}
	return []string{key(name)}
}

func lookup[T any](m map[string]T, name, namespace string) (T, bool) {
	for _, k := range candidates(name, namespace) {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// SubList resolves a run= target.
func (r *Registries) SubList(name, namespace string) (*commandlist.SubList, bool) {
	if cs, ok := lookup(r.CustomShaders, name, namespace); ok {
		return cs.SubList, true
	}
	return lookup(r.CommandLists, name, namespace)
}

// Resource resolves a resource reference to its section name.
func (r *Registries) Resource(name, namespace string) (string, bool) {
	res, ok := lookup(r.Resources, name, namespace)
	if !ok {
		return "", false
	}
	return res.Section, true
}

// Preset resolves a preset reference to its section name.
func (r *Registries) Preset(name, namespace string) (string, bool) {
	p, ok := lookup(r.Presets, name, namespace)
	if !ok {
		return "", false
	}
	return p.Section, true
}

// LookupResource returns the resource declared by section.
func (r *Registries) LookupResource(section string) (*Resource, bool) {
	res, ok := r.Resources[key(section)]
	return res, ok
}

// LookupPreset returns the preset declared by section.
func (r *Registries) LookupPreset(section string) (*Preset, bool) {
	p, ok := r.Presets[key(section)]
	return p, ok
}

// Shader returns the ShaderOverride registered for hash.
func (r *Registries) Shader(hash uint64) (*ShaderOverride, bool) {
	so, ok := r.Shaders[hash]
	return so, ok
}

// Hook returns the command lists of a hook section.
func (r *Registries) Hook(name string) *commandlist.SubList {
	return r.Hooks[key(name)]
}

// Counts summarises the registry sizes.
type Counts struct {
	Resources       int `yaml:"resources"`
	Presets         int `yaml:"presets"`
	Keys            int `yaml:"keys"`
	CustomShaders   int `yaml:"custom_shaders"`
	CommandLists    int `yaml:"command_lists"`
	ShaderOverrides int `yaml:"shader_overrides"`
	ShaderRegex     int `yaml:"shader_regex"`
	TextureHashes   int `yaml:"texture_hashes"`
	TextureEntries  int `yaml:"texture_overrides"`
	FuzzyTextures   int `yaml:"fuzzy_texture_overrides"`
	Variables       int `yaml:"variables"`
	Persisted       int `yaml:"persisted_variables"`
	Lists           int `yaml:"registered_lists"`
	Ops             int `yaml:"ops"`
}

// Counts returns the size of every registry.
func (r *Registries) Counts() Counts {
	return Counts{
		Resources:       len(r.Resources),
		Presets:         len(r.Presets),
		Keys:            len(r.Keys),
		CustomShaders:   len(r.CustomShaders),
		CommandLists:    len(r.CommandLists),
		ShaderOverrides: len(r.Shaders),
		ShaderRegex:     len(r.ShaderRegex.Groups),
		TextureHashes:   r.Textures.HashCount(),
		TextureEntries:  r.Textures.Len(),
		FuzzyTextures:   len(r.Textures.Fuzzy()),
		Variables:       len(r.Vars.All()),
		Persisted:       len(r.Vars.Persisted()),
		Lists:           r.Roster.Len(),
		Ops:             r.Roster.OpCount(),
	}
}

// ShaderHashes returns the registered shader hashes in ascending order.
func (r *Registries) ShaderHashes() []uint64 {
	out := make([]uint64, 0, len(r.Shaders))
	for h := range r.Shaders {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
