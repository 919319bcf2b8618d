package overrides

import (
	"fmt"
	"os"
	"strings"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/internal/diag"
)

// StateOverride tells how a custom shader pipeline state is applied.
type StateOverride int

const (
	// StateInherit keeps the state bound by the game.
	StateInherit StateOverride = iota
	// StateReplace replaces the bound state.
	StateReplace
	// StateMerge changes only the listed fields of the bound state.
	StateMerge
)

// BlendOp is one "op src dst" triple.
type BlendOp struct {
	Op  int
	Src int
	Dst int
}

// RenderTargetBlend is the blend state of one render target.
type RenderTargetBlend struct {
	Enable    bool
	Color     BlendOp
	Alpha     BlendOp
	WriteMask uint32
}

// BlendState overrides the output merger blend state.
type BlendState struct {
	Override         StateOverride
	IndependentBlend bool
	AlphaToCoverage  bool
	Targets          [8]RenderTargetBlend
	Factor           [4]float32
	SampleMask       uint32
}

// StencilOp is one "func pass depth_fail fail" quadruple.
type StencilOp struct {
	Func      int
	Pass      int
	DepthFail int
	Fail      int
}

// DepthStencilState overrides the output merger depth stencil state.
type DepthStencilState struct {
	Override         StateOverride
	DepthEnable      bool
	DepthWriteMask   int
	DepthFunc        int
	StencilEnable    bool
	StencilReadMask  uint32
	StencilWriteMask uint32
	Front            StencilOp
	Back             StencilOp
	StencilRef       int
}

// RasterizerState overrides the rasterizer state.
type RasterizerState struct {
	Override              StateOverride
	Fill                  int
	Cull                  int
	FrontCounterClockwise bool
	DepthBias             int
	DepthBiasClamp        float64
	SlopeScaledDepthBias  float64
	DepthClip             bool
	Scissor               bool
	Multisample           bool
	AntialiasedLine       bool
}

// Shader stages a custom shader can bind.
var shaderStages = []string{"vs", "hs", "ds", "gs", "ps", "cs"}

// CustomShader is a [CustomShader*] or [BuiltInCustomShader*] section.
type CustomShader struct {
	*commandlist.SubList
	Namespace string

	// Shaders maps a stage (vs, ps, ...) to the resolved source file.
	Shaders               map[string]string
	CompileFlags          uint32
	Blend                 BlendState
	DepthStencil          DepthStencilState
	Rasterizer            RasterizerState
	Topology              int
	Sampler               int
	MaxExecutionsPerFrame int
	// Failed is set when a shader file could not be found. The command
	// lists of a failed shader stay empty.
	Failed bool
}

// Keys of custom shader sections that are not commands.
var customShaderKeys = func() []string {
	keys := append([]string{}, shaderStages...)
	keys = append(keys, "max_executions_per_frame", "flags",
		"blend", "alpha", "mask", "alpha_to_coverage", "sample_mask", "blend_state_merge",
		"depth_enable", "depth_write_mask", "depth_func",
		"stencil_enable", "stencil_read_mask", "stencil_write_mask",
		"stencil_front", "stencil_back", "stencil_ref", "depth_stencil_state_merge",
		"fill", "cull", "front", "depth_bias", "depth_bias_clamp",
		"slope_scaled_depth_bias", "depth_clip_enable", "scissor_enable",
		"multisample_enable", "antialiased_line_enable", "rasterizer_state_merge",
		"topology", "sampler")
	for i := 0; i < 8; i++ {
		keys = append(keys, fmt.Sprintf("blend[%d]", i), fmt.Sprintf("alpha[%d]", i), fmt.Sprintf("mask[%d]", i))
	}
	for i := 0; i < 4; i++ {
		keys = append(keys, fmt.Sprintf("blend_factor[%d]", i))
	}
	return keys
}()

func (b *builder) enumerateCustomShaders() {
	for _, prefix := range []string{"BuiltInCustomShader", "CustomShader"} {
		for _, sec := range b.store.WithPrefix(prefix) {
			b.reg.CustomShaders[key(sec.Name)] = &CustomShader{
				SubList:   commandlist.NewSubList(sec.Name, commandlist.KindCustomShader),
				Namespace: sec.Namespace,
				Shaders:   make(map[string]string),
				Topology:  -1,
				Sampler:   -1,
			}
		}
	}
}

func (b *builder) parseCustomShaders() {
	for _, prefix := range []string{"BuiltInCustomShader", "CustomShader"} {
		for _, sec := range b.store.WithPrefix(prefix) {
			b.parseCustomShader(sec, b.reg.CustomShaders[key(sec.Name)])
		}
	}
}

func (b *builder) parseCustomShader(sec *config.Section, cs *CustomShader) {
	r := b.reader(sec)
	if v, ok := r.str("flags"); ok {
		flags, err := compileFlags.ParseList(v)
		if err != nil {
			r.invalid("flags", v, err)
		}
		cs.CompileFlags = flags
	}
	for _, stage := range shaderStages {
		v, ok := r.str(stage)
		if !ok || v == "" {
			continue
		}
		path := b.cfg.ResolvePath(sec.Namespace, v)
		if _, err := os.Stat(path); err != nil {
			b.diag.Warnf(diag.CodeMissingFile, "[%s] %s=%s: %v", sec.Name, stage, v, err)
			cs.Failed = true
			continue
		}
		cs.Shaders[stage] = path
	}
	if cs.Failed {
		return
	}

	cs.Blend = parseBlendState(r)
	cs.DepthStencil = parseDepthStencilState(r)
	cs.Rasterizer = parseRasterizerState(r)
	cs.Topology = r.enum("topology", topologies)
	cs.Sampler = r.enum("sampler", samplerFilters)
	cs.MaxExecutionsPerFrame, _ = r.integer("max_executions_per_frame", 0)

	b.compile(sec, cs.SubList, customShaderKeys)
}

const colorWriteAll = 0xf

func parseBlendState(r reader) BlendState {
	st := BlendState{SampleMask: 0xffffffff}
	def := RenderTargetBlend{
		Color:     BlendOp{Op: 1, Src: 2, Dst: 1},
		Alpha:     BlendOp{Op: 1, Src: 2, Dst: 1},
		WriteMask: colorWriteAll,
	}
	if parseRenderTargetBlend(r, &def, "") {
		st.Override = StateReplace
	}
	for i := range st.Targets {
		st.Targets[i] = def
		if parseRenderTargetBlend(r, &st.Targets[i], fmt.Sprintf("[%d]", i)) {
			st.Override = StateReplace
			st.IndependentBlend = true
		}
	}
	if v, found := r.boolean("alpha_to_coverage", false); found {
		st.AlphaToCoverage = v
		st.Override = StateReplace
	}
	for i := range st.Factor {
		if v, found := r.float(fmt.Sprintf("blend_factor[%d]", i), 0); found {
			st.Factor[i] = float32(v)
			st.Override = StateReplace
		}
	}
	if v, found := r.hex("sample_mask", 0xffffffff); found {
		st.SampleMask = v
		st.Override = StateReplace
	}
	if merge, _ := r.boolean("blend_state_merge", false); merge {
		st.Override = StateMerge
	}
	return st
}

func parseRenderTargetBlend(r reader, rt *RenderTargetBlend, suffix string) bool {
	override := false
	if v, ok := r.str("blend" + suffix); ok {
		if strings.EqualFold(v, "disable") {
			rt.Enable = false
			return true
		}
		override = true
		if op, err := parseBlendOp(v); err != nil {
			r.invalid("blend"+suffix, v, err)
		} else {
			rt.Color = op
		}
	}
	if v, ok := r.str("alpha" + suffix); ok {
		override = true
		if op, err := parseBlendOp(v); err != nil {
			r.invalid("alpha"+suffix, v, err)
		} else {
			rt.Alpha = op
		}
	}
	if v, found := r.hex("mask"+suffix, colorWriteAll); found {
		override = true
		rt.WriteMask = v
	}
	if override {
		rt.Enable = true
	}
	return override
}

// parseBlendOp parses "op src dst".
func parseBlendOp(text string) (BlendOp, error) {
	f := strings.Fields(text)
	if len(f) != 3 {
		return BlendOp{}, fmt.Errorf("expected \"op src dst\", got %q", text)
	}
	var op BlendOp
	var err error
	if op.Op, err = blendOps.parse(f[0]); err != nil {
		return BlendOp{}, fmt.Errorf("blend operation: %w", err)
	}
	if op.Src, err = blendFactors.parse(f[1]); err != nil {
		return BlendOp{}, fmt.Errorf("source factor: %w", err)
	}
	if op.Dst, err = blendFactors.parse(f[2]); err != nil {
		return BlendOp{}, fmt.Errorf("destination factor: %w", err)
	}
	return op, nil
}

func parseDepthStencilState(r reader) DepthStencilState {
	keep := StencilOp{Func: 8, Pass: 1, DepthFail: 1, Fail: 1}
	st := DepthStencilState{
		DepthEnable:      true,
		DepthWriteMask:   1,
		DepthFunc:        2,
		StencilReadMask:  0xff,
		StencilWriteMask: 0xff,
		Front:            keep,
		Back:             keep,
	}
	touch := func(found bool) {
		if found {
			st.Override = StateReplace
		}
	}
	var found bool
	st.DepthEnable, found = r.boolean("depth_enable", true)
	touch(found)
	if v := r.enum("depth_write_mask", depthWriteMasks); v >= 0 {
		st.DepthWriteMask = v
		touch(true)
	}
	if v := r.enum("depth_func", comparisonFuncs); v >= 0 {
		st.DepthFunc = v
		touch(true)
	}
	st.StencilEnable, found = r.boolean("stencil_enable", false)
	touch(found)
	st.StencilReadMask, found = r.hex("stencil_read_mask", 0xff)
	touch(found)
	st.StencilWriteMask, found = r.hex("stencil_write_mask", 0xff)
	touch(found)
	for _, face := range []struct {
		key string
		dst *StencilOp
	}{{"stencil_front", &st.Front}, {"stencil_back", &st.Back}} {
		v, ok := r.str(face.key)
		if !ok {
			continue
		}
		touch(true)
		op, err := parseStencilOp(v)
		if err != nil {
			r.invalid(face.key, v, err)
			continue
		}
		*face.dst = op
	}
	st.StencilRef, found = r.integer("stencil_ref", 0)
	touch(found)
	if merge, _ := r.boolean("depth_stencil_state_merge", false); merge {
		st.Override = StateMerge
	}
	return st
}

// parseStencilOp parses "func pass depth_fail fail".
func parseStencilOp(text string) (StencilOp, error) {
	f := strings.Fields(text)
	if len(f) != 4 {
		return StencilOp{}, fmt.Errorf("expected \"func pass depth_fail fail\", got %q", text)
	}
	var op StencilOp
	var err error
	if op.Func, err = comparisonFuncs.parse(f[0]); err != nil {
		return StencilOp{}, fmt.Errorf("stencil function: %w", err)
	}
	for i, dst := range []*int{&op.Pass, &op.DepthFail, &op.Fail} {
		if *dst, err = stencilOps.parse(f[i+1]); err != nil {
			return StencilOp{}, fmt.Errorf("stencil operation: %w", err)
		}
	}
	return op, nil
}

func parseRasterizerState(r reader) RasterizerState {
	st := RasterizerState{Fill: 3, Cull: 3, DepthClip: true}
	touch := func(found bool) {
		if found {
			st.Override = StateReplace
		}
	}
	if v := r.enum("fill", fillModes); v >= 0 {
		st.Fill = v
		touch(true)
	}
	if v := r.enum("cull", cullModes); v >= 0 {
		st.Cull = v
		touch(true)
	}
	if v := r.enum("front", frontFaces); v >= 0 {
		st.FrontCounterClockwise = v == 1
		touch(true)
	}
	var found bool
	st.DepthBias, found = r.integer("depth_bias", 0)
	touch(found)
	st.DepthBiasClamp, found = r.float("depth_bias_clamp", 0)
	touch(found)
	st.SlopeScaledDepthBias, found = r.float("slope_scaled_depth_bias", 0)
	touch(found)
	st.DepthClip, found = r.boolean("depth_clip_enable", true)
	touch(found)
	st.Scissor, found = r.boolean("scissor_enable", false)
	touch(found)
	st.Multisample, found = r.boolean("multisample_enable", false)
	touch(found)
	st.AntialiasedLine, found = r.boolean("antialiased_line_enable", false)
	touch(found)
	if merge, _ := r.boolean("rasterizer_state_merge", false); merge {
		st.Override = StateMerge
	}
	return st
}

// TopologyName returns the name of a primitive topology value.
func TopologyName(v int) string {
	if v < 0 {
		return ""
	}
	return topologies.name(v)
}

// SamplerName returns the name of a sampler filter value.
func SamplerName(v int) string {
	if v < 0 {
		return ""
	}
	return samplerFilters.name(v)
}
