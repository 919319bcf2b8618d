package overrides

import (
	"fmt"
	"math"
	"strings"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/internal/diag"
)

// DuplicatePolicy is the allow_duplicate_hash setting of a ShaderOverride.
type DuplicatePolicy int

const (
	DuplicatesForbidden DuplicatePolicy = iota
	DuplicatesAllowed
	// DuplicatesOverrule accepts duplicates regardless of what the other
	// sections sharing the hash say.
	DuplicatesOverrule
)

func parseDuplicatePolicy(text string) (DuplicatePolicy, error) {
	if strings.EqualFold(strings.TrimSpace(text), "overrule") {
		return DuplicatesOverrule, nil
	}
	if b, err := parseBool(text); err == nil {
		if b {
			return DuplicatesAllowed, nil
		}
		return DuplicatesForbidden, nil
	}
	n, err := parseInt(text)
	if err != nil || n < 0 || n > 2 {
		return 0, fmt.Errorf("expected true, false or overrule, got %q", text)
	}
	return DuplicatePolicy(n), nil
}

// DepthFilter is the deprecated depth_filter option.
type DepthFilter int

const (
	DepthFilterNone DepthFilter = iota
	DepthFilterActive
	DepthFilterInactive
)

var depthFilters = sequence("", 0, "none", "depth_active", "depth_inactive")

func (d DepthFilter) String() string { return depthFilters.name(int(d)) }

// NoFilterIndex is the filter_index of sections that do not set one.
const NoFilterIndex = math.MaxFloat32

// ShaderOverride is the record for one shader hash. Every section with that
// hash compiles into the same command lists, in section order.
type ShaderOverride struct {
	*commandlist.SubList
	Hash uint64
	// Sections lists every contributing section; the first is the one
	// reported in duplicate warnings.
	Sections        []string
	AllowDuplicates DuplicatePolicy
	DepthFilter     DepthFilter
	Partner         uint64
	FilterIndex     float32
	Model           string
}

// FirstSection returns the section that created the record.
func (so *ShaderOverride) FirstSection() string {
	return so.Sections[0]
}

var shaderOverrideKeys = []string{
	"hash", "allow_duplicate_hash", "depth_filter", "partner", "model", "disable_scissor", "filter_index",
}

func (b *builder) parseShaderOverrides() {
	for _, sec := range b.store.WithPrefix("ShaderOverride") {
		b.parseShaderOverride(sec)
	}
}

func (b *builder) parseShaderOverride(sec *config.Section) {
	r := b.reader(sec)
	v, ok := r.str("hash")
	if !ok {
		b.diag.Warnf(diag.CodeMissingHash, "[%s] missing hash=", sec.Name)
		return
	}
	hash, err := parseHash(v, 64)
	if err != nil {
		b.diag.Warnf(diag.CodeMissingHash, "[%s] %v", sec.Name, err)
		return
	}

	so, duplicate := b.reg.Shaders[hash]
	if !duplicate {
		so = &ShaderOverride{
			SubList:         commandlist.NewSubList(sec.Name, commandlist.KindCommandList),
			Hash:            hash,
			AllowDuplicates: DuplicatesAllowed,
			FilterIndex:     NoFilterIndex,
		}
		b.reg.Shaders[hash] = so
	}
	so.Sections = append(so.Sections, sec.Name)
	b.checkShaderDuplicates(r, so, duplicate)

	if d := r.enum("depth_filter", depthFilters); d >= 0 {
		so.DepthFilter = DepthFilter(d)
	}
	if p, ok := r.str("partner"); ok {
		if h, err := parseHash(p, 64); err != nil {
			r.invalid("partner", p, err)
		} else {
			so.Partner = h
		}
	}
	if f, found := r.float("filter_index", NoFilterIndex); found {
		so.FilterIndex = float32(f)
	}
	if m, ok := r.str("model"); ok {
		so.Model = m
	}

	b.compiler.Compile(sec, so.Pre, so.Post, commandlist.CompileOptions{
		Whitelist: shaderOverrideKeys,
		Deferred:  duplicate,
	})
	so.Pre.Section, so.Post.Section = so.FirstSection(), so.FirstSection()

	if disable, found := r.boolean("disable_scissor", false); found {
		target := "builtincustomshaderenablescissorclipping"
		if disable {
			target = "builtincustomshaderdisablescissorclipping"
		}
		if err := b.compiler.CompileLine(so.Pre, "run", target, sec.Namespace); err != nil {
			b.diag.Warnf(diag.CodeMalformedCommand, "[%s] disable_scissor: %v", sec.Name, err)
		}
	}

	b.noticeDeprecated(sec, so)
}

// checkShaderDuplicates applies the allow_duplicate_hash rules. Overrule
// from either side wins; otherwise every section must opt in.
func (b *builder) checkShaderDuplicates(r reader, so *ShaderOverride, duplicate bool) {
	policy := DuplicatesForbidden
	if v, ok := r.str("allow_duplicate_hash"); ok {
		p, err := parseDuplicatePolicy(v)
		if err != nil {
			r.invalid("allow_duplicate_hash", v, err)
		} else {
			policy = p
		}
	}

	switch {
	case policy == DuplicatesOverrule || so.AllowDuplicates == DuplicatesOverrule:
		policy = DuplicatesOverrule
	case policy != DuplicatesForbidden && so.AllowDuplicates != DuplicatesForbidden:
		policy = DuplicatesAllowed
	default:
		policy = DuplicatesForbidden
	}

	if duplicate && policy == DuplicatesForbidden {
		b.diag.Warnf(diag.CodeDuplicateHash,
			"possible mod conflict: duplicate ShaderOverride hash=%016x [%s] [%s]; add allow_duplicate_hash=true or allow_duplicate_hash=overrule if this is intentional",
			so.Hash, so.FirstSection(), r.sec.Name)
	}
	so.AllowDuplicates = policy
}

func (b *builder) noticeDeprecated(sec *config.Section, so *ShaderOverride) {
	if so.Partner != 0 && (!so.Pre.Empty() || !so.Post.Empty()) {
		b.diag.Noticef(diag.CodeDeprecated,
			"[%s] combines the deprecated partner= option with a command list; use filter_index in the partner section instead", sec.Name)
	}
	if so.DepthFilter != DepthFilterNone {
		b.diag.Noticef(diag.CodeDeprecated,
			"[%s] uses the deprecated depth_filter option; consider texture filtering on oD instead", sec.Name)
	}
}
