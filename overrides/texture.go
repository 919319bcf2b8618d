package overrides

import (
	"sort"
	"strconv"
	"strings"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/fuzzy"
	"github.com/timzifer/d3dxini/internal/diag"
)

const maxIterations = 10

// DrawContext is the draw call a texture override is evaluated in.
type DrawContext struct {
	FirstVertex   uint32
	FirstIndex    uint32
	FirstInstance uint32
	VertexCount   uint32
	IndexCount    uint32
	InstanceCount uint32
}

// DrawMatch holds the optional draw call matchers of a texture override.
type DrawMatch struct {
	FirstVertex   *fuzzy.Expr
	FirstIndex    *fuzzy.Expr
	FirstInstance *fuzzy.Expr
	VertexCount   *fuzzy.Expr
	IndexCount    *fuzzy.Expr
	InstanceCount *fuzzy.Expr
}

// Matches reports whether every configured matcher accepts dc.
func (m DrawMatch) Matches(dc DrawContext) bool {
	check := func(e *fuzzy.Expr, v uint32) bool {
		return e == nil || e.Matches(v, fuzzy.Fields{})
	}
	return check(m.FirstVertex, dc.FirstVertex) &&
		check(m.FirstIndex, dc.FirstIndex) &&
		check(m.FirstInstance, dc.FirstInstance) &&
		check(m.VertexCount, dc.VertexCount) &&
		check(m.IndexCount, dc.IndexCount) &&
		check(m.InstanceCount, dc.InstanceCount)
}

func (m *DrawMatch) slot(k string) **fuzzy.Expr {
	switch k {
	case "match_first_vertex":
		return &m.FirstVertex
	case "match_first_index":
		return &m.FirstIndex
	case "match_first_instance":
		return &m.FirstInstance
	case "match_vertex_count":
		return &m.VertexCount
	case "match_index_count":
		return &m.IndexCount
	case "match_instance_count":
		return &m.InstanceCount
	}
	return nil
}

// TextureOverride is a [TextureOverride*] section. Hash entries are stored by
// value in their per-hash slice.
type TextureOverride struct {
	*commandlist.SubList
	Namespace string
	Hash      uint32

	Priority    int
	HasPriority bool

	StereoMode       int
	Format           int
	Width            int
	Height           int
	WidthMultiply    float32
	HeightMultiply   float32
	Iterations       []int
	FilterIndex      float32
	ExpandRegionCopy bool
	DenyCPURead      bool

	Draw         DrawMatch
	HasDrawMatch bool
}

// ResourceDesc describes a resource for fuzzy matching.
type ResourceDesc struct {
	Dimension      int
	Usage          int
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
	ByteWidth      uint32
	Stride         uint32
	Mips           uint32
	Format         uint32
	Width          uint32
	Height         uint32
	Depth          uint32
	Array          uint32
	MSAA           uint32
	MSAAQuality    uint32
	// ResWidth and ResHeight are the current swap chain size.
	ResWidth  uint32
	ResHeight uint32
}

// FuzzyTexture is a hash-less texture override selected by resource
// description.
type FuzzyTexture struct {
	*TextureOverride

	Dimension      *fuzzy.Expr
	Usage          *fuzzy.Expr
	BindFlags      *fuzzy.MaskedFlags
	CPUAccessFlags *fuzzy.MaskedFlags
	MiscFlags      *fuzzy.MaskedFlags
	ByteWidth      *fuzzy.Expr
	Stride         *fuzzy.Expr
	Mips           *fuzzy.Expr
	Format         *fuzzy.Expr
	Width          *fuzzy.Expr
	Height         *fuzzy.Expr
	Depth          *fuzzy.Expr
	Array          *fuzzy.Expr
	MSAA           *fuzzy.Expr
	MSAAQuality    *fuzzy.Expr
}

// Matches reports whether desc satisfies every configured matcher.
func (f *FuzzyTexture) Matches(desc ResourceDesc) bool {
	fields := fuzzy.Fields{
		Width:     desc.Width,
		Height:    desc.Height,
		Depth:     desc.Depth,
		Array:     desc.Array,
		ResWidth:  desc.ResWidth,
		ResHeight: desc.ResHeight,
	}
	num := func(e *fuzzy.Expr, v uint32) bool {
		return e == nil || e.Matches(v, fields)
	}
	flags := func(m *fuzzy.MaskedFlags, v uint32) bool {
		return m == nil || m.Matches(v)
	}
	return num(f.Dimension, uint32(desc.Dimension)) &&
		num(f.Usage, uint32(desc.Usage)) &&
		flags(f.BindFlags, desc.BindFlags) &&
		flags(f.CPUAccessFlags, desc.CPUAccessFlags) &&
		flags(f.MiscFlags, desc.MiscFlags) &&
		num(f.ByteWidth, desc.ByteWidth) &&
		num(f.Stride, desc.Stride) &&
		num(f.Mips, desc.Mips) &&
		num(f.Format, desc.Format) &&
		num(f.Width, desc.Width) &&
		num(f.Height, desc.Height) &&
		num(f.Depth, desc.Depth) &&
		num(f.Array, desc.Array) &&
		num(f.MSAA, desc.MSAA) &&
		num(f.MSAAQuality, desc.MSAAQuality)
}

// TextureTable holds the texture overrides of one configuration. It is
// populated and sorted once during Build.
type TextureTable struct {
	byHash map[uint32][]TextureOverride
	fuzzy  []*FuzzyTexture
}

func newTextureTable() *TextureTable {
	return &TextureTable{byHash: make(map[uint32][]TextureOverride)}
}

// Lookup returns the entries for hash in match order. The slice must not be
// modified.
func (t *TextureTable) Lookup(hash uint32) []TextureOverride {
	return t.byHash[hash]
}

// Select returns the first entry for hash whose draw matchers accept dc.
func (t *TextureTable) Select(hash uint32, dc DrawContext) (*TextureOverride, bool) {
	entries := t.byHash[hash]
	for i := range entries {
		if entries[i].Draw.Matches(dc) {
			return &entries[i], true
		}
	}
	return nil, false
}

// Match returns the fuzzy overrides accepting desc, in priority order.
func (t *TextureTable) Match(desc ResourceDesc) []*FuzzyTexture {
	var out []*FuzzyTexture
	for _, f := range t.fuzzy {
		if f.Matches(desc) {
			out = append(out, f)
		}
	}
	return out
}

// HashCount returns the number of distinct hashes.
func (t *TextureTable) HashCount() int { return len(t.byHash) }

// Len returns the number of hash entries.
func (t *TextureTable) Len() int {
	n := 0
	for _, entries := range t.byHash {
		n += len(entries)
	}
	return n
}

// Fuzzy returns the hash-less overrides.
func (t *TextureTable) Fuzzy() []*FuzzyTexture { return t.fuzzy }

// Hashes returns the registered hashes in ascending order.
func (t *TextureTable) Hashes() []uint32 {
	out := make([]uint32, 0, len(t.byHash))
	for h := range t.byHash {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var fuzzyTextureKeys = []string{
	"match_type", "match_usage", "match_bind_flags", "match_cpu_access_flags", "match_misc_flags",
	"match_byte_width", "match_stride", "match_mips", "match_format", "match_width", "match_height",
	"match_depth", "match_array", "match_msaa", "match_msaa_quality",
}

var drawMatchKeys = []string{
	"match_first_vertex", "match_first_index", "match_first_instance",
	"match_vertex_count", "match_index_count", "match_instance_count",
}

var textureOverrideKeys = append(append([]string{
	"hash", "stereomode", "format", "width", "height", "width_multiply", "height_multiply",
	"iteration", "filter_index", "expand_region_copy", "deny_cpu_read", "match_priority",
}, fuzzyTextureKeys...), drawMatchKeys...)

func (b *builder) parseTextureOverrides() {
	table := b.reg.Textures
	// first non-exempt section per hash, for duplicate warnings
	first := make(map[uint32]string)

	for _, sec := range b.store.WithPrefix("TextureOverride") {
		r := b.reader(sec)
		hashText, hasHash := r.str("hash")
		hasFuzzy := false
		for _, k := range fuzzyTextureKeys {
			if sec.Has(k) {
				hasFuzzy = true
				break
			}
		}

		if !hasHash {
			if !hasFuzzy {
				b.diag.Warnf(diag.CodeMissingHash, "[%s] missing hash= or valid match options", sec.Name)
				continue
			}
			tex := b.parseTextureCommon(sec)
			if f, ok := b.parseFuzzyTexture(sec, tex); ok {
				b.compiler.Compile(sec, tex.Pre, tex.Post, commandlist.CompileOptions{Whitelist: textureOverrideKeys})
				table.fuzzy = append(table.fuzzy, f)
			}
			continue
		}
		if hasFuzzy {
			b.diag.Warnf(diag.CodeFuzzyMatch, "[%s] cannot use hash= and match options together", sec.Name)
		}

		hash, err := parseHash(hashText, 32)
		if err != nil {
			b.diag.Warnf(diag.CodeMissingHash, "[%s] %v", sec.Name, err)
			continue
		}
		tex := b.parseTextureCommon(sec)
		tex.Hash = uint32(hash)
		b.compiler.Compile(sec, tex.Pre, tex.Post, commandlist.CompileOptions{Whitelist: textureOverrideKeys, Deferred: true})

		if !tex.HasDrawMatch && !tex.HasPriority {
			if prev, ok := first[tex.Hash]; ok {
				b.diag.Warnf(diag.CodeDuplicateHash,
					"possible mod conflict: duplicate TextureOverride hash=%08x [%s] [%s]; use match_priority or a draw call match if this is intentional",
					tex.Hash, prev, sec.Name)
			} else {
				first[tex.Hash] = sec.Name
			}
		}
		table.byHash[tex.Hash] = append(table.byHash[tex.Hash], *tex)
	}

	// Entries are only addressable once their slice is complete and sorted.
	for _, hash := range table.Hashes() {
		entries := table.byHash[hash]
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Priority != entries[j].Priority {
				return entries[i].Priority > entries[j].Priority
			}
			return key(entries[i].Section) < key(entries[j].Section)
		})
		for i := range entries {
			b.reg.Roster.Register(entries[i].Pre, entries[i].Post)
		}
	}
	sort.SliceStable(table.fuzzy, func(i, j int) bool {
		a, c := table.fuzzy[i], table.fuzzy[j]
		if a.Priority != c.Priority {
			return a.Priority > c.Priority
		}
		return key(a.Section) < key(c.Section)
	})
}

func (b *builder) parseTextureCommon(sec *config.Section) *TextureOverride {
	r := b.reader(sec)
	tex := &TextureOverride{
		SubList:        commandlist.NewSubList(sec.Name, commandlist.KindCommandList),
		Namespace:      sec.Namespace,
		WidthMultiply:  1,
		HeightMultiply: 1,
	}
	tex.Priority, tex.HasPriority = r.integer("match_priority", 0)
	tex.StereoMode, _ = r.integer("stereomode", -1)
	tex.Format = -1
	if v, ok := r.str("format"); ok {
		if f, err := ParseFormat(v); err != nil {
			r.invalid("format", v, err)
		} else {
			tex.Format = f
		}
	}
	tex.Width, _ = r.integer("width", -1)
	tex.Height, _ = r.integer("height", -1)
	wm, _ := r.float("width_multiply", 1)
	hm, _ := r.float("height_multiply", 1)
	tex.WidthMultiply, tex.HeightMultiply = float32(wm), float32(hm)
	if v, ok := r.str("iteration"); ok {
		tex.Iterations = parseIterations(v)
	}
	fi, _ := r.float("filter_index", NoFilterIndex)
	tex.FilterIndex = float32(fi)
	tex.ExpandRegionCopy, _ = r.boolean("expand_region_copy", false)
	tex.DenyCPURead, _ = r.boolean("deny_cpu_read", false)

	for _, k := range drawMatchKeys {
		v, ok := r.str(k)
		if !ok {
			continue
		}
		if e := b.fuzzyExpr(sec, k, v); e != nil {
			*tex.Draw.slot(k) = e
			tex.HasDrawMatch = true
		}
	}
	return tex
}

// parseIterations returns the iteration list with a leading 0. Parsing stops
// at the first value that is not positive.
func parseIterations(text string) []int {
	out := []int{0}
	for _, part := range strings.Split(text, ",") {
		if len(out) > maxIterations {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			break
		}
		out = append(out, n)
	}
	return out
}

func (b *builder) fuzzyExpr(sec *config.Section, k, v string) *fuzzy.Expr {
	e, warnings, err := fuzzy.Parse(v)
	for _, w := range warnings {
		b.diag.Warnf(diag.CodeFuzzyMatch, "[%s] %s=%s: %s", sec.Name, k, v, w)
	}
	if err != nil {
		b.diag.Warnf(diag.CodeFuzzyMatch, "[%s] invalid %s=%s: %v", sec.Name, k, v, err)
		return nil
	}
	return e
}

// Dimensions each fuzzy field can apply to.
const (
	maskBuffer   = 1 << DimensionBuffer
	maskTex1D    = 1 << DimensionTexture1D
	maskTex2D    = 1 << DimensionTexture2D
	maskTex3D    = 1 << DimensionTexture3D
	maskTextures = maskTex1D | maskTex2D | maskTex3D
	maskAll      = maskBuffer | maskTextures
)

func (b *builder) parseFuzzyTexture(sec *config.Section, tex *TextureOverride) (*FuzzyTexture, bool) {
	r := b.reader(sec)
	f := &FuzzyTexture{TextureOverride: tex}
	types := uint32(maskAll)

	if d := r.enum("match_type", dimensions); d >= 0 {
		f.Dimension = fuzzy.Literal(uint32(d))
		types = 1 << uint(d)
	}
	usage := 0
	if u := r.enum("match_usage", usages); u >= 0 {
		usage = u
	}
	f.Usage = fuzzy.Literal(uint32(usage))

	masked := []struct {
		key   string
		names fuzzy.FlagNames
		dst   **fuzzy.MaskedFlags
	}{
		{"match_bind_flags", fuzzy.BindFlagNames, &f.BindFlags},
		{"match_cpu_access_flags", fuzzy.CPUAccessFlagNames, &f.CPUAccessFlags},
		{"match_misc_flags", fuzzy.MiscFlagNames, &f.MiscFlags},
	}
	for _, m := range masked {
		v, ok := r.str(m.key)
		if !ok {
			continue
		}
		flags, err := fuzzy.ParseMaskedFlags(v, m.names)
		if err != nil {
			b.diag.Warnf(diag.CodeFuzzyMatch, "[%s] invalid %s=%s: %v", sec.Name, m.key, v, err)
			continue
		}
		*m.dst = &flags
	}

	if v, ok := r.str("match_format"); ok {
		if n, err := ParseFormat(v); err != nil {
			r.invalid("match_format", v, err)
		} else {
			f.Format = fuzzy.Literal(uint32(n))
			types &= maskTextures
		}
	}

	numeric := []struct {
		key  string
		mask uint32
		dst  **fuzzy.Expr
	}{
		{"match_byte_width", maskBuffer, &f.ByteWidth},
		{"match_stride", maskBuffer, &f.Stride},
		{"match_mips", maskTextures, &f.Mips},
		{"match_width", maskTextures, &f.Width},
		{"match_height", maskTex2D | maskTex3D, &f.Height},
		{"match_depth", maskTex3D, &f.Depth},
		{"match_array", maskTex1D | maskTex2D, &f.Array},
		{"match_msaa", maskTex2D, &f.MSAA},
		{"match_msaa_quality", maskTex2D, &f.MSAAQuality},
	}
	for _, n := range numeric {
		v, ok := r.str(n.key)
		if !ok {
			continue
		}
		if e := b.fuzzyExpr(sec, n.key, v); e != nil {
			*n.dst = e
			types &= n.mask
		}
	}

	if types == 0 {
		b.diag.Warnf(diag.CodeFuzzyMatch, "[%s] can never match any resources", sec.Name)
		return nil, false
	}
	return f, true
}

// MatchCount is the number of configured resource matchers, used to rank
// overlapping fuzzy overrides.
func (f *FuzzyTexture) MatchCount() int {
	n := 0
	for _, e := range []*fuzzy.Expr{f.Dimension, f.ByteWidth, f.Stride, f.Mips, f.Format, f.Width, f.Height, f.Depth, f.Array, f.MSAA, f.MSAAQuality} {
		if e != nil {
			n++
		}
	}
	for _, m := range []*fuzzy.MaskedFlags{f.BindFlags, f.CPUAccessFlags, f.MiscFlags} {
		if m != nil {
			n++
		}
	}
	return n
}
