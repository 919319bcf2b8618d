package overrides

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/fuzzy"
	"github.com/timzifer/d3dxini/internal/diag"
)

// Resource is a [Resource*] section. Dimensions left unset are -1. Empty
// sections are valid and act as named slots that copies can fill.
type Resource struct {
	Section           string
	Namespace         string
	Filename          string
	Type              ResourceType
	Mode              ResourceMode
	Format            int
	Width             int
	Height            int
	Depth             int
	Mips              int
	Array             int
	MSAA              int
	MSAAQuality       int
	ByteWidth         int
	Stride            int
	WidthMultiply     float64
	HeightMultiply    float64
	BindFlags         uint32
	MiscFlags         uint32
	MaxCopiesPerFrame int
	// Data is the initial content of a buffer resource.
	Data []byte
}

func (b *builder) parseResources() {
	for _, sec := range b.store.WithPrefix("Resource") {
		res := b.parseResource(sec)
		b.reg.Resources[key(sec.Name)] = res
	}
}

func (b *builder) parseResource(sec *config.Section) *Resource {
	r := b.reader(sec)
	res := &Resource{
		Section:        sec.Name,
		Namespace:      sec.Namespace,
		Format:         -1,
		WidthMultiply:  1,
		HeightMultiply: 1,
	}
	res.MaxCopiesPerFrame, _ = r.integer("max_copies_per_frame", 0)
	if name, ok := r.str("filename"); ok && name != "" {
		res.Filename = b.cfg.ResolvePath(sec.Namespace, name)
		if _, err := os.Stat(res.Filename); err != nil {
			b.diag.Warnf(diag.CodeMissingFile, "[%s] filename %s: %v", sec.Name, name, err)
		}
	}
	if t := r.enum("type", resourceTypes); t > 0 {
		res.Type = ResourceType(t)
	}
	if m := r.enum("mode", resourceModes); m >= 0 {
		res.Mode = ResourceMode(m)
	}
	if v, ok := r.str("format"); ok {
		f, err := ParseFormat(v)
		if err != nil {
			r.invalid("format", v, err)
		} else {
			res.Format = f
		}
	}
	for _, dim := range []struct {
		key string
		dst *int
	}{
		{"width", &res.Width}, {"height", &res.Height}, {"depth", &res.Depth},
		{"mips", &res.Mips}, {"array", &res.Array}, {"msaa", &res.MSAA},
		{"msaa_quality", &res.MSAAQuality}, {"byte_width", &res.ByteWidth}, {"stride", &res.Stride},
	} {
		*dim.dst, _ = r.integer(dim.key, -1)
	}
	res.WidthMultiply, _ = r.float("width_multiply", 1)
	res.HeightMultiply, _ = r.float("height_multiply", 1)
	if v, ok := r.str("bind_flags"); ok {
		flags, err := fuzzy.BindFlagNames.ParseList(v)
		if err != nil {
			r.invalid("bind_flags", v, err)
		}
		res.BindFlags = flags
	}
	if v, ok := r.str("misc_flags"); ok {
		flags, err := fuzzy.MiscFlagNames.ParseList(v)
		if err != nil {
			r.invalid("misc_flags", v, err)
		}
		res.MiscFlags = flags
	}
	if v, ok := r.str("data"); ok {
		data, err := res.initialData(v)
		if err != nil {
			r.invalid("data", v, err)
		}
		res.Data = data
	}
	return res
}

type dataEncoding struct {
	size int
	kind byte // f float, u unsigned, s signed, n unorm, m snorm
}

// Per component encodings of the formats that accept initial data.
var dataEncodings = map[string]dataEncoding{}

func init() {
	add := func(size int, kind byte, names ...string) {
		for _, n := range names {
			dataEncodings[strings.ToLower(n)] = dataEncoding{size: size, kind: kind}
		}
	}
	add(4, 'f', "R32G32B32A32_FLOAT", "R32G32B32_FLOAT", "R32G32_FLOAT", "D32_FLOAT", "R32_FLOAT")
	add(4, 'u', "R32G32B32A32_UINT", "R32G32B32_UINT", "R32G32_UINT", "R32_UINT")
	add(4, 's', "R32G32B32A32_SINT", "R32G32B32_SINT", "R32G32_SINT", "R32_SINT")
	add(2, 'n', "R16G16B16A16_UNORM", "R16G16_UNORM", "D16_UNORM", "R16_UNORM")
	add(2, 'm', "R16G16B16A16_SNORM", "R16G16_SNORM", "R16_SNORM")
	add(2, 'u', "R16G16B16A16_UINT", "R16G16_UINT", "R16_UINT")
	add(2, 's', "R16G16B16A16_SINT", "R16G16_SINT", "R16_SINT")
	add(1, 'n', "R8G8B8A8_UNORM", "R8G8B8A8_UNORM_SRGB", "R8G8_UNORM", "R8_UNORM", "A8_UNORM",
		"R8G8_B8G8_UNORM", "G8R8_G8B8_UNORM", "B8G8R8A8_UNORM", "B8G8R8A8_UNORM_SRGB")
	add(1, 'm', "R8G8B8A8_SNORM", "R8G8_SNORM", "R8_SNORM")
	add(1, 'u', "R8G8B8A8_UINT", "R8G8_UINT", "R8_UINT")
	add(1, 's', "R8G8B8A8_SINT", "R8G8_SINT", "R8_SINT")
}

// initialData encodes data= for buffer resources. The value is either a
// quoted string or a list of numbers, optionally led by the format to encode
// them with.
func (res *Resource) initialData(text string) ([]byte, error) {
	switch res.Type {
	case ResourceBuffer, ResourceStructuredBuffer, ResourceRawBuffer:
	default:
		return nil, fmt.Errorf("initial data is only supported on buffers")
	}
	if res.Filename != "" {
		return nil, fmt.Errorf("initial data and filename cannot be used together")
	}
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return []byte(text[1 : len(text)-1]), nil
	}

	tokens := strings.Fields(text)
	format := FormatName(res.Format)
	if len(tokens) > 0 {
		_, numErr := strconv.Atoi(tokens[0])
		if f, err := ParseFormat(tokens[0]); err == nil && numErr != nil {
			format, tokens = FormatName(f), tokens[1:]
		}
	}
	enc, ok := dataEncodings[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s for initial data", format)
	}

	var buf bytes.Buffer
	for _, tok := range tokens {
		if err := enc.write(&buf, tok); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (enc dataEncoding) write(buf *bytes.Buffer, tok string) error {
	var bits uint64
	switch enc.kind {
	case 'f':
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return fmt.Errorf("parse %q: %w", tok, err)
		}
		bits = uint64(math.Float32bits(float32(f)))
	case 'u':
		u, err := strconv.ParseUint(tok, 0, enc.size*8)
		if err != nil {
			return fmt.Errorf("parse %q: %w", tok, err)
		}
		bits = u
	case 's':
		s, err := strconv.ParseInt(tok, 0, enc.size*8)
		if err != nil {
			return fmt.Errorf("parse %q: %w", tok, err)
		}
		bits = uint64(s)
	case 'n', 'm':
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("parse %q: %w", tok, err)
		}
		bits = normalised(f, enc.size, enc.kind == 'm')
	}
	switch enc.size {
	case 1:
		buf.WriteByte(byte(bits))
	case 2:
		_ = binary.Write(buf, binary.LittleEndian, uint16(bits))
	case 4:
		_ = binary.Write(buf, binary.LittleEndian, uint32(bits))
	}
	return nil
}

// normalised converts f to a UNORM or SNORM integer of size bytes.
func normalised(f float64, size int, signed bool) uint64 {
	if signed {
		limit := float64(int64(1)<<(size*8-1) - 1)
		f = math.Max(-1, math.Min(1, f))
		return uint64(int64(math.Round(f * limit)))
	}
	limit := float64(uint64(1)<<(size*8) - 1)
	f = math.Max(0, math.Min(1, f))
	return uint64(math.Round(f * limit))
}
