package fuzzy

import (
	"fmt"
	"strconv"
	"strings"
)

// FlagNames maps lowercase flag names to bit values.
type FlagNames map[string]uint32

// Resource bind flags.
var BindFlagNames = FlagNames{
	"vertex_buffer":    0x1,
	"index_buffer":     0x2,
	"constant_buffer":  0x4,
	"shader_resource":  0x8,
	"stream_output":    0x10,
	"render_target":    0x20,
	"depth_stencil":    0x40,
	"unordered_access": 0x80,
	"decoder":          0x200,
	"video_encoder":    0x400,
}

// CPU access flags.
var CPUAccessFlagNames = FlagNames{
	"write": 0x10000,
	"read":  0x20000,
}

// Resource misc flags.
var MiscFlagNames = FlagNames{
	"generate_mips":                   0x1,
	"shared":                          0x2,
	"texturecube":                     0x4,
	"drawindirect_args":               0x10,
	"buffer_allow_raw_views":          0x20,
	"buffer_structured":               0x40,
	"resource_clamp":                  0x80,
	"shared_keyedmutex":               0x100,
	"gdi_compatible":                  0x200,
	"shared_nthandle":                 0x800,
	"restricted_content":              0x1000,
	"restrict_shared_resource":        0x2000,
	"restrict_shared_resource_driver": 0x4000,
	"guarded":                         0x8000,
	"tile_pool":                       0x20000,
	"tiled":                           0x40000,
	"hw_protected":                    0x80000,
}

// Lookup returns the bit for name.
func (n FlagNames) Lookup(name string) (uint32, bool) {
	v, ok := n[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// ParseList parses a space separated list of flag names into a bit set.
func (n FlagNames) ParseList(text string) (uint32, error) {
	var out uint32
	for _, word := range strings.Fields(text) {
		v, ok := n.Lookup(word)
		if !ok {
			return 0, fmt.Errorf("invalid flag %s", word)
		}
		out |= v
	}
	return out, nil
}

// MaskedFlags matches a bit field after masking it.
type MaskedFlags struct {
	Value uint32
	Mask  uint32
}

// Matches reports whether flags&Mask equals Value.
func (m MaskedFlags) Matches(flags uint32) bool {
	return flags&m.Mask == m.Value
}

// ParseMaskedFlags parses "0xVAL[/0xMASK]" or a list of flag names where a
// leading '+' requires and '-' forbids a flag. Without any +/- prefix the
// listed flags must match exactly.
func ParseMaskedFlags(text string, names FlagNames) (MaskedFlags, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "0" {
		return MaskedFlags{Value: 0, Mask: 0xffffffff}, nil
	}
	if strings.HasPrefix(strings.ToLower(text), "0x") {
		valText, maskText, hasMask := strings.Cut(text, "/")
		val, err := parseHex(valText)
		if err != nil {
			return MaskedFlags{}, err
		}
		mask := uint32(0xffffffff)
		if hasMask {
			if mask, err = parseHex(maskText); err != nil {
				return MaskedFlags{}, err
			}
		}
		return MaskedFlags{Value: val, Mask: mask}, nil
	}

	var out MaskedFlags
	useMask := false
	for _, word := range strings.Fields(text) {
		set := true
		switch word[0] {
		case '+':
			word, useMask = word[1:], true
		case '-':
			word, useMask, set = word[1:], true, false
		}
		bit, ok := names.Lookup(word)
		if !ok || bit == 0 {
			return MaskedFlags{}, fmt.Errorf("invalid flag %s", word)
		}
		if out.Mask&bit == bit {
			return MaskedFlags{}, fmt.Errorf("duplicate flag %s", word)
		}
		out.Mask |= bit
		if set {
			out.Value |= bit
		}
	}
	if !useMask {
		out.Mask = 0xffffffff
	}
	return out, nil
}

func parseHex(text string) (uint32, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if !strings.HasPrefix(text, "0x") {
		return 0, fmt.Errorf("expected hex value, got %q", text)
	}
	v, err := strconv.ParseUint(text[2:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", text, err)
	}
	return uint32(v), nil
}
