package expression

import (
	"fmt"
	"strconv"
	"strings"
)

var builtinNames = map[string]struct{}{
	"time": {}, "hunting": {}, "frame_analysis": {}, "stereo_active": {},
	"separation": {}, "convergence": {}, "raw_separation": {}, "eye_separation": {},
	"sli": {}, "cursor_showing": {}, "cursor_x": {}, "cursor_y": {},
	"cursor_screen_x": {}, "cursor_screen_y": {}, "cursor_window_x": {}, "cursor_window_y": {},
	"cursor_hotspot_x": {}, "cursor_hotspot_y": {},
	"rt_width": {}, "rt_height": {}, "res_width": {}, "res_height": {},
	"window_width": {}, "window_height": {}, "bb_width": {}, "bb_height": {},
	"vertex_count": {}, "index_count": {}, "instance_count": {},
	"first_vertex": {}, "first_index": {}, "first_instance": {},
	"thread_count_x": {}, "thread_count_y": {}, "thread_count_z": {},
	"indirect_offset": {}, "draw_type": {}, "effective_dpi": {},
}

// IsBuiltin reports whether name is a runtime value supplied by the host.
func IsBuiltin(name string) bool {
	_, ok := builtinNames[strings.ToLower(name)]
	return ok
}

// ParseParam recognises IniParams references such as "x", "y2" or "w15".
func ParseParam(word string) (idx, comp int, ok bool) {
	if word == "" {
		return 0, 0, false
	}
	comp = strings.IndexByte("xyzw", word[0])
	if comp < 0 {
		return 0, 0, false
	}
	if len(word) == 1 {
		return 0, comp, true
	}
	for i := 1; i < len(word); i++ {
		if !isDigit(word[i]) {
			return 0, 0, false
		}
	}
	n, err := strconv.Atoi(word[1:])
	if err != nil {
		return 0, 0, false
	}
	return n, comp, true
}

// rewrite turns operands into calls of the runtime accessor so the result
// is valid expr-lang source. Every variable, parameter and builtin becomes
// v(N) where N indexes the returned bindings.
func rewrite(text string, resolver Resolver) (string, []Binding, error) {
	var (
		b        strings.Builder
		bindings []Binding
	)
	bind := func(binding Binding) {
		fmt.Fprintf(&b, "v(%d)", len(bindings))
		bindings = append(bindings, binding)
	}

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == ' ' || c == '\t':
			b.WriteByte(c)
			i++
		case c == '$':
			j := scanVariable(text, i+1)
			name := text[i:j]
			if j == i+1 {
				return "", nil, fmt.Errorf("invalid variable reference at offset %d", i)
			}
			if resolver == nil {
				return "", nil, fmt.Errorf("%w: references %s", ErrNotStatic, name)
			}
			binding, err := resolver.ResolveVariable(name)
			if err != nil {
				return "", nil, err
			}
			bind(binding)
			i = j
		case isDigit(c) || (c == '.' && i+1 < len(text) && isDigit(text[i+1])):
			j := scanNumber(text, i)
			lit, err := numberLiteral(text[i:j])
			if err != nil {
				return "", nil, err
			}
			b.WriteString(lit)
			i = j
		case isIdentStart(c):
			j := i
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			word := text[i:j]
			i = j
			switch {
			case word == "true":
				b.WriteString("1")
			case word == "false":
				b.WriteString("0")
			case word == "inf" || word == "infinity":
				b.WriteString("(1.0 / 0)")
			case word == "nan":
				b.WriteString("(0.0 / 0)")
			case word == "and" || word == "or" || word == "not":
				b.WriteString(word)
			default:
				if idx, comp, ok := ParseParam(word); ok {
					if resolver == nil {
						return "", nil, fmt.Errorf("%w: references %s", ErrNotStatic, word)
					}
					bind(Binding{Kind: BindParam, Name: word, Slot: idx, Component: comp})
					continue
				}
				if _, ok := builtinNames[word]; ok {
					if resolver == nil {
						return "", nil, fmt.Errorf("%w: references %s", ErrNotStatic, word)
					}
					bind(Binding{Kind: BindBuiltin, Name: word})
					continue
				}
				return "", nil, fmt.Errorf("unknown identifier %q", word)
			}
		case strings.IndexByte("+-*/%()<>=!&|", c) >= 0:
			b.WriteByte(c)
			i++
		default:
			return "", nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	return b.String(), bindings, nil
}

// scanVariable returns the end of a $ reference starting after the '$'.
// Namespaced references carry path characters up to their last
// backslash: $\mods\a.ini\name.
func scanVariable(text string, i int) int {
	if i < len(text) && text[i] == '\\' {
		j := i
		last := i
		for j < len(text) && isPathPart(text[j]) {
			if text[j] == '\\' {
				last = j
			}
			j++
		}
		i = last + 1
	}
	for i < len(text) && isIdentPart(text[i]) {
		i++
	}
	return i
}

func scanNumber(text string, i int) int {
	if strings.HasPrefix(text[i:], "0x") || strings.HasPrefix(text[i:], "0X") {
		j := i + 2
		for j < len(text) && isHex(text[j]) {
			j++
		}
		return j
	}
	j := i
	for j < len(text) && (isDigit(text[j]) || text[j] == '.') {
		j++
	}
	if j < len(text) && (text[j] == 'e' || text[j] == 'E') {
		k := j + 1
		if k < len(text) && (text[k] == '+' || text[k] == '-') {
			k++
		}
		if k < len(text) && isDigit(text[k]) {
			for k < len(text) && isDigit(text[k]) {
				k++
			}
			j = k
		}
	}
	return j
}

func numberLiteral(word string) (string, error) {
	if strings.HasPrefix(word, "0x") || strings.HasPrefix(word, "0X") {
		v, err := strconv.ParseUint(word[2:], 16, 64)
		if err != nil {
			return "", fmt.Errorf("invalid hex literal %q", word)
		}
		return strconv.FormatUint(v, 10), nil
	}
	if _, err := strconv.ParseFloat(word, 64); err != nil {
		return "", fmt.Errorf("invalid number %q", word)
	}
	if strings.HasPrefix(word, ".") {
		return "0" + word, nil
	}
	if strings.HasSuffix(word, ".") {
		return word + "0", nil
	}
	return word, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isHex(c byte) bool        { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
func isPathPart(c byte) bool {
	return isIdentPart(c) || c == '\\' || c == '.' || c == '-' || c == '/'
}
