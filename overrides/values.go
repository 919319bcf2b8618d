package overrides

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/internal/diag"
)

// reader parses typed values out of a section, reporting invalid ones.
type reader struct {
	sec  *config.Section
	diag *diag.Collector
}

func (r reader) invalid(key, value string, err error) {
	r.diag.Warnf(diag.CodeInvalidValue, "[%s] invalid %s=%s: %v", r.sec.Name, key, value, err)
}

func (r reader) str(key string) (string, bool) {
	v, ok := r.sec.Get(key)
	return strings.TrimSpace(v), ok
}

func (r reader) integer(key string, def int) (int, bool) {
	v, ok := r.str(key)
	if !ok {
		return def, false
	}
	n, err := parseInt(v)
	if err != nil {
		r.invalid(key, v, err)
		return def, false
	}
	return n, true
}

func (r reader) float(key string, def float64) (float64, bool) {
	v, ok := r.str(key)
	if !ok {
		return def, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.invalid(key, v, err)
		return def, false
	}
	return f, true
}

func (r reader) boolean(key string, def bool) (bool, bool) {
	v, ok := r.str(key)
	if !ok {
		return def, false
	}
	b, err := parseBool(v)
	if err != nil {
		r.invalid(key, v, err)
		return def, false
	}
	return b, true
}

// hex parses a hexadecimal value with an optional 0x prefix.
func (r reader) hex(key string, def uint32) (uint32, bool) {
	v, ok := r.str(key)
	if !ok {
		return def, false
	}
	h, err := parseHash(v, 32)
	if err != nil {
		r.invalid(key, v, err)
		return def, false
	}
	return uint32(h), true
}

// enum parses key with table and returns -1 when absent or invalid.
func (r reader) enum(key string, table enumTable) int {
	v, ok := r.str(key)
	if !ok {
		return -1
	}
	n, err := table.parse(v)
	if err != nil {
		r.invalid(key, v, err)
		return -1
	}
	return n
}

func parseInt(text string) (int, error) {
	text = strings.TrimSpace(text)
	n, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", text)
	}
	return int(n), nil
}

func parseBool(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", text)
}

// parseHash parses a hexadecimal hash with an optional 0x prefix.
func parseHash(text string, bits int) (uint64, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimPrefix(text, "0x")
	if text == "" {
		return 0, fmt.Errorf("empty hash")
	}
	h, err := strconv.ParseUint(text, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %d bit hash %q", bits, text)
	}
	return h, nil
}

// enumTable maps case-insensitive names, optionally carrying prefix, to values.
type enumTable struct {
	prefix string
	names  map[string]int
}

func newEnum(prefix string, names map[string]int) enumTable {
	folded := make(map[string]int, len(names))
	for k, v := range names {
		folded[strings.ToLower(k)] = v
	}
	return enumTable{prefix: strings.ToLower(prefix), names: folded}
}

// sequence builds an enum whose values are the name positions plus first.
func sequence(prefix string, first int, names ...string) enumTable {
	m := make(map[string]int, len(names))
	for i, n := range names {
		if n != "" {
			m[n] = first + i
		}
	}
	return newEnum(prefix, m)
}

func (t enumTable) parse(text string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(text))
	if t.prefix != "" {
		key = strings.TrimPrefix(key, t.prefix)
	}
	if v, ok := t.names[key]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown value %q", text)
}

func (t enumTable) name(v int) string {
	best := ""
	for k, n := range t.names {
		if n == v && (best == "" || k < best) {
			best = k
		}
	}
	if best == "" {
		return strconv.Itoa(v)
	}
	return best
}
