package variables

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// NamespaceSeparator separates the namespace from the name in $\namespace\name.
const NamespaceSeparator = `\`

// Flags qualify a variable declaration.
type Flags uint8

const (
	// FlagGlobal marks a variable declared in [Constants].
	FlagGlobal Flags = 1 << iota
	// FlagPersist marks a global whose value is written to the user file.
	FlagPersist
)

var flagNames = []struct {
	name string
	flag Flags
}{
	{"global", FlagGlobal},
	{"persist", FlagPersist},
}

// Has reports whether all bits of flag are set.
func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseFlags consumes leading flag words from text and returns the remainder.
func ParseFlags(text string) (Flags, string) {
	var flags Flags
	rest := strings.TrimSpace(text)
	for rest != "" {
		word, tail, _ := strings.Cut(rest, " ")
		matched := false
		for _, fn := range flagNames {
			if strings.EqualFold(word, fn.name) {
				flags |= fn.flag
				matched = true
				break
			}
		}
		if !matched {
			break
		}
		rest = strings.TrimSpace(tail)
	}
	return flags, rest
}

var (
	// ErrInvalidName is returned for names that are not identifiers.
	ErrInvalidName = errors.New("illegal variable name")
	// ErrRedeclared is returned when a global is declared twice.
	ErrRedeclared = errors.New("redeclaration")
)

// ValidName reports whether name (with an optional leading '$') is an identifier.
func ValidName(name string) bool {
	name = strings.TrimPrefix(name, "$")
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// NamespacedName returns the lowercase canonical name of a variable declared
// as name inside namespace.
func NamespacedName(name, namespace string) string {
	name = strings.ToLower(strings.TrimPrefix(name, "$"))
	if namespace == "" {
		return "$" + name
	}
	return "$" + NamespaceSeparator + strings.ToLower(namespace) + NamespaceSeparator + name
}

// SplitNamespaced splits an explicitly namespaced reference $\namespace\name.
func SplitNamespaced(ref string) (namespace, name string, ok bool) {
	if !strings.HasPrefix(ref, "$"+NamespaceSeparator) {
		return "", strings.TrimPrefix(ref, "$"), false
	}
	body := ref[2:]
	idx := strings.LastIndex(body, NamespaceSeparator)
	if idx <= 0 || idx == len(body)-1 {
		return "", "", false
	}
	return body[:idx], body[idx+1:], true
}

// Variable is a global command list variable.
type Variable struct {
	Name      string
	Namespace string
	Flags     Flags
	Initial   float32
	Value     float32
}

// DirtyFlags track why the user file must be rewritten.
type DirtyFlags uint8

const (
	// DirtyValues is set when a persisted value changed at runtime.
	DirtyValues DirtyFlags = 1 << iota
	// DirtyUserConfig is set when the user file contains stale lines.
	DirtyUserConfig
)

// Table owns the global variables and IniParams of one configuration.
type Table struct {
	mu      sync.Mutex
	vars    map[string]*Variable
	order   []*Variable
	persist []*Variable
	params  [][4]float32
	dirty   DirtyFlags
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{vars: make(map[string]*Variable)}
}

// Declare registers a global. The first declaration wins; a redeclaration
// returns the existing variable together with ErrRedeclared.
func (t *Table) Declare(name, namespace string, flags Flags, initial float32) (*Variable, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	canonical := NamespacedName(name, namespace)
	if existing, ok := t.vars[canonical]; ok {
		return existing, fmt.Errorf("%w of %s", ErrRedeclared, canonical)
	}
	v := &Variable{Name: canonical, Namespace: namespace, Flags: flags | FlagGlobal, Initial: initial, Value: initial}
	t.vars[canonical] = v
	t.order = append(t.order, v)
	if flags.Has(FlagPersist) {
		t.persist = append(t.persist, v)
	}
	return v, nil
}

// Lookup resolves a variable reference made from namespace. Explicitly
// namespaced references are looked up verbatim; plain names are tried in the
// caller's namespace first, then globally.
func (t *Table) Lookup(ref, namespace string) (*Variable, bool) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ns, name, ok := SplitNamespaced(ref); ok {
		v, found := t.vars[NamespacedName(name, ns)]
		return v, found
	}
	if !strings.HasPrefix(ref, "$") {
		ref = "$" + ref
	}
	if namespace != "" {
		if v, ok := t.vars[NamespacedName(ref, namespace)]; ok {
			return v, true
		}
	}
	v, ok := t.vars[ref]
	return v, ok
}

// All returns the globals in declaration order.
func (t *Table) All() []*Variable {
	return append([]*Variable(nil), t.order...)
}

// Persisted returns the persisted globals sorted by name.
func (t *Table) Persisted() []*Variable {
	out := append([]*Variable(nil), t.persist...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Set assigns a value at runtime and marks the table dirty when a persisted
// value changes.
func (t *Table) Set(v *Variable, value float32) {
	if v == nil {
		return
	}
	if v.Flags.Has(FlagPersist) && v.Value != value {
		t.MarkDirty(DirtyValues)
	}
	v.Value = value
}

// Param returns component comp (0..3 for x..w) of IniParam idx.
func (t *Table) Param(idx, comp int) float32 {
	if idx < 0 || idx >= len(t.params) || comp < 0 || comp > 3 {
		return 0
	}
	return t.params[idx][comp]
}

// SetParam assigns component comp of IniParam idx, growing the array as needed.
func (t *Table) SetParam(idx, comp int, value float32) {
	if idx < 0 || comp < 0 || comp > 3 {
		return
	}
	t.EnsureParam(idx)
	t.params[idx][comp] = value
}

// EnsureParam grows the IniParams array so idx is addressable.
func (t *Table) EnsureParam(idx int) {
	for len(t.params) <= idx {
		t.params = append(t.params, [4]float32{})
	}
}

// ParamCount returns the number of allocated IniParams.
func (t *Table) ParamCount() int { return len(t.params) }

// MarkDirty sets dirty bits.
func (t *Table) MarkDirty(flags DirtyFlags) {
	t.mu.Lock()
	t.dirty |= flags
	t.mu.Unlock()
}

// ClearDirty clears dirty bits.
func (t *Table) ClearDirty(flags DirtyFlags) {
	t.mu.Lock()
	t.dirty &^= flags
	t.mu.Unlock()
}

// Dirty returns the current dirty bits.
func (t *Table) Dirty() DirtyFlags {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}
