package overrides

import (
	"errors"
	"strconv"
	"strings"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/internal/diag"
	"github.com/timzifer/d3dxini/variables"
)

// parseConstants handles [Constants] in two passes. The first declares every
// global and drops the successful declaration lines, the second compiles what
// is left as an ordinary command list that runs after each load. Rejected
// declarations stay behind with their flag words stripped, so a redeclaration
// with an initialiser becomes an assignment.
func (b *builder) parseConstants() {
	sub := commandlist.NewSubList(constantsSection, commandlist.KindCommandList)
	b.reg.Constants = sub
	sec, ok := b.store.Section(constantsSection)
	if !ok {
		return
	}
	sec.RemoveEntries(b.declareGlobal)
	for i, e := range sec.Entries {
		sec.Entries[i] = stripGlobalFlags(e)
	}
	b.compile(sec, sub, nil)
}

func stripGlobalFlags(e config.Entry) config.Entry {
	if e.IsRaw() {
		if flags, rest := variables.ParseFlags(e.Raw); flags.Has(variables.FlagGlobal) {
			e.Raw = rest
		}
		return e
	}
	if flags, rest := variables.ParseFlags(e.Key); flags.Has(variables.FlagGlobal) {
		e.Key = rest
	}
	return e
}

// declareGlobal reports whether e declared a new global and can be dropped.
func (b *builder) declareGlobal(e config.Entry) bool {
	decl := e.Key
	if e.IsRaw() {
		decl = e.Raw
	}
	flags, name := variables.ParseFlags(strings.ToLower(decl))
	if !flags.Has(variables.FlagGlobal) {
		return false
	}

	if !variables.ValidName(name) {
		b.diag.Warnf(diag.CodeInvalidVariable, "[%s] illegal global variable name: %q", constantsSection, name)
		return false
	}

	var initial float32
	if e.KeyValue && strings.TrimSpace(e.Value) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 32)
		if err != nil {
			b.diag.Warnf(diag.CodeInvalidVariable, "[%s] floating point parse error: %s", constantsSection, e.Raw)
			return false
		}
		initial = float32(f)
	}

	v, err := b.vars.Declare(name, e.Namespace, flags, initial)
	if errors.Is(err, variables.ErrRedeclared) {
		b.diag.Warnf(diag.CodeRedeclaredVariable, "[%s] redeclaration of %s", constantsSection, v.Name)
		return false
	}
	if err != nil {
		b.diag.Warnf(diag.CodeInvalidVariable, "[%s] %v", constantsSection, err)
		return false
	}
	b.log.Debug().Str("variable", v.Name).Str("flags", v.Flags.String()).Float32("initial", initial).Msg("global declared")
	return true
}
