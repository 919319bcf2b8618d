package commandlist

import (
	"fmt"
	"strings"

	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/expression"
	"github.com/timzifer/d3dxini/internal/diag"
	"github.com/timzifer/d3dxini/variables"
)

// Environment resolves names referenced by commands. Implementations try the
// section namespaced into namespace first and fall back to the global name.
type Environment interface {
	SubList(name, namespace string) (*SubList, bool)
	Resource(name, namespace string) (string, bool)
	Preset(name, namespace string) (string, bool)
}

// Compiler turns command list sections into CommandLists.
type Compiler struct {
	vars   *variables.Table
	env    Environment
	roster *Roster
	diag   *diag.Collector
	isUser func(config.Entry) bool

	userNoticed bool
}

// Option customises a Compiler.
type Option func(*Compiler)

// WithEnvironment sets the resolver for run=, resource and preset references.
func WithEnvironment(env Environment) Option {
	return func(c *Compiler) { c.env = env }
}

// WithRoster registers compiled lists with roster.
func WithRoster(roster *Roster) Option {
	return func(c *Compiler) { c.roster = roster }
}

// WithDiagnostics routes compile warnings into collector.
func WithDiagnostics(collector *diag.Collector) Option {
	return func(c *Compiler) { c.diag = collector }
}

// WithUserEntries identifies entries read from the user override file.
func WithUserEntries(isUser func(config.Entry) bool) Option {
	return func(c *Compiler) { c.isUser = isUser }
}

// NewCompiler creates a compiler declaring locals and resolving globals in vars.
func NewCompiler(vars *variables.Table, opts ...Option) *Compiler {
	c := &Compiler{vars: vars}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.env == nil {
		c.env = emptyEnvironment{}
	}
	if c.isUser == nil {
		c.isUser = func(config.Entry) bool { return false }
	}
	return c
}

// CompileOptions tune a single Compile call.
type CompileOptions struct {
	// Whitelist holds keys parsed elsewhere. They are skipped, but a second
	// occurrence is still reported as a duplicate setting.
	Whitelist []string
	// Deferred leaves roster registration to the caller, for lists that are
	// moved before their final address is known.
	Deferred bool
}

// Compile parses every entry of sec into pre and post. It panics when sec is
// not a command list section.
func (c *Compiler) Compile(sec *config.Section, pre, post *CommandList, opts CompileOptions) {
	if !config.IsCommandListSection(sec.Name) {
		panic(fmt.Sprintf("commandlist: [%s] is not a command list section", sec.Name))
	}
	pre.Section, pre.Phase = sec.Name, Pre
	if post != nil {
		post.Section, post.Phase = sec.Name, Post
	}
	if !opts.Deferred {
		c.roster.Register(pre, post)
	}

	st := c.newState(sec.Name, pre, post)
	whitelist := make(map[string]struct{}, len(opts.Whitelist))
	for _, k := range opts.Whitelist {
		whitelist[strings.ToLower(k)] = struct{}{}
	}
	seen := make(map[string]struct{})

	for _, e := range sec.Entries {
		l := newLine(e)
		if _, ok := whitelist[l.key]; ok && e.KeyValue {
			if _, dup := seen[l.key]; dup {
				c.diag.Warnf(diag.CodeDuplicateSetting, "[%s] duplicate non-command list key: %s", sec.Name, l.key)
			}
			seen[l.key] = struct{}{}
			continue
		}
		if post != nil {
			if rest, ok := strings.CutPrefix(l.key, "post "); ok {
				l.key, l.phase, l.explicit = strings.TrimSpace(rest), Post, true
			} else if rest, ok := strings.CutPrefix(l.key, "pre "); ok {
				l.key, l.explicit = strings.TrimSpace(rest), true
			}
		}

		outcome, err := st.compileLine(&l)
		switch outcome {
		case handled:
			continue
		case malformed:
			c.diag.Warnf(diag.CodeMalformedCommand, "[%s] %s: %v", sec.Name, l.raw, err)
			continue
		}

		if c.isUser(e) {
			c.vars.MarkDirty(variables.DirtyUserConfig)
			if !c.userNoticed {
				c.userNoticed = true
				c.diag.Noticef(diag.CodeUnrecognisedLine,
					"unknown user settings will be removed from %s on the next save; the first unrecognised entry was %q",
					e.File, l.raw)
			}
			logger := c.diag.Logger()
			logger.Info().Str("file", e.File).Msgf("unrecognised user entry: %s", l.raw)
			continue
		}
		c.diag.Warnf(diag.CodeUnrecognisedLine, "[%s] unrecognised entry: %s", sec.Name, l.raw)
	}

	if st.depth() != 1 {
		c.diag.Warnf(diag.CodeUnbalancedScope, "[%s] scope unbalanced", sec.Name)
	}
	st.finish()
}

// CompileLine compiles a single command into list, as if it had been written
// with an explicit pre or post prefix. Flow control is not allowed here.
func (c *Compiler) CompileLine(list *CommandList, key, value, namespace string) error {
	e := config.Entry{
		Key:       key,
		Value:     value,
		Raw:       key + " = " + value,
		Namespace: namespace,
		KeyValue:  true,
	}
	st := c.newState(list.Section, list, nil)
	l := newLine(e)
	l.explicit = true
	outcome, err := st.compileLine(&l)
	st.finish()
	switch outcome {
	case handled:
		return nil
	case malformed:
		return err
	default:
		return fmt.Errorf("unrecognised command %q", l.raw)
	}
}

type outcome int

const (
	notHandled outcome = iota
	handled
	malformed
)

// line is one lowercased entry on its way through the command families.
type line struct {
	key       string
	value     string
	raw       string
	hasEquals bool
	namespace string
	phase     Phase
	explicit  bool
}

func newLine(e config.Entry) line {
	return line{
		key:       strings.ToLower(e.Key),
		value:     strings.ToLower(e.Value),
		raw:       strings.ToLower(e.Raw),
		hasEquals: e.KeyValue,
		namespace: e.Namespace,
	}
}

// family is one recogniser in the ordered dispatch table.
type family struct {
	name  string
	parse func(st *compileState, l *line) (outcome, error)
}

// families are tried in order; the first one that does not answer
// notHandled owns the line.
var families = []family{
	{"general", parseGeneral},
	{"iniparam", parseIniParam},
	{"assignment", parseAssignment},
	{"resourcecopy", parseResourceCopy},
	{"flowcontrol", parseFlowControl},
}

type emptyEnvironment struct{}

func (emptyEnvironment) SubList(string, string) (*SubList, bool) { return nil, false }

func (emptyEnvironment) Resource(string, string) (string, bool) { return "", false }

func (emptyEnvironment) Preset(string, string) (string, bool) { return "", false }

// compileState carries the lists and the if/else scope stack of one section.
type compileState struct {
	c       *Compiler
	section string
	lists   [2]*CommandList
	scopes  []*scope
	slots   int
}

type scope struct {
	// pending is the index of the open JumpIfFalseOp per list, or -1.
	pending [2]int
	// ends collects the branch-closing jumps patched at endif.
	ends    [2][]int
	sawElse bool
	locals  map[string]int
}

func newScope() *scope {
	return &scope{pending: [2]int{-1, -1}, locals: make(map[string]int)}
}

func (c *Compiler) newState(section string, pre, post *CommandList) *compileState {
	st := &compileState{c: c, section: section}
	st.lists[Pre] = pre
	st.lists[Post] = post
	st.slots = pre.Locals
	st.scopes = []*scope{newScope()}
	return st
}

func (st *compileState) depth() int { return len(st.scopes) }

func (st *compileState) compileLine(l *line) (outcome, error) {
	for _, f := range families {
		if f.name == "flowcontrol" && l.explicit {
			continue
		}
		if res, err := f.parse(st, l); res != notHandled {
			return res, err
		}
	}
	return notHandled, nil
}

func (st *compileState) emit(l *line, op Op) {
	st.lists[l.phase].Ops = append(st.lists[l.phase].Ops, op)
}

// emitBoth appends an op built per list to pre and, when present, post.
func (st *compileState) emitBoth(build func(p Phase) Op) {
	for _, p := range []Phase{Pre, Post} {
		if st.lists[p] != nil {
			st.lists[p].Ops = append(st.lists[p].Ops, build(p))
		}
	}
}

// finish closes any scope left open so pending jumps land past the end of
// the list, and records the number of local slots.
func (st *compileState) finish() {
	for len(st.scopes) > 1 {
		st.closeScope()
	}
	for _, l := range st.lists {
		if l != nil {
			l.Locals = st.slots
		}
	}
}

func (st *compileState) current() *scope { return st.scopes[len(st.scopes)-1] }

func (st *compileState) closeScope() {
	s := st.current()
	for _, p := range []Phase{Pre, Post} {
		list := st.lists[p]
		if list == nil {
			continue
		}
		st.patch(p, s.pending[p], len(list.Ops))
		for _, idx := range s.ends[p] {
			st.patch(p, idx, len(list.Ops))
		}
	}
	st.scopes = st.scopes[:len(st.scopes)-1]
}

func (st *compileState) patch(p Phase, idx, target int) {
	if idx < 0 {
		return
	}
	switch op := st.lists[p].Ops[idx].(type) {
	case *JumpIfFalseOp:
		op.Target = target
	case *JumpOp:
		op.Target = target
	}
}

// lookupLocal searches the scope stack from the innermost frame outwards.
func (st *compileState) lookupLocal(name string) (int, bool) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if slot, ok := st.scopes[i].locals[name]; ok {
			return slot, true
		}
	}
	return 0, false
}

func (st *compileState) resolver(namespace string) expression.Resolver {
	return resolverFunc(func(name string) (expression.Binding, error) {
		if slot, ok := st.lookupLocal(name); ok {
			return expression.Binding{Kind: expression.BindLocal, Name: name, Slot: slot}, nil
		}
		if v, ok := st.c.vars.Lookup(name, namespace); ok {
			return expression.Binding{Kind: expression.BindGlobal, Name: v.Name, Global: v}, nil
		}
		return expression.Binding{}, fmt.Errorf("%w: %s", expression.ErrUnknownVariable, name)
	})
}

type resolverFunc func(string) (expression.Binding, error)

func (f resolverFunc) ResolveVariable(name string) (expression.Binding, error) { return f(name) }
