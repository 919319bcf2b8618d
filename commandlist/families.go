package commandlist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/regexp"

	"github.com/timzifer/d3dxini/expression"
	"github.com/timzifer/d3dxini/variables"
)

var slotPattern = regexp.MustCompile(`^(?:(?:vs|hs|ds|gs|ps|cs)-(?:t|cb|s|u)\d+|o[0-7]|od|vb\d+|ib|so[0-3]|this|bb|r_bb)$`)

var copyOptions = map[string]struct{}{
	"copy": {}, "ref": {}, "reference": {}, "copy_desc": {}, "copy_description": {},
	"unless_null": {}, "stereo": {}, "mono": {}, "stereo2mono": {}, "set_viewport": {},
	"no_view_cache": {}, "resolve_msaa": {}, "raw": {},
}

// Host commands whose value is passed through after a basic sanity check.
var generalVerbs = map[string]func(string) error{
	"handling":                     oneOf("skip", "abort"),
	"draw":                         nonEmpty,
	"drawauto":                     nonEmpty,
	"drawindexed":                  nonEmpty,
	"drawinstanced":                nonEmpty,
	"drawindexedinstanced":         nonEmpty,
	"drawinstancedindirect":        nonEmpty,
	"drawindexedinstancedindirect": nonEmpty,
	"dispatch":                     nonEmpty,
	"dispatchindirect":             nonEmpty,
	"checktextureoverride":         slotValue,
	"special":                      oneOf("upscaling_switch_bb", "draw_3dmigoto_overlay"),
	"analyse_options":              nonEmpty,
	"dump":                         nonEmpty,
	"clear":                        nonEmpty,
	"direct_mode_eye":              oneOf("left", "right", "mono"),
}

func nonEmpty(v string) error {
	if v == "" {
		return errors.New("missing value")
	}
	return nil
}

func oneOf(values ...string) func(string) error {
	return func(v string) error {
		for _, allowed := range values {
			if v == allowed {
				return nil
			}
		}
		return fmt.Errorf("expected one of %s", strings.Join(values, ", "))
	}
}

func slotValue(v string) error {
	if !slotPattern.MatchString(v) {
		return fmt.Errorf("invalid slot %q", v)
	}
	return nil
}

var runPrefixes = []string{"builtincommandlist", "builtincustomshader", "commandlist", "customshader"}

func parseGeneral(st *compileState, l *line) (outcome, error) {
	if !l.hasEquals {
		return notHandled, nil
	}
	switch l.key {
	case "run":
		return parseRun(st, l)
	case "preset", "exclude_preset":
		name := l.value
		if !strings.HasPrefix(name, "preset") {
			name = "preset" + name
		}
		canonical, ok := st.c.env.Preset(name, l.namespace)
		if !ok {
			return malformed, fmt.Errorf("no such preset [%s]", name)
		}
		st.emit(l, &GeneralOp{Verb: l.key, Value: canonical})
		return handled, nil
	case "reset_per_frame_limits":
		var targets []string
		for _, name := range strings.Split(l.value, ",") {
			name = strings.TrimSpace(name)
			if res, ok := st.c.env.Resource(name, l.namespace); ok {
				targets = append(targets, res)
				continue
			}
			if sub, ok := st.c.env.SubList(name, l.namespace); ok && sub.Kind == KindCustomShader {
				targets = append(targets, sub.Section)
				continue
			}
			return malformed, fmt.Errorf("no such resource or custom shader %q", name)
		}
		st.emit(l, &GeneralOp{Verb: l.key, Value: strings.Join(targets, ",")})
		return handled, nil
	}
	check, ok := generalVerbs[l.key]
	if !ok {
		return notHandled, nil
	}
	if err := check(l.value); err != nil {
		return malformed, err
	}
	st.emit(l, &GeneralOp{Verb: l.key, Value: l.value})
	return handled, nil
}

func parseRun(st *compileState, l *line) (outcome, error) {
	known := false
	for _, prefix := range runPrefixes {
		if strings.HasPrefix(l.value, prefix) {
			known = true
			break
		}
	}
	if !known {
		return malformed, errors.New("run target must be a CommandList or CustomShader section")
	}
	sub, ok := st.c.env.SubList(l.value, l.namespace)
	if !ok {
		return malformed, fmt.Errorf("no such section [%s]", l.value)
	}
	switch {
	case sub.Kind == KindCustomShader:
		st.emit(l, &RunOp{Target: sub})
	case l.explicit:
		st.emit(l, &RunOp{Target: sub, Together: true})
	default:
		st.emitBoth(func(Phase) Op { return &RunOp{Target: sub} })
	}
	return handled, nil
}

func parseIniParam(st *compileState, l *line) (outcome, error) {
	if !l.hasEquals {
		return notHandled, nil
	}
	idx, comp, ok := expression.ParseParam(l.key)
	if !ok {
		return notHandled, nil
	}
	value, err := expression.Compile(l.value, st.resolver(l.namespace))
	if err != nil {
		return malformed, err
	}
	st.c.vars.EnsureParam(idx)
	st.emit(l, &SetVariableOp{
		Target: Target{Kind: TargetParam, Name: l.key, Slot: idx, Component: comp},
		Value:  value,
	})
	return handled, nil
}

func parseAssignment(st *compileState, l *line) (outcome, error) {
	text := l.key
	if !l.hasEquals {
		text = l.raw
	}
	if rest, ok := strings.CutPrefix(text, "local "); ok {
		return parseLocal(st, l, strings.TrimSpace(rest))
	}
	if !strings.HasPrefix(text, "$") {
		return notHandled, nil
	}
	if !l.hasEquals {
		return malformed, errors.New("variable reference without assignment")
	}

	target := Target{Name: text}
	if slot, ok := st.lookupLocal(text); ok {
		target.Kind, target.Slot = TargetLocal, slot
	} else if v, ok := st.c.vars.Lookup(text, l.namespace); ok {
		target.Kind, target.Var, target.Name = TargetGlobal, v, v.Name
	} else {
		// Stale user file lines refer to globals of removed mods.
		return notHandled, nil
	}
	value, err := expression.Compile(l.value, st.resolver(l.namespace))
	if err != nil {
		return malformed, err
	}
	st.emit(l, &SetVariableOp{Target: target, Value: value})
	return handled, nil
}

func parseLocal(st *compileState, l *line, name string) (outcome, error) {
	if !strings.HasPrefix(name, "$") || !variables.ValidName(name) {
		return malformed, fmt.Errorf("%w: %q", variables.ErrInvalidName, name)
	}
	cur := st.current()
	if _, ok := cur.locals[name]; ok {
		return malformed, fmt.Errorf("local %s redeclared in the same scope", name)
	}
	value := expression.Constant(0)
	if l.hasEquals {
		v, err := expression.Compile(l.value, st.resolver(l.namespace))
		if err != nil {
			return malformed, err
		}
		value = v
	}
	slot := st.slots
	st.slots++
	cur.locals[name] = slot
	st.emit(l, &SetVariableOp{
		Target: Target{Kind: TargetLocal, Name: name, Slot: slot},
		Value:  value,
	})
	return handled, nil
}

func parseResourceCopy(st *compileState, l *line) (outcome, error) {
	if !l.hasEquals {
		return notHandled, nil
	}
	dest, ok := st.operand(l.key, l.namespace)
	if !ok {
		return notHandled, nil
	}
	fields := strings.Fields(l.value)
	if len(fields) == 0 {
		return malformed, errors.New("missing copy source")
	}
	op := &CopyResourceOp{Dest: dest}
	for _, opt := range fields[:len(fields)-1] {
		if _, known := copyOptions[opt]; !known {
			return malformed, fmt.Errorf("unknown copy option %q", opt)
		}
		op.Options = append(op.Options, opt)
	}
	src := fields[len(fields)-1]
	if src == "null" {
		op.Source = Operand{Kind: OperandNull}
	} else if op.Source, ok = st.operand(src, l.namespace); !ok {
		return malformed, fmt.Errorf("invalid copy source %q", src)
	}
	st.emit(l, op)
	return handled, nil
}

func (st *compileState) operand(text, namespace string) (Operand, bool) {
	if slotPattern.MatchString(text) {
		return Operand{Kind: OperandSlot, Name: text}, true
	}
	if strings.HasPrefix(text, "resource") {
		if name, ok := st.c.env.Resource(text, namespace); ok {
			return Operand{Kind: OperandResource, Name: name}, true
		}
	}
	return Operand{}, false
}

func parseFlowControl(st *compileState, l *line) (outcome, error) {
	word, rest, _ := strings.Cut(l.raw, " ")
	rest = strings.TrimSpace(rest)
	switch word {
	case "if":
		return st.openIf(rest, l.namespace)
	case "elif":
		return st.elseIf(rest, l.namespace)
	case "else":
		if next, cond, ok := strings.Cut(rest, " "); ok && next == "if" {
			return st.elseIf(strings.TrimSpace(cond), l.namespace)
		} else if rest == "if" {
			return st.elseIf("", l.namespace)
		} else if rest != "" {
			return notHandled, nil
		}
		return st.openElse()
	case "endif":
		if rest != "" {
			return notHandled, nil
		}
		if st.depth() == 1 {
			return malformed, errors.New("endif without if")
		}
		st.closeScope()
		return handled, nil
	}
	return notHandled, nil
}

// condition compiles a flow control expression. A broken condition is
// replaced by a constant false one so the scope still balances.
func (st *compileState) condition(text, namespace string) (*expression.Expression, error) {
	if text == "" {
		return expression.Constant(0), errors.New("missing condition")
	}
	cond, err := expression.Compile(text, st.resolver(namespace))
	if err != nil {
		return expression.Constant(0), err
	}
	return cond, nil
}

func (st *compileState) openIf(text, namespace string) (outcome, error) {
	cond, err := st.condition(text, namespace)
	s := newScope()
	st.scopes = append(st.scopes, s)
	st.emitBoth(func(p Phase) Op {
		s.pending[p] = len(st.lists[p].Ops)
		return &JumpIfFalseOp{Cond: cond, Target: -1, Keyword: "if"}
	})
	if err != nil {
		return malformed, err
	}
	return handled, nil
}

func (st *compileState) elseIf(text, namespace string) (outcome, error) {
	if st.depth() == 1 {
		return malformed, errors.New("else if without if")
	}
	s := st.current()
	if s.sawElse {
		return malformed, errors.New("else if after else")
	}
	cond, err := st.condition(text, namespace)
	st.closeBranch(s)
	st.emitBoth(func(p Phase) Op {
		s.pending[p] = len(st.lists[p].Ops)
		return &JumpIfFalseOp{Cond: cond, Target: -1, Keyword: "elif"}
	})
	if err != nil {
		return malformed, err
	}
	return handled, nil
}

func (st *compileState) openElse() (outcome, error) {
	if st.depth() == 1 {
		return malformed, errors.New("else without if")
	}
	s := st.current()
	if s.sawElse {
		return malformed, errors.New("duplicate else")
	}
	st.closeBranch(s)
	s.sawElse = true
	return handled, nil
}

// closeBranch ends the taken branch with a jump to endif and points the open
// condition at the next branch. Locals of the finished branch go out of scope.
func (st *compileState) closeBranch(s *scope) {
	for _, p := range []Phase{Pre, Post} {
		list := st.lists[p]
		if list == nil {
			continue
		}
		s.ends[p] = append(s.ends[p], len(list.Ops))
		list.Ops = append(list.Ops, &JumpOp{Target: -1})
		st.patch(p, s.pending[p], len(list.Ops))
		s.pending[p] = -1
	}
	s.locals = make(map[string]int)
}
