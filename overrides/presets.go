package overrides

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/expression"
	"github.com/timzifer/d3dxini/internal/diag"
	"github.com/timzifer/d3dxini/variables"
)

// KeyType selects how a key binding reacts to presses.
type KeyType int

const (
	KeyActivate KeyType = iota
	KeyHold
	KeyToggle
	KeyCycle
)

func (t KeyType) String() string { return keyTypes.name(int(t)) }

// Step is one value of an assignment. Cycle presets may leave a step unset,
// which keeps the current value.
type Step struct {
	Value float32
	Set   bool
}

// Assignment is a static value list applied to a global or an IniParam.
type Assignment struct {
	Target commandlist.Target
	Steps  []Step
}

// Preset is a [Preset*] section, and the common part of a [Key*] section.
type Preset struct {
	Section   string
	Namespace string

	Assignments           []Assignment
	Transition            int
	TransitionType        string
	ReleaseTransition     int
	ReleaseTransitionType string
	Condition             *expression.Expression
	Run                   *commandlist.SubList

	UniqueTriggersRequired int
}

// KeyBinding is a [Key*] section.
type KeyBinding struct {
	Preset

	Keys         []string
	Back         []string
	Type         KeyType
	Delay        int
	ReleaseDelay int
	Wrap         bool
	Smart        bool
}

// Steps returns the number of cycle positions.
func (p *Preset) Steps() int {
	n := 1
	for _, a := range p.Assignments {
		if len(a.Steps) > n {
			n = len(a.Steps)
		}
	}
	return n
}

// Active evaluates the preset condition against the current values.
func (p *Preset) Active(vars *variables.Table) bool {
	if p.Condition == nil {
		return true
	}
	return p.Condition.True(tableScope{vars})
}

// Apply assigns step of every assignment. Steps past the end of a shorter
// list leave the target untouched.
func (p *Preset) Apply(vars *variables.Table, step int) {
	for _, a := range p.Assignments {
		if step < 0 || step >= len(a.Steps) || !a.Steps[step].Set {
			continue
		}
		v := a.Steps[step].Value
		switch a.Target.Kind {
		case commandlist.TargetGlobal:
			vars.Set(a.Target.Var, v)
		case commandlist.TargetParam:
			vars.SetParam(a.Target.Slot, a.Target.Component, v)
		}
	}
}

// Activate applies step when the condition holds and runs the attached
// command list.
func (p *Preset) Activate(ctx context.Context, state *commandlist.State, step int) (bool, error) {
	if !p.Active(state.Vars) {
		return false, nil
	}
	p.Apply(state.Vars, step)
	if p.Run != nil {
		if err := p.Run.Pre.Run(ctx, state); err != nil {
			return true, fmt.Errorf("preset %s: %w", p.Section, err)
		}
	}
	return true, nil
}

type tableScope struct {
	vars *variables.Table
}

func (tableScope) Local(int) float32 { return 0 }

func (s tableScope) Param(idx, comp int) float32 { return s.vars.Param(idx, comp) }

func (tableScope) Builtin(string) float32 { return 0 }

// Keys handled by the preset parser itself.
var presetKeys = map[string]struct{}{
	"transition": {}, "transition_type": {}, "release_transition": {}, "release_transition_type": {},
	"condition": {}, "run": {}, "unique_triggers_required": {},
}

var keyBindingKeys = map[string]struct{}{
	"key": {}, "back": {}, "type": {}, "delay": {}, "release_delay": {}, "wrap": {}, "smart": {},
}

func (b *builder) enumeratePresets() {
	for _, sec := range b.store.WithPrefix("Preset") {
		b.reg.Presets[key(sec.Name)] = &Preset{Section: sec.Name, Namespace: sec.Namespace}
	}
}

func (b *builder) parsePresets() {
	for _, sec := range b.store.WithPrefix("Preset") {
		p := b.reg.Presets[key(sec.Name)]
		b.parsePresetSection(sec, p, false, nil)
		p.UniqueTriggersRequired, _ = b.reader(sec).integer("unique_triggers_required", 0)
	}
}

func (b *builder) parseKeys() {
	for _, sec := range b.store.WithPrefix("Key") {
		r := b.reader(sec)
		kb := &KeyBinding{
			Preset: Preset{Section: sec.Name, Namespace: sec.Namespace},
			Keys:   sec.Values("key"),
			Back:   sec.Values("back"),
		}
		if len(kb.Keys) == 0 && len(kb.Back) == 0 {
			b.diag.Warnf(diag.CodeInvalidValue, "[%s] missing key=", sec.Name)
			continue
		}
		if t := r.enum("type", keyTypes); t >= 0 {
			kb.Type = KeyType(t)
		}
		kb.Delay, _ = r.integer("delay", 0)
		kb.ReleaseDelay, _ = r.integer("release_delay", 0)
		kb.Wrap, _ = r.boolean("wrap", true)
		kb.Smart, _ = r.boolean("smart", true)
		if len(kb.Back) > 0 && kb.Type != KeyCycle {
			b.diag.Warnf(diag.CodeInvalidValue, "[%s] back= is only used by type=cycle", sec.Name)
		}
		b.parsePresetSection(sec, &kb.Preset, kb.Type == KeyCycle, keyBindingKeys)
		b.reg.Keys = append(b.reg.Keys, kb)
	}
}

func (b *builder) parsePresetSection(sec *config.Section, p *Preset, cycle bool, extra map[string]struct{}) {
	r := b.reader(sec)
	p.Transition, _ = r.integer("transition", 0)
	p.ReleaseTransition, _ = r.integer("release_transition", 0)
	if t := r.enum("transition_type", transitionTypes); t >= 0 {
		p.TransitionType = transitionTypes.name(t)
	}
	if t := r.enum("release_transition_type", transitionTypes); t >= 0 {
		p.ReleaseTransitionType = transitionTypes.name(t)
	}
	if v, ok := r.str("condition"); ok {
		cond, err := expression.Compile(strings.ToLower(v), b.globalResolver(sec.Namespace))
		if err != nil {
			r.invalid("condition", v, err)
		} else {
			p.Condition = cond
		}
	}
	if v, ok := r.str("run"); ok {
		sub, found := b.reg.SubList(strings.ToLower(v), sec.Namespace)
		if !found {
			b.diag.Warnf(diag.CodeInvalidValue, "[%s] run: no such section [%s]", sec.Name, v)
		} else {
			p.Run = sub
		}
	}

	for _, e := range sec.Entries {
		if !e.KeyValue {
			b.diag.Warnf(diag.CodeInvalidValue, "[%s] unrecognised line: %s", sec.Name, e.Raw)
			continue
		}
		k := strings.ToLower(strings.TrimSpace(e.Key))
		if _, ok := presetKeys[k]; ok {
			continue
		}
		if _, ok := extra[k]; ok {
			continue
		}
		target, err := b.presetTarget(k, e.Namespace)
		if err != nil {
			b.diag.Warnf(diag.CodeInvalidValue, "[%s] %s: %v", sec.Name, e.Raw, err)
			continue
		}
		steps, err := parseSteps(e.Value, cycle)
		if err != nil {
			b.diag.Warnf(diag.CodeInvalidValue, "[%s] %s: %v", sec.Name, e.Raw, err)
			continue
		}
		p.Assignments = append(p.Assignments, Assignment{Target: target, Steps: steps})
	}
}

func (b *builder) presetTarget(name, namespace string) (commandlist.Target, error) {
	if strings.HasPrefix(name, "$") {
		v, ok := b.vars.Lookup(name, namespace)
		if !ok {
			return commandlist.Target{}, fmt.Errorf("undeclared variable %s", name)
		}
		return commandlist.Target{Kind: commandlist.TargetGlobal, Name: v.Name, Var: v}, nil
	}
	idx, comp, ok := expression.ParseParam(name)
	if !ok {
		return commandlist.Target{}, fmt.Errorf("unrecognised key")
	}
	b.vars.EnsureParam(idx)
	return commandlist.Target{Kind: commandlist.TargetParam, Name: name, Slot: idx, Component: comp}, nil
}

func parseSteps(text string, cycle bool) ([]Step, error) {
	parts := []string{text}
	if cycle {
		parts = strings.Split(text, ",")
	}
	steps := make([]Step, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" && cycle {
			steps = append(steps, Step{})
			continue
		}
		f, err := strconv.ParseFloat(part, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", part)
		}
		steps = append(steps, Step{Value: float32(f), Set: true})
	}
	return steps, nil
}

// globalResolver resolves only globals, for expressions outside command lists.
func (b *builder) globalResolver(namespace string) expression.Resolver {
	return globalResolver{vars: b.vars, namespace: namespace}
}

type globalResolver struct {
	vars      *variables.Table
	namespace string
}

func (g globalResolver) ResolveVariable(name string) (expression.Binding, error) {
	v, ok := g.vars.Lookup(name, g.namespace)
	if !ok {
		return expression.Binding{}, fmt.Errorf("%w: %s", expression.ErrUnknownVariable, name)
	}
	return expression.Binding{Kind: expression.BindGlobal, Name: v.Name, Global: v}, nil
}
