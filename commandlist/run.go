package commandlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/timzifer/d3dxini/variables"
)

// MaxDepth bounds nested run= calls.
const MaxDepth = 64

// ErrRecursion is returned when run= nesting exceeds MaxDepth.
var ErrRecursion = errors.New("command list recursion limit exceeded")

// Executor performs the operations that touch the host pipeline.
type Executor interface {
	CopyResource(ctx context.Context, op *CopyResourceOp) error
	General(ctx context.Context, op *GeneralOp) error
	RunCustomShader(ctx context.Context, shader *SubList, phase Phase) error
	Builtin(name string) float32
}

// NopExecutor ignores host operations and reports zero for every builtin.
type NopExecutor struct{}

func (NopExecutor) CopyResource(context.Context, *CopyResourceOp) error { return nil }

func (NopExecutor) General(context.Context, *GeneralOp) error { return nil }

func (NopExecutor) RunCustomShader(context.Context, *SubList, Phase) error { return nil }

func (NopExecutor) Builtin(string) float32 { return 0 }

// State is the per-invocation environment of a command list run.
type State struct {
	Vars     *variables.Table
	Executor Executor

	depth int
}

func (s *State) exec() Executor {
	if s.Executor == nil {
		return NopExecutor{}
	}
	return s.Executor
}

// Run executes the list against state.
func (l *CommandList) Run(ctx context.Context, state *State) error {
	if state == nil || state.Vars == nil {
		return errors.New("command list state requires a variable table")
	}
	return state.run(ctx, l)
}

func (s *State) run(ctx context.Context, l *CommandList) error {
	if l.Empty() {
		return nil
	}
	if s.depth >= MaxDepth {
		return fmt.Errorf("%w in [%s]", ErrRecursion, l.Section)
	}
	s.depth++
	defer func() { s.depth-- }()

	f := &frame{state: s, list: l, locals: make([]float32, l.Locals)}
	for pc := 0; pc < len(l.Ops); {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := l.Ops[pc].exec(ctx, f, pc)
		if err != nil {
			return fmt.Errorf("[%s] %s: %w", l.Section, l.Ops[pc], err)
		}
		pc = next
	}
	return nil
}

// frame is the expression scope of one list invocation.
type frame struct {
	state  *State
	list   *CommandList
	locals []float32
}

func (f *frame) Local(slot int) float32 {
	if slot < 0 || slot >= len(f.locals) {
		return 0
	}
	return f.locals[slot]
}

func (f *frame) Param(idx, comp int) float32 {
	return f.state.Vars.Param(idx, comp)
}

func (f *frame) Builtin(name string) float32 {
	return f.state.exec().Builtin(name)
}
