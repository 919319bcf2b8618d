package commandlist

import (
	"context"
	"fmt"
	"strings"

	"github.com/timzifer/d3dxini/expression"
	"github.com/timzifer/d3dxini/variables"
)

// Op is a single compiled command. exec returns the index of the next op.
type Op interface {
	fmt.Stringer
	exec(ctx context.Context, f *frame, pc int) (int, error)
}

// TargetKind is the storage an assignment writes to.
type TargetKind int

const (
	TargetGlobal TargetKind = iota
	TargetLocal
	TargetParam
)

// Target is the left hand side of an assignment.
type Target struct {
	Kind      TargetKind
	Name      string
	Var       *variables.Variable
	Slot      int
	Component int
}

// SetVariableOp assigns the value of an expression to a global, a local or an
// IniParam component.
type SetVariableOp struct {
	Target Target
	Value  *expression.Expression
}

func (o *SetVariableOp) String() string {
	return fmt.Sprintf("%s = %s", o.Target.Name, o.Value)
}

func (o *SetVariableOp) exec(_ context.Context, f *frame, pc int) (int, error) {
	v, err := o.Value.Evaluate(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", o.Target.Name, err)
	}
	value := float32(v)
	switch o.Target.Kind {
	case TargetGlobal:
		f.state.Vars.Set(o.Target.Var, value)
	case TargetLocal:
		f.locals[o.Target.Slot] = value
	case TargetParam:
		f.state.Vars.SetParam(o.Target.Slot, o.Target.Component, value)
	}
	return pc + 1, nil
}

// OperandKind classifies the two sides of a resource copy.
type OperandKind int

const (
	OperandSlot OperandKind = iota
	OperandResource
	OperandNull
)

// Operand names a pipeline slot, a custom resource or null.
type Operand struct {
	Kind OperandKind
	Name string
}

func (o Operand) String() string {
	if o.Kind == OperandNull {
		return "null"
	}
	return o.Name
}

// CopyResourceOp binds or copies Source into Dest. The host does the work.
type CopyResourceOp struct {
	Dest    Operand
	Source  Operand
	Options []string
}

func (o *CopyResourceOp) String() string {
	if len(o.Options) == 0 {
		return fmt.Sprintf("%s = %s", o.Dest, o.Source)
	}
	return fmt.Sprintf("%s = %s %s", o.Dest, strings.Join(o.Options, " "), o.Source)
}

func (o *CopyResourceOp) exec(ctx context.Context, f *frame, pc int) (int, error) {
	return pc + 1, f.state.exec().CopyResource(ctx, o)
}

// RunOp runs the same phase of another command list section, or hands a
// custom shader section to the host. A command list run placed in an
// explicit pre or post list runs both phases of its target back to back.
type RunOp struct {
	Target   *SubList
	Together bool
}

func (o *RunOp) String() string {
	if o.Together {
		return "run = " + o.Target.Section + " (pre+post)"
	}
	return "run = " + o.Target.Section
}

func (o *RunOp) exec(ctx context.Context, f *frame, pc int) (int, error) {
	if o.Target.Kind == KindCustomShader {
		return pc + 1, f.state.exec().RunCustomShader(ctx, o.Target, f.list.Phase)
	}
	phases := []Phase{f.list.Phase}
	if o.Together {
		phases = []Phase{Pre, Post}
	}
	for _, phase := range phases {
		if err := f.state.run(ctx, o.Target.List(phase)); err != nil {
			return 0, err
		}
	}
	return pc + 1, nil
}

// GeneralOp is a command handled entirely by the host, such as handling=skip,
// draw=from_caller or preset=.
type GeneralOp struct {
	Verb  string
	Value string
}

func (o *GeneralOp) String() string {
	return fmt.Sprintf("%s = %s", o.Verb, o.Value)
}

func (o *GeneralOp) exec(ctx context.Context, f *frame, pc int) (int, error) {
	return pc + 1, f.state.exec().General(ctx, o)
}

// JumpIfFalseOp skips to Target unless Cond holds.
type JumpIfFalseOp struct {
	Cond   *expression.Expression
	Target int
	// Keyword is the flow control word that produced the jump.
	Keyword string
}

func (o *JumpIfFalseOp) String() string {
	return fmt.Sprintf("%s %s -> %d", o.Keyword, o.Cond, o.Target)
}

func (o *JumpIfFalseOp) exec(_ context.Context, f *frame, pc int) (int, error) {
	if o.Cond.True(f) {
		return pc + 1, nil
	}
	return o.Target, nil
}

// JumpOp unconditionally continues at Target. It closes a taken branch.
type JumpOp struct {
	Target int
}

func (o *JumpOp) String() string {
	return fmt.Sprintf("jump -> %d", o.Target)
}

func (o *JumpOp) exec(_ context.Context, _ *frame, _ int) (int, error) {
	return o.Target, nil
}
