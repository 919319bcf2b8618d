package expression

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/timzifer/d3dxini/variables"
)

var (
	// ErrNotStatic is returned when an expression needs runtime state.
	ErrNotStatic = errors.New("expression cannot be statically evaluated")
	// ErrUnknownVariable is returned by resolvers for undeclared variables.
	ErrUnknownVariable = errors.New("unknown variable")
)

// BindingKind classifies an operand that is read at evaluation time.
type BindingKind int

const (
	BindGlobal BindingKind = iota
	BindLocal
	BindParam
	BindBuiltin
)

// Binding is a resolved operand of an expression.
type Binding struct {
	Kind      BindingKind
	Name      string
	Global    *variables.Variable
	Slot      int
	Component int
}

// Resolver maps $variable references to bindings at compile time.
type Resolver interface {
	ResolveVariable(name string) (Binding, error)
}

// Scope supplies runtime values for non-global bindings.
type Scope interface {
	Local(slot int) float32
	Param(idx, comp int) float32
	Builtin(name string) float32
}

// Expression is a compiled condition or assignment value.
type Expression struct {
	Source    string
	rewritten string
	program   *vm.Program
	bindings  []Binding
	constant  bool
	value     float64
}

// Compile parses text (already lowercased) into an expression. With a nil
// resolver any variable reference makes the expression non-static.
func Compile(text string, resolver Resolver) (*Expression, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty expression")
	}
	rewritten, bindings, err := rewrite(text, resolver)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(rewritten,
		expr.Env(map[string]interface{}{}),
		expr.AllowUndefinedVariables(),
		expr.Patch(operatorPatcher{}),
	)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", text, err)
	}
	e := &Expression{Source: text, rewritten: rewritten, program: program, bindings: bindings}
	if len(bindings) == 0 {
		value, err := e.run(nil)
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", text, err)
		}
		e.constant = true
		e.value = value
	}
	return e, nil
}

// Constant returns an expression that always evaluates to value.
func Constant(value float64) *Expression {
	return &Expression{Source: strconv.FormatFloat(value, 'g', -1, 64), constant: true, value: value}
}

// EvaluateStatic compiles and folds text, failing with ErrNotStatic when it
// references anything that is only known at runtime.
func EvaluateStatic(text string) (float64, error) {
	e, err := Compile(text, nil)
	if err != nil {
		return 0, err
	}
	return e.value, nil
}

// Static returns the folded value of a constant expression.
func (e *Expression) Static() (float64, bool) {
	if e == nil || !e.constant {
		return 0, false
	}
	return e.value, true
}

// Bindings returns the operands read at evaluation time.
func (e *Expression) Bindings() []Binding {
	return append([]Binding(nil), e.bindings...)
}

// Evaluate computes the value of the expression in scope.
func (e *Expression) Evaluate(scope Scope) (float64, error) {
	if e == nil {
		return 0, errors.New("nil expression")
	}
	if e.constant {
		return e.value, nil
	}
	return e.run(scope)
}

// True evaluates the expression as a condition. Failures count as false.
func (e *Expression) True(scope Scope) bool {
	v, err := e.Evaluate(scope)
	return err == nil && v != 0
}

func (e *Expression) String() string {
	if e == nil {
		return ""
	}
	return e.Source
}

func (e *Expression) run(scope Scope) (float64, error) {
	env := map[string]interface{}{
		"truthy": func(args ...interface{}) interface{} {
			if len(args) != 1 {
				return false
			}
			f, err := toFloat(args[0])
			return err == nil && f != 0
		},
		"mod": func(args ...interface{}) interface{} {
			if len(args) != 2 {
				return math.NaN()
			}
			a, errA := toFloat(args[0])
			b, errB := toFloat(args[1])
			if errA != nil || errB != nil {
				return math.NaN()
			}
			return math.Mod(a, b)
		},
		"v": func(args ...interface{}) interface{} {
			if len(args) != 1 {
				return 0.0
			}
			idx, ok := args[0].(int)
			if !ok || idx < 0 || idx >= len(e.bindings) {
				return 0.0
			}
			return float64(e.bindingValue(e.bindings[idx], scope))
		},
	}
	out, err := vm.Run(e.program, env)
	if err != nil {
		return 0, err
	}
	return toFloat(out)
}

func (e *Expression) bindingValue(b Binding, scope Scope) float32 {
	switch b.Kind {
	case BindGlobal:
		if b.Global != nil {
			return b.Global.Value
		}
	case BindLocal:
		if scope != nil {
			return scope.Local(b.Slot)
		}
	case BindParam:
		if scope != nil {
			return scope.Param(b.Slot, b.Component)
		}
	case BindBuiltin:
		if scope != nil {
			return scope.Builtin(b.Name)
		}
	}
	return 0
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("expression produced %T, expected a number", v)
	}
}

// operatorPatcher wraps the operands of logical operators so numbers can be
// combined with && and || the same way comparisons can, and turns % into a
// floating point remainder.
type operatorPatcher struct{}

func (operatorPatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		switch n.Operator {
		case "&&", "||", "and", "or":
			n.Left = truthyCall(n.Left)
			n.Right = truthyCall(n.Right)
		case "%":
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: "mod"},
				Arguments: []ast.Node{n.Left, n.Right},
			})
		}
	case *ast.UnaryNode:
		switch n.Operator {
		case "!", "not":
			n.Node = truthyCall(n.Node)
		}
	}
}

func truthyCall(node ast.Node) ast.Node {
	return &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: "truthy"},
		Arguments: []ast.Node{node},
	}
}
