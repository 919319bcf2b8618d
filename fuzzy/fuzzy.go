package fuzzy

import (
	"fmt"
	"strings"
)

// Op is the relational operator of a fuzzy match.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

func (o Op) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!"
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Field names a resource description attribute usable as an operand.
type Field int

const (
	FieldNone Field = iota
	FieldWidth
	FieldHeight
	FieldDepth
	FieldArray
	FieldResWidth
	FieldResHeight
)

var fieldNames = map[string]Field{
	"width":      FieldWidth,
	"height":     FieldHeight,
	"depth":      FieldDepth,
	"array":      FieldArray,
	"res_width":  FieldResWidth,
	"res_height": FieldResHeight,
}

func (f Field) String() string {
	for name, field := range fieldNames {
		if field == f {
			return name
		}
	}
	return "none"
}

// Fields carries the attribute values operands are evaluated against.
type Fields struct {
	Width     uint32
	Height    uint32
	Depth     uint32
	Array     uint32
	ResWidth  uint32
	ResHeight uint32
}

// Get returns the value of field.
func (f Fields) Get(field Field) uint32 {
	switch field {
	case FieldWidth:
		return f.Width
	case FieldHeight:
		return f.Height
	case FieldDepth:
		return f.Depth
	case FieldArray:
		return f.Array
	case FieldResWidth:
		return f.ResWidth
	case FieldResHeight:
		return f.ResHeight
	default:
		return 0
	}
}

// Expr is a compiled fuzzy numeric match: actual <op> operand, where operand
// is a literal or fieldA [* fieldB], scaled by Numerator/Denominator.
type Expr struct {
	Op          Op
	Value       uint32
	FieldA      Field
	FieldB      Field
	Numerator   uint32
	Denominator uint32
}

// Literal returns an equality match against v.
func Literal(v uint32) *Expr {
	return &Expr{Op: OpEqual, Value: v, Numerator: 1, Denominator: 1}
}

// Operand evaluates the right hand side for the given attributes.
func (e *Expr) Operand(f Fields) uint64 {
	var v uint64
	if e.FieldA == FieldNone {
		v = uint64(e.Value)
	} else {
		v = uint64(f.Get(e.FieldA))
		if e.FieldB != FieldNone {
			v *= uint64(f.Get(e.FieldB))
		}
	}
	den := uint64(e.Denominator)
	if den == 0 {
		den = 1
	}
	return v * uint64(e.Numerator) / den
}

// Matches reports whether actual satisfies the expression.
func (e *Expr) Matches(actual uint32, f Fields) bool {
	if e == nil {
		return true
	}
	a, rhs := uint64(actual), e.Operand(f)
	switch e.Op {
	case OpNotEqual:
		return a != rhs
	case OpLess:
		return a < rhs
	case OpLessEqual:
		return a <= rhs
	case OpGreater:
		return a > rhs
	case OpGreaterEqual:
		return a >= rhs
	default:
		return a == rhs
	}
}

// UsesFields reports whether the operand depends on resource attributes.
func (e *Expr) UsesFields() bool {
	return e != nil && e.FieldA != FieldNone
}

func (e *Expr) String() string {
	var b strings.Builder
	b.WriteString(e.Op.String())
	b.WriteByte(' ')
	if e.FieldA == FieldNone {
		fmt.Fprintf(&b, "%d", e.Value)
	} else {
		b.WriteString(e.FieldA.String())
		if e.FieldB != FieldNone {
			b.WriteString(" * " + e.FieldB.String())
		}
	}
	if e.Numerator != 1 {
		fmt.Fprintf(&b, " * %d", e.Numerator)
	}
	if e.Denominator != 1 {
		fmt.Fprintf(&b, " / %d", e.Denominator)
	}
	return b.String()
}

// ParseError reports where a fuzzy expression stopped making sense.
type ParseError struct {
	Input     string
	Offset    int
	Remainder string
	Message   string
}

func (e *ParseError) Error() string {
	if e.Remainder == "" {
		return fmt.Sprintf("fuzzy match %q: %s", e.Input, e.Message)
	}
	return fmt.Sprintf("fuzzy match %q: %s at %q", e.Input, e.Message, e.Remainder)
}

type parser struct {
	input    string
	tokens   []token
	pos      int
	warnings []string
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) fail(tok token, msg string) error {
	return &ParseError{Input: p.input, Offset: tok.offset, Remainder: strings.TrimSpace(p.input[tok.offset:]), Message: msg}
}

// Parse compiles a fuzzy match expression. Non-fatal oddities (such as a zero
// denominator) are returned as warnings alongside the expression.
func Parse(text string) (*Expr, []string, error) {
	p := &parser{input: text, tokens: lex(text)}
	expr, err := p.parse()
	if err != nil {
		return nil, p.warnings, err
	}
	return expr, p.warnings, nil
}

func (p *parser) parse() (*Expr, error) {
	expr := &Expr{Op: OpEqual, Numerator: 1, Denominator: 1}
	if tok := p.peek(); tok.kind == tokOp {
		expr.Op = tok.op
		p.next()
	}

	tok := p.next()
	switch tok.kind {
	case tokNumber:
		expr.Value = tok.value
	case tokIdent:
		field, ok := fieldNames[tok.text]
		if !ok {
			return nil, p.fail(tok, "unknown field")
		}
		expr.FieldA = field
		if p.peek().kind == tokStar && p.tokens[p.pos+1].kind == tokIdent {
			p.next()
			second := p.next()
			fieldB, ok := fieldNames[second.text]
			if !ok {
				return nil, p.fail(second, "unknown field")
			}
			expr.FieldB = fieldB
		}
	default:
		return nil, p.fail(tok, "expected number or field, got "+tok.kind.String())
	}

	if p.peek().kind == tokStar {
		p.next()
		num := p.next()
		if num.kind != tokNumber {
			return nil, p.fail(num, "expected multiplier")
		}
		expr.Numerator = num.value
	}
	if p.peek().kind == tokSlash {
		p.next()
		den := p.next()
		if den.kind != tokNumber {
			return nil, p.fail(den, "expected denominator")
		}
		expr.Denominator = den.value
		if expr.Denominator == 0 {
			p.warnings = append(p.warnings, fmt.Sprintf("fuzzy match %q: denominator is zero, using 1", p.input))
			expr.Denominator = 1
		}
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.fail(tok, "unexpected trailing text")
	}
	return expr, nil
}
