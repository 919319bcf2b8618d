package fuzzy

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokStar
	tokSlash
	tokInvalid
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return "number"
	case tokIdent:
		return "field"
	case tokOp:
		return "operator"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	default:
		return "invalid text"
	}
}

type token struct {
	kind   tokenKind
	text   string
	offset int
	op     Op
	value  uint32
}

// lex splits text into tokens. Anything the lexer cannot classify becomes a
// single tokInvalid token covering the rest of the input.
func lex(text string) []token {
	var tokens []token
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '*':
			tokens = append(tokens, token{kind: tokStar, text: "*", offset: i})
			i++
		case c == '/':
			tokens = append(tokens, token{kind: tokSlash, text: "/", offset: i})
			i++
		case c == '<' || c == '>' || c == '=' || c == '!':
			tok, n := lexOp(text[i:])
			tok.offset = i
			tokens = append(tokens, tok)
			i += n
		case isDigit(c):
			start := i
			for i < len(text) && isAlnum(text[i]) {
				i++
			}
			word := text[start:i]
			value, err := parseUint(word)
			if err != nil {
				return append(tokens, token{kind: tokInvalid, text: text[start:], offset: start})
			}
			tokens = append(tokens, token{kind: tokNumber, text: word, offset: start, value: value})
		case isAlpha(c):
			start := i
			for i < len(text) && isAlnum(text[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: strings.ToLower(text[start:i]), offset: start})
		default:
			return append(tokens, token{kind: tokInvalid, text: text[i:], offset: i})
		}
	}
	return append(tokens, token{kind: tokEOF, offset: len(text)})
}

func lexOp(s string) (token, int) {
	two := ""
	if len(s) >= 2 {
		two = s[:2]
	}
	switch two {
	case "<=":
		return token{kind: tokOp, text: two, op: OpLessEqual}, 2
	case ">=":
		return token{kind: tokOp, text: two, op: OpGreaterEqual}, 2
	case "!=":
		return token{kind: tokOp, text: two, op: OpNotEqual}, 2
	case "==":
		return token{kind: tokOp, text: two, op: OpEqual}, 2
	}
	switch s[0] {
	case '<':
		return token{kind: tokOp, text: "<", op: OpLess}, 1
	case '>':
		return token{kind: tokOp, text: ">", op: OpGreater}, 1
	case '!':
		return token{kind: tokOp, text: "!", op: OpNotEqual}, 1
	default:
		return token{kind: tokOp, text: "=", op: OpEqual}, 1
	}
}

func parseUint(word string) (uint32, error) {
	lower := strings.ToLower(word)
	if strings.HasPrefix(lower, "0x") {
		v, err := strconv.ParseUint(lower[2:], 16, 32)
		return uint32(v), err
	}
	v, err := strconv.ParseUint(lower, 10, 32)
	return uint32(v), err
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }
