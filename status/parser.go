package status

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// ErrMalformedExpression is returned, wrapped with the offending text, for any expression that does not tokenize or parse
var ErrMalformedExpression = errors.New("malformed expression")

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// tokenizer chops an expression into identifiers, parens and operators
type tokenizer struct {
	expr   []rune
	index  int
	tokens []string
}

func (t *tokenizer) hasMore() bool {
	return t.index < len(t.expr)
}

func (t *tokenizer) current(length int) string {
	if !t.hasMore() {
		return ""
	}
	end := min(t.index+length, len(t.expr))
	return string(t.expr[t.index:end])
}

func (t *tokenizer) skipSpaces() {
	for t.hasMore() && unicode.IsSpace(t.expr[t.index]) {
		t.index++
	}
}

// tokenize returns nil if the expression holds a character that starts no token
func tokenize(expr string) []string {
	t := &tokenizer{expr: []rune(expr)}
	for t.hasMore() {
		t.skipSpaces()
		if !t.hasMore() {
			break
		}
		switch c := t.current(1); {
		case c == "(" || c == ")" || c == "$" || c == ",":
			t.tokens = append(t.tokens, c)
			t.index++
		case isAlpha(c):
			var buf strings.Builder
			for t.hasMore() && isAlpha(t.current(1)) {
				buf.WriteString(t.current(1))
				t.index++
			}
			t.tokens = append(t.tokens, buf.String())
		default:
			two := t.current(2)
			switch two {
			case "&&", "||", "==", "!=":
				t.tokens = append(t.tokens, two)
				t.index += 2
			default:
				return nil
			}
		}
	}
	return t.tokens
}

// scanner serves tokens to the recursive-descent parser
type scanner struct {
	tokens []string
	index  int
}

func (s *scanner) hasMore() bool {
	return s.index < len(s.tokens)
}

// current returns "" once the tokens are exhausted
func (s *scanner) current() string {
	if !s.hasMore() {
		return ""
	}
	return s.tokens[s.index]
}

func (s *scanner) advance() {
	s.index++
}

var (
	binaries = []string{string(OpEq), string(OpNe)}
	logicals = []string{string(OpAnd), string(OpOr), string(OpComma)}
)

func parseAtomicExpression(scan *scanner) Expression {
	cur := scan.current()
	switch {
	case cur == "true":
		scan.advance()
		return &Constant{Value: true}
	case cur == "false":
		scan.advance()
		return &Constant{Value: false}
	case cur != "" && isAlpha(cur):
		scan.advance()
		return &OutcomeRef{Name: strings.ToLower(cur)}
	case cur == "$":
		scan.advance()
		name := scan.current()
		if name == "" || !isAlpha(name) {
			return nil
		}
		scan.advance()
		return &Variable{Name: strings.ToLower(name)}
	case cur == "(":
		scan.advance()
		result := parseLogicalExpression(scan)
		if result == nil || scan.current() != ")" {
			return nil
		}
		scan.advance()
		return result
	default:
		return nil
	}
}

func parseOperatorExpression(scan *scanner) Expression {
	left := parseAtomicExpression(scan)
	if left == nil {
		return nil
	}
	for scan.hasMore() && slices.Contains(binaries, scan.current()) {
		op := Operator(scan.current())
		scan.advance()
		right := parseOperatorExpression(scan)
		if right == nil {
			return nil
		}
		left = &Operation{Left: left, Op: op, Right: right}
	}
	return left
}

func parseConditionalExpression(scan *scanner) Expression {
	left := parseOperatorExpression(scan)
	if left == nil {
		return nil
	}
	for scan.hasMore() && scan.current() == string(OpIf) {
		scan.advance()
		right := parseOperatorExpression(scan)
		if right == nil {
			return nil
		}
		left = &Operation{Left: left, Op: OpIf, Right: right}
	}
	return left
}

func parseLogicalExpression(scan *scanner) Expression {
	left := parseConditionalExpression(scan)
	if left == nil {
		return nil
	}
	for scan.hasMore() && slices.Contains(logicals, scan.current()) {
		op := Operator(scan.current())
		scan.advance()
		right := parseConditionalExpression(scan)
		if right == nil {
			return nil
		}
		left = &Operation{Left: left, Op: op, Right: right}
	}
	return left
}

// ParseCondition parses a logical expression. Any failure, including trailing
// unparsed tokens, is reported as ErrMalformedExpression.
func ParseCondition(expr string) (Expression, error) {
	tokens := tokenize(expr)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrMalformedExpression, expr)
	}
	scan := &scanner{tokens: tokens}
	ast := parseLogicalExpression(scan)
	if ast == nil || scan.hasMore() {
		return nil, fmt.Errorf("%w: '%s'", ErrMalformedExpression, expr)
	}
	return ast, nil
}
