// Package status implements the expectation language of .status files: a small
// boolean/set expression DSL and the line-oriented file format built on it.
package status

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// Env holds the run-time variables ($mode, $arch, $system, ...) visible to expressions
type Env map[string]string

// Defs holds named sub-expressions declared with "def NAME = expr"
type Defs map[string]Expression

// Expression is a node of a parsed status expression.
//
// Evaluate is used where a boolean is wanted (section headers and the right
// side of "if"). Outcomes is used where a set of outcome tags is wanted (rule
// values and defs). The same operator means different things in each context.
type Expression interface {
	Evaluate(env Env, defs Defs) bool
	Outcomes(env Env, defs Defs) types.OutcomeSet
	String() string
}

// Constant is a literal true or false
type Constant struct {
	Value bool
}

func (c *Constant) Evaluate(Env, Defs) bool { return c.Value }

// Outcomes of a constant is always empty
func (c *Constant) Outcomes(Env, Defs) types.OutcomeSet { return types.NewOutcomeSet() }

func (c *Constant) String() string {
	if c.Value {
		return "true"
	}
	return "false"
}

// Variable is a $name reference into the run-time environment
type Variable struct {
	Name string
}

// Evaluate is true when the variable is bound
func (v *Variable) Evaluate(env Env, defs Defs) bool {
	return v.Outcomes(env, defs).Len() > 0
}

// Outcomes returns the singleton {env[name]}, or the empty set when unbound
func (v *Variable) Outcomes(env Env, _ Defs) types.OutcomeSet {
	if value, ok := env[v.Name]; ok {
		return types.NewOutcomeSet(types.Outcome(value))
	}
	return types.NewOutcomeSet()
}

func (v *Variable) String() string { return "$" + v.Name }

// OutcomeRef is a bareword: a def name if one is declared, else a literal outcome tag
type OutcomeRef struct {
	Name string
}

func (o *OutcomeRef) Evaluate(env Env, defs Defs) bool {
	return o.Outcomes(env, defs).Len() > 0
}

func (o *OutcomeRef) Outcomes(env Env, defs Defs) types.OutcomeSet {
	if def, ok := defs[o.Name]; ok {
		return def.Outcomes(env, defs)
	}
	return types.NewOutcomeSet(types.Outcome(o.Name))
}

func (o *OutcomeRef) String() string { return o.Name }

// Operator is a binary operator token
type Operator string

const (
	OpOr    Operator = "||"
	OpComma Operator = ","
	OpAnd   Operator = "&&"
	OpEq    Operator = "=="
	OpNe    Operator = "!="
	OpIf    Operator = "if"
)

// Operation is a binary node
type Operation struct {
	Left  Expression
	Op    Operator
	Right Expression
}

func (o *Operation) Evaluate(env Env, defs Defs) bool {
	switch o.Op {
	case OpOr, OpComma:
		return o.Left.Evaluate(env, defs) || o.Right.Evaluate(env, defs)
	case OpIf:
		return false
	case OpEq:
		return o.Left.Outcomes(env, defs).Intersects(o.Right.Outcomes(env, defs))
	case OpNe:
		return !o.Left.Outcomes(env, defs).Intersects(o.Right.Outcomes(env, defs))
	case OpAnd:
		return o.Left.Evaluate(env, defs) && o.Right.Evaluate(env, defs)
	default:
		panic(fmt.Sprintf("unknown operator %q", o.Op))
	}
}

func (o *Operation) Outcomes(env Env, defs Defs) types.OutcomeSet {
	switch o.Op {
	case OpOr, OpComma:
		return o.Left.Outcomes(env, defs).Union(o.Right.Outcomes(env, defs))
	case OpIf:
		if o.Right.Evaluate(env, defs) {
			return o.Left.Outcomes(env, defs)
		}
		return types.NewOutcomeSet()
	case OpAnd, OpEq:
		return o.Left.Outcomes(env, defs).Intersect(o.Right.Outcomes(env, defs))
	case OpNe:
		left := o.Left.Outcomes(env, defs)
		if left.Intersects(o.Right.Outcomes(env, defs)) {
			return types.NewOutcomeSet()
		}
		return left
	default:
		panic(fmt.Sprintf("unknown operator %q", o.Op))
	}
}

// String renders the node fully parenthesised so that it parses back to the same tree
func (o *Operation) String() string {
	return fmt.Sprintf("(%s %s %s)", o.Left, o.Op, o.Right)
}

// references returns the bareword names an expression mentions
func references(e Expression) []string {
	switch n := e.(type) {
	case *OutcomeRef:
		return []string{n.Name}
	case *Operation:
		return append(references(n.Left), references(n.Right)...)
	default:
		return nil
	}
}
