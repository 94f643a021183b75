// Package eval implements the expression evaluator (C3) and filter
// evaluator (C4): a recursive-descent evaluator over a small expression AST
// for FILTER, BIND, HAVING and projection expressions.
//
// Grounded on the teacher's Predicate/Term tree in datalog/query/predicate.go
// (variables/constants resolved against bindings, comparisons and functions
// structured as typed nodes rather than re-parsed strings) — the spec's own
// design notes (§9) call for exactly this: "a small intermediate
// representation ... rather than string substitution".
package eval

import (
	"fmt"

	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/term"
)

// Expr is the expression AST node interface evaluated by Evaluator.Eval.
type Expr interface {
	String() string
}

// VarExpr resolves a query variable against the current bindings.
type VarExpr struct{ Name string }

func (v VarExpr) String() string { return v.Name }

// LiteralExpr is a constant value embedded directly in the expression tree.
type LiteralExpr struct{ Value term.Value }

func (l LiteralExpr) String() string { return l.Value.String() }

// BinOp enumerates the arithmetic/comparison/logical operators of §4.2/§4.3.
type BinOp string

const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"

	OpEq  BinOp = "="
	OpNe  BinOp = "!="
	OpLt  BinOp = "<"
	OpLe  BinOp = "<="
	OpGt  BinOp = ">"
	OpGe  BinOp = ">="

	OpAnd BinOp = "&&"
	OpOr  BinOp = "||"
)

// BinaryExpr is a two-operand arithmetic/comparison/logical expression.
type BinaryExpr struct {
	Op          BinOp
	Left, Right Expr
}

func (b BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryOp enumerates the unary operators: negation and boolean not.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "!"
)

// UnaryExpr is a single-operand expression.
type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
}

func (u UnaryExpr) String() string { return fmt.Sprintf("(%s%s)", u.Op, u.Operand) }

// InExpr implements IN / NOT IN: Needle IN (Set...).
type InExpr struct {
	Needle Expr
	Set    []Expr
	Negate bool
}

func (in InExpr) String() string {
	if in.Negate {
		return fmt.Sprintf("(%s NOT IN %v)", in.Needle, in.Set)
	}
	return fmt.Sprintf("(%s IN %v)", in.Needle, in.Set)
}

// CallExpr is a built-in function or cast invocation, e.g. STRLEN(?s) or
// xsd:integer(?x). Name is case-insensitive both for built-ins and for the
// xsd:-prefixed cast names (xsd:integer, xsd:decimal, xsd:double, xsd:float,
// xsd:boolean, xsd:string); a cast written as a full XMLSchema IRI is not
// recognized as a cast.
type CallExpr struct {
	Name string
	Args []Expr
}

func (c CallExpr) String() string { return fmt.Sprintf("%s(%v)", c.Name, c.Args) }

// BoundExpr implements BOUND(?v) — it must check variable boundedness
// without triggering an evaluation error for an unbound variable, so it is
// its own node rather than a CallExpr.
type BoundExpr struct{ Var string }

func (b BoundExpr) String() string { return fmt.Sprintf("BOUND(%s)", b.Var) }

// Evaluator evaluates Expr trees against a bindings.Table snapshot.
// Grounded on datalog/query/predicate.go's Term.Resolve(bindings) shape,
// generalized from a flat map to the spec's arena-backed BindingTable.
type Evaluator struct {
	// Now is fixed per query per §4.2 NOW(): "cached per query start".
	Now func() string

	// Rand supplies RAND()'s [0,1) double; injected for determinism in tests.
	Rand func() float64
}

// NewEvaluator creates an Evaluator with the given fixed "now" timestamp
// (ISO-8601 UTC, already formatted) and random source.
func NewEvaluator(now func() string, rnd func() float64) *Evaluator {
	return &Evaluator{Now: now, Rand: rnd}
}

// Lookup resolves a variable's term.Value from the binding table, decoding
// through term.ParseFromBinding when no typed fast path was recorded.
func Lookup(tbl *bindings.Table, name string) term.Value {
	idx := tbl.FindBinding(name)
	if idx < 0 {
		return term.UnboundValue
	}
	b := tbl.At(idx)
	switch b.Typed {
	case bindings.TypedInteger:
		return term.Int(b.TypedInt)
	case bindings.TypedDouble:
		return term.Double(b.TypedFloat)
	case bindings.TypedBoolean:
		return term.Bool(b.TypedBool)
	default:
		return term.ParseFromBinding(tbl.GetString(idx))
	}
}
