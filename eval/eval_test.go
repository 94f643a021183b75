package eval

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/term"
)

func newEvaluator() *Evaluator {
	return NewEvaluator(func() string { return "2026-07-29T00:00:00Z" }, func() float64 { return 0.5 })
}

func TestArithmeticPromotion(t *testing.T) {
	e := newEvaluator()
	tbl := bindings.New(8, 256)

	sum := e.Eval(tbl, BinaryExpr{Op: OpAdd, Left: LiteralExpr{term.Int(2)}, Right: LiteralExpr{term.Int(3)}})
	require.Equal(t, term.Int(5), sum)

	widened := e.Eval(tbl, BinaryExpr{Op: OpAdd, Left: LiteralExpr{term.Int(2)}, Right: LiteralExpr{term.Double(1.5)}})
	require.Equal(t, term.DoubleValue, widened.Kind)
	require.InDelta(t, 3.5, widened.Float, 1e-9)

	div := e.Eval(tbl, BinaryExpr{Op: OpDiv, Left: LiteralExpr{term.Int(4)}, Right: LiteralExpr{term.Int(2)}})
	require.Equal(t, term.DoubleValue, div.Kind, "DIV always yields Double")

	divZero := e.Eval(tbl, BinaryExpr{Op: OpDiv, Left: LiteralExpr{term.Int(1)}, Right: LiteralExpr{term.Int(0)}})
	require.True(t, divZero.IsUnbound())
}

func TestThreeValuedLogic(t *testing.T) {
	e := newEvaluator()
	tbl := bindings.New(8, 256)
	errExpr := VarExpr{Name: "?missing"}

	// error && false == false
	r := e.Eval(tbl, BinaryExpr{Op: OpAnd, Left: errExpr, Right: LiteralExpr{term.Bool(false)}})
	require.Equal(t, term.Bool(false), r)

	// error || true == true
	r = e.Eval(tbl, BinaryExpr{Op: OpOr, Left: errExpr, Right: LiteralExpr{term.Bool(true)}})
	require.Equal(t, term.Bool(true), r)

	// error && true propagates error
	r = e.Eval(tbl, BinaryExpr{Op: OpAnd, Left: errExpr, Right: LiteralExpr{term.Bool(true)}})
	require.True(t, r.IsUnbound())
}

func TestComparisonAndOrdering(t *testing.T) {
	require.Equal(t, -1, OrderCompare(term.UnboundValue, term.Uri("urn:a")))
	require.Equal(t, 1, OrderCompare(term.Uri("urn:b"), term.Uri("urn:a")))
	require.Equal(t, 0, OrderCompare(term.Uri("urn:a"), term.Uri("urn:a")))
}

func TestBuiltinStringFunctions(t *testing.T) {
	e := newEvaluator()
	tbl := bindings.New(8, 256)

	r := e.Eval(tbl, CallExpr{Name: "STRLEN", Args: []Expr{LiteralExpr{term.PlainString("hello")}}})
	require.Equal(t, term.Int(5), r)

	r = e.Eval(tbl, CallExpr{Name: "UCASE", Args: []Expr{LiteralExpr{term.PlainString("abc")}}})
	require.Equal(t, "ABC", r.Lex())

	r = e.Eval(tbl, CallExpr{Name: "CONCAT", Args: []Expr{
		LiteralExpr{term.PlainString("foo")}, LiteralExpr{term.PlainString("bar")},
	}})
	require.Equal(t, "foobar", r.Lex())

	r = e.Eval(tbl, CallExpr{Name: "SUBSTR", Args: []Expr{
		LiteralExpr{term.PlainString("hello world")}, LiteralExpr{term.Int(7)},
	}})
	require.Equal(t, "world", r.Lex())

	r = e.Eval(tbl, CallExpr{Name: "STRAFTER", Args: []Expr{
		LiteralExpr{term.PlainString("a/b/c")}, LiteralExpr{term.PlainString("/")},
	}})
	require.Equal(t, "b/c", r.Lex())

	r = e.Eval(tbl, CallExpr{Name: "CONTAINS", Args: []Expr{
		LiteralExpr{term.PlainString("hello")}, LiteralExpr{term.PlainString("ell")},
	}})
	require.Equal(t, term.Bool(true), r)
}

func TestBuiltinHashFunctions(t *testing.T) {
	e := newEvaluator()
	tbl := bindings.New(8, 256)

	r := e.Eval(tbl, CallExpr{Name: "MD5", Args: []Expr{LiteralExpr{term.PlainString("abc")}}})
	require.Equal(t, "900150983cd24fb0d6963f7d28e17f72", r.Lex())

	r = e.Eval(tbl, CallExpr{Name: "SHA1", Args: []Expr{LiteralExpr{term.PlainString("abc")}}})
	require.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", r.Lex())

	r = e.Eval(tbl, CallExpr{Name: "SHA256", Args: []Expr{LiteralExpr{term.PlainString("abc")}}})
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", r.Lex())
}

func TestCastsAndIf(t *testing.T) {
	e := newEvaluator()
	tbl := bindings.New(8, 256)

	r := e.Eval(tbl, CallExpr{Name: "xsd:integer", Args: []Expr{LiteralExpr{term.PlainString("42")}}})
	require.Equal(t, term.Int(42), r)

	r = e.Eval(tbl, CallExpr{Name: "xsd:double", Args: []Expr{LiteralExpr{term.Int(3)}}})
	require.Equal(t, term.DoubleValue, r.Kind)
	require.InDelta(t, 3.0, r.Float, 1e-9)

	r = e.Eval(tbl, CallExpr{Name: "IF", Args: []Expr{
		LiteralExpr{term.Bool(true)}, LiteralExpr{term.Int(1)}, LiteralExpr{term.Int(2)},
	}})
	require.Equal(t, term.Int(1), r)

	r = e.Eval(tbl, CallExpr{Name: "COALESCE", Args: []Expr{
		VarExpr{Name: "?missing"}, LiteralExpr{term.PlainString("fallback")},
	}})
	require.Equal(t, "fallback", r.Lex())
}

func TestRegexAndReplace(t *testing.T) {
	e := newEvaluator()
	tbl := bindings.New(8, 256)

	r := e.Eval(tbl, CallExpr{Name: "REGEX", Args: []Expr{
		LiteralExpr{term.PlainString("Hello")}, LiteralExpr{term.PlainString("^hel")}, LiteralExpr{term.PlainString("i")},
	}})
	require.Equal(t, term.Bool(true), r)

	r = e.Eval(tbl, CallExpr{Name: "REPLACE", Args: []Expr{
		LiteralExpr{term.PlainString("abcabc")}, LiteralExpr{term.PlainString("a")}, LiteralExpr{term.PlainString("X")},
	}})
	require.Equal(t, "XbcXbc", r.Lex())
}

func TestFilterThreeValuedOutcome(t *testing.T) {
	e := newEvaluator()
	tbl := bindings.New(8, 256)
	require.NoError(t, tbl.Bind("?x", `"1"^^<http://www.w3.org/2001/XMLSchema#integer>`))

	res := e.Filter(tbl, BinaryExpr{Op: OpGt, Left: VarExpr{Name: "?x"}, Right: LiteralExpr{term.Int(0)}})
	require.Equal(t, FilterPass, res)

	res = e.Filter(tbl, VarExpr{Name: "?missing"})
	require.Equal(t, FilterError, res)
}
