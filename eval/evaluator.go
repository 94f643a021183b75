package eval

import (
	"math"

	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/term"
)

// Eval evaluates expr against tbl, producing a tagged term.Value. Unspecified
// errors (type mismatch, divide by zero, ...) yield Unbound per §4.2/§7
// rather than a Go error — expression-level errors localize to Unbound, only
// filter-level and scan-level errors propagate (see eval.Filter and
// package scan).
func (e *Evaluator) Eval(tbl *bindings.Table, expr Expr) term.Value {
	switch x := expr.(type) {
	case VarExpr:
		return Lookup(tbl, x.Name)
	case LiteralExpr:
		return x.Value
	case BoundExpr:
		if Lookup(tbl, x.Var).IsUnbound() {
			return term.Bool(false)
		}
		return term.Bool(true)
	case UnaryExpr:
		return e.evalUnary(tbl, x)
	case BinaryExpr:
		return e.evalBinary(tbl, x)
	case InExpr:
		return e.evalIn(tbl, x)
	case CallExpr:
		return e.evalCall(tbl, x)
	}
	return term.UnboundValue
}

func (e *Evaluator) evalUnary(tbl *bindings.Table, x UnaryExpr) term.Value {
	v := e.Eval(tbl, x.Operand)
	switch x.Op {
	case OpNeg:
		n, ok := CoerceToNumber(v)
		if !ok {
			return term.UnboundValue
		}
		if v.Kind == term.IntegerValue {
			return term.Int(-v.Int)
		}
		return numericResult(-n, false)
	case OpNot:
		b, ok := AsBoolean(v)
		if !ok {
			return term.UnboundValue
		}
		return term.Bool(!b)
	}
	return term.UnboundValue
}

// CoerceToNumber implements §4.2 CoerceToNumber(v): returns (f64, ok).
// Strings are parsed from their lexical or embedded typed-literal lexical;
// failure yields (NaN, false).
func CoerceToNumber(v term.Value) (float64, bool) {
	switch v.Kind {
	case term.IntegerValue:
		return float64(v.Int), true
	case term.DoubleValue:
		return v.Float, true
	case term.BooleanValue:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case term.StringValue:
		f, err := parseFloatLenient(v.Lex())
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	}
	return math.NaN(), false
}

// AsBoolean extracts a boolean per the three-valued-logic coercion used by
// the filter evaluator's && / || operands (§4.3): a non-boolean numeric is
// true iff nonzero/non-NaN.
func AsBoolean(v term.Value) (bool, bool) {
	switch v.Kind {
	case term.BooleanValue:
		return v.Bool, true
	case term.IntegerValue:
		return v.Int != 0, true
	case term.DoubleValue:
		return v.Float != 0 && !math.IsNaN(v.Float), true
	case term.StringValue:
		return v.Lex() != "", true
	}
	return false, false
}

// evalBinary implements the Additive/Multiplicative arithmetic grammar of
// §4.2 plus the comparison/logical operators of §4.3 (comparisons and &&/||
// are reused here so BIND/projection expressions can embed them too).
func (e *Evaluator) evalBinary(tbl *bindings.Table, x BinaryExpr) term.Value {
	switch x.Op {
	case OpAnd, OpOr:
		return e.evalLogical(tbl, x)
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return e.evalCompare(tbl, x)
	}

	l := e.Eval(tbl, x.Left)
	r := e.Eval(tbl, x.Right)
	if l.IsUnbound() || r.IsUnbound() {
		return term.UnboundValue
	}

	if x.Op == OpDiv {
		lf, lok := CoerceToNumber(l)
		rf, rok := CoerceToNumber(r)
		if !lok || !rok || rf == 0 || math.IsNaN(lf) || math.IsNaN(rf) {
			return term.UnboundValue
		}
		return term.Double(lf / rf)
	}

	// Integer op Integer -> Integer; otherwise widen to double.
	if l.Kind == term.IntegerValue && r.Kind == term.IntegerValue {
		var res int64
		switch x.Op {
		case OpAdd:
			res = l.Int + r.Int
		case OpSub:
			res = l.Int - r.Int
		case OpMul:
			res = l.Int * r.Int
		}
		return term.Int(res)
	}

	lf, lok := CoerceToNumber(l)
	rf, rok := CoerceToNumber(r)
	if !lok || !rok {
		return term.UnboundValue
	}
	var res float64
	switch x.Op {
	case OpAdd:
		res = lf + rf
	case OpSub:
		res = lf - rf
	case OpMul:
		res = lf * rf
	}
	return numericResult(res, false)
}

// numericResult: "if the result is integral and fits i64, the result is
// Integer else Double" (§4.2). evalBinary calls it with forceDouble false for
// every widened +, - and * result, so an integral widened result comes back
// as Integer; NaN and ±Inf stay Double. DIV does not come through here: it
// returns a Double directly.
func numericResult(f float64, forceDouble bool) term.Value {
	if forceDouble || math.IsNaN(f) || math.IsInf(f, 0) {
		return term.Double(f)
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		return term.Int(int64(f))
	}
	return term.Double(f)
}

func (e *Evaluator) evalLogical(tbl *bindings.Table, x BinaryExpr) term.Value {
	// Three-valued logic per §4.3: error && false = false; error || true =
	// true; otherwise error propagates.
	lv := e.Eval(tbl, x.Left)
	lb, lok := AsBoolean(lv)

	if x.Op == OpAnd {
		if lok && !lb {
			return term.Bool(false)
		}
		rv := e.Eval(tbl, x.Right)
		rb, rok := AsBoolean(rv)
		if rok && !rb {
			return term.Bool(false)
		}
		if lok && rok {
			return term.Bool(lb && rb)
		}
		return term.UnboundValue
	}

	// OpOr
	if lok && lb {
		return term.Bool(true)
	}
	rv := e.Eval(tbl, x.Right)
	rb, rok := AsBoolean(rv)
	if rok && rb {
		return term.Bool(true)
	}
	if lok && rok {
		return term.Bool(lb || rb)
	}
	return term.UnboundValue
}

func (e *Evaluator) evalCompare(tbl *bindings.Table, x BinaryExpr) term.Value {
	l := e.Eval(tbl, x.Left)
	r := e.Eval(tbl, x.Right)
	cmp, ok := Compare(l, r)
	if !ok {
		if x.Op == OpEq {
			return term.Bool(false)
		}
		if x.Op == OpNe {
			return term.Bool(true)
		}
		return term.UnboundValue
	}
	switch x.Op {
	case OpEq:
		return term.Bool(cmp == 0)
	case OpNe:
		return term.Bool(cmp != 0)
	case OpLt:
		return term.Bool(cmp < 0)
	case OpLe:
		return term.Bool(cmp <= 0)
	case OpGt:
		return term.Bool(cmp > 0)
	case OpGe:
		return term.Bool(cmp >= 0)
	}
	return term.UnboundValue
}

func (e *Evaluator) evalIn(tbl *bindings.Table, x InExpr) term.Value {
	needle := e.Eval(tbl, x.Needle)
	if needle.IsUnbound() {
		return term.UnboundValue
	}
	found := false
	sawError := false
	for _, item := range x.Set {
		v := e.Eval(tbl, item)
		cmp, ok := Compare(needle, v)
		if !ok {
			sawError = true
			continue
		}
		if cmp == 0 {
			found = true
			break
		}
	}
	if found {
		return term.Bool(!x.Negate)
	}
	if sawError {
		return term.UnboundValue
	}
	return term.Bool(x.Negate)
}
