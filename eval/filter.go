package eval

import (
	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/term"
)

// FilterResult is the three-valued outcome of evaluating a FILTER
// expression against a binding row (§5): Pass keeps the row, Drop excludes
// it, and Error excludes it too but is tracked separately so callers (e.g.
// annotations) can distinguish "filtered out" from "failed to evaluate".
type FilterResult int

const (
	FilterPass FilterResult = iota
	FilterDrop
	FilterError
)

// Filter evaluates a FILTER expression's effective boolean value (§5's EBV
// coercion): a Boolean value passes/fails directly; a numeric value passes
// iff it is nonzero and non-NaN; a non-empty plain string passes; Unbound
// and all other cases are FilterError (not FilterDrop) so a caller can
// distinguish "the condition was false" from "the condition could not be
// evaluated".
func (e *Evaluator) Filter(tbl *bindings.Table, expr Expr) FilterResult {
	v := e.Eval(tbl, expr)
	b, ok := AsBoolean(v)
	if !ok {
		return FilterError
	}
	if b {
		return FilterPass
	}
	return FilterDrop
}

// EffectiveBooleanValue exposes the raw (bool, ok) pair for callers that
// need to compose filter results (e.g. EXISTS/NOT EXISTS wrapping, or
// HAVING over aggregate projections) without the Pass/Drop/Error dressing.
func (e *Evaluator) EffectiveBooleanValue(tbl *bindings.Table, expr Expr) (bool, bool) {
	return AsBoolean(e.Eval(tbl, expr))
}

// SameTerm implements the sameTerm(a, b) built-in directly over two already
// evaluated values, for callers composing it without going through CallExpr
// (e.g. the join evaluator comparing VALUES rows).
func SameTerm(a, b term.Value) bool {
	return a.Kind == b.Kind && a.Lexical == b.Lexical && a.Int == b.Int &&
		a.Float == b.Float && a.Bool == b.Bool
}
