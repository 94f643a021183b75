// Package pipeline implements the solution-modifier chain of §4.9: each
// stage wraps an inner scan.Scan and is itself a scan.Scan, so the whole
// chain — BIND, FILTER, EXISTS/NOT EXISTS, MINUS, DISTINCT, and
// OFFSET/LIMIT — composes the same way scan's own join and union stages
// do. VALUES is not a stage here: the engine joins it through
// scan.MaterializedScan. Grounded on the teacher's clause-by-clause
// transform/collapse loop in datalog/executor/query_executor.go, adapted
// from whole-relation transforms to per-row streaming stages over the
// shared bindings.Table.
package pipeline

import (
	"context"

	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/eval"
	"github.com/wbrown/janus-sparql/scan"
)

// BindScan evaluates Expr for each inner row and binds the result under
// Name, per §4.9's BIND. Neither BindScan nor the engine checks whether
// Name is already bound in scope; if it is, the new value is appended as a
// second binding and FindBinding keeps returning the earlier one.
type BindScan struct {
	inner scan.Scan
	eval  *eval.Evaluator
	tbl   *bindings.Table
	expr  eval.Expr
	name  string
	mark  int
}

// NewBindScan wraps inner, binding name to expr's value on each row.
func NewBindScan(inner scan.Scan, ev *eval.Evaluator, tbl *bindings.Table, name string, expr eval.Expr) *BindScan {
	return &BindScan{inner: inner, eval: ev, tbl: tbl, expr: expr, name: name, mark: tbl.Count()}
}

func (b *BindScan) Next(ctx context.Context) (bool, error) {
	ok, err := b.inner.Next(ctx)
	if err != nil || !ok {
		return false, err
	}
	v := b.eval.Eval(b.tbl, b.expr)
	if v.IsUnbound() {
		return true, nil // BIND of an error/unbound expression leaves the variable unbound, row still passes
	}
	if err := b.tbl.Bind(b.name, v.BindingForm()); err != nil {
		return false, err
	}
	return true, nil
}

func (b *BindScan) Close() error { return b.inner.Close() }

// FilterScan drops rows whose Expr does not evaluate to FilterPass (§5): an
// Error or explicit false both drop the row, matching FILTER's semantics
// that a type error excludes a solution rather than raising.
type FilterScan struct {
	inner scan.Scan
	eval  *eval.Evaluator
	tbl   *bindings.Table
	expr  eval.Expr
}

// NewFilterScan wraps inner, keeping only rows where expr passes.
func NewFilterScan(inner scan.Scan, ev *eval.Evaluator, tbl *bindings.Table, expr eval.Expr) *FilterScan {
	return &FilterScan{inner: inner, eval: ev, tbl: tbl, expr: expr}
}

func (f *FilterScan) Next(ctx context.Context) (bool, error) {
	for {
		ok, err := f.inner.Next(ctx)
		if err != nil || !ok {
			return false, err
		}
		if f.eval.Filter(f.tbl, f.expr) == eval.FilterPass {
			return true, nil
		}
	}
}

func (f *FilterScan) Close() error { return f.inner.Close() }

// ExistsScan implements the FILTER EXISTS{...} / FILTER NOT EXISTS{...}
// boolean test (§4.9): for each left row it runs buildProbe once to check
// whether the inner pattern has any match at all under the current
// bindings, without binding any of the probe's own variables into the
// outer row (EXISTS only tests existence, it never extends bindings).
type ExistsScan struct {
	inner      scan.Scan
	buildProbe func() scan.Scan
	negate     bool
	mark       int
	tbl        *bindings.Table
}

// NewExistsScan wraps inner; negate=true implements NOT EXISTS.
func NewExistsScan(inner scan.Scan, tbl *bindings.Table, negate bool, buildProbe func() scan.Scan) *ExistsScan {
	return &ExistsScan{inner: inner, buildProbe: buildProbe, negate: negate, tbl: tbl, mark: tbl.Count()}
}

func (e *ExistsScan) Next(ctx context.Context) (bool, error) {
	for {
		ok, err := e.inner.Next(ctx)
		if err != nil || !ok {
			return false, err
		}
		mark := e.tbl.Count()
		probe := e.buildProbe()
		exists, err := probe.Next(ctx)
		probe.Close()
		e.tbl.TruncateTo(mark)
		if err != nil {
			return false, err
		}
		if exists != e.negate {
			return true, nil
		}
	}
}

func (e *ExistsScan) Close() error { return e.inner.Close() }

// MinusScan implements MINUS{...} (§4.9): a left row is excluded only if
// the right pattern has a compatible solution sharing at least one
// variable with the left row — two solutions that share no variables never
// exclude one another, per SPARQL's MINUS definition.
type MinusScan struct {
	inner       scan.Scan
	buildRight  func() scan.Scan
	tbl         *bindings.Table
	sharedNames []string
}

// NewMinusScan wraps inner; sharedNames lists the variable names that must
// overlap between the left and right solution for the exclusion to apply.
func NewMinusScan(inner scan.Scan, tbl *bindings.Table, sharedNames []string, buildRight func() scan.Scan) *MinusScan {
	return &MinusScan{inner: inner, buildRight: buildRight, tbl: tbl, sharedNames: sharedNames}
}

func (m *MinusScan) Next(ctx context.Context) (bool, error) {
	for {
		ok, err := m.inner.Next(ctx)
		if err != nil || !ok {
			return false, err
		}
		if len(m.sharedNames) == 0 {
			// No shared variables with the right side: MINUS never excludes.
			return true, nil
		}
		mark := m.tbl.Count()
		right := m.buildRight()
		excluded, err := right.Next(ctx)
		right.Close()
		m.tbl.TruncateTo(mark)
		if err != nil {
			return false, err
		}
		if !excluded {
			return true, nil
		}
	}
}

func (m *MinusScan) Close() error { return m.inner.Close() }

// DistinctScan implements SELECT DISTINCT/REDUCED (§4.9): it suppresses any
// row whose projected-variable values it has already produced, keyed on
// the exact string form of each named variable's binding.
type DistinctScan struct {
	inner scan.Scan
	tbl   *bindings.Table
	vars  []string
	seen  map[string]bool
}

// NewDistinctScan wraps inner, deduplicating on the listed projection vars.
func NewDistinctScan(inner scan.Scan, tbl *bindings.Table, projectionVars []string) *DistinctScan {
	return &DistinctScan{inner: inner, tbl: tbl, vars: projectionVars, seen: make(map[string]bool)}
}

func (d *DistinctScan) Next(ctx context.Context) (bool, error) {
	for {
		ok, err := d.inner.Next(ctx)
		if err != nil || !ok {
			return false, err
		}
		key := d.rowKey()
		if d.seen[key] {
			continue
		}
		d.seen[key] = true
		return true, nil
	}
}

func (d *DistinctScan) rowKey() string {
	var b []byte
	for _, name := range d.vars {
		idx := d.tbl.FindBinding(name)
		if idx < 0 {
			b = append(b, 0)
			continue
		}
		b = append(b, d.tbl.GetString(idx)...)
		b = append(b, 0)
	}
	return string(b)
}

func (d *DistinctScan) Close() error { return d.inner.Close() }

// LimitScan implements OFFSET/LIMIT (§4.9): it skips the first Offset rows
// and then yields at most Limit more (Limit<0 means unbounded).
type LimitScan struct {
	inner  scan.Scan
	offset int
	limit  int
	seen   int
	taken  int
}

// NewLimitScan wraps inner with the given offset and limit (limit<0 for
// "no limit").
func NewLimitScan(inner scan.Scan, offset, limit int) *LimitScan {
	return &LimitScan{inner: inner, offset: offset, limit: limit}
}

func (l *LimitScan) Next(ctx context.Context) (bool, error) {
	if l.limit >= 0 && l.taken >= l.limit {
		return false, nil
	}
	for l.seen < l.offset {
		ok, err := l.inner.Next(ctx)
		if err != nil || !ok {
			return false, err
		}
		l.seen++
	}
	ok, err := l.inner.Next(ctx)
	if err != nil || !ok {
		return false, err
	}
	l.taken++
	return true, nil
}

func (l *LimitScan) Close() error { return l.inner.Close() }
