// Package scan implements the pattern-matching and join scans of §4.4–§4.8:
// simple triple-pattern scans, property-path scans, the backtracking
// nested-loop join, UNION/subquery variant scans, and OPTIONAL extension.
// Every scan shares one bindings.Table: Next pushes new bindings onto it and
// a failed/exhausted branch truncates back to its entry mark, the same
// stack discipline the teacher's iterator composition in
// datalog/executor/iterator_composition.go documents for its own
// Iterator.Next/Close contract, adapted here from relation-algebra tuples to
// in-place table mutation.
package scan

import (
	"context"
	"fmt"

	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/store"
	"github.com/wbrown/janus-sparql/term"
)

// Scan is the shared contract for every scan variant in this package. A scan
// owns no binding state of its own beyond its entry mark: Next either
// extends the shared Table with a new candidate row and returns true, or
// truncates the Table back to where it started and returns false.
type Scan interface {
	// Next advances to the next match, writing bindings into the shared
	// Table. Returns false (with err nil) when exhausted.
	Next(ctx context.Context) (bool, error)

	// Close releases the scan's resources (store iterators, nested scans).
	Close() error
}

// QueryContext threads the immutable query source buffer, its synthetic
// term table, and the backing store through every scan without needing a
// context.Context value (reserved for cancellation only, per the teacher's
// own separation of concerns in executor/context.go).
type QueryContext struct {
	Source string
	Synth  *term.SyntheticTable
	Store  store.QuadStore
	Table  *bindings.Table

	// DefaultGraph, when non-empty, is substituted for patterns whose Graph
	// term is unspecified (§4.6's default-graph-union rule applied at the
	// outermost scope only; inner GRAPH clauses override it).
	DefaultGraph string
}

func (qc *QueryContext) text(t term.Term) string {
	return t.Text(qc.Source, qc.Synth)
}

// resolvePosition resolves one triple-pattern position (subject/predicate/
// object/graph) to either a bound query-string value (variable already
// bound in Table), a literal/IRI constant, or "" for an unbound wildcard.
// variable is the variable's name and isVar is true only for a variable
// term; a constant and a wildcard blank node (which never binds and never
// constrains, §3's IsWildcard) both report isVar false.
func (qc *QueryContext) resolvePosition(t term.Term) (value string, variable string, isVar bool) {
	if t.IsWildcard() {
		return "", "", false
	}
	if t.IsVariable() {
		name := qc.text(t)
		idx := qc.Table.FindBinding(name)
		if idx >= 0 {
			return qc.Table.GetString(idx), name, true
		}
		return "", name, true
	}
	return qc.text(t), "", false
}

// bindVar writes val into Table under name if name is non-empty and not
// already bound identically; returns false if name is already bound to a
// different value (a repeated variable within one pattern, e.g. ?x ?p ?x,
// that fails to self-join).
func bindVar(tbl *bindings.Table, name, val string) bool {
	if name == "" {
		return true
	}
	if idx := tbl.FindBinding(name); idx >= 0 {
		return tbl.GetString(idx) == val
	}
	return tbl.Bind(name, val) == nil
}

// TriplePatternScan implements the simple (non-path) scan of §4.4: a single
// store.Query call per Scan, with graph-position handling folded in.
type TriplePatternScan struct {
	qc      *QueryContext
	pattern term.TriplePattern
	mark    int

	it      store.Iterator
	started bool
}

// NewTriplePatternScan creates a scan over pattern. The caller must not
// reuse pattern's Path field here — grouped/transitive patterns go through
// NewPathScan instead.
func NewTriplePatternScan(qc *QueryContext, pattern term.TriplePattern) *TriplePatternScan {
	return &TriplePatternScan{qc: qc, pattern: pattern, mark: qc.Table.Count()}
}

func (s *TriplePatternScan) graphValue() (string, string, bool) {
	if s.pattern.Graph.IsWildcard() && s.pattern.Graph.Length == 0 && s.pattern.Graph.Kind == term.BlankNode {
		return s.qc.DefaultGraph, "", false
	}
	return s.qc.resolvePosition(s.pattern.Graph)
}

func (s *TriplePatternScan) open(ctx context.Context) error {
	sv, _, _ := s.qc.resolvePosition(s.pattern.Subject)
	pv, _, _ := s.qc.resolvePosition(s.pattern.Predicate)
	ov, _, _ := s.qc.resolvePosition(s.pattern.Object)
	gv, _, _ := s.graphValue()

	it, err := s.qc.Store.Query(ctx, sv, pv, ov, gv)
	if err != nil {
		return fmt.Errorf("scan: open triple pattern: %w", err)
	}
	s.it = it
	s.started = true
	return nil
}

func (s *TriplePatternScan) Next(ctx context.Context) (bool, error) {
	if !s.started {
		if err := s.open(ctx); err != nil {
			return false, err
		}
	}

	for s.it.Next(ctx) {
		s.qc.Table.TruncateTo(s.mark)
		q := s.it.Quad()

		_, sName, sIsVar := s.qc.resolvePosition(s.pattern.Subject)
		_, pName, pIsVar := s.qc.resolvePosition(s.pattern.Predicate)
		_, oName, oIsVar := s.qc.resolvePosition(s.pattern.Object)
		_, gName, gIsVar := s.graphValue()

		ok := true
		if sIsVar {
			ok = bindVar(s.qc.Table, sName, q.Subject)
		}
		if ok && pIsVar {
			ok = bindVar(s.qc.Table, pName, q.Predicate)
		}
		if ok && oIsVar {
			ok = bindVar(s.qc.Table, oName, q.Object)
		}
		if ok && gIsVar && gName != "" {
			ok = bindVar(s.qc.Table, gName, q.Graph)
		}
		if !ok {
			continue
		}
		return true, nil
	}
	if err := s.it.Err(); err != nil {
		return false, err
	}
	s.qc.Table.TruncateTo(s.mark)
	return false, nil
}

func (s *TriplePatternScan) Close() error {
	if s.it != nil {
		return s.it.Close()
	}
	return nil
}
