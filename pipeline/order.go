package pipeline

import (
	"context"
	"sort"

	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/eval"
	"github.com/wbrown/janus-sparql/scan"
	"github.com/wbrown/janus-sparql/term"
)

// SortKey names one ORDER BY term: an expression to sort by and whether to
// reverse its natural (ascending) RDF term ordering.
type SortKey struct {
	Expr       eval.Expr
	Descending bool
}

// OrderedRow is one fully materialized solution: a plain map snapshot of
// every variable this pipeline stage was told to carry forward, taken from
// the shared Table at the moment the row was produced. ORDER BY requires
// seeing every solution before it can emit the first one (§4.9), so unlike
// every other stage in this package it cannot stream — it must materialize.
type OrderedRow map[string]string

// SortScan drains inner fully, sorts the materialized rows by Keys using
// eval.OrderCompare (§5's RDF term ordering), and replays them one at a
// time rebinding vars into Table. Grounded on the teacher's Sort over a
// fully materialized Relation in datalog/executor/relation.go — the
// teacher's own relational model has the identical "must see everything
// first" constraint for ORDER BY.
type SortScan struct {
	tbl  *bindings.Table
	vars []string
	rows []OrderedRow
	mark int
	pos  int
}

// NewSortScan drains inner (closing it), evaluates keys per row, sorts by
// them, and returns a replay scan over vars.
func NewSortScan(ctx context.Context, inner scan.Scan, ev *eval.Evaluator, tbl *bindings.Table, vars []string, keys []SortKey) (*SortScan, error) {
	defer inner.Close()

	type materialized struct {
		row     OrderedRow
		keyVals []term.Value
	}
	var all []materialized

	for {
		ok, err := inner.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row := make(OrderedRow, len(vars))
		for _, name := range vars {
			idx := tbl.FindBinding(name)
			if idx >= 0 {
				row[name] = tbl.GetString(idx)
			}
		}
		keyVals := make([]term.Value, len(keys))
		for i, k := range keys {
			keyVals[i] = ev.Eval(tbl, k.Expr)
		}
		all = append(all, materialized{row: row, keyVals: keyVals})
	}

	sort.SliceStable(all, func(i, j int) bool {
		for k, key := range keys {
			cmp := eval.OrderCompare(all[i].keyVals[k], all[j].keyVals[k])
			if cmp == 0 {
				continue
			}
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	rows := make([]OrderedRow, len(all))
	for i, m := range all {
		rows[i] = m.row
	}
	return &SortScan{tbl: tbl, vars: vars, rows: rows, mark: tbl.Count()}, nil
}

func (s *SortScan) Next(ctx context.Context) (bool, error) {
	if s.pos >= len(s.rows) {
		s.tbl.TruncateTo(s.mark)
		return false, nil
	}
	s.tbl.TruncateTo(s.mark)
	row := s.rows[s.pos]
	s.pos++
	for _, name := range s.vars {
		if v, ok := row[name]; ok {
			if err := s.tbl.Bind(name, v); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (s *SortScan) Close() error { return nil }
