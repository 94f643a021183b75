package scan

import (
	"context"
)

// UnionScan implements UNION{...} (§4.6): each branch factory runs to
// exhaustion in turn, truncating back to the union's entry mark between
// branches so a later branch never sees an earlier branch's bindings.
// Grounded on the teacher's discriminated relation variants in
// datalog/executor/relation.go and its streaming_union.go, generalized
// from whole-relation concatenation to per-row backtracking.
type UnionScan struct {
	qc       *QueryContext
	branches []ScanFactory
	mark     int

	idx     int
	current Scan
}

// NewUnionScan builds a scan over the ordered UNION branches.
func NewUnionScan(qc *QueryContext, branches ...ScanFactory) *UnionScan {
	return &UnionScan{qc: qc, branches: branches, mark: qc.Table.Count()}
}

func (u *UnionScan) Next(ctx context.Context) (bool, error) {
	for u.idx < len(u.branches) {
		if u.current == nil {
			u.qc.Table.TruncateTo(u.mark)
			u.current = u.branches[u.idx]()
		}
		ok, err := u.current.Next(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		u.current.Close()
		u.current = nil
		u.idx++
	}
	u.qc.Table.TruncateTo(u.mark)
	return false, nil
}

func (u *UnionScan) Close() error {
	if u.current != nil {
		return u.current.Close()
	}
	return nil
}

// SubqueryScan runs an inner scan (a full sub-SELECT's plan) as a single
// join level, exposing the same Scan contract as a triple pattern. Its
// structural role is identical to the teacher's subquery.go relation — a
// nested plan materialized as one more row source in the outer join — but
// here it is simply a Scan wrapper, since the outer JoinScan already
// handles backtracking uniformly over any Scan.
type SubqueryScan struct {
	inner Scan
}

// NewSubqueryScan wraps an already-planned inner scan.
func NewSubqueryScan(inner Scan) *SubqueryScan {
	return &SubqueryScan{inner: inner}
}

func (s *SubqueryScan) Next(ctx context.Context) (bool, error) { return s.inner.Next(ctx) }
func (s *SubqueryScan) Close() error                           { return s.inner.Close() }

// CrossGraphScan implements GRAPH ?g { ... } with ?g unbound (§4.6): it
// iterates every named graph returned by the store and, for each, runs the
// inner pattern factory with ?g bound to that graph, truncating between
// graphs exactly like UnionScan's branch truncation.
type CrossGraphScan struct {
	qc       *QueryContext
	graphVar string
	build    func(graph string) ScanFactory
	mark     int

	graphs  []string
	gi      int
	current Scan
}

// NewCrossGraphScan enumerates qc.Store.Graphs and re-runs build(graph) for
// each, binding graphVar to the graph IRI before the inner scan opens.
func NewCrossGraphScan(ctx context.Context, qc *QueryContext, graphVar string, build func(graph string) ScanFactory) (*CrossGraphScan, error) {
	graphs, err := qc.Store.Graphs(ctx)
	if err != nil {
		return nil, err
	}
	return &CrossGraphScan{qc: qc, graphVar: graphVar, build: build, mark: qc.Table.Count(), graphs: graphs}, nil
}

func (c *CrossGraphScan) Next(ctx context.Context) (bool, error) {
	for c.gi < len(c.graphs) {
		if c.current == nil {
			c.qc.Table.TruncateTo(c.mark)
			if !bindVar(c.qc.Table, c.graphVar, c.graphs[c.gi]) {
				c.gi++
				continue
			}
			c.current = c.build(c.graphs[c.gi])()
		}
		ok, err := c.current.Next(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		c.current.Close()
		c.current = nil
		c.gi++
	}
	c.qc.Table.TruncateTo(c.mark)
	return false, nil
}

func (c *CrossGraphScan) Close() error {
	if c.current != nil {
		return c.current.Close()
	}
	return nil
}

// MaterializedScan replays a pre-fetched slice of rows — each row a set of
// (name, value) pairs — as a Scan. Used by the SERVICE materializer (C12)
// and by VALUES, which both produce a fixed row set up front rather than
// streaming from a live QuadStore.
type MaterializedScan struct {
	qc   *QueryContext
	rows []map[string]string
	mark int
	pos  int
}

// NewMaterializedScan wraps a pre-computed row set.
func NewMaterializedScan(qc *QueryContext, rows []map[string]string) *MaterializedScan {
	return &MaterializedScan{qc: qc, rows: rows, mark: qc.Table.Count()}
}

func (m *MaterializedScan) Next(ctx context.Context) (bool, error) {
	for m.pos < len(m.rows) {
		row := m.rows[m.pos]
		m.pos++
		m.qc.Table.TruncateTo(m.mark)
		ok := true
		for name, val := range row {
			if !bindVar(m.qc.Table, name, val) {
				ok = false
				break
			}
		}
		if ok {
			return true, nil
		}
	}
	m.qc.Table.TruncateTo(m.mark)
	return false, nil
}

func (m *MaterializedScan) Close() error { return nil }
