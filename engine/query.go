// Package engine implements the single external entry point of §6:
// Execute(queryBuffer, store) -> QueryResults. It is the composition root
// that wires the planner's reordering (C9), the pattern/join/path/variant
// scans (C5-C8), the BIND/FILTER/EXISTS/MINUS/DISTINCT/LIMIT pipeline
// (C10), GROUP BY/aggregation (C11), and SERVICE materialization (C12)
// into one query-execution function, the same role the teacher's top-level
// DefaultQueryExecutor.Execute plays over its own clause list in
// datalog/executor/query_executor.go — a clause-by-clause compile loop
// that folds each clause into the scan chain built so far.
//
// The pattern-producing parser is explicitly out of scope (the spec's own
// Overview and §6 call out Execute(queryBuffer, store) as the sole
// surface), so a Query here is the already-compiled clause tree a parser
// would otherwise hand in: term.TriplePattern values whose Term fields
// already carry valid offsets into Source, not raw SPARQL text.
package engine

import (
	"context"
	"fmt"

	"github.com/wbrown/janus-sparql/aggregate"
	"github.com/wbrown/janus-sparql/annotations"
	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/eval"
	"github.com/wbrown/janus-sparql/planner"
	"github.com/wbrown/janus-sparql/pipeline"
	"github.com/wbrown/janus-sparql/scan"
	"github.com/wbrown/janus-sparql/service"
	"github.com/wbrown/janus-sparql/store"
	"github.com/wbrown/janus-sparql/term"
)

// Clause is one element of a Query's WHERE group (§4.4-§4.11). The
// discriminated-union shape mirrors term.PropertyPath's own Steps field:
// a flat set of concrete node types rather than an interpreted tree,
// matching the teacher's own query.Clause union in datalog/query/types.go.
type Clause interface{ isClause() }

// TriplePatternClause matches one triple or property-path pattern (§4.4).
type TriplePatternClause struct{ Pattern term.TriplePattern }

// BindClause implements BIND(Expr AS ?Name) (§4.9).
type BindClause struct {
	Name string
	Expr eval.Expr
}

// FilterClause implements FILTER(Expr) (§4.9).
type FilterClause struct{ Expr eval.Expr }

// OptionalClause implements OPTIONAL{...} (§4.7).
type OptionalClause struct{ Inner []Clause }

// UnionClause implements {...} UNION {...} (§4.6).
type UnionClause struct{ Branches [][]Clause }

// MinusClause implements MINUS{...} (§4.9).
type MinusClause struct{ Inner []Clause }

// ExistsClause implements FILTER (NOT) EXISTS{...} (§4.9).
type ExistsClause struct {
	Inner  []Clause
	Negate bool
}

// GraphClause implements GRAPH ?g {...} with an unbound graph variable
// (§4.6): it enumerates every named graph, binding GraphVar to each in
// turn. A bound GRAPH <iri> {...} needs no clause of its own — the caller
// simply sets each contained pattern's Graph term to that IRI directly.
type GraphClause struct {
	GraphVar string
	Inner    []Clause
}

// ServiceClause implements SERVICE [SILENT] <endpoint-or-var> {...}
// (§4.11). Endpoint is a constant IRI term, or a variable term already
// bound earlier in the query.
type ServiceClause struct {
	Endpoint term.Term
	Patterns []term.TriplePattern
	Silent   bool
}

// ValuesClause implements inline data (VALUES) as a pre-built row set
// joined like any other clause, reusing the same MaterializedScan that
// backs the SERVICE pattern scan (C12).
type ValuesClause struct {
	Vars []string
	Rows []map[string]string // each value already in §6 canonical binding form
}

func (TriplePatternClause) isClause() {}
func (BindClause) isClause()          {}
func (FilterClause) isClause()        {}
func (OptionalClause) isClause()      {}
func (UnionClause) isClause()         {}
func (MinusClause) isClause()         {}
func (ExistsClause) isClause()        {}
func (GraphClause) isClause()         {}
func (ServiceClause) isClause()       {}
func (ValuesClause) isClause()        {}

// Query is the compiled representation Execute consumes: the pattern
// buffer of §6, already reordered-by-the-caller-or-not (Execute always
// reorders each BGP run internally) and annotated with its solution
// modifiers.
type Query struct {
	Source string
	Synth  *term.SyntheticTable
	Where  []Clause

	GroupVars  []eval.Expr
	GroupNames []string
	Aggregates []aggregate.Spec
	Having     eval.Expr

	OrderBy  []pipeline.SortKey
	Distinct bool
	Offset   int
	Limit    int // negative means unbounded

	// Project lists the output variable names, in projection order. For a
	// GROUP BY/aggregate query this must be GroupNames followed by each
	// Aggregates[i].ResultVar.
	Project []string

	DefaultGraph string
}

// Options supplies the collaborators Execute needs beyond the store
// itself: planner statistics, a plan cache, the SERVICE materializer, the
// telemetry collector, and the fixed NOW()/RAND() sources §4.2 requires.
type Options struct {
	Stats     store.StatsStore
	PlanCache *planner.Cache
	Service   *service.Materializer
	Events    *annotations.Collector
	Now       func() string
	Rand      func() float64

	// BindingCap/ArenaCap size the shared bindings.Table (§4.1); zero
	// values fall back to the spec's own typical sizing (16 x 1024).
	BindingCap int
	ArenaCap   int
}

func (o *Options) normalize() {
	if o.BindingCap <= 0 {
		o.BindingCap = 16
	}
	if o.ArenaCap <= 0 {
		o.ArenaCap = 1024
	}
	if o.Events == nil {
		o.Events = annotations.NewCollector(nil)
	}
}

// Results is the pull-based solution sequence Execute returns: one Next
// call advances to the next solution and snapshots the projected
// variables' current values; Current reads that snapshot.
type Results struct {
	root    scan.Scan
	tbl     *bindings.Table
	project []string
	cur     map[string]string

	events   *annotations.Collector
	rowCount int
	closed   bool
}

// Next advances to the next solution, or returns false at exhaustion.
func (r *Results) Next(ctx context.Context) (bool, error) {
	ok, err := r.root.Next(ctx)
	if err != nil || !ok {
		r.cur = nil
		r.emitComplete(err == nil, err)
		return false, err
	}
	row := make(map[string]string, len(r.project))
	for _, name := range r.project {
		idx := r.tbl.FindBinding(name)
		if idx >= 0 {
			row[name] = r.tbl.GetString(idx)
		}
	}
	r.cur = row
	r.rowCount++
	return true, nil
}

func (r *Results) emitComplete(success bool, err error) {
	if r.events == nil || r.closed || !r.events.Enabled() {
		return
	}
	r.closed = true
	r.events.Add(annotations.Event{Name: annotations.QueryComplete, Data: map[string]interface{}{
		"success": success, "row.count": r.rowCount, "error": errString(err),
	}})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Current returns the most recent solution's canonical-form bindings,
// keyed by projected variable name (including the leading '?').
func (r *Results) Current() map[string]string { return r.cur }

// Vars returns the projected variable names in order.
func (r *Results) Vars() []string { return r.project }

// Close releases the root scan's resources.
func (r *Results) Close() error {
	r.emitComplete(true, nil)
	return r.root.Close()
}

// Execute is the spec's single external entry point (§6): compile q's
// clause tree into a scan/pipeline chain over st and return a pull-based
// result sequence.
func Execute(ctx context.Context, q *Query, st store.QuadStore, opts Options) (*Results, error) {
	opts.normalize()
	limit := q.Limit

	if opts.Events.Enabled() {
		opts.Events.Add(annotations.Event{Name: annotations.QueryInvoked, Data: map[string]interface{}{
			"query": q.Source,
		}})
	}

	tbl := bindings.New(opts.BindingCap, opts.ArenaCap)
	qc := &scan.QueryContext{Source: q.Source, Synth: q.Synth, Store: st, Table: tbl, DefaultGraph: q.DefaultGraph}
	pctx := &planner.Context{Source: q.Source, Synth: q.Synth, Stats: opts.Stats}

	now := opts.Now
	if now == nil {
		now = func() string { return "" }
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = func() float64 { return 0 }
	}
	ev := eval.NewEvaluator(now, rnd)

	c := &compiler{qc: qc, pctx: pctx, ev: ev, opts: &opts, ctx: ctx}
	factory, err := c.compileGroup(q.Where)
	if err != nil {
		return nil, fmt.Errorf("engine: compile query: %w", err)
	}

	root := factory()
	projection := q.Project

	if len(q.GroupNames) > 0 || len(q.Aggregates) > 0 {
		rows, err := aggregate.Compute(ctx, root, ev, tbl, q.GroupVars, q.GroupNames, q.Aggregates)
		if err != nil {
			return nil, fmt.Errorf("engine: aggregate: %w", err)
		}
		if q.Having != nil {
			rows = aggregate.Having(rows, ev, q.Having)
		}
		replay := make([]map[string]string, len(rows))
		for i, r := range rows {
			replay[i] = map[string]string(r)
		}
		root = scan.NewMaterializedScan(qc, replay)
		if opts.Events.Enabled() {
			opts.Events.Add(annotations.Event{Name: annotations.AggregationExecuted, Data: map[string]interface{}{
				"input.count": 0, "group.count": len(rows),
			}})
		}
	}

	if q.Distinct {
		root = pipeline.NewDistinctScan(root, tbl, projection)
	}

	if len(q.OrderBy) > 0 {
		sorted, err := pipeline.NewSortScan(ctx, root, ev, tbl, projection, q.OrderBy)
		if err != nil {
			return nil, fmt.Errorf("engine: order by: %w", err)
		}
		root = sorted
	}

	if q.Offset > 0 || limit >= 0 {
		root = pipeline.NewLimitScan(root, q.Offset, limit)
	}

	return &Results{root: root, tbl: tbl, project: projection, events: opts.Events}, nil
}

// compiler holds the shared collaborators used while folding a Query's
// clause tree into a scan.ScanFactory chain.
type compiler struct {
	qc   *scan.QueryContext
	pctx *planner.Context
	ev   *eval.Evaluator
	opts *Options
	ctx  context.Context
}

// compileGroup folds one clause list (a BGP plus its interspersed
// modifiers) into a single ScanFactory, exactly the way the teacher's
// DefaultQueryExecutor.Execute folds q.Where clause-by-clause into its
// running relation groups (datalog/executor/query_executor.go), except
// here each fold step wraps a scan.Scan chain instead of replacing a
// []Relation slice.
func (c *compiler) compileGroup(clauses []Clause) (scan.ScanFactory, error) {
	var current scan.ScanFactory = func() scan.Scan { return scan.NewJoinScan() }
	var pending []term.TriplePattern

	flush := func() {
		if len(pending) == 0 {
			return
		}
		var reordered []term.TriplePattern
		var cacheKey uint64
		cacheable := c.opts.PlanCache != nil
		if cacheable {
			cacheKey = planner.Key(c.pctx, pending)
			if cached, ok := c.opts.PlanCache.Get(cacheKey); ok {
				reordered = cached
			}
		}
		if reordered == nil {
			reordered = planner.Reorder(c.pctx, pending)
			if cacheable {
				c.opts.PlanCache.Put(cacheKey, reordered)
			}
		}
		patternFactories := make([]scan.ScanFactory, len(reordered))
		for i, p := range reordered {
			p := p
			if p.Path != nil {
				patternFactories[i] = func() scan.Scan { return scan.NewPathScan(c.qc, p) }
			} else {
				patternFactories[i] = func() scan.Scan { return scan.NewTriplePatternScan(c.qc, p) }
			}
		}
		prev := current
		current = func() scan.Scan {
			factories := append([]scan.ScanFactory{prev}, patternFactories...)
			return scan.NewJoinScan(factories...)
		}
		pending = nil
	}

	for i, cl := range clauses {
		switch v := cl.(type) {
		case TriplePatternClause:
			pending = append(pending, v.Pattern)

		case BindClause:
			flush()
			prev := current
			name, expr := v.Name, v.Expr
			current = func() scan.Scan { return pipeline.NewBindScan(prev(), c.ev, c.qc.Table, name, expr) }

		case FilterClause:
			flush()
			prev := current
			expr := v.Expr
			current = func() scan.Scan { return pipeline.NewFilterScan(prev(), c.ev, c.qc.Table, expr) }

		case ValuesClause:
			flush()
			prev := current
			rows := v.Rows
			current = func() scan.Scan {
				return scan.NewJoinScan(prev, func() scan.Scan { return scan.NewMaterializedScan(c.qc, rows) })
			}

		case OptionalClause:
			flush()
			innerFactory, err := c.compileGroup(v.Inner)
			if err != nil {
				return nil, err
			}
			prev := current
			current = func() scan.Scan { return scan.NewOptionalScan(prev(), innerFactory) }

		case UnionClause:
			flush()
			branchFactories := make([]scan.ScanFactory, len(v.Branches))
			for bi, branch := range v.Branches {
				bf, err := c.compileGroup(branch)
				if err != nil {
					return nil, err
				}
				branchFactories[bi] = bf
			}
			prev := current
			current = func() scan.Scan {
				return scan.NewJoinScan(prev, func() scan.Scan { return scan.NewUnionScan(c.qc, branchFactories...) })
			}

		case MinusClause:
			flush()
			rightFactory, err := c.compileGroup(v.Inner)
			if err != nil {
				return nil, err
			}
			outerVars := collectVars(c.qc.Source, c.qc.Synth, clauses[:i])
			innerVars := collectVars(c.qc.Source, c.qc.Synth, v.Inner)
			var shared []string
			for name := range outerVars {
				if innerVars[name] {
					shared = append(shared, name)
				}
			}
			prev := current
			current = func() scan.Scan {
				return pipeline.NewMinusScan(prev(), c.qc.Table, shared, rightFactory)
			}

		case ExistsClause:
			flush()
			probeFactory, err := c.compileGroup(v.Inner)
			if err != nil {
				return nil, err
			}
			prev := current
			negate := v.Negate
			current = func() scan.Scan {
				return pipeline.NewExistsScan(prev(), c.qc.Table, negate, probeFactory)
			}

		case GraphClause:
			flush()
			innerFactory, err := c.compileGroup(v.Inner)
			if err != nil {
				return nil, err
			}
			prev := current
			graphVar := v.GraphVar
			qc := c.qc
			ctx := c.ctx
			current = func() scan.Scan {
				cg, err := scan.NewCrossGraphScan(ctx, qc, graphVar, func(string) scan.ScanFactory { return innerFactory })
				if err != nil {
					return errScan{err}
				}
				return scan.NewJoinScan(prev, func() scan.Scan { return cg })
			}

		case ServiceClause:
			flush()
			prev := current
			endpoint := v.Endpoint
			patterns := v.Patterns
			silent := v.Silent
			qc := c.qc
			ctx := c.ctx
			svc := c.opts.Service
			current = func() scan.Scan {
				return scan.NewJoinScan(prev, func() scan.Scan {
					if svc == nil {
						return errScan{fmt.Errorf("engine: SERVICE clause with no service.Materializer configured")}
					}
					var ep term.Value
					if endpoint.IsVariable() {
						ep = eval.Lookup(qc.Table, endpoint.Text(qc.Source, qc.Synth))
					} else {
						// The endpoint IRI's source span already carries its
						// surrounding "<...>", the same canonical form every
						// other constant term resolves to via resolvePosition.
						ep = term.Value{Kind: term.UriValue, Lexical: endpoint.Text(qc.Source, qc.Synth)}
					}
					bound := collectBoundValues(qc.Table)
					st, release, err := svc.Materialize(ctx, ep, patterns, bound, silent)
					if err != nil {
						return errScan{err}
					}
					defer release()
					rows, err := service.RowsFromStore(ctx, st)
					if err != nil {
						return errScan{err}
					}
					return scan.NewMaterializedScan(qc, rows)
				})
			}
		}
	}

	flush()
	return current, nil
}

// collectVars walks a clause list and returns every variable name that
// appears anywhere in it: triple-pattern positions and BIND targets,
// recursing into nested clause groups. Used by MINUS (§4.9) to determine
// which variables the outer and inner solutions must share for exclusion
// to apply at all.
func collectVars(source string, synth *term.SyntheticTable, clauses []Clause) map[string]bool {
	out := make(map[string]bool)
	var walk func([]Clause)
	addTerm := func(t term.Term) {
		if t.IsVariable() {
			out[t.Text(source, synth)] = true
		}
	}
	walk = func(cs []Clause) {
		for _, cl := range cs {
			switch v := cl.(type) {
			case TriplePatternClause:
				addTerm(v.Pattern.Subject)
				if v.Pattern.Path == nil {
					addTerm(v.Pattern.Predicate)
				}
				addTerm(v.Pattern.Object)
			case BindClause:
				out[v.Name] = true
			case ValuesClause:
				for _, name := range v.Vars {
					out[name] = true
				}
			case OptionalClause:
				walk(v.Inner)
			case UnionClause:
				for _, b := range v.Branches {
					walk(b)
				}
			case MinusClause:
				walk(v.Inner)
			case ExistsClause:
				walk(v.Inner)
			case GraphClause:
				out[v.GraphVar] = true
				walk(v.Inner)
			case ServiceClause:
				for _, p := range v.Patterns {
					addTerm(p.Subject)
					if p.Path == nil {
						addTerm(p.Predicate)
					}
					addTerm(p.Object)
				}
			}
		}
	}
	walk(clauses)
	return out
}

// collectBoundValues snapshots every variable currently bound in tbl as a
// term.Value map, the shape service.Materializer.Materialize needs for
// substituting outer bindings into a SERVICE clause's remote query.
func collectBoundValues(tbl *bindings.Table) map[string]term.Value {
	out := make(map[string]term.Value, tbl.Count())
	for i := 0; i < tbl.Count(); i++ {
		b := tbl.At(i)
		out[b.Name] = eval.Lookup(tbl, b.Name)
	}
	return out
}

// errScan is a Scan that immediately fails with a fixed error, used to
// surface a setup-time error (e.g. CrossGraphScan's Graphs() call, or a
// SERVICE clause with no configured Materializer) through the ordinary
// Scan/JoinScan error path rather than a panic or a separate error channel.
type errScan struct{ err error }

func (e errScan) Next(context.Context) (bool, error) { return false, e.err }
func (e errScan) Close() error                       { return nil }
