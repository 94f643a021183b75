// Package planner implements the heuristic pattern-reordering planner of
// §4.8: it orders a basic graph pattern's triple patterns so that more
// selective (lower estimated cardinality) patterns run first and each
// subsequent pattern shares a variable with the patterns already placed,
// avoiding an unconstrained cross product wherever a connected ordering
// exists. Grounded on datalog/planner/phase_reordering.go's
// greedy-selectivity reordering and datalog/planner/planner_patterns.go's
// pattern/variable bookkeeping, adapted from Datalog's EAVT clauses to RDF
// triple patterns and from the teacher's Relation-cardinality estimates to
// the statistics store of §6.
package planner

import (
	"github.com/wbrown/janus-sparql/store"
	"github.com/wbrown/janus-sparql/term"
)

// defaultCardinality multipliers for unknown-selectivity patterns, used
// when no predicate statistics are available (§4.8 step 4's fixed table):
// a pattern with more bound positions is assumed far more selective than
// one with fewer, in the absence of real statistics.
const (
	costAllBound   = 1.0
	costOneUnbound = 100.0
	costTwoUnbound = 1000.0
	costAllUnbound = 10000.0
)

// pathMultiplier* scale a property path's bound-position base cost by how
// expensive its traversal shape is relative to a single triple pattern
// (§4.8 step 4): unbounded-length traversals cost more than a fixed-depth
// one, and a sequence or alternative of steps falls in between.
const (
	pathMultiplierZeroOrMore  = 100.0
	pathMultiplierOneOrMore   = 50.0
	pathMultiplierSequence    = 10.0
	pathMultiplierAlternative = 2.0
)

// pathMultiplier returns the §4.8 step 4 multiplier for a property path's
// kind, or 1 (no extra cost beyond the bound-position base) for path forms
// that don't fan out over the whole graph.
func pathMultiplier(k term.PathKind) float64 {
	switch k {
	case term.PathZeroOrMore, term.PathGroupedZeroOrMore:
		return pathMultiplierZeroOrMore
	case term.PathOneOrMore, term.PathGroupedOneOrMore:
		return pathMultiplierOneOrMore
	case term.PathSequence:
		return pathMultiplierSequence
	case term.PathAlternative:
		return pathMultiplierAlternative
	default:
		return 1.0
	}
}

// Context resolves a Term to its query-source text, mirroring scan.QueryContext
// minimally so the planner needs no dependency on the scan package.
type Context struct {
	Source string
	Synth  *term.SyntheticTable
	Stats  store.StatsStore
}

func (c *Context) text(t term.Term) string { return t.Text(c.Source, c.Synth) }

// Reorder returns patterns reordered per the §4.8 heuristic: greedily pick,
// at each step, the remaining pattern with the lowest estimated cost that
// shares a variable with an already-placed pattern (or, for the first pick
// and whenever no connected candidate exists, simply the lowest-cost
// remaining pattern).
func Reorder(ctx *Context, patterns []term.TriplePattern) []term.TriplePattern {
	if len(patterns) <= 1 {
		return patterns
	}

	remaining := make([]term.TriplePattern, len(patterns))
	copy(remaining, patterns)
	costs := make([]float64, len(remaining))
	for i, p := range remaining {
		costs[i] = estimateCost(ctx, p)
	}

	placed := make([]term.TriplePattern, 0, len(patterns))
	boundVars := make(map[string]bool)

	for len(remaining) > 0 {
		best := -1
		bestConnected := false
		var bestCost float64

		for i, p := range remaining {
			connected := len(placed) == 0 || patternSharesVar(ctx, p, boundVars)
			if best == -1 {
				best, bestConnected, bestCost = i, connected, costs[i]
				continue
			}
			// Prefer a connected candidate over an unconnected one
			// regardless of cost; among equally-connected candidates,
			// prefer lower cost.
			if connected && !bestConnected {
				best, bestConnected, bestCost = i, connected, costs[i]
				continue
			}
			if connected == bestConnected && costs[i] < bestCost {
				best, bestConnected, bestCost = i, connected, costs[i]
			}
		}

		chosen := remaining[best]
		placed = append(placed, chosen)
		for _, name := range patternVars(ctx, chosen) {
			boundVars[name] = true
		}

		remaining = append(remaining[:best], remaining[best+1:]...)
		costs = append(costs[:best], costs[best+1:]...)
	}

	return placed
}

func patternVars(ctx *Context, p term.TriplePattern) []string {
	var out []string
	add := func(t term.Term) {
		if t.IsVariable() {
			out = append(out, ctx.text(t))
		}
	}
	add(p.Subject)
	if p.Path == nil {
		add(p.Predicate)
	}
	add(p.Object)
	return out
}

func patternSharesVar(ctx *Context, p term.TriplePattern, bound map[string]bool) bool {
	for _, name := range patternVars(ctx, p) {
		if bound[name] {
			return true
		}
	}
	return false
}

// estimateCost implements §4.8's cardinality estimate: statistics-backed
// when the predicate is a bound constant and stats are available, else the
// fixed bound-position multiplier table.
func estimateCost(ctx *Context, p term.TriplePattern) float64 {
	if p.Path != nil {
		var base float64
		switch {
		case p.Subject.IsVariable() && p.Object.IsVariable():
			base = costTwoUnbound
		case p.Subject.IsVariable() || p.Object.IsVariable():
			base = costOneUnbound
		default:
			base = costAllBound
		}
		return base * pathMultiplier(p.Path.Kind)
	}

	unbound := 0
	if p.Subject.IsVariable() {
		unbound++
	}
	if p.Predicate.IsVariable() {
		unbound++
	}
	if p.Object.IsVariable() {
		unbound++
	}

	if !p.Predicate.IsVariable() && ctx.Stats != nil {
		predIri := ctx.text(p.Predicate)
		if stats, ok := ctx.Stats.GetStats(predIri); ok && stats.TripleCount > 0 {
			base := float64(stats.TripleCount)
			switch unbound {
			case 0:
				return costAllBound // subject and object both fixed: a point lookup
			case 1:
				if !p.Subject.IsVariable() {
					return stats.AvgObjectsPerSubject
				}
				return stats.AvgSubjectsPerObject
			default:
				return base
			}
		}
	}

	switch unbound {
	case 0:
		return costAllBound
	case 1:
		return costOneUnbound
	case 2:
		return costTwoUnbound
	default:
		return costAllUnbound
	}
}
