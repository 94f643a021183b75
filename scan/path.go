package scan

import (
	"context"
	"fmt"

	"github.com/wbrown/janus-sparql/term"
)

// PathScan implements property-path matching (§4.4/§4.4.1): inverse, `?`,
// `*`, `+`, sequence, alternative, negated-property-set, and the grouped
// forms that re-run the §4.4.1 node-set algorithm at each step. Grounded on
// the teacher's preference for iterative (non-recursive) traversal in
// datalog/executor/join.go — BFS over an explicit frontier/visited set
// rather than recursive expansion, so a pathological `+`/`*` depth cannot
// blow the Go call stack.
type PathScan struct {
	qc      *QueryContext
	subject term.Term
	path    term.PropertyPath
	object  term.Term
	graph   term.Term
	mark    int

	results []pathEndpoint // computed once, on first Next
	pos     int
	filled  bool
}

type pathEndpoint struct {
	subject string
	object  string
}

// NewPathScan creates a scan for a single-step or compound property path.
func NewPathScan(qc *QueryContext, pattern term.TriplePattern) *PathScan {
	return &PathScan{
		qc:      qc,
		subject: pattern.Subject,
		path:    *pattern.Path,
		object:  pattern.Object,
		graph:   pattern.Graph,
		mark:    qc.Table.Count(),
	}
}

func (s *PathScan) Next(ctx context.Context) (bool, error) {
	if !s.filled {
		s.qc.Table.TruncateTo(s.mark)
		sv, _, sIsVar := s.qc.resolvePosition(s.subject)
		ov, _, oIsVar := s.qc.resolvePosition(s.object)

		var start, end string
		if !sIsVar || sv != "" {
			start = sv
		}
		if !oIsVar || ov != "" {
			end = ov
		}

		endpoints, err := s.evalPath(ctx, s.path, start, end)
		if err != nil {
			return false, err
		}
		s.results = endpoints
		s.filled = true
	}

	_, sName, sIsVar := s.qc.resolvePosition(s.subject)
	_, oName, oIsVar := s.qc.resolvePosition(s.object)

	for s.pos < len(s.results) {
		ep := s.results[s.pos]
		s.pos++
		s.qc.Table.TruncateTo(s.mark)

		ok := true
		if sIsVar {
			ok = bindVar(s.qc.Table, sName, ep.subject)
		}
		if ok && oIsVar {
			ok = bindVar(s.qc.Table, oName, ep.object)
		}
		if !ok {
			continue
		}
		return true, nil
	}
	s.qc.Table.TruncateTo(s.mark)
	return false, nil
}

func (s *PathScan) Close() error { return nil }

// evalPath computes the (subject, object) endpoint pairs satisfying path,
// given optionally-bound start/end constants ("" means unbound).
func (s *PathScan) evalPath(ctx context.Context, p term.PropertyPath, start, end string) ([]pathEndpoint, error) {
	switch {
	case p.Kind == term.PathNone:
		return s.stepOnce(ctx, s.qc.text(term.Term{Offset: p.Offset, Length: p.Length, Kind: term.Iri}), false, start, end)
	case p.Kind == term.PathInverse:
		return s.stepOnce(ctx, s.qc.text(term.Term{Offset: p.Offset, Length: p.Length, Kind: term.Iri}), true, start, end)
	case p.Kind == term.PathZeroOrOne, p.Kind == term.PathGroupedZeroOrOne:
		step := p
		step.Kind = term.PathNone
		if p.Kind == term.PathGroupedZeroOrOne && len(p.Steps) == 1 {
			step = p.Steps[0]
		} else if p.Kind == term.PathGroupedZeroOrOne && len(p.Steps) > 1 {
			step = term.PropertyPath{Kind: term.PathSequence, Steps: p.Steps}
		}
		base, err := s.evalPath(ctx, step, start, end)
		if err != nil {
			return nil, err
		}
		return s.withIdentity(base, start, end), nil
	case p.Kind.IsTransitive():
		return s.transitiveClosure(ctx, p, start, end)
	case p.Kind == term.PathSequence:
		return s.sequence(ctx, p.Steps, start, end)
	case p.Kind == term.PathAlternative:
		return s.alternative(ctx, p.Steps, start, end)
	case p.Kind == term.PathNegatedSet:
		return s.negatedSet(ctx, p, start, end)
	case p.Kind == term.PathInverseGroup:
		// ^(a/b): evaluate the sequence from end to start, then swap each pair.
		rev, err := s.evalPath(ctx, term.PropertyPath{Kind: term.PathSequence, Steps: p.Steps}, end, start)
		if err != nil {
			return nil, err
		}
		out := make([]pathEndpoint, 0, len(rev))
		for _, e := range rev {
			out = append(out, pathEndpoint{subject: e.object, object: e.subject})
		}
		return out, nil
	}
	return nil, fmt.Errorf("scan: unsupported property path kind %s", p.Kind)
}

// withIdentity adds the reflexive (x,x) pairs contributed by `?` (§4.4):
// for each node reachable as a start or already present as an endpoint,
// plus start/end themselves when bound, add (n,n) if not already present.
func (s *PathScan) withIdentity(base []pathEndpoint, start, end string) []pathEndpoint {
	seen := make(map[pathEndpoint]bool, len(base))
	out := make([]pathEndpoint, 0, len(base)+2)
	for _, e := range base {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	addIdentity := func(n string) {
		if n == "" {
			return
		}
		e := pathEndpoint{n, n}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	if start != "" {
		addIdentity(start)
	}
	if end != "" {
		addIdentity(end)
	}
	if start == "" && end == "" {
		for _, e := range base {
			addIdentity(e.subject)
			addIdentity(e.object)
		}
	}
	return out
}

// stepOnce matches a single bare (possibly inverted) predicate IRI.
func (s *PathScan) stepOnce(ctx context.Context, predIri string, inverted bool, start, end string) ([]pathEndpoint, error) {
	sv, ov := start, end
	if inverted {
		sv, ov = end, start
	}
	it, err := s.qc.Store.Query(ctx, sv, predIri, ov, s.qc.DefaultGraph)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []pathEndpoint
	for it.Next(ctx) {
		q := it.Quad()
		if inverted {
			out = append(out, pathEndpoint{subject: q.Object, object: q.Subject})
		} else {
			out = append(out, pathEndpoint{subject: q.Subject, object: q.Object})
		}
	}
	return out, it.Err()
}

// transitiveClosure implements ZeroOrMore/OneOrMore via BFS from each
// candidate start node (§4.4). When start is unbound the frontier begins
// from every distinct subject or object in the graph (allNodes). A grouped
// form with several Steps expands each frontier node through the whole
// step sequence.
func (s *PathScan) transitiveClosure(ctx context.Context, p term.PropertyPath, start, end string) ([]pathEndpoint, error) {
	step := p
	step.Kind = term.PathNone
	if len(p.Steps) == 1 {
		step = p.Steps[0]
	} else if len(p.Steps) > 1 {
		step = term.PropertyPath{Kind: term.PathSequence, Steps: p.Steps}
	} else {
		step = term.PropertyPath{Kind: term.PathNone, Offset: p.Offset, Length: p.Length}
	}
	if p.Kind == term.PathInverseGroup {
		step.Kind = term.PathInverse
	}

	base, err := s.evalPath(ctx, baseOfTransitive(step), "", "")
	if err != nil {
		return nil, err
	}
	adjacency := make(map[string][]string)
	for _, e := range base {
		adjacency[e.subject] = append(adjacency[e.subject], e.object)
	}

	var starts []string
	if start != "" {
		starts = []string{start}
	} else {
		// Both endpoints unbound: §4.4 Testable Property #5 requires the
		// reflexive-pair set to cover every node in the graph, not just
		// subjects this path's own predicate happens to connect from.
		nodes, err := s.allNodes(ctx)
		if err != nil {
			return nil, err
		}
		starts = nodes
	}

	var out []pathEndpoint
	zeroOrMore := p.Kind == term.PathZeroOrMore || p.Kind == term.PathGroupedZeroOrMore
	for _, from := range starts {
		visited := map[string]bool{}
		var frontier []string
		if zeroOrMore {
			out = append(out, pathEndpoint{from, from})
			visited[from] = true
		}
		frontier = append(frontier, from)
		for len(frontier) > 0 {
			next := frontier[0]
			frontier = frontier[1:]
			for _, nbr := range adjacency[next] {
				if visited[nbr] {
					continue
				}
				visited[nbr] = true
				out = append(out, pathEndpoint{from, nbr})
				frontier = append(frontier, nbr)
			}
		}
	}

	if end != "" {
		filtered := out[:0]
		for _, e := range out {
			if e.object == end {
				filtered = append(filtered, e)
			}
		}
		out = filtered
	}
	return out, nil
}

func baseOfTransitive(step term.PropertyPath) term.PropertyPath {
	return step
}

// allNodes returns every distinct subject or object appearing anywhere in
// the graph, across all predicates, for the unbound-both-endpoints seed
// set a reflexive `?s p* ?o` must range over (§4.4 Testable Property #5).
func (s *PathScan) allNodes(ctx context.Context) ([]string, error) {
	it, err := s.qc.Store.Query(ctx, "", "", "", s.qc.DefaultGraph)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for it.Next(ctx) {
		q := it.Quad()
		add(q.Subject)
		add(q.Object)
	}
	return out, it.Err()
}

// sequence implements path/path/... by iteratively joining each step's
// endpoint set on the shared midpoint node.
func (s *PathScan) sequence(ctx context.Context, steps []term.PropertyPath, start, end string) ([]pathEndpoint, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	cur, err := s.evalPath(ctx, steps[0], start, "")
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(steps); i++ {
		var next []pathEndpoint
		midpoints := make(map[string][]string) // midpoint -> origins
		for _, e := range cur {
			midpoints[e.object] = append(midpoints[e.object], e.subject)
		}
		for mid, origins := range midpoints {
			stepEnd := ""
			if i == len(steps)-1 {
				stepEnd = end
			}
			tails, err := s.evalPath(ctx, steps[i], mid, stepEnd)
			if err != nil {
				return nil, err
			}
			for _, t := range tails {
				if t.subject != mid {
					continue
				}
				for _, origin := range origins {
					next = append(next, pathEndpoint{origin, t.object})
				}
			}
		}
		cur = next
	}
	if end != "" {
		filtered := cur[:0]
		for _, e := range cur {
			if e.object == end {
				filtered = append(filtered, e)
			}
		}
		cur = filtered
	}
	return cur, nil
}

// alternative implements path|path|... as the union of each branch's
// endpoint set, de-duplicated (§4.4's grouped-set semantics).
func (s *PathScan) alternative(ctx context.Context, steps []term.PropertyPath, start, end string) ([]pathEndpoint, error) {
	seen := make(map[pathEndpoint]bool)
	var out []pathEndpoint
	for _, step := range steps {
		branch, err := s.evalPath(ctx, step, start, end)
		if err != nil {
			return nil, err
		}
		for _, e := range branch {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// negatedSet implements !(:p1|:p2|...|^:p3) (§4.4): matches any predicate
// except those named. Forward pairs come from one scan filtered by the
// direct members and are produced only when the set has direct members;
// reversed pairs come from a second, object-to-subject scan filtered by the
// ^-members and are produced only when the set has ^-members.
func (s *PathScan) negatedSet(ctx context.Context, p term.PropertyPath, start, end string) ([]pathEndpoint, error) {
	excluded := make(map[string]bool)
	excludedInverse := make(map[string]bool)
	for _, step := range p.Steps {
		iri := s.qc.text(term.Term{Offset: step.Offset, Length: step.Length, Kind: term.Iri})
		if step.Kind == term.PathInverse {
			excludedInverse[iri] = true
		} else {
			excluded[iri] = true
		}
	}

	it, err := s.qc.Store.Query(ctx, start, "", end, s.qc.DefaultGraph)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []pathEndpoint
	for it.Next(ctx) {
		q := it.Quad()
		if len(excluded) > 0 && !excluded[q.Predicate] {
			out = append(out, pathEndpoint{q.Subject, q.Object})
		}
	}
	if err := it.Err(); err != nil || len(excludedInverse) == 0 {
		return out, err
	}
	inv, err := s.qc.Store.Query(ctx, end, "", start, s.qc.DefaultGraph)
	if err != nil {
		return nil, err
	}
	defer inv.Close()
	for inv.Next(ctx) {
		if q := inv.Quad(); !excludedInverse[q.Predicate] {
			out = append(out, pathEndpoint{q.Object, q.Subject})
		}
	}
	return out, inv.Err()
}
