package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-sparql/store"
	"github.com/wbrown/janus-sparql/term"
)

func mkTerm(src, needle string, kind term.Kind) term.Term {
	idx := 0
	for i := 0; i+len(needle) <= len(src); i++ {
		if src[i:i+len(needle)] == needle {
			idx = i
			break
		}
	}
	return term.Term{Kind: kind, Offset: idx, Length: len(needle)}
}

func TestReorderPrefersBoundPatternFirst(t *testing.T) {
	src := "?s ?p ?o . ?s <urn:name> \"alice\""
	ctx := &Context{Source: src, Synth: term.NewSyntheticTable()}

	unbound := term.TriplePattern{
		Subject:   mkTerm(src, "?s", term.Variable),
		Predicate: mkTerm(src, "?p", term.Variable),
		Object:    mkTerm(src, "?o", term.Variable),
	}
	bound := term.TriplePattern{
		Subject:   mkTerm(src, "?s", term.Variable),
		Predicate: mkTerm(src, "<urn:name>", term.Iri),
		Object:    mkTerm(src, "\"alice\"", term.Literal),
	}

	out := Reorder(ctx, []term.TriplePattern{unbound, bound})
	require.Equal(t, bound, out[0], "the fully-bound-predicate pattern should run first")
}

func TestReorderKeepsConnectedOrdering(t *testing.T) {
	src := "?a <urn:p> ?b . ?b <urn:q> ?c . ?x <urn:r> ?y"
	ctx := &Context{Source: src, Synth: term.NewSyntheticTable()}

	p1 := term.TriplePattern{Subject: mkTerm(src, "?a", term.Variable), Predicate: mkTerm(src, "<urn:p>", term.Iri), Object: mkTerm(src, "?b", term.Variable)}
	p2 := term.TriplePattern{Subject: mkTerm(src, "?b", term.Variable), Predicate: mkTerm(src, "<urn:q>", term.Iri), Object: mkTerm(src, "?c", term.Variable)}
	p3 := term.TriplePattern{Subject: mkTerm(src, "?x", term.Variable), Predicate: mkTerm(src, "<urn:r>", term.Iri), Object: mkTerm(src, "?y", term.Variable)}

	out := Reorder(ctx, []term.TriplePattern{p3, p1, p2})
	require.Len(t, out, 3)
	// p1 and p2 share ?b; whichever of them runs first, the other must
	// immediately follow it (p3 may come before or after the pair).
	idx := map[term.TriplePattern]int{}
	for i, p := range out {
		idx[p] = i
	}
	require.True(t, abs(idx[p1]-idx[p2]) == 1)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestCacheRoundTrip(t *testing.T) {
	src := "?s <urn:p> ?o"
	ctx := &Context{Source: src, Synth: term.NewSyntheticTable()}
	p := term.TriplePattern{Subject: mkTerm(src, "?s", term.Variable), Predicate: mkTerm(src, "<urn:p>", term.Iri), Object: mkTerm(src, "?o", term.Variable)}
	patterns := []term.TriplePattern{p}

	c := NewCache(10, time.Minute)
	key := Key(ctx, patterns)

	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, patterns)
	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, patterns, got)

	hits, misses, size := c.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
	require.Equal(t, 1, size)
}

func TestEstimateCostUsesStatistics(t *testing.T) {
	stats := store.NewStats()
	stats.Observe(store.Quad{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "1"})
	stats.Observe(store.Quad{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "2"})
	stats.Observe(store.Quad{Subject: "<urn:b>", Predicate: "<urn:p>", Object: "3"})

	src := "?s <urn:p> ?o"
	ctx := &Context{Source: src, Synth: term.NewSyntheticTable(), Stats: stats}
	p := term.TriplePattern{Subject: mkTerm(src, "?s", term.Variable), Predicate: mkTerm(src, "<urn:p>", term.Iri), Object: mkTerm(src, "?o", term.Variable)}

	// predicate bound, subject and object both free: the estimate falls
	// back to the predicate's total triple count.
	cost := estimateCost(ctx, p)
	require.InDelta(t, 3.0, cost, 0.01)
}

func TestEstimateCostUsesPerPositionAverage(t *testing.T) {
	stats := store.NewStats()
	stats.Observe(store.Quad{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "1"})
	stats.Observe(store.Quad{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "2"})
	stats.Observe(store.Quad{Subject: "<urn:b>", Predicate: "<urn:p>", Object: "3"})

	src := "<urn:a> <urn:p> ?o"
	ctx := &Context{Source: src, Synth: term.NewSyntheticTable(), Stats: stats}
	p := term.TriplePattern{Subject: mkTerm(src, "<urn:a>", term.Iri), Predicate: mkTerm(src, "<urn:p>", term.Iri), Object: mkTerm(src, "?o", term.Variable)}

	// subject bound, object free: expect the average fan-out from that subject.
	cost := estimateCost(ctx, p)
	require.InDelta(t, 1.5, cost, 0.01)
}
