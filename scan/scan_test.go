package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/store"
	"github.com/wbrown/janus-sparql/term"
)

func newQC(t *testing.T, source string, quads ...store.Quad) *QueryContext {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.Load(quads...)
	return &QueryContext{
		Source: source,
		Synth:  term.NewSyntheticTable(),
		Store:  ms,
		Table:  bindings.New(16, 1024),
	}
}

// mkTerm builds a Term whose span covers needle's first occurrence in src.
func mkTerm(src, needle string, kind term.Kind) term.Term {
	idx := indexOf(src, needle)
	return term.Term{Kind: kind, Offset: idx, Length: len(needle)}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestTriplePatternScanBindsVariable(t *testing.T) {
	src := "?s <urn:p> ?o"
	qc := newQC(t, src,
		store.Quad{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "1"},
		store.Quad{Subject: "<urn:b>", Predicate: "<urn:p>", Object: "2"},
	)
	pattern := term.TriplePattern{
		Subject:   mkTerm(src, "?s", term.Variable),
		Predicate: mkTerm(src, "<urn:p>", term.Iri),
		Object:    mkTerm(src, "?o", term.Variable),
	}
	sc := NewTriplePatternScan(qc, pattern)
	defer sc.Close()

	var subjects []string
	for {
		ok, err := sc.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		idx := qc.Table.FindBinding("?s")
		require.GreaterOrEqual(t, idx, 0)
		subjects = append(subjects, qc.Table.GetString(idx))
	}
	require.ElementsMatch(t, []string{"<urn:a>", "<urn:b>"}, subjects)
}

func TestJoinScanNestedLoop(t *testing.T) {
	src := "?s <urn:p> ?o . ?o <urn:q> ?t"
	qc := newQC(t, src,
		store.Quad{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "<urn:x>"},
		store.Quad{Subject: "<urn:b>", Predicate: "<urn:p>", Object: "<urn:y>"},
		store.Quad{Subject: "<urn:x>", Predicate: "<urn:q>", Object: "1"},
		store.Quad{Subject: "<urn:y>", Predicate: "<urn:q>", Object: "2"},
	)
	p1 := term.TriplePattern{
		Subject:   mkTerm(src, "?s", term.Variable),
		Predicate: mkTerm(src, "<urn:p>", term.Iri),
		Object:    mkTerm(src, "?o", term.Variable),
	}
	p2 := term.TriplePattern{
		Subject:   mkTerm(src, "?o", term.Variable),
		Predicate: mkTerm(src, "<urn:q>", term.Iri),
		Object:    mkTerm(src, "?t", term.Variable),
	}

	j := NewJoinScan(
		func() Scan { return NewTriplePatternScan(qc, p1) },
		func() Scan { return NewTriplePatternScan(qc, p2) },
	)
	defer j.Close()

	var results []string
	for {
		ok, err := j.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		idx := qc.Table.FindBinding("?t")
		results = append(results, qc.Table.GetString(idx))
	}
	require.ElementsMatch(t, []string{"1", "2"}, results)
}

func TestOptionalScanPassesThroughUnmatched(t *testing.T) {
	src := "?s <urn:p> ?o . OPTIONAL { ?o <urn:missing> ?t }"
	qc := newQC(t, src,
		store.Quad{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "<urn:x>"},
	)
	p1 := term.TriplePattern{
		Subject:   mkTerm(src, "?s", term.Variable),
		Predicate: mkTerm(src, "<urn:p>", term.Iri),
		Object:    mkTerm(src, "?o", term.Variable),
	}
	p2 := term.TriplePattern{
		Subject:   mkTerm(src, "?o", term.Variable),
		Predicate: mkTerm(src, "<urn:missing>", term.Iri),
		Object:    mkTerm(src, "?t", term.Variable),
	}

	left := NewTriplePatternScan(qc, p1)
	opt := NewOptionalScan(left, func() Scan { return NewTriplePatternScan(qc, p2) })
	defer opt.Close()

	ok, err := opt.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, -1, qc.Table.FindBinding("?t"))

	ok, err = opt.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnionScanConcatenatesBranches(t *testing.T) {
	src := "{ ?s <urn:p> ?o } UNION { ?s <urn:q> ?o }"
	qc := newQC(t, src,
		store.Quad{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "1"},
		store.Quad{Subject: "<urn:b>", Predicate: "<urn:q>", Object: "2"},
	)
	p1 := term.TriplePattern{
		Subject:   mkTerm(src, "?s", term.Variable),
		Predicate: mkTerm(src, "<urn:p>", term.Iri),
		Object:    mkTerm(src, "?o", term.Variable),
	}
	p2 := term.TriplePattern{
		Subject:   mkTerm(src, "?s", term.Variable),
		Predicate: mkTerm(src, "<urn:q>", term.Iri),
		Object:    mkTerm(src, "?o", term.Variable),
	}

	u := NewUnionScan(qc,
		func() Scan { return NewTriplePatternScan(qc, p1) },
		func() Scan { return NewTriplePatternScan(qc, p2) },
	)
	defer u.Close()

	var objects []string
	for {
		ok, err := u.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		idx := qc.Table.FindBinding("?o")
		objects = append(objects, qc.Table.GetString(idx))
	}
	require.ElementsMatch(t, []string{"1", "2"}, objects)
}

func TestPathScanOneOrMore(t *testing.T) {
	src := "?s <urn:knows>+ ?o"
	qc := newQC(t, src,
		store.Quad{Subject: "<urn:a>", Predicate: "<urn:knows>", Object: "<urn:b>"},
		store.Quad{Subject: "<urn:b>", Predicate: "<urn:knows>", Object: "<urn:c>"},
	)
	pattern := term.TriplePattern{
		Subject: mkTerm(src, "?s", term.Variable),
		Object:  mkTerm(src, "?o", term.Variable),
		Path: &term.PropertyPath{
			Kind: term.PathOneOrMore,
			Steps: []term.PropertyPath{
				{Kind: term.PathNone, Offset: indexOf(src, "<urn:knows>"), Length: len("<urn:knows>")},
			},
		},
	}
	sc := NewPathScan(qc, pattern)
	defer sc.Close()

	seen := map[string]bool{}
	for {
		ok, err := sc.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		sIdx := qc.Table.FindBinding("?s")
		oIdx := qc.Table.FindBinding("?o")
		seen[qc.Table.GetString(sIdx)+"->"+qc.Table.GetString(oIdx)] = true
	}
	require.True(t, seen["<urn:a>-><urn:b>"])
	require.True(t, seen["<urn:a>-><urn:c>"])
	require.True(t, seen["<urn:b>-><urn:c>"])
	require.False(t, seen["<urn:b>-><urn:a>"])
}
