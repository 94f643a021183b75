package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-sparql/aggregate"
	"github.com/wbrown/janus-sparql/eval"
	"github.com/wbrown/janus-sparql/pipeline"
	"github.com/wbrown/janus-sparql/store"
	"github.com/wbrown/janus-sparql/term"
)

// mkTerm builds a Term whose span covers needle's first occurrence in src,
// the same fixture-building convention scan's own tests use since no
// parser exists to produce real offsets.
func mkTerm(src, needle string, kind term.Kind) term.Term {
	idx := indexOf(src, needle)
	if idx < 0 {
		panic("mkTerm: " + needle + " not found in " + src)
	}
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

func fixedNow() string   { return "2026-01-01T00:00:00Z" }
func fixedRand() float64 { return 0.5 }

func TestExecuteJoinsTwoPatternsAndProjects(t *testing.T) {
	src := "?person <urn:name> ?name . ?person <urn:age> ?age"
	ms := store.NewMemoryStore()
	ms.Load(
		store.Quad{Subject: "<urn:alice>", Predicate: "<urn:name>", Object: `"Alice"`},
		store.Quad{Subject: "<urn:alice>", Predicate: "<urn:age>", Object: `"30"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		store.Quad{Subject: "<urn:bob>", Predicate: "<urn:name>", Object: `"Bob"`},
		store.Quad{Subject: "<urn:bob>", Predicate: "<urn:age>", Object: `"25"^^<http://www.w3.org/2001/XMLSchema#integer>`},
	)

	q := &Query{
		Source: src,
		Where: []Clause{
			TriplePatternClause{Pattern: term.TriplePattern{
				Subject:   mkTerm(src, "?person", term.Variable),
				Predicate: mkTerm(src, "<urn:name>", term.Iri),
				Object:    mkTerm(src, "?name", term.Variable),
			}},
			TriplePatternClause{Pattern: term.TriplePattern{
				Subject:   mkTerm(src, "?person", term.Variable),
				Predicate: mkTerm(src, "<urn:age>", term.Iri),
				Object:    mkTerm(src, "?age", term.Variable),
			}},
		},
		Project: []string{"?name", "?age"},
		Limit:   -1,
	}

	res, err := Execute(context.Background(), q, ms, Options{Now: fixedNow, Rand: fixedRand})
	require.NoError(t, err)
	defer res.Close()

	var names []string
	for {
		ok, err := res.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, term.ParseFromBinding(res.Current()["?name"]).Lex())
	}
	require.ElementsMatch(t, []string{"Alice", "Bob"}, names)
}

func TestExecuteOptionalPassesThroughUnmatchedRows(t *testing.T) {
	src := "?person <urn:name> ?name . ?person <urn:nick> ?nick"
	ms := store.NewMemoryStore()
	ms.Load(
		store.Quad{Subject: "<urn:alice>", Predicate: "<urn:name>", Object: `"Alice"`},
		store.Quad{Subject: "<urn:alice>", Predicate: "<urn:nick>", Object: `"Al"`},
		store.Quad{Subject: "<urn:bob>", Predicate: "<urn:name>", Object: `"Bob"`},
	)

	q := &Query{
		Source: src,
		Where: []Clause{
			TriplePatternClause{Pattern: term.TriplePattern{
				Subject:   mkTerm(src, "?person", term.Variable),
				Predicate: mkTerm(src, "<urn:name>", term.Iri),
				Object:    mkTerm(src, "?name", term.Variable),
			}},
			OptionalClause{Inner: []Clause{
				TriplePatternClause{Pattern: term.TriplePattern{
					Subject:   mkTerm(src, "?person", term.Variable),
					Predicate: mkTerm(src, "<urn:nick>", term.Iri),
					Object:    mkTerm(src, "?nick", term.Variable),
				}},
			}},
		},
		Project: []string{"?name", "?nick"},
		Limit:   -1,
	}

	res, err := Execute(context.Background(), q, ms, Options{Now: fixedNow, Rand: fixedRand})
	require.NoError(t, err)
	defer res.Close()

	got := map[string]string{}
	for {
		ok, err := res.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		name := term.ParseFromBinding(res.Current()["?name"]).Lex()
		nick := res.Current()["?nick"]
		got[name] = nick
	}
	require.Len(t, got, 2)
	require.NotEmpty(t, got["Alice"])
	require.Empty(t, got["Bob"]) // OPTIONAL left Bob's ?nick unbound
}

func TestExecuteFilterDropsNonMatchingRows(t *testing.T) {
	src := "?person <urn:age> ?age"
	ms := store.NewMemoryStore()
	ms.Load(
		store.Quad{Subject: "<urn:alice>", Predicate: "<urn:age>", Object: `"30"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		store.Quad{Subject: "<urn:bob>", Predicate: "<urn:age>", Object: `"25"^^<http://www.w3.org/2001/XMLSchema#integer>`},
	)

	q := &Query{
		Source: src,
		Where: []Clause{
			TriplePatternClause{Pattern: term.TriplePattern{
				Subject:   mkTerm(src, "?person", term.Variable),
				Predicate: mkTerm(src, "<urn:age>", term.Iri),
				Object:    mkTerm(src, "?age", term.Variable),
			}},
			FilterClause{Expr: eval.BinaryExpr{
				Op:    eval.OpGt,
				Left:  eval.VarExpr{Name: "?age"},
				Right: eval.LiteralExpr{Value: term.Int(26)},
			}},
		},
		Project: []string{"?person"},
		Limit:   -1,
	}

	res, err := Execute(context.Background(), q, ms, Options{Now: fixedNow, Rand: fixedRand})
	require.NoError(t, err)
	defer res.Close()

	var people []string
	for {
		ok, err := res.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		people = append(people, res.Current()["?person"])
	}
	require.Equal(t, []string{"<urn:alice>"}, people)
}

func TestExecuteOrderByDescending(t *testing.T) {
	src := "?person <urn:age> ?age"
	ms := store.NewMemoryStore()
	ms.Load(
		store.Quad{Subject: "<urn:alice>", Predicate: "<urn:age>", Object: `"30"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		store.Quad{Subject: "<urn:bob>", Predicate: "<urn:age>", Object: `"25"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		store.Quad{Subject: "<urn:carl>", Predicate: "<urn:age>", Object: `"40"^^<http://www.w3.org/2001/XMLSchema#integer>`},
	)

	q := &Query{
		Source: src,
		Where: []Clause{
			TriplePatternClause{Pattern: term.TriplePattern{
				Subject:   mkTerm(src, "?person", term.Variable),
				Predicate: mkTerm(src, "<urn:age>", term.Iri),
				Object:    mkTerm(src, "?age", term.Variable),
			}},
		},
		OrderBy: []pipeline.SortKey{{Expr: eval.VarExpr{Name: "?age"}, Descending: true}},
		Project: []string{"?person", "?age"},
		Limit:   -1,
	}

	res, err := Execute(context.Background(), q, ms, Options{Now: fixedNow, Rand: fixedRand})
	require.NoError(t, err)
	defer res.Close()

	var people []string
	for {
		ok, err := res.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		people = append(people, res.Current()["?person"])
	}
	require.Equal(t, []string{"<urn:carl>", "<urn:alice>", "<urn:bob>"}, people)
}

func TestExecuteGroupByCount(t *testing.T) {
	src := "?person <urn:team> ?team"
	ms := store.NewMemoryStore()
	ms.Load(
		store.Quad{Subject: "<urn:alice>", Predicate: "<urn:team>", Object: `"red"`},
		store.Quad{Subject: "<urn:bob>", Predicate: "<urn:team>", Object: `"red"`},
		store.Quad{Subject: "<urn:carl>", Predicate: "<urn:team>", Object: `"blue"`},
	)

	q := &Query{
		Source: src,
		Where: []Clause{
			TriplePatternClause{Pattern: term.TriplePattern{
				Subject:   mkTerm(src, "?person", term.Variable),
				Predicate: mkTerm(src, "<urn:team>", term.Iri),
				Object:    mkTerm(src, "?team", term.Variable),
			}},
		},
		GroupVars:  []eval.Expr{eval.VarExpr{Name: "?team"}},
		GroupNames: []string{"?team"},
		Aggregates: []aggregate.Spec{{Function: aggregate.Count, Arg: eval.VarExpr{Name: "?person"}, ResultVar: "?c"}},
		Project:    []string{"?team", "?c"},
		Limit:      -1,
	}

	res, err := Execute(context.Background(), q, ms, Options{Now: fixedNow, Rand: fixedRand})
	require.NoError(t, err)
	defer res.Close()

	counts := map[string]string{}
	for {
		ok, err := res.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		team := term.ParseFromBinding(res.Current()["?team"]).Lex()
		counts[team] = term.ParseFromBinding(res.Current()["?c"]).Lex()
	}
	require.Equal(t, "2", counts["red"])
	require.Equal(t, "1", counts["blue"])
}

func TestExecuteMinusExcludesSharedRows(t *testing.T) {
	src := "?person <urn:name> ?name . ?person <urn:banned> ?flag"
	ms := store.NewMemoryStore()
	ms.Load(
		store.Quad{Subject: "<urn:alice>", Predicate: "<urn:name>", Object: `"Alice"`},
		store.Quad{Subject: "<urn:bob>", Predicate: "<urn:name>", Object: `"Bob"`},
		store.Quad{Subject: "<urn:bob>", Predicate: "<urn:banned>", Object: `"true"^^<http://www.w3.org/2001/XMLSchema#boolean>`},
	)

	q := &Query{
		Source: src,
		Where: []Clause{
			TriplePatternClause{Pattern: term.TriplePattern{
				Subject:   mkTerm(src, "?person", term.Variable),
				Predicate: mkTerm(src, "<urn:name>", term.Iri),
				Object:    mkTerm(src, "?name", term.Variable),
			}},
			MinusClause{Inner: []Clause{
				TriplePatternClause{Pattern: term.TriplePattern{
					Subject:   mkTerm(src, "?person", term.Variable),
					Predicate: mkTerm(src, "<urn:banned>", term.Iri),
					Object:    mkTerm(src, "?flag", term.Variable),
				}},
			}},
		},
		Project: []string{"?name"},
		Limit:   -1,
	}

	res, err := Execute(context.Background(), q, ms, Options{Now: fixedNow, Rand: fixedRand})
	require.NoError(t, err)
	defer res.Close()

	var names []string
	for {
		ok, err := res.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, term.ParseFromBinding(res.Current()["?name"]).Lex())
	}
	require.Equal(t, []string{"Alice"}, names)
}
