package main

import (
	"github.com/wbrown/janus-sparql/engine"
	"github.com/wbrown/janus-sparql/eval"
	"github.com/wbrown/janus-sparql/store"
	"github.com/wbrown/janus-sparql/term"
)

const xsdInteger = "http://www.w3.org/2001/XMLSchema#integer"

// demoQuads is the fixture data runDemo/runSingleQuery load into an empty
// store, the same three-person/friendship shape the teacher's runDemo
// builds via tx.AddMap/tx.Add, expressed as RDF quads instead of datoms.
func demoQuads() []store.Quad {
	return []store.Quad{
		{Subject: "<urn:alice>", Predicate: "<urn:person/name>", Object: `"Alice"`},
		{Subject: "<urn:alice>", Predicate: "<urn:person/age>", Object: `"30"^^<` + xsdInteger + `>`},
		{Subject: "<urn:alice>", Predicate: "<urn:person/city>", Object: `"New York"`},
		{Subject: "<urn:bob>", Predicate: "<urn:person/name>", Object: `"Bob"`},
		{Subject: "<urn:bob>", Predicate: "<urn:person/age>", Object: `"25"^^<` + xsdInteger + `>`},
		{Subject: "<urn:bob>", Predicate: "<urn:person/city>", Object: `"Boston"`},
		{Subject: "<urn:charlie>", Predicate: "<urn:person/name>", Object: `"Charlie"`},
		{Subject: "<urn:charlie>", Predicate: "<urn:person/age>", Object: `"35"^^<` + xsdInteger + `>`},
		{Subject: "<urn:charlie>", Predicate: "<urn:person/city>", Object: `"New York"`},
		{Subject: "<urn:alice>", Predicate: "<urn:person/friend>", Object: "<urn:bob>"},
		{Subject: "<urn:alice>", Predicate: "<urn:person/friend>", Object: "<urn:charlie>"},
		{Subject: "<urn:bob>", Predicate: "<urn:person/friend>", Object: "<urn:charlie>"},
	}
}

// srcBuilder assembles one Query's Source text and its terms' Offset/Length
// spans together, token by token, the role a real parser would otherwise
// play; there being no parser here (it is out of scope), this CLI is its
// own caller building already-resolved term.Term values.
type srcBuilder struct {
	text string
}

func (b *srcBuilder) term(kind term.Kind, lexeme string) term.Term {
	if b.text != "" {
		b.text += " "
	}
	off := len(b.text)
	b.text += lexeme
	return term.Term{Kind: kind, Offset: off, Length: len(lexeme)}
}

func (b *srcBuilder) variable(name string) term.Term { return b.term(term.Variable, name) }
func (b *srcBuilder) iri(name string) term.Term      { return b.term(term.Iri, name) }
func (b *srcBuilder) literal(lexical string) term.Term {
	return b.term(term.Literal, lexical)
}

func (b *srcBuilder) pattern(s, p, o term.Term) engine.TriplePatternClause {
	return engine.TriplePatternClause{Pattern: term.TriplePattern{Subject: s, Predicate: p, Object: o}}
}

// demoQueryNames lists the named queries -query/.query accept, in display
// order.
func demoQueryNames() []string {
	return []string{"people", "ny", "friends", "over25", "future-age"}
}

// demoQuery builds one named query, or nil if name isn't recognized. Each
// mirrors one of the teacher's runDemo query strings, translated from
// Datalog find/where clauses to triple-pattern clauses over the same demo
// data's RDF shape.
func demoQuery(name string) *engine.Query {
	switch name {
	case "people":
		b := &srcBuilder{}
		p, name_, age := b.variable("?p"), b.variable("?name"), b.variable("?age")
		q := &engine.Query{
			Where: []engine.Clause{
				b.pattern(p, b.iri("<urn:person/name>"), name_),
				b.pattern(p, b.iri("<urn:person/age>"), age),
			},
			Project: []string{"?name", "?age"},
			Limit:   -1,
		}
		q.Source = b.text
		return q

	case "ny":
		b := &srcBuilder{}
		p, name_ := b.variable("?p"), b.variable("?name")
		q := &engine.Query{
			Where: []engine.Clause{
				b.pattern(p, b.iri("<urn:person/name>"), name_),
				b.pattern(p, b.iri("<urn:person/city>"), b.literal(`"New York"`)),
			},
			Project: []string{"?name"},
			Limit:   -1,
		}
		q.Source = b.text
		return q

	case "friends":
		b := &srcBuilder{}
		alice, friend, friendName := b.variable("?alice"), b.variable("?friend"), b.variable("?friendName")
		q := &engine.Query{
			Where: []engine.Clause{
				b.pattern(alice, b.iri("<urn:person/name>"), b.literal(`"Alice"`)),
				b.pattern(alice, b.iri("<urn:person/friend>"), friend),
				b.pattern(friend, b.iri("<urn:person/name>"), friendName),
			},
			Project: []string{"?friendName"},
			Limit:   -1,
		}
		q.Source = b.text
		return q

	case "over25":
		b := &srcBuilder{}
		p, name_, age := b.variable("?p"), b.variable("?name"), b.variable("?age")
		q := &engine.Query{
			Where: []engine.Clause{
				b.pattern(p, b.iri("<urn:person/name>"), name_),
				b.pattern(p, b.iri("<urn:person/age>"), age),
				engine.FilterClause{Expr: eval.BinaryExpr{
					Op:    eval.OpGt,
					Left:  eval.VarExpr{Name: "?age"},
					Right: eval.LiteralExpr{Value: term.Int(25)},
				}},
			},
			Project: []string{"?name", "?age"},
			Limit:   -1,
		}
		q.Source = b.text
		return q

	case "future-age":
		b := &srcBuilder{}
		p, name_, age := b.variable("?p"), b.variable("?name"), b.variable("?age")
		q := &engine.Query{
			Where: []engine.Clause{
				b.pattern(p, b.iri("<urn:person/name>"), name_),
				b.pattern(p, b.iri("<urn:person/age>"), age),
				engine.BindClause{
					Name: "?futureAge",
					Expr: eval.BinaryExpr{
						Op:    eval.OpAdd,
						Left:  eval.VarExpr{Name: "?age"},
						Right: eval.LiteralExpr{Value: term.Int(5)},
					},
				},
			},
			Project: []string{"?name", "?age", "?futureAge"},
			Limit:   -1,
		}
		q.Source = b.text
		return q

	default:
		return nil
	}
}
