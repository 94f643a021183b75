// Package store defines the Quad Store Interface (C1) and the Statistics
// Store contract (§6) consumed by the rest of the engine, plus the two
// concrete implementations this repo ships: an in-memory indexed store
// (grounded on datalog/executor/indexed_memory_matcher.go) and an optional
// Badger-backed durable store (grounded on datalog/storage/database.go).
//
// The quad store is deliberately out of scope as a *specification*: §1
// treats it as "an opaque source of a (subject, predicate, object, graph)
// scan API". This package supplies that opaque collaborator so the engine
// in package scan has something concrete to run against.
package store

import "context"

// Quad is one (subject, predicate, object, graph) tuple yielded by a store
// scan. Values are the canonical stringified forms of §6: "<…>" for IRIs,
// bare lexical text for plain literals, "\"lex\"^^<dt>" / "\"lex\"@tag" for
// typed/language-tagged literals.
type Quad struct {
	Subject   string
	Predicate string
	Object    string
	Graph     string // "" denotes the default graph
}

// Iterator is a single-consumer, disposable, pull-based cursor over quads
// matching a query, per §5/§6. Returned strings remain valid only until the
// next Next() or Close() call — implementations that can avoid per-quad
// allocation should.
type Iterator interface {
	// Next advances to the next quad, returning false at exhaustion or on
	// error (check Err() to distinguish the two).
	Next(ctx context.Context) bool
	// Quad returns the current quad. Only valid after Next returned true.
	Quad() Quad
	// Err returns the first error encountered, if any.
	Err() error
	// Close releases resources held by the iterator.
	Close() error
}

// QuadStore is the C1 contract: a wildcard-tolerant scan API. An empty
// string in s/p/o/graph means "wildcard" (match anything); a non-empty
// string must match exactly against the store's canonical stringified form.
type QuadStore interface {
	// Query returns a lazy iterator over quads matching the given pattern.
	Query(ctx context.Context, s, p, o, graph string) (Iterator, error)

	// QueryAsOf restricts the scan to the store's state as of a given
	// logical timestamp. Optional: stores without temporal support may
	// implement this as an alias for Query.
	QueryAsOf(ctx context.Context, s, p, o string, asOf int64, graph string) (Iterator, error)

	// QueryChanges returns quads whose validity changed within
	// [rangeStart, rangeEnd). Optional; stores without a change log may
	// return an empty iterator.
	QueryChanges(ctx context.Context, s, p, o string, rangeStart, rangeEnd int64, graph string) (Iterator, error)

	// QueryEvolution returns every historical version of quads matching the
	// pattern. Optional; stores without versioning may alias Query.
	QueryEvolution(ctx context.Context, s, p, o, graph string) (Iterator, error)

	// Graphs returns every named graph the store currently holds data in,
	// used by the default-graph-union and GRAPH-variable scans (C7).
	Graphs(ctx context.Context) ([]string, error)
}
