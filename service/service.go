// Package service implements the SERVICE materializer (C12, §4.11): for each
// SERVICE clause it resolves the endpoint, hands the clause's patterns and
// the caller's already-bound variables to an injected Executor collaborator,
// and loads the returned rows back into a rented temporary quad store as
// synthetic triples so that downstream triple-pattern scans (package scan)
// can query the remote result set the same way they query any other store.
//
// The HTTP transport and the SELECT * WHERE {...} query text the spec's
// collaborator contract describes are both explicitly out of scope — only
// the materialization contract is specified — so Executor receives
// structured patterns instead of serialized query text; building that text
// (and speaking SPARQL protocol over the wire) is the caller's concern.
//
// Grounded on datalog/storage/matcher.go's builder-cache/rental pattern
// (a shared, concurrency-capped collaborator handed out per request) and
// datalog/executor/subquery_decorrelation.go's materialize-then-join shape.
package service

import (
	"context"
	"fmt"
	"runtime"

	"github.com/wbrown/janus-sparql/store"
	"github.com/wbrown/janus-sparql/term"
)

// ServiceResultRow is one solution row an external SPARQL endpoint returned
// for a SERVICE clause: a map from the clause's projected variable names to
// their evaluated term.Value.
type ServiceResultRow map[string]term.Value

// Executor is the collaborator contract of §4.11: given the resolved
// endpoint IRI, the clause's patterns (for building the remote query), and
// the variables already bound in the outer query (for substitution), it
// runs the remote SELECT and returns its solution rows. Implementations own
// query serialization and HTTP transport; both are out of scope here.
type Executor func(ctx context.Context, endpoint string, patterns []term.TriplePattern, bound map[string]term.Value) ([]ServiceResultRow, error)

// Pool caps the number of SERVICE materializations running concurrently, per
// §5's "process-wide pool with maxConcurrent = 2 × processorCount; rentals
// are scoped and returned on disposal". A quad store built from a remote
// result set is cheap and immutable once loaded, so Pool rents out fresh
// MemoryStore instances rather than recycling used ones — only the
// concurrency slot, not the store object, is a scarce shared resource.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool with the given concurrency cap. maxConcurrent<=0
// defaults to 2×NumCPU per §5.
func NewPool(maxConcurrent int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 2 * runtime.NumCPU()
	}
	return &Pool{sem: make(chan struct{}, maxConcurrent)}
}

// Rent blocks until a concurrency slot is free (or ctx is done), then hands
// back a fresh temporary store and a release func the caller must call
// exactly once to return the slot.
func (p *Pool) Rent(ctx context.Context) (*store.MemoryStore, func(), error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		<-p.sem
	}
	return store.NewMemoryStore(), release, nil
}

// Materializer runs SERVICE clauses against Exec and loads their results
// into rented stores from Pool.
type Materializer struct {
	Pool *Pool
	Exec Executor
}

// NewMaterializer creates a Materializer with the given pool and collaborator.
func NewMaterializer(pool *Pool, exec Executor) *Materializer {
	return &Materializer{Pool: pool, Exec: exec}
}

// Materialize resolves endpoint (already-dereferenced: a constant IRI, or a
// value looked up from a bound SERVICE-variable by the caller), runs the
// clause against Exec, and returns a temporary quad store loaded with the
// synthetic triples described in step 4 of §4.11, plus a release func the
// caller must invoke when done with the store (returning the Pool slot).
//
// On an Exec error: if silent is true (SILENT was specified on the clause),
// Materialize returns an empty rented store and a nil error, matching
// §4.11 step 5 / the ServiceFailure row of the error-handling table; if
// silent is false the error is surfaced and no store is returned.
func (m *Materializer) Materialize(ctx context.Context, endpoint term.Value, patterns []term.TriplePattern, bound map[string]term.Value, silent bool) (store.QuadStore, func(), error) {
	if endpoint.Kind != term.UriValue {
		return nil, nil, fmt.Errorf("service: endpoint must resolve to an IRI, got %s", endpoint)
	}
	endpointIRI := endpoint.Lex()

	s, release, err := m.Pool.Rent(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := m.Exec(ctx, endpointIRI, patterns, bound)
	if err != nil {
		if silent {
			return s, release, nil
		}
		release()
		return nil, nil, err
	}

	s.Load(rowsToQuads(endpointIRI, rows)...)
	return s, release, nil
}

// rowsToQuads assigns each row a row-unique synthetic blank-node subject and,
// for each bound variable in that row, a synthetic predicate IRI encoding
// the variable's name, so a triple-pattern scan over `?row ?var ?value` can
// recover the endpoint's result table uniformly with every other scan.
func rowsToQuads(endpointIRI string, rows []ServiceResultRow) []store.Quad {
	quads := make([]store.Quad, 0, len(rows))
	for i, row := range rows {
		subject := fmt.Sprintf("_:service-%s-%d", endpointIRI, i)
		for name, val := range row {
			if val.IsUnbound() {
				continue
			}
			quads = append(quads, store.Quad{
				Subject:   subject,
				Predicate: syntheticPredicate(name),
				Object:    val.BindingForm(),
			})
		}
	}
	return quads
}

// syntheticPredicate renders the per-variable synthetic predicate IRI of
// §4.11 step 4. It is never a real ontology term; only this package
// (VarFromPredicate and RowsFromStore) decodes its shape.
func syntheticPredicate(varName string) string {
	return "<urn:sparqlet:service-var:" + varName + ">"
}

// VarFromPredicate recovers the variable name a syntheticPredicate IRI was
// built from, for scans that need to project a SERVICE store's synthetic
// triples back into named bindings.
func VarFromPredicate(predicate string) (string, bool) {
	const prefix = "<urn:sparqlet:service-var:"
	if len(predicate) < len(prefix)+1 || predicate[:len(prefix)] != prefix || predicate[len(predicate)-1] != '>' {
		return "", false
	}
	return predicate[len(prefix) : len(predicate)-1], true
}

// RowsFromStore reads a materialized SERVICE store back into the
// map[string]string row form scan.NewMaterializedScan consumes, recovering
// each row's variable bindings by grouping synthetic triples by subject and
// decoding each predicate back to its variable name via VarFromPredicate.
// This is the "Service Pattern Scan" of the scan variants: a pre-materialized
// ServiceResultRow list run with ordinary compatibility-join semantics
// against the outer query's existing bindings.
func RowsFromStore(ctx context.Context, s store.QuadStore) ([]map[string]string, error) {
	it, err := s.Query(ctx, "", "", "", "")
	if err != nil {
		return nil, err
	}
	defer it.Close()

	bySubject := make(map[string]map[string]string)
	var order []string
	for it.Next(ctx) {
		q := it.Quad()
		name, ok := VarFromPredicate(q.Predicate)
		if !ok {
			continue
		}
		row, exists := bySubject[q.Subject]
		if !exists {
			row = make(map[string]string)
			bySubject[q.Subject] = row
			order = append(order, q.Subject)
		}
		row[name] = q.Object
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	rows := make([]map[string]string, len(order))
	for i, subj := range order {
		rows[i] = bySubject[subj]
	}
	return rows, nil
}
