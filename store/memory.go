package store

import (
	"context"
	"sync"
)

// MemoryStore is the default in-memory QuadStore. Queries with two or more
// of subject/predicate/object bound look up the SPO/POS/OSP hash indices
// and touch only the matching positions; a query with one bound position,
// or none, walks every stored quad. Grounded on
// datalog/executor/indexed_memory_matcher.go's lazy hash-index build.
type MemoryStore struct {
	mu    sync.RWMutex
	quads []Quad

	buildOnce sync.Once
	spo       map[string][]int // subject|predicate -> positions
	pos       map[string][]int // predicate|object -> positions
	osp       map[string][]int // object|subject -> positions
	byGraph   map[string][]int

	stats *Stats
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: NewStats()}
}

// Load adds quads to the store and (re)builds indices and statistics.
// Not safe to call concurrently with Query.
func (m *MemoryStore) Load(quads ...Quad) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quads = append(m.quads, quads...)
	for _, q := range quads {
		m.stats.Observe(q)
	}
	m.spo, m.pos, m.osp, m.byGraph = nil, nil, nil, nil
	m.buildOnce = sync.Once{}
}

// Stats exposes the incrementally maintained Statistics Store.
func (m *MemoryStore) Stats() *Stats { return m.stats }

func key2(a, b string) string { return a + "\x00" + b }

func (m *MemoryStore) buildIndices() {
	m.buildOnce.Do(func() {
		n := len(m.quads)
		m.spo = make(map[string][]int, n)
		m.pos = make(map[string][]int, n)
		m.osp = make(map[string][]int, n)
		m.byGraph = make(map[string][]int, n)
		for i, q := range m.quads {
			m.spo[key2(q.Subject, q.Predicate)] = append(m.spo[key2(q.Subject, q.Predicate)], i)
			m.pos[key2(q.Predicate, q.Object)] = append(m.pos[key2(q.Predicate, q.Object)], i)
			m.osp[key2(q.Object, q.Subject)] = append(m.osp[key2(q.Object, q.Subject)], i)
			m.byGraph[q.Graph] = append(m.byGraph[q.Graph], i)
		}
	})
}

// Query implements QuadStore. Index selection order: prefer the index that
// pins the most wildcard-free positions.
func (m *MemoryStore) Query(ctx context.Context, s, p, o, graph string) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.buildIndices()

	var candidates []int
	switch {
	case s != "" && p != "":
		candidates = m.spo[key2(s, p)]
	case p != "" && o != "":
		candidates = m.pos[key2(p, o)]
	case o != "" && s != "":
		candidates = m.osp[key2(o, s)]
	case s != "":
		candidates = m.indexBySubject(s)
	case p != "":
		candidates = m.indexByPredicate(p)
	case o != "":
		candidates = m.indexByObject(o)
	default:
		candidates = allIndices(len(m.quads))
	}

	return &memoryIterator{store: m, positions: candidates, s: s, p: p, o: o, graph: graph}, nil
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func (m *MemoryStore) indexBySubject(s string) []int {
	var out []int
	for i, q := range m.quads {
		if q.Subject == s {
			out = append(out, i)
		}
	}
	return out
}

func (m *MemoryStore) indexByPredicate(p string) []int {
	var out []int
	for i, q := range m.quads {
		if q.Predicate == p {
			out = append(out, i)
		}
	}
	return out
}

func (m *MemoryStore) indexByObject(o string) []int {
	var out []int
	for i, q := range m.quads {
		if q.Object == o {
			out = append(out, i)
		}
	}
	return out
}

// QueryAsOf/QueryChanges/QueryEvolution: MemoryStore carries no temporal
// history, so these alias Query per the "optional" contract in §6.
func (m *MemoryStore) QueryAsOf(ctx context.Context, s, p, o string, asOf int64, graph string) (Iterator, error) {
	return m.Query(ctx, s, p, o, graph)
}

func (m *MemoryStore) QueryChanges(ctx context.Context, s, p, o string, rangeStart, rangeEnd int64, graph string) (Iterator, error) {
	return &memoryIterator{store: m, positions: nil}, nil
}

func (m *MemoryStore) QueryEvolution(ctx context.Context, s, p, o, graph string) (Iterator, error) {
	return m.Query(ctx, s, p, o, graph)
}

// Graphs returns every distinct graph name quads were loaded into.
func (m *MemoryStore) Graphs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.buildIndices()
	out := make([]string, 0, len(m.byGraph))
	for g := range m.byGraph {
		if g != "" {
			out = append(out, g)
		}
	}
	return out, nil
}

type memoryIterator struct {
	store     *MemoryStore
	positions []int
	idx       int
	s, p, o   string
	graph     string
	current   Quad
	err       error
}

func (it *memoryIterator) Next(ctx context.Context) bool {
	for it.idx < len(it.positions) {
		pos := it.positions[it.idx]
		it.idx++
		if err := ctx.Err(); err != nil {
			it.err = err
			return false
		}
		it.store.mu.RLock()
		q := it.store.quads[pos]
		it.store.mu.RUnlock()
		if it.s != "" && q.Subject != it.s {
			continue
		}
		if it.p != "" && q.Predicate != it.p {
			continue
		}
		if it.o != "" && q.Object != it.o {
			continue
		}
		if it.graph != "" && q.Graph != it.graph {
			continue
		}
		it.current = q
		return true
	}
	return false
}

func (it *memoryIterator) Quad() Quad { return it.current }
func (it *memoryIterator) Err() error { return it.err }
func (it *memoryIterator) Close() error { return nil }
