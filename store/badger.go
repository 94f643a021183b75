package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
)

// BadgerQuadStore is the optional durable QuadStore, persisting quads into
// three index orders (SPO/POS/OSP) the way the in-memory store keeps three
// hash indices. Grounded on datalog/storage/badger_store.go's
// multi-index-write-per-assert pattern, adapted from datom EAVT/AEVT/AVET
// indices to the quad SPO/POS/OSP indices this engine needs.
type BadgerQuadStore struct {
	db    *badger.DB
	stats *Stats
}

// quadIndex names one of the three persisted orderings.
type quadIndex byte

const (
	idxSPO quadIndex = 's'
	idxPOS quadIndex = 'p'
	idxOSP quadIndex = 'o'
)

// OpenBadgerQuadStore opens (creating if absent) a Badger-backed store at
// path. Options mirror the teacher's read-heavy tuning in
// datalog/storage/badger_store.go.
func OpenBadgerQuadStore(path string) (*BadgerQuadStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.MemTableSize = 128 << 20
	opts.BlockCacheSize = 256 << 20
	opts.IndexCacheSize = 100 << 20
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open badger: %w", err)
	}
	return &BadgerQuadStore{db: db, stats: NewStats()}, nil
}

// Close releases the underlying Badger handle.
func (b *BadgerQuadStore) Close() error {
	return b.db.Close()
}

// quadKey builds an index key as graph|keyA|keyB|keyC where the keyA/B/C
// order depends on idx: SPO orders (subject,predicate,object), POS orders
// (predicate,object,subject), OSP orders (object,subject,predicate). The
// graph and each component are terminated by a 0 byte so variable-length
// IRIs/literals stay separable; each component is also preceded by its
// 8-byte xxhash for the sortable prefix so range
// scans over large IRIs stay cache-friendly, then the raw component is
// appended for exact-match confirmation — mirroring the store's own
// two-phase "hash index, then confirm" approach in
// datalog/executor/indexed_memory_matcher.go, carried over to the durable
// path.
func quadKey(idx quadIndex, graph string, a, b, c string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(idx))
	buf.WriteString(graph)
	buf.WriteByte(0)
	writeHashedComponent(&buf, a)
	writeHashedComponent(&buf, b)
	writeHashedComponent(&buf, c)
	return buf.Bytes()
}

func writeHashedComponent(buf *bytes.Buffer, s string) {
	var hashBytes [8]byte
	h := xxhash.Sum64String(s)
	for i := 0; i < 8; i++ {
		hashBytes[i] = byte(h >> (8 * (7 - i)))
	}
	buf.Write(hashBytes[:])
	buf.WriteString(s)
	buf.WriteByte(0)
}

// Load writes quads into all three index orders in a single transaction.
func (b *BadgerQuadStore) Load(quads ...Quad) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, q := range quads {
			if err := txn.Set(quadKey(idxSPO, q.Graph, q.Subject, q.Predicate, q.Object), nil); err != nil {
				return err
			}
			if err := txn.Set(quadKey(idxPOS, q.Graph, q.Predicate, q.Object, q.Subject), nil); err != nil {
				return err
			}
			if err := txn.Set(quadKey(idxOSP, q.Graph, q.Object, q.Subject, q.Predicate), nil); err != nil {
				return err
			}
			b.stats.Observe(q)
		}
		return nil
	})
}

// Stats exposes the statistics accumulated as quads were loaded.
func (b *BadgerQuadStore) Stats() *Stats { return b.stats }

// StorageSize reports the on-disk size in a human-readable form, using
// go-humanize the way CLI/annotation surfaces want to present it.
func (b *BadgerQuadStore) StorageSize() string {
	lsm, vlog := b.db.Size()
	return humanize.IBytes(uint64(lsm + vlog))
}

// Query implements QuadStore by choosing whichever persisted index order
// has the most pinned (non-wildcard) leading components, then filtering the
// remaining components in Go (decoding is a raw string compare, no
// deserialization needed since keys embed the full component text).
func (b *BadgerQuadStore) Query(ctx context.Context, s, p, o, graph string) (Iterator, error) {
	idx, prefix := selectBadgerIndex(s, p, o, graph)
	if graph == "" {
		// Keys lead with the graph, so a wildcard graph scans the whole index
		// order and leaves every component to the iterator's filter.
		prefix = []byte{byte(idx)}
	}
	txn := b.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	it.Seek(prefix)
	return &badgerIterator{txn: txn, it: it, prefix: prefix, idx: idx, s: s, p: p, o: o, graph: graph}, nil
}

func selectBadgerIndex(s, p, o, graph string) (quadIndex, []byte) {
	switch {
	case s != "" && p != "":
		return idxSPO, twoPrefix(idxSPO, graph, s, p)
	case p != "" && o != "":
		return idxPOS, twoPrefix(idxPOS, graph, p, o)
	case o != "" && s != "":
		return idxOSP, twoPrefix(idxOSP, graph, o, s)
	case s != "":
		return idxSPO, onePrefix(idxSPO, graph, s)
	case p != "":
		return idxPOS, onePrefix(idxPOS, graph, p)
	case o != "":
		return idxOSP, onePrefix(idxOSP, graph, o)
	default:
		return idxSPO, graphOnlyPrefix(idxSPO, graph)
	}
}

// onePrefix narrows the scan to the given index's leading (already-hashed)
// component, used when exactly one of s/p/o is bound.
func onePrefix(idx quadIndex, graph, leading string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(idx))
	buf.WriteString(graph)
	buf.WriteByte(0)
	writeHashedComponent(&buf, leading)
	return buf.Bytes()
}

// twoPrefix narrows the scan to the given index's two leading hashed
// components, used when exactly two of s/p/o are bound.
func twoPrefix(idx quadIndex, graph, first, second string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(idx))
	buf.WriteString(graph)
	buf.WriteByte(0)
	writeHashedComponent(&buf, first)
	writeHashedComponent(&buf, second)
	return buf.Bytes()
}

func graphOnlyPrefix(idx quadIndex, graph string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(idx))
	buf.WriteString(graph)
	buf.WriteByte(0)
	return buf.Bytes()
}

func (b *BadgerQuadStore) QueryAsOf(ctx context.Context, s, p, o string, asOf int64, graph string) (Iterator, error) {
	return b.Query(ctx, s, p, o, graph)
}

func (b *BadgerQuadStore) QueryChanges(ctx context.Context, s, p, o string, rangeStart, rangeEnd int64, graph string) (Iterator, error) {
	return &badgerIterator{}, nil
}

func (b *BadgerQuadStore) QueryEvolution(ctx context.Context, s, p, o, graph string) (Iterator, error) {
	return b.Query(ctx, s, p, o, graph)
}

func (b *BadgerQuadStore) Graphs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if len(k) < 1 || k[0] != byte(idxSPO) {
				continue
			}
			if i := bytes.IndexByte(k[1:], 0); i >= 0 {
				g := string(k[1 : 1+i])
				if g != "" {
					seen[g] = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	return out, nil
}

// badgerIterator decodes the hash-prefixed, 0-terminated key components
// back into a Quad and re-applies the full wildcard filter (the prefix scan
// only narrows candidates; exact equality is always re-checked, mirroring
// the in-memory store's two-phase hash-then-confirm match).
type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	idx     quadIndex
	s, p, o string
	graph   string
	current Quad
	err     error
}

func (it *badgerIterator) Next(ctx context.Context) bool {
	if it.it == nil {
		return false
	}
	for ; it.it.ValidForPrefix(it.prefix); it.it.Next() {
		if err := ctx.Err(); err != nil {
			it.err = err
			return false
		}
		key := it.it.Item().KeyCopy(nil)
		q, ok := decodeQuadKey(it.idx, key)
		if !ok {
			continue
		}
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
		it.it.Next()
		return true
	}
	return false
}

func decodeQuadKey(idx quadIndex, key []byte) (Quad, bool) {
	if len(key) < 1 {
		return Quad{}, false
	}
	rest := key[1:]
	gi := bytes.IndexByte(rest, 0)
	if gi < 0 {
		return Quad{}, false
	}
	graph := string(rest[:gi])
	rest = rest[gi+1:]

	comps := make([]string, 0, 3)
	for len(rest) > 0 {
		if len(rest) < 8 {
			break
		}
		rest = rest[8:] // skip hash prefix
		zi := bytes.IndexByte(rest, 0)
		if zi < 0 {
			break
		}
		comps = append(comps, string(rest[:zi]))
		rest = rest[zi+1:]
	}
	if len(comps) != 3 {
		return Quad{}, false
	}
	switch idx {
	case idxSPO:
		return Quad{Subject: comps[0], Predicate: comps[1], Object: comps[2], Graph: graph}, true
	case idxPOS:
		return Quad{Predicate: comps[0], Object: comps[1], Subject: comps[2], Graph: graph}, true
	case idxOSP:
		return Quad{Object: comps[0], Subject: comps[1], Predicate: comps[2], Graph: graph}, true
	}
	return Quad{}, false
}

func (it *badgerIterator) Quad() Quad { return it.current }
func (it *badgerIterator) Err() error { return it.err }
func (it *badgerIterator) Close() error {
	if it.it != nil {
		it.it.Close()
	}
	if it.txn != nil {
		it.txn.Discard()
	}
	return nil
}
