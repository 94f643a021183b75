// Package bindings implements the columnar variable-binding table threaded
// by reference through every scan operator (C2). It is the backtracking
// primitive the rest of the engine is built on: every scan snapshots
// Count() on entry and calls TruncateTo on failure or retry, never Clear.
//
// Grounded on the teacher's discipline of "no heap allocation per row, only
// materialization pays for copies" (datalog/executor/relation.go), adapted
// to the spec's exact arena/high-water-mark contract (§3, §4.1).
package bindings

import (
	"fmt"
	"hash/fnv"
)

// TypedKind tags a binding's optional fast-path typed value, avoiding a
// re-parse of the stringified form for arithmetic-heavy queries.
type TypedKind uint8

const (
	NoTyped TypedKind = iota
	TypedInteger
	TypedDouble
	TypedBoolean
)

// Binding is one (variable-hash -> value-span) pair, per §3.
type Binding struct {
	NameHash     uint32
	Name         string // kept for FindBinding's collision check (§4.1)
	StringOffset uint32
	StringLength uint32

	Typed      TypedKind
	TypedInt   int64
	TypedFloat float64
	TypedBool  bool
}

// Table is the BindingTable of §3/§4.1: a slice of Binding plus an
// append-only character arena. Capacity is caller-provided; overflow is a
// fatal precondition violation (BufferExhausted, §7) because the parser is
// responsible for sizing buffers.
type Table struct {
	bindings []Binding
	count    int
	arena    []byte
	arenaLen int
}

// ErrBufferExhausted is returned by Bind when the table's fixed binding
// capacity is exceeded. Per §7 this is a fatal precondition violation: the
// caller sized the table incorrectly, not a recoverable query-time error.
var ErrBufferExhausted = fmt.Errorf("bindings: buffer exhausted")

// New creates a Table with the given binding-slot and arena-byte capacity.
// Typical caller sizing: 16 bindings x 1024 chars, per §4.1.
func New(bindingCap, arenaCap int) *Table {
	return &Table{
		bindings: make([]Binding, 0, bindingCap),
		arena:    make([]byte, 0, arenaCap),
	}
}

// HashName computes the FNV-1a 32-bit hash of a variable name over its
// UTF-16 code units, per §4.1 and §6.
func HashName(name string) uint32 {
	h := fnv.New32a()
	for _, r := range name {
		if r <= 0xFFFF {
			writeU16(h, uint16(r))
			continue
		}
		// Encode as a UTF-16 surrogate pair.
		r -= 0x10000
		hi := uint16(0xD800 + (r >> 10))
		lo := uint16(0xDC00 + (r & 0x3FF))
		writeU16(h, hi)
		writeU16(h, lo)
	}
	return h.Sum32()
}

func writeU16(h interface{ Write([]byte) (int, error) }, u uint16) {
	h.Write([]byte{byte(u), byte(u >> 8)})
}

// Count returns the number of live bindings.
func (t *Table) Count() int { return t.count }

// bindRaw appends value to the arena and pushes a binding record. Shared by
// all typed Bind overloads.
func (t *Table) bindRaw(hash uint32, name, value string, typed TypedKind, i int64, f float64, b bool) error {
	if t.count == len(t.bindings) && cap(t.bindings) != 0 && t.count >= cap(t.bindings) {
		return ErrBufferExhausted
	}
	off := uint32(t.arenaLen)
	t.arena = append(t.arena, value...)
	t.arenaLen = len(t.arena)

	bd := Binding{
		NameHash:     hash,
		Name:         name,
		StringOffset: off,
		StringLength: uint32(len(value)),
		Typed:        typed,
		TypedInt:     i,
		TypedFloat:   f,
		TypedBool:    b,
	}
	if t.count < len(t.bindings) {
		t.bindings[t.count] = bd
	} else {
		t.bindings = append(t.bindings, bd)
	}
	t.count++
	return nil
}

// Bind appends a plain string value and pushes a new binding for name.
func (t *Table) Bind(name, value string) error {
	return t.bindRaw(HashName(name), name, value, NoTyped, 0, 0, false)
}

// BindWithHash rebinds using a precomputed hash (used when restoring values
// whose hash was already computed by a caller, e.g. a scan resuming from a
// saved plan).
func (t *Table) BindWithHash(hash uint32, name, value string) error {
	return t.bindRaw(hash, name, value, NoTyped, 0, 0, false)
}

// BindInt stringifies v canonically and records a typed fast path.
func (t *Table) BindInt(name string, v int64) error {
	return t.bindRaw(HashName(name), name, canonicalInt(v), TypedInteger, v, 0, false)
}

// BindFloat stringifies v canonically and records a typed fast path.
func (t *Table) BindFloat(name string, v float64) error {
	return t.bindRaw(HashName(name), name, canonicalFloat(v), TypedDouble, 0, v, false)
}

// BindBool stringifies v canonically and records a typed fast path.
func (t *Table) BindBool(name string, v bool) error {
	return t.bindRaw(HashName(name), name, canonicalBool(v), TypedBoolean, 0, 0, v)
}

// FindBinding returns the index of the live binding for name, or -1.
// Hash collisions are tolerated: a hash match is confirmed by comparing the
// stored name span, per §3/§4.1.
func (t *Table) FindBinding(name string) int {
	return t.FindBindingByHash(HashName(name), name)
}

// FindBindingByHash is FindBinding with a precomputed hash, still confirming
// equality against name.
func (t *Table) FindBindingByHash(hash uint32, name string) int {
	for i := 0; i < t.count; i++ {
		if t.bindings[i].NameHash == hash && t.bindings[i].Name == name {
			return i
		}
	}
	return -1
}

// GetString returns the stringified value at binding index i. The returned
// string is only valid until a subsequent TruncateTo(j<=i) or Clear.
func (t *Table) GetString(i int) string {
	if i < 0 || i >= t.count {
		return ""
	}
	b := t.bindings[i]
	return string(t.arena[b.StringOffset : b.StringOffset+b.StringLength])
}

// At returns the full Binding record at index i.
func (t *Table) At(i int) Binding {
	return t.bindings[i]
}

// TruncateTo drops every binding at index >= n and rolls the arena
// high-water mark back to bindings[n]'s StringOffset (0 if n==0). This is
// the sole backtracking primitive (§4.1); operators must never call Clear
// mid-scan because that would corrupt string offsets held by parent frames.
func (t *Table) TruncateTo(n int) {
	if n < 0 {
		n = 0
	}
	if n >= t.count {
		return
	}
	if n < len(t.bindings) {
		t.arenaLen = int(t.bindings[n].StringOffset)
	} else {
		t.arenaLen = 0
	}
	t.arena = t.arena[:t.arenaLen]
	t.count = n
}

// Clear resets the table to empty. Only safe between independent query
// executions, never mid-scan (see TruncateTo doc).
func (t *Table) Clear() {
	t.count = 0
	t.arenaLen = 0
	t.arena = t.arena[:0]
}

// canonicalInt/Float/Bool produce the canonical stringified forms Bind's
// typed overloads store, matching term.Value.Lex().
func canonicalInt(v int64) string {
	return fmtInt(v)
}

func canonicalFloat(v float64) string {
	return fmtFloat(v)
}

func canonicalBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
