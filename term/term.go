// Package term implements the RDF term and property-path data model: the
// tagged records that a parsed triple pattern is built from. Terms reference
// the query's source buffer by offset/length instead of copying substrings,
// mirroring the teacher's Symbol/PatternElement approach in
// datalog/query/types.go.
package term

import "fmt"

// Kind discriminates the four RDF term categories plus the synthetic
// wildcard used internally by scans.
type Kind uint8

const (
	Variable Kind = iota
	Iri
	Literal
	BlankNode
)

func (k Kind) String() string {
	switch k {
	case Variable:
		return "Variable"
	case Iri:
		return "Iri"
	case Literal:
		return "Literal"
	case BlankNode:
		return "BlankNode"
	default:
		return "Unknown"
	}
}

// Term is a tagged reference into the query's source buffer.
//
// Offset/Length address a span of the immutable query text S. A reserved
// negative-offset range (Offset < 0) identifies synthetic terms introduced
// by quoted-triple (SPARQL-star) expansion; see Synthetic below.
type Term struct {
	Kind   Kind
	Offset int
	Length int
}

// IsVariable reports whether this term is a query variable.
func (t Term) IsVariable() bool { return t.Kind == Variable }

// IsWildcard reports whether this term is an anonymous blank node, which
// acts as a wildcard in pattern matching (never constrains, never binds).
func (t Term) IsWildcard() bool { return t.Kind == BlankNode && t.Length == 0 }

// IsSynthetic reports whether this term addresses a synthetic offset.
func (t Term) IsSynthetic() bool { return t.Offset < 0 }

// Text resolves a term's lexical span against the source buffer S. Synthetic
// offsets are resolved through the supplied SyntheticTable instead.
func (t Term) Text(s string, synth *SyntheticTable) string {
	if t.IsSynthetic() {
		if synth != nil {
			if v, ok := synth.Lookup(t.Offset); ok {
				return v
			}
		}
		return ""
	}
	if t.Offset < 0 || t.Offset+t.Length > len(s) {
		return ""
	}
	return s[t.Offset : t.Offset+t.Length]
}

func (t Term) String() string {
	return fmt.Sprintf("%s(%d,%d)", t.Kind, t.Offset, t.Length)
}

// SyntheticTable maps the reserved negative-offset range to the logical IRI
// or variable name it stands in for. Populated by quoted-triple expansion;
// consulted by Term.Text and by scans that must dereference a synthetic
// subject/object produced from an embedded triple.
type SyntheticTable struct {
	names map[int]string
	next  int // next offset to hand out, counts downward from -1
}

// NewSyntheticTable creates an empty table. The zero value is also usable.
func NewSyntheticTable() *SyntheticTable {
	return &SyntheticTable{names: make(map[int]string), next: -1}
}

// Intern allocates a fresh synthetic offset for name and records the
// mapping, returning the offset to embed in a Term.
func (s *SyntheticTable) Intern(name string) int {
	if s.names == nil {
		s.names = make(map[int]string)
		s.next = -1
	}
	off := s.next
	s.next--
	s.names[off] = name
	return off
}

// Lookup resolves a synthetic offset back to its logical name.
func (s *SyntheticTable) Lookup(offset int) (string, bool) {
	if s == nil || s.names == nil {
		return "", false
	}
	v, ok := s.names[offset]
	return v, ok
}

// PathKind enumerates the property-path operator forms from §3.
type PathKind uint8

const (
	PathNone PathKind = iota
	PathInverse
	PathZeroOrOne
	PathZeroOrMore
	PathOneOrMore
	PathSequence
	PathAlternative
	PathNegatedSet
	PathGroupedZeroOrOne
	PathGroupedZeroOrMore
	PathGroupedOneOrMore
	PathInverseGroup
)

func (k PathKind) String() string {
	names := [...]string{
		"None", "Inverse", "ZeroOrOne", "ZeroOrMore", "OneOrMore",
		"Sequence", "Alternative", "NegatedSet", "GroupedZeroOrOne",
		"GroupedZeroOrMore", "GroupedOneOrMore", "InverseGroup",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// PropertyPath carries a path-kind and up to two sub-ranges into S (or, for
// Sequence/Alternative/grouped forms, the decomposed steps in its Steps
// field — the parser is out of scope, but the
// representation must let a scan walk the steps without recursion).
type PropertyPath struct {
	Kind PathKind

	// For simple forms (Inverse applied to a single predicate, NegatedSet
	// members): a direct span into S.
	Offset int
	Length int

	// For Sequence/Alternative/grouped forms: the ordered list of step
	// paths. A step with Kind == PathNone and a populated Offset/Length is
	// a bare predicate IRI; a step with Kind == PathInverse is an inverted
	// predicate; nested PropertyPaths let NegatedSet carry inverse members.
	Steps []PropertyPath
}

// IsGrouped reports whether this path kind runs the grouped-sequence
// expansion algorithm of §4.4.1 rather than the flat BFS used by plain
// ZeroOrMore/OneOrMore.
func (k PathKind) IsGrouped() bool {
	switch k {
	case PathGroupedZeroOrOne, PathGroupedZeroOrMore, PathGroupedOneOrMore, PathInverseGroup:
		return true
	default:
		return false
	}
}

// IsTransitive reports whether the path requires the BFS transitive-closure
// algorithm of §4.4ZeroOrMore/OneOrMore.
func (k PathKind) IsTransitive() bool {
	switch k {
	case PathZeroOrMore, PathOneOrMore, PathGroupedZeroOrMore, PathGroupedOneOrMore:
		return true
	default:
		return false
	}
}

// TriplePattern is the {subject, predicate, object, path?} record of §3.
type TriplePattern struct {
	Subject   Term
	Predicate Term
	Object    Term
	Path      *PropertyPath
	// Graph: the zero Term has Kind Variable and an empty span, so a simple
	// triple-pattern scan resolves it as an unnamed variable and places no
	// graph constraint. An anonymous blank node (Kind BlankNode, Length 0)
	// is the form that picks up QueryContext.DefaultGraph.
	Graph Term
}

func (p TriplePattern) String() string {
	if p.Path != nil {
		return fmt.Sprintf("{%s path(%s) %s}", p.Subject, p.Path.Kind, p.Object)
	}
	return fmt.Sprintf("{%s %s %s}", p.Subject, p.Predicate, p.Object)
}
