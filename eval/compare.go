package eval

import (
	"strconv"
	"strings"

	"github.com/wbrown/janus-sparql/term"
)

// Compare implements RDF term comparison shared by the = / != / < / <= / >
// / >= operators (§4.3) and, with OrderKey below, ORDER BY (§5). ok is false
// when the two values are not comparable (mismatched non-numeric types),
// which callers treat as a type error for ordering ops and as "not equal"
// for = / !=.
func Compare(l, r term.Value) (int, bool) {
	if l.IsUnbound() || r.IsUnbound() {
		return 0, false
	}

	ln, lok := numericOperand(l)
	rn, rok := numericOperand(r)
	if lok && rok {
		switch {
		case ln < rn:
			return -1, true
		case ln > rn:
			return 1, true
		default:
			return 0, true
		}
	}

	if l.Kind == term.BooleanValue && r.Kind == term.BooleanValue {
		return boolCmp(l.Bool, r.Bool), true
	}

	if l.Kind == term.UriValue && r.Kind == term.UriValue {
		return strings.Compare(l.Lexical, r.Lexical), true
	}

	if l.Kind == term.StringValue && r.Kind == term.StringValue {
		if l.Lang() != r.Lang() {
			return 0, false
		}
		return strings.Compare(l.Lex(), r.Lex()), true
	}

	return 0, false
}

func boolCmp(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// numericOperand reports whether v participates in numeric comparison:
// Integer/Double always; a String value only if its lexical form parses
// cleanly as a number (so non-numeric literal comparisons fall through to
// lexicographic comparison instead of silently coercing).
func numericOperand(v term.Value) (float64, bool) {
	switch v.Kind {
	case term.IntegerValue:
		return float64(v.Int), true
	case term.DoubleValue:
		return v.Float, true
	case term.StringValue:
		if f, err := parseFloatLenient(v.Lex()); err == nil {
			return f, true
		}
	}
	return 0, false
}

func parseFloatLenient(s string) (float64, error) {
	switch strings.ToUpper(s) {
	case "INF", "+INF":
		return posInf, nil
	case "-INF":
		return negInf, nil
	case "NAN":
		return nan, nil
	}
	return strconv.ParseFloat(s, 64)
}

var (
	posInf = mustFloat("+Inf")
	negInf = mustFloat("-Inf")
	nan    = mustFloat("NaN")
)

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// OrderRank assigns the RDF term-type sort bucket of §5: Unbound < BlankNode
// < Iri < Literal.
func OrderRank(v term.Value) int {
	switch v.Kind {
	case term.Unbound:
		return 0
	case term.UriValue:
		return 2
	case term.IntegerValue, term.DoubleValue, term.BooleanValue, term.StringValue:
		return 3
	}
	return 1 // reserved for a future BlankNode-kind Value
}

// OrderCompare implements the ORDER BY comparator of §5: term-type rank
// first, then within Literal a numeric-coerced comparison is attempted, and
// on mixed/incomparable literals a lexicographic comparison of the lexical
// form is used instead.
func OrderCompare(l, r term.Value) int {
	lr, rr := OrderRank(l), OrderRank(r)
	if lr != rr {
		if lr < rr {
			return -1
		}
		return 1
	}
	if lr != 3 {
		// Same non-literal rank (both Unbound, or both Iri): order
		// lexicographically by lexical form; Unbound has none, so both
		// compare equal.
		return strings.Compare(l.Lex(), r.Lex())
	}
	if cmp, ok := Compare(l, r); ok {
		return cmp
	}
	return strings.Compare(l.Lex(), r.Lex())
}
