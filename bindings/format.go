package bindings

import (
	"math"
	"strconv"
)

// fmtInt/fmtFloat are small local formatters so this package has no
// dependency on term (which would otherwise be the natural home for
// canonical numeric stringification) — bindings is a leaf package per the
// module's dependency order (term/bindings have no inter-dependency;
// eval/scan depend on both).
func fmtInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func fmtFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "INF"
	}
	if math.IsInf(f, -1) {
		return "-INF"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
