package scan

import "context"

// OptionalScan implements OPTIONAL{...} (§4.7): for each left-side row, it
// tries the inner (required) pattern; if the inner produces at least one
// match it is joined normally, but if the inner produces zero matches the
// left row still passes through once, unextended — the classic SPARQL
// left-outer-join semantics. Grounded on the teacher's per-row extension
// shape in datalog/executor/join.go's outer-join handling, adapted to the
// truncation-based binding model.
type OptionalScan struct {
	left    Scan
	buildIn func() Scan

	inner      Scan
	matchedAny bool
}

// NewOptionalScan wraps a left scan (already positioned/opened by the
// caller's join) with an inner factory run per left row.
func NewOptionalScan(left Scan, buildInner func() Scan) *OptionalScan {
	return &OptionalScan{left: left, buildIn: buildInner}
}

func (o *OptionalScan) Next(ctx context.Context) (bool, error) {
	for {
		if o.inner != nil {
			ok, err := o.inner.Next(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				o.matchedAny = true
				return true, nil
			}
			o.inner.Close()
			o.inner = nil
			if !o.matchedAny {
				// Inner produced nothing for this left row: pass the left
				// row through unextended, exactly once.
				return true, nil
			}
		}

		ok, err := o.left.Next(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		o.inner = o.buildIn()
		o.matchedAny = false
	}
}

func (o *OptionalScan) Close() error {
	var firstErr error
	if o.inner != nil {
		if err := o.inner.Close(); err != nil {
			firstErr = err
		}
	}
	if err := o.left.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
