package scan

import "context"

// ScanFactory builds a fresh Scan for one join level. It is invoked every
// time the level to its left advances, since a later pattern's candidate
// set (e.g. which subject a predicate scan runs against) usually depends on
// variables the left sibling just bound — the same reason the teacher's own
// join reopens its probe side per outer tuple rather than caching it.
type ScanFactory func() Scan

// JoinScan composes an ordered list of scan factories into a single
// nested-loop join with backtracking (§4.5): the rightmost level is driven
// to exhaustion before a left level is asked for its next row, and any
// level that advances causes every level to its right to be rebuilt from
// scratch (via its factory) against the new bindings. Grounded on the
// teacher's iterative, non-recursive nested-loop shape in
// datalog/executor/join.go, adapted from a build/probe hash join to a
// purely positional backtracking stack since the bindings.Table model has
// no hash side-table to build against.
type JoinScan struct {
	factories []ScanFactory
	active    []Scan // active[i] is nil until level i has been opened
	started   bool
}

// NewJoinScan orders factories left-to-right; callers (the planner) decide
// ordering, so this constructor performs no reordering of its own.
func NewJoinScan(factories ...ScanFactory) *JoinScan {
	return &JoinScan{factories: factories, active: make([]Scan, len(factories))}
}

func (j *JoinScan) Next(ctx context.Context) (bool, error) {
	if len(j.factories) == 0 {
		if !j.started {
			j.started = true
			return true, nil // the empty join produces exactly one empty row
		}
		return false, nil
	}

	i := len(j.factories) - 1
	if !j.started {
		j.started = true
		i = 0
	}

	for i >= 0 {
		if j.active[i] == nil {
			j.active[i] = j.factories[i]()
		}
		ok, err := j.active[i].Next(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			if err := j.active[i].Close(); err != nil {
				return false, err
			}
			j.active[i] = nil
			i--
			continue
		}
		if i == len(j.factories)-1 {
			return true, nil
		}
		// This level produced a row; every level to its right must be
		// rebuilt against it, so drop their stale scans.
		for k := i + 1; k < len(j.active); k++ {
			if j.active[k] != nil {
				j.active[k].Close()
				j.active[k] = nil
			}
		}
		i++
	}
	return false, nil
}

func (j *JoinScan) Close() error {
	var firstErr error
	for _, c := range j.active {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
