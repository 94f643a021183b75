package store

// PredicateStats is the Statistics Store entry for one predicate, per §6.
type PredicateStats struct {
	TripleCount          int64
	AvgObjectsPerSubject float64
	AvgSubjectsPerObject float64
}

// StatsStore is the Statistics Store contract consumed by the planner (C9).
type StatsStore interface {
	// GetStats returns statistics for a concrete predicate IRI, or
	// (zero, false) if no statistics have been recorded for it.
	GetStats(predicateIri string) (PredicateStats, bool)
}

// Stats is a simple in-process StatsStore, maintained incrementally by
// MemoryStore as quads are loaded. Grounded on the teacher's live
// per-predicate bookkeeping in datalog/storage.
type Stats struct {
	perPredicate map[string]*predicateAccumulator
}

type predicateAccumulator struct {
	tripleCount int64
	subjects    map[string]int64 // subject -> object count, for avgObjectsPerSubject
	objects     map[string]int64 // object -> subject count, for avgSubjectsPerObject
}

// NewStats creates an empty Stats accumulator.
func NewStats() *Stats {
	return &Stats{perPredicate: make(map[string]*predicateAccumulator)}
}

// Observe records one quad's contribution to its predicate's statistics.
// Called by MemoryStore.Load for every quad.
func (s *Stats) Observe(q Quad) {
	acc, ok := s.perPredicate[q.Predicate]
	if !ok {
		acc = &predicateAccumulator{
			subjects: make(map[string]int64),
			objects:  make(map[string]int64),
		}
		s.perPredicate[q.Predicate] = acc
	}
	acc.tripleCount++
	acc.subjects[q.Subject]++
	acc.objects[q.Object]++
}

// GetStats implements StatsStore.
func (s *Stats) GetStats(predicateIri string) (PredicateStats, bool) {
	acc, ok := s.perPredicate[predicateIri]
	if !ok {
		return PredicateStats{}, false
	}
	var avgObjPerSubj, avgSubjPerObj float64
	if len(acc.subjects) > 0 {
		avgObjPerSubj = float64(acc.tripleCount) / float64(len(acc.subjects))
	}
	if len(acc.objects) > 0 {
		avgSubjPerObj = float64(acc.tripleCount) / float64(len(acc.objects))
	}
	return PredicateStats{
		TripleCount:          acc.tripleCount,
		AvgObjectsPerSubject: avgObjPerSubj,
		AvgSubjectsPerObject: avgSubjPerObj,
	}, true
}
