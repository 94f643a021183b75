// Package annotations implements the query engine's ambient telemetry: a
// low-overhead event collector plus a human-readable formatter for -verbose
// CLI output, grounded wholesale on datalog/annotations/{types.go,output.go,
// relation_renderer.go}, adapted from the teacher's relation-algebra event
// vocabulary (patterns→relations, join/hash, combine-rels) to this engine's
// scan/pipeline/planner vocabulary (scan/triple-pattern, join/nested,
// pipeline/filter, plan/cache-hit).
package annotations

import (
	"sync"
	"time"
)

// Event name constants, hierarchically namespaced after the teacher's own
// convention in datalog/annotations/types.go.
const (
	QueryInvoked     = "query/invoked"
	QueryPlanCreated = "query/plan.created"
	QueryComplete    = "query/completed"

	PlanReorderBegin    = "plan/reorder.begin"
	PlanReorderComplete = "plan/reorder.complete"
	PlanCacheHit        = "plan/cache.hit"
	PlanCacheMiss       = "plan/cache.miss"

	ScanTriplePattern = "scan/triple-pattern"
	ScanPropertyPath  = "scan/property-path"
	ScanJoinNested    = "join/nested"
	ScanUnion         = "scan/union"
	ScanOptional      = "scan/optional"
	ScanMinus         = "scan/minus"
	ScanExists        = "scan/exists"

	PipelineBind     = "pipeline/bind"
	PipelineFilter   = "pipeline/filter"
	PipelineDistinct = "pipeline/distinct"
	PipelineOrder    = "pipeline/order"
	PipelineLimit    = "pipeline/limit"

	AggregationExecuted = "aggregation/executed"

	ServiceMaterialized = "service/materialized"
	ServiceFailed       = "service/failed"

	ErrorQueryBinding  = "error/query.binding"
	ErrorQueryInternal = "error/query.internal"
	ErrorBackend       = "error/backend"
)

// Event is a single annotation recorded during query execution.
type Event struct {
	Name    string
	Start   time.Time
	End     time.Time
	Latency time.Duration
	Data    map[string]interface{}
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during one query's execution. Grounded
// directly on datalog/annotations/types.go's Collector: a handler-driven
// recorder with a pooled Data-map allocator so a hot scan loop doesn't pay
// one map allocation per event when annotations are disabled.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event

	dataPool []map[string]interface{}
	poolIdx  int
	mu       sync.Mutex
}

// NewCollector creates a Collector. A nil handler disables collection
// entirely — Add/AddTiming become no-ops, matching the teacher's "pay only
// for what you use" discipline for a feature most queries never enable.
func NewCollector(handler Handler) *Collector {
	const poolSize = 32
	c := &Collector{
		enabled:  handler != nil,
		handler:  handler,
		events:   make([]Event, 0, 64),
		dataPool: make([]map[string]interface{}, poolSize),
	}
	for i := range c.dataPool {
		c.dataPool[i] = make(map[string]interface{}, 8)
	}
	return c
}

// Enabled reports whether this collector will record events.
func (c *Collector) Enabled() bool { return c.enabled }

// Add records event, then invokes the handler outside the lock.
func (c *Collector) Add(event Event) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	c.handler(event)
}

// AddTiming records an event whose End/Latency are computed from start to
// now, the shape every scan/pipeline stage uses to time itself.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.enabled {
		return
	}
	end := time.Now()
	c.Add(Event{Name: name, Start: start, End: end, Latency: end.Sub(start), Data: data})
}

// GetDataMap returns a pooled map for event data, falling back to a fresh
// allocation once the pool is exhausted within a single query.
func (c *Collector) GetDataMap() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poolIdx >= len(c.dataPool) {
		return make(map[string]interface{}, 4)
	}
	m := c.dataPool[c.poolIdx]
	c.poolIdx++
	for k := range m {
		delete(m, k)
	}
	return m
}

// Events returns a copy of every event recorded so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset clears recorded events for reuse across queries, keeping the
// handler and enabled state.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
	c.poolIdx = 0
}
