package annotations

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollectorDisabledByNilHandlerIsNoop(t *testing.T) {
	c := NewCollector(nil)
	require.False(t, c.Enabled())
	c.Add(Event{Name: QueryInvoked})
	require.Empty(t, c.Events())
}

func TestCollectorRecordsAndResets(t *testing.T) {
	var got []Event
	c := NewCollector(func(e Event) { got = append(got, e) })
	c.AddTiming(ScanTriplePattern, time.Now(), map[string]interface{}{"match.count": 3})
	require.Len(t, c.Events(), 1)
	require.Len(t, got, 1)
	require.Equal(t, ScanTriplePattern, got[0].Name)

	c.Reset()
	require.Empty(t, c.Events())
}

func TestOutputFormatterFormatsKnownEvents(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(&buf)
	f.useColor = false // deterministic output for the assertion
	f.renderer = NewRowSetRenderer(false)

	out := f.Format(Event{
		Name:    ScanTriplePattern,
		Latency: 5 * time.Millisecond,
		Data:    map[string]interface{}{"pattern": "?s <p> ?o", "match.count": 2, "vars": []string{"?s", "?o"}},
	})
	require.Contains(t, out, "Scan(")
	require.Contains(t, out, "?s <p> ?o")
	require.Contains(t, out, "2 rows")
}

func TestOutputFormatterUnknownEventFallsBackToGeneric(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(&buf)
	f.useColor = false
	out := f.Format(Event{Name: "custom/thing", Data: map[string]interface{}{"x": 1}})
	require.Contains(t, out, "custom/thing")
}

func TestResultTableFormatsRows(t *testing.T) {
	table := NewResultTable()
	out := table.Format([]string{"?name"}, []map[string]string{
		{"?name": "Alice"},
		{"?name": "Bob"},
	})
	require.Contains(t, out, "Alice")
	require.Contains(t, out, "Bob")
}

func TestResultTableEmpty(t *testing.T) {
	table := NewResultTable()
	require.Equal(t, "_No rows_", table.Format([]string{"?name"}, nil))
}
