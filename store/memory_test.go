package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, it Iterator) []Quad {
	t.Helper()
	var out []Quad
	for it.Next(context.Background()) {
		out = append(out, it.Quad())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return out
}

func sampleQuads() []Quad {
	return []Quad{
		{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "1"},
		{Subject: "<urn:a>", Predicate: "<urn:p>", Object: "2"},
		{Subject: "<urn:b>", Predicate: "<urn:p>", Object: "3"},
		{Subject: "<urn:a>", Predicate: "<urn:q>", Object: "<urn:b>"},
		{Subject: "<urn:b>", Predicate: "<urn:q>", Object: "<urn:c>"},
	}
}

func TestMemoryStoreWildcardQueries(t *testing.T) {
	ms := NewMemoryStore()
	ms.Load(sampleQuads()...)

	it, err := ms.Query(context.Background(), "<urn:a>", "<urn:p>", "", "")
	require.NoError(t, err)
	require.Len(t, drain(t, it), 2)

	it, err = ms.Query(context.Background(), "", "<urn:p>", "3", "")
	require.NoError(t, err)
	require.Len(t, drain(t, it), 1)

	it, err = ms.Query(context.Background(), "", "", "", "")
	require.NoError(t, err)
	require.Len(t, drain(t, it), 5)
}

func TestMemoryStoreStats(t *testing.T) {
	ms := NewMemoryStore()
	ms.Load(sampleQuads()...)

	stats, ok := ms.Stats().GetStats("<urn:p>")
	require.True(t, ok)
	require.Equal(t, int64(3), stats.TripleCount)
	require.InDelta(t, 1.5, stats.AvgObjectsPerSubject, 0.01) // 3 triples / 2 distinct subjects

	_, ok = ms.Stats().GetStats("<urn:unknown>")
	require.False(t, ok)
}
