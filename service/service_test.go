package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-sparql/term"
)

func TestMaterializeLoadsRowsAsSyntheticTriples(t *testing.T) {
	exec := func(ctx context.Context, endpoint string, patterns []term.TriplePattern, bound map[string]term.Value) ([]ServiceResultRow, error) {
		require.Equal(t, "http://example.org/sparql", endpoint)
		return []ServiceResultRow{
			{"?name": term.PlainString("Alice")},
			{"?name": term.PlainString("Bob")},
		}, nil
	}

	m := NewMaterializer(NewPool(2), exec)
	s, release, err := m.Materialize(context.Background(), term.Uri("http://example.org/sparql"), nil, nil, false)
	require.NoError(t, err)
	defer release()

	rows, err := RowsFromStore(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var names []string
	for _, r := range rows {
		names = append(names, term.ParseFromBinding(r["?name"]).Lex())
	}
	require.ElementsMatch(t, []string{"Alice", "Bob"}, names)
}

func TestMaterializeSilentFailureReturnsEmptyStore(t *testing.T) {
	exec := func(ctx context.Context, endpoint string, patterns []term.TriplePattern, bound map[string]term.Value) ([]ServiceResultRow, error) {
		return nil, errTransport
	}

	m := NewMaterializer(NewPool(1), exec)
	s, release, err := m.Materialize(context.Background(), term.Uri("http://example.org/down"), nil, nil, true)
	require.NoError(t, err)
	defer release()

	rows, err := RowsFromStore(context.Background(), s)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestMaterializeNonSilentFailureSurfacesError(t *testing.T) {
	exec := func(ctx context.Context, endpoint string, patterns []term.TriplePattern, bound map[string]term.Value) ([]ServiceResultRow, error) {
		return nil, errTransport
	}

	m := NewMaterializer(NewPool(1), exec)
	_, _, err := m.Materialize(context.Background(), term.Uri("http://example.org/down"), nil, nil, false)
	require.ErrorIs(t, err, errTransport)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(1)
	_, release1, err := p.Rent(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Rent(ctx)
	require.Error(t, err) // second rental blocked behind the cap, cancelled context surfaces

	release1()
}

var errTransport = errTransportSentinel("service: endpoint unreachable")

type errTransportSentinel string

func (e errTransportSentinel) Error() string { return string(e) }
