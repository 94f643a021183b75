package bindings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindAndFind(t *testing.T) {
	tbl := New(16, 1024)

	require.NoError(t, tbl.Bind("?x", "<urn:a>"))
	require.NoError(t, tbl.Bind("?y", "1"))

	idx := tbl.FindBinding("?x")
	require.Equal(t, 0, idx)
	require.Equal(t, "<urn:a>", tbl.GetString(idx))

	require.Equal(t, -1, tbl.FindBinding("?z"))
}

// TestTruncateIsLeftInverse verifies invariant #2 of §8: TruncateTo(n) after
// any sequence of binds from n restores byte-identical state.
func TestTruncateIsLeftInverse(t *testing.T) {
	tbl := New(16, 1024)
	require.NoError(t, tbl.Bind("?a", "alpha"))

	snapshotCount := tbl.Count()
	snapshotStr := tbl.GetString(0)

	require.NoError(t, tbl.Bind("?b", "beta"))
	require.NoError(t, tbl.Bind("?c", "gamma"))
	require.Equal(t, 3, tbl.Count())

	tbl.TruncateTo(snapshotCount)

	require.Equal(t, snapshotCount, tbl.Count())
	require.Equal(t, snapshotStr, tbl.GetString(0))
	require.Equal(t, -1, tbl.FindBinding("?b"))

	// Re-binding after truncate must reuse the same arena offset.
	require.NoError(t, tbl.Bind("?b2", "newval"))
	require.Equal(t, uint32(len("alpha")), tbl.At(1).StringOffset)
	require.Equal(t, "newval", tbl.GetString(1))
}

func TestHashCollisionChecksName(t *testing.T) {
	tbl := New(4, 64)
	require.NoError(t, tbl.Bind("?x", "one"))

	// FindBindingByHash with a colliding hash but wrong name must miss.
	idx := tbl.FindBindingByHash(HashName("?x"), "?not-x")
	require.Equal(t, -1, idx)
}

func TestBufferExhausted(t *testing.T) {
	tbl := New(1, 64)
	require.NoError(t, tbl.Bind("?a", "x"))
	err := tbl.Bind("?b", "y")
	require.ErrorIs(t, err, ErrBufferExhausted)
}

func TestTypedBind(t *testing.T) {
	tbl := New(4, 64)
	require.NoError(t, tbl.BindInt("?n", 42))
	require.Equal(t, "42", tbl.GetString(0))
	b := tbl.At(0)
	require.Equal(t, TypedInteger, b.Typed)
	require.Equal(t, int64(42), b.TypedInt)
}

func TestClearResetsArena(t *testing.T) {
	tbl := New(4, 64)
	require.NoError(t, tbl.Bind("?a", "hello"))
	tbl.Clear()
	require.Equal(t, 0, tbl.Count())
	require.NoError(t, tbl.Bind("?b", "world"))
	require.Equal(t, "world", tbl.GetString(0))
}
