package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eduql/core/storage/buffer"
)

func identityHash(k int) uint64 { return uint64(k) }

func TestInsertFindRemove(t *testing.T) {
	tbl := buffer.NewExtendibleHashTable[int, string](2, identityHash)

	tbl.Insert(1, "one")
	tbl.Insert(2, "two")

	v, ok := tbl.Find(1)
	require.True(t, ok)
	require.Equal(t, "one", v)

	_, ok = tbl.Find(99)
	require.False(t, ok)

	require.True(t, tbl.Remove(1))
	_, ok = tbl.Find(1)
	require.False(t, ok)
	require.False(t, tbl.Remove(1))
}

func TestUpsertOverwritesExistingKey(t *testing.T) {
	tbl := buffer.NewExtendibleHashTable[int, string](2, identityHash)
	tbl.Insert(5, "a")
	tbl.Insert(5, "b")
	v, ok := tbl.Find(5)
	require.True(t, ok)
	require.Equal(t, "b", v)
}

// TestGrowsUnderPressure inserts enough distinct keys to force repeated
// bucket splits and directory doublings, then confirms every key is still
// reachable and the global depth actually grew.
func TestGrowsUnderPressure(t *testing.T) {
	tbl := buffer.NewExtendibleHashTable[int, int](2, identityHash)
	const n = 64
	for i := 0; i < n; i++ {
		tbl.Insert(i, i*10)
	}
	for i := 0; i < n; i++ {
		v, ok := tbl.Find(i)
		require.True(t, ok, "key %d should be present", i)
		require.Equal(t, i*10, v)
	}
	require.Greater(t, tbl.GlobalDepth(), 0)
	require.Greater(t, tbl.NumBuckets(), 1)
}

func TestLocalDepthNeverExceedsGlobalDepth(t *testing.T) {
	tbl := buffer.NewExtendibleHashTable[int, int](2, identityHash)
	for i := 0; i < 32; i++ {
		tbl.Insert(i, i)
	}
	gd := tbl.GlobalDepth()
	for i := 0; i < 1<<gd; i++ {
		require.LessOrEqual(t, tbl.LocalDepth(i), gd)
	}
}
