package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eduql/core/storage/buffer"
)

// TestEvictPrefersIncompleteHistory replays the classic K=2 scenario:
// frames with fewer than K accesses are evicted before any frame with a
// full history, and among those, earliest single access loses first.
func TestEvictPrefersIncompleteHistory(t *testing.T) {
	r := buffer.NewLRUKReplacer(8, 2)

	accesses := []buffer.FrameID{1, 1, 2, 3, 4, 2, 3, 1}
	for _, f := range accesses {
		r.RecordAccess(f)
	}
	for _, f := range []buffer.FrameID{1, 2, 3, 4} {
		r.SetEvictable(f, true)
	}
	require.Equal(t, 4, r.Size())

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, buffer.FrameID(4), victim, "frame 4 has only one access and must go first")

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, buffer.FrameID(1), victim, "frame 1 has the oldest second-most-recent access among 1,2,3")
}

func TestNonEvictableFramesAreSkipped(t *testing.T) {
	r := buffer.NewLRUKReplacer(4, 2)
	r.RecordAccess(0)
	r.RecordAccess(1)
	r.SetEvictable(0, true)
	r.SetEvictable(1, false)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, buffer.FrameID(0), victim)

	_, ok = r.Evict()
	require.False(t, ok)
}

func TestSetEvictableTogglesSize(t *testing.T) {
	r := buffer.NewLRUKReplacer(4, 2)
	r.RecordAccess(0)
	require.Equal(t, 0, r.Size())

	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size())

	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size(), "toggling to the same value is a no-op")

	r.SetEvictable(0, false)
	require.Equal(t, 0, r.Size())
}

func TestRemovePanicsOnNonEvictableFrame(t *testing.T) {
	r := buffer.NewLRUKReplacer(4, 2)
	r.RecordAccess(0)
	require.Panics(t, func() { r.Remove(0) })
}

func TestInvalidFrameIDPanics(t *testing.T) {
	r := buffer.NewLRUKReplacer(4, 2)
	require.Panics(t, func() { r.RecordAccess(4) })
	require.Panics(t, func() { r.RecordAccess(-1) })
}
