package indexing_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"eduql/core/indexing"
	"eduql/core/indexing/btree"
	"eduql/core/storage/buffer"
	"eduql/core/storage/disk"
	"eduql/core/storage/page"
)

func stringOrder(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func ridCodec() btree.Codec[string, indexing.RID] {
	return btree.Codec[string, indexing.RID]{
		EncodeKey: func(s string) []byte { return []byte(s) },
		DecodeKey: func(b []byte) string { return string(b) },
		EncodeValue: func(r indexing.RID) []byte {
			return []byte(fmt.Sprintf("%d:%d", r.PageID, r.Slot))
		},
		DecodeValue: func(b []byte) indexing.RID {
			var pid int32
			var slot uint32
			fmt.Sscanf(string(b), "%d:%d", &pid, &slot)
			return indexing.RID{PageID: page.ID(pid), Slot: slot}
		},
	}
}

func openIndex(t *testing.T) *indexing.Index[string] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idx.db")
	d, err := disk.Open(path, page.DefaultSize)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	bpm := buffer.NewManager(32, d, 2, nil, nil)

	tr, err := btree.Open[string, indexing.RID]("pk", bpm, stringOrder, ridCodec(), 4, 4, nil, nil)
	require.NoError(t, err)
	return indexing.New(tr)
}

func TestIndexInsertScanDelete(t *testing.T) {
	idx := openIndex(t)

	rid := indexing.RID{PageID: 3, Slot: 7}
	inserted, err := idx.InsertEntry("alice", rid)
	require.NoError(t, err)
	require.True(t, inserted)

	rids, err := idx.ScanKey("alice")
	require.NoError(t, err)
	require.Equal(t, []indexing.RID{rid}, rids)

	rids, err = idx.ScanKey("nobody")
	require.NoError(t, err)
	require.Empty(t, rids)

	require.NoError(t, idx.DeleteEntry("alice", rid))
	rids, err = idx.ScanKey("alice")
	require.NoError(t, err)
	require.Empty(t, rids)
}

func TestIndexIteratesInOrder(t *testing.T) {
	idx := openIndex(t)

	names := []string{"carol", "alice", "bob", "dave"}
	for i, n := range names {
		_, err := idx.InsertEntry(n, indexing.RID{PageID: page.ID(i), Slot: uint32(i)})
		require.NoError(t, err)
	}

	it, err := idx.GetBeginIterator()
	require.NoError(t, err)
	var got []string
	for !it.IsEnd() {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, k)
		require.NoError(t, it.Next())
	}
	require.Equal(t, []string{"alice", "bob", "carol", "dave"}, got)
}
