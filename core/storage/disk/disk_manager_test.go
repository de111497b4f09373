package disk_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"eduql/core/storage/disk"
	"eduql/core/storage/page"
)

func TestOpenAllocatesHeaderPageOnNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := disk.Open(path, page.DefaultSize)
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, page.DefaultSize)
	require.NoError(t, m.ReadPage(page.HeaderID, buf))
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}

func TestAllocateReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := disk.Open(path, page.DefaultSize)
	require.NoError(t, err)
	defer m.Close()

	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, page.ID(1), id)

	out := make([]byte, page.DefaultSize)
	copy(out, "hello, page")
	require.NoError(t, m.WritePage(id, out))

	in := make([]byte, page.DefaultSize)
	require.NoError(t, m.ReadPage(id, in))
	require.Equal(t, out, in)
}

func TestReopenPreservesPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := disk.Open(path, page.DefaultSize)
	require.NoError(t, err)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	buf := make([]byte, page.DefaultSize)
	copy(buf, "persisted")
	require.NoError(t, m.WritePage(id, buf))
	require.NoError(t, m.Close())

	m2, err := disk.Open(path, page.DefaultSize)
	require.NoError(t, err)
	defer m2.Close()

	out := make([]byte, page.DefaultSize)
	require.NoError(t, m2.ReadPage(id, out))
	require.Equal(t, buf, out)

	nextID, err := m2.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, page.ID(2), nextID)
}

func TestReadWriteRejectsWrongSizedBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := disk.Open(path, page.DefaultSize)
	require.NoError(t, err)
	defer m.Close()

	require.Error(t, m.ReadPage(page.HeaderID, make([]byte, 10)))
	require.Error(t, m.WritePage(page.HeaderID, make([]byte, 10)))
}
