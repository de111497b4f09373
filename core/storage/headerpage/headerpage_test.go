package headerpage_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"eduql/core/storage/headerpage"
	"eduql/core/storage/page"
)

func TestLookupMissingReturnsFalse(t *testing.T) {
	h := headerpage.New(make([]byte, page.DefaultSize))
	_, found := h.Lookup("pk")
	require.False(t, found)
}

func TestUpsertThenLookupRoundTrips(t *testing.T) {
	h := headerpage.New(make([]byte, page.DefaultSize))

	require.NoError(t, h.Upsert("pk", page.ID(7)))
	id, found := h.Lookup("pk")
	require.True(t, found)
	require.Equal(t, page.ID(7), id)
}

func TestUpsertOverwritesExistingRecord(t *testing.T) {
	h := headerpage.New(make([]byte, page.DefaultSize))

	require.NoError(t, h.Upsert("pk", page.ID(1)))
	require.NoError(t, h.Upsert("pk", page.ID(2)))

	id, found := h.Lookup("pk")
	require.True(t, found)
	require.Equal(t, page.ID(2), id)
}

func TestUpsertKeepsMultipleNamesDistinct(t *testing.T) {
	h := headerpage.New(make([]byte, page.DefaultSize))

	require.NoError(t, h.Upsert("pk", page.ID(1)))
	require.NoError(t, h.Upsert("secondary_idx", page.ID(2)))

	id, found := h.Lookup("pk")
	require.True(t, found)
	require.Equal(t, page.ID(1), id)

	id, found = h.Lookup("secondary_idx")
	require.True(t, found)
	require.Equal(t, page.ID(2), id)
}

// TestUpsertReturnsErrFullWhenExhausted keeps adding distinct records to a
// small backing buffer until one no longer fits, confirming the error path
// is reachable and wraps the sentinel that callers compare against.
func TestUpsertReturnsErrFullWhenExhausted(t *testing.T) {
	h := headerpage.New(make([]byte, 32))

	var err error
	count := 0
	for i := 0; i < 1000; i++ {
		name := "index_name_number_" + string(rune('a'+i%26))
		err = h.Upsert(name, page.ID(i))
		if err != nil {
			break
		}
		count++
	}

	require.Error(t, err)
	require.True(t, errors.Is(err, headerpage.ErrFull))
	require.Greater(t, count, 0, "at least one record should have fit before exhaustion")
}
