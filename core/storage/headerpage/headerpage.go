// Package headerpage decodes and mutates the record list stored in page 0
// of a paged file: a linear list of (index name -> root page id) pairs.
package headerpage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"eduql/core/storage/page"
)

// ErrFull is returned by Upsert when a new record does not fit in the
// remaining space of the header page.
var ErrFull = errors.New("headerpage: out of space for new record")

const countSize = 2

// HeaderPage is a thin view over a header page's backing byte slice. It
// does not own the slice and performs no I/O; callers pin the header page
// through the buffer pool and hand its Frame.Data here.
type HeaderPage struct {
	data []byte
}

// New wraps data, the raw bytes of a fetched header page.
func New(data []byte) *HeaderPage { return &HeaderPage{data: data} }

func (h *HeaderPage) count() int {
	return int(binary.LittleEndian.Uint16(h.data[0:countSize]))
}

func (h *HeaderPage) setCount(n int) {
	binary.LittleEndian.PutUint16(h.data[0:countSize], uint16(n))
}

// Lookup returns the root page id recorded for name, if any.
func (h *HeaderPage) Lookup(name string) (page.ID, bool) {
	off := countSize
	n := h.count()
	for i := 0; i < n; i++ {
		nameLen := int(binary.LittleEndian.Uint16(h.data[off : off+2]))
		off += 2
		recName := string(h.data[off : off+nameLen])
		off += nameLen
		id := page.ID(binary.LittleEndian.Uint32(h.data[off : off+4]))
		off += 4
		if recName == name {
			return id, true
		}
	}
	return page.InvalidID, false
}

// Upsert inserts a new (name, id) record, or updates id in place if name is
// already recorded.
func (h *HeaderPage) Upsert(name string, id page.ID) error {
	off := countSize
	n := h.count()
	for i := 0; i < n; i++ {
		nameLen := int(binary.LittleEndian.Uint16(h.data[off : off+2]))
		off += 2
		recName := string(h.data[off : off+nameLen])
		off += nameLen
		if recName == name {
			binary.LittleEndian.PutUint32(h.data[off:off+4], uint32(id))
			return nil
		}
		off += 4
	}

	need := off + 2 + len(name) + 4
	if need > len(h.data) {
		return fmt.Errorf("headerpage: record %q needs %d bytes, %d available: %w", name, need-off, len(h.data)-off, ErrFull)
	}
	binary.LittleEndian.PutUint16(h.data[off:off+2], uint16(len(name)))
	off += 2
	copy(h.data[off:off+len(name)], name)
	off += len(name)
	binary.LittleEndian.PutUint32(h.data[off:off+4], uint32(id))
	h.setCount(n + 1)
	return nil
}
