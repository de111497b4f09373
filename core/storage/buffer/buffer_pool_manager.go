// Package buffer implements the frame-cached buffer pool over a paged
// disk file: pinning, LRU-K eviction, dirty writeback, and a directory
// mapping resident page ids to frame slots.
package buffer

import (
	"sync"

	"go.uber.org/zap"

	"eduql/core/storage/disk"
	"eduql/core/storage/page"
	"eduql/internal/metrics"
)

// hashPageID mixes a page id into a well-distributed 64-bit hash for the
// directory's extendible hash table (splitmix64 finalizer).
func hashPageID(id page.ID) uint64 {
	x := uint64(uint32(id)) + 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Manager is the buffer pool: a fixed array of frames, a directory from
// page id to frame index, a free list, and an LRU-K replacer governing
// which pinned-zero frame is reused next. All operations serialize on a
// single mutex; see the package's design notes on why fetch does not
// release it across the disk read.
type Manager struct {
	mu sync.Mutex

	poolSize  int
	frames    []*page.Frame
	directory *ExtendibleHashTable[page.ID, int]
	replacer  *LRUKReplacer
	freeList  []int

	disk    *disk.Manager
	log     *zap.Logger
	metrics *metrics.Collector
}

// NewManager builds a pool of poolSize frames backed by disk, evicting
// candidates via LRU-K with history depth replacerK.
func NewManager(poolSize int, d *disk.Manager, replacerK int, log *zap.Logger, m *metrics.Collector) *Manager {
	frames := make([]*page.Frame, poolSize)
	freeList := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = page.NewFrame(i, d.PageSize())
		freeList[i] = poolSize - 1 - i
	}
	if m == nil {
		m = &metrics.Collector{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		poolSize:  poolSize,
		frames:    frames,
		directory: NewExtendibleHashTable[page.ID, int](4, hashPageID),
		replacer:  NewLRUKReplacer(poolSize, replacerK),
		freeList:  freeList,
		disk:      d,
		log:       log,
		metrics:   m,
	}
}

// acquireFrame returns an unpinned frame index ready for reuse, evicting
// via the replacer and flushing a dirty victim if the free list is empty.
// Caller must hold mu.
func (m *Manager) acquireFrame() (int, bool) {
	if n := len(m.freeList); n > 0 {
		idx := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return idx, true
	}

	victim, ok := m.replacer.Evict()
	if !ok {
		m.metrics.RecordExhausted()
		return 0, false
	}
	m.metrics.RecordEviction()

	idx := int(victim)
	fr := m.frames[idx]
	m.directory.Remove(fr.PageID)

	if fr.IsDirty {
		if err := m.disk.WritePage(fr.PageID, fr.Data); err != nil {
			m.log.Error("buffer: flush victim frame failed", zap.Int32("page_id", int32(fr.PageID)), zap.Error(err))
		}
	}
	fr.Reset()
	return idx, true
}

// NewPage allocates a fresh page on disk and pins it into a frame.
func (m *Manager) NewPage() (*page.Frame, page.ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.acquireFrame()
	if !ok {
		return nil, page.InvalidID, false
	}

	id, err := m.disk.AllocatePage()
	if err != nil {
		m.log.Error("buffer: allocate page failed", zap.Error(err))
		m.freeList = append(m.freeList, idx)
		return nil, page.InvalidID, false
	}

	fr := m.frames[idx]
	fr.PageID = id
	fr.PinCount = 1
	fr.IsDirty = false

	m.directory.Insert(id, idx)
	m.replacer.RecordAccess(FrameID(idx))
	m.replacer.SetEvictable(FrameID(idx), false)
	m.metrics.RecordNewPage()
	return fr, id, true
}

// FetchPage pins id, loading it from disk on a cache miss.
func (m *Manager) FetchPage(id page.ID) (*page.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.directory.Find(id); ok {
		fr := m.frames[idx]
		if fr.PinCount == 0 {
			m.replacer.SetEvictable(FrameID(idx), false)
		}
		fr.PinCount++
		m.replacer.RecordAccess(FrameID(idx))
		m.metrics.RecordHit()
		return fr, true
	}
	m.metrics.RecordMiss()

	idx, ok := m.acquireFrame()
	if !ok {
		return nil, false
	}

	fr := m.frames[idx]
	if err := m.disk.ReadPage(id, fr.Data); err != nil {
		m.log.Error("buffer: read page failed", zap.Int32("page_id", int32(id)), zap.Error(err))
		fr.Reset()
		m.freeList = append(m.freeList, idx)
		return nil, false
	}
	fr.PageID = id
	fr.PinCount = 1
	fr.IsDirty = false

	m.directory.Insert(id, idx)
	m.replacer.RecordAccess(FrameID(idx))
	m.replacer.SetEvictable(FrameID(idx), false)
	return fr, true
}

// UnpinPage decrements id's pin count, making it evictable at zero. dirty
// is OR'd into the frame's dirty flag; it never clears it.
func (m *Manager) UnpinPage(id page.ID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.directory.Find(id)
	if !ok {
		return false
	}
	fr := m.frames[idx]
	if fr.PinCount <= 0 {
		return false
	}
	if dirty {
		fr.IsDirty = true
	}
	fr.PinCount--
	if fr.PinCount == 0 {
		m.replacer.SetEvictable(FrameID(idx), true)
	}
	return true
}

// FlushPage writes id's frame to disk regardless of pin count, clearing
// the dirty flag on success.
func (m *Manager) FlushPage(id page.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.directory.Find(id)
	if !ok {
		return false
	}
	fr := m.frames[idx]
	if err := m.disk.WritePage(fr.PageID, fr.Data); err != nil {
		m.log.Error("buffer: flush page failed", zap.Int32("page_id", int32(id)), zap.Error(err))
		return false
	}
	fr.IsDirty = false
	return true
}

// FlushAllPages writes every resident frame to disk.
func (m *Manager) FlushAllPages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fr := range m.frames {
		if fr.PageID == page.InvalidID {
			continue
		}
		if err := m.disk.WritePage(fr.PageID, fr.Data); err != nil {
			m.log.Error("buffer: flush all pages failed", zap.Int32("page_id", int32(fr.PageID)), zap.Error(err))
			continue
		}
		fr.IsDirty = false
	}
}

// DeletePage evicts id from the pool without writing it back, returning
// its frame to the free list. It fails if id is currently pinned.
func (m *Manager) DeletePage(id page.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.directory.Find(id)
	if !ok {
		return true
	}
	fr := m.frames[idx]
	if fr.PinCount > 0 {
		return false
	}
	m.directory.Remove(id)
	m.replacer.SetEvictable(FrameID(idx), true)
	m.replacer.Remove(FrameID(idx))
	fr.Reset()
	m.freeList = append(m.freeList, idx)
	return true
}

// PageSize returns the fixed page size of the backing disk manager.
func (m *Manager) PageSize() int { return m.disk.PageSize() }
