// Package disk implements the paged-file external collaborator: fixed-size
// page read/write by page id, and monotonic page-id allocation.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"eduql/core/storage/page"
)

// ErrShortIO is wrapped into read/write errors when fewer bytes than a
// full page are transferred and the OS reports no other error (for a
// read, that is a page lying past the end of the file).
var ErrShortIO = errors.New("disk: short read or write")

// Manager owns a single paged file, handing out and persisting fixed-size
// pages by id. Page id 0 is reserved for the header page and is allocated
// automatically the first time a file is created.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	numPages int64
}

// Open opens path for read/write, creating it if it does not exist. On a
// brand-new file, page 0 (the header page) is allocated and zeroed so that
// callers can immediately FetchPage(HeaderID).
func Open(path string, pageSize int) (*Manager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}
	if fi.Size()%int64(pageSize) != 0 {
		file.Close()
		return nil, fmt.Errorf("disk: %s size %d is not a multiple of page size %d", path, fi.Size(), pageSize)
	}

	m := &Manager{file: file, pageSize: pageSize, numPages: fi.Size() / int64(pageSize)}
	if m.numPages == 0 {
		if _, err := m.allocateLocked(); err != nil {
			file.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) allocateLocked() (page.ID, error) {
	id := page.ID(m.numPages)
	empty := make([]byte, m.pageSize)
	if _, err := m.file.WriteAt(empty, int64(id)*int64(m.pageSize)); err != nil {
		return page.InvalidID, fmt.Errorf("disk: extend file for page %d: %w", id, err)
	}
	m.numPages++
	return id, nil
}

// AllocatePage reserves the next page id in the monotonic sequence and
// zero-extends the file to cover it.
func (m *Manager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocateLocked()
}

// ReadPage fills buf, which must be exactly PageSize() bytes, with id's
// on-disk contents.
func (m *Manager) ReadPage(id page.ID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buf) != m.pageSize {
		return fmt.Errorf("disk: read buffer is %d bytes, want %d", len(buf), m.pageSize)
	}
	n, err := m.file.ReadAt(buf, int64(id)*int64(m.pageSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("disk: read page %d: %w", id, err)
	}
	if n != m.pageSize {
		return fmt.Errorf("disk: read page %d: got %d of %d bytes: %w", id, n, m.pageSize, ErrShortIO)
	}
	return nil
}

// WritePage persists buf, which must be exactly PageSize() bytes, as id's
// on-disk contents.
func (m *Manager) WritePage(id page.ID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buf) != m.pageSize {
		return fmt.Errorf("disk: write buffer is %d bytes, want %d", len(buf), m.pageSize)
	}
	n, err := m.file.WriteAt(buf, int64(id)*int64(m.pageSize))
	if err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	if n != m.pageSize {
		return fmt.Errorf("disk: write page %d: wrote %d of %d bytes: %w", id, n, m.pageSize, ErrShortIO)
	}
	return nil
}

// PageSize returns the fixed page size this manager was opened with.
func (m *Manager) PageSize() int { return m.pageSize }

// Sync flushes OS buffers for the underlying file to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Sync()
}

// Close syncs and closes the underlying file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return fmt.Errorf("disk: sync on close: %w", err)
	}
	return m.file.Close()
}
