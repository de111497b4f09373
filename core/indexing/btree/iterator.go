package btree

import (
	"fmt"

	"eduql/core/storage/page"
)

// Iterator walks a leaf chain in ascending key order. Each dereference
// re-fetches the current leaf rather than holding it pinned, so it is a
// best-effort snapshot: concurrent mutation of the tree may cause it to
// skip or repeat entries. If its current leaf is merged away, the next
// fetch of that page id reads whatever the file holds for it, which
// yields stale entries or a load error such as ErrChecksumMismatch.
type Iterator[K any, V any] struct {
	tree   *BTree[K, V]
	pageID page.ID
	index  int
}

// IsEnd reports whether the iterator has advanced past the last entry.
func (it *Iterator[K, V]) IsEnd() bool { return it.pageID == page.InvalidID }

func (it *Iterator[K, V]) current() (K, V, error) {
	var zk K
	var zv V
	if it.IsEnd() {
		return zk, zv, fmt.Errorf("btree: iterator dereferenced at end")
	}
	n, err := it.tree.fetchNode(it.pageID)
	if err != nil {
		return zk, zv, err
	}
	if it.index >= n.Size() {
		return zk, zv, fmt.Errorf("btree: iterator index %d out of range for leaf %d", it.index, it.pageID)
	}
	return n.keys[it.index], n.values[it.index], nil
}

// Key returns the key at the iterator's current position.
func (it *Iterator[K, V]) Key() (K, error) {
	k, _, err := it.current()
	return k, err
}

// Value returns the value at the iterator's current position.
func (it *Iterator[K, V]) Value() (V, error) {
	_, v, err := it.current()
	return v, err
}

// Next advances to the following entry, crossing into the next leaf via
// its sibling pointer when the current leaf is exhausted.
func (it *Iterator[K, V]) Next() error {
	if it.IsEnd() {
		return nil
	}
	n, err := it.tree.fetchNode(it.pageID)
	if err != nil {
		return err
	}
	if it.index+1 < n.Size() {
		it.index++
		return nil
	}
	it.pageID = n.nextID
	it.index = 0
	return nil
}

// Begin returns an iterator positioned at the tree's smallest key.
func (t *BTree[K, V]) Begin() (*Iterator[K, V], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.rootMu.Lock()
	id := t.rootPageID
	t.rootMu.Unlock()
	if id == page.InvalidID {
		return t.End(), nil
	}
	for {
		n, err := t.fetchNode(id)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			return &Iterator[K, V]{tree: t, pageID: id, index: 0}, nil
		}
		id = n.children[0]
	}
}

// BeginAt returns an iterator positioned at key, or the end sentinel if
// key is not present.
func (t *BTree[K, V]) BeginAt(key K) (*Iterator[K, V], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.rootMu.Lock()
	id := t.rootPageID
	t.rootMu.Unlock()
	if id == page.InvalidID {
		return t.End(), nil
	}
	for {
		n, err := t.fetchNode(id)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			i, found := LeafFind(n, key, t.cmp)
			if !found {
				return t.End(), nil
			}
			return &Iterator[K, V]{tree: t, pageID: id, index: i}, nil
		}
		idx := InternalLowerBound(n, key, t.cmp)
		id = n.children[idx]
	}
}

// End returns the sentinel iterator representing the position past the
// last entry.
func (t *BTree[K, V]) End() *Iterator[K, V] {
	return &Iterator[K, V]{tree: t, pageID: page.InvalidID}
}
