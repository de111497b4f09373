// Package indexing exposes the B+ tree as a table index keyed by a
// generic key type and valued by record ids into an external heap.
package indexing

import (
	"eduql/core/indexing/btree"
	"eduql/core/storage/page"
)

// RID identifies a tuple's storage location in a heap file: the page it
// lives on and its slot within that page.
type RID struct {
	PageID page.ID
	Slot   uint32
}

// Index is a unique-key index over RID values.
type Index[K any] struct {
	tree *btree.BTree[K, RID]
}

// New wraps an already-open B+ tree as an index.
func New[K any](tree *btree.BTree[K, RID]) *Index[K] {
	return &Index[K]{tree: tree}
}

// InsertEntry adds key -> rid, returning false without effect if key is
// already present.
func (idx *Index[K]) InsertEntry(key K, rid RID) (bool, error) {
	return idx.tree.Insert(key, rid)
}

// DeleteEntry removes key's entry, a no-op if key is absent. rid is
// accepted to mirror how callers identify the entry being removed, even
// though the underlying tree enforces unique keys and needs only the key
// to locate it.
func (idx *Index[K]) DeleteEntry(key K, rid RID) error {
	return idx.tree.Delete(key)
}

// ScanKey returns the (at most one) RID stored for key.
func (idx *Index[K]) ScanKey(key K) ([]RID, error) {
	rid, found, err := idx.tree.Search(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return []RID{rid}, nil
}

// GetBeginIterator returns an iterator over all entries in ascending key
// order.
func (idx *Index[K]) GetBeginIterator() (*btree.Iterator[K, RID], error) {
	return idx.tree.Begin()
}

// GetEndIterator returns the end-of-range sentinel iterator.
func (idx *Index[K]) GetEndIterator() *btree.Iterator[K, RID] {
	return idx.tree.End()
}
