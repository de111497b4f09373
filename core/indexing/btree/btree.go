package btree

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"eduql/core/storage/buffer"
	"eduql/core/storage/headerpage"
	"eduql/core/storage/page"
	"eduql/internal/metrics"
)

// Order compares two keys, returning <0, 0, or >0 as a < b, a == b, a > b.
type Order[K any] func(a, b K) int

// BTree is a disk-backed B+ tree index identified by name, whose root
// page id is persisted in the file's header page. Readers take a
// tree-wide latch in shared mode and mutating operations take it
// exclusively for their whole duration, so a reader waits for any
// in-progress insert or delete. The root pointer field additionally has
// its own short-lived latch, held only while it is read or replaced.
type BTree[K any, V any] struct {
	mu     sync.RWMutex
	rootMu sync.Mutex

	name            string
	rootPageID      page.ID
	leafMaxSize     int
	internalMaxSize int

	cmp   Order[K]
	codec Codec[K, V]

	bpm     *buffer.Manager
	log     *zap.Logger
	metrics *metrics.Collector
}

// Open loads or creates the named tree over bpm. A tree with no prior
// entries starts with an invalid root page id and lazily creates a leaf
// root on the first insert.
func Open[K any, V any](
	name string,
	bpm *buffer.Manager,
	cmp Order[K],
	codec Codec[K, V],
	leafMaxSize, internalMaxSize int,
	log *zap.Logger,
	m *metrics.Collector,
) (*BTree[K, V], error) {
	if leafMaxSize < 2 || internalMaxSize < 2 {
		return nil, fmt.Errorf("btree: max sizes must be >= 2, got leaf=%d internal=%d", leafMaxSize, internalMaxSize)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = &metrics.Collector{}
	}

	hdrFrame, ok := bpm.FetchPage(page.HeaderID)
	if !ok {
		return nil, fmt.Errorf("btree: fetch header page: %w", buffer.ErrBufferPoolFull)
	}
	hdr := headerpage.New(hdrFrame.Data)
	rootID, found := hdr.Lookup(name)
	bpm.UnpinPage(page.HeaderID, false)
	if !found {
		rootID = page.InvalidID
	}

	return &BTree[K, V]{
		name:            name,
		rootPageID:      rootID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		cmp:             cmp,
		codec:           codec,
		bpm:             bpm,
		log:             log,
		metrics:         m,
	}, nil
}

func (t *BTree[K, V]) persistRoot() error {
	hdrFrame, ok := t.bpm.FetchPage(page.HeaderID)
	if !ok {
		return fmt.Errorf("btree: fetch header page: %w", buffer.ErrBufferPoolFull)
	}
	hdr := headerpage.New(hdrFrame.Data)
	if err := hdr.Upsert(t.name, t.rootPageID); err != nil {
		t.bpm.UnpinPage(page.HeaderID, false)
		return fmt.Errorf("btree: persist root for %q: %w", t.name, err)
	}
	t.bpm.UnpinPage(page.HeaderID, true)
	return nil
}

// IsEmpty reports whether the tree currently has no root page.
func (t *BTree[K, V]) IsEmpty() bool {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	return t.rootPageID == page.InvalidID
}

func (t *BTree[K, V]) fetchNode(id page.ID) (*Node[K, V], error) {
	fr, ok := t.bpm.FetchPage(id)
	if !ok {
		return nil, fmt.Errorf("btree: fetch page %d: %w", id, buffer.ErrBufferPoolFull)
	}
	n, err := loadNode(fr.Data, t.codec)
	if err != nil {
		t.bpm.UnpinPage(id, false)
		return nil, fmt.Errorf("btree: load page %d: %w", id, err)
	}
	t.bpm.UnpinPage(id, false)
	return n, nil
}

func (t *BTree[K, V]) rewriteNode(n *Node[K, V]) error {
	fr, ok := t.bpm.FetchPage(n.pageID)
	if !ok {
		return fmt.Errorf("btree: fetch page %d for rewrite: %w", n.pageID, buffer.ErrBufferPoolFull)
	}
	saveNode(n, fr.Data, t.codec)
	t.bpm.UnpinPage(n.pageID, true)
	return nil
}

func (t *BTree[K, V]) reparent(childID, newParentID page.ID) error {
	child, err := t.fetchNode(childID)
	if err != nil {
		return err
	}
	child.parentPageID = newParentID
	return t.rewriteNode(child)
}

// Search performs a point lookup, descending from the root through
// internal pages via InternalLowerBound to the leaf holding key.
func (t *BTree[K, V]) Search(key K) (V, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero V
	t.rootMu.Lock()
	rootID := t.rootPageID
	t.rootMu.Unlock()
	if rootID == page.InvalidID {
		return zero, false, nil
	}

	id := rootID
	for {
		n, err := t.fetchNode(id)
		if err != nil {
			return zero, false, err
		}
		if n.isLeaf {
			i, found := LeafFind(n, key, t.cmp)
			if !found {
				return zero, false, nil
			}
			return n.values[i], true, nil
		}
		idx := InternalLowerBound(n, key, t.cmp)
		id = n.children[idx]
	}
}

func (t *BTree[K, V]) descendStack(key K, rootID page.ID) ([]page.ID, error) {
	stack := []page.ID{rootID}
	for {
		n, err := t.fetchNode(stack[len(stack)-1])
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			return stack, nil
		}
		idx := InternalLowerBound(n, key, t.cmp)
		stack = append(stack, n.children[idx])
	}
}

// Insert adds (key, value), splitting nodes up the descent path as
// needed. It returns false without modifying the tree if key is already
// present.
func (t *BTree[K, V]) Insert(key K, value V) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rootMu.Lock()
	if t.rootPageID == page.InvalidID {
		fr, _, ok := t.bpm.NewPage()
		if !ok {
			t.rootMu.Unlock()
			return false, fmt.Errorf("btree: allocate root: %w", buffer.ErrBufferPoolFull)
		}
		leaf := newLeaf[K, V](fr.PageID, t.leafMaxSize)
		saveNode(leaf, fr.Data, t.codec)
		t.bpm.UnpinPage(fr.PageID, true)
		t.rootPageID = fr.PageID
		if err := t.persistRoot(); err != nil {
			t.rootMu.Unlock()
			return false, err
		}
	}
	rootID := t.rootPageID
	t.rootMu.Unlock()

	stack, err := t.descendStack(key, rootID)
	if err != nil {
		return false, err
	}

	leafID := stack[len(stack)-1]
	leaf, err := t.fetchNode(leafID)
	if err != nil {
		return false, err
	}
	if !leaf.leafInsert(key, value, t.cmp) {
		return false, nil
	}
	if err := t.rewriteNode(leaf); err != nil {
		return false, err
	}

	if err := t.splitPath(stack); err != nil {
		return false, err
	}
	return true, nil
}

func (t *BTree[K, V]) splitPath(stack []page.ID) error {
	for i := len(stack) - 1; i >= 0; i-- {
		n, err := t.fetchNode(stack[i])
		if err != nil {
			return err
		}
		if !n.IsOverflowed() {
			return nil
		}

		var parentID page.ID
		if i == 0 {
			parentID, err = t.createParentRoot(n)
			if err != nil {
				return err
			}
		} else {
			parentID = stack[i-1]
		}
		if err := t.splitNode(n, parentID); err != nil {
			return err
		}
		t.metrics.RecordSplit()
	}
	return nil
}

func (t *BTree[K, V]) createParentRoot(n *Node[K, V]) (page.ID, error) {
	fr, _, ok := t.bpm.NewPage()
	if !ok {
		return page.InvalidID, fmt.Errorf("btree: allocate new root: %w", buffer.ErrBufferPoolFull)
	}
	rootID := fr.PageID
	root := newInternal[K, V](rootID, t.internalMaxSize)
	root.keys = append(root.keys, zeroKey[K]())
	root.children = append(root.children, n.pageID)
	saveNode(root, fr.Data, t.codec)
	t.bpm.UnpinPage(rootID, true)

	n.parentPageID = rootID
	if err := t.rewriteNode(n); err != nil {
		return page.InvalidID, err
	}

	t.rootMu.Lock()
	t.rootPageID = rootID
	t.rootMu.Unlock()
	if err := t.persistRoot(); err != nil {
		return page.InvalidID, err
	}
	return rootID, nil
}

func (t *BTree[K, V]) splitNode(n *Node[K, V], parentID page.ID) error {
	parent, err := t.fetchNode(parentID)
	if err != nil {
		return err
	}

	fr, _, ok := t.bpm.NewPage()
	if !ok {
		return fmt.Errorf("btree: allocate split sibling: %w", buffer.ErrBufferPoolFull)
	}
	siblingID := fr.PageID

	var promoted K
	if n.isLeaf {
		sibling := newLeaf[K, V](siblingID, t.leafMaxSize)
		mid := n.MinSize()
		sibling.keys = append(sibling.keys, n.keys[mid:]...)
		sibling.values = append(sibling.values, n.values[mid:]...)
		n.keys = n.keys[:mid]
		n.values = n.values[:mid]

		sibling.nextID = n.nextID
		n.nextID = siblingID
		sibling.parentPageID = n.parentPageID
		promoted = sibling.keys[0]

		saveNode(sibling, fr.Data, t.codec)
		t.bpm.UnpinPage(siblingID, true)
	} else {
		sibling := newInternal[K, V](siblingID, t.internalMaxSize)
		mid := len(n.keys) / 2
		promoted = n.keys[mid]

		sibling.keys = append(sibling.keys, zeroKey[K]())
		sibling.keys = append(sibling.keys, n.keys[mid+1:]...)
		sibling.children = append(sibling.children, n.children[mid:]...)
		n.keys = n.keys[:mid]
		n.children = n.children[:mid]
		sibling.parentPageID = n.parentPageID

		saveNode(sibling, fr.Data, t.codec)
		t.bpm.UnpinPage(siblingID, true)

		for _, childID := range sibling.children {
			if err := t.reparent(childID, siblingID); err != nil {
				return err
			}
		}
	}

	if err := t.rewriteNode(n); err != nil {
		return err
	}
	parent.InternalInsert(promoted, siblingID, t.cmp)
	return t.rewriteNode(parent)
}

// Delete removes key, rebalancing (borrow or merge) up the ancestor path
// as needed. It is a no-op if key is not present.
func (t *BTree[K, V]) Delete(key K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rootMu.Lock()
	rootID := t.rootPageID
	t.rootMu.Unlock()
	if rootID == page.InvalidID {
		return nil
	}

	stack, err := t.descendStack(key, rootID)
	if err != nil {
		return err
	}
	leafID := stack[len(stack)-1]
	leaf, err := t.fetchNode(leafID)
	if err != nil {
		return err
	}
	if !leaf.leafRemove(key, t.cmp) {
		return nil
	}
	if err := t.rewriteNode(leaf); err != nil {
		return err
	}
	return t.rebalancePath(stack)
}

func (t *BTree[K, V]) rebalancePath(stack []page.ID) error {
	for i := len(stack) - 1; i >= 0; i-- {
		n, err := t.fetchNode(stack[i])
		if err != nil {
			return err
		}

		if i == 0 {
			if !n.isLeaf && n.Size() == 1 {
				soleChild, err := t.fetchNode(n.children[0])
				if err != nil {
					return err
				}
				soleChild.parentPageID = page.InvalidID
				if err := t.rewriteNode(soleChild); err != nil {
					return err
				}
				oldRoot := n.pageID
				t.rootMu.Lock()
				t.rootPageID = soleChild.pageID
				t.rootMu.Unlock()
				if err := t.persistRoot(); err != nil {
					return err
				}
				t.bpm.DeletePage(oldRoot)
				return nil
			}
			if n.isLeaf && n.Size() == 0 {
				oldRoot := n.pageID
				t.rootMu.Lock()
				t.rootPageID = page.InvalidID
				t.rootMu.Unlock()
				if err := t.persistRoot(); err != nil {
					return err
				}
				t.bpm.DeletePage(oldRoot)
			}
			return nil
		}

		if !n.IsUnderflowed() {
			return nil
		}
		merged, err := t.fixUnderflow(n, stack[i-1])
		if err != nil {
			return err
		}
		if !merged {
			return nil
		}
		t.metrics.RecordMerge()
	}
	return nil
}

func (t *BTree[K, V]) fixUnderflow(n *Node[K, V], parentID page.ID) (bool, error) {
	parent, err := t.fetchNode(parentID)
	if err != nil {
		return false, err
	}
	index := -1
	for i, c := range parent.children {
		if c == n.pageID {
			index = i
			break
		}
	}
	if index < 0 {
		return false, fmt.Errorf("btree: node %d not found among parent %d's children", n.pageID, parentID)
	}

	if index > 0 {
		left, err := t.fetchNode(parent.children[index-1])
		if err != nil {
			return false, err
		}
		if left.Size() > left.MinSize() {
			if err := t.borrowFromLeft(n, left, parent, index); err != nil {
				return false, err
			}
			if err := t.rewriteNode(n); err != nil {
				return false, err
			}
			if err := t.rewriteNode(left); err != nil {
				return false, err
			}
			return false, t.rewriteNode(parent)
		}
	}
	if index < len(parent.children)-1 {
		right, err := t.fetchNode(parent.children[index+1])
		if err != nil {
			return false, err
		}
		if right.Size() > right.MinSize() {
			if err := t.borrowFromRight(n, right, parent, index); err != nil {
				return false, err
			}
			if err := t.rewriteNode(n); err != nil {
				return false, err
			}
			if err := t.rewriteNode(right); err != nil {
				return false, err
			}
			return false, t.rewriteNode(parent)
		}
	}

	if index > 0 {
		left, err := t.fetchNode(parent.children[index-1])
		if err != nil {
			return false, err
		}
		if err := t.mergeNodes(left, n, parent, index); err != nil {
			return false, err
		}
		if err := t.rewriteNode(left); err != nil {
			return false, err
		}
		if err := t.rewriteNode(parent); err != nil {
			return false, err
		}
		t.bpm.DeletePage(n.pageID)
		return true, nil
	}

	right, err := t.fetchNode(parent.children[index+1])
	if err != nil {
		return false, err
	}
	if err := t.mergeNodes(n, right, parent, index+1); err != nil {
		return false, err
	}
	if err := t.rewriteNode(n); err != nil {
		return false, err
	}
	if err := t.rewriteNode(parent); err != nil {
		return false, err
	}
	t.bpm.DeletePage(right.pageID)
	return true, nil
}

func (t *BTree[K, V]) borrowFromLeft(n, left, parent *Node[K, V], index int) error {
	if n.isLeaf {
		li := left.Size() - 1
		k, v := left.keys[li], left.values[li]
		left.keys = left.keys[:li]
		left.values = left.values[:li]
		n.keys = append([]K{k}, n.keys...)
		n.values = append([]V{v}, n.values...)
		parent.keys[index] = n.keys[0]
		return nil
	}

	li := left.Size() - 1
	borrowedKey := left.keys[li]
	borrowedChild := left.children[li]
	left.keys = left.keys[:li]
	left.children = left.children[:li]

	oldSeparator := parent.keys[index]
	newKeys := make([]K, 0, len(n.keys)+1)
	newKeys = append(newKeys, zeroKey[K]())
	newKeys = append(newKeys, oldSeparator)
	newKeys = append(newKeys, n.keys[1:]...)
	n.keys = newKeys

	newChildren := make([]page.ID, 0, len(n.children)+1)
	newChildren = append(newChildren, borrowedChild)
	newChildren = append(newChildren, n.children...)
	n.children = newChildren

	parent.keys[index] = borrowedKey
	return t.reparent(borrowedChild, n.pageID)
}

func (t *BTree[K, V]) borrowFromRight(n, right, parent *Node[K, V], index int) error {
	if n.isLeaf {
		k, v := right.keys[0], right.values[0]
		right.keys = right.keys[1:]
		right.values = right.values[1:]
		n.keys = append(n.keys, k)
		n.values = append(n.values, v)
		parent.keys[index+1] = right.keys[0]
		return nil
	}

	borrowedKey := parent.keys[index+1]
	borrowedChild := right.children[0]
	n.keys = append(n.keys, borrowedKey)
	n.children = append(n.children, borrowedChild)

	parent.keys[index+1] = right.keys[1]

	right.keys = append([]K{zeroKey[K]()}, right.keys[2:]...)
	right.children = right.children[1:]

	return t.reparent(borrowedChild, n.pageID)
}

func (t *BTree[K, V]) mergeNodes(left, right *Node[K, V], parent *Node[K, V], rightIndex int) error {
	if left.isLeaf {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.nextID = right.nextID
	} else {
		left.keys = append(left.keys, parent.keys[rightIndex])
		left.keys = append(left.keys, right.keys[1:]...)
		left.children = append(left.children, right.children...)
		for _, childID := range right.children {
			if err := t.reparent(childID, left.pageID); err != nil {
				return err
			}
		}
	}
	parent.InternalRemoveAt(rightIndex)
	return nil
}
