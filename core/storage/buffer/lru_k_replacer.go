package buffer

import (
	"fmt"
	"sync"
)

// FrameID identifies a frame slot within a buffer pool's fixed frame array.
type FrameID int32

// LRUKReplacer picks eviction victims among the buffer pool's evictable
// frames. A frame with fewer than K recorded accesses has no defined
// K-backward distance and is preferred for eviction over any frame with a
// full history; among those, the earliest first access loses first. Once
// every evictable frame has K or more accesses, the frame with the largest
// backward distance (smallest Kth-most-recent timestamp) is evicted.
type LRUKReplacer struct {
	mu sync.Mutex

	k                int
	currentTimestamp uint64
	currSize         int

	// history holds each allocated frame's access timestamps, most recent
	// first, trimmed to at most k entries.
	history   map[FrameID][]uint64
	allocated map[FrameID]bool
	evictable map[FrameID]bool

	replacerSize int
}

// NewLRUKReplacer builds a replacer over numFrames frame slots (valid ids
// [0, numFrames)) using history depth k.
func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:            k,
		replacerSize: numFrames,
		history:      make(map[FrameID][]uint64),
		allocated:    make(map[FrameID]bool),
		evictable:    make(map[FrameID]bool),
	}
}

func (r *LRUKReplacer) checkValid(frameID FrameID) {
	if frameID < 0 || int(frameID) >= r.replacerSize {
		panic(fmt.Sprintf("lru_k_replacer: invalid frame id %d (replacer size %d)", frameID, r.replacerSize))
	}
}

// RecordAccess logs a use of frameID at the current logical timestamp.
func (r *LRUKReplacer) RecordAccess(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkValid(frameID)

	if !r.allocated[frameID] {
		r.allocated[frameID] = true
		r.evictable[frameID] = false
	}

	ts := r.currentTimestamp
	r.currentTimestamp++

	h := append([]uint64{ts}, r.history[frameID]...)
	if len(h) > r.k {
		h = h[:r.k]
	}
	r.history[frameID] = h
}

// SetEvictable toggles whether frameID may be chosen by Evict, adjusting
// Size() accordingly.
func (r *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkValid(frameID)
	if !r.allocated[frameID] {
		return
	}
	if r.evictable[frameID] == evictable {
		return
	}
	r.evictable[frameID] = evictable
	if evictable {
		r.currSize++
	} else {
		r.currSize--
	}
}

// Remove drops all replacer state for frameID. frameID must currently be
// evictable; removing a pinned (non-evictable) frame is a programmer error.
func (r *LRUKReplacer) Remove(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkValid(frameID)
	if !r.allocated[frameID] {
		return
	}
	if !r.evictable[frameID] {
		panic(fmt.Sprintf("lru_k_replacer: Remove called on non-evictable frame %d", frameID))
	}
	r.removeLocked(frameID)
}

func (r *LRUKReplacer) removeLocked(frameID FrameID) {
	delete(r.history, frameID)
	delete(r.allocated, frameID)
	delete(r.evictable, frameID)
	r.currSize--
}

// Evict selects and removes a victim frame per the K-distance policy,
// returning false if no evictable frame exists.
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currSize == 0 {
		return 0, false
	}

	var (
		incompleteVictim FrameID
		haveIncomplete   bool
		incompleteKey    uint64

		completeVictim FrameID
		haveComplete   bool
		completeKey    uint64
	)

	for fid, isEvictable := range r.evictable {
		if !isEvictable {
			continue
		}
		h := r.history[fid]
		if len(h) < r.k {
			key := h[len(h)-1]
			if !haveIncomplete || key < incompleteKey {
				incompleteVictim, haveIncomplete, incompleteKey = fid, true, key
			}
			continue
		}
		key := h[r.k-1]
		if !haveComplete || key < completeKey {
			completeVictim, haveComplete, completeKey = fid, true, key
		}
	}

	var victim FrameID
	switch {
	case haveIncomplete:
		victim = incompleteVictim
	case haveComplete:
		victim = completeVictim
	default:
		return 0, false
	}
	r.removeLocked(victim)
	return victim, true
}

// Size returns the number of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
