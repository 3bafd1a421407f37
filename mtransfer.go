// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "sync"

// transferSlot is one cached batch of same-class free objects, ready to be
// handed to a front-end cache without touching the central free list.
type transferSlot struct {
	head  *freeObject
	tail  *freeObject
	count int
}

// transferCache is the per-class middle-tier batch cache sitting between
// the front-ends and the central free list. Grounded on
// _examples/original_source/src/transfer_cache.rs's bounded LIFO-of-batches
// design (MAX_TRANSFER_SLOTS), adapted: this implementation owns its own
// two-phase lock-drop around the central free list rather than relying on
// the reference's remove_range_dropping_lock/insert_range_dropping_lock
// (which the retrieved reference source never actually defines — see
// DESIGN.md).
type transferCache struct {
	mu       sync.Mutex
	class    uint8
	maxSlots int
	slots    []transferSlot // LIFO: slots[len(slots)-1] is top
}

// removeRange returns objects of this class as a linked chain, preferring a
// cached batch and falling back to the central free list on a miss. A hit
// returns the whole cached batch, which may hold more than n objects; a
// miss returns up to n, and got < n only if the central free list (and page
// heap beneath it) is exhausted.
func (t *transferCache) removeRange(n int) (head *freeObject, got int) {
	t.mu.Lock()
	if len(t.slots) > 0 {
		top := &t.slots[len(t.slots)-1]
		head = top.head
		got = top.count
		t.slots = t.slots[:len(t.slots)-1]
		t.mu.Unlock()
		statsAddTransferHit()
		return head, got
	}
	t.mu.Unlock()

	// Miss: drop our own lock before calling into the central free list,
	// per the transfer-cache -> central-class lock ordering in spec.md §5.
	return centralFreeLists[t.class].removeRange(n)
}

// insertRange pushes a chain of n objects as a new cached batch, evicting
// the oldest batch to the central free list if the cache is full. Per
// spec.md §4.3, only a chain of exactly batch_size objects is eligible for
// O(1) caching; anything else (partial scavenge/detach batches) goes
// straight to the central free list.
func (t *transferCache) insertRange(head, tail *freeObject, n int) {
	if n != classInfo(t.class).BatchSize {
		centralFreeLists[t.class].insertRange(head, n)
		return
	}

	t.mu.Lock()
	if len(t.slots) >= t.maxSlots {
		evict := t.slots[0]
		t.slots = t.slots[1:]
		t.mu.Unlock()
		centralFreeLists[t.class].insertRange(evict.head, evict.count)
		t.mu.Lock()
	}
	t.slots = append(t.slots, transferSlot{head: head, tail: tail, count: n})
	t.mu.Unlock()
}
