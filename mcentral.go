// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"sync"
	"unsafe"
)

// centralFreeList is the middle tier shared by every goroutine (or shard)
// for a single size class: a pool of partially-allocated spans, refilled
// from the page heap and drained by the transfer cache / front-ends.
// Grounded on _examples/original_source/src/central_free_list.rs's
// populate/remove_range/insert_range shape. Unlike that reference (whose
// transfer_cache.rs calls *_dropping_lock helpers that are never actually
// defined there), the two-phase lock-drop around the page heap call is
// implemented directly from spec.md §4.4 here.
type centralFreeList struct {
	mu    sync.Mutex
	class uint8

	nonempty  spanList // spans with at least one free object
	spareFree *span    // at most one fully-free span kept as a cushion
}

// removeRange pops up to n objects from this class's central pool,
// refilling from the page heap as needed. Returns the objects as a
// singly-linked chain (through freeObject.next) and how many were
// obtained; got < n only when the page heap itself is exhausted.
func (c *centralFreeList) removeRange(n int) (head *freeObject, got int) {
	info := classInfo(c.class)

	c.mu.Lock()
	for got < n {
		if c.nonempty.isEmpty() {
			if c.spareFree != nil {
				// Reuse the cushion span insertRange cached on last full
				// free instead of asking the page heap for a new one.
				s := c.spareFree
				c.spareFree = nil
				c.nonempty.push(s)
				continue
			}

			c.mu.Unlock()
			s := globalPageHeap.allocateSpan(info.Pages)
			c.mu.Lock()
			if s == nil {
				break
			}
			// Re-check: a concurrent populate may have raced us while the
			// lock was dropped. Either way, this span still needs work.
			c.populateLocked(s, info)
			continue
		}

		s := c.nonempty.head
		obj := s.freelist
		s.freelist = obj.next
		s.allocatedCount++
		debugAssert(s.allocatedCount <= s.totalCount, "removeRange: span allocated more objects than it holds")
		obj.next = head
		head = obj
		got++

		if s.freelist == nil {
			c.nonempty.remove(s)
		}
	}
	c.mu.Unlock()

	if got > 0 {
		statsAddCentralCacheHit()
	}
	return head, got
}

// insertRange returns a chain of n objects (all belonging to this class)
// to their owning spans, returning fully-freed spans to the page heap in
// batches of at most maxSpanReturnBatch, and never evicting the class's
// last nonempty span (cached-span policy).
func (c *centralFreeList) insertRange(head *freeObject, n int) {
	var toReturn []*span

	c.mu.Lock()
	for i := 0; i < n && head != nil; i++ {
		obj := head
		head = obj.next

		s := spanForObject(unsafe.Pointer(obj))
		if s == nil {
			// Page-map couldn't resolve the owning span (metadata
			// exhaustion at registration time); nothing safe to do but
			// drop the object rather than corrupt an unrelated span.
			continue
		}

		wasFull := s.freelist == nil // not on the nonempty list before this push
		obj.next = s.freelist
		s.freelist = obj
		s.allocatedCount--
		debugAssert(s.allocatedCount <= s.totalCount, "insertRange: span allocatedCount underflowed below zero")

		if s.allocatedCount > 0 {
			if wasFull {
				c.nonempty.push(s)
			}
			continue
		}

		// Span is now fully free. It was on the nonempty list unless this
		// single insert both filled it and emptied it again (totalCount
		// objects in one span, extremely small spans only).
		if !wasFull {
			c.nonempty.remove(s)
		}

		switch {
		case c.spareFree == nil:
			c.spareFree = s
		case len(toReturn) < maxSpanReturnBatch:
			toReturn = append(toReturn, s)
		default:
			// Already queued a full batch this call; keep it cached
			// rather than growing an unbounded return list.
			c.nonempty.push(s)
		}
	}
	c.mu.Unlock()

	for _, s := range toReturn {
		globalPageHeap.deallocateSpan(s)
	}
}

// populateLocked carves a freshly-allocated span into this class's object
// size and adds it to the nonempty list. Called with c.mu held.
func (c *centralFreeList) populateLocked(s *span, info SizeClassInfo) {
	s.sizeClass = c.class
	s.allocatedCount = 0
	s.totalCount = uint32(info.ObjectsPerSpan(activePageSize))

	base := uintptr(s.startAddr(activePageSize))
	var head *freeObject
	for i := int(s.totalCount) - 1; i >= 0; i-- {
		obj := (*freeObject)(unsafe.Pointer(base + uintptr(i)*info.Size))
		obj.next = head
		head = obj
	}
	s.freelist = head
	c.nonempty.push(s)
}

// spanForObject resolves the span owning ptr via the page map.
func spanForObject(ptr unsafe.Pointer) *span {
	page := int(uintptr(ptr) / activePageSize)
	return globalPageMap.get(page)
}
