// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "sync"

// pageHeap is the allocator's back-end: it owns all memory obtained from
// the OS and hands it out in spans of whole pages. Grounded on
// _examples/original_source/src/page_heap.rs's allocate_span/
// deallocate_span/carve_span/grow_heap shape, adapted to Go's span-pool and
// page-map types.
//
// free_lists[n] holds spans of exactly n pages for 1 <= n < len(free_lists);
// largeSpans holds every free span of len(free_lists) or more pages, kept
// sorted by ascending page count so allocateSpan's best-fit search
// (bestFitLarge) can stop at the first span that fits.
type pageHeap struct {
	mu sync.Mutex

	pageSize   uintptr
	growFloor  int
	freeLists  []spanList // index 0 unused, index n holds exactly-n-page spans
	largeSpans spanList
}

func newPageHeap(cfg Config) *pageHeap {
	h := &pageHeap{
		pageSize:  cfg.PageSize,
		growFloor: cfg.GrowFloorPages,
		freeLists: make([]spanList, cfg.MaxIndexedSpanPages+1),
	}
	return h
}

// allocateSpan returns a span of exactly n pages in the InUse state, or nil
// on OS exhaustion. n must be >= 1.
func (h *pageHeap) allocateSpan(n int) *span {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocateSpanLocked(n)
}

func (h *pageHeap) allocateSpanLocked(n int) *span {
	if s := h.firstFit(n); s != nil {
		return h.carveLocked(s, n)
	}
	if s := h.bestFitLarge(n); s != nil {
		return h.carveLocked(s, n)
	}
	if !h.growHeapLocked(n) {
		return nil
	}
	if s := h.firstFit(n); s != nil {
		return h.carveLocked(s, n)
	}
	if s := h.bestFitLarge(n); s != nil {
		return h.carveLocked(s, n)
	}
	return nil
}

// firstFit scans the indexed free lists starting at exactly n pages,
// returning the first (smallest adequate) exact-size or larger span found
// among the indexed lists.
func (h *pageHeap) firstFit(n int) *span {
	for i := n; i < len(h.freeLists); i++ {
		if !h.freeLists[i].isEmpty() {
			return h.freeLists[i].pop()
		}
	}
	return nil
}

// bestFitLarge scans the large-span list (kept sorted ascending by page
// count) for the first span with at least n pages.
func (h *pageHeap) bestFitLarge(n int) *span {
	for s := h.largeSpans.head; s != nil; s = s.next {
		if s.numPages >= n {
			h.largeSpans.remove(s)
			return s
		}
	}
	return nil
}

// carveLocked splits s (numPages >= n) into an n-page InUse span and, if
// any pages remain, a free remainder span reinserted into the appropriate
// free list.
func (h *pageHeap) carveLocked(s *span, n int) *span {
	debugAssert(s.numPages >= n, "carveLocked: span smaller than the requested page count")

	if s.numPages == n {
		s.state = spanInUse
		registerSpan(s)
		return s
	}

	statsAddSpanSplit()

	remainder := allocSpan()
	if remainder == nil {
		// Metadata exhaustion: give back the whole span rather than losing
		// the tail permanently, and report allocation failure.
		h.insertFree(s)
		return nil
	}

	remainder.startPage = s.startPage + n
	remainder.numPages = s.numPages - n
	remainder.state = spanFree
	registerSpanEndpoints(remainder)
	h.insertFree(remainder)

	s.numPages = n
	s.state = spanInUse
	registerSpan(s)
	return s
}

// deallocateSpan returns an InUse span to the free pool, coalescing with
// any free neighbor spans first.
func (h *pageHeap) deallocateSpan(s *span) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s.sizeClass = 0
	s.freelist = nil
	s.allocatedCount = 0
	s.totalCount = 0
	s.state = spanFree

	s = h.coalesceLeft(s)
	s = h.coalesceRight(s)

	debugAssert(!h.hasFreeNeighbor(s), "deallocateSpan: adjacent free span left uncoalesced")

	registerSpanEndpoints(s)
	h.insertFree(s)
}

// hasFreeNeighbor reports whether either page immediately outside s's range
// maps to another Free span — the coalescing invariant (spec.md §8
// property 4) says this must never be true once deallocateSpan returns.
func (h *pageHeap) hasFreeNeighbor(s *span) bool {
	if s.startPage > 0 {
		if left := globalPageMap.get(s.startPage - 1); left != nil && left != s && left.state == spanFree {
			return true
		}
	}
	if right := globalPageMap.get(s.endPage()); right != nil && right != s && right.state == spanFree {
		return true
	}
	return false
}

// coalesceLeft merges s with its immediate left neighbor if that neighbor
// is a free span, returning the (possibly merged) span.
func (h *pageHeap) coalesceLeft(s *span) *span {
	if s.startPage == 0 {
		return s
	}
	left := globalPageMap.get(s.startPage - 1)
	if left == nil || left.state != spanFree || left == s {
		return s
	}
	h.removeFree(left)
	unregisterSpan(left)
	left.numPages += s.numPages
	deallocSpan(s)
	statsAddSpanCoalesce()
	return left
}

// coalesceRight merges s with its immediate right neighbor if that
// neighbor is a free span, returning the (possibly merged) span.
func (h *pageHeap) coalesceRight(s *span) *span {
	right := globalPageMap.get(s.endPage())
	if right == nil || right.state != spanFree || right == s {
		return s
	}
	h.removeFree(right)
	unregisterSpan(right)
	s.numPages += right.numPages
	deallocSpan(right)
	statsAddSpanCoalesce()
	return s
}

// insertFree places a free span into the indexed list (if small enough) or
// the sorted large-span list.
func (h *pageHeap) insertFree(s *span) {
	if s.numPages < len(h.freeLists) {
		h.freeLists[s.numPages].push(s)
		return
	}
	h.insertLargeSorted(s)
}

// removeFree takes a free span out of whichever list currently holds it.
func (h *pageHeap) removeFree(s *span) {
	if s.numPages < len(h.freeLists) {
		h.freeLists[s.numPages].remove(s)
		return
	}
	h.largeSpans.remove(s)
}

func (h *pageHeap) insertLargeSorted(s *span) {
	var prev *span
	cur := h.largeSpans.head
	for cur != nil && cur.numPages < s.numPages {
		prev = cur
		cur = cur.next
	}
	if prev == nil {
		h.largeSpans.push(s)
		return
	}
	s.next = cur
	s.prev = prev
	prev.next = s
	if cur != nil {
		cur.prev = s
	}
	h.largeSpans.count++
}

// growHeapLocked requests at least n pages (rounded up to growFloor) from
// the OS, falling back to an exact-n request if the rounded request fails,
// per spec.md §4.5. Returns false only if even the exact-n request fails.
func (h *pageHeap) growHeapLocked(n int) bool {
	grow := n
	if grow < h.growFloor {
		grow = h.growFloor
	}
	if h.growHeapExact(grow) {
		return true
	}
	if grow == n {
		return false
	}
	return h.growHeapExact(n)
}

func (h *pageHeap) growHeapExact(n int) bool {
	size := uintptr(n) * h.pageSize
	raw := pageAlloc(size)
	if raw == nil {
		return false
	}
	statsAddPageHeapAlloc()

	s := allocSpan()
	if s == nil {
		pageDealloc(raw, size)
		return false
	}
	s.startPage = int(uintptr(raw) / h.pageSize)
	s.numPages = n
	s.state = spanFree
	registerSpanEndpoints(s)
	h.insertFree(s)
	return true
}

// decommitIdle returns physical memory for every span on the large-span
// free list to the OS while keeping their virtual mappings reserved. Only
// the large-span list is walked (not the indexed small-span lists) to
// keep the cost of a Scavenge call bounded; small free spans churn too
// quickly for decommit to be worth its madvise cost.
func (h *pageHeap) decommitIdle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := h.largeSpans.head; s != nil; s = s.next {
		pageDecommit(s.startAddr(h.pageSize), s.byteSize(h.pageSize))
	}
}

// registerSpan/registerSpanEndpoints/unregisterSpan wrap globalPageMap
// calls; a false return (metadata exhaustion) just leaves the page
// unresolvable by pointer lookup, which the dispatcher treats as a foreign
// pointer — the span itself is still tracked correctly in the free lists.
func registerSpan(s *span)          { globalPageMap.registerSpan(s) }
func registerSpanEndpoints(s *span) { globalPageMap.registerSpanEndpoints(s) }
func unregisterSpan(s *span)        { globalPageMap.unregisterSpan(s) }
