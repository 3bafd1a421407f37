// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageHeapAllocateExactPageCount(t *testing.T) {
	h := newPageHeap(DefaultConfig())
	s := h.allocateSpan(3)
	require.NotNil(t, s)
	require.Equal(t, 3, s.numPages)
	require.Equal(t, spanInUse, s.state)
}

func TestPageHeapDeallocateThenReallocateReuses(t *testing.T) {
	h := newPageHeap(DefaultConfig())
	s1 := h.allocateSpan(4)
	require.NotNil(t, s1)
	start := s1.startPage

	h.deallocateSpan(s1)

	before := globalStats.osAllocCount.Load()
	s2 := h.allocateSpan(4)
	after := globalStats.osAllocCount.Load()

	require.NotNil(t, s2)
	require.Equal(t, start, s2.startPage, "freed span should be reused by an equal-size request")
	require.Equal(t, before, after, "reusing a freed span must not touch the OS")
}

func TestPageHeapCoalescesAdjacentFreeSpans(t *testing.T) {
	h := newPageHeap(DefaultConfig())
	// Grow the heap once with a single large request so the two sub-spans
	// carved below are guaranteed to be adjacent.
	seed := h.allocateSpan(6)
	require.NotNil(t, seed)
	h.deallocateSpan(seed)

	a := h.allocateSpan(2)
	b := h.allocateSpan(2)
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.Equal(t, a.startPage+2, b.startPage, "carve should hand out contiguous sub-spans")

	h.deallocateSpan(a)
	h.deallocateSpan(b)

	before := globalStats.osAllocCount.Load()
	merged := h.allocateSpan(4)
	after := globalStats.osAllocCount.Load()

	require.NotNil(t, merged)
	require.Equal(t, a.startPage, merged.startPage)
	require.Equal(t, before, after, "coalesced span should satisfy the request without growing the heap")
}

func TestPageHeapGrowFloorRoundsUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GrowFloorPages = 16
	h := newPageHeap(cfg)

	s := h.allocateSpan(1)
	require.NotNil(t, s)
	h.deallocateSpan(s)

	// After growth and the free, the heap's free lists (indexed and large)
	// should hold at least growFloor-1 pages beyond the one handed out.
	h.mu.Lock()
	total := 0
	for n, l := range h.freeLists {
		total += n * l.count
	}
	for ls := h.largeSpans.head; ls != nil; ls = ls.next {
		total += ls.numPages
	}
	h.mu.Unlock()
	require.GreaterOrEqual(t, total, cfg.GrowFloorPages-1)
}
