// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"sync"
	"unsafe"
)

// spanSlabSize is the chunk size requested from the platform shim each time
// the span pool needs more backing memory for span records.
const spanSlabSize = 8192

// spanSize is the (pointer-aligned) footprint of one span record.
const spanSize = unsafe.Sizeof(span{})

// spanPool hands out span records without ever going through this
// allocator's own Alloc path — it bump-allocates from raw OS pages and
// recycles freed records on an internal free list, matching the span pool
// contract in spec.md §3 and §9 ("no globals owned by the core...must be
// constructible without running any initializer that could itself call the
// allocator").
type spanPool struct {
	mu       sync.Mutex
	freeList *span
	bumpPtr  uintptr
	bumpEnd  uintptr
}

var globalSpanPool spanPool

// allocSpan returns a zero-valued span record, or nil on OS exhaustion.
func allocSpan() *span {
	globalSpanPool.mu.Lock()
	s := globalSpanPool.allocLocked()
	globalSpanPool.mu.Unlock()
	if s != nil {
		*s = span{}
	}
	return s
}

// deallocSpan returns a span record (not currently in any list) to the pool
// for reuse.
func deallocSpan(s *span) {
	globalSpanPool.mu.Lock()
	s.next = globalSpanPool.freeList
	globalSpanPool.freeList = s
	globalSpanPool.mu.Unlock()
}

func (p *spanPool) allocLocked() *span {
	if p.freeList != nil {
		s := p.freeList
		p.freeList = s.next
		return s
	}

	aligned := (p.bumpPtr + unsafe.Alignof(span{}) - 1) &^ (unsafe.Alignof(span{}) - 1)
	end := aligned + spanSize
	if end <= p.bumpEnd {
		p.bumpPtr = end
		return (*span)(unsafe.Pointer(aligned))
	}

	slab := pageAlloc(spanSlabSize)
	if slab == nil {
		return nil
	}
	p.bumpPtr = uintptr(slab)
	p.bumpEnd = uintptr(slab) + spanSlabSize
	return p.allocLocked()
}
