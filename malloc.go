// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "unsafe"

// zeroSizeArena backs the non-null, alignment-respecting sentinel returned
// for zero-size allocations (spec.md §4.7 "S == 0 -> return a non-null,
// A-aligned sentinel; deallocation of this value is a no-op"). Callers
// must never dereference it.
var zeroSizeArena [4096]byte

func zeroSentinel(align uintptr) unsafe.Pointer {
	if align == 0 {
		align = 1
	}
	base := uintptr(unsafe.Pointer(&zeroSizeArena[0]))
	aligned := (base + align - 1) &^ (align - 1)
	if aligned < base || aligned >= base+uintptr(len(zeroSizeArena)) {
		aligned = base
	}
	return unsafe.Pointer(aligned)
}

func isZeroSentinel(ptr unsafe.Pointer) bool {
	base := uintptr(unsafe.Pointer(&zeroSizeArena[0]))
	p := uintptr(ptr)
	return p >= base && p < base+uintptr(len(zeroSizeArena))
}

// Alloc returns size bytes aligned to align (a power of two; 0 means "no
// alignment requirement beyond natural"), or nil on OutOfMemory. This is
// the package's primary allocation entry point, implementing spec.md
// §4.1/§4.7's dispatch rule exactly.
func Alloc(size, align uintptr) unsafe.Pointer {
	if size == 0 {
		return zeroSentinel(align)
	}
	if align == 0 {
		align = 1
	}
	allocSizeHistogram.record(size)

	class := smallPathClass(size, align)
	if class != 0 {
		ptr := currentFrontend().allocate(class)
		if ptr == nil {
			return nil
		}
		statsAddAlloc(uint64(classInfo(class).Size))
		return ptr
	}
	return allocLarge(size, align)
}

// smallPathClass returns the size class to route (size, align) through, or
// 0 if the request must take the large path — spec.md §4.1's four bullets.
func smallPathClass(size, align uintptr) uint8 {
	if size < align {
		size = align // effective size is max(size, align)
	}
	if align <= 8 && size <= maxSmallSize {
		return sizeToClass(size)
	}
	if align > 8 && align <= activePageSize {
		if c := sizeToClass(size); c != 0 && classInfo(c).Size%align == 0 {
			return c
		}
	}
	return 0
}

func pagesFor(size, pageSize uintptr) int {
	return int((size + pageSize - 1) / pageSize)
}

// allocLarge handles both plainly page-aligned large allocations and the
// over-aligned case (alignment greater than the page size), per spec.md
// §4.7's prefix/target/suffix split.
func allocLarge(size, align uintptr) unsafe.Pointer {
	pageSize := activePageSize
	if align <= pageSize {
		n := pagesFor(size, pageSize)
		s := globalPageHeap.allocateSpan(n)
		if s == nil {
			return nil
		}
		s.sizeClass = 0
		s.allocatedCount = 1
		s.totalCount = 1
		statsAddAlloc(uint64(n) * uint64(pageSize))
		return s.startAddr(pageSize)
	}
	return allocLargeOverAligned(size, align, pageSize)
}

// allocLargeOverAligned requests extra pages to guarantee room for an
// align-aligned region inside them, then returns the unused prefix and
// suffix pages to the page heap, registering only the target span.
func allocLargeOverAligned(size, align, pageSize uintptr) unsafe.Pointer {
	n := pagesFor(size, pageSize)
	extra := pagesFor(align, pageSize) - 1
	s := globalPageHeap.allocateSpan(n + extra)
	if s == nil {
		return nil
	}
	unregisterSpan(s)

	startAddr := uintptr(s.startPage) * pageSize
	alignedAddr := (startAddr + align - 1) &^ (align - 1)
	alignedPage := int(alignedAddr / pageSize)

	origStart := s.startPage
	prefixPages := alignedPage - origStart
	suffixPages := s.numPages - prefixPages - n

	s.startPage = alignedPage
	s.numPages = n
	s.state = spanInUse
	s.sizeClass = 0
	s.allocatedCount = 1
	s.totalCount = 1
	registerSpan(s)

	if prefixPages > 0 {
		if prefix := allocSpan(); prefix != nil {
			prefix.startPage = origStart
			prefix.numPages = prefixPages
			prefix.state = spanInUse
			globalPageHeap.deallocateSpan(prefix)
		}
	}
	if suffixPages > 0 {
		if suffix := allocSpan(); suffix != nil {
			suffix.startPage = s.endPage()
			suffix.numPages = suffixPages
			suffix.state = spanInUse
			globalPageHeap.deallocateSpan(suffix)
		}
	}

	statsAddAlloc(uint64(n) * uint64(pageSize))
	return unsafe.Pointer(alignedAddr)
}

// AllocZeroed is Alloc followed by zeroing every usable byte the span
// authoritatively grants, not just the requested size.
func AllocZeroed(size, align uintptr) unsafe.Pointer {
	ptr := Alloc(size, align)
	if ptr == nil || size == 0 {
		return ptr
	}
	zeroMemory(ptr, UsableSize(ptr))
	return ptr
}

// AlignedAlloc is a thin convenience wrapper matching the C family's
// aligned_alloc naming; it is exactly Alloc with both arguments named.
func AlignedAlloc(size, align uintptr) unsafe.Pointer {
	return Alloc(size, align)
}

// Dealloc releases ptr. size and align are accepted for interface symmetry
// with Alloc but are never trusted: the authoritative size/class always
// comes from the span the pointer resolves to, per spec.md §4.7. A
// pointer the page map can't resolve is a ForeignPointer: silently ignored
// unless StrictMode is set, in which case it panics (double-free
// detection for development use — see DESIGN.md).
func Dealloc(ptr unsafe.Pointer, size, align uintptr) {
	if ptr == nil || isZeroSentinel(ptr) {
		return
	}
	s := spanForObject(ptr)
	if s == nil {
		statsAddForeignRejection()
		if currentConfig.StrictMode {
			panic("gotcmalloc: Dealloc of a pointer this allocator does not own")
		}
		return
	}
	statsAddDealloc()
	if s.sizeClass == 0 {
		globalPageHeap.deallocateSpan(s)
		return
	}
	currentFrontend().deallocate(ptr, s.sizeClass)
}

// Realloc resizes the allocation at ptr to newSize, preserving up to
// min(usable, newSize) bytes of content, where usable is the span's
// authoritative usable size (oldSize is not trusted). A nil ptr behaves like Alloc; a
// newSize of 0 behaves like Dealloc followed by the zero-size sentinel.
func Realloc(ptr unsafe.Pointer, oldSize, align, newSize uintptr) unsafe.Pointer {
	if ptr == nil || isZeroSentinel(ptr) {
		return Alloc(newSize, align)
	}
	if newSize == 0 {
		Dealloc(ptr, oldSize, align)
		return zeroSentinel(align)
	}

	s := spanForObject(ptr)
	if s == nil {
		statsAddForeignRejection()
		return nil
	}
	statsAddRealloc()

	usable := usableSizeForSpan(s)
	if s.sizeClass != 0 {
		if newSize <= usable {
			return ptr
		}
	} else if pagesFor(newSize, activePageSize) <= s.numPages {
		return ptr
	}

	newPtr := Alloc(newSize, align)
	if newPtr == nil {
		return nil
	}
	copySize := usable
	if newSize < copySize {
		copySize = newSize
	}
	copyMemory(newPtr, ptr, copySize)
	Dealloc(ptr, oldSize, align)
	return newPtr
}

// UsableSize returns the authoritative usable size of the allocation at
// ptr — the Go analogue of malloc_usable_size, exercising spec.md §4.7's
// "authoritative size comes from the span" rule directly.
func UsableSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil || isZeroSentinel(ptr) {
		return 0
	}
	s := spanForObject(ptr)
	if s == nil {
		return 0
	}
	return usableSizeForSpan(s)
}

func usableSizeForSpan(s *span) uintptr {
	if s.sizeClass != 0 {
		return classInfo(s.sizeClass).Size
	}
	return uintptr(s.numPages) * activePageSize
}

func copyMemory(dst, src unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	dstSlice := unsafe.Slice((*byte)(dst), int(n))
	srcSlice := unsafe.Slice((*byte)(src), int(n))
	copy(dstSlice, srcSlice)
}

func zeroMemory(ptr unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	s := unsafe.Slice((*byte)(ptr), int(n))
	for i := range s {
		s[i] = 0
	}
}
