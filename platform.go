// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "unsafe"

// Platform VM shim. pageAlloc/pageDealloc/pageDecommit/pageRecommit are the
// only points where this package asks the operating system for memory; the
// core never recurses into its own Alloc to satisfy a metadata request.
//
// The real implementation (platform_unix.go) is backed by
// golang.org/x/sys/unix.Mmap/Munmap/Madvise. A pure-Go simulated arena
// (platform_sim.go) backs any GOOS without an x/sys/unix mmap binding, so
// the package still builds (with degraded decommit behavior) everywhere.

// pageAllocSize is the OS's own mapping granularity, coarser than (or equal
// to) the allocator's configured page size can never be assumed — it is
// typically 4 KiB while the configured page size defaults to 8 KiB.
const pageAllocSize = 4096

// roundUpToOSGranularity rounds size up to a multiple of pageAllocSize.
func roundUpToOSGranularity(size uintptr) uintptr {
	return roundUpTo(size, pageAllocSize)
}

// roundUpTo rounds size up to a multiple of n (n must be a power of two).
func roundUpTo(size, n uintptr) uintptr {
	return (size + n - 1) &^ (n - 1)
}

// vmBackend is implemented once per platform build.
type vmBackend interface {
	alloc(size uintptr) unsafe.Pointer
	dealloc(ptr unsafe.Pointer, size uintptr)
	decommit(ptr unsafe.Pointer, size uintptr)
	recommit(ptr unsafe.Pointer, size uintptr)
}

var currentVMBackend vmBackend = newVMBackend()

// pageAlloc returns size bytes of zeroed virtual memory aligned to the
// configured page size (activePageSize), or nil on failure. The OS's own
// mapping granularity (pageAllocSize) can be coarser than whatever the
// caller asked for, so this over-allocates by up to one extra page, aligns
// the returned pointer up to activePageSize, and immediately trims
// (unmaps) the unused prefix/suffix slack back to the OS — spec.md §6's
// "over-allocate and trim where the OS granularity is smaller than
// requested."
func pageAlloc(size uintptr) unsafe.Pointer {
	pageSize := activePageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	size = roundUpTo(size, pageSize)
	if size == 0 {
		return nil
	}

	osSize := roundUpToOSGranularity(size + pageSize)
	raw := currentVMBackend.alloc(osSize)
	if raw == nil {
		return nil
	}

	rawAddr := uintptr(raw)
	aligned := roundUpTo(rawAddr, pageSize)
	prefix := aligned - rawAddr
	suffix := osSize - prefix - size

	if prefix > 0 {
		currentVMBackend.dealloc(raw, prefix)
	}
	if suffix > 0 {
		currentVMBackend.dealloc(unsafe.Pointer(aligned+size), suffix)
	}

	statsAddOSAlloc(uint64(size))
	return unsafe.Pointer(aligned)
}

// pageDealloc frees memory previously returned by pageAlloc. size must
// match the original (pre-rounding) request; reapplying pageAlloc's own
// page-size rounding recovers the live mapping's actual extent, since the
// prefix/suffix slack was already trimmed away at alloc time.
func pageDealloc(ptr unsafe.Pointer, size uintptr) {
	pageSize := activePageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	currentVMBackend.dealloc(ptr, roundUpTo(size, pageSize))
}

// pageDecommit returns physical memory to the OS while keeping the virtual
// address range reserved. Optional extension, see decommit.go.
func pageDecommit(ptr unsafe.Pointer, size uintptr) {
	currentVMBackend.decommit(ptr, size)
}

// pageRecommit undoes a pageDecommit.
func pageRecommit(ptr unsafe.Pointer, size uintptr) {
	currentVMBackend.recommit(ptr, size)
}
