// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package gotcmalloc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// unixVMBackend backs the platform shim with real anonymous mmap/munmap on
// unix-family GOOS values, via golang.org/x/sys/unix — the same dependency
// the teacher's own go.mod already carries. mmap'd anonymous memory comes
// back zero-filled by the kernel, which is what the page map relies on
// (freshly allocated mid/leaf nodes start with every slot null).
type unixVMBackend struct{}

func newVMBackend() vmBackend { return unixVMBackend{} }

func (unixVMBackend) alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func (unixVMBackend) dealloc(ptr unsafe.Pointer, size uintptr) {
	if ptr == nil || size == 0 {
		return
	}
	b := unsafe.Slice((*byte)(ptr), int(size))
	_ = unix.Munmap(b)
}

func (unixVMBackend) decommit(ptr unsafe.Pointer, size uintptr) {
	if ptr == nil || size == 0 {
		return
	}
	b := unsafe.Slice((*byte)(ptr), int(size))
	_ = unix.Madvise(b, unix.MADV_DONTNEED)
}

func (unixVMBackend) recommit(ptr unsafe.Pointer, size uintptr) {
	// madvise(MADV_DONTNEED) doesn't unmap the range; touching the pages
	// again implicitly recommits them. Nothing to do, matching the
	// original implementation's own unix backend.
}
