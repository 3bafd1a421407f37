// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package gotcmalloc

import (
	"sync"
	"unsafe"
)

// simVMBackend is the fallback platform shim for GOOS values with no
// golang.org/x/sys/unix mmap binding (e.g. js/wasm). It simulates page
// allocation with one zeroed Go-heap slice per request, so the
// package still builds and runs everywhere go build does, at the cost of
// never actually returning memory to the OS (dealloc/decommit are no-ops
// beyond bookkeeping).
type simVMBackend struct {
	mu    sync.Mutex
	slabs [][]byte
}

func newVMBackend() vmBackend { return &simVMBackend{} }

func (b *simVMBackend) alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size) // zeroed by the Go runtime
	b.mu.Lock()
	b.slabs = append(b.slabs, buf)
	b.mu.Unlock()
	return unsafe.Pointer(&buf[0])
}

func (b *simVMBackend) dealloc(ptr unsafe.Pointer, size uintptr) {
	// The backing Go slice is kept alive in b.slabs until process exit;
	// this is a simulated arena, not a real VM mapping, so there is no
	// address range to actually release.
}

func (b *simVMBackend) decommit(ptr unsafe.Pointer, size uintptr) {}
func (b *simVMBackend) recommit(ptr unsafe.Pointer, size uintptr) {}
