// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// perCPUSlot is one shard's free list for one size class: a lock-free
// Treiber stack. spec.md §4.2 describes a contiguous byte region with a
// packed (current,end) header committed by a single CAS; this is the same
// commit-or-retry contract expressed with atomic.Pointer over the
// freeObject chain already used by every other tier, which avoids hand-
// rolled unsafe layout arithmetic for no behavioral difference — the
// header-and-array encoding is an implementation detail of the reference,
// not part of its observable contract (push/pop, CAS-commit, retry on
// collision).
type perCPUSlot struct {
	head atomic.Pointer[freeObject]
	len  atomic.Int32
}

// shardedFrontend is the GOMAXPROCS-sharded front-end variant (spec.md
// §4.2's "per-CPU cache", adapted for Go's lack of a portable rseq
// binding — see DESIGN.md Open Question 3).
type shardedFrontend struct {
	shards [][]perCPUSlot // [shard][class]
	maxLen int32
}

var globalSharded *shardedFrontend

func initShardedFrontend(cfg Config) {
	n := cfg.ShardCount
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	sf := &shardedFrontend{maxLen: shardSlotMaxLen}
	sf.shards = make([][]perCPUSlot, n)
	for i := range sf.shards {
		sf.shards[i] = make([]perCPUSlot, len(activeSizeClasses))
	}
	globalSharded = sf
}

const shardSlotMaxLen = 512

// currentShard returns a process-wide shard index for the calling
// goroutine, or -1 if sharding is unavailable (no shards configured),
// per the CPU-identity shim contract in SPEC_FULL.md §6.
func currentShard() int {
	if globalSharded == nil || len(globalSharded.shards) == 0 {
		return -1
	}
	n := uint64(len(globalSharded.shards))
	return int(uint64(goroutineID()) % n)
}

func (sf *shardedFrontend) allocate(class uint8) unsafe.Pointer {
	shard := currentShard()
	if shard < 0 {
		return sf.fallbackAllocate(class)
	}
	slot := &sf.shards[shard][class]
	for {
		head := slot.head.Load()
		if head == nil {
			if !sf.refill(class, slot) {
				return nil
			}
			continue
		}
		next := head.next
		if slot.head.CompareAndSwap(head, next) {
			slot.len.Add(-1)
			statsAddThreadCacheHit()
			return unsafe.Pointer(head)
		}
		// Lost the race to another goroutine landing on the same shard —
		// the rseq-abort analogue from spec.md §4.2. Retry.
	}
}

func (sf *shardedFrontend) deallocate(ptr unsafe.Pointer, class uint8) {
	shard := currentShard()
	if shard < 0 {
		sf.fallbackDeallocate(ptr, class)
		return
	}
	slot := &sf.shards[shard][class]
	obj := (*freeObject)(ptr)
	for {
		head := slot.head.Load()
		obj.next = head
		if slot.head.CompareAndSwap(head, obj) {
			if slot.len.Add(1) > sf.maxLen {
				sf.drain(class, slot)
			}
			return
		}
	}
}

// refill splices a fresh batch from the transfer cache onto slot in a
// single CAS.
func (sf *shardedFrontend) refill(class uint8, slot *perCPUSlot) bool {
	info := classInfo(class)
	head, got := globalTransferCaches[class].removeRange(info.BatchSize)
	if got == 0 {
		statsAddThreadCacheMiss()
		return false
	}
	tail := head
	for tail.next != nil {
		tail = tail.next
	}
	for {
		cur := slot.head.Load()
		tail.next = cur
		if slot.head.CompareAndSwap(cur, head) {
			slot.len.Add(int32(got))
			return true
		}
	}
}

// drain pops roughly one batch off slot and returns it to the transfer
// cache, mirroring the thread-cache's own overage response.
func (sf *shardedFrontend) drain(class uint8, slot *perCPUSlot) {
	info := classInfo(class)
	for {
		cur := slot.head.Load()
		if cur == nil {
			return
		}
		node := cur
		count := 0
		for count < info.BatchSize-1 && node.next != nil {
			node = node.next
			count++
		}
		rest := node.next
		if slot.head.CompareAndSwap(cur, rest) {
			node.next = nil
			slot.len.Add(-int32(count + 1))
			globalTransferCaches[class].insertRange(cur, node, count+1)
			return
		}
	}
}

// fallbackAllocate/fallbackDeallocate bypass shard caching entirely when
// sharding is unavailable, going straight to the transfer cache, per
// spec.md §4.2's last paragraph.
func (sf *shardedFrontend) fallbackAllocate(class uint8) unsafe.Pointer {
	head, got := globalTransferCaches[class].removeRange(1)
	if got == 0 {
		return nil
	}
	if got > 1 {
		rest := head.next
		head.next = nil
		tail := rest
		n := got - 1
		for tail.next != nil {
			tail = tail.next
		}
		globalTransferCaches[class].insertRange(rest, tail, n)
	}
	return unsafe.Pointer(head)
}

func (sf *shardedFrontend) fallbackDeallocate(ptr unsafe.Pointer, class uint8) {
	obj := (*freeObject)(ptr)
	obj.next = nil
	globalTransferCaches[class].insertRange(obj, obj, 1)
}
