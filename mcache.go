// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// tcacheState is a ThreadCache's lifecycle state (spec.md §4.2's
// Uninitialized/Active/Destroyed three-state lifecycle).
type tcacheState int32

const (
	tcacheUninitialized tcacheState = iota
	tcacheActive
	tcacheDestroyed
)

// tcacheFreeList is one size class's slice of a ThreadCache: a LIFO free
// list plus the slow-start/overage bookkeeping spec.md §4.2 describes.
type tcacheFreeList struct {
	list      *freeObject
	length    uint32
	lowWater  uint32
	maxLength uint32
	overages  uint32
}

// ThreadCache is the goroutine-affine front-end cache: the Go adaptation
// of the spec's thread-local front-end (see DESIGN.md Open Question 2).
// Exported because Detach is a caller-visible lifecycle contract.
type ThreadCache struct {
	id    int64
	state atomic.Int32

	lists     []tcacheFreeList
	totalSize uintptr
	maxSize   uintptr
}

var goroutineCaches sync.Map // int64 goroutine id -> *ThreadCache

func initGoroutineCacheRegistry(cfg Config) {
	goroutineCaches = sync.Map{}
}

// currentThreadCache returns (creating if necessary) the calling
// goroutine's cache.
func currentThreadCache() *ThreadCache {
	id := goroutineID()
	if v, ok := goroutineCaches.Load(id); ok {
		return v.(*ThreadCache)
	}
	tc := newThreadCache(id)
	actual, loaded := goroutineCaches.LoadOrStore(id, tc)
	if loaded {
		return actual.(*ThreadCache)
	}
	return tc
}

func newThreadCache(id int64) *ThreadCache {
	tc := &ThreadCache{
		id:      id,
		lists:   make([]tcacheFreeList, len(activeSizeClasses)),
		maxSize: currentConfig.MinThreadCacheSize,
	}
	for i := range tc.lists {
		tc.lists[i].maxLength = 1
	}
	claimBudget(int64(currentConfig.MinThreadCacheSize))
	tc.state.Store(int32(tcacheActive))
	return tc
}

// claimBudget best-effort CAS-claims up to want bytes from the global
// unclaimed thread-cache budget pool, claiming whatever remains if less
// than want is left. Exhausting the pool is not an error: MinThreadCache-
// Size is a target, not a hard floor the allocator must refuse to run
// without.
func claimBudget(want int64) int64 {
	for {
		cur := unclaimedCacheSpace.Load()
		if cur <= 0 {
			return 0
		}
		claim := want
		if claim > cur {
			claim = cur
		}
		if unclaimedCacheSpace.CompareAndSwap(cur, cur-claim) {
			return claim
		}
	}
}

// allocate implements frontend.
func (tc *ThreadCache) allocate(class uint8) unsafe.Pointer {
	if tcacheState(tc.state.Load()) != tcacheActive {
		// Detach already moved this goroutine's state to Destroyed (or it
		// was never reached past Uninitialized); a racing or reentrant
		// caller must not touch this cache's (possibly already-drained)
		// lists and instead routes straight to the central layer, per
		// spec.md §5/§9.
		return destroyedCacheAllocate(class)
	}

	fl := &tc.lists[class]
	if fl.list == nil {
		if !tc.fetch(class, fl) {
			return nil
		}
	}
	obj := fl.list
	fl.list = obj.next
	fl.length--
	if fl.length < fl.lowWater {
		fl.lowWater = fl.length
	}
	tc.totalSize -= classInfo(class).Size
	statsAddThreadCacheHit()
	return unsafe.Pointer(obj)
}

// deallocate implements frontend.
func (tc *ThreadCache) deallocate(ptr unsafe.Pointer, class uint8) {
	if tcacheState(tc.state.Load()) != tcacheActive {
		destroyedCacheDeallocate(ptr, class)
		return
	}

	fl := &tc.lists[class]
	info := classInfo(class)

	obj := (*freeObject)(ptr)
	obj.next = fl.list
	fl.list = obj
	fl.length++
	tc.totalSize += info.Size

	if fl.length > fl.maxLength {
		tc.releaseBatch(fl, info, class)
		fl.overages++
		if fl.overages >= currentConfig.OverageThreshold {
			tc.shrinkMaxLength(fl, info)
			fl.overages = 0
		}
	} else {
		fl.overages = 0
	}

	if tc.totalSize > tc.maxSize {
		tc.growBudget()
		if tc.totalSize > tc.maxSize {
			tc.scavenge()
		}
	}
}

// growBudget implements spec.md §4.2's "max_size can grow by atomically
// claiming fixed steal-amount chunks from a global unclaimed pool" rule:
// before resorting to a scavenge, try to absorb the pressure by claiming
// one more StealAmount-sized chunk of the shared budget. If the pool is
// exhausted, claimBudget returns 0 and deallocate falls back to scavenging.
func (tc *ThreadCache) growBudget() {
	claimed := claimBudget(int64(currentConfig.StealAmount))
	if claimed > 0 {
		tc.maxSize += uintptr(claimed)
	}
}

func (tc *ThreadCache) fetch(class uint8, fl *tcacheFreeList) bool {
	info := classInfo(class)
	head, got := globalTransferCaches[class].removeRange(info.BatchSize)
	if got == 0 {
		statsAddThreadCacheMiss()
		return false
	}
	fl.list = head
	fl.length = uint32(got)
	fl.lowWater = uint32(got)
	tc.totalSize += uintptr(got) * info.Size
	tc.growMaxLength(fl, info)
	return true
}

// destroyedCacheAllocate/destroyedCacheDeallocate serve a goroutine whose
// ThreadCache is no longer Active, bypassing the front-end lists entirely
// and going straight to the central free list for the class, per spec.md
// §5/§9's reentrant-during-teardown requirement.
func destroyedCacheAllocate(class uint8) unsafe.Pointer {
	head, got := centralFreeLists[class].removeRange(1)
	if got == 0 {
		return nil
	}
	return unsafe.Pointer(head)
}

func destroyedCacheDeallocate(ptr unsafe.Pointer, class uint8) {
	obj := (*freeObject)(ptr)
	obj.next = nil
	centralFreeLists[class].insertRange(obj, 1)
}

// growMaxLength implements the slow-start growth rule: +1 per refill until
// maxLength reaches batchSize, then +batchSize rounded down to a multiple
// of batchSize, capped at MaxDynamicFreeListLength.
func (tc *ThreadCache) growMaxLength(fl *tcacheFreeList, info SizeClassInfo) {
	batch := uint32(info.BatchSize)
	if batch == 0 {
		batch = 1
	}
	if fl.maxLength < batch {
		fl.maxLength++
	} else {
		fl.maxLength += batch
		fl.maxLength -= fl.maxLength % batch
	}
	if fl.maxLength > currentConfig.MaxDynamicFreeListLength {
		fl.maxLength = currentConfig.MaxDynamicFreeListLength
	}
}

func (tc *ThreadCache) shrinkMaxLength(fl *tcacheFreeList, info SizeClassInfo) {
	batch := uint32(info.BatchSize)
	switch {
	case fl.maxLength > batch:
		fl.maxLength -= batch
	case fl.maxLength > 1:
		fl.maxLength--
	}
}

// releaseBatch returns exactly info.BatchSize objects (or however many are
// present, if fewer) from the head of fl back to the transfer cache.
func (tc *ThreadCache) releaseBatch(fl *tcacheFreeList, info SizeClassInfo, class uint8) {
	n := info.BatchSize
	if n > int(fl.length) {
		n = int(fl.length)
	}
	if n == 0 {
		return
	}
	head := fl.list
	tail := head
	for i := 1; i < n; i++ {
		tail = tail.next
	}
	fl.list = tail.next
	tail.next = nil
	fl.length -= uint32(n)
	tc.totalSize -= uintptr(n) * info.Size
	globalTransferCaches[class].insertRange(head, tail, n)
}

// scavenge releases half of each free list's low-water mark (the objects
// that sat unused since the last scavenge) back to the transfer cache,
// class by class until totalSize is at most maxSize/2, then resets every
// low-water mark, per spec.md §4.2's budget-scavenge rule.
func (tc *ThreadCache) scavenge() {
	target := tc.maxSize / 2
	for class := range tc.lists {
		if tc.totalSize <= target {
			break
		}
		fl := &tc.lists[class]
		release := fl.lowWater / 2
		if release == 0 {
			continue
		}
		info := classInfo(uint8(class))
		var head, tail *freeObject
		var n uint32
		for n < release && fl.list != nil {
			obj := fl.list
			fl.list = obj.next
			obj.next = head
			if tail == nil {
				tail = obj
			}
			head = obj
			fl.length--
			n++
		}
		if n > 0 {
			tc.totalSize -= uintptr(n) * info.Size
			globalTransferCaches[class].insertRange(head, tail, int(n))
		}
	}
	for class := range tc.lists {
		tc.lists[class].lowWater = tc.lists[class].length
	}
}

// Detach returns every cached object to the transfer cache, releases this
// cache's claimed budget back to the shared pool, and removes it from the
// registry. Callers that spawn a bounded worker pool of goroutines using
// the allocator should call Detach when a worker retires; a goroutine that
// never calls Detach leaves its cache parked in the registry, and the cache
// stays there after the goroutine exits (goroutine ids are not reused, so
// nothing else removes it).
func (tc *ThreadCache) Detach() {
	if !tc.state.CompareAndSwap(int32(tcacheActive), int32(tcacheDestroyed)) {
		return
	}
	for class := range tc.lists {
		fl := &tc.lists[class]
		if fl.list == nil {
			continue
		}
		tail := fl.list
		n := uint32(1)
		for tail.next != nil {
			tail = tail.next
			n++
		}
		globalTransferCaches[class].insertRange(fl.list, tail, int(n))
		fl.list = nil
		fl.length = 0
	}
	unclaimedCacheSpace.Add(int64(tc.maxSize))
	goroutineCaches.Delete(tc.id)
}
