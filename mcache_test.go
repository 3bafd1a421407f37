// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestThreadCacheAllocateDeallocateRoundTrip(t *testing.T) {
	Init(DefaultConfig())
	tc := currentThreadCache()
	class := sizeToClass(32)

	ptr := tc.allocate(class)
	require.NotNil(t, ptr)
	tc.deallocate(ptr, class)

	ptr2 := tc.allocate(class)
	require.NotNil(t, ptr2)
	require.Equal(t, ptr, ptr2, "a single object freed and reallocated should come back LIFO")
}

func TestThreadCacheGrowsMaxLengthOnRefill(t *testing.T) {
	Init(DefaultConfig())
	tc := currentThreadCache()
	class := sizeToClass(16)

	initial := tc.lists[class].maxLength
	ptr := tc.allocate(class) // triggers the first fetch/refill
	require.NotNil(t, ptr)
	require.Greater(t, tc.lists[class].maxLength, initial)
}

func TestThreadCacheReleasesBatchOnOverage(t *testing.T) {
	Init(DefaultConfig())
	tc := currentThreadCache()
	class := sizeToClass(16)
	info := classInfo(class)

	fl := &tc.lists[class]
	fl.maxLength = uint32(info.BatchSize)

	ptrs := make([]unsafe.Pointer, 0, info.BatchSize+1)
	for i := 0; i <= info.BatchSize; i++ {
		head, got := globalTransferCaches[class].removeRange(1)
		require.Equal(t, 1, got)
		ptrs = append(ptrs, unsafe.Pointer(head))
	}
	for _, p := range ptrs {
		tc.deallocate(p, class)
	}

	require.LessOrEqual(t, int(fl.length), info.BatchSize)
}

func TestThreadCacheDetachReturnsObjectsAndBudget(t *testing.T) {
	Init(DefaultConfig())
	tc := currentThreadCache()
	class := sizeToClass(16)

	ptr := tc.allocate(class)
	require.NotNil(t, ptr)
	tc.deallocate(ptr, class)

	budgetBefore := unclaimedCacheSpace.Load()
	tc.Detach()
	budgetAfter := unclaimedCacheSpace.Load()
	require.Greater(t, budgetAfter, budgetBefore)

	require.Equal(t, int32(tcacheDestroyed), tc.state.Load())

	_, ok := goroutineCaches.Load(tc.id)
	require.False(t, ok)
}

func TestThreadCacheRegistryIsPerGoroutine(t *testing.T) {
	Init(DefaultConfig())
	var wg sync.WaitGroup
	ids := make(chan int64, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- currentThreadCache().id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		require.False(t, seen[id], "goroutine ids handed to distinct caches must not collide")
		seen[id] = true
	}
}
