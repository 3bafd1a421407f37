// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransferCacheMissFallsThroughToCentral(t *testing.T) {
	Init(DefaultConfig())
	class := sizeToClass(32)
	tc := &globalTransferCaches[class]

	head, got := tc.removeRange(16)
	require.Equal(t, 16, got)
	require.NotNil(t, head)
}

func TestTransferCacheInsertThenRemoveHitsCache(t *testing.T) {
	Init(DefaultConfig())
	class := sizeToClass(32)
	tc := &globalTransferCaches[class]
	info := classInfo(class)

	head, got := tc.removeRange(info.BatchSize)
	require.Equal(t, info.BatchSize, got)
	tail := head
	for tail.next != nil {
		tail = tail.next
	}
	tc.insertRange(head, tail, got)

	before := globalStats.centralCacheHits.Load()
	head2, got2 := tc.removeRange(info.BatchSize)
	after := globalStats.centralCacheHits.Load()

	require.Equal(t, got, got2)
	require.NotNil(t, head2)
	require.Equal(t, before, after, "a cached batch must satisfy the request without touching the central free list")
}

func TestTransferCacheEvictsOldestSlotWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTransferSlots = 2
	Init(cfg)

	class := sizeToClass(32)
	tc := &globalTransferCaches[class]
	info := classInfo(class)

	// Take all three batches out first (each a miss served by the central
	// free list), so that inserting them back overfills the two slots.
	heads := make([]*freeObject, 3)
	tails := make([]*freeObject, 3)
	for i := range heads {
		head, got := tc.removeRange(info.BatchSize)
		require.Equal(t, info.BatchSize, got)
		tail := head
		for tail.next != nil {
			tail = tail.next
		}
		heads[i], tails[i] = head, tail
	}
	for i := range heads {
		tc.insertRange(heads[i], tails[i], info.BatchSize)
	}

	tc.mu.Lock()
	slots := len(tc.slots)
	oldest := tc.slots[0].head
	tc.mu.Unlock()
	require.LessOrEqual(t, slots, cfg.MaxTransferSlots)
	require.Equal(t, heads[1], oldest, "the first-inserted batch should have been evicted")
}
