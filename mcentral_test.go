// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCentralFreeListRemoveRangePopulatesFromPageHeap(t *testing.T) {
	Init(DefaultConfig())
	class := sizeToClass(64)
	c := &centralFreeLists[class]

	head, got := c.removeRange(10)
	require.Equal(t, 10, got)
	require.NotNil(t, head)

	count := 0
	for o := head; o != nil; o = o.next {
		count++
	}
	require.Equal(t, 10, count)
}

func TestCentralFreeListInsertRangeReturnsObjectsForReuse(t *testing.T) {
	Init(DefaultConfig())
	class := sizeToClass(64)
	c := &centralFreeLists[class]

	head, got := c.removeRange(5)
	require.Equal(t, 5, got)

	c.insertRange(head, 5)

	head2, got2 := c.removeRange(5)
	require.Equal(t, 5, got2)
	require.NotNil(t, head2)
}

func TestCentralFreeListKeepsLastNonemptySpanCached(t *testing.T) {
	Init(DefaultConfig())
	class := sizeToClass(8)
	c := &centralFreeLists[class]
	info := classInfo(class)

	// Drain exactly one whole span's worth of objects, then return them
	// all: the span becomes fully free but must not disappear from the
	// central pool entirely (cached-span policy).
	n := info.ObjectsPerSpan(activePageSize)
	head, got := c.removeRange(n)
	require.Equal(t, n, got)

	c.insertRange(head, n)

	c.mu.Lock()
	hasSpare := c.spareFree != nil || !c.nonempty.isEmpty()
	c.mu.Unlock()
	require.True(t, hasSpare, "central free list should retain a cached span after its only span empties")
}
