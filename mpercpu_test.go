// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShardedFrontendAllocateDeallocateRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frontend = FrontendSharded
	Init(cfg)

	class := sizeToClass(32)
	ptr := globalSharded.allocate(class)
	require.NotNil(t, ptr)
	globalSharded.deallocate(ptr, class)

	ptr2 := globalSharded.allocate(class)
	require.NotNil(t, ptr2)
}

func TestShardedFrontendFallsBackWhenNoShards(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frontend = FrontendSharded
	cfg.ShardCount = 0
	Init(cfg)
	globalSharded.shards = nil // simulate an unavailable shard mechanism

	class := sizeToClass(32)
	ptr := globalSharded.allocate(class)
	require.NotNil(t, ptr)
	globalSharded.deallocate(ptr, class)
}

func TestCurrentShardStableBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frontend = FrontendSharded
	cfg.ShardCount = 4
	Init(cfg)

	shard := currentShard()
	require.GreaterOrEqual(t, shard, 0)
	require.Less(t, shard, 4)
}
