// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "sync/atomic"

// Package-level singleton state. gotcmalloc is a library allocator with a
// single process-wide arena (matching spec.md §9's "no globals owned by the
// core" guidance read together with §5's "one page heap, one set of
// central free lists" concurrency model) — Init lets an embedding program
// reconfigure it once, before any allocation, rather than exposing a
// constructible-Allocator-per-call-site API the spec never asks for.

var (
	currentConfig    Config
	activeSizeClasses []SizeClassInfo
	activePageSize   uintptr

	globalPageHeap        *pageHeap
	centralFreeLists      []centralFreeList
	globalTransferCaches  []transferCache

	unclaimedCacheSpace atomic.Int64
)

func init() {
	applyConfig(DefaultConfig())
}

// Init reconfigures the package-level allocator state. It must be called
// before any goroutine has performed an Alloc/Dealloc/Realloc; it is not
// safe to call concurrently with allocator use (matching spec.md §6's
// "configuration is fixed at construction time" framing, adapted to a
// package-level singleton instead of a per-instance constructor).
func Init(cfg Config) {
	applyConfig(cfg)
}

func applyConfig(cfg Config) {
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.SizeClasses == nil {
		cfg.SizeClasses = defaultSizeClasses[:]
	}
	if cfg.MaxIndexedSpanPages <= 0 {
		cfg.MaxIndexedSpanPages = maxIndexedSpanPages
	}
	if cfg.GrowFloorPages <= 0 {
		cfg.GrowFloorPages = growFloorPages
	}
	if cfg.MaxTransferSlots <= 0 {
		cfg.MaxTransferSlots = maxTransferSlots
	}
	if cfg.ThreadCacheBudget == 0 {
		cfg.ThreadCacheBudget = overallThreadCacheBudget
	}
	if cfg.MinThreadCacheSize == 0 {
		cfg.MinThreadCacheSize = minThreadCacheSize
	}
	if cfg.StealAmount == 0 {
		cfg.StealAmount = stealAmount
	}
	if cfg.MaxDynamicFreeListLength == 0 {
		cfg.MaxDynamicFreeListLength = maxDynamicFreeListLength
	}
	if cfg.OverageThreshold == 0 {
		cfg.OverageThreshold = maxOverages
	}

	currentConfig = cfg
	activeSizeClasses = cfg.SizeClasses
	activePageSize = cfg.PageSize
	buildSmallLookup(activeSizeClasses)

	globalPageHeap = newPageHeap(cfg)

	centralFreeLists = make([]centralFreeList, len(activeSizeClasses))
	for i := range centralFreeLists {
		centralFreeLists[i].class = uint8(i)
	}

	globalTransferCaches = make([]transferCache, len(activeSizeClasses))
	for i := range globalTransferCaches {
		globalTransferCaches[i].class = uint8(i)
		globalTransferCaches[i].maxSlots = cfg.MaxTransferSlots
	}

	unclaimedCacheSpace.Store(int64(cfg.ThreadCacheBudget))

	resetFrontendState(cfg)
}
