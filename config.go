// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

// FrontendKind selects which front-end cache variant an Allocator uses.
type FrontendKind int

const (
	// FrontendGoroutineAffine caches objects per calling goroutine (the
	// spec's "thread-local" variant, adapted for Go's lack of TLS — see
	// DESIGN.md Open Question 2).
	FrontendGoroutineAffine FrontendKind = iota
	// FrontendSharded caches objects in GOMAXPROCS-sized shards selected
	// by a fast per-goroutine hash (the spec's "per-CPU" variant, adapted
	// for Go's lack of a portable restartable-sequence binding — see
	// DESIGN.md Open Question 3).
	FrontendSharded
)

// Config holds the compile-time-constant-in-spirit knobs the spec calls
// out in its Configuration section (§6). Unlike the C/C++/Rust tcmalloc
// family, gotcmalloc is a library an embedding program constructs, so these
// are runtime struct fields rather than build-time constants.
type Config struct {
	// PageSize is the allocator's unit of OS-level memory. Must be a
	// power of two and at least 4 KiB. Defaults to 8 KiB.
	PageSize uintptr

	// SizeClasses overrides the built-in size-class table. Index 0 must
	// be the zero-value sentinel. Leave nil to use defaultSizeClasses.
	SizeClasses []SizeClassInfo

	// Frontend selects the front-end cache variant.
	Frontend FrontendKind

	// ThreadCacheBudget is the overall thread-cache budget goroutine caches
	// draw from: MinThreadCacheSize when a cache is created, then
	// StealAmount-sized claims when it grows.
	ThreadCacheBudget uintptr

	// MinThreadCacheSize is the minimum per-goroutine cache size; a cache
	// never shrinks its max_size below this via scavenging.
	MinThreadCacheSize uintptr

	// StealAmount is the chunk size a ThreadCache atomically claims from
	// the global unclaimed budget pool when it wants to grow.
	StealAmount uintptr

	// MaxDynamicFreeListLength caps how large a single size class's
	// front-end free list may grow via slow-start.
	MaxDynamicFreeListLength uint32

	// OverageThreshold is the number of consecutive over-length releases
	// before a front-end free list's max length is shrunk.
	OverageThreshold uint32

	// MaxTransferSlots bounds the LIFO depth of each size class's
	// transfer cache.
	MaxTransferSlots int

	// MaxIndexedSpanPages bounds the page heap's array of page-count-
	// indexed free lists; spans larger than this live in the large-span
	// list instead.
	MaxIndexedSpanPages int

	// GrowFloorPages is the minimum number of pages requested from the
	// OS on heap growth, amortizing syscalls.
	GrowFloorPages int

	// ShardCount is the number of shards used by FrontendSharded. Zero
	// means "use runtime.GOMAXPROCS(0)".
	ShardCount int

	// StrictMode turns ForeignPointer into a panic instead of a silent
	// no-op. See DESIGN.md Open Question 4. Off by default, matching the
	// spec's lenient-mode default.
	StrictMode bool
}

// DefaultConfig returns the spec's literal defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:                 defaultPageSize,
		SizeClasses:              nil, // use defaultSizeClasses
		Frontend:                 FrontendGoroutineAffine,
		ThreadCacheBudget:        overallThreadCacheBudget,
		MinThreadCacheSize:       minThreadCacheSize,
		StealAmount:              stealAmount,
		MaxDynamicFreeListLength: maxDynamicFreeListLength,
		OverageThreshold:         maxOverages,
		MaxTransferSlots:         maxTransferSlots,
		MaxIndexedSpanPages:      maxIndexedSpanPages,
		GrowFloorPages:           growFloorPages,
		ShardCount:               0,
		StrictMode:               false,
	}
}

const (
	defaultPageSize = 8192

	overallThreadCacheBudget = 4 << 20 // 4 MiB, matches thread_cache.rs MAX_THREAD_CACHE_SIZE
	minThreadCacheSize       = 512 << 10
	stealAmount              = 1 << 20

	maxDynamicFreeListLength = 8192
	maxOverages              = 3

	maxTransferSlots = 64

	maxIndexedSpanPages = 256
	growFloorPages      = 128

	maxSpanReturnBatch = 8
)
