// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "sync/atomic"

// Stats holds process-wide allocator counters. All fields are updated with
// atomic ops from arbitrary goroutines; Snapshot takes a consistent-enough
// point-in-time copy (individual fields are read independently, matching
// the relaxed-counter style of the original implementation's stats module —
// exact cross-field consistency was never a guarantee there either).
type Stats struct {
	allocCount   atomic.Uint64
	deallocCount atomic.Uint64
	reallocCount atomic.Uint64
	allocBytes   atomic.Uint64

	threadCacheHits   atomic.Uint64
	threadCacheMisses atomic.Uint64
	centralCacheHits  atomic.Uint64
	transferHits      atomic.Uint64
	pageHeapAllocs    atomic.Uint64

	osAllocCount atomic.Uint64
	osAllocBytes atomic.Uint64

	spanSplits    atomic.Uint64
	spanCoalesces atomic.Uint64

	foreignPointerRejections atomic.Uint64
}

var globalStats Stats

// StatsSnapshot is an immutable, independently-readable copy of Stats.
type StatsSnapshot struct {
	AllocCount   uint64
	DeallocCount uint64
	ReallocCount uint64
	AllocBytes   uint64

	ThreadCacheHits   uint64
	ThreadCacheMisses uint64
	CentralCacheHits  uint64
	TransferHits      uint64
	PageHeapAllocs    uint64

	OSAllocCount uint64
	OSAllocBytes uint64

	SpanSplits    uint64
	SpanCoalesces uint64

	ForeignPointerRejections uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		AllocCount:               s.allocCount.Load(),
		DeallocCount:             s.deallocCount.Load(),
		ReallocCount:             s.reallocCount.Load(),
		AllocBytes:               s.allocBytes.Load(),
		ThreadCacheHits:          s.threadCacheHits.Load(),
		ThreadCacheMisses:        s.threadCacheMisses.Load(),
		CentralCacheHits:         s.centralCacheHits.Load(),
		TransferHits:             s.transferHits.Load(),
		PageHeapAllocs:           s.pageHeapAllocs.Load(),
		OSAllocCount:             s.osAllocCount.Load(),
		OSAllocBytes:             s.osAllocBytes.Load(),
		SpanSplits:               s.spanSplits.Load(),
		SpanCoalesces:            s.spanCoalesces.Load(),
		ForeignPointerRejections: s.foreignPointerRejections.Load(),
	}
}

// GlobalStats returns the process-wide counters of the package-level
// allocator.
func GlobalStats() *Stats { return &globalStats }

func statsAddOSAlloc(bytes uint64) {
	globalStats.osAllocCount.Add(1)
	globalStats.osAllocBytes.Add(bytes)
}

func statsAddAlloc(bytes uint64) {
	globalStats.allocCount.Add(1)
	globalStats.allocBytes.Add(bytes)
}

func statsAddDealloc() {
	globalStats.deallocCount.Add(1)
}

func statsAddRealloc() {
	globalStats.reallocCount.Add(1)
}

func statsAddThreadCacheHit()   { globalStats.threadCacheHits.Add(1) }
func statsAddThreadCacheMiss()  { globalStats.threadCacheMisses.Add(1) }
func statsAddCentralCacheHit()  { globalStats.centralCacheHits.Add(1) }
func statsAddTransferHit()      { globalStats.transferHits.Add(1) }
func statsAddPageHeapAlloc()    { globalStats.pageHeapAllocs.Add(1) }
func statsAddSpanSplit()        { globalStats.spanSplits.Add(1) }
func statsAddSpanCoalesce()     { globalStats.spanCoalesces.Add(1) }
func statsAddForeignRejection() { globalStats.foreignPointerRejections.Add(1) }
