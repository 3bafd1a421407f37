// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"sort"
	"sync/atomic"
)

// Allocation-size histogram: 8-byte buckets up to maxTrackedSize, plus an
// overflow counter for anything larger. Grounded on
// _examples/original_source/src/histogram.rs's record/snapshot/
// suggest_classes. Recording is a single relaxed atomic increment, safe to
// call from the allocation hot path.

const (
	histBucketSize  = 8
	histMaxTracked  = 4096
	histNumBuckets  = histMaxTracked / histBucketSize // 512
)

type histogram struct {
	buckets  [histNumBuckets]atomic.Uint64
	overflow atomic.Uint64
}

var allocSizeHistogram histogram

// record adds one observation of size bytes to the histogram.
func (h *histogram) record(size uintptr) {
	if size == 0 {
		return
	}
	if size > histMaxTracked {
		h.overflow.Add(1)
		return
	}
	idx := (size - 1) / histBucketSize
	h.buckets[idx].Add(1)
}

// HistogramSnapshot is a point-in-time copy of the histogram counters.
type HistogramSnapshot struct {
	// Counts[i] is the number of recorded allocations whose size fell in
	// (i*8, (i+1)*8].
	Counts   [histNumBuckets]uint64
	Overflow uint64
}

// Snapshot returns the current histogram state.
func (h *histogram) Snapshot() HistogramSnapshot {
	var snap HistogramSnapshot
	for i := range h.buckets {
		snap.Counts[i] = h.buckets[i].Load()
	}
	snap.Overflow = h.overflow.Load()
	return snap
}

// SuggestClasses returns the smallest set of size-class upper bounds
// (bytes, sorted ascending) whose combined allocation count covers at
// least coverage (clamped to [0,1]) of the tracked, non-overflow
// allocations. Mirrors histogram.rs's suggest_classes greedy-coverage
// algorithm: sort buckets by count descending, take until the running
// total meets the target, then sort the selection ascending.
func SuggestClasses(snap HistogramSnapshot, coverage float64) []int {
	if coverage < 0 {
		coverage = 0
	}
	if coverage > 1 {
		coverage = 1
	}

	var total uint64
	for _, c := range snap.Counts {
		total += c
	}
	if total == 0 {
		return nil
	}
	target := uint64(float64(total) * coverage)

	type pair struct {
		size  int
		count uint64
	}
	pairs := make([]pair, 0, histNumBuckets)
	for i, c := range snap.Counts {
		if c == 0 {
			continue
		}
		pairs = append(pairs, pair{size: (i + 1) * histBucketSize, count: c})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].count > pairs[j].count })

	var covered uint64
	sizes := make([]int, 0, len(pairs))
	for _, p := range pairs {
		sizes = append(sizes, p.size)
		covered += p.count
		if covered >= target {
			break
		}
	}
	sort.Ints(sizes)
	return sizes
}
