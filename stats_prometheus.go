// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "github.com/prometheus/client_golang/prometheus"

// Stats implements prometheus.Collector so a host process can register the
// allocator's counters with its own registry without this package reaching
// into global Prometheus state itself — spec.md names the statistics
// subsystem only "at the boundary of the core" (§1, §6); this is that
// boundary's one piece of outbound wiring.

var (
	descAllocCount = prometheus.NewDesc(
		"gotcmalloc_alloc_total", "Total allocation requests served.", nil, nil)
	descDeallocCount = prometheus.NewDesc(
		"gotcmalloc_dealloc_total", "Total deallocation requests served.", nil, nil)
	descReallocCount = prometheus.NewDesc(
		"gotcmalloc_realloc_total", "Total reallocation requests served.", nil, nil)
	descAllocBytes = prometheus.NewDesc(
		"gotcmalloc_alloc_bytes_total", "Total bytes handed out, at class size for small allocations and in whole pages for large ones.", nil, nil)
	descThreadCacheHits = prometheus.NewDesc(
		"gotcmalloc_frontend_hits_total", "Front-end cache hits.", nil, nil)
	descThreadCacheMisses = prometheus.NewDesc(
		"gotcmalloc_frontend_misses_total", "Front-end refills that got no objects from the transfer/central tier.", nil, nil)
	descCentralCacheHits = prometheus.NewDesc(
		"gotcmalloc_central_hits_total", "Batch requests that got at least one object from a central free list.", nil, nil)
	descTransferHits = prometheus.NewDesc(
		"gotcmalloc_transfer_hits_total", "Batches served directly by a transfer cache.", nil, nil)
	descPageHeapAllocs = prometheus.NewDesc(
		"gotcmalloc_pageheap_allocs_total", "Span allocations that required growing the page heap from the OS.", nil, nil)
	descOSAllocCount = prometheus.NewDesc(
		"gotcmalloc_os_alloc_total", "Calls into the platform VM shim.", nil, nil)
	descOSAllocBytes = prometheus.NewDesc(
		"gotcmalloc_os_alloc_bytes_total", "Bytes requested from the platform VM shim.", nil, nil)
	descSpanSplits = prometheus.NewDesc(
		"gotcmalloc_span_splits_total", "Spans split to satisfy a smaller request.", nil, nil)
	descSpanCoalesces = prometheus.NewDesc(
		"gotcmalloc_span_coalesces_total", "Adjacent free spans merged on deallocation.", nil, nil)
	descForeignRejections = prometheus.NewDesc(
		"gotcmalloc_foreign_pointer_rejections_total", "Dealloc/Realloc calls on a pointer this allocator does not own.", nil, nil)
)

// Describe implements prometheus.Collector.
func (s *Stats) Describe(ch chan<- *prometheus.Desc) {
	ch <- descAllocCount
	ch <- descDeallocCount
	ch <- descReallocCount
	ch <- descAllocBytes
	ch <- descThreadCacheHits
	ch <- descThreadCacheMisses
	ch <- descCentralCacheHits
	ch <- descTransferHits
	ch <- descPageHeapAllocs
	ch <- descOSAllocCount
	ch <- descOSAllocBytes
	ch <- descSpanSplits
	ch <- descSpanCoalesces
	ch <- descForeignRejections
}

// Collect implements prometheus.Collector.
func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()
	ch <- prometheus.MustNewConstMetric(descAllocCount, prometheus.CounterValue, float64(snap.AllocCount))
	ch <- prometheus.MustNewConstMetric(descDeallocCount, prometheus.CounterValue, float64(snap.DeallocCount))
	ch <- prometheus.MustNewConstMetric(descReallocCount, prometheus.CounterValue, float64(snap.ReallocCount))
	ch <- prometheus.MustNewConstMetric(descAllocBytes, prometheus.CounterValue, float64(snap.AllocBytes))
	ch <- prometheus.MustNewConstMetric(descThreadCacheHits, prometheus.CounterValue, float64(snap.ThreadCacheHits))
	ch <- prometheus.MustNewConstMetric(descThreadCacheMisses, prometheus.CounterValue, float64(snap.ThreadCacheMisses))
	ch <- prometheus.MustNewConstMetric(descCentralCacheHits, prometheus.CounterValue, float64(snap.CentralCacheHits))
	ch <- prometheus.MustNewConstMetric(descTransferHits, prometheus.CounterValue, float64(snap.TransferHits))
	ch <- prometheus.MustNewConstMetric(descPageHeapAllocs, prometheus.CounterValue, float64(snap.PageHeapAllocs))
	ch <- prometheus.MustNewConstMetric(descOSAllocCount, prometheus.CounterValue, float64(snap.OSAllocCount))
	ch <- prometheus.MustNewConstMetric(descOSAllocBytes, prometheus.CounterValue, float64(snap.OSAllocBytes))
	ch <- prometheus.MustNewConstMetric(descSpanSplits, prometheus.CounterValue, float64(snap.SpanSplits))
	ch <- prometheus.MustNewConstMetric(descSpanCoalesces, prometheus.CounterValue, float64(snap.SpanCoalesces))
	ch <- prometheus.MustNewConstMetric(descForeignRejections, prometheus.CounterValue, float64(snap.ForeignPointerRejections))
}
