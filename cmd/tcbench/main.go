// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tcbench drives small allocation workloads against gotcmalloc and
// prints a stats snapshot, for manual sanity-checking and rough throughput
// comparisons between the two front-end variants.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"gotcmalloc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		goroutines int
		iterations int
		sharded    bool
		seed       int64
	)

	root := &cobra.Command{
		Use:   "tcbench",
		Short: "Exercise gotcmalloc with a churny allocate/free workload",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark workload and print a stats snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := gotcmalloc.DefaultConfig()
			if sharded {
				cfg.Frontend = gotcmalloc.FrontendSharded
			}
			gotcmalloc.Init(cfg)

			start := time.Now()
			runWorkload(goroutines, iterations, seed)
			elapsed := time.Since(start)

			snap := gotcmalloc.GlobalStats().Snapshot()
			fmt.Printf("workers=%d iterations=%d sharded=%v elapsed=%s\n",
				goroutines, iterations, sharded, elapsed)
			fmt.Printf("alloc=%d dealloc=%d realloc=%d alloc_bytes=%d\n",
				snap.AllocCount, snap.DeallocCount, snap.ReallocCount, snap.AllocBytes)
			fmt.Printf("frontend_hits=%d frontend_misses=%d central_hits=%d transfer_hits=%d page_heap_allocs=%d\n",
				snap.ThreadCacheHits, snap.ThreadCacheMisses, snap.CentralCacheHits, snap.TransferHits, snap.PageHeapAllocs)
			fmt.Printf("os_allocs=%d os_bytes=%d span_splits=%d span_coalesces=%d\n",
				snap.OSAllocCount, snap.OSAllocBytes, snap.SpanSplits, snap.SpanCoalesces)
			return nil
		},
	}
	run.Flags().IntVar(&goroutines, "workers", 8, "number of concurrent goroutines")
	run.Flags().IntVar(&iterations, "iterations", 100000, "allocate/free iterations per worker")
	run.Flags().BoolVar(&sharded, "sharded", false, "use the GOMAXPROCS-sharded front-end instead of the goroutine-affine one")
	run.Flags().Int64Var(&seed, "seed", 1, "random seed controlling the allocation-size mix")

	root.AddCommand(run)
	return root
}

// runWorkload spawns goroutines that repeatedly allocate a random small or
// large size, touch the memory, then free it — a rough stand-in for S1/S2
// style steady-state churn.
func runWorkload(workers, iterations int, seed int64) {
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + int64(w)))
			for i := 0; i < iterations; i++ {
				size := uintptr(randomSize(rng))
				ptr := gotcmalloc.Alloc(size, 0)
				if ptr == nil {
					continue
				}
				touch(ptr, size)
				gotcmalloc.Dealloc(ptr, size, 0)
			}
		}(w)
	}
	wg.Wait()
}

func randomSize(rng *rand.Rand) int {
	// 90% small-class churn (8..1031 bytes), 10% sizes from 4 KiB to just
	// over 1 MiB, most of which exceed the largest size class and take the
	// page-heap path, matching the kind of mixed workload spec.md's S1/S2
	// scenarios describe.
	if rng.Intn(10) == 0 {
		return 4096 + rng.Intn(1<<20)
	}
	return 8 + rng.Intn(1024)
}

func touch(ptr unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	b := unsafe.Slice((*byte)(ptr), int(size))
	b[0] = 1
	b[len(b)-1] = 1
}
