// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

// Scavenge is an optional, explicitly-invoked extension (spec.md §9 frames
// idle-memory decommit as a legitimate but non-mandatory addition): it
// returns part of every front-end cache to the transfer cache (one
// ThreadCache.scavenge pass per goroutine cache, or one drained batch per
// shard slot), then asks the page heap to decommit every span on its
// large-span free list; spans on the indexed free lists are not touched. Unlike
// the core allocation path, Scavenge never runs on its own — there is no
// background goroutine inside this package (spec.md §5's "no long-running
// internal threads"); a host program calls it from its own idle-detection
// loop, if it has one.
func Scavenge() {
	switch currentConfig.Frontend {
	case FrontendSharded:
		scavengeSharded()
	default:
		scavengeGoroutineCaches()
	}
	globalPageHeap.decommitIdle()
}

func scavengeGoroutineCaches() {
	goroutineCaches.Range(func(_, v any) bool {
		v.(*ThreadCache).scavenge()
		return true
	})
}

func scavengeSharded() {
	sf := globalSharded
	if sf == nil {
		return
	}
	for shardIdx := range sf.shards {
		for class := range sf.shards[shardIdx] {
			sf.drain(uint8(class), &sf.shards[shardIdx][class])
		}
	}
}
