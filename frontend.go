// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"unsafe"
)

// frontend is the shared contract both front-end cache variants implement,
// per spec.md §4.2.
type frontend interface {
	allocate(class uint8) unsafe.Pointer
	deallocate(ptr unsafe.Pointer, class uint8)
}

// resetFrontendState (re)initializes whichever front-end variant cfg
// selects. Called from applyConfig.
func resetFrontendState(cfg Config) {
	switch cfg.Frontend {
	case FrontendSharded:
		initShardedFrontend(cfg)
	default:
		initGoroutineCacheRegistry(cfg)
	}
}

// currentFrontend returns the active front-end for the calling goroutine.
func currentFrontend() frontend {
	if currentConfig.Frontend == FrontendSharded {
		return globalSharded
	}
	return currentThreadCache()
}

// goroutineID returns a process-wide-unique identifier for the calling
// goroutine. Go exposes no public goroutine-identity API and no portable
// per-goroutine storage to cache the result in between calls, unlike a
// pthread key; this parses the numeric id out of runtime.Stack's header
// line, the same trick a number of goroutine-identity debugging libraries
// use. The cost (one small stack capture and a string parse) is paid on
// every allocate/deallocate call, not once per goroutine lifetime — the
// direct consequence of Go giving library code no TLS hook, documented as
// the accepted cost of the goroutine-affine front-end in SPEC_FULL.md §4.2.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Format is "goroutine 123 [running]:\n..."; skip the "goroutine " prefix.
	const prefix = "goroutine "
	s := string(buf[:n])
	if len(s) <= len(prefix) {
		return fallbackGoroutineID()
	}
	s = s[len(prefix):]
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return fallbackGoroutineID()
	}
	id, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return fallbackGoroutineID()
	}
	return id
}

var fallbackGoroutineCounter atomic.Int64

// fallbackGoroutineID hands out a monotonic token when the runtime.Stack
// header couldn't be parsed (format changed); correctness only needs
// uniqueness per call site within a goroutine's lifetime, which a thread-
// local counter can't give us, so this degrades to "per-call private
// cache" rather than "per-goroutine cache" for that one goroutine — cache
// efficiency only, never correctness.
func fallbackGoroutineID() int64 {
	return -fallbackGoroutineCounter.Add(1)
}
