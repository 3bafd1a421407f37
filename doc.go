// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gotcmalloc is a multi-tier, tcmalloc-family memory allocator.
//
// It is organized as a three-tier pipeline with a shared page map:
//
//	request -> size-class dispatch -> front-end -> middle-end -> back-end -> OS
//
// The front-end is either a goroutine-affine cache (ThreadCache) or a
// GOMAXPROCS-sharded cache; the middle-end is a transfer cache backed by a
// per-size-class central free list; the back-end is a page heap that grows
// by requesting virtual memory from the operating system via the platform
// shim in platform.go. A lock-free radix-tree page map (pagemap.go) maps
// every page to the span that owns it, which is what lets Dealloc and
// Realloc work from a bare pointer in O(1).
//
// This package is a library allocator: callers invoke Alloc/Dealloc/Realloc
// explicitly rather than linking it in as the process's global allocator
// (Go does not expose a hook for that). See DESIGN.md for the rationale.
package gotcmalloc
