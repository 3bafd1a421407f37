// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

// debugAssertEnabled gates debugAssert. It is a plain const so the
// compiler folds every call site to nothing under a normal `go build`,
// the idiomatic Go rendering of spec.md §7's "internal invariant checks...
// in release configurations compile to nothing."
const debugAssertEnabled = false

// debugAssert panics with msg if cond is false and debugAssertEnabled is
// true. Used for internal invariants that should never fire in correct
// code — not for anything reachable by untrusted input.
func debugAssert(cond bool, msg string) {
	if debugAssertEnabled && !cond {
		panic("gotcmalloc: assertion failed: " + msg)
	}
}
