// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

// Size class table and lookup functions.
//
// Objects are bucketed into size classes to reduce fragmentation and allow
// free-list management per class. Class 0 is a reserved sentinel meaning
// "large allocation" (size_class == 0 on a span). The table below covers
// 8 bytes up to 256 KiB in 45 classes, the same table carried by the
// original implementation this spec was distilled from.

// SizeClassInfo is an immutable record describing one size class.
type SizeClassInfo struct {
	// Size is the allocation size in bytes; every request routed to this
	// class is rounded up to Size.
	Size uintptr
	// Pages is the number of pages per span carved for this class.
	Pages int
	// BatchSize is the number of objects moved in one transfer between
	// the front-end and the middle-end.
	BatchSize int
}

// ObjectsPerSpan returns how many whole objects fit in a span of this class.
func (c SizeClassInfo) ObjectsPerSpan(pageSize uintptr) int {
	return int((uintptr(c.Pages) * pageSize) / c.Size)
}

// numSizeClasses is the number of entries in defaultSizeClasses, including
// the index-0 sentinel.
const numSizeClasses = 46

// maxSmallSize is the largest allocation size routed through a size class.
// Anything larger is a large allocation handled directly by the page heap.
const maxSmallSize = 262144 // 256 KiB

// defaultSizeClasses is the built-in size-class table. Index 0 is the
// large-allocation sentinel.
var defaultSizeClasses = [numSizeClasses]SizeClassInfo{
	{0, 0, 0},
	{8, 1, 32}, {16, 1, 32}, {24, 1, 32}, {32, 1, 32},
	{40, 1, 32}, {48, 1, 32}, {56, 1, 32}, {64, 1, 32},
	{80, 1, 32}, {96, 1, 32}, {112, 1, 32}, {128, 1, 32},
	{160, 1, 32}, {192, 1, 32}, {224, 1, 32}, {256, 1, 32},
	{320, 1, 32}, {384, 1, 32}, {448, 1, 32}, {512, 1, 32},
	{640, 1, 32}, {768, 1, 32}, {896, 1, 32}, {1024, 1, 32},
	{1280, 2, 32}, {1536, 2, 32}, {1792, 2, 32}, {2048, 2, 32},
	{2560, 4, 25}, {3072, 4, 21}, {3584, 4, 18}, {4096, 4, 16},
	{5120, 5, 12}, {6144, 6, 10}, {7168, 7, 9}, {8192, 8, 8},
	{10240, 10, 6}, {12288, 12, 5}, {16384, 16, 4}, {20480, 20, 3},
	{32768, 16, 2}, {40960, 20, 2}, {65536, 32, 2}, {131072, 32, 2},
	{262144, 64, 2},
}

// smallLookupLen covers sizes 0..1024 in 8-byte steps (129 entries:
// 0, 8, 16, ..., 1024).
const smallLookupLen = 1024/8 + 1

// smallLookup maps ceil(size/8) to the smallest active size class whose
// size is >= that size, for size <= 1024. Rebuilt by applyConfig whenever
// the active size-class table changes (including the initial package-level
// Init(DefaultConfig()) call).
var smallLookup [smallLookupLen]uint8

// buildSmallLookup rebuilds smallLookup against classes, the table that is
// about to become the active one.
func buildSmallLookup(classes []SizeClassInfo) {
	n := len(classes)
	for i := 0; i < smallLookupLen; i++ {
		size := uintptr(0)
		if i != 0 {
			size = uintptr(i) * 8
		}
		cls := 1
		for cls < n {
			if classes[cls].Size >= size {
				break
			}
			cls++
		}
		if cls >= n {
			cls = n - 1
		}
		smallLookup[i] = uint8(cls)
	}
}

// sizeToClass maps an allocation size to its size class index against the
// active table. Returns 0 for sizes above maxSmallSize (the
// large-allocation sentinel). A size of 0 maps to class 1 (the minimum
// class); callers that need the zero-size sentinel handle that before
// reaching here.
func sizeToClass(size uintptr) uint8 {
	if size == 0 {
		return 1
	}
	if size > maxSmallSize {
		return 0
	}
	if size <= 1024 {
		idx := (size + 7) / 8
		return smallLookup[idx]
	}
	classes := activeSizeClasses
	for cls := 25; cls < len(classes); cls++ {
		if classes[cls].Size >= size {
			return uint8(cls)
		}
	}
	return 0
}

// classToSize returns the allocation size for a given class index.
func classToSize(class uint8) uintptr {
	return activeSizeClasses[class].Size
}

// classInfo returns the full size-class record for a given class index.
func classInfo(class uint8) SizeClassInfo {
	return activeSizeClasses[class]
}
