// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "testing"

import "github.com/stretchr/testify/require"

func TestSizeToClassRounding(t *testing.T) {
	for _, tt := range []struct {
		size     uintptr
		wantSize uintptr
	}{
		{1, 8},
		{8, 8},
		{9, 16},
		{64, 64},
		{65, 80},
		{1024, 1024},
		{1025, 1280},
		{262144, 262144},
	} {
		cls := sizeToClass(tt.size)
		require.NotZero(t, cls, "size %d should map to a small class", tt.size)
		got := classToSize(cls)
		require.Equal(t, tt.wantSize, got, "size %d", tt.size)
		require.GreaterOrEqual(t, got, tt.size, "class size must never be smaller than the request")
	}
}

func TestSizeToClassAboveMaxIsLarge(t *testing.T) {
	require.Equal(t, uint8(0), sizeToClass(maxSmallSize+1))
	require.Equal(t, uint8(0), sizeToClass(1<<30))
}

func TestObjectsPerSpan(t *testing.T) {
	info := classInfo(sizeToClass(8))
	objs := info.ObjectsPerSpan(defaultPageSize)
	require.Equal(t, int(uintptr(info.Pages)*defaultPageSize/info.Size), objs)
	require.Greater(t, objs, 0)
}

func TestClassSizesAreMonotonic(t *testing.T) {
	for i := 2; i < numSizeClasses; i++ {
		require.Greater(t, defaultSizeClasses[i].Size, defaultSizeClasses[i-1].Size)
	}
}
