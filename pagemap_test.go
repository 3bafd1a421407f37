// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageMapGetSetRoundTrip(t *testing.T) {
	var pm pageMap
	require.Nil(t, pm.get(42))

	s := &span{startPage: 42, numPages: 1}
	require.True(t, pm.set(42, s))
	require.Equal(t, s, pm.get(42))

	require.True(t, pm.set(42, nil))
	require.Nil(t, pm.get(42))
}

func TestPageMapRegisterSpanCoversEveryPage(t *testing.T) {
	var pm pageMap
	s := &span{startPage: 100, numPages: 5}
	require.True(t, pm.registerSpan(s))
	for p := 100; p < 105; p++ {
		require.Equal(t, s, pm.get(p), "page %d", p)
	}
	require.Nil(t, pm.get(105))

	pm.unregisterSpan(s)
	for p := 100; p < 105; p++ {
		require.Nil(t, pm.get(p))
	}
}

func TestPageMapRegisterSpanEndpointsOnly(t *testing.T) {
	var pm pageMap
	s := &span{startPage: 200, numPages: 4}
	require.True(t, pm.registerSpanEndpoints(s))

	require.Equal(t, s, pm.get(200))
	require.Equal(t, s, pm.get(203))
	require.Nil(t, pm.get(201))
	require.Nil(t, pm.get(202))
}

func TestPageMapOutOfRangeRejected(t *testing.T) {
	var pm pageMap
	require.Nil(t, pm.get(-1))
	require.False(t, pm.set(-1, &span{}))
	require.False(t, pm.set(pmRootLen<<pmRootShift, &span{}))
}

func TestPageMapCrossesMidAndLeafBoundaries(t *testing.T) {
	var pm pageMap
	// One page id in the first mid node, one far enough away to force a
	// second root entry, verifying lazy node allocation happens per branch.
	near := &span{startPage: 10}
	far := &span{startPage: (1 << pmRootShift) + 10}

	require.True(t, pm.set(near.startPage, near))
	require.True(t, pm.set(far.startPage, far))

	require.Equal(t, near, pm.get(near.startPage))
	require.Equal(t, far, pm.get(far.startPage))
	require.Nil(t, pm.get(near.startPage+1))
}
