// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpanListPushPopLIFOOrder(t *testing.T) {
	var l spanList
	a, b, c := &span{startPage: 1}, &span{startPage: 2}, &span{startPage: 3}

	l.push(a)
	l.push(b)
	l.push(c)
	require.Equal(t, 3, l.count)

	require.Equal(t, c, l.pop())
	require.Equal(t, b, l.pop())
	require.Equal(t, a, l.pop())
	require.True(t, l.isEmpty())
	require.Nil(t, l.pop())
}

func TestSpanListRemoveMiddle(t *testing.T) {
	var l spanList
	a, b, c := &span{startPage: 1}, &span{startPage: 2}, &span{startPage: 3}
	l.push(a)
	l.push(b)
	l.push(c)

	l.remove(b)
	require.Equal(t, 2, l.count)
	require.Nil(t, b.next)
	require.Nil(t, b.prev)

	got := []int{}
	for s := l.head; s != nil; s = s.next {
		got = append(got, s.startPage)
	}
	require.Equal(t, []int{3, 1}, got)
}

func TestSpanGeometry(t *testing.T) {
	s := &span{startPage: 4, numPages: 3}
	const pageSize = uintptr(8192)
	require.Equal(t, uintptr(4*8192), uintptr(s.startAddr(pageSize)))
	require.Equal(t, uintptr(3*8192), s.byteSize(pageSize))
	require.Equal(t, 7, s.endPage())
}
