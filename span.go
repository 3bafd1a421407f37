// Copyright 2024 The gotcmalloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotcmalloc

import "unsafe"

// spanState is the lifecycle state of a span.
type spanState uint8

const (
	spanFree spanState = iota
	spanInUse
)

// freeObject is the intrusive free-list node stored in the first word of a
// freed small object. Used inside spans, the central free list, the
// transfer cache, and front-end caches alike.
type freeObject struct {
	next *freeObject
}

// span is the metadata record for a contiguous run of pages. Spans are
// allocated from a dedicated spanPool (never from this allocator itself)
// to avoid bootstrapping cycles, exactly as spec.md §3 requires.
type span struct {
	startPage int // page ID: address >> pageShift
	numPages  int

	sizeClass uint8 // 0 means large/raw allocation
	state     spanState

	allocatedCount uint32
	totalCount     uint32

	freelist *freeObject

	prev, next *span
}

func (s *span) startAddr(pageSize uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(s.startPage) * pageSize)
}

func (s *span) byteSize(pageSize uintptr) uintptr {
	return uintptr(s.numPages) * pageSize
}

func (s *span) endPage() int {
	return s.startPage + s.numPages
}

// spanList is a doubly-linked list of spans, used by the page heap's
// per-page-count free lists and by each size class's nonempty-span list.
type spanList struct {
	head  *span
	count int
}

func (l *spanList) isEmpty() bool { return l.head == nil }

// push prepends s to the front of the list. s must not already be in a list.
func (l *spanList) push(s *span) {
	s.next = l.head
	s.prev = nil
	if l.head != nil {
		l.head.prev = s
	}
	l.head = s
	l.count++
}

// remove takes s (currently in the list) out of it.
func (l *spanList) remove(s *span) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		l.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.prev = nil
	s.next = nil
	l.count--
}

// pop removes and returns the first span in the list, or nil if empty.
func (l *spanList) pop() *span {
	s := l.head
	if s != nil {
		l.remove(s)
	}
	return s
}
