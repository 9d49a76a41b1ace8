//go:build linux

package kaio

import (
	"github.com/brickingsoft/kaio/pkg/libaio"
)

// entry is one outstanding request. Entries live in a fixed array so every
// control block keeps a stable address for the whole submission; the entry's
// index doubles as the kernel correlation token (IOCB.Data).
type entry[T any] struct {
	next  int32
	taken bool
	iocb  libaio.IOCB
	op    Op
	tag   T
	rbuf  ReadBuf
	wbuf  WriteBuf
	rbufs []ReadBuf
	wbufs []WriteBuf
	// iov keeps the vectored descriptor array reachable while the kernel
	// reads it.
	iov []libaio.IOVec
}

// arena is the outstanding-request table: a fixed-capacity free-list
// allocator, so the completion path resolves a token with one index step
// instead of a map lookup.
type arena[T any] struct {
	entries []entry[T]
	free    int32
	used    int
}

func newArena[T any](capacity int) arena[T] {
	a := arena[T]{
		entries: make([]entry[T], capacity),
		free:    int32(capacity) - 1,
	}
	for i := range a.entries {
		a.entries[i].next = int32(i) - 1
	}
	return a
}

func (a *arena[T]) alloc() (int32, bool) {
	idx := a.free
	if idx < 0 {
		return 0, false
	}
	e := &a.entries[idx]
	a.free = e.next
	e.taken = true
	a.used++
	return idx, true
}

// release hands back the entry's content and returns the slot to the free
// list. A token outside the table or pointing at a free slot reports false:
// a double completion or a corrupted context.
func (a *arena[T]) release(idx int32) (entry[T], bool) {
	if idx < 0 || int(idx) >= len(a.entries) {
		return entry[T]{}, false
	}
	e := &a.entries[idx]
	if !e.taken {
		return entry[T]{}, false
	}
	out := *e
	*e = entry[T]{next: a.free}
	a.free = idx
	a.used--
	return out, true
}
