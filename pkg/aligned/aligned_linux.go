//go:build linux

package aligned

import (
	"unsafe"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrInvalidSize      = errors.Define("size must be greater than zero")
	ErrInvalidAlignment = errors.Define("alignment must be a power of two")
	ErrReleased         = errors.Define("buffer was released")
	ErrAcquire          = errors.Define("mmap failed")
)

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "aligned"
)

// Buf is a memory region whose address and allocated length are multiples of
// its alignment, suitable for handing to the kernel under direct I/O. The
// region has two lengths: the allocated one, always a multiple of the
// alignment, and the valid one, counting initialized bytes.
type Buf struct {
	raw   []byte
	mem   []byte
	valid int
	align int
}

// Acquire maps an aligned region of at least size bytes. The allocated length
// is size rounded up to the alignment and the content is zeroed.
func Acquire(size int, align int) (*Buf, error) {
	if size <= 0 {
		return nil, errors.From(ErrInvalidSize, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	if align <= 0 || align&(align-1) != 0 {
		return nil, errors.From(ErrInvalidAlignment, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	rounded := (size + align - 1) &^ (align - 1)
	mapped := rounded
	if align > pageSize() {
		// mmap only guarantees page alignment, over-allocate and carve.
		mapped += align
	}
	raw, mapErr := unix.Mmap(-1, 0, mapped, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if mapErr != nil {
		return nil, errors.From(ErrAcquire, errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithWrap(mapErr))
	}
	mem := raw
	if off := int(uintptr(unsafe.Pointer(&raw[0])) & uintptr(align-1)); off != 0 {
		mem = raw[align-off:]
	}
	mem = mem[:rounded]
	return &Buf{raw: raw, mem: mem, align: align}, nil
}

// FromBytes maps an aligned region, copies p into it and zero-pads the
// remainder up to the alignment. The whole allocated length is valid, so the
// buffer can be used as a direct-I/O write source at once.
func FromBytes(p []byte, align int) (*Buf, error) {
	b, err := Acquire(len(p), align)
	if err != nil {
		return nil, err
	}
	copy(b.mem, p)
	b.valid = len(b.mem)
	return b, nil
}

// Release unmaps the region. The buffer must not be used afterwards, and must
// not be released while an operation is in flight on it.
func (b *Buf) Release() error {
	if b.raw == nil {
		return errors.From(ErrReleased, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	raw := b.raw
	b.raw = nil
	b.mem = nil
	b.valid = 0
	return unix.Munmap(raw)
}

// Grow remaps the buffer to hold at least size bytes, preserving the valid
// prefix. Shrinking is not supported; a smaller size is a no-op.
func (b *Buf) Grow(size int) error {
	if b.raw == nil {
		return errors.From(ErrReleased, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	if size <= len(b.mem) {
		return nil
	}
	next, err := Acquire(size, b.align)
	if err != nil {
		return err
	}
	copy(next.mem, b.mem[:b.valid])
	next.valid = b.valid
	old := b.raw
	*b = *next
	return unix.Munmap(old)
}

// Bytes returns the valid portion of the buffer.
func (b *Buf) Bytes() []byte { return b.mem[:b.valid] }

// Len returns the allocated length, always a multiple of the alignment.
func (b *Buf) Len() int { return len(b.mem) }

// Valid returns the count of initialized bytes.
func (b *Buf) Valid() int { return b.valid }

// Alignment returns the alignment the buffer was acquired with.
func (b *Buf) Alignment() int { return b.align }

// SetValid marks the first n bytes initialized.
func (b *Buf) SetValid(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(b.mem) {
		n = len(b.mem)
	}
	b.valid = n
}

// WrBytes returns the valid bytes as a write source. The slice must stay
// untouched while a write is in flight on it.
func (b *Buf) WrBytes() []byte { return b.mem[:b.valid] }

// RdBytes returns the whole allocated region as a read destination. The
// content is unspecified until RdDone reports the transfer.
func (b *Buf) RdBytes() []byte { return b.mem }

// RdDone records that the first n bytes were filled by a completed read.
func (b *Buf) RdDone(n int) { b.SetValid(n) }

func pageSize() int {
	return unix.Getpagesize()
}
