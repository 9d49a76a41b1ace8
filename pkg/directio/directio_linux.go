//go:build linux

package directio

import (
	"os"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrUnalignedOffset = errors.Define("offset is not aligned")
	ErrUnalignedLength = errors.Define("length is not aligned")
)

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "directio"
)

// MinAlignment is the floor for direct-I/O geometry. Filesystems report their
// own block size, which is never smaller than a 512 byte sector.
const MinAlignment = 512

// File is a file opened with O_DIRECT together with the alignment its
// offsets, lengths and buffer addresses must honor.
type File struct {
	*os.File
	align int
}

// Open opens path with flag|O_DIRECT. The alignment requirement is queried
// from the filesystem's reported block size, with a 512 byte floor.
// Filesystems without direct I/O support reject the open with EINVAL.
func Open(path string, flag int, perm os.FileMode) (*File, error) {
	f, err := os.OpenFile(path, flag|unix.O_DIRECT, perm)
	if err != nil {
		return nil, err
	}
	return &File{File: f, align: blockSize(f)}, nil
}

// Alignment returns the direct-I/O alignment requirement in bytes.
func (f *File) Alignment() int { return f.align }

// CheckAligned validates one operation's geometry against the file's
// alignment. The buffer address is the submission path's concern; offset and
// length are validated here.
func (f *File) CheckAligned(off int64, length int) error {
	if off%int64(f.align) != 0 {
		return errors.From(ErrUnalignedOffset, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	if length%f.align != 0 {
		return errors.From(ErrUnalignedLength, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	return nil
}

// Pread reads synchronously at off. The destination must satisfy the file's
// alignment; this is the blocking fallback beside the asynchronous engine.
func (f *File) Pread(p []byte, off int64) (int, error) {
	n, err := unix.Pread(int(f.Fd()), p, off)
	if err != nil {
		return n, os.NewSyscallError("pread", err)
	}
	return n, nil
}

// Pwrite writes synchronously at off, with the same alignment obligations as
// Pread.
func (f *File) Pwrite(p []byte, off int64) (int, error) {
	n, err := unix.Pwrite(int(f.Fd()), p, off)
	if err != nil {
		return n, os.NewSyscallError("pwrite", err)
	}
	return n, nil
}

func blockSize(f *os.File) int {
	var st unix.Statfs_t
	if err := unix.Fstatfs(int(f.Fd()), &st); err != nil {
		return MinAlignment
	}
	if int(st.Bsize) < MinAlignment {
		return MinAlignment
	}
	return int(st.Bsize)
}
