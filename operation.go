package kaio

// Fd is the file handle collaborator: anything carrying an open descriptor.
// *os.File satisfies it.
type Fd interface {
	Fd() uintptr
}

// AlignedFd additionally carries a direct-I/O alignment requirement, which
// the submission path validates offsets, lengths and buffer addresses
// against. *directio.File satisfies it.
type AlignedFd interface {
	Fd
	Alignment() int
}

// Op is the operation kind of a request.
type Op uint8

const (
	Noop Op = iota
	Pread
	Preadv
	Pwrite
	Pwritev
	Fsync
	Fdsync
)

func (op Op) String() string {
	switch op {
	case Pread:
		return "pread"
	case Preadv:
		return "preadv"
	case Pwrite:
		return "pwrite"
	case Pwritev:
		return "pwritev"
	case Fsync:
		return "fsync"
	case Fdsync:
		return "fdsync"
	default:
		return "noop"
	}
}

// Request describes one operation for the channel and future adapters. The
// buffer fields matching Op must be set; the rest stay nil. Sync kinds carry
// no buffer.
type Request struct {
	Op    Op
	F     Fd
	Off   int64
	RBuf  ReadBuf
	WBuf  WriteBuf
	RBufs []ReadBuf
	WBufs []WriteBuf
}

// ReadAt builds a read request into buf at off.
func ReadAt(f Fd, buf ReadBuf, off int64) Request {
	return Request{Op: Pread, F: f, Off: off, RBuf: buf}
}

// WriteAt builds a write request of buf at off.
func WriteAt(f Fd, buf WriteBuf, off int64) Request {
	return Request{Op: Pwrite, F: f, Off: off, WBuf: buf}
}

// ReadVAt builds a vectored read request into bufs at off.
func ReadVAt(f Fd, bufs []ReadBuf, off int64) Request {
	return Request{Op: Preadv, F: f, Off: off, RBufs: bufs}
}

// WriteVAt builds a vectored write request of bufs at off.
func WriteVAt(f Fd, bufs []WriteBuf, off int64) Request {
	return Request{Op: Pwritev, F: f, Off: off, WBufs: bufs}
}

// SyncOf builds an fsync request; dataOnly selects fdatasync.
func SyncOf(f Fd, dataOnly bool) Request {
	if dataOnly {
		return Request{Op: Fdsync, F: f}
	}
	return Request{Op: Fsync, F: f}
}

// Result reports one finished operation and returns its buffer capabilities
// to the caller. N is the transferred byte count when Err is nil; Err carries
// the per-operation failure and leaves sibling operations untouched.
type Result struct {
	Op    Op
	N     int
	Err   error
	RBuf  ReadBuf
	WBuf  WriteBuf
	RBufs []ReadBuf
	WBufs []WriteBuf
}

// Completion pairs a Result with the caller-supplied tag that correlates it
// back to its request.
type Completion[T any] struct {
	Tag T
	Result
}
