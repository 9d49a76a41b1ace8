//go:build linux

package kaio

import (
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/kaio/pkg/kernel"
	"github.com/brickingsoft/kaio/pkg/libaio"
	"golang.org/x/sys/unix"
)

// Iocontext owns one kernel AIO context. Requests are prepped into a batch,
// flushed with Submit, and their completions drained with Wait. Every request
// carries a caller tag of type T which returns with its completion, and the
// buffer capabilities of a request belong to the context from the moment the
// prep call accepts them until Wait hands them back.
//
// Prep and Submit may be called from multiple goroutines; completions must be
// drained by one consumer at a time.
type Iocontext[T any] struct {
	mu       sync.Mutex
	ctx      libaio.Context
	capacity int
	table    arena[T]
	batch    []*libaio.IOCB
	inflight int
	rejected []Completion[T]
	evfd     int
	closed   bool
}

// New acquires a kernel AIO context sized for the configured capacity.
func New[T any](options ...Option) (*Iocontext[T], error) {
	opt, optErr := buildOptions(options)
	if optErr != nil {
		return nil, optErr
	}
	ioctx := &Iocontext[T]{
		capacity: opt.Capacity,
		table:    newArena[T](opt.Capacity),
		batch:    make([]*libaio.IOCB, 0, opt.Capacity),
		evfd:     -1,
	}
	if err := ioctx.ctx.Setup(opt.Capacity); err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOMEM):
			return nil, errors.From(ErrResourceExhausted, errors.WithMeta(errMetaOpKey, errMetaOpSetup), errors.WithWrap(err))
		case errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS):
			return nil, errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpSetup), errors.WithWrap(err))
		default:
			return nil, errors.From(ErrFatal, errors.WithMeta(errMetaOpKey, errMetaOpSetup), errors.WithWrap(err))
		}
	}
	if opt.UseEventFD {
		if !kernel.Check(2, 6, 22) {
			_ = ioctx.ctx.Destroy()
			return nil, errors.From(ErrInvalidArgument, errors.WithWrap(errors.New("eventfd completions need linux 2.6.22")))
		}
		efd, efdErr := unix.Eventfd(0, unix.EFD_CLOEXEC)
		if efdErr != nil {
			_ = ioctx.ctx.Destroy()
			return nil, errors.From(ErrResourceExhausted, errors.WithWrap(os.NewSyscallError("eventfd", efdErr)))
		}
		ioctx.evfd = efd
	}
	return ioctx, nil
}

// Cap returns the configured capacity.
func (ioctx *Iocontext[T]) Cap() int { return ioctx.capacity }

// Batched returns the count of prepped requests awaiting Submit.
func (ioctx *Iocontext[T]) Batched() int {
	ioctx.mu.Lock()
	defer ioctx.mu.Unlock()
	return len(ioctx.batch)
}

// Inflight returns the count of requests the kernel currently owns.
func (ioctx *Iocontext[T]) Inflight() int {
	ioctx.mu.Lock()
	defer ioctx.mu.Unlock()
	return ioctx.inflight
}

// Pending returns batched plus in-flight plus undelivered rejections.
func (ioctx *Iocontext[T]) Pending() int {
	ioctx.mu.Lock()
	defer ioctx.mu.Unlock()
	return ioctx.pendingLocked()
}

// Full reports whether another prep call would be refused with ErrAgain.
func (ioctx *Iocontext[T]) Full() bool {
	return ioctx.Pending() >= ioctx.capacity
}

func (ioctx *Iocontext[T]) pendingLocked() int {
	return ioctx.table.used + len(ioctx.rejected)
}

// Prep validates one request and batches its control block. On success the
// request's buffer capabilities are owned by the context until the matching
// completion is drained; on failure they never left the caller.
func (ioctx *Iocontext[T]) Prep(req Request, tag T) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	ioctx.mu.Lock()
	defer ioctx.mu.Unlock()
	if ioctx.closed {
		return errors.From(ErrClosed, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
	}
	if ioctx.pendingLocked() >= ioctx.capacity {
		return errors.From(ErrAgain, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
	}
	idx, ok := ioctx.table.alloc()
	if !ok {
		return errors.From(ErrAgain, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
	}
	e := &ioctx.table.entries[idx]
	e.op = req.Op
	e.tag = tag
	fd := int(req.F.Fd())
	switch req.Op {
	case Pread:
		p := req.RBuf.RdBytes()
		e.rbuf = req.RBuf
		e.iocb.PrepPread(fd, unsafe.Pointer(&p[0]), len(p), req.Off)
	case Pwrite:
		p := req.WBuf.WrBytes()
		e.wbuf = req.WBuf
		e.iocb.PrepPwrite(fd, unsafe.Pointer(&p[0]), len(p), req.Off)
	case Preadv:
		iov := make([]libaio.IOVec, len(req.RBufs))
		for i, b := range req.RBufs {
			p := b.RdBytes()
			iov[i] = libaio.IOVec{Base: unsafe.Pointer(&p[0]), Len: uint64(len(p))}
		}
		e.rbufs = req.RBufs
		e.iov = iov
		e.iocb.PrepPreadv(fd, iov, req.Off)
	case Pwritev:
		iov := make([]libaio.IOVec, len(req.WBufs))
		for i, b := range req.WBufs {
			p := b.WrBytes()
			iov[i] = libaio.IOVec{Base: unsafe.Pointer(&p[0]), Len: uint64(len(p))}
		}
		e.wbufs = req.WBufs
		e.iov = iov
		e.iocb.PrepPwritev(fd, iov, req.Off)
	case Fsync:
		e.iocb.PrepFsync(fd)
	case Fdsync:
		e.iocb.PrepFdsync(fd)
	default:
		ioctx.table.release(idx)
		return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
	}
	e.iocb.Data = uint64(idx)
	if ioctx.evfd >= 0 {
		e.iocb.SetEventFD(ioctx.evfd)
	}
	ioctx.batch = append(ioctx.batch, &e.iocb)
	return nil
}

// Pread batches a read into buf at off.
func (ioctx *Iocontext[T]) Pread(f Fd, buf ReadBuf, off int64, tag T) error {
	return ioctx.Prep(ReadAt(f, buf, off), tag)
}

// Preadv batches a vectored read into bufs at off.
func (ioctx *Iocontext[T]) Preadv(f Fd, bufs []ReadBuf, off int64, tag T) error {
	return ioctx.Prep(ReadVAt(f, bufs, off), tag)
}

// Pwrite batches a write of buf at off.
func (ioctx *Iocontext[T]) Pwrite(f Fd, buf WriteBuf, off int64, tag T) error {
	return ioctx.Prep(WriteAt(f, buf, off), tag)
}

// Pwritev batches a vectored write of bufs at off.
func (ioctx *Iocontext[T]) Pwritev(f Fd, bufs []WriteBuf, off int64, tag T) error {
	return ioctx.Prep(WriteVAt(f, bufs, off), tag)
}

// Fsync batches a full sync of f.
func (ioctx *Iocontext[T]) Fsync(f Fd, tag T) error {
	return ioctx.Prep(SyncOf(f, false), tag)
}

// Fdsync batches a data-only sync of f.
func (ioctx *Iocontext[T]) Fdsync(f Fd, tag T) error {
	return ioctx.Prep(SyncOf(f, true), tag)
}

// Submit flushes the batch to the kernel and returns the accepted count.
// When the kernel stops short the unaccepted suffix stays batched: accepted
// siblings are unaffected and another Submit retries the rest. A head request
// the kernel rejects outright is evicted and delivered through Wait as a
// failed completion, so its buffers return to the caller on the usual path.
func (ioctx *Iocontext[T]) Submit() (int, error) {
	ioctx.mu.Lock()
	defer ioctx.mu.Unlock()
	if ioctx.closed {
		return 0, errors.From(ErrClosed, errors.WithMeta(errMetaOpKey, errMetaOpSubmit))
	}
	if len(ioctx.batch) == 0 {
		return 0, nil
	}
	n, err := ioctx.ctx.Submit(ioctx.batch)
	if n < 0 {
		n = 0
	}
	if n > 0 {
		ioctx.inflight += n
		k := copy(ioctx.batch, ioctx.batch[n:])
		ioctx.batch = ioctx.batch[:k]
	}
	if err == nil {
		return n, nil
	}
	switch {
	case errors.Is(err, unix.EAGAIN):
		return n, errors.From(ErrAgain, errors.WithMeta(errMetaOpKey, errMetaOpSubmit), errors.WithWrap(err))
	case errors.Is(err, unix.EBADF) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ESPIPE):
		ioctx.evictHeadLocked(err)
		return n, nil
	default:
		return n, errors.From(ErrFatal, errors.WithMeta(errMetaOpKey, errMetaOpSubmit), errors.WithWrap(err))
	}
}

// evictHeadLocked removes the batch head the kernel rejected and parks it as
// a synthesized completion for Wait to deliver.
func (ioctx *Iocontext[T]) evictHeadLocked(cause error) {
	cb := ioctx.batch[0]
	k := copy(ioctx.batch, ioctx.batch[1:])
	ioctx.batch = ioctx.batch[:k]
	rel, ok := ioctx.table.release(int32(cb.Data))
	if !ok {
		return
	}
	c := completionOf(rel)
	c.Err = errors.From(ErrInvalidDescriptor, errors.WithMeta(errMetaOpKey, errMetaOpSubmit), errors.WithWrap(cause))
	ioctx.rejected = append(ioctx.rejected, c)
}

// Wait drains between minNr and maxNr completions. A zero timeout polls
// without blocking, a negative timeout blocks until minNr completions are
// available. Completion order is the kernel's delivery order and carries no
// relation to submission order. Each drained completion returns its buffer
// capabilities to the caller and frees its slot in the outstanding table.
func (ioctx *Iocontext[T]) Wait(minNr int, maxNr int, timeout time.Duration) ([]Completion[T], error) {
	if minNr < 0 || maxNr < 1 || maxNr < minNr || maxNr > ioctx.capacity {
		return nil, errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpWait))
	}

	ioctx.mu.Lock()
	if ioctx.closed {
		ioctx.mu.Unlock()
		return nil, errors.From(ErrClosed, errors.WithMeta(errMetaOpKey, errMetaOpWait))
	}
	var out []Completion[T]
	if len(ioctx.rejected) > 0 {
		take := len(ioctx.rejected)
		if take > maxNr {
			take = maxNr
		}
		out = append(out, ioctx.rejected[:take]...)
		k := copy(ioctx.rejected, ioctx.rejected[take:])
		ioctx.rejected = ioctx.rejected[:k]
	}
	ioctx.mu.Unlock()

	if len(out) >= minNr && len(out) > 0 {
		// Synthesized rejections satisfied the floor; top off without blocking.
		more, err := ioctx.getEvents(0, maxNr-len(out), 0)
		return append(out, more...), err
	}
	more, err := ioctx.getEvents(minNr-len(out), maxNr-len(out), timeout)
	return append(out, more...), err
}

func (ioctx *Iocontext[T]) getEvents(minNr int, maxNr int, timeout time.Duration) ([]Completion[T], error) {
	if maxNr < 1 {
		return nil, nil
	}
	if minNr < 0 {
		minNr = 0
	}
	if ioctx.evfd >= 0 && minNr > 0 && timeout != 0 {
		if err := ioctx.awaitEventFD(timeout); err != nil {
			return nil, err
		}
		// The eventfd fired or the timeout lapsed; drain without sleeping in
		// the kernel a second time.
		minNr, timeout = 0, 0
	}

	events := make([]libaio.IOEvent, maxNr)
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	retried := false
	n := 0
	for {
		var err error
		n, err = ioctx.ctx.GetEvents(minNr, events, ts)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			if !retried {
				retried = true
				continue
			}
			return nil, errors.From(ErrInterrupted, errors.WithMeta(errMetaOpKey, errMetaOpWait), errors.WithWrap(err))
		}
		return nil, errors.From(ErrFatal, errors.WithMeta(errMetaOpKey, errMetaOpWait), errors.WithWrap(err))
	}

	if n == 0 {
		return nil, nil
	}
	out := make([]Completion[T], 0, n)
	ioctx.mu.Lock()
	defer ioctx.mu.Unlock()
	for i := range events[:n] {
		ev := &events[i]
		rel, ok := ioctx.table.release(int32(ev.Data))
		if !ok {
			return out, errors.From(ErrFatal, errors.WithMeta(errMetaOpKey, errMetaOpWait), errors.WithWrap(errors.New("unknown completion token")))
		}
		ioctx.inflight--
		c := completionOf(rel)
		if ev.Res < 0 {
			c.Err = completionError(rel.op, unix.Errno(-ev.Res))
		} else {
			c.N = int(ev.Res)
			reportRead(&c.Result)
		}
		out = append(out, c)
	}
	return out, nil
}

// awaitEventFD parks on the completion eventfd for at most timeout
// (negative blocks indefinitely) and consumes the counter when it fires.
func (ioctx *Iocontext[T]) awaitEventFD(timeout time.Duration) error {
	pfd := []unix.PollFd{{Fd: int32(ioctx.evfd), Events: unix.POLLIN}}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	retried := false
	for {
		n, err := unix.Poll(pfd, ms)
		if err != nil {
			if err == unix.EINTR {
				if !retried {
					retried = true
					continue
				}
				return errors.From(ErrInterrupted, errors.WithMeta(errMetaOpKey, errMetaOpWait), errors.WithWrap(err))
			}
			return errors.From(ErrFatal, errors.WithMeta(errMetaOpKey, errMetaOpWait), errors.WithWrap(os.NewSyscallError("poll", err)))
		}
		if n > 0 {
			var counter [8]byte
			_, _ = unix.Read(ioctx.evfd, counter[:])
		}
		return nil
	}
}

// Close destroys the kernel context. It refuses with ErrStillActive while
// anything is batched, in flight or undelivered; closing twice is a
// programming error reported as ErrFatal.
func (ioctx *Iocontext[T]) Close() error {
	ioctx.mu.Lock()
	defer ioctx.mu.Unlock()
	if ioctx.closed {
		return errors.From(ErrFatal, errors.WithMeta(errMetaOpKey, errMetaOpDestroy), errors.WithWrap(errors.New("context already closed")))
	}
	if ioctx.pendingLocked() > 0 {
		return errors.From(ErrStillActive, errors.WithMeta(errMetaOpKey, errMetaOpDestroy))
	}
	ioctx.closed = true
	if ioctx.evfd >= 0 {
		_ = unix.Close(ioctx.evfd)
		ioctx.evfd = -1
	}
	if err := ioctx.ctx.Destroy(); err != nil {
		return errors.From(ErrFatal, errors.WithMeta(errMetaOpKey, errMetaOpDestroy), errors.WithWrap(err))
	}
	return nil
}

func completionOf[T any](e entry[T]) Completion[T] {
	return Completion[T]{
		Tag: e.tag,
		Result: Result{
			Op:    e.op,
			RBuf:  e.rbuf,
			WBuf:  e.wbuf,
			RBufs: e.rbufs,
			WBufs: e.wbufs,
		},
	}
}

// reportRead tells read destinations how much of them is now initialized.
func reportRead(r *Result) {
	switch r.Op {
	case Pread:
		if r.RBuf != nil {
			r.RBuf.RdDone(r.N)
		}
	case Preadv:
		remaining := r.N
		for _, b := range r.RBufs {
			k := len(b.RdBytes())
			if k > remaining {
				k = remaining
			}
			b.RdDone(k)
			remaining -= k
		}
	}
}

func completionError(op Op, errno unix.Errno) error {
	cause := os.NewSyscallError(op.String(), errno)
	switch errno {
	case unix.EBADF, unix.EINVAL, unix.ESPIPE:
		return errors.From(ErrInvalidDescriptor, errors.WithWrap(cause))
	case unix.EAGAIN:
		return errors.From(ErrAgain, errors.WithWrap(cause))
	default:
		return cause
	}
}

// validateRequest rejects malformed requests before any resource moves:
// nil descriptors or buffers, zero lengths, and direct-I/O geometry the
// descriptor cannot accept.
func validateRequest(req Request) error {
	if req.F == nil {
		return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
	}
	if req.Off < 0 {
		return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
	}
	align := 0
	if af, ok := req.F.(AlignedFd); ok {
		align = af.Alignment()
	}
	switch req.Op {
	case Pread:
		if req.RBuf == nil || len(req.RBuf.RdBytes()) == 0 {
			return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
		}
		return checkGeometry(req.Off, align, req.RBuf.RdBytes())
	case Pwrite:
		if req.WBuf == nil || len(req.WBuf.WrBytes()) == 0 {
			return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
		}
		return checkGeometry(req.Off, align, req.WBuf.WrBytes())
	case Preadv:
		if len(req.RBufs) == 0 {
			return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
		}
		for _, b := range req.RBufs {
			if b == nil || len(b.RdBytes()) == 0 {
				return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
			}
			if err := checkGeometry(req.Off, align, b.RdBytes()); err != nil {
				return err
			}
		}
		return nil
	case Pwritev:
		if len(req.WBufs) == 0 {
			return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
		}
		for _, b := range req.WBufs {
			if b == nil || len(b.WrBytes()) == 0 {
				return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
			}
			if err := checkGeometry(req.Off, align, b.WrBytes()); err != nil {
				return err
			}
		}
		return nil
	case Fsync, Fdsync:
		return nil
	default:
		return errors.From(ErrInvalidArgument, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
	}
}

func checkGeometry(off int64, align int, p []byte) error {
	if align < 2 {
		return nil
	}
	if off%int64(align) != 0 ||
		len(p)%align != 0 ||
		uintptr(unsafe.Pointer(&p[0]))%uintptr(align) != 0 {
		return errors.From(ErrInvalidDescriptor, errors.WithMeta(errMetaOpKey, errMetaOpPrep))
	}
	return nil
}
