//go:build linux

package libaio

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Context is the kernel aio_context_t handle. The zero value is invalid
// until Setup succeeds.
type Context uint64

// Setup acquires a kernel AIO context sized for nr concurrently outstanding
// operations. The kernel answers EAGAIN when the system-wide aio-max-nr
// budget is exhausted and EINVAL when nr is out of range.
func (ctx *Context) Setup(nr int) error {
	_, _, errno := unix.Syscall(unix.SYS_IO_SETUP, uintptr(nr), uintptr(unsafe.Pointer(ctx)), 0)
	if errno != 0 {
		return os.NewSyscallError("io_setup", errno)
	}
	return nil
}

// Destroy releases the context. The kernel cancels what it can and waits for
// completions that cannot be canceled, so the caller should have drained
// first.
func (ctx Context) Destroy() error {
	_, _, errno := unix.Syscall(unix.SYS_IO_DESTROY, uintptr(ctx), 0, 0)
	if errno != 0 {
		return os.NewSyscallError("io_destroy", errno)
	}
	return nil
}

// Submit hands a batch of control blocks to the kernel. It returns the count
// of accepted requests; when the count is short and err is nil the remaining
// suffix was not seen by the kernel and must be resubmitted. A non-nil error
// reports the rejection of the first unaccepted request.
func (ctx Context) Submit(cbs []*IOCB) (int, error) {
	if len(cbs) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, uintptr(ctx), uintptr(len(cbs)), uintptr(unsafe.Pointer(&cbs[0])))
	if errno != 0 {
		return int(n), os.NewSyscallError("io_submit", errno)
	}
	return int(n), nil
}

// GetEvents blocks until between minNr and len(events) completions are
// available or the timeout elapses, then drains them into events. A nil
// timeout blocks indefinitely.
func (ctx Context) GetEvents(minNr int, events []IOEvent, timeout *unix.Timespec) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall6(
		unix.SYS_IO_GETEVENTS,
		uintptr(ctx),
		uintptr(minNr),
		uintptr(len(events)),
		uintptr(unsafe.Pointer(&events[0])),
		uintptr(unsafe.Pointer(timeout)),
		0,
	)
	if errno != 0 {
		return int(n), os.NewSyscallError("io_getevents", errno)
	}
	return int(n), nil
}

// Cancel attempts to cancel one in-flight control block. Most file targets do
// not support cancelation and answer EINVAL.
func (ctx Context) Cancel(cb *IOCB, ev *IOEvent) error {
	_, _, errno := unix.Syscall(unix.SYS_IO_CANCEL, uintptr(ctx), uintptr(unsafe.Pointer(cb)), uintptr(unsafe.Pointer(ev)))
	if errno != 0 {
		return os.NewSyscallError("io_cancel", errno)
	}
	return nil
}
