package kaio

import (
	"github.com/brickingsoft/errors"
)

var (
	// ErrInvalidArgument marks a malformed request: zero length, nil buffer,
	// bad capacity or bad poll bounds. Local, never worth retrying.
	ErrInvalidArgument = errors.Define("kaio: invalid argument")
	// ErrResourceExhausted marks the kernel denying an AIO context, commonly
	// the system-wide aio-max-nr budget.
	ErrResourceExhausted = errors.Define("kaio: resource exhausted")
	// ErrAgain marks a momentarily full context. The caller should drain some
	// completions and retry; the core never retries on its own.
	ErrAgain = errors.Define("kaio: context is full")
	// ErrInvalidDescriptor marks a bad file descriptor or direct-I/O geometry
	// the descriptor cannot accept. Sibling requests in a batch are unaffected.
	ErrInvalidDescriptor = errors.Define("kaio: invalid descriptor")
	// ErrInterrupted marks a poll cut short by a signal after the internal
	// retry was also interrupted.
	ErrInterrupted = errors.Define("kaio: interrupted")
	// ErrStillActive rejects destruction while requests are outstanding.
	ErrStillActive = errors.Define("kaio: requests still active")
	// ErrFatal marks programming errors and kernel context corruption:
	// double close, unknown completion token, double completion.
	ErrFatal  = errors.Define("kaio: fatal")
	ErrClosed = errors.Define("kaio: closed")
)

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsResourceExhausted(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

func IsAgain(err error) bool {
	return errors.Is(err, ErrAgain)
}

func IsInvalidDescriptor(err error) bool {
	return errors.Is(err, ErrInvalidDescriptor)
}

func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

func IsStillActive(err error) bool {
	return errors.Is(err, ErrStillActive)
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "kaio"
)

const (
	errMetaOpKey     = "op"
	errMetaOpSetup   = "io_setup"
	errMetaOpDestroy = "io_destroy"
	errMetaOpSubmit  = "io_submit"
	errMetaOpWait    = "io_getevents"
	errMetaOpPrep    = "prep"
	errMetaOpSend    = "send"
)
