package kaio

import (
	"time"

	"github.com/brickingsoft/errors"
)

const (
	// DefaultCapacity sizes a context when WithCapacity is not given.
	DefaultCapacity = 128
	// MaxCapacity is the static ceiling for one context. The kernel's own
	// aio-max-nr budget may reject far smaller values, which surfaces as
	// ErrResourceExhausted at New.
	MaxCapacity = 1 << 16
	// DefaultWaitTimeout bounds one poller nap between drains.
	DefaultWaitTimeout = 50 * time.Millisecond
)

type Options struct {
	// Capacity is the maximum number of concurrently outstanding operations,
	// batched plus in flight.
	Capacity int
	// LowWater is the batched-operation threshold above which the pipe's
	// submitter flushes without waiting for an idle moment.
	LowWater int
	// WaitTimeout bounds one blocking drain in the pipe's poller loop.
	WaitTimeout time.Duration
	// UseEventFD chains completions to an eventfd so pollers sleep on the
	// eventfd instead of inside io_getevents.
	UseEventFD bool
	// FailWhenFull makes Pipe.Send answer ErrAgain instead of blocking while
	// the context is at capacity.
	FailWhenFull bool
}

type Option func(options *Options) (err error)

// WithCapacity sets the maximum number of outstanding operations the context
// is sized for.
func WithCapacity(capacity int) Option {
	return func(options *Options) (err error) {
		if capacity < 1 || capacity > MaxCapacity {
			err = errors.From(ErrInvalidArgument, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
			return
		}
		options.Capacity = capacity
		return
	}
}

// WithLowWater sets the batched threshold that triggers an eager flush in the
// pipe's submitter. Defaults to half the capacity.
func WithLowWater(n int) Option {
	return func(options *Options) (err error) {
		if n < 1 {
			err = errors.From(ErrInvalidArgument, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
			return
		}
		options.LowWater = n
		return
	}
}

// WithWaitTimeout bounds one blocking drain in the pipe's poller loop.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(options *Options) (err error) {
		if timeout > 0 {
			options.WaitTimeout = timeout
		}
		return
	}
}

// WithEventFD signals completions on an eventfd (IOCB_FLAG_RESFD), so the
// poller parks on the eventfd rather than sleeping inside io_getevents.
// Needs Linux 2.6.22.
func WithEventFD() Option {
	return func(options *Options) (err error) {
		options.UseEventFD = true
		return
	}
}

// WithFailWhenFull makes Pipe.Send fail fast with ErrAgain under
// backpressure instead of blocking until room frees.
func WithFailWhenFull() Option {
	return func(options *Options) (err error) {
		options.FailWhenFull = true
		return
	}
}

func buildOptions(options []Option) (Options, error) {
	opt := Options{
		Capacity:    DefaultCapacity,
		WaitTimeout: DefaultWaitTimeout,
	}
	for _, option := range options {
		if err := option(&opt); err != nil {
			return opt, err
		}
	}
	if opt.LowWater == 0 || opt.LowWater > opt.Capacity {
		opt.LowWater = (opt.Capacity + 1) / 2
	}
	return opt, nil
}
