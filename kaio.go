package kaio

import (
	"context"
	"runtime"
	"sync"

	"github.com/brickingsoft/rxp"
)

var (
	executors     rxp.Executors = nil
	executorsOnce sync.Once
)

// Startup replaces the default executors. The future adapter runs promise
// callbacks on rxp executors; one is created lazily on first use, so Startup
// only matters when the defaults need tuning, and it must run before
// anything touches Executors.
func Startup(options ...rxp.Option) error {
	execs, err := rxp.New(options...)
	if err != nil {
		return err
	}
	executors = execs
	return nil
}

// Shutdown closes the executors. The close waits for submitted tasks to
// finish; bound it with rxp.WithCloseTimeout at Startup when that wait must
// not be open-ended.
func Shutdown() error {
	runtime.SetFinalizer(executors, nil)
	return Executors().Close()
}

// Executors returns the process-wide executors, creating defaults on first
// use. It panics when the defaults cannot be built; use Startup to handle
// configuration errors instead.
func Executors() rxp.Executors {
	executorsOnce.Do(func() {
		if executors == nil {
			execs, err := rxp.New()
			if err != nil {
				panic(err)
			}
			executors = execs
			runtime.SetFinalizer(executors, rxp.Executors.Close)
		}
	})
	return executors
}

// Background returns a background context bound to the executors, ready for
// SubmitAsync.
func Background() context.Context {
	return rxp.With(context.Background(), Executors())
}
