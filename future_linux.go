//go:build linux

package kaio

import (
	"context"

	"github.com/brickingsoft/rxp/async"
)

// SubmitAsync queues one request and returns a future for its result. The
// future completes on the executors bound to ctx; operation failures travel
// inside Result.Err so the buffers always come back with the result.
func (p *Pipe) SubmitAsync(ctx context.Context, req Request, options ...async.Option) (future async.Future[Result]) {
	promise, promiseErr := async.Make[Result](ctx, options...)
	if promiseErr != nil {
		future = async.FailedImmediately[Result](ctx, promiseErr)
		return
	}
	if _, err := p.send(req, promise); err != nil {
		promise.Fail(err)
	}
	future = promise.Future()
	return
}

// PreadAsync queues a read into buf at off.
func (p *Pipe) PreadAsync(ctx context.Context, f Fd, buf ReadBuf, off int64, options ...async.Option) async.Future[Result] {
	return p.SubmitAsync(ctx, ReadAt(f, buf, off), options...)
}

// PwriteAsync queues a write of buf at off.
func (p *Pipe) PwriteAsync(ctx context.Context, f Fd, buf WriteBuf, off int64, options ...async.Option) async.Future[Result] {
	return p.SubmitAsync(ctx, WriteAt(f, buf, off), options...)
}
