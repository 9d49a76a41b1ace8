//go:build linux

package kaio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rxp/async"
	"github.com/eapache/queue"
)

// Ticket is the handle of one request traveling through a Pipe. It resolves
// exactly once, with the result carrying the request's buffers back to the
// caller.
type Ticket struct {
	pipe    *Pipe
	req     Request
	ch      chan Result
	promise async.Promise[Result]
}

// Wait blocks until the ticket resolves or ctx is done. Delivery recycles
// the ticket, so it must not be used after Wait returns a result. An
// abandoned ticket is still drained by the pipe but stays out of the pool;
// only its result is lost.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case r := <-t.ch:
		t.pipe.releaseTicket(t)
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Pipe runs an Iocontext with its own submission and completion goroutines.
// Send hands a request to the submitter, which batches it, spills to an
// overflow queue while the context is full, and flushes at the low-water
// mark; the completion goroutine drains the context and resolves tickets.
type Pipe struct {
	ioctx    *Iocontext[*Ticket]
	opts     Options
	mu       sync.RWMutex
	closed   bool
	sq       chan *Ticket
	space    chan struct{}
	sqDone   chan struct{}
	cqDone   chan struct{}
	draining atomic.Bool
	failure  atomic.Value
	tickets  sync.Pool
}

// NewPipe builds a Pipe and starts its goroutines.
func NewPipe(options ...Option) (*Pipe, error) {
	opts, optErr := buildOptions(options)
	if optErr != nil {
		return nil, optErr
	}
	ioctx, ctxErr := New[*Ticket](options...)
	if ctxErr != nil {
		return nil, ctxErr
	}
	p := &Pipe{
		ioctx:  ioctx,
		opts:   opts,
		sq:     make(chan *Ticket, opts.Capacity),
		space:  make(chan struct{}, 1),
		sqDone: make(chan struct{}),
		cqDone: make(chan struct{}),
	}
	p.tickets.New = func() any {
		return &Ticket{ch: make(chan Result, 1)}
	}
	go p.submitLoop()
	go p.waitLoop()
	return p, nil
}

// Cap returns the pipe's configured capacity.
func (p *Pipe) Cap() int { return p.ioctx.Cap() }

// Pending returns the count of requests the underlying context still owns.
func (p *Pipe) Pending() int { return p.ioctx.Pending() }

// Send queues one request and returns its ticket. With FailWhenFull set it
// refuses with ErrAgain instead of blocking on a full submission queue.
func (p *Pipe) Send(req Request) (*Ticket, error) {
	return p.send(req, nil)
}

func (p *Pipe) send(req Request, promise async.Promise[Result]) (*Ticket, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, errors.From(ErrClosed, errors.WithMeta(errMetaOpKey, errMetaOpSend))
	}
	t := p.acquireTicket(req, promise)
	if p.opts.FailWhenFull {
		select {
		case p.sq <- t:
		default:
			p.releaseTicket(t)
			return nil, errors.From(ErrAgain, errors.WithMeta(errMetaOpKey, errMetaOpSend))
		}
		return t, nil
	}
	p.sq <- t
	return t, nil
}

// Close stops accepting requests, lets everything queued and in flight
// resolve, then destroys the context.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.From(ErrClosed, errors.WithMeta(errMetaOpKey, errMetaOpDestroy))
	}
	p.closed = true
	close(p.sq)
	p.mu.Unlock()
	<-p.sqDone
	p.draining.Store(true)
	<-p.cqDone
	if f := p.failure.Load(); f != nil {
		_ = p.ioctx.Close()
		return f.(error)
	}
	return p.ioctx.Close()
}

func (p *Pipe) acquireTicket(req Request, promise async.Promise[Result]) *Ticket {
	t := p.tickets.Get().(*Ticket)
	t.pipe = p
	t.req = req
	t.promise = promise
	return t
}

func (p *Pipe) releaseTicket(t *Ticket) {
	t.req = Request{}
	t.promise = nil
	p.tickets.Put(t)
}

// resolve delivers r to the ticket's consumer. Promise tickets go back to
// the pool here since nothing will call Wait on them; channel tickets are
// recycled by Ticket.Wait on delivery.
func (p *Pipe) resolve(t *Ticket, r Result) {
	if t.promise != nil {
		promise := t.promise
		promise.Succeed(r)
		p.releaseTicket(t)
		return
	}
	t.ch <- r
}

func (p *Pipe) submitLoop() {
	defer close(p.sqDone)
	spill := queue.New()
	open := true
	for open || spill.Length() > 0 || p.ioctx.Batched() > 0 {
		for spill.Length() > 0 {
			t := spill.Peek().(*Ticket)
			if !p.prep(t) {
				break
			}
			spill.Remove()
			if p.ioctx.Batched() >= p.opts.LowWater {
				p.flush()
			}
		}
		p.flush()
		if !open {
			if spill.Length() > 0 || p.ioctx.Batched() > 0 {
				<-p.space
			}
			continue
		}
		select {
		case t, ok := <-p.sq:
			if !ok {
				open = false
				continue
			}
			spill.Add(t)
			p.slurp(spill, &open)
		case <-p.space:
		}
	}
}

// slurp drains whatever Send already queued so one flush covers the burst.
func (p *Pipe) slurp(spill *queue.Queue, open *bool) {
	for {
		select {
		case t, ok := <-p.sq:
			if !ok {
				*open = false
				return
			}
			spill.Add(t)
		default:
			return
		}
	}
}

// prep moves one ticket into the context. It reports false when the context
// is full and the ticket should stay queued; failures resolve the ticket.
func (p *Pipe) prep(t *Ticket) bool {
	err := p.ioctx.Prep(t.req, t)
	if err == nil {
		return true
	}
	if IsAgain(err) {
		return false
	}
	p.resolve(t, Result{
		Op:    t.req.Op,
		Err:   err,
		RBuf:  t.req.RBuf,
		WBuf:  t.req.WBuf,
		RBufs: t.req.RBufs,
		WBufs: t.req.WBufs,
	})
	return true
}

func (p *Pipe) flush() {
	if p.ioctx.Batched() == 0 {
		return
	}
	if _, err := p.ioctx.Submit(); err != nil && !IsAgain(err) {
		p.failure.CompareAndSwap(nil, err)
	}
}

func (p *Pipe) waitLoop() {
	defer close(p.cqDone)
	for {
		completions, err := p.ioctx.Wait(1, p.ioctx.Cap(), p.opts.WaitTimeout)
		for _, c := range completions {
			t := c.Tag
			p.resolve(t, c.Result)
			select {
			case p.space <- struct{}{}:
			default:
			}
		}
		if err != nil {
			if IsInterrupted(err) {
				continue
			}
			p.failure.CompareAndSwap(nil, err)
			return
		}
		if p.draining.Load() && p.ioctx.Pending() == 0 {
			return
		}
	}
}
