package streams

import (
	"context"
	"sync"
	"time"
)

// Sink is the callback set driven by a WritableStream. All fields are
// optional. Start runs once at construction. Write is invoked once per
// accepted chunk, strictly in acceptance order and never concurrently with
// itself. Close runs once after the queue drains following a close request.
// Abort runs once when the stream is aborted, after any in-flight write
// settles. A returned error from Start, Write, or Close transitions the
// stream to errored.
type Sink[T any] struct {
	Start func(ctx context.Context, c *WritableController[T]) error
	Write func(ctx context.Context, chunk T, c *WritableController[T]) error
	Close func(ctx context.Context) error
	Abort func(ctx context.Context, reason error) error
}

// WritableStream is a sink for chunks fed through an exclusive Writer.
// Accepted chunks are buffered up to the high water mark and delivered to
// the sink by a background drain loop, one at a time, in order.
type WritableStream[T any] struct {
	mu   sync.Mutex
	wake chan struct{}

	queue     chunkQueue[T]
	state     streamState
	storedErr error

	sink           Sink[T]
	ctrl           *WritableController[T]
	onBackpressure func()

	locked         bool
	inFlight       bool
	closeRequested bool
	aborting       bool
	abortReason    error

	inst instruments

	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewWritable creates a WritableStream with the default configuration
// (high water mark 1, each chunk counting 1).
func NewWritable[T any](sink Sink[T]) *WritableStream[T] {
	s, _ := NewWritableWithConfig(sink, DefaultConfig[T]())
	return s
}

// NewWritableWithConfig creates a WritableStream with the given
// configuration. A Start hook failure leaves the returned stream errored.
func NewWritableWithConfig[T any](sink Sink[T], config Config[T]) (*WritableStream[T], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &WritableStream[T]{
		wake: make(chan struct{}),
		queue: chunkQueue[T]{
			highWaterMark: config.HighWaterMark,
			sizeFunc:      config.SizeFunc,
		},
		sink:           sink,
		onBackpressure: config.OnBackpressure,
		inst:           newInstruments(config.Metrics, config.Name),
		ctx:            ctx,
		ctxCancel:      cancel,
	}
	s.ctrl = &WritableController[T]{s: s}
	s.inst.created("writable")

	if sink.Start != nil {
		if err := sink.Start(ctx, s.ctrl); err != nil {
			s.mu.Lock()
			s.errorLocked(err)
			s.mu.Unlock()
			return s, nil
		}
	}

	go s.drain()
	return s, nil
}

// GetWriter acquires the stream's exclusive writer. It fails with
// ErrStreamLocked while another writer holds the lock.
func (s *WritableStream[T]) GetWriter() (*Writer[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return nil, ErrStreamLocked
	}
	s.locked = true
	return &Writer[T]{s: s}, nil
}

// Locked reports whether a writer currently holds the stream's lock.
func (s *WritableStream[T]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Abort aborts an unlocked stream. Use Writer.Abort while holding a lock.
func (s *WritableStream[T]) Abort(ctx context.Context, reason error) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return ErrStreamLocked
	}
	s.mu.Unlock()
	return s.abort(ctx, reason)
}

func (s *WritableStream[T]) waitLocked(ctx context.Context) {
	ch := s.wake
	s.mu.Unlock()
	select {
	case <-ch:
	case <-ctx.Done():
	}
	s.mu.Lock()
}

func (s *WritableStream[T]) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *WritableStream[T]) finishCloseLocked() {
	if s.state != stateActive {
		return
	}
	s.state = stateClosed
	s.broadcastLocked()
	s.ctxCancel()
	s.inst.closed("writable")
}

func (s *WritableStream[T]) errorLocked(reason error) {
	if s.state != stateActive {
		return
	}
	if reason == nil {
		reason = ErrStreamAborted
	}
	s.state = stateErrored
	s.storedErr = reason
	s.queue.reset()
	s.broadcastLocked()
	s.ctxCancel()
	s.inst.errored("writable")
}

// errorStream is the internal error entry point used by transform coupling.
func (s *WritableStream[T]) errorStream(reason error) {
	s.mu.Lock()
	s.errorLocked(reason)
	s.mu.Unlock()
}

// drain is the background loop delivering queued chunks to the sink. A chunk
// is not dequeued until the previous write hook has settled, so the sink
// observes chunks serially, in acceptance order.
func (s *WritableStream[T]) drain() {
	s.mu.Lock()
	for {
		if s.state != stateActive || s.aborting {
			s.mu.Unlock()
			return
		}

		if s.queue.len() > 0 {
			chunk := s.queue.pop()
			s.inst.dequeued(s.queue.size(), s.queue.desiredSize())
			s.inFlight = true
			s.mu.Unlock()

			var err error
			start := time.Now()
			if s.sink.Write != nil {
				err = s.sink.Write(s.ctx, chunk, s.ctrl)
			}
			s.inst.sinkWrite(time.Since(start))

			s.mu.Lock()
			s.inFlight = false
			s.broadcastLocked()
			if err != nil {
				s.errorLocked(err)
				s.mu.Unlock()
				return
			}
			continue
		}

		if s.closeRequested {
			// The close hook counts as in-flight so an abort arriving
			// mid-close waits for it to settle.
			s.inFlight = true
			s.mu.Unlock()
			var err error
			if s.sink.Close != nil {
				err = s.sink.Close(s.ctx)
			}
			s.mu.Lock()
			s.inFlight = false
			if err != nil {
				s.errorLocked(err)
			} else {
				s.finishCloseLocked()
			}
			s.mu.Unlock()
			return
		}

		s.waitLocked(context.Background())
	}
}

// awaitDrain blocks until every accepted chunk has been handed to the sink
// and the in-flight write has settled, or the stream leaves the active
// state. Pipe shutdown uses this so the sink observes accepted writes
// before an abort.
func (s *WritableStream[T]) awaitDrain(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.state == stateActive && !s.aborting && (s.queue.len() > 0 || s.inFlight) {
		if ctx.Err() != nil {
			return
		}
		s.waitLocked(ctx)
	}
}

// abort discards queued unwritten chunks, waits for any in-flight write to
// settle, invokes the sink's abort hook once, and leaves the stream errored
// with reason. Pending writes and closes fail with reason.
func (s *WritableStream[T]) abort(ctx context.Context, reason error) error {
	if reason == nil {
		reason = ErrStreamAborted
	}

	s.mu.Lock()
	if s.state != stateActive || s.aborting {
		s.mu.Unlock()
		return nil
	}
	s.aborting = true
	s.abortReason = reason
	s.queue.reset()
	s.broadcastLocked()

	for s.inFlight {
		if err := ctx.Err(); err != nil {
			// Abandoning the wait must still terminate the stream, or
			// Closed waiters would hang; the abort hook is skipped.
			s.errorLocked(reason)
			s.mu.Unlock()
			return err
		}
		s.waitLocked(ctx)
	}
	if s.state != stateActive {
		// A close or error settled while waiting; nothing left to abort.
		s.mu.Unlock()
		return nil
	}
	hook := s.sink.Abort
	s.errorLocked(reason)
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, reason)
	}
	return nil
}

// terminalErrLocked maps the stream's terminal condition to the error a
// pending operation should fail with.
func (s *WritableStream[T]) terminalErrLocked() error {
	switch {
	case s.state == stateErrored:
		return s.storedErr
	case s.aborting:
		return s.abortReason
	case s.state == stateClosed:
		return ErrStreamClosed
	case s.closeRequested:
		return ErrStreamClosing
	}
	return nil
}

// WritableController is the capability handle granted to sink callbacks.
type WritableController[T any] struct {
	s *WritableStream[T]
}

// Error transitions the stream to errored, discarding queued chunks and
// failing all pending and future operations with reason.
func (c *WritableController[T]) Error(reason error) {
	c.s.errorStream(reason)
}

// Writer is the lock-holding producer handle of a WritableStream. At most
// one write may be pending on a writer at a time.
type Writer[T any] struct {
	s        *WritableStream[T]
	released bool
	writing  bool
}

// Write accepts a chunk into the stream's queue. The call suspends while
// the queue is at or above its high water mark, providing backpressure.
// Delivery to the sink happens asynchronously, in acceptance order; a sink
// failure surfaces on subsequent operations and on Closed.
func (w *Writer[T]) Write(ctx context.Context, chunk T) error {
	s := w.s

	s.mu.Lock()
	defer s.mu.Unlock()

	if w.released {
		return ErrWriterReleased
	}
	if w.writing {
		return ErrWritePending
	}
	w.writing = true
	defer func() { w.writing = false }()

	backpressured := false
	for {
		if err := s.terminalErrLocked(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.queue.desiredSize() > 0 {
			break
		}
		if !backpressured {
			backpressured = true
			s.inst.backpressure()
			if s.onBackpressure != nil {
				go s.onBackpressure()
			}
		}
		s.waitLocked(ctx)
	}

	if err := s.queue.push(chunk); err != nil {
		s.errorLocked(err)
		return err
	}
	s.inst.enqueued(s.queue.size(), s.queue.desiredSize())
	s.broadcastLocked()
	return nil
}

// Ready blocks until the stream has spare capacity, is closing, or reaches
// a terminal state. It returns nil when a Write would be accepted without
// suspension.
func (w *Writer[T]) Ready(ctx context.Context) error {
	s := w.s

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if w.released {
			return ErrWriterReleased
		}
		if err := s.terminalErrLocked(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.queue.desiredSize() > 0 {
			return nil
		}
		s.waitLocked(ctx)
	}
}

// DesiredSize returns the remaining queue capacity before backpressure
// engages, or 0 once the stream is closed or errored.
func (w *Writer[T]) DesiredSize() float64 {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return 0
	}
	return s.queue.desiredSize()
}

// Close waits for all accepted writes to settle, then invokes the sink's
// close hook once. Writes arriving after Close fail with ErrStreamClosing.
func (w *Writer[T]) Close(ctx context.Context) error {
	s := w.s

	s.mu.Lock()
	defer s.mu.Unlock()

	if w.released {
		return ErrWriterReleased
	}
	if err := s.terminalErrLocked(); err != nil {
		return err
	}
	s.closeRequested = true
	s.broadcastLocked()

	for s.state == stateActive && !s.aborting {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.waitLocked(ctx)
	}
	switch {
	case s.state == stateErrored:
		return s.storedErr
	case s.aborting:
		return s.abortReason
	}
	return nil
}

// Abort immediately discards queued unwritten chunks and invokes the sink's
// abort hook, failing pending writes and closes with reason.
func (w *Writer[T]) Abort(ctx context.Context, reason error) error {
	w.s.mu.Lock()
	if w.released {
		w.s.mu.Unlock()
		return ErrWriterReleased
	}
	w.s.mu.Unlock()
	return w.s.abort(ctx, reason)
}

// ReleaseLock releases the writer's exclusive lock, making the stream
// available to a new writer. It fails while a write is pending.
func (w *Writer[T]) ReleaseLock() error {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.released {
		return nil
	}
	if w.writing {
		return ErrWritePending
	}
	w.released = true
	s.locked = false
	return nil
}

// Closed blocks until the stream reaches a terminal state. It returns nil
// for closed, the stored reason for errored, or the context error.
func (w *Writer[T]) Closed(ctx context.Context) error {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.state == stateActive {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.waitLocked(ctx)
	}
	if s.state == stateErrored {
		return s.storedErr
	}
	return nil
}
