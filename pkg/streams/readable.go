package streams

import (
	"context"
	"sync"
)

// streamState is the lifecycle state shared by all stream kinds. A stream is
// created active and transitions at most once, to closed or errored.
type streamState int

const (
	stateActive streamState = iota
	stateClosed
	stateErrored
)

// Source is the callback set driven by a ReadableStream. All fields are
// optional. Start runs once at construction, before any pull. Pull is invoked
// whenever the queue has spare capacity or a read is waiting, never
// concurrently with itself. Cancel runs exactly once when the stream is
// cancelled. A returned error from Start or Pull transitions the stream to
// errored.
type Source[T any] struct {
	Start  func(ctx context.Context, c *ReadableController[T]) error
	Pull   func(ctx context.Context, c *ReadableController[T]) error
	Cancel func(ctx context.Context, reason error) error
}

// ReadableStream is a source of chunks consumed through an exclusive Reader.
type ReadableStream[T any] struct {
	mu   sync.Mutex
	wake chan struct{}

	queue     chunkQueue[T]
	state     streamState
	storedErr error

	source         Source[T]
	ctrl           *ReadableController[T]
	onBackpressure func()

	locked         bool
	started        bool
	pulling        bool
	closeRequested bool
	cancelCalled   bool
	waitingReads   int

	inst instruments

	// ctx is the lifetime handed to source hooks; cancelled once the
	// stream reaches a terminal state.
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewReadable creates a ReadableStream with the default configuration
// (high water mark 1, each chunk counting 1).
func NewReadable[T any](source Source[T]) *ReadableStream[T] {
	s, _ := NewReadableWithConfig(source, DefaultConfig[T]())
	return s
}

// NewReadableWithConfig creates a ReadableStream with the given configuration.
// A Start hook failure does not fail construction; it leaves the returned
// stream errored, matching the behavior of a pull failure.
func NewReadableWithConfig[T any](source Source[T], config Config[T]) (*ReadableStream[T], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &ReadableStream[T]{
		wake: make(chan struct{}),
		queue: chunkQueue[T]{
			highWaterMark: config.HighWaterMark,
			sizeFunc:      config.SizeFunc,
		},
		source:         source,
		onBackpressure: config.OnBackpressure,
		inst:           newInstruments(config.Metrics, config.Name),
		ctx:            ctx,
		ctxCancel:      cancel,
	}
	s.ctrl = &ReadableController[T]{s: s}
	s.inst.created("readable")

	if source.Start != nil {
		if err := source.Start(ctx, s.ctrl); err != nil {
			s.mu.Lock()
			s.errorLocked(err)
			s.mu.Unlock()
			return s, nil
		}
	}

	s.mu.Lock()
	s.started = true
	s.maybePullLocked()
	s.mu.Unlock()

	return s, nil
}

// GetReader acquires the stream's exclusive reader. It fails with
// ErrStreamLocked while another reader holds the lock.
func (s *ReadableStream[T]) GetReader() (*Reader[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return nil, ErrStreamLocked
	}
	s.locked = true
	return &Reader[T]{s: s}, nil
}

// Locked reports whether a reader currently holds the stream's lock.
func (s *ReadableStream[T]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Cancel cancels an unlocked stream. Use Reader.Cancel while holding a lock.
func (s *ReadableStream[T]) Cancel(ctx context.Context, reason error) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return ErrStreamLocked
	}
	s.mu.Unlock()
	return s.cancel(ctx, reason)
}

// cancel performs the shared cancellation steps: discard the queue, resolve
// pending reads as done, and invoke the source cancel hook exactly once.
func (s *ReadableStream[T]) cancel(ctx context.Context, reason error) error {
	s.mu.Lock()
	switch s.state {
	case stateErrored:
		err := s.storedErr
		s.mu.Unlock()
		return err
	case stateClosed:
		s.mu.Unlock()
		return nil
	}
	if s.cancelCalled {
		s.mu.Unlock()
		return nil
	}
	s.cancelCalled = true
	s.queue.reset()
	hook := s.source.Cancel
	s.finishCloseLocked()
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, reason)
	}
	return nil
}

// waitLocked releases the stream mutex, waits for the next broadcast or
// context cancellation, and reacquires the mutex.
func (s *ReadableStream[T]) waitLocked(ctx context.Context) {
	ch := s.wake
	s.mu.Unlock()
	select {
	case <-ch:
	case <-ctx.Done():
	}
	s.mu.Lock()
}

// broadcastLocked wakes every goroutine blocked in waitLocked.
func (s *ReadableStream[T]) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *ReadableStream[T]) finishCloseLocked() {
	if s.state != stateActive {
		return
	}
	s.state = stateClosed
	s.broadcastLocked()
	s.ctxCancel()
	s.inst.closed("readable")
}

func (s *ReadableStream[T]) errorLocked(reason error) {
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
	s.inst.errored("readable")
}

// shouldPullLocked reports whether the pull protocol wants more data: the
// stream is live, and either the queue has spare capacity or a read waits.
func (s *ReadableStream[T]) shouldPullLocked() bool {
	if s.source.Pull == nil || !s.started {
		return false
	}
	if s.state != stateActive || s.closeRequested || s.cancelCalled {
		return false
	}
	return s.queue.desiredSize() > 0 || s.waitingReads > 0
}

// maybePullLocked starts a pull if one is wanted and none is in flight. At
// most one pull runs at a time; demand is re-evaluated when the current
// pull settles.
func (s *ReadableStream[T]) maybePullLocked() {
	if !s.shouldPullLocked() || s.pulling {
		return
	}
	s.pulling = true
	go s.pull()
}

func (s *ReadableStream[T]) pull() {
	s.inst.pull()
	err := s.source.Pull(s.ctx, s.ctrl)

	s.mu.Lock()
	s.pulling = false
	if err != nil {
		s.errorLocked(err)
		s.mu.Unlock()
		return
	}
	// Re-pull while demand persists.
	s.maybePullLocked()
	s.mu.Unlock()
}

// dequeueLocked removes the head chunk and advances lifecycle bookkeeping:
// a requested close completes once the queue drains, and freed capacity is
// announced to producers and the pull protocol.
func (s *ReadableStream[T]) dequeueLocked() T {
	chunk := s.queue.pop()
	s.inst.dequeued(s.queue.size(), s.queue.desiredSize())
	s.broadcastLocked()
	if s.closeRequested && s.queue.len() == 0 {
		s.finishCloseLocked()
	} else {
		s.maybePullLocked()
	}
	return chunk
}

// ReadableController is the capability handle granted to source callbacks.
// It must not be shared outside the source.
type ReadableController[T any] struct {
	s *ReadableStream[T]
}

// Enqueue appends a chunk to the stream's queue, waking any pending read.
// Enqueueing on a closed, closing, or errored stream is a contract violation
// and returns an error without changing stream state.
func (c *ReadableController[T]) Enqueue(chunk T) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeRequested {
		return ErrStreamClosing
	}
	if s.state != stateActive || s.cancelCalled {
		if s.state == stateErrored {
			return s.storedErr
		}
		return ErrStreamClosed
	}
	hadCapacity := s.queue.desiredSize() > 0
	if err := s.queue.push(chunk); err != nil {
		s.errorLocked(err)
		return err
	}
	s.inst.enqueued(s.queue.size(), s.queue.desiredSize())
	if hadCapacity && s.queue.desiredSize() <= 0 && s.onBackpressure != nil {
		go s.onBackpressure()
	}
	s.broadcastLocked()
	return nil
}

// Close marks the end of the source's data. Chunks already queued remain
// readable; the stream reaches the closed state once the queue drains.
func (c *ReadableController[T]) Close() error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeRequested {
		return ErrStreamClosing
	}
	if s.state != stateActive || s.cancelCalled {
		return ErrStreamClosed
	}
	s.closeRequested = true
	if s.queue.len() == 0 {
		s.finishCloseLocked()
	}
	return nil
}

// Error transitions the stream to errored, discarding queued chunks and
// failing all pending and future reads with reason.
func (c *ReadableController[T]) Error(reason error) {
	s := c.s
	s.mu.Lock()
	s.errorLocked(reason)
	s.mu.Unlock()
}

// DesiredSize returns the remaining queue capacity before backpressure
// engages, or 0 once the stream is closed or errored.
func (c *ReadableController[T]) DesiredSize() float64 {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return 0
	}
	return s.queue.desiredSize()
}

// Reader is the lock-holding consumer handle of a ReadableStream. At most
// one read may be pending on a reader at a time.
type Reader[T any] struct {
	s        *ReadableStream[T]
	released bool
	reading  bool
}

// Read returns the next chunk. When the queue is empty and the stream is
// still live, Read suspends until the next enqueue, close, or error. A
// closed or cancelled stream yields done=true with no error; an errored
// stream fails with the stored reason.
func (r *Reader[T]) Read(ctx context.Context) (value T, done bool, err error) {
	var zero T
	s := r.s

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.released {
		return zero, false, ErrReaderReleased
	}
	if r.reading {
		return zero, false, ErrReadPending
	}
	r.reading = true
	defer func() { r.reading = false }()

	for {
		if s.queue.len() > 0 {
			return s.dequeueLocked(), false, nil
		}
		switch s.state {
		case stateClosed:
			return zero, true, nil
		case stateErrored:
			return zero, false, s.storedErr
		}
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		s.waitingReads++
		s.maybePullLocked()
		s.waitLocked(ctx)
		s.waitingReads--
	}
}

// Cancel cancels the stream. A pending Read resolves as done, and the
// source's cancel hook receives reason exactly once across repeated calls.
func (r *Reader[T]) Cancel(ctx context.Context, reason error) error {
	r.s.mu.Lock()
	if r.released {
		r.s.mu.Unlock()
		return ErrReaderReleased
	}
	r.s.mu.Unlock()
	return r.s.cancel(ctx, reason)
}

// ReleaseLock releases the reader's exclusive lock, making the stream
// available to a new reader. It fails while a read is pending.
func (r *Reader[T]) ReleaseLock() error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.released {
		return nil
	}
	if r.reading {
		return ErrReadPending
	}
	r.released = true
	s.locked = false
	return nil
}

// Closed blocks until the stream reaches a terminal state. It returns nil
// for closed, the stored reason for errored, or the context error.
func (r *Reader[T]) Closed(ctx context.Context) error {
	s := r.s
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
