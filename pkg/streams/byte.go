package streams

import (
	"context"
	"sync"

	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/metrics"
)

// ByteSource is the callback set driven by a ReadableByteStream. Semantics
// match Source, with the controller accepting byte runs.
type ByteSource struct {
	Start  func(ctx context.Context, c *ByteStreamController) error
	Pull   func(ctx context.Context, c *ByteStreamController) error
	Cancel func(ctx context.Context, reason error) error
}

// ByteConfig holds configuration for byte stream construction.
type ByteConfig struct {
	// HighWaterMark is the buffered byte count at which backpressure
	// engages. Default: 0, meaning the source is pulled only on read
	// demand.
	HighWaterMark int

	// Name identifies the stream in metrics.
	Name string

	// Metrics configures Prometheus instrumentation. Disabled by default.
	Metrics metrics.Config
}

// DefaultByteConfig returns a default byte stream configuration.
func DefaultByteConfig() ByteConfig {
	return ByteConfig{}
}

// ReadableByteStream is a source of byte runs. In addition to a default
// reader returning whole runs, it offers a BYOB reader that fills
// caller-supplied buffers directly, leaving partially consumed runs at the
// queue head.
type ReadableByteStream struct {
	mu   sync.Mutex
	wake chan struct{}

	chunks  [][]byte
	headOff int // consumed prefix of chunks[0]
	total   int // unconsumed bytes across all chunks

	highWaterMark int
	state         streamState
	storedErr     error

	source ByteSource
	ctrl   *ByteStreamController

	locked         bool
	started        bool
	pulling        bool
	closeRequested bool
	cancelCalled   bool
	waitingReads   int

	inst instruments

	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewReadableByteStream creates a byte stream with the default configuration.
func NewReadableByteStream(source ByteSource) *ReadableByteStream {
	s, _ := NewReadableByteStreamWithConfig(source, DefaultByteConfig())
	return s
}

// NewReadableByteStreamWithConfig creates a byte stream with the given
// configuration. A Start hook failure leaves the returned stream errored.
func NewReadableByteStreamWithConfig(source ByteSource, config ByteConfig) (*ReadableByteStream, error) {
	if err := validation.ValidateNonNegative("streams", "HighWaterMark", float64(config.HighWaterMark)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &ReadableByteStream{
		wake:          make(chan struct{}),
		highWaterMark: config.HighWaterMark,
		source:        source,
		inst:          newInstruments(config.Metrics, config.Name),
		ctx:           ctx,
		ctxCancel:     cancel,
	}
	s.ctrl = &ByteStreamController{s: s}
	s.inst.created("readable_bytes")

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

// GetReader acquires the stream's exclusive default reader.
func (s *ReadableByteStream) GetReader() (*ByteReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return nil, ErrStreamLocked
	}
	s.locked = true
	return &ByteReader{s: s}, nil
}

// GetBYOBReader acquires the stream's exclusive BYOB reader, whose reads
// fill caller-supplied buffers without an intermediate copy.
func (s *ReadableByteStream) GetBYOBReader() (*BYOBReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return nil, ErrStreamLocked
	}
	s.locked = true
	return &BYOBReader{s: s}, nil
}

// Locked reports whether a reader currently holds the stream's lock.
func (s *ReadableByteStream) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Cancel cancels an unlocked stream.
func (s *ReadableByteStream) Cancel(ctx context.Context, reason error) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return ErrStreamLocked
	}
	s.mu.Unlock()
	return s.cancel(ctx, reason)
}

func (s *ReadableByteStream) cancel(ctx context.Context, reason error) error {
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
	s.resetQueueLocked()
	hook := s.source.Cancel
	s.finishCloseLocked()
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, reason)
	}
	return nil
}

func (s *ReadableByteStream) waitLocked(ctx context.Context) {
	ch := s.wake
	s.mu.Unlock()
	select {
	case <-ch:
	case <-ctx.Done():
	}
	s.mu.Lock()
}

func (s *ReadableByteStream) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *ReadableByteStream) resetQueueLocked() {
	s.chunks = nil
	s.headOff = 0
	s.total = 0
}

func (s *ReadableByteStream) finishCloseLocked() {
	if s.state != stateActive {
		return
	}
	s.state = stateClosed
	s.broadcastLocked()
	s.ctxCancel()
	s.inst.closed("readable_bytes")
}

func (s *ReadableByteStream) errorLocked(reason error) {
	if s.state != stateActive {
		return
	}
	if reason == nil {
		reason = ErrStreamAborted
	}
	s.state = stateErrored
	s.storedErr = reason
	s.resetQueueLocked()
	s.broadcastLocked()
	s.ctxCancel()
	s.inst.errored("readable_bytes")
}

func (s *ReadableByteStream) desiredSizeLocked() int {
	return s.highWaterMark - s.total
}

func (s *ReadableByteStream) shouldPullLocked() bool {
	if s.source.Pull == nil || !s.started {
		return false
	}
	if s.state != stateActive || s.closeRequested || s.cancelCalled {
		return false
	}
	return s.desiredSizeLocked() > 0 || s.waitingReads > 0
}

func (s *ReadableByteStream) maybePullLocked() {
	if !s.shouldPullLocked() || s.pulling {
		return
	}
	s.pulling = true
	go s.pull()
}

func (s *ReadableByteStream) pull() {
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

// afterDequeueLocked advances lifecycle bookkeeping once bytes leave the
// queue: a requested close completes on drain, and freed capacity restarts
// the pull protocol.
func (s *ReadableByteStream) afterDequeueLocked() {
	s.inst.dequeued(float64(s.total), float64(s.desiredSizeLocked()))
	s.broadcastLocked()
	if s.closeRequested && s.total == 0 {
		s.finishCloseLocked()
	} else {
		s.maybePullLocked()
	}
}

// ByteStreamController is the capability handle granted to byte source
// callbacks.
type ByteStreamController struct {
	s *ReadableByteStream
}

// Enqueue appends a byte run to the queue. The stream takes ownership of
// chunk; the caller must not modify it afterwards. Empty runs are ignored.
func (c *ByteStreamController) Enqueue(chunk []byte) error {
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
	if len(chunk) == 0 {
		return nil
	}
	s.chunks = append(s.chunks, chunk)
	s.total += len(chunk)
	s.inst.enqueued(float64(s.total), float64(s.desiredSizeLocked()))
	s.broadcastLocked()
	return nil
}

// Close marks the end of the source's data. Buffered bytes remain readable.
func (c *ByteStreamController) Close() error {
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
	if s.total == 0 {
		s.finishCloseLocked()
	}
	return nil
}

// Error transitions the stream to errored, discarding buffered bytes.
func (c *ByteStreamController) Error(reason error) {
	s := c.s
	s.mu.Lock()
	s.errorLocked(reason)
	s.mu.Unlock()
}

// DesiredSize returns the remaining byte capacity before backpressure
// engages, or 0 once the stream is closed or errored.
func (c *ByteStreamController) DesiredSize() int {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return 0
	}
	return s.desiredSizeLocked()
}

// ByteReader is the default lock-holding reader, returning whole byte runs.
type ByteReader struct {
	s        *ReadableByteStream
	released bool
	reading  bool
}

// Read returns the next byte run, suspending while the queue is empty and
// the stream is live. The returned slice is owned by the caller.
func (r *ByteReader) Read(ctx context.Context) (chunk []byte, done bool, err error) {
	s := r.s

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.released {
		return nil, false, ErrReaderReleased
	}
	if r.reading {
		return nil, false, ErrReadPending
	}
	r.reading = true
	defer func() { r.reading = false }()

	for {
		if s.total > 0 {
			head := s.chunks[0][s.headOff:]
			s.chunks[0] = nil
			s.chunks = s.chunks[1:]
			s.headOff = 0
			s.total -= len(head)
			s.afterDequeueLocked()
			return head, false, nil
		}
		switch s.state {
		case stateClosed:
			return nil, true, nil
		case stateErrored:
			return nil, false, s.storedErr
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		s.waitingReads++
		s.maybePullLocked()
		s.waitLocked(ctx)
		s.waitingReads--
	}
}

// Cancel cancels the stream; the source's cancel hook runs exactly once.
func (r *ByteReader) Cancel(ctx context.Context, reason error) error {
	r.s.mu.Lock()
	if r.released {
		r.s.mu.Unlock()
		return ErrReaderReleased
	}
	r.s.mu.Unlock()
	return r.s.cancel(ctx, reason)
}

// ReleaseLock releases the reader's exclusive lock.
func (r *ByteReader) ReleaseLock() error {
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

// Closed blocks until the stream reaches a terminal state.
func (r *ByteReader) Closed(ctx context.Context) error {
	return r.s.closedWait(ctx)
}

func (s *ReadableByteStream) closedWait(ctx context.Context) error {
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

// BYOBReader is the bring-your-own-buffer reader. Reads copy queued bytes
// straight into the caller's buffer, consuming runs incrementally; a run
// larger than the buffer stays at the queue head with its consumed prefix
// skipped on the next read.
type BYOBReader struct {
	s        *ReadableByteStream
	released bool
	reading  bool
}

// Read fills p with up to len(p) queued bytes and returns the count. When
// the queue is empty and the stream is live, Read suspends until data
// arrives. A closed stream returns n=0, done=true; an errored stream fails
// with the stored reason.
func (r *BYOBReader) Read(ctx context.Context, p []byte) (n int, done bool, err error) {
	if len(p) == 0 {
		return 0, false, ErrEmptyBuffer
	}
	s := r.s

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.released {
		return 0, false, ErrReaderReleased
	}
	if r.reading {
		return 0, false, ErrReadPending
	}
	r.reading = true
	defer func() { r.reading = false }()

	for {
		if s.total > 0 {
			n := s.fillLocked(p)
			s.afterDequeueLocked()
			return n, false, nil
		}
		switch s.state {
		case stateClosed:
			return 0, true, nil
		case stateErrored:
			return 0, false, s.storedErr
		}
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		s.waitingReads++
		s.maybePullLocked()
		s.waitLocked(ctx)
		s.waitingReads--
	}
}

// fillLocked copies queued bytes into p, consuming whole runs where
// possible and leaving a partial run at the head otherwise.
func (s *ReadableByteStream) fillLocked(p []byte) int {
	n := 0
	for n < len(p) && len(s.chunks) > 0 {
		head := s.chunks[0][s.headOff:]
		copied := copy(p[n:], head)
		n += copied
		s.total -= copied
		if copied == len(head) {
			s.chunks[0] = nil
			s.chunks = s.chunks[1:]
			s.headOff = 0
		} else {
			s.headOff += copied
		}
	}
	return n
}

// Cancel cancels the stream; the source's cancel hook runs exactly once.
func (r *BYOBReader) Cancel(ctx context.Context, reason error) error {
	r.s.mu.Lock()
	if r.released {
		r.s.mu.Unlock()
		return ErrReaderReleased
	}
	r.s.mu.Unlock()
	return r.s.cancel(ctx, reason)
}

// ReleaseLock releases the reader's exclusive lock.
func (r *BYOBReader) ReleaseLock() error {
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

// Closed blocks until the stream reaches a terminal state.
func (r *BYOBReader) Closed(ctx context.Context) error {
	return r.s.closedWait(ctx)
}

// PipeTo drives byte runs from the stream to dst with the same propagation
// rules as ReadableStream.PipeTo.
func (s *ReadableByteStream) PipeTo(ctx context.Context, dst *WritableStream[[]byte], opts *PipeOptions) error {
	if opts == nil {
		opts = &PipeOptions{}
	}
	inst := newInstruments(opts.Metrics, opts.Name)

	reader, err := s.GetReader()
	if err != nil {
		return err
	}
	defer func() { _ = reader.ReleaseLock() }()

	writer, err := dst.GetWriter()
	if err != nil {
		return err
	}
	defer func() { _ = writer.ReleaseLock() }()

	teardown := func(reason error) {
		if !opts.PreventCancel {
			_ = reader.Cancel(context.Background(), reason)
		}
		if !opts.PreventAbort {
			// Chunks already accepted by the destination must reach the
			// sink before the abort discards the queue.
			dst.awaitDrain(context.Background())
			_ = writer.Abort(context.Background(), reason)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			teardown(err)
			inst.pipeError()
			return err
		}

		chunk, done, err := reader.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				teardown(ctx.Err())
				inst.pipeError()
				return err
			}
			if !opts.PreventAbort {
				dst.awaitDrain(context.Background())
				_ = writer.Abort(context.Background(), err)
			}
			inst.pipeError()
			return err
		}
		if done {
			if !opts.PreventClose {
				return writer.Close(ctx)
			}
			return nil
		}

		if err := writer.Write(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				teardown(ctx.Err())
				inst.pipeError()
				return err
			}
			if !opts.PreventCancel {
				_ = reader.Cancel(context.Background(), err)
			}
			inst.pipeError()
			return err
		}
		inst.pipeChunk()
	}
}
