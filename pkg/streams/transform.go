package streams

import (
	"context"
)

// Transformer is the callback set driven by a TransformStream. Transform
// receives each chunk written to the writable side and may enqueue zero or
// more chunks to the readable side before the next chunk is accepted. Flush
// runs once after the writable side closes, before the readable side closes.
// A returned error from any hook errors both sides.
type Transformer[I, O any] struct {
	Start     func(ctx context.Context, c *TransformController[O]) error
	Transform func(ctx context.Context, chunk I, c *TransformController[O]) error
	Flush     func(ctx context.Context, c *TransformController[O]) error
}

// TransformStream couples a writable side to a readable side through a
// transform step. The writable side does not accept its next chunk until
// the transform step has settled and the readable side has capacity, which
// propagates downstream backpressure to upstream producers.
type TransformStream[I, O any] struct {
	writable *WritableStream[I]
	readable *ReadableStream[O]
	ctrl     *TransformController[O]
}

// NewTransform creates a TransformStream with default configurations on
// both sides. A nil Transform passes no chunks through; use
// NewIdentityTransform for pass-through semantics.
func NewTransform[I, O any](t Transformer[I, O]) *TransformStream[I, O] {
	ts, _ := NewTransformWithConfig(t, DefaultConfig[I](), DefaultConfig[O]())
	return ts
}

// NewTransformWithConfig creates a TransformStream with explicit writable-
// and readable-side configurations.
func NewTransformWithConfig[I, O any](t Transformer[I, O], writableConfig Config[I], readableConfig Config[O]) (*TransformStream[I, O], error) {
	ts := &TransformStream[I, O]{}

	readable, err := NewReadableWithConfig(Source[O]{
		// The readable side is push-fed by the transform step; demand is
		// signalled through desired size rather than a pull hook.
		Cancel: func(ctx context.Context, reason error) error {
			return ts.writable.abort(ctx, reason)
		},
	}, readableConfig)
	if err != nil {
		return nil, err
	}
	ts.readable = readable

	ts.ctrl = &TransformController[O]{
		rc: readable.ctrl,
		errWritable: func(reason error) {
			ts.writable.errorStream(reason)
		},
	}

	writable, err := NewWritableWithConfig(Sink[I]{
		Start: func(ctx context.Context, _ *WritableController[I]) error {
			if t.Start == nil {
				return nil
			}
			if err := t.Start(ctx, ts.ctrl); err != nil {
				readable.ctrl.Error(err)
				return err
			}
			return nil
		},
		Write: func(ctx context.Context, chunk I, _ *WritableController[I]) error {
			if t.Transform != nil {
				if err := t.Transform(ctx, chunk, ts.ctrl); err != nil {
					readable.ctrl.Error(err)
					return err
				}
			}
			return ts.awaitReadableCapacity(ctx)
		},
		Close: func(ctx context.Context) error {
			if t.Flush != nil {
				if err := t.Flush(ctx, ts.ctrl); err != nil {
					readable.ctrl.Error(err)
					return err
				}
			}
			// Close can only fail when the transformer already closed or
			// errored the readable side, which is not a close failure.
			_ = readable.ctrl.Close()
			return nil
		},
		Abort: func(ctx context.Context, reason error) error {
			readable.ctrl.Error(reason)
			return nil
		},
	}, writableConfig)
	if err != nil {
		return nil, err
	}
	ts.writable = writable

	return ts, nil
}

// Writable returns the upstream-facing side of the transform.
func (ts *TransformStream[I, O]) Writable() *WritableStream[I] {
	return ts.writable
}

// Readable returns the downstream-facing side of the transform.
func (ts *TransformStream[I, O]) Readable() *ReadableStream[O] {
	return ts.readable
}

// awaitReadableCapacity suspends the writable side until the readable side
// has spare capacity or a read is waiting. This is the backpressure link
// between the two halves.
func (ts *TransformStream[I, O]) awaitReadableCapacity(ctx context.Context) error {
	r := ts.readable

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		switch r.state {
		case stateErrored:
			return r.storedErr
		case stateClosed:
			return nil
		}
		if r.queue.desiredSize() > 0 || r.waitingReads > 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.waitLocked(ctx)
	}
}

// TransformController is the capability handle granted to transformer
// callbacks. Enqueued chunks feed the readable side; errors propagate to
// both sides.
type TransformController[O any] struct {
	rc          *ReadableController[O]
	errWritable func(reason error)
}

// Enqueue appends a chunk to the readable side.
func (c *TransformController[O]) Enqueue(chunk O) error {
	return c.rc.Enqueue(chunk)
}

// Error transitions both sides to errored with reason.
func (c *TransformController[O]) Error(reason error) {
	c.rc.Error(reason)
	c.errWritable(reason)
}

// Terminate closes the readable side and errors the writable side,
// ending the stream pair early.
func (c *TransformController[O]) Terminate() {
	_ = c.rc.Close()
	c.errWritable(ErrTransformTerminated)
}

// DesiredSize returns the readable side's remaining capacity.
func (c *TransformController[O]) DesiredSize() float64 {
	return c.rc.DesiredSize()
}

// NewIdentityTransform creates a transform stream that passes chunks
// through unchanged, useful as a buffering seam between a pipe's two sides.
func NewIdentityTransform[T any]() *TransformStream[T, T] {
	return NewTransform(Transformer[T, T]{
		Transform: func(_ context.Context, chunk T, c *TransformController[T]) error {
			return c.Enqueue(chunk)
		},
	})
}
