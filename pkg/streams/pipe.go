package streams

import (
	"context"

	"github.com/vnykmshr/webstreams/pkg/metrics"
)

// PipeOptions control error and completion propagation for PipeTo.
type PipeOptions struct {
	// PreventClose keeps the destination open after the source is exhausted.
	PreventClose bool

	// PreventAbort keeps the destination alive when the source errors.
	PreventAbort bool

	// PreventCancel keeps the source alive when the destination errors.
	PreventCancel bool

	// Name identifies the pipe in metrics.
	Name string

	// Metrics configures Prometheus instrumentation. Disabled by default.
	Metrics metrics.Config
}

// PipeTo drives chunks from the stream to dst until the source is exhausted
// or either side fails. On normal completion the destination is closed
// (unless PreventClose). A source error aborts the destination (unless
// PreventAbort); a destination error cancels the source (unless
// PreventCancel). Context cancellation tears down both sides the same way
// and fails the pipe with the context's error.
func (s *ReadableStream[T]) PipeTo(ctx context.Context, dst *WritableStream[T], opts *PipeOptions) error {
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
		// Teardown must run even though ctx is already done.
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
			// Source errored: abort the destination with the same reason,
			// after accepted chunks have flushed to the sink.
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
			// Destination errored: cancel the source with the same reason.
			if !opts.PreventCancel {
				_ = reader.Cancel(context.Background(), err)
			}
			inst.pipeError()
			return err
		}
		inst.pipeChunk()
	}
}

// PipeThrough pipes src into the writable side of t and returns t's
// readable side. The internal pipe runs in the background with opts applied;
// its failure surfaces on the returned stream as an errored state.
func PipeThrough[I, O any](ctx context.Context, src *ReadableStream[I], t *TransformStream[I, O], opts *PipeOptions) *ReadableStream[O] {
	go func() {
		_ = src.PipeTo(ctx, t.Writable(), opts)
	}()
	return t.Readable()
}
