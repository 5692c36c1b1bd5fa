package streams

import (
	"context"
	"iter"
)

// IterateOptions control early-termination behavior for Chunks.
type IterateOptions struct {
	// PreventCancel keeps the stream alive when the consumer stops
	// iterating before the stream is exhausted.
	PreventCancel bool
}

// Chunks exposes the stream as a lazy, single-pass sequence of chunks.
// Breaking out of the loop early cancels the stream; a stream or context
// failure is yielded as the final element's error.
func (s *ReadableStream[T]) Chunks(ctx context.Context) iter.Seq2[T, error] {
	return s.ChunksWithOptions(ctx, IterateOptions{})
}

// ChunksWithOptions is Chunks with explicit options. The stream is locked
// for the duration of iteration and released afterwards, so a stream left
// live by PreventCancel can be re-acquired and iterated again.
func (s *ReadableStream[T]) ChunksWithOptions(ctx context.Context, opts IterateOptions) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		reader, err := s.GetReader()
		if err != nil {
			yield(zero, err)
			return
		}
		defer func() { _ = reader.ReleaseLock() }()

		for {
			chunk, done, err := reader.Read(ctx)
			if err != nil {
				yield(zero, err)
				return
			}
			if done {
				return
			}
			if !yield(chunk, nil) {
				if !opts.PreventCancel {
					_ = reader.Cancel(context.Background(), nil)
				}
				return
			}
		}
	}
}
