package streams

import "context"

// ReadableFromSlice creates a readable stream yielding the elements of
// items in order, then closing.
func ReadableFromSlice[T any](items []T) *ReadableStream[T] {
	index := 0
	return NewReadable(Source[T]{
		Pull: func(_ context.Context, c *ReadableController[T]) error {
			if index >= len(items) {
				return c.Close()
			}
			chunk := items[index]
			index++
			return c.Enqueue(chunk)
		},
	})
}

// ReadableFromChannel creates a readable stream yielding values received
// from ch, closing when ch is closed.
func ReadableFromChannel[T any](ch <-chan T) *ReadableStream[T] {
	return NewReadable(Source[T]{
		Pull: func(ctx context.Context, c *ReadableController[T]) error {
			select {
			case value, ok := <-ch:
				if !ok {
					return c.Close()
				}
				return c.Enqueue(value)
			case <-ctx.Done():
				return nil
			}
		},
	})
}
