/*
Package streams implements web-style readable, writable, and transform streams
with backpressure, teeing, piping, and bring-your-own-buffer byte reads.

The package models the producer and consumer sides of a buffered chunk pipeline:

  - ReadableStream: a source of chunks, consumed through an exclusive Reader
  - WritableStream: a sink for chunks, fed through an exclusive Writer
  - ReadableByteStream: a byte-run source with an additional BYOB reader that
    fills caller-supplied buffers without extra copies
  - TransformStream: a writable side coupled to a readable side through a
    user transform step, propagating backpressure and errors across both

Sources, sinks, and transformers are plain structs of optional function
fields; the engine invokes them with the ordering guarantees documented on
each type. Each stream owns an internal queue bounded by a high water mark;
DesiredSize (high water mark minus queued size) drops to zero or below when
the consumer falls behind, and producers observe that as backpressure.

Streams are created unlocked. Acquiring a reader or writer locks the stream;
a second acquisition fails until the first handle releases its lock. Closed
and errored are terminal states: once reached, a stream never recovers.

Basic usage:

	rs := streams.NewReadable(streams.Source[int]{
		Pull: func(ctx context.Context, c *streams.ReadableController[int]) error {
			return c.Enqueue(nextValue())
		},
	})

	reader, _ := rs.GetReader()
	for {
		v, done, err := reader.Read(ctx)
		if err != nil || done {
			break
		}
		process(v)
	}

Piping moves chunks from a readable to a writable stream, translating errors
into aborts and cancellations on the opposite side:

	err := rs.PipeTo(ctx, ws, &streams.PipeOptions{})
*/
package streams
