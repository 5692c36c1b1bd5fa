// Package iostream bridges the streams engine to the standard io interfaces,
// so byte streams can source from any io.Reader and drain into any io.Writer.
package iostream

import (
	"context"
	"errors"
	"io"

	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// DefaultBufferSize is the per-pull read size used when none is configured.
const DefaultBufferSize = 32 * 1024

// ReaderConfig holds configuration for NewReadableWithConfig.
type ReaderConfig struct {
	// BufferSize is the number of bytes requested from the underlying
	// reader per pull. Default: DefaultBufferSize.
	BufferSize int

	// Stream configures the underlying byte stream.
	Stream streams.ByteConfig
}

// DefaultReaderConfig returns a default reader configuration.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{BufferSize: DefaultBufferSize}
}

// NewReadable wraps r in a byte stream with the default configuration.
// If r is an io.Closer, cancelling the stream closes it.
func NewReadable(r io.Reader) *streams.ReadableByteStream {
	s, _ := NewReadableWithConfig(r, DefaultReaderConfig())
	return s
}

// NewReadableWithConfig wraps r in a byte stream. Each pull issues one Read
// against r, so the stream inherits r's pacing; io.EOF closes the stream.
func NewReadableWithConfig(r io.Reader, config ReaderConfig) (*streams.ReadableByteStream, error) {
	if err := validation.ValidateNotNil("iostream", "reader", r); err != nil {
		return nil, err
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if err := validation.ValidatePositive("iostream", "BufferSize", config.BufferSize); err != nil {
		return nil, err
	}

	return streams.NewReadableByteStreamWithConfig(streams.ByteSource{
		Pull: func(_ context.Context, c *streams.ByteStreamController) error {
			buf := make([]byte, config.BufferSize)
			n, err := r.Read(buf)
			if n > 0 {
				if enqErr := c.Enqueue(buf[:n]); enqErr != nil {
					return enqErr
				}
			}
			if errors.Is(err, io.EOF) {
				return c.Close()
			}
			return err
		},
		Cancel: func(_ context.Context, _ error) error {
			if closer, ok := r.(io.Closer); ok {
				return closer.Close()
			}
			return nil
		},
	}, config.Stream)
}

// NewWritable wraps w in a writable stream of byte runs. Every chunk is
// written fully before the next is accepted; a short write fails the stream.
// If w is an io.Closer, closing or aborting the stream closes it.
func NewWritable(w io.Writer) *streams.WritableStream[[]byte] {
	s, _ := NewWritableWithConfig(w, streams.DefaultConfig[[]byte]())
	return s
}

// NewWritableWithConfig wraps w in a writable stream with the given stream
// configuration.
func NewWritableWithConfig(w io.Writer, config streams.Config[[]byte]) (*streams.WritableStream[[]byte], error) {
	if err := validation.ValidateNotNil("iostream", "writer", w); err != nil {
		return nil, err
	}
	if config.SizeFunc == nil {
		config.SizeFunc = streams.ByteLengthSize
	}

	closeWriter := func() error {
		if closer, ok := w.(io.Closer); ok {
			return closer.Close()
		}
		return nil
	}

	return streams.NewWritableWithConfig(streams.Sink[[]byte]{
		Write: func(_ context.Context, chunk []byte, _ *streams.WritableController[[]byte]) error {
			_, err := w.Write(chunk)
			return err
		},
		Close: func(_ context.Context) error {
			return closeWriter()
		},
		Abort: func(_ context.Context, _ error) error {
			return closeWriter()
		},
	}, config)
}
