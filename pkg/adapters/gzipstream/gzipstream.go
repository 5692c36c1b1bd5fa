// Package gzipstream provides gzip compression and decompression transform
// stages for byte-run streams, built on klauspost/compress.
package gzipstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Config holds configuration for compression stages.
type Config struct {
	// Level is the gzip compression level. Default: gzip.DefaultCompression.
	Level int

	// FlushPerChunk forces a gzip flush after every input chunk, trading
	// compression ratio for bounded latency on slow producers.
	FlushPerChunk bool
}

// DefaultConfig returns a default compression configuration.
func DefaultConfig() Config {
	return Config{Level: gzip.DefaultCompression}
}

// NewCompressor creates a transform stage that gzips its input with the
// default configuration.
func NewCompressor() *streams.TransformStream[[]byte, []byte] {
	t, _ := NewCompressorWithConfig(DefaultConfig())
	return t
}

// NewCompressorWithConfig creates a gzip compression stage. Output chunks
// are emitted whenever the encoder produces bytes; the trailing gzip frame
// is emitted on flush.
func NewCompressorWithConfig(config Config) (*streams.TransformStream[[]byte, []byte], error) {
	if config.Level == 0 {
		config.Level = gzip.DefaultCompression
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, config.Level)
	if err != nil {
		return nil, wserrors.NewValidationError("gzipstream", "Level", config.Level, "unsupported compression level")
	}

	emit := func(c *streams.TransformController[[]byte]) error {
		if buf.Len() == 0 {
			return nil
		}
		out := make([]byte, buf.Len())
		copy(out, buf.Bytes())
		buf.Reset()
		return c.Enqueue(out)
	}

	return streams.NewTransform(streams.Transformer[[]byte, []byte]{
		Transform: func(_ context.Context, chunk []byte, c *streams.TransformController[[]byte]) error {
			if _, err := zw.Write(chunk); err != nil {
				return err
			}
			if config.FlushPerChunk {
				if err := zw.Flush(); err != nil {
					return err
				}
			}
			return emit(c)
		},
		Flush: func(_ context.Context, c *streams.TransformController[[]byte]) error {
			if err := zw.Close(); err != nil {
				return err
			}
			return emit(c)
		},
	}), nil
}

// NewDecompressor creates a transform stage that gunzips its input. Input
// chunks may split the gzip frame at arbitrary byte boundaries. A truncated
// or corrupt frame errors both sides of the stage.
func NewDecompressor() *streams.TransformStream[[]byte, []byte] {
	pr, pw := io.Pipe()

	d := &decompressor{pr: pr, pw: pw, done: make(chan struct{})}

	return streams.NewTransform(streams.Transformer[[]byte, []byte]{
		Start: func(_ context.Context, c *streams.TransformController[[]byte]) error {
			go d.run(c)
			return nil
		},
		Transform: func(ctx context.Context, chunk []byte, _ *streams.TransformController[[]byte]) error {
			// Blocks until the decode goroutine consumes the bytes, which
			// couples input acceptance to decode progress.
			if _, err := pw.Write(chunk); err != nil {
				return d.decodeErr(err)
			}
			return ctx.Err()
		},
		Flush: func(_ context.Context, _ *streams.TransformController[[]byte]) error {
			_ = pw.Close()
			<-d.done
			return d.decodeErr(nil)
		},
	})
}

type decompressor struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (d *decompressor) run(c *streams.TransformController[[]byte]) {
	defer close(d.done)

	zr, err := gzip.NewReader(d.pr)
	if err != nil {
		d.fail(c, err)
		return
	}
	defer func() { _ = zr.Close() }()

	for {
		out := make([]byte, 32*1024)
		n, err := zr.Read(out)
		if n > 0 {
			if enqErr := c.Enqueue(out[:n]); enqErr != nil {
				d.fail(c, enqErr)
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			d.fail(c, err)
			return
		}
	}
}

// fail records the decode error, propagates it to the stage, and unblocks
// any Transform call parked on the pipe.
func (d *decompressor) fail(c *streams.TransformController[[]byte], err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
	_ = d.pr.CloseWithError(err)
	c.Error(err)
}

// decodeErr returns the recorded decode failure, falling back to fallback.
func (d *decompressor) decodeErr(fallback error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	return fallback
}
