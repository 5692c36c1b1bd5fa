/*
Package webstreams provides a web-style streams engine for Go: readable,
writable, and transform streams with backpressure, teeing, piping, and
bring-your-own-buffer byte reads.

Core engine (pkg/streams):
  - streams: ReadableStream, WritableStream, TransformStream with queuing
    strategies, single-lock readers and writers, and pipe coordination

Adapters (pkg/adapters):
  - iostream: bridge io.Reader / io.Writer to byte streams
  - gzipstream: gzip compression and decompression transforms
  - redisqueue: Redis lists as chunk sources and sinks
  - cronsource: cron-scheduled tick sources
  - throttle: rate-limited pass-through transforms

Example usage:

	import (
		"github.com/vnykmshr/webstreams/pkg/adapters/gzipstream"
		"github.com/vnykmshr/webstreams/pkg/adapters/iostream"
		"github.com/vnykmshr/webstreams/pkg/streams"
	)

	src := iostream.NewReadable(file)
	seam := streams.NewIdentityTransform[[]byte]()
	go src.PipeTo(ctx, seam.Writable(), nil)

	compressed := streams.PipeThrough(ctx, seam.Readable(), gzipstream.NewCompressor(), nil)
	err := compressed.PipeTo(ctx, iostream.NewWritable(dst), nil)
*/
package webstreams
