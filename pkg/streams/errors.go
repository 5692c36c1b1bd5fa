package streams

import (
	"errors"
	"fmt"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
)

var (
	// ErrStreamClosed is returned when attempting to operate on a closed stream.
	ErrStreamClosed = fmt.Errorf("stream: %w", wserrors.ErrClosed)

	// ErrStreamClosing is returned when an operation arrives after close has
	// been requested but before the stream has finished closing.
	ErrStreamClosing = errors.New("stream close already requested")

	// ErrStreamAborted is the default reason used when a stream is aborted
	// without an explicit reason.
	ErrStreamAborted = errors.New("stream aborted")

	// ErrStreamLocked is returned when acquiring a reader or writer on a
	// stream that already has an outstanding handle.
	ErrStreamLocked = fmt.Errorf("stream already has an active reader or writer: %w", wserrors.ErrLocked)

	// ErrReaderReleased is returned when using a reader after ReleaseLock.
	ErrReaderReleased = errors.New("reader has released its lock")

	// ErrWriterReleased is returned when using a writer after ReleaseLock.
	ErrWriterReleased = errors.New("writer has released its lock")

	// ErrReadPending is returned when a second read is attempted while one
	// is already pending on the same reader.
	ErrReadPending = errors.New("a read is already pending on this reader")

	// ErrWritePending is returned when a second write is attempted while one
	// is already pending on the same writer.
	ErrWritePending = errors.New("a write is already pending on this writer")

	// ErrInvalidChunkSize is returned when a size function reports a negative
	// or non-finite chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be a non-negative finite number")

	// ErrEmptyBuffer is returned by BYOB reads given a zero-length buffer.
	ErrEmptyBuffer = errors.New("read buffer must be non-empty")

	// ErrTransformTerminated is the reason used to error the writable side
	// when a transform controller terminates the stream pair.
	ErrTransformTerminated = errors.New("transform terminated")
)
