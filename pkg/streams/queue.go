package streams

import "math"

// chunkQueue is the internal buffer backing a stream. Chunks are appended at
// the tail and removed from the head, exactly once each. The queue tracks the
// total size of buffered chunks as reported by the configured size function
// (each chunk counts 1 when no size function is set).
type chunkQueue[T any] struct {
	chunks        []T
	sizes         []float64
	total         float64
	highWaterMark float64
	sizeFunc      func(T) float64
}

// push appends a chunk at the tail. It fails if the size function reports an
// invalid size; the caller is expected to error the stream in that case.
func (q *chunkQueue[T]) push(chunk T) error {
	size := 1.0
	if q.sizeFunc != nil {
		size = q.sizeFunc(chunk)
	}
	if size < 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return ErrInvalidChunkSize
	}
	q.chunks = append(q.chunks, chunk)
	q.sizes = append(q.sizes, size)
	q.total += size
	return nil
}

// pop removes and returns the chunk at the head. Callers must check len first.
func (q *chunkQueue[T]) pop() T {
	chunk := q.chunks[0]
	var zero T
	q.chunks[0] = zero // release the reference
	q.total -= q.sizes[0]
	q.chunks = q.chunks[1:]
	q.sizes = q.sizes[1:]
	if len(q.chunks) == 0 {
		q.chunks = nil
		q.sizes = nil
		q.total = 0 // guard against float drift on empty
	}
	return chunk
}

func (q *chunkQueue[T]) len() int {
	return len(q.chunks)
}

func (q *chunkQueue[T]) size() float64 {
	return q.total
}

// desiredSize is the remaining capacity before backpressure engages.
func (q *chunkQueue[T]) desiredSize() float64 {
	return q.highWaterMark - q.total
}

func (q *chunkQueue[T]) reset() {
	q.chunks = nil
	q.sizes = nil
	q.total = 0
}
