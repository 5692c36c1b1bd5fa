package streams

import (
	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/metrics"
)

// Config holds configuration for stream construction.
type Config[T any] struct {
	// HighWaterMark is the queue size at which backpressure engages.
	// Default: 1.
	HighWaterMark float64

	// SizeFunc reports the size of a single chunk. When nil, each chunk
	// counts as 1.
	SizeFunc func(T) float64

	// OnBackpressure is invoked (on its own goroutine) when the queue
	// crosses the high water mark and producers start to suspend.
	OnBackpressure func()

	// Name identifies the stream in metrics.
	Name string

	// Metrics configures Prometheus instrumentation. Disabled by default.
	Metrics metrics.Config
}

// DefaultConfig returns a default stream configuration.
func DefaultConfig[T any]() Config[T] {
	return Config[T]{
		HighWaterMark: 1,
	}
}

func (c Config[T]) validate() error {
	return validation.ValidateNonNegative("streams", "HighWaterMark", c.HighWaterMark)
}

// CountSize is a size function under which every chunk counts as 1.
func CountSize[T any](T) float64 {
	return 1
}

// ByteLengthSize reports the length of a byte chunk, for byte-counted queues.
func ByteLengthSize(chunk []byte) float64 {
	return float64(len(chunk))
}
