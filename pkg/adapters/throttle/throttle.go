// Package throttle provides a rate-limiting pass-through stage. Chunks flow
// unchanged, but acceptance is paced by a token bucket, which propagates as
// backpressure to everything upstream of the stage.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Config holds configuration for New.
type Config struct {
	// Rate is the sustained throughput in chunks per second. Required.
	Rate float64

	// Burst is the bucket capacity in chunks. Default: 1.
	Burst int
}

// New creates a throttled identity stage for chunks of type T.
func New[T any](config Config) (*streams.TransformStream[T, T], error) {
	if err := validation.ValidatePositiveFloat("throttle", "Rate", config.Rate); err != nil {
		return nil, err
	}
	if config.Burst == 0 {
		config.Burst = 1
	}
	if err := validation.ValidatePositive("throttle", "Burst", config.Burst); err != nil {
		return nil, err
	}

	b := &bucket{
		rate:     config.Rate,
		capacity: float64(config.Burst),
		tokens:   float64(config.Burst),
		last:     time.Now(),
	}

	return streams.NewTransform(streams.Transformer[T, T]{
		Transform: func(ctx context.Context, chunk T, c *streams.TransformController[T]) error {
			if err := b.take(ctx); err != nil {
				return err
			}
			return c.Enqueue(chunk)
		},
	}), nil
}

// bucket is a token bucket refilled continuously at rate tokens per second.
type bucket struct {
	mu       sync.Mutex
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

// take consumes one token, sleeping until one accrues if the bucket is
// empty. The token is reserved up front so concurrent takers queue fairly.
func (b *bucket) take(ctx context.Context) error {
	b.mu.Lock()
	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now

	b.tokens--
	var wait time.Duration
	if b.tokens < 0 {
		wait = time.Duration(-b.tokens / b.rate * float64(time.Second))
	}
	b.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
