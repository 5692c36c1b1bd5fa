// Package redisqueue adapts a Redis list to the streams engine: a readable
// stream fed by BLPOP and a writable stream draining into RPUSH, giving two
// processes a durable byte-run pipe through a shared Redis key.
package redisqueue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// DefaultPopTimeout bounds each blocking pop so pulls can observe stream
// cancellation between attempts.
const DefaultPopTimeout = time.Second

// Config holds configuration for Redis-backed streams.
type Config struct {
	// Client is the Redis client to use. Required.
	Client redis.UniversalClient

	// Key is the Redis list key backing the queue. Required.
	Key string

	// PopTimeout bounds each BLPOP call. Default: DefaultPopTimeout.
	PopTimeout time.Duration

	// Stream configures the underlying stream.
	Stream streams.Config[string]
}

func (c *Config) validate() error {
	if err := validation.ValidateNotNil("redisqueue", "Client", c.Client); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("redisqueue", "Key", c.Key); err != nil {
		return err
	}
	if c.PopTimeout == 0 {
		c.PopTimeout = DefaultPopTimeout
	}
	if err := validation.ValidatePositive("redisqueue", "PopTimeout", int(c.PopTimeout)); err != nil {
		return err
	}
	if c.Stream.HighWaterMark == 0 {
		c.Stream = streams.DefaultConfig[string]()
	}
	return nil
}

// NewSource creates a readable stream that pulls entries from the head of
// the configured list. An empty list is not a terminal condition; pulls
// block until an entry arrives, so the stream ends only via cancellation
// or a Redis failure.
func NewSource(config Config) (*streams.ReadableStream[string], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return streams.NewReadableWithConfig(streams.Source[string]{
		Pull: func(ctx context.Context, c *streams.ReadableController[string]) error {
			res, err := config.Client.BLPop(ctx, config.PopTimeout, config.Key).Result()
			if errors.Is(err, redis.Nil) {
				// Timed out with nothing queued; the engine re-pulls while
				// demand persists.
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			// BLPOP returns [key, value].
			return c.Enqueue(res[1])
		},
	}, config.Stream)
}

// NewSink creates a writable stream that appends chunks to the tail of the
// configured list. Close and abort leave the list contents in place for
// any consumer still draining it.
func NewSink(config Config) (*streams.WritableStream[string], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return streams.NewWritableWithConfig(streams.Sink[string]{
		Write: func(ctx context.Context, chunk string, _ *streams.WritableController[string]) error {
			return config.Client.RPush(ctx, config.Key, chunk).Err()
		},
	}, config.Stream)
}
