// Package cronsource exposes a cron schedule as a readable stream of ticks.
// The stream is naturally paced: each pull sleeps until the schedule's next
// activation, so backpressure simply skips no work and buffers no ticks
// beyond the stream's high-water mark.
package cronsource

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Tick is a single schedule activation.
type Tick struct {
	// Scheduled is the activation time from the cron expression.
	Scheduled time.Time

	// Emitted is when the tick was actually enqueued. Lags Scheduled when
	// downstream backpressure delayed the pull.
	Emitted time.Time
}

// Config holds configuration for New.
type Config struct {
	// Spec is a standard 5-field cron expression, with support for the
	// @every and @hourly style descriptors. Required.
	Spec string

	// Stream configures the underlying stream.
	Stream streams.Config[Tick]
}

// DefaultConfig returns a default configuration with the given expression.
func DefaultConfig(spec string) Config {
	return Config{Spec: spec, Stream: streams.DefaultConfig[Tick]()}
}

// New creates a readable stream of ticks for the given cron expression.
// The stream never closes on its own; cancel it to stop the schedule.
func New(config Config) (*streams.ReadableStream[Tick], error) {
	schedule, err := cron.ParseStandard(config.Spec)
	if err != nil {
		return nil, wserrors.NewValidationError("cronsource", "Spec", config.Spec, err.Error()).
			WithHint("use a 5-field cron expression or a descriptor like @every 10s")
	}
	if config.Stream.HighWaterMark == 0 && config.Stream.SizeFunc == nil {
		config.Stream = streams.DefaultConfig[Tick]()
	}

	return streams.NewReadableWithConfig(streams.Source[Tick]{
		Pull: func(ctx context.Context, c *streams.ReadableController[Tick]) error {
			next := schedule.Next(time.Now())

			timer := time.NewTimer(time.Until(next))
			defer timer.Stop()

			select {
			case <-timer.C:
				return c.Enqueue(Tick{Scheduled: next, Emitted: time.Now()})
			case <-ctx.Done():
				// Cancellation between activations ends the pull quietly.
				return nil
			}
		},
	}, config.Stream)
}
