package streams

import (
	"time"

	"github.com/vnykmshr/webstreams/pkg/metrics"
)

// instruments is a nil-safe recorder bound to one stream's name. All methods
// are no-ops when metrics are disabled.
type instruments struct {
	reg  *metrics.Registry
	name string
}

func newInstruments(cfg metrics.Config, name string) instruments {
	return instruments{reg: cfg.Resolve(), name: name}
}

func (in instruments) created(kind string) {
	if in.reg == nil {
		return
	}
	in.reg.StreamsCreated.WithLabelValues(kind, in.name).Inc()
}

func (in instruments) closed(kind string) {
	if in.reg == nil {
		return
	}
	in.reg.StreamsClosed.WithLabelValues(kind, in.name).Inc()
}

func (in instruments) errored(kind string) {
	if in.reg == nil {
		return
	}
	in.reg.StreamErrors.WithLabelValues(kind, in.name).Inc()
}

func (in instruments) enqueued(queueSize, desiredSize float64) {
	if in.reg == nil {
		return
	}
	in.reg.ChunksEnqueued.WithLabelValues(in.name).Inc()
	in.reg.QueueSize.WithLabelValues(in.name).Set(queueSize)
	in.reg.DesiredSize.WithLabelValues(in.name).Set(desiredSize)
}

func (in instruments) dequeued(queueSize, desiredSize float64) {
	if in.reg == nil {
		return
	}
	in.reg.ChunksDequeued.WithLabelValues(in.name).Inc()
	in.reg.QueueSize.WithLabelValues(in.name).Set(queueSize)
	in.reg.DesiredSize.WithLabelValues(in.name).Set(desiredSize)
}

func (in instruments) backpressure() {
	if in.reg == nil {
		return
	}
	in.reg.BackpressureEvents.WithLabelValues(in.name).Inc()
}

func (in instruments) pull() {
	if in.reg == nil {
		return
	}
	in.reg.PullInvocations.WithLabelValues(in.name).Inc()
}

func (in instruments) sinkWrite(d time.Duration) {
	if in.reg == nil {
		return
	}
	in.reg.SinkWriteDuration.WithLabelValues(in.name).Observe(d.Seconds())
}

func (in instruments) pipeChunk() {
	if in.reg == nil {
		return
	}
	in.reg.PipeChunks.WithLabelValues(in.name).Inc()
}

func (in instruments) pipeError() {
	if in.reg == nil {
		return
	}
	in.reg.PipeErrors.WithLabelValues(in.name).Inc()
}
