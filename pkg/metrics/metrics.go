// Package metrics provides Prometheus instrumentation for webstreams components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for webstreams components.
type Registry struct {
	// Stream lifecycle metrics
	StreamsCreated *prometheus.CounterVec
	StreamsClosed  *prometheus.CounterVec
	StreamErrors   *prometheus.CounterVec

	// Queue metrics
	ChunksEnqueued *prometheus.CounterVec
	ChunksDequeued *prometheus.CounterVec
	QueueSize      *prometheus.GaugeVec
	DesiredSize    *prometheus.GaugeVec

	// Flow control metrics
	BackpressureEvents *prometheus.CounterVec
	PullInvocations    *prometheus.CounterVec
	SinkWriteDuration  *prometheus.HistogramVec

	// Pipe metrics
	PipeChunks *prometheus.CounterVec
	PipeErrors *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by webstreams components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		StreamsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "stream",
				Name:      "created_total",
				Help:      "Total number of streams created",
			},
			[]string{"kind", "stream_name"},
		),

		StreamsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "stream",
				Name:      "closed_total",
				Help:      "Total number of streams that reached the closed state",
			},
			[]string{"kind", "stream_name"},
		),

		StreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "stream",
				Name:      "errors_total",
				Help:      "Total number of streams that reached the errored state",
			},
			[]string{"kind", "stream_name"},
		),

		ChunksEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "queue",
				Name:      "enqueued_total",
				Help:      "Total number of chunks enqueued to stream queues",
			},
			[]string{"stream_name"},
		),

		ChunksDequeued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "queue",
				Name:      "dequeued_total",
				Help:      "Total number of chunks dequeued from stream queues",
			},
			[]string{"stream_name"},
		),

		QueueSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "webstreams",
				Subsystem: "queue",
				Name:      "size",
				Help:      "Current total size of buffered chunks",
			},
			[]string{"stream_name"},
		),

		DesiredSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "webstreams",
				Subsystem: "queue",
				Name:      "desired_size",
				Help:      "Current desired size (high water mark minus queue size)",
			},
			[]string{"stream_name"},
		),

		BackpressureEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "flow",
				Name:      "backpressure_events_total",
				Help:      "Total number of times a producer observed desired size <= 0",
			},
			[]string{"stream_name"},
		),

		PullInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "flow",
				Name:      "pull_invocations_total",
				Help:      "Total number of source pull hook invocations",
			},
			[]string{"stream_name"},
		),

		SinkWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webstreams",
				Subsystem: "flow",
				Name:      "sink_write_duration_seconds",
				Help:      "Time spent in sink write hook invocations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stream_name"},
		),

		PipeChunks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "pipe",
				Name:      "chunks_total",
				Help:      "Total number of chunks transferred by pipe operations",
			},
			[]string{"pipe_name"},
		),

		PipeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webstreams",
				Subsystem: "pipe",
				Name:      "errors_total",
				Help:      "Total number of pipe operations that failed",
			},
			[]string{"pipe_name"},
		),
	}
}
