package streams

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/webstreams/internal/testutil"
	"github.com/vnykmshr/webstreams/pkg/metrics"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	testutil.AssertNoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func TestStreamLifecycleMetrics(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	promReg := prometheus.NewRegistry()
	cfg := Config[int]{
		HighWaterMark: 1,
		Name:          "metered",
		Metrics:       metrics.Config{Enabled: true, Registry: promReg},
	}

	var ctrl *ReadableController[int]
	s, err := NewReadableWithConfig(Source[int]{
		Start: func(_ context.Context, c *ReadableController[int]) error {
			ctrl = c
			return nil
		},
	}, cfg)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, counterValue(t, promReg, "webstreams_stream_created_total"), 1.0)

	testutil.AssertNoError(t, ctrl.Enqueue(1))
	testutil.AssertNoError(t, ctrl.Close())

	reader, err := s.GetReader()
	testutil.AssertNoError(t, err)
	_, _, err = reader.Read(ctx)
	testutil.AssertNoError(t, err)
	_, done, err := reader.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, done, true)

	testutil.AssertEqual(t, counterValue(t, promReg, "webstreams_queue_enqueued_total"), 1.0)
	testutil.AssertEqual(t, counterValue(t, promReg, "webstreams_queue_dequeued_total"), 1.0)
	testutil.AssertEqual(t, counterValue(t, promReg, "webstreams_stream_closed_total"), 1.0)
}

func TestPipeMetrics(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	promReg := prometheus.NewRegistry()
	src := ReadableFromSlice([]int{1, 2, 3})
	dst := newCollectSink[int]()

	err := src.PipeTo(ctx, dst.stream, &PipeOptions{
		Name:    "pipeline",
		Metrics: metrics.Config{Enabled: true, Registry: promReg},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, counterValue(t, promReg, "webstreams_pipe_chunks_total"), 3.0)
	testutil.AssertEqual(t, counterValue(t, promReg, "webstreams_pipe_errors_total"), 0.0)
}

func TestDisabledMetricsRecordNothing(t *testing.T) {
	in := newInstruments(metrics.Config{}, "ignored")
	in.created("readable")
	in.enqueued(1, 0)
	in.backpressure()
	in.pipeError()
}
