package streams

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/webstreams/internal/testutil"
)

// recordingSink collects delivered chunks and hook invocations.
type recordingSink struct {
	mu       sync.Mutex
	chunks   []string
	closes   int
	aborts   int
	abortErr error
}

func (r *recordingSink) sink() Sink[string] {
	return Sink[string]{
		Write: func(_ context.Context, chunk string, _ *WritableController[string]) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.chunks = append(r.chunks, chunk)
			return nil
		},
		Close: func(_ context.Context) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.closes++
			return nil
		},
		Abort: func(_ context.Context, reason error) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.aborts++
			r.abortErr = reason
			return nil
		},
	}
}

func (r *recordingSink) snapshot() ([]string, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.chunks...), r.closes, r.aborts
}

func (r *recordingSink) abortState() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborts, r.abortErr
}

func TestWritableDeliversInAcceptanceOrder(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rec := &recordingSink{}
	s := NewWritable(rec.sink())

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)

	for _, chunk := range []string{"a", "b", "c"} {
		testutil.AssertNoError(t, writer.Write(ctx, chunk))
	}
	testutil.AssertNoError(t, writer.Close(ctx))

	chunks, closes, _ := rec.snapshot()
	testutil.AssertEqual(t, len(chunks), 3)
	testutil.AssertEqual(t, chunks[0], "a")
	testutil.AssertEqual(t, chunks[1], "b")
	testutil.AssertEqual(t, chunks[2], "c")
	// The close hook ran once, after the last write settled.
	testutil.AssertEqual(t, closes, 1)
	testutil.AssertNoError(t, writer.Closed(ctx))
}

func TestWritableWriteAfterCloseFails(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rec := &recordingSink{}
	s := NewWritable(rec.sink())
	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, writer.Close(ctx))
	testutil.AssertErrorIs(t, writer.Write(ctx, "late"), ErrStreamClosed)
	testutil.AssertErrorIs(t, writer.Close(ctx), ErrStreamClosed)
}

func TestWritableBackpressureGatesWrites(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	release := make(chan struct{})
	var delivered atomic.Int32

	s, err := NewWritableWithConfig(Sink[int]{
		Write: func(_ context.Context, _ int, _ *WritableController[int]) error {
			<-release
			delivered.Add(1)
			return nil
		},
	}, Config[int]{HighWaterMark: 1})
	testutil.AssertNoError(t, err)

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)

	// First chunk is accepted immediately and handed to the slow sink;
	// the second is accepted into the freed queue slot; the third blocks.
	testutil.AssertNoError(t, writer.Write(ctx, 1))
	testutil.AssertNoError(t, writer.Write(ctx, 2))

	third := make(chan error, 1)
	go func() { third <- writer.Write(ctx, 3) }()

	time.Sleep(20 * time.Millisecond)
	select {
	case err := <-third:
		t.Fatalf("third write resolved under backpressure: %v", err)
	default:
	}

	close(release)
	testutil.AssertNoError(t, <-third)
	testutil.AssertNoError(t, writer.Close(ctx))
	testutil.AssertEqual(t, delivered.Load(), 3)
}

func TestWritableAbortDiscardsQueuedChunks(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	reason := errors.New("downstream gone")
	inWrite := make(chan struct{})
	release := make(chan struct{})

	var delivered atomic.Int32
	var aborts atomic.Int32

	s, err := NewWritableWithConfig(Sink[int]{
		Write: func(_ context.Context, _ int, _ *WritableController[int]) error {
			delivered.Add(1)
			close(inWrite)
			<-release
			return nil
		},
		Abort: func(_ context.Context, got error) error {
			aborts.Add(1)
			if !errors.Is(got, reason) {
				t.Errorf("abort reason = %v, want %v", got, reason)
			}
			return nil
		},
	}, Config[int]{HighWaterMark: 2})
	testutil.AssertNoError(t, err)

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, writer.Write(ctx, 1))
	<-inWrite
	// Chunk 2 sits in the queue behind the in-flight write.
	testutil.AssertNoError(t, writer.Write(ctx, 2))

	aborted := make(chan error, 1)
	go func() { aborted <- writer.Abort(ctx, reason) }()

	// Abort waits for the in-flight write to settle.
	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, aborts.Load(), 0)
	close(release)

	testutil.AssertNoError(t, <-aborted)
	testutil.AssertEqual(t, aborts.Load(), 1)
	// The queued chunk was discarded, not written.
	testutil.AssertEqual(t, delivered.Load(), 1)

	testutil.AssertErrorIs(t, writer.Write(ctx, 3), reason)
	testutil.AssertErrorIs(t, writer.Closed(ctx), reason)
}

func TestWritableAbortReasonReachesSink(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	reason := errors.New("client disconnected")
	rec := &recordingSink{}
	s := NewWritable(rec.sink())

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, writer.Abort(ctx, reason))

	aborts, abortErr := rec.abortState()
	testutil.AssertEqual(t, aborts, 1)
	testutil.AssertErrorIs(t, abortErr, reason)
}

func TestWritableSinkErrorFailsStream(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("disk full")
	s := NewWritable(Sink[int]{
		Write: func(_ context.Context, _ int, _ *WritableController[int]) error {
			return boom
		},
	})

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)

	// The first write is accepted; the sink failure surfaces afterwards.
	testutil.AssertNoError(t, writer.Write(ctx, 1))
	testutil.AssertErrorIs(t, writer.Closed(ctx), boom)
	testutil.AssertErrorIs(t, writer.Write(ctx, 2), boom)
	testutil.AssertErrorIs(t, writer.Close(ctx), boom)
}

func TestWritableControllerErrorFailsPendingWrite(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("sink gave up")
	var ctrl *WritableController[int]

	s, err := NewWritableWithConfig(Sink[int]{
		Start: func(_ context.Context, c *WritableController[int]) error {
			ctrl = c
			return nil
		},
		Write: func(_ context.Context, _ int, _ *WritableController[int]) error {
			select {} // never settles; the controller error cuts in
		},
	}, Config[int]{HighWaterMark: 1})
	testutil.AssertNoError(t, err)

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, writer.Write(ctx, 1))

	pending := make(chan error, 1)
	go func() { pending <- writer.Write(ctx, 2) }()
	time.Sleep(10 * time.Millisecond)

	ctrl.Error(boom)
	testutil.AssertErrorIs(t, <-pending, boom)
}

func TestWritableLockSemantics(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rec := &recordingSink{}
	s := NewWritable(rec.sink())

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, s.Locked(), true)

	_, err = s.GetWriter()
	testutil.AssertErrorIs(t, err, ErrStreamLocked)

	err = s.Abort(ctx, nil)
	testutil.AssertErrorIs(t, err, ErrStreamLocked)

	testutil.AssertNoError(t, writer.ReleaseLock())
	testutil.AssertErrorIs(t, writer.Write(ctx, "x"), ErrWriterReleased)

	writer2, err := s.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, writer2.Write(ctx, "y"))
	testutil.AssertNoError(t, writer2.Close(ctx))
}

func TestWritableOnBackpressureFires(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	pressured := make(chan struct{}, 1)
	release := make(chan struct{})

	s, err := NewWritableWithConfig(Sink[int]{
		Write: func(_ context.Context, _ int, _ *WritableController[int]) error {
			<-release
			return nil
		},
	}, Config[int]{
		HighWaterMark: 1,
		OnBackpressure: func() {
			select {
			case pressured <- struct{}{}:
			default:
			}
		},
	})
	testutil.AssertNoError(t, err)

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, writer.Write(ctx, 1))
	testutil.AssertNoError(t, writer.Write(ctx, 2))

	blocked := make(chan error, 1)
	go func() { blocked <- writer.Write(ctx, 3) }()

	select {
	case <-pressured:
	case <-ctx.Done():
		t.Fatal("backpressure callback never fired")
	}

	close(release)
	testutil.AssertNoError(t, <-blocked)
	testutil.AssertNoError(t, writer.Close(ctx))
}

func TestWritableReadySignalsCapacity(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	release := make(chan struct{})
	s, err := NewWritableWithConfig(Sink[int]{
		Write: func(_ context.Context, _ int, _ *WritableController[int]) error {
			<-release
			return nil
		},
	}, Config[int]{HighWaterMark: 1})
	testutil.AssertNoError(t, err)

	writer, err := s.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, writer.Ready(ctx))
	testutil.AssertEqual(t, writer.DesiredSize(), 1.0)

	testutil.AssertNoError(t, writer.Write(ctx, 1))
	testutil.AssertNoError(t, writer.Write(ctx, 2))

	ready := make(chan error, 1)
	go func() { ready <- writer.Ready(ctx) }()
	time.Sleep(10 * time.Millisecond)
	select {
	case err := <-ready:
		t.Fatalf("Ready resolved while the queue was full: %v", err)
	default:
	}

	close(release)
	testutil.AssertNoError(t, <-ready)
	testutil.AssertNoError(t, writer.Close(ctx))
}
