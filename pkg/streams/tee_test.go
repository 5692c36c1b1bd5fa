package streams

import (
	"context"
	"errors"
	"testing"

	"github.com/vnykmshr/webstreams/internal/testutil"
)

func readAll[T any](t *testing.T, ctx context.Context, s *ReadableStream[T]) []T {
	t.Helper()
	reader, err := s.GetReader()
	testutil.AssertNoError(t, err)
	defer func() { _ = reader.ReleaseLock() }()

	var out []T
	for {
		value, done, err := reader.Read(ctx)
		testutil.AssertNoError(t, err)
		if done {
			return out
		}
		out = append(out, value)
	}
}

func TestTeeBothBranchesSeeAllChunks(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	src := ReadableFromSlice([]int{1, 2, 3})
	b1, b2, err := src.Tee()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, src.Locked(), true)

	// Branches are read at different paces; each still observes the full
	// sequence.
	first := readAll(t, ctx, b1)
	second := readAll(t, ctx, b2)

	for _, got := range [][]int{first, second} {
		testutil.AssertEqual(t, len(got), 3)
		testutil.AssertEqual(t, got[0], 1)
		testutil.AssertEqual(t, got[1], 2)
		testutil.AssertEqual(t, got[2], 3)
	}
}

func TestTeeInterleavedReads(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	src := ReadableFromSlice([]string{"x", "y"})
	b1, b2, err := src.Tee()
	testutil.AssertNoError(t, err)

	r1, err := b1.GetReader()
	testutil.AssertNoError(t, err)
	r2, err := b2.GetReader()
	testutil.AssertNoError(t, err)

	v1, _, err := r1.Read(ctx)
	testutil.AssertNoError(t, err)
	v2, _, err := r2.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v1, "x")
	testutil.AssertEqual(t, v2, "x")

	v2, _, err = r2.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v2, "y")
	v1, _, err = r1.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v1, "y")

	_, done, err := r1.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, done, true)
	_, done, err = r2.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, done, true)
}

func TestTeeSourceErrorReachesBothBranches(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("source died")
	src := NewReadable(Source[int]{
		Pull: func(_ context.Context, _ *ReadableController[int]) error {
			return boom
		},
	})

	b1, b2, err := src.Tee()
	testutil.AssertNoError(t, err)

	for _, branch := range []*ReadableStream[int]{b1, b2} {
		reader, err := branch.GetReader()
		testutil.AssertNoError(t, err)
		_, _, err = reader.Read(ctx)
		testutil.AssertErrorIs(t, err, boom)
	}
}

func TestTeeCancelOneBranchKeepsOtherAlive(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	cancelled := make(chan error, 1)
	src := ReadableFromSlice([]int{1, 2})
	src.source.Cancel = func(_ context.Context, reason error) error {
		cancelled <- reason
		return nil
	}

	b1, b2, err := src.Tee()
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, b1.Cancel(ctx, errors.New("branch one done")))

	select {
	case reason := <-cancelled:
		t.Fatalf("source cancelled after one branch: %v", reason)
	default:
	}

	got := readAll(t, ctx, b2)
	testutil.AssertEqual(t, len(got), 2)
}

func TestTeeCancelBothBranchesCancelsSource(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	cancelled := make(chan error, 1)
	src := NewReadable(Source[int]{
		Cancel: func(_ context.Context, reason error) error {
			cancelled <- reason
			return nil
		},
	})

	b1, b2, err := src.Tee()
	testutil.AssertNoError(t, err)

	r1 := errors.New("branch one reason")
	r2 := errors.New("branch two reason")
	testutil.AssertNoError(t, b1.Cancel(ctx, r1))
	testutil.AssertNoError(t, b2.Cancel(ctx, r2))

	select {
	case reason := <-cancelled:
		testutil.AssertErrorIs(t, reason, r1)
		testutil.AssertErrorIs(t, reason, r2)
	case <-ctx.Done():
		t.Fatal("source cancel hook never ran")
	}
}
