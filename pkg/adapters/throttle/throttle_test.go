package throttle

import (
	"testing"
	"time"

	"github.com/vnykmshr/webstreams/internal/testutil"
	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

func TestThrottlePassesChunksUnchanged(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	stage, err := New[string](Config{Rate: 1000, Burst: 10})
	testutil.AssertNoError(t, err)

	out := streams.PipeThrough(ctx, streams.ReadableFromSlice([]string{"a", "b", "c"}), stage, nil)

	var got []string
	for chunk, err := range out.Chunks(ctx) {
		testutil.AssertNoError(t, err)
		got = append(got, chunk)
	}
	testutil.AssertEqual(t, len(got), 3)
	testutil.AssertEqual(t, got[0], "a")
	testutil.AssertEqual(t, got[2], "c")
}

func TestThrottlePacesBeyondBurst(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	// Burst of 1 at 50/s: five chunks need at least ~80ms to clear.
	stage, err := New[int](Config{Rate: 50, Burst: 1})
	testutil.AssertNoError(t, err)

	start := time.Now()
	out := streams.PipeThrough(ctx, streams.ReadableFromSlice([]int{1, 2, 3, 4, 5}), stage, nil)

	count := 0
	for _, err := range out.Chunks(ctx) {
		testutil.AssertNoError(t, err)
		count++
	}
	testutil.AssertEqual(t, count, 5)

	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("five chunks cleared in %v, expected rate limiting to slow them", elapsed)
	}
}

func TestThrottleRejectsBadConfig(t *testing.T) {
	_, err := New[int](Config{Rate: 0})
	testutil.AssertErrorIs(t, err, wserrors.ErrInvalidConfiguration)

	_, err = New[int](Config{Rate: 10, Burst: -1})
	testutil.AssertErrorIs(t, err, wserrors.ErrInvalidConfiguration)
}
