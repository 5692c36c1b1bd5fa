package streams

import (
	"context"
	"errors"
	"sync"
)

// Tee splits the stream into two branches that each observe the full chunk
// sequence independently. Each branch owns its own queue, so slow reads on
// one branch never block or skip chunks on the other. Cancelling one branch
// leaves the source running; cancelling both cancels the source with the
// joined reasons. Tee locks the parent stream.
func (s *ReadableStream[T]) Tee() (*ReadableStream[T], *ReadableStream[T], error) {
	reader, err := s.GetReader()
	if err != nil {
		return nil, nil, err
	}

	t := &teeState[T]{
		reader: reader,
		ready:  make(chan struct{}),
	}

	for i := 0; i < 2; i++ {
		branch := i
		t.branches[i] = NewReadable(Source[T]{
			Pull: func(ctx context.Context, _ *ReadableController[T]) error {
				return t.pull(ctx)
			},
			Cancel: func(ctx context.Context, reason error) error {
				return t.cancelBranch(ctx, branch, reason)
			},
		})
	}
	close(t.ready)

	return t.branches[0], t.branches[1], nil
}

// teeState shares one upstream reader between two branch streams. Shared
// reads are serialized: each branch pull performs one read under readMu, and
// the resulting chunk is fanned out to every live branch.
type teeState[T any] struct {
	mu     sync.Mutex
	readMu sync.Mutex
	reader *Reader[T]
	ready  chan struct{}

	branches  [2]*ReadableStream[T]
	cancelled [2]bool
	reasons   [2]error
}

func (t *teeState[T]) pull(ctx context.Context) error {
	// Branch construction triggers an immediate pull; wait until both
	// branches exist before touching them.
	select {
	case <-t.ready:
	case <-ctx.Done():
		return nil
	}

	// The shared read deliberately ignores the pulling branch's context: a
	// single branch being cancelled must not interrupt a read whose result
	// the other branch still wants. Cancelling both branches resolves the
	// read as done via the parent's cancel path.
	t.readMu.Lock()
	chunk, done, err := t.reader.Read(context.Background())
	t.readMu.Unlock()

	t.mu.Lock()
	cancelled := t.cancelled
	t.mu.Unlock()

	switch {
	case err != nil:
		for i, b := range t.branches {
			if !cancelled[i] {
				b.ctrl.Error(err)
			}
		}
	case done:
		for i, b := range t.branches {
			if !cancelled[i] {
				_ = b.ctrl.Close()
			}
		}
	default:
		for i, b := range t.branches {
			if !cancelled[i] {
				_ = b.ctrl.Enqueue(chunk)
			}
		}
	}
	return nil
}

func (t *teeState[T]) cancelBranch(ctx context.Context, branch int, reason error) error {
	t.mu.Lock()
	t.cancelled[branch] = true
	t.reasons[branch] = reason
	both := t.cancelled[0] && t.cancelled[1]
	reasons := t.reasons
	t.mu.Unlock()

	if both {
		return t.reader.Cancel(ctx, errors.Join(reasons[0], reasons[1]))
	}
	return nil
}
