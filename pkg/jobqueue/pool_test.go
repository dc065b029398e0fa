package jobqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	if id == "bad" {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestPoolProcessesJobs(t *testing.T) {
	p := NewPool(2, 8, zap.NewNop())
	rec := &recorder{}
	require.NoError(t, p.Start(rec.handle))

	for _, id := range []string{"a", "bad", "c"} {
		require.NoError(t, p.Enqueue(context.Background(), id))
	}

	assert.Eventually(t, func() bool { return len(rec.seen()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "bad", "c"}, rec.seen())

	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Enqueue(context.Background(), "late"), ErrQueueStopped)
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := NewPool(1, 1, zap.NewNop())

	require.NoError(t, p.Enqueue(context.Background(), "a"))
	assert.ErrorIs(t, p.Enqueue(context.Background(), "b"), ErrQueueFull)
	require.NoError(t, p.Stop(context.Background()))
}

func TestPoolStopCancelsSlowJobsAfterDeadline(t *testing.T) {
	p := NewPool(1, 1, zap.NewNop())
	started := make(chan struct{})
	require.NoError(t, p.Start(func(ctx context.Context, id string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, p.Enqueue(context.Background(), "slow"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)
}
