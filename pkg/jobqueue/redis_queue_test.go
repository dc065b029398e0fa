package jobqueue

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisQueueDeliversAndAcks(t *testing.T) {
	_, client := newTestRedis(t)
	q := NewRedisQueue(client, "test:analyses", 2, time.Minute, zap.NewNop())
	rec := &recorder{}

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "bad"))
	require.NoError(t, q.Start(rec.handle))

	assert.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 5*time.Second, 20*time.Millisecond)

	// failed jobs are acked too; the handler owns retry policy
	assert.Eventually(t, func() bool {
		pending, processing, err := q.Depth(ctx)
		return err == nil && pending == 0 && processing == 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, q.Stop(context.Background()))
}

func TestRedisQueueRequeuesExpiredClaimsOnStart(t *testing.T) {
	mr, client := newTestRedis(t)
	_, err := mr.Lpush("test:analyses:processing", "orphan")
	require.NoError(t, err)
	mr.HSet("test:analyses:claims", "orphan", strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10))

	q := NewRedisQueue(client, "test:analyses", 1, time.Minute, zap.NewNop())
	rec := &recorder{}
	require.NoError(t, q.Start(rec.handle))

	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"orphan"}, rec.seen())
	assert.Eventually(t, func() bool { return !mr.Exists("test:analyses:claims") }, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, q.Stop(context.Background()))
}

func TestRedisQueueLeavesLiveClaimsAlone(t *testing.T) {
	mr, client := newTestRedis(t)
	// another replica is working on this one right now
	_, err := mr.Lpush("test:analyses:processing", "busy")
	require.NoError(t, err)
	mr.HSet("test:analyses:claims", "busy", strconv.FormatInt(time.Now().UnixMilli(), 10))

	q := NewRedisQueue(client, "test:analyses", 1, time.Minute, zap.NewNop())
	rec := &recorder{}
	require.NoError(t, q.Start(rec.handle))

	assert.Never(t, func() bool { return len(rec.seen()) > 0 }, 300*time.Millisecond, 20*time.Millisecond)
	pending, processing, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.Equal(t, int64(1), processing)
	require.NoError(t, q.Stop(context.Background()))
}

func TestRedisQueueRecoversUnstampedJobAfterVisibility(t *testing.T) {
	mr, client := newTestRedis(t)
	// dequeued by a worker that died before stamping its claim
	_, err := mr.Lpush("test:analyses:processing", "ghost")
	require.NoError(t, err)

	q := NewRedisQueue(client, "test:analyses", 1, 200*time.Millisecond, zap.NewNop())
	rec := &recorder{}
	require.NoError(t, q.Start(rec.handle))

	// first pass only stamps it
	assert.Empty(t, rec.seen())
	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"ghost"}, rec.seen())
	require.NoError(t, q.Stop(context.Background()))
}

func TestRedisQueueReapIsSafeAcrossReplicas(t *testing.T) {
	mr, client := newTestRedis(t)
	_, err := mr.Lpush("test:analyses:processing", "stale")
	require.NoError(t, err)
	mr.HSet("test:analyses:claims", "stale", strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10))

	a := NewRedisQueue(client, "test:analyses", 1, time.Minute, zap.NewNop())
	b := NewRedisQueue(client, "test:analyses", 1, time.Minute, zap.NewNop())

	ctx := context.Background()
	movedA, err := a.reap(ctx)
	require.NoError(t, err)
	movedB, err := b.reap(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, movedA+movedB)
	pending, processing, err := a.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	assert.Equal(t, int64(0), processing)
}

func TestRedisQueueEnqueueFailsWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	q := NewRedisQueue(client, "test:analyses", 1, time.Minute, zap.NewNop())
	mr.Close()

	assert.Error(t, q.Enqueue(context.Background(), "a"))
}
