package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	pollTimeout       = time.Second
	defaultVisibility = 5 * time.Minute
)

// requeueScript moves an id back to pending only while the claim the reaper
// saw is still the current one, so concurrent reapers move it at most once.
var requeueScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
  return 0
end
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
  return 0
end
redis.call('LPUSH', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

// RedisQueue keeps pending ids in a list and moves each one to a processing
// list while a worker owns it. Claims are timestamped in a hash; a claim older
// than the visibility timeout belongs to a dead worker and is requeued.
// Replicas share the lists, so live work on another replica is never touched.
type RedisQueue struct {
	client        *redis.Client
	queueKey      string
	processingKey string
	claimsKey     string
	workers       int
	visibility    time.Duration
	now           func() time.Time
	logger        *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRedisQueue(client *redis.Client, name string, workers int, visibility time.Duration, logger *zap.Logger) *RedisQueue {
	if workers <= 0 {
		workers = 1
	}
	if visibility <= 0 {
		visibility = defaultVisibility
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client:        client,
		queueKey:      name,
		processingKey: name + ":processing",
		claimsKey:     name + ":claims",
		workers:       workers,
		visibility:    visibility,
		now:           time.Now,
		logger:        logger.Named("jobqueue"),
		stopCh:        make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, id string) error {
	if err := q.client.LPush(ctx, q.queueKey, id).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) Start(handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil
	}

	recovered, err := q.reap(q.ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		q.logger.Warn("requeued expired jobs", zap.Int("count", recovered))
	}

	q.running = true
	q.logger.Info("starting redis workers",
		zap.Int("workers", q.workers),
		zap.String("queue", q.queueKey),
		zap.Duration("visibility", q.visibility))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i, handler)
	}
	q.wg.Add(1)
	go q.reaper()
	return nil
}

func (q *RedisQueue) reaper() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.visibility / 2)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			n, err := q.reap(q.ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					q.logger.Error("reap processing list failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				q.logger.Warn("requeued expired jobs", zap.Int("count", n))
			}
		}
	}
}

// reap requeues processing entries whose claim is older than the visibility
// timeout. An entry without a claim gets one stamped now, so a worker that died
// between dequeue and stamping is recovered one timeout later.
func (q *RedisQueue) reap(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list processing: %w", err)
	}
	claims, err := q.client.HGetAll(ctx, q.claimsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list claims: %w", err)
	}

	now := q.now().UnixMilli()
	cutoff := now - q.visibility.Milliseconds()
	inFlight := make(map[string]struct{}, len(ids))
	moved := 0

	for _, id := range ids {
		inFlight[id] = struct{}{}
		raw, ok := claims[id]
		if !ok {
			if err := q.client.HSetNX(ctx, q.claimsKey, id, now).Err(); err != nil {
				return moved, fmt.Errorf("stamp claim %s: %w", id, err)
			}
			continue
		}
		if claimedAt, err := strconv.ParseInt(raw, 10, 64); err == nil && claimedAt > cutoff {
			continue
		}
		n, err := requeueScript.Run(ctx, q.client,
			[]string{q.processingKey, q.queueKey, q.claimsKey}, id, raw).Int()
		if err != nil {
			return moved, fmt.Errorf("requeue %s: %w", id, err)
		}
		moved += n
	}

	// stamps left behind by an ack racing the stamp above
	for id, raw := range claims {
		if _, ok := inFlight[id]; ok {
			continue
		}
		if claimedAt, err := strconv.ParseInt(raw, 10, 64); err == nil && claimedAt > cutoff {
			continue
		}
		if err := q.client.HDel(ctx, q.claimsKey, id).Err(); err != nil {
			return moved, fmt.Errorf("drop stale claim %s: %w", id, err)
		}
	}
	return moved, nil
}

func (q *RedisQueue) worker(n int, handler Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		id, err := q.client.BRPopLPush(q.ctx, q.queueKey, q.processingKey, pollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			q.logger.Error("dequeue failed", zap.Int("worker", n), zap.Error(err))
			select {
			case <-q.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := q.client.HSet(q.ctx, q.claimsKey, id, q.now().UnixMilli()).Err(); err != nil {
			q.logger.Warn("failed to stamp claim", zap.String("id", id), zap.Error(err))
		}

		if err := handler(q.ctx, id); err != nil {
			q.logger.Warn("job failed", zap.Int("worker", n), zap.String("id", id), zap.Error(err))
		}
		q.ack(id)
	}
}

func (q *RedisQueue) ack(id string) {
	pipe := q.client.TxPipeline()
	pipe.LRem(context.Background(), q.processingKey, 1, id)
	pipe.HDel(context.Background(), q.claimsKey, id)
	if _, err := pipe.Exec(context.Background()); err != nil {
		q.logger.Error("failed to ack job", zap.String("id", id), zap.Error(err))
	}
}

func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		q.cancel()
		return nil
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("all redis workers stopped")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Depth reports pending and in-flight counts.
func (q *RedisQueue) Depth(ctx context.Context) (pending, processing int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.queueKey)
	r := pipe.LLen(ctx, q.processingKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return p.Val(), r.Val(), nil
}
