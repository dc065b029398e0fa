package jobqueue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool is the in-process Dispatcher used when no redis is configured. Jobs
// still buffered at shutdown are dropped; their records stay queued and are
// picked up by recovery on the next start.
type Pool struct {
	jobs    chan string
	workers int
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewPool(workers, buffer int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:    make(chan string, buffer),
		workers: workers,
		logger:  logger.Named("jobqueue"),
		stopCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *Pool) Enqueue(ctx context.Context, id string) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrQueueStopped
	}

	select {
	case p.jobs <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (p *Pool) Start(handler Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return nil
	}
	p.running = true
	p.logger.Info("starting workers", zap.Int("workers", p.workers))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i, handler)
	}
	return nil
}

func (p *Pool) worker(n int, handler Handler) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case id := <-p.jobs:
			if err := handler(p.ctx, id); err != nil {
				p.logger.Warn("job failed", zap.Int("worker", n), zap.String("id", id), zap.Error(err))
			}
		}
	}
}

// Stop waits for running jobs until ctx expires, then cancels them.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("all workers stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
