// Package jobqueue runs analysis jobs outside the request goroutine.
package jobqueue

import (
	"context"
	"errors"
)

var (
	ErrQueueFull    = errors.New("job queue is full")
	ErrQueueStopped = errors.New("job queue is stopped")
)

// Handler processes one job id. Delivery is at-least-once, so handlers must
// tolerate seeing an id they already finished.
type Handler func(ctx context.Context, id string) error

type Dispatcher interface {
	Enqueue(ctx context.Context, id string) error
	Start(handler Handler) error
	Stop(ctx context.Context) error
}
