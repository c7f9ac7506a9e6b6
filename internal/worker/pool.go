// Package worker runs fire-and-forget background work on a bounded goroutine pool.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"dispatchconsole/internal/logger"
)

// ErrPoolClosed is returned when submitting to a pool that has been shut down.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a unit of background work. It should honour ctx at blocking points.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with a service-lifetime context for detached tasks.
type Pool struct {
	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool of size workers whose detached tasks stop with parent.
func New(parent context.Context, size int) (*Pool, error) {
	ctx, cancel := context.WithCancel(parent)

	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("worker panic recovered", zap.Any("panic", v), zap.Stack("stack"))
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Pool{pool: p, ctx: ctx, cancel: cancel}, nil
}

// Submit runs task with the caller's ctx. A ctx cancelled before the task starts
// skips it.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		select {
		case <-ctx.Done():
			logger.Debug("task skipped: context cancelled", zap.Error(ctx.Err()))
			return
		default:
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// SubmitDetached runs task with the pool's own context, so it outlives the request
// that scheduled it but stops on Shutdown.
func (p *Pool) SubmitDetached(task Task) error {
	err := p.pool.Submit(func() {
		select {
		case <-p.ctx.Done():
			logger.Debug("detached task skipped: pool shutting down")
			return
		default:
		}
		task(p.ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// Shutdown cancels detached tasks and waits up to timeout for running ones.
func (p *Pool) Shutdown(timeout time.Duration) {
	p.cancel()
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		logger.Warn("worker pool shutdown timeout", zap.Error(err))
	}
}

// Stats reports running, free and total capacity.
func (p *Pool) Stats() (running, free, capacity int) {
	return p.pool.Running(), p.pool.Free(), p.pool.Cap()
}
