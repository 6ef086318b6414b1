// Package worker provides goroutine pool management.
//
// Background work goes through a Pool with context propagation rather than
// naked goroutines, so it is bounded and drained on shutdown.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// shutdownTimeout bounds how long Shutdown waits for running tasks.
const shutdownTimeout = 30 * time.Second

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string

	// serviceCtx is the lifecycle context handed to detached tasks.
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// NewPool creates a pool of at most size goroutines. Detached tasks see a
// context derived from ctx that is cancelled by Shutdown.
func NewPool(ctx context.Context, name string, size int) (*Pool, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.String("pool", name),
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	ap, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}
	return &Pool{pool: ap, name: name, serviceCtx: serviceCtx, serviceCancel: serviceCancel}, nil
}

// SubmitDetached runs task with the pool's lifecycle context, so it outlives
// the request that submitted it but still stops on Shutdown.
func (p *Pool) SubmitDetached(task Task) error {
	return p.submit(func() {
		select {
		case <-p.serviceCtx.Done():
			logger.Debug("Detached task skipped: service shutting down",
				zap.String("pool", p.name),
			)
			return
		default:
		}
		task(p.serviceCtx)
	})
}

func (p *Pool) submit(fn func()) error {
	if err := p.pool.Submit(fn); err != nil {
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

// Shutdown waits for running tasks, then cancels the lifecycle context.
func (p *Pool) Shutdown() {
	if err := p.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Worker pool shutdown timeout",
			zap.String("pool", p.name),
			zap.Error(err),
		)
	}
	p.serviceCancel()
}

// Metrics returns pool occupancy for observability.
func (p *Pool) Metrics() map[string]int {
	return map[string]int{
		"running": p.pool.Running(),
		"free":    p.pool.Free(),
		"cap":     p.pool.Cap(),
	}
}
