package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"fieldops.io/fieldops/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestPool_SubmitDetached(t *testing.T) {
	pool, err := NewPool(context.Background(), "test", 10)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	defer pool.Shutdown()

	var executed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	err = pool.SubmitDetached(func(ctx context.Context) {
		executed.Store(true)
		wg.Done()
	})
	if err != nil {
		t.Fatalf("SubmitDetached() error = %v", err)
	}

	wg.Wait()
	if !executed.Load() {
		t.Error("Task was not executed")
	}
}

func TestPool_SubmitDetached_CancelledService(t *testing.T) {
	serviceCtx, cancel := context.WithCancel(context.Background())
	pool, err := NewPool(serviceCtx, "test", 2)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	cancel()

	var executed atomic.Bool
	err = pool.SubmitDetached(func(ctx context.Context) {
		executed.Store(true)
	})
	if err != nil {
		t.Fatalf("SubmitDetached() error = %v", err)
	}
	pool.Shutdown()

	if executed.Load() {
		t.Error("Task should not execute once the service context is cancelled")
	}
}

func TestPool_SubmitDetached_OutlivesCaller(t *testing.T) {
	pool, err := NewPool(context.Background(), "test", 2)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	var gotErr error
	var wg sync.WaitGroup
	wg.Add(1)
	err = pool.SubmitDetached(func(ctx context.Context) {
		defer wg.Done()
		<-reqCtx.Done()
		gotErr = ctx.Err()
	})
	if err != nil {
		t.Fatalf("SubmitDetached() error = %v", err)
	}
	cancel()
	wg.Wait()
	pool.Shutdown()

	if gotErr != nil {
		t.Errorf("detached task context err = %v, want nil after request cancel", gotErr)
	}
}

func TestPool_ClosedAndMetrics(t *testing.T) {
	pool, err := NewPool(context.Background(), "test", 5)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if got := pool.Metrics()["cap"]; got != 5 {
		t.Errorf("cap = %d, want 5", got)
	}

	pool.Shutdown()
	err = pool.SubmitDetached(func(context.Context) {})
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("SubmitDetached after Shutdown error = %v, want ErrPoolClosed", err)
	}
}
