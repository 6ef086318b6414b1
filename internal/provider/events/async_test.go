package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldops.io/fieldops/internal/notification"
	"fieldops.io/fieldops/internal/notification/notificationtest"
	"fieldops.io/fieldops/internal/pkg/worker"
)

// inlinePool runs detached tasks synchronously.
type inlinePool struct{ err error }

func (p inlinePool) SubmitDetached(task worker.Task) error {
	if p.err != nil {
		return p.err
	}
	task(context.Background())
	return nil
}

func TestAsync_PublishCreated(t *testing.T) {
	inner := &notificationtest.Publisher{}
	a := NewAsync(inner, inlinePool{}, time.Second)

	require.NoError(t, a.PublishCreated(context.Background(), "run-1", []notification.Notification{{ID: 1}}))
	require.Len(t, inner.Batches, 1)

	require.NoError(t, a.PublishCreated(context.Background(), "run-2", nil))
	assert.Len(t, inner.Batches, 1, "empty batches are not queued")
}

func TestAsync_InnerFailureIsSwallowed(t *testing.T) {
	inner := &notificationtest.Publisher{Err: errors.New("broker down")}
	a := NewAsync(inner, inlinePool{}, time.Second)
	assert.NoError(t, a.PublishCreated(context.Background(), "run", []notification.Notification{{ID: 1}}))
}

func TestAsync_PoolClosed(t *testing.T) {
	a := NewAsync(Noop{}, inlinePool{err: worker.ErrPoolClosed}, time.Second)
	err := a.PublishCreated(context.Background(), "run", []notification.Notification{{ID: 1}})
	assert.ErrorIs(t, err, worker.ErrPoolClosed)
}

func TestAsync_WithWorkerPool(t *testing.T) {
	pool, err := worker.NewPool(context.Background(), "events", 1)
	require.NoError(t, err)

	inner := &notificationtest.Publisher{}
	a := NewAsync(inner, pool, time.Second)
	require.NoError(t, a.PublishCreated(context.Background(), "run", []notification.Notification{{ID: 7}}))

	pool.Shutdown()
	require.Len(t, inner.Batches, 1)
	assert.Equal(t, int64(7), inner.Batches[0][0].ID)
}
