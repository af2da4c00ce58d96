package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	var active, peak int64
	var mu sync.Mutex

	for i := 0; i < 8; i++ {
		err := pool.Submit(context.Background(), func(ctx context.Context) error {
			n := atomic.AddInt64(&active, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			return nil
		})
		require.NoError(t, err)
	}
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(2))
	assert.Equal(t, int64(8), pool.Metrics().Completed)
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()

	err := pool.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

func TestWorkerPool_SubmitRespectsContext(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	block := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error {
		<-block
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	pool.Wait()
}

func TestWorkerPool_PanicIsContained(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error {
		panic("boom")
	}))
	pool.Wait()

	m := pool.Metrics()
	assert.Equal(t, int64(1), m.Panics)
	assert.Equal(t, int64(1), m.Failed)
}
