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

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(3, nil)
	p.Start()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(50), n.Load())
	require.NoError(t, p.Stop(context.Background()))
	assert.Zero(t, p.Pending())
}

func TestPoolSubmitState(t *testing.T) {
	p := NewPool(1, nil)
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolNotStarted)

	p.Start()
	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolStopped)
}

func TestPoolTasksSubmitFollowUps(t *testing.T) {
	p := NewPool(1, nil)
	p.Start()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		require.NoError(t, p.Submit(func(context.Context) { close(done) }))
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("follow-up task did not run")
	}
	require.NoError(t, p.Stop(context.Background()))
}

func TestPoolStopDrainsQueue(t *testing.T) {
	p := NewPool(1, nil)
	p.Start()

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(context.Context) {
			time.Sleep(time.Millisecond)
			n.Add(1)
		}))
	}
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int32(10), n.Load())
}

func TestPoolStopCancelsOnDeadline(t *testing.T) {
	p := NewPool(1, nil)
	p.Start()

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, cancelled.Load())
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(1, nil)
	p.Start()

	var after atomic.Bool
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { after.Store(true) }))

	err := p.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, after.Load())
}
