package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooperativePoolBoundsConcurrency(t *testing.T) {
	p := newCooperativePool(2)
	var current, max atomic.Int32
	release := make(chan struct{})

	// submit blocks once both slots are taken, so the submissions run on
	// their own goroutine until release frees the slots.
	submitted := make(chan error, 5)
	go func() {
		for i := 0; i < 5; i++ {
			submitted <- p.submit(context.Background(), func() {
				n := current.Add(1)
				for {
					old := max.Load()
					if n <= old || max.CompareAndSwap(old, n) {
						break
					}
				}
				<-release
				current.Add(-1)
			})
		}
	}()

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, max.Load(), int32(2))
	close(release)
	for i := 0; i < 5; i++ {
		require.NoError(t, <-submitted)
	}
	p.wait()
}

func TestCooperativePoolUnboundedWhenZero(t *testing.T) {
	p := newCooperativePool(0)
	var n atomic.Int32
	for i := 0; i < 20; i++ {
		err := p.submit(context.Background(), func() { n.Add(1) })
		require.NoError(t, err)
	}
	p.wait()
	assert.Equal(t, int32(20), n.Load())
}

func TestCooperativePoolRespectsContextCancellation(t *testing.T) {
	p := newCooperativePool(1)
	release := make(chan struct{})
	require.NoError(t, p.submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.submit(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	p.wait()
}

func TestBoundedPoolRunsAllWork(t *testing.T) {
	p := newBoundedPool(3)
	var n atomic.Int32
	for i := 0; i < 50; i++ {
		err := p.submit(context.Background(), func() { n.Add(1) })
		require.NoError(t, err)
	}
	p.wait()
	assert.Equal(t, int32(50), n.Load())
}

func TestBoundedPoolDefaultsToOneWorker(t *testing.T) {
	p := newBoundedPool(0)
	assert.NotNil(t, p.work)
	p.wait()
}
