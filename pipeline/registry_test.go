package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lateralhq/lateral/core"
)

func TestRegistryTrackAndFinish(t *testing.T) {
	registry := NewRegistry()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	finish := registry.track(core.ID(1), cancel)
	assert.True(t, registry.Running(core.ID(1)))
	assert.Equal(t, 1, registry.Len())

	finish()
	assert.False(t, registry.Running(core.ID(1)))
	assert.Equal(t, 0, registry.Len())
}

func TestRegistryCancelAndWaitNoRun(t *testing.T) {
	registry := NewRegistry()

	done := make(chan struct{})
	go func() {
		registry.CancelAndWait(core.ID(42))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CancelAndWait should return immediately for unknown items")
	}
}

func TestRegistryCancelAndWaitBlocksUntilFinish(t *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	finish := registry.track(core.ID(7), cancel)

	var stopped atomic.Bool
	go func() {
		<-ctx.Done()
		// Simulate the run winding down after cancellation
		time.Sleep(20 * time.Millisecond)
		stopped.Store(true)
		finish()
	}()

	registry.CancelAndWait(core.ID(7))
	require.True(t, stopped.Load(), "CancelAndWait returned before the run stopped")
	assert.False(t, registry.Running(core.ID(7)))
}

func TestRegistryReplacedRunFinishKeepsNewEntry(t *testing.T) {
	registry := NewRegistry()
	_, cancelOld := context.WithCancel(context.Background())
	_, cancelNew := context.WithCancel(context.Background())
	defer cancelOld()
	defer cancelNew()

	finishOld := registry.track(core.ID(3), cancelOld)
	finishNew := registry.track(core.ID(3), cancelNew)

	// The stale run finishing must not unregister the replacement
	finishOld()
	assert.True(t, registry.Running(core.ID(3)))

	finishNew()
	assert.False(t, registry.Running(core.ID(3)))
}

func TestRegistryCancelAndWaitAll(t *testing.T) {
	registry := NewRegistry()

	var finished atomic.Int32
	for i := 1; i <= 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		finish := registry.track(core.ID(i), cancel)
		go func() {
			<-ctx.Done()
			finished.Add(1)
			finish()
		}()
	}

	registry.CancelAndWaitAll()
	assert.Equal(t, int32(5), finished.Load())
	assert.Equal(t, 0, registry.Len())
}
