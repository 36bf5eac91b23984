package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicRunsUntilStopped(t *testing.T) {
	var runs int32
	p := NewPeriodic("test", 5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())

	after := atomic.LoadInt32(&runs)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&runs))
}

func TestPeriodicStopLetsInFlightPassFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished, sawCancel atomic.Bool

	p := NewPeriodic("slow", time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
			return nil
		}
		<-release
		sawCancel.Store(ctx.Err() != nil)
		finished.Store(true)
		return nil
	})
	require.NoError(t, p.Start(context.Background()))
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight pass finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-stopped
	assert.True(t, finished.Load())
	assert.False(t, sawCancel.Load(), "in-flight pass must not observe cancellation")
}

func TestPeriodicStopWithTimeout(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	p := NewPeriodic("stuck", time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
			<-release
		default:
		}
		return nil
	})
	require.NoError(t, p.Start(context.Background()))
	<-started

	err := p.StopWithTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrStopTimeout)
	close(release)
}

func TestPeriodicStopWithoutStart(t *testing.T) {
	p := NewPeriodic("idle", time.Second, func(ctx context.Context) error { return nil })
	assert.NoError(t, p.StopWithTimeout(time.Millisecond))
}

func TestPeriodicRunOnce(t *testing.T) {
	wantErr := errors.New("boom")
	p := NewPeriodic("once", time.Hour, func(ctx context.Context) error { return wantErr })
	assert.ErrorIs(t, p.RunOnce(context.Background()), wantErr)
}

func TestPeriodicParentCancelStopsLoop(t *testing.T) {
	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPeriodic("parent", 2*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	require.NoError(t, p.Start(ctx))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, time.Millisecond)

	cancel()
	p.Stop()
}
