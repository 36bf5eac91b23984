package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("task already running")
	ErrStopTimeout    = errors.New("timed out waiting for task to stop")
)

// Periodic runs fn every interval on its own goroutine until stopped.
// Stopping never interrupts a pass that has already started: the pass runs
// on a context detached from cancellation and the loop exits after it.
type Periodic struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPeriodic(name string, interval time.Duration, fn func(ctx context.Context) error) *Periodic {
	return &Periodic{
		name:     name,
		interval: interval,
		fn:       fn,
	}
}

func (p *Periodic) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(loopCtx, p.done)

	slog.Info("Periodic task started", "task", p.name, "interval", p.interval)
	return nil
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.fn(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Periodic task pass failed", "task", p.name, "error", err)
			}
		}
	}
}

// RunOnce executes a single pass on the caller's goroutine.
func (p *Periodic) RunOnce(ctx context.Context) error {
	return p.fn(ctx)
}

func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

// Stop signals the loop and waits for any in-flight pass to finish.
func (p *Periodic) Stop() {
	_ = p.StopWithTimeout(0)
}

// StopWithTimeout is Stop with a bound on the wait. A zero timeout waits
// indefinitely.
func (p *Periodic) StopWithTimeout(timeout time.Duration) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	if timeout <= 0 {
		<-done
		slog.Info("Periodic task stopped", "task", p.name)
		return nil
	}

	select {
	case <-done:
		slog.Info("Periodic task stopped", "task", p.name)
		return nil
	case <-time.After(timeout):
		slog.Warn("Periodic task stop timed out", "task", p.name, "timeout", timeout)
		return ErrStopTimeout
	}
}
