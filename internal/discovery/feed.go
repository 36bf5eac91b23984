// Package discovery watches the local network for machines and hands newly
// observed hardware/network address pairs to a sink.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/EternisAI/netboot/internal/worker"
)

const defaultInterval = 30 * time.Second

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	ARPTable      string        `mapstructure:"arp_table"`
	Subnet        string        `mapstructure:"subnet"`
	AutoProvision bool          `mapstructure:"auto_provision"`
}

type Observation struct {
	HardwareAddress string
	NetworkAddress  string
}

type Source interface {
	Observe(ctx context.Context) ([]Observation, error)
}

// Sink receives observations on the feed goroutine. An error leaves the
// observation unseen so the next pass offers it again.
type Sink func(ctx context.Context, obs Observation) error

// Feed polls a Source and forwards every hardware address it has not seen
// before, or whose network address changed.
type Feed struct {
	source Source
	sink   Sink
	task   *worker.Periodic

	mu   sync.Mutex
	seen map[string]string
}

func NewFeed(source Source, sink Sink, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = defaultInterval
	}
	f := &Feed{
		source: source,
		sink:   sink,
		seen:   make(map[string]string),
	}
	f.task = worker.NewPeriodic("discovery", interval, func(ctx context.Context) error {
		_, err := f.Poll(ctx)
		return err
	})
	return f
}

// Poll runs one discovery pass and returns how many observations were
// delivered.
func (f *Feed) Poll(ctx context.Context) (int, error) {
	observations, err := f.source.Observe(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to observe network: %w", err)
	}

	delivered := 0
	for _, obs := range observations {
		f.mu.Lock()
		ip, known := f.seen[obs.HardwareAddress]
		f.mu.Unlock()
		if known && ip == obs.NetworkAddress {
			continue
		}

		if err := f.sink(ctx, obs); err != nil {
			slog.Warn("Discovery sink failed",
				"hardware_address", obs.HardwareAddress,
				"ip", obs.NetworkAddress,
				"error", err)
			continue
		}

		f.mu.Lock()
		f.seen[obs.HardwareAddress] = obs.NetworkAddress
		f.mu.Unlock()
		delivered++
	}

	if delivered > 0 {
		slog.Debug("Discovery pass complete", "observed", len(observations), "delivered", delivered)
	}
	return delivered, nil
}

func (f *Feed) Start(ctx context.Context) error {
	return f.task.Start(ctx)
}

// Stop waits up to timeout for an in-flight pass. Zero waits indefinitely.
func (f *Feed) Stop(timeout time.Duration) error {
	return f.task.StopWithTimeout(timeout)
}

// StaticSource reports a fixed set of observations.
type StaticSource []Observation

func (s StaticSource) Observe(context.Context) ([]Observation, error) {
	return append([]Observation(nil), s...), nil
}
