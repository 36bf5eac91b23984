package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/store"
	"github.com/EternisAI/netboot/internal/worker"
)

const (
	defaultHeartbeatInterval = 60 * time.Second
	defaultTimeoutMultiplier = 3
	minTimeoutMultiplier     = 2
)

type Config struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	TimeoutMultiplier int           `mapstructure:"timeout_multiplier"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.TimeoutMultiplier == 0 {
		c.TimeoutMultiplier = defaultTimeoutMultiplier
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = c.HeartbeatInterval
	}
	return c
}

// Validate rejects timeouts shorter than two heartbeat intervals so a
// single delayed heartbeat never flips a client offline.
func (c Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("presence.heartbeat_interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.TimeoutMultiplier < minTimeoutMultiplier {
		return fmt.Errorf("presence.timeout_multiplier must be at least %d, got %d", minTimeoutMultiplier, c.TimeoutMultiplier)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("presence.sweep_interval must be positive, got %s", c.SweepInterval)
	}
	return nil
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMultiplier) * c.HeartbeatInterval
}

// Tracker derives online/offline state from heartbeats and status reports.
// Clients that stay silent past the timeout are flipped offline by a
// periodic sweep.
type Tracker struct {
	clients store.ClientRepository
	clock   clock.Clock
	config  Config
	sweeper *worker.Periodic
}

func NewTracker(repo store.ClientRepository, clk clock.Clock, cfg Config) (*Tracker, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{}
	}
	t := &Tracker{
		clients: repo,
		clock:   clk,
		config:  cfg,
	}
	t.sweeper = worker.NewPeriodic("presence-sweep", cfg.SweepInterval, func(ctx context.Context) error {
		_, err := t.Sweep(ctx)
		return err
	})
	return t, nil
}

func (t *Tracker) Config() Config {
	return t.config
}

// Heartbeat records liveness for clientID. The hardware address must match
// the stored identity.
func (t *Tracker) Heartbeat(ctx context.Context, clientID, hardwareAddress, networkAddress string) error {
	client, err := t.clients.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrUnknownClient
		}
		return fmt.Errorf("failed to get client: %w", err)
	}

	mac, err := clients.NormalizeHardwareAddress(hardwareAddress)
	if err != nil || mac != client.HardwareAddress {
		slog.Warn("Heartbeat hardware address mismatch",
			"client_id", clientID,
			"expected", client.HardwareAddress,
			"got", hardwareAddress)
		return common.ErrIdentityMismatch
	}

	if err := t.clients.Touch(ctx, clientID, networkAddress, t.clock.Now()); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrUnknownClient
		}
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}

	if !client.Online {
		slog.Info("Client came online", "client_id", clientID, "ip", networkAddress)
	} else {
		slog.Debug("Heartbeat received", "client_id", clientID)
	}
	return nil
}

// ReportStatus sets the online flag directly, as on a boot or shutdown
// event.
func (t *Tracker) ReportStatus(ctx context.Context, clientID string, online bool, networkAddress string) error {
	if err := t.clients.SetStatus(ctx, clientID, online, networkAddress, t.clock.Now()); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrUnknownClient
		}
		return fmt.Errorf("failed to set client status: %w", err)
	}
	slog.Info("Client status reported", "client_id", clientID, "online", online)
	return nil
}

func (t *Tracker) IsOnline(ctx context.Context, clientID string) (bool, error) {
	client, err := t.clients.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, common.ErrUnknownClient
		}
		return false, fmt.Errorf("failed to get client: %w", err)
	}
	return client.Online, nil
}

// Sweep runs one timeout pass and returns how many clients went offline.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	cutoff := t.clock.Now().Add(-t.config.Timeout())
	n, err := t.clients.MarkStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale clients: %w", err)
	}
	if n > 0 {
		slog.Info("Marked silent clients offline", "count", n, "timeout", t.config.Timeout())
	}
	return n, nil
}

func (t *Tracker) Start(ctx context.Context) error {
	return t.sweeper.Start(ctx)
}

func (t *Tracker) Stop() {
	t.sweeper.Stop()
}
