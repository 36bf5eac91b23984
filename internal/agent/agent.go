// Package agent is the process running on each fleet machine. It registers
// with the server, keeps its presence alive, reports usage and executes the
// commands queued for it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/commands"
)

const (
	defaultHeartbeat   = 60 * time.Second
	defaultMonitoring  = 30 * time.Second
	defaultCommandPoll = 10 * time.Second
)

type Config struct {
	ServerURL      string        `mapstructure:"url"`
	StateFile      string        `mapstructure:"state_file"`
	Interface      string        `mapstructure:"interface"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

type Agent struct {
	config    Config
	api       *apiClient
	collector Collector
	executor  Executor

	mu       sync.Mutex
	state    *State
	identity *Identity
}

func New(cfg Config, collector Collector, executor Executor) (*Agent, error) {
	if cfg.StateFile == "" {
		return nil, errors.New("agent.state_file is required")
	}
	state, err := LoadState(cfg.StateFile)
	if err != nil {
		return nil, err
	}

	serverURL := cfg.ServerURL
	if state.Settings.ServerURL != "" {
		serverURL = state.Settings.ServerURL
	}
	if serverURL == "" {
		return nil, errors.New("server.url is required")
	}

	a := &Agent{
		config:    cfg,
		api:       newAPIClient(serverURL, cfg.RequestTimeout, newRetrier(cfg.Retry)),
		collector: collector,
		executor:  executor,
		state:     state,
	}
	a.api.setToken(state.AuthToken)
	return a, nil
}

func (a *Agent) ClientID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.ClientID
}

func (a *Agent) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Settings
}

func (a *Agent) ensureIdentity(ctx context.Context) (*Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.identity != nil {
		return a.identity, nil
	}
	id, err := a.collector.Identity(ctx, a.config.Interface)
	if err != nil {
		return nil, fmt.Errorf("failed to identify machine: %w", err)
	}
	a.identity = id
	return id, nil
}

// Register binds this machine to its provisioned record and stores the
// returned token and settings.
func (a *Agent) Register(ctx context.Context) error {
	id, err := a.ensureIdentity(ctx)
	if err != nil {
		return err
	}

	resp, err := a.api.register(ctx, dto.RegisterRequest{
		MacAddress: id.HardwareAddress,
		Hostname:   id.Hostname,
		IPAddress:  id.NetworkAddress,
		Platform:   id.Platform,
		OSVersion:  id.OSVersion,
		SystemInfo: id.Info,
	})
	if err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	a.mu.Lock()
	a.state.ClientID = resp.ClientID
	a.state.AuthToken = resp.AuthToken
	a.state.Settings = Settings{
		ServerURL:           resp.Config.ServerURL,
		AutoLogin:           resp.Config.AutoLogin,
		MonitoringInterval:  resp.Config.MonitoringInterval,
		HeartbeatInterval:   resp.Config.HeartbeatInterval,
		CommandPollInterval: resp.Config.CommandPollInterval,
	}
	err = a.state.Save(a.config.StateFile)
	a.mu.Unlock()

	a.api.setToken(resp.AuthToken)
	if resp.Config.ServerURL != "" {
		a.api.setBaseURL(resp.Config.ServerURL)
	}
	if err != nil {
		return err
	}

	slog.Info("Registered with server", "client_id", resp.ClientID, "hardware_address", id.HardwareAddress)
	return nil
}

// authed runs fn and registers again once when the token was rejected.
func (a *Agent) authed(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}
	slog.Warn("Token rejected, registering again")
	if err := a.Register(ctx); err != nil {
		return err
	}
	return fn()
}

func (a *Agent) Heartbeat(ctx context.Context) error {
	id, err := a.ensureIdentity(ctx)
	if err != nil {
		return err
	}
	return a.authed(ctx, func() error {
		return a.api.heartbeat(ctx, dto.HeartbeatRequest{
			ClientID:   a.ClientID(),
			MacAddress: id.HardwareAddress,
			IPAddress:  id.NetworkAddress,
		})
	})
}

func (a *Agent) ReportStats(ctx context.Context) error {
	sample, err := a.collector.Sample(ctx)
	if err != nil {
		return err
	}
	return a.authed(ctx, func() error {
		return a.api.stats(ctx, dto.StatsRequest{
			ClientID:      a.ClientID(),
			CPUUsage:      sample.CPUPercent,
			MemoryUsageMB: sample.MemoryUsedMB,
			NetworkRxMbps: sample.NetworkRxMbps,
			NetworkTxMbps: sample.NetworkTxMbps,
		})
	})
}

// PollCommands fetches pending commands, executes the ones not seen before
// and acknowledges each after it ran. It returns how many were executed.
func (a *Agent) PollCommands(ctx context.Context) (int, error) {
	var pending []dto.CommandResponse
	err := a.authed(ctx, func() error {
		var err error
		pending, err = a.api.commands(ctx, a.ClientID())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to poll commands: %w", err)
	}

	executed := 0
	for _, cmd := range pending {
		ran, err := a.handle(ctx, cmd)
		if err != nil {
			slog.Error("Command failed", "command_id", cmd.ID, "type", cmd.Type, "error", err)
			continue
		}
		if ran {
			executed++
		}
		if err := a.api.ack(ctx, cmd.ID, a.ClientID()); err != nil {
			slog.Warn("Failed to acknowledge command", "command_id", cmd.ID, "error", err)
		}
	}
	return executed, nil
}

// handle reports false for an ID already executed, which only needs its
// acknowledgement repeated.
func (a *Agent) handle(ctx context.Context, wire dto.CommandResponse) (bool, error) {
	a.mu.Lock()
	seen := a.state.executed(wire.ID)
	a.mu.Unlock()
	if seen {
		slog.Debug("Skipping command already executed", "command_id", wire.ID)
		return false, nil
	}

	cmd, err := commands.Decode(wire.Type, wire.Data)
	if err != nil {
		return false, err
	}

	// Recorded before running so a reboot never replays the same command.
	if err := a.remember(wire.ID); err != nil {
		return false, err
	}

	slog.Info("Executing command", "command_id", wire.ID, "type", wire.Type)
	if err := a.execute(ctx, cmd); err != nil {
		a.forget(wire.ID)
		return false, err
	}
	return true, nil
}

func (a *Agent) execute(ctx context.Context, cmd commands.Command) error {
	switch c := cmd.(type) {
	case commands.Reboot:
		return a.executor.Reboot(ctx)
	case commands.Shutdown:
		return a.executor.Shutdown(ctx)
	case commands.LaunchApplication:
		return a.executor.Launch(ctx, c.Path)
	case commands.UpdateConfiguration:
		return a.applySettings(c)
	default:
		return fmt.Errorf("unsupported command %s", cmd.Kind())
	}
}

func (a *Agent) applySettings(c commands.UpdateConfiguration) error {
	a.mu.Lock()
	s := &a.state.Settings
	if c.ServerURL != nil {
		s.ServerURL = *c.ServerURL
	}
	if c.AutoLogin != nil {
		s.AutoLogin = *c.AutoLogin
	}
	if c.MonitoringInterval != nil {
		s.MonitoringInterval = *c.MonitoringInterval
	}
	if c.HeartbeatInterval != nil {
		s.HeartbeatInterval = *c.HeartbeatInterval
	}
	if c.CommandPollInterval != nil {
		s.CommandPollInterval = *c.CommandPollInterval
	}
	updated := *s
	err := a.state.Save(a.config.StateFile)
	a.mu.Unlock()

	if c.ServerURL != nil {
		a.api.setBaseURL(updated.ServerURL)
	}
	if err != nil {
		return err
	}
	slog.Info("Configuration updated",
		"server_url", updated.ServerURL,
		"heartbeat_interval", updated.HeartbeatInterval,
		"monitoring_interval", updated.MonitoringInterval,
		"command_poll_interval", updated.CommandPollInterval)
	return nil
}

func (a *Agent) remember(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.markExecuted(id)
	return a.state.Save(a.config.StateFile)
}

func (a *Agent) forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.unmarkExecuted(id)
	if err := a.state.Save(a.config.StateFile); err != nil {
		slog.Warn("Failed to save state", "error", err)
	}
}

func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

// Run registers when no identity is stored and then drives the heartbeat,
// stats and command loops until ctx ends. Intervals are re-read every
// cycle so update_configuration takes effect without a restart.
func (a *Agent) Run(ctx context.Context) error {
	if a.ClientID() == "" {
		if err := a.Register(ctx); err != nil {
			return err
		}
	}

	loops := []struct {
		name     string
		interval func() time.Duration
		fn       func(context.Context) error
	}{
		{"heartbeat", func() time.Duration { return seconds(a.Settings().HeartbeatInterval, defaultHeartbeat) }, a.Heartbeat},
		{"stats", func() time.Duration { return seconds(a.Settings().MonitoringInterval, defaultMonitoring) }, a.ReportStats},
		{"commands", func() time.Duration { return seconds(a.Settings().CommandPollInterval, defaultCommandPoll) }, func(ctx context.Context) error {
			_, err := a.PollCommands(ctx)
			return err
		}},
	}

	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.loop(ctx, l.name, l.interval, l.fn)
		}()
	}

	slog.Info("Agent running", "client_id", a.ClientID())
	<-ctx.Done()
	wg.Wait()
	slog.Info("Agent stopped")
	return nil
}

func (a *Agent) loop(ctx context.Context, name string, interval func() time.Duration, fn func(context.Context) error) {
	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Agent task failed", "task", name, "error", err)
		}
		timer := time.NewTimer(interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
