package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/EternisAI/netboot/internal/common"
)

type Kind string

const (
	KindReboot              Kind = "reboot"
	KindShutdown            Kind = "shutdown"
	KindLaunchApplication   Kind = "launch_application"
	KindUpdateConfiguration Kind = "update_configuration"
)

// Command is the closed set of instructions a client can receive. The
// unexported method keeps other packages from adding variants.
type Command interface {
	Kind() Kind
	Validate() error
	sealed()
}

type Reboot struct{}

func (Reboot) Kind() Kind      { return KindReboot }
func (Reboot) Validate() error { return nil }
func (Reboot) sealed()         {}

type Shutdown struct{}

func (Shutdown) Kind() Kind      { return KindShutdown }
func (Shutdown) Validate() error { return nil }
func (Shutdown) sealed()         {}

type LaunchApplication struct {
	Path string `json:"app_path"`
}

func (LaunchApplication) Kind() Kind { return KindLaunchApplication }
func (LaunchApplication) sealed()    {}

func (c LaunchApplication) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: launch_application requires app_path", common.ErrInvalidCommand)
	}
	return nil
}

// UpdateConfiguration carries the agent settings to change. Nil fields are
// left as they are.
type UpdateConfiguration struct {
	ServerURL           *string `json:"server_url,omitempty"`
	AutoLogin           *bool   `json:"auto_login,omitempty"`
	MonitoringInterval  *int    `json:"monitoring_interval,omitempty"`
	HeartbeatInterval   *int    `json:"heartbeat_interval,omitempty"`
	CommandPollInterval *int    `json:"command_poll_interval,omitempty"`
}

func (UpdateConfiguration) Kind() Kind { return KindUpdateConfiguration }
func (UpdateConfiguration) sealed()    {}

func (c UpdateConfiguration) Validate() error {
	if c.ServerURL == nil && c.AutoLogin == nil && c.MonitoringInterval == nil &&
		c.HeartbeatInterval == nil && c.CommandPollInterval == nil {
		return fmt.Errorf("%w: update_configuration has no fields", common.ErrInvalidCommand)
	}
	if c.ServerURL != nil {
		u, err := url.Parse(*c.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: server_url must be an http(s) URL", common.ErrInvalidCommand)
		}
	}
	for name, v := range map[string]*int{
		"monitoring_interval":   c.MonitoringInterval,
		"heartbeat_interval":    c.HeartbeatInterval,
		"command_poll_interval": c.CommandPollInterval,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%w: %s must be positive seconds", common.ErrInvalidCommand, name)
		}
	}
	return nil
}

// Encode validates cmd and returns its wire payload.
func Encode(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", common.ErrInvalidCommand)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", cmd.Kind(), err)
	}
	return payload, nil
}

// Decode parses a wire payload for kind. Unknown kinds and fields are
// rejected so a malformed command never reaches the queue.
func Decode(kind string, payload []byte) (Command, error) {
	var cmd Command
	switch Kind(kind) {
	case KindReboot:
		cmd = &Reboot{}
	case KindShutdown:
		cmd = &Shutdown{}
	case KindLaunchApplication:
		cmd = &LaunchApplication{}
	case KindUpdateConfiguration:
		cmd = &UpdateConfiguration{}
	default:
		return nil, fmt.Errorf("%w: unknown command type %q", common.ErrInvalidCommand, kind)
	}

	if len(bytes.TrimSpace(payload)) > 0 && !bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cmd); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", common.ErrInvalidCommand, kind, err)
		}
	}

	cmd = deref(cmd)
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func deref(cmd Command) Command {
	switch c := cmd.(type) {
	case *Reboot:
		return *c
	case *Shutdown:
		return *c
	case *LaunchApplication:
		return *c
	case *UpdateConfiguration:
		return *c
	}
	return cmd
}
