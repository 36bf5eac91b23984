package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// maxExecuted bounds the remembered command IDs. Delivery is at-least-once
// so only recent IDs can come back.
const maxExecuted = 256

// Settings are the server-pushed knobs, in seconds.
type Settings struct {
	ServerURL           string `yaml:"server_url"`
	AutoLogin           bool   `yaml:"auto_login"`
	MonitoringInterval  int    `yaml:"monitoring_interval"`
	HeartbeatInterval   int    `yaml:"heartbeat_interval"`
	CommandPollInterval int    `yaml:"command_poll_interval"`
}

type State struct {
	ClientID  string   `yaml:"client_id"`
	AuthToken string   `yaml:"auth_token"`
	Settings  Settings `yaml:"settings"`
	Executed  []string `yaml:"executed"`
}

// LoadState returns an empty state when path does not exist.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the state through a temp file so a crash never leaves a
// truncated file behind.
func (s *State) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (s *State) executed(id string) bool {
	return slices.Contains(s.Executed, id)
}

func (s *State) markExecuted(id string) {
	if s.executed(id) {
		return
	}
	s.Executed = append(s.Executed, id)
	if over := len(s.Executed) - maxExecuted; over > 0 {
		s.Executed = slices.Delete(s.Executed, 0, over)
	}
}

func (s *State) unmarkExecuted(id string) {
	s.Executed = slices.DeleteFunc(s.Executed, func(v string) bool { return v == id })
}
