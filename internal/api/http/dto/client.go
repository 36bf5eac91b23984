package dto

import (
	"encoding/json"
	"time"
)

type RegisterRequest struct {
	MacAddress string            `json:"mac_address" binding:"required"`
	Hostname   string            `json:"hostname"`
	IPAddress  string            `json:"ip_address"`
	Platform   string            `json:"platform"`
	OSVersion  string            `json:"os_version"`
	SystemInfo map[string]string `json:"system_info"`
}

// AgentConfig is the runtime configuration handed to a client on
// registration. Intervals are in seconds.
type AgentConfig struct {
	ServerURL           string `json:"server_url"`
	AutoLogin           bool   `json:"auto_login"`
	MonitoringInterval  int    `json:"monitoring_interval"`
	HeartbeatInterval   int    `json:"heartbeat_interval"`
	CommandPollInterval int    `json:"command_poll_interval"`
}

type RegisterResponse struct {
	ClientID  string      `json:"client_id"`
	AuthToken string      `json:"auth_token"`
	Config    AgentConfig `json:"config"`
}

type HeartbeatRequest struct {
	ClientID   string `json:"client_id" binding:"required"`
	MacAddress string `json:"mac_address" binding:"required"`
	IPAddress  string `json:"ip_address"`
}

type StatsRequest struct {
	ClientID      string  `json:"client_id" binding:"required"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
	NetworkRxMbps float64 `json:"network_rx_mbps"`
	NetworkTxMbps float64 `json:"network_tx_mbps"`
}

type CommandResponse struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	CreatedAt      time.Time       `json:"created_at"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
}

type CommandsResponse struct {
	Commands []CommandResponse `json:"commands"`
}

type AckRequest struct {
	ClientID string `json:"client_id" binding:"required"`
}
