package dto

import (
	"encoding/json"
	"time"
)

type CreateClientRequest struct {
	MacAddress     string `json:"mac_address" binding:"required"`
	Name           string `json:"name"`
	IPAddress      string `json:"ip_address"`
	Persistent     bool   `json:"persistent"`
	BootMode       string `json:"boot_mode"`
	PostBootScript string `json:"post_boot_script"`
}

type UpdateClientRequest struct {
	Name           *string `json:"name"`
	Persistent     *bool   `json:"persistent"`
	BootMode       *string `json:"boot_mode"`
	PostBootScript *string `json:"post_boot_script"`
}

type ClientResponse struct {
	ID             string            `json:"id"`
	MacAddress     string            `json:"mac_address"`
	Name           string            `json:"name"`
	IPAddress      string            `json:"ip_address"`
	ImageID        *string           `json:"image_id"`
	Persistent     bool              `json:"persistent"`
	BootMode       string            `json:"boot_mode"`
	PostBootScript string            `json:"post_boot_script"`
	SystemInfo     map[string]string `json:"system_info"`
	Online         bool              `json:"online"`
	LastSeenAt     *time.Time        `json:"last_seen_at"`
	LastBootAt     *time.Time        `json:"last_boot_at"`
	LastShutdownAt *time.Time        `json:"last_shutdown_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

type ListClientsResponse struct {
	Clients []ClientResponse `json:"clients"`
	Count   int              `json:"count"`
}

type AssignImageRequest struct {
	ImageID string `json:"image_id" binding:"required"`
}

type ReportStatusRequest struct {
	Online    *bool  `json:"online" binding:"required"`
	IPAddress string `json:"ip_address"`
}

type EnqueueCommandRequest struct {
	Type string          `json:"type" binding:"required"`
	Data json.RawMessage `json:"data"`
}

type StatsSample struct {
	RecordedAt    time.Time `json:"recorded_at"`
	CPUUsage      float64   `json:"cpu_usage"`
	MemoryUsageMB float64   `json:"memory_usage_mb"`
	NetworkRxMbps float64   `json:"network_rx_mbps"`
	NetworkTxMbps float64   `json:"network_tx_mbps"`
}

type StatsResponse struct {
	Stats []StatsSample `json:"stats"`
	Count int           `json:"count"`
}

// CreateImageRequest carries optional initial content as base64 in JSON.
type CreateImageRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	OSVersion   string `json:"os_version"`
	SizeBytes   int64  `json:"size_bytes"`
	Template    bool   `json:"template"`
	Content     []byte `json:"content"`
}

type UpdateImageRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	OSVersion   *string `json:"os_version"`
	Template    *bool   `json:"template"`
	Locked      *bool   `json:"locked"`
}

type ImageResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	OSVersion    string    `json:"os_version"`
	SizeBytes    int64     `json:"size_bytes"`
	Checksum     string    `json:"checksum"`
	Template     bool      `json:"template"`
	Locked       bool      `json:"locked"`
	OverlayState string    `json:"overlay_state"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

type ListImagesResponse struct {
	Images []ImageResponse `json:"images"`
	Count  int             `json:"count"`
}

type DisableOverlayRequest struct {
	Commit bool `json:"commit"`
}

type CloneImageRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreatePointRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type PointResponse struct {
	ID          string    `json:"id"`
	ImageID     string    `json:"image_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Checksum    string    `json:"checksum"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

type ListPointsResponse struct {
	Points []PointResponse `json:"points"`
	Count  int             `json:"count"`
}
