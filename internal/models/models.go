package models

import (
	"time"
)

type BootMode string

const (
	BootModeUEFI   BootMode = "UEFI"
	BootModeLegacy BootMode = "Legacy"
)

func (m BootMode) Valid() bool {
	return m == BootModeUEFI || m == BootModeLegacy
}

type OverlayState string

const (
	OverlayBase   OverlayState = "base"
	OverlayActive OverlayState = "overlay_active"
)

type Client struct {
	ID              string
	HardwareAddress string
	Name            string
	NetworkAddress  string
	ImageID         *string
	Persistent      bool
	BootMode        BootMode
	PostBootScript  string
	SystemInfo      map[string]string
	Online          bool
	LastSeenAt      *time.Time
	LastBootAt      *time.Time
	LastShutdownAt  *time.Time
	CreatedAt       time.Time
}

type Token struct {
	ID         string
	ClientID   string
	Value      string
	IssuedAt   time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

type Image struct {
	ID           string
	Name         string
	Description  string
	OSVersion    string
	BlobKey      string
	OverlayKey   string
	SizeBytes    int64
	Checksum     string
	Template     bool
	Locked       bool
	OverlayState OverlayState
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

type RestorationPoint struct {
	ID          string
	ImageID     string
	Name        string
	Description string
	BlobKey     string
	Checksum    string
	SizeBytes   int64
	CreatedAt   time.Time
}

type Command struct {
	ID             string
	ClientID       string
	Type           string
	Payload        []byte
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
}

func (c *Command) Pending() bool {
	return c.AcknowledgedAt == nil
}

type Stats struct {
	ClientID   string
	RecordedAt time.Time
	CPU        float64
	MemoryMB   float64
	RxMbps     float64
	TxMbps     float64
}
