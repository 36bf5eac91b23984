package boot

import (
	"context"
	"log/slog"
)

// Transport is the DHCP/TFTP side of network boot. It is told which image
// each hardware address should receive.
type Transport interface {
	SetTarget(ctx context.Context, target Target) error
	ClearTarget(ctx context.Context, hardwareAddress string) error
}

// LogTransport records assignment changes in the log. Deployments whose
// transport polls GET /api/v1/boot/targets/:mac need nothing more.
type LogTransport struct{}

func (LogTransport) SetTarget(_ context.Context, target Target) error {
	slog.Info("Boot target set",
		"hardware_address", target.HardwareAddress,
		"image_id", target.ImageID,
		"boot_mode", target.BootMode)
	return nil
}

func (LogTransport) ClearTarget(_ context.Context, hardwareAddress string) error {
	slog.Info("Boot target cleared", "hardware_address", hardwareAddress)
	return nil
}
