// Package boot decides what each client boots and keeps the boot transport
// informed of assignment changes.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/keylock"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/EternisAI/netboot/internal/store"
)

type Event string

const (
	EventBoot     Event = "boot"
	EventShutdown Event = "shutdown"
)

var ErrInvalidEvent = errors.New("invalid boot event")

// Target is what the transport needs to serve one client.
type Target struct {
	ClientID        string              `json:"client_id"`
	HardwareAddress string              `json:"mac_address"`
	ImageID         string              `json:"image_id"`
	ImageName       string              `json:"image_name"`
	BlobKey         string              `json:"blob_key"`
	OverlayState    models.OverlayState `json:"overlay_state"`
	BootMode        models.BootMode     `json:"boot_mode"`
	Persistent      bool                `json:"persistent"`
	PostBootScript  string              `json:"post_boot_script,omitempty"`
}

type Coordinator struct {
	clients   *clients.Service
	repo      store.ClientRepository
	images    store.ImageRepository
	presence  *presence.Tracker
	transport Transport
	locks     *keylock.Locker
}

func NewCoordinator(clientService *clients.Service, repo store.ClientRepository, images store.ImageRepository, tracker *presence.Tracker, transport Transport) *Coordinator {
	if transport == nil {
		transport = LogTransport{}
	}
	return &Coordinator{
		clients:   clientService,
		repo:      repo,
		images:    images,
		presence:  tracker,
		transport: transport,
		locks:     keylock.New(),
	}
}

// ImageLocks returns the per-image locks held while an assignment is
// written. The image service picks these up so assignment and image
// mutations on the same image are serialized.
func (c *Coordinator) ImageLocks() *keylock.Locker {
	return c.locks
}

// ResolveBootTarget returns the image id hardwareAddress should boot.
func (c *Coordinator) ResolveBootTarget(ctx context.Context, hardwareAddress string) (string, error) {
	client, err := c.clients.GetClientByAddress(ctx, hardwareAddress)
	if err != nil {
		return "", err
	}
	if client.ImageID == nil {
		return "", common.ErrNoImageAssigned
	}
	return *client.ImageID, nil
}

func (c *Coordinator) BootTarget(ctx context.Context, hardwareAddress string) (*Target, error) {
	client, err := c.clients.GetClientByAddress(ctx, hardwareAddress)
	if err != nil {
		return nil, err
	}
	if client.ImageID == nil {
		return nil, common.ErrNoImageAssigned
	}
	image, err := c.images.Get(ctx, *client.ImageID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNoImageAssigned
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return newTarget(client, image), nil
}

func newTarget(client *models.Client, image *models.Image) *Target {
	return &Target{
		ClientID:        client.ID,
		HardwareAddress: client.HardwareAddress,
		ImageID:         image.ID,
		ImageName:       image.Name,
		BlobKey:         image.BlobKey,
		OverlayState:    image.OverlayState,
		BootMode:        client.BootMode,
		Persistent:      client.Persistent,
		PostBootScript:  client.PostBootScript,
	}
}

func (c *Coordinator) AssignImage(ctx context.Context, clientID, imageID string) (*models.Client, error) {
	unlock := c.locks.Lock(imageID)
	defer unlock()

	client, err := c.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	image, err := c.images.Get(ctx, imageID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	if err := c.repo.SetImage(ctx, clientID, &image.ID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnknownClient
		}
		return nil, fmt.Errorf("failed to assign image: %w", err)
	}
	client.ImageID = &image.ID

	slog.Info("Image assigned", "client_id", clientID, "image_id", imageID)
	if err := c.transport.SetTarget(ctx, *newTarget(client, image)); err != nil {
		slog.Warn("Boot transport rejected target", "client_id", clientID, "error", err)
	}
	return client, nil
}

func (c *Coordinator) ClearAssignment(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := c.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.ImageID == nil {
		return client, nil
	}
	if err := c.repo.SetImage(ctx, clientID, nil); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnknownClient
		}
		return nil, fmt.Errorf("failed to clear image assignment: %w", err)
	}
	previous := *client.ImageID
	client.ImageID = nil

	slog.Info("Image assignment cleared", "client_id", clientID, "image_id", previous)
	if err := c.transport.ClearTarget(ctx, client.HardwareAddress); err != nil {
		slog.Warn("Boot transport failed to clear target", "client_id", clientID, "error", err)
	}
	return client, nil
}

// ReportBootEvent feeds transport observations into presence.
func (c *Coordinator) ReportBootEvent(ctx context.Context, hardwareAddress string, event Event, networkAddress string) error {
	var online bool
	switch event {
	case EventBoot:
		online = true
	case EventShutdown:
		online = false
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEvent, event)
	}

	client, err := c.clients.GetClientByAddress(ctx, hardwareAddress)
	if err != nil {
		return err
	}
	return c.presence.ReportStatus(ctx, client.ID, online, networkAddress)
}

// AssignedClients counts clients assigned to imageID and how many of them
// are currently online.
func (c *Coordinator) AssignedClients(ctx context.Context, imageID string) (int, int, error) {
	assigned, err := c.repo.ListByImage(ctx, imageID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list assigned clients: %w", err)
	}
	online := 0
	for _, client := range assigned {
		up, err := c.presence.IsOnline(ctx, client.ID)
		if err != nil {
			if errors.Is(err, common.ErrUnknownClient) {
				continue
			}
			return 0, 0, err
		}
		if up {
			online++
		}
	}
	return len(assigned), online, nil
}
