package clients

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/store"
	"github.com/google/uuid"
)

const (
	tokenPrefix = "nbt_"
	tokenLength = 32 // 32 bytes = 256 bits

	autoDiscoveredName = "Auto-discovered client (%s)"
)

var (
	ErrInvalidHardwareAddress = errors.New("invalid hardware address")
	ErrInvalidBootMode        = errors.New("invalid boot mode")
)

type Service struct {
	store *store.Store
	clock clock.Clock
}

func NewService(st *store.Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		store: st,
		clock: clk,
	}
}

// NormalizeHardwareAddress returns the lowercase colon-separated form of a
// 48-bit MAC address. Dash and dot notations are accepted.
func NormalizeHardwareAddress(address string) (string, error) {
	hw, err := net.ParseMAC(address)
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHardwareAddress, address)
	}
	return hw.String(), nil
}

// GenerateToken creates a new opaque bearer token with crypto/rand.
func GenerateToken() (string, error) {
	bytes := make([]byte, tokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(bytes), nil
}

type CreateInput struct {
	HardwareAddress string
	Name            string
	NetworkAddress  string
	Persistent      bool
	BootMode        models.BootMode
	PostBootScript  string
}

func (s *Service) CreateClient(ctx context.Context, in CreateInput) (*models.Client, error) {
	mac, err := NormalizeHardwareAddress(in.HardwareAddress)
	if err != nil {
		return nil, err
	}
	bootMode := in.BootMode
	if bootMode == "" {
		bootMode = models.BootModeUEFI
	}
	if !bootMode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBootMode, bootMode)
	}
	name := in.Name
	if name == "" {
		name = mac
	}

	client := &models.Client{
		ID:              uuid.New().String(),
		HardwareAddress: mac,
		Name:            name,
		NetworkAddress:  in.NetworkAddress,
		Persistent:      in.Persistent,
		BootMode:        bootMode,
		PostBootScript:  in.PostBootScript,
		SystemInfo:      map[string]string{},
		CreatedAt:       s.clock.Now(),
	}
	if err := s.store.Clients.Create(ctx, client); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	slog.Info("Client created", "client_id", client.ID, "hardware_address", mac, "name", name)
	return client, nil
}

// Provision creates a record for a hardware address observed on the
// network. Known addresses are left untouched and report false.
func (s *Service) Provision(ctx context.Context, hardwareAddress, networkAddress string) (bool, error) {
	mac, err := NormalizeHardwareAddress(hardwareAddress)
	if err != nil {
		return false, err
	}
	if _, err := s.store.Clients.GetByHardwareAddress(ctx, mac); err == nil {
		return false, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return false, fmt.Errorf("failed to look up client: %w", err)
	}

	now := s.clock.Now()
	client := &models.Client{
		ID:              uuid.New().String(),
		HardwareAddress: mac,
		Name:            fmt.Sprintf(autoDiscoveredName, mac),
		NetworkAddress:  networkAddress,
		BootMode:        models.BootModeUEFI,
		SystemInfo:      map[string]string{},
		Online:          true,
		LastSeenAt:      &now,
		CreatedAt:       now,
	}
	if err := s.store.Clients.Create(ctx, client); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create discovered client: %w", err)
	}

	slog.Info("Auto-provisioned discovered client", "client_id", client.ID, "hardware_address", mac, "ip", networkAddress)
	return true, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (*models.Client, error) {
	client, err := s.store.Clients.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnknownClient
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

func (s *Service) GetClientByAddress(ctx context.Context, hardwareAddress string) (*models.Client, error) {
	mac, err := NormalizeHardwareAddress(hardwareAddress)
	if err != nil {
		return nil, common.ErrNotProvisioned
	}
	client, err := s.store.Clients.GetByHardwareAddress(ctx, mac)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotProvisioned
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]*models.Client, error) {
	clients, err := s.store.Clients.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

type UpdateInput struct {
	Name           *string
	Persistent     *bool
	BootMode       *models.BootMode
	PostBootScript *string
}

func (s *Service) UpdateClient(ctx context.Context, id string, in UpdateInput) (*models.Client, error) {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil && *in.Name != "" {
		client.Name = *in.Name
	}
	if in.Persistent != nil {
		client.Persistent = *in.Persistent
	}
	if in.BootMode != nil {
		if !in.BootMode.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBootMode, *in.BootMode)
		}
		client.BootMode = *in.BootMode
	}
	if in.PostBootScript != nil {
		client.PostBootScript = *in.PostBootScript
	}

	if err := s.store.Clients.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return client, nil
}

// DeleteClient removes a client with its tokens, commands and stats. An
// assigned image is a live reference and must be cleared first.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return err
	}
	if client.ImageID != nil {
		return common.ErrInUse
	}

	if err := s.store.Tokens.DeleteByClient(ctx, id); err != nil {
		return fmt.Errorf("failed to delete client tokens: %w", err)
	}
	if err := s.store.Commands.DeleteByClient(ctx, id); err != nil {
		return fmt.Errorf("failed to delete client commands: %w", err)
	}
	if err := s.store.Stats.DeleteByClient(ctx, id); err != nil {
		return fmt.Errorf("failed to delete client stats: %w", err)
	}
	if err := s.store.Clients.Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrUnknownClient
		}
		return fmt.Errorf("failed to delete client: %w", err)
	}

	slog.Info("Client deleted", "client_id", id, "hardware_address", client.HardwareAddress)
	return nil
}

type RegisterInput struct {
	Hostname       string
	NetworkAddress string
	SystemInfo     map[string]string
}

type RegisterResult struct {
	Client *models.Client
	Token  string
}

// Register binds a booted machine to its provisioned identity. The live
// token is reused so repeated registrations hand back the same secret.
func (s *Service) Register(ctx context.Context, hardwareAddress string, in RegisterInput) (*RegisterResult, error) {
	client, err := s.GetClientByAddress(ctx, hardwareAddress)
	if err != nil {
		if errors.Is(err, common.ErrNotProvisioned) {
			slog.Warn("Registration from unprovisioned hardware address", "hardware_address", hardwareAddress)
		}
		return nil, err
	}

	now := s.clock.Now()
	client.Online = true
	client.LastSeenAt = &now
	client.LastBootAt = &now
	if in.NetworkAddress != "" {
		client.NetworkAddress = in.NetworkAddress
	}
	if client.SystemInfo == nil {
		client.SystemInfo = map[string]string{}
	}
	for k, v := range in.SystemInfo {
		client.SystemInfo[k] = v
	}
	if in.Hostname != "" {
		client.SystemInfo["hostname"] = in.Hostname
	}
	if err := s.store.Clients.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	token, err := s.liveToken(ctx, client.ID, now)
	if err != nil {
		return nil, err
	}

	slog.Info("Client registered", "client_id", client.ID, "hardware_address", client.HardwareAddress, "ip", client.NetworkAddress)
	return &RegisterResult{Client: client, Token: token.Value}, nil
}

func (s *Service) liveToken(ctx context.Context, clientID string, now time.Time) (*models.Token, error) {
	token, err := s.store.Tokens.GetActive(ctx, clientID)
	if err == nil {
		if err := s.store.Tokens.Touch(ctx, token.ID, now); err != nil {
			return nil, fmt.Errorf("failed to touch token: %w", err)
		}
		return token, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	value, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	token = &models.Token{
		ID:         uuid.New().String(),
		ClientID:   clientID,
		Value:      value,
		IssuedAt:   now,
		LastUsedAt: &now,
	}
	if err := s.store.Tokens.Create(ctx, token); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			// A concurrent registration won the insert; hand back its token.
			return s.store.Tokens.GetActive(ctx, clientID)
		}
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	slog.Info("Issued client token", "client_id", clientID)
	return token, nil
}

// ValidateToken resolves a bearer token to its client. Missing, unknown
// and revoked tokens all yield common.ErrInvalidToken.
func (s *Service) ValidateToken(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", common.ErrInvalidToken
	}
	token, err := s.store.Tokens.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrInvalidToken
		}
		return "", fmt.Errorf("failed to look up token: %w", err)
	}
	if token.RevokedAt != nil {
		return "", common.ErrInvalidToken
	}
	if err := s.store.Tokens.Touch(ctx, token.ID, s.clock.Now()); err != nil {
		slog.Debug("Failed to update token last used", "client_id", token.ClientID, "error", err)
	}
	return token.ClientID, nil
}

func (s *Service) Revoke(ctx context.Context, clientID string) error {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return err
	}
	n, err := s.store.Tokens.Revoke(ctx, clientID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	slog.Info("Client token revoked", "client_id", clientID, "revoked", n)
	return nil
}
