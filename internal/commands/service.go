package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/store"
	"github.com/google/uuid"
)

// Service is the per-client command queue. Delivery is at-least-once: a
// command stays pending, and is returned by every listing, until the client
// acknowledges it.
type Service struct {
	commands store.CommandRepository
	clients  store.ClientRepository
	clock    clock.Clock
}

func NewService(commands store.CommandRepository, clients store.ClientRepository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		commands: commands,
		clients:  clients,
		clock:    clk,
	}
}

func (s *Service) requireClient(ctx context.Context, clientID string) error {
	if _, err := s.clients.Get(ctx, clientID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrUnknownClient
		}
		return fmt.Errorf("failed to get client: %w", err)
	}
	return nil
}

func (s *Service) Enqueue(ctx context.Context, clientID string, cmd Command) (*models.Command, error) {
	payload, err := Encode(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.requireClient(ctx, clientID); err != nil {
		return nil, err
	}

	record := &models.Command{
		ID:        uuid.New().String(),
		ClientID:  clientID,
		Type:      string(cmd.Kind()),
		Payload:   payload,
		CreatedAt: s.clock.Now(),
	}
	if err := s.commands.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to enqueue command: %w", err)
	}

	slog.Info("Command enqueued", "command_id", record.ID, "client_id", clientID, "type", record.Type)
	return record, nil
}

// ListPending returns unacknowledged commands oldest first.
func (s *Service) ListPending(ctx context.Context, clientID string) ([]*models.Command, error) {
	return s.List(ctx, clientID, false)
}

func (s *Service) List(ctx context.Context, clientID string, includeAcknowledged bool) ([]*models.Command, error) {
	if err := s.requireClient(ctx, clientID); err != nil {
		return nil, err
	}
	cmds, err := s.commands.ListByClient(ctx, clientID, !includeAcknowledged)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	return cmds, nil
}

// Acknowledge marks a command executed. Acknowledging twice is a no-op. A
// command belonging to another client is reported as not found.
func (s *Service) Acknowledge(ctx context.Context, commandID, clientID string) error {
	cmd, err := s.commands.Get(ctx, commandID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return fmt.Errorf("failed to get command: %w", err)
	}
	if cmd.ClientID != clientID {
		slog.Warn("Acknowledge for command of another client",
			"command_id", commandID,
			"client_id", clientID,
			"owner", cmd.ClientID)
		return common.ErrNotFound
	}
	if !cmd.Pending() {
		return nil
	}

	if err := s.commands.Acknowledge(ctx, commandID, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to acknowledge command: %w", err)
	}
	slog.Info("Command acknowledged", "command_id", commandID, "client_id", clientID, "type", cmd.Type)
	return nil
}
