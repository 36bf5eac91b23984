package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/store"
)

const (
	DefaultRecentLimit = 60
	maxRecentLimit     = 1000
)

var ErrInvalidSample = errors.New("invalid stats sample")

type Sample struct {
	CPU      float64
	MemoryMB float64
	RxMbps   float64
	TxMbps   float64
}

type Service struct {
	stats   store.StatsRepository
	clients store.ClientRepository
	clock   clock.Clock
}

func NewService(stats store.StatsRepository, clients store.ClientRepository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{stats: stats, clients: clients, clock: clk}
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

func (s *Service) Record(ctx context.Context, clientID string, sample Sample) error {
	if sample.CPU < 0 || sample.CPU > 100 || sample.MemoryMB < 0 || sample.RxMbps < 0 || sample.TxMbps < 0 {
		return fmt.Errorf("%w: values must be non-negative and cpu at most 100", ErrInvalidSample)
	}
	if err := s.requireClient(ctx, clientID); err != nil {
		return err
	}
	err := s.stats.Append(ctx, &models.Stats{
		ClientID:   clientID,
		RecordedAt: s.clock.Now(),
		CPU:        sample.CPU,
		MemoryMB:   sample.MemoryMB,
		RxMbps:     sample.RxMbps,
		TxMbps:     sample.TxMbps,
	})
	if err != nil {
		return fmt.Errorf("failed to record stats: %w", err)
	}
	return nil
}

// Recent returns up to limit samples, newest first.
func (s *Service) Recent(ctx context.Context, clientID string, limit int) ([]*models.Stats, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	if err := s.requireClient(ctx, clientID); err != nil {
		return nil, err
	}
	samples, err := s.stats.ListRecent(ctx, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stats: %w", err)
	}
	return samples, nil
}
