package memory

import (
	"context"
	"sync"
	"time"

	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
)

// CommandRepository keeps commands in insertion order so listings are
// oldest first even when timestamps collide.
type CommandRepository struct {
	mu       sync.RWMutex
	commands []*models.Command
}

func NewCommandRepository() *CommandRepository {
	return &CommandRepository{}
}

func (r *CommandRepository) Create(_ context.Context, command *models.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.commands {
		if c.ID == command.ID {
			return common.ErrAlreadyExists
		}
	}
	cp := *command
	cp.Payload = append([]byte(nil), command.Payload...)
	r.commands = append(r.commands, &cp)
	return nil
}

func (r *CommandRepository) Get(_ context.Context, id string) (*models.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.commands {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *CommandRepository) ListByClient(_ context.Context, clientID string, pendingOnly bool) ([]*models.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Command, 0)
	for _, c := range r.commands {
		if c.ClientID != clientID || (pendingOnly && !c.Pending()) {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	return result, nil
}

func (r *CommandRepository) Acknowledge(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.commands {
		if c.ID == id {
			if c.AcknowledgedAt == nil {
				c.AcknowledgedAt = &at
			}
			return nil
		}
	}
	return common.ErrNotFound
}

func (r *CommandRepository) DeleteByClient(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.commands[:0]
	for _, c := range r.commands {
		if c.ClientID != clientID {
			kept = append(kept, c)
		}
	}
	r.commands = kept
	return nil
}

type StatsRepository struct {
	mu    sync.RWMutex
	stats map[string][]*models.Stats
}

func NewStatsRepository() *StatsRepository {
	return &StatsRepository{stats: make(map[string][]*models.Stats)}
}

func (r *StatsRepository) Append(_ context.Context, stats *models.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *stats
	r.stats[stats.ClientID] = append(r.stats[stats.ClientID], &cp)
	return nil
}

// ListRecent returns at most limit samples, newest first.
func (r *StatsRepository) ListRecent(_ context.Context, clientID string, limit int) ([]*models.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	series := r.stats[clientID]
	result := make([]*models.Stats, 0, min(limit, len(series)))
	for i := len(series) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *series[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (r *StatsRepository) DeleteByClient(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stats, clientID)
	return nil
}
