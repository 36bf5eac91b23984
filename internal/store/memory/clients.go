package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
)

type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*models.Client
}

func NewClientRepository() *ClientRepository {
	return &ClientRepository{clients: make(map[string]*models.Client)}
}

func (r *ClientRepository) Create(_ context.Context, client *models.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID]; ok {
		return common.ErrAlreadyExists
	}
	for _, c := range r.clients {
		if c.HardwareAddress == client.HardwareAddress {
			return common.ErrAlreadyExists
		}
	}
	r.clients[client.ID] = copyClient(client)
	return nil
}

func (r *ClientRepository) Get(_ context.Context, id string) (*models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyClient(c), nil
}

func (r *ClientRepository) GetByHardwareAddress(_ context.Context, hardwareAddress string) (*models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		if c.HardwareAddress == hardwareAddress {
			return copyClient(c), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *ClientRepository) List(_ context.Context) ([]*models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(*models.Client) bool { return true }), nil
}

func (r *ClientRepository) ListByImage(_ context.Context, imageID string) ([]*models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(c *models.Client) bool {
		return c.ImageID != nil && *c.ImageID == imageID
	}), nil
}

// sorted must be called with r.mu held.
func (r *ClientRepository) sorted(keep func(*models.Client) bool) []*models.Client {
	result := make([]*models.Client, 0, len(r.clients))
	for _, c := range r.clients {
		if keep(c) {
			result = append(result, copyClient(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (r *ClientRepository) Update(_ context.Context, client *models.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.clients[client.ID]
	if !ok {
		return common.ErrNotFound
	}
	for id, c := range r.clients {
		if id != client.ID && c.HardwareAddress == client.HardwareAddress {
			return common.ErrAlreadyExists
		}
	}
	updated := copyClient(client)
	updated.ImageID = existing.ImageID
	updated.CreatedAt = existing.CreatedAt
	r.clients[client.ID] = updated
	return nil
}

func (r *ClientRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.clients, id)
	return nil
}

func (r *ClientRepository) Touch(_ context.Context, id, networkAddress string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return common.ErrNotFound
	}
	c.Online = true
	c.LastSeenAt = &at
	if networkAddress != "" {
		c.NetworkAddress = networkAddress
	}
	return nil
}

func (r *ClientRepository) SetStatus(_ context.Context, id string, online bool, networkAddress string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return common.ErrNotFound
	}
	c.Online = online
	c.LastSeenAt = &at
	if online {
		c.LastBootAt = &at
	} else {
		c.LastShutdownAt = &at
	}
	if networkAddress != "" {
		c.NetworkAddress = networkAddress
	}
	return nil
}

func (r *ClientRepository) MarkStale(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.clients {
		if !c.Online {
			continue
		}
		if c.LastSeenAt == nil || c.LastSeenAt.Before(cutoff) {
			c.Online = false
			n++
		}
	}
	return n, nil
}

func (r *ClientRepository) SetImage(_ context.Context, id string, imageID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return common.ErrNotFound
	}
	if imageID == nil {
		c.ImageID = nil
	} else {
		v := *imageID
		c.ImageID = &v
	}
	return nil
}
