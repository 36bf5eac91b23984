package memory

import (
	"context"
	"sync"
	"time"

	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
)

type TokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*models.Token
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[string]*models.Token)}
}

func (r *TokenRepository) Create(_ context.Context, token *models.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens {
		if t.Value == token.Value || (t.ClientID == token.ClientID && t.RevokedAt == nil) {
			return common.ErrAlreadyExists
		}
	}
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *TokenRepository) GetActive(_ context.Context, clientID string) (*models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tokens {
		if t.ClientID == clientID && t.RevokedAt == nil {
			cp := *t
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *TokenRepository) GetByValue(_ context.Context, value string) (*models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tokens {
		if t.Value == value {
			cp := *t
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *TokenRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[id]
	if !ok {
		return common.ErrNotFound
	}
	t.LastUsedAt = &at
	return nil
}

func (r *TokenRepository) Revoke(_ context.Context, clientID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.tokens {
		if t.ClientID == clientID && t.RevokedAt == nil {
			t.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *TokenRepository) DeleteByClient(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.tokens {
		if t.ClientID == clientID {
			delete(r.tokens, id)
		}
	}
	return nil
}
