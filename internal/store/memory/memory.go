// Package memory implements the store repositories over mutex-guarded maps.
// It is the default backend when no database is configured and is what the
// service tests run against.
package memory

import (
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/store"
)

func New() *store.Store {
	return &store.Store{
		Clients:  NewClientRepository(),
		Tokens:   NewTokenRepository(),
		Images:   NewImageRepository(),
		Points:   NewPointRepository(),
		Commands: NewCommandRepository(),
		Stats:    NewStatsRepository(),
	}
}

func copyClient(t *models.Client) *models.Client {
	c := *t
	if t.ImageID != nil {
		id := *t.ImageID
		c.ImageID = &id
	}
	if t.SystemInfo != nil {
		c.SystemInfo = make(map[string]string, len(t.SystemInfo))
		for k, v := range t.SystemInfo {
			c.SystemInfo[k] = v
		}
	}
	return &c
}
