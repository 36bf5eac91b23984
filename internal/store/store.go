package store

import (
	"context"
	"time"

	"github.com/EternisAI/netboot/internal/models"
)

// ClientRepository persists client identities. Lookups of a missing row
// return common.ErrNotFound; a duplicate hardware address on Create
// returns common.ErrAlreadyExists.
type ClientRepository interface {
	Create(ctx context.Context, client *models.Client) error
	Get(ctx context.Context, id string) (*models.Client, error)
	GetByHardwareAddress(ctx context.Context, hardwareAddress string) (*models.Client, error)
	List(ctx context.Context) ([]*models.Client, error)
	ListByImage(ctx context.Context, imageID string) ([]*models.Client, error)
	// Update writes every column except the image assignment, which only
	// SetImage changes.
	Update(ctx context.Context, client *models.Client) error
	Delete(ctx context.Context, id string) error

	// Touch marks the client online and refreshes last-seen. An empty
	// networkAddress leaves the stored address unchanged.
	Touch(ctx context.Context, id, networkAddress string, at time.Time) error
	// SetStatus sets the online flag directly, stamping last-boot when
	// online and last-shutdown when offline.
	SetStatus(ctx context.Context, id string, online bool, networkAddress string, at time.Time) error
	// MarkStale flips every online client last seen before cutoff to
	// offline and returns how many changed.
	MarkStale(ctx context.Context, cutoff time.Time) (int, error)
	SetImage(ctx context.Context, id string, imageID *string) error
}

// TokenRepository persists bearer tokens. At most one non-revoked token
// exists per client; Create returns common.ErrAlreadyExists otherwise.
type TokenRepository interface {
	Create(ctx context.Context, token *models.Token) error
	GetActive(ctx context.Context, clientID string) (*models.Token, error)
	GetByValue(ctx context.Context, value string) (*models.Token, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, clientID string, at time.Time) (int, error)
	DeleteByClient(ctx context.Context, clientID string) error
}

type ImageRepository interface {
	Create(ctx context.Context, image *models.Image) error
	Get(ctx context.Context, id string) (*models.Image, error)
	List(ctx context.Context) ([]*models.Image, error)
	// Update replaces every mutable column of the row in one statement.
	Update(ctx context.Context, image *models.Image) error
	Delete(ctx context.Context, id string) error
}

type PointRepository interface {
	Create(ctx context.Context, point *models.RestorationPoint) error
	Get(ctx context.Context, id string) (*models.RestorationPoint, error)
	ListByImage(ctx context.Context, imageID string) ([]*models.RestorationPoint, error)
	Delete(ctx context.Context, id string) error
}

// CommandRepository lists commands oldest first.
type CommandRepository interface {
	Create(ctx context.Context, command *models.Command) error
	Get(ctx context.Context, id string) (*models.Command, error)
	ListByClient(ctx context.Context, clientID string, pendingOnly bool) ([]*models.Command, error)
	// Acknowledge stamps acknowledged-at if it is not set yet.
	Acknowledge(ctx context.Context, id string, at time.Time) error
	DeleteByClient(ctx context.Context, clientID string) error
}

type StatsRepository interface {
	Append(ctx context.Context, stats *models.Stats) error
	ListRecent(ctx context.Context, clientID string, limit int) ([]*models.Stats, error)
	DeleteByClient(ctx context.Context, clientID string) error
}

type Store struct {
	Clients  ClientRepository
	Tokens   TokenRepository
	Images   ImageRepository
	Points   PointRepository
	Commands CommandRepository
	Stats    StatsRepository
}
