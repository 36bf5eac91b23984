package postgres

import (
	"context"
	"time"

	"github.com/EternisAI/netboot/internal/models"
	"github.com/jackc/pgx/v5"
)

const tokenColumns = `id, client_id, value, issued_at, last_used_at, revoked_at`

type TokenRepository struct {
	db DBTX
}

func scanToken(row pgx.Row) (*models.Token, error) {
	var t models.Token
	if err := row.Scan(&t.ID, &t.ClientID, &t.Value, &t.IssuedAt, &t.LastUsedAt, &t.RevokedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create relies on the partial unique index over live tokens, so two
// concurrent registrations for one client cannot both insert.
func (r *TokenRepository) Create(ctx context.Context, t *models.Token) error {
	_, err := r.db.Exec(ctx, `INSERT INTO auth_tokens (`+tokenColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.ClientID, t.Value, t.IssuedAt, t.LastUsedAt, t.RevokedAt)
	return mapError("insert token", err)
}

func (r *TokenRepository) GetActive(ctx context.Context, clientID string) (*models.Token, error) {
	t, err := scanToken(r.db.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM auth_tokens WHERE client_id = $1 AND revoked_at IS NULL`, clientID))
	return t, mapError("get active token", err)
}

func (r *TokenRepository) GetByValue(ctx context.Context, value string) (*models.Token, error) {
	t, err := scanToken(r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM auth_tokens WHERE value = $1`, value))
	return t, mapError("get token", err)
}

func (r *TokenRepository) Touch(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE auth_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapError("touch token", err)
	}
	return expectOne(tag)
}

func (r *TokenRepository) Revoke(ctx context.Context, clientID string, at time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE auth_tokens SET revoked_at = $2 WHERE client_id = $1 AND revoked_at IS NULL`, clientID, at)
	if err != nil {
		return 0, mapError("revoke tokens", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *TokenRepository) DeleteByClient(ctx context.Context, clientID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM auth_tokens WHERE client_id = $1`, clientID)
	return mapError("delete tokens", err)
}
