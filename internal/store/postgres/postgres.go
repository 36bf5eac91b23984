// Package postgres implements the store repositories on PostgreSQL through a
// pgx connection pool. The schema lives in internal/db/migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func New(pool *pgxpool.Pool) *store.Store {
	return &store.Store{
		Clients:  &ClientRepository{db: pool},
		Tokens:   &TokenRepository{db: pool},
		Images:   &ImageRepository{db: pool},
		Points:   &PointRepository{db: pool},
		Commands: &CommandRepository{db: pool},
		Stats:    &StatsRepository{db: pool},
	}
}

// mapError translates driver errors into the shared taxonomy.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return common.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return common.ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectOne(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}
