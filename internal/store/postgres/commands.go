package postgres

import (
	"context"
	"time"

	"github.com/EternisAI/netboot/internal/models"
	"github.com/jackc/pgx/v5"
)

const commandColumns = `id, client_id, type, payload, created_at, acknowledged_at`

type CommandRepository struct {
	db DBTX
}

func scanCommand(row pgx.Row) (*models.Command, error) {
	var c models.Command
	if err := row.Scan(&c.ID, &c.ClientID, &c.Type, &c.Payload, &c.CreatedAt, &c.AcknowledgedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CommandRepository) Create(ctx context.Context, c *models.Command) error {
	payload := c.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.db.Exec(ctx, `INSERT INTO commands (`+commandColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ClientID, c.Type, payload, c.CreatedAt, c.AcknowledgedAt)
	return mapError("insert command", err)
}

func (r *CommandRepository) Get(ctx context.Context, id string) (*models.Command, error) {
	c, err := scanCommand(r.db.QueryRow(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = $1`, id))
	return c, mapError("get command", err)
}

func (r *CommandRepository) ListByClient(ctx context.Context, clientID string, pendingOnly bool) ([]*models.Command, error) {
	rows, err := r.db.Query(ctx, `SELECT `+commandColumns+` FROM commands
		WHERE client_id = $1 AND (NOT $2 OR acknowledged_at IS NULL)
		ORDER BY seq`, clientID, pendingOnly)
	if err != nil {
		return nil, mapError("list commands", err)
	}
	defer rows.Close()

	result := make([]*models.Command, 0)
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, mapError("scan command", err)
		}
		result = append(result, c)
	}
	return result, mapError("list commands", rows.Err())
}

func (r *CommandRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE commands SET acknowledged_at = COALESCE(acknowledged_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return mapError("acknowledge command", err)
	}
	return expectOne(tag)
}

func (r *CommandRepository) DeleteByClient(ctx context.Context, clientID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM commands WHERE client_id = $1`, clientID)
	return mapError("delete commands", err)
}

type StatsRepository struct {
	db DBTX
}

func (r *StatsRepository) Append(ctx context.Context, s *models.Stats) error {
	_, err := r.db.Exec(ctx, `INSERT INTO client_stats (client_id, recorded_at, cpu, memory_mb, rx_mbps, tx_mbps)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ClientID, s.RecordedAt, s.CPU, s.MemoryMB, s.RxMbps, s.TxMbps)
	return mapError("insert stats", err)
}

func (r *StatsRepository) ListRecent(ctx context.Context, clientID string, limit int) ([]*models.Stats, error) {
	rows, err := r.db.Query(ctx, `SELECT client_id, recorded_at, cpu, memory_mb, rx_mbps, tx_mbps
		FROM client_stats WHERE client_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`, clientID, limit)
	if err != nil {
		return nil, mapError("list stats", err)
	}
	defer rows.Close()

	result := make([]*models.Stats, 0)
	for rows.Next() {
		var s models.Stats
		if err := rows.Scan(&s.ClientID, &s.RecordedAt, &s.CPU, &s.MemoryMB, &s.RxMbps, &s.TxMbps); err != nil {
			return nil, mapError("scan stats", err)
		}
		result = append(result, &s)
	}
	return result, mapError("list stats", rows.Err())
}

func (r *StatsRepository) DeleteByClient(ctx context.Context, clientID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM client_stats WHERE client_id = $1`, clientID)
	return mapError("delete stats", err)
}
