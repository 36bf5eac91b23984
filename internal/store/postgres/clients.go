package postgres

import (
	"context"
	"time"

	"github.com/EternisAI/netboot/internal/models"
	"github.com/jackc/pgx/v5"
)

const clientColumns = `id, hardware_address, name, network_address, image_id, persistent, boot_mode,
	post_boot_script, system_info, online, last_seen_at, last_boot_at, last_shutdown_at, created_at`

type ClientRepository struct {
	db DBTX
}

func scanClient(row pgx.Row) (*models.Client, error) {
	var c models.Client
	var bootMode string
	err := row.Scan(&c.ID, &c.HardwareAddress, &c.Name, &c.NetworkAddress, &c.ImageID, &c.Persistent,
		&bootMode, &c.PostBootScript, &c.SystemInfo, &c.Online, &c.LastSeenAt, &c.LastBootAt,
		&c.LastShutdownAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.BootMode = models.BootMode(bootMode)
	return &c, nil
}

func systemInfo(c *models.Client) map[string]string {
	if c.SystemInfo == nil {
		return map[string]string{}
	}
	return c.SystemInfo
}

func (r *ClientRepository) Create(ctx context.Context, c *models.Client) error {
	_, err := r.db.Exec(ctx, `INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.HardwareAddress, c.Name, c.NetworkAddress, c.ImageID, c.Persistent, string(c.BootMode),
		c.PostBootScript, systemInfo(c), c.Online, c.LastSeenAt, c.LastBootAt, c.LastShutdownAt, c.CreatedAt)
	return mapError("insert client", err)
}

func (r *ClientRepository) Get(ctx context.Context, id string) (*models.Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	return c, mapError("get client", err)
}

func (r *ClientRepository) GetByHardwareAddress(ctx context.Context, hardwareAddress string) (*models.Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE hardware_address = $1`, hardwareAddress))
	return c, mapError("get client by hardware address", err)
}

func (r *ClientRepository) List(ctx context.Context) ([]*models.Client, error) {
	return r.query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at, id`)
}

func (r *ClientRepository) ListByImage(ctx context.Context, imageID string) ([]*models.Client, error) {
	return r.query(ctx, `SELECT `+clientColumns+` FROM clients WHERE image_id = $1 ORDER BY created_at, id`, imageID)
}

func (r *ClientRepository) query(ctx context.Context, sql string, args ...any) ([]*models.Client, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError("list clients", err)
	}
	defer rows.Close()

	result := make([]*models.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, mapError("scan client", err)
		}
		result = append(result, c)
	}
	return result, mapError("list clients", rows.Err())
}

func (r *ClientRepository) Update(ctx context.Context, c *models.Client) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET hardware_address = $2, name = $3, network_address = $4,
		persistent = $5, boot_mode = $6, post_boot_script = $7, system_info = $8,
		online = $9, last_seen_at = $10, last_boot_at = $11, last_shutdown_at = $12
		WHERE id = $1`,
		c.ID, c.HardwareAddress, c.Name, c.NetworkAddress, c.Persistent, string(c.BootMode),
		c.PostBootScript, systemInfo(c), c.Online, c.LastSeenAt, c.LastBootAt, c.LastShutdownAt)
	if err != nil {
		return mapError("update client", err)
	}
	return expectOne(tag)
}

func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return mapError("delete client", err)
	}
	return expectOne(tag)
}

func (r *ClientRepository) Touch(ctx context.Context, id, networkAddress string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET online = TRUE, last_seen_at = $2,
		network_address = CASE WHEN $3 = '' THEN network_address ELSE $3 END
		WHERE id = $1`, id, at, networkAddress)
	if err != nil {
		return mapError("touch client", err)
	}
	return expectOne(tag)
}

func (r *ClientRepository) SetStatus(ctx context.Context, id string, online bool, networkAddress string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET online = $2, last_seen_at = $3,
		last_boot_at = CASE WHEN $2 THEN $3 ELSE last_boot_at END,
		last_shutdown_at = CASE WHEN $2 THEN last_shutdown_at ELSE $3 END,
		network_address = CASE WHEN $4 = '' THEN network_address ELSE $4 END
		WHERE id = $1`, id, online, at, networkAddress)
	if err != nil {
		return mapError("set client status", err)
	}
	return expectOne(tag)
}

func (r *ClientRepository) MarkStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET online = FALSE
		WHERE online AND (last_seen_at IS NULL OR last_seen_at < $1)`, cutoff)
	if err != nil {
		return 0, mapError("mark stale clients", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ClientRepository) SetImage(ctx context.Context, id string, imageID *string) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET image_id = $2 WHERE id = $1`, id, imageID)
	if err != nil {
		return mapError("set client image", err)
	}
	return expectOne(tag)
}
