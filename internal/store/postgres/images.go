package postgres

import (
	"context"

	"github.com/EternisAI/netboot/internal/models"
	"github.com/jackc/pgx/v5"
)

const imageColumns = `id, name, description, os_version, blob_key, overlay_key, size_bytes, checksum,
	template, locked, overlay_state, created_at, modified_at`

type ImageRepository struct {
	db DBTX
}

func scanImage(row pgx.Row) (*models.Image, error) {
	var i models.Image
	var state string
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.OSVersion, &i.BlobKey, &i.OverlayKey, &i.SizeBytes,
		&i.Checksum, &i.Template, &i.Locked, &state, &i.CreatedAt, &i.ModifiedAt)
	if err != nil {
		return nil, err
	}
	i.OverlayState = models.OverlayState(state)
	return &i, nil
}

func (r *ImageRepository) Create(ctx context.Context, i *models.Image) error {
	_, err := r.db.Exec(ctx, `INSERT INTO images (`+imageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		i.ID, i.Name, i.Description, i.OSVersion, i.BlobKey, i.OverlayKey, i.SizeBytes, i.Checksum,
		i.Template, i.Locked, string(i.OverlayState), i.CreatedAt, i.ModifiedAt)
	return mapError("insert image", err)
}

func (r *ImageRepository) Get(ctx context.Context, id string) (*models.Image, error) {
	i, err := scanImage(r.db.QueryRow(ctx, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id))
	return i, mapError("get image", err)
}

func (r *ImageRepository) List(ctx context.Context) ([]*models.Image, error) {
	rows, err := r.db.Query(ctx, `SELECT `+imageColumns+` FROM images ORDER BY name`)
	if err != nil {
		return nil, mapError("list images", err)
	}
	defer rows.Close()

	result := make([]*models.Image, 0)
	for rows.Next() {
		i, err := scanImage(rows)
		if err != nil {
			return nil, mapError("scan image", err)
		}
		result = append(result, i)
	}
	return result, mapError("list images", rows.Err())
}

func (r *ImageRepository) Update(ctx context.Context, i *models.Image) error {
	tag, err := r.db.Exec(ctx, `UPDATE images SET name = $2, description = $3, os_version = $4, blob_key = $5,
		overlay_key = $6, size_bytes = $7, checksum = $8, template = $9, locked = $10, overlay_state = $11,
		modified_at = $12
		WHERE id = $1`,
		i.ID, i.Name, i.Description, i.OSVersion, i.BlobKey, i.OverlayKey, i.SizeBytes, i.Checksum,
		i.Template, i.Locked, string(i.OverlayState), i.ModifiedAt)
	if err != nil {
		return mapError("update image", err)
	}
	return expectOne(tag)
}

func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return mapError("delete image", err)
	}
	return expectOne(tag)
}

const pointColumns = `id, image_id, name, description, blob_key, checksum, size_bytes, created_at`

type PointRepository struct {
	db DBTX
}

func scanPoint(row pgx.Row) (*models.RestorationPoint, error) {
	var p models.RestorationPoint
	err := row.Scan(&p.ID, &p.ImageID, &p.Name, &p.Description, &p.BlobKey, &p.Checksum, &p.SizeBytes, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PointRepository) Create(ctx context.Context, p *models.RestorationPoint) error {
	_, err := r.db.Exec(ctx, `INSERT INTO restoration_points (`+pointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.ImageID, p.Name, p.Description, p.BlobKey, p.Checksum, p.SizeBytes, p.CreatedAt)
	return mapError("insert restoration point", err)
}

func (r *PointRepository) Get(ctx context.Context, id string) (*models.RestorationPoint, error) {
	p, err := scanPoint(r.db.QueryRow(ctx, `SELECT `+pointColumns+` FROM restoration_points WHERE id = $1`, id))
	return p, mapError("get restoration point", err)
}

func (r *PointRepository) ListByImage(ctx context.Context, imageID string) ([]*models.RestorationPoint, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+pointColumns+` FROM restoration_points WHERE image_id = $1 ORDER BY created_at, id`, imageID)
	if err != nil {
		return nil, mapError("list restoration points", err)
	}
	defer rows.Close()

	result := make([]*models.RestorationPoint, 0)
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, mapError("scan restoration point", err)
		}
		result = append(result, p)
	}
	return result, mapError("list restoration points", rows.Err())
}

func (r *PointRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM restoration_points WHERE id = $1`, id)
	if err != nil {
		return mapError("delete restoration point", err)
	}
	return expectOne(tag)
}
