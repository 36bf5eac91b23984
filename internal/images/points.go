package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/google/uuid"
)

// CreateRestorationPoint snapshots the base content of imageID. Overlay
// writes are not part of the snapshot.
func (s *Service) CreateRestorationPoint(ctx context.Context, imageID, name, description string) (*models.RestorationPoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: restoration point name is required", ErrInvalidImage)
	}

	unlock := s.locks.Lock(imageID)
	defer unlock()

	image, err := s.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	base, err := s.blobs.Get(ctx, image.BlobKey)
	if err != nil {
		return nil, storageFailure("read base blob", err)
	}

	point := &models.RestorationPoint{
		ID:          uuid.New().String(),
		ImageID:     imageID,
		Name:        name,
		Description: description,
		Checksum:    checksum(base),
		SizeBytes:   int64(len(base)),
		CreatedAt:   s.clock.Now(),
	}
	point.BlobKey = pointKey(point.ID)

	if err := s.blobs.Put(ctx, point.BlobKey, compressSnapshot(base)); err != nil {
		return nil, storageFailure("write snapshot", err)
	}
	if err := s.points.Create(ctx, point); err != nil {
		s.discard(ctx, point.BlobKey)
		return nil, repoError("create restoration point", err)
	}

	slog.Info("Restoration point created", "point_id", point.ID, "image_id", imageID, "name", name)
	return point, nil
}

func (s *Service) ListPoints(ctx context.Context, imageID string) ([]*models.RestorationPoint, error) {
	if _, err := s.GetImage(ctx, imageID); err != nil {
		return nil, err
	}
	points, err := s.points.ListByImage(ctx, imageID)
	if err != nil {
		return nil, storageFailure("list restoration points", err)
	}
	return points, nil
}

func (s *Service) GetPoint(ctx context.Context, pointID string) (*models.RestorationPoint, error) {
	point, err := s.points.Get(ctx, pointID)
	if err != nil {
		return nil, repoError("get restoration point", err)
	}
	return point, nil
}

// Restore replaces the base of the point's image with the snapshot. An
// active overlay stays active and is layered over the restored base.
func (s *Service) Restore(ctx context.Context, pointID string) (*models.Image, error) {
	point, err := s.GetPoint(ctx, pointID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(point.ImageID)
	defer unlock()

	image, err := s.GetImage(ctx, point.ImageID)
	if err != nil {
		return nil, err
	}
	if image.Locked {
		return nil, common.ErrLocked
	}
	if err := s.requireOffline(ctx, image.ID); err != nil {
		return nil, err
	}

	compressed, err := s.blobs.Get(ctx, point.BlobKey)
	if err != nil {
		return nil, storageFailure("read snapshot", err)
	}
	snapshot, err := decompressSnapshot(compressed, point.SizeBytes)
	if err != nil {
		return nil, storageFailure("read snapshot", err)
	}
	if sum := checksum(snapshot); sum != point.Checksum {
		return nil, storageFailure("verify snapshot", fmt.Errorf("checksum %s does not match %s", sum, point.Checksum))
	}

	oldBase := image.BlobKey
	newBase := baseKey(image.ID)
	if err := s.blobs.Put(ctx, newBase, snapshot); err != nil {
		return nil, storageFailure("write restored base", err)
	}

	image.BlobKey = newBase
	image.Checksum = point.Checksum
	image.ModifiedAt = s.clock.Now()
	if err := s.images.Update(ctx, image); err != nil {
		s.discard(ctx, newBase)
		return nil, repoError("update image", err)
	}
	s.discard(ctx, oldBase)

	slog.Info("Image restored", "image_id", image.ID, "point_id", pointID, "overlay_state", image.OverlayState)
	return image, nil
}

func (s *Service) DeletePoint(ctx context.Context, pointID string) error {
	point, err := s.GetPoint(ctx, pointID)
	if err != nil {
		return err
	}
	if err := s.points.Delete(ctx, pointID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		return storageFailure("delete restoration point", err)
	}
	s.discard(ctx, point.BlobKey)

	slog.Info("Restoration point deleted", "point_id", pointID, "image_id", point.ImageID)
	return nil
}
