package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
)

type ImageRepository struct {
	mu     sync.RWMutex
	images map[string]*models.Image
	// FailUpdate, when set, is returned by Update. Tests use it to
	// simulate a repository failure mid-operation.
	FailUpdate error
}

func NewImageRepository() *ImageRepository {
	return &ImageRepository{images: make(map[string]*models.Image)}
}

func (r *ImageRepository) Create(_ context.Context, image *models.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, i := range r.images {
		if i.ID == image.ID || i.Name == image.Name {
			return common.ErrAlreadyExists
		}
	}
	cp := *image
	r.images[image.ID] = &cp
	return nil
}

func (r *ImageRepository) Get(_ context.Context, id string) (*models.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.images[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (r *ImageRepository) List(_ context.Context) ([]*models.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Image, 0, len(r.images))
	for _, i := range r.images {
		cp := *i
		result = append(result, &cp)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Name < result[b].Name })
	return result, nil
}

func (r *ImageRepository) Update(_ context.Context, image *models.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailUpdate != nil {
		return r.FailUpdate
	}
	if _, ok := r.images[image.ID]; !ok {
		return common.ErrNotFound
	}
	for id, i := range r.images {
		if id != image.ID && i.Name == image.Name {
			return common.ErrAlreadyExists
		}
	}
	cp := *image
	r.images[image.ID] = &cp
	return nil
}

func (r *ImageRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.images[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.images, id)
	return nil
}

type PointRepository struct {
	mu     sync.RWMutex
	points map[string]*models.RestorationPoint
}

func NewPointRepository() *PointRepository {
	return &PointRepository{points: make(map[string]*models.RestorationPoint)}
}

func (r *PointRepository) Create(_ context.Context, point *models.RestorationPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.points[point.ID]; ok {
		return common.ErrAlreadyExists
	}
	cp := *point
	r.points[point.ID] = &cp
	return nil
}

func (r *PointRepository) Get(_ context.Context, id string) (*models.RestorationPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.points[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PointRepository) ListByImage(_ context.Context, imageID string) ([]*models.RestorationPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.RestorationPoint
	for _, p := range r.points {
		if p.ImageID == imageID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(a, b int) bool {
		if result[a].CreatedAt.Equal(result[b].CreatedAt) {
			return result[a].ID < result[b].ID
		}
		return result[a].CreatedAt.Before(result[b].CreatedAt)
	})
	return result, nil
}

func (r *PointRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.points[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.points, id)
	return nil
}
