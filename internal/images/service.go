// Package images manages boot image lifecycle: base content, the
// copy-on-write overlay, and restoration points.
//
// Every mutation writes new blobs first, then updates the image row in one
// repository call, then removes superseded blobs. A failure before the row
// update leaves the image exactly as it was.
package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/EternisAI/netboot/internal/blobstore"
	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/keylock"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/store"
	"github.com/google/uuid"
)

var ErrInvalidImage = errors.New("invalid image")

// ErrJournalFull is returned when an overlay write would push the journal past
// its limit. It matches common.ErrOutOfRange.
var ErrJournalFull = fmt.Errorf("%w: overlay journal full", common.ErrOutOfRange)

// DefaultJournalLimit bounds the encoded overlay journal of one image.
const DefaultJournalLimit = 256 << 20

// Guard reports fleet usage of an image. The boot coordinator implements it.
type Guard interface {
	AssignedClients(ctx context.Context, imageID string) (total, online int, err error)
}

// LockingGuard is a Guard that mutates assignments itself. The service then
// shares the guard's per-image locks, so an assignment can't interleave with
// a delete or restore of the same image.
type LockingGuard interface {
	Guard
	ImageLocks() *keylock.Locker
}

type noGuard struct{}

func (noGuard) AssignedClients(context.Context, string) (int, int, error) { return 0, 0, nil }

type Service struct {
	images store.ImageRepository
	points store.PointRepository
	blobs  blobstore.Store
	guard  Guard
	locks  *keylock.Locker
	clock  clock.Clock

	journalLimit int64
}

func NewService(images store.ImageRepository, points store.PointRepository, blobs blobstore.Store, guard Guard, clk clock.Clock) *Service {
	if guard == nil {
		guard = noGuard{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	locks := keylock.New()
	if lg, ok := guard.(LockingGuard); ok {
		locks = lg.ImageLocks()
	}
	return &Service{
		images: images,
		points: points,
		blobs:  blobs,
		guard:  guard,
		locks:  locks,
		clock:  clk,

		journalLimit: DefaultJournalLimit,
	}
}

// WithJournalLimit overrides DefaultJournalLimit. Non-positive values are ignored.
func (s *Service) WithJournalLimit(limit int64) *Service {
	if limit > 0 {
		s.journalLimit = limit
	}
	return s
}

type CreateInput struct {
	Name        string
	Description string
	OSVersion   string
	// SizeBytes is the declared disk size. Zero means the content length.
	SizeBytes int64
	Template  bool
	Content   []byte
}

type UpdateInput struct {
	Name        *string
	Description *string
	OSVersion   *string
	Template    *bool
	Locked      *bool
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrStorageFailure, op, err)
}

func repoError(op string, err error) error {
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrAlreadyExists) {
		return err
	}
	return storageFailure(op, err)
}

func baseKey(imageID string) string {
	return fmt.Sprintf("images/%s/base-%s", imageID, uuid.New().String())
}

func overlayKey(imageID string) string {
	return fmt.Sprintf("images/%s/overlay-%s", imageID, uuid.New().String())
}

func pointKey(pointID string) string {
	return fmt.Sprintf("points/%s.zst", pointID)
}

// discard removes a blob that is no longer referenced. Failures only leak
// storage, so they are logged and swallowed.
func (s *Service) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Warn("Failed to remove superseded blob", "key", key, "error", err)
	}
}

func (s *Service) CreateImage(ctx context.Context, in CreateInput) (*models.Image, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidImage)
	}
	size := in.SizeBytes
	if size == 0 {
		size = int64(len(in.Content))
	}
	if size < int64(len(in.Content)) || size < 0 {
		return nil, fmt.Errorf("%w: size %d is smaller than content (%d bytes)", ErrInvalidImage, size, len(in.Content))
	}

	now := s.clock.Now()
	image := &models.Image{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  in.Description,
		OSVersion:    in.OSVersion,
		SizeBytes:    size,
		Checksum:     checksum(in.Content),
		Template:     in.Template,
		OverlayState: models.OverlayBase,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	image.BlobKey = baseKey(image.ID)

	if err := s.blobs.Put(ctx, image.BlobKey, in.Content); err != nil {
		return nil, storageFailure("write base blob", err)
	}
	if err := s.images.Create(ctx, image); err != nil {
		s.discard(ctx, image.BlobKey)
		return nil, repoError("create image", err)
	}

	slog.Info("Image created", "image_id", image.ID, "name", image.Name, "size_bytes", image.SizeBytes)
	return image, nil
}

func (s *Service) GetImage(ctx context.Context, imageID string) (*models.Image, error) {
	image, err := s.images.Get(ctx, imageID)
	if err != nil {
		return nil, repoError("get image", err)
	}
	return image, nil
}

func (s *Service) ListImages(ctx context.Context) ([]*models.Image, error) {
	images, err := s.images.List(ctx)
	if err != nil {
		return nil, storageFailure("list images", err)
	}
	return images, nil
}

func (s *Service) UpdateImage(ctx context.Context, imageID string, in UpdateInput) (*models.Image, error) {
	unlock := s.locks.Lock(imageID)
	defer unlock()

	image, err := s.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidImage)
		}
		image.Name = name
	}
	if in.Description != nil {
		image.Description = *in.Description
	}
	if in.OSVersion != nil {
		image.OSVersion = *in.OSVersion
	}
	if in.Template != nil {
		image.Template = *in.Template
	}
	if in.Locked != nil {
		image.Locked = *in.Locked
	}
	image.ModifiedAt = s.clock.Now()

	if err := s.images.Update(ctx, image); err != nil {
		return nil, repoError("update image", err)
	}
	slog.Info("Image updated", "image_id", image.ID)
	return image, nil
}

// DeleteImage removes the image, its restoration points and their blobs.
// Any assigned client, online or not, blocks deletion.
func (s *Service) DeleteImage(ctx context.Context, imageID string) error {
	unlock := s.locks.Lock(imageID)
	defer unlock()

	image, err := s.GetImage(ctx, imageID)
	if err != nil {
		return err
	}
	if image.Locked {
		return common.ErrLocked
	}
	total, _, err := s.guard.AssignedClients(ctx, imageID)
	if err != nil {
		return fmt.Errorf("failed to check image assignments: %w", err)
	}
	if total > 0 {
		slog.Info("Refusing to delete assigned image", "image_id", imageID, "assigned", total)
		return common.ErrInUse
	}

	points, err := s.points.ListByImage(ctx, imageID)
	if err != nil {
		return storageFailure("list restoration points", err)
	}
	if err := s.images.Delete(ctx, imageID); err != nil {
		return repoError("delete image", err)
	}

	for _, p := range points {
		if err := s.points.Delete(ctx, p.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
			slog.Warn("Failed to delete restoration point", "point_id", p.ID, "error", err)
		}
		s.discard(ctx, p.BlobKey)
	}
	s.discard(ctx, image.BlobKey)
	s.discard(ctx, image.OverlayKey)

	slog.Info("Image deleted", "image_id", imageID, "restoration_points", len(points))
	return nil
}

// Clone copies the base content of imageID into a new independent image.
// The clone starts in base state and is never a template.
func (s *Service) Clone(ctx context.Context, imageID, newName string) (*models.Image, error) {
	name := strings.TrimSpace(newName)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidImage)
	}

	unlock := s.locks.Lock(imageID)
	defer unlock()

	source, err := s.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	clone := &models.Image{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  source.Description,
		OSVersion:    source.OSVersion,
		SizeBytes:    source.SizeBytes,
		Checksum:     source.Checksum,
		OverlayState: models.OverlayBase,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	clone.BlobKey = baseKey(clone.ID)

	if err := blobstore.Copy(ctx, s.blobs, source.BlobKey, clone.BlobKey); err != nil {
		return nil, storageFailure("copy base blob", err)
	}
	if err := s.images.Create(ctx, clone); err != nil {
		s.discard(ctx, clone.BlobKey)
		return nil, repoError("create clone", err)
	}

	slog.Info("Image cloned", "source_id", imageID, "image_id", clone.ID, "name", clone.Name)
	return clone, nil
}

// EnableOverlay starts isolating writes in a fresh journal. It does not
// consult presence: clients keep booting the same content.
func (s *Service) EnableOverlay(ctx context.Context, imageID string) (*models.Image, error) {
	unlock := s.locks.Lock(imageID)
	defer unlock()

	image, err := s.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if image.Locked {
		return nil, common.ErrLocked
	}
	if image.OverlayState == models.OverlayActive {
		return nil, common.ErrAlreadyActive
	}

	empty, err := encodeJournal(&journal{})
	if err != nil {
		return nil, err
	}
	key := overlayKey(imageID)
	if err := s.blobs.Put(ctx, key, empty); err != nil {
		return nil, storageFailure("write overlay journal", err)
	}

	image.OverlayKey = key
	image.OverlayState = models.OverlayActive
	image.ModifiedAt = s.clock.Now()
	if err := s.images.Update(ctx, image); err != nil {
		s.discard(ctx, key)
		return nil, repoError("update image", err)
	}

	slog.Info("Overlay enabled", "image_id", imageID)
	return image, nil
}

// DisableOverlay returns the image to base state. With commit the overlay
// writes become the new base; without it they are dropped. Refused while
// any assigned client is online.
func (s *Service) DisableOverlay(ctx context.Context, imageID string, commit bool) (*models.Image, error) {
	unlock := s.locks.Lock(imageID)
	defer unlock()

	image, err := s.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if image.Locked {
		return nil, common.ErrLocked
	}
	if image.OverlayState != models.OverlayActive {
		return nil, common.ErrNotActive
	}
	if err := s.requireOffline(ctx, imageID); err != nil {
		return nil, err
	}

	oldBase, oldOverlay := image.BlobKey, image.OverlayKey
	var newBase string
	if commit {
		merged, err := s.content(ctx, image)
		if err != nil {
			return nil, err
		}
		newBase = baseKey(imageID)
		if err := s.blobs.Put(ctx, newBase, merged); err != nil {
			return nil, storageFailure("write committed base", err)
		}
		image.BlobKey = newBase
		image.Checksum = checksum(merged)
	}

	image.OverlayKey = ""
	image.OverlayState = models.OverlayBase
	image.ModifiedAt = s.clock.Now()
	if err := s.images.Update(ctx, image); err != nil {
		s.discard(ctx, newBase)
		return nil, repoError("update image", err)
	}

	if commit {
		s.discard(ctx, oldBase)
	}
	s.discard(ctx, oldOverlay)

	slog.Info("Overlay disabled", "image_id", imageID, "commit", commit)
	return image, nil
}

// Write records data at offset in the overlay journal. The base is
// immutable, so writes outside overlay mode are rejected.
//
// Each write rewrites the whole journal, and the encoded journal may not
// exceed the service's journal limit (DefaultJournalLimit unless set with
// WithJournalLimit). Committing or discarding the overlay resets it.
func (s *Service) Write(ctx context.Context, imageID string, offset int64, data []byte) error {
	unlock := s.locks.Lock(imageID)
	defer unlock()

	image, err := s.GetImage(ctx, imageID)
	if err != nil {
		return err
	}
	if image.OverlayState != models.OverlayActive {
		return common.ErrNotActive
	}
	if offset < 0 || int64(len(data)) > image.SizeBytes || offset > image.SizeBytes-int64(len(data)) {
		return fmt.Errorf("%w: %d bytes at offset %d exceeds image size %d",
			common.ErrOutOfRange, len(data), offset, image.SizeBytes)
	}
	if len(data) == 0 {
		return nil
	}

	j, err := s.journal(ctx, image)
	if err != nil {
		return err
	}
	j.Extents = append(j.Extents, extent{Offset: offset, Data: data})
	encoded, err := encodeJournal(j)
	if err != nil {
		return err
	}
	if int64(len(encoded)) > s.journalLimit {
		return fmt.Errorf("%w: overlay journal would grow to %d bytes, limit is %d",
			ErrJournalFull, len(encoded), s.journalLimit)
	}
	if err := s.blobs.Put(ctx, image.OverlayKey, encoded); err != nil {
		return storageFailure("write overlay journal", err)
	}

	slog.Debug("Overlay write recorded", "image_id", imageID, "offset", offset, "length", len(data))
	return nil
}

// ReadContent returns what a client booting the image sees: the base with
// any overlay writes applied.
func (s *Service) ReadContent(ctx context.Context, imageID string) ([]byte, error) {
	unlock := s.locks.Lock(imageID)
	defer unlock()

	image, err := s.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	return s.content(ctx, image)
}

func (s *Service) content(ctx context.Context, image *models.Image) ([]byte, error) {
	base, err := s.blobs.Get(ctx, image.BlobKey)
	if err != nil {
		return nil, storageFailure("read base blob", err)
	}
	if image.OverlayState != models.OverlayActive {
		return base, nil
	}
	j, err := s.journal(ctx, image)
	if err != nil {
		return nil, err
	}
	return merge(base, j, image.SizeBytes), nil
}

func (s *Service) journal(ctx context.Context, image *models.Image) (*journal, error) {
	data, err := s.blobs.Get(ctx, image.OverlayKey)
	if err != nil {
		return nil, storageFailure("read overlay journal", err)
	}
	j, err := decodeJournal(data)
	if err != nil {
		return nil, storageFailure("read overlay journal", err)
	}
	return j, nil
}

func (s *Service) requireOffline(ctx context.Context, imageID string) error {
	_, online, err := s.guard.AssignedClients(ctx, imageID)
	if err != nil {
		return fmt.Errorf("failed to check image assignments: %w", err)
	}
	if online > 0 {
		slog.Info("Image has online clients", "image_id", imageID, "online", online)
		return common.ErrInUse
	}
	return nil
}
