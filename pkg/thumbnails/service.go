package thumbnails

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/models"
)

type Service struct {
	db bun.IDB
}

// NewService accepts either the database or a transaction.
func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) RetrieveThumbnail(ctx context.Context, id string) (*models.Thumbnail, error) {
	thumbnail := &models.Thumbnail{}
	err := svc.db.
		NewSelect().
		Model(thumbnail).
		Where("th.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Thumbnail")
		}
		return nil, errors.WithStack(err)
	}
	return thumbnail, nil
}

// UpsertThumbnail inserts the thumbnail or replaces the row that already has
// its id.
func (svc *Service) UpsertThumbnail(ctx context.Context, thumbnail *models.Thumbnail) error {
	now := time.Now()
	if thumbnail.CreatedAt.IsZero() {
		thumbnail.CreatedAt = now
	}
	thumbnail.UpdatedAt = now

	_, err := svc.db.
		NewInsert().
		Model(thumbnail).
		On("CONFLICT (id) DO UPDATE").
		Set("path = EXCLUDED.path").
		Set("blurhash = EXCLUDED.blurhash").
		Set("width = EXCLUDED.width").
		Set("height = EXCLUDED.height").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) DeleteThumbnail(ctx context.Context, id string) error {
	_, err := svc.db.NewDelete().
		Model((*models.Thumbnail)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WithStack(err)
}
