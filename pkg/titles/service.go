package titles

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/models"
)

type RetrieveTitleOptions struct {
	ID   *string
	Path *string
}

type ListTitlesOptions struct {
	CategoryID *string
	Hash       *string
}

type UpdateTitleOptions struct {
	Columns []string
}

type Service struct {
	db bun.IDB
}

// NewService accepts either the database or a transaction.
func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreateTitle(ctx context.Context, title *models.Title) error {
	if title.ID == "" {
		title.ID = uuid.NewString()
	}
	now := time.Now()
	if title.CreatedAt.IsZero() {
		title.CreatedAt = now
	}
	title.UpdatedAt = title.CreatedAt

	_, err := svc.db.
		NewInsert().
		Model(title).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveTitle(ctx context.Context, opts RetrieveTitleOptions) (*models.Title, error) {
	title := &models.Title{}

	q := svc.db.
		NewSelect().
		Model(title)

	if opts.ID != nil {
		q = q.Where("t.id = ?", *opts.ID)
	}
	if opts.Path != nil {
		q = q.Where("t.path = ?", *opts.Path)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Title")
		}
		return nil, errors.WithStack(err)
	}

	return title, nil
}

func (svc *Service) ListTitles(ctx context.Context, opts ListTitlesOptions) ([]*models.Title, error) {
	titles := []*models.Title{}

	q := svc.db.
		NewSelect().
		Model(&titles).
		Order("t.created_at ASC", "t.id ASC")

	if opts.CategoryID != nil {
		q = q.Where("t.category_id = ?", *opts.CategoryID)
	}
	if opts.Hash != nil {
		q = q.Where("t.hash = ?", *opts.Hash)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return titles, nil
}

// ListTitlePaths returns every title with only its id and path loaded.
func (svc *Service) ListTitlePaths(ctx context.Context) ([]*models.Title, error) {
	titles := []*models.Title{}
	err := svc.db.
		NewSelect().
		Model(&titles).
		Column("t.id", "t.path").
		Order("t.path ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return titles, nil
}

func (svc *Service) UpdateTitle(ctx context.Context, title *models.Title, opts UpdateTitleOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	title.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(title).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// DeleteTitles removes the given titles and their pages, thumbnails and tag
// links. Run it in a transaction.
func (svc *Service) DeleteTitles(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := svc.db.NewDelete().
		Model((*models.Thumbnail)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model((*models.Page)(nil)).
		Where("title_id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model((*models.TitleTag)(nil)).
		Where("title_id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model((*models.Title)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return errors.WithStack(err)
}
