package pages

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/models"
)

type ListPagesOptions struct {
	TitleID *string
}

type UpdatePageOptions struct {
	Columns []string
}

type Service struct {
	db bun.IDB
}

// NewService accepts either the database or a transaction.
func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreatePages(ctx context.Context, pages []*models.Page) error {
	if len(pages) == 0 {
		return nil
	}

	now := time.Now()
	for _, page := range pages {
		if page.ID == "" {
			page.ID = uuid.NewString()
		}
		if page.CreatedAt.IsZero() {
			page.CreatedAt = now
		}
		page.UpdatedAt = page.CreatedAt
	}

	_, err := svc.db.
		NewInsert().
		Model(&pages).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ListPages(ctx context.Context, opts ListPagesOptions) ([]*models.Page, error) {
	pages := []*models.Page{}

	q := svc.db.
		NewSelect().
		Model(&pages).
		Order("p.path ASC")

	if opts.TitleID != nil {
		q = q.Where("p.title_id = ?", *opts.TitleID)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pages, nil
}

func (svc *Service) UpdatePage(ctx context.Context, page *models.Page, opts UpdatePageOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	page.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(page).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) DeletePages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.db.NewDelete().
		Model((*models.Page)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return errors.WithStack(err)
}
