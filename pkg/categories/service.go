package categories

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/models"
)

type RetrieveCategoryOptions struct {
	ID *string
}

type UpdateCategoryOptions struct {
	Columns []string
}

type Service struct {
	db bun.IDB
}

// NewService accepts either the database or a transaction.
func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreateCategory(ctx context.Context, category *models.Category) error {
	now := time.Now()
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = category.CreatedAt

	_, err := svc.db.
		NewInsert().
		Model(category).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveCategory(ctx context.Context, opts RetrieveCategoryOptions) (*models.Category, error) {
	category := &models.Category{}

	q := svc.db.
		NewSelect().
		Model(category)

	if opts.ID != nil {
		q = q.Where("c.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Category")
		}
		return nil, errors.WithStack(err)
	}

	return category, nil
}

func (svc *Service) ListCategoryIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := svc.db.
		NewSelect().
		Model((*models.Category)(nil)).
		Column("c.id").
		Order("c.id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

func (svc *Service) UpdateCategory(ctx context.Context, category *models.Category, opts UpdateCategoryOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	category.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(category).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// DeleteCategories removes the given categories together with their titles
// and everything those titles own. Run it in a transaction.
func (svc *Service) DeleteCategories(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	titleIDs := svc.db.
		NewSelect().
		Model((*models.Title)(nil)).
		Column("t.id").
		Where("t.category_id IN (?)", bun.In(ids))

	_, err := svc.db.NewDelete().
		Model((*models.Thumbnail)(nil)).
		Where("id IN (?) OR id IN (?)", titleIDs, bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model((*models.Page)(nil)).
		Where("title_id IN (?)", titleIDs).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model((*models.TitleTag)(nil)).
		Where("title_id IN (?)", titleIDs).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model((*models.Title)(nil)).
		Where("category_id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model((*models.Category)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return errors.WithStack(err)
}
