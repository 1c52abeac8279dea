package tags

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/models"
)

type RetrieveTagOptions struct {
	ID   *int
	Name *string
}

type Service struct {
	db bun.IDB
}

// NewService accepts either the database or a transaction.
func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreateTag(ctx context.Context, tag *models.Tag) error {
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now()
	}

	_, err := svc.db.
		NewInsert().
		Model(tag).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveTag(ctx context.Context, opts RetrieveTagOptions) (*models.Tag, error) {
	tag := &models.Tag{}

	q := svc.db.
		NewSelect().
		Model(tag)

	if opts.ID != nil {
		q = q.Where("tg.id = ?", *opts.ID)
	}
	if opts.Name != nil {
		q = q.Where("tg.name = ?", *opts.Name)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Tag")
		}
		return nil, errors.WithStack(err)
	}

	return tag, nil
}

// FindOrCreateTag returns the tag with the given name, creating it first if
// it doesn't exist yet. Names are trimmed and compared exactly.
func (svc *Service) FindOrCreateTag(ctx context.Context, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("tag name cannot be empty")
	}

	tag, err := svc.RetrieveTag(ctx, RetrieveTagOptions{Name: &name})
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, errcodes.NotFound("Tag")) {
		return nil, err
	}

	tag = &models.Tag{Name: name}
	err = svc.CreateTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// ListTitleTags returns the tags linked to a title, sorted by name.
func (svc *Service) ListTitleTags(ctx context.Context, titleID string) ([]*models.Tag, error) {
	tags := []*models.Tag{}
	err := svc.db.
		NewSelect().
		Model(&tags).
		Join("JOIN title_tags AS tt ON tt.tag_id = tg.id").
		Where("tt.title_id = ?", titleID).
		Order("tg.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return tags, nil
}

// SyncTitleTags makes the title's tag links match names exactly. Links that
// already exist are left alone, so syncing an unchanged list writes nothing.
func (svc *Service) SyncTitleTags(ctx context.Context, titleID string, names []string) error {
	current, err := svc.ListTitleTags(ctx, titleID)
	if err != nil {
		return err
	}

	wanted := map[string]struct{}{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			wanted[name] = struct{}{}
		}
	}

	var stale []int
	for _, tag := range current {
		if _, ok := wanted[tag.Name]; ok {
			delete(wanted, tag.Name)
			continue
		}
		stale = append(stale, tag.ID)
	}

	if len(stale) > 0 {
		_, err := svc.db.NewDelete().
			Model((*models.TitleTag)(nil)).
			Where("title_id = ?", titleID).
			Where("tag_id IN (?)", bun.In(stale)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	missing := make([]string, 0, len(wanted))
	for name := range wanted {
		missing = append(missing, name)
	}
	sort.Strings(missing)

	for _, name := range missing {
		tag, err := svc.FindOrCreateTag(ctx, name)
		if err != nil {
			return err
		}
		_, err = svc.db.NewInsert().
			Model(&models.TitleTag{TitleID: titleID, TagID: tag.ID}).
			On("CONFLICT (title_id, tag_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// DeleteOrphanedTags removes tags no title links to anymore and returns how
// many were removed.
func (svc *Service) DeleteOrphanedTags(ctx context.Context) (int, error) {
	res, err := svc.db.NewDelete().
		Model((*models.Tag)(nil)).
		Where("id NOT IN (SELECT tag_id FROM title_tags)").
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return int(n), errors.WithStack(err)
}
