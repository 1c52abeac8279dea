package scanner

import (
	"context"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/yomuyume/yomuyume/pkg/categories"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/library"
	"github.com/yomuyume/yomuyume/pkg/metrics"
	"github.com/yomuyume/yomuyume/pkg/models"
	"github.com/yomuyume/yomuyume/pkg/sidecar"
	"github.com/yomuyume/yomuyume/pkg/thumbnail"
	"github.com/yomuyume/yomuyume/pkg/thumbnails"
)

func (s *Scanner) scanCategory(ctx context.Context, p *pass, found library.Category) {
	log := logger.FromContext(ctx).Data(logger.Data{"category": found.Name})
	ctx = log.WithContext(ctx)

	category, err := s.reconcileCategory(ctx, p, found)
	if err != nil {
		log.Err(err).Error("failed to reconcile category")
		p.hooks.skipped(ctx, found.Path, err)
		return
	}
	p.stats.Categories++

	for _, t := range library.ListTitles(ctx, found.Path, s.config.ArchiveExtensions) {
		if ctx.Err() != nil {
			return
		}
		outcome, err := s.scanTitle(ctx, category, t)
		p.stats.Titles++
		if err != nil {
			logger.FromContext(ctx).Err(err).Error("failed to reconcile title", logger.Data{"title_path": t.Path})
			recordOutcome(p.stats, 0)
			p.hooks.skipped(ctx, t.Path, err)
			continue
		}
		recordOutcome(p.stats, outcome)
	}
}

// reconcileCategory makes sure the category has a stable id, writes its row
// and refreshes its thumbnail.
func (s *Scanner) reconcileCategory(ctx context.Context, p *pass, found library.Category) (*models.Category, error) {
	log := logger.FromContext(ctx)
	meta := sidecar.LoadCategory(ctx, found.Path)

	id := ""
	if meta.ID != nil {
		id = *meta.ID
	}
	if id == "" && meta.Broken() {
		// The id may be in the sidecar we couldn't read.
		p.keepCategories = true
		return nil, errors.WithStack(errcodes.MetadataParse(nil, "can't identify category with unreadable sidecar %s", sidecar.CategoryPath(found.Path)))
	}
	if _, dup := p.seen[id]; dup && id != "" {
		log.Warn("category id already used by another directory, assigning a new one", logger.Data{"id": id})
		id = ""
	}
	if id == "" {
		meta.SetID(uuid.NewString())
		// Without the id on disk the next pass would see a different
		// category, so don't store one we couldn't write back.
		if err := meta.Save(); err != nil {
			return nil, errors.Wrap(err, "failed to write category id")
		}
		id = *meta.ID
	}
	p.seen[id] = struct{}{}

	name := filepath.Base(found.Path)
	if meta.Name != nil && *meta.Name != "" {
		name = *meta.Name
	}

	category, err := s.categoryService.RetrieveCategory(ctx, categories.RetrieveCategoryOptions{ID: &id})
	if err != nil && !errors.Is(err, errcodes.NotFound("Category")) {
		return nil, errors.WithStack(errcodes.Persistence(err, "failed to retrieve category %s", id))
	}
	if category == nil {
		category = &models.Category{ID: id, Name: name, Description: meta.Description}
		if err := s.categoryService.CreateCategory(ctx, category); err != nil {
			return nil, errors.WithStack(errcodes.Persistence(err, "failed to create category %s", id))
		}
		log.Info("created category", logger.Data{"id": id})
	} else {
		var cols columns
		cols.setString(&category.Name, name, "name")
		cols.setOptional(&category.Description, meta.Description, "description")
		if err := s.categoryService.UpdateCategory(ctx, category, categories.UpdateCategoryOptions{Columns: cols}); err != nil {
			return nil, errors.WithStack(errcodes.Persistence(err, "failed to update category %s", id))
		}
	}

	res, _ := s.resolver.ResolveDir(ctx, found.Path, meta.Thumbnail, found.Name)
	var thumb *models.Thumbnail
	if res != nil {
		thumb = &models.Thumbnail{
			ID:       id,
			Path:     path.Join(filepath.Base(found.Path), res.Name),
			Blurhash: res.Blurhash,
			Width:    res.Width,
			Height:   res.Height,
		}
	}
	if err := s.replaceThumbnail(ctx, thumbnails.NewService(s.db), id, thumb); err != nil {
		log.Err(err).Error("failed to store category thumbnail")
	} else if hint, changed := thumbnail.UpdateHint(meta.Thumbnail, res); changed {
		meta.SetThumbnail(hint)
	}

	if err := meta.Save(); err != nil {
		log.Err(err).Warn("failed to write category sidecar")
	}

	return category, nil
}

// replaceThumbnail makes the stored thumbnail for id match thumb, deleting it
// when thumb is nil. Nothing is written when they already match.
func (s *Scanner) replaceThumbnail(ctx context.Context, svc *thumbnails.Service, id string, thumb *models.Thumbnail) error {
	stored, err := svc.RetrieveThumbnail(ctx, id)
	if err != nil && !errors.Is(err, errcodes.NotFound("Thumbnail")) {
		return errors.WithStack(errcodes.Persistence(err, "failed to retrieve thumbnail %s", id))
	}

	if thumb == nil {
		if stored == nil {
			return nil
		}
		return errors.WithStack(svc.DeleteThumbnail(ctx, id))
	}

	if stored != nil &&
		stored.Path == thumb.Path &&
		stored.Blurhash == thumb.Blurhash &&
		stored.Width == thumb.Width &&
		stored.Height == thumb.Height {
		return nil
	}
	if stored != nil {
		thumb.CreatedAt = stored.CreatedAt
	}
	return errors.WithStack(svc.UpsertThumbnail(ctx, thumb))
}

func recordOutcome(stats *models.JobScanData, outcome Outcome) {
	label := outcome.String()
	switch outcome {
	case OutcomeUnchanged:
		stats.Unchanged++
	case OutcomeMoved:
		stats.Moved++
	case OutcomeReencode:
		stats.Encoded++
	default:
		stats.Failed++
		label = "failed"
	}
	metrics.TitlesTotal.WithLabelValues(label).Inc()
}
