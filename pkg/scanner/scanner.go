package scanner

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/categories"
	"github.com/yomuyume/yomuyume/pkg/config"
	"github.com/yomuyume/yomuyume/pkg/database"
	"github.com/yomuyume/yomuyume/pkg/fingerprint"
	"github.com/yomuyume/yomuyume/pkg/library"
	"github.com/yomuyume/yomuyume/pkg/metrics"
	"github.com/yomuyume/yomuyume/pkg/models"
	"github.com/yomuyume/yomuyume/pkg/tags"
	"github.com/yomuyume/yomuyume/pkg/thumbnail"
	"github.com/yomuyume/yomuyume/pkg/titles"
	"github.com/yomuyume/yomuyume/pkg/transcode"
)

// Hooks are optional callbacks into a running pass.
type Hooks struct {
	// Progress is told how many of the pass's categories are done.
	Progress func(done, total int)
	// Skipped is told about each category or title that was left as it was
	// because reconciling it failed.
	Skipped func(ctx context.Context, path string, err error)
}

func (h Hooks) skipped(ctx context.Context, path string, err error) {
	if h.Skipped != nil {
		h.Skipped(ctx, path, err)
	}
}

// Scanner reconciles the catalog with the library on disk.
type Scanner struct {
	config *config.Config
	db     *bun.DB

	hasher   *fingerprint.Hasher
	resolver *thumbnail.Resolver

	categoryService *categories.Service
	tagService      *tags.Service
	titleService    *titles.Service
}

func New(cfg *config.Config, db *bun.DB) *Scanner {
	hasher := fingerprint.New(transcode.New(transcode.OptionsFromConfig(cfg)), cfg.HashWorkers)
	return &Scanner{
		config: cfg,
		db:     db,

		hasher:   hasher,
		resolver: thumbnail.New(hasher, cfg.ImageFormats, cfg.ThumbnailNames),

		categoryService: categories.NewService(db),
		tagService:      tags.NewService(db),
		titleService:    titles.NewService(db),
	}
}

// pass is the state of one run over the library.
type pass struct {
	hooks Hooks
	stats *models.JobScanData
	// seen holds the ids of the categories found on disk.
	seen map[string]struct{}
	// keepCategories is set when a category on disk couldn't be matched to
	// its id, so that stored categories mustn't be swept.
	keepCategories bool
}

// Run makes one full pass over the library: every category and title on
// disk is reconciled, and then whatever wasn't found is swept from the
// catalog. Only failing to read the library root (or cancellation) is
// returned as an error; everything else is logged and skipped.
func (s *Scanner) Run(ctx context.Context, hooks Hooks) (*models.JobScanData, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"library_path": s.config.LibraryPath})
	ctx = log.WithContext(ctx)

	start := time.Now()
	metrics.ScanRunning.Set(1)
	defer metrics.ScanRunning.Set(0)

	stats, err := s.run(ctx, hooks)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		return stats, err
	}
	metrics.ScansTotal.WithLabelValues("completed").Inc()

	log.Info("scan finished", logger.Data{
		"duration_ms": time.Since(start).Milliseconds(),
		"categories":  stats.Categories,
		"titles":      stats.Titles,
		"unchanged":   stats.Unchanged,
		"moved":       stats.Moved,
		"encoded":     stats.Encoded,
		"failed":      stats.Failed,
		"deleted":     stats.Deleted,
	})
	return stats, nil
}

func (s *Scanner) run(ctx context.Context, hooks Hooks) (*models.JobScanData, error) {
	p := &pass{
		hooks: hooks,
		stats: &models.JobScanData{},
		seen:  map[string]struct{}{},
	}

	found, err := library.ListCategories(ctx, s.config.LibraryPath)
	if err != nil {
		return p.stats, err
	}
	logger.FromContext(ctx).Info("scanning library", logger.Data{"categories": len(found)})

	if err := os.MkdirAll(s.config.TempDir, 0755); err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to create temp dir", logger.Data{"temp_dir": s.config.TempDir})
	}

	for i, category := range found {
		if err := ctx.Err(); err != nil {
			return p.stats, errors.WithStack(err)
		}
		s.scanCategory(ctx, p, category)
		if hooks.Progress != nil {
			hooks.Progress(i+1, len(found))
		}
	}

	if err := ctx.Err(); err != nil {
		return p.stats, errors.WithStack(err)
	}
	s.sweep(ctx, p)

	return p.stats, nil
}

// sweep deletes the categories that weren't seen during the pass, the titles
// whose archives are gone, and tags no title uses anymore.
func (s *Scanner) sweep(ctx context.Context, p *pass) {
	log := logger.FromContext(ctx)

	if p.keepCategories {
		log.Warn("skipping category sweep, some categories could not be identified")
	} else {
		ids, err := s.categoryService.ListCategoryIDs(ctx)
		if err != nil {
			log.Err(err).Error("failed to list categories")
		}
		stale := make([]string, 0)
		for _, id := range ids {
			if _, ok := p.seen[id]; !ok {
				stale = append(stale, id)
			}
		}
		if len(stale) > 0 {
			err := database.RunInTx(ctx, s.db, s.config.DatabaseMaxRetries, func(ctx context.Context, tx bun.Tx) error {
				return categories.NewService(tx).DeleteCategories(ctx, stale)
			})
			if err != nil {
				log.Err(err).Error("failed to delete categories", logger.Data{"ids": stale})
			} else {
				log.Info("deleted categories", logger.Data{"ids": stale})
				metrics.CategoriesDeleted.Add(float64(len(stale)))
				p.stats.Deleted += len(stale)
			}
		}
	}

	stored, err := s.titleService.ListTitlePaths(ctx)
	if err != nil {
		log.Err(err).Error("failed to list titles")
	}
	missing := make([]string, 0)
	for _, t := range stored {
		if _, err := os.Stat(t.Path); os.IsNotExist(err) {
			missing = append(missing, t.ID)
		}
	}
	if len(missing) > 0 {
		err := database.RunInTx(ctx, s.db, s.config.DatabaseMaxRetries, func(ctx context.Context, tx bun.Tx) error {
			return titles.NewService(tx).DeleteTitles(ctx, missing)
		})
		if err != nil {
			log.Err(err).Error("failed to delete titles", logger.Data{"ids": missing})
		} else {
			log.Info("deleted titles", logger.Data{"count": len(missing)})
			metrics.TitlesDeleted.Add(float64(len(missing)))
			p.stats.Deleted += len(missing)
		}
	}

	n, err := s.tagService.DeleteOrphanedTags(ctx)
	if err != nil {
		log.Err(err).Error("failed to delete unused tags")
	} else if n > 0 {
		log.Debug("deleted unused tags", logger.Data{"count": n})
	}
}
