package scanner

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/spaolacci/murmur3"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/archive"
	"github.com/yomuyume/yomuyume/pkg/database"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/fingerprint"
	"github.com/yomuyume/yomuyume/pkg/library"
	"github.com/yomuyume/yomuyume/pkg/models"
	"github.com/yomuyume/yomuyume/pkg/pages"
	"github.com/yomuyume/yomuyume/pkg/sidecar"
	"github.com/yomuyume/yomuyume/pkg/tags"
	"github.com/yomuyume/yomuyume/pkg/thumbnail"
	"github.com/yomuyume/yomuyume/pkg/thumbnails"
	"github.com/yomuyume/yomuyume/pkg/titles"
)

var pageColumns = []string{"blurhash", "width", "height", "description"}

func (s *Scanner) scanTitle(ctx context.Context, category *models.Category, found library.Title) (Outcome, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"title_path": found.Path})
	ctx = log.WithContext(ctx)

	hash, err := archive.Hash(found.Path)
	if err != nil {
		return 0, err
	}
	meta := sidecar.LoadTitle(ctx, found.Path)

	byPath, err := s.titleService.RetrieveTitle(ctx, titles.RetrieveTitleOptions{Path: &found.Path})
	if err != nil && !errors.Is(err, errcodes.NotFound("Title")) {
		return 0, errors.WithStack(errcodes.Persistence(err, "failed to retrieve title"))
	}

	var moved *models.Title
	if byPath == nil || byPath.Hash != hash {
		candidates, err := s.titleService.ListTitles(ctx, titles.ListTitlesOptions{Hash: &hash})
		if err != nil {
			return 0, errors.WithStack(errcodes.Persistence(err, "failed to look up titles by hash"))
		}
		moved = findMoved(candidates, found.Path, exists)
	}

	decision := classify(byPath, moved, hash)
	log.Debug("classified title", logger.Data{"outcome": decision.Outcome.String()})

	switch decision.Outcome {
	case OutcomeReencode:
		err = s.reencodeTitle(ctx, category, found, meta, decision.Title, hash)
	default:
		err = s.refreshTitle(ctx, category, found, meta, decision)
	}
	if err != nil {
		return 0, err
	}

	if err := meta.Save(); err != nil {
		log.Err(err).Warn("failed to write title sidecar")
	}
	return decision.Outcome, nil
}

// applyTitleFields copies what the walk and the sidecar say about a title onto
// its row.
func applyTitleFields(t *models.Title, categoryID string, found library.Title, meta *sidecar.TitleMetadata) columns {
	name := found.Name
	if meta.Title != nil && *meta.Title != "" {
		name = *meta.Title
	}

	var cols columns
	cols.setString(&t.CategoryID, categoryID, "category_id")
	cols.setString(&t.Name, name, "name")
	cols.setString(&t.Path, found.Path, "path")
	cols.setOptional(&t.Author, meta.Author, "author")
	cols.setOptional(&t.Description, meta.Description, "description")
	cols.setOptional(&t.ReleaseDate, meta.ReleaseDate, "release_date")
	return cols
}

// refreshTitle handles titles whose pages are already stored: it updates the
// row's metadata (and path, for a moved title) and its tags.
func (s *Scanner) refreshTitle(ctx context.Context, category *models.Category, found library.Title, meta *sidecar.TitleMetadata, decision Decision) error {
	title := decision.Title
	cols := applyTitleFields(title, category.ID, found, meta)

	err := database.RunInTx(ctx, s.db, s.config.DatabaseMaxRetries, func(ctx context.Context, tx bun.Tx) error {
		titleService := titles.NewService(tx)
		if decision.Replaced != nil {
			if err := titleService.DeleteTitles(ctx, []string{decision.Replaced.ID}); err != nil {
				return err
			}
		}
		if err := titleService.UpdateTitle(ctx, title, titles.UpdateTitleOptions{Columns: cols}); err != nil {
			return err
		}
		return tags.NewService(tx).SyncTitleTags(ctx, title.ID, meta.Tags)
	})
	if err != nil {
		return errors.WithStack(errcodes.Persistence(err, "failed to update title %s", title.ID))
	}
	if decision.Outcome == OutcomeMoved {
		logger.FromContext(ctx).Info("title moved", logger.Data{"title_id": title.ID})
	}

	return s.refreshThumbnailHint(ctx, category, found, meta, title)
}

// refreshThumbnailHint re-resolves the thumbnail of a title whose pages
// weren't touched when its sidecar names a thumbnail other than the stored
// one. Only the named member is extracted.
func (s *Scanner) refreshThumbnailHint(ctx context.Context, category *models.Category, found library.Title, meta *sidecar.TitleMetadata, title *models.Title) error {
	if meta.Thumbnail == nil {
		return nil
	}

	svc := thumbnails.NewService(s.db)
	stored, err := svc.RetrieveThumbnail(ctx, title.ID)
	if err != nil && !errors.Is(err, errcodes.NotFound("Thumbnail")) {
		return errors.WithStack(errcodes.Persistence(err, "failed to retrieve thumbnail"))
	}
	if stored != nil && stored.Path == *meta.Thumbnail {
		return nil
	}

	a, err := archive.Open(found.Path)
	if err != nil {
		return err
	}
	defer a.Close()

	members := make([]string, 0)
	for _, name := range a.Members() {
		if s.isImage(name) {
			members = append(members, name)
		}
	}

	var res *thumbnail.Result
	if match, ok := s.resolver.Find(thumbnail.NewListSource(members), meta.Thumbnail, found.Name); ok && match.Tier.FromHint() {
		scratch := s.scratchDir(category, found)
		s.removeScratch(ctx, scratch)
		defer s.removeScratch(ctx, scratch)

		if _, err := a.Extract(scratch, func(name string) bool { return name == match.Name }); err != nil {
			return err
		}
		res, _ = s.resolver.ResolveFile(ctx, scratch, match)
	}

	if res != nil {
		if err := s.replaceThumbnail(ctx, svc, title.ID, titleThumbnail(title.ID, res)); err != nil {
			return err
		}
	}
	if hint, changed := thumbnail.UpdateHint(meta.Thumbnail, res); changed {
		data := logger.Data{"old": *meta.Thumbnail}
		if hint != nil {
			data["new"] = *hint
		}
		logger.FromContext(ctx).Info("updating thumbnail hint", data)
		meta.SetThumbnail(hint)
	}
	return nil
}

// reencodeTitle extracts and hashes the pages of a new or changed title, then
// writes the title, its pages, thumbnail and tags in one transaction. Nothing
// is written if extraction fails.
func (s *Scanner) reencodeTitle(ctx context.Context, category *models.Category, found library.Title, meta *sidecar.TitleMetadata, title *models.Title, hash string) error {
	log := logger.FromContext(ctx)

	scratch := s.scratchDir(category, found)
	s.removeScratch(ctx, scratch)
	defer s.removeScratch(ctx, scratch)

	hashed, err := s.hashPages(ctx, found.Path, scratch)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	res, _ := s.resolver.ResolvePages(hashed, meta.Thumbnail, found.Name)

	created := title == nil
	var cols columns
	if created {
		title = &models.Title{ID: uuid.NewString(), Hash: hash}
		applyTitleFields(title, category.ID, found, meta)
	} else {
		cols = applyTitleFields(title, category.ID, found, meta)
		cols.setString(&title.Hash, hash, "hash")
	}

	var diff pageDiff
	err = database.RunInTx(ctx, s.db, s.config.DatabaseMaxRetries, func(ctx context.Context, tx bun.Tx) error {
		titleService := titles.NewService(tx)
		if created {
			if err := titleService.CreateTitle(ctx, title); err != nil {
				return err
			}
		} else if err := titleService.UpdateTitle(ctx, title, titles.UpdateTitleOptions{Columns: cols}); err != nil {
			return err
		}

		pageService := pages.NewService(tx)
		stored, err := pageService.ListPages(ctx, pages.ListPagesOptions{TitleID: &title.ID})
		if err != nil {
			return err
		}
		diff = diffPages(title.ID, stored, hashed, meta.PageDescription)
		if err := pageService.DeletePages(ctx, diff.deletedIDs()); err != nil {
			return err
		}
		if err := pageService.CreatePages(ctx, diff.Inserted); err != nil {
			return err
		}
		for _, p := range diff.Updated {
			if err := pageService.UpdatePage(ctx, p, pages.UpdatePageOptions{Columns: pageColumns}); err != nil {
				return err
			}
		}

		var thumb *models.Thumbnail
		if res != nil {
			thumb = titleThumbnail(title.ID, res)
		}
		if err := s.replaceThumbnail(ctx, thumbnails.NewService(tx), title.ID, thumb); err != nil {
			return err
		}

		return tags.NewService(tx).SyncTitleTags(ctx, title.ID, meta.Tags)
	})
	if err != nil {
		return errors.WithStack(errcodes.Persistence(err, "failed to store title"))
	}

	if hint, changed := thumbnail.UpdateHint(meta.Thumbnail, res); changed {
		meta.SetThumbnail(hint)
	}

	log.Info("title encoded", logger.Data{
		"title_id": title.ID,
		"created":  created,
		"hashed":   len(hashed),
		"inserted": len(diff.Inserted),
		"updated":  len(diff.Updated),
		"deleted":  len(diff.Deleted),
	})
	return nil
}

// hashPages extracts the images of an archive into scratch and fingerprints
// them, keyed by member name.
func (s *Scanner) hashPages(ctx context.Context, archivePath, scratch string) (map[string]fingerprint.Fingerprint, error) {
	a, err := archive.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	names, err := a.Extract(scratch, s.isImage)
	if err != nil {
		return nil, err
	}

	toHash := make([]fingerprint.Page, 0, len(names))
	for _, name := range names {
		local, ok := archive.MemberPath(scratch, name)
		if !ok {
			continue
		}
		toHash = append(toHash, fingerprint.Page{Key: name, Path: local, Ext: imageExt(name)})
	}
	return s.hasher.EncodeAll(ctx, toHash), nil
}

func titleThumbnail(titleID string, res *thumbnail.Result) *models.Thumbnail {
	return &models.Thumbnail{
		ID:       titleID,
		Path:     res.Name,
		Blurhash: res.Blurhash,
		Width:    res.Width,
		Height:   res.Height,
	}
}

func (s *Scanner) isImage(name string) bool {
	ext := imageExt(name)
	for _, f := range s.config.ImageFormats {
		if strings.EqualFold(f, ext) {
			return true
		}
	}
	return false
}

func imageExt(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// scratchDir is where a title is extracted. The archive's path is part of the
// name so that two titles never share one.
func (s *Scanner) scratchDir(category *models.Category, found library.Title) string {
	dir := filepath.Join(s.config.TempDir, category.ID, fmt.Sprintf("%s-%016x", found.Name, murmur3.Sum64([]byte(found.Path))))
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func (s *Scanner) removeScratch(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to remove scratch dir", logger.Data{"dir": dir})
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return !os.IsNotExist(err)
}
