package scanner

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/categories"
	"github.com/yomuyume/yomuyume/pkg/config"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/models"
	"github.com/yomuyume/yomuyume/pkg/pages"
	"github.com/yomuyume/yomuyume/pkg/tags"
	"github.com/yomuyume/yomuyume/pkg/testutils"
	"github.com/yomuyume/yomuyume/pkg/thumbnails"
	"github.com/yomuyume/yomuyume/pkg/titles"
)

type testContext struct {
	t       *testing.T
	ctx     context.Context
	db      *bun.DB
	cfg     *config.Config
	scanner *Scanner
	counter *testutils.MutationCounter
	root    string
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	db := testutils.NewDB(t)

	cfg := config.NewForTest()
	cfg.LibraryPath = filepath.Join(t.TempDir(), "library")
	cfg.TempDir = filepath.Join(t.TempDir(), "scratch")
	cfg.HashWorkers = 2
	require.NoError(t, os.MkdirAll(cfg.LibraryPath, 0755))

	return &testContext{
		t:       t,
		ctx:     logger.New().WithContext(context.Background()),
		db:      db,
		cfg:     cfg,
		scanner: New(cfg, db),
		counter: testutils.NewMutationCounter(db),
		root:    cfg.LibraryPath,
	}
}

// page returns a small PNG; different seeds give visibly different images.
func (tc *testContext) page(seed uint8) []byte {
	return testutils.PNG(tc.t, 24, 36, color.RGBA{R: seed * 60, G: 255 - seed*40, B: seed * 25})
}

func (tc *testContext) path(parts ...string) string {
	return filepath.Join(append([]string{tc.root}, parts...)...)
}

func (tc *testContext) writeArchive(rel string, members ...testutils.Member) string {
	p := tc.path(rel)
	testutils.WriteZip(tc.t, p, members)
	return p
}

func (tc *testContext) writeFile(rel, content string) {
	testutils.WriteFile(tc.t, tc.path(rel), []byte(content))
}

func (tc *testContext) readFile(rel string) string {
	b, err := os.ReadFile(tc.path(rel))
	require.NoError(tc.t, err)
	return string(b)
}

func (tc *testContext) run() *models.JobScanData {
	tc.t.Helper()
	stats, err := tc.scanner.Run(tc.ctx, Hooks{})
	require.NoError(tc.t, err)
	return stats
}

func (tc *testContext) listTitles() []*models.Title {
	tc.t.Helper()
	all, err := titles.NewService(tc.db).ListTitles(tc.ctx, titles.ListTitlesOptions{})
	require.NoError(tc.t, err)
	return all
}

func (tc *testContext) titleAt(rel string) *models.Title {
	tc.t.Helper()
	p := tc.path(rel)
	title, err := titles.NewService(tc.db).RetrieveTitle(tc.ctx, titles.RetrieveTitleOptions{Path: &p})
	require.NoError(tc.t, err)
	return title
}

func (tc *testContext) listPages(titleID string) []*models.Page {
	tc.t.Helper()
	all, err := pages.NewService(tc.db).ListPages(tc.ctx, pages.ListPagesOptions{TitleID: &titleID})
	require.NoError(tc.t, err)
	return all
}

func (tc *testContext) pagesByPath(titleID string) map[string]*models.Page {
	byPath := map[string]*models.Page{}
	for _, p := range tc.listPages(titleID) {
		byPath[p.Path] = p
	}
	return byPath
}

func (tc *testContext) thumbnail(id string) *models.Thumbnail {
	tc.t.Helper()
	th, err := thumbnails.NewService(tc.db).RetrieveThumbnail(tc.ctx, id)
	if err != nil {
		require.ErrorIs(tc.t, err, errcodes.NotFound("Thumbnail"))
		return nil
	}
	return th
}

func (tc *testContext) categoryIDs() []string {
	tc.t.Helper()
	ids, err := categories.NewService(tc.db).ListCategoryIDs(tc.ctx)
	require.NoError(tc.t, err)
	return ids
}

func (tc *testContext) tagNames(titleID string) []string {
	tc.t.Helper()
	list, err := tags.NewService(tc.db).ListTitleTags(tc.ctx, titleID)
	require.NoError(tc.t, err)
	names := make([]string, 0, len(list))
	for _, tag := range list {
		names = append(names, tag.Name)
	}
	return names
}

// mutations returns the counted statements that touched table.
func (tc *testContext) mutations(table string) []string {
	var out []string
	for _, q := range tc.counter.Queries() {
		if strings.Contains(q, `"`+table+`"`) {
			out = append(out, q)
		}
	}
	return out
}

// lookupTag looks a tag up by name.
func lookupTag(tc *testContext, name string) (*models.Tag, error) {
	return tags.NewService(tc.db).RetrieveTag(tc.ctx, tags.RetrieveTagOptions{Name: &name})
}
