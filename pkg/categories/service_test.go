package categories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/models"
	"github.com/yomuyume/yomuyume/pkg/testutils"
)

func count(t *testing.T, db *bun.DB, model interface{}) int {
	t.Helper()
	n, err := db.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestCreateAndRetrieveCategory(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	err := svc.CreateCategory(ctx, &models.Category{ID: "cat-1", Name: "Manga"})
	require.NoError(t, err)

	id := "cat-1"
	category, err := svc.RetrieveCategory(ctx, RetrieveCategoryOptions{ID: &id})
	require.NoError(t, err)
	assert.Equal(t, "Manga", category.Name)
	assert.Nil(t, category.Description)

	missing := "cat-2"
	_, err = svc.RetrieveCategory(ctx, RetrieveCategoryOptions{ID: &missing})
	assert.ErrorIs(t, err, errcodes.NotFound("Category"))
}

func TestUpdateCategory(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	category := &models.Category{ID: "cat-1", Name: "Manga"}
	require.NoError(t, svc.CreateCategory(ctx, category))

	description := "Comics from Japan"
	category.Name = "Comics"
	category.Description = &description
	require.NoError(t, svc.UpdateCategory(ctx, category, UpdateCategoryOptions{Columns: []string{"name", "description"}}))

	retrieved, err := svc.RetrieveCategory(ctx, RetrieveCategoryOptions{ID: &category.ID})
	require.NoError(t, err)
	assert.Equal(t, "Comics", retrieved.Name)
	require.NotNil(t, retrieved.Description)
	assert.Equal(t, description, *retrieved.Description)
}

func TestDeleteCategories_Cascades(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, svc.CreateCategory(ctx, &models.Category{ID: id, Name: id}))
		_, err := db.NewInsert().Model(&models.Thumbnail{ID: id, Path: "cover.png", Blurhash: "x"}).Exec(ctx)
		require.NoError(t, err)

		titleID := "title-" + id
		_, err = db.NewInsert().Model(&models.Title{ID: titleID, CategoryID: id, Name: id, Path: "/" + id + ".zip", Hash: id}).Exec(ctx)
		require.NoError(t, err)
		_, err = db.NewInsert().Model(&models.Page{ID: "page-" + id, TitleID: titleID, Path: "1.png", Blurhash: "x"}).Exec(ctx)
		require.NoError(t, err)
		_, err = db.NewInsert().Model(&models.Thumbnail{ID: titleID, Path: "1.png", Blurhash: "x"}).Exec(ctx)
		require.NoError(t, err)
		tag := &models.Tag{Name: "tag-" + id}
		_, err = db.NewInsert().Model(tag).Returning("*").Exec(ctx)
		require.NoError(t, err)
		_, err = db.NewInsert().Model(&models.TitleTag{TitleID: titleID, TagID: tag.ID}).Exec(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteCategories(ctx, []string{"b"}))

	ids, err := svc.ListCategoryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	assert.Equal(t, 1, count(t, db, (*models.Title)(nil)))
	assert.Equal(t, 1, count(t, db, (*models.Page)(nil)))
	assert.Equal(t, 2, count(t, db, (*models.Thumbnail)(nil)))
	assert.Equal(t, 1, count(t, db, (*models.TitleTag)(nil)))
}

func TestDeleteCategories_Empty(t *testing.T) {
	svc := NewService(testutils.NewDB(t))
	assert.NoError(t, svc.DeleteCategories(context.Background(), nil))
}
