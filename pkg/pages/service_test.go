package pages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yomuyume/yomuyume/pkg/models"
	"github.com/yomuyume/yomuyume/pkg/testutils"
)

func TestPages(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := db.NewInsert().Model(&models.Category{ID: "cat", Name: "Category"}).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&models.Title{ID: "title", CategoryID: "cat", Name: "Title", Path: "/t.zip", Hash: "h"}).Exec(ctx)
	require.NoError(t, err)

	err = svc.CreatePages(ctx, []*models.Page{
		{TitleID: "title", Path: "b.png", Blurhash: "B", Width: 10, Height: 20},
		{TitleID: "title", Path: "a.png", Blurhash: "A", Width: 10, Height: 20},
	})
	require.NoError(t, err)

	titleID := "title"
	pages, err := svc.ListPages(ctx, ListPagesOptions{TitleID: &titleID})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "a.png", pages[0].Path)
	assert.NotEmpty(t, pages[0].ID)

	pages[0].Blurhash = "A2"
	pages[0].Width = 30
	require.NoError(t, svc.UpdatePage(ctx, pages[0], UpdatePageOptions{Columns: []string{"blurhash", "width"}}))
	require.NoError(t, svc.DeletePages(ctx, []string{pages[1].ID}))

	pages, err = svc.ListPages(ctx, ListPagesOptions{TitleID: &titleID})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "A2", pages[0].Blurhash)
	assert.Equal(t, 30, pages[0].Width)
	assert.Equal(t, 20, pages[0].Height)
}

func TestCreatePages_Empty(t *testing.T) {
	svc := NewService(testutils.NewDB(t))
	assert.NoError(t, svc.CreatePages(context.Background(), nil))
	assert.NoError(t, svc.DeletePages(context.Background(), nil))
}
