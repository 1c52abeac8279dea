package scanner

import (
	"testing"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yomuyume/yomuyume/pkg/fingerprint"
	"github.com/yomuyume/yomuyume/pkg/models"
)

func paths(pages []*models.Page) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Path)
	}
	return out
}

func TestDiffPages_Partition(t *testing.T) {
	stored := []*models.Page{
		{ID: "1", Path: "001.png", Blurhash: "a", Width: 10, Height: 20},
		{ID: "2", Path: "002.png", Blurhash: "b", Width: 10, Height: 20},
		{ID: "3", Path: "003.png", Blurhash: "c", Width: 10, Height: 20},
	}
	hashed := map[string]fingerprint.Fingerprint{
		"001.png": {Blurhash: "a", Width: 10, Height: 20},
		"002.png": {Blurhash: "B", Width: 10, Height: 20},
		"004.png": {Blurhash: "d", Width: 5, Height: 5},
	}

	diff := diffPages("title", stored, hashed, func(string) *string { return nil })

	assert.Equal(t, []string{"003.png"}, paths(diff.Deleted))
	assert.Equal(t, []string{"004.png"}, paths(diff.Inserted))
	assert.Equal(t, []string{"002.png"}, paths(diff.Updated))
	assert.Equal(t, []string{"001.png"}, paths(diff.Unchanged))
	assert.Equal(t, []string{"3"}, diff.deletedIDs())

	// Updated rows keep their id.
	require.Len(t, diff.Updated, 1)
	assert.Equal(t, "2", diff.Updated[0].ID)
	assert.Equal(t, "B", diff.Updated[0].Blurhash)

	require.Len(t, diff.Inserted, 1)
	assert.Equal(t, "title", diff.Inserted[0].TitleID)
	assert.Equal(t, 5, diff.Inserted[0].Width)

	seen := map[string]int{}
	for _, group := range [][]*models.Page{diff.Deleted, diff.Inserted, diff.Updated, diff.Unchanged} {
		for _, p := range group {
			seen[p.Path]++
		}
	}
	for path, n := range seen {
		assert.Equal(t, 1, n, path)
	}
	assert.Len(t, seen, 4)
}

func TestDiffPages_CaptionChangeIsAnUpdate(t *testing.T) {
	stored := []*models.Page{{ID: "1", Path: "001.png", Blurhash: "a", Width: 1, Height: 1}}
	hashed := map[string]fingerprint.Fingerprint{"001.png": {Blurhash: "a", Width: 1, Height: 1}}

	diff := diffPages("title", stored, hashed, func(p string) *string {
		return pointerutil.String("caption for " + p)
	})

	require.Len(t, diff.Updated, 1)
	assert.Equal(t, "caption for 001.png", *diff.Updated[0].Description)
	assert.Empty(t, diff.Unchanged)
}

func TestDiffPages_Empty(t *testing.T) {
	stored := []*models.Page{{ID: "1", Path: "001.png"}}
	diff := diffPages("title", stored, map[string]fingerprint.Fingerprint{}, func(string) *string { return nil })
	assert.Len(t, diff.Deleted, 1)
	assert.Empty(t, diff.Inserted)
}

func TestColumns(t *testing.T) {
	var cols columns
	name := "old"
	var author *string

	cols.setString(&name, "old", "name")
	cols.setOptional(&author, nil, "author")
	assert.Empty(t, cols)

	cols.setString(&name, "new", "name")
	cols.setOptional(&author, pointerutil.String("someone"), "author")
	assert.Equal(t, columns{"name", "author"}, cols)
	assert.Equal(t, "new", name)
	assert.Equal(t, "someone", *author)
}
