package scanner

import (
	"sort"

	"github.com/yomuyume/yomuyume/pkg/fingerprint"
	"github.com/yomuyume/yomuyume/pkg/models"
)

// pageDiff is how the stored pages of a title have to change to match a fresh
// set of fingerprints. Every path lands in exactly one of the four groups.
type pageDiff struct {
	Deleted   []*models.Page
	Inserted  []*models.Page
	Updated   []*models.Page
	Unchanged []*models.Page
}

// diffPages compares the stored pages of a title with the fingerprints of its
// freshly extracted pages. caption returns the description a page should
// have.
func diffPages(titleID string, stored []*models.Page, hashed map[string]fingerprint.Fingerprint, caption func(path string) *string) pageDiff {
	var diff pageDiff

	byPath := make(map[string]*models.Page, len(stored))
	for _, p := range stored {
		if _, ok := hashed[p.Path]; !ok {
			diff.Deleted = append(diff.Deleted, p)
			continue
		}
		byPath[p.Path] = p
	}

	keys := make([]string, 0, len(hashed))
	for k := range hashed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fp := hashed[k]
		description := caption(k)

		existing, ok := byPath[k]
		if !ok {
			diff.Inserted = append(diff.Inserted, &models.Page{
				TitleID:     titleID,
				Path:        k,
				Blurhash:    fp.Blurhash,
				Width:       fp.Width,
				Height:      fp.Height,
				Description: description,
			})
			continue
		}

		if existing.Blurhash == fp.Blurhash &&
			existing.Width == fp.Width &&
			existing.Height == fp.Height &&
			equalOptional(existing.Description, description) {
			diff.Unchanged = append(diff.Unchanged, existing)
			continue
		}

		existing.Blurhash = fp.Blurhash
		existing.Width = fp.Width
		existing.Height = fp.Height
		existing.Description = description
		diff.Updated = append(diff.Updated, existing)
	}

	return diff
}

func (d pageDiff) deletedIDs() []string {
	ids := make([]string, 0, len(d.Deleted))
	for _, p := range d.Deleted {
		ids = append(ids, p.ID)
	}
	return ids
}
