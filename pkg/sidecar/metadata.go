package sidecar

import (
	"context"
	"path"
	"strings"
)

// CategoryMetadata holds the overrides read from <category>.toml.
type CategoryMetadata struct {
	ID          *string
	Name        *string
	Description *string
	Thumbnail   *string

	doc *Document
}

func LoadCategory(ctx context.Context, dir string) *CategoryMetadata {
	doc := Load(ctx, CategoryPath(dir))
	name := doc.String("name")
	if name == nil {
		name = doc.String("title")
	}
	return &CategoryMetadata{
		ID:          doc.String("id"),
		Name:        name,
		Description: doc.String("description"),
		Thumbnail:   doc.String("thumbnail"),
		doc:         doc,
	}
}

func (m *CategoryMetadata) SetID(id string) {
	m.ID = &id
	m.doc.Set("id", &id)
}

// SetThumbnail records the resolved thumbnail file name; nil clears the hint.
func (m *CategoryMetadata) SetThumbnail(name *string) {
	m.Thumbnail = name
	m.doc.Set("thumbnail", name)
}

func (m *CategoryMetadata) Save() error {
	return m.doc.Save()
}

// Broken reports whether the sidecar exists but couldn't be parsed, in which
// case any id it holds is unknown.
func (m *CategoryMetadata) Broken() bool {
	return m.doc.Broken()
}

// TitleMetadata holds the overrides read from the sidecar next to a title
// archive.
type TitleMetadata struct {
	Title        *string
	Description  *string
	Author       *string
	Thumbnail    *string
	ReleaseDate  *string
	Tags         []string
	Descriptions map[string]string

	doc *Document
}

func LoadTitle(ctx context.Context, archive string) *TitleMetadata {
	doc := Load(ctx, TitlePath(archive))
	return &TitleMetadata{
		Title:        doc.String("title"),
		Description:  doc.String("description"),
		Author:       doc.String("author"),
		Thumbnail:    doc.String("thumbnail"),
		ReleaseDate:  doc.String("release_date"),
		Tags:         doc.Strings("tags"),
		Descriptions: doc.Table("descriptions"),
		doc:          doc,
	}
}

func (m *TitleMetadata) SetThumbnail(name *string) {
	m.Thumbnail = name
	m.doc.Set("thumbnail", name)
}

func (m *TitleMetadata) Save() error {
	return m.doc.Save()
}

// PageDescription returns the caption for a page. Captions may be keyed by
// the page's path inside the archive, its file name, or its file name without
// the extension.
func (m *TitleMetadata) PageDescription(pagePath string) *string {
	if len(m.Descriptions) == 0 {
		return nil
	}
	base := path.Base(pagePath)
	stem := strings.TrimSuffix(base, path.Ext(base))
	for _, key := range []string{pagePath, base, stem} {
		if d, ok := m.Descriptions[key]; ok {
			return &d
		}
	}
	return nil
}
