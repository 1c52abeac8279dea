package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		statements := []string{`
			CREATE TABLE categories (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				description TEXT
			)
`, `
			CREATE TABLE titles (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				category_id TEXT REFERENCES categories (id) ON DELETE CASCADE NOT NULL,
				name TEXT NOT NULL,
				author TEXT,
				description TEXT,
				release_date TEXT,
				path TEXT NOT NULL,
				hash TEXT NOT NULL
			)
`,
			`CREATE UNIQUE INDEX ux_titles_path ON titles (path)`,
			`CREATE INDEX ix_titles_hash ON titles (hash)`,
			`CREATE INDEX ix_titles_category_id ON titles (category_id)`,
			`
			CREATE TABLE pages (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title_id TEXT REFERENCES titles (id) ON DELETE CASCADE NOT NULL,
				path TEXT NOT NULL,
				blurhash TEXT NOT NULL,
				width INTEGER NOT NULL,
				height INTEGER NOT NULL,
				description TEXT
			)
`,
			`CREATE UNIQUE INDEX ux_pages_title_id_path ON pages (title_id, path)`,
			// A thumbnail shares its id with the category or title it belongs to.
			`
			CREATE TABLE thumbnails (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				path TEXT NOT NULL,
				blurhash TEXT NOT NULL,
				width INTEGER NOT NULL,
				height INTEGER NOT NULL
			)
`, `
			CREATE TABLE tags (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL
			)
`,
			`CREATE UNIQUE INDEX ux_tags_name ON tags (name)`,
			`
			CREATE TABLE title_tags (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				title_id TEXT REFERENCES titles (id) ON DELETE CASCADE NOT NULL,
				tag_id INTEGER REFERENCES tags (id) ON DELETE CASCADE NOT NULL
			)
`,
			`CREATE UNIQUE INDEX ux_title_tags_title_id_tag_id ON title_tags (title_id, tag_id)`,
			`CREATE INDEX ix_title_tags_tag_id ON title_tags (tag_id)`,
		}
		for _, stmt := range statements {
			if _, err := db.Exec(stmt); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"title_tags", "tags", "thumbnails", "pages", "titles", "categories"} {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
