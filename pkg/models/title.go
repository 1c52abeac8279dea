package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Title struct {
	bun.BaseModel `bun:"table:titles,alias:t"`

	ID          string    `bun:",pk" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CategoryID  string    `bun:",nullzero" json:"category_id"`
	Name        string    `bun:",nullzero" json:"name"`
	Author      *string   `json:"author,omitempty"`
	Description *string   `json:"description,omitempty"`
	ReleaseDate *string   `json:"release_date,omitempty"`
	// Path is the absolute path of the archive and is unique across titles.
	Path string `bun:",nullzero" json:"path"`
	// Hash is the hex-encoded 128-bit content hash of the archive bytes.
	Hash string `bun:",nullzero" json:"hash"`

	Category *Category `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	Pages    []*Page   `bun:"rel:has-many,join:id=title_id" json:"pages,omitempty"`
}
