package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Page struct {
	bun.BaseModel `bun:"table:pages,alias:p"`

	ID        string    `bun:",pk" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TitleID   string    `bun:",nullzero" json:"title_id"`
	// Path is relative to the root of the archive, with forward slashes.
	Path        string  `bun:",nullzero" json:"path"`
	Blurhash    string  `bun:",nullzero" json:"blurhash"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Description *string `json:"description,omitempty"`
}
