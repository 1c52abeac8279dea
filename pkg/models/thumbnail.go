package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Thumbnail is keyed by the id of the category or title it represents.
type Thumbnail struct {
	bun.BaseModel `bun:"table:thumbnails,alias:th"`

	ID        string    `bun:",pk" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Path      string    `bun:",nullzero" json:"path"`
	Blurhash  string    `bun:",nullzero" json:"blurhash"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}
