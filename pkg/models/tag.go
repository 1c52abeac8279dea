package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:tg"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `bun:",nullzero" json:"name"`
}

type TitleTag struct {
	bun.BaseModel `bun:"table:title_tags,alias:tt"`

	ID      int    `bun:",pk,autoincrement" json:"id"`
	TitleID string `bun:",nullzero" json:"title_id"`
	TagID   int    `bun:",nullzero" json:"tag_id"`
	Title   *Title `bun:"rel:belongs-to,join:title_id=id" json:"title,omitempty"`
	Tag     *Tag   `bun:"rel:belongs-to,join:tag_id=id" json:"tag,omitempty"`
}
