package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	JobLogLevelInfo  = "info"
	JobLogLevelWarn  = "warn"
	JobLogLevelError = "error"
)

// JobLog is a message recorded while a job ran, kept so that a pass's
// skipped titles can be looked up after the process logs are gone.
type JobLog struct {
	bun.BaseModel `bun:"table:job_logs,alias:jl"`

	ID         int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	JobID      int       `bun:",nullzero" json:"job_id"`
	Level      string    `bun:",nullzero" json:"level"`
	Message    string    `bun:",nullzero" json:"message"`
	Data       *string   `json:"data,omitempty"`
	StackTrace *string   `json:"stack_trace,omitempty"`
}
