package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeScan = "scan"
)

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID         int         `bun:",pk,autoincrement" json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Type       string      `bun:",nullzero" json:"type"`
	Status     string      `bun:",nullzero" json:"status"`
	Data       string      `bun:",nullzero" json:"-"`
	DataParsed interface{} `bun:"-" json:"data"`
	Progress   int         `json:"progress"`
	ProcessID  *string     `json:"process_id,omitempty"`
	Error      *string     `json:"error,omitempty"`
}

func (job *Job) UnmarshalData() error {
	switch job.Type {
	case JobTypeScan:
		job.DataParsed = &JobScanData{}
	default:
		return errors.Errorf("unknown job type %q", job.Type)
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// JobScanData is the payload of a scan job. The counters are filled in as
// the pass progresses.
type JobScanData struct {
	Categories int `json:"categories"`
	Titles     int `json:"titles"`
	Unchanged  int `json:"unchanged"`
	Moved      int `json:"moved"`
	Encoded    int `json:"encoded"`
	Failed     int `json:"failed"`
	Deleted    int `json:"deleted"`
}

// MarshalData serializes DataParsed into Data.
func (job *Job) MarshalData() error {
	if job.DataParsed == nil {
		job.Data = "{}"
		return nil
	}
	b, err := json.Marshal(job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	job.Data = string(b)
	return nil
}
