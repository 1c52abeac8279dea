package joblogs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/models"
)

type ListJobLogsOptions struct {
	JobID int
	// AfterID skips the rows up to and including this id, so that a caller
	// can pick up where an earlier listing stopped.
	AfterID *int
	Levels  []string
	Limit   *int
}

type Service struct {
	db bun.IDB
}

func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJobLog(ctx context.Context, jobLog *models.JobLog) error {
	if jobLog.CreatedAt.IsZero() {
		jobLog.CreatedAt = time.Now()
	}
	_, err := svc.db.NewInsert().Model(jobLog).Returning("*").Exec(ctx)
	return errors.WithStack(err)
}

// ListJobLogs returns a job's logs oldest first.
func (svc *Service) ListJobLogs(ctx context.Context, opts ListJobLogsOptions) ([]*models.JobLog, error) {
	logs := []*models.JobLog{}

	q := svc.db.
		NewSelect().
		Model(&logs).
		Where("jl.job_id = ?", opts.JobID).
		Order("jl.id ASC")

	if opts.AfterID != nil {
		q = q.Where("jl.id > ?", *opts.AfterID)
	}

	if len(opts.Levels) > 0 {
		q = q.Where("jl.level IN (?)", bun.In(opts.Levels))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return logs, nil
}
