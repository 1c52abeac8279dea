package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/models"
)

type RetrieveJobOptions struct {
	ID *int
}

type ListJobsOptions struct {
	Limit              *int
	Statuses           []string
	ProcessIDToExclude *string
}

type UpdateJobOptions struct {
	Columns []string
}

type Service struct {
	db bun.IDB
}

func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	if job.Data == "" {
		if err := job.MarshalData(); err != nil {
			return err
		}
	}

	_, err := svc.db.
		NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveJob(ctx context.Context, opts RetrieveJobOptions) (*models.Job, error) {
	job := &models.Job{}

	q := svc.db.
		NewSelect().
		Model(job)

	if opts.ID != nil {
		q = q.Where("j.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Job")
		}
		return nil, errors.WithStack(err)
	}

	if err := job.UnmarshalData(); err != nil {
		return nil, err
	}

	return job, nil
}

func (svc *Service) ListJobs(ctx context.Context, opts ListJobsOptions) ([]*models.Job, error) {
	jobs := []*models.Job{}

	q := svc.db.
		NewSelect().
		Model(&jobs).
		Order("j.created_at ASC", "j.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Statuses != nil {
		q = q.Where("j.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.ProcessIDToExclude != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("j.process_id IS NULL").
				WhereOr("j.process_id != ?", *opts.ProcessIDToExclude)
		})
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, job := range jobs {
		if err := job.UnmarshalData(); err != nil {
			return nil, err
		}
	}

	return jobs, nil
}

// HasActiveJobByType checks if there's a pending or in-progress job of the given type.
func (svc *Service) HasActiveJobByType(ctx context.Context, jobType string) (bool, error) {
	count, err := svc.db.NewSelect().
		Model((*models.Job)(nil)).
		Where("type = ?", jobType).
		Where("status IN (?)", bun.In([]string{models.JobStatusPending, models.JobStatusInProgress})).
		Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

func (svc *Service) UpdateJob(ctx context.Context, job *models.Job, opts UpdateJobOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	for _, c := range opts.Columns {
		if c == "data" {
			if err := job.MarshalData(); err != nil {
				return err
			}
			break
		}
	}

	job.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(job).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errcodes.NotFound("Job")
	}

	return nil
}

// ClaimJob marks the job in progress for processID, unless it has finished
// or is already claimed by that process. It reports whether the claim
// succeeded.
func (svc *Service) ClaimJob(ctx context.Context, job *models.Job, processID string) (bool, error) {
	now := time.Now()
	res, err := svc.db.
		NewUpdate().
		Model((*models.Job)(nil)).
		Set("status = ?", models.JobStatusInProgress).
		Set("process_id = ?", processID).
		Set("updated_at = ?", now).
		Where("id = ?", job.ID).
		Where("status IN (?)", bun.In([]string{models.JobStatusPending, models.JobStatusInProgress})).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("process_id IS NULL").
				WhereOr("process_id != ?", processID)
		}).
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	if n == 0 {
		return false, nil
	}

	job.Status = models.JobStatusInProgress
	job.ProcessID = &processID
	job.UpdatedAt = now
	return true, nil
}

// DeleteFinishedJobs deletes completed and failed jobs last updated before
// the given time, along with their logs. It returns how many were deleted.
func (svc *Service) DeleteFinishedJobs(ctx context.Context, before time.Time) (int, error) {
	res, err := svc.db.
		NewDelete().
		Model((*models.Job)(nil)).
		Where("status IN (?)", bun.In([]string{models.JobStatusCompleted, models.JobStatusFailed})).
		Where("updated_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(n), nil
}
