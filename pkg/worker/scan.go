package worker

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/yomuyume/yomuyume/pkg/joblogs"
	"github.com/yomuyume/yomuyume/pkg/jobs"
	"github.com/yomuyume/yomuyume/pkg/models"
	"github.com/yomuyume/yomuyume/pkg/scanner"
)

func errUnknownType(t string) error {
	return errors.Errorf("unknown job type %q", t)
}

// ProcessScanJob runs one pass over the library, recording progress and the
// pass's counters on the job. Whatever the pass skips is added to the job's
// logs.
func (w *Worker) ProcessScanJob(ctx context.Context, job *models.Job, jobLog *joblogs.JobLogger) error {
	log := logger.FromContext(ctx)
	jobLog.Info(ctx, "processing scan job", logger.Data{"library_path": w.config.LibraryPath})

	progress := func(done, total int) {
		if total == 0 {
			return
		}
		job.Progress = done * 100 / total
		err := w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"progress"}})
		if err != nil {
			log.Err(err).Warn("failed to record scan progress")
		}
	}

	skipped := func(ctx context.Context, path string, err error) {
		jobLog.Warn(ctx, "skipped", err, logger.Data{"path": path})
	}

	stats, err := w.scanner.Run(ctx, scanner.Hooks{Progress: progress, Skipped: skipped})

	if stats != nil {
		job.DataParsed = stats
		if uerr := w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"data"}}); uerr != nil {
			log.Err(uerr).Warn("failed to record scan results")
		}
	}
	if err != nil {
		return errors.WithStack(err)
	}

	jobLog.Info(ctx, "finished scan job", logger.Data{
		"categories": stats.Categories,
		"titles":     stats.Titles,
		"failed":     stats.Failed,
		"deleted":    stats.Deleted,
	})
	return nil
}
