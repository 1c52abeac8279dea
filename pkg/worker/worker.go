package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/uptrace/bun"
	"github.com/yomuyume/yomuyume/pkg/config"
	"github.com/yomuyume/yomuyume/pkg/joblogs"
	"github.com/yomuyume/yomuyume/pkg/jobs"
	"github.com/yomuyume/yomuyume/pkg/models"
	"github.com/yomuyume/yomuyume/pkg/scanner"
)

var processID = randStringBytes(8)

const defaultPollInterval = 5 * time.Second

type processFunc func(ctx context.Context, job *models.Job, jobLog *joblogs.JobLogger) error

type Worker struct {
	config *config.Config
	log    logger.Logger

	processFuncs map[string]processFunc
	pollInterval time.Duration

	jobService    *jobs.Service
	jobLogService *joblogs.Service
	scanner       *scanner.Scanner

	// ctx is cancelled on shutdown so that a running scan stops between
	// titles.
	ctx    context.Context
	cancel context.CancelFunc

	queue          chan *models.Job
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
	doneScheduling chan struct{}
}

func New(cfg *config.Config, db *bun.DB) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		config: cfg,
		log:    logger.New(),

		pollInterval: defaultPollInterval,

		jobService:    jobs.NewService(db),
		jobLogService: joblogs.NewService(db),
		scanner:       scanner.New(cfg, db),

		ctx:    ctx,
		cancel: cancel,

		queue:          make(chan *models.Job, cfg.WorkerProcesses),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
		doneScheduling: make(chan struct{}),
	}

	w.processFuncs = map[string]processFunc{
		models.JobTypeScan: w.ProcessScanJob,
	}

	return w
}

func (w *Worker) Start() {
	go w.scheduleScans()
	go w.fetchJobs()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processJobs()
	}
}

// scheduleScans queues a scan right away and then every sync interval,
// unless one is already waiting or running.
func (w *Worker) scheduleScans() {
	w.enqueueScan()
	w.pruneJobs()

	if w.config.SyncIntervalMinutes <= 0 {
		<-w.shutdown
		w.doneScheduling <- struct{}{}
		return
	}

	ticker := time.NewTicker(time.Duration(w.config.SyncIntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			w.doneScheduling <- struct{}{}
			return
		case <-ticker.C:
			w.enqueueScan()
			w.pruneJobs()
		}
	}
}

// enqueueScan creates a pending scan job if there isn't an active one. It
// returns the job it created, if any.
func (w *Worker) enqueueScan() *models.Job {
	ctx := w.log.WithContext(context.Background())

	active, err := w.jobService.HasActiveJobByType(ctx, models.JobTypeScan)
	if err != nil {
		w.log.Err(err).Error("check active scan error")
		return nil
	}
	if active {
		w.log.Debug("scan already queued")
		return nil
	}

	job := &models.Job{
		Type:       models.JobTypeScan,
		Status:     models.JobStatusPending,
		DataParsed: &models.JobScanData{},
	}
	if err := w.jobService.CreateJob(ctx, job); err != nil {
		w.log.Err(err).Error("create scan job error")
		return nil
	}
	w.log.Info("scan job queued", logger.Data{"job_id": job.ID})
	return job
}

// pruneJobs deletes finished jobs older than the retention period.
func (w *Worker) pruneJobs() int {
	if w.config.JobRetentionDays <= 0 {
		return 0
	}
	ctx := w.log.WithContext(context.Background())

	before := time.Now().AddDate(0, 0, -w.config.JobRetentionDays)
	n, err := w.jobService.DeleteFinishedJobs(ctx, before)
	if err != nil {
		w.log.Err(err).Error("prune jobs error")
		return 0
	}
	if n > 0 {
		w.log.Info("pruned finished jobs", logger.Data{"count": n, "before": before})
	}
	return n
}

func (w *Worker) fetchJobs() {
	timer := time.NewTimer(w.pollInterval)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more jobs to the queue.
			timer.Stop()
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			j, err := w.jobService.ListJobs(context.Background(), jobs.ListJobsOptions{
				Limit:              pointerutil.Int(1),
				Statuses:           []string{models.JobStatusPending, models.JobStatusInProgress},
				ProcessIDToExclude: &processID,
			})
			if err != nil {
				w.log.Err(err).Error("list jobs error")
				timer.Reset(w.pollInterval)
				continue
			}
			for _, job := range j {
				select {
				case w.queue <- job:
				case <-w.shutdown:
				}
			}
			timer.Reset(w.pollInterval)
		}
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case job := <-w.queue:
			w.processJob(job)
		}
	}
}

func (w *Worker) processJob(job *models.Job) {
	// Prep the context to be passed down to the process function.
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return
	}
	log := w.log.ID(id.String()).Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": processID})
	ctx := log.WithContext(w.ctx)

	// Claim the job so that it's not picked up by another process.
	claimed, err := w.jobService.ClaimJob(ctx, job, processID)
	if err != nil {
		log.Err(err).Error("claim job error")
		return
	}
	if !claimed {
		log.Debug("job already claimed")
		return
	}

	jobLog := w.jobLogService.NewJobLogger(job.ID, log)

	fn, ok := w.processFuncs[job.Type]
	if !ok {
		w.finishJob(ctx, job, jobLog, errUnknownType(job.Type))
		return
	}

	w.finishJob(ctx, job, jobLog, fn(ctx, job, jobLog))
}

// finishJob marks the job completed, or failed with the error's message. A
// job interrupted by shutdown stays in progress so that the next process
// picks it up again.
func (w *Worker) finishJob(ctx context.Context, job *models.Job, jobLog *joblogs.JobLogger, procErr error) {
	log := logger.FromContext(ctx)
	if procErr != nil && errors.Is(procErr, context.Canceled) {
		log.Info("job interrupted by shutdown")
		return
	}
	ctx = context.WithoutCancel(ctx)

	job.Status = models.JobStatusCompleted
	if procErr != nil {
		jobLog.Error(ctx, "job failed", procErr, nil)
		job.Status = models.JobStatusFailed
		job.Error = pointerutil.String(procErr.Error())
	}

	err := w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
		Columns: []string{"status", "error"},
	})
	if err != nil {
		log.Err(err).Error("update job error")
	}
}

func (w *Worker) Shutdown() {
	close(w.shutdown)
	w.cancel()

	<-w.doneScheduling
	<-w.doneFetching
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
