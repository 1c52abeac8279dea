package joblogs

import (
	"context"
	"fmt"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/yomuyume/yomuyume/pkg/models"
)

const maxDataValueLen = 1024

// JobLogger logs to the process logger and records the same message against
// a job.
type JobLogger struct {
	jobID   int
	service *Service
	log     logger.Logger
}

func (svc *Service) NewJobLogger(jobID int, log logger.Logger) *JobLogger {
	return &JobLogger{
		jobID:   jobID,
		service: svc,
		log:     log.Data(logger.Data{"job_id": jobID}),
	}
}

func (l *JobLogger) Info(ctx context.Context, msg string, data logger.Data) {
	l.log.Info(msg, data)
	l.persist(ctx, models.JobLogLevelInfo, msg, data, nil)
}

// Warn records err's message with the data. Its stack stays in the process
// log.
func (l *JobLogger) Warn(ctx context.Context, msg string, err error, data logger.Data) {
	l.log.Err(err).Warn(msg, data)
	l.persist(ctx, models.JobLogLevelWarn, msg, withError(data, err), nil)
}

// Error records err along with its stack trace, when it carries one.
func (l *JobLogger) Error(ctx context.Context, msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
	var stack *string
	if err != nil {
		s := fmt.Sprintf("%+v", err)
		stack = &s
	}
	l.persist(ctx, models.JobLogLevelError, msg, withError(data, err), stack)
}

func withError(data logger.Data, err error) logger.Data {
	if err == nil {
		return data
	}
	out := make(logger.Data, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

// persist never fails the job: a log row that can't be written is only
// reported to the process log.
func (l *JobLogger) persist(ctx context.Context, level, msg string, data logger.Data, stackTrace *string) {
	var dataStr *string
	if len(data) > 0 {
		truncated := make(logger.Data, len(data))
		for k, v := range data {
			if s, ok := v.(string); ok && len(s) > maxDataValueLen {
				v = truncateMiddle(s, maxDataValueLen)
			}
			truncated[k] = v
		}
		b, err := json.Marshal(truncated)
		if err == nil {
			s := string(b)
			dataStr = &s
		}
	}

	jobLog := &models.JobLog{
		JobID:      l.jobID,
		Level:      level,
		Message:    msg,
		Data:       dataStr,
		StackTrace: stackTrace,
	}
	if err := l.service.CreateJobLog(context.WithoutCancel(ctx), jobLog); err != nil {
		l.log.Err(err).Warn("failed to persist job log")
	}
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
