package service

import (
	"context"
	"encoding/json"
	"errors"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/auth"
	"github.com/sitescan/sitescan/internal/scan/jobs"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/pkg/log"
)

// JobService exposes queue introspection: one job's state for polling, and
// the aggregate queue counters.
type JobService struct {
	store  store.Store
	logger *log.StructuredLogger
}

func NewJobService(st store.Store) *JobService {
	return &JobService{
		store:  st,
		logger: log.NewDebugLogger("job_service"),
	}
}

func (s *JobService) GetJob(ctx context.Context, jobID int64, user auth.User) (*api.JobInfo, error) {
	tracer := s.logger.WithContext(ctx).Operation("get_job").WithParam("job_id", jobID).Build()

	row, err := s.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		tracer.Error(err).Log()
		return nil, err
	}

	var args jobs.ScanArgs
	if err := json.Unmarshal(row.ArgsJSON, &args); err != nil {
		return nil, err
	}
	if args.UserID != user.ID {
		return nil, NewErrJobAccessForbidden(jobID)
	}

	info := &api.JobInfo{
		Id:      row.ID,
		State:   string(row.State),
		Attempt: row.Attempt,
	}

	var meta struct {
		Progress int    `json:"progress"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(row.MetadataJSON, &meta); err == nil {
		info.Progress = meta.Progress
		info.Error = meta.Error
	}

	tracer.Success().Log()
	return info, nil
}

func (s *JobService) QueueStats(ctx context.Context) (*api.QueueStats, error) {
	tracer := s.logger.WithContext(ctx).Operation("queue_stats").Build()

	stats, err := s.store.Job().Stats(ctx)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	tracer.Success().Log()
	return stats, nil
}
