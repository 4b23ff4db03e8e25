package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river/rivertype"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/auth"
	"github.com/sitescan/sitescan/internal/scan"
	"github.com/sitescan/sitescan/internal/scan/jobs"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/internal/store/model"
	"github.com/sitescan/sitescan/pkg/log"
)

// Prober performs the cheap reachability check before a scan is accepted.
type Prober interface {
	Probe(ctx context.Context, sitemapURL string) error
}

// QueueClient is the slice of the queue client the scan service needs.
type QueueClient interface {
	InsertScanJob(ctx context.Context, args jobs.ScanArgs) (int64, string, error)
	JobCancel(ctx context.Context, jobID int64) (*rivertype.JobRow, error)
}

type ScanService struct {
	store   store.Store
	prober  Prober
	queue   QueueClient
	credits *CreditService
	logger  *log.StructuredLogger
}

func NewScanService(st store.Store, prober Prober, queue QueueClient, credits *CreditService) *ScanService {
	return &ScanService{
		store:   st,
		prober:  prober,
		queue:   queue,
		credits: credits,
		logger:  log.NewDebugLogger("scan_service"),
	}
}

// CreateScan accepts a scan request: probes the sitemap URL, fast-fails a
// zero balance, persists the pending record and enqueues the job. It returns
// as soon as the job is queued; processing happens in the worker.
func (ss *ScanService) CreateScan(ctx context.Context, user auth.User, sitemapURL string) (*model.Scan, *api.JobInfo, error) {
	tracer := ss.logger.WithContext(ctx).Operation("create_scan").
		WithString("user_id", user.ID).
		WithString("sitemap_url", sitemapURL).
		Build()

	if err := ss.prober.Probe(ctx, sitemapURL); err != nil {
		tracer.Error(err).Log()
		return nil, nil, NewErrInvalidSitemapURL(err.Error())
	}

	// coarse precondition: the worker re-checks against the real URL count
	balance, err := ss.credits.GetBalance(ctx, user.ID)
	if err != nil {
		tracer.Error(err).Log()
		return nil, nil, err
	}
	if balance < 1 {
		return nil, nil, NewErrInsufficientCredits(1, balance)
	}

	scanRecord, err := ss.store.Scan().Create(ctx, model.Scan{
		ID:         uuid.New(),
		UserID:     user.ID,
		SitemapURL: sitemapURL,
		Status:     string(api.ScanStatusPending),
		TotalUrls:  0,
		StartedAt:  time.Now().UTC(),
	})
	if err != nil {
		tracer.Error(err).Log()
		return nil, nil, err
	}
	tracer.Step("scan_created").WithUUID("scan_id", scanRecord.ID).Log()

	jobID, jobState, err := ss.queue.InsertScanJob(ctx, jobs.ScanArgs{
		ScanID:     scanRecord.ID,
		UserID:     user.ID,
		SitemapURL: sitemapURL,
	})
	if err != nil {
		// the scan exists but never got a job; fail it so it cannot hang in
		// pending forever
		msg := "failed to enqueue scan job: " + err.Error()
		_, _ = ss.store.Scan().UpdateStatus(ctx, scanRecord.ID, api.ScanStatusFailed, &msg)
		tracer.Error(err).Log()
		return nil, nil, err
	}

	if err := ss.store.Scan().SetJobID(ctx, scanRecord.ID, jobID); err != nil {
		tracer.Error(err).Log()
	}
	scanRecord.JobID = &jobID

	tracer.Success().WithUUID("scan_id", scanRecord.ID).WithParam("job_id", jobID).Log()
	return scanRecord, &api.JobInfo{Id: jobID, State: jobState}, nil
}

func (ss *ScanService) GetScan(ctx context.Context, scanID uuid.UUID, user auth.User) (*model.Scan, error) {
	scanRecord, err := ss.store.Scan().Get(ctx, scanID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrScanNotFound(scanID)
		}
		return nil, err
	}
	if scanRecord.UserID != user.ID {
		// not-owned reads as not-found; ownership is not leaked
		return nil, NewErrScanNotFound(scanID)
	}
	return scanRecord, nil
}

func (ss *ScanService) ListScans(ctx context.Context, user auth.User) (model.ScanList, error) {
	return ss.store.Scan().List(ctx,
		store.NewScanQueryFilter().ByUserID(user.ID),
		store.NewScanQueryOptions().WithSortOrder(store.SortByCreatedTime))
}

func (ss *ScanService) GetScanResults(ctx context.Context, scanID uuid.UUID, user auth.User) (model.ScanResultList, error) {
	if _, err := ss.GetScan(ctx, scanID, user); err != nil {
		return nil, err
	}
	return ss.store.ScanResult().ListByScan(ctx, scanID)
}

// GetScanStatus merges the persisted scan state with the queue-side progress
// for polling clients.
func (ss *ScanService) GetScanStatus(ctx context.Context, scanID uuid.UUID, user auth.User) (*api.ScanStatusReply, error) {
	scanRecord, err := ss.GetScan(ctx, scanID, user)
	if err != nil {
		return nil, err
	}

	reply := &api.ScanStatusReply{
		Id:           scanRecord.ID,
		Status:       api.StringToScanStatus(scanRecord.Status),
		TotalUrls:    scanRecord.TotalUrls,
		ErrorMessage: scanRecord.ErrorMessage,
	}

	switch reply.Status {
	case api.ScanStatusPending:
		reply.Progress = 0
	case api.ScanStatusSuccess:
		reply.Progress = 100
	default:
		reply.Progress = ss.jobProgress(ctx, scanRecord)
		if reply.Status == api.ScanStatusFailed && reply.Progress == 0 {
			reply.Progress = 100
		}
	}
	return reply, nil
}

func (ss *ScanService) jobProgress(ctx context.Context, scanRecord *model.Scan) int {
	if scanRecord.JobID == nil {
		return 0
	}
	row, err := ss.store.Job().Get(ctx, *scanRecord.JobID)
	if err != nil {
		return 0
	}
	var meta model.ScanJobMetadata
	if err := json.Unmarshal(row.MetadataJSON, &meta); err != nil {
		return 0
	}
	return meta.Progress
}

// CancelScan marks a pending or processing scan as failed with an explicit
// cancellation message and tries to stop the queued job. The in-flight worker
// is not forcibly interrupted; its terminal-state guard makes any late writes
// no-ops.
func (ss *ScanService) CancelScan(ctx context.Context, scanID uuid.UUID, user auth.User) error {
	tracer := ss.logger.WithContext(ctx).Operation("cancel_scan").WithUUID("scan_id", scanID).Build()

	scanRecord, err := ss.GetScan(ctx, scanID, user)
	if err != nil {
		return err
	}
	if api.StringToScanStatus(scanRecord.Status).IsTerminal() {
		return NewErrScanAlreadyFinished(scanID)
	}

	if scanRecord.JobID != nil {
		if _, err := ss.queue.JobCancel(ctx, *scanRecord.JobID); err != nil {
			tracer.Step("job_cancel_failed").WithParam("job_id", *scanRecord.JobID).WithString("error", err.Error()).Log()
		}
	}

	scan.MarkFailed(ctx, ss.store, scanID, user.ID, "cancelled by user", scan.ReasonScanCancel)
	tracer.Success().Log()
	return nil
}

// DeleteScan removes a terminal or pending scan and all its results. A scan
// that is mid-processing has a worker writing to it and must be cancelled
// first.
func (ss *ScanService) DeleteScan(ctx context.Context, scanID uuid.UUID, user auth.User) error {
	scanRecord, err := ss.GetScan(ctx, scanID, user)
	if err != nil {
		return err
	}
	if api.StringToScanStatus(scanRecord.Status) == api.ScanStatusProcessing {
		return NewErrScanInProgress(scanID)
	}
	return ss.store.Scan().Delete(ctx, scanID)
}
