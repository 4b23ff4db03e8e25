package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/scan"
	"github.com/sitescan/sitescan/internal/sitemap"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/internal/store/model"
	"github.com/sitescan/sitescan/internal/validation"
	"github.com/sitescan/sitescan/pkg/metrics"
)

// JobTimeout bounds one scan end to end. The batch validator alone needs one
// second per URL, so this scales with the per-scan URL cap.
const JobTimeout = 30 * time.Minute

// Progress checkpoints. Sitemap resolution owns 0-20, the credit check and
// deduction 20-30, the validation batch 30-90, persistence 90-100.
const (
	progressResolving  = 5
	progressResolved   = 20
	progressCharged    = 30
	progressValidated  = 90
	progressPersisting = 95
	progressDone       = 100
)

// Resolver is the sitemap dependency of the worker.
type Resolver interface {
	Resolve(ctx context.Context, sitemapURL string) (*sitemap.Result, error)
}

// BatchRunner is the validation dependency of the worker.
type BatchRunner interface {
	Run(ctx context.Context, urls []string, onProgress validation.ProgressFunc) []validation.Result
}

// Limiter gates job starts for throughput capping.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ScanWorker drives one scan job through its lifecycle: processing, sitemap
// resolution, credit deduction, validation, persistence, terminal state.
type ScanWorker struct {
	river.WorkerDefaults[ScanArgs]
	store    store.Store
	resolver Resolver
	batch    BatchRunner
	limiter  Limiter
}

func NewScanWorker(st store.Store, resolver Resolver, batch BatchRunner, limiter Limiter) *ScanWorker {
	return &ScanWorker{
		store:    st,
		resolver: resolver,
		batch:    batch,
		limiter:  limiter,
	}
}

func (w *ScanWorker) Timeout(job *river.Job[ScanArgs]) time.Duration {
	return JobTimeout
}

// Work executes one scan job. Domain failures are terminal: the scan is
// marked failed, deducted credits are refunded, and the job completes without
// error, because retrying a broken sitemap or an insufficient balance will
// not make them better. Only infrastructure errors propagate to the queue's
// retry machinery.
func (w *ScanWorker) Work(ctx context.Context, job *river.Job[ScanArgs]) error {
	logger := zap.S().Named("scan_worker")
	scanID := job.Args.ScanID
	userID := job.Args.UserID

	if err := ctx.Err(); err != nil {
		return err
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	// Re-entrancy guard: a retried job whose earlier attempt already finished
	// the scan must not touch it again.
	current, err := w.store.Scan().Get(ctx, scanID)
	if err != nil {
		return fmt.Errorf("loading scan %s: %w", scanID, err)
	}
	if api.StringToScanStatus(current.Status).IsTerminal() {
		logger.Infof("scan %s already terminal (%s), skipping attempt %d", scanID, current.Status, job.Attempt)
		return nil
	}

	if _, err := w.store.Scan().UpdateStatus(ctx, scanID, api.ScanStatusProcessing, nil); err != nil {
		return fmt.Errorf("moving scan %s to processing: %w", scanID, err)
	}
	w.reportProgress(ctx, job.ID, progressResolving, model.JobStageResolving)

	resolved, err := w.resolver.Resolve(ctx, job.Args.SitemapURL)
	if err != nil {
		scan.MarkFailed(ctx, w.store, scanID, userID, err.Error(), scan.ReasonScanRefund)
		return nil
	}
	for _, warning := range resolved.Warnings {
		logger.Infof("scan %s: %s", scanID, warning)
	}

	urlCount := len(resolved.URLs)
	if err := w.store.Scan().SetTotalUrls(ctx, scanID, urlCount); err != nil {
		return fmt.Errorf("persisting url count for scan %s: %w", scanID, err)
	}
	w.reportProgress(ctx, job.ID, progressResolved, model.JobStageCharging)

	if err := w.deductCredits(ctx, scanID, userID, urlCount); err != nil {
		if insufficient, ok := err.(*insufficientCreditsError); ok {
			scan.MarkFailed(ctx, w.store, scanID, userID, insufficient.Error(), scan.ReasonScanRefund)
			return nil
		}
		if errors.Is(err, errScanNotChargeable) {
			logger.Infof("scan %s left processing before the charge, aborting attempt %d", scanID, job.Attempt)
			return nil
		}
		return fmt.Errorf("deducting credits for scan %s: %w", scanID, err)
	}
	w.reportProgress(ctx, job.ID, progressCharged, model.JobStageValidating)

	results := w.batch.Run(ctx, resolved.URLs, func(p validation.Progress) {
		progress := progressCharged + (progressValidated-progressCharged)*p.Processed/p.Total
		w.reportProgress(ctx, job.ID, progress, model.JobStageValidating)
	})
	w.reportProgress(ctx, job.ID, progressPersisting, model.JobStagePersisting)

	rows := make([]model.ScanResult, 0, len(results))
	for _, r := range results {
		rows = append(rows, model.ScanResult{
			ID:        uuid.New(),
			ScanID:    scanID,
			URL:       r.URL,
			Errors:    model.MakeJSONField(r.Errors),
			Warnings:  model.MakeJSONField(r.Warnings),
			IsValid:   r.IsValid,
			CheckedAt: r.CheckedAt,
		})
	}
	if err := w.store.ScanResult().CreateBulk(ctx, rows); err != nil {
		scan.MarkFailed(ctx, w.store, scanID, userID, "failed to persist scan results: "+err.Error(), scan.ReasonScanRefund)
		return nil
	}

	if _, err := w.store.Scan().UpdateStatus(ctx, scanID, api.ScanStatusSuccess, nil); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// the scan went terminal underneath us, a cancellation already
			// settled it and refunded the charge
			logger.Infof("scan %s finished elsewhere, discarding attempt %d", scanID, job.Attempt)
			return nil
		}
		return fmt.Errorf("moving scan %s to success: %w", scanID, err)
	}
	w.reportProgress(ctx, job.ID, progressDone, model.JobStagePersisting)
	metrics.IncreaseScansTotalMetric(string(api.ScanStatusSuccess))

	summary := validation.Summarize(results)
	logger.Infof("scan %s done: %d urls, %d valid (%d%%), %d errors, %d warnings",
		scanID, summary.Total, summary.Valid, summary.ValidPercent, summary.TotalErrors, summary.TotalWarnings)
	return nil
}

// deductCredits charges exactly urlCount credits, once. The credits_deducted
// flag and the ledger decrement commit in the same transaction, so a retry
// after a crash between the two cannot double-charge.
func (w *ScanWorker) deductCredits(ctx context.Context, scanID uuid.UUID, userID string, urlCount int) error {
	balance, err := w.store.Credit().GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	if balance < urlCount {
		return &insufficientCreditsError{required: urlCount, available: balance}
	}

	txCtx, err := w.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}

	flipped, err := w.store.Scan().MarkCreditsDeducted(txCtx, scanID)
	if err != nil {
		_, _ = store.Rollback(txCtx)
		return err
	}
	if !flipped {
		_, _ = store.Rollback(txCtx)
		current, err := w.store.Scan().Get(ctx, scanID)
		if err != nil {
			return err
		}
		if current.CreditsDeducted {
			// a previous attempt already charged this scan
			return nil
		}
		// the scan is no longer processing, a cancellation won the race and
		// its refund decision already saw credits_deducted=false
		return errScanNotChargeable
	}

	if err := w.store.Credit().Deduct(txCtx, userID, urlCount); err != nil {
		_, _ = store.Rollback(txCtx)
		if err == store.ErrInsufficientBalance {
			// the coarse check above raced with another deduction
			return &insufficientCreditsError{required: urlCount, available: balance}
		}
		return err
	}

	if _, err := store.Commit(txCtx); err != nil {
		return err
	}

	metrics.AddCreditsDeductedMetric(urlCount)
	zap.S().Named("scan_worker").Infof("deducted %d credits from user %s for scan %s (%s)",
		urlCount, userID, scanID, scan.ReasonScanCharge)
	return nil
}

// reportProgress writes the progress percentage into the job's metadata so
// status polling can read it. Best effort: a failed write only loses one
// progress tick.
func (w *ScanWorker) reportProgress(ctx context.Context, jobID int64, progress int, stage string) {
	meta, err := json.Marshal(model.ScanJobMetadata{Progress: progress, Stage: stage})
	if err != nil {
		return
	}
	if err := w.store.Job().UpdateMetadata(ctx, jobID, meta); err != nil {
		zap.S().Named("scan_worker").Debugf("failed to update progress for job %d: %v", jobID, err)
	}
}

// errScanNotChargeable means the scan left the processing state between the
// worker's terminal-state check and the deduction. The attempt is discarded
// without charging.
var errScanNotChargeable = errors.New("scan is no longer chargeable")

type insufficientCreditsError struct {
	required  int
	available int
}

func (e *insufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.required, e.available)
}
