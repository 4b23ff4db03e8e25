package scan

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/pkg/metrics"
)

// Ledger reasons recorded in the audit log.
const (
	ReasonScanCharge  = "scan charge"
	ReasonScanRefund  = "refund for failed scan"
	ReasonScanCancel  = "refund for cancelled scan"
	ReasonCreditTopUp = "credit purchase"
)

// MarkFailed moves a scan to the failed state and runs the compensating
// refund, tagged with refundReason in the audit log. Credits are refunded
// only when the deduction actually happened: the credits_deducted flag is the
// authority, never a zero totalUrls, so a failure before the deduction step
// cannot fake a refund.
//
// The refund is best effort. A refund error is logged and swallowed; it must
// not crash the worker or keep the job retrying.
func MarkFailed(ctx context.Context, st store.Store, scanID uuid.UUID, userID string, reason string, refundReason string) {
	logger := zap.S().Named("scan")

	scanRecord, err := st.Scan().UpdateStatus(ctx, scanID, api.ScanStatusFailed, &reason)
	if err != nil {
		logger.Errorf("failed to mark scan %s as failed: %v", scanID, err)
		return
	}
	metrics.IncreaseScansTotalMetric(string(api.ScanStatusFailed))
	logger.Infof("scan %s failed: %s", scanID, reason)

	if !scanRecord.CreditsDeducted {
		return
	}
	if scanRecord.TotalUrls <= 0 {
		// the flag says we charged but the URL count is gone; refusing to
		// refund zero keeps a real accounting bug visible
		logger.Errorf("scan %s has credits_deducted set but totalUrls=%d, skipping refund", scanID, scanRecord.TotalUrls)
		return
	}

	if err := st.Credit().Add(ctx, userID, scanRecord.TotalUrls); err != nil {
		logger.Errorf("failed to refund %d credits to user %s for scan %s (%s): %v",
			scanRecord.TotalUrls, userID, scanID, refundReason, err)
		return
	}
	metrics.AddCreditsRefundedMetric(scanRecord.TotalUrls)
	logger.Infof("refunded %d credits to user %s for scan %s (%s)",
		scanRecord.TotalUrls, userID, scanID, refundReason)
}
