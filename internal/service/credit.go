package service

import (
	"context"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/scan"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/pkg/log"
	"github.com/sitescan/sitescan/pkg/metrics"
)

// CreditService is the ledger facade. Atomicity lives in the store; this
// layer adds validation, audit logging and the signup bonus.
type CreditService struct {
	store       store.Store
	signupBonus int
	maxTopUp    int
	logger      *log.StructuredLogger
}

func NewCreditService(st store.Store, signupBonus, maxTopUp int) *CreditService {
	return &CreditService{
		store:       st,
		signupBonus: signupBonus,
		maxTopUp:    maxTopUp,
		logger:      log.NewDebugLogger("credit_service"),
	}
}

// GetBalance returns the user's balance. First contact seeds the signup
// bonus; the user never sees a "no balance" error.
func (cs *CreditService) GetBalance(ctx context.Context, userID string) (int, error) {
	tracer := cs.logger.WithContext(ctx).Operation("get_balance").WithString("user_id", userID).Build()

	balance, err := cs.store.Credit().EnsureBalance(ctx, userID, cs.signupBonus)
	if err != nil {
		tracer.Error(err).Log()
		return 0, err
	}

	tracer.Success().WithInt("balance", balance).Log()
	return balance, nil
}

// CheckSufficient is a pure read; it never mutates the balance.
func (cs *CreditService) CheckSufficient(ctx context.Context, userID string, required int) (*api.CreditCheck, error) {
	balance, err := cs.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	check := &api.CreditCheck{
		HasSufficient: balance >= required,
		Current:       balance,
		Required:      required,
	}
	if !check.HasSufficient {
		check.Deficit = required - balance
	}
	return check, nil
}

// Deduct atomically checks and decrements. The reason tags the audit log.
func (cs *CreditService) Deduct(ctx context.Context, userID string, amount int, reason string) error {
	tracer := cs.logger.WithContext(ctx).Operation("deduct").
		WithString("user_id", userID).
		WithInt("amount", amount).
		WithString("reason", reason).
		Build()

	if err := cs.store.Credit().Deduct(ctx, userID, amount); err != nil {
		if err == store.ErrInsufficientBalance {
			balance, balErr := cs.store.Credit().GetBalance(ctx, userID)
			if balErr != nil {
				balance = 0
			}
			return NewErrInsufficientCredits(amount, balance)
		}
		tracer.Error(err).Log()
		return err
	}

	metrics.AddCreditsDeductedMetric(amount)
	tracer.Success().Log()
	return nil
}

// Refund restores previously deducted credits. There is no upper bound:
// refunds give back what a scan took, which cannot be "too much".
func (cs *CreditService) Refund(ctx context.Context, userID string, amount int, reason string) error {
	tracer := cs.logger.WithContext(ctx).Operation("refund").
		WithString("user_id", userID).
		WithInt("amount", amount).
		WithString("reason", reason).
		Build()

	if amount <= 0 {
		return NewErrInvalidCreditAmount(amount, cs.maxTopUp)
	}

	if err := cs.store.Credit().Add(ctx, userID, amount); err != nil {
		tracer.Error(err).Log()
		return err
	}

	metrics.AddCreditsRefundedMetric(amount)
	tracer.Success().Log()
	return nil
}

// Add credits a purchase. Amounts above the top-up ceiling are rejected.
func (cs *CreditService) Add(ctx context.Context, userID string, amount int, reason string) (int, error) {
	tracer := cs.logger.WithContext(ctx).Operation("add").
		WithString("user_id", userID).
		WithInt("amount", amount).
		WithString("reason", reason).
		Build()

	if amount <= 0 || amount > cs.maxTopUp {
		return 0, NewErrInvalidCreditAmount(amount, cs.maxTopUp)
	}
	if reason == "" {
		reason = scan.ReasonCreditTopUp
	}

	if err := cs.store.Credit().Add(ctx, userID, amount); err != nil {
		tracer.Error(err).Log()
		return 0, err
	}

	balance, err := cs.store.Credit().GetBalance(ctx, userID)
	if err != nil {
		tracer.Error(err).Log()
		return 0, err
	}

	tracer.Success().WithInt("balance", balance).Log()
	return balance, nil
}
