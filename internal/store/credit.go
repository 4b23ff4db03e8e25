package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sitescan/sitescan/internal/store/model"
)

// Credit is the ledger storage. Every mutation is a single guarded SQL
// statement, so concurrent callers for the same user serialize on the row and
// the balance can never be driven negative.
type Credit interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	EnsureBalance(ctx context.Context, userID string, initial int) (int, error)
	Deduct(ctx context.Context, userID string, amount int) error
	Add(ctx context.Context, userID string, amount int) error
}

type CreditStore struct {
	db *gorm.DB
}

// Make sure we conform to Credit interface
var _ Credit = (*CreditStore)(nil)

func NewCreditStore(db *gorm.DB) Credit {
	return &CreditStore{db: db}
}

// GetBalance reads the user's balance, creating a zero row on first access.
// A user that never touched the ledger is a user with zero credits, not an
// error.
func (s *CreditStore) GetBalance(ctx context.Context, userID string) (int, error) {
	return s.EnsureBalance(ctx, userID, 0)
}

// EnsureBalance inserts a balance row with the given initial amount unless a
// row already exists, then returns the current balance.
func (s *CreditStore) EnsureBalance(ctx context.Context, userID string, initial int) (int, error) {
	db := s.getDB(ctx)

	row := model.CreditBalance{UserID: userID, Balance: initial}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("ensuring balance row: %w", err)
	}

	var balance model.CreditBalance
	if err := db.First(&balance, "user_id = ?", userID).Error; err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

// Deduct atomically checks and decrements in one statement. The WHERE clause
// carries the sufficiency check, so there is no window for a concurrent
// deduction to observe a stale balance.
func (s *CreditStore) Deduct(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("deduct amount must be positive, got %d", amount)
	}

	if _, err := s.GetBalance(ctx, userID); err != nil {
		return err
	}

	result := s.getDB(ctx).Model(&model.CreditBalance{}).
		Where("user_id = ?", userID).
		Where("balance >= ?", amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// Add atomically increments the balance. Used for refunds and purchases;
// amount validation (positive, top-up ceiling) belongs to the service layer.
func (s *CreditStore) Add(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("add amount must be positive, got %d", amount)
	}

	if _, err := s.GetBalance(ctx, userID); err != nil {
		return err
	}

	result := s.getDB(ctx).Model(&model.CreditBalance{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *CreditStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
