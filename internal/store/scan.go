package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/store/model"
)

type Scan interface {
	Create(ctx context.Context, scan model.Scan) (*model.Scan, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Scan, error)
	List(ctx context.Context, filter *ScanQueryFilter, opts *ScanQueryOptions) (model.ScanList, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status api.ScanStatus, errorMessage *string) (*model.Scan, error)
	SetTotalUrls(ctx context.Context, id uuid.UUID, total int) error
	SetJobID(ctx context.Context, id uuid.UUID, jobID int64) error
	MarkCreditsDeducted(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ScanStore struct {
	db *gorm.DB
}

// Make sure we conform to Scan interface
var _ Scan = (*ScanStore)(nil)

func NewScanStore(db *gorm.DB) Scan {
	return &ScanStore{db: db}
}

func (s *ScanStore) Create(ctx context.Context, scan model.Scan) (*model.Scan, error) {
	result := s.getDB(ctx).Create(&scan)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &scan, nil
}

func (s *ScanStore) Get(ctx context.Context, id uuid.UUID) (*model.Scan, error) {
	scan := model.NewScanFromID(id)
	result := s.getDB(ctx).First(&scan)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return scan, nil
}

func (s *ScanStore) List(ctx context.Context, filter *ScanQueryFilter, opts *ScanQueryOptions) (model.ScanList, error) {
	var scans model.ScanList
	tx := s.getDB(ctx).Model(&model.Scan{})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Find(&scans); result.Error != nil {
		return nil, result.Error
	}
	return scans, nil
}

// UpdateStatus moves a scan along its lifecycle. Transitions are guarded at
// the statement level: a scan that already reached success or failed is never
// touched again, regardless of what the caller observed earlier.
func (s *ScanStore) UpdateStatus(ctx context.Context, id uuid.UUID, status api.ScanStatus, errorMessage *string) (*model.Scan, error) {
	updates := map[string]any{"status": string(status)}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	if status.IsTerminal() {
		now := time.Now().UTC()
		updates["finished_at"] = &now
	}

	result := s.getDB(ctx).Model(&model.Scan{}).
		Where("id = ?", id).
		Where("status NOT IN ?", []string{string(api.ScanStatusSuccess), string(api.ScanStatusFailed)}).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}

	return s.Get(ctx, id)
}

func (s *ScanStore) SetTotalUrls(ctx context.Context, id uuid.UUID, total int) error {
	result := s.getDB(ctx).Model(&model.Scan{}).Where("id = ?", id).Update("total_urls", total)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ScanStore) SetJobID(ctx context.Context, id uuid.UUID, jobID int64) error {
	result := s.getDB(ctx).Model(&model.Scan{}).Where("id = ?", id).Update("job_id", jobID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkCreditsDeducted flips the credits_deducted flag on a scan that is still
// processing. It reports true only for the call that actually flipped it, so
// a retried job sees false and skips a second deduction. The status predicate
// closes the window against a concurrent cancellation: once a scan is
// terminal its refund decision has been made, and charging it afterwards
// would lose the credits for good.
func (s *ScanStore) MarkCreditsDeducted(ctx context.Context, id uuid.UUID) (bool, error) {
	result := s.getDB(ctx).Model(&model.Scan{}).
		Where("id = ?", id).
		Where("credits_deducted = ?", false).
		Where("status = ?", string(api.ScanStatusProcessing)).
		Update("credits_deducted", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *ScanStore) Delete(ctx context.Context, id uuid.UUID) error {
	scan := model.NewScanFromID(id)
	result := s.getDB(ctx).Select("Results").Delete(&scan)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (s *ScanStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
