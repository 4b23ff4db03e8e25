package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sitescan/sitescan/internal/store/model"
)

type ScanResult interface {
	CreateBulk(ctx context.Context, results []model.ScanResult) error
	ListByScan(ctx context.Context, scanID uuid.UUID) (model.ScanResultList, error)
	CountByScan(ctx context.Context, scanID uuid.UUID) (int64, error)
	DeleteByScan(ctx context.Context, scanID uuid.UUID) error
}

type ScanResultStore struct {
	db *gorm.DB
}

// Make sure we conform to ScanResult interface
var _ ScanResult = (*ScanResultStore)(nil)

func NewScanResultStore(db *gorm.DB) ScanResult {
	return &ScanResultStore{db: db}
}

func (s *ScanResultStore) CreateBulk(ctx context.Context, results []model.ScanResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.getDB(ctx).CreateInBatches(results, 100).Error
}

// ListByScan returns results in the order they were checked, which is the
// order the resolver produced the URLs in.
func (s *ScanResultStore) ListByScan(ctx context.Context, scanID uuid.UUID) (model.ScanResultList, error) {
	var results model.ScanResultList
	tx := s.getDB(ctx).Model(&model.ScanResult{}).
		Where("scan_id = ?", scanID).
		Order("checked_at").
		Find(&results)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return results, nil
}

func (s *ScanResultStore) CountByScan(ctx context.Context, scanID uuid.UUID) (int64, error) {
	var count int64
	tx := s.getDB(ctx).Model(&model.ScanResult{}).Where("scan_id = ?", scanID).Count(&count)
	if tx.Error != nil {
		return 0, tx.Error
	}
	return count, nil
}

func (s *ScanResultStore) DeleteByScan(ctx context.Context, scanID uuid.UUID) error {
	return s.getDB(ctx).Where("scan_id = ?", scanID).Delete(&model.ScanResult{}).Error
}

func (s *ScanResultStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
