package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/sitescan/sitescan/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Scan() Scan
	ScanResult() ScanResult
	Credit() Credit
	Job() Job
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db         *gorm.DB
	scan       Scan
	scanResult ScanResult
	credit     Credit
	job        Job
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:         db,
		scan:       NewScanStore(db),
		scanResult: NewScanResultStore(db),
		credit:     NewCreditStore(db),
		job:        NewJobStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Scan() Scan {
	return s.scan
}

func (s *DataStore) ScanResult() ScanResult {
	return s.scanResult
}

func (s *DataStore) Credit() Credit {
	return s.credit
}

func (s *DataStore) Job() Job {
	return s.job
}

// InitialMigration auto-migrates the domain tables. Production deployments
// run the goose migrations instead; this path serves the sqlite test setup.
func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Scan{}, &model.ScanResult{}, &model.CreditBalance{})
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
