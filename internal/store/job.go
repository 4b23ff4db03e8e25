package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/riverqueue/river/rivertype"
	"gorm.io/gorm"

	api "github.com/sitescan/sitescan/api/v1alpha1"
)

// JobRow represents a row from the river_job table
type JobRow struct {
	ID           int64              `gorm:"column:id;primaryKey"`
	State        rivertype.JobState `gorm:"column:state"`
	Attempt      int                `gorm:"column:attempt"`
	ArgsJSON     []byte             `gorm:"column:args"`
	MetadataJSON []byte             `gorm:"column:metadata"`
}

// TableName specifies the table name for GORM
func (JobRow) TableName() string {
	return "river_job"
}

// Job interface for queue-side database operations
type Job interface {
	Get(ctx context.Context, id int64) (*JobRow, error)
	UpdateMetadata(ctx context.Context, id int64, metadataJSON []byte) error
	GetActiveJobForScan(ctx context.Context, scanID uuid.UUID) (*int64, error)
	Stats(ctx context.Context) (*api.QueueStats, error)
}

// JobStore implements the Job interface
type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

// Get retrieves a job by ID from the river_job table
func (s *JobStore) Get(ctx context.Context, id int64) (*JobRow, error) {
	var jobRow JobRow
	result := s.getDB(ctx).First(&jobRow, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}

	return &jobRow, nil
}

// UpdateMetadata updates the metadata of a job
func (s *JobStore) UpdateMetadata(ctx context.Context, id int64, metadataJSON []byte) error {
	result := s.getDB(ctx).Model(&JobRow{}).Where("id = ?", id).Update("metadata", metadataJSON)
	if result.Error != nil {
		return fmt.Errorf("updating job metadata: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// GetActiveJobForScan finds a not-yet-finished river job by scanId in the job
// args. Returns nil if no active job exists for the scan.
func (s *JobStore) GetActiveJobForScan(ctx context.Context, scanID uuid.UUID) (*int64, error) {
	var jobID int64

	err := s.getDB(ctx).
		Table("river_job").
		Select("id").
		Where("state IN ?", []string{
			string(rivertype.JobStateAvailable),
			string(rivertype.JobStateRunning),
			string(rivertype.JobStateRetryable),
			string(rivertype.JobStateScheduled),
		}).
		Where("args->>'scan_id' = ?", scanID.String()).
		Order("id DESC").
		Limit(1).
		Scan(&jobID).Error

	if err != nil {
		return nil, err
	}

	if jobID == 0 {
		return nil, nil
	}

	return &jobID, nil
}

// Stats aggregates river job counts into the queue view exposed to clients.
func (s *JobStore) Stats(ctx context.Context) (*api.QueueStats, error) {
	type stateCount struct {
		State string
		Count int64
	}

	var counts []stateCount
	err := s.getDB(ctx).
		Table("river_job").
		Select("state, count(*) as count").
		Group("state").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("querying queue stats: %w", err)
	}

	stats := &api.QueueStats{}
	for _, c := range counts {
		switch rivertype.JobState(c.State) {
		case rivertype.JobStateAvailable, rivertype.JobStatePending:
			stats.Waiting += c.Count
		case rivertype.JobStateRunning:
			stats.Active += c.Count
		case rivertype.JobStateCompleted:
			stats.Completed += c.Count
		case rivertype.JobStateCancelled, rivertype.JobStateDiscarded:
			stats.Failed += c.Count
		case rivertype.JobStateScheduled, rivertype.JobStateRetryable:
			stats.Delayed += c.Count
		}
	}
	return stats, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
