package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	api "github.com/sitescan/sitescan/api/v1alpha1"
)

type ScanResult struct {
	ID       uuid.UUID                           `gorm:"primaryKey;type:VARCHAR(255)"`
	ScanID   uuid.UUID                           `gorm:"not null;type:VARCHAR(255);index:scan_results_scan_id_idx"`
	URL      string                              `gorm:"not null"`
	Errors   *JSONField[[]api.ValidationMessage] `gorm:"type:jsonb"`
	Warnings *JSONField[[]api.ValidationMessage] `gorm:"type:jsonb"`
	// IsValid is derived: it holds exactly "no error entries".
	IsValid   bool      `gorm:"not null"`
	CheckedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedAt time.Time
}

type ScanResultList []ScanResult

func (r ScanResult) String() string {
	v, _ := json.Marshal(r)
	return string(v)
}

func (r *ScanResult) ToApiResource() api.ScanResult {
	res := api.ScanResult{
		Id:        r.ID,
		ScanId:    r.ScanID,
		Url:       r.URL,
		Errors:    []api.ValidationMessage{},
		Warnings:  []api.ValidationMessage{},
		IsValid:   r.IsValid,
		CheckedAt: r.CheckedAt,
	}
	if r.Errors != nil {
		res.Errors = r.Errors.Data
	}
	if r.Warnings != nil {
		res.Warnings = r.Warnings.Data
	}
	return res
}

func (rl ScanResultList) ToApiResource() api.ScanResultList {
	results := make(api.ScanResultList, 0, len(rl))
	for _, result := range rl {
		results = append(results, result.ToApiResource())
	}
	return results
}
