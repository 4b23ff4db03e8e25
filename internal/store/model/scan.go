package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	api "github.com/sitescan/sitescan/api/v1alpha1"
)

type Scan struct {
	ID         uuid.UUID `gorm:"primaryKey;type:VARCHAR(255)"`
	UserID     string    `gorm:"not null;type:VARCHAR(255);index:scans_user_id_idx"`
	SitemapURL string    `gorm:"not null"`
	Status     string    `gorm:"not null;default:pending"`
	TotalUrls  int       `gorm:"not null;default:0"`
	// CreditsDeducted guards the deduction against queue-level retries. It is
	// flipped in the same transaction as the deduction itself, so a retried
	// job can never double-charge.
	CreditsDeducted bool `gorm:"not null;default:false"`
	// JobID is the queue job created for this scan. Kept so cancellation can
	// reach the in-flight job.
	JobID        *int64
	ErrorMessage *string
	StartedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	FinishedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Results      []ScanResult `gorm:"foreignKey:ScanID;references:ID;constraint:OnDelete:CASCADE;"`
}

type ScanList []Scan

func (s Scan) String() string {
	v, _ := json.Marshal(s)
	return string(v)
}

func NewScanFromID(id uuid.UUID) *Scan {
	return &Scan{ID: id}
}

func (s *Scan) ToApiResource() api.Scan {
	return api.Scan{
		Id:           s.ID,
		SitemapUrl:   s.SitemapURL,
		Status:       api.StringToScanStatus(s.Status),
		TotalUrls:    s.TotalUrls,
		ErrorMessage: s.ErrorMessage,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
	}
}

func (sl ScanList) ToApiResource() api.ScanList {
	scans := make(api.ScanList, 0, len(sl))
	for _, scan := range sl {
		scans = append(scans, scan.ToApiResource())
	}
	return scans
}
