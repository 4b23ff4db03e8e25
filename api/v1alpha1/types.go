package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type ScanStatus string

const (
	ScanStatusPending    ScanStatus = "pending"
	ScanStatusProcessing ScanStatus = "processing"
	ScanStatusSuccess    ScanStatus = "success"
	ScanStatusFailed     ScanStatus = "failed"
)

func StringToScanStatus(s string) ScanStatus {
	switch s {
	case string(ScanStatusPending):
		return ScanStatusPending
	case string(ScanStatusProcessing):
		return ScanStatusProcessing
	case string(ScanStatusSuccess):
		return ScanStatusSuccess
	case string(ScanStatusFailed):
		return ScanStatusFailed
	default:
		return ScanStatusPending
	}
}

// IsTerminal reports whether the status is absorbing. Once a scan reaches
// success or failed it never transitions again.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusSuccess || s == ScanStatusFailed
}

type Scan struct {
	Id           uuid.UUID  `json:"id"`
	SitemapUrl   string     `json:"sitemapUrl"`
	Status       ScanStatus `json:"status"`
	TotalUrls    int        `json:"totalUrls"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

type ScanList []Scan

// Severity classifies a validation message using the validator's own
// sub-classification.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidationMessage is one error or warning reported for a URL.
type ValidationMessage struct {
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	FirstLine   int      `json:"firstLine,omitempty"`
	LastLine    int      `json:"lastLine,omitempty"`
	FirstColumn int      `json:"firstColumn,omitempty"`
	LastColumn  int      `json:"lastColumn,omitempty"`
	Extract     string   `json:"extract,omitempty"`
}

type ScanResult struct {
	Id        uuid.UUID           `json:"id"`
	ScanId    uuid.UUID           `json:"scanId"`
	Url       string              `json:"url"`
	Errors    []ValidationMessage `json:"errors"`
	Warnings  []ValidationMessage `json:"warnings"`
	IsValid   bool                `json:"isValid"`
	CheckedAt time.Time           `json:"checkedAt"`
}

type ScanResultList []ScanResult

// ScanStatusReply is the polling view of a scan: persisted state merged with
// queue-side progress.
type ScanStatusReply struct {
	Id           uuid.UUID  `json:"id"`
	Status       ScanStatus `json:"status"`
	Progress     int        `json:"progress"`
	TotalUrls    int        `json:"totalUrls"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
}

type CreditBalance struct {
	Balance int `json:"balance"`
}

// CreditCheck is the outcome of a sufficiency check. Deficit is zero when
// HasSufficient is true.
type CreditCheck struct {
	HasSufficient bool `json:"hasSufficient"`
	Current       int  `json:"current"`
	Required      int  `json:"required"`
	Deficit       int  `json:"deficit"`
}

type JobInfo struct {
	Id       int64  `json:"id"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
	Attempt  int    `json:"attempt"`
	Error    string `json:"error,omitempty"`
}

type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

type ScanCreate struct {
	SitemapUrl string `json:"sitemapUrl" validate:"required,url"`
}

type CreditAdd struct {
	Amount int    `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason"`
}

type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}
