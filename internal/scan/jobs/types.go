package jobs

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

const (
	DefaultQueue  = "scans"
	MaxJobRetries = 3
	JobKind       = "sitemap_scan"
)

// ScanArgs is the payload carried by one scan job. It is stored in
// river_job.args as JSON; the scan_id field is also how the store finds the
// active job for a scan.
type ScanArgs struct {
	ScanID     uuid.UUID `json:"scan_id"`
	UserID     string    `json:"user_id"`
	SitemapURL string    `json:"sitemap_url"`
}

func (ScanArgs) Kind() string {
	return JobKind
}

func (ScanArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: MaxJobRetries,
	}
}
