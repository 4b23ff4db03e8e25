package model

// ScanJobMetadata is stored in river_job.metadata to track worker-side
// progress for status polling.
type ScanJobMetadata struct {
	Progress int    `json:"progress,omitempty"` // 0-100
	Stage    string `json:"stage,omitempty"`    // resolving, charging, validating, persisting
	Error    string `json:"error,omitempty"`
}

// Worker stage names written into the job metadata.
const (
	JobStageResolving  = "resolving"
	JobStageCharging   = "charging"
	JobStageValidating = "validating"
	JobStagePersisting = "persisting"
)
