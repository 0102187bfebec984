package model

import "time"

type PageStatus string

const (
	PageStatusPending PageStatus = "pending"
	PageStatusDirect  PageStatus = "direct"
	PageStatusVision  PageStatus = "vision"
	PageStatusFailed  PageStatus = "failed"
)

// PageResult records the outcome for a single page of an ingestion job.
type PageResult struct {
	PageNumber int        `json:"pageNumber"`
	Status     PageStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IngestionJob is the transient, in-memory record of one document ingestion
// run, surfaced via a status-lookup endpoint for the duration of the run.
type IngestionJob struct {
	ID             string       `json:"id"`
	DocumentID     string       `json:"documentId"`
	Status         JobStatus    `json:"status"`
	TotalPages     int          `json:"totalPages"`
	CompletedPages int          `json:"completedPages"`
	FailedPages    int          `json:"failedPages"`
	DirectPages    int          `json:"directPages"`
	VisionPages    int          `json:"visionPages"`
	Pages          []PageResult `json:"pages"`
	Error          string       `json:"error,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     *time.Time   `json:"finishedAt,omitempty"`
}

// APISavingsPercent is the fraction of the document's pages that qualified
// for direct text extraction and so avoided the more expensive vision path:
// direct_pages / total_pages * 100.
func (j *IngestionJob) APISavingsPercent() float64 {
	if j.TotalPages == 0 {
		return 0
	}
	return float64(j.DirectPages) / float64(j.TotalPages) * 100
}
