package domain

import (
	"fmt"
	"time"
)

// IngestionStats counts outcomes of one ingestion run.
type IngestionStats struct {
	ChunksProcessed     int64 `json:"chunks_processed"`
	EmbeddingsGenerated int64 `json:"embeddings_generated"`
	StoredEmbeddings    int64 `json:"stored_embeddings"`
	FailedEmbeddings    int64 `json:"failed_embeddings"`
	FailedStorage       int64 `json:"failed_storage"`
}

// Summary renders the stats the way upload responses report them.
func (s IngestionStats) Summary() string {
	return fmt.Sprintf("Processed %d/%d embeddings, stored %d",
		s.EmbeddingsGenerated, s.ChunksProcessed, s.StoredEmbeddings)
}

// BulkStoreStats counts the outcome of a bulk store call.
type BulkStoreStats struct {
	Stored int `json:"stored"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// IngestionJobStatus represents the status of a background ingestion job
type IngestionJobStatus string

const (
	IngestionJobStatusPending    IngestionJobStatus = "pending"
	IngestionJobStatusProcessing IngestionJobStatus = "processing"
	IngestionJobStatusCompleted  IngestionJobStatus = "completed"
	IngestionJobStatusFailed     IngestionJobStatus = "failed"
	IngestionJobStatusTimedOut   IngestionJobStatus = "timed_out"
)

// IngestionJob tracks an upload processed in the background
type IngestionJob struct {
	ID          string
	Filename    string
	DocumentID  string
	Status      IngestionJobStatus
	Stats       IngestionStats
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewIngestionJob creates a pending IngestionJob
func NewIngestionJob(id, filename string, createdAt time.Time) *IngestionJob {
	return &IngestionJob{
		ID:        id,
		Filename:  filename,
		Status:    IngestionJobStatusPending,
		CreatedAt: createdAt,
	}
}

// IsTerminal reports whether the job will not change status again
func (s IngestionJobStatus) IsTerminal() bool {
	switch s {
	case IngestionJobStatusCompleted, IngestionJobStatusFailed, IngestionJobStatusTimedOut:
		return true
	}
	return false
}

// ValidateIngestionJob validates an IngestionJob instance
func ValidateIngestionJob(j *IngestionJob) error {
	if j == nil {
		return fmt.Errorf("ingestion job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("ingestion job ID is required")
	}

	if j.Filename == "" {
		return fmt.Errorf("ingestion job Filename is required")
	}

	if !isValidIngestionJobStatus(j.Status) {
		return fmt.Errorf("ingestion job Status is invalid: %s", j.Status)
	}

	return nil
}

func isValidIngestionJobStatus(s IngestionJobStatus) bool {
	switch s {
	case IngestionJobStatusPending, IngestionJobStatusProcessing,
		IngestionJobStatusCompleted, IngestionJobStatusFailed, IngestionJobStatusTimedOut:
		return true
	}
	return false
}
