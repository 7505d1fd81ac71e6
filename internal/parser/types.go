// Package parser defines core types shared across subsystems.
package parser

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of a parse job.
type JobStatus string

// Job status values persisted in the job ledger.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// ParseMode selects how much detail the analysis engine extracts.
type ParseMode string

// Parse modes accepted at submission.
const (
	ModeShallow  ParseMode = "shallow"
	ModeDetailed ParseMode = "detailed"
)

// Valid reports whether the mode is one of the accepted values.
func (m ParseMode) Valid() bool {
	return m == ModeShallow || m == ModeDetailed
}

// Job is the unit of work and its outcome, persisted in the ledger.
type Job struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	SessionID string    `json:"session_id"`
	Mode      ParseMode `json:"mode"`

	// Exactly one of InputText / ArtifactName is set.
	InputText    string `json:"input_text,omitempty"`
	ArtifactName string `json:"artifact_name,omitempty"`
	ArtifactMIME string `json:"artifact_mime,omitempty"`
	StorageKey   string `json:"storage_key,omitempty"`

	Status     JobStatus       `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Language   string          `json:"language,omitempty"`
	Model      string          `json:"model,omitempty"`
	TokensUsed int             `json:"tokens_used,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	ErrorText  string          `json:"error_text,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobSummary is the compact history-listing view of a Job.
type JobSummary struct {
	ID           string    `json:"id"`
	ActorID      string    `json:"actor_id"`
	SessionID    string    `json:"session_id"`
	ArtifactName string    `json:"artifact_name,omitempty"`
	Language     string    `json:"language,omitempty"`
	Status       JobStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary projects the Job onto its history-listing view.
func (j Job) Summary() JobSummary {
	return JobSummary{
		ID:           j.ID,
		ActorID:      j.ActorID,
		SessionID:    j.SessionID,
		ArtifactName: j.ArtifactName,
		Language:     j.Language,
		Status:       j.Status,
		CreatedAt:    j.CreatedAt,
	}
}

// QueueItem carries a job plus the bytes the worker needs in hand.
// Artifact bytes ride along so a content-store failure never blocks
// the execution they were submitted with.
type QueueItem struct {
	JobID        string
	Mode         ParseMode
	Text         string
	Artifact     []byte
	ArtifactName string
	ArtifactMIME string
	StorageKey   string
	Submitted    int64
}

// AnalysisResult is the outcome of the external analysis collaborator.
// Payload is opaque to the core once validated at the boundary.
type AnalysisResult struct {
	Payload    json.RawMessage
	Language   string
	Model      string
	TokensUsed int
}

// CacheStats reports extraction-cache usage.
type CacheStats struct {
	EntryCount int     `json:"entry_count"`
	MaxEntries int     `json:"max_entries"`
	HitCount   uint64  `json:"hit_count"`
	MissCount  uint64  `json:"miss_count"`
	HitRate    float64 `json:"hit_rate_percent"`
}

// StorageStats reports content-store usage.
type StorageStats struct {
	Enabled    bool  `json:"enabled"`
	TotalFiles int   `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}
