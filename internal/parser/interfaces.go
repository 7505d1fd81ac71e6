package parser

import (
	"context"
	"time"
)

// JobStore persists job records and their terminal transitions.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	MarkSucceeded(ctx context.Context, jobID string, result AnalysisResult, duration time.Duration) error
	MarkFailed(ctx context.Context, jobID string, errText string, duration time.Duration) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListByActor(ctx context.Context, actorID, sessionID string, page, pageSize int) ([]JobSummary, int, error)
}

// ContentStore durably stores uploaded artifacts under generated keys.
type ContentStore interface {
	Put(ctx context.Context, data []byte, originalName, jobID string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Stats(ctx context.Context) (StorageStats, error)
}

// ExtractionCache memoizes extracted text by content fingerprint.
type ExtractionCache interface {
	Get(fingerprint string) (string, bool)
	Put(fingerprint, text string)
	Lock(fingerprint string)
	Unlock(fingerprint string)
	Stats() CacheStats
}

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Analyzer invokes the external analysis engine on resolved text.
type Analyzer interface {
	Analyze(ctx context.Context, text string, mode ParseMode) (AnalysisResult, error)
}

// Queue provides enqueue/dequeue semantics for parse jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes content fingerprints for cache keying.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
