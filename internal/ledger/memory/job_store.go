// Package memory provides an in-memory job ledger for development/testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/docparse/docparse/internal/parser"
)

// JobStore implements parser.JobStore backed by a map.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]parser.Job
	clock parser.Clock
}

// NewJobStore constructs a JobStore.
func NewJobStore(clock parser.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]parser.Job),
		clock: clock,
	}
}

// CreateJob stores a new job in pending status. The row is visible to
// GetJob as soon as this returns.
func (s *JobStore) CreateJob(_ context.Context, job parser.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// MarkSucceeded records the terminal success transition. Allowed only
// from pending.
func (s *JobStore) MarkSucceeded(
	_ context.Context,
	jobID string,
	result parser.AnalysisResult,
	duration time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.pendingLocked(jobID)
	if err != nil {
		return err
	}
	job.Status = parser.JobStatusSuccess
	job.Result = result.Payload
	job.Language = result.Language
	job.Model = result.Model
	job.TokensUsed = result.TokensUsed
	job.DurationMS = duration.Milliseconds()
	job.UpdatedAt = s.clock.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// MarkFailed records the terminal failure transition. Allowed only
// from pending.
func (s *JobStore) MarkFailed(
	_ context.Context,
	jobID string,
	errText string,
	duration time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.pendingLocked(jobID)
	if err != nil {
		return err
	}
	job.Status = parser.JobStatusFailed
	job.ErrorText = errText
	job.DurationMS = duration.Milliseconds()
	job.UpdatedAt = s.clock.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (parser.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return parser.Job{}, parser.ErrNotFound
	}
	return job, nil
}

// ListByActor returns a page of job summaries for an actor, newest
// created first, optionally filtered by session. The second return is
// the total match count for pagination.
func (s *JobStore) ListByActor(
	_ context.Context,
	actorID, sessionID string,
	page, pageSize int,
) ([]parser.JobSummary, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	s.mu.RLock()
	matches := make([]parser.Job, 0)
	for _, job := range s.jobs {
		if job.ActorID != actorID {
			continue
		}
		if sessionID != "" && job.SessionID != sessionID {
			continue
		}
		matches = append(matches, job)
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	offset := (page - 1) * pageSize
	if offset >= total {
		return []parser.JobSummary{}, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}

	out := make([]parser.JobSummary, 0, end-offset)
	for _, job := range matches[offset:end] {
		out = append(out, job.Summary())
	}
	return out, total, nil
}

func (s *JobStore) pendingLocked(jobID string) (parser.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return parser.Job{}, parser.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return parser.Job{}, fmt.Errorf("job %s is %s: %w", jobID, job.Status, parser.ErrTerminalState)
	}
	return job, nil
}
