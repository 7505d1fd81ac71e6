// Package dispatcher admits parse jobs and fans out queue work to a
// pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/docparse/docparse/internal/metrics"
	"github.com/docparse/docparse/internal/parser"
	"github.com/docparse/docparse/internal/worker"
)

// Config controls job admission.
type Config struct {
	// MinTextChars rejects direct text submissions shorter than this.
	MinTextChars int
	// MaxInputChars caps the input text persisted on the ledger row.
	MaxInputChars int
}

// SubmitRequest carries one parse submission. Exactly one of Text and
// Artifact must be set.
type SubmitRequest struct {
	ActorID      string
	SessionID    string
	Mode         parser.ParseMode
	Text         string
	Artifact     []byte
	ArtifactName string
	ArtifactMIME string
}

// Dispatcher validates submissions, records them in the ledger, and
// feeds the worker pool through the queue.
type Dispatcher struct {
	queue        parser.Queue
	jobStore     parser.JobStore
	contentStore parser.ContentStore
	idgen        parser.IDGenerator
	clock        parser.Clock
	workers      []*worker.Worker
	cfg          Config
	logger       *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue parser.Queue,
	jobStore parser.JobStore,
	contentStore parser.ContentStore,
	idgen parser.IDGenerator,
	clock parser.Clock,
	workers []*worker.Worker,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 10
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 5000
	}
	return &Dispatcher{
		queue:        queue,
		jobStore:     jobStore,
		contentStore: contentStore,
		idgen:        idgen,
		clock:        clock,
		workers:      workers,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit validates the request, persists a pending job, and enqueues it
// for processing. The returned job is already visible through the query
// surface when Submit returns.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (parser.Job, error) {
	if err := d.validate(&req); err != nil {
		return parser.Job{}, err
	}

	jobID, err := d.idgen.NewID()
	if err != nil {
		return parser.Job{}, fmt.Errorf("generate job id: %w", err)
	}

	// Artifact persistence happens before the ledger row so the row can
	// carry the storage key. Failures degrade to in-memory processing.
	storageKey := ""
	if len(req.Artifact) > 0 {
		key, putErr := d.contentStore.Put(ctx, req.Artifact, req.ArtifactName, jobID)
		switch {
		case putErr == nil:
			storageKey = key
		case errors.Is(putErr, parser.ErrStorageDisabled):
			d.logger.Debug("content store disabled, processing in memory",
				zap.String("job_id", jobID))
		default:
			metrics.ObserveStorageWriteFailure()
			d.logger.Warn("artifact persistence failed, processing in memory",
				zap.String("job_id", jobID),
				zap.Error(putErr))
		}
	}

	storedText := req.Text
	if len(storedText) > d.cfg.MaxInputChars {
		storedText = storedText[:d.cfg.MaxInputChars]
	}

	now := d.clock.Now()
	job := parser.Job{
		ID:           jobID,
		ActorID:      req.ActorID,
		SessionID:    req.SessionID,
		Mode:         req.Mode,
		InputText:    storedText,
		ArtifactName: req.ArtifactName,
		ArtifactMIME: req.ArtifactMIME,
		StorageKey:   storageKey,
		Status:       parser.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.jobStore.CreateJob(ctx, job); err != nil {
		return parser.Job{}, fmt.Errorf("create job: %w", err)
	}

	item := parser.QueueItem{
		JobID:        jobID,
		Mode:         req.Mode,
		Text:         req.Text,
		Artifact:     req.Artifact,
		ArtifactName: req.ArtifactName,
		ArtifactMIME: req.ArtifactMIME,
		StorageKey:   storageKey,
		Submitted:    now.UnixMilli(),
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		// The pending row must not dangle if admission fails. The mark
		// uses a detached context because ctx may already be done.
		if failErr := d.jobStore.MarkFailed(context.WithoutCancel(ctx), jobID, "job could not be queued", 0); failErr != nil {
			d.logger.Error("failed to mark unqueued job",
				zap.String("job_id", jobID),
				zap.Error(failErr))
		}
		return parser.Job{}, fmt.Errorf("queue enqueue: %w", err)
	}

	d.logger.Info("job submitted",
		zap.String("job_id", jobID),
		zap.String("actor_id", req.ActorID),
		zap.String("mode", string(req.Mode)),
		zap.Bool("has_artifact", len(req.Artifact) > 0),
	)
	return job, nil
}

func (d *Dispatcher) validate(req *SubmitRequest) error {
	if strings.TrimSpace(req.ActorID) == "" {
		return fmt.Errorf("actor id is required: %w", parser.ErrInvalidInput)
	}
	if req.Mode == "" {
		req.Mode = parser.ModeShallow
	}
	if !req.Mode.Valid() {
		return fmt.Errorf("unknown parse mode %q: %w", req.Mode, parser.ErrInvalidInput)
	}

	hasText := strings.TrimSpace(req.Text) != ""
	hasArtifact := len(req.Artifact) > 0
	switch {
	case hasText && hasArtifact:
		return fmt.Errorf("text and file are mutually exclusive: %w", parser.ErrInvalidInput)
	case !hasText && !hasArtifact:
		return fmt.Errorf("either text or a file is required: %w", parser.ErrInvalidInput)
	}

	if hasText && len(strings.TrimSpace(req.Text)) < d.cfg.MinTextChars {
		return fmt.Errorf("text must be at least %d characters: %w",
			d.cfg.MinTextChars, parser.ErrInvalidInput)
	}
	if hasArtifact && strings.TrimSpace(req.ArtifactMIME) == "" {
		return fmt.Errorf("file content type is required: %w", parser.ErrInvalidInput)
	}
	return nil
}
