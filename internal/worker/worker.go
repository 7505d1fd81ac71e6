// Package worker implements the parse pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docparse/docparse/internal/metrics"
	"github.com/docparse/docparse/internal/parser"
)

// Config controls Worker behavior.
type Config struct {
	// AnalysisTimeout bounds the analysis call for a single job.
	AnalysisTimeout time.Duration
	// MinTextChars fails jobs whose extracted text is shorter than this.
	MinTextChars int
}

// Worker consumes queue items and executes the parse pipeline:
// resolve text (cache or extraction), analyze, record the terminal
// transition. Every dequeued job reaches exactly one terminal state.
type Worker struct {
	queue     parser.Queue
	jobStore  parser.JobStore
	cache     parser.ExtractionCache
	extractor parser.Extractor
	analyzer  parser.Analyzer
	hasher    parser.Hasher
	clock     parser.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue parser.Queue,
	jobStore parser.JobStore,
	cache parser.ExtractionCache,
	extractor parser.Extractor,
	analyzer parser.Analyzer,
	hasher parser.Hasher,
	clock parser.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 60 * time.Second
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 10
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		cache:     cache,
		extractor: extractor,
		analyzer:  analyzer,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item parser.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	start := w.clock.Now()

	text, err := w.resolveText(ctx, item)
	if err != nil {
		w.fail(ctx, item.JobID, err, start)
		return
	}
	if len(strings.TrimSpace(text)) < w.cfg.MinTextChars {
		w.fail(ctx, item.JobID,
			fmt.Errorf("document produced no usable text (%d chars)", len(strings.TrimSpace(text))),
			start)
		return
	}

	analysisCtx, cancel := context.WithTimeout(ctx, w.cfg.AnalysisTimeout)
	defer cancel()

	analysisStart := w.clock.Now()
	result, err := w.analyzer.Analyze(analysisCtx, text, item.Mode)
	metrics.ObserveAnalysis(string(item.Mode), w.clock.Now().Sub(analysisStart))
	if err != nil {
		if errors.Is(analysisCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("analysis timed out after %s", w.cfg.AnalysisTimeout)
		}
		w.fail(ctx, item.JobID, err, start)
		return
	}

	duration := w.clock.Now().Sub(start)
	if err := w.jobStore.MarkSucceeded(ctx, item.JobID, result, duration); err != nil {
		w.logMarkError(item.JobID, err)
		return
	}
	metrics.ObserveJob(string(parser.JobStatusSuccess))
	w.logger.Info("job succeeded",
		zap.String("job_id", item.JobID),
		zap.String("mode", string(item.Mode)),
		zap.String("language", result.Language),
		zap.Int("tokens_used", result.TokensUsed),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)
}

// resolveText returns the text to analyze, consulting the extraction
// cache for artifact submissions. The per-fingerprint lock ensures that
// concurrent identical artifacts extract once.
func (w *Worker) resolveText(ctx context.Context, item parser.QueueItem) (string, error) {
	if item.Text != "" {
		return item.Text, nil
	}
	if len(item.Artifact) == 0 {
		return "", fmt.Errorf("queue item has neither text nor artifact")
	}

	fingerprint, err := w.hasher.Hash(item.Artifact)
	if err != nil {
		return "", fmt.Errorf("fingerprint artifact: %w", err)
	}

	w.cache.Lock(fingerprint)
	defer w.cache.Unlock(fingerprint)

	if text, ok := w.cache.Get(fingerprint); ok {
		metrics.ObserveCacheLookup(true)
		w.logger.Debug("extraction cache hit",
			zap.String("job_id", item.JobID),
			zap.String("fingerprint", fingerprint))
		return text, nil
	}
	metrics.ObserveCacheLookup(false)

	extractStart := w.clock.Now()
	text, err := w.extractor.Extract(ctx, item.Artifact, item.ArtifactMIME)
	metrics.ObserveExtraction(item.ArtifactMIME, w.clock.Now().Sub(extractStart))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", item.ArtifactMIME, err)
	}

	w.cache.Put(fingerprint, text)
	return text, nil
}

func (w *Worker) fail(ctx context.Context, jobID string, cause error, start time.Time) {
	duration := w.clock.Now().Sub(start)
	w.logger.Warn("job failed",
		zap.String("job_id", jobID),
		zap.Error(cause),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)
	if err := w.jobStore.MarkFailed(ctx, jobID, cause.Error(), duration); err != nil {
		w.logMarkError(jobID, err)
		return
	}
	metrics.ObserveJob(string(parser.JobStatusFailed))
}

func (w *Worker) logMarkError(jobID string, err error) {
	if errors.Is(err, parser.ErrTerminalState) {
		w.logger.Error("job already in a terminal state, result dropped",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}
	w.logger.Error("job status update failed",
		zap.String("job_id", jobID),
		zap.Error(err))
}
