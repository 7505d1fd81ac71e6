// Package postgres provides the Postgres-backed job ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docparse/docparse/internal/parser"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// JobStoreConfig controls the Postgres connection pool behind the ledger.
type JobStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists job rows in Postgres. Terminal transitions are
// guarded by a status predicate in the UPDATE itself, so a job is
// terminalized at most once regardless of caller interleaving.
//
// Expected schema:
//
//	CREATE TABLE parse_jobs (
//		id UUID PRIMARY KEY,
//		actor_id TEXT NOT NULL,
//		session_id TEXT NOT NULL,
//		mode TEXT NOT NULL,
//		input_text TEXT,
//		artifact_name TEXT,
//		artifact_mime TEXT,
//		storage_key TEXT,
//		status TEXT NOT NULL,
//		result JSONB,
//		language TEXT,
//		model TEXT,
//		tokens_used INTEGER,
//		duration_ms BIGINT,
//		error_text TEXT,
//		created_at TIMESTAMPTZ NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_parse_jobs_actor_created ON parse_jobs (actor_id, created_at DESC);
type JobStore struct {
	pool  db
	table string
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "parse_jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool, table: table}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool db, table string) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "parse_jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a pending job row.
func (s *JobStore) CreateJob(ctx context.Context, job parser.Job) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, actor_id, session_id, mode,
	input_text, artifact_name, artifact_mime, storage_key,
	status, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, s.table)

	args := []any{
		job.ID,
		job.ActorID,
		job.SessionID,
		string(job.Mode),
		job.InputText,
		job.ArtifactName,
		job.ArtifactMIME,
		job.StorageKey,
		string(job.Status),
		job.CreatedAt,
		job.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkSucceeded records the terminal success transition, allowed only
// from pending.
func (s *JobStore) MarkSucceeded(
	ctx context.Context,
	jobID string,
	result parser.AnalysisResult,
	duration time.Duration,
) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	result = $3,
	language = $4,
	model = $5,
	tokens_used = $6,
	duration_ms = $7,
	updated_at = NOW()
WHERE id = $1 AND status = $8`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		jobID,
		string(parser.JobStatusSuccess),
		[]byte(result.Payload),
		result.Language,
		result.Model,
		result.TokensUsed,
		duration.Milliseconds(),
		string(parser.JobStatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMissedUpdate(ctx, jobID)
	}
	return nil
}

// MarkFailed records the terminal failure transition, allowed only
// from pending.
func (s *JobStore) MarkFailed(
	ctx context.Context,
	jobID string,
	errText string,
	duration time.Duration,
) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	error_text = $3,
	duration_ms = $4,
	updated_at = NOW()
WHERE id = $1 AND status = $5`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		jobID,
		string(parser.JobStatusFailed),
		errText,
		duration.Milliseconds(),
		string(parser.JobStatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMissedUpdate(ctx, jobID)
	}
	return nil
}

// GetJob fetches a job row by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (parser.Job, error) {
	query := fmt.Sprintf(`
SELECT
	id, actor_id, session_id, mode,
	COALESCE(input_text, ''), COALESCE(artifact_name, ''),
	COALESCE(artifact_mime, ''), COALESCE(storage_key, ''),
	status, result, COALESCE(language, ''), COALESCE(model, ''),
	COALESCE(tokens_used, 0), COALESCE(duration_ms, 0),
	COALESCE(error_text, ''), created_at, updated_at
FROM %s WHERE id = $1`, s.table)

	var (
		job    parser.Job
		mode   string
		status string
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.ActorID,
		&job.SessionID,
		&mode,
		&job.InputText,
		&job.ArtifactName,
		&job.ArtifactMIME,
		&job.StorageKey,
		&status,
		&job.Result,
		&job.Language,
		&job.Model,
		&job.TokensUsed,
		&job.DurationMS,
		&job.ErrorText,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return parser.Job{}, parser.ErrNotFound
		}
		return parser.Job{}, fmt.Errorf("select job: %w", err)
	}
	job.Mode = parser.ParseMode(mode)
	job.Status = parser.JobStatus(status)
	return job, nil
}

// ListByActor returns a page of job summaries for an actor, newest
// created first, optionally filtered by session.
func (s *JobStore) ListByActor(
	ctx context.Context,
	actorID, sessionID string,
	page, pageSize int,
) ([]parser.JobSummary, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	filter := "actor_id = $1"
	countArgs := []any{actorID}
	pageArgs := []any{actorID}
	if sessionID != "" {
		filter = "actor_id = $1 AND session_id = $2"
		countArgs = append(countArgs, sessionID)
		pageArgs = append(pageArgs, sessionID)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.table, filter)
	if err := s.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limitPos := len(pageArgs) + 1
	query := fmt.Sprintf(`
SELECT
	id, actor_id, session_id, COALESCE(artifact_name, ''),
	COALESCE(language, ''), status, created_at
FROM %s WHERE %s
ORDER BY created_at DESC, id DESC
LIMIT $%d OFFSET $%d`, s.table, filter, limitPos, limitPos+1)
	pageArgs = append(pageArgs, pageSize, offset)

	rows, err := s.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	summaries := make([]parser.JobSummary, 0, pageSize)
	for rows.Next() {
		var (
			sum    parser.JobSummary
			status string
		)
		if err := rows.Scan(
			&sum.ID,
			&sum.ActorID,
			&sum.SessionID,
			&sum.ArtifactName,
			&sum.Language,
			&status,
			&sum.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan job summary: %w", err)
		}
		sum.Status = parser.JobStatus(status)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate job summaries: %w", err)
	}
	return summaries, total, nil
}

// classifyMissedUpdate distinguishes a missing row from a row that is
// already terminal when a guarded UPDATE touched nothing.
func (s *JobStore) classifyMissedUpdate(ctx context.Context, jobID string) error {
	query := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, s.table)
	var status string
	err := s.pool.QueryRow(ctx, query, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return parser.ErrNotFound
		}
		return fmt.Errorf("check job status: %w", err)
	}
	return fmt.Errorf("job %s is %s: %w", jobID, status, parser.ErrTerminalState)
}
