// Package api exposes the HTTP interface for the parse service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docparse/docparse/internal/config"
	"github.com/docparse/docparse/internal/dispatcher"
	"github.com/docparse/docparse/internal/metrics"
	"github.com/docparse/docparse/internal/parser"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router       chi.Router
	jobStore     parser.JobStore
	dispatcher   *dispatcher.Dispatcher
	cache        parser.ExtractionCache
	contentStore parser.ContentStore
	formats      []string
	cfg          config.Config
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore parser.JobStore,
	dispatcher *dispatcher.Dispatcher,
	cache parser.ExtractionCache,
	contentStore parser.ContentStore,
	formats []string,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		jobStore:     jobStore,
		dispatcher:   dispatcher,
		cache:        cache,
		contentStore: contentStore,
		formats:      formats,
		cfg:          cfg,
		logger:       logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/parse", func(r chi.Router) {
			r.Post("/text", s.parseText)
			r.Post("/file", s.parseFile)
		})
		r.Route("/jobs/{job_id}", func(r chi.Router) {
			r.Get("/status", s.getJobStatus)
			r.Get("/result", s.getJobResult)
		})
		r.Get("/history/{actor_id}", s.getHistory)
		r.Get("/cache/stats", s.getCacheStats)
		r.Get("/storage/stats", s.getStorageStats)
		r.Get("/supported-formats", s.getSupportedFormats)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessProbeID is the nil UUID so ledgers with a typed uuid id
// column accept the probe read.
var readinessProbeID = uuid.Nil.String()

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The ledger is the only hard downstream; a probe read confirms it
	// responds.
	if _, err := s.jobStore.GetJob(r.Context(), readinessProbeID); err != nil &&
		!errors.Is(err, parser.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type parseTextRequest struct {
	Text      string `json:"text"`
	Mode      string `json:"mode"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (s *Server) parseText(w http.ResponseWriter, r *http.Request) {
	var req parseTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.dispatcher.Submit(r.Context(), dispatcher.SubmitRequest{
		ActorID:   req.UserID,
		SessionID: req.SessionID,
		Mode:      parser.ParseMode(req.Mode),
		Text:      req.Text,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

func (s *Server) parseFile(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxFileSizeBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds %d MB limit", s.cfg.Parser.MaxFileSizeMB))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	job, err := s.dispatcher.Submit(r.Context(), dispatcher.SubmitRequest{
		ActorID:      r.FormValue("user_id"),
		SessionID:    r.FormValue("session_id"),
		Mode:         parser.ParseMode(r.FormValue("mode")),
		Artifact:     data,
		ArtifactName: header.Filename,
		ArtifactMIME: resolveMIME(header.Header.Get("Content-Type"), header.Filename),
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

type jobStatusResponse struct {
	JobID     string           `json:"job_id"`
	ActorID   string           `json:"actor_id"`
	SessionID string           `json:"session_id,omitempty"`
	Mode      parser.ParseMode `json:"mode"`
	Status    parser.JobStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, parser.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:     job.ID,
		ActorID:   job.ActorID,
		SessionID: job.SessionID,
		Mode:      job.Mode,
		Status:    job.Status,
		Error:     job.ErrorText,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, parser.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}

	resp := map[string]any{
		"job_id": job.ID,
		"status": string(job.Status),
	}
	switch job.Status {
	case parser.JobStatusSuccess:
		resp["result"] = job.Result
		resp["language"] = job.Language
		resp["model"] = job.Model
		resp["tokens_used"] = job.TokensUsed
		resp["duration_ms"] = job.DurationMS
	case parser.JobStatusFailed:
		resp["error"] = job.ErrorText
		resp["duration_ms"] = job.DurationMS
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actor_id")
	sessionID := r.URL.Query().Get("session_id")
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)
	if pageSize > 100 {
		pageSize = 100
	}

	summaries, total, err := s.jobStore.ListByActor(r.Context(), actorID, sessionID, page, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":      summaries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) getCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) getStorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.contentStore.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch storage stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getSupportedFormats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"formats":          s.formats,
		"max_file_size_mb": s.cfg.Parser.MaxFileSizeMB,
	})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, parser.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// resolveMIME prefers the declared part content type, falling back to
// the filename extension.
func resolveMIME(declared, filename string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return declared
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
