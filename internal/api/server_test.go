package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docparse/docparse/internal/cache"
	"github.com/docparse/docparse/internal/clock/system"
	"github.com/docparse/docparse/internal/config"
	"github.com/docparse/docparse/internal/dispatcher"
	"github.com/docparse/docparse/internal/hash/sha256"
	iduuid "github.com/docparse/docparse/internal/id/uuid"
	"github.com/docparse/docparse/internal/ledger/memory"
	"github.com/docparse/docparse/internal/metrics"
	"github.com/docparse/docparse/internal/parser"
	queuemem "github.com/docparse/docparse/internal/queue/memory"
	storagemem "github.com/docparse/docparse/internal/storage/memory"
	"github.com/docparse/docparse/internal/worker"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, _ string, _ parser.ParseMode) (parser.AnalysisResult, error) {
	return parser.AnalysisResult{
		Payload:    json.RawMessage(`{"profile":{"basics":{"profession":"Engineer"}},"document_language":"EN"}`),
		Language:   "EN",
		Model:      "gpt-4o-mini",
		TokensUsed: 42,
	}, nil
}

type passthroughExtractor struct{}

func (passthroughExtractor) Extract(_ context.Context, data []byte, _ string) (string, error) {
	return string(data), nil
}

type env struct {
	server *Server
	store  *memory.JobStore
	queue  *queuemem.Queue
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Parser.Concurrency = 2
	cfg.Parser.QueueDepth = 16
	cfg.Parser.MinTextChars = 10
	cfg.Parser.MaxInputChars = 5000
	cfg.Parser.MaxFileSizeMB = 1
	return cfg
}

// newEnv builds the full service wiring with a worker pool running
// until the test finishes.
func newEnv(t *testing.T) *env {
	t.Helper()

	cfg := testConfig()
	store := memory.NewJobStore(system.New())
	q := queuemem.NewQueue(cfg.Parser.QueueDepth)
	contentStore := storagemem.NewStore(system.New())
	c := cache.New(time.Hour, 100, system.New())

	workers := make([]*worker.Worker, 0, cfg.Parser.Concurrency)
	for i := 0; i < cfg.Parser.Concurrency; i++ {
		workers = append(workers, worker.New(q, store, c, passthroughExtractor{}, fakeAnalyzer{},
			sha256.New(), system.New(), worker.Config{MinTextChars: cfg.Parser.MinTextChars}, zap.NewNop()))
	}

	d := dispatcher.New(q, store, contentStore, iduuid.New(), system.New(), workers,
		dispatcher.Config{MinTextChars: cfg.Parser.MinTextChars}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	formats := []string{"text/plain", "text/markdown", "text/html", "application/pdf"}
	srv := NewServer(store, d, c, contentStore, formats, cfg, zap.NewNop())
	return &env{server: srv, store: store, queue: q}
}

func (e *env) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func submitText(t *testing.T, e *env, text string) string {
	t.Helper()
	payload := fmt.Sprintf(`{"text":%q,"mode":"shallow","user_id":"user-1","session_id":"sess-1"}`, text)
	req := httptest.NewRequest(http.MethodPost, "/v1/parse/text", strings.NewReader(payload))
	rec := e.do(t, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	require.Equal(t, "pending", body["status"])
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)
	return jobID
}

func awaitStatus(t *testing.T, e *env, jobID, want string) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID+"/status", nil))
		if rec.Code != http.StatusOK {
			return false
		}
		body = decodeBody(t, rec)
		return body["status"] == want
	}, 5*time.Second, 10*time.Millisecond)
	return body
}

func TestParseText_EndToEnd(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	jobID := submitText(t, e, "senior software engineer resume text")

	awaitStatus(t, e, jobID, "success")

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "success", body["status"])
	require.Equal(t, "EN", body["language"])
	require.Equal(t, "gpt-4o-mini", body["model"])
	require.NotNil(t, body["result"])
	require.NotContains(t, body, "error")
}

func TestParseText_Validation(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/v1/parse/text",
		strings.NewReader(`{"text":"short","user_id":"user-1"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodPost, "/v1/parse/text",
		strings.NewReader(`not json`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodPost, "/v1/parse/text",
		strings.NewReader(`{"text":"long enough resume text","user_id":"user-1","mode":"extreme"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
	hdr["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	require.NoError(t, w.WriteField("user_id", "user-1"))
	require.NoError(t, w.WriteField("session_id", "sess-1"))
	require.NoError(t, w.WriteField("mode", "detailed"))
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestParseFile_EndToEnd(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	body, contentType := multipartBody(t, "resume.txt", "text/plain",
		[]byte("a plain text resume with enough characters"))

	req := httptest.NewRequest(http.MethodPost, "/v1/parse/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := e.do(t, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	jobID := decodeBody(t, rec)["job_id"].(string)
	awaitStatus(t, e, jobID, "success")

	statsRec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/storage/stats", nil))
	require.Equal(t, http.StatusOK, statsRec.Code)
	stats := decodeBody(t, statsRec)
	require.Equal(t, float64(1), stats["total_files"])
}

func TestParseFile_TooLarge(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	body, contentType := multipartBody(t, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 2<<20))

	req := httptest.NewRequest(http.MethodPost, "/v1/parse/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := e.do(t, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestParseFile_MissingFile(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("user_id", "user-1"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/parse/file", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := e.do(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobStatus_NotFound(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/jobs/nope/status", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobStatus_FailedJobExposesError(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.CreateJob(ctx, parser.Job{
		ID:      "failed-job",
		ActorID: "user-1",
		Mode:    parser.ModeShallow,
		Status:  parser.JobStatusPending,
	}))
	require.NoError(t, e.store.MarkFailed(ctx, "failed-job", "analysis timed out after 1m0s", time.Minute))

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/jobs/failed-job/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "failed", body["status"])
	require.Equal(t, "analysis timed out after 1m0s", body["error"])
	require.NotEmpty(t, body["updated_at"])
}

func TestGetJobResult_PendingHasNoError(t *testing.T) {
	t.Parallel()

	// No workers running, so the job stays pending.
	cfg := testConfig()
	store := memory.NewJobStore(system.New())
	q := queuemem.NewQueue(cfg.Parser.QueueDepth)
	contentStore := storagemem.NewStore(system.New())
	c := cache.New(time.Hour, 100, system.New())
	d := dispatcher.New(q, store, contentStore, iduuid.New(), system.New(), nil,
		dispatcher.Config{MinTextChars: cfg.Parser.MinTextChars}, zap.NewNop())
	srv := NewServer(store, d, c, contentStore, nil, cfg, zap.NewNop())
	e := &env{server: srv, store: store, queue: q}

	jobID := submitText(t, e, "pending job resume text")

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "pending", body["status"])
	require.NotContains(t, body, "error")
	require.NotContains(t, body, "result")
}

func TestHistory_FiltersAndPaginates(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	for i := 0; i < 3; i++ {
		submitText(t, e, fmt.Sprintf("resume text number %d for history", i))
	}

	rec := e.do(t, httptest.NewRequest(http.MethodGet,
		"/v1/history/user-1?session_id=sess-1&page=1&page_size=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, float64(3), body["total"])
	require.Len(t, body["jobs"], 2)

	rec = e.do(t, httptest.NewRequest(http.MethodGet,
		"/v1/history/user-1?session_id=other", nil))
	body = decodeBody(t, rec)
	require.Equal(t, float64(0), body["total"])

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/v1/history/nobody", nil))
	body = decodeBody(t, rec)
	require.Equal(t, float64(0), body["total"])
}

func TestCacheStats(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Contains(t, body, "entry_count")
	require.Contains(t, body, "hit_rate_percent")
}

func TestSupportedFormats(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/v1/supported-formats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Contains(t, body["formats"], "application/pdf")
	require.Equal(t, float64(1), body["max_file_size_mb"])
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

// uuidLedger rejects ids that do not parse as UUIDs, the way a
// postgres ledger with a typed uuid id column does.
type uuidLedger struct {
	err error
}

func (l *uuidLedger) CreateJob(context.Context, parser.Job) error { return nil }
func (l *uuidLedger) MarkSucceeded(context.Context, string, parser.AnalysisResult, time.Duration) error {
	return nil
}
func (l *uuidLedger) MarkFailed(context.Context, string, string, time.Duration) error { return nil }
func (l *uuidLedger) GetJob(_ context.Context, jobID string) (parser.Job, error) {
	if l.err != nil {
		return parser.Job{}, l.err
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return parser.Job{}, fmt.Errorf("invalid input syntax for type uuid: %q", jobID)
	}
	return parser.Job{}, parser.ErrNotFound
}
func (l *uuidLedger) ListByActor(context.Context, string, string, int, int) ([]parser.JobSummary, int, error) {
	return nil, 0, nil
}

func TestReadyz_ProbesLedgerWithValidUUID(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	q := queuemem.NewQueue(cfg.Parser.QueueDepth)
	contentStore := storagemem.NewStore(system.New())
	c := cache.New(time.Hour, 100, system.New())
	store := &uuidLedger{}
	d := dispatcher.New(q, store, contentStore, iduuid.New(), system.New(), nil,
		dispatcher.Config{MinTextChars: cfg.Parser.MinTextChars}, zap.NewNop())
	srv := NewServer(store, d, c, contentStore, nil, cfg, zap.NewNop())
	e := &env{server: srv, queue: q}

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	store.err = fmt.Errorf("connection refused")
	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
