package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	Init()
	require.NotPanics(t, Init)
}

func TestObserveJob(t *testing.T) {
	Init()

	before := testutil.ToFloat64(parseJobsTotal.WithLabelValues("success"))
	ObserveJob("success")
	after := testutil.ToFloat64(parseJobsTotal.WithLabelValues("success"))
	require.Equal(t, before+1, after)
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()

	base := testutil.ToFloat64(parseActiveWorkers)
	IncActiveWorkers()
	require.Equal(t, base+1, testutil.ToFloat64(parseActiveWorkers))
	DecActiveWorkers()
	require.Equal(t, base, testutil.ToFloat64(parseActiveWorkers))
}

func TestObserveCacheLookup(t *testing.T) {
	Init()

	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss"))
	ObserveCacheLookup(true)
	ObserveCacheLookup(false)
	require.Equal(t, hits+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")))
	require.Equal(t, misses+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss")))
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveJob("failed")
	ObserveHTTPRequest(http.MethodGet, "/v1/jobs", http.StatusOK, 10*time.Millisecond)
	ObserveExtraction("application/pdf", 50*time.Millisecond)
	ObserveAnalysis("shallow", time.Second)
	ObserveStorageWriteFailure()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "docparse_jobs_total"))
	require.True(t, strings.Contains(body, "http_requests_total"))
}
