package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharow/sharow/internal/config"
)

func TestNewLogger_JSONOutsideDev(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := newLogger(config.Config{AppEnv: "prod", OTELServiceName: "sharow", LogLevel: "warn"}, &buf)
	lg.Info("dropped")
	lg.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"service":"sharow"`)
	assert.Contains(t, out, `"env":"prod"`)
}

func TestNewLogger_TintInDev(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := newLogger(config.Config{AppEnv: "dev", LogLevel: "debug"}, &buf)
	lg.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.NotContains(t, buf.String(), `"msg"`)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestHTTPMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/v1/bills/{billId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/bills/{billId}", "GET", "Not Found"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bills/123", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/bills/{billId}", "GET", "Not Found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1, after)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(GuardrailTripsTotal.WithLabelValues("input", "allowed_topics"))
	GuardrailTripped("input", "allowed_topics")
	assert.Equal(t, before+1, testutil.ToFloat64(GuardrailTripsTotal.WithLabelValues("input", "allowed_topics")))

	before = testutil.ToFloat64(AIRequestsTotal.WithLabelValues("gemini", "ok"))
	ObserveAIRequest("gemini", "ok", 150*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(AIRequestsTotal.WithLabelValues("gemini", "ok")))

	before = testutil.ToFloat64(BillsAnalyzedTotal.WithLabelValues("success"))
	BillAnalyzed("success")
	assert.Equal(t, before+1, testutil.ToFloat64(BillsAnalyzedTotal.WithLabelValues("success")))
}

func TestSetupTracing_Disabled(t *testing.T) {
	t.Parallel()

	shutdown, err := SetupTracing(context.Background(), config.Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
