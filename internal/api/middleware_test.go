package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/opensource-finance/regtools/internal/domain"
)

func TestTenantMiddleware(t *testing.T) {
	var seen string
	h := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTenantID(r.Context())
	}))

	tests := []struct {
		name   string
		tenant string
		code   int
	}{
		{"Plain", "insurer-01", http.StatusOK},
		{"Underscore", "fr_insurer_02", http.StatusOK},
		{"Dotted", "fr.insurer", http.StatusBadRequest},
		{"Global", "_global", http.StatusBadRequest},
		{"Missing", "", http.StatusBadRequest},
		{"Space", "insurer 01", http.StatusBadRequest},
		{"Wildcard", "insurer.>", http.StatusBadRequest},
		{"LeadingDot", ".insurer", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.tenant != "" {
				req.Header.Set(TenantIDHeader, tt.tenant)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.code, rr.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.tenant, seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}

func TestTracingMiddleware(t *testing.T) {
	var traceID, requestID string
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r.Context())
		requestID = GetRequestID(r.Context())
	}))

	t.Run("Generated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, requestID)
		assert.NotEmpty(t, traceID)
		assert.Equal(t, requestID, rr.Header().Get(RequestIDHeader))
		assert.Equal(t, traceID, rr.Header().Get(TraceIDHeader))
	})

	t.Run("CallerSupplied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		req.Header.Set(TraceIDHeader, "case-2025-0042")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, "req-42", requestID)
		assert.Equal(t, "case-2025-0042", traceID)
		assert.Equal(t, "case-2025-0042", rr.Header().Get(TraceIDHeader))
	})

	t.Run("TraceparentIgnoredWhenDisabled", func(t *testing.T) {
		SetupTracing(domain.TracingConfig{Enabled: false})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.NotEqual(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)
	})

	t.Run("TraceparentContinued", func(t *testing.T) {
		prev := otel.GetTextMapPropagator()
		t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
		SetupTracing(domain.TracingConfig{Enabled: true})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)
		assert.Equal(t, traceID, rr.Header().Get(TraceIDHeader))
	})
}

func TestTraceIDStoredOnEvaluation(t *testing.T) {
	env := defaultEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(`{"occupation":"médecin"}`))
	req.Header.Set(TenantIDHeader, testTenant)
	req.Header.Set(TraceIDHeader, "case-2025-0042")
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[domain.EvaluationResponse](t, rr)
	assert.Equal(t, "case-2025-0042", resp.Metadata.TraceID)

	stored, err := env.repo.GetEvaluation(req.Context(), testTenant, resp.EvaluationID)
	require.NoError(t, err)
	assert.Equal(t, "case-2025-0042", stored.Metadata.TraceID)
}

func TestRecoverMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(RecoverMiddleware)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal server error")
}

func TestStatusWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := wrapWriter(rr)

	_, err := sw.Write([]byte("hello"))
	require.NoError(t, err)
	sw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, sw.status)
	assert.Equal(t, 5, sw.bytes)
	assert.Same(t, rr, sw.Unwrap())
}
