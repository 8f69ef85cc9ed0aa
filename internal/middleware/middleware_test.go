package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetClientFromContext(r.Context())))
})

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"ops": "s3cret"})(okHandler)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, "missing Authorization header"},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, "invalid API key"},
		{"bearer", "Bearer s3cret", http.StatusOK, "ops"},
		{"bare key", "s3cret", http.StatusOK, "ops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/download_csv", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestAPIKeyAuth_NoKeysPassesThrough(t *testing.T) {
	h := APIKeyAuth(nil)(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download_csv", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	checks := map[string]HealthChecker{
		"store": CheckFunc(func(context.Context) error { return nil }),
	}
	rec := httptest.NewRecorder()
	HealthHandler("2.0.0", checks)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "2.0.0", body.Version)
	assert.Equal(t, "healthy", body.Checks["store"].Status)

	checks["archive"] = CheckFunc(func(context.Context) error { return errors.New("connection refused") })
	rec = httptest.NewRecorder()
	HealthHandler("2.0.0", checks)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["archive"].Message)
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 0)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimitMiddleware(ctx, 1, 0)(okHandler)

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit_survey", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1111"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:2222"), "same host, different port")
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1111"))
}

func TestRateLimiter_Evict(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 5, 1)
	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 2, rl.Len())

	rl.evict(time.Now())
	assert.Equal(t, 2, rl.Len())

	rl.evict(time.Now().Add(11 * time.Minute))
	assert.Equal(t, 0, rl.Len())
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics()
	fail := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	m.Middleware(okHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	m.Middleware(fail).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	m.IncrementSubmissionsAccepted()
	m.IncrementDeliveriesDropped()

	rec := httptest.NewRecorder()
	m.Handler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.EqualValues(t, 2, snap["requests_total"])
	assert.EqualValues(t, 1, snap["requests_success"])
	assert.EqualValues(t, 1, snap["requests_failed"])
	assert.EqualValues(t, 0, snap["requests_in_progress"])
	assert.EqualValues(t, 1, snap["submissions_accepted"])
	assert.EqualValues(t, 1, snap["deliveries_dropped"])
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "/stats", fields["path"])
	assert.EqualValues(t, 500, fields["status"])
	assert.EqualValues(t, 4, fields["bytes"])
}

func TestLoggingMiddleware_RecordsAuthenticatedClient(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	inner := APIKeyAuth(map[string]string{"ops": "k1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h := LoggingMiddleware(zap.New(core))(inner)

	req := httptest.NewRequest(http.MethodGet, "/download_csv", nil)
	req.Header.Set("Authorization", "Bearer k1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ops", logs.All()[0].ContextMap()["client"])

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/download_csv", nil))
	require.Equal(t, 2, logs.Len())
	_, logged := logs.All()[1].ContextMap()["client"]
	assert.False(t, logged)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello\tworld", SanitizeString("  hel\x00lo\tw\x07orld\r "))
}

func TestValidateParticipantID(t *testing.T) {
	assert.NoError(t, ValidateParticipantID(""))
	assert.NoError(t, ValidateParticipantID("P_20260601_080000"))
	assert.NoError(t, ValidateParticipantID("someone@example.org"))
	assert.Error(t, ValidateParticipantID("a b"))
	assert.Error(t, ValidateParticipantID(strings.Repeat("x", 129)))
}

func TestValidateFieldLength(t *testing.T) {
	assert.NoError(t, ValidateFieldLength("education", strings.Repeat("é", MaxFieldLength)))
	assert.Error(t, ValidateFieldLength("education", strings.Repeat("x", MaxFieldLength+1)))
}
