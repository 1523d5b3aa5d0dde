package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/3leaps/bucketscan/internal/errors"
)

func panicking(v any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(v)
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRecovery_NoPanic(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRecovery_Panic(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		message string
	}{
		{"string", "scan exploded", "panic: scan exploded"},
		{"error", assert.AnError, "panic: " + assert.AnError.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			assert.NotPanics(t, func() {
				Recovery(panicking(tt.value)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
			})

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decode(t, rec)
			assert.Equal(t, apperrors.CodeInternal, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
		})
	}
}

func TestRecovery_CarriesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(apperrors.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()

	RequestID(Recovery(panicking("boom"))).ServeHTTP(rec, req)

	assert.Equal(t, "req-123", decode(t, rec).Error.RequestID)
	assert.Equal(t, "req-123", rec.Header().Get(apperrors.RequestIDHeader))
}

func TestErrorHandler_MatchesRecovery(t *testing.T) {
	rec1 := httptest.NewRecorder()
	Recovery(panicking("x")).ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/test", nil))
	rec2 := httptest.NewRecorder()
	ErrorHandler(panicking("x")).ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, rec1.Code, rec2.Code)
	assert.JSONEq(t, rec1.Body.String(), rec2.Body.String())
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.NotEmpty(t, seen)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(apperrors.RequestIDHeader))
}

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name      string
		envelope  *errors.ErrorEnvelope
		status    int
		wantCode  string
		wantMsg   string
		requestID string
	}{
		{
			name:     "bad request",
			envelope: errors.NewErrorEnvelope("BAD_REQUEST", "unknown unit tb"),
			status:   http.StatusBadRequest,
			wantCode: "BAD_REQUEST",
			wantMsg:  "unknown unit tb",
		},
		{
			name:     "internal error",
			envelope: errors.NewErrorEnvelope("INTERNAL_ERROR", "scan failed"),
			status:   http.StatusInternalServerError,
			wantCode: "INTERNAL_ERROR",
			wantMsg:  "scan failed",
		},
		{
			name: "correlation id becomes request id",
			envelope: errors.NewErrorEnvelope("NOT_FOUND", "no such route").
				WithCorrelationID("req-7"),
			status:    http.StatusNotFound,
			wantCode:  "NOT_FOUND",
			wantMsg:   "no such route",
			requestID: "req-7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeErrorResponse(rec, tt.envelope, tt.status)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decode(t, rec)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.Equal(t, tt.requestID, resp.Error.RequestID)
			assert.NotEmpty(t, resp.Error.Timestamp)
		})
	}
}

func TestWriteErrorResponse_DetailsAndContext(t *testing.T) {
	envelope := errors.NewErrorEnvelope("VALIDATION_ERROR", "invalid input").
		WithDetails(map[string]any{"field": "unit"})
	envelope, err := envelope.WithContext(map[string]any{"value": "tb"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	writeErrorResponse(rec, envelope, http.StatusBadRequest)

	resp := decode(t, rec)
	assert.Equal(t, "unit", resp.Error.Details["field"])
	assert.Equal(t, "tb", resp.Error.Details["value"])
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := RequestID(RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("fine"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(200), entries[0].ContextMap()["status"])
	assert.Equal(t, int64(4), entries[0].ContextMap()["bytes"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(502), entries[1].ContextMap()["status"])
}
