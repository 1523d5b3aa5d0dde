package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/3leaps/bucketscan/internal/errors"
	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/output"
	"github.com/3leaps/bucketscan/pkg/provider"
	"github.com/3leaps/bucketscan/pkg/units"
)

func testReport() *fleet.Report {
	summaries := []*inventory.BucketSummary{
		{
			Name:        "logs",
			ObjectCount: 4,
			Size:        3,
			SizeBytes:   3 << 20,
			Unit:        "mb",
			Region:      "us-east-1",
			Encryption:  map[string]int64{"AES256": 4},
			Lifecycle:   inventory.ConfigPresent,
			Replication: inventory.ConfigAbsent,
		},
		{
			Name:        "media",
			ObjectCount: 1,
			Size:        1,
			SizeBytes:   1 << 20,
			Unit:        "mb",
			Region:      "eu-west-1",
			Encryption:  map[string]int64{"aws:kms": 1},
			Lifecycle:   inventory.ConfigAbsent,
			Replication: inventory.ConfigAbsent,
		},
	}
	report := &fleet.Report{Summaries: summaries, BucketsListed: 2, Duration: time.Second}
	report.TotalSize = fleet.ApplyPercentages(summaries)
	return report
}

func staticReport(report *fleet.Report, captured *ReportRequest) ReportFunc {
	return func(ctx context.Context, req ReportRequest) (*fleet.Report, error) {
		if captured != nil {
			*captured = req
		}
		return report, nil
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPError {
	t.Helper()
	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestReportHandler_JSONDocument(t *testing.T) {
	var got ReportRequest
	h := NewReportHandler(staticReport(testReport(), &got), string(provider.ProviderS3), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/report?bucket=*&unit=MB&group_by=region&storage_class=STANDARD", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.Equal(t, ReportRequest{Bucket: "*", StorageClass: "STANDARD", Unit: "mb", Grouping: fleet.GroupRegion}, got)

	var doc output.Document
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.NotEmpty(t, doc.JobID)
	assert.Equal(t, "s3", doc.Provider)
	assert.Equal(t, "region", doc.Grouping)
	require.Len(t, doc.Groups, 2)
	assert.Equal(t, "eu-west-1", doc.Groups[0].Key)
	assert.Equal(t, "media", doc.Groups[0].Buckets[0].Name)
	assert.Equal(t, "25.00%", doc.Groups[0].Buckets[0].PercentOfTotal)
	assert.Equal(t, "us-east-1", doc.Groups[1].Key)
	require.NotNil(t, doc.Summary)
}

func TestReportHandler_OtherFormats(t *testing.T) {
	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"jsonl", "application/x-ndjson", `"type":"bucketscan.bucket.v1"`},
		{"yaml", "application/yaml", "groups:"},
		{"table", "text/plain; charset=utf-8", "Creation Date"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			h := NewReportHandler(staticReport(testReport(), nil), string(provider.ProviderS3), nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/report?format="+tt.format, nil))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestReportHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"invalid glob", "bucket=" + "%5B"},
		{"unknown grouping", "group_by=owner"},
		{"unknown format", "format=csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewReportHandler(func(ctx context.Context, req ReportRequest) (*fleet.Report, error) {
				called = true
				return testReport(), nil
			}, string(provider.ProviderS3), nil)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/report?"+tt.query, nil))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, apperrors.CodeBadRequest, decodeError(t, rec).Code)
			assert.False(t, called, "scan must not run for invalid input")
		})
	}
}

func TestReportHandler_UnknownUnitFallsBack(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var got ReportRequest
	h := NewReportHandler(staticReport(testReport(), &got), string(provider.ProviderS3), zap.New(core))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/report?unit=tb", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, units.DefaultUnit, got.Unit)
	require.Equal(t, 1, logs.FilterMessage("Unknown size unit, using default").Len())
	assert.Equal(t, "tb", logs.All()[0].ContextMap()["unit"])
}

func TestReportHandler_ScanErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"access denied", &provider.ProviderError{Op: "ListBuckets", Provider: "s3", Err: provider.ErrAccessDenied}, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable},
		{"unavailable", fmt.Errorf("list: %w", provider.ErrProviderUnavailable), http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, apperrors.CodeGatewayTimeout},
		{"other", assert.AnError, http.StatusInternalServerError, apperrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewReportHandler(func(ctx context.Context, req ReportRequest) (*fleet.Report, error) {
				return nil, tt.err
			}, string(provider.ProviderS3), nil)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/report", nil))

			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestReportHandler_ConcurrentScanConflicts(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := NewReportHandler(func(ctx context.Context, req ReportRequest) (*fleet.Report, error) {
		close(started)
		<-release
		return testReport(), nil
	}, string(provider.ProviderS3), nil)

	var wg sync.WaitGroup
	first := httptest.NewRecorder()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/report", nil))
	}()
	<-started

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/report", nil))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, apperrors.CodeConflict, decodeError(t, second).Code)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler(VersionInfo{Version: "1.4.0", Commit: "abc123", BuildDate: "2026-01-02"})(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `"version":"1.4.0"`), body)
	assert.Contains(t, body, `"commit":"abc123"`)
	assert.Contains(t, body, `"build_date":"2026-01-02"`)
}
