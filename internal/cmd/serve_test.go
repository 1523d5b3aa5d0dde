package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketscan/internal/server/handlers"
	"github.com/3leaps/bucketscan/pkg/output"
	"github.com/3leaps/bucketscan/pkg/provider"
	"github.com/3leaps/bucketscan/pkg/provider/file"
	"github.com/3leaps/bucketscan/pkg/provider/providertest"
)

func TestSignalHealthChecker(t *testing.T) {
	assert.NoError(t, signalHealthChecker{}.CheckHealth(context.Background()))
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name    string
		checker identityHealthChecker
		wantErr string
	}{
		{"complete", identityHealthChecker{"bucketscan", "BUCKETSCAN", "bucketscan"}, ""},
		{"missing binary", identityHealthChecker{"", "BUCKETSCAN", "bucketscan"}, "missing binary name"},
		{"missing prefix", identityHealthChecker{"bucketscan", "", "bucketscan"}, "missing env prefix"},
		{"missing config", identityHealthChecker{"bucketscan", "BUCKETSCAN", ""}, "missing config name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.checker.CheckHealth(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProviderHealthChecker(t *testing.T) {
	assert.NoError(t, providerHealthChecker{lister: providertest.New()}.CheckHealth(context.Background()))

	failing := providertest.New()
	failing.ListBucketsErr = provider.ErrInvalidCredentials
	err := providerHealthChecker{lister: failing}.CheckHealth(context.Background())
	assert.ErrorIs(t, err, provider.ErrInvalidCredentials)

	assert.Error(t, providerHealthChecker{}.CheckHealth(context.Background()))
}

func TestNewServer_ReportAndMetrics(t *testing.T) {
	root := writeBuckets(t, map[string][]int{
		"alpha": {mib},
		"beta":  {3 * mib},
	})
	cfg := fileConfig(t, root, nil)
	prov, err := file.New(file.Config{BaseDir: root})
	require.NoError(t, err)

	srv := newServer(cfg, prov)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/report?group_by=region", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var doc output.Document
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.Equal(t, "file", doc.Provider)
	require.Len(t, doc.Groups, 1)
	assert.Equal(t, "local", doc.Groups[0].Key)
	require.Len(t, doc.Groups[0].Buckets, 2)
	assert.Equal(t, "25.00%", doc.Groups[0].Buckets[0].PercentOfTotal)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bucketscan_buckets_total{outcome="scanned"} 2`)
	assert.Contains(t, rec.Body.String(), "bucketscan_last_run_duration_seconds")
}

func TestNewServer_MetricsTrackLatestReport(t *testing.T) {
	root := writeBuckets(t, map[string][]int{
		"alpha": {mib},
		"beta":  {3 * mib},
	})
	prov, err := file.New(file.Config{BaseDir: root})
	require.NoError(t, err)
	srv := newServer(fileConfig(t, root, nil), prov)

	scrape := func() string {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Body.String()
	}
	report := func(query string) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/report?"+query, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	report("")
	assert.Contains(t, scrape(), `bucketscan_bucket_size_bytes{bucket="alpha",region="local"}`)

	report("bucket=beta")
	body := scrape()
	assert.NotContains(t, body, `bucket="alpha"`)
	assert.Contains(t, body, `bucketscan_bucket_size_bytes{bucket="beta",region="local"}`)
}

func TestNewServer_MetricsDisabled(t *testing.T) {
	root := writeBuckets(t, map[string][]int{"alpha": {mib}})
	cfg := fileConfig(t, root, map[string]any{"metrics": map[string]any{"enabled": false}})
	prov, err := file.New(file.Config{BaseDir: root})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newServer(cfg, prov).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServer_Version(t *testing.T) {
	orig := versionInfo
	t.Cleanup(func() { versionInfo = orig })
	SetVersionInfo("9.9.9", "f00d", "2026-05-06")

	root := writeBuckets(t, map[string][]int{"alpha": {1}})
	prov, err := file.New(file.Config{BaseDir: root})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newServer(fileConfig(t, root, nil), prov).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info handlers.VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "9.9.9", info.Version)
}
