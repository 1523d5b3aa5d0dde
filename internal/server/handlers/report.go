package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/bucketscan/internal/errors"
	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/match"
	"github.com/3leaps/bucketscan/pkg/output"
	"github.com/3leaps/bucketscan/pkg/provider"
	"github.com/3leaps/bucketscan/pkg/units"
)

// ReportRequest holds the query parameters of GET /v1/report.
type ReportRequest struct {
	Bucket       string
	StorageClass string
	Unit         string
	Grouping     fleet.Grouping
}

// ReportFunc runs one fleet scan.
type ReportFunc func(ctx context.Context, req ReportRequest) (*fleet.Report, error)

// ReportHandler serves on-demand fleet reports. Only one scan runs at a
// time; concurrent requests get 409.
type ReportHandler struct {
	run      ReportFunc
	provider string
	log      *zap.Logger
	busy     sync.Mutex
}

// NewReportHandler creates a report handler.
func NewReportHandler(run ReportFunc, providerName string, log *zap.Logger) *ReportHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportHandler{run: run, provider: providerName, log: log}
}

// contentTypes maps output formats to response content types.
var contentTypes = map[string]string{
	output.FormatTable: "text/plain; charset=utf-8",
	output.FormatJSONL: "application/x-ndjson",
	output.FormatYAML:  "application/yaml",
}

// ServeHTTP handles GET /v1/report.
//
// Query parameters: bucket (glob), storage_class, unit, group_by
// (none|region|encryption) and format (json|jsonl|yaml|table). An unknown
// unit falls back to mb.
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, format, err := parseReportRequest(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if req.Unit != "" && !units.IsKnown(req.Unit) {
		h.log.Warn("Unknown size unit, using default",
			zap.String("unit", req.Unit),
			zap.String("default", units.DefaultUnit))
	}
	req.Unit = units.Normalize(req.Unit)

	if !h.busy.TryLock() {
		respondWithError(w, r, apperrors.Conflict("a scan is already running"))
		return
	}
	defer h.busy.Unlock()

	report, err := h.run(r.Context(), req)
	if err != nil {
		h.log.Warn("Report scan failed", zap.Error(err))
		respondWithError(w, r, classifyScanError(err))
		return
	}

	opts := output.Options{JobID: uuid.New().String(), Provider: h.provider, Unit: req.Unit}

	if format == "json" {
		apperrors.WriteJSON(w, http.StatusOK, output.NewDocument(report, req.Grouping, opts))
		return
	}

	var buf bytes.Buffer
	renderer, err := output.NewRenderer(format, &buf, opts)
	if err != nil {
		respondWithError(w, r, apperrors.BadRequest(err.Error(), err))
		return
	}
	if err := renderer.Render(r.Context(), report, req.Grouping); err != nil {
		respondWithError(w, r, apperrors.Internal("render report", err))
		return
	}

	w.Header().Set("Content-Type", contentTypes[format])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseReportRequest(r *http.Request) (ReportRequest, string, error) {
	q := r.URL.Query()
	req := ReportRequest{
		Bucket:       q.Get("bucket"),
		StorageClass: q.Get("storage_class"),
		Unit:         q.Get("unit"),
	}

	if _, err := match.NewNameFilter(req.Bucket); err != nil {
		return req, "", apperrors.BadRequest(err.Error(), err)
	}
	grouping, err := fleet.ParseGrouping(q.Get("group_by"))
	if err != nil {
		return req, "", apperrors.BadRequest(err.Error(), err)
	}
	req.Grouping = grouping

	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if format == "" || format == "json" {
		return req, "json", nil
	}
	f, err := output.ParseFormat(format)
	if err != nil {
		return req, "", apperrors.BadRequest(err.Error(), err)
	}
	return req, f, nil
}

func classifyScanError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.GatewayTimeout("scan timed out", err)
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err),
		provider.IsProviderUnavailable(err), provider.IsThrottled(err):
		return apperrors.ServiceUnavailable("storage provider unavailable", map[string]any{"code": output.ErrorCode(err)}, err)
	default:
		return apperrors.Internal("scan failed", err)
	}
}
