package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/units"
)

// Supported output formats.
const (
	FormatTable = "table"
	FormatJSONL = "jsonl"
	FormatYAML  = "yaml"
)

// Formats lists the supported output formats.
var Formats = []string{FormatTable, FormatJSONL, FormatYAML}

// Renderer writes a completed report in one output format.
type Renderer interface {
	Render(ctx context.Context, report *fleet.Report, grouping fleet.Grouping) error
}

// Options carries the report context shared by all renderers.
type Options struct {
	// JobID correlates JSONL records of one run.
	JobID string

	// Provider is the storage provider name, e.g. "s3".
	Provider string

	// Unit is the display unit of summary sizes.
	Unit string
}

// ParseFormat normalizes a format name, accepting "json" and "yml" as
// aliases. The empty string selects FormatTable.
func ParseFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSONL, "json":
		return FormatJSONL, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats, ", "))
	}
}

// NewRenderer returns the renderer for format, writing to w.
func NewRenderer(format string, w io.Writer, opts Options) (Renderer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	opts.Unit = units.Normalize(opts.Unit)
	switch f {
	case FormatJSONL:
		return NewJSONLRenderer(w, opts), nil
	case FormatYAML:
		return NewYAMLRenderer(w, opts), nil
	default:
		return NewTableRenderer(w, opts), nil
	}
}

// NewBucketRecord converts a summary into its record form. group is the key
// of the group the summary was rendered under, if any.
func NewBucketRecord(s *inventory.BucketSummary, group string) *BucketRecord {
	enc := s.Encryption
	if enc == nil {
		enc = map[string]int64{}
	}
	return &BucketRecord{
		Name:               s.Name,
		Group:              group,
		CreationDate:       s.CreationDate,
		ObjectCount:        s.ObjectCount,
		Size:               s.Size,
		SizeBytes:          s.SizeBytes,
		Unit:               s.Unit,
		LastModified:       s.LastModified,
		Cost:               s.Cost,
		Region:             s.Region,
		StorageClass:       s.StorageClass,
		StorageClassCounts: s.StorageClassCounts,
		Encryption:         enc,
		DominantEncryption: s.DominantEncryption(),
		Lifecycle:          s.Lifecycle.Name(),
		Replication:        s.Replication.Name(),
		PercentOfTotal:     fleet.FormatPercent(s.PercentOfTotal),
	}
}

// NewErrorRecord converts a bucket failure into an error record.
func NewErrorRecord(f fleet.Failure) *ErrorRecord {
	return &ErrorRecord{Code: ErrorCode(f.Err), Message: f.Err.Error(), Bucket: f.Bucket}
}

// NewSummaryRecord builds the report footer record.
func NewSummaryRecord(report *fleet.Report, grouping fleet.Grouping, unit string) *SummaryRecord {
	totals := report.Totals()
	return &SummaryRecord{
		Buckets:       totals.Buckets,
		BucketsListed: report.BucketsListed,
		Skipped:       report.Skipped,
		Failed:        totals.Failed,
		Objects:       totals.Objects,
		BytesTotal:    totals.SizeBytes,
		Size:          totals.Size,
		Unit:          units.Normalize(unit),
		Cost:          totals.Cost,
		Grouping:      grouping.String(),
		Duration:      report.Duration,
		DurationHuman: report.Duration.Round(time.Millisecond).String(),
	}
}
