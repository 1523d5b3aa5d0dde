package output

import (
	"context"
	"io"

	"github.com/3leaps/bucketscan/pkg/fleet"
)

// JSONLRenderer writes one bucket record per summary, one error record per
// failed bucket, and a closing summary record.
type JSONLRenderer struct {
	writer *JSONLWriter
	unit   string
}

// NewJSONLRenderer creates a JSONL renderer.
func NewJSONLRenderer(w io.Writer, opts Options) *JSONLRenderer {
	return &JSONLRenderer{
		writer: NewJSONLWriter(w, opts.JobID, opts.Provider),
		unit:   opts.Unit,
	}
}

// Render writes the report.
func (r *JSONLRenderer) Render(ctx context.Context, report *fleet.Report, grouping fleet.Grouping) error {
	for _, g := range fleet.GroupBy(grouping, report.Summaries) {
		for _, s := range g.Summaries {
			if err := r.writer.WriteBucket(ctx, NewBucketRecord(s, g.Key)); err != nil {
				return err
			}
		}
	}

	for _, f := range report.Failures {
		if err := r.writer.WriteError(ctx, NewErrorRecord(f)); err != nil {
			return err
		}
	}

	return r.writer.WriteSummary(ctx, NewSummaryRecord(report, grouping, r.unit))
}

var _ Renderer = (*JSONLRenderer)(nil)
