package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/units"
)

// timeLayout is used for creation and last-modified columns.
const timeLayout = "2006-01-02 15:04:05"

// TableRenderer writes an aligned text table per group, followed by a
// totals footer and any failed buckets.
type TableRenderer struct {
	w    io.Writer
	opts Options
}

// NewTableRenderer creates a table renderer.
func NewTableRenderer(w io.Writer, opts Options) *TableRenderer {
	return &TableRenderer{w: w, opts: opts}
}

// Headers returns the table column names for unit.
func Headers(unit string) []string {
	return []string{
		"Bucket",
		"Creation Date",
		"Files",
		fmt.Sprintf("Total Size (%s)", units.Label(unit)),
		"Last Modified",
		"Cost ($)",
		"Region",
		"Storage Class",
		"Encryption Types",
		"Has Lifecycle",
		"Has Replication",
		"Size % of Total",
	}
}

// Row returns the table cells for one summary.
func Row(s *inventory.BucketSummary) []string {
	return []string{
		s.Name,
		s.CreationDate.UTC().Format(timeLayout),
		fmt.Sprintf("%d", s.ObjectCount),
		fmt.Sprintf("%.3f", s.Size),
		s.LastModified.UTC().Format(timeLayout),
		fmt.Sprintf("%.6f", s.Cost),
		s.Region,
		s.StorageClass,
		encryptionCell(s),
		s.Lifecycle.String(),
		s.Replication.String(),
		fleet.FormatPercent(s.PercentOfTotal),
	}
}

func encryptionCell(s *inventory.BucketSummary) string {
	keys := s.EncryptionKeys()
	if len(keys) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, s.Encryption[k]))
	}
	return strings.Join(parts, ", ")
}

// Render writes the report.
func (r *TableRenderer) Render(ctx context.Context, report *fleet.Report, grouping fleet.Grouping) error {
	groups := fleet.GroupBy(grouping, report.Summaries)

	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if grouping != fleet.GroupNone {
			if i > 0 {
				if _, err := fmt.Fprintln(r.w); err != nil {
					return &WriteError{Op: "write", Err: err}
				}
			}
			if _, err := fmt.Fprintf(r.w, "%s: %s\n", grouping.Header(), g.Key); err != nil {
				return &WriteError{Op: "write", Err: err}
			}
		}
		if err := r.writeTable(g.Summaries); err != nil {
			return err
		}
	}

	return r.writeFooter(report)
}

func (r *TableRenderer) writeTable(summaries []*inventory.BucketSummary) error {
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)

	headers := Headers(r.opts.Unit)
	rules := make([]string, len(headers))
	for i, h := range headers {
		rules[i] = strings.Repeat("-", len([]rune(h)))
	}

	lines := [][]string{headers, rules}
	for _, s := range summaries {
		lines = append(lines, Row(s))
	}
	for _, cells := range lines {
		if _, err := fmt.Fprintln(tw, strings.Join(cells, "\t")); err != nil {
			return &WriteError{Op: "write", Err: err}
		}
	}

	if err := tw.Flush(); err != nil {
		return &WriteError{Op: "flush", Err: err}
	}
	return nil
}

func (r *TableRenderer) writeFooter(report *fleet.Report) error {
	t := report.Totals()
	var b strings.Builder

	fmt.Fprintf(&b, "\nTotal: %d buckets, %d objects, %.3f %s (%s), $%.6f\n",
		t.Buckets, t.Objects, t.Size, units.Label(r.opts.Unit), units.Human(t.SizeBytes), t.Cost)

	if len(report.Failures) > 0 {
		fmt.Fprintf(&b, "\nFailed buckets (%d):\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(&b, "  %s: %s\n", f.Bucket, f.Err)
		}
	}

	if err := writeAll(r.w, []byte(b.String())); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

var _ Renderer = (*TableRenderer)(nil)
