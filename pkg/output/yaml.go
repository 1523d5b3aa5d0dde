package output

import (
	"context"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/bucketscan/pkg/fleet"
)

// Document is a complete report as a single value, used for YAML output
// and the HTTP API.
type Document struct {
	JobID    string          `json:"job_id" yaml:"job_id"`
	Provider string          `json:"provider" yaml:"provider"`
	Grouping string          `json:"grouping" yaml:"grouping"`
	Groups   []DocumentGroup `json:"groups" yaml:"groups"`
	Failures []*ErrorRecord  `json:"failures,omitempty" yaml:"failures,omitempty"`
	Summary  *SummaryRecord  `json:"summary" yaml:"summary"`
}

// DocumentGroup is one group of bucket records.
type DocumentGroup struct {
	Key     string          `json:"key,omitempty" yaml:"key,omitempty"`
	Buckets []*BucketRecord `json:"buckets" yaml:"buckets"`
}

// NewDocument assembles the document form of report.
func NewDocument(report *fleet.Report, grouping fleet.Grouping, opts Options) *Document {
	doc := &Document{
		JobID:    opts.JobID,
		Provider: opts.Provider,
		Grouping: grouping.String(),
		Groups:   []DocumentGroup{},
		Summary:  NewSummaryRecord(report, grouping, opts.Unit),
	}
	for _, g := range fleet.GroupBy(grouping, report.Summaries) {
		dg := DocumentGroup{Key: g.Key, Buckets: make([]*BucketRecord, 0, len(g.Summaries))}
		for _, s := range g.Summaries {
			dg.Buckets = append(dg.Buckets, NewBucketRecord(s, ""))
		}
		doc.Groups = append(doc.Groups, dg)
	}
	for _, f := range report.Failures {
		doc.Failures = append(doc.Failures, NewErrorRecord(f))
	}
	return doc
}

// YAMLRenderer writes the whole report as a single YAML document.
type YAMLRenderer struct {
	w    io.Writer
	opts Options
}

// NewYAMLRenderer creates a YAML renderer.
func NewYAMLRenderer(w io.Writer, opts Options) *YAMLRenderer {
	return &YAMLRenderer{w: w, opts: opts}
}

// Render writes the report.
func (r *YAMLRenderer) Render(ctx context.Context, report *fleet.Report, grouping fleet.Grouping) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(NewDocument(report, grouping, r.opts)); err != nil {
		return &WriteError{Op: "encode_yaml", Err: err}
	}
	if err := enc.Close(); err != nil {
		return &WriteError{Op: "flush", Err: err}
	}
	return nil
}

var _ Renderer = (*YAMLRenderer)(nil)
