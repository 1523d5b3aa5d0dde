// Package output renders fleet reports.
//
// Three formats are supported: an aligned text table for terminals, JSONL
// typed record envelopes for pipelines, and a single YAML document. Each
// JSONL line is a self-contained JSON object that can be parsed
// independently.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/bucketscan/pkg/provider"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: bucketscan.<type>.v<version>
const (
	// TypeBucket identifies bucket summary records.
	TypeBucket = "bucketscan.bucket.v1"

	// TypeError identifies error records.
	TypeError = "bucketscan.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "bucketscan.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "bucketscan.bucket.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this scan.
	JobID string `json:"job_id"`

	// Provider identifies the storage provider (e.g., "s3", "file").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// BucketRecord is the data payload for one bucket summary.
type BucketRecord struct {
	Name               string           `json:"name" yaml:"name"`
	Group              string           `json:"group,omitempty" yaml:"group,omitempty"`
	CreationDate       time.Time        `json:"creation_date" yaml:"creation_date"`
	ObjectCount        int64            `json:"object_count" yaml:"object_count"`
	Size               float64          `json:"size" yaml:"size"`
	SizeBytes          int64            `json:"size_bytes" yaml:"size_bytes"`
	Unit               string           `json:"unit" yaml:"unit"`
	LastModified       time.Time        `json:"last_modified" yaml:"last_modified"`
	Cost               float64          `json:"cost" yaml:"cost"`
	Region             string           `json:"region" yaml:"region"`
	StorageClass       string           `json:"storage_class,omitempty" yaml:"storage_class,omitempty"`
	StorageClassCounts map[string]int64 `json:"storage_class_counts,omitempty" yaml:"storage_class_counts,omitempty"`
	Encryption         map[string]int64 `json:"encryption" yaml:"encryption"`
	DominantEncryption string           `json:"dominant_encryption" yaml:"dominant_encryption"`
	Lifecycle          string           `json:"lifecycle" yaml:"lifecycle"`
	Replication        string           `json:"replication" yaml:"replication"`
	PercentOfTotal     string           `json:"percent_of_total" yaml:"percent_of_total"`
}

// ErrorRecord is the data payload for errors.
//
// A failed bucket is reported as an error record rather than failing the
// whole report.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code" yaml:"code"`

	// Message is a human-readable error description.
	Message string `json:"message" yaml:"message"`

	// Bucket is the bucket related to this error, if applicable.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeNotFound indicates the object or bucket was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeTimeout indicates an operation timed out.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeThrottled indicates rate limiting.
	ErrCodeThrottled = "THROTTLED"

	// ErrCodeUnavailable indicates the provider could not be reached.
	ErrCodeUnavailable = "UNAVAILABLE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ErrorCode classifies err into one of the ErrCode constants.
func ErrorCode(err error) string {
	switch {
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return ErrCodeAccessDenied
	case provider.IsBucketNotFound(err), provider.IsNotFound(err):
		return ErrCodeNotFound
	case provider.IsThrottled(err):
		return ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return ErrCodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeInternal
	}
}

// SummaryRecord is the data payload for the final report summary.
type SummaryRecord struct {
	// Buckets is the number of buckets reported.
	Buckets int `json:"buckets" yaml:"buckets"`

	// BucketsListed is the number of buckets returned by enumeration.
	BucketsListed int `json:"buckets_listed" yaml:"buckets_listed"`

	// Skipped counts buckets excluded by filters.
	Skipped int `json:"skipped" yaml:"skipped"`

	// Failed counts buckets whose scan failed.
	Failed int `json:"failed" yaml:"failed"`

	// Objects is the total object version and delete marker count.
	Objects int64 `json:"objects" yaml:"objects"`

	// BytesTotal is the cumulative size of counted versions in bytes.
	BytesTotal int64 `json:"bytes_total" yaml:"bytes_total"`

	// Size is the total size in Unit.
	Size float64 `json:"size" yaml:"size"`

	// Unit is the display unit of Size.
	Unit string `json:"unit" yaml:"unit"`

	// Cost is the total estimated monthly cost in USD.
	Cost float64 `json:"cost" yaml:"cost"`

	// Grouping is the grouping mode applied to bucket records.
	Grouping string `json:"grouping" yaml:"grouping"`

	// Duration is the total scan duration.
	Duration time.Duration `json:"duration_ns" yaml:"-"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration" yaml:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")

	// ErrUnknownFormat is returned by NewRenderer for unsupported formats.
	ErrUnknownFormat = errors.New("unknown output format")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
