// Package inventory defines the per-bucket records produced by a scan.
package inventory

import (
	"sort"
	"time"
)

// Encryption histogram keys that are not algorithm names.
const (
	// EncryptionNone marks objects stored without server-side encryption.
	EncryptionNone = "None"

	// EncryptionUnknown marks objects whose metadata lookup failed. It is
	// also the dominant type of a bucket with an empty histogram.
	EncryptionUnknown = "Unknown"
)

// Bucket identifies a bucket as returned by account enumeration.
type Bucket struct {
	Name         string
	CreationDate time.Time
}

// BucketSummary is the scan result for one bucket.
//
// Summaries are built once by the scanner. The fleet orchestrator sets
// PercentOfTotal after all scans finish; after that a summary is read-only.
type BucketSummary struct {
	// Name is the bucket name, unique within the account.
	Name string `json:"name" yaml:"name"`

	// CreationDate is when the bucket was created.
	CreationDate time.Time `json:"creation_date" yaml:"creation_date"`

	// ObjectCount counts object versions and delete markers visited by the scan.
	ObjectCount int64 `json:"object_count" yaml:"object_count"`

	// Size is SizeBytes expressed in Unit, rounded to 3 decimal places.
	Size float64 `json:"size" yaml:"size"`

	// SizeBytes is the raw byte accumulator behind Size.
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`

	// Unit is the display unit of Size (bytes, kb, mb, gb).
	Unit string `json:"unit" yaml:"unit"`

	// LastModified is the newest version timestamp seen. Zero when the scan
	// saw no versions.
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`

	// Cost is the estimated monthly storage cost in USD, rounded to 6 places.
	Cost float64 `json:"cost" yaml:"cost"`

	// Region is the bucket's region.
	Region string `json:"region" yaml:"region"`

	// StorageClass is the class of the last version processed. Diagnostic
	// only; see StorageClassCounts for the breakdown.
	StorageClass string `json:"storage_class,omitempty" yaml:"storage_class,omitempty"`

	// StorageClassCounts tallies counted versions per storage class.
	StorageClassCounts map[string]int64 `json:"storage_class_counts,omitempty" yaml:"storage_class_counts,omitempty"`

	// Encryption maps encryption algorithm (or None/Unknown) to version count.
	Encryption map[string]int64 `json:"encryption" yaml:"encryption"`

	// Lifecycle reports whether a lifecycle configuration exists.
	Lifecycle ConfigState `json:"lifecycle" yaml:"lifecycle"`

	// Replication reports whether a replication configuration exists.
	Replication ConfigState `json:"replication" yaml:"replication"`

	// PercentOfTotal is this bucket's share of the fleet's total Size.
	PercentOfTotal float64 `json:"percent_of_total" yaml:"percent_of_total"`
}

// DominantEncryption returns the encryption type with the highest count.
//
// Ties are broken by the lexicographically smallest key so grouping is
// stable across runs. An empty histogram yields EncryptionUnknown.
func (s *BucketSummary) DominantEncryption() string {
	if len(s.Encryption) == 0 {
		return EncryptionUnknown
	}

	keys := make([]string, 0, len(s.Encryption))
	for k := range s.Encryption {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := keys[0]
	for _, k := range keys[1:] {
		if s.Encryption[k] > s.Encryption[best] {
			best = k
		}
	}
	return best
}

// EncryptionKeys returns the histogram keys in sorted order.
func (s *BucketSummary) EncryptionKeys() []string {
	keys := make([]string, 0, len(s.Encryption))
	for k := range s.Encryption {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
