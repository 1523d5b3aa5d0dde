// Package provider defines the storage-service calls a bucket inventory needs.
//
// Providers implement a minimal surface: bucket enumeration, paginated
// version listings, per-object encryption lookup and three bucket-level
// configuration queries. Authentication uses SDK default credential chains -
// providers should not implement custom auth logic.
package provider

import (
	"context"
	"time"

	"github.com/3leaps/bucketscan/pkg/inventory"
)

// Provider abstracts the cloud storage calls used by a bucket scan.
//
// Implementations should:
//   - Use SDK default credential chains
//   - Support pagination via key/version markers
//   - Be safe for concurrent use
type Provider interface {
	// ListBuckets returns every bucket visible to the active credentials.
	ListBuckets(ctx context.Context) ([]inventory.Bucket, error)

	// ListObjectVersions returns one page of object versions and delete
	// markers. Use the markers from VersionPage for subsequent pages.
	ListObjectVersions(ctx context.Context, bucket string, opts ListOptions) (*VersionPage, error)

	// ObjectEncryption returns the server-side encryption algorithm of one
	// object version, or "" when the object is not encrypted.
	ObjectEncryption(ctx context.Context, bucket, key, versionID string) (string, error)

	// LifecycleConfigured reports whether the bucket has lifecycle rules.
	// Returns an error wrapping ErrNotConfigured when none exist.
	LifecycleConfigured(ctx context.Context, bucket string) (bool, error)

	// ReplicationConfigured reports whether the bucket has replication rules.
	// Returns an error wrapping ErrNotConfigured when none exist.
	ReplicationConfigured(ctx context.Context, bucket string) (bool, error)

	// BucketRegion returns the bucket's region, normalized to a region code.
	BucketRegion(ctx context.Context, bucket string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ListOptions configures a ListObjectVersions call.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// KeyMarker and VersionIDMarker resume listing from a previous page.
	// Empty strings start from the beginning.
	KeyMarker       string
	VersionIDMarker string

	// MaxKeys limits the number of entries returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// VersionPage contains one page of a version listing.
type VersionPage struct {
	// Versions contains object versions (current and non-current).
	Versions []ObjectVersion

	// DeleteMarkers contains delete markers in this page.
	DeleteMarkers []DeleteMarker

	// NextKeyMarker and NextVersionIDMarker are used to fetch the next page.
	NextKeyMarker       string
	NextVersionIDMarker string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectVersion is a single revision of an object.
type ObjectVersion struct {
	// Key is the full object key (path) in the bucket.
	Key string

	// VersionID identifies this revision. "null" for unversioned buckets.
	VersionID string

	// Size is the version size in bytes.
	Size int64

	// StorageClass is the raw storage class reported by the service.
	// Empty means the service omitted it.
	StorageClass string

	// LastModified is when this version was written.
	LastModified time.Time

	// IsLatest is true for the current version of the key.
	IsLatest bool
}

// DeleteMarker is a placeholder version recorded by a versioned delete.
type DeleteMarker struct {
	Key          string
	VersionID    string
	LastModified time.Time
	IsLatest     bool
}

// ProviderType identifies a cloud storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local directory tree treated as an account.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
