// Package scanner summarizes a single bucket.
//
// A scan walks every object version and delete marker in the bucket, looks up
// the encryption of each counted version, queries the bucket's lifecycle and
// replication configuration and resolves its region. All calls for one bucket
// are issued sequentially; run several Scanners' Scan calls in parallel to
// cover a fleet.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/match"
	"github.com/3leaps/bucketscan/pkg/pricing"
	"github.com/3leaps/bucketscan/pkg/provider"
	"github.com/3leaps/bucketscan/pkg/units"
)

// Options configures a Scanner.
type Options struct {
	// NamePattern is an optional glob; buckets whose names do not match are
	// skipped without any storage calls.
	NamePattern string

	// StorageClass optionally restricts the scan to versions of one class
	// (case-insensitive). Buckets with no matching versions are skipped.
	StorageClass string

	// Unit is the display unit for BucketSummary.Size. Default: mb.
	Unit string

	// PageSize is the version listing page size. Zero uses the provider default.
	PageSize int

	// Logger receives debug and warning output. Nil disables logging.
	Logger *zap.Logger
}

// Scanner produces BucketSummary records for individual buckets.
//
// Scanner holds no per-bucket state and is safe for concurrent use.
type Scanner struct {
	provider     provider.Provider
	names        *match.NameFilter
	storageClass string
	unit         string
	pageSize     int
	log          *zap.Logger
}

// New creates a Scanner. It fails only if NamePattern is not a valid glob.
func New(p provider.Provider, opts Options) (*Scanner, error) {
	names, err := match.NewNameFilter(opts.NamePattern)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Scanner{
		provider:     p,
		names:        names,
		storageClass: strings.TrimSpace(opts.StorageClass),
		unit:         units.Normalize(opts.Unit),
		pageSize:     opts.PageSize,
		log:          log,
	}, nil
}

// Unit returns the normalized display unit used for summaries.
func (s *Scanner) Unit() string {
	return s.unit
}

// accumulator holds the running totals of one bucket scan.
type accumulator struct {
	sizeBytes    int64
	count        int64
	cost         float64
	lastModified time.Time
	lastClass    string
	classes      map[string]int64
	encryption   map[string]int64
}

func newAccumulator() *accumulator {
	return &accumulator{
		classes:    make(map[string]int64),
		encryption: make(map[string]int64),
	}
}

// Scan summarizes bucket.
//
// It returns (nil, nil) when the bucket is excluded: its name does not match
// the name filter, or a storage-class filter is active and no version matched.
// Failures of per-object encryption lookups and configuration queries are
// recorded in the summary. Listing and region failures abort the scan and
// are returned.
func (s *Scanner) Scan(ctx context.Context, bucket inventory.Bucket) (*inventory.BucketSummary, error) {
	if !s.names.Match(bucket.Name) {
		s.log.Debug("Bucket excluded by name filter",
			zap.String("bucket", bucket.Name),
			zap.String("pattern", s.names.Pattern()))
		return nil, nil
	}

	acc := newAccumulator()
	if err := s.walkVersions(ctx, bucket.Name, acc); err != nil {
		return nil, err
	}

	lifecycle := s.configState(ctx, bucket.Name, "lifecycle", s.provider.LifecycleConfigured)
	replication := s.configState(ctx, bucket.Name, "replication", s.provider.ReplicationConfigured)

	region, err := s.provider.BucketRegion(ctx, bucket.Name)
	if err != nil {
		return nil, fmt.Errorf("resolve region for %s: %w", bucket.Name, err)
	}

	if s.storageClass != "" && acc.count == 0 {
		s.log.Debug("Bucket has no objects in storage class",
			zap.String("bucket", bucket.Name),
			zap.String("storage_class", s.storageClass))
		return nil, nil
	}

	summary := &inventory.BucketSummary{
		Name:               bucket.Name,
		CreationDate:       bucket.CreationDate,
		ObjectCount:        acc.count,
		Size:               units.FormatSize(acc.sizeBytes, s.unit),
		SizeBytes:          acc.sizeBytes,
		Unit:               s.unit,
		LastModified:       acc.lastModified,
		Cost:               units.Round(acc.cost, 6),
		Region:             region,
		StorageClass:       acc.lastClass,
		StorageClassCounts: acc.classes,
		Encryption:         acc.encryption,
		Lifecycle:          lifecycle,
		Replication:        replication,
	}

	s.log.Debug("Bucket scanned",
		zap.String("bucket", summary.Name),
		zap.String("region", summary.Region),
		zap.Int64("objects", summary.ObjectCount),
		zap.String("size", units.Human(summary.SizeBytes)))

	return summary, nil
}

// walkVersions pages through the full version listing of bucket.
func (s *Scanner) walkVersions(ctx context.Context, bucket string, acc *accumulator) error {
	opts := provider.ListOptions{MaxKeys: s.pageSize}

	for {
		// Check for cancellation
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.provider.ListObjectVersions(ctx, bucket, opts)
		if err != nil {
			return fmt.Errorf("list versions of %s: %w", bucket, err)
		}

		for _, v := range page.Versions {
			s.addVersion(ctx, bucket, v, acc)
		}
		acc.count += int64(len(page.DeleteMarkers))

		// Check for more pages
		if !page.IsTruncated || (page.NextKeyMarker == "" && page.NextVersionIDMarker == "") {
			break
		}
		opts.KeyMarker = page.NextKeyMarker
		opts.VersionIDMarker = page.NextVersionIDMarker
	}

	return nil
}

// addVersion folds one object version into acc, unless the storage-class
// filter rejects it.
func (s *Scanner) addVersion(ctx context.Context, bucket string, v provider.ObjectVersion, acc *accumulator) {
	class := v.StorageClass
	if class == "" {
		class = pricing.DefaultStorageClass
	}
	if s.storageClass != "" && !strings.EqualFold(class, s.storageClass) {
		return
	}

	acc.sizeBytes += v.Size
	acc.count++
	acc.classes[class]++
	acc.lastClass = class
	if v.LastModified.After(acc.lastModified) {
		acc.lastModified = v.LastModified
	}
	acc.cost += pricing.EstimateCost(class, v.Size)
	acc.encryption[s.encryptionOf(ctx, bucket, v)]++
}

// encryptionOf returns the encryption histogram key for one version.
func (s *Scanner) encryptionOf(ctx context.Context, bucket string, v provider.ObjectVersion) string {
	sse, err := s.provider.ObjectEncryption(ctx, bucket, v.Key, v.VersionID)
	if err != nil {
		s.log.Debug("Encryption lookup failed",
			zap.String("bucket", bucket),
			zap.String("key", v.Key),
			zap.String("version_id", v.VersionID),
			zap.Error(err))
		return inventory.EncryptionUnknown
	}
	if sse == "" {
		return inventory.EncryptionNone
	}
	return sse
}

// configState runs a configuration query and folds its outcome into a
// ConfigState. Absence is expected; other failures are logged and recorded.
func (s *Scanner) configState(ctx context.Context, bucket, what string, query func(context.Context, string) (bool, error)) inventory.ConfigState {
	ok, err := query(ctx, bucket)
	switch {
	case err == nil && ok:
		return inventory.ConfigPresent
	case err == nil, provider.IsNotConfigured(err):
		return inventory.ConfigAbsent
	default:
		s.log.Warn("Configuration query failed",
			zap.String("bucket", bucket),
			zap.String("config", what),
			zap.Error(err))
		return inventory.ConfigError
	}
}
