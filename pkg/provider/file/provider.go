// Package file implements provider.Provider over a local directory tree.
//
// Each immediate subdirectory of BaseDir is a bucket and every regular file
// below it is a single, unencrypted STANDARD object version. Lifecycle and
// replication are never configured. The provider is useful for dry runs and
// for exercising the report pipeline without cloud credentials.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/provider"
)

// DefaultRegion is reported for every bucket when Config.Region is empty.
const DefaultRegion = "local"

// nullVersion is the version id S3 reports for unversioned objects.
const nullVersion = "null"

// Provider implements provider.Provider for local filesystem paths.
//
// A listing walks the bucket once on its first page and serves the following
// pages from that snapshot until the last page is returned.
type Provider struct {
	baseDir string
	region  string

	mu       sync.Mutex
	listings map[listingID][]fileEntry
	walks    atomic.Int64
}

// listingID identifies an in-progress version listing.
type listingID struct {
	bucket string
	prefix string
}

// fileEntry is one file captured by a bucket walk.
type fileEntry struct {
	key     string
	size    int64
	modTime time.Time
}

// Ensure Provider implements the interface.
var _ provider.Provider = (*Provider)(nil)

// Config configures a file provider.
type Config struct {
	// BaseDir is the directory whose subdirectories are buckets.
	BaseDir string

	// Region is reported as every bucket's region. Default: "local".
	Region string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// New creates a file provider rooted at cfg.BaseDir.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	return &Provider{
		baseDir:  filepath.Clean(cfg.BaseDir),
		region:   region,
		listings: make(map[listingID][]fileEntry),
	}, nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error { return nil }

// ListBuckets returns the subdirectories of BaseDir in name order.
func (p *Provider) ListBuckets(ctx context.Context) ([]inventory.Bucket, error) {
	_ = ctx
	entries, err := os.ReadDir(p.baseDir)
	if err != nil {
		return nil, p.wrapError("ListBuckets", "", "", err)
	}

	var buckets []inventory.Bucket
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		buckets = append(buckets, inventory.Bucket{Name: e.Name(), CreationDate: info.ModTime()})
	}
	return buckets, nil
}

// ListObjectVersions returns one page of files, ordered by key.
func (p *Provider) ListObjectVersions(ctx context.Context, bucket string, opts provider.ListOptions) (*provider.VersionPage, error) {
	_ = ctx
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	root, err := p.bucketPath(bucket)
	if err != nil {
		return nil, p.wrapError("ListObjectVersions", bucket, "", err)
	}
	id := listingID{bucket: bucket, prefix: strings.TrimPrefix(opts.Prefix, "/")}
	files, err := p.listing(root, id, opts.KeyMarker)
	if err != nil {
		return nil, p.wrapError("ListObjectVersions", bucket, "", err)
	}

	// Start strictly after the last returned key.
	start := 0
	if opts.KeyMarker != "" {
		start = sort.Search(len(files), func(i int) bool { return files[i].key > opts.KeyMarker })
	}

	end := start + maxKeys
	if end > len(files) {
		end = len(files)
	}

	page := &provider.VersionPage{Versions: make([]provider.ObjectVersion, 0, end-start)}
	for _, f := range files[start:end] {
		page.Versions = append(page.Versions, provider.ObjectVersion{
			Key:          f.key,
			VersionID:    nullVersion,
			Size:         f.size,
			LastModified: f.modTime,
			IsLatest:     true,
		})
	}

	if end < len(files) {
		page.IsTruncated = true
		page.NextKeyMarker = files[end-1].key
		page.NextVersionIDMarker = nullVersion
	} else {
		p.mu.Lock()
		delete(p.listings, id)
		p.mu.Unlock()
	}
	return page, nil
}

// listing returns the files of a listing. A first page (empty marker) walks
// the bucket; continuation pages reuse the snapshot taken by the first page.
func (p *Provider) listing(root string, id listingID, marker string) ([]fileEntry, error) {
	if marker != "" {
		p.mu.Lock()
		files, ok := p.listings[id]
		p.mu.Unlock()
		if ok {
			return files, nil
		}
	}

	files, err := collectFiles(root, id.prefix)
	if err != nil {
		return nil, err
	}
	p.walks.Add(1)

	p.mu.Lock()
	p.listings[id] = files
	p.mu.Unlock()
	return files, nil
}

// ObjectEncryption reports local files as unencrypted.
func (p *Provider) ObjectEncryption(ctx context.Context, bucket, key, versionID string) (string, error) {
	_ = ctx
	_ = versionID
	root, err := p.bucketPath(bucket)
	if err != nil {
		return "", p.wrapError("ObjectEncryption", bucket, key, err)
	}
	full, err := keyPath(root, key)
	if err != nil {
		return "", p.wrapError("ObjectEncryption", bucket, key, err)
	}
	if _, err := os.Stat(full); err != nil {
		return "", p.wrapError("ObjectEncryption", bucket, key, err)
	}
	return "", nil
}

// LifecycleConfigured always reports an absent configuration.
func (p *Provider) LifecycleConfigured(ctx context.Context, bucket string) (bool, error) {
	return false, p.notConfigured("LifecycleConfigured", bucket)
}

// ReplicationConfigured always reports an absent configuration.
func (p *Provider) ReplicationConfigured(ctx context.Context, bucket string) (bool, error) {
	return false, p.notConfigured("ReplicationConfigured", bucket)
}

// BucketRegion returns the configured region.
func (p *Provider) BucketRegion(ctx context.Context, bucket string) (string, error) {
	_ = ctx
	if _, err := p.bucketPath(bucket); err != nil {
		return "", p.wrapError("BucketRegion", bucket, "", err)
	}
	return p.region, nil
}

func (p *Provider) notConfigured(op, bucket string) error {
	if _, err := p.bucketPath(bucket); err != nil {
		return p.wrapError(op, bucket, "", err)
	}
	return &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: bucket, Err: provider.ErrNotConfigured}
}

// bucketPath returns the directory of bucket, which must exist.
func (p *Provider) bucketPath(bucket string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	dir := filepath.Join(p.baseDir, bucket)
	st, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", fs.ErrNotExist
	}
	return dir, nil
}

// keyPath joins key onto root, rejecting path traversal.
func keyPath(root, key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	clean := strings.TrimPrefix(filepath.Clean("/"+key), "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// collectFiles returns the files under root whose slash-separated keys start
// with prefix, sorted by key.
func collectFiles(root, prefix string) ([]fileEntry, error) {
	var files []fileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileEntry{key: rel, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].key < files[j].key })
	return files, nil
}

func (p *Provider) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: bucket, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to provider sentinels.
	switch {
	case os.IsNotExist(err) && key == "" && bucket != "":
		wrapped.Err = provider.ErrBucketNotFound
	case os.IsNotExist(err):
		wrapped.Err = provider.ErrNotFound
	case os.IsPermission(err):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
