// Package providertest provides an in-memory provider.Provider for tests.
package providertest

import (
	"context"
	"sync"
	"time"

	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/provider"
)

// Bucket is the scripted state of one bucket.
type Bucket struct {
	Name          string
	CreationDate  time.Time
	Region        string
	Versions      []provider.ObjectVersion
	DeleteMarkers []provider.DeleteMarker

	// SSE maps object key to its encryption algorithm. Missing keys have none.
	SSE map[string]string
	// SSEErr maps object key to a HeadObject failure.
	SSEErr map[string]error

	Lifecycle      bool
	Replication    bool
	LifecycleErr   error
	ReplicationErr error
	ListErr        error
	RegionErr      error
}

// Account is an in-memory provider.Provider. It is safe for concurrent use.
//
// Version listings interleave Versions then DeleteMarkers and are split into
// pages of PageSize entries, continuing from the key and version-id markers.
type Account struct {
	// PageSize bounds each listing page. Zero returns everything at once.
	PageSize int
	// Delay is applied to every ListObjectVersions call.
	Delay time.Duration
	// ListBucketsErr fails bucket enumeration.
	ListBucketsErr error

	mu          sync.Mutex
	buckets     []*Bucket
	calls       map[string]int
	inFlight    int
	maxInFlight int
	closed      bool
}

var _ provider.Provider = (*Account)(nil)

// New returns an Account holding buckets in enumeration order.
func New(buckets ...*Bucket) *Account {
	return &Account{buckets: buckets, calls: make(map[string]int)}
}

// Calls returns how many times op was invoked (optionally for one bucket,
// as "op:bucket").
func (a *Account) Calls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// MaxInFlight returns the peak number of concurrent ListObjectVersions calls.
func (a *Account) MaxInFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxInFlight
}

// Closed reports whether Close was called.
func (a *Account) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Account) record(op, bucket string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[op]++
	if bucket != "" {
		a.calls[op+":"+bucket]++
	}
}

func (a *Account) bucket(op, name string) (*Bucket, error) {
	for _, b := range a.buckets {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, &provider.ProviderError{Op: op, Provider: provider.ProviderS3, Bucket: name, Err: provider.ErrBucketNotFound}
}

// ListBuckets returns the scripted buckets in order.
func (a *Account) ListBuckets(ctx context.Context) ([]inventory.Bucket, error) {
	a.record("ListBuckets", "")
	if a.ListBucketsErr != nil {
		return nil, a.ListBucketsErr
	}
	out := make([]inventory.Bucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, inventory.Bucket{Name: b.Name, CreationDate: b.CreationDate})
	}
	return out, nil
}

// ListObjectVersions returns one page of the bucket's versions and markers.
func (a *Account) ListObjectVersions(ctx context.Context, bucket string, opts provider.ListOptions) (*provider.VersionPage, error) {
	a.record("ListObjectVersions", bucket)

	a.mu.Lock()
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	if a.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.Delay):
		}
	}

	b, err := a.bucket("ListObjectVersions", bucket)
	if err != nil {
		return nil, err
	}
	if b.ListErr != nil {
		return nil, b.ListErr
	}

	type entry struct {
		key, versionID string
		version        *provider.ObjectVersion
		marker         *provider.DeleteMarker
	}
	entries := make([]entry, 0, len(b.Versions)+len(b.DeleteMarkers))
	for i := range b.Versions {
		v := &b.Versions[i]
		entries = append(entries, entry{key: v.Key, versionID: v.VersionID, version: v})
	}
	for i := range b.DeleteMarkers {
		m := &b.DeleteMarkers[i]
		entries = append(entries, entry{key: m.Key, versionID: m.VersionID, marker: m})
	}

	start := 0
	if opts.KeyMarker != "" || opts.VersionIDMarker != "" {
		for i, e := range entries {
			if e.key == opts.KeyMarker && e.versionID == opts.VersionIDMarker {
				start = i + 1
				break
			}
		}
	}

	end := len(entries)
	if a.PageSize > 0 && start+a.PageSize < end {
		end = start + a.PageSize
	}

	page := &provider.VersionPage{}
	for _, e := range entries[start:end] {
		if e.version != nil {
			page.Versions = append(page.Versions, *e.version)
		} else {
			page.DeleteMarkers = append(page.DeleteMarkers, *e.marker)
		}
	}
	if end < len(entries) {
		last := entries[end-1]
		page.IsTruncated = true
		page.NextKeyMarker = last.key
		page.NextVersionIDMarker = last.versionID
	}
	return page, nil
}

// ObjectEncryption returns the scripted encryption of key.
func (a *Account) ObjectEncryption(ctx context.Context, bucket, key, versionID string) (string, error) {
	a.record("ObjectEncryption", bucket)
	b, err := a.bucket("ObjectEncryption", bucket)
	if err != nil {
		return "", err
	}
	if err := b.SSEErr[key]; err != nil {
		return "", err
	}
	return b.SSE[key], nil
}

// LifecycleConfigured returns the scripted lifecycle state.
func (a *Account) LifecycleConfigured(ctx context.Context, bucket string) (bool, error) {
	a.record("LifecycleConfigured", bucket)
	b, err := a.bucket("LifecycleConfigured", bucket)
	if err != nil {
		return false, err
	}
	return configured("GetBucketLifecycleConfiguration", b, b.Lifecycle, b.LifecycleErr)
}

// ReplicationConfigured returns the scripted replication state.
func (a *Account) ReplicationConfigured(ctx context.Context, bucket string) (bool, error) {
	a.record("ReplicationConfigured", bucket)
	b, err := a.bucket("ReplicationConfigured", bucket)
	if err != nil {
		return false, err
	}
	return configured("GetBucketReplication", b, b.Replication, b.ReplicationErr)
}

func configured(op string, b *Bucket, present bool, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if !present {
		return false, &provider.ProviderError{Op: op, Provider: provider.ProviderS3, Bucket: b.Name, Err: provider.ErrNotConfigured}
	}
	return true, nil
}

// BucketRegion returns the scripted region, defaulting to us-east-1.
func (a *Account) BucketRegion(ctx context.Context, bucket string) (string, error) {
	a.record("BucketRegion", bucket)
	b, err := a.bucket("BucketRegion", bucket)
	if err != nil {
		return "", err
	}
	if b.RegionErr != nil {
		return "", b.RegionErr
	}
	if b.Region == "" {
		return "us-east-1", nil
	}
	return b.Region, nil
}

// Close marks the account closed.
func (a *Account) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
