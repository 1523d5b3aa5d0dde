// Package fleet scans every bucket in an account and assembles the report.
//
// The Orchestrator enumerates buckets, fans Scan calls out over a bounded
// pool, collects the summaries that were not excluded, and derives each
// bucket's share of the fleet's total size. Grouping for presentation lives
// in group.go.
package fleet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/units"
)

// DefaultConcurrency is the number of buckets scanned at once.
const DefaultConcurrency = 10

// BucketLister enumerates the buckets of an account.
//
// provider.Provider satisfies this interface.
type BucketLister interface {
	ListBuckets(ctx context.Context) ([]inventory.Bucket, error)
}

// BucketScanner summarizes one bucket. A nil summary with a nil error means
// the bucket was excluded.
//
// *scanner.Scanner satisfies this interface.
type BucketScanner interface {
	Scan(ctx context.Context, bucket inventory.Bucket) (*inventory.BucketSummary, error)
}

// Observer receives per-bucket outcomes as scans complete. Implementations
// must be safe for concurrent use.
type Observer interface {
	OnScanned(summary *inventory.BucketSummary, elapsed time.Duration)
	OnSkipped(bucket string)
	OnFailed(bucket string, err error)
}

// Config configures an Orchestrator.
type Config struct {
	// Concurrency is the maximum number of concurrent bucket scans.
	// Default: 10
	Concurrency int

	// Logger receives progress and per-bucket warnings. Nil disables logging.
	Logger *zap.Logger

	// Observer is notified of every bucket outcome. Optional.
	Observer Observer
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{Concurrency: DefaultConcurrency}
}

// Failure records a bucket whose scan failed and was left out of the report.
type Failure struct {
	Bucket string
	Err    error
}

// Report is the outcome of one fleet run.
type Report struct {
	// Summaries holds one entry per reported bucket, sorted by name, with
	// PercentOfTotal populated.
	Summaries []*inventory.BucketSummary

	// Failures lists buckets whose scan failed, sorted by name.
	Failures []Failure

	// BucketsListed is the number of buckets returned by enumeration.
	BucketsListed int

	// Skipped counts buckets excluded by the name or storage-class filter.
	Skipped int

	// TotalSize is the sum of Summaries' Size in display units.
	TotalSize float64

	StartedAt time.Time
	Duration  time.Duration
}

// Orchestrator runs a scan across every bucket in an account.
//
// Orchestrator is safe for reuse; each Run is independent.
type Orchestrator struct {
	lister  BucketLister
	scanner BucketScanner
	config  Config
	log     *zap.Logger
}

// New creates an orchestrator. Zero config values take their defaults.
func New(l BucketLister, s BucketScanner, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{lister: l, scanner: s, config: cfg, log: log}
}

// Run scans every bucket and returns the report.
//
// A bucket whose scan fails is excluded from Summaries, logged, and recorded
// in Failures; the remaining buckets are still reported. Enumeration failure
// aborts the run. Run always waits for every dispatched scan. If ctx is
// cancelled the report is discarded and the context error returned.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	started := time.Now()

	buckets, err := o.lister.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}

	o.log.Info("Scanning buckets",
		zap.Int("buckets", len(buckets)),
		zap.Int("concurrency", o.config.Concurrency))

	var (
		mu        sync.Mutex
		summaries []*inventory.BucketSummary
		failures  []Failure
		skipped   int
	)

	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)

	for _, b := range buckets {
		g.Go(func() error {
			scanStart := time.Now()
			summary, err := o.scanner.Scan(ctx, b)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err != nil:
				failures = append(failures, Failure{Bucket: b.Name, Err: err})
				if !isContextErr(err) {
					o.log.Warn("Bucket scan failed",
						zap.String("bucket", b.Name),
						zap.Error(err))
				}
				if o.config.Observer != nil {
					o.config.Observer.OnFailed(b.Name, err)
				}
			case summary == nil:
				skipped++
				if o.config.Observer != nil {
					o.config.Observer.OnSkipped(b.Name)
				}
			default:
				summaries = append(summaries, summary)
				if o.config.Observer != nil {
					o.config.Observer.OnScanned(summary, time.Since(scanStart))
				}
			}
			// Failures are recorded, never returned, so one bucket cannot
			// cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Bucket < failures[j].Bucket })

	report := &Report{
		Summaries:     summaries,
		Failures:      failures,
		BucketsListed: len(buckets),
		Skipped:       skipped,
		TotalSize:     ApplyPercentages(summaries),
		StartedAt:     started,
		Duration:      time.Since(started),
	}

	o.log.Info("Scan complete",
		zap.Int("reported", len(report.Summaries)),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// Totals aggregates the reported buckets.
type Totals struct {
	Buckets   int     `json:"buckets" yaml:"buckets"`
	Objects   int64   `json:"objects" yaml:"objects"`
	SizeBytes int64   `json:"size_bytes" yaml:"size_bytes"`
	Size      float64 `json:"size" yaml:"size"`
	Cost      float64 `json:"cost" yaml:"cost"`
	Failed    int     `json:"failed" yaml:"failed"`
}

// Totals sums the report's summaries.
func (r *Report) Totals() Totals {
	t := Totals{Buckets: len(r.Summaries), Failed: len(r.Failures)}
	for _, s := range r.Summaries {
		t.Objects += s.ObjectCount
		t.SizeBytes += s.SizeBytes
		t.Cost += s.Cost
	}
	t.Size = units.Round(r.TotalSize, 3)
	t.Cost = units.Round(t.Cost, 6)
	return t
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (obs Observers) OnScanned(s *inventory.BucketSummary, elapsed time.Duration) {
	for _, o := range obs {
		o.OnScanned(s, elapsed)
	}
}

func (obs Observers) OnSkipped(bucket string) {
	for _, o := range obs {
		o.OnSkipped(bucket)
	}
}

func (obs Observers) OnFailed(bucket string, err error) {
	for _, o := range obs {
		o.OnFailed(bucket, err)
	}
}
