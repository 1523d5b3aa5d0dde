// Package metrics exports scan results as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/output"
)

// Namespace prefixes every metric name.
const Namespace = "bucketscan"

// Bucket outcome label values.
const (
	OutcomeScanned = "scanned"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Collector records fleet scan outcomes on a private registry. It
// implements fleet.Observer and is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	buckets      *prometheus.CounterVec
	failures     *prometheus.CounterVec
	scanDuration prometheus.Histogram
	sizeBytes    *prometheus.GaugeVec
	objects      *prometheus.GaugeVec
	cost         *prometheus.GaugeVec
	lastRun      prometheus.Gauge
	runDuration  prometheus.Gauge
}

var _ fleet.Observer = (*Collector)(nil)

// NewCollector creates a collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		buckets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "buckets_total",
			Help:      "Buckets processed, by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scan_failures_total",
			Help:      "Failed bucket scans, by error code.",
		}, []string{"code"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "bucket_scan_duration_seconds",
			Help:      "Time spent scanning one bucket.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		sizeBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "bucket_size_bytes",
			Help:      "Total size of counted object versions.",
		}, []string{"bucket", "region"}),
		objects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "bucket_objects",
			Help:      "Object versions and delete markers.",
		}, []string{"bucket", "region"}),
		cost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "bucket_cost_dollars",
			Help:      "Estimated monthly storage cost in USD.",
		}, []string{"bucket", "region"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last fleet scan finished.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last fleet scan.",
		}),
	}

	c.registry.MustRegister(
		c.buckets,
		c.failures,
		c.scanDuration,
		c.sizeBytes,
		c.objects,
		c.cost,
		c.lastRun,
		c.runDuration,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// BeginRun drops the per-bucket series of the previous run. Buckets that the
// next run filters out or no longer finds stop being exported.
func (c *Collector) BeginRun() {
	c.sizeBytes.Reset()
	c.objects.Reset()
	c.cost.Reset()
}

// OnScanned records a reported bucket.
func (c *Collector) OnScanned(s *inventory.BucketSummary, elapsed time.Duration) {
	c.buckets.WithLabelValues(OutcomeScanned).Inc()
	c.scanDuration.Observe(elapsed.Seconds())
	c.sizeBytes.WithLabelValues(s.Name, s.Region).Set(float64(s.SizeBytes))
	c.objects.WithLabelValues(s.Name, s.Region).Set(float64(s.ObjectCount))
	c.cost.WithLabelValues(s.Name, s.Region).Set(s.Cost)
}

// OnSkipped records a bucket excluded by filters.
func (c *Collector) OnSkipped(bucket string) {
	c.buckets.WithLabelValues(OutcomeSkipped).Inc()
}

// OnFailed records a failed bucket scan.
func (c *Collector) OnFailed(bucket string, err error) {
	c.buckets.WithLabelValues(OutcomeFailed).Inc()
	c.failures.WithLabelValues(output.ErrorCode(err)).Inc()
}

// ObserveReport records run-level gauges for a completed report.
func (c *Collector) ObserveReport(r *fleet.Report) {
	c.lastRun.Set(float64(r.StartedAt.Add(r.Duration).Unix()))
	c.runDuration.Set(r.Duration.Seconds())
}
