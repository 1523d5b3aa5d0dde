package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketscan/internal/config"
	"github.com/3leaps/bucketscan/internal/metrics"
	"github.com/3leaps/bucketscan/internal/observability"
	"github.com/3leaps/bucketscan/internal/server"
	"github.com/3leaps/bucketscan/internal/server/handlers"
	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/provider"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve inventory reports over HTTP",
	Long: `Start an HTTP server exposing:

  GET /v1/report      run a scan (query: bucket, storage_class, unit,
                      group_by, format=json|jsonl|yaml|table)
  GET /metrics        Prometheus metrics of completed scans
  GET /health         health probes (also /health/live, /ready, /startup)
  GET /version        build information

Only one report scan runs at a time; concurrent requests get 409.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd, serveFlagKeys)
	},
	RunE: runServe,
}

// serveFlagKeys maps flag names to config keys. Flags are bound when the command
// runs because scan and serve share several keys.
var serveFlagKeys = map[string]string{
	"host":        "server.host",
	"port":        "server.port",
	"metrics":     "metrics.enabled",
	"provider":    "provider",
	"root":        "local.root",
	"region":      "aws.region",
	"endpoint":    "aws.endpoint",
	"profile":     "aws.profile",
	"concurrency": "scan.concurrency",
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("host", "", "Listen host (default localhost)")
	f.Int("port", 0, "Listen port (default 8080)")
	f.Bool("metrics", true, "Expose /metrics")
	f.String("provider", "", "Storage provider: s3 or file")
	f.String("root", "", "Base directory for the file provider")
	f.String("region", "", "AWS region for account-level calls")
	f.String("endpoint", "", "Custom S3 endpoint URL (S3-compatible stores)")
	f.String("profile", "", "AWS shared config profile")
	f.Int("concurrency", 0, "Maximum concurrent bucket scans per report")

}

// signalHealthChecker reports healthy while the process is serving.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

// identityHealthChecker verifies the binary identity is complete.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("missing binary name")
	case c.envPrefix == "":
		return errors.New("missing env prefix")
	case c.configName == "":
		return errors.New("missing config name")
	}
	return nil
}

// providerHealthChecker verifies the storage provider answers ListBuckets.
type providerHealthChecker struct {
	lister fleet.BucketLister
}

func (c providerHealthChecker) CheckHealth(ctx context.Context) error {
	if c.lister == nil {
		return errors.New("storage provider not initialized")
	}
	if _, err := c.lister.ListBuckets(ctx); err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	prov, err := createProvider(ctx, cfg)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = prov.Close() }()

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("signals", signalHealthChecker{})
	health.RegisterChecker("identity", identityHealthChecker{
		binaryName: binaryName,
		envPrefix:  config.EnvPrefix,
		configName: configName,
	})
	health.RegisterChecker("provider", providerHealthChecker{lister: prov})

	srv := newServer(cfg, prov)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			observability.CLILogger.Error("HTTP server failed", zap.Error(err))
			return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		observability.CLILogger.Warn("Graceful shutdown incomplete", zap.Error(err))
	}
	return <-errCh
}

// newServer assembles the HTTP server for cfg backed by prov.
func newServer(cfg *config.Config, prov provider.Provider) *server.Server {
	opts := []server.Option{
		server.WithLogger(observability.CLILogger),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	}

	obs := fleet.Observers{progressObserver{log: observability.CLILogger}}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		obs = append(obs, collector)
		opts = append(opts, server.WithMetrics(collector.Handler()))
	}

	opts = append(opts, server.WithReporter(reportFunc(prov, cfg, obs, collector), cfg.Provider))
	return server.New(cfg.Server.Host, cfg.Server.Port, opts...)
}

// reportFunc adapts runFleet to the report handler.
func reportFunc(prov provider.Provider, cfg *config.Config, obs fleet.Observer, collector *metrics.Collector) handlers.ReportFunc {
	return func(ctx context.Context, req handlers.ReportRequest) (*fleet.Report, error) {
		start := time.Now()
		if collector != nil {
			collector.BeginRun()
		}
		report, err := runFleet(ctx, prov, cfg, scanRequest{
			Bucket:       req.Bucket,
			StorageClass: req.StorageClass,
			Unit:         req.Unit,
		}, obs)
		if err != nil {
			return nil, err
		}
		if collector != nil {
			collector.ObserveReport(report)
		}
		observability.CLILogger.Info("Report served",
			zap.Int("buckets", len(report.Summaries)),
			zap.Duration("duration", time.Since(start)))
		return report, nil
	}
}
