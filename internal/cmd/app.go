package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/bucketscan/internal/config"
	"github.com/3leaps/bucketscan/internal/observability"
	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/provider"
	"github.com/3leaps/bucketscan/pkg/provider/file"
	"github.com/3leaps/bucketscan/pkg/provider/s3"
	"github.com/3leaps/bucketscan/pkg/scanner"
	"github.com/3leaps/bucketscan/pkg/units"
)

// createProvider creates the storage provider selected by cfg.
func createProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch provider.ProviderType(cfg.Provider) {
	case provider.ProviderFile:
		p, err := file.New(file.Config{BaseDir: cfg.Local.Root, Region: cfg.Local.Region})
		if err != nil {
			return nil, err
		}
		return p, nil
	case provider.ProviderS3:
		p, err := s3.New(ctx, cfg.S3Config())
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// scanRequest holds the per-run scan parameters.
type scanRequest struct {
	Bucket       string
	StorageClass string
	Unit         string
}

// scanRequestFrom extracts the scan parameters from cfg. An unknown unit is
// logged and replaced by the default.
func scanRequestFrom(cfg *config.Config) scanRequest {
	if cfg.Scan.Unit != "" && !units.IsKnown(cfg.Scan.Unit) {
		observability.CLILogger.Warn("Unknown size unit, using default",
			zap.String("unit", cfg.Scan.Unit),
			zap.String("default", units.DefaultUnit))
	}
	return scanRequest{
		Bucket:       cfg.Scan.Bucket,
		StorageClass: cfg.Scan.StorageClass,
		Unit:         units.Normalize(cfg.Scan.Unit),
	}
}

// runFleet scans every bucket visible to prov.
func runFleet(ctx context.Context, prov provider.Provider, cfg *config.Config, req scanRequest, obs fleet.Observer) (*fleet.Report, error) {
	s, err := scanner.New(prov, scanner.Options{
		NamePattern:  req.Bucket,
		StorageClass: req.StorageClass,
		Unit:         req.Unit,
		PageSize:     cfg.Scan.PageSize,
		Logger:       observability.CLILogger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Scan.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Scan.Timeout)
		defer cancel()
	}

	o := fleet.New(prov, s, fleet.Config{
		Concurrency: cfg.Scan.Concurrency,
		Logger:      observability.CLILogger,
		Observer:    obs,
	})
	return o.Run(ctx)
}

// progressObserver logs each bucket outcome.
type progressObserver struct {
	log *zap.Logger
}

func (p progressObserver) OnScanned(s *inventory.BucketSummary, elapsed time.Duration) {
	p.log.Info("Bucket scanned",
		zap.String("bucket", s.Name),
		zap.String("region", s.Region),
		zap.Int64("objects", s.ObjectCount),
		zap.String("size", units.Human(s.SizeBytes)),
		zap.Duration("elapsed", elapsed))
}

func (p progressObserver) OnSkipped(bucket string) {
	p.log.Debug("Bucket skipped", zap.String("bucket", bucket))
}

func (p progressObserver) OnFailed(bucket string, err error) {
	p.log.Warn("Bucket failed", zap.String("bucket", bucket), zap.Error(err))
}
