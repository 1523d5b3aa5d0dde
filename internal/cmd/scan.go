package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/bucketscan/internal/config"
	"github.com/3leaps/bucketscan/internal/observability"
	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/output"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan every bucket and print an inventory report",
	Long: `Scan every bucket in the account and print one row per bucket with
its size, object count, estimated monthly cost, encryption mix, lifecycle and
replication state, and region.

Object counts include every version and delete marker. Buckets in which no
object matches --storage-class are left out of the report.

Example:
  bucketscan scan
  bucketscan scan --bucket 'logs-*' --unit gb --group-by-region
  bucketscan scan --storage-class GLACIER --format jsonl --output report.jsonl
  bucketscan scan --provider file --root ./testdata/buckets`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd, scanFlagKeys)
	},
	RunE: runScan,
}

var (
	scanGroupByRegion     bool
	scanGroupByEncryption bool
)

// scanFlagKeys maps flag names to config keys. Flags are bound when the command
// runs because scan and serve share several keys.
var scanFlagKeys = map[string]string{
	"bucket":        "scan.bucket",
	"storage-class": "scan.storage_class",
	"unit":          "scan.unit",
	"group-by":      "scan.group_by",
	"concurrency":   "scan.concurrency",
	"page-size":     "scan.page_size",
	"timeout":       "scan.timeout",
	"format":        "output.format",
	"output":        "output.destination",
	"provider":      "provider",
	"root":          "local.root",
	"region":        "aws.region",
	"endpoint":      "aws.endpoint",
	"profile":       "aws.profile",
	"rate-limit":    "aws.rate_limit",
}

func init() {
	rootCmd.AddCommand(scanCmd)

	f := scanCmd.Flags()
	f.String("bucket", "", "Only scan buckets whose name matches this glob")
	f.String("storage-class", "", "Only count objects in this storage class")
	f.String("unit", "", "Size unit: bytes, kb, mb or gb (default mb)")
	f.String("group-by", "", "Group report rows: none, region or encryption")
	f.BoolVar(&scanGroupByRegion, "group-by-region", false, "Group report rows by region")
	f.BoolVar(&scanGroupByEncryption, "group-by-encryption-type", false, "Group report rows by dominant encryption type")
	f.Int("concurrency", 0, "Maximum concurrent bucket scans (default 10)")
	f.Int("page-size", 0, "Version listing page size (max 1000)")
	f.Duration("timeout", 0, "Abort the scan after this long (0 = no limit)")
	f.StringP("format", "f", "", "Output format: table, jsonl or yaml")
	f.StringP("output", "o", "", "Write the report to this file instead of stdout")
	f.String("provider", "", "Storage provider: s3 or file")
	f.String("root", "", "Base directory for the file provider")
	f.String("region", "", "AWS region for account-level calls")
	f.String("endpoint", "", "Custom S3 endpoint URL (S3-compatible stores)")
	f.String("profile", "", "AWS shared config profile")
	f.Float64("rate-limit", 0, "Maximum S3 requests per second (0 = unlimited)")

	scanCmd.MarkFlagsMutuallyExclusive("group-by", "group-by-region")
	scanCmd.MarkFlagsMutuallyExclusive("group-by", "group-by-encryption-type")

}

// bindFlags binds flag names to viper keys.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for name, key := range keys {
		_ = viper.BindPFlag(key, cmd.Flags().Lookup(name))
	}
}

// toggleGrouping maps the boolean grouping flags to a grouping mode.
// Region wins when both are set.
func toggleGrouping(byRegion, byEncryption bool) (fleet.Grouping, bool) {
	switch {
	case byRegion:
		return fleet.GroupRegion, true
	case byEncryption:
		return fleet.GroupEncryption, true
	}
	return fleet.GroupNone, false
}

func runScan(cmd *cobra.Command, args []string) error {
	if g, ok := toggleGrouping(scanGroupByRegion, scanGroupByEncryption); ok {
		viper.Set("scan.group_by", g.String())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Provider == "s3" && cfg.AWS.Endpoint != "" && !viper.IsSet("aws.force_path_style") {
		cfg.AWS.ForcePathStyle = true
	}

	return executeScan(cmd.Context(), cfg, cmd.OutOrStdout())
}

// executeScan runs one fleet scan and renders the report.
func executeScan(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	jobID := uuid.New().String()

	prov, err := createProvider(ctx, cfg)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = prov.Close() }()

	w, closeOutput, err := openDestination(cfg.Output.Destination, stdout)
	if err != nil {
		observability.CLILogger.Error("Failed to create output", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer func() { _ = closeOutput() }()

	req := scanRequestFrom(cfg)
	observability.CLILogger.Info("Starting scan",
		zap.String("job_id", jobID),
		zap.String("provider", cfg.Provider),
		zap.String("bucket_pattern", req.Bucket),
		zap.String("storage_class", req.StorageClass),
		zap.Int("concurrency", cfg.Scan.Concurrency))

	report, err := runFleet(ctx, prov, cfg, req, progressObserver{log: observability.CLILogger})
	if err != nil {
		if ctx.Err() != nil {
			observability.CLILogger.Warn("Scan cancelled", zap.String("job_id", jobID))
			return exitError(foundry.ExitSignalInt, "Scan cancelled", err)
		}
		observability.CLILogger.Error("Scan failed", zap.String("job_id", jobID), zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Scan failed", err)
	}

	renderer, err := output.NewRenderer(cfg.Output.Format, w, output.Options{
		JobID:    jobID,
		Provider: cfg.Provider,
		Unit:     req.Unit,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", err)
	}
	if err := renderer.Render(ctx, report, cfg.Grouping()); err != nil {
		observability.CLILogger.Error("Failed to write report", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to write report", err)
	}
	if err := closeOutput(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to close output", err)
	}

	totals := report.Totals()
	observability.CLILogger.Info("Scan completed",
		zap.String("job_id", jobID),
		zap.Int("buckets", totals.Buckets),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", totals.Failed),
		zap.Int64("objects", totals.Objects),
		zap.Duration("duration", report.Duration))
	return nil
}

// openDestination returns the report writer for dest. Empty, "-" and
// "stdout" select stdout. The close func is idempotent.
func openDestination(dest string, stdout io.Writer) (io.Writer, func() error, error) {
	if dest == "" || dest == "-" || dest == "stdout" {
		return stdout, func() error { return nil }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	closed := false
	return f, func() error {
		if closed {
			return nil
		}
		closed = true
		return f.Close()
	}, nil
}
