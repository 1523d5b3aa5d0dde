package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/bucketscan/internal/config"
	"github.com/3leaps/bucketscan/internal/observability"
	"github.com/3leaps/bucketscan/pkg/provider"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment, configuration and storage
provider, and suggest fixes for common issues.

Examples:
  bucketscan doctor
  bucketscan doctor --config bucketscan.yaml`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck is one diagnostic. run returns a short detail on success.
type doctorCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
	hint string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "=== %s doctor ===\n\n", binaryName)

	checks := []doctorCheck{
		{name: "Go runtime", run: checkRuntime},
		{name: "Fulmen libraries", run: checkFulmen},
	}

	cfg, cfgErr := config.Decode(viper.GetViper())
	checks = append(checks, doctorCheck{
		name: "Configuration",
		run: func(context.Context) (string, error) {
			if cfgErr != nil {
				return "", cfgErr
			}
			return fmt.Sprintf("provider=%s unit=%s concurrency=%d", cfg.Provider, cfg.Scan.Unit, cfg.Scan.Concurrency), nil
		},
		hint: "Check --config and BUCKETSCAN_* environment variables.",
	})
	if cfgErr == nil {
		if cfg.Provider == string(provider.ProviderS3) {
			checks = append(checks, doctorCheck{
				name: "AWS credentials",
				run:  func(ctx context.Context) (string, error) { return checkAWSCredentials(ctx, cfg) },
				hint: awsCredentialsHint,
			})
		}
		checks = append(checks, doctorCheck{
			name: "Bucket listing",
			run:  func(ctx context.Context) (string, error) { return checkBucketListing(ctx, cfg) },
			hint: "The credentials need s3:ListAllMyBuckets.",
		})
	}

	if !runDoctorChecks(ctx, out, checks) {
		_, _ = fmt.Fprintln(out, "\nSome checks failed. Review the output above for details.")
		return exitError(foundry.ExitExternalServiceUnavailable, "Diagnostics failed", errors.New("one or more checks failed"))
	}
	_, _ = fmt.Fprintf(out, "\nAll checks passed! Your %s installation is healthy.\n", binaryName)
	return nil
}

// runDoctorChecks runs checks in order and reports whether all passed.
func runDoctorChecks(ctx context.Context, out io.Writer, checks []doctorCheck) bool {
	ok := true
	for i, c := range checks {
		detail, err := c.run(ctx)
		if err != nil {
			ok = false
			_, _ = fmt.Fprintf(out, "[%d/%d] %s... ❌ %v\n", i+1, len(checks), c.name, err)
			if c.hint != "" {
				_, _ = fmt.Fprintf(out, "      %s\n", c.hint)
			}
			observability.CLILogger.Debug("Doctor check failed", zap.String("check", c.name), zap.Error(err))
			continue
		}
		_, _ = fmt.Fprintf(out, "[%d/%d] %s... ✅ %s\n", i+1, len(checks), c.name, detail)
	}
	return ok
}

func checkRuntime(context.Context) (string, error) {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
}

func checkFulmen(context.Context) (string, error) {
	v := crucible.GetVersion()
	if v.Crucible == "" || v.Gofulmen == "" {
		return "", errors.New("cannot read crucible/gofulmen versions")
	}
	return fmt.Sprintf("crucible v%s, gofulmen v%s", v.Crucible, v.Gofulmen), nil
}

const awsCredentialsHint = "Set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY, run 'aws configure', or use an IAM role."

func checkAWSCredentials(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.AWS.AccessKeyID != "" {
		return "explicit keys " + maskAccessKey(cfg.AWS.AccessKeyID), nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieve credentials: %w", err)
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("%s (source: %s)", maskAccessKey(creds.AccessKeyID), source), nil
}

func checkBucketListing(ctx context.Context, cfg *config.Config) (string, error) {
	prov, err := createProvider(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer func() { _ = prov.Close() }()

	buckets, err := prov.ListBuckets(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d buckets visible", len(buckets)), nil
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
