// Package cmd implements the bucketscan command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/bucketscan/internal/config"
	"github.com/3leaps/bucketscan/internal/observability"
)

// Identity of the binary, reported by health checks and help text.
const (
	binaryName = "bucketscan"
	configName = "bucketscan"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool
)

// versionInfo holds build metadata injected by main.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "Inventory S3 buckets: size, objects, cost and configuration",
	Long: `bucketscan walks every bucket in an account and reports, per bucket,
the total size and object count across all versions and delete markers, an
estimated monthly storage cost, the server-side encryption mix, whether
lifecycle and replication rules exist, and the bucket's region.

Configuration is read from flags, BUCKETSCAN_* environment variables and an
optional YAML config file, in that order of precedence.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initLogging,
}

func init() {
	cobra.OnInitialize(initConfig)
	setDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.json", rootCmd.PersistentFlags().Lookup("log-json"))
}

// SetVersionInfo records build metadata for the version command and server.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// setDefaults registers configuration defaults on the global viper.
func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

// initConfig wires environment lookups and reads the config file, if any.
func initConfig() {
	if err := config.BindEnv(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", cfgFile, err)
	}
}

func initLogging(cmd *cobra.Command, args []string) error {
	level := viper.GetString("logging.level")
	if err := observability.InitCLILogger(level, viper.GetBool("logging.json")); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid log level", err)
	}
	observability.CLILogger.Debug("Logger initialized",
		zap.String("level", level),
		zap.String("config_file", viper.ConfigFileUsed()))
	return nil
}

// loadConfig decodes and validates the global viper state.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		observability.CLILogger.Error("Invalid configuration", zap.Error(err))
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	return cfg, nil
}

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Execute runs the root command and returns the process exit code.
// SIGINT and SIGTERM cancel the command's context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	_ = observability.CLILogger.Sync()
	return exitCode(err)
}
