// Package config loads bucketscan configuration.
//
// Values are resolved with the precedence runtime overrides > environment >
// config file > defaults. Environment variables use the BUCKETSCAN_ prefix
// with dots replaced by underscores (BUCKETSCAN_SCAN_CONCURRENCY), plus a
// few short aliases such as BUCKETSCAN_LOG_LEVEL and BUCKETSCAN_PORT.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/output"
	"github.com/3leaps/bucketscan/pkg/provider"
	"github.com/3leaps/bucketscan/pkg/provider/s3"
)

// Config is the complete application configuration.
type Config struct {
	// Provider selects the storage backend: "s3" or "file".
	Provider string `mapstructure:"provider"`

	AWS     AWSConfig     `mapstructure:"aws"`
	Local   LocalConfig   `mapstructure:"local"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AWSConfig configures the S3 provider.
type AWSConfig struct {
	Region          string  `mapstructure:"region"`
	Endpoint        string  `mapstructure:"endpoint"`
	Profile         string  `mapstructure:"profile"`
	AccessKeyID     string  `mapstructure:"access_key_id"`
	SecretAccessKey string  `mapstructure:"secret_access_key"`
	ForcePathStyle  bool    `mapstructure:"force_path_style"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	MaxAttempts     int     `mapstructure:"max_attempts"`
}

// LocalConfig configures the file provider.
type LocalConfig struct {
	Root   string `mapstructure:"root"`
	Region string `mapstructure:"region"`
}

// ScanConfig configures what is scanned and how.
type ScanConfig struct {
	// Bucket is an optional glob restricting which buckets are scanned.
	Bucket string `mapstructure:"bucket"`

	// StorageClass optionally restricts counted versions to one class.
	StorageClass string `mapstructure:"storage_class"`

	// Unit is the size display unit: bytes, kb, mb or gb.
	Unit string `mapstructure:"unit"`

	// GroupBy is none, region or encryption.
	GroupBy string `mapstructure:"group_by"`

	// Concurrency bounds concurrent bucket scans.
	Concurrency int `mapstructure:"concurrency"`

	// PageSize is the version listing page size.
	PageSize int `mapstructure:"page_size"`

	// Timeout bounds a whole scan. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
}

// OutputConfig configures report rendering.
type OutputConfig struct {
	Format      string `mapstructure:"format"`
	Destination string `mapstructure:"destination"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig configures `bucketscan serve`.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ConfigError describes an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch provider.ProviderType(strings.ToLower(c.Provider)) {
	case provider.ProviderS3:
	case provider.ProviderFile:
		if strings.TrimSpace(c.Local.Root) == "" {
			return &ConfigError{Field: "local.root", Message: "required when provider is file"}
		}
	default:
		return &ConfigError{Field: "provider", Message: fmt.Sprintf("unsupported provider %q (want s3 or file)", c.Provider)}
	}

	s3cfg := c.S3Config()
	if err := s3cfg.Validate(); err != nil {
		return &ConfigError{Field: "aws", Message: err.Error()}
	}
	if _, err := fleet.ParseGrouping(c.Scan.GroupBy); err != nil {
		return &ConfigError{Field: "scan.group_by", Message: err.Error()}
	}
	if c.Scan.Concurrency < 0 {
		return &ConfigError{Field: "scan.concurrency", Message: "must not be negative"}
	}
	if c.Scan.PageSize < 0 || c.Scan.PageSize > s3.MaxAllowedKeys {
		return &ConfigError{Field: "scan.page_size", Message: fmt.Sprintf("must be between 0 and %d", s3.MaxAllowedKeys)}
	}
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		return &ConfigError{Field: "output.format", Message: err.Error()}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	return nil
}

// S3Config returns the S3 provider configuration.
func (c *Config) S3Config() s3.Config {
	return s3.Config{
		Region:          c.AWS.Region,
		Endpoint:        c.AWS.Endpoint,
		Profile:         c.AWS.Profile,
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		ForcePathStyle:  c.AWS.ForcePathStyle,
		MaxKeys:         c.Scan.PageSize,
		RateLimit:       c.AWS.RateLimit,
		MaxAttempts:     c.AWS.MaxAttempts,
	}
}

// Grouping returns the parsed grouping mode. Validate reports parse errors.
func (c *Config) Grouping() fleet.Grouping {
	g, _ := fleet.ParseGrouping(c.Scan.GroupBy)
	return g
}
