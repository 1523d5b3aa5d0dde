package config

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/bucketscan/pkg/fleet"
	"github.com/3leaps/bucketscan/pkg/output"
	"github.com/3leaps/bucketscan/pkg/units"
)

// EnvPrefix is the prefix of every environment variable read.
const EnvPrefix = "BUCKETSCAN"

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envSpec maps an environment variable to a config path.
type envSpec struct {
	Name string
	Path string
}

// getEnvSpecs returns the short environment aliases. Every key is also
// reachable through its full BUCKETSCAN_<SECTION>_<KEY> name.
func getEnvSpecs() []envSpec {
	return []envSpec{
		{Name: EnvPrefix + "_PROVIDER", Path: "provider"},
		{Name: EnvPrefix + "_LOG_LEVEL", Path: "logging.level"},
		{Name: EnvPrefix + "_LOG_JSON", Path: "logging.json"},
		{Name: EnvPrefix + "_HOST", Path: "server.host"},
		{Name: EnvPrefix + "_PORT", Path: "server.port"},
		{Name: EnvPrefix + "_READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: EnvPrefix + "_WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: EnvPrefix + "_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: EnvPrefix + "_METRICS_ENABLED", Path: "metrics.enabled"},
		{Name: EnvPrefix + "_REGION", Path: "aws.region"},
		{Name: EnvPrefix + "_ENDPOINT", Path: "aws.endpoint"},
		{Name: EnvPrefix + "_PROFILE", Path: "aws.profile"},
		{Name: EnvPrefix + "_CONCURRENCY", Path: "scan.concurrency"},
		{Name: EnvPrefix + "_UNIT", Path: "scan.unit"},
		{Name: EnvPrefix + "_FORMAT", Path: "output.format"},
	}
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "s3")

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.force_path_style", false)
	v.SetDefault("aws.rate_limit", 0.0)
	v.SetDefault("aws.max_attempts", 0)

	v.SetDefault("local.root", "")
	v.SetDefault("local.region", "")

	v.SetDefault("scan.bucket", "")
	v.SetDefault("scan.storage_class", "")
	v.SetDefault("scan.unit", units.DefaultUnit)
	v.SetDefault("scan.group_by", fleet.GroupNone.String())
	v.SetDefault("scan.concurrency", fleet.DefaultConcurrency)
	v.SetDefault("scan.page_size", 0)
	v.SetDefault("scan.timeout", "0s")

	v.SetDefault("output.format", output.FormatTable)
	v.SetDefault("output.destination", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
}

// BindEnv enables environment lookups on v.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, spec := range getEnvSpecs() {
		full := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(spec.Path, ".", "_"))
		if err := v.BindEnv(spec.Path, full, spec.Name); err != nil {
			return fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment bindings.
func New() (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load resolves the configuration. file is an optional YAML config file.
// Overrides are nested maps that take precedence over every other source.
func Load(ctx context.Context, file string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err := New()
	if err != nil {
		return nil, err
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()

	return cfg, nil
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// flatten turns nested maps into dotted keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
