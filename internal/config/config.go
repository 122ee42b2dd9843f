// Package config loads cloudbridge configuration from a file, CLOUDBRIDGE_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CLOUDBRIDGE_SOURCE_TYPE.
const EnvPrefix = "CLOUDBRIDGE"

// Config is the full provider configuration.
type Config struct {
	// SyncRoot is the registered directory the bridge connects to.
	SyncRoot string `mapstructure:"sync_root" validate:"required"`

	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Source  SourceConfig  `mapstructure:"source"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// BridgeConfig tunes the callback bridge.
type BridgeConfig struct {
	QueueCapacity int   `mapstructure:"queue_capacity" validate:"gte=1,lte=65536"`
	ChunkSize     int64 `mapstructure:"chunk_size" validate:"gte=4096,lte=67108864"`
	// DebounceInterval of zero selects the default; a negative value disables debouncing.
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
	// WaitTimeout bounds each consumer wait so shutdown is noticed promptly.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" validate:"gt=0"`
}

// SourceConfig selects where placeholder content comes from.
type SourceConfig struct {
	Type  string            `mapstructure:"type" validate:"required,oneof=local s3 memory"`
	Local LocalSourceConfig `mapstructure:"local"`
	S3    S3SourceConfig    `mapstructure:"s3"`
}

// LocalSourceConfig serves content from a directory mirror.
type LocalSourceConfig struct {
	Root string `mapstructure:"root"`
}

// S3SourceConfig serves content from an S3 or MinIO bucket.
type S3SourceConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
	Output string `mapstructure:"output" validate:"required"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"sync-root":      "sync_root",
	"source":         "source.type",
	"source-root":    "source.local.root",
	"s3-endpoint":    "source.s3.endpoint",
	"s3-bucket":      "source.s3.bucket",
	"s3-prefix":      "source.s3.prefix",
	"chunk-size":     "bridge.chunk_size",
	"queue-capacity": "bridge.queue_capacity",
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"metrics-addr":   "metrics.addr",
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("sync-root", "", "Sync root directory")
	fs.String("source", "", "Content source: local, s3 or memory")
	fs.String("source-root", "", "Directory served by the local source")
	fs.String("s3-endpoint", "", "S3 endpoint (host:port or URL)")
	fs.String("s3-bucket", "", "S3 bucket")
	fs.String("s3-prefix", "", "Object key prefix")
	fs.Int64("chunk-size", 0, "Hydration chunk size in bytes")
	fs.Int("queue-capacity", 0, "Event queue capacity")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("log-format", "", "Log format: json, console")
	fs.String("metrics-addr", "", "Prometheus listen address, empty to disable")
}

// Load reads configuration from configPath (optional, may not exist), then
// environment variables, then flags that were set on fs (may be nil).
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setupViper(v)

	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can resolve it during Unmarshal.
	d := Defaults()
	v.SetDefault("sync_root", d.SyncRoot)
	v.SetDefault("bridge.queue_capacity", d.Bridge.QueueCapacity)
	v.SetDefault("bridge.chunk_size", d.Bridge.ChunkSize)
	v.SetDefault("bridge.debounce_interval", d.Bridge.DebounceInterval)
	v.SetDefault("bridge.wait_timeout", d.Bridge.WaitTimeout)
	v.SetDefault("source.type", d.Source.Type)
	v.SetDefault("source.local.root", d.Source.Local.Root)
	v.SetDefault("source.s3.endpoint", "")
	v.SetDefault("source.s3.bucket", "")
	v.SetDefault("source.s3.access_key", "")
	v.SetDefault("source.s3.secret_key", "")
	v.SetDefault("source.s3.region", d.Source.S3.Region)
	v.SetDefault("source.s3.prefix", "")
	v.SetDefault("source.s3.use_ssl", false)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cloudbridge")
	}
	return "."
}

// DefaultConfigPath returns the config file used when none is given.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
