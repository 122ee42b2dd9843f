package config

import (
	"strings"
	"time"
)

// Defaults returns the configuration used for unset fields.
func Defaults() Config {
	return Config{
		Bridge: BridgeConfig{
			QueueCapacity:    64,
			ChunkSize:        1 << 20,
			DebounceInterval: 500 * time.Millisecond,
			WaitTimeout:      time.Second,
		},
		Source: SourceConfig{
			Type: "local",
			S3:   S3SourceConfig{Region: "us-east-1"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// ApplyDefaults fills zero values and normalizes enumerations.
func ApplyDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Bridge.QueueCapacity == 0 {
		cfg.Bridge.QueueCapacity = d.Bridge.QueueCapacity
	}
	if cfg.Bridge.ChunkSize == 0 {
		cfg.Bridge.ChunkSize = d.Bridge.ChunkSize
	}
	if cfg.Bridge.WaitTimeout == 0 {
		cfg.Bridge.WaitTimeout = d.Bridge.WaitTimeout
	}

	cfg.Source.Type = strings.ToLower(cfg.Source.Type)
	if cfg.Source.Type == "" {
		cfg.Source.Type = d.Source.Type
	}
	if cfg.Source.S3.Region == "" {
		cfg.Source.S3.Region = d.Source.S3.Region
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = d.Logging.Output
	}
}
