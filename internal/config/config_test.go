package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
sync_root: 'C:\Users\dev\Cloud'
bridge:
  queue_capacity: 128
  chunk_size: 262144
  debounce_interval: 250ms
source:
  type: S3
  s3:
    endpoint: "minio:9000"
    bucket: "placeholders"
    access_key: "minio"
    secret_key: "minio123"
logging:
  level: DEBUG
  format: console
metrics:
  addr: ":9102"
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncRoot != `C:\Users\dev\Cloud` {
		t.Errorf("SyncRoot = %q", cfg.SyncRoot)
	}
	if cfg.Bridge.QueueCapacity != 128 || cfg.Bridge.ChunkSize != 262144 {
		t.Errorf("Bridge = %+v", cfg.Bridge)
	}
	if cfg.Bridge.DebounceInterval != 250*time.Millisecond {
		t.Errorf("DebounceInterval = %v", cfg.Bridge.DebounceInterval)
	}
	if cfg.Bridge.WaitTimeout != time.Second {
		t.Errorf("WaitTimeout default = %v", cfg.Bridge.WaitTimeout)
	}
	if cfg.Source.Type != "s3" || cfg.Source.S3.Bucket != "placeholders" || cfg.Source.S3.Region != "us-east-1" {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" || cfg.Logging.Output != "stderr" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Addr != ":9102" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CLOUDBRIDGE_SYNC_ROOT", `D:\root`)
	t.Setenv("CLOUDBRIDGE_SOURCE_LOCAL_ROOT", `D:\mirror`)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Defaults()
	if cfg.Bridge != d.Bridge {
		t.Errorf("Bridge = %+v, want %+v", cfg.Bridge, d.Bridge)
	}
	if cfg.Source.Type != "local" || cfg.Source.Local.Root != `D:\mirror` {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.SyncRoot != `D:\root` {
		t.Errorf("SyncRoot = %q", cfg.SyncRoot)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
sync_root: /mnt/a
source:
  type: memory
bridge:
  wait_timeout: 5s
`)
	t.Setenv("CLOUDBRIDGE_BRIDGE_WAIT_TIMEOUT", "2s")
	t.Setenv("CLOUDBRIDGE_LOGGING_LEVEL", "warn")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.WaitTimeout != 2*time.Second {
		t.Errorf("WaitTimeout = %v, want 2s", cfg.Bridge.WaitTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("CLOUDBRIDGE_SYNC_ROOT", "/from/env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--sync-root", "/from/flag", "--source", "memory", "--chunk-size", "8192"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"), fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncRoot != "/from/flag" {
		t.Errorf("SyncRoot = %q, want flag value", cfg.SyncRoot)
	}
	if cfg.Bridge.ChunkSize != 8192 {
		t.Errorf("ChunkSize = %d", cfg.Bridge.ChunkSize)
	}
	if cfg.Bridge.QueueCapacity != 64 {
		t.Errorf("unset flag overrode default: QueueCapacity = %d", cfg.Bridge.QueueCapacity)
	}
}

func TestLoadDebounceDisabled(t *testing.T) {
	path := writeConfig(t, `
sync_root: /mnt/a
source:
  type: memory
bridge:
  debounce_interval: -1s
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.DebounceInterval >= 0 {
		t.Errorf("DebounceInterval = %v, want negative (disabled)", cfg.Bridge.DebounceInterval)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.SyncRoot = "/root"
		cfg.Source.Type = "memory"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing sync root", func(c *Config) { c.SyncRoot = "" }, "SyncRoot"},
		{"unknown source", func(c *Config) { c.Source.Type = "ftp" }, "Type"},
		{"local without root", func(c *Config) { c.Source.Type = "local" }, "source.local.root"},
		{"s3 without bucket", func(c *Config) { c.Source.Type = "s3" }, "source.s3.bucket"},
		{"s3 half credentials", func(c *Config) {
			c.Source.Type = "s3"
			c.Source.S3.Bucket = "b"
			c.Source.S3.AccessKey = "k"
		}, "access_key"},
		{"unaligned chunk", func(c *Config) { c.Bridge.ChunkSize = 5000 }, "multiple of 4096"},
		{"tiny chunk", func(c *Config) { c.Bridge.ChunkSize = 1024 }, "ChunkSize"},
		{"zero queue", func(c *Config) { c.Bridge.QueueCapacity = 0 }, "QueueCapacity"},
		{"debounce disabled", func(c *Config) { c.Bridge.DebounceInterval = -1 }, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "Level"},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "9090" }, "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
