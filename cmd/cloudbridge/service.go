package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fruitsalade/cloudbridge/internal/config"
)

// serviceArgs resolves the config file a service install will use and
// returns the arguments recorded with the service. The file must exist and
// load as a valid configuration on its own, without flags or environment.
func serviceArgs(configPath string) ([]string, error) {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("service config: %w", err)
	}
	if _, err := config.Load(abs, nil); err != nil {
		return nil, fmt.Errorf("service config %s: %w", abs, err)
	}
	return []string{"--config", abs}, nil
}
