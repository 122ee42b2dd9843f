//go:build !windows

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fruitsalade/cloudbridge/internal/config"
)

func isWindowsService() bool {
	return false
}

func runAsService(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, "Windows service mode is only available on Windows.")
	os.Exit(1)
}

func doInstallService(configPath string) error {
	return errors.New("service install is only available on Windows")
}

func doUninstallService() error {
	return errors.New("service uninstall is only available on Windows")
}
