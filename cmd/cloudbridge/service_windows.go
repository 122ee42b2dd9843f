//go:build windows

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/fruitsalade/cloudbridge/internal/config"
	"github.com/fruitsalade/cloudbridge/internal/logging"
)

const serviceName = "CloudBridge"
const serviceDisplayName = "CloudBridge Cloud Files Provider"
const serviceDescription = "Hydrates Cloud Files placeholders on demand"

type bridgeService struct {
	cfg *config.Config
}

func (s *bridgeService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, s.cfg)
	}()

	changes <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}

	for {
		select {
		case c := <-r:
			switch c.Cmd {
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				if err := <-errCh; err != nil {
					logging.Error("Service stopped with error", zap.Error(err))
				}
				return false, 0
			case svc.Interrogate:
				changes <- c.CurrentStatus
			}
		case err := <-errCh:
			if err != nil {
				logging.Error("Service backend error", zap.Error(err))
				return false, 1
			}
			return false, 0
		}
	}
}

func isWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

func runAsService(cfg *config.Config) {
	if err := svc.Run(serviceName, &bridgeService{cfg: cfg}); err != nil {
		logging.Error("Service failed", zap.Error(err))
		os.Exit(1)
	}
}

// serviceRecovery restarts the provider after a crash so hydration requests
// are not left failing until the next logon.
var serviceRecovery = []mgr.RecoveryAction{
	{Type: mgr.ServiceRestart, Delay: 5 * time.Second},
	{Type: mgr.ServiceRestart, Delay: 30 * time.Second},
	{Type: mgr.NoAction},
}

// doInstallService registers the service with the resolved config file as
// its only argument, so the service does not depend on the install-time
// command line or environment.
func doInstallService(configPath string) error {
	args, err := serviceArgs(configPath)
	if err != nil {
		return err
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("executable path: %w", err)
	}

	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service manager: %w", err)
	}
	defer m.Disconnect()

	if s, err := m.OpenService(serviceName); err == nil {
		s.Close()
		return fmt.Errorf("service %q already installed", serviceName)
	}

	s, err := m.CreateService(serviceName, exePath, mgr.Config{
		DisplayName:      serviceDisplayName,
		Description:      serviceDescription,
		StartType:        mgr.StartAutomatic,
		DelayedAutoStart: true,
	}, args...)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	defer s.Close()

	if err := s.SetRecoveryActions(serviceRecovery, uint32((24 * time.Hour).Seconds())); err != nil {
		logging.Warn("Cannot set service recovery actions", zap.Error(err))
	}

	fmt.Printf("Service %q installed with config %s.\n", serviceName, args[1])
	fmt.Printf("Start with: sc start %s\n", serviceName)
	return nil
}

// doUninstallService stops the service if it is running and removes it.
func doUninstallService() error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err != nil {
		return fmt.Errorf("open service %q: %w", serviceName, err)
	}
	defer s.Close()

	if err := stopService(s, 30*time.Second); err != nil {
		return err
	}
	if err := s.Delete(); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}

	fmt.Printf("Service %q uninstalled.\n", serviceName)
	return nil
}

// stopService asks a running service to stop and waits until it has.
func stopService(s *mgr.Service, timeout time.Duration) error {
	status, err := s.Query()
	if err != nil {
		return fmt.Errorf("query service: %w", err)
	}
	if status.State == svc.Stopped {
		return nil
	}
	if status.State != svc.StopPending {
		if status, err = s.Control(svc.Stop); err != nil {
			return fmt.Errorf("stop service: %w", err)
		}
	}

	deadline := time.Now().Add(timeout)
	for status.State != svc.Stopped {
		if time.Now().After(deadline) {
			return fmt.Errorf("service %q did not stop within %s", serviceName, timeout)
		}
		time.Sleep(300 * time.Millisecond)
		if status, err = s.Query(); err != nil {
			return fmt.Errorf("query service: %w", err)
		}
	}
	return nil
}
