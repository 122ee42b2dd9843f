package winclient

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// CfAPIBackend runs a Core against the Cloud Files API.
type CfAPIBackend struct {
	syncRoot string
	logger   *zap.Logger

	mu   sync.Mutex
	core *Core
}

// NewCfAPIBackend creates a CfAPI backend.
func NewCfAPIBackend(syncRoot string, logger *zap.Logger) *CfAPIBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CfAPIBackend{syncRoot: syncRoot, logger: logger}
}

func (b *CfAPIBackend) Name() string {
	return "cfapi"
}

func (b *CfAPIBackend) Start(ctx context.Context, core *Core) error {
	if err := os.MkdirAll(b.syncRoot, 0755); err != nil {
		return fmt.Errorf("create sync root: %w", err)
	}
	if err := core.Open(); err != nil {
		return err
	}

	b.mu.Lock()
	b.core = core
	b.mu.Unlock()

	b.logger.Info("CfAPI backend started", zap.String("sync_root", b.syncRoot))

	runErr := core.Run(ctx)
	if err := b.Stop(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (b *CfAPIBackend) Stop() error {
	b.mu.Lock()
	core := b.core
	b.core = nil
	b.mu.Unlock()

	if core == nil {
		return nil
	}
	return core.Close()
}
