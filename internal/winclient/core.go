// Package winclient runs a cfbridge.Bridge as a long-lived sync-root client:
// it owns the bridge lifecycle and consumes queued notifications.
package winclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
	"github.com/fruitsalade/cloudbridge/internal/logging"
)

// DefaultWaitTimeout bounds each wait of the event loop so cancellation is
// noticed promptly.
const DefaultWaitTimeout = time.Second

// CoreConfig holds configuration for the Core.
type CoreConfig struct {
	SyncRoot    string
	WaitTimeout time.Duration
	Bridge      cfbridge.Config
}

// CoreStats holds client statistics.
type CoreStats struct {
	EventsHandled atomic.Int64
	Deletes       atomic.Int64
	Renames       atomic.Int64
	Cancels       atomic.Int64
	HandlerErrors atomic.Int64
}

// Handlers receive queued notifications. Nil handlers only log.
type Handlers struct {
	OnDelete func(ctx context.Context, ev cfbridge.NotifyDelete) error
	OnRename func(ctx context.Context, ev cfbridge.NotifyRename) error
	OnCancel func(ctx context.Context, ev cfbridge.CancelFetchData) error
}

// Mutator is a data source that follows namespace changes made in the sync root.
type Mutator interface {
	Delete(path string)
	Rename(path, target string)
}

// MirrorHandlers applies deletes and renames to m.
func MirrorHandlers(m Mutator) Handlers {
	return Handlers{
		OnDelete: func(_ context.Context, ev cfbridge.NotifyDelete) error {
			m.Delete(ev.Path)
			return nil
		},
		OnRename: func(_ context.Context, ev cfbridge.NotifyRename) error {
			m.Rename(ev.SourcePath, ev.TargetPath)
			return nil
		},
	}
}

// Core is the backend-agnostic client around one Bridge.
type Core struct {
	Bridge *cfbridge.Bridge
	Config CoreConfig
	Stats  CoreStats

	handlers Handlers
	logger   *zap.Logger
}

// NewCore creates a Core. The bridge is created but not initialized.
func NewCore(cfg CoreConfig, sub cfbridge.Subsystem, source cfbridge.DataSource, handlers Handlers, logger *zap.Logger) (*Core, error) {
	if cfg.SyncRoot == "" {
		return nil, fmt.Errorf("sync root: %w", cfbridge.ErrInvalidParam)
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bridge.Logger == nil {
		cfg.Bridge.Logger = logger
	}

	b, err := cfbridge.New(sub, source, cfg.Bridge)
	if err != nil {
		return nil, fmt.Errorf("create bridge: %w", err)
	}
	return &Core{
		Bridge:   b,
		Config:   cfg,
		handlers: handlers,
		logger:   logger,
	}, nil
}

// Open initializes the bridge and connects the sync root.
func (c *Core) Open() error {
	if err := c.Bridge.Init(); err != nil {
		return fmt.Errorf("init bridge: %w", err)
	}
	if _, err := c.Bridge.Connect(c.Config.SyncRoot); err != nil {
		_ = c.Bridge.Shutdown()
		return fmt.Errorf("connect %s: %w", c.Config.SyncRoot, err)
	}
	return nil
}

// Close shuts the bridge down. In-flight hydrations are canceled.
func (c *Core) Close() error {
	err := c.Bridge.Shutdown()
	s := c.Bridge.Stats()
	c.logger.Info("Client stopped",
		zap.Int64("hydrations_completed", s.HydrationsCompleted),
		zap.Int64("hydrations_failed", s.HydrationsFailed),
		zap.Int64("events_dropped", s.EventsDropped),
		zap.Int64("events_handled", c.Stats.EventsHandled.Load()))
	return err
}

// Run consumes events until ctx is cancelled or the bridge shuts down.
func (c *Core) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := c.Bridge.WaitForEvent(c.Config.WaitTimeout)
		switch {
		case err == nil:
			c.Drain(ctx)
		case errors.Is(err, cfbridge.ErrTimeout):
		case errors.Is(err, cfbridge.ErrNotInitialized):
			return nil
		default:
			return fmt.Errorf("wait for event: %w", err)
		}
	}
}

// Drain handles every queued event and returns how many were handled.
func (c *Core) Drain(ctx context.Context) int {
	n := 0
	for {
		ev, err := c.Bridge.PollEvent()
		if err != nil {
			return n
		}
		c.dispatch(ctx, ev)
		n++
	}
}

func (c *Core) dispatch(ctx context.Context, ev cfbridge.Event) {
	c.Stats.EventsHandled.Add(1)

	var err error
	switch e := ev.(type) {
	case cfbridge.NotifyDelete:
		c.Stats.Deletes.Add(1)
		n := c.Bridge.CancelTransfers(e.Path)
		c.logger.Info("Deleted", logging.Path(e.Path), zap.Bool("dir", e.IsDirectory), zap.Int("canceled_transfers", n))
		if c.handlers.OnDelete != nil {
			err = c.handlers.OnDelete(ctx, e)
		}
	case cfbridge.NotifyRename:
		c.Stats.Renames.Add(1)
		c.logger.Info("Renamed", logging.Path(e.SourcePath), zap.String("target", e.TargetPath))
		if c.handlers.OnRename != nil {
			err = c.handlers.OnRename(ctx, e)
		}
	case cfbridge.CancelFetchData:
		c.Stats.Cancels.Add(1)
		c.logger.Debug("Fetch canceled", logging.Path(e.Path))
		if c.handlers.OnCancel != nil {
			err = c.handlers.OnCancel(ctx, e)
		}
	default:
		c.logger.Debug("Ignoring event", zap.Stringer("kind", ev.Kind()))
	}

	if err != nil {
		c.Stats.HandlerErrors.Add(1)
		c.logger.Warn("Event handler failed", zap.Stringer("kind", ev.Kind()), zap.Error(err))
	}
}
