// Package cfbridge turns Cloud Files callbacks, which arrive on arbitrary OS
// threads, into a request/response model: notifications are queued for the
// application, data requests are hydrated inline on the calling thread and
// must-acknowledge callbacks are answered exactly once.
package cfbridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudbridge/internal/metrics"
)

// Config tunes a Bridge. Zero values select the defaults.
type Config struct {
	QueueCapacity    int
	ChunkSize        int64
	DebounceInterval time.Duration
	Progress         ProgressFunc
	Logger           *zap.Logger
}

// Bridge owns one sync-root connection, its event queue and its handlers.
type Bridge struct {
	sub    Subsystem
	logger *zap.Logger

	// lifecycle serializes Init, Shutdown, Connect and Disconnect.
	lifecycle   sync.Mutex
	initialized atomic.Bool

	ctxMu  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	conn         Connection
	queue        *EventQueue
	transfers    *TransferRegistry
	executor     *HydrationExecutor
	validate     *ValidateAcknowledger
	placeholders *PlaceholderAcknowledger
	router       *Router
	stats        Stats
}

// New wires a Bridge around sub and source. The bridge starts uninitialized.
func New(sub Subsystem, source DataSource, cfg Config) (*Bridge, error) {
	if sub == nil || source == nil {
		return nil, ErrInvalidParam
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bridge{
		sub:       sub,
		logger:    logger,
		queue:     NewEventQueue(cfg.QueueCapacity),
		transfers: NewTransferRegistry(),
	}
	b.queue.Close()
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.cancel()

	b.executor = NewHydrationExecutor(sub, source, b.transfers, cfg.ChunkSize, logger.Named("hydration"))
	b.executor.stats = &b.stats
	b.executor.SetProgressFunc(cfg.Progress)
	b.validate = NewValidateAcknowledger(sub, logger)
	b.validate.stats = &b.stats
	b.placeholders = NewPlaceholderAcknowledger(sub, cfg.DebounceInterval, logger)
	b.placeholders.stats = &b.stats
	b.router = &Router{
		conn:         &b.conn,
		queue:        b.queue,
		executor:     b.executor,
		validate:     b.validate,
		placeholders: b.placeholders,
		transfers:    b.transfers,
		baseCtx:      b.context,
		logger:       logger.Named("router"),
		stats:        &b.stats,
	}
	return b, nil
}

func (b *Bridge) context() context.Context {
	b.ctxMu.RLock()
	defer b.ctxMu.RUnlock()
	return b.ctx
}

// Init prepares the queue for use. Calling it again is a no-op.
func (b *Bridge) Init() error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if b.initialized.Load() {
		return nil
	}

	b.queue.Reset()
	b.ctxMu.Lock()
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.ctxMu.Unlock()
	b.initialized.Store(true)
	metrics.SetQueueDepth(0)
	b.logger.Info("Bridge initialized", zap.Int("queue_capacity", b.queue.Cap()))
	return nil
}

// Shutdown cancels in-flight hydrations, wakes every WaitForEvent caller,
// disconnects if connected and releases the queue. Calling it on an
// uninitialized bridge is a no-op.
func (b *Bridge) Shutdown() error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if !b.initialized.Load() {
		return nil
	}

	if n := b.transfers.CancelAll(); n > 0 {
		b.logger.Info("Canceled in-flight hydrations", zap.Int("count", n))
	}
	b.queue.Close()

	var err error
	if b.conn.State() == Connected {
		if err = b.disconnectLocked(); err != nil {
			b.logger.Warn("Disconnect during shutdown failed", zap.Error(err))
			b.conn.reset()
		}
	}

	b.ctxMu.Lock()
	b.cancel()
	b.ctxMu.Unlock()
	b.initialized.Store(false)
	metrics.SetQueueDepth(0)
	b.logger.Info("Bridge shut down")
	return err
}

// IsInitialized reports whether Init has run without a later Shutdown.
func (b *Bridge) IsInitialized() bool { return b.initialized.Load() }

// Connect registers the callback table for rootPath. Connecting an already
// connected bridge returns the existing key.
func (b *Bridge) Connect(rootPath string) (ConnectionKey, error) {
	if rootPath == "" {
		return 0, ErrInvalidParam
	}
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if !b.initialized.Load() {
		return 0, ErrNotInitialized
	}
	if b.conn.State() == Connected {
		return b.conn.Key(), nil
	}

	b.conn.beginConnect(rootPath)
	key, err := b.sub.Connect(rootPath, b.router.Table())
	if err != nil {
		b.conn.reset()
		return 0, wrapAPI("connect sync root", err)
	}
	b.conn.established(key)
	b.logger.Info("Sync root connected", zap.String("root", rootPath), zap.Int64("connection_key", int64(key)))
	return key, nil
}

// Disconnect unregisters the callback table. In-flight hydrations are
// canceled first. On failure the connection stays live.
func (b *Bridge) Disconnect() error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if !b.initialized.Load() || b.conn.State() != Connected {
		return ErrNotInitialized
	}
	return b.disconnectLocked()
}

func (b *Bridge) disconnectLocked() error {
	key := b.conn.Key()
	b.conn.set(Disconnecting)
	b.transfers.CancelAll()
	if err := b.sub.Disconnect(key); err != nil {
		b.conn.set(Connected)
		return wrapAPI("disconnect sync root", err)
	}
	b.conn.reset()
	b.logger.Info("Sync root disconnected", zap.Int64("connection_key", int64(key)))
	return nil
}

// State returns the connection state.
func (b *Bridge) State() ConnState { return b.conn.State() }

// ConnectionKey returns the live connection key, or 0.
func (b *Bridge) ConnectionKey() ConnectionKey {
	if b.conn.State() != Connected {
		return 0
	}
	return b.conn.Key()
}

// WaitForEvent blocks until the queue is non-empty, timeout elapses
// (ErrTimeout) or the bridge shuts down (ErrNotInitialized). Use Infinite to
// wait without a deadline.
func (b *Bridge) WaitForEvent(timeout time.Duration) error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	return b.queue.Wait(timeout)
}

// PollEvent removes the oldest queued event without blocking.
func (b *Bridge) PollEvent() (Event, error) {
	if !b.initialized.Load() {
		return nil, ErrNotInitialized
	}
	ev, err := b.queue.Dequeue()
	if err == nil {
		metrics.SetQueueDepth(b.queue.Len())
	}
	return ev, err
}

// QueueDepth returns the number of queued events.
func (b *Bridge) QueueDepth() int { return b.queue.Len() }

// ActiveTransfers lists in-flight hydrations.
func (b *Bridge) ActiveTransfers() []TransferStatus { return b.transfers.Snapshot() }

// CancelTransfers cancels the in-flight hydrations of path.
func (b *Bridge) CancelTransfers(path string) int { return b.transfers.CancelByPath(path) }

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() StatsSnapshot { return b.stats.Snapshot() }
