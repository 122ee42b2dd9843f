package cfbridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudbridge/internal/logging"
	"github.com/fruitsalade/cloudbridge/internal/metrics"
)

// routedCallbacks is the callback table registered on Connect.
var routedCallbacks = []CallbackType{
	CallbackFetchData,
	CallbackValidateData,
	CallbackCancelFetchData,
	CallbackFetchPlaceholders,
	CallbackCancelFetchPlaceholders,
	CallbackFileOpenCompletion,
	CallbackFileCloseCompletion,
	CallbackDehydrate,
	CallbackDehydrateCompletion,
	CallbackNotifyDelete,
	CallbackDeleteCompletion,
	CallbackNotifyRename,
	CallbackRenameCompletion,
}

// Router classifies OS callbacks: notifications go to the EventQueue,
// FetchData to the HydrationExecutor on the calling thread, and
// must-acknowledge callbacks to the acknowledgers. It never blocks on the
// application.
type Router struct {
	conn         *Connection
	queue        *EventQueue
	executor     *HydrationExecutor
	validate     *ValidateAcknowledger
	placeholders *PlaceholderAcknowledger
	transfers    *TransferRegistry
	baseCtx      func() context.Context
	logger       *zap.Logger
	stats        *Stats
}

// Table returns the registration covering every callback the router handles.
func (r *Router) Table() CallbackTable {
	types := make([]CallbackType, len(routedCallbacks))
	copy(types, routedCallbacks)
	return CallbackTable{Types: types, Handler: r}
}

// Handle dispatches one callback. It returns only after any completion the
// callback requires has been submitted.
func (r *Router) Handle(cb Callback) {
	defer func() {
		if rec := recover(); rec != nil {
			r.recovered(cb, rec)
		}
	}()

	switch cb.Type {
	case CallbackFetchData:
		r.fetchData(cb)
	case CallbackValidateData:
		_ = r.validate.Acknowledge(cb)
	case CallbackFetchPlaceholders:
		_ = r.placeholders.Acknowledge(cb)
	case CallbackCancelFetchData:
		r.cancelFetch(cb)
	case CallbackNotifyDelete:
		if !r.conn.Live() {
			return
		}
		r.enqueue(NotifyDelete{
			Keys:        cb.Info.Keys,
			Path:        r.relative(cb.Info.NormalizedPath),
			IsDirectory: cb.Params.IsDirectory,
		})
	case CallbackNotifyRename:
		if !r.conn.Live() {
			return
		}
		r.enqueue(NotifyRename{
			Keys:        cb.Info.Keys,
			SourcePath:  r.relative(cb.Info.NormalizedPath),
			TargetPath:  r.relative(cb.Params.TargetPath),
			IsDirectory: cb.Params.IsDirectory,
		})
	default:
		r.observe(cb)
	}
}

func (r *Router) fetchRequest(cb Callback) FetchData {
	return FetchData{
		Keys:           cb.Info.Keys,
		Path:           r.relative(cb.Info.NormalizedPath),
		RequiredOffset: cb.Params.RequiredOffset,
		RequiredLength: cb.Params.RequiredLength,
		FileSize:       cb.Info.FileSize,
	}
}

func (r *Router) fetchData(cb Callback) {
	req := r.fetchRequest(cb)
	if !r.conn.Live() {
		_ = r.executor.fail(req, ErrNotInitialized)
		return
	}
	_ = r.executor.Hydrate(r.baseCtx(), req)
}

func (r *Router) cancelFetch(cb Callback) {
	if !r.conn.Live() {
		return
	}
	n := r.transfers.Cancel(cb.Info.TransferKey)
	r.logger.Debug("Fetch canceled by OS",
		logging.Path(cb.Info.NormalizedPath),
		zap.Int64("transfer_key", int64(cb.Info.TransferKey)),
		zap.Int("signalled", n),
	)
	r.enqueue(CancelFetchData{
		Keys: cb.Info.Keys,
		Path: r.relative(cb.Info.NormalizedPath),
	})
}

// recovered answers a callback whose handling panicked. Panics must not
// reach the OS callback frame, and must-answer callbacks still get their
// completion. Hydrate settles its own panics, so a FetchData panic here came
// from outside the transfer loop.
func (r *Router) recovered(cb Callback, rec any) {
	r.logger.Error("Callback handler panicked",
		zap.Stringer("callback", cb.Type),
		logging.Path(cb.Info.NormalizedPath),
		zap.Any("panic", rec),
		zap.Stack("stack"),
	)
	defer func() {
		if again := recover(); again != nil {
			r.logger.Error("Callback recovery panicked", zap.Stringer("callback", cb.Type), zap.Any("panic", again))
		}
	}()

	switch cb.Type {
	case CallbackFetchData:
		req := FetchData{
			Keys:           cb.Info.Keys,
			Path:           cb.Info.NormalizedPath,
			RequiredOffset: cb.Params.RequiredOffset,
			RequiredLength: cb.Params.RequiredLength,
		}
		_ = r.executor.fail(req, fmt.Errorf("fetch %q: panic: %v", req.Path, rec))
	case CallbackValidateData:
		_ = r.validate.Acknowledge(cb)
	case CallbackFetchPlaceholders:
		_ = r.placeholders.Acknowledge(cb)
	}
}

func (r *Router) enqueue(ev Event) {
	kind := ev.Kind().String()
	err := r.queue.Enqueue(ev)
	switch {
	case err == nil:
		r.stats.EventsEnqueued.Add(1)
		metrics.RecordEnqueued(kind, r.queue.Len())
	case errors.Is(err, ErrQueueFull):
		r.stats.EventsDropped.Add(1)
		metrics.RecordDropped(kind)
		r.logger.Warn("Event queue full, dropping event", zap.String("kind", kind))
	default:
		r.logger.Debug("Event discarded", zap.String("kind", kind), zap.Error(err))
	}
}

func (r *Router) observe(cb Callback) {
	r.stats.CallbacksObserved.Add(1)
	metrics.RecordObserved(cb.Type.String())
	r.logger.Debug("Callback observed",
		zap.Stringer("callback", cb.Type),
		logging.Path(cb.Info.NormalizedPath),
	)
}

func (r *Router) relative(normalized string) string {
	if normalized == "" {
		return ""
	}
	return RelativePath(normalized, r.conn.Root())
}
