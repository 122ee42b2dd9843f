package cfbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudbridge/internal/logging"
	"github.com/fruitsalade/cloudbridge/internal/metrics"
)

// DefaultChunkSize bounds a single pull and a single data completion.
const DefaultChunkSize int64 = 1 << 20

// ProgressFunc observes hydration progress after every committed chunk.
type ProgressFunc func(path string, total, completed int64)

// HydrationExecutor serves FetchData callbacks by pulling chunks from a
// DataSource and committing them through the Subsystem.
type HydrationExecutor struct {
	sub       Subsystem
	source    DataSource
	transfers *TransferRegistry
	chunkSize int64
	progress  ProgressFunc
	logger    *zap.Logger
	stats     *Stats
}

// NewHydrationExecutor creates an executor. A non-positive chunkSize selects
// DefaultChunkSize.
func NewHydrationExecutor(sub Subsystem, source DataSource, transfers *TransferRegistry, chunkSize int64, logger *zap.Logger) *HydrationExecutor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if transfers == nil {
		transfers = NewTransferRegistry()
	}
	return &HydrationExecutor{
		sub:       sub,
		source:    source,
		transfers: transfers,
		chunkSize: chunkSize,
		logger:    logger,
		stats:     &Stats{},
	}
}

// SetProgressFunc installs an application progress hook.
func (h *HydrationExecutor) SetProgressFunc(fn ProgressFunc) { h.progress = fn }

// Hydrate satisfies req and returns once a terminal completion (final data or
// transfer error) has been submitted. It must run on the OS thread that
// delivered the FetchData callback: completions are bound to that thread, so
// Hydrate never hands work to another goroutine. A non-nil error describes
// why the transfer failed; the OS has already been told.
func (h *HydrationExecutor) Hydrate(ctx context.Context, req FetchData) (err error) {
	// settled is set once the final data or the transfer error has been submitted.
	settled := false
	fail := func(cause error) error {
		settled = true
		return h.fail(req, cause)
	}
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Hydration panicked", logging.Path(req.Path),
				zap.Int64("transfer_key", int64(req.TransferKey)), zap.Any("panic", rec), zap.Stack("stack"))
			cause := fmt.Errorf("hydrate %q: panic: %v", req.Path, rec)
			if !settled {
				err = fail(cause)
				return
			}
			err = cause
		}
	}()

	offset := req.RequiredOffset
	length := req.RequiredLength
	if length <= 0 && req.FileSize > offset {
		length = req.FileSize - offset
	}
	if req.Path == "" || offset < 0 || length <= 0 {
		return fail(fmt.Errorf("hydrate %q [%d,+%d): %w", req.Path, offset, length, ErrInvalidParam))
	}
	end := offset + length

	ctx = logging.WithTransfer(logging.NewContext(ctx, h.logger), int64(req.ConnectionKey), int64(req.TransferKey))
	log := logging.WithContext(ctx).With(logging.Path(req.Path))

	tctx, tr, done := h.transfers.begin(ctx, req, length)
	defer done()

	h.stats.HydrationsStarted.Add(1)
	log.Debug("Hydration started", zap.Int64("offset", offset), zap.Int64("length", length))

	cursor := offset
	for cursor < end {
		if tctx.Err() != nil {
			return fail(fmt.Errorf("hydrate %q at %d: %w", req.Path, cursor, context.Cause(tctx)))
		}

		want := min(h.chunkSize, end-cursor)
		start := time.Now()
		// Cancellation is checked between chunks; a pull in progress runs to completion.
		resp := h.source.Pull(ctx, ChunkRequest{Path: req.Path, Offset: cursor, MaxLength: want})
		metrics.RecordPull(time.Since(start), resp.Err == nil)
		if resp.Err != nil {
			return fail(fmt.Errorf("pull %q at %d: %w", req.Path, cursor, resp.Err))
		}

		data := resp.Data
		if int64(len(data)) > want {
			data = data[:want]
		}
		n := int64(len(data))
		if n == 0 {
			return fail(fmt.Errorf("pull %q at %d: %d bytes short: %w", req.Path, cursor, end-cursor, ErrUnexpectedEOF))
		}

		final := cursor+n == end || resp.EOF
		execErr := h.sub.Execute(&Completion{
			Kind:   CompletionTransferData,
			Keys:   req.Keys,
			Offset: cursor,
			Length: n,
			Data:   data,
			Final:  final,
		})
		metrics.RecordCompletion(CompletionTransferData.String(), execErr == nil)
		if execErr != nil {
			return fail(wrapAPI("transfer data", execErr))
		}
		if final {
			settled = true
		}

		cursor += n
		tr.transferred.Store(cursor - offset)
		h.stats.BytesHydrated.Add(n)
		metrics.RecordBytesHydrated(n)
		h.report(req, length, cursor-offset, log)

		if final {
			break
		}
	}

	h.stats.HydrationsCompleted.Add(1)
	metrics.RecordHydration("success")
	log.Debug("Hydration completed", zap.Int64("bytes", cursor-offset))
	return nil
}

func (h *HydrationExecutor) report(req FetchData, total, completed int64, log *zap.Logger) {
	if err := h.sub.ReportProgress(req.ConnectionKey, req.TransferKey, total, completed); err != nil {
		log.Debug("Progress report failed", zap.Error(err))
	}
	if h.progress != nil {
		h.progress(req.Path, total, completed)
	}
}

// fail submits the single transfer-error completion for req and returns cause.
func (h *HydrationExecutor) fail(req FetchData, cause error) error {
	status := StatusOf(cause)
	err := h.sub.Execute(&Completion{
		Kind:   CompletionTransferError,
		Keys:   req.Keys,
		Offset: req.RequiredOffset,
		Length: req.RequiredLength,
		Status: status,
	})
	metrics.RecordCompletion(CompletionTransferError.String(), err == nil)

	fields := []zap.Field{
		logging.Path(req.Path),
		zap.Int64("transfer_key", int64(req.TransferKey)),
		logging.Status(uint32(status)),
		zap.Error(cause),
	}
	if err != nil {
		h.logger.Error("Transfer error completion failed", append(fields, zap.NamedError("submit_error", err))...)
	}

	if errors.Is(cause, ErrTransferCanceled) || errors.Is(cause, context.Canceled) {
		h.stats.HydrationsCanceled.Add(1)
		metrics.RecordHydration("canceled")
		h.logger.Info("Hydration canceled", fields...)
	} else {
		h.stats.HydrationsFailed.Add(1)
		metrics.RecordHydration("error")
		h.logger.Warn("Hydration failed", fields...)
	}
	return cause
}
