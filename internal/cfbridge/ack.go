package cfbridge

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudbridge/internal/logging"
	"github.com/fruitsalade/cloudbridge/internal/metrics"
)

// DefaultDebounceInterval suppresses repeated population bookkeeping for one directory.
const DefaultDebounceInterval = 500 * time.Millisecond

// ValidateAcknowledger answers ValidateData callbacks with success.
type ValidateAcknowledger struct {
	sub    Subsystem
	logger *zap.Logger
	stats  *Stats
}

// NewValidateAcknowledger creates a ValidateData acknowledger.
func NewValidateAcknowledger(sub Subsystem, logger *zap.Logger) *ValidateAcknowledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidateAcknowledger{sub: sub, logger: logger, stats: &Stats{}}
}

// Acknowledge submits exactly one ack-validate completion covering the
// requested range. Submission failures are logged.
func (a *ValidateAcknowledger) Acknowledge(cb Callback) error {
	err := a.sub.Execute(&Completion{
		Kind:   CompletionAckValidate,
		Keys:   cb.Info.Keys,
		Offset: cb.Params.RequiredOffset,
		Length: cb.Params.RequiredLength,
		Status: StatusOK,
	})
	recordAck(a.stats, CompletionAckValidate, err)
	if err != nil {
		a.logger.Error("Validate data ack failed",
			logging.Path(cb.Info.NormalizedPath),
			zap.Int64("offset", cb.Params.RequiredOffset),
			zap.Int64("length", cb.Params.RequiredLength),
			zap.Error(err),
		)
		return wrapAPI("ack validate", err)
	}
	return nil
}

// PlaceholderAcknowledger answers FetchPlaceholders callbacks with an empty
// population and debounces the bookkeeping for repeated requests.
type PlaceholderAcknowledger struct {
	sub      Subsystem
	interval time.Duration
	logger   *zap.Logger
	stats    *Stats
	now      func() time.Time

	mu       sync.Mutex
	lastPath string
	lastTime time.Time
}

// NewPlaceholderAcknowledger creates a FetchPlaceholders acknowledger. A
// negative interval disables debouncing; zero selects DefaultDebounceInterval.
func NewPlaceholderAcknowledger(sub Subsystem, interval time.Duration, logger *zap.Logger) *PlaceholderAcknowledger {
	if interval == 0 {
		interval = DefaultDebounceInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaceholderAcknowledger{
		sub:      sub,
		interval: interval,
		logger:   logger,
		stats:    &Stats{},
		now:      time.Now,
	}
}

// debounced records path and reports whether the previous request was for
// the same path within the interval.
func (a *PlaceholderAcknowledger) debounced(path string) bool {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	skip := a.interval > 0 && path == a.lastPath && !a.lastTime.IsZero() && now.Sub(a.lastTime) < a.interval
	a.lastPath = path
	a.lastTime = now
	return skip
}

// Acknowledge submits exactly one ack-placeholders completion with zero
// entries and flags 0, whatever the debounce decision or bridge state.
func (a *PlaceholderAcknowledger) Acknowledge(cb Callback) error {
	path := cb.Info.NormalizedPath
	if a.debounced(path) {
		a.stats.PlaceholdersDebounced.Add(1)
		metrics.RecordPlaceholdersDebounced()
	} else {
		a.logger.Debug("Directory population requested", logging.Path(path))
	}

	err := a.sub.Execute(&Completion{
		Kind:   CompletionAckPlaceholders,
		Keys:   cb.Info.Keys,
		Status: StatusOK,
		Flags:  0,
	})
	recordAck(a.stats, CompletionAckPlaceholders, err)
	if err != nil {
		a.logger.Error("Fetch placeholders ack failed", logging.Path(path), zap.Error(err))
		return wrapAPI("ack placeholders", err)
	}
	return nil
}

func recordAck(stats *Stats, kind CompletionKind, err error) {
	metrics.RecordAck(kind.String(), err == nil)
	metrics.RecordCompletion(kind.String(), err == nil)
	if err != nil {
		stats.AcksFailed.Add(1)
		return
	}
	stats.AcksSent.Add(1)
}
