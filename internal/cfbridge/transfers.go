package cfbridge

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fruitsalade/cloudbridge/internal/metrics"
)

// TransferStatus describes an in-flight hydration.
type TransferStatus struct {
	TransferKey TransferKey
	Path        string
	Offset      int64
	Total       int64
	Transferred int64
	Started     time.Time
}

type transfer struct {
	key         TransferKey
	path        string
	offset      int64
	total       int64
	started     time.Time
	transferred atomic.Int64
	cancel      context.CancelCauseFunc
}

// TransferRegistry holds a cancellation token per in-flight hydration. The OS
// may issue several fetches for one transfer key, so each key maps to a set.
type TransferRegistry struct {
	mu     sync.Mutex
	active map[TransferKey]map[*transfer]struct{}
	n      int
}

// NewTransferRegistry creates an empty registry.
func NewTransferRegistry() *TransferRegistry {
	return &TransferRegistry{active: make(map[TransferKey]map[*transfer]struct{})}
}

// begin registers a hydration and returns its token context together with
// the func that unregisters it.
func (r *TransferRegistry) begin(parent context.Context, req FetchData, total int64) (context.Context, *transfer, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	t := &transfer{
		key:     req.TransferKey,
		path:    req.Path,
		offset:  req.RequiredOffset,
		total:   total,
		started: time.Now(),
		cancel:  cancel,
	}

	r.mu.Lock()
	set, ok := r.active[t.key]
	if !ok {
		set = make(map[*transfer]struct{})
		r.active[t.key] = set
	}
	set[t] = struct{}{}
	r.n++
	n := r.n
	r.mu.Unlock()
	metrics.SetActiveTransfers(n)

	return ctx, t, func() {
		r.mu.Lock()
		if set, ok := r.active[t.key]; ok {
			if _, ok := set[t]; ok {
				delete(set, t)
				r.n--
			}
			if len(set) == 0 {
				delete(r.active, t.key)
			}
		}
		n := r.n
		r.mu.Unlock()
		metrics.SetActiveTransfers(n)
		cancel(nil)
	}
}

// Cancel sets the token of every hydration running under key. It returns
// the number of hydrations signalled.
func (r *TransferRegistry) Cancel(key TransferKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.active[key]
	for t := range set {
		t.cancel(ErrTransferCanceled)
	}
	return len(set)
}

// CancelByPath cancels every hydration of path.
func (r *TransferRegistry) CancelByPath(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, set := range r.active {
		for t := range set {
			if t.path == path {
				t.cancel(ErrTransferCanceled)
				n++
			}
		}
	}
	return n
}

// CancelAll cancels every in-flight hydration.
func (r *TransferRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range r.active {
		for t := range set {
			t.cancel(ErrTransferCanceled)
		}
	}
	return r.n
}

// Len returns the number of in-flight hydrations.
func (r *TransferRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Snapshot lists in-flight hydrations, oldest first.
func (r *TransferRegistry) Snapshot() []TransferStatus {
	r.mu.Lock()
	out := make([]TransferStatus, 0, r.n)
	for _, set := range r.active {
		for t := range set {
			out = append(out, TransferStatus{
				TransferKey: t.key,
				Path:        t.path,
				Offset:      t.offset,
				Total:       t.total,
				Transferred: t.transferred.Load(),
				Started:     t.started,
			})
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
