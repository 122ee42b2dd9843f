package cfbridge

import "sync/atomic"

// Stats holds bridge counters.
type Stats struct {
	HydrationsStarted     atomic.Int64
	HydrationsCompleted   atomic.Int64
	HydrationsFailed      atomic.Int64
	HydrationsCanceled    atomic.Int64
	BytesHydrated         atomic.Int64
	EventsEnqueued        atomic.Int64
	EventsDropped         atomic.Int64
	AcksSent              atomic.Int64
	AcksFailed            atomic.Int64
	PlaceholdersDebounced atomic.Int64
	CallbacksObserved     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	HydrationsStarted     int64
	HydrationsCompleted   int64
	HydrationsFailed      int64
	HydrationsCanceled    int64
	BytesHydrated         int64
	EventsEnqueued        int64
	EventsDropped         int64
	AcksSent              int64
	AcksFailed            int64
	PlaceholdersDebounced int64
	CallbacksObserved     int64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		HydrationsStarted:     s.HydrationsStarted.Load(),
		HydrationsCompleted:   s.HydrationsCompleted.Load(),
		HydrationsFailed:      s.HydrationsFailed.Load(),
		HydrationsCanceled:    s.HydrationsCanceled.Load(),
		BytesHydrated:         s.BytesHydrated.Load(),
		EventsEnqueued:        s.EventsEnqueued.Load(),
		EventsDropped:         s.EventsDropped.Load(),
		AcksSent:              s.AcksSent.Load(),
		AcksFailed:            s.AcksFailed.Load(),
		PlaceholdersDebounced: s.PlaceholdersDebounced.Load(),
		CallbacksObserved:     s.CallbacksObserved.Load(),
	}
}
