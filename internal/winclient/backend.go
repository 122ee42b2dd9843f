package winclient

import "context"

// Backend connects a Core to a platform sync-root implementation.
type Backend interface {
	// Start connects the sync root and runs the event loop.
	// It blocks until ctx is cancelled or an error occurs.
	Start(ctx context.Context, core *Core) error

	// Stop cleanly shuts down the backend.
	Stop() error

	// Name returns a human-readable name for the backend.
	Name() string
}
