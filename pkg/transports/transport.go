package transports

import "context"

// Transport is the caller-facing network boundary. Implementations own their
// listener lifecycle and hand each accepted caller to a session server.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	// Drain stops accepting new callers; live sessions keep running.
	Drain() error
	// Stop releases the listener and waits for session handlers, bounded by ctx.
	Stop(ctx context.Context) error
}

// ReadyReporter allows transports to expose readiness metadata (e.g., listen
// address). Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
