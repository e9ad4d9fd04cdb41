// Package registry implements CallRegistry (spec.md §4.8): a process-wide
// mapping from call_id to the live media handler, enforcing at-most-one
// handler per call.
package registry

import (
	"context"
	"sync"

	"github.com/rapidaai/voicecore/internal/commons"
)

// Handler is the subset of MediaHandler the registry needs: a way to stop
// a running handler when it is being replaced.
type Handler interface {
	// Stop tears the handler down. Must be idempotent and safe to call
	// concurrently with the handler's own lifecycle, per spec.md §4.8.
	Stop(ctx context.Context) error
}

// Registry guards its internal map with a single sync.Mutex. "Reentrant"
// in spec.md §5 is achieved here by never calling back into the registry
// while already holding it — every public method takes the lock exactly
// once and releases it before doing anything that could re-enter.
type Registry struct {
	logger commons.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// New creates an empty Registry.
func New(logger commons.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Start installs handler as the live handler for callID. If a handler is
// already registered for callID, it is stopped first — per spec.md §4.8
// and testable property 1: "starting a second handler for call_id=X while
// the first is running stops the first before installation."
//
// The stop of the previous handler happens without holding the registry
// lock, since Stop may itself suspend (WS close, component drains) and
// spec.md §5 forbids holding a lock across a suspension point.
func (r *Registry) Start(ctx context.Context, callID string, handler Handler) {
	r.mu.Lock()
	previous := r.handlers[callID]
	r.handlers[callID] = handler
	r.mu.Unlock()

	if previous != nil {
		r.logger.Infow("replacing live handler for call", "call_id", callID)
		if err := previous.Stop(ctx); err != nil {
			r.logger.Warnw("error stopping replaced handler", "call_id", callID, "error", err)
		}
	}
}

// Stop removes the registry entry for callID only if it still matches
// self — per spec.md §4.8: "remove entry only if it matches self (avoid
// clobbering a replacement)." It does not call self.Stop(); the caller is
// expected to be inside its own Stop implementation already.
func (r *Registry) Stop(callID string, self Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handlers[callID]; ok && current == self {
		delete(r.handlers, callID)
	}
}

// Lookup returns the live handler for callID, if any.
func (r *Registry) Lookup(callID string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[callID]
	return h, ok
}

// Len returns the number of live entries. Exposed for tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
