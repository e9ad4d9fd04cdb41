package turn

import (
	"context"
	"sync"

	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/wire"
)

// Handlers are the turn-processing callbacks a Router dispatches to.
// Kept as plain functions (rather than an interface import on
// internal/llm or internal/tts) so Router stays decoupled from those
// packages' concrete types, the way the original RouteTurnThread took
// an orchestrator_func callable.
type Handlers struct {
	// OnFinal processes a finalized utterance through the LLM+TTS
	// chain. Must honor ctx cancellation (barge-in).
	OnFinal func(ctx context.Context, text, lang string)
	// OnDirectPlayback handles Greeting/Announcement/StatusUpdate/
	// ErrorMessage events by synthesizing text directly, bypassing the
	// LLM. Must honor ctx cancellation.
	OnDirectPlayback func(ctx context.Context, event wire.SpeechEvent)
	// OnError logs a recognizer-reported error. No cancellation
	// semantics — log only, per spec.md §4.3.
	OnError func(message string)
}

// Router is the single consumer of a SpeechQueue (spec.md §4.3): it
// processes strictly one event at a time, tracking a cancellable
// per-event response task so BargeInCoordinator can cut it short
// without stopping the router loop itself.
type Router struct {
	logger commons.Logger
	queue  *SpeechQueue
	h      Handlers

	mu         sync.Mutex
	cancelTask context.CancelFunc

	done chan struct{}
}

// New builds a Router draining queue and dispatching to h.
func New(logger commons.Logger, queue *SpeechQueue, h Handlers) *Router {
	return &Router{
		logger: logger,
		queue:  queue,
		h:      h,
		done:   make(chan struct{}),
	}
}

// Run drains the queue until it is closed or ctx is cancelled. Intended
// to be run on its own goroutine for the life of the call.
func (r *Router) Run(ctx context.Context) {
	defer close(r.done)
	for {
		event, ok := r.queue.Pop()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.dispatch(ctx, event)
	}
}

func (r *Router) dispatch(ctx context.Context, event wire.SpeechEvent) {
	taskCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancelTask = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.cancelTask != nil {
			cancel()
			r.cancelTask = nil
		}
		r.mu.Unlock()
	}()

	switch {
	case event.Kind == wire.EventFinal:
		if r.h.OnFinal != nil {
			r.h.OnFinal(taskCtx, event.Text, event.Lang)
		}
	case event.IsDirectPlayback():
		if r.h.OnDirectPlayback != nil {
			r.h.OnDirectPlayback(taskCtx, event)
		}
	case event.Kind == wire.EventError:
		if r.h.OnError != nil {
			r.h.OnError(event.Message)
		}
	}
}

// CancelCurrent cancels the in-flight response task, if any, and drains
// stale queued events — the BargeInCoordinator's entry point into the
// router, per spec.md §5: "barge-in cancels the current response task
// and drains the queue; the router loop continues."
func (r *Router) CancelCurrent() (drained int) {
	r.mu.Lock()
	cancel := r.cancelTask
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return r.queue.Drain()
}

// Push enqueues a new speech event for processing.
func (r *Router) Push(event wire.SpeechEvent) {
	r.queue.Push(event)
}

// Done returns a channel closed once Run returns.
func (r *Router) Done() <-chan struct{} { return r.done }

// Close shuts down the underlying queue, causing Run to return.
func (r *Router) Close() {
	r.queue.Close()
}
