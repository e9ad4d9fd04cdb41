// Package validation implements ValidationGate and the DTMF accumulator
// (spec.md §4.7). Grounded on the original Python system's DTMF event
// handler (original_source apps/rtagent/backend/src/handlers/acs_handler.py,
// _handle_dtmf_tone_received) for the tone-mapping and sequencing rules,
// expressed here with the teacher's goroutine/channel idioms instead of
// asyncio.
package validation

import (
	"context"
	"sync"
	"time"

	"github.com/rapidaai/voicecore/internal/commons"
)

// State is the gate's per-call state machine (spec.md §4.7):
//
//	WaitingForMetadata -> (AudioMetadata) -> WarmedUp
//	WarmedUp & gate_closed -> (validation_complete) -> Open
//	WarmedUp & gate_closed -> (timeout 30s) -> Open (warning logged)
//	Open is terminal; cannot revert within a call.
type State int

const (
	WaitingForMetadata State = iota
	WarmedUp
	Open
)

func (s State) String() string {
	switch s {
	case WaitingForMetadata:
		return "waiting_for_metadata"
	case WarmedUp:
		return "warmed_up"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

const gateTimeout = 30 * time.Second

// Gate is a boolean latch guarding the audio path while DTMF validation
// is pending. When validation is disabled it starts (and stays) open.
type Gate struct {
	logger  commons.Logger
	callID  string
	enabled bool

	mu       sync.Mutex
	state    State
	openedCh chan struct{}
	started  bool

	onOpen func()
}

// New builds a Gate for callID. If enabled is false the gate opens
// immediately and never closes, per spec.md §4.7 ("initially closed when
// DTMF validation is enabled").
func New(logger commons.Logger, callID string, enabled bool) *Gate {
	g := &Gate{
		logger:   logger,
		callID:   callID,
		enabled:  enabled,
		openedCh: make(chan struct{}),
	}
	if !enabled {
		g.state = Open
		close(g.openedCh)
	}
	return g
}

// OnOpen registers a callback invoked exactly once, the moment the gate
// transitions to Open, or immediately if the gate is already open — used
// to queue the greeting if not yet played (spec.md §4.7).
func (g *Gate) OnOpen(fn func()) {
	g.mu.Lock()
	alreadyOpen := g.state == Open
	if !alreadyOpen {
		g.onOpen = fn
	}
	g.mu.Unlock()
	if alreadyOpen && fn != nil {
		fn()
	}
}

// IsOpen reports whether audio frames should currently be admitted.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == Open
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ArmOnMetadata transitions WaitingForMetadata -> WarmedUp on the first
// AudioMetadata frame, and — if validation is enabled — starts the
// background waiter that awaits validation completion with a 30s
// timeout, per spec.md §4.7. Subsequent calls are no-ops.
func (g *Gate) ArmOnMetadata(ctx context.Context, validationComplete <-chan struct{}) {
	g.mu.Lock()
	if g.started || g.state == Open {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.state = WarmedUp
	g.mu.Unlock()

	if !g.enabled {
		g.open()
		return
	}

	go g.waitForValidation(ctx, validationComplete)
}

func (g *Gate) waitForValidation(ctx context.Context, validationComplete <-chan struct{}) {
	timer := time.NewTimer(gateTimeout)
	defer timer.Stop()

	select {
	case <-validationComplete:
		g.open()
	case <-timer.C:
		g.logger.Warnw("validation gate timed out, opening anyway", "call_id", g.callID, "timeout", gateTimeout)
		g.open()
	case <-ctx.Done():
		// Call torn down before validation resolved; leave the gate
		// closed, there's nothing left to admit audio for.
	}
}

func (g *Gate) open() {
	g.mu.Lock()
	if g.state == Open {
		g.mu.Unlock()
		return
	}
	g.state = Open
	cb := g.onOpen
	g.onOpen = nil
	close(g.openedCh)
	g.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Opened returns a channel closed exactly once the gate transitions to
// Open, for callers that want to block on it directly.
func (g *Gate) Opened() <-chan struct{} {
	return g.openedCh
}
