package turn

import (
	"sync/atomic"
	"time"

	"github.com/rapidaai/voicecore/internal/commons"
)

// bargeInClearDelay is the auto-clear delay after a barge-in, per
// spec.md §9 / original_source's `_reset_barge_in_state` 100ms sleep.
const bargeInClearDelay = 100 * time.Millisecond

// PlaybackCanceller is satisfied by anything that can cut off in-flight
// audio playback — implemented by internal/tts.Player.
type PlaybackCanceller interface {
	CancelCurrent()
}

// StopAudioSender sends the StopAudio control frame to the telephony
// provider.
type StopAudioSender interface {
	SendStopAudio() error
}

// Coordinator implements BargeInCoordinator (spec.md §4.3/§5): a
// single-flight latch ensuring at most one barge-in is in flight per
// call, cancelling current playback and router processing and emitting
// StopAudio, then auto-clearing after bargeInClearDelay so a later
// partial can trigger again.
type Coordinator struct {
	logger   commons.Logger
	router   *Router
	playback PlaybackCanceller
	sender   StopAudioSender

	active atomic.Bool
}

// NewCoordinator builds a Coordinator wired to router (for cancelling
// in-flight processing), playback (for cancelling TTS), and sender (for
// the StopAudio control frame).
func NewCoordinator(logger commons.Logger, router *Router, playback PlaybackCanceller, sender StopAudioSender) *Coordinator {
	return &Coordinator{logger: logger, router: router, playback: playback, sender: sender}
}

// Trigger handles one barge-in signal. If a barge-in is already in
// flight, this is a no-op — spec.md §5: "at most one barge-in is in
// flight."
func (c *Coordinator) Trigger() {
	if !c.active.CompareAndSwap(false, true) {
		return
	}

	if c.playback != nil {
		c.playback.CancelCurrent()
	}
	drained := c.router.CancelCurrent()
	if drained > 0 {
		c.logger.Infow("barge-in drained stale speech events", "count", drained)
	}
	if c.sender != nil {
		if err := c.sender.SendStopAudio(); err != nil {
			c.logger.Warnw("barge-in: failed to send stop audio", "error", err)
		}
	}

	go c.clearAfterDelay()
}

func (c *Coordinator) clearAfterDelay() {
	time.Sleep(bargeInClearDelay)
	c.active.Store(false)
}

// Active reports whether a barge-in is currently in flight. Exposed
// for tests.
func (c *Coordinator) Active() bool { return c.active.Load() }
