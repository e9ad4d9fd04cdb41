// Package recognizer implements RecognizerDriver (spec.md §4.2),
// grounded on the original system's SpeechSDKThread (original_source
// apps/rtagent/backend/api/v1/handlers/acs_media_lifecycle.py): a
// dedicated recognition session, pre-warmed before the first audio
// frame, with callbacks registered before warm-up and a barge-in
// trigger on meaningful partial text.
package recognizer

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/speech"
)

// bargeInThreshold is the number of non-whitespace characters a partial
// result must exceed to trigger barge-in, per spec.md §4.2/§9 — "> 3
// non-whitespace chars."
const bargeInThreshold = 3

// finalThreshold mirrors the original's `len(text.strip()) > 1` guard
// on final results, discarding single-character noise.
const finalThreshold = 1

// Callbacks delivers Driver's recognized events to the owning
// MediaHandler.
type Callbacks struct {
	// OnBargeIn fires at most once per utterance, the first time a
	// partial result exceeds bargeInThreshold characters.
	OnBargeIn func()
	// OnFinal fires once per finalized utterance.
	OnFinal func(text, lang string)
	// OnError fires on a recognition-canceled event.
	OnError func(err error)
}

// Driver owns one pooled speech.RecognizerEngine for the life of a
// call: it pre-warms the push stream before the first audio frame
// arrives, and de-duplicates the barge-in signal to one trigger per
// utterance (cleared on the next Final).
type Driver struct {
	logger commons.Logger
	engine speech.RecognizerEngine
	cb     Callbacks

	started       atomic.Bool
	bargeInLatch  atomic.Bool
	stopped       atomic.Bool
	stopOnce      sync.Once
	stopCompleted chan struct{}
}

// New builds a Driver around a pooled recognizer engine. The engine is
// not started until Start is called.
func New(logger commons.Logger, engine speech.RecognizerEngine, cb Callbacks) *Driver {
	return &Driver{
		logger:        logger,
		engine:        engine,
		cb:            cb,
		stopCompleted: make(chan struct{}),
	}
}

// Start registers callbacks and begins continuous recognition. Must be
// called exactly once before any PushAudio, per spec.md §4.2
// ("pre-warm... before the first frame; callbacks registered before
// warm-up").
func (d *Driver) Start(ctx context.Context) error {
	err := d.engine.Start(ctx, speech.RecognizerCallbacks{
		OnPartial: d.onPartial,
		OnFinal:   d.onFinal,
		OnError:   d.onError,
	})
	if err != nil {
		return err
	}
	d.started.Store(true)
	return nil
}

func (d *Driver) onPartial(text, lang string) {
	nonSpace := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			nonSpace++
		}
	}
	if nonSpace <= bargeInThreshold {
		return
	}
	// Single-flight: only the first qualifying partial per utterance
	// fires barge-in; the latch clears on the next Final.
	if d.bargeInLatch.CompareAndSwap(false, true) {
		if d.cb.OnBargeIn != nil {
			d.cb.OnBargeIn()
		}
	}
}

func (d *Driver) onFinal(text, lang string) {
	d.bargeInLatch.Store(false)
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= finalThreshold {
		return
	}
	if d.cb.OnFinal != nil {
		d.cb.OnFinal(text, lang)
	}
}

func (d *Driver) onError(err error) {
	if d.cb.OnError != nil {
		d.cb.OnError(err)
	}
}

// PushAudio feeds one PCM16 frame to the recognizer. Until Start has
// succeeded, frames are dropped and nil is returned; callers gate on
// ValidationGate and AudioMetadata per spec.md §4.1.
func (d *Driver) PushAudio(frame []byte) error {
	if !d.started.Load() {
		return nil
	}
	return d.engine.PushAudio(frame)
}

// Stop idempotently ends recognition, joining with a 2s grace period
// per spec.md §4.2. Safe to call multiple times and concurrently.
func (d *Driver) Stop(ctx context.Context) error {
	var stopErr error
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		done := make(chan error, 1)
		go func() { done <- d.engine.Stop(context.Background()) }()

		select {
		case stopErr = <-done:
		case <-time.After(2 * time.Second):
			d.logger.Warnw("recognizer stop did not complete within grace period")
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		close(d.stopCompleted)
	})
	return stopErr
}

// Engine exposes the underlying pooled engine so the owner can release
// it back to the pool after Stop (the pool requires Reset before
// reuse, which the engine performs itself).
func (d *Driver) Engine() speech.RecognizerEngine {
	return d.engine
}
