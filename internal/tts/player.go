// Package tts implements TTSPlayer (spec.md §4.5): synthesizes text to
// PCM frames and emits them as ordered outbound AudioData messages,
// cancellable mid-playback. Grounded on the original system's
// send_response_to_acs pattern (original_source's shared_ws.py /
// acs_media_lifecycle.py RouteTurnThread._process_direct_text_playback)
// for the cancellable-playback-task shape.
package tts

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/memory"
	"github.com/rapidaai/voicecore/internal/speech"
)

// frameDurationMs is the fixed outbound frame size, per spec.md §4.5.
const frameDurationMs = 10
const sampleRateHz = 16000
const bytesPerSample = 2

// frameSizeBytes is bytesPerSample * sampleRateHz * frameDurationMs / 1000.
const frameSizeBytes = bytesPerSample * sampleRateHz * frameDurationMs / 1000

// FrameSender transmits one outbound AudioData frame (base64 PCM) and
// one StopAudio control frame to the telephony provider.
type FrameSender interface {
	SendAudioFrame(base64PCM string) error
	SendStopAudio() error
}

// Player drives one pooled speech.SynthesizerEngine to speak text and
// stream PCM16 frames to a FrameSender, honoring cancellation.
type Player struct {
	logger commons.Logger
	engine speech.SynthesizerEngine
	sender FrameSender

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// New builds a Player around a pooled synthesizer engine and outbound
// sender.
func New(logger commons.Logger, engine speech.SynthesizerEngine, sender FrameSender) *Player {
	return &Player{logger: logger, engine: engine, sender: sender}
}

// Play synthesizes text with the voice parameters read from mem's
// context (defaults style=chat, rate=+3%, per spec.md §4.5), framing
// PCM16 output into fixed 10ms frames and sending each as AudioData.
// On provider error, retries once with a fresh synthesizer call; a
// second failure is logged and returned as a turn-level (non-fatal)
// error.
func (p *Player) Play(ctx context.Context, mem *memory.ConversationMemory, text string) error {
	playCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancelFunc = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.cancelFunc != nil {
			cancel()
			p.cancelFunc = nil
		}
		p.mu.Unlock()
	}()

	voice := speech.VoiceParams{
		Voice: mem.GetContextString(memory.CtxVoice, ""),
		Style: mem.GetContextString(memory.CtxVoiceStyle, ""),
		Rate:  mem.GetContextString(memory.CtxVoiceRate, ""),
	}.WithDefaults()

	err := p.synthesizeFramed(playCtx, text, voice)
	if err == nil {
		return nil
	}
	if playCtx.Err() != nil {
		// Cancelled (barge-in) — not a provider failure, no retry.
		p.sendStopAudio()
		return playCtx.Err()
	}

	p.logger.Warnw("tts: synthesis failed, retrying once with fresh synthesizer", "error", err)
	if resetErr := p.engine.Reset(); resetErr != nil {
		p.logger.Warnw("tts: engine reset failed before retry", "error", resetErr)
	}
	if err2 := p.synthesizeFramed(playCtx, text, voice); err2 != nil {
		p.logger.Errorw("tts: synthesis failed on retry, turn abandoned", "error", err2)
		return err2
	}
	return nil
}

func (p *Player) synthesizeFramed(ctx context.Context, text string, voice speech.VoiceParams) error {
	fr := newFramer(frameSizeBytes)
	err := p.engine.Synthesize(ctx, text, voice, func(chunk []byte) error {
		for _, frame := range fr.Feed(chunk) {
			if err := p.sendFrame(frame); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if last := fr.Flush(); last != nil {
		return p.sendFrame(last)
	}
	return nil
}

func (p *Player) sendFrame(frame []byte) error {
	encoded := base64.StdEncoding.EncodeToString(frame)
	return p.sender.SendAudioFrame(encoded)
}

func (p *Player) sendStopAudio() {
	if err := p.sender.SendStopAudio(); err != nil {
		p.logger.Warnw("tts: failed to send stop audio on cancel", "error", err)
	}
}

// CancelCurrent cancels the in-flight Play call, if any. Implements
// turn.PlaybackCanceller.
func (p *Player) CancelCurrent() {
	p.mu.Lock()
	cancel := p.cancelFunc
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// framer accumulates raw PCM bytes and yields fixed-size frames,
// zero-padding a short trailing frame, per spec.md §4.5.
type framer struct {
	size int
	buf  []byte
}

func newFramer(size int) *framer {
	return &framer{size: size}
}

// Feed appends chunk and returns any complete frames now available.
// Call Flush at the end of a stream to emit the zero-padded remainder.
func (f *framer) Feed(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)
	var frames [][]byte
	for len(f.buf) >= f.size {
		frames = append(frames, append([]byte(nil), f.buf[:f.size]...))
		f.buf = f.buf[f.size:]
	}
	return frames
}

// Flush returns the zero-padded final partial frame, if any bytes
// remain buffered.
func (f *framer) Flush() []byte {
	if len(f.buf) == 0 {
		return nil
	}
	padded := make([]byte, f.size)
	copy(padded, f.buf)
	f.buf = nil
	return padded
}
