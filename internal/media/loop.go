// Package media implements MediaLoop (spec.md §4.1): the full-duplex
// WebSocket media transport for one call. Grounded on the teacher's
// channel/base streamer (internal/channel/base) for the functional-
// options + gorilla/websocket idiom, and on the original system's
// MainEventLoop.handle_media_message (original_source
// apps/rtagent/backend/api/v1/handlers/acs_media_lifecycle.py) for the
// gating/backpressure/timeout semantics.
package media

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/validation"
	"github.com/rapidaai/voicecore/internal/wire"
)

const (
	defaultMaxConcurrentAudioTasks = 50
	defaultOverflowBufferSize      = 20
	defaultRecognizerDeadline      = 30 * time.Millisecond
	healthLineInterval             = 1 * time.Second
)

// RecognizerSink receives decoded audio frames gated by ValidationGate.
type RecognizerSink interface {
	PushAudio(frame []byte) error
}

// Callbacks are invoked as MediaLoop decodes inbound frames.
type Callbacks struct {
	// OnAudioMetadata fires on every AudioMetadata frame.
	OnAudioMetadata func()
	// OnDtmf fires on every DtmfData frame observed on the media path.
	// Per spec.md §6 this is log-only on the WS path; the sequenced
	// accumulation happens via the provider's DtmfToneReceived event
	// stream (see internal/handler), not here.
	OnDtmf func(tone string)
}

// Health is the periodic backpressure snapshot, per spec.md §4.1:
// {active, max, dropped, processed}.
type Health struct {
	Active    int64
	Max       int64
	Dropped   int64
	Processed int64
}

// Loop owns one upgraded WebSocket connection for the life of a call.
type Loop struct {
	logger commons.Logger
	conn   *websocket.Conn
	gate   *validation.Gate
	sink   RecognizerSink
	cb     Callbacks

	sem             *semaphore.Weighted
	maxConcurrent   int64
	overflow        chan []byte
	overflowBufSize int

	processed atomic.Int64
	dropped   atomic.Int64
	active    atomic.Int64

	closeOnce   sync.Once
	closeCode   int
	closeCodeMu sync.Mutex

	writeMu        sync.Mutex
	gateDropLogged atomic.Bool
}

// Option configures a Loop at construction, matching the teacher's
// functional-options convention (internal/channel/base.Option).
type Option func(*Loop)

// WithMaxConcurrentAudioTasks overrides the default semaphore size (50).
func WithMaxConcurrentAudioTasks(n int) Option {
	return func(l *Loop) { l.maxConcurrent = int64(n) }
}

// WithOverflowBufferSize overrides the default overflow buffer size (20).
func WithOverflowBufferSize(n int) Option {
	return func(l *Loop) { l.overflowBufSize = n }
}

// New builds a Loop around an already-upgraded WebSocket connection.
func New(logger commons.Logger, conn *websocket.Conn, gate *validation.Gate, sink RecognizerSink, cb Callbacks, opts ...Option) *Loop {
	l := &Loop{
		logger:          logger,
		conn:            conn,
		gate:            gate,
		sink:            sink,
		cb:              cb,
		maxConcurrent:   defaultMaxConcurrentAudioTasks,
		overflowBufSize: defaultOverflowBufferSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.sem = semaphore.NewWeighted(l.maxConcurrent)
	l.overflow = make(chan []byte, l.overflowBufSize)
	return l
}

// Run reads inbound frames until the connection closes or ctx is
// cancelled. Spawns a health-line goroutine and an overflow-buffer
// drain goroutine alongside the read loop.
func (l *Loop) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	drainCtx, cancelDrain := context.WithCancel(ctx)
	defer cancelDrain()

	wg.Add(1)
	go func() {
		defer wg.Done()
		l.healthLoop(drainCtx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.drainOverflow(drainCtx)
	}()

	err := l.readLoop(ctx)
	cancelDrain()
	wg.Wait()
	return err
}

func (l *Loop) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			code := websocket.CloseNoStatusReceived
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			l.recordCloseCode(code)
			return err
		}

		msg, err := wire.DecodeInbound(raw)
		if err != nil {
			l.logger.Warnw("media: invalid inbound frame, discarding", "error", err)
			continue
		}
		l.handleInbound(msg)
	}
}

func (l *Loop) handleInbound(msg *wire.InboundMessage) {
	switch msg.Kind {
	case wire.KindAudioMetadata:
		if l.cb.OnAudioMetadata != nil {
			l.cb.OnAudioMetadata()
		}
	case wire.KindAudioData:
		l.handleAudioData(msg.AudioData)
	case wire.KindDtmfData:
		if msg.DtmfData != nil && l.cb.OnDtmf != nil {
			l.cb.OnDtmf(msg.DtmfData.Data)
		}
	default:
		l.logger.Infow("media: unknown inbound kind ignored", "kind", msg.Unknown)
	}
}

func (l *Loop) handleAudioData(payload *wire.AudioDataPayload) {
	if payload == nil || payload.Silent || payload.Data == "" {
		return
	}
	if !l.gate.IsOpen() {
		if l.gateDropLogged.CompareAndSwap(false, true) {
			l.logger.Infow("media: dropping audio while validation gate closed")
		}
		return
	}

	frame, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		l.logger.Warnw("media: invalid base64 audio payload, discarding", "error", err)
		return
	}

	if l.sem.TryAcquire(1) {
		go l.processFrame(frame)
		return
	}

	select {
	case l.overflow <- frame:
	default:
		l.dropped.Add(1)
	}
}

func (l *Loop) drainOverflow(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-l.overflow:
			if err := l.sem.Acquire(ctx, 1); err != nil {
				return
			}
			l.processFrame(frame)
		}
	}
}

func (l *Loop) processFrame(frame []byte) {
	defer l.sem.Release(1)
	l.active.Add(1)
	defer l.active.Add(-1)

	done := make(chan error, 1)
	go func() { done <- l.sink.PushAudio(frame) }()

	select {
	case err := <-done:
		if err != nil {
			l.logger.Warnw("media: recognizer push failed", "error", err)
			return
		}
		l.processed.Add(1)
	case <-time.After(defaultRecognizerDeadline):
		l.logger.Warnw("media: recognizer push exceeded deadline, dropping frame", "deadline", defaultRecognizerDeadline)
		l.dropped.Add(1)
	}
}

func (l *Loop) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthLineInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := l.HealthSnapshot()
			l.logger.Infow("media health",
				"active", h.Active, "max", h.Max, "dropped", h.Dropped, "processed", h.Processed)
		}
	}
}

// HealthSnapshot returns the current backpressure counters.
func (l *Loop) HealthSnapshot() Health {
	return Health{
		Active:    l.active.Load(),
		Max:       l.maxConcurrent,
		Dropped:   l.dropped.Load(),
		Processed: l.processed.Load(),
	}
}

// SendAudioFrame writes one outbound AudioData frame. Implements
// tts.FrameSender.
func (l *Loop) SendAudioFrame(base64PCM string) error {
	raw, err := wire.EncodeAudioFrame(base64PCM)
	if err != nil {
		return err
	}
	return l.write(raw)
}

// SendStopAudio writes the StopAudio control frame. Implements
// tts.FrameSender and turn.StopAudioSender.
func (l *Loop) SendStopAudio() error {
	raw, err := wire.EncodeStopAudio()
	if err != nil {
		return err
	}
	return l.write(raw)
}

func (l *Loop) write(raw []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, raw)
}

func (l *Loop) recordCloseCode(code int) {
	l.closeCodeMu.Lock()
	defer l.closeCodeMu.Unlock()
	l.closeCode = code
}

// CloseCode returns the WS close code observed on disconnect, per
// spec.md §4.1 (1000/1001 normal; anything else abnormal).
func (l *Loop) CloseCode() int {
	l.closeCodeMu.Lock()
	defer l.closeCodeMu.Unlock()
	return l.closeCode
}

// Close closes the underlying connection. Idempotent.
func (l *Loop) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.conn.Close()
	})
	return err
}
