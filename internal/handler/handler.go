// Package handler implements MediaHandler (spec.md §4's supplemental call
// owner): the per-call component that ties MediaLoop, RecognizerDriver,
// TurnRouter, BargeInCoordinator, TTSPlayer, LLMStreamer, ConversationMemory
// and ValidationGate together, and exposes ProviderEventHandler for the
// out-of-band provider webhook events (spec.md §6). Grounded on the
// original system's acs_media_lifecycle.py top-level call wiring and on
// the teacher's lifecycle-supervision style (start components in
// dependency order, tear down in reverse).
package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/openai/openai-go"

	"github.com/rapidaai/voicecore/internal/callcontext"
	"github.com/rapidaai/voicecore/internal/callerr"
	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/llm"
	"github.com/rapidaai/voicecore/internal/media"
	"github.com/rapidaai/voicecore/internal/memory"
	"github.com/rapidaai/voicecore/internal/pool"
	"github.com/rapidaai/voicecore/internal/recognizer"
	"github.com/rapidaai/voicecore/internal/registry"
	"github.com/rapidaai/voicecore/internal/speech"
	"github.com/rapidaai/voicecore/internal/tts"
	"github.com/rapidaai/voicecore/internal/turn"
	"github.com/rapidaai/voicecore/internal/validation"
	"github.com/rapidaai/voicecore/internal/wire"
)

// agentName is the single history bucket this handler writes to.
// ConversationMemory.History is keyed by agent name to support
// multi-agent handoff; this engine runs one agent per call.
const agentName = "assistant"

// ProviderEventHandler is invoked by the out-of-scope HTTP layer that
// decodes provider webhooks, per spec.md §6. One method per named event.
type ProviderEventHandler interface {
	CallConnected(ctx context.Context) error
	CallDisconnected(ctx context.Context, reason string) error
	ParticipantsUpdated(ctx context.Context, participants []string) error
	PlayCompleted(ctx context.Context) error
	PlayFailed(ctx context.Context, err error) error
	RecognizeCompleted(ctx context.Context) error
	RecognizeFailed(ctx context.Context, err error) error
	DtmfToneReceived(ctx context.Context, tone string, sequenceID int) error
}

// Config carries the per-call settings spec.md leaves as external
// configuration: validation policy, greeting text, and LLM parameters.
type Config struct {
	CallID             string
	ValidationEnabled  bool
	DtmfExpectedValue  string
	GreetingText       string
	GreetingLang       string
	ErrorMessageText   string
	ErrorMessageLang   string
	ModelID            string
	Temperature        float64
	TopP               float64
	MaxTokens          int64
	Tools              []openai.ChatCompletionToolParam
	SystemPrompt       string
}

// ToolExecutor runs a tool call the LLM requested and returns its JSON
// result. Optional — a call with no tools configured leaves this nil.
type ToolExecutor func(ctx context.Context, name, argsJSON string) (string, error)

// LLM is the subset of internal/llm.Streamer MediaHandler depends on,
// narrowed to an interface so tests can inject a fake stream without a
// real OpenAI client.
type LLM interface {
	Stream(ctx context.Context, req llm.Request, onDelta func(llm.Delta)) (llm.RateLimitSnapshot, *llm.ToolCall, error)
}

// Dependencies are the process-wide collaborators a MediaHandler is built
// from. Pools and stores are shared across calls; everything else is
// call-scoped and constructed fresh in New.
type Dependencies struct {
	Logger           commons.Logger
	Registry         *registry.Registry
	CallContextStore callcontext.Store
	MemoryStore      *memory.AsyncStore
	RecognizerPool   *pool.Pool[speech.RecognizerEngine]
	SynthesizerPool  *pool.Pool[speech.SynthesizerEngine]
	LLM              LLM
	ToolExecutor     ToolExecutor
}

// MediaHandler owns one call end-to-end: claiming the call-context row,
// acquiring pooled recognizer/synthesizer engines, wiring MediaLoop,
// RecognizerDriver, TurnRouter, BargeInCoordinator and TTSPlayer, and
// tearing everything down in reverse dependency order on disconnect.
type MediaHandler struct {
	cfg  Config
	deps Dependencies

	mem              *memory.ConversationMemory
	gate             *validation.Gate
	dtmfAcc          *validation.Accumulator
	recognizerEngine speech.RecognizerEngine
	synthEngine      speech.SynthesizerEngine

	loop      *media.Loop
	driver    *recognizer.Driver
	queue     *turn.SpeechQueue
	router    *turn.Router
	bargein   *turn.Coordinator
	player    *tts.Player

	validationDone     chan struct{}
	validationDoneOnce sync.Once

	stopOnce sync.Once
}

// New builds an unstarted MediaHandler. Run must be called once to start
// processing a specific WebSocket connection.
func New(cfg Config, deps Dependencies) *MediaHandler {
	return &MediaHandler{
		cfg:            cfg,
		deps:           deps,
		validationDone: make(chan struct{}),
	}
}

// Run claims the call context, wires every component, registers itself
// with the CallRegistry, and blocks until the WebSocket connection closes
// or ctx is cancelled. Always tears down before returning.
func (h *MediaHandler) Run(ctx context.Context, conn *websocket.Conn) error {
	if _, err := h.deps.CallContextStore.Claim(ctx, h.cfg.CallID); err != nil {
		return callerr.New(callerr.ConfigurationMissing, fmt.Errorf("claim call context: %w", err))
	}

	snap, err := h.deps.MemoryStore.Get(ctx, h.cfg.CallID)
	if err != nil {
		h.deps.Logger.Warnw("handler: memory load failed, starting fresh", "call_id", h.cfg.CallID, "error", err)
	}
	if snap != nil {
		h.mem = memory.FromSnapshot(*snap)
	} else {
		h.mem = memory.New(h.cfg.CallID)
	}

	h.recognizerEngine, err = h.deps.RecognizerPool.Acquire(ctx)
	if err != nil {
		h.markFailed(ctx)
		return callerr.New(callerr.TransientProvider, fmt.Errorf("acquire recognizer: %w", err))
	}
	h.synthEngine, err = h.deps.SynthesizerPool.Acquire(ctx)
	if err != nil {
		h.deps.RecognizerPool.Release(h.recognizerEngine)
		h.markFailed(ctx)
		return callerr.New(callerr.TransientProvider, fmt.Errorf("acquire synthesizer: %w", err))
	}

	h.dtmfAcc = validation.NewAccumulator(h.cfg.DtmfExpectedValue)
	h.queue = turn.NewSpeechQueue(0)
	h.driver = recognizer.New(h.deps.Logger, h.recognizerEngine, recognizer.Callbacks{
		OnBargeIn: h.onBargeIn,
		OnFinal:   h.onRecognizerFinal,
		OnError:   h.onRecognizerError,
	})

	h.gate = validation.New(h.deps.Logger, h.cfg.CallID, h.cfg.ValidationEnabled)
	h.gate.OnOpen(h.onGateOpen)

	h.loop = media.New(h.deps.Logger, conn, h.gate, h.driver, media.Callbacks{
		OnAudioMetadata: func() { h.gate.ArmOnMetadata(ctx, h.validationDone) },
		OnDtmf: func(tone string) {
			h.deps.Logger.Infow("handler: dtmf tone observed on media path (log only)", "call_id", h.cfg.CallID, "tone", tone)
		},
	})

	h.player = tts.New(h.deps.Logger, h.synthEngine, h.loop)
	h.router = turn.New(h.deps.Logger, h.queue, turn.Handlers{
		OnFinal:          h.processFinal,
		OnDirectPlayback: h.processDirectPlayback,
		OnError:          h.onQueueError,
	})
	h.bargein = turn.NewCoordinator(h.deps.Logger, h.router, h.player, h.loop)

	h.deps.Registry.Start(ctx, h.cfg.CallID, h)

	if err := h.driver.Start(ctx); err != nil {
		_ = h.Stop(ctx)
		return callerr.New(callerr.TransientProvider, fmt.Errorf("start recognizer: %w", err))
	}

	go h.router.Run(ctx)

	runErr := h.loop.Run(ctx)
	_ = h.Stop(ctx)
	if runErr != nil && !isNormalClose(runErr) {
		return runErr
	}
	return nil
}

func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}

// Stop tears every owned component down in reverse dependency order
// (TurnRouter -> RecognizerDriver -> MediaLoop), releases pooled engines,
// persists final state, and removes this handler from the registry.
// Implements registry.Handler. Idempotent.
func (h *MediaHandler) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.queue.Close()
		if err := h.driver.Stop(ctx); err != nil {
			h.deps.Logger.Warnw("handler: recognizer stop error", "call_id", h.cfg.CallID, "error", err)
		}
		if err := h.loop.Close(); err != nil {
			h.deps.Logger.Debugw("handler: media loop close error (likely already closed)", "call_id", h.cfg.CallID, "error", err)
		}

		h.deps.RecognizerPool.Release(h.recognizerEngine)
		h.deps.SynthesizerPool.Release(h.synthEngine)

		h.deps.MemoryStore.Set(h.mem.Snapshot())

		if err := h.deps.CallContextStore.Complete(context.Background(), h.cfg.CallID); err != nil {
			h.deps.Logger.Warnw("handler: failed to mark call context complete", "call_id", h.cfg.CallID, "error", err)
		}

		h.deps.Registry.Stop(h.cfg.CallID, h)
	})
	return nil
}

func (h *MediaHandler) markFailed(ctx context.Context) {
	if err := h.deps.CallContextStore.Fail(ctx, h.cfg.CallID); err != nil {
		h.deps.Logger.Warnw("handler: failed to mark call context failed", "call_id", h.cfg.CallID, "error", err)
	}
}

func (h *MediaHandler) onBargeIn() {
	h.mem.IncrementInterruptCount()
	h.bargein.Trigger()
}

func (h *MediaHandler) onRecognizerFinal(text, lang string) {
	h.queue.Push(wire.NewFinal(text, lang))
}

func (h *MediaHandler) onRecognizerError(err error) {
	h.queue.Push(wire.NewError(err.Error()))
}

func (h *MediaHandler) onQueueError(message string) {
	h.deps.Logger.Warnw("handler: recognizer reported error", "call_id", h.cfg.CallID, "message", message)
}

func (h *MediaHandler) onGateOpen() {
	if h.mem.GetContextBool(memory.CtxGreeted, false) {
		return
	}
	h.queue.Push(wire.NewDirectPlayback(wire.EventGreeting, h.cfg.GreetingText, h.cfg.GreetingLang))
}

func (h *MediaHandler) processDirectPlayback(ctx context.Context, event wire.SpeechEvent) {
	if event.Kind == wire.EventGreeting {
		h.mem.SetContext(memory.CtxGreeted, true)
	}
	h.mem.SetContext(memory.CtxBotSpeaking, true)
	defer h.mem.SetContext(memory.CtxBotSpeaking, false)
	if err := h.player.Play(ctx, h.mem, event.Text); err != nil && ctx.Err() == nil {
		h.deps.Logger.Warnw("handler: direct playback failed", "call_id", h.cfg.CallID, "error", err)
	}
}

func (h *MediaHandler) playErrorMessage(ctx context.Context) {
	if h.cfg.ErrorMessageText == "" {
		return
	}
	if err := h.player.Play(ctx, h.mem, h.cfg.ErrorMessageText); err != nil {
		h.deps.Logger.Warnw("handler: error-message playback failed", "call_id", h.cfg.CallID, "error", err)
	}
}

// processFinal runs one finalized utterance through the LLM+TTS chain:
// append the user turn, stream the assistant reply, flush completed
// sentences to TTS as they arrive, and loop once more on a tool-call
// result before synthesizing the final answer.
func (h *MediaHandler) processFinal(ctx context.Context, text, lang string) {
	h.mem.AppendHistory(agentName, memory.Message{Role: memory.RoleUser, Content: text})
	h.mem.SetContext(memory.CtxBotSpeaking, true)
	defer h.mem.SetContext(memory.CtxBotSpeaking, false)

	for attempt := 0; attempt < 2; attempt++ {
		assistantText, toolCall, err := h.streamAndSpeak(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // cancelled by barge-in; nothing left to say
			}
			h.deps.Logger.Errorw("handler: llm stream failed", "call_id", h.cfg.CallID, "error", err)
			h.playErrorMessage(ctx)
			return
		}
		if assistantText != "" {
			h.mem.AppendHistory(agentName, memory.Message{Role: memory.RoleAssistant, Content: assistantText})
		}
		if toolCall == nil {
			return
		}
		if h.deps.ToolExecutor == nil {
			h.deps.Logger.Warnw("handler: tool call requested but no executor configured", "call_id", h.cfg.CallID, "tool", toolCall.Name)
			return
		}
		result, execErr := h.deps.ToolExecutor(ctx, toolCall.Name, toolCall.ArgsJSON)
		if execErr != nil {
			h.deps.Logger.Warnw("handler: tool execution failed", "call_id", h.cfg.CallID, "tool", toolCall.Name, "error", execErr)
			result = fmt.Sprintf(`{"error":%q}`, execErr.Error())
		}
		h.mem.AppendHistory(agentName, memory.Message{
			Role:       memory.RoleTool,
			Content:    result,
			ToolCallID: toolCall.ID,
			Name:       toolCall.Name,
		})
		// loop again with the tool result appended, no new user input
	}
}

func (h *MediaHandler) streamAndSpeak(ctx context.Context) (string, *llm.ToolCall, error) {
	var full []byte
	flush := llm.NewFlushOnTerminator(func(chunk string) {
		if chunk == "" {
			return
		}
		if err := h.player.Play(ctx, h.mem, chunk); err != nil && ctx.Err() == nil {
			h.deps.Logger.Warnw("handler: tts playback failed mid-stream", "call_id", h.cfg.CallID, "error", err)
		}
	})

	req := llm.Request{
		History:     h.buildHistory(),
		Tools:       h.cfg.Tools,
		ModelID:     h.cfg.ModelID,
		Temperature: h.cfg.Temperature,
		TopP:        h.cfg.TopP,
		MaxTokens:   h.cfg.MaxTokens,
	}

	_, toolCall, err := h.deps.LLM.Stream(ctx, req, func(d llm.Delta) {
		switch d.Kind {
		case llm.DeltaText:
			full = append(full, d.Text...)
			flush.Feed(d.Text)
		case llm.DeltaEnd:
			flush.End()
		}
	})
	if err != nil {
		return "", nil, err
	}
	return string(full), toolCall, nil
}

func (h *MediaHandler) buildHistory() []memory.Message {
	history := h.mem.History(agentName)
	if h.cfg.SystemPrompt == "" {
		return history
	}
	out := make([]memory.Message, 0, len(history)+1)
	out = append(out, memory.Message{Role: memory.RoleSystem, Content: h.cfg.SystemPrompt})
	out = append(out, history...)
	return out
}

// --- ProviderEventHandler -------------------------------------------------

func (h *MediaHandler) CallConnected(ctx context.Context) error {
	h.deps.Logger.Infow("handler: call connected", "call_id", h.cfg.CallID)
	return nil
}

func (h *MediaHandler) CallDisconnected(ctx context.Context, reason string) error {
	h.deps.Logger.Infow("handler: call disconnected", "call_id", h.cfg.CallID, "reason", reason)
	return h.Stop(ctx)
}

func (h *MediaHandler) ParticipantsUpdated(ctx context.Context, participants []string) error {
	h.deps.Logger.Debugw("handler: participants updated", "call_id", h.cfg.CallID, "count", len(participants))
	return nil
}

func (h *MediaHandler) PlayCompleted(ctx context.Context) error {
	h.mem.SetContext(memory.CtxBotSpeaking, false)
	return nil
}

func (h *MediaHandler) PlayFailed(ctx context.Context, err error) error {
	h.deps.Logger.Warnw("handler: provider reported play failure", "call_id", h.cfg.CallID, "error", err)
	h.mem.SetContext(memory.CtxBotSpeaking, false)
	return nil
}

func (h *MediaHandler) RecognizeCompleted(ctx context.Context) error {
	return nil
}

func (h *MediaHandler) RecognizeFailed(ctx context.Context, err error) error {
	h.onRecognizerError(err)
	return nil
}

// DtmfToneReceived handles the provider's out-of-band DTMF event stream
// (spec.md §6 — distinct from the media-WS DtmfData frame, which is
// log-only). Tones are accumulated by sequenceId and compared against
// cfg.DtmfExpectedValue; validation opens the ValidationGate.
func (h *MediaHandler) DtmfToneReceived(ctx context.Context, tone string, sequenceID int) error {
	seq, validated := h.dtmfAcc.Add(tone, sequenceID)
	h.mem.SetContext(memory.CtxDtmfSequence, seq)
	if validated {
		h.mem.SetDtmfValidated(true)
		h.validationDoneOnce.Do(func() { close(h.validationDone) })
	}
	return nil
}
