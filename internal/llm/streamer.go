package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rapidaai/voicecore/internal/callerr"
	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/memory"
	"github.com/rapidaai/voicecore/internal/telemetry"
)

// Request describes one streaming chat completion call, per spec.md
// §4.4: {history, tools, model_id, temperature, top_p, max_tokens}.
type Request struct {
	History     []memory.Message
	Tools       []openai.ChatCompletionToolParam
	ModelID     string
	Temperature float64
	TopP        float64
	MaxTokens   int64
}

// Streamer issues streaming chat completions against an OpenAI-shaped
// API (openai/openai-go), applying spec.md §4.4's retry/backoff policy
// and emitting Delta values to a caller-supplied sink.
type Streamer struct {
	logger  commons.Logger
	client  openai.Client
	tracer  *telemetry.Tracer
	latency *telemetry.LatencyTool
}

// New builds a Streamer around an already-configured openai.Client.
func New(logger commons.Logger, client openai.Client) *Streamer {
	return &Streamer{
		logger:  logger,
		client:  client,
		tracer:  telemetry.NewTracer(),
		latency: telemetry.NewLatencyTool(),
	}
}

// Stream issues req and invokes onDelta for every Delta produced,
// retrying transient failures per spec.md §4.4's BASE/FACTOR/MAX/
// JITTER/MAX_ATTEMPTS defaults. Returns the last RateLimitSnapshot
// observed and the assembled ToolCall, if any.
func (s *Streamer) Stream(ctx context.Context, req Request, onDelta func(Delta)) (RateLimitSnapshot, *ToolCall, error) {
	ctx, span := s.tracer.StartSpan(ctx, "llm.stream",
		telemetry.KV{K: "model_id", V: telemetry.StringValue(req.ModelID)})
	defer func() { span.End(nil) }()

	s.latency.Start("total")
	defer s.latency.Stop("total")
	s.latency.Start("ttfb")

	var lastSnapshot RateLimitSnapshot
	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= RetryMaxAttempts; attempt++ {
		snapshot, tool, err := s.attempt(ctx, req, onDelta)
		if err == nil {
			span.SetAttributes(
				telemetry.KV{K: "request_id", V: telemetry.StringValue(snapshot.RequestID)},
				telemetry.KV{K: "region", V: telemetry.StringValue(snapshot.Region)},
				telemetry.KV{K: "remaining_requests", V: telemetry.IntValue(snapshot.RemainingRequests)},
				telemetry.KV{K: "remaining_tokens", V: telemetry.IntValue(snapshot.RemainingTokens)},
			)
			return snapshot, tool, nil
		}
		lastErr = err
		lastSnapshot = snapshot
		lastStatus = httpStatusOf(err)

		if !IsRetryable(err, lastStatus) {
			span.End(err)
			return snapshot, nil, callerr.New(callerr.Fatal, err)
		}
		if attempt == RetryMaxAttempts {
			break
		}

		delay := BackoffDelay(attempt, snapshot.RetryAfter)
		s.logger.Warnw("llm stream retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			span.End(ctx.Err())
			return snapshot, nil, ctx.Err()
		}
	}

	span.End(lastErr)
	// spec.md §7: RateLimited is an explicit 429 or a response carrying a
	// retry-after signal; everything else retryable (5xx, timeouts, connection errors) that
	// still exhausted retries is TransientProvider.
	kind := callerr.TransientProvider
	if lastStatus == 429 || lastSnapshot.RetryAfter > 0 {
		kind = callerr.RateLimited
	}
	return lastSnapshot, nil, callerr.New(kind, lastErr)
}

func (s *Streamer) attempt(ctx context.Context, req Request, onDelta func(Delta)) (RateLimitSnapshot, *ToolCall, error) {
	params := openai.ChatCompletionNewParams{
		Model:       req.ModelID,
		Messages:    toOpenAIMessages(req.History),
		MaxTokens:   openai.Int(req.MaxTokens),
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	}
	if len(req.Tools) > 0 {
		params.Tools = req.Tools
	}

	var httpResp *http.Response
	stream := s.client.Chat.Completions.NewStreaming(ctx, params, option.WithResponseInto(&httpResp))
	defer stream.Close()

	var snapshot RateLimitSnapshot
	var tool ToolCall
	firstDelta := true

	for stream.Next() {
		if firstDelta {
			s.latency.Stop("ttfb")
			s.latency.Start("consume")
			firstDelta = false
		}
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if len(delta.ToolCalls) > 0 {
			tc := delta.ToolCalls[0]
			if tc.ID != "" {
				tool.ID = tc.ID
			}
			if tc.Function.Name != "" {
				tool.Name = tc.Function.Name
			}
			tool.ArgsJSON += tc.Function.Arguments
			onDelta(Delta{Kind: DeltaToolCall, ID: tc.ID, Name: tc.Function.Name, ArgsFragment: tc.Function.Arguments})
			continue
		}

		if delta.Content != "" {
			onDelta(Delta{Kind: DeltaText, Text: delta.Content})
		}
	}
	s.latency.Stop("consume")

	if httpResp != nil {
		snapshot = ParseRateLimitHeaders(httpResp.Header)
		s.logger.Infow("llm stream response", snapshot.LogFields()...)
	}

	if err := stream.Err(); err != nil {
		return snapshot, nil, err
	}

	onDelta(Delta{Kind: DeltaEnd})

	if tool.ID != "" || tool.Name != "" {
		return snapshot, &tool, nil
	}
	return snapshot, nil, nil
}

func toOpenAIMessages(history []memory.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case memory.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case memory.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case memory.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case memory.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

// httpStatusOf extracts an HTTP status code from an openai-go API
// error, when present.
func httpStatusOf(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// FlushOnTerminator buffers text deltas and invokes flush every time a
// TTS terminator character is seen, plus once more at stream end for
// any trailing non-terminated text, per spec.md §4.4.
type FlushOnTerminator struct {
	buf   strings.Builder
	flush func(string)
}

// NewFlushOnTerminator builds a buffering flusher that calls flush with
// each completed chunk.
func NewFlushOnTerminator(flush func(string)) *FlushOnTerminator {
	return &FlushOnTerminator{flush: flush}
}

// Feed appends text to the buffer, flushing on each terminator rune.
func (f *FlushOnTerminator) Feed(text string) {
	for _, r := range text {
		f.buf.WriteRune(r)
		if IsTTSTerminator(r) {
			f.flushBuffered()
		}
	}
}

// End flushes any remaining buffered text once, at stream end.
func (f *FlushOnTerminator) End() {
	if f.buf.Len() > 0 {
		f.flushBuffered()
	}
}

func (f *FlushOnTerminator) flushBuffered() {
	chunk := f.buf.String()
	f.buf.Reset()
	if strings.TrimSpace(chunk) == "" {
		return
	}
	f.flush(chunk)
}
