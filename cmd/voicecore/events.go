package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rapidaai/voicecore/internal/handler"
)

// providerEvent is the out-of-band webhook payload shape: a kind
// discriminator plus the union of fields any event kind might carry.
// Mirrors the tagged-variant style internal/wire uses for the media
// WebSocket, applied here to the provider's separate webhook stream.
type providerEvent struct {
	Kind         string   `json:"kind"`
	Reason       string   `json:"reason,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Error        string   `json:"error,omitempty"`
	Tone         string   `json:"tone,omitempty"`
	SequenceID   int      `json:"sequenceId,omitempty"`
}

func decodeProviderEvent(r *http.Request) (*providerEvent, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var ev providerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode provider event: %w", err)
	}
	if ev.Kind == "" {
		return nil, fmt.Errorf("provider event missing kind")
	}
	return &ev, nil
}

func dispatchProviderEvent(ctx context.Context, h handler.ProviderEventHandler, ev *providerEvent) error {
	switch ev.Kind {
	case "CallConnected":
		return h.CallConnected(ctx)
	case "CallDisconnected":
		return h.CallDisconnected(ctx, ev.Reason)
	case "ParticipantsUpdated":
		return h.ParticipantsUpdated(ctx, ev.Participants)
	case "PlayCompleted":
		return h.PlayCompleted(ctx)
	case "PlayFailed":
		return h.PlayFailed(ctx, fmt.Errorf("%s", ev.Error))
	case "RecognizeCompleted":
		return h.RecognizeCompleted(ctx)
	case "RecognizeFailed":
		return h.RecognizeFailed(ctx, fmt.Errorf("%s", ev.Error))
	case "DtmfToneReceived":
		return h.DtmfToneReceived(ctx, ev.Tone, ev.SequenceID)
	default:
		return fmt.Errorf("unknown provider event kind %q", ev.Kind)
	}
}
