// Package wire defines the JSON wire format for the telephony media
// WebSocket (spec.md §4.1, §6): inbound frames tagged by "kind", and the
// two outbound frame shapes. Re-architected per spec.md §9 away from
// dynamic string dispatch into an exhaustively-switched sum type.
package wire

import (
	"encoding/json"
	"fmt"
)

// InboundKind discriminates an inbound media WebSocket frame.
type InboundKind string

const (
	KindAudioMetadata InboundKind = "AudioMetadata"
	KindAudioData     InboundKind = "AudioData"
	KindDtmfData      InboundKind = "DtmfData"
)

// envelope is the shape every inbound frame is first decoded into, so the
// Kind field can steer which typed payload to decode next.
type envelope struct {
	Kind InboundKind `json:"kind"`
}

// AudioDataPayload is the body of an AudioData frame: base64 PCM16LE mono
// 16kHz audio plus a silence marker.
type AudioDataPayload struct {
	Data   string `json:"data"`
	Silent bool   `json:"silent"`
}

// DtmfDataPayload is the body of a DtmfData frame.
type DtmfDataPayload struct {
	Data string `json:"data"`
}

type audioDataEnvelope struct {
	AudioData AudioDataPayload `json:"audioData"`
}

type dtmfDataEnvelope struct {
	DtmfData DtmfDataPayload `json:"dtmfData"`
}

// InboundMessage is the exhaustively-switched sum type for a decoded
// inbound frame. Exactly one of the typed fields is non-nil, matching its
// Kind; Unknown holds the kind string when Kind matched none of the known
// variants, per spec.md §4.1: "Unknown kind values are logged and
// ignored."
type InboundMessage struct {
	Kind         InboundKind
	AudioMetadata *AudioMetadata
	AudioData    *AudioDataPayload
	DtmfData     *DtmfDataPayload
	Unknown      string
}

// AudioMetadata is intentionally opaque per spec.md §6 ("AudioMetadata
// {...} opaque") — the engine reacts to its arrival, not its contents.
type AudioMetadata struct {
	Raw json.RawMessage
}

// DecodeInbound parses one text frame into an InboundMessage. A JSON
// decode error is returned to the caller, which per spec.md §4.1 logs and
// discards the frame without tearing down the loop.
func DecodeInbound(raw []byte) (*InboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}

	switch env.Kind {
	case KindAudioMetadata:
		return &InboundMessage{Kind: KindAudioMetadata, AudioMetadata: &AudioMetadata{Raw: json.RawMessage(raw)}}, nil
	case KindAudioData:
		var body audioDataEnvelope
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("wire: decode AudioData: %w", err)
		}
		return &InboundMessage{Kind: KindAudioData, AudioData: &body.AudioData}, nil
	case KindDtmfData:
		var body dtmfDataEnvelope
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("wire: decode DtmfData: %w", err)
		}
		return &InboundMessage{Kind: KindDtmfData, DtmfData: &body.DtmfData}, nil
	default:
		return &InboundMessage{Kind: env.Kind, Unknown: string(env.Kind)}, nil
	}
}

// outboundAudioData and outboundStopAudio match spec.md §6's exact
// outbound wire shapes, including the StopAudio frame's capitalized
// "Kind" field (preserved verbatim from the provider contract).
type outboundAudioData struct {
	Kind      string                  `json:"kind"`
	AudioData outboundAudioDataFields `json:"AudioData"`
}

type outboundAudioDataFields struct {
	Data string `json:"data"`
}

type outboundStopAudio struct {
	Kind      string      `json:"Kind"`
	AudioData interface{} `json:"AudioData"`
	StopAudio struct{}    `json:"StopAudio"`
}

// EncodeAudioFrame builds an outbound AudioData frame carrying base64 PCM.
func EncodeAudioFrame(base64PCM string) ([]byte, error) {
	return json.Marshal(outboundAudioData{
		Kind:      "AudioData",
		AudioData: outboundAudioDataFields{Data: base64PCM},
	})
}

// EncodeStopAudio builds the outbound StopAudio control frame.
func EncodeStopAudio() ([]byte, error) {
	return json.Marshal(outboundStopAudio{Kind: "StopAudio", AudioData: nil})
}
