package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound_AudioData(t *testing.T) {
	raw := []byte(`{"kind":"AudioData","audioData":{"data":"Zm9v","silent":false}}`)
	msg, err := DecodeInbound(raw)
	require.NoError(t, err)
	assert.Equal(t, KindAudioData, msg.Kind)
	require.NotNil(t, msg.AudioData)
	assert.Equal(t, "Zm9v", msg.AudioData.Data)
	assert.False(t, msg.AudioData.Silent)
	assert.Nil(t, msg.DtmfData)
	assert.Nil(t, msg.AudioMetadata)
}

func TestDecodeInbound_SilentAudioData(t *testing.T) {
	raw := []byte(`{"kind":"AudioData","audioData":{"data":"","silent":true}}`)
	msg, err := DecodeInbound(raw)
	require.NoError(t, err)
	assert.True(t, msg.AudioData.Silent)
}

func TestDecodeInbound_DtmfData(t *testing.T) {
	raw := []byte(`{"kind":"DtmfData","dtmfData":{"data":"5"}}`)
	msg, err := DecodeInbound(raw)
	require.NoError(t, err)
	assert.Equal(t, KindDtmfData, msg.Kind)
	require.NotNil(t, msg.DtmfData)
	assert.Equal(t, "5", msg.DtmfData.Data)
}

func TestDecodeInbound_AudioMetadataIsOpaque(t *testing.T) {
	raw := []byte(`{"kind":"AudioMetadata","something":{"nested":1}}`)
	msg, err := DecodeInbound(raw)
	require.NoError(t, err)
	assert.Equal(t, KindAudioMetadata, msg.Kind)
	require.NotNil(t, msg.AudioMetadata)
	assert.JSONEq(t, string(raw), string(msg.AudioMetadata.Raw))
}

func TestDecodeInbound_UnknownKindIsLoggedNotErrored(t *testing.T) {
	raw := []byte(`{"kind":"SomethingElse"}`)
	msg, err := DecodeInbound(raw)
	require.NoError(t, err)
	assert.Equal(t, InboundKind("SomethingElse"), msg.Kind)
	assert.Equal(t, "SomethingElse", msg.Unknown)
}

func TestDecodeInbound_MalformedJSONReturnsError(t *testing.T) {
	_, err := DecodeInbound([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeAudioFrame(t *testing.T) {
	out, err := EncodeAudioFrame("YmFzZTY0")
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "AudioData", decoded["kind"])
	audioData := decoded["AudioData"].(map[string]interface{})
	assert.Equal(t, "YmFzZTY0", audioData["data"])
}

func TestEncodeStopAudio_UsesCapitalizedKindField(t *testing.T) {
	out, err := EncodeStopAudio()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "StopAudio", decoded["Kind"])
	assert.Contains(t, decoded, "StopAudio")
	_, hasLowercaseKind := decoded["kind"]
	assert.False(t, hasLowercaseKind)
}
