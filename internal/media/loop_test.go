package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/validation"
)

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeSink) PushAudio(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// dialLoop starts an httptest server that upgrades one connection and
// returns both the server-side Loop and a client *websocket.Conn for
// driving it.
func dialLoop(t *testing.T, gate *validation.Gate, sink RecognizerSink, cb Callbacks) (*Loop, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	loopCh := make(chan *Loop, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		l := New(commons.NewNopLogger(), conn, gate, sink, cb)
		loopCh <- l
		_ = l.Run(context.Background())
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	loop := <-loopCh
	return loop, client
}

func TestLoop_RoutesAudioDataToRecognizerWhenGateOpen(t *testing.T) {
	gate := validation.New(commons.NewNopLogger(), "call-1", false)
	sink := &fakeSink{}
	_, client := dialLoop(t, gate, sink, Callbacks{})

	pcm := []byte{1, 2, 3, 4}
	payload, _ := json.Marshal(map[string]interface{}{
		"kind": "AudioData",
		"audioData": map[string]interface{}{
			"data":   base64.StdEncoding.EncodeToString(pcm),
			"silent": false,
		},
	})
	require.NoError(t, client.WriteMessage(websocket.TextMessage, payload))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLoop_DropsAudioWhileGateClosed(t *testing.T) {
	gate := validation.New(commons.NewNopLogger(), "call-1", true) // validation enabled -> starts closed
	sink := &fakeSink{}
	_, client := dialLoop(t, gate, sink, Callbacks{})

	payload, _ := json.Marshal(map[string]interface{}{
		"kind": "AudioData",
		"audioData": map[string]interface{}{
			"data":   base64.StdEncoding.EncodeToString([]byte{9, 9}),
			"silent": false,
		},
	})
	require.NoError(t, client.WriteMessage(websocket.TextMessage, payload))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestLoop_IgnoresSilentAudio(t *testing.T) {
	gate := validation.New(commons.NewNopLogger(), "call-1", false)
	sink := &fakeSink{}
	_, client := dialLoop(t, gate, sink, Callbacks{})

	payload, _ := json.Marshal(map[string]interface{}{
		"kind": "AudioData",
		"audioData": map[string]interface{}{
			"data":   base64.StdEncoding.EncodeToString([]byte{9, 9}),
			"silent": true,
		},
	})
	require.NoError(t, client.WriteMessage(websocket.TextMessage, payload))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestLoop_AudioMetadataFiresCallback(t *testing.T) {
	gate := validation.New(commons.NewNopLogger(), "call-1", false)
	var fired atomic32
	_, client := dialLoop(t, gate, &fakeSink{}, Callbacks{
		OnAudioMetadata: func() { fired.set(true) },
	})

	payload, _ := json.Marshal(map[string]interface{}{"kind": "AudioMetadata"})
	require.NoError(t, client.WriteMessage(websocket.TextMessage, payload))

	require.Eventually(t, func() bool { return fired.get() }, time.Second, 5*time.Millisecond)
}

func TestLoop_MalformedJSONDoesNotTearDownLoop(t *testing.T) {
	gate := validation.New(commons.NewNopLogger(), "call-1", false)
	sink := &fakeSink{}
	_, client := dialLoop(t, gate, sink, Callbacks{})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{not json")))

	pcm := []byte{5, 6}
	payload, _ := json.Marshal(map[string]interface{}{
		"kind": "AudioData",
		"audioData": map[string]interface{}{
			"data":   base64.StdEncoding.EncodeToString(pcm),
			"silent": false,
		},
	})
	require.NoError(t, client.WriteMessage(websocket.TextMessage, payload))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLoop_SendAudioFrameAndStopAudio(t *testing.T) {
	gate := validation.New(commons.NewNopLogger(), "call-1", false)
	loop, client := dialLoop(t, gate, &fakeSink{}, Callbacks{})

	require.NoError(t, loop.SendAudioFrame("aGVsbG8="))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "AudioData")

	require.NoError(t, loop.SendStopAudio())
	_, msg, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "StopAudio")
}

// atomic32 is a tiny test helper avoiding an extra sync/atomic import
// footprint for a single bool flag.
type atomic32 struct {
	mu sync.Mutex
	v  bool
}

func (a *atomic32) set(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v = v
}

func (a *atomic32) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}
