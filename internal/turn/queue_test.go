package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/voicecore/internal/wire"
)

func TestSpeechQueue_FIFOOrder(t *testing.T) {
	q := NewSpeechQueue(10)
	q.Push(wire.NewFinal("one", "en-US"))
	q.Push(wire.NewFinal("two", "en-US"))

	e1, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "one", e1.Text)

	e2, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "two", e2.Text)
}

func TestSpeechQueue_DropOldestOnOverflow(t *testing.T) {
	q := NewSpeechQueue(2)
	q.Push(wire.NewFinal("a", "en-US"))
	q.Push(wire.NewFinal("b", "en-US"))
	q.Push(wire.NewFinal("c", "en-US"))

	assert.Equal(t, int64(1), q.Dropped())

	e, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", e.Text, "oldest (a) must have been dropped")
}

func TestSpeechQueue_HighWatermark(t *testing.T) {
	q := NewSpeechQueue(5)
	q.Push(wire.NewFinal("a", "en-US"))
	q.Push(wire.NewFinal("b", "en-US"))
	q.Push(wire.NewFinal("c", "en-US"))
	assert.Equal(t, int64(3), q.HighWatermark())
	q.Pop()
	q.Pop()
	assert.Equal(t, int64(3), q.HighWatermark(), "watermark does not decrease on drain")
}

func TestSpeechQueue_CloseUnblocksPop(t *testing.T) {
	q := NewSpeechQueue(5)
	done := make(chan struct{})
	go func() {
		_, ok := q.Pop()
		assert.False(t, ok)
		close(done)
	}()
	q.Close()
	<-done
}

func TestSpeechQueue_Drain(t *testing.T) {
	q := NewSpeechQueue(5)
	q.Push(wire.NewFinal("a", "en-US"))
	q.Push(wire.NewFinal("b", "en-US"))
	assert.Equal(t, 2, q.Drain())
	assert.Equal(t, 0, q.Drain())
}
