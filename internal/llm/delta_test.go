package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlushOnTerminator_FlushesOnPunctuation(t *testing.T) {
	var chunks []string
	f := NewFlushOnTerminator(func(s string) { chunks = append(chunks, s) })

	f.Feed("Hello there")
	f.Feed(", how are you")
	f.Feed("? I am fine")
	f.Feed(".")
	f.End()

	assert.Equal(t, []string{"Hello there, how are you?", " I am fine."}, chunks)
}

func TestFlushOnTerminator_TrailingTextFlushedOnce(t *testing.T) {
	var chunks []string
	f := NewFlushOnTerminator(func(s string) { chunks = append(chunks, s) })

	f.Feed("no terminator here")
	f.End()
	f.End() // idempotent no-op on an already-empty buffer

	assert.Equal(t, []string{"no terminator here"}, chunks)
}

func TestIsTTSTerminator(t *testing.T) {
	for _, r := range []rune{';', '.', '?', '!'} {
		assert.True(t, IsTTSTerminator(r))
	}
	assert.False(t, IsTTSTerminator(','))
}
