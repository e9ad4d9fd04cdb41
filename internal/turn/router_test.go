package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/wire"
)

func TestRouter_DispatchesFinalAndDirectPlayback(t *testing.T) {
	var mu sync.Mutex
	var finals []string
	var playbacks []string

	q := NewSpeechQueue(10)
	r := New(commons.NewNopLogger(), q, Handlers{
		OnFinal: func(ctx context.Context, text, lang string) {
			mu.Lock()
			finals = append(finals, text)
			mu.Unlock()
		},
		OnDirectPlayback: func(ctx context.Context, event wire.SpeechEvent) {
			mu.Lock()
			playbacks = append(playbacks, event.Text)
			mu.Unlock()
		},
	})

	go r.Run(context.Background())

	q.Push(wire.NewFinal("hello", "en-US"))
	q.Push(wire.NewDirectPlayback(wire.EventGreeting, "welcome", "en-US"))
	r.Close()
	<-r.Done()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hello"}, finals)
	assert.Equal(t, []string{"welcome"}, playbacks)
}

func TestRouter_CancelCurrentCancelsInFlightTask(t *testing.T) {
	q := NewSpeechQueue(10)
	cancelled := make(chan struct{}, 1)

	r := New(commons.NewNopLogger(), q, Handlers{
		OnFinal: func(ctx context.Context, text, lang string) {
			<-ctx.Done()
			cancelled <- struct{}{}
		},
	})
	go r.Run(context.Background())

	q.Push(wire.NewFinal("long running", "en-US"))
	// Give the router a moment to start processing before cancelling.
	time.Sleep(20 * time.Millisecond)
	r.CancelCurrent()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected in-flight task to observe cancellation")
	}

	r.Close()
	<-r.Done()
}

func TestRouter_CancelCurrentDrainsQueue(t *testing.T) {
	q := NewSpeechQueue(10)
	block := make(chan struct{})
	r := New(commons.NewNopLogger(), q, Handlers{
		OnFinal: func(ctx context.Context, text, lang string) {
			<-block
		},
	})
	go r.Run(context.Background())

	q.Push(wire.NewFinal("first", "en-US"))
	time.Sleep(20 * time.Millisecond)
	q.Push(wire.NewFinal("stale-1", "en-US"))
	q.Push(wire.NewFinal("stale-2", "en-US"))

	drained := r.CancelCurrent()
	assert.Equal(t, 2, drained)
	close(block)

	r.Close()
	<-r.Done()
}
