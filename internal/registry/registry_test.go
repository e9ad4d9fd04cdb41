package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/voicecore/internal/commons"
)

type fakeHandler struct {
	mu      sync.Mutex
	stopped bool
	stopErr error
	delay   time.Duration
}

func (f *fakeHandler) Stop(ctx context.Context) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return f.stopErr
}

func (f *fakeHandler) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func TestRegistry_AtMostOneHandlerPerCall(t *testing.T) {
	r := New(commons.NewNopLogger())
	first := &fakeHandler{}
	second := &fakeHandler{}

	r.Start(context.Background(), "call-X", first)
	assert.Equal(t, 1, r.Len())

	r.Start(context.Background(), "call-X", second)

	assert.True(t, first.isStopped(), "starting a second handler must stop the first")
	assert.Equal(t, 1, r.Len())

	current, ok := r.Lookup("call-X")
	require.True(t, ok)
	assert.Same(t, second, current)
}

func TestRegistry_StopOnlyRemovesSelf(t *testing.T) {
	r := New(commons.NewNopLogger())
	first := &fakeHandler{}
	second := &fakeHandler{}

	r.Start(context.Background(), "call-X", first)
	r.Start(context.Background(), "call-X", second)

	// first's own Stop() path calls registry.Stop(callID, first) — but
	// second has already replaced it, so this must be a no-op.
	r.Stop("call-X", first)
	current, ok := r.Lookup("call-X")
	require.True(t, ok, "second handler's entry must survive first's stale Stop call")
	assert.Same(t, second, current)

	r.Stop("call-X", second)
	_, ok = r.Lookup("call-X")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentStartsStabilizeToOne(t *testing.T) {
	r := New(commons.NewNopLogger())
	const n = 20
	handlers := make([]*fakeHandler, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		handlers[i] = &fakeHandler{}
		wg.Add(1)
		go func(h *fakeHandler) {
			defer wg.Done()
			r.Start(context.Background(), "call-concurrent", h)
		}(handlers[i])
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())

	stoppedCount := 0
	for _, h := range handlers {
		if h.isStopped() {
			stoppedCount++
		}
	}
	assert.Equal(t, n-1, stoppedCount, "all but the surviving handler must be stopped")
}
