package telemetry

import (
	"sync"
	"time"
)

// LatencyTool is a simple interval registry keyed by name, modeled on
// spec.md §9: "start(name) and stop(name) return durations without
// throwing if name is missing." In the original Python it was attached to
// ConversationMemory (`ws.state.lt`); here llm.New creates one for each
// Streamer, which marks its ttfb/consume/total intervals on it.
type LatencyTool struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

// NewLatencyTool returns an empty LatencyTool.
func NewLatencyTool() *LatencyTool {
	return &LatencyTool{starts: make(map[string]time.Time)}
}

// Start records the current time under name, overwriting any prior mark.
func (l *LatencyTool) Start(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts[name] = time.Now()
}

// Stop returns the duration since Start(name) and clears the mark. If name
// was never started, it returns 0 and ok=false rather than panicking.
func (l *LatencyTool) Stop(name string) (d time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start, found := l.starts[name]
	if !found {
		return 0, false
	}
	delete(l.starts, name)
	return time.Since(start), true
}
