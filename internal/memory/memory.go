// Package memory implements ConversationMemory (spec.md §3): the per-call
// dialog history, context map, and slot values, persisted through an
// external key-value store and read back with a local fallback when that
// store is unreachable.
package memory

import (
	"encoding/json"
	"sync"
)

// Role names a message's speaker, per spec.md §3.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Message is one entry in an agent's history, per spec.md §3.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
}

// ToolCall mirrors the OpenAI-shaped tool call a message can carry.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args_json"`
}

// Context well-known keys, per spec.md §3.
const (
	CtxTargetNumber   = "target_number"
	CtxActiveAgent    = "active_agent"
	CtxAuthenticated  = "authenticated"
	CtxDtmfSequence   = "dtmf_sequence"
	CtxDtmfValidated  = "dtmf_validated"
	CtxInterruptCount = "interrupt_count"
	CtxBotSpeaking    = "bot_speaking"
	CtxGreeted        = "greeted" // supplemental, see SPEC_FULL.md §3
	CtxMediaReady     = "media_streaming_ready"
	CtxVoice          = "voice"
	CtxVoiceStyle     = "style"
	CtxVoiceRate      = "rate"
)

// Snapshot is the JSON-serializable shape persisted to the external
// key-value store, matching spec.md §3's schema.
type Snapshot struct {
	CallID  string                     `json:"call_id"`
	History map[string][]Message       `json:"history"`
	Context map[string]json.RawMessage `json:"context"`
	Slots   map[string]json.RawMessage `json:"slots"`
}

// ConversationMemory is the live, in-process view of a call's persisted
// state. All mutations on the turn path go through the owning
// MediaHandler; context mutations from external event handlers (DTMF,
// participant updates) are also permitted directly, per spec.md §3's
// ownership note, and are internally serialized by mu.
type ConversationMemory struct {
	mu sync.RWMutex

	callID  string
	history map[string][]Message
	context map[string]interface{}
	slots   map[string]interface{}

	interruptCount int
	dtmfValidated  bool
}

// New creates an empty ConversationMemory for callID.
func New(callID string) *ConversationMemory {
	return &ConversationMemory{
		callID:  callID,
		history: make(map[string][]Message),
		context: make(map[string]interface{}),
		slots:   make(map[string]interface{}),
	}
}

// FromSnapshot reconstructs a ConversationMemory from a persisted snapshot.
func FromSnapshot(snap Snapshot) *ConversationMemory {
	cm := New(snap.CallID)
	if snap.History != nil {
		for agent, msgs := range snap.History {
			cm.history[agent] = append([]Message(nil), msgs...)
		}
	}
	for k, raw := range snap.Context {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			cm.context[k] = v
		}
	}
	for k, raw := range snap.Slots {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			cm.slots[k] = v
		}
	}
	if ic, ok := cm.context[CtxInterruptCount].(float64); ok {
		cm.interruptCount = int(ic)
	}
	if dv, ok := cm.context[CtxDtmfValidated].(bool); ok {
		cm.dtmfValidated = dv
	}
	return cm
}

// CallID returns the owning call's identifier.
func (cm *ConversationMemory) CallID() string { return cm.callID }

// History returns a copy of agentName's message history. Append-only
// within a turn per spec.md §3 invariants — callers use AppendHistory to
// mutate, never direct slice manipulation.
func (cm *ConversationMemory) History(agentName string) []Message {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return append([]Message(nil), cm.history[agentName]...)
}

// AppendHistory appends msg to agentName's history.
func (cm *ConversationMemory) AppendHistory(agentName string, msg Message) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.history[agentName] = append(cm.history[agentName], msg)
}

// SetContext sets a context key to an arbitrary JSON-serializable value.
func (cm *ConversationMemory) SetContext(key string, value interface{}) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.context[key] = value
}

// GetContext reads a context key.
func (cm *ConversationMemory) GetContext(key string) (interface{}, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	v, ok := cm.context[key]
	return v, ok
}

// GetContextString reads a context key as a string, returning def if
// absent or not a string.
func (cm *ConversationMemory) GetContextString(key, def string) string {
	v, ok := cm.GetContext(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// GetContextBool reads a context key as a bool, returning def if absent.
func (cm *ConversationMemory) GetContextBool(key string, def bool) bool {
	v, ok := cm.GetContext(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// IncrementInterruptCount bumps the monotonic interrupt counter (spec.md
// §3 invariant: "interrupt_count is monotonic") and mirrors it into
// context for persistence.
func (cm *ConversationMemory) IncrementInterruptCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.interruptCount++
	cm.context[CtxInterruptCount] = cm.interruptCount
	return cm.interruptCount
}

// InterruptCount returns the current interrupt counter.
func (cm *ConversationMemory) InterruptCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.interruptCount
}

// SetDtmfValidated performs the single-transition false→true update spec.md
// §3 requires; subsequent calls with true are no-ops, and calls with false
// are rejected once validated (the transition cannot revert).
func (cm *ConversationMemory) SetDtmfValidated(v bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.dtmfValidated && !v {
		return
	}
	cm.dtmfValidated = v
	cm.context[CtxDtmfValidated] = v
}

// DtmfValidated reports the current validation state.
func (cm *ConversationMemory) DtmfValidated() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.dtmfValidated
}

// SetSlot records an extracted entity value.
func (cm *ConversationMemory) SetSlot(key string, value interface{}) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.slots[key] = value
}

// Slot reads an extracted entity value.
func (cm *ConversationMemory) Slot(key string) (interface{}, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	v, ok := cm.slots[key]
	return v, ok
}

// Snapshot renders the current state as a JSON-serializable Snapshot for
// persistence.
func (cm *ConversationMemory) Snapshot() Snapshot {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	snap := Snapshot{
		CallID:  cm.callID,
		History: make(map[string][]Message, len(cm.history)),
		Context: make(map[string]json.RawMessage, len(cm.context)),
		Slots:   make(map[string]json.RawMessage, len(cm.slots)),
	}
	for agent, msgs := range cm.history {
		snap.History[agent] = append([]Message(nil), msgs...)
	}
	for k, v := range cm.context {
		if raw, err := json.Marshal(v); err == nil {
			snap.Context[k] = raw
		}
	}
	for k, v := range cm.slots {
		if raw, err := json.Marshal(v); err == nil {
			snap.Slots[k] = raw
		}
	}
	return snap
}
