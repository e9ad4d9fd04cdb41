package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationMemory_HistoryAppendOnly(t *testing.T) {
	cm := New("call-1")
	cm.AppendHistory("main", Message{Role: RoleUser, Content: "hello"})
	cm.AppendHistory("main", Message{Role: RoleAssistant, Content: "hi there"})

	history := cm.History("main")
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "hi there", history[1].Content)

	// Returned slice is a copy — mutating it must not affect stored state.
	history[0].Content = "mutated"
	assert.Equal(t, "hello", cm.History("main")[0].Content)
}

func TestConversationMemory_InterruptCountMonotonic(t *testing.T) {
	cm := New("call-1")
	assert.Equal(t, 0, cm.InterruptCount())
	assert.Equal(t, 1, cm.IncrementInterruptCount())
	assert.Equal(t, 2, cm.IncrementInterruptCount())
	assert.Equal(t, 2, cm.InterruptCount())
}

func TestConversationMemory_DtmfValidatedSingleTransition(t *testing.T) {
	cm := New("call-1")
	assert.False(t, cm.DtmfValidated())

	cm.SetDtmfValidated(true)
	assert.True(t, cm.DtmfValidated())

	// Once true, cannot revert to false.
	cm.SetDtmfValidated(false)
	assert.True(t, cm.DtmfValidated())
}

func TestConversationMemory_SnapshotRoundTrip(t *testing.T) {
	cm := New("call-42")
	cm.AppendHistory("main", Message{Role: RoleUser, Content: "hello"})
	cm.SetContext(CtxActiveAgent, "main")
	cm.SetContext(CtxInterruptCount, 3)
	cm.SetSlot("caller_name", "Alex")

	snap := cm.Snapshot()
	assert.Equal(t, "call-42", snap.CallID)

	restored := FromSnapshot(snap)
	assert.Equal(t, "call-42", restored.CallID())
	assert.Equal(t, "main", restored.GetContextString(CtxActiveAgent, ""))
	require.Len(t, restored.History("main"), 1)

	slot, ok := restored.Slot("caller_name")
	require.True(t, ok)
	assert.Equal(t, "Alex", slot)
}

func TestConversationMemory_ContextDefaults(t *testing.T) {
	cm := New("call-1")
	assert.Equal(t, "chat", cm.GetContextString(CtxVoiceStyle, "chat"))
	assert.False(t, cm.GetContextBool(CtxBotSpeaking, false))

	cm.SetContext(CtxBotSpeaking, true)
	assert.True(t, cm.GetContextBool(CtxBotSpeaking, false))
}
