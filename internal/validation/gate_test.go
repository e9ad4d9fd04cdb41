package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/voicecore/internal/commons"
)

func TestGate_DisabledOpensImmediately(t *testing.T) {
	g := New(commons.NewNopLogger(), "call-1", false)
	assert.True(t, g.IsOpen())
	assert.Equal(t, Open, g.State())
}

func TestGate_OpensOnValidationComplete(t *testing.T) {
	g := New(commons.NewNopLogger(), "call-1", true)
	assert.False(t, g.IsOpen())

	opened := false
	g.OnOpen(func() { opened = true })

	validationComplete := make(chan struct{})
	g.ArmOnMetadata(context.Background(), validationComplete)
	assert.Equal(t, WarmedUp, g.State())

	close(validationComplete)

	require.Eventually(t, func() bool { return g.IsOpen() }, time.Second, time.Millisecond)
	assert.True(t, opened)
	assert.Equal(t, Open, g.State())
}

func TestGate_OnOpenFiresImmediatelyIfAlreadyOpen(t *testing.T) {
	g := New(commons.NewNopLogger(), "call-1", false)
	called := false
	g.OnOpen(func() { called = true })
	assert.True(t, called)
}

func TestGate_TerminalOnceOpen(t *testing.T) {
	g := New(commons.NewNopLogger(), "call-1", true)
	validationComplete := make(chan struct{})
	g.ArmOnMetadata(context.Background(), validationComplete)
	close(validationComplete)
	require.Eventually(t, func() bool { return g.IsOpen() }, time.Second, time.Millisecond)

	// A second arm attempt must not reset state or panic on re-close.
	g.ArmOnMetadata(context.Background(), make(chan struct{}))
	assert.Equal(t, Open, g.State())
}
