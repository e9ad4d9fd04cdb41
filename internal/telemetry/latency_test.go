package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyTool_StartStopReturnsElapsedDuration(t *testing.T) {
	lt := NewLatencyTool()
	lt.Start("ttfb")
	time.Sleep(5 * time.Millisecond)

	d, ok := lt.Stop("ttfb")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
}

func TestLatencyTool_StopWithoutStartReturnsNotOK(t *testing.T) {
	lt := NewLatencyTool()
	d, ok := lt.Stop("never-started")
	assert.False(t, ok)
	assert.Zero(t, d)
}

func TestLatencyTool_StopClearsTheMark(t *testing.T) {
	lt := NewLatencyTool()
	lt.Start("total")
	_, ok := lt.Stop("total")
	assert.True(t, ok)

	_, ok = lt.Stop("total")
	assert.False(t, ok, "second Stop without a new Start should report not-ok")
}

func TestLatencyTool_RestartOverwritesPriorMark(t *testing.T) {
	lt := NewLatencyTool()
	lt.Start("consume")
	time.Sleep(10 * time.Millisecond)
	lt.Start("consume")

	d, ok := lt.Stop("consume")
	assert.True(t, ok)
	assert.Less(t, d, 10*time.Millisecond)
}
