package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolCallFingerprint(t *testing.T) {
	t.Run("argument order does not matter", func(t *testing.T) {
		a := &ToolCall{Name: "write_file", Args: map[string]interface{}{"path": "a.go", "content": "x"}}
		b := &ToolCall{Name: "write_file", Args: map[string]interface{}{"content": "x", "path": "a.go"}}
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("different args differ", func(t *testing.T) {
		a := &ToolCall{Name: "read_file", Args: map[string]interface{}{"path": "a.go"}}
		b := &ToolCall{Name: "read_file", Args: map[string]interface{}{"path": "b.go"}}
		assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("nil call is empty", func(t *testing.T) {
		var c *ToolCall
		assert.Empty(t, c.Fingerprint())
	})
}

func TestTaskStatusTerminal(t *testing.T) {
	assert.False(t, TaskRunning.Terminal())
	assert.False(t, TaskWaitingApproval.Terminal())
	assert.True(t, TaskCompleted.Terminal())
	assert.True(t, TaskCancelled.Terminal())
	assert.True(t, TaskFailed.Terminal())
}

func TestEuclideanDistance(t *testing.T) {
	assert.InDelta(t, 5.0, EuclideanDistance([]float64{0, 0}, []float64{3, 4}), 1e-9)
	assert.Zero(t, EuclideanDistance([]float64{1, 2}, []float64{1, 2}))
	assert.True(t, math.IsInf(EuclideanDistance([]float64{1}, []float64{1, 2}), 1))
}
