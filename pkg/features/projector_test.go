package features

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
)

// stubEmbedder returns a constant vector, or fails on demand.
type stubEmbedder struct {
	dim  int
	fail bool
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.fail {
		return nil, errors.New(errors.EmbeddingUnavailable, "embedder offline")
	}
	vec := make([]float64, s.dim)
	for i := range vec {
		vec[i] = float64(len(text)%7) / 10.0
	}
	return vec, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func toolObservation() *core.Observation {
	return &core.Observation{
		ID:     core.NewObservationID(),
		TaskID: "task-1",
		ToolCall: &core.ToolCall{
			Name: "write_file",
			Args: map[string]interface{}{"path": "pkg/core/task.go", "content": "x"},
		},
		ToolResult: &core.ToolResult{Output: "wrote 10 lines"},
		PlanText:   "write the task type",
		Success:    true,
		DurationMs: 6000,
		DiffSize:   50,
	}
}

func TestProjectDimensionsAreFixed(t *testing.T) {
	p := NewProjector(&stubEmbedder{dim: 16})

	behavior, outcome := p.Project(context.Background(), toolObservation())
	assert.Len(t, behavior.Values, p.BehaviorDim())
	assert.Len(t, outcome.Values, p.OutcomeDim())
	assert.False(t, behavior.Degraded)
	assert.False(t, outcome.Degraded)

	// Plain-response steps project to the same lengths.
	plain := &core.Observation{ID: "x", TaskID: "t", PlanText: "thinking", Success: true}
	b2, o2 := p.Project(context.Background(), plain)
	assert.Len(t, b2.Values, p.BehaviorDim())
	assert.Len(t, o2.Values, p.OutcomeDim())
}

func TestStructuralFeatures(t *testing.T) {
	p := NewProjector(&stubEmbedder{dim: 4})
	behavior, outcome := p.Project(context.Background(), toolObservation())

	// write_file occupies the second vocabulary slot.
	assert.Equal(t, 1.0, behavior.Values[1])
	for i := range core.ToolVocabulary {
		if i != 1 {
			assert.Zero(t, behavior.Values[i])
		}
	}

	// Success flag leads the outcome vector; duration 6000ms normalizes
	// to 0.1, diff 50 to 0.1.
	assert.Equal(t, 1.0, outcome.Values[0])
	assert.InDelta(t, 0.1, outcome.Values[1], 1e-9)
	assert.InDelta(t, 0.1, outcome.Values[2], 1e-9)
}

func TestDegradedFallback(t *testing.T) {
	t.Run("failing embedder", func(t *testing.T) {
		p := NewProjector(&stubEmbedder{dim: 8, fail: true})
		behavior, outcome := p.Project(context.Background(), toolObservation())

		assert.True(t, behavior.Degraded)
		assert.True(t, outcome.Degraded)
		assert.Len(t, behavior.Values, p.BehaviorDim())

		// Embedding tail is all zeros.
		tail := behavior.Values[len(behavior.Values)-8:]
		for _, v := range tail {
			assert.Zero(t, v)
		}
	})

	t.Run("no embedder at all", func(t *testing.T) {
		p := NewProjector(nil)
		behavior, _ := p.Project(context.Background(), toolObservation())
		assert.True(t, behavior.Degraded)
		assert.Len(t, behavior.Values, p.BehaviorDim())
	})
}

func TestPathDepth(t *testing.T) {
	call := &core.ToolCall{Name: "read_file", Args: map[string]interface{}{"path": "a/b/c/d.go"}}
	require.Equal(t, 4, targetPathDepth(call))

	call = &core.ToolCall{Name: "run_command", Args: map[string]interface{}{"command": "go test"}}
	assert.Equal(t, 0, targetPathDepth(call))
}
