package learning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introspectai/learnloop/pkg/config"
	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/obslog"
)

type stubEmbedder struct {
	dim int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, s.dim)
	for i, r := range text {
		vec[i%s.dim] += float64(r%7) / 10
	}
	return vec, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func testService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default().Learning
	svc := NewService(cfg, &stubEmbedder{dim: 4}, nil)
	t.Cleanup(svc.Stop)
	return svc
}

func writeObs(task string, step int, success bool) *core.Observation {
	return &core.Observation{
		ID:        core.NewObservationID(),
		TaskID:    task,
		Timestamp: time.Now(),
		StepIndex: step,
		PlanText:  "update the handler",
		ToolCall:  &core.ToolCall{Name: "write_file", Args: map[string]interface{}{"path": "main.go"}},
		ToolResult: &core.ToolResult{
			Output: "wrote 120 bytes",
		},
		Success:    success,
		DurationMs: 40,
		DiffSize:   120,
	}
}

func TestServiceIngestion(t *testing.T) {
	t.Run("Enqueued observations reach the clusterers", func(t *testing.T) {
		svc := testService(t)
		svc.Start()

		svc.Enqueue(writeObs("task-1", 0, true))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, svc.Drain(ctx))

		stats := svc.Stats()
		assert.Equal(t, int64(1), stats.ObservationsProcessed)
		assert.GreaterOrEqual(t, stats.BehaviorClusters.Total, 1)
		assert.GreaterOrEqual(t, stats.OutcomeClusters.Total, 1)
		assert.GreaterOrEqual(t, stats.CorrelationPairs, 1)
	})

	t.Run("Matching observations feed the strategy scorer", func(t *testing.T) {
		svc := testService(t)
		svc.Start()

		// read then write on the same path, repeatedly, so the
		// read-before-edit rule fires.
		for i := 0; i < 12; i++ {
			task := fmt.Sprintf("task-%d", i)
			read := &core.Observation{
				ID:        core.NewObservationID(),
				TaskID:    task,
				StepIndex: 0,
				ToolCall:  &core.ToolCall{Name: "read_file", Args: map[string]interface{}{"path": "main.go"}},
				Success:   true,
			}
			svc.Enqueue(read)
			svc.Enqueue(writeObs(task, 1, true))
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, svc.Drain(ctx))

		stats := svc.Stats()
		assert.GreaterOrEqual(t, stats.StrategiesSeen, 1)
	})

	t.Run("Queue overflow drops instead of blocking", func(t *testing.T) {
		cfg := config.Default().Learning
		cfg.QueueSize = 1
		svc := NewService(cfg, &stubEmbedder{dim: 4}, nil)
		// Not started, so the queue never drains.
		svc.Enqueue(writeObs("task-1", 0, true))
		svc.Enqueue(writeObs("task-1", 1, true))
		svc.Enqueue(writeObs("task-1", 2, true))

		assert.Equal(t, int64(2), svc.Stats().ObservationsDropped)
	})

	t.Run("Stop drains what is already queued", func(t *testing.T) {
		svc := NewService(config.Default().Learning, &stubEmbedder{dim: 4}, nil)
		svc.Start()
		for i := 0; i < 5; i++ {
			svc.Enqueue(writeObs("task-1", i, true))
		}

		svc.Stop()

		assert.Equal(t, int64(5), svc.Stats().ObservationsProcessed)
	})
}

func TestServiceHints(t *testing.T) {
	t.Run("No hints before enough samples", func(t *testing.T) {
		svc := testService(t)
		assert.Empty(t, svc.Hints())
	})

	t.Run("Scored strategies surface as hints", func(t *testing.T) {
		cfg := config.Default().Learning
		cfg.Strategy.MinSamples = 2
		svc := NewService(cfg, &stubEmbedder{dim: 4}, nil)
		t.Cleanup(svc.Stop)
		svc.Start()

		for i := 0; i < 6; i++ {
			task := fmt.Sprintf("task-%d", i)
			read := &core.Observation{
				ID:        core.NewObservationID(),
				TaskID:    task,
				StepIndex: 0,
				ToolCall:  &core.ToolCall{Name: "read_file", Args: map[string]interface{}{"path": "main.go"}},
				Success:   true,
			}
			svc.Enqueue(read)
			svc.Enqueue(writeObs(task, 1, true))
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, svc.Drain(ctx))

		hints := svc.Hints()
		require.NotEmpty(t, hints)
		for _, h := range hints {
			assert.LessOrEqual(t, h.Score, 1.0)
			assert.GreaterOrEqual(t, h.Score, -1.0)
		}
	})
}

func TestServiceWarmStart(t *testing.T) {
	t.Run("Replays a persisted log", func(t *testing.T) {
		log, err := obslog.Open(":memory:")
		require.NoError(t, err)
		defer log.Close()

		ctx := context.Background()
		for i := 0; i < 4; i++ {
			require.NoError(t, log.Append(ctx, writeObs("task-1", i, true)))
		}

		svc := testService(t)
		replayed, err := svc.WarmStart(ctx, log)

		require.NoError(t, err)
		assert.Equal(t, 4, replayed)
		stats := svc.Stats()
		assert.Equal(t, int64(4), stats.ObservationsProcessed)
		assert.GreaterOrEqual(t, stats.BehaviorClusters.Total, 1)
	})
}

func TestServiceForgetTask(t *testing.T) {
	svc := testService(t)
	svc.ingest(writeObs("task-1", 0, true))
	svc.mu.Lock()
	assert.Len(t, svc.windows, 1)
	svc.mu.Unlock()

	svc.ForgetTask("task-1")

	svc.mu.Lock()
	assert.Empty(t, svc.windows)
	svc.mu.Unlock()
}
