package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introspectai/learnloop/pkg/config"
	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/learning"
	"github.com/introspectai/learnloop/pkg/obslog"
)

type scripted struct {
	mu    sync.Mutex
	steps []*core.Step
	errs  []error
	calls int
}

func (s *scripted) GenerateStep(ctx context.Context, conv *core.ConversationContext) (*core.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.steps) {
		return &core.Step{PlanText: "nothing left", Done: true}, nil
	}
	return s.steps[i], nil
}

type execFunc func(ctx context.Context, call *core.ToolCall) (*core.ToolResult, error)

func (f execFunc) ExecuteTool(ctx context.Context, call *core.ToolCall) (*core.ToolResult, error) {
	return f(ctx, call)
}

type approveFunc func(ctx context.Context, call *core.ToolCall) (core.Decision, error)

func (f approveFunc) PresentForApproval(ctx context.Context, call *core.ToolCall) (core.Decision, error) {
	return f(ctx, call)
}

func approveAll(ctx context.Context, call *core.ToolCall) (core.Decision, error) {
	return core.Approve, nil
}

func okExec(ctx context.Context, call *core.ToolCall) (*core.ToolResult, error) {
	return &core.ToolResult{Output: "ok"}, nil
}

type fakeSnapshots struct {
	mu        sync.Mutex
	snapshots int
	reverts   []string
}

func (f *fakeSnapshots) Snapshot(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	return "snap-1", nil
}

func (f *fakeSnapshots) Revert(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverts = append(f.reverts, id)
	return nil
}

func openLog(t *testing.T) *obslog.Log {
	t.Helper()
	log, err := obslog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func newOrch(t *testing.T, deps Deps, mutate func(*config.OrchestratorConfig)) *Orchestrator {
	t.Helper()
	cfg := config.Default().Orchestrator
	cfg.AutoApprove = nil
	cfg.StepTimeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	if deps.Approver == nil {
		deps.Approver = approveFunc(approveAll)
	}
	if deps.Executor == nil {
		deps.Executor = execFunc(okExec)
	}
	if deps.Log == nil {
		deps.Log = openLog(t)
	}
	o, err := New(cfg, deps)
	require.NoError(t, err)
	return o
}

func writeStep(path string) *core.Step {
	return &core.Step{
		PlanText: "write the file",
		ToolCall: &core.ToolCall{Name: "write_file", Args: map[string]interface{}{"path": path, "content": "x"}},
	}
}

func TestRunEndToEnd(t *testing.T) {
	t.Run("Three step task completes and feeds the pipeline", func(t *testing.T) {
		log := openLog(t)
		svc := learning.NewService(config.Default().Learning, nil, nil)
		svc.Start()
		t.Cleanup(svc.Stop)

		gen := &scripted{steps: []*core.Step{
			{PlanText: "first survey the code"},
			writeStep("main.go"),
			{PlanText: "all done", Done: true},
		}}
		o := newOrch(t, Deps{Generator: gen, Log: log, Learning: svc}, nil)

		task, err := o.Run(context.Background(), "add a handler")

		require.NoError(t, err)
		assert.Equal(t, core.TaskCompleted, task.Status)
		assert.Len(t, task.Steps, 3)

		count, err := log.Count(context.Background(), obslog.Filter{TaskID: task.ID})
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, svc.Drain(ctx))
		assert.GreaterOrEqual(t, svc.Stats().BehaviorClusters.Total, 1)
	})

	t.Run("Plain responses loop until the model signals done", func(t *testing.T) {
		gen := &scripted{steps: []*core.Step{
			{PlanText: "thinking"},
			{PlanText: "still thinking"},
			{PlanText: "done", Done: true},
		}}
		o := newOrch(t, Deps{Generator: gen}, nil)

		task, err := o.Run(context.Background(), "do nothing")

		require.NoError(t, err)
		assert.Equal(t, core.TaskCompleted, task.Status)
		assert.Len(t, task.Steps, 3)
	})
}

func TestRunRetryPolicy(t *testing.T) {
	t.Run("Three consecutive failures of one tool fail the task", func(t *testing.T) {
		log := openLog(t)
		gen := &scripted{steps: []*core.Step{
			writeStep("a.go"), writeStep("b.go"), writeStep("c.go"), writeStep("d.go"),
		}}
		failing := execFunc(func(ctx context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			return &core.ToolResult{Err: "disk full"}, errors.New(errors.ToolExecutionFailed, "disk full")
		})
		o := newOrch(t, Deps{Generator: gen, Executor: failing, Log: log}, nil)

		task, err := o.Run(context.Background(), "doomed")

		require.Error(t, err)
		assert.Equal(t, core.TaskFailed, task.Status)
		assert.Len(t, task.Steps, 3)

		all, aerr := log.All(context.Background(), obslog.Filter{TaskID: task.ID})
		require.NoError(t, aerr)
		require.Len(t, all, 3)
		assert.False(t, all[2].Success)
		assert.Equal(t, task.FinalObservationID, all[2].ID)
	})

	t.Run("A success resets the failure streak", func(t *testing.T) {
		gen := &scripted{steps: []*core.Step{
			writeStep("a.go"), writeStep("a.go"), writeStep("a.go"), writeStep("a.go"),
			{PlanText: "done", Done: true},
		}}
		var calls int
		flaky := execFunc(func(ctx context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			calls++
			if calls%2 == 1 {
				return nil, errors.New(errors.ToolExecutionFailed, "transient")
			}
			return &core.ToolResult{Output: "ok"}, nil
		})
		o := newOrch(t, Deps{Generator: gen, Executor: flaky}, func(cfg *config.OrchestratorConfig) {
			cfg.LoopWindow = 10
		})

		task, err := o.Run(context.Background(), "flaky tool")

		require.NoError(t, err)
		assert.Equal(t, core.TaskCompleted, task.Status)
	})

	t.Run("Unknown tool fails immediately without retries", func(t *testing.T) {
		gen := &scripted{steps: []*core.Step{
			{PlanText: "use a tool that does not exist", ToolCall: &core.ToolCall{Name: "teleport"}},
		}}
		unknown := execFunc(func(ctx context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			return nil, errors.New(errors.UnknownTool, "tool not found")
		})
		o := newOrch(t, Deps{Generator: gen, Executor: unknown}, nil)

		task, err := o.Run(context.Background(), "bad tool")

		require.Error(t, err)
		assert.Equal(t, core.TaskFailed, task.Status)
		assert.Len(t, task.Steps, 1)
	})

	t.Run("Repeated provider failures fail the task", func(t *testing.T) {
		boom := errors.New(errors.ProviderFailed, "upstream 500")
		gen := &scripted{errs: []error{boom, boom, boom}}
		o := newOrch(t, Deps{Generator: gen}, nil)

		task, err := o.Run(context.Background(), "no provider")

		require.Error(t, err)
		assert.Equal(t, core.TaskFailed, task.Status)
		assert.Len(t, task.Steps, 3)
	})
}

func TestRunCircuitBreaker(t *testing.T) {
	t.Run("Fires at exactly the window, not before", func(t *testing.T) {
		steps := make([]*core.Step, 0, 8)
		for i := 0; i < 8; i++ {
			steps = append(steps, writeStep("same.go"))
		}
		gen := &scripted{steps: steps}
		o := newOrch(t, Deps{Generator: gen}, nil)

		task, err := o.Run(context.Background(), "loop forever")

		require.Error(t, err)
		assert.Equal(t, core.TaskFailed, task.Status)
		assert.Equal(t, "repeated action loop", task.FailReason)
		assert.Len(t, task.Steps, 4)
	})

	t.Run("Differing arguments do not trip it", func(t *testing.T) {
		gen := &scripted{steps: []*core.Step{
			writeStep("a.go"), writeStep("b.go"), writeStep("c.go"), writeStep("d.go"),
			{PlanText: "done", Done: true},
		}}
		o := newOrch(t, Deps{Generator: gen}, nil)

		task, err := o.Run(context.Background(), "varied writes")

		require.NoError(t, err)
		assert.Equal(t, core.TaskCompleted, task.Status)
	})

	t.Run("A plain response breaks the run of fingerprints", func(t *testing.T) {
		gen := &scripted{steps: []*core.Step{
			writeStep("same.go"), writeStep("same.go"), writeStep("same.go"),
			{PlanText: "pausing to reconsider"},
			writeStep("same.go"),
			{PlanText: "done", Done: true},
		}}
		o := newOrch(t, Deps{Generator: gen}, nil)

		task, err := o.Run(context.Background(), "almost a loop")

		require.NoError(t, err)
		assert.Equal(t, core.TaskCompleted, task.Status)
	})
}

func TestRunApproval(t *testing.T) {
	t.Run("Rejection records a failed observation and continues", func(t *testing.T) {
		log := openLog(t)
		gen := &scripted{steps: []*core.Step{
			writeStep("main.go"),
			{PlanText: "understood, stopping", Done: true},
		}}
		reject := approveFunc(func(ctx context.Context, call *core.ToolCall) (core.Decision, error) {
			return core.Reject, nil
		})
		o := newOrch(t, Deps{Generator: gen, Approver: reject, Log: log}, nil)

		task, err := o.Run(context.Background(), "rejected work")

		require.NoError(t, err)
		assert.Equal(t, core.TaskCompleted, task.Status)

		all, aerr := log.All(context.Background(), obslog.Filter{TaskID: task.ID})
		require.NoError(t, aerr)
		require.Len(t, all, 2)
		assert.False(t, all[0].Success)
		require.NotNil(t, all[0].ToolResult)
		assert.True(t, all[0].ToolResult.Rejected)
	})

	t.Run("Cancel during approval terminates without an observation", func(t *testing.T) {
		log := openLog(t)
		gen := &scripted{steps: []*core.Step{writeStep("main.go")}}
		blocking := approveFunc(func(ctx context.Context, call *core.ToolCall) (core.Decision, error) {
			<-ctx.Done()
			return core.Cancel, ctx.Err()
		})
		o := newOrch(t, Deps{Generator: gen, Approver: blocking, Log: log}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		task, err := o.Run(ctx, "cancelled work")

		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.Canceled))
		assert.Equal(t, core.TaskCancelled, task.Status)
		assert.Empty(t, task.Steps)
	})

	t.Run("Explicit cancel decision terminates the task", func(t *testing.T) {
		gen := &scripted{steps: []*core.Step{writeStep("main.go")}}
		cancelNow := approveFunc(func(ctx context.Context, call *core.ToolCall) (core.Decision, error) {
			return core.Cancel, nil
		})
		o := newOrch(t, Deps{Generator: gen, Approver: cancelNow}, nil)

		task, err := o.Run(context.Background(), "user bails")

		require.Error(t, err)
		assert.Equal(t, core.TaskCancelled, task.Status)
	})

	t.Run("Auto approved tools skip the gate", func(t *testing.T) {
		gen := &scripted{steps: []*core.Step{
			{PlanText: "look around", ToolCall: &core.ToolCall{Name: "list_dir", Args: map[string]interface{}{"path": "."}}},
			{PlanText: "done", Done: true},
		}}
		neverAsk := approveFunc(func(ctx context.Context, call *core.ToolCall) (core.Decision, error) {
			t.Error("approver should not be consulted for auto-approved tools")
			return core.Reject, nil
		})
		o := newOrch(t, Deps{Generator: gen, Approver: neverAsk}, func(cfg *config.OrchestratorConfig) {
			cfg.AutoApprove = []string{"list_dir"}
		})

		task, err := o.Run(context.Background(), "browse")

		require.NoError(t, err)
		assert.Equal(t, core.TaskCompleted, task.Status)
	})
}

func TestRunSnapshots(t *testing.T) {
	t.Run("Write class tools snapshot first and revert on failure", func(t *testing.T) {
		snaps := &fakeSnapshots{}
		gen := &scripted{steps: []*core.Step{
			writeStep("a.go"),
			{PlanText: "done", Done: true},
		}}
		failOnce := execFunc(func(ctx context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			return nil, errors.New(errors.ToolExecutionFailed, "conflict")
		})
		o := newOrch(t, Deps{Generator: gen, Executor: failOnce, Snapshots: snaps}, func(cfg *config.OrchestratorConfig) {
			cfg.MaxToolRetries = 1
		})

		task, _ := o.Run(context.Background(), "revert me")

		assert.Equal(t, core.TaskFailed, task.Status)
		assert.Equal(t, 1, snaps.snapshots)
		assert.Equal(t, []string{"snap-1"}, snaps.reverts)
	})

	t.Run("Read class tools take no snapshot", func(t *testing.T) {
		snaps := &fakeSnapshots{}
		gen := &scripted{steps: []*core.Step{
			{PlanText: "read", ToolCall: &core.ToolCall{Name: "read_file", Args: map[string]interface{}{"path": "a.go"}}},
			{PlanText: "done", Done: true},
		}}
		o := newOrch(t, Deps{Generator: gen, Snapshots: snaps}, nil)

		task, err := o.Run(context.Background(), "just read")

		require.NoError(t, err)
		assert.Equal(t, core.TaskCompleted, task.Status)
		assert.Zero(t, snaps.snapshots)
	})
}

func TestRunBounds(t *testing.T) {
	t.Run("Step budget exhaustion fails the task", func(t *testing.T) {
		endless := stepGenFunc(func(ctx context.Context, conv *core.ConversationContext) (*core.Step, error) {
			return &core.Step{PlanText: "still going"}, nil
		})
		o := newOrch(t, Deps{Generator: endless}, func(cfg *config.OrchestratorConfig) {
			cfg.MaxSteps = 5
		})

		task, err := o.Run(context.Background(), "never ends")

		require.Error(t, err)
		assert.Equal(t, core.TaskFailed, task.Status)
		assert.Equal(t, "step budget exhausted", task.FailReason)
		assert.Len(t, task.Steps, 5)
	})

	t.Run("Storage failure fails the task", func(t *testing.T) {
		log, err := obslog.Open(":memory:")
		require.NoError(t, err)
		require.NoError(t, log.Close())

		gen := &scripted{steps: []*core.Step{{PlanText: "anything"}}}
		o := newOrch(t, Deps{Generator: gen, Log: log}, nil)

		task, rerr := o.Run(context.Background(), "no storage")

		require.Error(t, rerr)
		assert.Equal(t, core.TaskFailed, task.Status)
	})
}

type stepGenFunc func(ctx context.Context, conv *core.ConversationContext) (*core.Step, error)

func (f stepGenFunc) GenerateStep(ctx context.Context, conv *core.ConversationContext) (*core.Step, error) {
	return f(ctx, conv)
}
