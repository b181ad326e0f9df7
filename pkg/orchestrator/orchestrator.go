// Package orchestrator runs the visible control loop of a task: ask the
// model for a step, gate tool calls through human approval, execute, record
// an observation, repeat. Learning happens elsewhere; the loop only feeds
// it.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/introspectai/learnloop/pkg/config"
	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/logging"
	"github.com/introspectai/learnloop/pkg/obslog"
)

// maxResultInHistory truncates tool output before it enters the
// conversation history.
const maxResultInHistory = 2000

// generateKey tracks provider failures in the same consecutive-failure
// counter as tool failures. The colon keeps it out of the tool namespace.
const generateKey = "generate:step"

// LearningSink is the asynchronous side of the loop. Enqueue must never
// block; Hints must be cheap.
type LearningSink interface {
	Enqueue(obs *core.Observation)
	Hints() []core.StrategyHint
	ForgetTask(taskID string)
}

// Deps are the capabilities one orchestrator instance is wired with.
// Generator, Executor, Approver and Log are required; Snapshots and
// Learning may be nil.
type Deps struct {
	Generator core.StepGenerator
	Executor  core.ToolExecutor
	Approver  core.Approver
	Snapshots core.SnapshotStore
	Log       *obslog.Log
	Learning  LearningSink
	Logger    *logging.Logger
}

// Orchestrator drives one task at a time per Run call. Instances hold no
// per-task state, so one orchestrator may serve concurrent Runs.
type Orchestrator struct {
	cfg  config.OrchestratorConfig
	deps Deps

	// WorkspaceSummary is injected into every prompt. Set once before Run.
	WorkspaceSummary string
}

// New creates an orchestrator. Missing required dependencies are a
// programming error and fail fast.
func New(cfg config.OrchestratorConfig, deps Deps) (*Orchestrator, error) {
	if deps.Generator == nil || deps.Executor == nil || deps.Approver == nil || deps.Log == nil {
		return nil, errors.New(errors.InvalidInput, "orchestrator requires generator, executor, approver and log")
	}
	if deps.Logger == nil {
		deps.Logger = logging.GetLogger()
	}
	if cfg.MaxToolRetries <= 0 {
		cfg.MaxToolRetries = 3
	}
	if cfg.LoopWindow <= 0 {
		cfg.LoopWindow = 4
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 30
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 2 * time.Minute
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// run is the per-task mutable state behind one Run call.
type run struct {
	o    *Orchestrator
	task *core.Task
	ctx  context.Context

	history      []core.Message
	stepIndex    int
	fingerprints []string

	// consecutive failure count, keyed by tool name (or generateKey)
	failStreak map[string]int
}

// Run drives the goal to a terminal status. The returned task is always
// non-nil with a terminal status; the error reports why a task failed or
// was cancelled, and is nil for Completed.
func (o *Orchestrator) Run(ctx context.Context, goal string) (*core.Task, error) {
	task := core.NewTask(goal)
	ctx = logging.WithTaskID(ctx, task.ID)
	o.deps.Logger.Info(ctx, "task started: %s", goal)

	r := &run{
		o:          o,
		task:       task,
		ctx:        ctx,
		failStreak: make(map[string]int),
	}
	err := r.loop()
	if o.deps.Learning != nil {
		o.deps.Learning.ForgetTask(task.ID)
	}
	o.deps.Logger.Info(ctx, "task finished: status=%s steps=%d", task.Status, len(task.Steps))
	return task, err
}

func (r *run) loop() error {
	for r.stepIndex < r.o.cfg.MaxSteps {
		if r.ctx.Err() != nil {
			return r.cancelled()
		}

		step, err := r.generateStep()
		if err != nil {
			if r.ctx.Err() != nil {
				return r.cancelled()
			}
			if ferr := r.recordFailure(nil, "", err); ferr != nil {
				return ferr
			}
			if r.failStreak[generateKey] >= r.o.cfg.MaxToolRetries {
				return r.failed("step generation failed repeatedly", err)
			}
			continue
		}
		r.failStreak[generateKey] = 0

		if step.ToolCall == nil {
			if err := r.recordPlain(step); err != nil {
				return err
			}
			if step.Done {
				r.task.Status = core.TaskCompleted
				return nil
			}
			continue
		}

		decision, err := r.approve(step.ToolCall)
		if err != nil || decision == core.Cancel {
			return r.cancelled()
		}
		if decision == core.Reject {
			if err := r.recordRejection(step); err != nil {
				return err
			}
			continue
		}

		if err := r.executeStep(step); err != nil {
			return err
		}
	}
	return r.failed("step budget exhausted", nil)
}

// generateStep asks the completion capability for the next step under the
// step deadline.
func (r *run) generateStep() (*core.Step, error) {
	r.task.Status = core.TaskRunning

	conv := &core.ConversationContext{
		TaskID:           r.task.ID,
		Goal:             r.task.Goal,
		History:          r.history,
		WorkspaceSummary: r.o.WorkspaceSummary,
	}
	if r.o.deps.Learning != nil {
		conv.Hints = r.o.deps.Learning.Hints()
	}

	stepCtx, cancel := context.WithTimeout(r.ctx, r.o.cfg.StepTimeout)
	defer cancel()
	start := time.Now()
	step, err := r.o.deps.Generator.GenerateStep(stepCtx, conv)
	if err != nil {
		r.o.deps.Logger.Warn(r.ctx, "step generation failed after %s: %v", time.Since(start), err)
		return nil, err
	}
	return step, nil
}

// approve runs the human gate. Tools on the auto-approve list skip it.
// A context cancellation while waiting is a Cancel decision.
func (r *run) approve(call *core.ToolCall) (core.Decision, error) {
	for _, name := range r.o.cfg.AutoApprove {
		if name == call.Name {
			return core.Approve, nil
		}
	}

	r.task.Status = core.TaskWaitingApproval
	decision, err := r.o.deps.Approver.PresentForApproval(r.ctx, call)
	if err != nil {
		if r.ctx.Err() != nil {
			return core.Cancel, nil
		}
		return core.Cancel, err
	}
	return decision, nil
}

// executeStep runs an approved tool call and records the outcome. The tool
// runs in its own goroutine so a cancel during execution discards the
// result instead of waiting on it.
func (r *run) executeStep(step *core.Step) error {
	call := step.ToolCall
	r.task.Status = core.TaskRunning

	snapshotID := r.maybeSnapshot(call)

	execCtx, cancel := context.WithTimeout(r.ctx, r.o.cfg.StepTimeout)
	defer cancel()

	type outcome struct {
		result *core.ToolResult
		err    error
	}
	ch := make(chan outcome, 1)
	start := time.Now()
	go func() {
		result, err := r.o.deps.Executor.ExecuteTool(execCtx, call)
		ch <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case <-r.ctx.Done():
		return r.cancelled()
	case out = <-ch:
	}
	duration := time.Since(start)

	if out.err != nil {
		r.maybeRevert(call, snapshotID)
		if ferr := r.recordToolResult(step, out.result, duration, out.err); ferr != nil {
			return ferr
		}
		if errors.HasCode(out.err, errors.UnknownTool) {
			return r.failed("unknown tool requested", out.err)
		}
		if r.failStreak[call.Name] >= r.o.cfg.MaxToolRetries {
			return r.failed(fmt.Sprintf("tool %s failed %d times in a row", call.Name, r.failStreak[call.Name]), out.err)
		}
		return nil
	}

	return r.recordToolResult(step, out.result, duration, nil)
}

// maybeSnapshot takes a workspace snapshot before write-class tools.
// Snapshot failures are reported, never fatal.
func (r *run) maybeSnapshot(call *core.ToolCall) string {
	if r.o.deps.Snapshots == nil || !core.IsWriteClass(call.Name) {
		return ""
	}
	id, err := r.o.deps.Snapshots.Snapshot(r.ctx)
	if err != nil {
		r.o.deps.Logger.Warn(r.ctx, "snapshot before %s failed: %v", call.Name, err)
		return ""
	}
	return id
}

// maybeRevert rolls the workspace back after a failed write-class tool.
func (r *run) maybeRevert(call *core.ToolCall, snapshotID string) bool {
	if snapshotID == "" {
		return false
	}
	if err := r.o.deps.Snapshots.Revert(r.ctx, snapshotID); err != nil {
		r.o.deps.Logger.Warn(r.ctx, "revert after failed %s did not apply: %v", call.Name, err)
		return false
	}
	return true
}

// record persists one observation and feeds the learning queue. A storage
// failure is the one error that fails the task from inside recording.
func (r *run) record(obs *core.Observation) error {
	if err := r.o.deps.Log.Append(r.ctx, obs); err != nil {
		r.failed("observation could not be persisted", err)
		return err
	}
	r.task.Steps = append(r.task.Steps, obs.ID)
	r.task.FinalObservationID = obs.ID
	r.stepIndex++

	if r.o.deps.Learning != nil {
		r.o.deps.Learning.Enqueue(obs)
	}

	return r.checkLoop(obs)
}

// checkLoop fires the circuit breaker once the last LoopWindow observations
// carry identical tool-call fingerprints.
func (r *run) checkLoop(obs *core.Observation) error {
	fp := obs.ToolCall.Fingerprint()
	r.fingerprints = append(r.fingerprints, fp)
	if len(r.fingerprints) > r.o.cfg.LoopWindow {
		r.fingerprints = r.fingerprints[1:]
	}
	if fp == "" || len(r.fingerprints) < r.o.cfg.LoopWindow {
		return nil
	}
	for _, prev := range r.fingerprints {
		if prev != fp {
			return nil
		}
	}
	return r.failed("repeated action loop", nil)
}

func (r *run) newObservation(step *core.Step) *core.Observation {
	obs := &core.Observation{
		ID:        core.NewObservationID(),
		TaskID:    r.task.ID,
		Timestamp: time.Now(),
		StepIndex: r.stepIndex,
	}
	if step != nil {
		obs.PlanText = step.PlanText
		obs.ToolCall = step.ToolCall
	}
	return obs
}

func (r *run) recordPlain(step *core.Step) error {
	obs := r.newObservation(step)
	obs.Success = true
	if step.PlanText != "" {
		r.history = append(r.history, core.Message{Role: "assistant", Content: step.PlanText})
	}
	return r.record(obs)
}

func (r *run) recordRejection(step *core.Step) error {
	obs := r.newObservation(step)
	obs.Success = false
	obs.ToolResult = &core.ToolResult{Rejected: true}

	r.history = append(r.history,
		core.Message{Role: "assistant", Content: r.describeStep(step)},
		core.Message{Role: "tool", Content: fmt.Sprintf("tool call %s was rejected by the user", step.ToolCall.Name)},
	)
	return r.record(obs)
}

// recordFailure covers failed step generation: no tool call, the error in
// the result.
func (r *run) recordFailure(step *core.Step, output string, cause error) error {
	obs := r.newObservation(step)
	obs.Success = false
	obs.ToolResult = &core.ToolResult{Output: output, Err: cause.Error()}
	r.failStreak[generateKey]++
	return r.record(obs)
}

func (r *run) recordToolResult(step *core.Step, result *core.ToolResult, duration time.Duration, cause error) error {
	obs := r.newObservation(step)
	obs.DurationMs = duration.Milliseconds()
	obs.ToolResult = result
	obs.Success = cause == nil
	if result != nil && core.IsWriteClass(step.ToolCall.Name) {
		obs.DiffSize = len(result.Output)
	}

	name := step.ToolCall.Name
	if cause == nil {
		r.failStreak[name] = 0
	} else {
		r.failStreak[name]++
	}

	var resultText string
	switch {
	case cause != nil:
		resultText = fmt.Sprintf("tool %s failed: %v", name, cause)
	case result != nil:
		resultText = truncate(result.Output, maxResultInHistory)
	}
	r.history = append(r.history,
		core.Message{Role: "assistant", Content: r.describeStep(step)},
		core.Message{Role: "tool", Content: resultText},
	)
	return r.record(obs)
}

func (r *run) describeStep(step *core.Step) string {
	callJSON, err := json.Marshal(step.ToolCall)
	if err != nil {
		callJSON = []byte(step.ToolCall.Name)
	}
	if step.PlanText == "" {
		return string(callJSON)
	}
	return step.PlanText + "\n" + string(callJSON)
}

func (r *run) failed(reason string, cause error) error {
	if r.task.Status.Terminal() {
		return nil
	}
	r.task.Status = core.TaskFailed
	r.task.FailReason = reason
	r.o.deps.Logger.Warn(r.ctx, "task failed: %s", reason)
	if cause != nil {
		return errors.Wrap(cause, errors.Unknown, reason)
	}
	return errors.New(errors.Unknown, reason)
}

func (r *run) cancelled() error {
	if r.task.Status.Terminal() {
		return nil
	}
	r.task.Status = core.TaskCancelled
	r.o.deps.Logger.Info(r.ctx, "task cancelled")
	return errors.New(errors.Canceled, "task cancelled")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}
