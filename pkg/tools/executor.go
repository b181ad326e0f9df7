package tools

import (
	"context"

	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/logging"
)

// Executor implements the orchestrator's tool-execution boundary on top of
// a registry.
type Executor struct {
	registry *Registry
	logger   *logging.Logger
}

// NewExecutor wraps a registry. A nil logger falls back to the process
// logger.
func NewExecutor(registry *Registry, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Executor{registry: registry, logger: logger}
}

// ExecuteTool looks the tool up and runs it. On failure the returned result
// still carries whatever output the tool produced, alongside the error, so
// the failure can be recorded as an observation.
func (e *Executor) ExecuteTool(ctx context.Context, call *core.ToolCall) (*core.ToolResult, error) {
	if call == nil {
		return nil, errors.New(errors.InvalidInput, "nil tool call")
	}

	tool, err := e.registry.Get(call.Name)
	if err != nil {
		return &core.ToolResult{Err: err.Error()}, err
	}

	output, err := tool.Call(ctx, call.Args)
	if err != nil {
		if !errors.HasCode(err, errors.ToolExecutionFailed) && !errors.HasCode(err, errors.InvalidInput) {
			err = errors.WithFields(errors.Wrap(err, errors.ToolExecutionFailed, "tool execution failed"),
				errors.Fields{"tool_name": call.Name})
		}
		e.logger.Warn(ctx, "tool %s failed: %v", call.Name, err)
		return &core.ToolResult{Output: output, Err: err.Error()}, err
	}

	return &core.ToolResult{Output: output}, nil
}
