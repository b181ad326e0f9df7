package tools

import (
	"context"

	models "github.com/XiaoConstantine/mcp-go/pkg/model"
)

// ToolFunc is the signature FuncTool wraps.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// FuncTool adapts a plain Go function into a Tool.
type FuncTool struct {
	name        string
	description string
	schema      models.InputSchema
	fn          ToolFunc
}

// NewFuncTool creates a function-backed tool.
func NewFuncTool(name, description string, schema models.InputSchema, fn ToolFunc) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}

func (t *FuncTool) Name() string { return t.name }

func (t *FuncTool) Description() string { return t.description }

func (t *FuncTool) InputSchema() models.InputSchema { return t.schema }

func (t *FuncTool) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	if err := ValidateArgs(t.schema, args); err != nil {
		return "", err
	}
	return t.fn(ctx, args)
}
