// Package tools implements the tool-execution boundary: a name-keyed
// registry of callable tools, adapters for plain Go functions and for tools
// discovered from an MCP server, and the executor the orchestrator calls.
package tools

import (
	"context"

	models "github.com/XiaoConstantine/mcp-go/pkg/model"
)

// Tool is one callable capability. Implementations must be safe for
// concurrent use; the executor does not serialize calls.
type Tool interface {
	// Name returns the identifier tool calls are keyed by.
	Name() string

	// Description returns a human-readable explanation, surfaced in the
	// model prompt and the approval UI.
	Description() string

	// InputSchema describes the expected arguments.
	InputSchema() models.InputSchema

	// Call executes the tool. A non-nil error means the tool itself
	// failed; tools report bad input the same way.
	Call(ctx context.Context, args map[string]interface{}) (string, error)
}

// ValidateArgs checks required parameters against a schema. Shared by the
// function and MCP adapters.
func ValidateArgs(schema models.InputSchema, args map[string]interface{}) error {
	for name, param := range schema.Properties {
		if !param.Required {
			continue
		}
		if _, ok := args[name]; !ok {
			return missingParamError(name)
		}
	}
	return nil
}
