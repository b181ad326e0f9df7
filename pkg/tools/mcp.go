package tools

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/XiaoConstantine/mcp-go/pkg/client"
	mcplogging "github.com/XiaoConstantine/mcp-go/pkg/logging"
	models "github.com/XiaoConstantine/mcp-go/pkg/model"
	"github.com/XiaoConstantine/mcp-go/pkg/transport"

	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/logging"
)

// NewStdioMCPClient connects to an MCP server over standard I/O, typically
// a subprocess's pipes, and completes the protocol handshake.
func NewStdioMCPClient(reader io.Reader, writer io.Writer, name, version string) (*client.Client, error) {
	mcpLogger := mcplogging.NewStdLogger(mcplogging.InfoLevel)
	t := transport.NewStdioTransport(reader, writer, mcpLogger)

	mcpClient := client.NewClient(t,
		client.WithLogger(mcpLogger),
		client.WithClientInfo(name, version),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := mcpClient.Initialize(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ToolExecutionFailed, "MCP handshake failed")
	}
	return mcpClient, nil
}

// MCPTool delegates execution to a tool hosted on an MCP server.
type MCPTool struct {
	name        string
	description string
	schema      models.InputSchema
	client      *client.Client
	remoteName  string
}

// NewMCPTool creates an MCP-backed tool. remoteName is the server-side
// identifier, which may differ from the locally registered name.
func NewMCPTool(name, description string, schema models.InputSchema,
	mcpClient *client.Client, remoteName string) *MCPTool {
	return &MCPTool{
		name:        name,
		description: description,
		schema:      schema,
		client:      mcpClient,
		remoteName:  remoteName,
	}
}

func (t *MCPTool) Name() string { return t.name }

func (t *MCPTool) Description() string { return t.description }

func (t *MCPTool) InputSchema() models.InputSchema { return t.schema }

func (t *MCPTool) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	if err := ValidateArgs(t.schema, args); err != nil {
		return "", err
	}
	result, err := t.client.CallTool(ctx, t.remoteName, convertMCPArgs(ctx, t.schema, args))
	if err != nil {
		return "", errors.WithFields(errors.Wrap(err, errors.ToolExecutionFailed, "MCP call failed"),
			errors.Fields{"tool_name": t.name})
	}
	text := extractContentText(result.Content)
	if result.IsError {
		return text, errors.WithFields(errors.New(errors.ToolExecutionFailed, "MCP tool reported an error"),
			errors.Fields{"tool_name": t.name})
	}
	return text, nil
}

// RegisterMCPTools discovers every tool the server advertises and registers
// an adapter for each.
func RegisterMCPTools(ctx context.Context, registry *Registry, mcpClient *client.Client) error {
	resp, err := mcpClient.ListTools(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ToolExecutionFailed, "failed to list MCP tools")
	}
	for _, tool := range resp.Tools {
		adapter := NewMCPTool(tool.Name, tool.Description, tool.InputSchema, mcpClient, tool.Name)
		if err := registry.Register(adapter); err != nil {
			return err
		}
	}
	return nil
}

func extractContentText(content []models.Content) string {
	var out strings.Builder
	for _, item := range content {
		if text, ok := item.(models.TextContent); ok {
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			out.WriteString(text.Text)
		}
	}
	return out.String()
}

// convertMCPArgs coerces string values toward the schema's declared types.
// Models frequently emit numbers as strings; a strict server would reject
// them otherwise.
func convertMCPArgs(ctx context.Context, schema models.InputSchema, args map[string]interface{}) map[string]interface{} {
	logger := logging.GetLogger()
	converted := make(map[string]interface{}, len(args))

	for key, value := range args {
		converted[key] = value

		prop, ok := schema.Properties[key]
		if !ok {
			continue
		}
		str, isString := value.(string)
		if !isString {
			continue
		}

		switch strings.ToLower(prop.Type) {
		case "integer":
			if n, err := strconv.ParseInt(str, 10, 64); err == nil {
				converted[key] = n
			} else {
				logger.Warn(ctx, "could not convert parameter %q value %q to integer", key, str)
			}
		case "number":
			if f, err := strconv.ParseFloat(str, 64); err == nil {
				converted[key] = f
			} else {
				logger.Warn(ctx, "could not convert parameter %q value %q to number", key, str)
			}
		case "boolean":
			if b, err := strconv.ParseBool(str); err == nil {
				converted[key] = b
			}
		}
	}
	return converted
}
