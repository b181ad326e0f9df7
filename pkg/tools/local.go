package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	models "github.com/XiaoConstantine/mcp-go/pkg/model"

	"github.com/introspectai/learnloop/pkg/errors"
)

// maxSearchResults caps search output so one greedy query does not flood
// the conversation history.
const maxSearchResults = 50

// RegisterLocalTools registers the built-in filesystem and shell tools,
// rooted at workspaceDir. Paths are resolved inside the workspace; escapes
// via .. or absolute paths are rejected.
func RegisterLocalTools(registry *Registry, workspaceDir string) error {
	ws := &workspace{root: workspaceDir}

	pathSchema := models.InputSchema{
		Type: "object",
		Properties: map[string]models.ParameterSchema{
			"path": {Type: "string", Description: "workspace-relative file path", Required: true},
		},
	}

	local := []Tool{
		NewFuncTool("read_file", "Read a file's contents", pathSchema, ws.readFile),
		NewFuncTool("write_file", "Create or overwrite a file", models.InputSchema{
			Type: "object",
			Properties: map[string]models.ParameterSchema{
				"path":    {Type: "string", Description: "workspace-relative file path", Required: true},
				"content": {Type: "string", Description: "full file content", Required: true},
			},
		}, ws.writeFile),
		NewFuncTool("edit_file", "Replace a string in a file", models.InputSchema{
			Type: "object",
			Properties: map[string]models.ParameterSchema{
				"path":       {Type: "string", Description: "workspace-relative file path", Required: true},
				"old_string": {Type: "string", Description: "exact text to replace", Required: true},
				"new_string": {Type: "string", Description: "replacement text", Required: true},
			},
		}, ws.editFile),
		NewFuncTool("search_files", "Search file contents for a substring", models.InputSchema{
			Type: "object",
			Properties: map[string]models.ParameterSchema{
				"query": {Type: "string", Description: "substring to search for", Required: true},
			},
		}, ws.searchFiles),
		NewFuncTool("list_dir", "List a directory", models.InputSchema{
			Type: "object",
			Properties: map[string]models.ParameterSchema{
				"path": {Type: "string", Description: "workspace-relative directory path", Required: false},
			},
		}, ws.listDir),
		NewFuncTool("run_command", "Run a shell command in the workspace", models.InputSchema{
			Type: "object",
			Properties: map[string]models.ParameterSchema{
				"command": {Type: "string", Description: "shell command line", Required: true},
			},
		}, ws.runCommand),
	}

	for _, tool := range local {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

type workspace struct {
	root string
}

func (w *workspace) resolve(raw string) (string, error) {
	if raw == "" {
		return w.root, nil
	}
	if filepath.IsAbs(raw) {
		return "", errors.WithFields(errors.New(errors.InvalidInput, "absolute paths are not allowed"),
			errors.Fields{"path": raw})
	}
	full := filepath.Join(w.root, raw)
	rel, err := filepath.Rel(w.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.WithFields(errors.New(errors.InvalidInput, "path escapes the workspace"),
			errors.Fields{"path": raw})
	}
	return full, nil
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func (w *workspace) readFile(ctx context.Context, args map[string]interface{}) (string, error) {
	path, err := w.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ToolExecutionFailed, "read failed")
	}
	return string(data), nil
}

func (w *workspace) writeFile(ctx context.Context, args map[string]interface{}) (string, error) {
	path, err := w.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	content := stringArg(args, "content")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, errors.ToolExecutionFailed, "mkdir failed")
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrap(err, errors.ToolExecutionFailed, "write failed")
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), stringArg(args, "path")), nil
}

func (w *workspace) editFile(ctx context.Context, args map[string]interface{}) (string, error) {
	path, err := w.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ToolExecutionFailed, "read failed")
	}
	oldStr := stringArg(args, "old_string")
	newStr := stringArg(args, "new_string")
	if !strings.Contains(string(data), oldStr) {
		return "", errors.New(errors.ToolExecutionFailed, "old_string not found in file")
	}
	edited := strings.Replace(string(data), oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		return "", errors.Wrap(err, errors.ToolExecutionFailed, "write failed")
	}
	return fmt.Sprintf("edited %s", stringArg(args, "path")), nil
}

func (w *workspace) searchFiles(ctx context.Context, args map[string]interface{}) (string, error) {
	query := stringArg(args, "query")
	var hits []string
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || len(hits) >= maxSearchResults {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				rel, _ := filepath.Rel(w.root, path)
				hits = append(hits, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(hits) >= maxSearchResults {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ToolExecutionFailed, "search failed")
	}
	if len(hits) == 0 {
		return "no matches", nil
	}
	return strings.Join(hits, "\n"), nil
}

func (w *workspace) listDir(ctx context.Context, args map[string]interface{}) (string, error) {
	path, err := w.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ToolExecutionFailed, "list failed")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func (w *workspace) runCommand(ctx context.Context, args map[string]interface{}) (string, error) {
	command := stringArg(args, "command")
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = w.root
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), errors.WithFields(errors.Wrap(err, errors.ToolExecutionFailed, "command failed"),
			errors.Fields{"command": command})
	}
	return string(out), nil
}
