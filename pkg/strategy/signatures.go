// Package strategy names recognizable approaches in an observation stream
// and scores their effectiveness from clustered outcomes, with no external
// labels involved.
package strategy

import (
	"strings"

	"github.com/introspectai/learnloop/pkg/core"
)

// Signature is one deterministic rule over a per-task observation window.
// The window is chronological and ends with the observation under
// consideration. Rules are fixed rather than learned so every hint handed
// back to the model can be explained.
type Signature struct {
	Name    string
	Matches func(window []*core.Observation) bool
}

// Signatures is the full rule set. Rules are many-to-many: one observation
// may match several and each match is scored independently.
var Signatures = []Signature{
	{Name: "read-before-edit", Matches: matchReadBeforeEdit},
	{Name: "test-after-write", Matches: matchTestAfterWrite},
	{Name: "search-before-read", Matches: matchSearchBeforeRead},
	{Name: "plan-first", Matches: matchPlanFirst},
	{Name: "retry-after-failure", Matches: matchRetryAfterFailure},
	{Name: "incremental-edit", Matches: matchIncrementalEdit},
}

// Extract returns the names of every signature the window's final
// observation completes.
func Extract(window []*core.Observation) []string {
	if len(window) == 0 {
		return nil
	}
	var names []string
	for _, sig := range Signatures {
		if sig.Matches(window) {
			names = append(names, sig.Name)
		}
	}
	return names
}

func current(window []*core.Observation) *core.Observation {
	return window[len(window)-1]
}

func argPath(call *core.ToolCall) string {
	if call == nil {
		return ""
	}
	for _, key := range []string{"path", "file_path", "dir_path"} {
		if v, ok := call.Args[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// A file was read before being modified in the same task.
func matchReadBeforeEdit(window []*core.Observation) bool {
	cur := current(window)
	if cur.ToolCall == nil || !core.IsWriteClass(cur.ToolCall.Name) {
		return false
	}
	path := argPath(cur.ToolCall)
	if path == "" {
		return false
	}
	for _, prev := range window[:len(window)-1] {
		if prev.ToolName() == "read_file" && argPath(prev.ToolCall) == path {
			return true
		}
	}
	return false
}

// A test command ran after a modification.
func matchTestAfterWrite(window []*core.Observation) bool {
	cur := current(window)
	if cur.ToolName() != "run_command" {
		return false
	}
	cmd, _ := cur.ToolCall.Args["command"].(string)
	if !strings.Contains(cmd, "test") {
		return false
	}
	for _, prev := range window[:len(window)-1] {
		if prev.ToolCall != nil && core.IsWriteClass(prev.ToolCall.Name) {
			return true
		}
	}
	return false
}

// A search preceded opening a file.
func matchSearchBeforeRead(window []*core.Observation) bool {
	if current(window).ToolName() != "read_file" {
		return false
	}
	for _, prev := range window[:len(window)-1] {
		if prev.ToolName() == "search_files" {
			return true
		}
	}
	return false
}

// The task surveyed the workspace before its first modification.
func matchPlanFirst(window []*core.Observation) bool {
	cur := current(window)
	if cur.ToolCall == nil || !core.IsWriteClass(cur.ToolCall.Name) {
		return false
	}
	first := window[0]
	if first.StepIndex != 0 {
		return false
	}
	switch first.ToolName() {
	case "read_file", "list_dir", "search_files":
		return true
	}
	return first.ToolCall == nil && first.PlanText != ""
}

// A failed tool call was immediately retried and succeeded.
func matchRetryAfterFailure(window []*core.Observation) bool {
	if len(window) < 2 {
		return false
	}
	cur := current(window)
	prev := window[len(window)-2]
	if !cur.Success || prev.Success {
		return false
	}
	return cur.ToolName() != "" && cur.ToolName() == prev.ToolName()
}

// Small repeated edits rather than wholesale rewrites.
func matchIncrementalEdit(window []*core.Observation) bool {
	cur := current(window)
	if cur.ToolName() != "edit_file" || cur.DiffSize <= 0 || cur.DiffSize > 50 {
		return false
	}
	for _, prev := range window[:len(window)-1] {
		if prev.ToolCall != nil && core.IsWriteClass(prev.ToolCall.Name) {
			return true
		}
	}
	return false
}
