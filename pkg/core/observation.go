package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ToolCall is a request to run a named tool with structured arguments.
type ToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Fingerprint returns a deterministic identity for loop detection: the tool
// name plus its arguments serialized with sorted keys.
func (c *ToolCall) Fingerprint() string {
	if c == nil {
		return ""
	}
	keys := make([]string, 0, len(c.Args))
	for k := range c.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(':')
	for _, k := range keys {
		v, err := json.Marshal(c.Args[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", c.Args[k]))
		}
		fmt.Fprintf(&b, "%s=%s;", k, v)
	}
	return b.String()
}

// ToolResult is the outcome of executing (or declining to execute) a tool call.
type ToolResult struct {
	Output   string `json:"output,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Observation is the immutable record of one orchestrator step. It is created
// exactly once, by the orchestrator, right after the step completes, and never
// mutated afterwards. Corrections are modeled as new Observations referencing
// the corrected one via CorrectsID.
type Observation struct {
	ID         string      `json:"id"`
	TaskID     string      `json:"task_id"`
	Timestamp  time.Time   `json:"timestamp"`
	StepIndex  int         `json:"step_index"`
	PlanText   string      `json:"plan_text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Success    bool        `json:"success"`
	DurationMs int64       `json:"duration_ms"`
	DiffSize   int         `json:"diff_size"`
	CorrectsID string      `json:"corrects_id,omitempty"`
}

// NewObservationID returns a fresh observation identifier.
func NewObservationID() string {
	return uuid.New().String()
}

// ToolName returns the called tool's name, or "" for plain-response steps.
func (o *Observation) ToolName() string {
	if o.ToolCall == nil {
		return ""
	}
	return o.ToolCall.Name
}
