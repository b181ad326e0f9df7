package core

import "context"

// Message is one turn of the conversation handed to the step generator.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "tool"
	Content string `json:"content"`
}

// StrategyHint is an advisory ranking entry injected into the next prompt.
type StrategyHint struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ConversationContext carries everything the completion capability needs to
// produce the next step.
type ConversationContext struct {
	TaskID           string
	Goal             string
	History          []Message
	Hints            []StrategyHint
	WorkspaceSummary string
}

// Step is the completion capability's answer: a plan (always) and optionally
// a tool call. Done signals that the model considers the task finished.
type Step struct {
	PlanText string
	ToolCall *ToolCall
	Done     bool
}

// StepGenerator is the completion capability. Implementations translate the
// conversation context into a prompt for a concrete provider. Transport or
// auth failures surface as ProviderFailed errors.
type StepGenerator interface {
	GenerateStep(ctx context.Context, conv *ConversationContext) (*Step, error)
}

// ToolExecutor runs approved tool calls. Unknown tool names fail with an
// UnknownTool error, which the orchestrator treats as non-retryable.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, call *ToolCall) (*ToolResult, error)
}

// Embedder produces fixed-dimension vector embeddings for text. The model
// itself is external to the core; failures surface as EmbeddingUnavailable
// and trigger the degraded projection path.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// SnapshotStore is the undo boundary consulted around write-class tool calls.
// Failures are reported, never fatal to the task.
type SnapshotStore interface {
	Snapshot(ctx context.Context) (string, error)
	Revert(ctx context.Context, id string) error
}

// Decision is the human approval verdict for a pending tool call.
type Decision int

const (
	Approve Decision = iota
	Reject
	Cancel
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	case Cancel:
		return "cancel"
	}
	return "unknown"
}

// Approver is the human-in-the-loop boundary. PresentForApproval blocks until
// a decision is signaled or ctx is cancelled; cancellation is equivalent to a
// Cancel decision.
type Approver interface {
	PresentForApproval(ctx context.Context, call *ToolCall) (Decision, error)
}
