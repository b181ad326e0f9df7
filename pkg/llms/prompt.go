package llms

import (
	"fmt"
	"strings"

	"github.com/introspectai/learnloop/pkg/core"
)

// CompletionMarker is the token the model emits when it considers the task
// finished.
const CompletionMarker = "TASK_COMPLETE"

// BuildPrompt assembles the full prompt for one step: instructions, the
// goal, workspace summary, adaptation hints, and the conversation so far.
func BuildPrompt(conv *core.ConversationContext) string {
	var b strings.Builder

	b.WriteString("You are a coding agent working on the task below, one step at a time.\n")
	b.WriteString("To use a tool, reply with a short plan followed by exactly one JSON object:\n")
	b.WriteString("```json\n{\"tool\": \"<name>\", \"args\": {...}}\n```\n")
	b.WriteString("Available tools: ")
	b.WriteString(strings.Join(core.ToolVocabulary, ", "))
	b.WriteString(".\n")
	fmt.Fprintf(&b, "When the task is finished, reply with plain text containing %s and no tool call.\n", CompletionMarker)

	fmt.Fprintf(&b, "\nTask: %s\n", conv.Goal)

	if conv.WorkspaceSummary != "" {
		fmt.Fprintf(&b, "\nWorkspace:\n%s\n", conv.WorkspaceSummary)
	}

	if len(conv.Hints) > 0 {
		b.WriteString("\nApproaches that have worked well or poorly on similar work (advisory):\n")
		for _, h := range conv.Hints {
			fmt.Fprintf(&b, "- %s (score %+.2f)\n", h.Name, h.Score)
		}
	}

	if len(conv.History) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, msg := range conv.History {
			fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
		}
	}

	b.WriteString("\nNext step:")
	return b.String()
}
