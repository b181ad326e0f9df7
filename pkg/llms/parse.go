package llms

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/introspectai/learnloop/pkg/core"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type toolCallPayload struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// ParseStep turns raw model output into a step. The tool call is looked for
// in a fenced JSON block first; models that skip the fence are handled by a
// balanced-brace scan over the whole reply. Output with no recognizable
// tool call is a plain response, completed when the completion marker
// appears.
func ParseStep(text string) *core.Step {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if call := decodeToolCall(m[1]); call != nil {
			return &core.Step{
				PlanText: cleanPlan(strings.Replace(text, m[0], "", 1)),
				ToolCall: call,
			}
		}
	}

	for _, candidate := range scanJSONObjects(text) {
		if call := decodeToolCall(candidate); call != nil {
			return &core.Step{
				PlanText: cleanPlan(strings.Replace(text, candidate, "", 1)),
				ToolCall: call,
			}
		}
	}

	return &core.Step{
		PlanText: cleanPlan(text),
		Done:     strings.Contains(text, CompletionMarker),
	}
}

func decodeToolCall(raw string) *core.ToolCall {
	var payload toolCallPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.Tool == "" {
		return nil
	}
	args := payload.Args
	if args == nil {
		args = map[string]interface{}{}
	}
	return &core.ToolCall{Name: payload.Tool, Args: args}
}

// scanJSONObjects finds top-level {...} spans, tracking strings and escapes
// so braces inside values do not unbalance the scan.
func scanJSONObjects(text string) []string {
	var objects []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString && depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					objects = append(objects, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return objects
}

func cleanPlan(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}
