package core

// ToolVocabulary is the fixed tool-type vocabulary used for structural
// features. Unknown tools project onto the trailing "other" slot; plain
// responses onto "none".
var ToolVocabulary = []string{
	"read_file",
	"write_file",
	"edit_file",
	"search_files",
	"list_dir",
	"run_command",
}

// writeClass lists tools that mutate the workspace; the orchestrator takes a
// snapshot before executing them.
var writeClass = map[string]bool{
	"write_file": true,
	"edit_file":  true,
}

// IsWriteClass reports whether a tool mutates the workspace.
func IsWriteClass(toolName string) bool {
	return writeClass[toolName]
}
