// Package tools exposes the notebook interaction operations as callable
// tools for LLM agents, with per-role tool sets.
package tools

import "context"

// Property describes a single parameter in a tool's input schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema is the JSON-schema fragment describing a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the provider-neutral tool declaration sent to LLMs.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// ExecResult carries a tool's outcome back into the conversation.
type ExecResult struct {
	// Content is the human-readable result appended as a tool message.
	Content string `json:"content"`
}

// Tool is implemented by every agent-callable operation.
type Tool interface {
	// Name returns the wire name agents invoke the tool by.
	Name() string

	// Definition returns the tool declaration for LLM requests.
	Definition() ToolDefinition

	// PromptDocumentation returns formatted tool documentation for prompts.
	PromptDocumentation() string

	// Exec runs the tool. Business failures are reported inside the
	// result content; a non-nil error means the run itself is broken.
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// Tool wire names. Other components depend on these exact strings.
const (
	ToolReplaceWorkbookCell        = "ReplaceWorkbookCell"
	ToolReplaceBlockInWorkbookCell = "ReplaceBlockInWorkbookCell"
	ToolInsertInWorkbookCell       = "InsertInWorkbookCell"
	ToolRunNotebook                = "RunNotebook"
	ToolSubmitNotebook             = "SubmitNotebook"
	ToolApproveNotebook            = "ApproveNotebook"
)
