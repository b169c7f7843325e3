package tools

import (
	"context"
	"fmt"

	"nbupdater/pkg/utils"
	"nbupdater/pkg/workbook"
)

const (
	uniqueContentDescription = "A short string from the cell to update (e.g., a title in a markdown cell or a comment in a code cell) that is unique across all cells in the notebook"
	restartKernelDescription = "Whether to restart the kernel and rerun the entire notebook from the beginning instead of just running the cell"
)

func stringArg(args map[string]any, key string) (string, error) {
	value, ok := utils.SafeAssert[string](args[key])
	if !ok || value == "" {
		return "", fmt.Errorf("%s is required and must be a non-empty string", key)
	}
	return value, nil
}

func boolArg(args map[string]any, key string) bool {
	return utils.AssertOr(args[key], false)
}

// ReplaceCellTool replaces the full content of one notebook cell.
type ReplaceCellTool struct {
	svc *workbook.UpdateService
}

// NewReplaceCellTool creates a ReplaceWorkbookCell tool bound to svc.
func NewReplaceCellTool(svc *workbook.UpdateService) *ReplaceCellTool {
	return &ReplaceCellTool{svc: svc}
}

// Name returns the tool name.
func (t *ReplaceCellTool) Name() string {
	return ToolReplaceWorkbookCell
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ReplaceCellTool) PromptDocumentation() string {
	return `- **ReplaceWorkbookCell** - Replace the entire content of one notebook cell
  - Parameters:
    - uniqueContent (string, REQUIRED): short string unique to the target cell
    - newCellContent (string, REQUIRED): the complete new cell content
    - restartKernel (boolean, optional): rerun the whole notebook instead of just this cell
  - The edited cell is executed immediately and its outputs are returned`
}

// Definition returns the tool definition for LLM requests.
func (t *ReplaceCellTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReplaceWorkbookCell,
		Description: "Updates a specific markdown or code cell in the current notebook by providing the entire new content",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"uniqueContent": {
					Type:        "string",
					Description: uniqueContentDescription,
				},
				"newCellContent": {
					Type:        "string",
					Description: "The new content for the target cell",
				},
				"restartKernel": {
					Type:        "boolean",
					Description: restartKernelDescription,
				},
			},
			Required: []string{"uniqueContent", "newCellContent"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ReplaceCellTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	uniqueContent, err := stringArg(args, "uniqueContent")
	if err != nil {
		return nil, err
	}
	newCellContent, err := stringArg(args, "newCellContent")
	if err != nil {
		return nil, err
	}

	content, err := t.svc.ReplaceCell(ctx, uniqueContent, newCellContent, boolArg(args, "restartKernel"))
	if err != nil {
		return nil, err
	}
	return &ExecResult{Content: content}, nil
}

// ReplaceBlockTool replaces a marked span inside one notebook cell.
type ReplaceBlockTool struct {
	svc *workbook.UpdateService
}

// NewReplaceBlockTool creates a ReplaceBlockInWorkbookCell tool bound to svc.
func NewReplaceBlockTool(svc *workbook.UpdateService) *ReplaceBlockTool {
	return &ReplaceBlockTool{svc: svc}
}

// Name returns the tool name.
func (t *ReplaceBlockTool) Name() string {
	return ToolReplaceBlockInWorkbookCell
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ReplaceBlockTool) PromptDocumentation() string {
	return `- **ReplaceBlockInWorkbookCell** - Replace a span inside one notebook cell
  - Parameters:
    - uniqueContent (string, REQUIRED): short string unique to the target cell
    - blockStart (string, REQUIRED): text marking the start of the span to replace
    - blockEnd (string, REQUIRED): text marking the end of the span to replace
    - newContent (string, REQUIRED): replacement for the whole span, markers included
    - restartKernel (boolean, optional): rerun the whole notebook instead of just this cell
  - The first occurrence of blockStart and the first occurrence of blockEnd after it delimit the span`
}

// Definition returns the tool definition for LLM requests.
func (t *ReplaceBlockTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReplaceBlockInWorkbookCell,
		Description: "Replaces a specific block within a cell identified by a unique string",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"uniqueContent": {
					Type:        "string",
					Description: uniqueContentDescription,
				},
				"blockStart": {
					Type:        "string",
					Description: "The text marking the start of the block to be replaced",
				},
				"blockEnd": {
					Type:        "string",
					Description: "The text marking the end of the block to be replaced",
				},
				"newContent": {
					Type:        "string",
					Description: "The new content replacing the whole block, markers included",
				},
				"restartKernel": {
					Type:        "boolean",
					Description: restartKernelDescription,
				},
			},
			Required: []string{"uniqueContent", "blockStart", "blockEnd", "newContent"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ReplaceBlockTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	uniqueContent, err := stringArg(args, "uniqueContent")
	if err != nil {
		return nil, err
	}
	blockStart, err := stringArg(args, "blockStart")
	if err != nil {
		return nil, err
	}
	blockEnd, err := stringArg(args, "blockEnd")
	if err != nil {
		return nil, err
	}
	newContent, err := stringArg(args, "newContent")
	if err != nil {
		return nil, err
	}

	content, err := t.svc.ReplaceBlock(ctx, uniqueContent, blockStart, blockEnd, newContent, boolArg(args, "restartKernel"))
	if err != nil {
		return nil, err
	}
	return &ExecResult{Content: content}, nil
}

// InsertTool inserts new content inside one notebook cell.
type InsertTool struct {
	svc *workbook.UpdateService
}

// NewInsertTool creates an InsertInWorkbookCell tool bound to svc.
func NewInsertTool(svc *workbook.UpdateService) *InsertTool {
	return &InsertTool{svc: svc}
}

// Name returns the tool name.
func (t *InsertTool) Name() string {
	return ToolInsertInWorkbookCell
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *InsertTool) PromptDocumentation() string {
	return `- **InsertInWorkbookCell** - Insert new content inside one notebook cell
  - Parameters:
    - uniqueContent (string, REQUIRED): short string unique to the target cell
    - insertAfter (string, REQUIRED): text directly preceding the insertion point
    - newContent (string, REQUIRED): content inserted on a new line after insertAfter
    - restartKernel (boolean, optional): rerun the whole notebook instead of just this cell`
}

// Definition returns the tool definition for LLM requests.
func (t *InsertTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolInsertInWorkbookCell,
		Description: "Inserts new content after a specified location in a cell identified by a unique string",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"uniqueContent": {
					Type:        "string",
					Description: uniqueContentDescription,
				},
				"insertAfter": {
					Type:        "string",
					Description: "The string directly preceding the position where the new content should be added",
				},
				"newContent": {
					Type:        "string",
					Description: "The new content to be inserted",
				},
				"restartKernel": {
					Type:        "boolean",
					Description: restartKernelDescription,
				},
			},
			Required: []string{"uniqueContent", "insertAfter", "newContent"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *InsertTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	uniqueContent, err := stringArg(args, "uniqueContent")
	if err != nil {
		return nil, err
	}
	insertAfter, err := stringArg(args, "insertAfter")
	if err != nil {
		return nil, err
	}
	newContent, err := stringArg(args, "newContent")
	if err != nil {
		return nil, err
	}

	content, err := t.svc.Insert(ctx, uniqueContent, insertAfter, newContent, boolArg(args, "restartKernel"))
	if err != nil {
		return nil, err
	}
	return &ExecResult{Content: content}, nil
}

// notebookRunner is the slice of the interaction core the run tool needs.
type notebookRunner interface {
	RunNotebook(ctx context.Context) (string, error)
}

// RunNotebookTool reruns the entire notebook and reports the result.
type RunNotebookTool struct {
	runner notebookRunner
}

// NewRunNotebookTool creates a RunNotebook tool bound to runner.
func NewRunNotebookTool(runner notebookRunner) *RunNotebookTool {
	return &RunNotebookTool{runner: runner}
}

// Name returns the tool name.
func (t *RunNotebookTool) Name() string {
	return ToolRunNotebook
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *RunNotebookTool) PromptDocumentation() string {
	return `- **RunNotebook** - Restart the kernel, run the whole notebook, return the full result
  - No parameters
  - Always runs every cell from a clean state and returns the complete notebook JSON`
}

// Definition returns the tool definition for LLM requests.
func (t *RunNotebookTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolRunNotebook,
		Description: "Runs the latest version of the notebook and returns the output",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{},
		},
	}
}

// Exec executes the tool.
func (t *RunNotebookTool) Exec(ctx context.Context, _ map[string]any) (*ExecResult, error) {
	content, err := t.runner.RunNotebook(ctx)
	if err != nil {
		return nil, err
	}
	return &ExecResult{Content: content}, nil
}

// SubmitNotebookTool flags the notebook as ready for approval.
type SubmitNotebookTool struct {
	svc *workbook.UpdateService
}

// NewSubmitNotebookTool creates a SubmitNotebook tool bound to svc.
func NewSubmitNotebookTool(svc *workbook.UpdateService) *SubmitNotebookTool {
	return &SubmitNotebookTool{svc: svc}
}

// Name returns the tool name.
func (t *SubmitNotebookTool) Name() string {
	return ToolSubmitNotebook
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *SubmitNotebookTool) PromptDocumentation() string {
	return `- **SubmitNotebook** - Submit the latest notebook version for approval
  - No parameters
  - Call only when the notebook runs without errors and fulfils its goal`
}

// Definition returns the tool definition for LLM requests.
func (t *SubmitNotebookTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSubmitNotebook,
		Description: "Submits the latest version of the notebook for approval",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{},
		},
	}
}

// Exec executes the tool.
func (t *SubmitNotebookTool) Exec(_ context.Context, _ map[string]any) (*ExecResult, error) {
	content, err := t.svc.SubmitNotebook()
	if err != nil {
		return nil, err
	}
	return &ExecResult{Content: content}, nil
}

// ApproveNotebookTool marks the run as successfully completed.
type ApproveNotebookTool struct {
	svc *workbook.ValidationService
}

// NewApproveNotebookTool creates an ApproveNotebook tool bound to svc.
func NewApproveNotebookTool(svc *workbook.ValidationService) *ApproveNotebookTool {
	return &ApproveNotebookTool{svc: svc}
}

// Name returns the tool name.
func (t *ApproveNotebookTool) Name() string {
	return ToolApproveNotebook
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ApproveNotebookTool) PromptDocumentation() string {
	return `- **ApproveNotebook** - Approve the submitted notebook and end the session
  - No parameters
  - Call only after verifying the notebook runs cleanly and fulfils its goal`
}

// Definition returns the tool definition for LLM requests.
func (t *ApproveNotebookTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolApproveNotebook,
		Description: "Approves the submitted notebook, ending the session successfully",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{},
		},
	}
}

// Exec executes the tool.
func (t *ApproveNotebookTool) Exec(_ context.Context, _ map[string]any) (*ExecResult, error) {
	content, err := t.svc.ApproveNotebook()
	if err != nil {
		return nil, err
	}
	return &ExecResult{Content: content}, nil
}
