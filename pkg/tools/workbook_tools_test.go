package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbupdater/pkg/kernel"
	"nbupdater/pkg/notebook"
	"nbupdater/pkg/workbook"
)

type staticRuntime struct{ language string }

func (r *staticRuntime) Language() string { return r.language }

func (r *staticRuntime) Submit(_ context.Context, _ string) ([]kernel.Event, error) {
	return []kernel.Event{{Kind: kernel.EventStdout, Text: "done\n"}}, nil
}

func (r *staticRuntime) Close() error { return nil }

func newTestServices(t *testing.T) (*workbook.UpdateService, *workbook.ValidationService, *workbook.Gates) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workbook.ipynb")
	doc := &notebook.Document{
		Cells: []*notebook.Cell{
			{Kind: notebook.KindMarkdown, Language: "markdown", Content: "# goal"},
			{Kind: notebook.KindCode, Language: "python", Content: "# main\nprint(1)"},
		},
		DefaultLanguage: "python",
		DefaultKernel:   "python",
	}
	require.NoError(t, doc.Save(path))

	factory := func(language string) (kernel.Runtime, error) {
		return &staticRuntime{language: language}, nil
	}
	gates := &workbook.Gates{}
	updater := workbook.NewUpdateService(workbook.NewInteraction(path, kernel.NewEngine(factory, "python", nil), gates, nil))
	validator := workbook.NewValidationService(workbook.NewInteraction(path, kernel.NewEngine(factory, "python", nil), gates, nil))
	return updater, validator, gates
}

func TestProviderRoleSets(t *testing.T) {
	updater, validator, _ := newTestServices(t)

	editorTools := ForUpdater(updater)
	names := make([]string, 0)
	for _, def := range editorTools.Definitions() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{
		ToolReplaceWorkbookCell,
		ToolReplaceBlockInWorkbookCell,
		ToolInsertInWorkbookCell,
		ToolRunNotebook,
		ToolSubmitNotebook,
	}, names)

	_, err := editorTools.Get(ToolApproveNotebook)
	assert.Error(t, err, "editor must not be able to approve")

	validatorTools := ForValidator(validator)
	_, err = validatorTools.Get(ToolApproveNotebook)
	assert.NoError(t, err)
	_, err = validatorTools.Get(ToolReplaceWorkbookCell)
	assert.Error(t, err, "validator must not be able to edit")
}

func TestReplaceCellToolExec(t *testing.T) {
	updater, _, _ := newTestServices(t)
	tool := NewReplaceCellTool(updater)

	result, err := tool.Exec(context.Background(), map[string]any{
		"uniqueContent":  "# main",
		"newCellContent": "# main\nprint(2)",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Start ReplaceWorkbookCell")
	assert.Contains(t, result.Content, "successfully updated")
	assert.Contains(t, result.Content, "End ReplaceWorkbookCell")
}

func TestReplaceCellToolMissingArgument(t *testing.T) {
	updater, _, _ := newTestServices(t)
	tool := NewReplaceCellTool(updater)

	_, err := tool.Exec(context.Background(), map[string]any{"uniqueContent": "# main"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newCellContent")
}

func TestEditFailureStaysInContent(t *testing.T) {
	updater, _, _ := newTestServices(t)
	tool := NewReplaceCellTool(updater)

	result, err := tool.Exec(context.Background(), map[string]any{
		"uniqueContent":  "not in any cell",
		"newCellContent": "print(3)",
	})
	require.NoError(t, err, "lookup failures are feedback, not tool errors")
	assert.Contains(t, result.Content, "Error:")
}

func TestRestartKernelArgumentAcceptsBool(t *testing.T) {
	updater, _, _ := newTestServices(t)
	tool := NewReplaceCellTool(updater)

	result, err := tool.Exec(context.Background(), map[string]any{
		"uniqueContent":  "# main",
		"newCellContent": "# main\nprint(9)",
		"restartKernel":  true,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Restarting kernel and running entire notebook")
}

func TestSubmitAndApproveTools(t *testing.T) {
	updater, validator, gates := newTestServices(t)

	submit := NewSubmitNotebookTool(updater)
	result, err := submit.Exec(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Notebook submitted")
	assert.True(t, gates.PendingApproval)

	approve := NewApproveNotebookTool(validator)
	result, err = approve.Exec(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Notebook approved")
	assert.True(t, gates.Approved)
}

func TestRunNotebookToolReportsFullJSON(t *testing.T) {
	updater, _, _ := newTestServices(t)
	tool := NewRunNotebookTool(updater.Interaction)

	result, err := tool.Exec(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Complete notebook json:")
}

func TestPromptDocumentationCoversEveryTool(t *testing.T) {
	updater, _, _ := newTestServices(t)
	docs := ForUpdater(updater).PromptDocumentation()

	for _, name := range []string{
		ToolReplaceWorkbookCell,
		ToolReplaceBlockInWorkbookCell,
		ToolInsertInWorkbookCell,
		ToolRunNotebook,
		ToolSubmitNotebook,
	} {
		assert.True(t, strings.Contains(docs, name), "missing docs for %s", name)
	}
}
