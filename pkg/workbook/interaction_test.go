package workbook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbupdater/pkg/kernel"
	"nbupdater/pkg/metrics"
	"nbupdater/pkg/notebook"
)

// echoRuntime succeeds with a stdout event unless the submitted code
// contains "fail", in which case it reports a runtime error event.
type echoRuntime struct {
	language string
	submits  []string
}

func (r *echoRuntime) Language() string { return r.language }

func (r *echoRuntime) Submit(_ context.Context, code string) ([]kernel.Event, error) {
	r.submits = append(r.submits, code)
	if strings.Contains(code, "fail") {
		return []kernel.Event{{Kind: kernel.EventError, Message: "intentional failure"}}, nil
	}
	return []kernel.Event{{Kind: kernel.EventStdout, Text: "ok\n"}}, nil
}

func (r *echoRuntime) Close() error { return nil }

func newTestCore(t *testing.T, cells ...*notebook.Cell) (*Interaction, *echoRuntime, string) {
	t.Helper()
	rt := &echoRuntime{}
	factory := func(language string) (kernel.Runtime, error) {
		rt.language = language
		return rt, nil
	}

	path := filepath.Join(t.TempDir(), "workbook.ipynb")
	doc := &notebook.Document{Cells: cells, DefaultLanguage: "python", DefaultKernel: "python"}
	require.NoError(t, doc.Save(path))

	engine := kernel.NewEngine(factory, "python", nil)
	return NewInteraction(path, engine, &Gates{}, nil), rt, path
}

func codeCell(content string) *notebook.Cell {
	return &notebook.Cell{Kind: notebook.KindCode, Language: "python", Content: content}
}

func markdownCell(content string) *notebook.Cell {
	return &notebook.Cell{Kind: notebook.KindMarkdown, Language: "markdown", Content: content}
}

func TestExecutionMetricsRecorded(t *testing.T) {
	core, _, _ := newTestCore(t,
		codeCell("# cell alpha\nprint(1)"),
	)
	recorder := metrics.NewRecorder()
	core.SetRecorder(recorder)
	svc := NewUpdateService(core)

	_, err := svc.ReplaceCell(context.Background(), "cell alpha", "# cell alpha\nprint(2)", false)
	require.NoError(t, err)
	_, err = core.RunNotebook(context.Background())
	require.NoError(t, err)

	snapshot := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, recorder.WriteSnapshot(snapshot))
	raw, err := os.ReadFile(snapshot)
	require.NoError(t, err)
	text := string(raw)

	assert.Contains(t, text, `nbupdater_cell_runs_total{scope="cell"} 1`)
	assert.Contains(t, text, `nbupdater_cell_runs_total{scope="notebook"} 1`)
	assert.Contains(t, text, "nbupdater_blind_edits_total 1")
}

func TestReplaceCellTouchesOnlyTargetCell(t *testing.T) {
	core, _, path := newTestCore(t,
		markdownCell("# goal one"),
		codeCell("# cell alpha\nprint(1)"),
		codeCell("# cell beta\nprint(2)"),
	)
	svc := NewUpdateService(core)

	result, err := svc.ReplaceCell(context.Background(), "cell beta", "# cell beta\nprint(99)", false)
	require.NoError(t, err)
	assert.Contains(t, result, "Successfully identified cell")
	assert.Contains(t, result, "Cell #2 successfully updated")

	doc, err := notebook.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "# goal one", doc.Cells[0].Content)
	assert.Equal(t, "# cell alpha\nprint(1)", doc.Cells[1].Content)
	assert.Equal(t, "# cell beta\nprint(99)", doc.Cells[2].Content)
}

func TestReplaceCellUnknownLocatorLeavesFileUntouched(t *testing.T) {
	core, rt, path := newTestCore(t, codeCell("print(1)"))
	svc := NewUpdateService(core)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	result, err := svc.ReplaceCell(context.Background(), "no such string", "print(2)", false)
	require.NoError(t, err, "lookup failure must become feedback text, not an error")
	assert.Contains(t, result, "Error:")
	assert.Contains(t, result, "no such string")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed edits must not modify the file")
	assert.Empty(t, rt.submits, "failed edits must not execute anything")
}

func TestNoOpEditIsRejectedWithoutExecution(t *testing.T) {
	core, rt, _ := newTestCore(t, codeCell("print(1)"))
	svc := NewUpdateService(core)

	result, err := svc.ReplaceCell(context.Background(), "print(1)", "print(1)", false)
	require.NoError(t, err)
	assert.Contains(t, result, "Error:")
	assert.Contains(t, result, "unchanged")
	assert.Empty(t, rt.submits)
}

func TestReplaceBlockChangedThenNoOp(t *testing.T) {
	core, _, _ := newTestCore(t, codeCell("# marker\nSTART\nold\nEND\ntail"))
	svc := NewUpdateService(core)

	first, err := svc.ReplaceBlock(context.Background(), "# marker", "START", "END", "START\nnew\nEND", false)
	require.NoError(t, err)
	assert.NotContains(t, first, "Error:")

	// Same replacement again produces identical content.
	second, err := svc.ReplaceBlock(context.Background(), "# marker", "START", "END", "START\nnew\nEND", false)
	require.NoError(t, err)
	assert.Contains(t, second, "Error:")
	assert.Contains(t, second, "unchanged")
}

func TestInsertAddsContentExactlyOnce(t *testing.T) {
	core, _, path := newTestCore(t, codeCell("# setup\nimport math\nprint(math.pi)"))
	svc := NewUpdateService(core)

	result, err := svc.Insert(context.Background(), "# setup", "import math", "import json", false)
	require.NoError(t, err)
	assert.NotContains(t, result, "Error:")

	doc, err := notebook.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "# setup\nimport math\nimport json\nprint(math.pi)", doc.Cells[0].Content)
	assert.Equal(t, 1, strings.Count(doc.Cells[0].Content, "import json"))
}

func TestCellOnlyEditRunsJustThatCell(t *testing.T) {
	core, rt, _ := newTestCore(t, codeCell("# a\nprint(1)"), codeCell("# b\nprint(2)"))
	svc := NewUpdateService(core)

	result, err := svc.ReplaceCell(context.Background(), "# b", "# b\nprint(3)", false)
	require.NoError(t, err)
	assert.Contains(t, result, "Running cell")
	assert.Contains(t, result, "Cell Outputs:")

	require.Len(t, rt.submits, 1)
	assert.Contains(t, rt.submits[0], "print(3)")
}

func TestRestartKernelRunsWholeNotebook(t *testing.T) {
	core, rt, _ := newTestCore(t, codeCell("# a\nprint(1)"), codeCell("# b\nprint(2)"))
	svc := NewUpdateService(core)

	result, err := svc.ReplaceCell(context.Background(), "# b", "# b\nprint(3)", true)
	require.NoError(t, err)
	assert.Contains(t, result, "Restarting kernel and running entire notebook")
	assert.Len(t, rt.submits, 2)
	assert.Equal(t, 0, core.BlindUpdates())
}

func TestFullRunReportsErrorCountAndIndices(t *testing.T) {
	core, _, _ := newTestCore(t,
		markdownCell("# doc"),
		codeCell("# a\nprint(1)"),
		codeCell("# b\nfail()"),
		codeCell("# c\nprint(3)"),
		codeCell("# d\nfail()"),
	)
	svc := NewUpdateService(core)

	result, err := svc.ReplaceCell(context.Background(), "# a", "# a\nprint(10)", true)
	require.NoError(t, err)
	assert.Contains(t, result, "contains 2 cells with errors")
	assert.Contains(t, result, "indices 2, 4")
	assert.Contains(t, result, "Cells with errors:")
	assert.Contains(t, result, "intentional failure")
}

func TestFourthBlindEditForcesFullRun(t *testing.T) {
	core, rt, _ := newTestCore(t, codeCell("# a\nprint(0)"), codeCell("# b\nprint(0)"))
	svc := NewUpdateService(core)

	for i := 1; i <= 3; i++ {
		result, err := svc.ReplaceCell(context.Background(), "# a", fmt.Sprintf("# a\nprint(%d)", i), false)
		require.NoError(t, err)
		assert.NotContains(t, result, "Restarting kernel")
		assert.Equal(t, i, core.BlindUpdates())
	}
	require.Len(t, rt.submits, 3)

	// The fourth consecutive cell-only edit escalates to a full run.
	result, err := svc.ReplaceCell(context.Background(), "# a", "# a\nprint(4)", false)
	require.NoError(t, err)
	assert.Contains(t, result, "Restarting kernel and running entire notebook")
	assert.Equal(t, 0, core.BlindUpdates())
	assert.Len(t, rt.submits, 5, "full run executes both code cells")

	// Counting starts over afterwards.
	_, err = svc.ReplaceCell(context.Background(), "# a", "# a\nprint(5)", false)
	require.NoError(t, err)
	assert.Equal(t, 1, core.BlindUpdates())
}

func TestRunNotebookReturnsCompleteJSON(t *testing.T) {
	core, _, _ := newTestCore(t, markdownCell("# doc"), codeCell("print(1)"))

	result, err := core.RunNotebook(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result, "Start RunNotebook")
	assert.Contains(t, result, "Complete notebook json:")
	assert.Contains(t, result, `"cells"`)
	assert.Contains(t, result, "End RunNotebook")
}

func TestRunNotebookResetsBlindUpdateCounter(t *testing.T) {
	core, _, _ := newTestCore(t, codeCell("# a\nprint(0)"))
	svc := NewUpdateService(core)

	_, err := svc.ReplaceCell(context.Background(), "# a", "# a\nprint(1)", false)
	require.NoError(t, err)
	require.Equal(t, 1, core.BlindUpdates())

	_, err = core.RunNotebook(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, core.BlindUpdates())
}

func TestSubmitAndApproveSetSharedGates(t *testing.T) {
	gates := &Gates{}
	pathDir := t.TempDir()
	path := filepath.Join(pathDir, "workbook.ipynb")
	doc := &notebook.Document{Cells: []*notebook.Cell{codeCell("print(1)")}, DefaultLanguage: "python"}
	require.NoError(t, doc.Save(path))

	factory := func(language string) (kernel.Runtime, error) {
		return &echoRuntime{language: language}, nil
	}
	editor := NewUpdateService(NewInteraction(path, kernel.NewEngine(factory, "python", nil), gates, nil))
	approver := NewValidationService(NewInteraction(path, kernel.NewEngine(factory, "python", nil), gates, nil))

	msg, err := editor.SubmitNotebook()
	require.NoError(t, err)
	assert.Contains(t, msg, "Notebook submitted")
	assert.True(t, gates.PendingApproval)
	assert.False(t, gates.Approved)

	msg, err = approver.ApproveNotebook()
	require.NoError(t, err)
	assert.Contains(t, msg, "Notebook approved")
	assert.True(t, gates.Approved)
	assert.True(t, gates.PendingApproval, "submission flag is never cleared within a run")
}

func TestCellRunPersistsOutputsToDisk(t *testing.T) {
	core, _, path := newTestCore(t, codeCell("# a\nprint(1)"))
	svc := NewUpdateService(core)

	_, err := svc.ReplaceCell(context.Background(), "# a", "# a\nprint(2)", false)
	require.NoError(t, err)

	doc, err := notebook.Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Cells[0].Outputs, 1)
	assert.Equal(t, "ok\n", doc.Cells[0].Outputs[0].Text)
}

func TestFindCellFirstMatchWins(t *testing.T) {
	doc := &notebook.Document{Cells: []*notebook.Cell{
		codeCell("shared marker in first"),
		codeCell("shared marker in second"),
	}}
	cell, index, err := FindCell(doc, "shared marker")
	require.NoError(t, err)
	assert.Equal(t, 0, index)
	assert.Equal(t, "shared marker in first", cell.Content)
}
