package workbook

import (
	"context"
	"fmt"
	"strings"

	"nbupdater/pkg/kernel"
	"nbupdater/pkg/logx"
	"nbupdater/pkg/metrics"
	"nbupdater/pkg/notebook"
)

// Gates are the shared control flags the turn scheduler consults. One
// Gates value is shared by reference across every service spawned for a
// run; each flag is written by exactly one role and both are monotonic
// within a run.
type Gates struct {
	// PendingApproval is set by the editor's submit action and routes
	// the next turn to the validator. Nothing clears it within a run.
	PendingApproval bool

	// Approved is set by the validator's approve action and ends the run.
	Approved bool
}

// blindUpdateLimit is how many consecutive cell-only updates may run
// before the next one is escalated to a full notebook run. Cell-only
// updates leave the rest of the document stale, so staleness is bounded.
const blindUpdateLimit = 3

// Interaction is the shared core behind the role-specific services. It
// owns one execution engine and the load, locate, mutate, save, run
// sequence every edit operation goes through. The document is re-read
// from disk at the start of each operation and never cached across calls.
type Interaction struct {
	path         string
	engine       *kernel.Engine
	gates        *Gates
	logger       *logx.Logger
	recorder     *metrics.Recorder
	blindUpdates int
	iterations   int
}

// NewInteraction creates the interaction core for one agent. Each agent
// gets its own engine; only gates is shared across agents.
func NewInteraction(path string, engine *kernel.Engine, gates *Gates, logger *logx.Logger) *Interaction {
	if gates == nil {
		gates = &Gates{}
	}
	if logger == nil {
		logger = logx.NewLogger("workbook")
	}
	return &Interaction{
		path:   path,
		engine: engine,
		gates:  gates,
		logger: logger,
	}
}

// SetRecorder attaches a metrics recorder. A nil recorder (the default)
// disables execution metrics.
func (it *Interaction) SetRecorder(recorder *metrics.Recorder) {
	it.recorder = recorder
}

// NotebookPath returns the path of the document this core operates on.
func (it *Interaction) NotebookPath() string {
	return it.path
}

// Gates returns the shared control flags.
func (it *Interaction) Gates() *Gates {
	return it.gates
}

// BlindUpdates returns the count of consecutive cell-only updates since
// the last full notebook run.
func (it *Interaction) BlindUpdates() int {
	return it.blindUpdates
}

// RunNotebook restarts the runtimes, executes the whole document, and
// reports the complete resulting notebook JSON.
func (it *Interaction) RunNotebook(ctx context.Context) (string, error) {
	return it.invoke("RunNotebook", func(msg *strings.Builder) error {
		doc, err := notebook.Load(it.path)
		if err != nil {
			return err
		}
		return it.runAll(ctx, msg, true, doc)
	})
}

// invoke wraps one agent-facing operation with its result-message framing
// and the failure policy: edit-time errors become feedback text inside
// the message, anything else propagates to the orchestration layer.
func (it *Interaction) invoke(name string, fn func(msg *strings.Builder) error) (string, error) {
	var msg strings.Builder
	fmt.Fprintf(&msg, "Start %s\n\n", name)
	if err := fn(&msg); err != nil {
		if !recoverable(err) {
			return "", err
		}
		fmt.Fprintf(&msg, "Error: %s\n", err)
	}
	fmt.Fprintf(&msg, "End %s\n", name)

	result := msg.String()
	it.logger.Info("%s", result)
	return result, nil
}

// updateCell is the shared edit algorithm: load fresh, locate, mutate,
// persist, then run either the mutated cell or the whole document.
func (it *Interaction) updateCell(ctx context.Context, uniqueContent string, mutate MutateFunc, msg *strings.Builder, restartKernel bool) error {
	doc, err := notebook.Load(it.path)
	if err != nil {
		return err
	}

	cell, index, err := FindCell(doc, uniqueContent)
	if err != nil {
		return err
	}
	fmt.Fprintf(msg, "Successfully identified cell with unique string:\n%s\n\n", uniqueContent)

	newContent, err := mutate(cell.Content)
	if err != nil {
		return err
	}
	if newContent == cell.Content {
		return fmt.Errorf("%w (cell #%d)", ErrNoOpMutation, index)
	}

	before := cell.Content
	cell.Content = newContent
	if err := doc.Save(it.path); err != nil {
		return err
	}

	it.iterations++
	it.logger.Info("workbook interaction iteration %d completed", it.iterations)
	fmt.Fprintf(msg, "Cell #%d successfully updated with new content:\n%s\n\n", index, cell.Content)
	if diff := renderDiff(before, cell.Content); diff != "" {
		fmt.Fprintf(msg, "Changes:\n%s\n", diff)
	}

	if restartKernel {
		return it.runAll(ctx, msg, false, doc)
	}

	it.blindUpdates++
	if it.recorder != nil {
		it.recorder.IncBlindEdit()
	}
	if it.blindUpdates > blindUpdateLimit {
		msg.WriteString("Several cell-level updates ran without a full refresh. Restarting kernel and running the entire notebook to verify overall state.\n")
		return it.runAll(ctx, msg, false, doc)
	}
	return it.runOne(ctx, msg, doc, index)
}

// runOne executes only the mutated cell and reports that cell's outputs.
func (it *Interaction) runOne(ctx context.Context, msg *strings.Builder, doc *notebook.Document, index int) error {
	msg.WriteString("Running cell\n...\n")
	if err := it.engine.RunCell(ctx, doc.Cells[index]); err != nil {
		return err
	}
	if it.recorder != nil {
		it.recorder.ObserveCellRun("cell")
	}
	msg.WriteString("Cell execution completed.\n")
	if err := doc.Save(it.path); err != nil {
		return err
	}

	outputs, err := doc.OutputsJSON(index)
	if err != nil {
		return err
	}
	if outputs == "[]" {
		msg.WriteString("Cell has no output.\n")
		return nil
	}
	fmt.Fprintf(msg, "Cell Outputs:\n%s\n\n", outputs)
	if doc.Cells[index].HasErrorOutput() {
		msg.WriteString("Cell has an error output. Please fix the content of this cell before proceeding.\n")
	}
	return nil
}

// runAll restarts the runtimes and executes every cell in order. Full
// runs always report complete error detail: either the entire notebook
// JSON (returnNotebook) or the full content of every error cell.
func (it *Interaction) runAll(ctx context.Context, msg *strings.Builder, returnNotebook bool, doc *notebook.Document) error {
	msg.WriteString("Restarting kernel and running entire notebook\n...\n")
	if err := it.engine.Restart(); err != nil {
		return err
	}
	if err := it.engine.RunDocument(ctx, doc); err != nil {
		return err
	}
	if it.recorder != nil {
		it.recorder.ObserveCellRun("notebook")
	}
	msg.WriteString("Notebook execution completed.\n")
	if err := doc.Save(it.path); err != nil {
		return err
	}
	it.blindUpdates = 0

	if returnNotebook {
		raw, err := doc.MarshalIndented()
		if err != nil {
			return err
		}
		fmt.Fprintf(msg, "Complete notebook json:\n%s\n\n", raw)
		return nil
	}

	errorCells := doc.ErrorCellIndexes()
	if len(errorCells) == 0 {
		msg.WriteString("No errors found in outputs, but please ensure the notebook achieves its intended purpose before proceeding.\n")
		return nil
	}

	fmt.Fprintf(msg, "The notebook contains %d cells with errors (indices %s). Please fix the content of these cells before proceeding.\n",
		len(errorCells), joinIndexes(errorCells))
	msg.WriteString("Cells with errors:\n")
	for _, i := range errorCells {
		cellJSON, err := doc.CellJSON(i)
		if err != nil {
			return err
		}
		msg.WriteString(cellJSON)
		msg.WriteByte('\n')
	}
	return nil
}

func joinIndexes(indexes []int) string {
	parts := make([]string, len(indexes))
	for i, idx := range indexes {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return strings.Join(parts, ", ")
}
