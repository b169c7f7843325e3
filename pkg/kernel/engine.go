package kernel

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"nbupdater/pkg/logx"
	"nbupdater/pkg/notebook"
)

// DefaultTruncationLength bounds any single text payload in an output
// record. Longer payloads are cut and marked.
const DefaultTruncationLength = 500

// truncationMarker is appended to truncated payloads.
const truncationMarker = "(...)"

// Engine owns the language runtimes for one agent and turns cell
// submissions into normalized output records.
//
//nolint:govet // fieldalignment: logical grouping preferred
type Engine struct {
	factory          RuntimeFactory
	runtimes         map[string]Runtime
	defaultLanguage  string
	TruncationLength int
	logger           *logx.Logger
}

// NewEngine creates an engine with the given runtime factory.
// defaultLanguage is used for code cells without a language tag and becomes
// the document's kernelspec after full runs.
func NewEngine(factory RuntimeFactory, defaultLanguage string, logger *logx.Logger) *Engine {
	if logger == nil {
		logger = logx.NewLogger("kernel")
	}
	return &Engine{
		factory:          factory,
		runtimes:         make(map[string]Runtime),
		defaultLanguage:  defaultLanguage,
		TruncationLength: DefaultTruncationLength,
		logger:           logger,
	}
}

// DefaultLanguage returns the engine's default language tag.
func (e *Engine) DefaultLanguage() string {
	return e.defaultLanguage
}

// RunCell executes one cell and replaces its outputs with the normalized
// result. Markdown cells get a display pass and never produce errors.
// Code evaluation failures land in the outputs ("fail into data"); the
// returned error is reserved for engine invariant violations.
func (e *Engine) RunCell(ctx context.Context, cell *notebook.Cell) error {
	if cell.Kind == notebook.KindMarkdown {
		cell.Outputs = []notebook.Output{{
			Type: notebook.OutputDisplayData,
			Data: map[string]string{"text/markdown": e.truncate(cell.Content)},
		}}
		return nil
	}

	language := cell.Language
	if language == "" {
		language = e.defaultLanguage
	}

	runtime, err := e.runtimeFor(language)
	if err != nil {
		// No runtime is a business outcome for the agents, not a fault.
		cell.Outputs = []notebook.Output{crashOutput(err)}
		return nil
	}

	events, err := runtime.Submit(ctx, cell.Content)
	if err != nil {
		e.logger.Error("runtime crash for language %q: %v", language, err)
		cell.Outputs = []notebook.Output{crashOutput(err)}
		// A crashed runtime must not serve further submissions.
		e.discardRuntime(language)
		return nil
	}

	outputs, err := e.normalize(events)
	if err != nil {
		return err
	}
	cell.Outputs = outputs
	return nil
}

// RunDocument executes every cell in document order and updates the
// document's kernelspec metadata to the engine default.
func (e *Engine) RunDocument(ctx context.Context, doc *notebook.Document) error {
	e.logger.Info("running notebook: %d cells", len(doc.Cells))
	for i, cell := range doc.Cells {
		if err := e.RunCell(ctx, cell); err != nil {
			return fmt.Errorf("cell %d: %w", i, err)
		}
	}

	doc.DefaultLanguage = e.defaultLanguage
	doc.DefaultKernel = e.defaultLanguage
	e.logger.Info("notebook run complete: %d cells with errors", len(doc.ErrorCellIndexes()))
	return nil
}

// Restart discards all runtimes. The next submission per language creates
// a fresh one, guaranteeing no leaked evaluation state.
func (e *Engine) Restart() error {
	var firstErr error
	for language, runtime := range e.runtimes {
		if err := runtime.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s runtime: %w", language, err)
		}
	}
	e.runtimes = make(map[string]Runtime)
	e.logger.Debug("engine restarted")
	return firstErr
}

func (e *Engine) runtimeFor(language string) (Runtime, error) {
	key := strings.ToLower(language)
	if runtime, ok := e.runtimes[key]; ok {
		return runtime, nil
	}
	runtime, err := e.factory(key)
	if err != nil {
		return nil, fmt.Errorf("no runtime for language %q: %w", language, err)
	}
	e.runtimes[key] = runtime
	return runtime, nil
}

func (e *Engine) discardRuntime(language string) {
	key := strings.ToLower(language)
	if runtime, ok := e.runtimes[key]; ok {
		_ = runtime.Close()
		delete(e.runtimes, key)
	}
}

// normalize folds a finished event sequence into output records.
// Display updates mutate the record previously emitted under the same
// ValueID; an update referencing an unknown id means the runtime broke
// causal ordering and is fatal.
func (e *Engine) normalize(events []Event) ([]notebook.Output, error) {
	outputs := make([]notebook.Output, 0, len(events))
	displayed := make(map[string]int) // ValueID → index into outputs

	for i := range events {
		ev := &events[i]
		switch ev.Kind {
		case EventStdout:
			outputs = append(outputs, notebook.Output{
				Type: notebook.OutputStream,
				Name: notebook.StreamStdout,
				Text: e.truncate(ev.Text),
			})

		case EventStderr:
			outputs = append(outputs, notebook.Output{
				Type: notebook.OutputStream,
				Name: notebook.StreamStderr,
				Text: e.truncate(ev.Text),
			})

		case EventDisplay:
			outputs = append(outputs, e.displayOutput(ev))
			if ev.ValueID != "" {
				displayed[ev.ValueID] = len(outputs) - 1
			}

		case EventDisplayUpdate:
			index, ok := displayed[ev.ValueID]
			if !ok {
				return nil, fmt.Errorf("display update references unknown value id %q", ev.ValueID)
			}
			outputs[index] = e.displayOutput(ev)

		case EventReturnValue:
			outputs = append(outputs, notebook.Output{
				Type: notebook.OutputExecuteResult,
				Data: e.truncateData(ev.Data),
			})

		case EventError:
			outputs = append(outputs, notebook.Output{
				Type:   notebook.OutputError,
				Ename:  "Error",
				Evalue: e.truncate(ev.Message),
			})

		case EventCommandFailed:
			outputs = append(outputs, notebook.Output{
				Type:      notebook.OutputError,
				Ename:     "Error",
				Evalue:    e.truncate(ev.Message),
				Traceback: ev.StackTrace,
			})

		case EventDiagnostic:
			outputs = append(outputs, notebook.Output{
				Type:   notebook.OutputError,
				Ename:  ev.Name,
				Evalue: e.truncate(ev.Message),
			})

		default:
			e.logger.Warn("ignoring unknown event kind %q", ev.Kind)
		}
	}

	return outputs, nil
}

func (e *Engine) displayOutput(ev *Event) notebook.Output {
	return notebook.Output{
		Type:    notebook.OutputDisplayData,
		Data:    e.truncateData(ev.Data),
		ValueID: ev.ValueID,
	}
}

func (e *Engine) truncate(s string) string {
	limit := e.TruncationLength
	if limit <= 0 {
		limit = DefaultTruncationLength
	}
	if len(s) <= limit {
		return s
	}
	// Back up to a rune boundary so the cut never leaves a partial
	// multi-byte sequence before the marker.
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + truncationMarker
}

func (e *Engine) truncateData(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	out := make(map[string]string, len(data))
	for mime, value := range data {
		out[mime] = e.truncate(value)
	}
	return out
}

func crashOutput(err error) notebook.Output {
	return notebook.Output{
		Type:   notebook.OutputError,
		Ename:  "Error",
		Evalue: err.Error(),
	}
}
