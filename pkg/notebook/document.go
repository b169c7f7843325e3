// Package notebook provides the in-memory notebook document model and its
// Jupyter-style JSON persistence.
package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// CellKind distinguishes narrative cells from executable cells.
type CellKind string

const (
	KindMarkdown CellKind = "markdown"
	KindCode     CellKind = "code"
)

// Output types as they appear in the persisted document.
const (
	OutputDisplayData   = "display_data"
	OutputStream        = "stream"
	OutputError         = "error"
	OutputExecuteResult = "execute_result"
)

// Stream names for OutputStream records.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Output is a tagged union of the four persisted output record shapes.
// Exactly the fields for the record's Type are populated.
//
//nolint:govet // fieldalignment: grouped by record shape for readability
type Output struct {
	Type string `json:"output_type"`

	// display_data / execute_result
	Data map[string]string `json:"data,omitempty"`

	// stream
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`

	// error
	Ename     string   `json:"ename,omitempty"`
	Evalue    string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`

	// ValueID tracks display records within a single run so that later
	// update events can replace them in place. Not persisted.
	ValueID string `json:"-"`
}

// IsError reports whether this output records a failure.
func (o *Output) IsError() bool {
	return o.Type == OutputError
}

// Cell is one ordered unit of the document.
type Cell struct {
	Kind     CellKind
	Language string // kernel/language tag, e.g. "python", "csharp", "markdown"
	Content  string
	Outputs  []Output
}

// HasErrorOutput reports whether any of the cell's outputs is an error record.
func (c *Cell) HasErrorOutput() bool {
	for i := range c.Outputs {
		if c.Outputs[i].IsError() {
			return true
		}
	}
	return false
}

// Document is an ordered sequence of cells plus kernel metadata.
type Document struct {
	Cells           []*Cell
	DefaultLanguage string // kernelspec language, updated after full runs
	DefaultKernel   string // kernelspec name
}

// ErrorCellIndexes returns the indexes of cells carrying error outputs,
// in document order.
func (d *Document) ErrorCellIndexes() []int {
	var indexes []int
	for i, cell := range d.Cells {
		if cell.HasErrorOutput() {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// persisted wire format (nbformat 4)

type fileDocument struct {
	Cells         []fileCell     `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

//nolint:govet // fieldalignment: wire format field order mirrors the on-disk layout
type fileCell struct {
	CellType       string         `json:"cell_type"`
	Metadata       map[string]any `json:"metadata"`
	Source         multiline      `json:"source"`
	Outputs        []fileOutput   `json:"outputs,omitempty"`
	ExecutionCount *int           `json:"execution_count,omitempty"`
}

type fileOutput struct {
	OutputType string            `json:"output_type"`
	Data       map[string]string `json:"data,omitempty"`
	Name       string            `json:"name,omitempty"`
	Text       multiline         `json:"text,omitempty"`
	Ename      string            `json:"ename,omitempty"`
	Evalue     string            `json:"evalue,omitempty"`
	Traceback  []string          `json:"traceback,omitempty"`
}

// multiline accepts either a plain string or the canonical array-of-lines
// form, and always serializes as array-of-lines.
type multiline string

func (m multiline) MarshalJSON() ([]byte, error) {
	if m == "" {
		return []byte("[]"), nil
	}
	lines := strings.SplitAfter(string(m), "\n")
	// SplitAfter leaves a trailing empty element when the text ends in \n.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return json.Marshal(lines)
}

func (m *multiline) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = multiline(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("source must be a string or an array of strings: %w", err)
	}
	*m = multiline(strings.Join(lines, ""))
	return nil
}

// Load reads and parses the document at path. The file is always read in
// full; callers must not cache the returned document across operations.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notebook %s: %w", path, err)
	}

	var fd fileDocument
	if err := json.Unmarshal(raw, &fd); err != nil {
		return nil, fmt.Errorf("failed to parse notebook %s: %w", path, err)
	}

	doc := &Document{}
	if spec, ok := fd.Metadata["kernelspec"].(map[string]any); ok {
		if name, ok := spec["name"].(string); ok {
			doc.DefaultKernel = name
		}
		if lang, ok := spec["language"].(string); ok {
			doc.DefaultLanguage = lang
		}
	}

	for i := range fd.Cells {
		fc := &fd.Cells[i]
		cell := &Cell{Content: string(fc.Source)}

		switch fc.CellType {
		case "markdown":
			cell.Kind = KindMarkdown
			cell.Language = "markdown"
		case "code":
			cell.Kind = KindCode
			cell.Language = doc.DefaultLanguage
		default:
			return nil, fmt.Errorf("notebook %s: unsupported cell_type %q at index %d", path, fc.CellType, i)
		}

		if lang, ok := fc.Metadata["language"].(string); ok && lang != "" {
			cell.Language = lang
		}

		for j := range fc.Outputs {
			fo := &fc.Outputs[j]
			cell.Outputs = append(cell.Outputs, Output{
				Type:      fo.OutputType,
				Data:      fo.Data,
				Name:      fo.Name,
				Text:      string(fo.Text),
				Ename:     fo.Ename,
				Evalue:    fo.Evalue,
				Traceback: fo.Traceback,
			})
		}

		doc.Cells = append(doc.Cells, cell)
	}

	return doc, nil
}

// Save writes the complete document to path. There is no incremental form:
// every successful mutation rewrites the whole file.
func (d *Document) Save(path string) error {
	raw, err := d.MarshalIndented()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write notebook %s: %w", path, err)
	}
	return nil
}

// MarshalIndented serializes the document in its persisted form.
func (d *Document) MarshalIndented() ([]byte, error) {
	fd := fileDocument{
		NBFormat:      4,
		NBFormatMinor: 5,
		Metadata:      map[string]any{},
		Cells:         make([]fileCell, 0, len(d.Cells)),
	}
	if d.DefaultKernel != "" || d.DefaultLanguage != "" {
		fd.Metadata["kernelspec"] = map[string]any{
			"name":     d.DefaultKernel,
			"language": d.DefaultLanguage,
		}
	}

	for _, cell := range d.Cells {
		fc, err := d.fileCellFor(cell)
		if err != nil {
			return nil, err
		}
		fd.Cells = append(fd.Cells, fc)
	}

	raw, err := json.MarshalIndent(fd, "", " ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notebook: %w", err)
	}
	return raw, nil
}

func (d *Document) fileCellFor(cell *Cell) (fileCell, error) {
	fc := fileCell{
		Metadata: map[string]any{},
		Source:   multiline(cell.Content),
	}
	switch cell.Kind {
	case KindMarkdown:
		fc.CellType = "markdown"
	case KindCode:
		fc.CellType = "code"
		fc.Outputs = make([]fileOutput, 0, len(cell.Outputs))
		if cell.Language != "" && cell.Language != d.DefaultLanguage {
			fc.Metadata["language"] = cell.Language
		}
		for i := range cell.Outputs {
			out := &cell.Outputs[i]
			fc.Outputs = append(fc.Outputs, fileOutput{
				OutputType: out.Type,
				Data:       out.Data,
				Name:       out.Name,
				Text:       multiline(out.Text),
				Ename:      out.Ename,
				Evalue:     out.Evalue,
				Traceback:  out.Traceback,
			})
		}
	default:
		return fileCell{}, fmt.Errorf("unsupported cell kind %q", cell.Kind)
	}
	return fc, nil
}

// CellJSON serializes one cell in its persisted form, outputs included.
func (d *Document) CellJSON(index int) (string, error) {
	if index < 0 || index >= len(d.Cells) {
		return "", fmt.Errorf("cell index %d out of range", index)
	}
	fc, err := d.fileCellFor(d.Cells[index])
	if err != nil {
		return "", err
	}
	raw, err := json.MarshalIndent(fc, "", " ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal cell %d: %w", index, err)
	}
	return string(raw), nil
}

// OutputsJSON serializes one cell's output records in their persisted form.
func (d *Document) OutputsJSON(index int) (string, error) {
	if index < 0 || index >= len(d.Cells) {
		return "", fmt.Errorf("cell index %d out of range", index)
	}
	fc, err := d.fileCellFor(d.Cells[index])
	if err != nil {
		return "", err
	}
	if len(fc.Outputs) == 0 {
		return "[]", nil
	}
	raw, err := json.MarshalIndent(fc.Outputs, "", " ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal outputs of cell %d: %w", index, err)
	}
	return string(raw), nil
}
