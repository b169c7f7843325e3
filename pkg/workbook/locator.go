package workbook

import (
	"fmt"
	"strings"

	"nbupdater/pkg/notebook"
)

// FindCell resolves a locator substring to a cell. The first cell in
// document order whose content contains the substring wins; ambiguity is
// deliberately not an error, the risk sits with whoever picked the
// locator. Absence is ErrCellNotFound.
func FindCell(doc *notebook.Document, uniqueContent string) (*notebook.Cell, int, error) {
	if uniqueContent == "" {
		return nil, -1, fmt.Errorf("%w: empty locator string", ErrCellNotFound)
	}
	for i, cell := range doc.Cells {
		if strings.Contains(cell.Content, uniqueContent) {
			return cell, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: no cell contains identifying string %q", ErrCellNotFound, uniqueContent)
}
