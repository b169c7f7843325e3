// Package workbook implements the agent-facing notebook interaction layer.
// It composes cell lookup, mutation, and execution into single operations
// whose outcomes are reported as conversational text.
package workbook

import "errors"

// Edit-time failures. All of these are recoverable by the calling agent
// trying a different edit, so the interaction layer converts them to
// feedback text instead of letting them cross the tool boundary.
var (
	// ErrCellNotFound reports that no cell content contains the locator.
	ErrCellNotFound = errors.New("cell not found")

	// ErrAnchorNotFound reports a missing insertion anchor inside the
	// located cell.
	ErrAnchorNotFound = errors.New("insert location not found in target cell")

	// ErrBlockBoundaryNotFound reports a missing block start or end marker
	// inside the located cell.
	ErrBlockBoundaryNotFound = errors.New("block boundary not found in target cell")

	// ErrInvalidBlockOrder reports a block end that does not come strictly
	// after the block start.
	ErrInvalidBlockOrder = errors.New("block end must come after block start")

	// ErrNoOpMutation reports an edit that left the cell content unchanged.
	ErrNoOpMutation = errors.New("cell content unchanged, provide new content")
)

// recoverable reports whether err is an edit-time failure the calling
// agent can fix by retrying with different arguments.
func recoverable(err error) bool {
	return errors.Is(err, ErrCellNotFound) ||
		errors.Is(err, ErrAnchorNotFound) ||
		errors.Is(err, ErrBlockBoundaryNotFound) ||
		errors.Is(err, ErrInvalidBlockOrder) ||
		errors.Is(err, ErrNoOpMutation)
}
