package workbook

import (
	"fmt"
	"strings"
)

// MutateFunc transforms a cell's current content into its new content.
// Implementations validate their own preconditions and return an edit-time
// error when they cannot apply.
type MutateFunc func(current string) (string, error)

// ReplaceWhole replaces the entire cell content.
func ReplaceWhole(newContent string) MutateFunc {
	return func(string) (string, error) {
		return newContent, nil
	}
}

// ReplaceBlock replaces the span from the first occurrence of blockStart
// through the first occurrence of blockEnd after it, both markers
// included. Missing markers fail with ErrBlockBoundaryNotFound; a
// blockEnd at or before the end of blockStart fails with
// ErrInvalidBlockOrder.
func ReplaceBlock(blockStart, blockEnd, newContent string) MutateFunc {
	return func(current string) (string, error) {
		start := strings.Index(current, blockStart)
		if start < 0 {
			return "", fmt.Errorf("%w: block start %q\ncell content:\n%q", ErrBlockBoundaryNotFound, blockStart, current)
		}
		afterStart := start + len(blockStart)
		endOffset := strings.Index(current[afterStart:], blockEnd)
		if endOffset < 0 {
			if strings.Contains(current, blockEnd) {
				return "", fmt.Errorf("%w: block end %q occurs before block start %q", ErrInvalidBlockOrder, blockEnd, blockStart)
			}
			return "", fmt.Errorf("%w: block end %q\ncell content:\n%q", ErrBlockBoundaryNotFound, blockEnd, current)
		}
		end := afterStart + endOffset + len(blockEnd)
		return current[:start] + newContent + current[end:], nil
	}
}

// InsertAfter inserts newContent on a new line directly after the first
// occurrence of anchor. A missing anchor fails with ErrAnchorNotFound.
func InsertAfter(anchor, newContent string) MutateFunc {
	return func(current string) (string, error) {
		index := strings.Index(current, anchor)
		if index < 0 {
			return "", fmt.Errorf("%w: %q\ncell content:\n%q", ErrAnchorNotFound, anchor, current)
		}
		insertAt := index + len(anchor)
		return current[:insertAt] + "\n" + newContent + current[insertAt:], nil
	}
}
