package workbook

import (
	"context"
	"strings"
)

// UpdateService is the editor-facing capability set: the three cell edit
// operations, full notebook runs, and submitting the result for approval.
type UpdateService struct {
	*Interaction
}

// NewUpdateService wraps an interaction core with the editor capabilities.
func NewUpdateService(core *Interaction) *UpdateService {
	return &UpdateService{Interaction: core}
}

// ReplaceCell replaces the entire content of the cell matching
// uniqueContent, then runs the cell (or the whole notebook when
// restartKernel is set).
func (s *UpdateService) ReplaceCell(ctx context.Context, uniqueContent, newCellContent string, restartKernel bool) (string, error) {
	uniqueContent = DecodeValue(uniqueContent)
	newCellContent = DecodeValue(newCellContent)
	return s.invoke("ReplaceWorkbookCell", func(msg *strings.Builder) error {
		return s.updateCell(ctx, uniqueContent, ReplaceWhole(newCellContent), msg, restartKernel)
	})
}

// ReplaceBlock replaces the span between blockStart and blockEnd
// (markers included) inside the cell matching uniqueContent.
func (s *UpdateService) ReplaceBlock(ctx context.Context, uniqueContent, blockStart, blockEnd, newContent string, restartKernel bool) (string, error) {
	uniqueContent = DecodeValue(uniqueContent)
	blockStart = DecodeValue(blockStart)
	blockEnd = DecodeValue(blockEnd)
	newContent = DecodeValue(newContent)
	return s.invoke("ReplaceBlockInWorkbookCell", func(msg *strings.Builder) error {
		return s.updateCell(ctx, uniqueContent, ReplaceBlock(blockStart, blockEnd, newContent), msg, restartKernel)
	})
}

// Insert adds newContent on a new line after insertAfter inside the cell
// matching uniqueContent.
func (s *UpdateService) Insert(ctx context.Context, uniqueContent, insertAfter, newContent string, restartKernel bool) (string, error) {
	uniqueContent = DecodeValue(uniqueContent)
	insertAfter = DecodeValue(insertAfter)
	newContent = DecodeValue(newContent)
	return s.invoke("InsertInWorkbookCell", func(msg *strings.Builder) error {
		return s.updateCell(ctx, uniqueContent, InsertAfter(insertAfter, newContent), msg, restartKernel)
	})
}

// SubmitNotebook flags the current notebook as ready for approval. The
// flag is never cleared within a run; rejection is expressed through
// conversation, not through state.
func (s *UpdateService) SubmitNotebook() (string, error) {
	s.gates.PendingApproval = true
	const message = "Notebook submitted\n"
	s.logger.Info(message)
	return message, nil
}

// PendingApproval reports whether a submission is awaiting approval.
func (s *UpdateService) PendingApproval() bool {
	return s.gates.PendingApproval
}

// SupervisionService is the reviewer-facing capability set: full notebook
// runs only, no edits and no terminal actions.
type SupervisionService struct {
	*Interaction
}

// NewSupervisionService wraps an interaction core with the reviewer
// capabilities.
func NewSupervisionService(core *Interaction) *SupervisionService {
	return &SupervisionService{Interaction: core}
}

// ValidationService is the approver-facing capability set: full notebook
// runs plus the terminal approve action.
type ValidationService struct {
	*Interaction
}

// NewValidationService wraps an interaction core with the approver
// capabilities.
func NewValidationService(core *Interaction) *ValidationService {
	return &ValidationService{Interaction: core}
}

// ApproveNotebook marks the run as successfully completed. Monotonic
// within a run; the termination check picks it up after the current turn.
func (s *ValidationService) ApproveNotebook() (string, error) {
	s.gates.Approved = true
	const message = "Notebook approved\n"
	s.logger.Info(message)
	return message, nil
}

// Approved reports whether the notebook has been approved.
func (s *ValidationService) Approved() bool {
	return s.gates.Approved
}
