package document

import "errors"

var (
	// ErrNothingToUndo is returned by Undo when the undo stack is empty.
	ErrNothingToUndo = errors.New("microhex: nothing to undo")

	// ErrNothingToRedo is returned by Redo when the redo stack is empty.
	ErrNothingToRedo = errors.New("microhex: nothing to redo")

	// ErrNoComplexAction is returned by EndComplexAction without a
	// matching BeginComplexAction.
	ErrNoComplexAction = errors.New("microhex: no complex action in progress")

	// ErrReadOnly is returned by any mutating call on a document whose
	// device is read-only.
	ErrReadOnly = errors.New("microhex: document is read-only")

	// ErrUnknownBranch is returned when resuming a branch id that
	// GetAlternativeBranchesIds did not report.
	ErrUnknownBranch = errors.New("microhex: unknown undo branch")
)
