package document

import "github.com/zenwarr/microhex/pkg/span"

type actionKind int

const (
	actionInsert actionKind = iota
	actionRemove
	actionWrite
	actionComplex
)

// action is one entry on the undo or redo stack. A leaf action records
// exactly what to do to replay it (redo) and exactly what to do to
// reverse it (undo); a complex action groups a run of leaf actions that
// must be undone/redone together (spec §4.4 ComplexAction).
type action struct {
	kind actionKind

	offset uint64

	// old is the content that occupied [offset, offset+old.Length())
	// before this action (what undo restores).
	old *span.SpanChain

	// next is the content this action put at offset (what redo
	// reapplies). For actionRemove, next is nil (nothing replaces the
	// removed range).
	next *span.SpanChain

	children []action

	atomicOpIndex uint64
}

func (a action) redoLength() uint64 {
	if a.next == nil {
		return 0
	}

	return a.next.Length()
}

func (a action) undoLength() uint64 {
	if a.old == nil {
		return 0
	}

	return a.old.Length()
}

// branch is an abandoned redo-stack segment: what GetAlternativeBranchesIds
// reports and ResumeBranch can bring back (spec §4.4: undo is a tree, not
// a single stack - a new edit after undoing does not discard the undone
// future, it sidelines it).
type branch struct {
	id          uint64
	atUndoDepth int
	redoStack   []action
}
