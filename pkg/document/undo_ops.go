package document

// pushUndo records a just-applied leaf action. If a BeginComplexAction
// is in progress, the action is folded into the innermost accumulator
// instead of going straight onto the undo stack (spec §4.4 ComplexAction).
// Caller must hold the write lock.
func (doc *Document) pushUndo(a action) {
	if n := len(doc.complexStack); n > 0 {
		doc.complexStack[n-1] = append(doc.complexStack[n-1], a)
		return
	}

	wasCanUndo := len(doc.undoStack) > 0
	wasCanRedo := len(doc.redoStack) > 0

	doc.undoStack = append(doc.undoStack, a)

	if len(doc.redoStack) > 0 {
		doc.branches = append(doc.branches, branch{
			id:          doc.nextBranchID,
			atUndoDepth: len(doc.undoStack) - 1,
			redoStack:   doc.redoStack,
		})
		doc.nextBranchID++
		doc.redoStack = nil
	}

	if !wasCanUndo {
		doc.listeners.canUndoChanged(true)
	}

	if wasCanRedo {
		doc.listeners.canRedoChanged(false)
	}

	doc.listeners.isModifiedChanged(true)
}

// BeginComplexAction starts grouping subsequent edits into a single undo
// step. Calls nest: only the outermost EndComplexAction finalizes the
// group (spec §4.4).
func (doc *Document) BeginComplexAction() error {
	return doc.lock.WithLock(func() error {
		doc.complexStack = append(doc.complexStack, nil)
		return nil
	})
}

// EndComplexAction closes the innermost BeginComplexAction and, if it was
// the outermost one, pushes the accumulated children as a single
// actionComplex undo entry. An empty group (no edits happened) is
// dropped rather than recorded.
func (doc *Document) EndComplexAction() error {
	return doc.lock.WithLock(func() error {
		n := len(doc.complexStack)
		if n == 0 {
			return ErrNoComplexAction
		}

		children := doc.complexStack[n-1]
		doc.complexStack = doc.complexStack[:n-1]

		if len(children) == 0 {
			return nil
		}

		if len(doc.complexStack) > 0 {
			doc.complexStack[len(doc.complexStack)-1] = append(doc.complexStack[len(doc.complexStack)-1], children...)
			return nil
		}

		doc.pushUndo(action{kind: actionComplex, children: children, atomicOpIndex: children[len(children)-1].atomicOpIndex})

		return nil
	})
}

// CanUndo reports whether Undo would succeed.
func (doc *Document) CanUndo() bool {
	var out bool

	_ = doc.lock.WithRLock(func() error {
		out = len(doc.undoStack) > 0
		return nil
	})

	return out
}

// CanRedo reports whether Redo would succeed.
func (doc *Document) CanRedo() bool {
	var out bool

	_ = doc.lock.WithRLock(func() error {
		out = len(doc.redoStack) > 0
		return nil
	})

	return out
}

// Undo reverses the most recent undo-stack action.
func (doc *Document) Undo() error {
	return doc.lock.WithLock(func() error {
		n := len(doc.undoStack)
		if n == 0 {
			return ErrNothingToUndo
		}

		a := doc.undoStack[n-1]
		doc.undoStack = doc.undoStack[:n-1]

		if err := doc.reverse(a); err != nil {
			doc.undoStack = append(doc.undoStack, a)
			return err
		}

		wasCanUndo := n > 1
		wasCanRedo := len(doc.redoStack) > 0

		doc.redoStack = append(doc.redoStack, a)

		if !wasCanUndo {
			doc.listeners.canUndoChanged(false)
		}

		if !wasCanRedo {
			doc.listeners.canRedoChanged(true)
		}

		return nil
	})
}

// Redo reapplies the most recently undone action.
func (doc *Document) Redo() error {
	return doc.lock.WithLock(func() error {
		n := len(doc.redoStack)
		if n == 0 {
			return ErrNothingToRedo
		}

		a := doc.redoStack[n-1]
		doc.redoStack = doc.redoStack[:n-1]

		if err := doc.reapply(a); err != nil {
			doc.redoStack = append(doc.redoStack, a)
			return err
		}

		wasCanUndo := len(doc.undoStack) > 0
		wasCanRedo := n > 1

		doc.undoStack = append(doc.undoStack, a)

		if !wasCanUndo {
			doc.listeners.canUndoChanged(true)
		}

		if !wasCanRedo {
			doc.listeners.canRedoChanged(false)
		}

		return nil
	})
}

// reverse undoes a (restores doc.chain to its state before a was applied).
// Caller holds the write lock.
func (doc *Document) reverse(a action) error {
	switch a.kind {
	case actionInsert:
		_, err := doc.chain.TakeSpans(a.offset, a.redoLength())
		return err

	case actionRemove:
		return doc.chain.InsertChain(a.offset, a.old)

	case actionWrite:
		if _, err := doc.chain.TakeSpans(a.offset, a.redoLength()); err != nil {
			return err
		}

		return doc.chain.InsertChain(a.offset, a.old)

	case actionComplex:
		for i := len(a.children) - 1; i >= 0; i-- {
			if err := doc.reverse(a.children[i]); err != nil {
				return err
			}
		}

		return nil
	}

	return nil
}

// reapply redoes a. Caller holds the write lock.
func (doc *Document) reapply(a action) error {
	switch a.kind {
	case actionInsert:
		return doc.chain.InsertChain(a.offset, a.next)

	case actionRemove:
		_, err := doc.chain.TakeSpans(a.offset, a.undoLength())
		return err

	case actionWrite:
		if _, err := doc.chain.TakeSpans(a.offset, a.undoLength()); err != nil {
			return err
		}

		return doc.chain.InsertChain(a.offset, a.next)

	case actionComplex:
		for _, child := range a.children {
			if err := doc.reapply(child); err != nil {
				return err
			}
		}

		return nil
	}

	return nil
}

// GetAlternativeBranchesIds returns the ids of undo branches abandoned
// at the current undo-stack depth - i.e. redo futures that existed
// before a fresh edit sidelined them (spec §4.4).
func (doc *Document) GetAlternativeBranchesIds() []uint64 {
	var out []uint64

	_ = doc.lock.WithRLock(func() error {
		depth := len(doc.undoStack)

		for _, b := range doc.branches {
			if b.atUndoDepth == depth {
				out = append(out, b.id)
			}
		}

		return nil
	})

	return out
}

// ResumeBranch discards the current redo stack and replaces it with the
// abandoned branch identified by id, removing it from the alternatives
// list.
func (doc *Document) ResumeBranch(id uint64) error {
	return doc.lock.WithLock(func() error {
		for i, b := range doc.branches {
			if b.id == id {
				doc.redoStack = b.redoStack
				doc.branches = append(doc.branches[:i:i], doc.branches[i+1:]...)
				doc.listeners.canRedoChanged(len(doc.redoStack) > 0)

				return nil
			}
		}

		return ErrUnknownBranch
	})
}
