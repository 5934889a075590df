// Package document implements the editable document built on top of a
// span chain: insert/remove/write with branching undo/redo, modification
// tracking against save points, and the save/dissolution protocol that
// commits edits back to a device (spec §3, §4.4, §4.5).
package document

import (
	"github.com/zenwarr/microhex/pkg/device"
	"github.com/zenwarr/microhex/pkg/rwlock"
	"github.com/zenwarr/microhex/pkg/span"
)

// Document is a mutable byte sequence backed by a span chain, with
// undo/redo and a device it can Save back to.
type Document struct {
	lock rwlock.RWLock

	chain  *span.SpanChain
	device device.Device

	savepoint     int64
	nextSavepoint int64

	undoStack []action
	redoStack []action
	branches  []branch
	nextBranchID uint64

	complexStack [][]action // nested BeginComplexAction accumulators

	atomicOpIndex uint64

	listeners listenerSet
}

// New creates a document over an already-open device, whose entire
// current content becomes the document's initial (unmodified) chain.
func New(d device.Device) (*Document, error) {
	doc := &Document{device: d, nextSavepoint: 1}

	if d.Length() == 0 {
		doc.chain = span.New()
		return doc, nil
	}

	ds, err := span.NewDeviceSpan(d, 0, d.Length())
	if err != nil {
		return nil, err
	}

	doc.chain = span.FromSpans([]span.Span{ds})
	doc.chain.SetCommonSavepoint(doc.savepoint)

	return doc, nil
}

// NewFromChain creates a document over an existing span chain not
// necessarily backed by d (used for clipboard documents and exported
// fragments); every span is considered unsaved.
func NewFromChain(d device.Device, chain *span.SpanChain) *Document {
	doc := &Document{device: d, chain: chain, nextSavepoint: 1, savepoint: -1}
	return doc
}

// Subscribe registers l for change notifications; call the returned
// function to unsubscribe.
func (doc *Document) Subscribe(l Listener) (unsubscribe func()) {
	return doc.listeners.subscribe(l)
}

func (doc *Document) Length() uint64 { return doc.chain.Length() }

func (doc *Document) Read(offset, length uint64) []byte { return doc.chain.Read(offset, length) }

func (doc *Document) ReadAll() []byte { return doc.chain.ReadAll() }

func (doc *Document) nextAtomicOpIndex() uint64 {
	doc.atomicOpIndex++
	return doc.atomicOpIndex
}

// InsertSpan inserts a single span at offset.
func (doc *Document) InsertSpan(offset uint64, s span.Span) error {
	return doc.InsertChain(offset, span.FromSpans([]span.Span{s}))
}

// InsertChain inserts chain's content at offset (spec §4.4).
func (doc *Document) InsertChain(offset uint64, chain *span.SpanChain) error {
	if doc.device != nil && doc.device.IsReadOnly() {
		return ErrReadOnly
	}

	inserted := chain.Clone()

	return doc.lock.WithLock(func() error {
		if err := doc.chain.InsertChain(offset, inserted); err != nil {
			return err
		}

		a := action{
			kind:          actionInsert,
			offset:        offset,
			next:          inserted.Clone(),
			atomicOpIndex: doc.nextAtomicOpIndex(),
		}
		doc.pushUndo(a)

		doc.listeners.bytesInserted(offset, inserted.Length())
		doc.listeners.dataChanged(offset, doc.chain.Length()-offset)
		doc.listeners.resized(doc.chain.Length())

		return nil
	})
}

// AppendSpan inserts s at the end of the document.
func (doc *Document) AppendSpan(s span.Span) error {
	return doc.InsertSpan(doc.Length(), s)
}

// AppendChain inserts chain at the end of the document.
func (doc *Document) AppendChain(chain *span.SpanChain) error {
	return doc.InsertChain(doc.Length(), chain)
}

// Remove deletes [offset, offset+length) (spec §4.4).
func (doc *Document) Remove(offset, length uint64) error {
	if doc.device != nil && doc.device.IsReadOnly() {
		return ErrReadOnly
	}

	return doc.lock.WithLock(func() error {
		removed, err := doc.chain.TakeSpans(offset, length)
		if err != nil {
			return err
		}

		removedChain := span.FromSpans(removed)

		a := action{
			kind:          actionRemove,
			offset:        offset,
			old:           removedChain,
			atomicOpIndex: doc.nextAtomicOpIndex(),
		}
		doc.pushUndo(a)

		doc.listeners.bytesRemoved(offset, length)
		doc.listeners.dataChanged(offset, doc.chain.Length()-offset)
		doc.listeners.resized(doc.chain.Length())

		return nil
	})
}

// WriteSpan overwrites [offset, offset+s.Length()) with s's content.
func (doc *Document) WriteSpan(offset uint64, s span.Span) error {
	return doc.WriteChain(offset, span.FromSpans([]span.Span{s}))
}

// WriteChain overwrites [offset, offset+chain.Length()) with chain's
// content, preserving document length (spec §4.4).
func (doc *Document) WriteChain(offset uint64, chain *span.SpanChain) error {
	if doc.device != nil && doc.device.IsReadOnly() {
		return ErrReadOnly
	}

	newContent := chain.Clone()
	length := newContent.Length()

	return doc.lock.WithLock(func() error {
		old, err := doc.chain.TakeSpans(offset, length)
		if err != nil {
			return err
		}

		if err := doc.chain.InsertChain(offset, newContent); err != nil {
			// best effort: put the old content back so the chain is not
			// left shorter than it was
			_ = doc.chain.InsertChain(offset, span.FromSpans(old))
			return err
		}

		a := action{
			kind:          actionWrite,
			offset:        offset,
			old:           span.FromSpans(old),
			next:          newContent.Clone(),
			atomicOpIndex: doc.nextAtomicOpIndex(),
		}
		doc.pushUndo(a)

		doc.listeners.dataChanged(offset, length)

		return nil
	})
}

// Clear empties the document.
func (doc *Document) Clear() error {
	return doc.Remove(0, doc.Length())
}

// ExportRange exports [offset, offset+length) the way SpanChain.ExportRange
// does, honoring ramLimit (spec §4.3).
func (doc *Document) ExportRange(offset, length uint64, ramLimit int64) (*span.SpanChain, error) {
	var (
		out *span.SpanChain
		err error
	)

	rErr := doc.lock.WithRLock(func() error {
		out, err = doc.chain.ExportRange(offset, length, ramLimit)
		return nil
	})

	if rErr != nil {
		return nil, rErr
	}

	return out, err
}

// CreateConstantFrame returns a read-only, never-mutated snapshot of
// [offset, offset+length) that keeps device references where possible
// (ramLimit 0, spec §4.4) instead of reading the range into memory,
// useful for background work (e.g. a search) that must not observe
// subsequent edits.
func (doc *Document) CreateConstantFrame(offset, length uint64) (*span.SpanChain, error) {
	return doc.ExportRange(offset, length, 0)
}
