package span

import (
	"github.com/zenwarr/microhex/pkg/rwlock"
)

// entry pairs a span with the savepoint tag it was stamped with (spec
// §3, §4.3). entries are always referenced by pointer so a dissolution
// listener closure can identify "this exact occurrence of the span in
// this exact chain" without an ambiguous search by value.
type entry struct {
	span      Span
	savepoint int64
	unsub     func()
}

// SpanChain is an ordered sequence of spans serving as a document's
// logical byte sequence: the editable representation of the piece table
// (spec §3, §4.3). The teacher's own design note calls a plain slice of
// (span, savepoint) pairs "sufficient" for this; a balanced tree is
// reserved for pkg/device's span registry, where ordered range queries
// actually pay for themselves (see SPEC_FULL.md §4.1).
type SpanChain struct {
	lock    rwlock.RWLock
	entries []*entry
	length  uint64
}

// New creates an empty SpanChain.
func New() *SpanChain {
	return &SpanChain{}
}

// FromSpans creates a chain from spans, each stamped with savepoint -1
// (unknown / never-saved).
func FromSpans(spans []Span) *SpanChain {
	c := New()
	for _, s := range spans {
		c.appendEntry(&entry{span: s, savepoint: -1})
	}

	return c
}

// Length returns the chain's total length, the authoritative source of
// truth invariant 1 in spec.md §3 requires (length == sum of span
// lengths).
func (c *SpanChain) Length() uint64 {
	var out uint64

	_ = c.lock.WithRLock(func() error {
		out = c.length
		return nil
	})

	return out
}

// Spans returns a snapshot slice of the chain's spans, in order.
func (c *SpanChain) Spans() []Span {
	var out []Span

	_ = c.lock.WithRLock(func() error {
		out = make([]Span, len(c.entries))
		for i, e := range c.entries {
			out[i] = e.span
		}

		return nil
	})

	return out
}

// Clone returns a new, independent SpanChain holding the same spans
// (shared by reference) with their savepoints preserved, and its own
// dissolution subscriptions. Used by InsertChain and by Document's edit
// operations; TakeChain and ExportRange do not call it.
func (c *SpanChain) Clone() *SpanChain {
	var out *SpanChain

	_ = c.lock.WithRLock(func() error {
		out = New()
		for _, e := range c.entries {
			out.appendEntry(&entry{span: e.span, savepoint: e.savepoint})
		}

		return nil
	})

	return out
}

// Read reads up to length bytes starting at offset, clamped to the
// chain's remaining length; it returns an empty slice (not an error) if
// offset is out of range (spec §4.3).
func (c *SpanChain) Read(offset, length uint64) []byte {
	var out []byte

	_ = c.lock.WithRLock(func() error {
		out = c.readLocked(offset, length)
		return nil
	})

	return out
}

func (c *SpanChain) readLocked(offset, length uint64) []byte {
	if offset >= c.length {
		return []byte{}
	}

	if remaining := c.length - offset; length > remaining {
		length = remaining
	}

	if length == 0 {
		return []byte{}
	}

	out := make([]byte, 0, length)

	idx, innerOffset := c.findSpanIndexLocked(offset)
	if idx < 0 {
		return out
	}

	pos := innerOffset
	for i := idx; i < len(c.entries) && uint64(len(out)) < length; i++ {
		e := c.entries[i]

		avail := e.span.Length() - pos
		want := length - uint64(len(out))

		if want > avail {
			want = avail
		}

		data, err := e.span.Read(pos, want)
		if err == nil {
			out = append(out, data...)
		}

		pos = 0
	}

	return out
}

// ReadAll reads the entire chain.
func (c *SpanChain) ReadAll() []byte {
	return c.Read(0, MaxLength)
}

// findSpanIndexLocked returns the index of the span covering offset and
// the offset within that span. Caller must hold at least a read lock.
func (c *SpanChain) findSpanIndexLocked(offset uint64) (index int, innerOffset uint64) {
	var pos uint64

	for i, e := range c.entries {
		l := e.span.Length()
		if offset < pos+l {
			return i, offset - pos
		}

		pos += l
	}

	return -1, 0
}

// SpanAtOffset returns the span covering offset and the offset within it.
func (c *SpanChain) SpanAtOffset(offset uint64) (Span, uint64, error) {
	var (
		s   Span
		off uint64
		err error
	)

	_ = c.lock.WithRLock(func() error {
		idx, inner := c.findSpanIndexLocked(offset)
		if idx < 0 {
			err = ErrOutOfBounds
			return nil
		}

		s, off = c.entries[idx].span, inner

		return nil
	})

	return s, off, err
}

// SpansInRange returns the contiguous slice of spans covering
// [offset, offset+length), the number of bytes between the first
// returned span's start and offset, and the number of bytes between the
// last returned span's start and the last requested byte (spec §4.3).
func (c *SpanChain) SpansInRange(offset, length uint64) (spans []Span, leftOffset, rightOffset uint64, err error) {
	_ = c.lock.WithRLock(func() error {
		end, addErr := addLengths(offset, length)
		if addErr != nil {
			err = addErr
			return nil
		}

		if length == 0 || offset >= c.length {
			return nil
		}

		if end > c.length {
			end = c.length
		}

		startIdx, startInner := c.findSpanIndexLocked(offset)
		if startIdx < 0 {
			return nil
		}

		endIdx, endInner := c.findSpanIndexLocked(end - 1)
		if endIdx < 0 {
			endIdx = len(c.entries) - 1
			endInner = c.entries[endIdx].span.Length() - 1
		}

		out := make([]Span, 0, endIdx-startIdx+1)
		for i := startIdx; i <= endIdx; i++ {
			out = append(out, c.entries[i].span)
		}

		spans, leftOffset, rightOffset = out, startInner, endInner

		return nil
	})

	return spans, leftOffset, rightOffset, err
}

func (c *SpanChain) appendEntry(e *entry) {
	c.subscribe(e)
	c.entries = append(c.entries, e)
	c.length += e.span.Length()
}

func (c *SpanChain) subscribe(e *entry) {
	prim, ok := e.span.(*PrimitiveDeviceSpan)
	if !ok {
		return
	}

	e.unsub = prim.OnDissolve(func(old *PrimitiveDeviceSpan, replacement []Span) {
		c.onSpanDissolved(e, replacement)
	})
}

// onSpanDissolved implements the dissolution hook (spec §4.3): when a
// PrimitiveDeviceSpan this chain holds fires its dissolved event, the
// chain splices copies of the replacement in its place, each carrying
// the removed entry's savepoint.
func (c *SpanChain) onSpanDissolved(e *entry, replacement []Span) {
	_ = c.lock.WithLock(func() error {
		idx := -1

		for i, candidate := range c.entries {
			if candidate == e {
				idx = i
				break
			}
		}

		if idx < 0 {
			return nil
		}

		if e.unsub != nil {
			e.unsub()
		}

		c.length -= e.span.Length()

		newEntries := make([]*entry, 0, len(replacement))
		for _, s := range replacement {
			ne := &entry{span: s, savepoint: e.savepoint}
			c.subscribe(ne)
			newEntries = append(newEntries, ne)
			c.length += s.Length()
		}

		merged := make([]*entry, 0, len(c.entries)-1+len(newEntries))
		merged = append(merged, c.entries[:idx]...)
		merged = append(merged, newEntries...)
		merged = append(merged, c.entries[idx+1:]...)
		c.entries = merged

		return nil
	})
}

// SplitSpans guarantees a span boundary exists at offset; it is a no-op
// if the chain is already aligned there or offset is out of range.
func (c *SpanChain) SplitSpans(offset uint64) error {
	return c.lock.WithLock(func() error {
		return c.splitAtLocked(offset)
	})
}

// splitAtLocked ensures a boundary at offset. Caller holds the write
// lock.
func (c *SpanChain) splitAtLocked(offset uint64) error {
	if offset == 0 || offset >= c.length {
		return nil
	}

	idx, inner := c.findSpanIndexLocked(offset)
	if idx < 0 {
		return nil
	}

	if inner == 0 {
		return nil // already aligned
	}

	e := c.entries[idx]

	left, right, err := e.span.Split(inner)
	if err != nil {
		return err
	}

	if e.unsub != nil {
		e.unsub()
	}

	leftEntry := &entry{span: left, savepoint: e.savepoint}
	rightEntry := &entry{span: right, savepoint: e.savepoint}
	c.subscribe(leftEntry)
	c.subscribe(rightEntry)

	replacement := []*entry{leftEntry, rightEntry}

	merged := make([]*entry, 0, len(c.entries)+1)
	merged = append(merged, c.entries[:idx]...)
	merged = append(merged, replacement...)
	merged = append(merged, c.entries[idx+1:]...)
	c.entries = merged

	return nil
}

// InsertSpan is a convenience wrapper around InsertChain for a single
// span.
func (c *SpanChain) InsertSpan(offset uint64, s Span) error {
	return c.InsertChain(offset, FromSpans([]Span{s}))
}

// InsertChain splits the chain at offset, clones chain's entries
// (carrying their savepoints), and splices them in. offset == Length()
// is append; offset > Length() is an error (spec §4.3).
func (c *SpanChain) InsertChain(offset uint64, chain *SpanChain) error {
	toInsert := chain.Clone().entries
	if len(toInsert) == 0 {
		return nil
	}

	return c.lock.WithLock(func() error {
		if offset > c.length {
			return ErrOutOfBounds
		}

		if err := c.splitAtLocked(offset); err != nil {
			return err
		}

		idx, _ := c.findSpanIndexLocked(offset)
		if idx < 0 {
			idx = len(c.entries)
		}

		var addedLength uint64
		for _, e := range toInsert {
			addedLength += e.span.Length()
		}

		merged := make([]*entry, 0, len(c.entries)+len(toInsert))
		merged = append(merged, c.entries[:idx]...)
		merged = append(merged, toInsert...)
		merged = append(merged, c.entries[idx:]...)
		c.entries = merged
		c.length += addedLength

		return nil
	})
}

// Remove drops [offset, offset+length) from the chain. The non-strict
// bound resolved in spec.md §9 is adopted: offset+length == Length() is
// legal (it is simply "remove to the end").
func (c *SpanChain) Remove(offset, length uint64) error {
	return c.lock.WithLock(func() error {
		end, err := addLengths(offset, length)
		if err != nil {
			return err
		}

		if length == 0 {
			return nil
		}

		if end > c.length {
			return ErrOutOfBounds
		}

		if err := c.splitAtLocked(offset); err != nil {
			return err
		}

		if err := c.splitAtLocked(end); err != nil {
			return err
		}

		startIdx, _ := c.findSpanIndexLocked(offset)
		if startIdx < 0 {
			return nil
		}

		endIdx := len(c.entries)
		if end < c.length {
			endIdx, _ = c.findSpanIndexLocked(end)
		}

		for _, e := range c.entries[startIdx:endIdx] {
			if e.unsub != nil {
				e.unsub()
			}

			c.length -= e.span.Length()
		}

		merged := make([]*entry, 0, len(c.entries)-(endIdx-startIdx))
		merged = append(merged, c.entries[:startIdx]...)
		merged = append(merged, c.entries[endIdx:]...)
		c.entries = merged

		return nil
	})
}

// TakeSpans splits the chain at both ends of [offset, offset+length),
// returns the exact covering spans, and drops them from the chain.
func (c *SpanChain) TakeSpans(offset, length uint64) ([]Span, error) {
	var out []Span

	err := c.lock.WithLock(func() error {
		end, addErr := addLengths(offset, length)
		if addErr != nil {
			return addErr
		}

		if length == 0 {
			return nil
		}

		if end > c.length {
			return ErrOutOfBounds
		}

		if err := c.splitAtLocked(offset); err != nil {
			return err
		}

		if err := c.splitAtLocked(end); err != nil {
			return err
		}

		startIdx, _ := c.findSpanIndexLocked(offset)

		endIdx := len(c.entries)
		if end < c.length {
			endIdx, _ = c.findSpanIndexLocked(end)
		}

		out = make([]Span, 0, endIdx-startIdx)
		for _, e := range c.entries[startIdx:endIdx] {
			if e.unsub != nil {
				e.unsub()
			}

			c.length -= e.span.Length()
			out = append(out, e.span)
		}

		merged := make([]*entry, 0, len(c.entries)-(endIdx-startIdx))
		merged = append(merged, c.entries[:startIdx]...)
		merged = append(merged, c.entries[endIdx:]...)
		c.entries = merged

		return nil
	})

	return out, err
}

// TakeChain is the non-destructive counterpart to TakeSpans: it returns
// a new chain containing a clone of [offset, offset+length), sharing the
// same underlying span references, and leaves the receiver unchanged
// (spec §8 property 5).
func (c *SpanChain) TakeChain(offset, length uint64) (*SpanChain, error) {
	var out *SpanChain

	err := c.lock.WithLock(func() error {
		end, addErr := addLengths(offset, length)
		if addErr != nil {
			return addErr
		}

		if length == 0 {
			out = New()
			return nil
		}

		if end > c.length {
			return ErrOutOfBounds
		}

		if err := c.splitAtLocked(offset); err != nil {
			return err
		}

		if err := c.splitAtLocked(end); err != nil {
			return err
		}

		startIdx, _ := c.findSpanIndexLocked(offset)

		endIdx := len(c.entries)
		if end < c.length {
			endIdx, _ = c.findSpanIndexLocked(end)
		}

		out = New()
		for _, e := range c.entries[startIdx:endIdx] {
			out.appendEntry(&entry{span: e.span, savepoint: e.savepoint})
		}

		return nil
	})

	return out, err
}

// ExportRange behaves like TakeChain but converts PrimitiveDeviceSpans to
// DataSpans, bounded by ramLimit bytes of materialization budget:
// ramLimit == -1 is unlimited, ramLimit == 0 materializes nothing (pure
// clone, keeping device references). The result's entries all carry
// savepoint -1 (spec §4.3, §8 property 6).
func (c *SpanChain) ExportRange(offset, length uint64, ramLimit int64) (*SpanChain, error) {
	cloned, err := c.TakeChain(offset, length)
	if err != nil {
		return nil, err
	}

	if ramLimit == 0 {
		for _, e := range cloned.entries {
			e.savepoint = -1
		}

		return cloned, nil
	}

	budget := ramLimit

	materialized := make([]*entry, 0, len(cloned.entries))

	for _, e := range cloned.entries {
		prim, ok := e.span.(*PrimitiveDeviceSpan)
		if !ok {
			e.savepoint = -1
			materialized = append(materialized, e)

			continue
		}

		l := prim.Length()
		if ramLimit > 0 && int64(l) > budget {
			e.savepoint = -1
			materialized = append(materialized, e)

			continue
		}

		data, readErr := prim.Read(0, l)
		if readErr != nil {
			return nil, readErr
		}

		ds, dsErr := NewDataSpan(data)
		if dsErr != nil {
			return nil, dsErr
		}

		if e.unsub != nil {
			e.unsub()
		}

		ne := &entry{span: ds, savepoint: -1}
		materialized = append(materialized, ne)

		if ramLimit > 0 {
			budget -= int64(l)
		}
	}

	cloned.entries = materialized

	return cloned, nil
}

// SetSpans replaces the chain's entire contents. Used by Document.Save
// to collapse the main chain down to a single DeviceSpan after a
// save-in-place completes (spec §4.5).
func (c *SpanChain) SetSpans(spans []Span, savepoint int64) {
	_ = c.lock.WithLock(func() error {
		for _, e := range c.entries {
			if e.unsub != nil {
				e.unsub()
			}
		}

		c.entries = nil
		c.length = 0

		for _, s := range spans {
			c.appendEntry(&entry{span: s, savepoint: savepoint})
		}

		return nil
	})
}

// SetCommonSavepoint stamps every entry with sp.
func (c *SpanChain) SetCommonSavepoint(sp int64) {
	_ = c.lock.WithLock(func() error {
		for _, e := range c.entries {
			e.savepoint = sp
		}

		return nil
	})
}

// SpanSavepoint returns the savepoint of the first entry whose span is s.
func (c *SpanChain) SpanSavepoint(s Span) (int64, bool) {
	var (
		sp    int64
		found bool
	)

	_ = c.lock.WithRLock(func() error {
		for _, e := range c.entries {
			if e.span == s {
				sp, found = e.savepoint, true
				return nil
			}
		}

		return nil
	})

	return sp, found
}

// Clear empties the chain.
func (c *SpanChain) Clear() {
	c.SetSpans(nil, -1)
}

// RangeModified reports whether any entry covering [offset, offset+length)
// carries a savepoint different from currentSavepoint (spec §4.4).
func (c *SpanChain) RangeModified(offset, length uint64, currentSavepoint int64) bool {
	spans, _, _, err := c.SpansInRange(offset, length)
	if err != nil {
		return false
	}

	var out bool

	_ = c.lock.WithRLock(func() error {
		for _, s := range spans {
			for _, e := range c.entries {
				if e.span == s {
					if e.savepoint != currentSavepoint {
						out = true
					}

					break
				}
			}
		}

		return nil
	})

	return out
}
