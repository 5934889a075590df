package document

import (
	"fmt"
	"sort"

	"github.com/zenwarr/microhex/pkg/device"
	"github.com/zenwarr/microhex/pkg/span"
)

// liveSpanLister is implemented by every concrete device so Save can
// find everything it handed out, including spans the document itself no
// longer references (undo history, other documents, clipboard handles).
type liveSpanLister interface {
	LiveSpans() []*span.PrimitiveDeviceSpan
}

// CheckCanQuickSave reports whether Save can overwrite the device's
// bytes in place instead of writing a fresh copy and swapping it in:
// that is only sound when the document's length has not changed and the
// device supports in-place writes (spec §4.4, §4.5).
func (doc *Document) CheckCanQuickSave() bool {
	if doc.device == nil {
		return false
	}

	if _, ok := doc.device.(device.QuickSaveCapable); !ok {
		return false
	}

	var out bool

	_ = doc.lock.WithRLock(func() error {
		out = doc.chain.Length() == doc.device.Length()
		return nil
	})

	return out
}

// Save commits the document's content back to its device (spec §4.5).
//
// Before writing, every PrimitiveDeviceSpan the device has handed out
// that is NOT part of this document's current chain - entries sitting in
// the undo/redo stacks, in another document, or held by the clipboard -
// is dissolved: its current bytes are copied into a frozen DataSpan and
// spliced in its place, so it keeps showing the content it captured
// rather than silently picking up whatever ends up at that device offset
// after the save. Saving always invalidates every outstanding reference
// into the device except the one this save itself is writing, whether
// the save is in place or a full rewrite - a quick, same-length overwrite
// still changes the bytes at those offsets.
func (doc *Document) Save() error {
	if doc.device == nil {
		return fmt.Errorf("microhex: document has no device to save to")
	}

	if doc.device.IsReadOnly() {
		return ErrReadOnly
	}

	return doc.lock.WithLock(func() error {
		return doc.saveLocked()
	})
}

func (doc *Document) saveLocked() error {
	prepared, err := doc.materializeForeignSpans()
	if err != nil {
		return err
	}

	saver, err := doc.chooseSaver()
	if err != nil {
		cancelDissolution(prepared)
		return err
	}

	if err := saver.Begin(); err != nil {
		cancelDissolution(prepared)
		return err
	}

	for _, s := range doc.chain.Spans() {
		if err := s.Put(saver); err != nil {
			cancelDissolution(prepared)
			_ = saver.Fail()

			return err
		}
	}

	if err := saver.Complete(); err != nil {
		cancelDissolution(prepared)
		return err
	}

	for _, s := range prepared {
		s.Dissolve()
	}

	return doc.finishSave()
}

func (doc *Document) chooseSaver() (span.Saver, error) {
	if doc.chain.Length() == doc.device.Length() {
		if qc, ok := doc.device.(device.QuickSaveCapable); ok {
			if saver, err := qc.CreateQuickSaver(); err == nil {
				return saver, nil
			}
		}
	}

	return doc.device.CreateSaver()
}

// materializeForeignSpans snapshots and stages dissolution for every live
// span of doc.device that this document's own chain does not currently
// hold. It does not fire the dissolution yet - CancelDissolve can still
// back out if the save fails partway through.
func (doc *Document) materializeForeignSpans() ([]*span.PrimitiveDeviceSpan, error) {
	lister, ok := doc.device.(liveSpanLister)
	if !ok {
		return nil, nil
	}

	ranges, own := buildSavedRanges(doc.chain)

	var prepared []*span.PrimitiveDeviceSpan

	for _, s := range lister.LiveSpans() {
		if _, isOwn := own[s]; isOwn {
			continue
		}

		replacement, err := remapForeignSpan(s, ranges)
		if err != nil {
			cancelDissolution(prepared)
			return nil, err
		}

		s.PrepareToDissolve(replacement)
		prepared = append(prepared, s)
	}

	return prepared, nil
}

// savedRange is one PrimitiveDeviceSpan that survives into the device's
// post-save content (a "Saved Range", spec §4.5), paired with the offset
// it will occupy there. old.DeviceOffset() is still its pre-save offset,
// since the save hasn't physically happened yet when this is computed.
type savedRange struct {
	old       *span.PrimitiveDeviceSpan
	newOffset uint64
}

// buildSavedRanges walks chain's top-level entries - unwrapping DeviceSpans
// that an earlier dissolution split into several primitives - and records
// where each PrimitiveDeviceSpan it finds will live once chain becomes the
// whole content of the device (spec §4.5, grounded on
// original_source/src/documents/document.cpp's _prepareToUpdateDevice,
// "build map of device spans that will stay in resulting device"). The
// returned ranges are ordered by pre-save device offset, breaking ties by
// new offset, so a foreign span whose old bytes are claimed by more than
// one Saved Range (e.g. a region copied twice within the same device)
// resolves deterministically to the first one (DESIGN.md's Saved-Range
// tie-break).
func buildSavedRanges(chain *span.SpanChain) ([]savedRange, map[*span.PrimitiveDeviceSpan]struct{}) {
	var ranges []savedRange

	own := make(map[*span.PrimitiveDeviceSpan]struct{})

	var cur uint64

	for _, s := range chain.Spans() {
		switch v := s.(type) {
		case *span.PrimitiveDeviceSpan:
			ranges = append(ranges, savedRange{old: v, newOffset: cur})
			own[v] = struct{}{}
		case *span.DeviceSpan:
			for p, localOffset := range v.Primitives() {
				ranges = append(ranges, savedRange{old: p, newOffset: cur + localOffset})
				own[p] = struct{}{}
			}
		}

		cur += s.Length()
	}

	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].old.DeviceOffset() != ranges[j].old.DeviceOffset() {
			return ranges[i].old.DeviceOffset() < ranges[j].old.DeviceOffset()
		}

		return ranges[i].newOffset < ranges[j].newOffset
	})

	return ranges, own
}

// remapForeignSpan rebuilds sp's content as a sequence of replacement
// spans: any portion whose pre-save bytes are claimed by a Saved Range is
// rebound to a fresh PrimitiveDeviceSpan at that range's new offset -
// never read into memory - and only the portion that is truly removed
// (not covered by any Saved Range) is materialized into a DataSpan, up to
// the closest surviving range to its right (spec §4.5, §1: "must never
// load whole files into memory"; original_source's
// _prepareToUpdateDevice).
func remapForeignSpan(sp *span.PrimitiveDeviceSpan, ranges []savedRange) ([]span.Span, error) {
	start := sp.DeviceOffset()
	end := start + sp.Length()

	var replacement []span.Span

	for cur := start; cur < end; {
		if r, ok := findSavedRangeContaining(ranges, cur); ok {
			localOffset := cur - r.old.DeviceOffset()
			avail := r.old.Length() - localOffset

			segLen := end - cur
			if avail < segLen {
				segLen = avail
			}

			rep, err := sp.Device().CreateSpan(r.newOffset+localOffset, segLen)
			if err != nil {
				return nil, err
			}

			replacement = append(replacement, rep)
			cur += segLen

			continue
		}

		segLen := end - cur
		if closest, ok := closestSavedRangeAfter(ranges, cur); ok {
			if d := closest.old.DeviceOffset() - cur; d < segLen {
				segLen = d
			}
		}

		data, err := sp.Read(cur-start, segLen)
		if err != nil {
			return nil, err
		}

		frozen, err := span.NewDataSpan(data)
		if err != nil {
			return nil, err
		}

		replacement = append(replacement, frozen)
		cur += segLen
	}

	return replacement, nil
}

// findSavedRangeContaining returns the first (by pre-save offset) Saved
// Range whose pre-save bytes cover offset.
func findSavedRangeContaining(ranges []savedRange, offset uint64) (savedRange, bool) {
	for _, r := range ranges {
		if r.old.DeviceOffset() <= offset && offset < r.old.DeviceOffset()+r.old.Length() {
			return r, true
		}
	}

	return savedRange{}, false
}

// closestSavedRangeAfter returns the Saved Range whose pre-save offset is
// the smallest one still strictly greater than offset, bounding how much
// of a removed stretch must be materialized before the next surviving
// range picks back up.
func closestSavedRangeAfter(ranges []savedRange, offset uint64) (savedRange, bool) {
	var (
		best  savedRange
		found bool
	)

	for _, r := range ranges {
		o := r.old.DeviceOffset()
		if o > offset && (!found || o < best.old.DeviceOffset()) {
			best = r
			found = true
		}
	}

	return best, found
}

func cancelDissolution(spans []*span.PrimitiveDeviceSpan) {
	for _, s := range spans {
		s.CancelDissolve()
	}
}

// finishSave collapses the document's chain down to a single DeviceSpan
// over the whole (now-saved) device and stamps a fresh savepoint, so
// IsModified becomes false until the next edit.
func (doc *Document) finishSave() error {
	doc.savepoint = doc.nextSavepoint
	doc.nextSavepoint++

	total := doc.device.Length()

	if total == 0 {
		doc.chain.SetSpans(nil, doc.savepoint)
		doc.listeners.isModifiedChanged(false)

		return nil
	}

	newSpan, err := span.NewDeviceSpan(doc.device, 0, total)
	if err != nil {
		return err
	}

	doc.chain.SetSpans([]span.Span{newSpan}, doc.savepoint)
	doc.listeners.isModifiedChanged(false)

	return nil
}
