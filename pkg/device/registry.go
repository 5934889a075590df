package device

import (
	"runtime"
	"sync"

	"github.com/google/btree"
	"github.com/zenwarr/microhex/pkg/span"
)

// exclusivity is the process-wide registry of file devices currently
// open for writing, keyed by canonical path. In addition to the OS-level
// flock held on the file (which guards against other processes), this
// guards against two FileDevice values in the *same* process racing each
// other (spec §4.1: "IsSharedResource").
var exclusivity = struct {
	mu    sync.Mutex
	paths map[string]int
}{paths: make(map[string]int)}

func acquireExclusive(path string) bool {
	exclusivity.mu.Lock()
	defer exclusivity.mu.Unlock()

	if exclusivity.paths[path] > 0 {
		return false
	}

	exclusivity.paths[path] = 1

	return true
}

func releaseExclusive(path string) {
	exclusivity.mu.Lock()
	defer exclusivity.mu.Unlock()

	delete(exclusivity.paths, path)
}

// primitiveEntry is the item the live-span registry stores, ordered by
// deviceOffset so save can efficiently ask "what live spans overlap
// [offset, offset+length)?" (spec §4.5 dissolution).
type primitiveEntry struct {
	offset uint64
	length uint64
	id     uint64
	span   *span.PrimitiveDeviceSpan
}

func lessPrimitiveEntry(a, b primitiveEntry) bool {
	if a.offset != b.offset {
		return a.offset < b.offset
	}

	return a.id < b.id
}

// spanRegistry tracks every PrimitiveDeviceSpan a Device has ever handed
// out that is still reachable. Entries are removed automatically once
// the span is garbage collected (via runtime.AddCleanup), satisfying
// spec.md invariant 4 ("dropping every reference to it removes it from
// tracking") without requiring callers to explicitly unregister.
type spanRegistry struct {
	mu     sync.Mutex
	nextID uint64
	tree   *btree.BTreeG[primitiveEntry]
}

func newSpanRegistry() *spanRegistry {
	return &spanRegistry{tree: btree.NewG(32, lessPrimitiveEntry)}
}

// register adds s to the registry and arranges for its automatic removal
// when s becomes unreachable.
func (r *spanRegistry) register(s *span.PrimitiveDeviceSpan) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++

	e := primitiveEntry{offset: s.DeviceOffset(), length: s.Length(), id: id, span: s}
	r.tree.ReplaceOrInsert(e)
	r.mu.Unlock()

	runtime.AddCleanup(s, func(removeID uint64) {
		r.remove(e.offset, removeID)
	}, id)
}

func (r *spanRegistry) remove(offset uint64, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tree.Delete(primitiveEntry{offset: offset, id: id})
}

// overlapping returns every live span overlapping [offset, offset+length),
// ordered by deviceOffset, skipping any span that has already dissolved.
func (r *spanRegistry) overlapping(offset, length uint64) []*span.PrimitiveDeviceSpan {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*span.PrimitiveDeviceSpan

	end := offset + length

	// A span starting before offset can still overlap it, so scan from
	// the start of the tree; save ranges are typically sparse enough
	// that this is not the hot path it would be for a live editor.
	r.tree.Ascend(func(e primitiveEntry) bool {
		if e.offset >= end {
			return false
		}

		if e.offset+e.length > offset && !e.span.IsDissolved() {
			out = append(out, e.span)
		}

		return true
	})

	return out
}

// all returns every live span currently tracked, ordered by deviceOffset.
func (r *spanRegistry) all() []*span.PrimitiveDeviceSpan {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*span.PrimitiveDeviceSpan

	r.tree.Ascend(func(e primitiveEntry) bool {
		if !e.span.IsDissolved() {
			out = append(out, e.span)
		}

		return true
	})

	return out
}
