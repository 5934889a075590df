// Package device implements the editable-byte-range backing stores a
// Document's spans reference: file-backed and in-memory buffer devices,
// each with a recentering block cache, a registry of every live span
// handed out, and a Saver protocol used to commit edits back to storage
// (spec §3, §4.1, §4.5).
package device

import "github.com/zenwarr/microhex/pkg/span"

// Device is the full device contract a Document operates against. It is
// a superset of span.Device (the narrow view pkg/span depends on) so
// every concrete Device here satisfies span.Device structurally without
// either package importing the other's concrete types.
type Device interface {
	Length() uint64
	Read(offset, length uint64) ([]byte, error)
	CreateSpan(offset, length uint64) (*span.PrimitiveDeviceSpan, error)

	Write(offset uint64, data []byte) error
	Resize(newLength uint64) error

	IsReadOnly() bool
	IsFixedSize() bool
	IsSharedResource() bool

	CreateSaver() (span.Saver, error)
	SetCacheSize(t Tuning)

	URL() string
	Close() error
}

var _ span.Device = Device(nil)

// QuickSaveCapable is implemented by devices that can overwrite their
// current bytes in place instead of writing a fresh copy and swapping it
// in. Document.Save type-asserts for this once it has established (via
// CheckCanQuickSave) that doing so is safe for the pending edits.
type QuickSaveCapable interface {
	CreateQuickSaver() (span.Saver, error)
}
