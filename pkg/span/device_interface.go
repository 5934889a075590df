package span

// Device is the narrow view of a device that the span package needs: a
// random-access byte source that can hand out further primitive spans
// over itself. pkg/device's concrete device types satisfy this
// structurally - span never imports pkg/device, so the dependency only
// runs one way (device -> span).
//
// Device values are compared with ==, which is well-defined here because
// every concrete implementation is a pointer type.
type Device interface {
	Length() uint64
	Read(offset, length uint64) ([]byte, error)
	CreateSpan(offset, length uint64) (*PrimitiveDeviceSpan, error)
}
