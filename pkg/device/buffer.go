package device

import (
	"github.com/google/uuid"
	"github.com/zenwarr/microhex/pkg/rwlock"
	"github.com/zenwarr/microhex/pkg/span"
)

// BufferDevice is an in-memory device (a microhex "microdata://" device):
// clipboard payloads, undo-buffer materializations, and scratch buffers
// all go through one of these rather than a file (spec §3, §4.1).
//
// Its bytes already live in RAM, so unlike FileDevice it has no block
// cache to wrap - reading is just a mutex-protected slice access.
type BufferDevice struct {
	lock rwlock.RWLock

	id   uuid.UUID
	data []byte

	registry *spanRegistry
	closed   bool
}

// NewBufferDevice creates a device over a private copy of data.
func NewBufferDevice(data []byte) *BufferDevice {
	owned := make([]byte, len(data))
	copy(owned, data)

	return &BufferDevice{id: uuid.New(), data: owned, registry: newSpanRegistry()}
}

func (d *BufferDevice) Length() uint64 {
	var out uint64

	_ = d.lock.WithRLock(func() error {
		out = uint64(len(d.data))
		return nil
	})

	return out
}

func (d *BufferDevice) Read(offset, length uint64) ([]byte, error) {
	var out []byte

	err := d.lock.WithRLock(func() error {
		if d.closed {
			return ErrClosed
		}

		total := uint64(len(d.data))

		if offset > total {
			return span.ErrOutOfBounds
		}

		if end := offset + length; end > total {
			length = total - offset
		}

		out = make([]byte, length)
		copy(out, d.data[offset:offset+length])

		return nil
	})

	return out, err
}

func (d *BufferDevice) CreateSpan(offset, length uint64) (*span.PrimitiveDeviceSpan, error) {
	s, err := span.NewPrimitiveDeviceSpan(d, offset, length)
	if err != nil {
		return nil, err
	}

	d.registry.register(s)

	return s, nil
}

func (d *BufferDevice) Write(offset uint64, data []byte) error {
	return d.lock.WithLock(func() error {
		if d.closed {
			return ErrClosed
		}

		if end := offset + uint64(len(data)); end > uint64(len(d.data)) {
			return span.ErrOutOfBounds
		}

		copy(d.data[offset:], data)

		return nil
	})
}

// Resize grows or shrinks the buffer in place; growth zero-fills.
func (d *BufferDevice) Resize(newLength uint64) error {
	return d.lock.WithLock(func() error {
		if d.closed {
			return ErrClosed
		}

		switch {
		case newLength == uint64(len(d.data)):
			return nil
		case newLength < uint64(len(d.data)):
			d.data = d.data[:newLength]
		default:
			grown := make([]byte, newLength)
			copy(grown, d.data)
			d.data = grown
		}

		return nil
	})
}

func (d *BufferDevice) IsReadOnly() bool  { return false }
func (d *BufferDevice) IsFixedSize() bool { return false }

// IsSharedResource is always false: a buffer device's identity is a
// fresh UUID private to this process, never something another device
// instance could also be opened against.
func (d *BufferDevice) IsSharedResource() bool { return false }

func (d *BufferDevice) URL() string { return "microdata://" + d.id.String() }

// CreateSaver returns a plain block-copy saver: there is no atomic-swap
// protocol for an in-memory device, just an ordinary buffered write.
func (d *BufferDevice) CreateSaver() (span.Saver, error) {
	return newBufferSaver(d), nil
}

// SetCacheSize is a no-op: BufferDevice has no cache to tune.
func (d *BufferDevice) SetCacheSize(Tuning) {}

func (d *BufferDevice) LiveSpans() []*span.PrimitiveDeviceSpan { return d.registry.all() }

func (d *BufferDevice) OverlappingSpans(offset, length uint64) []*span.PrimitiveDeviceSpan {
	return d.registry.overlapping(offset, length)
}

func (d *BufferDevice) Close() error {
	return d.lock.WithLock(func() error {
		d.closed = true
		return nil
	})
}

var _ Device = (*BufferDevice)(nil)
