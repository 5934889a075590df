package device

import (
	"errors"
	"fmt"

	units "github.com/docker/go-units"
)

var (
	// ErrReadOnly is returned by Write/Resize/CreateSaver on a device
	// opened read-only.
	ErrReadOnly = errors.New("microhex: device is read-only")

	// ErrFixedSize is returned by FileDevice.Resize when the open file
	// handle does not support Truncate. Buffer devices never return it.
	ErrFixedSize = errors.New("microhex: device has a fixed size")

	// ErrDeviceConflict is returned when opening a file device for
	// writing while another device (in this process, or - via flock -
	// another process) already holds it open for writing.
	ErrDeviceConflict = errors.New("microhex: device is already open for writing elsewhere")

	// ErrDeviceIO wraps unexpected I/O failures reading or writing the
	// backing store, distinguishing them from protocol-level errors.
	ErrDeviceIO = errors.New("microhex: device I/O error")

	// ErrClosed is returned by any operation on a device after Close.
	ErrClosed = errors.New("microhex: device is closed")
)

// errTooLarge reports a requested size against a hard ceiling, rendering
// both sides in human-readable units rather than raw byte counts.
func errTooLarge(requested, limit uint64) error {
	return fmt.Errorf("%w: requested %s exceeds limit %s",
		ErrDeviceIO, units.BytesSize(float64(requested)), units.BytesSize(float64(limit)))
}
