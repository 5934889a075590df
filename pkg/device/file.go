package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	internalfs "github.com/zenwarr/microhex/internal/fs"
	"github.com/zenwarr/microhex/pkg/rwlock"
	"github.com/zenwarr/microhex/pkg/span"
)

// LoadOptions controls how OpenFile opens a backing file.
type LoadOptions struct {
	// ReadOnly opens the file without attempting to acquire exclusive
	// write access. A ReadOnly device never tries to reopen itself for
	// writing.
	ReadOnly bool

	// Tuning configures the block cache; the zero value means
	// DefaultTuning(). Takes precedence over TuningFilePath.
	Tuning Tuning

	// TuningFilePath, if set and Tuning is the zero value, is read via
	// TuningFromFile to configure the block cache instead of
	// DefaultTuning().
	TuningFilePath string
}

// FileDevice is a device backed by a file on disk (a microhex "file://"
// device). Opening for writing acquires both an in-process exclusivity
// token and an OS-level flock on the file, so a second FileDevice over
// the same path - in this process or another - fails with
// ErrDeviceConflict rather than silently racing (spec §4.1).
type FileDevice struct {
	lock rwlock.RWLock

	fsys internalfs.FS
	path string

	file     internalfs.File
	flock    internalfs.Locker
	readOnly bool
	exclKey  string

	length uint64
	cache  *blockCache

	registry *spanRegistry
	closed   bool
}

// OpenFile opens path as a device. If opts.ReadOnly is false, OpenFile
// opens for read-write and fails with ErrDeviceConflict when another
// FileDevice in this process (or, via flock, another process) already
// holds the path for writing. It does not fall back to a read-only
// device on any failure; pass opts.ReadOnly to open read-only.
func OpenFile(fsys internalfs.FS, path string, opts LoadOptions) (*FileDevice, error) {
	canon, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving path %q: %v", ErrDeviceIO, path, err)
	}

	if opts.TuningFilePath != "" && opts.Tuning == (Tuning{}) {
		t, err := TuningFromFile(opts.TuningFilePath)
		if err != nil {
			return nil, err
		}

		opts.Tuning = t
	}

	if opts.ReadOnly {
		return openFileReadOnly(fsys, canon, opts)
	}

	d, err := openFileReadWrite(fsys, canon, opts)
	if err == nil {
		return d, nil
	}

	return nil, err
}

func openFileReadOnly(fsys internalfs.FS, path string, opts LoadOptions) (*FileDevice, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %q read-only: %v", ErrDeviceIO, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: statting %q: %v", ErrDeviceIO, path, err)
	}

	d := &FileDevice{fsys: fsys, path: path, file: f, readOnly: true, length: uint64(info.Size())}
	d.registry = newSpanRegistry()
	d.cache = newBlockCache(d.rawRead, d.Length, tuningOrDefault(opts.Tuning))

	return d, nil
}

func openFileReadWrite(fsys internalfs.FS, path string, opts LoadOptions) (*FileDevice, error) {
	if !acquireExclusive(path) {
		return nil, ErrDeviceConflict
	}

	flock, err := fsys.Lock(path)
	if err != nil {
		releaseExclusive(path)

		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q does not exist", ErrDeviceIO, path)
		}

		return nil, ErrDeviceConflict
	}

	f, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		_ = flock.Close()
		releaseExclusive(path)

		return nil, fmt.Errorf("%w: opening %q read-write: %v", ErrDeviceIO, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		_ = flock.Close()
		releaseExclusive(path)

		return nil, fmt.Errorf("%w: statting %q: %v", ErrDeviceIO, path, err)
	}

	d := &FileDevice{
		fsys: fsys, path: path, file: f, flock: flock, exclKey: path,
		length: uint64(info.Size()),
	}
	d.registry = newSpanRegistry()
	d.cache = newBlockCache(d.rawRead, d.Length, tuningOrDefault(opts.Tuning))

	return d, nil
}

func tuningOrDefault(t Tuning) Tuning {
	if t.BlockSize == 0 || t.CacheBlocks == 0 {
		return DefaultTuning()
	}

	return t
}

var fileIOMu sync.Mutex

// rawRead is the uncached backing read the block cache wraps. *os.File
// (via internalfs.File) is safe for concurrent Read/Seek pairs only if
// serialized, since Seek+Read is not atomic.
func (d *FileDevice) rawRead(offset, length uint64) ([]byte, error) {
	fileIOMu.Lock()
	defer fileIOMu.Unlock()

	if _, err := d.file.Seek(int64(offset), 0); err != nil {
		return nil, fmt.Errorf("%w: seeking: %v", ErrDeviceIO, err)
	}

	out := make([]byte, length)

	n, err := readFull(d.file, out)
	if err != nil {
		return nil, fmt.Errorf("%w: reading: %v", ErrDeviceIO, err)
	}

	return out[:n], nil
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	var total int

	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n

		if err != nil {
			if total > 0 {
				return total, nil
			}

			return total, err
		}

		if n == 0 {
			break
		}
	}

	return total, nil
}

func (d *FileDevice) Length() uint64 {
	var out uint64

	_ = d.lock.WithRLock(func() error {
		out = d.length
		return nil
	})

	return out
}

func (d *FileDevice) Read(offset, length uint64) ([]byte, error) {
	var (
		out []byte
		err error
	)

	rErr := d.lock.WithRLock(func() error {
		if d.closed {
			return ErrClosed
		}

		if end := offset + length; end > d.length {
			if offset > d.length {
				return span.ErrOutOfBounds
			}

			length = d.length - offset
		}

		if length == 0 {
			out = []byte{}
			return nil
		}

		out, err = d.cache.Read(offset, length)

		return err
	})

	if rErr != nil {
		return nil, rErr
	}

	return out, err
}

// CreateSpan hands out a PrimitiveDeviceSpan over this device and
// registers it so a future Save can find it (spec §4.1, §4.2).
func (d *FileDevice) CreateSpan(offset, length uint64) (*span.PrimitiveDeviceSpan, error) {
	s, err := span.NewPrimitiveDeviceSpan(d, offset, length)
	if err != nil {
		return nil, err
	}

	d.registry.register(s)

	return s, nil
}

func (d *FileDevice) Write(offset uint64, data []byte) error {
	return d.lock.WithLock(func() error {
		if d.closed {
			return ErrClosed
		}

		if d.readOnly {
			return ErrReadOnly
		}

		if end := offset + uint64(len(data)); end > d.length {
			return span.ErrOutOfBounds
		}

		fileIOMu.Lock()
		defer fileIOMu.Unlock()

		if _, err := d.file.Seek(int64(offset), 0); err != nil {
			return fmt.Errorf("%w: seeking: %v", ErrDeviceIO, err)
		}

		if _, err := d.file.Write(data); err != nil {
			return fmt.Errorf("%w: writing: %v", ErrDeviceIO, err)
		}

		d.cache.invalidate()

		return nil
	})
}

// Resize changes the file's length via truncate. It does not dissolve
// or otherwise touch live spans whose range no longer fits.
func (d *FileDevice) Resize(newLength uint64) error {
	return d.lock.WithLock(func() error {
		if d.closed {
			return ErrClosed
		}

		if d.readOnly {
			return ErrReadOnly
		}

		t, ok := d.file.(interface{ Truncate(int64) error })
		if !ok {
			return ErrFixedSize
		}

		if err := t.Truncate(int64(newLength)); err != nil {
			return fmt.Errorf("%w: truncating: %v", ErrDeviceIO, err)
		}

		d.length = newLength
		d.cache.invalidate()

		return nil
	})
}

func (d *FileDevice) IsReadOnly() bool { return d.readOnly }

// IsFixedSize reports whether Resize can ever succeed; a read-only file
// device cannot resize, but a writable one backed by a regular file can.
func (d *FileDevice) IsFixedSize() bool { return d.readOnly }

// IsSharedResource reports that this device's bytes live at a path that
// could, in principle, be opened again independently (spec §4.1).
func (d *FileDevice) IsSharedResource() bool { return true }

func (d *FileDevice) URL() string { return "file://" + d.path }

// CreateSaver always returns a FileSaver (atomic temp-file swap). The
// in-place saver comes from CreateQuickSaver; Document.Save decides which
// to request.
func (d *FileDevice) CreateSaver() (span.Saver, error) {
	if d.readOnly {
		return nil, ErrReadOnly
	}

	return newFileSaver(d), nil
}

// CreateQuickSaver returns a saver that overwrites bytes in place at
// ascending offsets, satisfying QuickSaveCapable.
func (d *FileDevice) CreateQuickSaver() (span.Saver, error) {
	if d.readOnly {
		return nil, ErrReadOnly
	}

	return newQuickSaver(d), nil
}

func (d *FileDevice) SetCacheSize(t Tuning) {
	_ = d.lock.WithLock(func() error {
		d.cache = newBlockCache(d.rawRead, func() uint64 { return d.length }, tuningOrDefault(t))
		return nil
	})
}

// LiveSpans returns every PrimitiveDeviceSpan this device has handed out
// and that is still reachable, ordered by device offset. Used by
// Document.Save's dissolution pass.
func (d *FileDevice) LiveSpans() []*span.PrimitiveDeviceSpan { return d.registry.all() }

// OverlappingSpans returns live spans overlapping [offset, offset+length).
func (d *FileDevice) OverlappingSpans(offset, length uint64) []*span.PrimitiveDeviceSpan {
	return d.registry.overlapping(offset, length)
}

// reopenAfterSave replaces the device's file handle after a rename-based
// save has swapped a new inode into d.path: the old handle now refers to
// the unlinked previous contents and must be dropped.
func (d *FileDevice) reopenAfterSave() error {
	return d.lock.WithLock(func() error {
		newFile, err := d.fsys.OpenFile(d.path, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("%w: reopening %q after save: %v", ErrDeviceIO, d.path, err)
		}

		info, err := newFile.Stat()
		if err != nil {
			_ = newFile.Close()
			return fmt.Errorf("%w: statting %q after save: %v", ErrDeviceIO, d.path, err)
		}

		_ = d.file.Close()
		d.file = newFile
		d.length = uint64(info.Size())
		d.cache.invalidate()

		return nil
	})
}

// Close releases the file handle and, if held, the exclusivity lock.
// Close is idempotent.
func (d *FileDevice) Close() error {
	return d.lock.WithLock(func() error {
		if d.closed {
			return nil
		}

		d.closed = true

		var firstErr error

		if d.flock != nil {
			if err := d.flock.Close(); err != nil && firstErr == nil {
				firstErr = err
			}

			releaseExclusive(d.exclKey)
		}

		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		return firstErr
	})
}

var _ Device = (*FileDevice)(nil)
