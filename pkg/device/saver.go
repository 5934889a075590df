package device

import (
	"fmt"
	"os"

	internalfs "github.com/zenwarr/microhex/internal/fs"
	"github.com/zenwarr/microhex/pkg/span"
)

// streamChunkSize bounds how much of any single span Put copies into
// memory at once, so saving a multi-gigabyte FillSpan does not require a
// multi-gigabyte buffer (spec §4.5).
const streamChunkSize = 1 << 20

// quickSaver overwrites device bytes in place at ascending offsets. It
// is only safe to use when Document.Save has already established that
// the new content is no longer than the old and every live span outside
// the write set can keep referencing its current device range (spec
// §4.4 CheckCanQuickSave, §4.5).
type quickSaver struct {
	device *FileDevice
	offset uint64
	failed bool
}

func newQuickSaver(d *FileDevice) *quickSaver { return &quickSaver{device: d} }

func (s *quickSaver) Begin() error { return nil }

func (s *quickSaver) PutSpan(sp span.Span) error {
	return span.StreamSpan(sp, streamChunkSize, func(chunk []byte) error {
		if err := s.device.Write(s.offset, chunk); err != nil {
			s.failed = true
			return err
		}

		s.offset += uint64(len(chunk))

		return nil
	})
}

func (s *quickSaver) Complete() error {
	if s.failed {
		return fmt.Errorf("%w: quick save left the file partially written", ErrDeviceIO)
	}

	return nil
}

func (s *quickSaver) Fail() error { return nil }

// fileSaver writes a fresh copy of the document to a temp file beside
// the target and swaps it into place with rename, so a crash mid-save
// never leaves the original truncated or corrupted (spec §4.5). The temp
// name follows "{target}.mhs" with a numeric suffix on collision,
// mirroring the naming scheme the teacher's own atomic-write helper uses
// for its own temp files.
type fileSaver struct {
	device  *FileDevice
	tmpPath string
	tmpFile internalfs.File
}

func newFileSaver(d *FileDevice) *fileSaver { return &fileSaver{device: d} }

func (s *fileSaver) Begin() error {
	path, f, err := createTempSibling(s.device.fsys, s.device.path)
	if err != nil {
		return fmt.Errorf("%w: creating save temp file: %v", ErrDeviceIO, err)
	}

	s.tmpPath, s.tmpFile = path, f

	return nil
}

func createTempSibling(fsys internalfs.FS, target string) (string, internalfs.File, error) {
	base := target + ".mhs"

	for attempt := 0; attempt < 1000; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}

		f, err := fsys.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err == nil {
			return candidate, f, nil
		}

		if !os.IsExist(err) {
			return "", nil, err
		}
	}

	return "", nil, fmt.Errorf("exhausted temp file name attempts for %q", target)
}

func (s *fileSaver) PutSpan(sp span.Span) error {
	return span.StreamSpan(sp, streamChunkSize, func(chunk []byte) error {
		_, err := s.tmpFile.Write(chunk)
		return err
	})
}

func (s *fileSaver) Complete() error {
	if err := s.tmpFile.Sync(); err != nil {
		_ = s.tmpFile.Close()
		return fmt.Errorf("%w: syncing save temp file: %v", ErrDeviceIO, err)
	}

	if err := s.tmpFile.Close(); err != nil {
		return fmt.Errorf("%w: closing save temp file: %v", ErrDeviceIO, err)
	}

	if err := s.device.fsys.Rename(s.tmpPath, s.device.path); err != nil {
		return fmt.Errorf("%w: renaming save temp file into place: %v", ErrDeviceIO, err)
	}

	return s.device.reopenAfterSave()
}

func (s *fileSaver) Fail() error {
	if s.tmpFile != nil {
		_ = s.tmpFile.Close()
	}

	if s.tmpPath != "" {
		_ = s.device.fsys.Remove(s.tmpPath)
	}

	return nil
}

// bufferSaver rewrites a BufferDevice's content from scratch; there is
// no partial-failure window to guard since it never touches anything
// outside the process's own memory.
type bufferSaver struct {
	device *BufferDevice
	data   []byte
}

func newBufferSaver(d *BufferDevice) *bufferSaver { return &bufferSaver{device: d} }

func (s *bufferSaver) Begin() error { return nil }

func (s *bufferSaver) PutSpan(sp span.Span) error {
	return span.StreamSpan(sp, streamChunkSize, func(chunk []byte) error {
		s.data = append(s.data, chunk...)
		return nil
	})
}

func (s *bufferSaver) Complete() error {
	if err := s.device.Resize(uint64(len(s.data))); err != nil {
		return err
	}

	return s.device.Write(0, s.data)
}

func (s *bufferSaver) Fail() error { return nil }
