package document_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	internalfs "github.com/zenwarr/microhex/internal/fs"
	"github.com/zenwarr/microhex/pkg/device"
	"github.com/zenwarr/microhex/pkg/document"
	"github.com/zenwarr/microhex/pkg/span"
)

func Test_Document_CheckCanQuickSave_True_When_Length_Unchanged(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := device.OpenFile(internalfs.NewReal(), path, device.LoadOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer d.Close()

	doc, err := document.New(d)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	if !doc.CheckCanQuickSave() {
		t.Fatalf("CheckCanQuickSave() = false on an untouched document")
	}

	s, _ := span.NewDataSpan([]byte("X"))
	if err := doc.InsertSpan(0, s); err != nil {
		t.Fatalf("InsertSpan: %v", err)
	}

	if doc.CheckCanQuickSave() {
		t.Fatalf("CheckCanQuickSave() = true after the length changed")
	}
}

func Test_Document_Save_Quick_Path_Overwrites_File_In_Place(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := device.OpenFile(internalfs.NewReal(), path, device.LoadOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer d.Close()

	doc, err := document.New(d)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	s, _ := span.NewDataSpan([]byte("X"))
	if err := doc.WriteSpan(0, s); err != nil {
		t.Fatalf("WriteSpan: %v", err)
	}

	if !doc.CheckCanQuickSave() {
		t.Fatalf("CheckCanQuickSave() = false after a same-length write")
	}

	if err := doc.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if !bytes.Equal(got, []byte("X123456789")) {
		t.Fatalf("file content after quick save = %q, want %q", got, "X123456789")
	}
}

func Test_Document_Save_Full_Rewrite_Path_Used_When_Length_Changes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := device.OpenFile(internalfs.NewReal(), path, device.LoadOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer d.Close()

	doc, err := document.New(d)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	s, _ := span.NewDataSpan([]byte("ABC"))
	if err := doc.InsertSpan(0, s); err != nil {
		t.Fatalf("InsertSpan: %v", err)
	}

	if doc.CheckCanQuickSave() {
		t.Fatalf("CheckCanQuickSave() = true after the document grew")
	}

	if err := doc.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if !bytes.Equal(got, []byte("ABC0123456789")) {
		t.Fatalf("file content after full-rewrite save = %q, want %q", got, "ABC0123456789")
	}
}

// A foreign PrimitiveDeviceSpan - one the document's own chain no longer
// references, such as one still sitting in the undo stack after a Remove -
// must keep reading the bytes it captured even after a Save rewrites the
// device underneath it.
func Test_Document_Save_Dissolves_Foreign_Spans_So_They_Keep_Their_Old_Content(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := device.OpenFile(internalfs.NewReal(), path, device.LoadOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer d.Close()

	doc, err := document.New(d)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	if err := doc.Remove(2, 3); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	s, _ := span.NewDataSpan([]byte("ZZZZZ"))
	if err := doc.AppendSpan(s); err != nil {
		t.Fatalf("AppendSpan: %v", err)
	}

	if err := doc.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("0156789ZZZZZ")) {
		t.Fatalf("ReadAll() after edits+save = %q", got)
	}

	// The undo stack still holds a reference to the "234" removed before
	// the save - a foreign span over the device that Save must have
	// dissolved into a frozen copy, since the file's bytes at those
	// offsets have since been rewritten by the save itself.
	if err := doc.Undo(); err != nil {
		t.Fatalf("Undo (append): %v", err)
	}

	if err := doc.Undo(); err != nil {
		t.Fatalf("Undo (remove): %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("0123456789")) {
		t.Fatalf("ReadAll() after undoing past the save = %q, want original %q", got, "0123456789")
	}
}

// S5 from spec.md: a DeviceSpan captured before a remove-then-save must
// keep returning its original content, and its inner chain must end up
// as exactly three pieces - Primitive, Data, Primitive - not one giant
// materialized DataSpan, since most of the captured range still survives
// the save under a new offset.
func Test_Document_Save_Splits_Captured_Span_Into_Surviving_Primitives_And_Removed_Data(t *testing.T) {
	t.Parallel()

	const size = 1000

	original := make([]byte, size)
	for i := range original {
		original[i] = 0xFF
	}

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, original, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := device.OpenFile(internalfs.NewReal(), path, device.LoadOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer d.Close()

	doc, err := document.New(d)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	captured, err := doc.CreateConstantFrame(0, doc.Length())
	if err != nil {
		t.Fatalf("CreateConstantFrame: %v", err)
	}

	if err := doc.Remove(40, 100); err != nil {
		t.Fatalf("Remove(40, 100): %v", err)
	}

	if err := doc.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if got := captured.ReadAll(); !bytes.Equal(got, original) {
		t.Fatalf("captured frame after save = %d bytes not matching original, want %d bytes of 0xFF", len(got), size)
	}

	entries := captured.Spans()
	if len(entries) != 1 {
		t.Fatalf("captured.Spans() = %d entries, want 1 (a single DeviceSpan)", len(entries))
	}

	ds, ok := entries[0].(*span.DeviceSpan)
	if !ok {
		t.Fatalf("captured.Spans()[0] = %T, want *span.DeviceSpan", entries[0])
	}

	primitives := ds.Primitives()
	if len(primitives) != 2 {
		t.Fatalf("DeviceSpan.Primitives() = %d entries, want 2 (the surviving halves on either side of the removed data)", len(primitives))
	}

	var primitivesLength uint64
	for p := range primitives {
		primitivesLength += p.Length()
	}

	wantDataLength := uint64(size) - primitivesLength
	if wantDataLength != 100 {
		t.Fatalf("removed (materialized) portion = %d bytes, want 100", wantDataLength)
	}
}

func Test_Document_Save_Returns_Error_On_ReadOnly_Device(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := device.OpenFile(internalfs.NewReal(), path, device.LoadOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer d.Close()

	doc, err := document.New(d)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	if err := doc.Save(); err != document.ErrReadOnly {
		t.Fatalf("Save() on read-only device: err=%v, want %v", err, document.ErrReadOnly)
	}
}

func Test_Document_Save_On_Buffer_Device_Rewrites_Backing_Slice(t *testing.T) {
	t.Parallel()

	d := device.NewBufferDevice([]byte("hello"))

	doc, err := document.New(d)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	s, _ := span.NewDataSpan([]byte(" world"))
	if err := doc.AppendSpan(s); err != nil {
		t.Fatalf("AppendSpan: %v", err)
	}

	if err := doc.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := d.Read(0, d.Length())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("buffer device content after Save = %q, want %q", got, "hello world")
	}
}
