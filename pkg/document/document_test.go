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

func newTestDocument(t *testing.T, content string) (*document.Document, device.Device) {
	t.Helper()

	d := device.NewBufferDevice([]byte(content))

	doc, err := document.New(d)
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	return doc, d
}

func Test_Document_New_Reads_Initial_Device_Content(t *testing.T) {
	t.Parallel()

	doc, _ := newTestDocument(t, "hello world")

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("ReadAll() = %q, want %q", got, "hello world")
	}
}

func Test_Document_InsertSpan_Grows_Document_And_Tracks_Undo(t *testing.T) {
	t.Parallel()

	doc, _ := newTestDocument(t, "helloworld")

	s, err := span.NewDataSpan([]byte(" "))
	if err != nil {
		t.Fatalf("NewDataSpan: %v", err)
	}

	if err := doc.InsertSpan(5, s); err != nil {
		t.Fatalf("InsertSpan: %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("ReadAll() = %q, want %q", got, "hello world")
	}

	if !doc.CanUndo() {
		t.Fatalf("CanUndo() = false after an edit")
	}
}

func Test_Document_Remove_Shrinks_Document(t *testing.T) {
	t.Parallel()

	doc, _ := newTestDocument(t, "hello world")

	if err := doc.Remove(5, 6); err != nil {
		t.Fatalf("Remove(5, 6): %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("ReadAll() = %q, want %q", got, "hello")
	}
}

func Test_Document_WriteSpan_Preserves_Length(t *testing.T) {
	t.Parallel()

	doc, _ := newTestDocument(t, "0123456789")

	s, err := span.NewDataSpan([]byte("XY"))
	if err != nil {
		t.Fatalf("NewDataSpan: %v", err)
	}

	if err := doc.WriteSpan(3, s); err != nil {
		t.Fatalf("WriteSpan: %v", err)
	}

	if doc.Length() != 10 {
		t.Fatalf("Length() = %d, want 10", doc.Length())
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("012XY56789")) {
		t.Fatalf("ReadAll() = %q, want %q", got, "012XY56789")
	}
}

func Test_Document_Undo_Reverses_Insert_And_Redo_Reapplies_It(t *testing.T) {
	t.Parallel()

	doc, _ := newTestDocument(t, "helloworld")

	s, _ := span.NewDataSpan([]byte(" "))
	if err := doc.InsertSpan(5, s); err != nil {
		t.Fatalf("InsertSpan: %v", err)
	}

	if err := doc.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("helloworld")) {
		t.Fatalf("ReadAll() after Undo = %q, want %q", got, "helloworld")
	}

	if !doc.CanRedo() {
		t.Fatalf("CanRedo() = false after Undo")
	}

	if err := doc.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("ReadAll() after Redo = %q, want %q", got, "hello world")
	}
}

func Test_Document_Undo_Returns_Error_When_Stack_Empty(t *testing.T) {
	t.Parallel()

	doc, _ := newTestDocument(t, "abc")

	if err := doc.Undo(); err != document.ErrNothingToUndo {
		t.Fatalf("Undo() on empty stack: err=%v, want %v", err, document.ErrNothingToUndo)
	}
}

func Test_Document_New_Edit_After_Undo_Sidelines_Redo_As_A_Branch(t *testing.T) {
	t.Parallel()

	doc, _ := newTestDocument(t, "abcdef")

	s1, _ := span.NewDataSpan([]byte("X"))
	if err := doc.InsertSpan(0, s1); err != nil {
		t.Fatalf("InsertSpan 1: %v", err)
	}

	if err := doc.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	s2, _ := span.NewDataSpan([]byte("Y"))
	if err := doc.InsertSpan(0, s2); err != nil {
		t.Fatalf("InsertSpan 2: %v", err)
	}

	if doc.CanRedo() {
		t.Fatalf("CanRedo() = true right after a new edit sidelined the old future")
	}

	if err := doc.Undo(); err != nil {
		t.Fatalf("Undo back to branch point: %v", err)
	}

	branches := doc.GetAlternativeBranchesIds()
	if len(branches) != 1 {
		t.Fatalf("GetAlternativeBranchesIds() = %v, want exactly one branch", branches)
	}

	if err := doc.ResumeBranch(branches[0]); err != nil {
		t.Fatalf("ResumeBranch: %v", err)
	}

	if !doc.CanRedo() {
		t.Fatalf("CanRedo() = false after resuming the abandoned branch")
	}

	if err := doc.Redo(); err != nil {
		t.Fatalf("Redo after ResumeBranch: %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("Xabcdef")) {
		t.Fatalf("ReadAll() after resuming branch and redoing = %q, want %q", got, "Xabcdef")
	}
}

func Test_Document_BeginEndComplexAction_Undoes_As_One_Step(t *testing.T) {
	t.Parallel()

	doc, _ := newTestDocument(t, "0123456789")

	if err := doc.BeginComplexAction(); err != nil {
		t.Fatalf("BeginComplexAction: %v", err)
	}

	s1, _ := span.NewDataSpan([]byte("A"))
	s2, _ := span.NewDataSpan([]byte("B"))

	if err := doc.InsertSpan(0, s1); err != nil {
		t.Fatalf("InsertSpan: %v", err)
	}

	if err := doc.InsertSpan(0, s2); err != nil {
		t.Fatalf("InsertSpan: %v", err)
	}

	if err := doc.EndComplexAction(); err != nil {
		t.Fatalf("EndComplexAction: %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("BA0123456789")) {
		t.Fatalf("ReadAll() = %q, want %q", got, "BA0123456789")
	}

	if err := doc.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	if got := doc.ReadAll(); !bytes.Equal(got, []byte("0123456789")) {
		t.Fatalf("ReadAll() after single Undo of complex action = %q, want %q", got, "0123456789")
	}

	if doc.CanUndo() {
		t.Fatalf("CanUndo() = true after undoing the only (complex) action")
	}
}

func Test_Document_IsModified_Tracks_Savepoint(t *testing.T) {
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

	if doc.IsModified() {
		t.Fatalf("IsModified() = true on a freshly opened document")
	}

	s, _ := span.NewDataSpan([]byte("X"))
	if err := doc.WriteSpan(0, s); err != nil {
		t.Fatalf("WriteSpan: %v", err)
	}

	if !doc.IsModified() {
		t.Fatalf("IsModified() = false right after an edit")
	}

	if err := doc.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if doc.IsModified() {
		t.Fatalf("IsModified() = true right after Save")
	}
}
