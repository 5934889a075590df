package span_test

import (
	"errors"
	"testing"

	"github.com/zenwarr/microhex/pkg/span"
)

func Test_NewDataSpan_Returns_Error_When_Data_Is_Empty(t *testing.T) {
	t.Parallel()

	_, err := span.NewDataSpan(nil)
	if !errors.Is(err, span.ErrZeroLength) {
		t.Fatalf("NewDataSpan(nil): err=%v, want %v", err, span.ErrZeroLength)
	}
}

func Test_DataSpan_Read_Copies_Requested_Range(t *testing.T) {
	t.Parallel()

	s, err := span.NewDataSpan([]byte("hello world"))
	if err != nil {
		t.Fatalf("NewDataSpan: %v", err)
	}

	got, err := s.Read(6, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if string(got) != "world" {
		t.Fatalf("Read(6, 5) = %q, want %q", got, "world")
	}
}

func Test_DataSpan_Read_Does_Not_Alias_Internal_Storage(t *testing.T) {
	t.Parallel()

	s, err := span.NewDataSpan([]byte("hello"))
	if err != nil {
		t.Fatalf("NewDataSpan: %v", err)
	}

	got, err := s.Read(0, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	got[0] = 'X'

	second, err := s.Read(0, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if string(second) != "hello" {
		t.Fatalf("mutating a Read result leaked into the span: got %q", second)
	}
}

func Test_DataSpan_Read_Returns_Error_When_Out_Of_Bounds(t *testing.T) {
	t.Parallel()

	s, err := span.NewDataSpan([]byte("hi"))
	if err != nil {
		t.Fatalf("NewDataSpan: %v", err)
	}

	if _, err := s.Read(1, 5); !errors.Is(err, span.ErrOutOfBounds) {
		t.Fatalf("Read(1, 5): err=%v, want %v", err, span.ErrOutOfBounds)
	}
}

func Test_DataSpan_Split_Preserves_Combined_Content(t *testing.T) {
	t.Parallel()

	s, err := span.NewDataSpan([]byte("abcdef"))
	if err != nil {
		t.Fatalf("NewDataSpan: %v", err)
	}

	left, right, err := s.Split(2)
	if err != nil {
		t.Fatalf("Split(2): %v", err)
	}

	if left.Length()+right.Length() != s.Length() {
		t.Fatalf("Split(2): lengths %d + %d != %d", left.Length(), right.Length(), s.Length())
	}

	lData, _ := left.Read(0, left.Length())
	rData, _ := right.Read(0, right.Length())

	if string(lData) != "ab" || string(rData) != "cdef" {
		t.Fatalf("Split(2) = %q, %q, want %q, %q", lData, rData, "ab", "cdef")
	}
}

func Test_DataSpan_Split_Returns_Error_When_Offset_Is_At_Boundary(t *testing.T) {
	t.Parallel()

	s, err := span.NewDataSpan([]byte("abc"))
	if err != nil {
		t.Fatalf("NewDataSpan: %v", err)
	}

	if _, _, err := s.Split(0); !errors.Is(err, span.ErrOutOfBounds) {
		t.Fatalf("Split(0): err=%v, want %v", err, span.ErrOutOfBounds)
	}

	if _, _, err := s.Split(3); !errors.Is(err, span.ErrOutOfBounds) {
		t.Fatalf("Split(3): err=%v, want %v", err, span.ErrOutOfBounds)
	}
}
