package span_test

import (
	"bytes"
	"testing"

	"github.com/zenwarr/microhex/pkg/span"
)

func Test_NewDeviceSpan_Reads_Underlying_Device_Bytes(t *testing.T) {
	t.Parallel()

	d := newFakeDevice([]byte("0123456789"))

	ds, err := span.NewDeviceSpan(d, 2, 5)
	if err != nil {
		t.Fatalf("NewDeviceSpan: %v", err)
	}

	if ds.Length() != 5 {
		t.Fatalf("Length() = %d, want 5", ds.Length())
	}

	got, err := ds.Read(0, 5)
	if err != nil {
		t.Fatalf("Read(0, 5): %v", err)
	}

	if !bytes.Equal(got, []byte("23456")) {
		t.Fatalf("Read(0, 5) = %q, want %q", got, "23456")
	}
}

func Test_DeviceSpan_Split_Returns_Primitive_Halves_When_Single_Entry(t *testing.T) {
	t.Parallel()

	d := newFakeDevice([]byte("0123456789"))

	ds, err := span.NewDeviceSpan(d, 0, 10)
	if err != nil {
		t.Fatalf("NewDeviceSpan: %v", err)
	}

	left, right, err := ds.Split(4)
	if err != nil {
		t.Fatalf("Split(4): %v", err)
	}

	if _, ok := left.(*span.PrimitiveDeviceSpan); !ok {
		t.Fatalf("left is %T, want *span.PrimitiveDeviceSpan", left)
	}

	if _, ok := right.(*span.PrimitiveDeviceSpan); !ok {
		t.Fatalf("right is %T, want *span.PrimitiveDeviceSpan", right)
	}

	if left.Length() != 4 || right.Length() != 6 {
		t.Fatalf("Split(4) lengths = %d, %d, want 4, 6", left.Length(), right.Length())
	}
}

func Test_DeviceSpan_Primitives_Reports_Cumulative_Offsets(t *testing.T) {
	t.Parallel()

	d := newFakeDevice([]byte("0123456789"))

	ds, err := span.NewDeviceSpan(d, 0, 10)
	if err != nil {
		t.Fatalf("NewDeviceSpan: %v", err)
	}

	prims := ds.Primitives()
	if len(prims) != 1 {
		t.Fatalf("Primitives() returned %d entries, want 1", len(prims))
	}

	for prim, offset := range prims {
		if offset != 0 {
			t.Fatalf("Primitives()[%v] = %d, want 0", prim, offset)
		}

		if prim.DeviceOffset() != 0 || prim.Length() != 10 {
			t.Fatalf("primitive = offset %d length %d, want offset 0 length 10", prim.DeviceOffset(), prim.Length())
		}
	}
}
