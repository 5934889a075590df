// Package span implements the piece-table leaves (Span variants) and the
// ordered SpanChain that composes them into a document's logical byte
// sequence (spec §4.2, §4.3).
package span

// Span is an immutable contiguous byte producer: a leaf of the piece
// table. All four variants (DataSpan, FillSpan, PrimitiveDeviceSpan,
// DeviceSpan) share this contract.
type Span interface {
	// Length returns the number of bytes this span produces.
	Length() uint64

	// Read returns exactly length bytes starting at offset. It is an
	// error if offset+length > Length().
	Read(offset, length uint64) ([]byte, error)

	// Split divides the span at offset into two spans whose lengths sum
	// to the original length. 0 < offset < Length() is required.
	Split(offset uint64) (left, right Span, err error)

	// Put streams this span's content to saver.
	Put(saver Saver) error
}

// Saver receives span content during a save operation (spec §4.5). Begin
// is called once before any PutSpan call, Complete once after all spans
// have been put successfully, and Fail if any step errored.
type Saver interface {
	Begin() error
	PutSpan(s Span) error
	Complete() error
	Fail() error
}

// checkRange validates that [offset, offset+length) fits within total,
// the way every Span.Read and Span.Split implementation needs to.
func checkRange(offset, length, total uint64) error {
	end, err := addLengths(offset, length)
	if err != nil {
		return err
	}

	if end > total {
		return ErrOutOfBounds
	}

	return nil
}

// StreamSpan reads s in chunks of at most chunkSize bytes (0 means a
// single read of the whole span) and calls write for each chunk, in
// order. It is the shared helper every Saver implementation uses to put a
// span without materializing an arbitrarily large FillSpan in memory.
func StreamSpan(s Span, chunkSize uint64, write func([]byte) error) error {
	total := s.Length()
	if total == 0 {
		return nil
	}

	if chunkSize == 0 {
		chunkSize = total
	}

	for offset := uint64(0); offset < total; {
		n := chunkSize
		if remaining := total - offset; n > remaining {
			n = remaining
		}

		data, err := s.Read(offset, n)
		if err != nil {
			return err
		}

		if err := write(data); err != nil {
			return err
		}

		offset += n
	}

	return nil
}
