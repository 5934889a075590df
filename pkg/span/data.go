package span

// DataSpan is an owned, immutable byte array (spec §3).
type DataSpan struct {
	data []byte
}

// NewDataSpan copies data into a new DataSpan. The caller's slice may be
// mutated afterward without affecting the span.
func NewDataSpan(data []byte) (*DataSpan, error) {
	if len(data) == 0 {
		return nil, ErrZeroLength
	}

	owned := make([]byte, len(data))
	copy(owned, data)

	return &DataSpan{data: owned}, nil
}

func (s *DataSpan) Length() uint64 { return uint64(len(s.data)) }

func (s *DataSpan) Read(offset, length uint64) ([]byte, error) {
	if err := checkRange(offset, length, s.Length()); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	copy(out, s.data[offset:offset+length])

	return out, nil
}

// Split shares the backing array by reslicing; both halves are
// independently immutable since DataSpan never exposes its internal
// slice for mutation.
func (s *DataSpan) Split(offset uint64) (Span, Span, error) {
	if offset == 0 || offset >= s.Length() {
		return nil, nil, ErrOutOfBounds
	}

	return &DataSpan{data: s.data[:offset]}, &DataSpan{data: s.data[offset:]}, nil
}

func (s *DataSpan) Put(saver Saver) error { return saver.PutSpan(s) }
