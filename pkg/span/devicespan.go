package span

// DeviceSpan is a span backed by a run of device bytes that may, after a
// save elsewhere has forced a split or a partial dissolution, actually
// be composed of more than one PrimitiveDeviceSpan under the hood (spec
// §3: "DeviceSpan: logically one span, but may be internally composed of
// several PrimitiveDeviceSpans after a dissolution"). It is represented
// as a thin wrapper around a SpanChain so it gets splicing for free.
type DeviceSpan struct {
	chain *SpanChain
}

// NewDeviceSpan creates a DeviceSpan over device[deviceOffset,
// deviceOffset+length), going through the device so the returned span is
// registered with it like any other PrimitiveDeviceSpan.
func NewDeviceSpan(device Device, deviceOffset, length uint64) (*DeviceSpan, error) {
	prim, err := device.CreateSpan(deviceOffset, length)
	if err != nil {
		return nil, err
	}

	return newDeviceSpanFromChain(FromSpans([]Span{prim})), nil
}

// newDeviceSpanFromChain wraps an existing chain; used internally when
// reconstructing a DeviceSpan whose underlying primitive was split by a
// dissolution into several spans.
func newDeviceSpanFromChain(chain *SpanChain) *DeviceSpan {
	return &DeviceSpan{chain: chain}
}

func (s *DeviceSpan) Length() uint64 { return s.chain.Length() }

func (s *DeviceSpan) Read(offset, length uint64) ([]byte, error) {
	if err := checkRange(offset, length, s.Length()); err != nil {
		return nil, err
	}

	return s.chain.Read(offset, length), nil
}

// Split exports both halves as non-materializing clones (ramLimit 0) so
// each retains the identity of the underlying PrimitiveDeviceSpan(s)
// rather than copying device bytes into RAM (spec §4.2). A half that
// collapses to a single entry is returned as that entry directly rather
// than wrapped in a redundant single-entry DeviceSpan.
func (s *DeviceSpan) Split(offset uint64) (Span, Span, error) {
	if offset == 0 || offset >= s.Length() {
		return nil, nil, ErrOutOfBounds
	}

	leftChain, err := s.chain.ExportRange(0, offset, 0)
	if err != nil {
		return nil, nil, err
	}

	rightChain, err := s.chain.ExportRange(offset, s.Length()-offset, 0)
	if err != nil {
		return nil, nil, err
	}

	return collapseChain(leftChain), collapseChain(rightChain), nil
}

func collapseChain(chain *SpanChain) Span {
	entries := chain.Spans()
	if len(entries) == 1 {
		return entries[0]
	}

	return newDeviceSpanFromChain(chain)
}

// Put streams each inner span individually rather than reading the whole
// DeviceSpan into memory at once (spec §4.2).
func (s *DeviceSpan) Put(saver Saver) error {
	for _, inner := range s.chain.Spans() {
		if err := inner.Put(saver); err != nil {
			return err
		}
	}

	return nil
}

// Primitives walks the inner chain and returns every PrimitiveDeviceSpan
// it holds together with its cumulative offset within this DeviceSpan.
// Used by the save algorithm's Saved-Range bookkeeping (buildSavedRanges);
// the quick-save eligibility check does not use it (spec §4.4, §4.5).
func (s *DeviceSpan) Primitives() map[*PrimitiveDeviceSpan]uint64 {
	out := make(map[*PrimitiveDeviceSpan]uint64)

	var pos uint64

	for _, sp := range s.chain.Spans() {
		if prim, ok := sp.(*PrimitiveDeviceSpan); ok {
			out[prim] = pos
		}

		pos += sp.Length()
	}

	return out
}
