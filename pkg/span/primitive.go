package span

import "sync"

// DissolveListener is notified when a PrimitiveDeviceSpan it has
// subscribed to is dissolved. old is the span being replaced;
// replacement is the list of spans that should take its place, in order.
type DissolveListener func(old *PrimitiveDeviceSpan, replacement []Span)

// PrimitiveDeviceSpan is a direct reference to a contiguous byte range of
// a Device (spec §3). It is only ever constructed by a Device (via
// CreateSpan), which registers it so that a later save can find and
// rebind every live reference into that device.
type PrimitiveDeviceSpan struct {
	device       Device
	deviceOffset uint64
	length       uint64

	mu           sync.Mutex
	dissolving   []Span
	dissolved    bool
	nextListener int
	byID         map[int]DissolveListener
}

// NewPrimitiveDeviceSpan constructs a span over device[deviceOffset,
// deviceOffset+length). Only pkg/device should call this; it is exported
// so device implementations in other packages can use it without an
// import cycle.
func NewPrimitiveDeviceSpan(device Device, deviceOffset, length uint64) (*PrimitiveDeviceSpan, error) {
	if length == 0 {
		return nil, ErrZeroLength
	}

	if _, err := addLengths(deviceOffset, length); err != nil {
		return nil, err
	}

	return &PrimitiveDeviceSpan{device: device, deviceOffset: deviceOffset, length: length}, nil
}

func (s *PrimitiveDeviceSpan) Length() uint64 { return s.length }

// Device returns the device this span references.
func (s *PrimitiveDeviceSpan) Device() Device { return s.device }

// DeviceOffset returns the span's starting offset within its device.
func (s *PrimitiveDeviceSpan) DeviceOffset() uint64 { return s.deviceOffset }

// Read delegates to the device; if the device returns fewer bytes than
// requested (e.g. the backing file was truncated underneath it), the
// shortfall is zero-padded rather than treated as an error.
func (s *PrimitiveDeviceSpan) Read(offset, length uint64) ([]byte, error) {
	if err := checkRange(offset, length, s.length); err != nil {
		return nil, err
	}

	data, err := s.device.Read(s.deviceOffset+offset, length)
	if err != nil {
		return nil, err
	}

	if uint64(len(data)) < length {
		padded := make([]byte, length)
		copy(padded, data)

		return padded, nil
	}

	return data, nil
}

// Split asks the device to create the two sub-spans (spec §4.2): the
// device is the authority on what a valid PrimitiveDeviceSpan over itself
// looks like.
func (s *PrimitiveDeviceSpan) Split(offset uint64) (Span, Span, error) {
	if offset == 0 || offset >= s.length {
		return nil, nil, ErrOutOfBounds
	}

	left, err := s.device.CreateSpan(s.deviceOffset, offset)
	if err != nil {
		return nil, nil, err
	}

	right, err := s.device.CreateSpan(s.deviceOffset+offset, s.length-offset)
	if err != nil {
		return nil, nil, err
	}

	return left, right, nil
}

func (s *PrimitiveDeviceSpan) Put(saver Saver) error { return saver.PutSpan(s) }

// OnDissolve subscribes fn to this span's dissolution. The returned
// function unsubscribes it; callers (SpanChain entries) must call it when
// they stop holding the span so a stale chain never receives a splice for
// content it no longer owns.
func (s *PrimitiveDeviceSpan) OnDissolve(fn DissolveListener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++

	if s.byID == nil {
		s.byID = make(map[int]DissolveListener)
	}

	s.byID[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.byID, id)
	}
}

// PrepareToDissolve stages replacement for a subsequent Dissolve call.
func (s *PrimitiveDeviceSpan) PrepareToDissolve(replacement []Span) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dissolving = replacement
}

// CancelDissolve drops any staged replacement. It never fails (spec
// §4.2: "must not throw").
func (s *PrimitiveDeviceSpan) CancelDissolve() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dissolving = nil
}

// Dissolve fires the dissolution event, notifying every subscribed chain
// so it can splice the staged replacement in this span's place (spec
// §4.2, §4.5). It is a no-op if nothing was staged.
func (s *PrimitiveDeviceSpan) Dissolve() {
	s.mu.Lock()
	replacement := s.dissolving
	s.dissolving = nil

	if replacement == nil || s.dissolved {
		s.mu.Unlock()
		return
	}

	s.dissolved = true

	listeners := make([]DissolveListener, 0, len(s.byID))
	for _, fn := range s.byID {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(s, replacement)
	}
}

// IsDissolved reports whether this span has already been dissolved and
// should no longer be treated as live content.
func (s *PrimitiveDeviceSpan) IsDissolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dissolved
}
