package span

import "errors"

// Error categories for spans and chains (spec §7). Spans and SpanChain
// return these sentinels directly, and pkg/device returns ErrOutOfBounds
// for out-of-range reads and writes; pkg/device and pkg/document define
// their own sentinels for their other conditions. Callers classify with
// errors.Is.
var (
	// ErrOutOfBounds is returned when an offset/length falls outside the
	// addressable space of the span, chain, or device being operated on.
	ErrOutOfBounds = errors.New("microhex: out of bounds")

	// ErrOverflow is returned when a length computation would exceed the
	// maximum addressable length (2^64 - 1).
	ErrOverflow = errors.New("microhex: length overflow")

	// ErrZeroLength is returned by any constructor or split that would
	// produce a zero-length span (spec invariant 2).
	ErrZeroLength = errors.New("microhex: zero-length span")
)

// MaxLength is the largest representable length or offset: 2^64 - 1.
const MaxLength = ^uint64(0)

// addLengths adds a and b, returning ErrOverflow if the sum would exceed
// MaxLength.
func addLengths(a, b uint64) (uint64, error) {
	if a > MaxLength-b {
		return 0, ErrOverflow
	}

	return a + b, nil
}
