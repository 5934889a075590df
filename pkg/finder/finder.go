// Package finder implements forward and backward Boyer-Moore byte search
// over a Document, using a sliding buffer rather than materializing the
// whole document into memory (spec §4.6).
package finder

// Source is the narrow slice of Document that search needs: enough to
// walk the document's bytes without pkg/finder importing pkg/document.
type Source interface {
	Length() uint64
	Read(offset, length uint64) []byte
}

// bufferSize is the sliding read-ahead window, matching the 1 MiB window
// the teacher's source (original_source/src/documents/matcher.cpp) used.
const bufferSize = 1 << 20

// NoLimit searches as far as the document allows.
const NoLimit = ^uint64(0)

// BinaryFinder performs Boyer-Moore search for a fixed byte pattern over
// a Source, with independent bad-character tables for forward and
// backward search (spec §4.6).
type BinaryFinder struct {
	source  Source
	pattern []byte

	skip  [256]uint64 // forward: distance to shift on mismatch
	rskip [256]uint64 // backward: distance to shift on mismatch
}

// New builds the bad-character tables once for pattern. An empty pattern
// is legal to construct but never matches.
func New(source Source, pattern []byte) *BinaryFinder {
	f := &BinaryFinder{
		source:  source,
		pattern: append([]byte(nil), pattern...),
	}

	n := uint64(len(pattern))

	for i := range f.skip {
		f.skip[i] = n
		f.rskip[i] = n
	}

	for j := 0; j < len(pattern); j++ {
		f.skip[pattern[j]] = n - uint64(j)
	}

	for j := len(pattern) - 1; j >= 0; j-- {
		f.rskip[pattern[j]] = uint64(j) + 1
	}

	return f
}

// FindNext searches forward starting at position, giving up once the
// candidate match end has advanced limit bytes past position. It returns
// the offset of the first match and true, or (0, false) if none is found.
func (f *BinaryFinder) FindNext(position, limit uint64) (uint64, bool) {
	n := uint64(len(f.pattern))
	if n == 0 {
		return 0, false
	}

	total := f.source.Length()
	if position > total || total-position < n {
		return 0, false
	}

	bufferStart := position
	buffer := f.source.Read(bufferStart, bufferSize)

	patternEnd := position + n - 1

	for patternEnd < total {
		if patternEnd >= bufferStart+uint64(len(buffer)) {
			bufferStart = patternEnd - n
			buffer = f.source.Read(bufferStart, bufferSize)
		}

		matched := true

		for i := uint64(0); i < n; i++ {
			b := buffer[patternEnd-bufferStart-i]
			if b != f.pattern[n-i-1] {
				patternEnd += f.skip[buffer[patternEnd-bufferStart]]
				matched = false

				break
			}
		}

		if matched {
			return patternEnd - n + 1, true
		}

		if limit != NoLimit && patternEnd-position >= limit {
			return 0, false
		}
	}

	return 0, false
}

// FindPrevious searches backward starting just before position (i.e. the
// candidate match ends at position-1), giving up once the candidate start
// has receded limit bytes before position.
func (f *BinaryFinder) FindPrevious(position, limit uint64) (uint64, bool) {
	n := uint64(len(f.pattern))
	if n == 0 || position < n {
		return 0, false
	}

	var (
		bufferStart uint64
		buffer      []byte
	)

	if position < bufferSize {
		buffer = f.source.Read(0, position)
		bufferStart = 0
	} else {
		bufferStart = position - bufferSize
		buffer = f.source.Read(bufferStart, bufferSize)
	}

	patternStart := position - n

	for {
		if patternStart < bufferStart {
			bufferEnd := patternStart + n
			if bufferEnd < bufferSize {
				buffer = f.source.Read(0, bufferEnd)
				bufferStart = 0
			} else {
				bufferStart = bufferEnd - bufferSize
				buffer = f.source.Read(bufferStart, bufferSize)
			}
		}

		matched := true

		for i := uint64(0); i < n; i++ {
			b := buffer[patternStart-bufferStart+i]
			if b != f.pattern[i] {
				shift := f.rskip[buffer[patternStart-bufferStart]]
				if patternStart < shift {
					return 0, false
				}

				patternStart -= shift
				matched = false

				break
			}
		}

		if matched {
			return patternStart, true
		}

		if limit != NoLimit && position-patternStart >= limit {
			return 0, false
		}
	}
}
