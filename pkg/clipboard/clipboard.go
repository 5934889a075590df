// Package clipboard implements the exchange of span chains across
// documents and foreign applications through three MIME-typed payloads
// (spec §4.7): an intra-process handle (fast path, same process only), a
// raw byte stream, and a hex-text rendering for plain-text clipboards.
package clipboard

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/zenwarr/microhex/pkg/span"
)

// MIME types placed on the host clipboard (spec §4.7).
const (
	MimeMark        = "application/microhex-mark"
	MimeData        = "application/microhex-data"
	MimeOctetStream = "application/octet-stream"
	MimeText        = "text/plain"
)

// ErrInvalidHex is returned when a text/plain payload contains a
// non-hexadecimal character or an odd number of hex digits.
var ErrInvalidHex = fmt.Errorf("clipboard: invalid hex text")

var (
	handles    sync.Map // uint64 -> *span.SpanChain
	nextHandle uint64
)

// put registers chain under a freshly minted handle, standing in for the
// pointer-cast transport the original implementation used (spec §4.7:
// "an equivalent in-process registry keyed by an integer id is preferred").
func put(chain *span.SpanChain) uint64 {
	h := atomic.AddUint64(&nextHandle, 1)
	handles.Store(h, chain)

	return h
}

// Resolve looks up a chain placed on the clipboard by this same process.
func Resolve(handle uint64) (*span.SpanChain, bool) {
	v, ok := handles.Load(handle)
	if !ok {
		return nil, false
	}

	return v.(*span.SpanChain), true
}

// Release drops a handle from the registry once nothing will paste it
// again (e.g. the clipboard owner exits or overwrites its content).
func Release(handle uint64) {
	handles.Delete(handle)
}

// Payload is the full set of clipboard entries produced for one chain.
type Payload struct {
	Mark        string // decimal PID of the producing process
	Data        string // decimal handle, valid only when Mark matches the consumer's PID
	OctetStream []byte
	Text        string
}

// Encode materializes chain's bytes and registers an intra-process
// handle for them, producing every payload a paste might prefer.
func Encode(chain *span.SpanChain) Payload {
	data := chain.ReadAll()
	handle := put(chain)

	return Payload{
		Mark:        strconv.Itoa(os.Getpid()),
		Data:        strconv.FormatUint(handle, 10),
		OctetStream: data,
		Text:        hexDump(data),
	}
}

// hexDump renders data as uppercase two-digit hex, space-separated, with
// a line break every 16 bytes (spec §4.7).
func hexDump(data []byte) string {
	var b strings.Builder

	for i, by := range data {
		if i > 0 {
			if i%16 == 0 {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}

		fmt.Fprintf(&b, "%02X", by)
	}

	return b.String()
}

// Decode reconstructs a span chain from p, preferring the intra-process
// handle (when the mark's PID matches this process and the handle still
// resolves), falling back to the raw byte stream, then to hex text
// (spec §4.7).
func Decode(p Payload) (*span.SpanChain, error) {
	if p.Mark != "" && p.Mark == strconv.Itoa(os.Getpid()) {
		if h, err := strconv.ParseUint(p.Data, 10, 64); err == nil {
			if chain, ok := Resolve(h); ok {
				return chain.Clone(), nil
			}
		}
	}

	if len(p.OctetStream) > 0 {
		return chainFromBytes(p.OctetStream)
	}

	if p.Text != "" {
		data, err := decodeHexText(p.Text)
		if err != nil {
			return nil, err
		}

		return chainFromBytes(data)
	}

	return span.New(), nil
}

func chainFromBytes(data []byte) (*span.SpanChain, error) {
	if len(data) == 0 {
		return span.New(), nil
	}

	s, err := span.NewDataSpan(data)
	if err != nil {
		return nil, err
	}

	return span.FromSpans([]span.Span{s}), nil
}

// decodeHexText strips whitespace (spaces, tabs, line breaks) and decodes
// the remainder as hex, rejecting any other non-hex character or an odd
// digit count (spec §4.7).
func decodeHexText(text string) ([]byte, error) {
	var b strings.Builder

	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}

		b.WriteRune(r)
	}

	data, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}

	return data, nil
}
