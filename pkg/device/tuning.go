package device

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Tuning controls the block cache every device uses to avoid re-reading
// the same region of the backing store on every small access (spec
// §4.1).
type Tuning struct {
	// BlockSize is the granularity at which the cache reads from the
	// backing store.
	BlockSize int

	// CacheBlocks is the number of BlockSize blocks the cache keeps
	// resident before it must recenter and evict.
	CacheBlocks int
}

// DefaultTuning returns the tuning used when no tuning file is supplied:
// 64 KiB blocks, 64 blocks resident (4 MiB of cache).
func DefaultTuning() Tuning {
	return Tuning{BlockSize: 64 * 1024, CacheBlocks: 64}
}

// tuningFile is the on-disk shape of a tuning file, expressed as JWCC
// (JSON With Commas and Comments) so operators can annotate the values
// they chose and why.
type tuningFile struct {
	BlockSize   int `json:"blockSize"`
	CacheBlocks int `json:"cacheBlocks"`
}

// TuningFromFile reads an optional JWCC-formatted cache-tuning file. A
// missing file is not an error: DefaultTuning is returned unchanged.
func TuningFromFile(path string) (Tuning, error) {
	def := DefaultTuning()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return def, nil
	}

	if err != nil {
		return Tuning{}, fmt.Errorf("reading tuning file %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Tuning{}, fmt.Errorf("parsing tuning file %q: %w", path, err)
	}

	var tf tuningFile
	if err := json.Unmarshal(standardized, &tf); err != nil {
		return Tuning{}, fmt.Errorf("decoding tuning file %q: %w", path, err)
	}

	if tf.BlockSize > 0 {
		def.BlockSize = tf.BlockSize
	}

	if tf.CacheBlocks > 0 {
		def.CacheBlocks = tf.CacheBlocks
	}

	return def, nil
}
