package device

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// rangeReader is the underlying, uncached byte source a cache wraps: a
// file device's pread-like access or a buffer device's slice access.
type rangeReader func(offset, length uint64) ([]byte, error)

// blockCache is a single contiguous read-ahead window over a device's
// bytes (spec §4.1: recenter-on-miss block cache). It never expands
// without bound: a miss recenters the window on the requested offset
// rather than growing it, so memory use stays at windowSize regardless
// of access pattern.
type blockCache struct {
	read   rangeReader
	length func() uint64

	mu         sync.RWMutex
	start      uint64
	data       []byte
	windowSize uint64

	group singleflight.Group
}

func newBlockCache(read rangeReader, length func() uint64, tuning Tuning) *blockCache {
	size := uint64(tuning.BlockSize) * uint64(tuning.CacheBlocks)
	if size == 0 {
		size = uint64(DefaultTuning().BlockSize) * uint64(DefaultTuning().CacheBlocks)
	}

	return &blockCache{read: read, length: length, windowSize: size}
}

// Read serves [offset, offset+length) from the cache, recentering and
// refilling the window on a miss. Concurrent misses for the same
// recenter are deduplicated via singleflight so N readers racing into a
// cold region only pay for one underlying read.
func (c *blockCache) Read(offset, length uint64) ([]byte, error) {
	if out, ok := c.tryServe(offset, length); ok {
		return out, nil
	}

	if out, handled, err := c.tryServePartial(offset, length); handled {
		return out, err
	}

	key := cacheKey(offset, c.windowSize)

	if _, err, _ := c.group.Do(key, func() (interface{}, error) {
		if _, ok := c.tryServe(offset, length); ok {
			return nil, nil
		}

		return nil, c.recenter(offset)
	}); err != nil {
		return nil, err
	}

	if out, ok := c.tryServe(offset, length); ok {
		return out, nil
	}

	// Requested range is wider than the cache window; read straight
	// through without caching it.
	return c.read(offset, length)
}

func cacheKey(offset, windowSize uint64) string {
	if windowSize == 0 {
		windowSize = 1
	}

	return strconv.FormatUint(offset/windowSize, 10)
}

func (c *blockCache) tryServe(offset, length uint64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.data == nil {
		return nil, false
	}

	if offset < c.start || offset+length > c.start+uint64(len(c.data)) {
		return nil, false
	}

	out := make([]byte, length)
	copy(out, c.data[offset-c.start:offset-c.start+length])

	return out, true
}

// tryServePartial splices together the slice of [offset, offset+length)
// that overlaps the cached window with the rest read straight through
// storage, leaving the cache exactly where it is (spec §4.1: "serve the
// cached prefix from cache, read the remainder directly from underlying
// storage (do not move the cache)"). handled is false when there is no
// overlap at all, or the range is already a full hit tryServe would have
// caught.
func (c *blockCache) tryServePartial(offset, length uint64) (out []byte, handled bool, err error) {
	c.mu.RLock()
	start := c.start
	data := c.data
	c.mu.RUnlock()

	if data == nil {
		return nil, false, nil
	}

	end := offset + length
	cacheEnd := start + uint64(len(data))

	if offset >= start && end <= cacheEnd {
		return nil, false, nil
	}

	overlapStart := max(offset, start)
	overlapEnd := min(end, cacheEnd)

	if overlapStart >= overlapEnd {
		return nil, false, nil
	}

	out = make([]byte, length)

	if offset < overlapStart {
		head, readErr := c.read(offset, overlapStart-offset)
		if readErr != nil {
			return nil, true, readErr
		}

		copy(out, head)
	}

	copy(out[overlapStart-offset:], data[overlapStart-start:overlapEnd-start])

	if overlapEnd < end {
		tail, readErr := c.read(overlapEnd, end-overlapEnd)
		if readErr != nil {
			return nil, true, readErr
		}

		copy(out[overlapEnd-offset:], tail)
	}

	return out, true, nil
}

func (c *blockCache) recenter(offset uint64) error {
	total := c.length()

	start := uint64(0)
	if offset > c.windowSize/2 {
		start = offset - c.windowSize/2
	}

	if start+c.windowSize > total {
		if total > c.windowSize {
			start = total - c.windowSize
		} else {
			start = 0
		}
	}

	want := c.windowSize
	if start+want > total {
		want = total - start
	}

	data, err := c.read(start, want)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.start = start
	c.data = data
	c.mu.Unlock()

	return nil
}

// invalidate drops the cached window, forcing the next Read to refill it.
// Called after Write/Resize touch the backing store underneath the cache.
func (c *blockCache) invalidate() {
	c.mu.Lock()
	c.data = nil
	c.mu.Unlock()
}
