// Package rasterizer is a minimal coherence backend implementing
// gpummu.RasterizerBackend against a small set of named region caches:
// texture, buffer, and query. FlushRegion and InvalidateRegion fan out
// to all three, the way a real Vulkan rasterizer dispatches coherence
// calls to its own per-resource caches.
package rasterizer

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/tegra-emu/gpummu"
)

// cacheName identifies one of the three region caches a real Vulkan
// rasterizer keeps: textures, vertex/index/uniform buffers, and
// occlusion/timestamp queries.
type cacheName string

const (
	cacheTexture cacheName = "texture"
	cacheBuffer  cacheName = "buffer"
	cacheQuery   cacheName = "query"
)

// dirtyRange is a half-open [start, end) run of cache addresses a
// regionCache currently considers dirty (GPU-side work pending against
// it).
type dirtyRange struct {
	start, end gpummu.CacheAddr
}

func (r dirtyRange) overlaps(start, end gpummu.CacheAddr) bool {
	return start < r.end && end > r.start
}

// regionCache tracks dirty ranges for one named cache. It is not a
// simulation of actual GPU resource tracking: it exists so Backend can
// report, and tests can assert on, exactly which ranges were touched by
// a Flush/Invalidate call.
type regionCache struct {
	name   cacheName
	ranges []dirtyRange
}

func newRegionCache(name cacheName) *regionCache {
	return &regionCache{name: name}
}

func (c *regionCache) markDirty(addr gpummu.CacheAddr, size int) {
	c.ranges = append(c.ranges, dirtyRange{start: addr, end: addr + gpummu.CacheAddr(size)})
}

// flush drops any dirty ranges overlapping [addr, addr+size): once
// flushed, the cache's pending writes are considered drained to host
// memory.
func (c *regionCache) flush(addr gpummu.CacheAddr, size int) {
	c.removeOverlapping(addr, size)
}

// invalidate is the same removal as flush; the two are distinguished at
// the Backend level by which callback fired, not by cache state, since
// both ultimately discard the cache's view of the range.
func (c *regionCache) invalidate(addr gpummu.CacheAddr, size int) {
	c.removeOverlapping(addr, size)
}

func (c *regionCache) removeOverlapping(addr gpummu.CacheAddr, size int) {
	end := addr + gpummu.CacheAddr(size)
	kept := c.ranges[:0]
	for _, r := range c.ranges {
		if !r.overlaps(addr, end) {
			kept = append(kept, r)
		}
	}
	c.ranges = kept
}

func (c *regionCache) isDirty(addr gpummu.CacheAddr, size int) bool {
	end := addr + gpummu.CacheAddr(size)
	for _, r := range c.ranges {
		if r.overlaps(addr, end) {
			return true
		}
	}
	return false
}

// Event records one coherence call for test assertions: which caches it
// fanned out to, in what order.
type Event struct {
	Kind  string
	Cache string
	Addr  gpummu.CacheAddr
	Size  int
}

// Backend fans FlushRegion/InvalidateRegion/FlushAndInvalidateRegion out
// to the texture, buffer, and query caches. It implements
// gpummu.RasterizerBackend.
type Backend struct {
	logger *slog.Logger

	mu                sync.Mutex
	caches            []*regionCache
	history           []Event
	useMemoryPriority bool
}

// New creates a Backend with the three standard caches. logger defaults
// to slog.Default() when nil.
func New(logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backend{
		logger: logger,
		caches: []*regionCache{
			newRegionCache(cacheTexture),
			newRegionCache(cacheBuffer),
			newRegionCache(cacheQuery),
		},
	}
	if len(b.caches) == 0 {
		return nil, errors.New("rasterizer: backend constructed with no caches")
	}
	return b, nil
}

// MarkDirty records pending GPU-side work against addr in every cache,
// so a later Flush/Invalidate call has something to observe. Tests use
// this to set up the dirty state a coherence call is expected to clear.
func (b *Backend) MarkDirty(addr gpummu.CacheAddr, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.caches {
		c.markDirty(addr, size)
	}
}

// FlushRegion implements gpummu.RasterizerBackend.
func (b *Backend) FlushRegion(addr gpummu.CacheAddr, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.caches {
		c.flush(addr, size)
		b.record("flush", c.name, addr, size)
	}
	b.logger.Debug("rasterizer: flushed region", "addr", uint64(addr), "size", size)
}

// InvalidateRegion implements gpummu.RasterizerBackend.
func (b *Backend) InvalidateRegion(addr gpummu.CacheAddr, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.caches {
		c.invalidate(addr, size)
		b.record("invalidate", c.name, addr, size)
	}
	b.logger.Debug("rasterizer: invalidated region", "addr", uint64(addr), "size", size)
}

// FlushAndInvalidateRegion implements gpummu.RasterizerBackend.
func (b *Backend) FlushAndInvalidateRegion(addr gpummu.CacheAddr, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.caches {
		c.flush(addr, size)
		c.invalidate(addr, size)
		b.record("flush+invalidate", c.name, addr, size)
	}
	b.logger.Debug("rasterizer: flushed and invalidated region", "addr", uint64(addr), "size", size)
}

func (b *Backend) record(kind string, cache cacheName, addr gpummu.CacheAddr, size int) {
	b.history = append(b.history, Event{Kind: kind, Cache: string(cache), Addr: addr, Size: size})
}

// History returns every coherence call this Backend has fanned out,
// oldest first. It is diagnostic/test tooling, not part of the
// coherence contract.
func (b *Backend) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// IsDirty reports whether any cache still considers [addr, addr+size)
// dirty. Used by tests to assert a Flush/Invalidate call actually
// cleared every named cache, not just one.
func (b *Backend) IsDirty(addr gpummu.CacheAddr, size int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.caches {
		if c.isDirty(addr, size) {
			return true
		}
	}
	return false
}
