package slab

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
)

// RefCountBlockCache is the slab depot's in-memory cache of
// serialized ref-count blocks, one entry per (slab, block) pair. It
// sits in front of whatever persists ref-count blocks to the backing
// store: a hot physical zone touches the same handful of slabs
// repeatedly, so caching their serialized byte form avoids
// re-encoding (or re-reading) them on every save.
//
// fastcache fits hot, high-churn, fixed-size byte values well:
// one-byte-per-block ref-count arrays are exactly that shape, and
// fastcache's bounded-memory eviction means a busy depot can't grow
// this cache without limit.
type RefCountBlockCache struct {
	cache *fastcache.Cache
}

// NewRefCountBlockCache allocates a cache capped at maxBytes of
// serialized ref-count data.
func NewRefCountBlockCache(maxBytes int) *RefCountBlockCache {
	return &RefCountBlockCache{cache: fastcache.New(maxBytes)}
}

func refCacheKey(slabNumber uint32, blockIndex uint32) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint32(key[0:4], slabNumber)
	binary.BigEndian.PutUint32(key[4:8], blockIndex)
	return key
}

// Store caches the serialized bytes for one ref-count block.
func (c *RefCountBlockCache) Store(slabNumber, blockIndex uint32, serialized []byte) {
	c.cache.Set(refCacheKey(slabNumber, blockIndex), serialized)
}

// Load returns the cached serialized bytes for one ref-count block,
// if present.
func (c *RefCountBlockCache) Load(slabNumber, blockIndex uint32) ([]byte, bool) {
	return c.cache.HasGet(nil, refCacheKey(slabNumber, blockIndex))
}

// Invalidate removes a cached block, e.g. after the scrubber rebuilds
// a slab's ref counts from the slab journal and the cached encoding is
// now stale.
func (c *RefCountBlockCache) Invalidate(slabNumber, blockIndex uint32) {
	c.cache.Del(refCacheKey(slabNumber, blockIndex))
}

// SerializeBlock packs a contiguous span of RefCounts values (one
// physical ref-count block's worth) into its on-disk byte form: one
// byte per entry, matching "Reference counts" packing.
func SerializeBlock(values []RefCountValue) []byte {
	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = byte(v)
	}
	return out
}

func DeserializeBlock(raw []byte) []RefCountValue {
	out := make([]RefCountValue, len(raw))
	for i, b := range raw {
		out[i] = RefCountValue(b)
	}
	return out
}
