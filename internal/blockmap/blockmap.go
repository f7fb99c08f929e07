package blockmap

import (
	"fmt"

	"github.com/dreamware/vdo-core/internal/block"
)

// BlockMap composes a Forest (locating a leaf page's PBN for an LBN)
// with a PageCache (reading/writing that page's body) into the single
// LBN -> Mapping update entry point the write pipeline needs. Neither
// Forest nor PageCache alone implements this: Forest only resolves
// coordinates and a page's PBN, PageCache only knows about opaque page
// bodies: BlockMap is where the two meet the 5-byte entry layout that
// internal/block defines.
type BlockMap struct {
	forest *Forest
	cache  *PageCache
	dirty  *DirtyList

	currentEra func() uint64
}

// NewBlockMap wires forest and cache together. dirty may be nil if the
// caller does not track era-based write-back for this zone (e.g. in
// tests). currentEra supplies the era/recovery-journal-sequence number
// a newly dirtied page is stamped with; nil means era 0 always.
func NewBlockMap(forest *Forest, cache *PageCache, dirty *DirtyList, currentEra func() uint64) *BlockMap {
	return &BlockMap{forest: forest, cache: cache, dirty: dirty, currentEra: currentEra}
}

// UpdateMapping locates lbn's leaf page via the forest, rewrites its
// in-page entry slot with mapping, and marks the page dirty for the
// current era, satisfying internal/vio.BlockMap.
func (bm *BlockMap) UpdateMapping(lbn block.LBN, mapping block.Mapping) error {
	c := Locate(bm.forest.Geometry(), lbn)

	pbn, err := bm.forest.Lookup(lbn)
	if err != nil {
		return fmt.Errorf("blockmap: locating page for lbn %d: %w", lbn, err)
	}

	page, err := bm.cache.GetPage(pbn, true)
	if err != nil {
		return fmt.Errorf("blockmap: fetching page %d: %w", pbn, err)
	}
	defer bm.cache.Release(pbn)

	off := int(c.Slot) * block.EntrySize
	if off+block.EntrySize > len(page.body) {
		return fmt.Errorf("blockmap: slot %d (offset %d) out of bounds for page %d body of length %d", c.Slot, off, pbn, len(page.body))
	}
	packed := block.MarshalEntry(mapping)
	copy(page.body[off:off+block.EntrySize], packed[:])

	era := uint64(0)
	if bm.currentEra != nil {
		era = bm.currentEra()
	}
	// era doubles as the recovery-journal sequence number the page's
	// dirtying is recorded against, per the era/sequence-number
	// discipline shared by every metadata engine in this module.
	if err := bm.cache.MarkDirty(pbn, era, era); err != nil {
		return fmt.Errorf("blockmap: marking page %d dirty: %w", pbn, err)
	}
	if bm.dirty != nil {
		bm.dirty.Add(pbn, era, era)
	}
	return nil
}

// LookupMapping reads back the mapping currently stored at lbn's slot,
// without marking the page dirty. Used by read paths and tests.
func (bm *BlockMap) LookupMapping(lbn block.LBN) (block.Mapping, error) {
	c := Locate(bm.forest.Geometry(), lbn)

	pbn, err := bm.forest.Lookup(lbn)
	if err != nil {
		return block.Mapping{}, fmt.Errorf("blockmap: locating page for lbn %d: %w", lbn, err)
	}

	page, err := bm.cache.GetPage(pbn, false)
	if err != nil {
		return block.Mapping{}, fmt.Errorf("blockmap: fetching page %d: %w", pbn, err)
	}
	defer bm.cache.Release(pbn)

	off := int(c.Slot) * block.EntrySize
	if off+block.EntrySize > len(page.body) {
		return block.Mapping{}, fmt.Errorf("blockmap: slot %d (offset %d) out of bounds for page %d body of length %d", c.Slot, off, pbn, len(page.body))
	}
	var eb [block.EntrySize]byte
	copy(eb[:], page.body[off:off+block.EntrySize])
	return block.UnmarshalEntry(eb), nil
}
