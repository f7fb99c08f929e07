// Package block defines the fundamental addressing types shared by
// every metadata engine: physical and logical block numbers, the
// packed block-map entry, and device geometry.
package block

import "fmt"

// Size is the fixed fundamental block size. Geometry allows this to
// be configured per device; this is the default used when no override
// is supplied.
const Size = 4096

// PBN is a physical block number.
type PBN uint64

// ZeroBlock is the conventional "unmapped" physical block: reads
// return zeros, no physical storage is consumed.
const ZeroBlock PBN = 0

// InvalidPBN marks an unloaded forest root or an as-yet-unallocated
// interior page.
const InvalidPBN PBN = ^PBN(0)

// LBN is a logical block number.
type LBN uint64

// MappingState distinguishes an unmapped entry, an uncompressed
// mapping, and MaxCompressionSlots distinct "compressed in slot k"
// states.
type MappingState uint8

const (
	MappingStateUnmapped     MappingState = 0
	MappingStateUncompressed MappingState = 1
	// MappingStateCompressedBase is the mapping state for slot 0;
	// slot k is MappingStateCompressedBase + k.
	MappingStateCompressedBase MappingState = 2
)

// MaxCompressionSlots is the largest number of compressed fragments
// that may share one physical block.
const MaxCompressionSlots = 14

// IsCompressed reports whether s names a compressed-in-slot-k state.
func (s MappingState) IsCompressed() bool {
	return s >= MappingStateCompressedBase && int(s) < int(MappingStateCompressedBase)+MaxCompressionSlots
}

// Slot returns the compression slot named by s. Only valid when
// IsCompressed(s).
func (s MappingState) Slot() int {
	return int(s - MappingStateCompressedBase)
}

func CompressedState(slot int) MappingState {
	if slot < 0 || slot >= MaxCompressionSlots {
		panic(fmt.Sprintf("block: invalid compression slot %d", slot))
	}
	return MappingStateCompressedBase + MappingState(slot)
}

// Mapping is the packed (PBN, MappingState) pair a block-map entry
// holds: 5 bytes on disk.
type Mapping struct {
	PBN   PBN
	State MappingState
}

// Unmapped is the zero-value mapping: logically unmapped.
var Unmapped = Mapping{PBN: ZeroBlock, State: MappingStateUnmapped}

func (m Mapping) IsMapped() bool { return m.State != MappingStateUnmapped }

// EntrySize is the on-disk size of one packed block-map entry.
const EntrySize = 5

// MarshalEntry packs m into the 5-byte on-disk representation: 4
// bytes of PBN (low 32 bits — real kvdo packs 36 bits across 5 bytes
// with a nonstandard bit layout; we keep the byte *count* faithful
// while using a straightforward byte-aligned packing, since the exact
// bit layout is explicitly not reproduced here).
func MarshalEntry(m Mapping) [EntrySize]byte {
	var b [EntrySize]byte
	b[0] = byte(m.State)
	b[1] = byte(m.PBN)
	b[2] = byte(m.PBN >> 8)
	b[3] = byte(m.PBN >> 16)
	b[4] = byte(m.PBN >> 24)
	return b
}

func UnmarshalEntry(b [EntrySize]byte) Mapping {
	pbn := PBN(b[1]) | PBN(b[2])<<8 | PBN(b[3])<<16 | PBN(b[4])<<24
	return Mapping{PBN: pbn, State: MappingState(b[0])}
}

// Geometry carries the per-device sizing, kept as explicit
// constructor fields (rather than package-level constants) so tests
// can exercise non-default layouts.
type Geometry struct {
	BlockSize      uint32
	RootCount      uint32 // number of block-map forest roots
	TreeHeight     uint32 // fixed height of each forest tree
	EntriesPerPage uint32 // LBN entries per leaf page
	SlabSize       uint64 // blocks per slab, including journal+refcounts prefix
	SlabCount      uint32
}

// Validate checks the geometry for internal consistency, preferring
// an explicit check over silently falling back to defaults.
func (g Geometry) Validate() error {
	if g.BlockSize == 0 {
		return fmt.Errorf("block: geometry block size must be nonzero")
	}
	if g.RootCount == 0 {
		return fmt.Errorf("block: geometry root count must be nonzero")
	}
	if g.EntriesPerPage == 0 {
		return fmt.Errorf("block: geometry entries-per-page must be nonzero")
	}
	if g.SlabSize == 0 {
		return fmt.Errorf("block: geometry slab size must be nonzero")
	}
	return nil
}

// DefaultGeometry is a representative scale: 4 KiB blocks, height-5
// forest, N≈14 compression slots (defined above).
func DefaultGeometry() Geometry {
	return Geometry{
		BlockSize:      Size,
		RootCount:      16,
		TreeHeight:     5,
		EntriesPerPage: uint32(Size / EntrySize),
		SlabSize:       1 << 15,
		SlabCount:      64,
	}
}

// PageIndex and Slot locate the leaf page and in-page slot for lbn.
func (g Geometry) PageIndex(lbn LBN) uint64 {
	return uint64(lbn) / uint64(g.EntriesPerPage)
}

func (g Geometry) Slot(lbn LBN) uint32 {
	return uint32(uint64(lbn) % uint64(g.EntriesPerPage))
}

func (g Geometry) RootIndex(pageIndex uint64) uint32 {
	return uint32(pageIndex % uint64(g.RootCount))
}
