package slab

import (
	"fmt"

	"github.com/dreamware/vdo-core/internal/block"
)

// SlabState distinguishes a slab's on-disk cleanliness: a
// never-synced summary (Unrecovered) is kept distinct from a
// dirty-but-present summary (RequiresScrubbing). AddSlab sets
// SlabClean, and nothing in this module reads or changes the state
// afterwards; internal/recovery does not consult it.
type SlabState int

const (
	SlabClean SlabState = iota
	SlabUnrecovered
	SlabRequiresScrubbing
)

// slab is one physical zone's allocation unit: a fixed range of PBNs
// plus its packed reference counts and journal.
type slab struct {
	number     uint32
	base       block.PBN
	dataBlocks uint64
	state      SlabState

	counts  *RefCounts
	journal *SlabJournal
}

// Allocator owns the disjoint set of slabs in one physical zone: a
// priority table of closed slabs plus at most one open slab serving
// allocations.
type Allocator struct {
	zoneID int
	slabs  map[uint32]*slab
	table  *priorityTable
	open   *slab

	dirtySlabJournals []uint32 // ordered by recovery-journal lock age, oldest first

	// cache, if set, is invalidated for a slab's ref-count block
	// whenever that block's contents change underneath a previously
	// cached serialization.
	cache *RefCountBlockCache
}

func NewAllocator(zoneID int) *Allocator {
	return &Allocator{
		zoneID: zoneID,
		slabs:  map[uint32]*slab{},
		table:  newPriorityTable(),
	}
}

// SetCache wires a RefCountBlockCache to invalidate as ref counts
// change.
func (a *Allocator) SetCache(cache *RefCountBlockCache) { a.cache = cache }

// AddSlab registers a slab with the allocator, placing it in the
// priority table unless it's already open. New slabs start clean.
// base is the slab's first PBN, used to translate an sbn-relative
// allocation into an absolute physical block number.
func (a *Allocator) AddSlab(number uint32, base block.PBN, dataBlocks uint64, journal *SlabJournal) {
	s := &slab{
		number:     number,
		base:       base,
		dataBlocks: dataBlocks,
		state:      SlabClean,
		counts:     NewRefCounts(dataBlocks),
		journal:    journal,
	}
	a.slabs[number] = s
	a.table.insert(number, s.counts.Free())
}

// Allocate implements the three-step allocation algorithm: pop an
// open slab if needed, linear-scan its ref-count array for a free
// block, and return its PBN offset within the slab. The caller must
// confirm the provisional reference (ConfirmAllocation) or release it
// (VacateAllocation).
func (a *Allocator) Allocate() (slabNumber uint32, sbn uint64, err error) {
	for {
		if a.open == nil {
			number, ok := a.table.popBest()
			if !ok {
				return 0, 0, fmt.Errorf("slab: zone %d has no free blocks remaining", a.zoneID)
			}
			a.open = a.slabs[number]
		}
		sbn, ok := a.open.counts.FindFreeBlock()
		if ok {
			return a.open.number, sbn, nil
		}
		// Open slab is exhausted: close it (it won't be re-inserted,
		// since it has zero free blocks left to offer) and try the next.
		a.open = nil
	}
}

// CloseOpenSlab returns the current open slab to the priority table
// at its current free count, making it eligible to be selected again
// (e.g. after blocks were freed back into it while it was open).
func (a *Allocator) CloseOpenSlab() {
	if a.open == nil {
		return
	}
	a.table.insert(a.open.number, a.open.counts.Free())
	a.open = nil
}

// invalidateCache drops a cached serialization for slabNumber, if a
// cache is wired; blockIndex is always 0 here since RefCounts models
// one ref-count block per slab.
func (a *Allocator) invalidateCache(slabNumber uint32) {
	if a.cache != nil {
		a.cache.Invalidate(slabNumber, 0)
	}
}

// ConfirmAllocation applies the journalled increment that turns a
// provisional reference into a real one.
func (a *Allocator) ConfirmAllocation(slabNumber uint32, sbn uint64, era uint64) error {
	s, ok := a.slabs[slabNumber]
	if !ok {
		return fmt.Errorf("slab: unknown slab %d", slabNumber)
	}
	if err := s.counts.Modify(sbn, OpIncrement, era); err != nil {
		return err
	}
	a.invalidateCache(slabNumber)
	return nil
}

// VacateAllocation releases a provisional reference without
// confirming it.
func (a *Allocator) VacateAllocation(slabNumber uint32, sbn uint64) error {
	s, ok := a.slabs[slabNumber]
	if !ok {
		return fmt.Errorf("slab: unknown slab %d", slabNumber)
	}
	s.counts.Vacate(sbn)
	if a.open == nil || a.open.number != slabNumber {
		a.table.insert(slabNumber, s.counts.Free())
	}
	a.invalidateCache(slabNumber)
	return nil
}

// ModifyReference applies op to the ref count at sbn, then records
// the slab-journal commit point on the affected ref-count block so
// replay is idempotent.
func (a *Allocator) ModifyReference(slabNumber uint32, sbn uint64, op Operation, era uint64, journalPoint uint64) error {
	s, ok := a.slabs[slabNumber]
	if !ok {
		return fmt.Errorf("slab: unknown slab %d", slabNumber)
	}
	wasDirty := s.counts.Dirty()
	if err := s.counts.Modify(sbn, op, era); err != nil {
		return err
	}
	if !wasDirty && s.counts.Dirty() {
		s.counts.SetRecoveryLock(journalPoint)
		a.markJournalDirty(slabNumber)
	}
	a.invalidateCache(slabNumber)
	return nil
}

func (a *Allocator) markJournalDirty(slabNumber uint32) {
	for _, n := range a.dirtySlabJournals {
		if n == slabNumber {
			return
		}
	}
	a.dirtySlabJournals = append(a.dirtySlabJournals, slabNumber)
}

// OldestDirtySlabJournal returns the slab number whose slab journal
// holds the oldest recovery-journal lock, used to decide which
// journal to force-commit under recovery-journal pressure.
func (a *Allocator) OldestDirtySlabJournal() (slabNumber uint32, ok bool) {
	if len(a.dirtySlabJournals) == 0 {
		return 0, false
	}
	return a.dirtySlabJournals[0], true
}

func (a *Allocator) Slab(number uint32) (*slab, bool) {
	s, ok := a.slabs[number]
	return s, ok
}

// SlabBase returns slabNumber's first PBN, for translating an
// sbn-relative allocation into an absolute physical block number.
func (a *Allocator) SlabBase(slabNumber uint32) block.PBN {
	if s, ok := a.slabs[slabNumber]; ok {
		return s.base
	}
	return block.InvalidPBN
}

// DrainPhase names the five-phase depot drain state machine.
type DrainPhase int

const (
	DrainStart DrainPhase = iota
	DrainScrubber
	DrainSlabs
	DrainSummary
	DrainFinished
)

// Drain runs the depot's five-phase shutdown against a single
// allocator, advancing one phase at a time and propagating the first
// failure to the caller (which represents the admin parent
// completion).
type Drain struct {
	phase        DrainPhase
	scrubber     *Scrubber
	allocator    *Allocator
	flushSummary func() error
}

func NewDrain(scrubber *Scrubber, allocator *Allocator, flushSummary func() error) *Drain {
	return &Drain{scrubber: scrubber, allocator: allocator, flushSummary: flushSummary}
}

// Step advances the drain by one phase. The step that completes the
// summary phase moves to DrainFinished and still reports done=false;
// a Step called in DrainFinished reports done=true.
func (d *Drain) Step() (done bool, err error) {
	switch d.phase {
	case DrainStart:
		d.phase = DrainScrubber
	case DrainScrubber:
		if d.scrubber != nil {
			for d.scrubber.Pending() > 0 {
				if _, _, _, err := d.scrubber.ScrubNext(); err != nil {
					return false, fmt.Errorf("slab depot drain: scrubber phase: %w", err)
				}
			}
		}
		d.phase = DrainSlabs
	case DrainSlabs:
		if d.allocator != nil {
			d.allocator.CloseOpenSlab()
			for _, s := range d.allocator.slabs {
				if err := s.journal.ForceCommit(); err != nil {
					return false, fmt.Errorf("slab depot drain: slabs phase: %w", err)
				}
			}
		}
		d.phase = DrainSummary
	case DrainSummary:
		if d.flushSummary != nil {
			if err := d.flushSummary(); err != nil {
				return false, fmt.Errorf("slab depot drain: summary phase: %w", err)
			}
		}
		d.phase = DrainFinished
	case DrainFinished:
		return true, nil
	}
	return false, nil
}
