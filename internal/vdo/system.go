// Package vdo is the composition root: it wires internal/lock,
// internal/journal, internal/slab and internal/blockmap into a single
// working internal/vio.Pipeline, the way internal/vio's package doc
// describes but that package alone never assembles. A System runs one
// logical zone paired with one physical zone, the minimal deployment
// the Overview's pipeline diagram requires; multi-zone configurations
// repeat this wiring once per zone pair.
package vdo

import (
	"encoding/binary"
	"fmt"

	"github.com/dreamware/vdo-core/internal/block"
	"github.com/dreamware/vdo-core/internal/blockmap"
	"github.com/dreamware/vdo-core/internal/geometry"
	"github.com/dreamware/vdo-core/internal/journal"
	"github.com/dreamware/vdo-core/internal/lock"
	"github.com/dreamware/vdo-core/internal/recovery"
	"github.com/dreamware/vdo-core/internal/slab"
	"github.com/dreamware/vdo-core/internal/vio"
)

const (
	defaultLogicalZoneID  = 0
	defaultPhysicalZoneID = 0
	defaultSlabNumber     = 0
)

// journalKVStore adapts a geometry.KeyValueStore into journal.Storage,
// keying each committed block by its big-endian sequence number.
type journalKVStore struct {
	kv geometry.KeyValueStore
}

func newJournalKVStore(kv geometry.KeyValueStore) *journalKVStore {
	return &journalKVStore{kv: kv}
}

func journalBlockKey(seq uint64) []byte {
	key := make([]byte, 1+8)
	key[0] = 'j'
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

func (s *journalKVStore) Flush() error { return nil }

func (s *journalKVStore) WriteBlock(seq uint64, header journal.BlockHeader, payload []byte) error {
	buf := make([]byte, 8+8+2+1+len(payload))
	binary.BigEndian.PutUint64(buf[0:8], header.SequenceNumber)
	binary.BigEndian.PutUint64(buf[8:16], header.Nonce)
	binary.BigEndian.PutUint16(buf[16:18], header.EntryCount)
	buf[18] = header.CheckByte
	copy(buf[19:], payload)
	return s.kv.Put(journalBlockKey(seq), buf)
}

func (s *journalKVStore) ReadBlock(seq uint64) (journal.BlockHeader, []byte, error) {
	buf, err := s.kv.Get(journalBlockKey(seq))
	if err != nil {
		return journal.BlockHeader{}, nil, fmt.Errorf("vdo: reading journal block %d: %w", seq, err)
	}
	if len(buf) < 19 {
		return journal.BlockHeader{}, nil, fmt.Errorf("vdo: journal block %d record too short", seq)
	}
	hdr := journal.BlockHeader{
		SequenceNumber: binary.BigEndian.Uint64(buf[0:8]),
		Nonce:          binary.BigEndian.Uint64(buf[8:16]),
		EntryCount:     binary.BigEndian.Uint16(buf[16:18]),
		CheckByte:      buf[18],
	}
	return hdr, append([]byte{}, buf[19:]...), nil
}

// pageKVStore adapts a geometry.KeyValueStore into blockmap.Storage,
// keying each page by its PBN and synthesizing a zero-filled body of
// blockSize for a page never written before (the on-disk equivalent of
// a never-allocated block reading as zeros).
type pageKVStore struct {
	kv        geometry.KeyValueStore
	blockSize uint32
}

func newPageKVStore(kv geometry.KeyValueStore, blockSize uint32) *pageKVStore {
	return &pageKVStore{kv: kv, blockSize: blockSize}
}

func pageKey(pbn block.PBN) []byte {
	key := make([]byte, 1+8)
	key[0] = 'p'
	binary.BigEndian.PutUint64(key[1:], uint64(pbn))
	return key
}

func (s *pageKVStore) ReadPage(pbn block.PBN) ([]byte, error) {
	v, err := s.kv.Get(pageKey(pbn))
	if err == geometry.ErrNotFound {
		return make([]byte, s.blockSize), nil
	}
	if err != nil {
		return nil, fmt.Errorf("vdo: reading page %d: %w", pbn, err)
	}
	return v, nil
}

func (s *pageKVStore) WritePage(pbn block.PBN, body []byte) error {
	return s.kv.Put(pageKey(pbn), body)
}

// slabPageAllocator adapts *slab.Allocator into blockmap.PageAllocator:
// interior block-map pages are allocated from the same physical space
// as data blocks, so a fresh page is just another confirmed allocation
// against slab 0.
type slabPageAllocator struct {
	allocator *slab.Allocator
	era       func() uint64
}

func (a *slabPageAllocator) AllocateInteriorPage() (block.PBN, error) {
	slabNumber, sbn, err := a.allocator.Allocate()
	if err != nil {
		return block.InvalidPBN, fmt.Errorf("vdo: allocating interior page: %w", err)
	}
	if err := a.allocator.ConfirmAllocation(slabNumber, sbn, a.era()); err != nil {
		return block.InvalidPBN, fmt.Errorf("vdo: confirming interior page allocation: %w", err)
	}
	return a.allocator.SlabBase(slabNumber) + block.PBN(sbn), nil
}

// journalLockOwner is the recovery journal's lock.Owner: nothing else
// in this single-zone deployment needs to react to a lock reaching
// zero references before the next reap, so it acknowledges
// immediately, re-arming the counter for the lock's next use.
type journalLockOwner struct {
	locks *lock.Counter
}

func (o *journalLockOwner) NotifyLockZeroed(lockNumber uint64) {
	o.locks.Acknowledge(lockNumber)
}

// entryApplier is recovery.EntryApplier: it replays one recovery
// journal entry against the physical zone's allocator and the block
// map, the two metadata engines the recovery journal exists to make
// consistent after a crash.
type entryApplier struct {
	allocator *slab.Allocator
	blockMap  *blockmap.BlockMap
	era       func() uint64
}

func (a *entryApplier) Apply(e journal.Entry) error {
	switch e.Operation {
	case journal.OpDataIncrement:
		if err := a.allocator.ConfirmAllocation(defaultSlabNumber, uint64(e.NewMapping.PBN), a.era()); err != nil {
			return fmt.Errorf("vdo: replaying allocation for lbn %d: %w", e.LBN, err)
		}
	case journal.OpDataDecrement:
		if err := a.allocator.ModifyReference(defaultSlabNumber, uint64(e.OldMapping.PBN), slab.OpDecrement, a.era(), 0); err != nil {
			return fmt.Errorf("vdo: replaying decrement for lbn %d: %w", e.LBN, err)
		}
	}
	return a.blockMap.UpdateMapping(e.LBN, e.NewMapping)
}

// Config bundles System's construction parameters.
type Config struct {
	Store                     geometry.KeyValueStore
	Geometry                  block.Geometry
	DataBlocksPerSlab         uint64
	JournalSize               uint64
	MaxEntriesPerJournalBlock int
	PageCacheCapacity         int
	DirtyListMaxAge           uint64
}

// System is the minimal one-logical-zone, one-physical-zone VDO
// instance: a lock.Counter shared by the journal and the block map's
// recovery locks, a recovery journal, a physical zone's slab
// allocator, and a block-map forest + page cache, composed into a
// vio.Pipeline.
type System struct {
	store     geometry.KeyValueStore
	locks     *lock.Counter
	journal   *journal.Journal
	allocator *slab.Allocator
	forest    *blockmap.Forest
	pageCache *blockmap.PageCache
	dirty     *blockmap.DirtyList
	blockMap  *blockmap.BlockMap
	pipeline  *vio.Pipeline
	recovery  *recovery.NormalRecovery
}

// currentEra ties the era/sequence-number discipline shared by every
// metadata engine to the journal's own tail: the next sequence number
// about to be assigned doubles as "how recent is this write" for
// dirty-page aging.
func (s *System) currentEra() uint64 {
	return s.journal.Tail()
}

// New wires a System together per cfg. geom must already be validated.
func New(cfg Config) (*System, error) {
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("vdo: %w", err)
	}

	owner := &journalLockOwner{}
	locks := lock.NewCounter(int(cfg.JournalSize), 1, 1, owner)
	owner.locks = locks

	j := journal.New(journal.Config{
		Storage:            newJournalKVStore(cfg.Store),
		LogicalZones:       1,
		PhysicalZones:      1,
		JournalSize:        cfg.JournalSize,
		MaxEntriesPerBlock: cfg.MaxEntriesPerJournalBlock,
	}, locks)

	sys := &System{store: cfg.Store, locks: locks, journal: j}

	allocator := slab.NewAllocator(defaultPhysicalZoneID)
	thresholds := slab.JournalThresholds{Flushing: 8, Blocking: 2, Scrubbing: 1}
	slabJournal := slab.NewSlabJournal(defaultSlabNumber, thresholds, cfg.MaxEntriesPerJournalBlock, func(entries []slab.JournalEntry, _ uint64) {
		for _, e := range entries {
			if e.Operation == slab.JournalBlockMapIncrement || e.Operation == slab.JournalBlockMapDecrement {
				j.ReleaseBlockReference(e.RecoveryJournalSeq, lock.ZonePhysical, defaultPhysicalZoneID)
			}
		}
	})
	allocator.AddSlab(defaultSlabNumber, block.PBN(0), cfg.DataBlocksPerSlab, slabJournal)
	sys.allocator = allocator

	pageAllocator := &slabPageAllocator{allocator: allocator, era: sys.currentEra}
	forest := blockmap.NewForest(cfg.Geometry, 1, pageAllocator)
	sys.forest = forest

	locker := blockmap.NewJournalLocker(j, lock.ZoneLogical, defaultLogicalZoneID)
	pageStore := newPageKVStore(cfg.Store, cfg.Geometry.BlockSize)
	pageCache, err := blockmap.NewPageCache(cfg.PageCacheCapacity, pageStore, locker, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vdo: %w", err)
	}
	sys.pageCache = pageCache

	dirty := blockmap.NewDirtyList(cfg.DirtyListMaxAge, func(pbn block.PBN) {
		_ = pageCache.RequestWrite(pbn)
	})
	sys.dirty = dirty

	blockMap := blockmap.NewBlockMap(forest, pageCache, dirty, sys.currentEra)
	sys.blockMap = blockMap

	pipeline := vio.NewPipeline(vio.NewLBNLocks(), vio.NewHashLocks(vio.NoDedupIndex{}), allocator, j, blockMap,
		defaultLogicalZoneID, defaultPhysicalZoneID, sys.currentEra)
	sys.pipeline = pipeline

	applier := &entryApplier{allocator: allocator, blockMap: blockMap, era: sys.currentEra}
	sys.recovery = recovery.NewNormalRecovery(newJournalKVStore(cfg.Store), applier)

	return sys, nil
}

// Write runs data through the full write pipeline for lbn,
// synchronously, and returns the data_vio it drove through every
// step. resume is queued on the LBN lock's wait list if another write
// currently holds it; see vio.Pipeline.Write.
func (s *System) Write(lbn block.LBN, data []byte, resume func()) (*vio.DataVIO, error) {
	dv := &vio.DataVIO{LBN: lbn, Data: data}
	err := s.pipeline.Write(dv, resume)
	return dv, err
}

// Lookup reads back the mapping currently recorded for lbn.
func (s *System) Lookup(lbn block.LBN) (block.Mapping, error) {
	return s.blockMap.LookupMapping(lbn)
}

// Recover replays every committed journal block against the block map
// and slab allocator. A freshly opened System has no record of the
// prior process's journal window (that bookkeeping belongs to the
// super block, out of this minimal composition's scope), so the tail
// is rediscovered by probing the store for consecutive committed
// blocks starting at sequence 0.
func (s *System) Recover() (blocks, entries int, err error) {
	var tail uint64
	for {
		ok, err := s.store.Has(journalBlockKey(tail))
		if err != nil {
			return 0, 0, fmt.Errorf("vdo: probing journal tail at seq %d: %w", tail, err)
		}
		if !ok {
			break
		}
		tail++
	}
	return s.recovery.Replay(0, tail)
}
