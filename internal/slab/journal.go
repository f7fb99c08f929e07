package slab

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"

	"github.com/dreamware/vdo-core/internal/errs"
)

// JournalOperation is one of the four slab-journal entry kinds.
type JournalOperation uint8

const (
	JournalDataIncrement JournalOperation = iota
	JournalDataDecrement
	JournalBlockMapIncrement
	JournalBlockMapDecrement
)

// JournalEntry is a packed (operation, slab_block_number) record.
// Block-map increments additionally carry a recovery-journal sequence
// number so they can release their per-entry lock on commit.
type JournalEntry struct {
	Operation          JournalOperation
	SlabBlockNumber    uint64
	RecoveryJournalSeq uint64 // only meaningful when Operation == JournalBlockMapIncrement/Decrement
}

func (e JournalEntry) hasBlockMapLock() bool {
	return e.Operation == JournalBlockMapIncrement || e.Operation == JournalBlockMapDecrement
}

// JournalBlockHeader mirrors the on-disk slab journal block header.
type JournalBlockHeader struct {
	Head                  uint64
	SequenceNumber        uint64
	Nonce                 uint64
	EntryCount            uint16
	HasBlockMapIncrements bool
}

// Thresholds control when a slab journal's tail block commits or
// blocks new entries.
type JournalThresholds struct {
	Flushing  int // free tail-block count below which flushing begins
	Blocking  int // free tail-block count below which new entries are refused
	Scrubbing int // free tail-block count below which a rebuild is forced at start-up
}

// SlabJournal is the per-slab circular log of ref-count change
// entries. Grounded on internal/journal's tail-block discipline,
// specialized to the smaller 4-byte entry and per-slab scope.
type SlabJournal struct {
	slabNumber         uint32
	thresholds         JournalThresholds
	maxEntriesPerBlock int

	head uint64
	tail uint64

	pending []JournalEntry // entries accumulated for the current (uncommitted) tail block

	blocking bool

	onCommit func(entries []JournalEntry, blockSeq uint64) // invoked with the committed block's entries, e.g. to release recovery-journal locks
}

func NewSlabJournal(slabNumber uint32, thresholds JournalThresholds, maxEntriesPerBlock int, onCommit func([]JournalEntry, uint64)) *SlabJournal {
	return &SlabJournal{
		slabNumber:         slabNumber,
		thresholds:         thresholds,
		maxEntriesPerBlock: maxEntriesPerBlock,
		onCommit:           onCommit,
	}
}

// AddEntry appends e to the in-flight tail block. Returns a plain
// (unwrapped) error, without appending, once an earlier entry has
// brought the free tail-block count to or below the blocking
// threshold.
func (j *SlabJournal) AddEntry(e JournalEntry) (committed bool, err error) {
	if j.blocking {
		return false, fmt.Errorf("slab: journal for slab %d is blocking new entries", j.slabNumber)
	}
	j.pending = append(j.pending, e)
	freeTail := j.freeTailBlocks()
	if freeTail <= j.thresholds.Blocking {
		j.blocking = true
	}
	if len(j.pending) >= j.maxEntriesPerBlock || freeTail <= j.thresholds.Flushing {
		return true, j.commit()
	}
	return false, nil
}

// freeTailBlocks is a stand-in measure of remaining journal space: in
// the absence of a fixed on-disk ring size here (ring sizing belongs
// to internal/geometry), callers configure thresholds in terms of
// pending-entry counts instead of physical blocks remaining.
func (j *SlabJournal) freeTailBlocks() int {
	return j.maxEntriesPerBlock - len(j.pending)
}

// ForceCommit commits the pending entries immediately, used when
// recovery-journal pressure forces an early commit.
func (j *SlabJournal) ForceCommit() error {
	if len(j.pending) == 0 {
		return nil
	}
	return j.commit()
}

func (j *SlabJournal) commit() error {
	seq := j.tail
	j.tail++
	entries := j.pending
	j.pending = nil
	j.blocking = false

	if j.onCommit != nil {
		j.onCommit(entries, seq)
	}
	return nil
}

// Serialize packs entries into the 4-byte-per-entry on-disk format,
// snappy-compressed like the recovery journal (domain-stack wiring
// shared with internal/journal).
func Serialize(entries []JournalEntry) []byte {
	raw := make([]byte, 0, len(entries)*4)
	for _, e := range entries {
		var rec [4]byte
		rec[0] = byte(e.Operation)
		sbn := uint32(e.SlabBlockNumber)
		binary.BigEndian.PutUint32(rec[:4], sbn)
		rec[0] = byte(e.Operation)<<5 | rec[0]&0x1F
		raw = append(raw, rec[:]...)
	}
	return snappy.Encode(nil, raw)
}

func Deserialize(payload []byte, slabSize uint64) ([]JournalEntry, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCorruptJournalBlock, err)
	}
	if len(raw)%4 != 0 {
		return nil, errs.ErrCorruptJournalBlock
	}
	entries := make([]JournalEntry, 0, len(raw)/4)
	for off := 0; off < len(raw); off += 4 {
		rec := raw[off : off+4]
		op := JournalOperation(rec[0] >> 5)
		sbn := binary.BigEndian.Uint32(rec[:4]) & 0x1FFFFFFF
		if uint64(sbn) >= slabSize {
			return nil, fmt.Errorf("%w: sbn %d outside [0,%d)", errs.ErrCorruptJournalBlock, sbn, slabSize)
		}
		entries = append(entries, JournalEntry{Operation: op, SlabBlockNumber: uint64(sbn)})
	}
	return entries, nil
}

// Head, Tail expose the journal's sequence-number window.
func (j *SlabJournal) Head() uint64 { return j.head }
func (j *SlabJournal) Tail() uint64 { return j.tail }
