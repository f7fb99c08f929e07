// Package journal implements the recovery journal: a
// circular write-ahead log of totally-ordered entries describing
// every logical mapping change, with a tail-block state machine,
// per-entry locking via internal/lock, and reaping.
//
// The append/commit discipline is grounded on
// core/rawdb/freezer_table.go's Append: serialize, compress, stamp
// the check byte and write each new block. The package has no on-open
// repair pass: it does not cross-check head against a recorded tail
// or truncate anything when opened.
package journal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/golang/snappy"

	"github.com/dreamware/vdo-core/internal/block"
	"github.com/dreamware/vdo-core/internal/errs"
	"github.com/dreamware/vdo-core/internal/lock"
	"github.com/dreamware/vdo-core/internal/vlog"
)

// Operation names the kind of change a recovery-journal entry records.
type Operation uint8

const (
	OpDataIncrement Operation = iota
	OpDataDecrement
	OpBlockMapIncrement
	OpBlockMapDecrement
)

// Entry is one packed (operation, LBN, old_PBN, new_PBN, mapping_state)
// record.
type Entry struct {
	Operation  Operation
	LBN        block.LBN
	OldMapping block.Mapping
	NewMapping block.Mapping
}

// TailState is the in-memory tail-block state machine.
type TailState int

const (
	StateEmpty TailState = iota
	StateFilling
	StateWaitingToCommit
	StateCommitting
	StateCommitted
)

// BlockHeader is the on-disk header carried by every journal block.
// RecoveryCount is supplemented from original_source (vdo/recoveryJournal.h).
// Nothing in this module increments it: blocks are committed with 0.
type BlockHeader struct {
	SequenceNumber     uint64
	Nonce              uint64
	EntryCount         uint16
	CheckByte          byte
	RecoveryCount      uint8
	BlockMapHead       uint64
	SlabJournalHead    uint64
	LogicalBlocksUsed  uint64
	BlockMapDataBlocks uint64
}

// checkByte computes the per-block check byte: ((seq / journalSize) &
// 0x7F) | 0x80.
func checkByte(seq uint64, journalSize uint64) byte {
	return byte((seq/journalSize)&0x7F) | 0x80
}

// Storage is the substrate the journal writes committed blocks to.
// Implementations persist one block per WriteBlock call and must not
// return until the write (and any preceding flush) is durable.
type Storage interface {
	// Flush forces any previously issued write to reach stable
	// storage before WriteBlock's write is issued, the
	// crash-consistency boundary that keeps a commit from racing its
	// own predecessor onto disk.
	Flush() error
	WriteBlock(seq uint64, header BlockHeader, payload []byte) error
	ReadBlock(seq uint64) (BlockHeader, []byte, error)
}

// entryZones records which zones AddEntry acquired per-entry locks for,
// so commitLocked can release exactly what was acquired.
type entryZones struct {
	logicalZoneID  int
	physicalZoneID int
}

// tailBlock is one in-memory tail block awaiting fill/commit.
type tailBlock struct {
	seq     uint64
	state   TailState
	entries []Entry
	zones   []entryZones
	waiters []chan error // woken in order when this block settles
	flushed bool
}

// Journal is the recovery journal.
type Journal struct {
	mu sync.Mutex

	storage            Storage
	locks              *lock.Counter
	logicalZones       int
	physicalZones      int
	journalSize        uint64 // number of sequence-number slots before wraparound semantics repeat, used by checkByte
	maxEntriesPerBlock int

	nonce uint64

	head   uint64 // oldest reachable block
	tail   uint64 // next free sequence number
	active *tailBlock

	priorBlockFlushed bool

	readOnly bool

	readMeter, writeMeter meter

	logger *vlog.Logger
}

// meter mirrors freezerTable's readMeter/writeMeter fields: a minimal
// counter in the shape of go-ethereum's metrics.Meter (Mark(n)).
type meter struct {
	mu    sync.Mutex
	count int64
}

func (m *meter) Mark(n int64) {
	m.mu.Lock()
	m.count += n
	m.mu.Unlock()
}

func (m *meter) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Config bundles the construction parameters, with explicit
// constructor parameters over package globals.
type Config struct {
	Storage            Storage
	LogicalZones       int
	PhysicalZones      int
	JournalSize        uint64
	MaxEntriesPerBlock int
	Nonce              uint64
}

// New constructs a Journal. The lock.Counter is wired in by the
// caller (it is shared with the slab depot and block map).
func New(cfg Config, locks *lock.Counter) *Journal {
	j := &Journal{
		storage:            cfg.Storage,
		locks:              locks,
		logicalZones:       cfg.LogicalZones,
		physicalZones:      cfg.PhysicalZones,
		journalSize:        cfg.JournalSize,
		maxEntriesPerBlock: cfg.MaxEntriesPerBlock,
		nonce:              cfg.Nonce,
		priorBlockFlushed:  true,
		logger:             vlog.New("component", "recovery-journal"),
	}
	return j
}

// Head, Tail return the current journal window bounds.
func (j *Journal) Head() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.head
}

func (j *Journal) Tail() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tail
}

// AddEntry enqueues an entry for packing into the active tail block,
// on behalf of the given logical and physical zone ids (the zones that
// will later act on the entry: the block map zone that owns e.LBN and
// the physical zone that owns e.NewMapping.PBN). It returns the
// sequence number the entry landed in once the block it belongs to
// has been assigned (not necessarily committed yet); per-entry locks
// for both zones are acquired before returning.
func (j *Journal) AddEntry(e Entry, logicalZoneID, physicalZoneID int) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.readOnly {
		return 0, errs.ErrReadOnly
	}
	if j.active == nil || j.active.state != StateFilling {
		j.active = &tailBlock{seq: j.tail, state: StateFilling}
		j.tail++
	}
	seq := j.active.seq
	j.active.entries = append(j.active.entries, e)
	j.active.zones = append(j.active.zones, entryZones{logicalZoneID: logicalZoneID, physicalZoneID: physicalZoneID})

	j.locks.Acquire(seq, lock.ZoneLogical, logicalZoneID)
	j.locks.Acquire(seq, lock.ZonePhysical, physicalZoneID)

	if len(j.active.entries) >= j.maxEntriesPerBlock {
		blk := j.active
		j.active = nil
		return seq, j.commitLocked(blk)
	}
	return seq, nil
}

// RequestCommit forces the block holding seq to commit even if not
// yet full. Blocks until the commit completes.
func (j *Journal) RequestCommit(seq uint64) error {
	j.mu.Lock()
	if j.active != nil && j.active.seq == seq && j.active.state == StateFilling {
		blk := j.active
		j.active = nil
		err := j.commitLocked(blk)
		j.mu.Unlock()
		return err
	}
	j.mu.Unlock()
	return nil
}

// commitLocked serializes, compresses, checksums and writes blk. Must
// be called with j.mu held; it releases and reacquires the lock
// around the actual storage write so concurrent AddEntry calls for
// the *next* block are not blocked on I/O, matching the "at most one
// commit per block is in flight" rule without serializing unrelated
// blocks.
func (j *Journal) commitLocked(blk *tailBlock) error {
	blk.state = StateWaitingToCommit
	payload := j.serialize(blk)

	header := BlockHeader{
		SequenceNumber: blk.seq,
		Nonce:          j.nonce,
		EntryCount:     uint16(len(blk.entries)),
		CheckByte:      checkByte(blk.seq, j.journalSize),
	}

	blk.state = StateCommitting
	j.mu.Unlock()
	var err error
	if !j.priorBlockFlushed {
		err = j.storage.Flush()
	}
	if err == nil {
		err = j.storage.WriteBlock(blk.seq, header, payload)
	}
	j.mu.Lock()

	if err != nil {
		j.enterReadOnlyLocked(err)
		return err
	}
	j.priorBlockFlushed = false
	blk.state = StateCommitted
	j.writeMeter.Mark(int64(len(payload)))

	// The journal's own "I hold this block's reference until written"
	// lock is released now that the write is durable, once per entry
	// and zone pair acquired in AddEntry.
	for _, z := range blk.zones {
		j.locks.Release(blk.seq, lock.ZoneLogical, z.logicalZoneID)
		j.locks.Release(blk.seq, lock.ZonePhysical, z.physicalZoneID)
	}

	for _, w := range blk.waiters {
		w <- nil
	}
	return nil
}

func (j *Journal) serialize(blk *tailBlock) []byte {
	raw := make([]byte, 0, len(blk.entries)*32)
	for _, e := range blk.entries {
		var rec [1 + 8 + 8 + 1 + 8 + 1]byte
		rec[0] = byte(e.Operation)
		binary.BigEndian.PutUint64(rec[1:9], uint64(e.LBN))
		binary.BigEndian.PutUint64(rec[9:17], uint64(e.OldMapping.PBN))
		rec[17] = byte(e.OldMapping.State)
		binary.BigEndian.PutUint64(rec[18:26], uint64(e.NewMapping.PBN))
		rec[26] = byte(e.NewMapping.State)
		raw = append(raw, rec[:]...)
	}
	return snappy.Encode(nil, raw)
}

// DeserializeEntries decodes a journal block payload back into its
// entries. Used by internal/recovery during replay.
func DeserializeEntries(payload []byte) ([]Entry, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCorruptJournalBlock, err)
	}
	const recSize = 1 + 8 + 8 + 1 + 8 + 1
	if len(raw)%recSize != 0 {
		return nil, errs.ErrCorruptJournalBlock
	}
	entries := make([]Entry, 0, len(raw)/recSize)
	for off := 0; off < len(raw); off += recSize {
		rec := raw[off : off+recSize]
		entries = append(entries, Entry{
			Operation:  Operation(rec[0]),
			LBN:        block.LBN(binary.BigEndian.Uint64(rec[1:9])),
			OldMapping: block.Mapping{PBN: block.PBN(binary.BigEndian.Uint64(rec[9:17])), State: block.MappingState(rec[17])},
			NewMapping: block.Mapping{PBN: block.PBN(binary.BigEndian.Uint64(rec[18:26])), State: block.MappingState(rec[26])},
		})
	}
	return entries, nil
}

// enterReadOnlyLocked transitions the journal to read-only. Must be
// called with j.mu held.
func (j *Journal) enterReadOnlyLocked(cause error) {
	if j.readOnly {
		return
	}
	j.readOnly = true
	j.logger.Crit("recovery journal entering read-only mode", "cause", cause)
}

// ReadOnly reports whether the journal has entered read-only mode.
func (j *Journal) ReadOnly() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readOnly
}

// Reap advances head as far as possible: a block at `head` may be
// reaped once it has been written+acknowledged and the lock counter
// reports zero references for it.
func (j *Journal) Reap() (advanced int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for j.head < j.tail {
		if j.locks.IsLocked(j.head) {
			break
		}
		if j.active != nil && j.active.seq == j.head {
			break // not yet committed
		}
		j.head++
		advanced++
	}
	return advanced
}

// Drain writes out the active (partially filled) block if any.
func (j *Journal) Drain() error {
	j.mu.Lock()
	blk := j.active
	j.active = nil
	j.mu.Unlock()
	if blk == nil || len(blk.entries) == 0 {
		return nil
	}
	j.mu.Lock()
	err := j.commitLocked(blk)
	j.mu.Unlock()
	return err
}

// AcquireBlockReference and ReleaseBlockReference let the block map
// and slab depot hold a reference while a page is dirty for a given
// era.
func (j *Journal) AcquireBlockReference(seq uint64, zoneType lock.ZoneType, zoneID int) {
	j.locks.Acquire(seq, zoneType, zoneID)
}

func (j *Journal) ReleaseBlockReference(seq uint64, zoneType lock.ZoneType, zoneID int) {
	j.locks.Release(seq, zoneType, zoneID)
}
