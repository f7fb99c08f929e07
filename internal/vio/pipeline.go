package vio

import (
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/dreamware/vdo-core/internal/block"
	"github.com/dreamware/vdo-core/internal/journal"
)

// Allocator is the block-allocation step's dependency, satisfied by
// *internal/slab.Allocator.
type Allocator interface {
	Allocate() (slabNumber uint32, sbn uint64, err error)
	ConfirmAllocation(slabNumber uint32, sbn uint64, era uint64) error
	SlabBase(slabNumber uint32) block.PBN
}

// JournalAppender is the journal step's dependency, satisfied by
// *internal/journal.Journal.
type JournalAppender interface {
	AddEntry(e journal.Entry, logicalZoneID, physicalZoneID int) (uint64, error)
}

// BlockMap is the block-map step's dependency: translate a logical
// write into a durable (LBN -> Mapping) update. The forest/page-cache
// internals of actually locating and rewriting the page are
// internal/blockmap's concern; this pipeline only needs the single
// entry point.
type BlockMap interface {
	UpdateMapping(lbn block.LBN, mapping block.Mapping) error
}

// Pipeline composes one data_vio's full write path: lbn-lock ->
// hash-lock (dedup) -> allocate -> journal -> block-map, per the
// Overview pipeline diagram. It holds no mutable per-write state of
// its own — all of that lives on the DataVIO passed to Write.
type Pipeline struct {
	lbnLocks  *LBNLocks
	hashLocks *HashLocks
	allocator Allocator
	journal   JournalAppender
	blockMap  BlockMap

	// logicalZoneID, physicalZoneID identify the one logical zone and
	// one physical zone (allocator) this pipeline instance runs on; a
	// data_vio's journal entry locks are acquired on their behalf.
	logicalZoneID  int
	physicalZoneID int

	currentEra func() uint64
}

func NewPipeline(lbnLocks *LBNLocks, hashLocks *HashLocks, allocator Allocator, j JournalAppender, blockMap BlockMap, logicalZoneID, physicalZoneID int, currentEra func() uint64) *Pipeline {
	return &Pipeline{
		lbnLocks:       lbnLocks,
		hashLocks:      hashLocks,
		allocator:      allocator,
		journal:        j,
		blockMap:       blockMap,
		logicalZoneID:  logicalZoneID,
		physicalZoneID: physicalZoneID,
		currentEra:     currentEra,
	}
}

// ChunkNameOf hashes data the way trie/stacktrie.go hashes trie nodes:
// a single sha3 Legacy Keccak-256 sum, taken here over the logical
// write's uncompressed payload rather than an encoded trie node.
func ChunkNameOf(data []byte) ChunkName {
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	var name ChunkName
	copy(name[:], d.Sum(nil))
	return name
}

// ErrLBNBusy is returned by Write when another data_vio currently
// holds the lock for the same LBN; the caller (the logical zone's
// queue) is expected to have registered a resume callback via the
// resume parameter and will be re-invoked once the lock frees.
var ErrLBNBusy = fmt.Errorf("vio: lbn lock held by another write")

// Write drives dv through every pipeline step in order, synchronously.
// resume, if non-nil, is queued on the LBN's wait list when the lock
// is currently held so the caller's zone can retry later; Write
// returns ErrLBNBusy in that case without having mutated any shared
// state.
func (p *Pipeline) Write(dv *DataVIO, resume func()) error {
	if !p.lbnLocks.TryAcquire(dv.LBN, resume) {
		dv.State = StateNew
		return ErrLBNBusy
	}
	dv.State = StateLBNLocked
	defer p.lbnLocks.Release(dv.LBN)

	dv.ChunkName = ChunkNameOf(dv.Data)
	existingPBN, found, err := p.hashLocks.Verify(dv.ChunkName)
	if err != nil {
		dv.State = StateFailed
		dv.Err = err
		return fmt.Errorf("vio: hash lock: %w", err)
	}
	dv.State = StateHashLocked

	era := uint64(0)
	if p.currentEra != nil {
		era = p.currentEra()
	}

	var mapping block.Mapping
	if found {
		dv.Dedup = true
		mapping = block.Mapping{PBN: existingPBN, State: block.MappingStateUncompressed}
	} else {
		slabNumber, sbn, err := p.allocator.Allocate()
		if err != nil {
			dv.State = StateFailed
			dv.Err = err
			return fmt.Errorf("vio: allocate: %w", err)
		}
		if err := p.allocator.ConfirmAllocation(slabNumber, sbn, era); err != nil {
			dv.State = StateFailed
			dv.Err = err
			return fmt.Errorf("vio: confirm allocation: %w", err)
		}
		dv.SlabNumber, dv.SBN = slabNumber, sbn
		mapping = block.Mapping{PBN: p.allocator.SlabBase(slabNumber) + block.PBN(sbn), State: block.MappingStateUncompressed}
	}
	dv.Mapping = mapping
	dv.State = StateAllocated

	op := journal.OpDataIncrement
	if _, err := p.journal.AddEntry(journal.Entry{
		Operation:  op,
		LBN:        dv.LBN,
		OldMapping: block.Unmapped,
		NewMapping: mapping,
	}, p.logicalZoneID, p.physicalZoneID); err != nil {
		dv.State = StateFailed
		dv.Err = err
		return fmt.Errorf("vio: journal entry: %w", err)
	}
	dv.State = StateJournaled

	if err := p.blockMap.UpdateMapping(dv.LBN, mapping); err != nil {
		dv.State = StateFailed
		dv.Err = err
		return fmt.Errorf("vio: block map update: %w", err)
	}
	dv.State = StateBlockMapUpdated
	dv.State = StateDone
	return nil
}
