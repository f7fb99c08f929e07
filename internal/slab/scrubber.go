package slab

import (
	"fmt"
	"time"

	"github.com/dreamware/vdo-core/internal/errs"
	"github.com/dreamware/vdo-core/internal/vlog"
)

// JournalReader loads a slab's committed journal blocks off disk, the
// read-side counterpart of SlabJournal's in-memory write path.
type JournalReader interface {
	// ReadJournalBlock returns the header fields and entry payload for
	// the journal block at sequence seq, or ok=false if that sequence
	// was never written (a hole left by reaping or a short journal).
	ReadJournalBlock(slabNumber uint32, seq uint64) (hdr JournalBlockHeader, payload []byte, ok bool, err error)
}

// scrubPriority places a slab on one of two priority queues: slabs
// needed immediately to satisfy an allocation request are scrubbed
// ahead of slabs scrubbed only for background recovery completeness.
type scrubPriority int

const (
	PriorityNormal scrubPriority = iota
	PriorityHigh
)

// scrubRequest is one slab awaiting a scrub pass.
type scrubRequest struct {
	slabNumber uint32
	dataBlocks uint64
	slabSize   uint64 // total journal-addressable sbn space, used to validate decoded entries
}

// Scrubber rebuilds a slab's reference counts by replaying its slab
// journal from the last point its ref-count page was known saved,
// grounded on core/state/pruner/pruner.go's disk-sweep-with-periodic-
// progress-log shape (the loop structure, not the bloom-filter
// mechanics, which don't apply to a WAL replay).
type Scrubber struct {
	reader JournalReader

	high   []scrubRequest
	normal []scrubRequest

	onReadOnly func(cause error)

	// cache, if set, is invalidated for a slab once its ref counts have
	// been rebuilt from the journal: whatever serialized encoding was
	// cached for it is now stale.
	cache *RefCountBlockCache

	logger *vlog.Logger
}

func NewScrubber(reader JournalReader, onReadOnly func(error)) *Scrubber {
	return &Scrubber{
		reader:     reader,
		onReadOnly: onReadOnly,
		logger:     vlog.New("component", "slab-scrubber"),
	}
}

// SetCache wires a RefCountBlockCache to invalidate on rebuild.
func (s *Scrubber) SetCache(cache *RefCountBlockCache) { s.cache = cache }

// Enqueue schedules a slab for scrubbing at the given priority. A
// slab already queued at PriorityNormal is promoted to PriorityHigh
// if re-enqueued there, never demoted.
func (s *Scrubber) Enqueue(slabNumber uint32, dataBlocks, slabSize uint64, priority scrubPriority) {
	req := scrubRequest{slabNumber: slabNumber, dataBlocks: dataBlocks, slabSize: slabSize}
	if priority == PriorityHigh {
		s.high = append(s.high, req)
		return
	}
	s.normal = append(s.normal, req)
}

// Pending reports the number of slabs still awaiting a scrub.
func (s *Scrubber) Pending() int { return len(s.high) + len(s.normal) }

// ScrubNext pops the highest-priority pending slab (high before
// normal, FIFO within a priority) and rebuilds its reference counts.
// Returns ok=false when there is nothing left to scrub.
func (s *Scrubber) ScrubNext() (slabNumber uint32, counts *RefCounts, ok bool, err error) {
	var req scrubRequest
	switch {
	case len(s.high) > 0:
		req, s.high = s.high[0], s.high[1:]
	case len(s.normal) > 0:
		req, s.normal = s.normal[0], s.normal[1:]
	default:
		return 0, nil, false, nil
	}

	counts, err = s.scrubOne(req)
	if err != nil {
		s.logger.Error("slab scrub failed", "slab", req.slabNumber, "err", err)
		if s.onReadOnly != nil {
			s.onReadOnly(err)
		}
		return req.slabNumber, nil, true, err
	}
	if s.cache != nil {
		s.cache.Invalidate(req.slabNumber, 0)
	}
	return req.slabNumber, counts, true, nil
}

// scrubOne walks req's slab journal from sequence 0, applying every
// entry in order. A rebuild always starts from an empty ref-count
// array: scrubbing is the rebuild-from-scratch path, not an
// incremental catch-up (the incremental case is ordinary replay,
// handled by applying individual committed blocks as they arrive).
func (s *Scrubber) scrubOne(req scrubRequest) (*RefCounts, error) {
	counts := NewRefCounts(req.dataBlocks)

	start := time.Now()
	logged := time.Now()

	var seq uint64
	var blocksRead int
	for {
		hdr, payload, ok, err := s.reader.ReadJournalBlock(req.slabNumber, seq)
		if err != nil {
			return nil, fmt.Errorf("slab %d: reading journal block %d: %w", req.slabNumber, seq, err)
		}
		if !ok {
			break
		}
		if err := validateBlockHeader(hdr, seq); err != nil {
			return nil, fmt.Errorf("slab %d: %w", req.slabNumber, err)
		}
		entries, err := Deserialize(payload, req.slabSize)
		if err != nil {
			return nil, fmt.Errorf("slab %d: block %d: %w", req.slabNumber, seq, err)
		}
		if len(entries) != int(hdr.EntryCount) {
			return nil, fmt.Errorf("slab %d: block %d: %w: header says %d entries, decoded %d",
				req.slabNumber, seq, errs.ErrCorruptJournalBlock, hdr.EntryCount, len(entries))
		}
		if err := applyEntries(counts, entries); err != nil {
			return nil, fmt.Errorf("slab %d: block %d: %w", req.slabNumber, seq, err)
		}

		seq++
		blocksRead++
		if time.Since(logged) > 8*time.Second {
			s.logger.Info("scrubbing slab journal", "slab", req.slabNumber, "blocks", blocksRead, "elapsed", time.Since(start))
			logged = time.Now()
		}
	}

	counts.ClearDirty()
	return counts, nil
}

// validateBlockHeader rejects a block whose sequence number doesn't
// match its position in the journal.
func validateBlockHeader(hdr JournalBlockHeader, wantSeq uint64) error {
	if hdr.SequenceNumber != wantSeq {
		return fmt.Errorf("%w: expected sequence %d, found %d", errs.ErrCorruptJournalBlock, wantSeq, hdr.SequenceNumber)
	}
	return nil
}

// applyEntries replays a block's entries into counts in order. A
// block-map increment/decrement and a data increment/decrement are
// both simple ref-count operations once decoded; the only difference
// (the recovery-journal lock they carry) matters to the live journal,
// not to a rebuild.
func applyEntries(counts *RefCounts, entries []JournalEntry) error {
	for _, e := range entries {
		var op Operation
		switch e.Operation {
		case JournalDataIncrement, JournalBlockMapIncrement:
			op = OpIncrement
		case JournalDataDecrement, JournalBlockMapDecrement:
			op = OpDecrement
		default:
			return fmt.Errorf("%w: unknown journal operation %d", errs.ErrCorruptJournalBlock, e.Operation)
		}
		if err := counts.Modify(e.SlabBlockNumber, op, 0); err != nil {
			return err
		}
	}
	return nil
}
