package slab

import (
	"testing"

	"github.com/dreamware/vdo-core/internal/block"
)

func newTestAllocator() (*Allocator, map[uint32][]JournalEntry) {
	committed := map[uint32][]JournalEntry{}
	a := NewAllocator(0)
	for _, n := range []uint32{1, 2} {
		n := n
		j := NewSlabJournal(n, JournalThresholds{Flushing: -10, Blocking: -10}, 100, func(entries []JournalEntry, seq uint64) {
			committed[n] = append(committed[n], entries...)
		})
		a.AddSlab(n, block.PBN(n)*4, 4, j)
	}
	return a, committed
}

func TestAllocatorAllocatesFromOpenSlabThenCloses(t *testing.T) {
	a, _ := newTestAllocator()
	seen := map[uint32]int{}
	for i := 0; i < 8; i++ {
		slabNumber, _, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		seen[slabNumber]++
	}
	if seen[1] != 4 || seen[2] != 4 {
		t.Fatalf("expected both slabs fully allocated, got %+v", seen)
	}
	if _, _, err := a.Allocate(); err == nil {
		t.Fatalf("expected exhaustion error once both slabs are full")
	}
}

func TestAllocatorConfirmAndVacate(t *testing.T) {
	a, _ := newTestAllocator()
	slabNumber, sbn, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := a.ConfirmAllocation(slabNumber, sbn, 1); err != nil {
		t.Fatalf("ConfirmAllocation: %v", err)
	}
	s, _ := a.Slab(slabNumber)
	if s.counts.Get(sbn) != refMinReal {
		t.Fatalf("expected confirmed reference, got %v", s.counts.Get(sbn))
	}

	slabNumber2, sbn2, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := a.VacateAllocation(slabNumber2, sbn2); err != nil {
		t.Fatalf("VacateAllocation: %v", err)
	}
	s2, _ := a.Slab(slabNumber2)
	if s2.counts.Get(sbn2) != RefEmpty {
		t.Fatalf("expected vacated block back to empty, got %v", s2.counts.Get(sbn2))
	}
}

func TestAllocatorModifyReferenceTracksDirtySlabJournal(t *testing.T) {
	a, _ := newTestAllocator()
	if _, ok := a.OldestDirtySlabJournal(); ok {
		t.Fatalf("expected no dirty slab journals initially")
	}
	if err := a.ModifyReference(1, 0, OpIncrement, 3, 42); err != nil {
		t.Fatalf("ModifyReference: %v", err)
	}
	number, ok := a.OldestDirtySlabJournal()
	if !ok || number != 1 {
		t.Fatalf("expected slab 1 to be the oldest dirty journal, got %d ok=%v", number, ok)
	}
	s, _ := a.Slab(1)
	if s.counts.RecoveryLock() != 42 {
		t.Fatalf("expected recovery lock recorded, got %d", s.counts.RecoveryLock())
	}
}

func TestDrainRunsAllFivePhases(t *testing.T) {
	a, committed := newTestAllocator()
	a.Allocate() // leave an open slab with pending state to exercise CloseOpenSlab

	reader := newMemJournalReader()
	scrubber := NewScrubber(reader, nil)

	summaryFlushed := false
	drain := NewDrain(scrubber, a, func() error {
		summaryFlushed = true
		return nil
	})

	var phases []DrainPhase
	for {
		phases = append(phases, drain.phase)
		done, err := drain.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if done {
			break
		}
	}
	if len(phases) != 5 {
		t.Fatalf("expected 5 phase steps, got %d: %v", len(phases), phases)
	}
	if !summaryFlushed {
		t.Fatalf("expected summary phase to flush")
	}
	_ = committed
}
