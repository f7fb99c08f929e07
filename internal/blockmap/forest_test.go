package blockmap

import (
	"testing"

	"github.com/dreamware/vdo-core/internal/block"
)

type seqAllocator struct {
	next block.PBN
}

func (a *seqAllocator) AllocateInteriorPage() (block.PBN, error) {
	a.next++
	return a.next, nil
}

func TestLocateComputesCoordinates(t *testing.T) {
	g := block.DefaultGeometry()
	c := Locate(g, block.LBN(g.EntriesPerPage*3+5))
	if c.PageIndex != 3 {
		t.Fatalf("expected page index 3, got %d", c.PageIndex)
	}
	if c.Slot != 5 {
		t.Fatalf("expected slot 5, got %d", c.Slot)
	}
}

func TestForestLookupAllocatesOncePerPage(t *testing.T) {
	g := block.DefaultGeometry()
	alloc := &seqAllocator{}
	f := NewForest(g, 4, alloc)

	pbn1, err := f.Lookup(block.LBN(10))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	pbn2, err := f.Lookup(block.LBN(10))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if pbn1 != pbn2 {
		t.Fatalf("expected repeated lookup of the same LBN to return the same PBN, got %d vs %d", pbn1, pbn2)
	}
	if alloc.next != 1 {
		t.Fatalf("expected exactly one allocation for one page, got %d allocations", alloc.next)
	}
}

func TestTreeZoneStripingByRootIndex(t *testing.T) {
	tree := NewTree(5, 5, 4, &seqAllocator{})
	if got := tree.ZoneFor(0); got != 5%4 {
		t.Fatalf("expected zone %d, got %d", 5%4, got)
	}
}

func TestTreeLockAwaitBlocksUntilResolved(t *testing.T) {
	var lock TreeLock
	ch := lock.Await()
	select {
	case <-ch:
		t.Fatalf("expected Await to block before Resolve")
	default:
	}
	lock.Resolve(block.PBN(99))
	if got := <-ch; got != block.PBN(99) {
		t.Fatalf("expected resolved PBN 99, got %d", got)
	}
}

func TestTreeLockMarkPending(t *testing.T) {
	var lock TreeLock
	lock.MarkPending(block.PBN(7))
	if lock.state_() != TreeLockPending {
		t.Fatalf("expected pending state after MarkPending")
	}
}
