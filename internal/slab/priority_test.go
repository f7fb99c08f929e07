package slab

import "testing"

func TestPriorityTablePopsHighestFreeFirst(t *testing.T) {
	pt := newPriorityTable()
	pt.insert(1, 10)
	pt.insert(2, 50)
	pt.insert(3, 30)

	slab, ok := pt.popBest()
	if !ok || slab != 2 {
		t.Fatalf("expected slab 2 (free=50) first, got %d ok=%v", slab, ok)
	}
	slab, ok = pt.popBest()
	if !ok || slab != 3 {
		t.Fatalf("expected slab 3 (free=30) second, got %d ok=%v", slab, ok)
	}
	slab, ok = pt.popBest()
	if !ok || slab != 1 {
		t.Fatalf("expected slab 1 (free=10) third, got %d ok=%v", slab, ok)
	}
}

func TestPriorityTableTiesBreakByLowerSlabNumber(t *testing.T) {
	pt := newPriorityTable()
	pt.insert(5, 20)
	pt.insert(2, 20)
	pt.insert(9, 20)

	slab, ok := pt.popBest()
	if !ok || slab != 2 {
		t.Fatalf("expected lowest slab number 2 to win tie, got %d", slab)
	}
}

func TestPriorityTableEmptyReportsNotOk(t *testing.T) {
	pt := newPriorityTable()
	if _, ok := pt.popBest(); ok {
		t.Fatalf("expected empty table to report ok=false")
	}
}

func TestPriorityTableLen(t *testing.T) {
	pt := newPriorityTable()
	pt.insert(1, 1)
	pt.insert(2, 2)
	if pt.len() != 2 {
		t.Fatalf("expected len 2, got %d", pt.len())
	}
	pt.popBest()
	if pt.len() != 1 {
		t.Fatalf("expected len 1 after pop, got %d", pt.len())
	}
}
