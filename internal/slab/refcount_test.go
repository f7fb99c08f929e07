package slab

import "testing"

func TestFindFreeBlockAdvancesCursor(t *testing.T) {
	rc := NewRefCounts(4)
	sbn0, ok := rc.FindFreeBlock()
	if !ok || sbn0 != 0 {
		t.Fatalf("expected first free block 0, got %d ok=%v", sbn0, ok)
	}
	if rc.Get(sbn0) != RefProvisional {
		t.Fatalf("expected provisional state, got %v", rc.Get(sbn0))
	}
	sbn1, ok := rc.FindFreeBlock()
	if !ok || sbn1 != 1 {
		t.Fatalf("expected next free block 1, got %d ok=%v", sbn1, ok)
	}
	if rc.Free() != 2 {
		t.Fatalf("expected 2 free remaining, got %d", rc.Free())
	}
}

func TestFindFreeBlockExhaustion(t *testing.T) {
	rc := NewRefCounts(2)
	rc.FindFreeBlock()
	rc.FindFreeBlock()
	if _, ok := rc.FindFreeBlock(); ok {
		t.Fatalf("expected exhaustion to report ok=false")
	}
}

func TestModifyIncrementFromProvisionalConfirms(t *testing.T) {
	rc := NewRefCounts(1)
	sbn, _ := rc.FindFreeBlock()
	if err := rc.Modify(sbn, OpIncrement, 1); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if rc.Get(sbn) != refMinReal {
		t.Fatalf("expected confirmed minimum real count, got %v", rc.Get(sbn))
	}
	if rc.Free() != 0 {
		t.Fatalf("confirming a provisional ref must not change free count, got %d", rc.Free())
	}
}

func TestModifyStickyShared(t *testing.T) {
	rc := NewRefCounts(1)
	sbn, _ := rc.FindFreeBlock()
	rc.Modify(sbn, OpIncrement, 1) // -> refMinReal (2)
	for v := rc.Get(sbn); v < RefShared; v = rc.Get(sbn) {
		if err := rc.Modify(sbn, OpIncrement, 1); err != nil {
			t.Fatalf("Modify: %v", err)
		}
	}
	if rc.Get(sbn) != RefShared {
		t.Fatalf("expected to saturate at RefShared, got %v", rc.Get(sbn))
	}
	if err := rc.Modify(sbn, OpIncrement, 1); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if rc.Get(sbn) != RefShared {
		t.Fatalf("expected RefShared to stay sticky on further increment, got %v", rc.Get(sbn))
	}
	if err := rc.Modify(sbn, OpDecrement, 1); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if rc.Get(sbn) != RefShared {
		t.Fatalf("expected RefShared to never decrement, got %v", rc.Get(sbn))
	}
}

func TestModifyDecrementToEmptyFreesBlock(t *testing.T) {
	rc := NewRefCounts(1)
	sbn, _ := rc.FindFreeBlock()
	rc.Modify(sbn, OpIncrement, 1)
	if err := rc.Modify(sbn, OpDecrement, 1); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if rc.Get(sbn) != RefEmpty {
		t.Fatalf("expected block to return to empty, got %v", rc.Get(sbn))
	}
	if rc.Free() != 1 {
		t.Fatalf("expected free count restored, got %d", rc.Free())
	}
}

func TestModifyDecrementOfEmptyIsError(t *testing.T) {
	rc := NewRefCounts(1)
	if err := rc.Modify(0, OpDecrement, 1); err == nil {
		t.Fatalf("expected error decrementing an already-empty block")
	}
}

func TestVacateProvisional(t *testing.T) {
	rc := NewRefCounts(1)
	sbn, _ := rc.FindFreeBlock()
	rc.Vacate(sbn)
	if rc.Get(sbn) != RefEmpty {
		t.Fatalf("expected vacate to return block to empty, got %v", rc.Get(sbn))
	}
	if rc.Free() != 1 {
		t.Fatalf("expected free count restored after vacate, got %d", rc.Free())
	}
}

func TestDirtyEraTracksFirstDirtying(t *testing.T) {
	rc := NewRefCounts(1)
	sbn, _ := rc.FindFreeBlock() // dirties at era 0 via markDirty(0)
	if !rc.Dirty() {
		t.Fatalf("expected block to be dirty after allocation")
	}
	rc.Modify(sbn, OpIncrement, 7)
	if rc.DirtyEra() != 0 {
		t.Fatalf("expected dirty era to stick to the first dirtying era, got %d", rc.DirtyEra())
	}
	rc.ClearDirty()
	if rc.Dirty() {
		t.Fatalf("expected ClearDirty to clear the dirty flag")
	}
	rc.Modify(sbn, OpIncrement, 9)
	if rc.DirtyEra() != 9 {
		t.Fatalf("expected new dirtying era after clear, got %d", rc.DirtyEra())
	}
}
