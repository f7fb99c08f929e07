package recovery

import (
	"testing"

	"github.com/dreamware/vdo-core/internal/block"
)

func TestGrowPhysicalPrepareRejectsShrink(t *testing.T) {
	g := NewGrowPhysical(100, nil)
	if err := g.Prepare(50); err == nil {
		t.Fatalf("expected Prepare to reject a smaller block count")
	}
}

func TestGrowPhysicalPerformRequiresPrepare(t *testing.T) {
	g := NewGrowPhysical(100, nil)
	if err := g.Perform(); err == nil {
		t.Fatalf("expected Perform without Prepare to fail")
	}
}

func TestGrowPhysicalPrepareThenPerform(t *testing.T) {
	var gotFrom, gotTo block.PBN
	g := NewGrowPhysical(100, func(from, to block.PBN) error {
		gotFrom, gotTo = from, to
		return nil
	})
	if err := g.Prepare(200); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := g.Perform(); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if gotFrom != 100 || gotTo != 200 {
		t.Fatalf("expected allocateSlabs(100, 200), got (%d, %d)", gotFrom, gotTo)
	}
	if g.CurrentBlockCount() != 200 {
		t.Fatalf("expected current block count updated to 200, got %d", g.CurrentBlockCount())
	}
}
